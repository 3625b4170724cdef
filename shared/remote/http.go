package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// httpCaller is shared by the REST and auth clients
type httpCaller struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *utils.CircuitBreaker
}

func newHTTPCaller(baseURL, apiKey string, timeout time.Duration, breaker *utils.CircuitBreaker) httpCaller {
	if breaker == nil {
		breaker = utils.NewCircuitBreaker(5, 30*time.Second)
	}
	return httpCaller{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: breaker,
	}
}

// call sends a request and decodes a 2xx JSON body into out (if non-nil).
// Non-2xx responses become *Error.
func (h *httpCaller) call(ctx context.Context, method, path string, bearer string, headers map[string]string, body, out interface{}) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	return h.breaker.CallCounting(func() error {
		req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, payload)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("apikey", h.apiKey)
		if bearer == "" {
			bearer = h.apiKey
		}
		req.Header.Set("Authorization", "Bearer "+bearer)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := h.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("remote %s %s: %w", method, path, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read remote response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return decodeError(resp.StatusCode, data)
		}

		if out == nil || len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode remote response: %w", err)
		}
		return nil
	}, countsAsOutage)
}

// decodeError understands both the PostgREST and the auth service error bodies
func decodeError(status int, data []byte) *Error {
	var body struct {
		Code             interface{} `json:"code"`
		Message          string      `json:"message"`
		Msg              string      `json:"msg"`
		Details          string      `json:"details"`
		Hint             string      `json:"hint"`
		ErrorCode        string      `json:"error_code"`
		ErrorName        string      `json:"error"`
		ErrorDescription string      `json:"error_description"`
	}
	rerr := &Error{Status: status}
	if err := json.Unmarshal(data, &body); err != nil {
		rerr.Message = strings.TrimSpace(string(data))
		if rerr.Message == "" {
			rerr.Message = http.StatusText(status)
		}
		return rerr
	}

	switch code := body.Code.(type) {
	case string:
		rerr.Code = code
	}
	if rerr.Code == "" {
		rerr.Code = firstNonEmpty(body.ErrorCode, body.ErrorName)
	}
	rerr.Message = firstNonEmpty(body.Message, body.Msg, body.ErrorDescription, http.StatusText(status))
	rerr.Details = body.Details
	rerr.Hint = body.Hint
	return rerr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
