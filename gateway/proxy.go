package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/care-intake-portal/shared/middleware"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// ServiceClient handles HTTP communication with one backend service
type ServiceClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// ServiceClients holds all backend clients
type ServiceClients struct {
	Portal   *ServiceClient
	Notifier *ServiceClient
}

// hop-by-hop headers are not forwarded
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// NewServiceClient creates a new service client
func NewServiceClient(name, baseURL string) *ServiceClient {
	return &ServiceClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ProxyRequest forwards the request to the service and copies the response back
func (sc *ServiceClient) ProxyRequest(c *gin.Context) {
	targetURL := sc.baseURL + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		targetURL += "?" + c.Request.URL.RawQuery
	}

	var body io.Reader
	if c.Request.Body != nil {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			utils.BadRequestResponse(c, "Failed to read request body")
			return
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, body)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to create request")
		return
	}

	for key, values := range c.Request.Header {
		if hopHeaders[key] {
			continue
		}
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("X-Forwarded-For", utils.ClientIP(c.Request))

	// Identity resolved at the edge, for service logs
	if user, ok := middleware.UserFromContext(c); ok {
		req.Header.Set("X-User-ID", user.UserID)
		req.Header.Set("X-User-Role", string(user.Role))
		if user.TenantID != "" {
			req.Header.Set("X-Tenant-ID", user.TenantID)
		}
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"service": sc.name,
			"path":    c.Request.URL.Path,
			"error":   err,
		}).Error("Failed to reach service")
		utils.BadGatewayResponse(c, "Service is unavailable, please try again")
		return
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		utils.BadGatewayResponse(c, "Failed to read service response")
		return
	}

	for key, values := range resp.Header {
		if hopHeaders[key] || key == "Content-Length" {
			continue
		}
		for _, value := range values {
			c.Header(key, value)
		}
	}
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), responseBody)
}

// HealthCheck checks if a service is healthy
func (sc *ServiceClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}
	return nil
}

// GetServiceStatus returns the health of every backend
func (scs *ServiceClients) GetServiceStatus(ctx context.Context) (map[string]interface{}, bool) {
	status := make(map[string]interface{})
	healthy := true
	for _, sc := range []*ServiceClient{scs.Portal, scs.Notifier} {
		if err := sc.HealthCheck(ctx); err != nil {
			healthy = false
			status[sc.name] = map[string]interface{}{
				"healthy": false,
				"error":   err.Error(),
			}
			continue
		}
		status[sc.name] = map[string]interface{}{"healthy": true}
	}
	return status, healthy
}
