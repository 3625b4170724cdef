package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pavitra93/care-intake-portal/shared/config"
	"github.com/pavitra93/care-intake-portal/shared/utils"
)

// RESTClient talks to the hosted PostgREST endpoint at {url}/rest/v1
type RESTClient struct {
	httpCaller
}

// NewRESTClient creates a data client from the remote configuration
func NewRESTClient(cfg config.RemoteConfig, breaker *utils.CircuitBreaker) *RESTClient {
	return &RESTClient{httpCaller: newHTTPCaller(cfg.URL, cfg.AnonKey, cfg.Timeout, breaker)}
}

func (r *RESTClient) Name() string { return config.DriverREST }

// Breaker exposes the circuit breaker guarding this client
func (r *RESTClient) Breaker() *utils.CircuitBreaker { return r.breaker }

func (r *RESTClient) Select(ctx context.Context, table string, q Query, dest interface{}) error {
	if err := validateQuery(table, q.Filters, q.OrderBy); err != nil {
		return err
	}

	params := filterParams(q.Filters)
	params.Set("select", "*")
	if q.OrderBy != "" {
		dir := "asc"
		if q.Desc {
			dir = "desc"
		}
		params.Set("order", q.OrderBy+"."+dir)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	return r.call(ctx, http.MethodGet, tablePath(table, params), AccessTokenFromContext(ctx), nil, nil, dest)
}

func (r *RESTClient) Insert(ctx context.Context, table string, row interface{}) error {
	if err := validateIdent(table); err != nil {
		return err
	}

	var stored []json.RawMessage
	headers := map[string]string{"Prefer": "return=representation"}
	if err := r.call(ctx, http.MethodPost, tablePath(table, nil), AccessTokenFromContext(ctx), headers, row, &stored); err != nil {
		return err
	}
	if len(stored) == 0 {
		return nil
	}
	if err := json.Unmarshal(stored[0], row); err != nil {
		return fmt.Errorf("failed to decode inserted %s row: %w", table, err)
	}
	return nil
}

func (r *RESTClient) Update(ctx context.Context, table string, filters []Filter, patch map[string]interface{}) error {
	if err := validateQuery(table, filters, ""); err != nil {
		return err
	}
	return r.write(ctx, http.MethodPatch, table, filters, patch)
}

func (r *RESTClient) Delete(ctx context.Context, table string, filters []Filter) error {
	if err := validateQuery(table, filters, ""); err != nil {
		return err
	}
	return r.write(ctx, http.MethodDelete, table, filters, nil)
}

// write asks for the affected rows back: PostgREST answers 2xx with an empty
// list when the filter or row-level security leaves nothing to write
func (r *RESTClient) write(ctx context.Context, method, table string, filters []Filter, body interface{}) error {
	var affected []json.RawMessage
	headers := map[string]string{"Prefer": "return=representation"}
	if err := r.call(ctx, method, tablePath(table, filterParams(filters)), AccessTokenFromContext(ctx), headers, body, &affected); err != nil {
		return err
	}
	if len(affected) == 0 {
		return fmt.Errorf("%s %s: %w", method, table, ErrNoRows)
	}
	return nil
}

// Ping checks that the endpoint answers at all
func (r *RESTClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var rows []json.RawMessage
	return r.Select(ctx, TableTenants, Query{Limit: 1}, &rows)
}

func filterParams(filters []Filter) url.Values {
	params := url.Values{}
	for _, f := range filters {
		params.Add(f.Column, "eq."+f.Value)
	}
	return params
}

func tablePath(table string, params url.Values) string {
	path := "/rest/v1/" + table
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return path
}
