// Package remote reaches the hosted database + authentication service.
//
// Data access goes through the Remote port so the tenant shim works the same
// against the PostgREST endpoint (RESTClient) and a direct Postgres connection
// (PostgresClient). Authentication goes through AuthClient.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
)

// Tables
const (
	TableTenants = "tenants"
	TableClients = "clients"
)

var (
	// ErrInvalidCredentials is returned when sign-in is rejected
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidSession is returned when an access token is not accepted
	ErrInvalidSession = errors.New("invalid or expired session")
	// ErrServiceKeyMissing is returned by admin calls without a service key
	ErrServiceKeyMissing = errors.New("remote service key not configured")
	// ErrInvalidIdentifier is returned for table or column names outside [a-z0-9_]
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrNoRows is returned by Update and Delete when no row was written,
	// either because none matched or because row-level security hid them
	ErrNoRows = errors.New("no rows affected")
)

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Error is a failure reported by the remote service itself
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote error %d: %s", e.Status, e.Message)
}

// Temporary reports whether the failure is on the service side rather than the request
func (e *Error) Temporary() bool {
	return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
}

// countsAsOutage decides which errors trip the circuit breaker: transport
// failures and 5xx do, rejected requests do not
func countsAsOutage(err error) bool {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Temporary()
	}
	return !errors.Is(err, ErrInvalidCredentials) &&
		!errors.Is(err, ErrInvalidSession) &&
		!errors.Is(err, context.Canceled)
}

// Filter is an equality condition on a column
type Filter struct {
	Column string
	Value  string
}

// Eq builds an equality filter
func Eq(column, value string) Filter {
	return Filter{Column: column, Value: value}
}

// Query describes a select
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Remote is the row-level surface of the hosted database
type Remote interface {
	// Select loads matching rows into dest, a pointer to a slice of row structs
	Select(ctx context.Context, table string, q Query, dest interface{}) error
	// Insert writes row (a pointer) and refreshes it with the stored representation
	Insert(ctx context.Context, table string, row interface{}) error
	// Update applies patch (column -> value) to matching rows. ErrNoRows when none were written.
	Update(ctx context.Context, table string, filters []Filter, patch map[string]interface{}) error
	// Delete removes matching rows. ErrNoRows when none were removed.
	Delete(ctx context.Context, table string, filters []Filter) error
	// Name identifies the driver
	Name() string
}

func validateIdent(names ...string) error {
	for _, n := range names {
		if !identPattern.MatchString(n) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, n)
		}
	}
	return nil
}

func validateQuery(table string, filters []Filter, orderBy string) error {
	if err := validateIdent(table); err != nil {
		return err
	}
	for _, f := range filters {
		if err := validateIdent(f.Column); err != nil {
			return err
		}
	}
	if orderBy != "" {
		return validateIdent(orderBy)
	}
	return nil
}

type accessTokenKey struct{}

// WithAccessToken makes remote calls on ctx act as the signed-in user so
// row-level security applies
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFromContext returns the token set by WithAccessToken
func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}
