// Package tenantdata maps between the remote tenants/clients tables and the
// portal's tenant and client records.
//
// Lists are best-effort: a failed list read is logged and comes back empty.
// Single-row reads and all writes return their error to the caller.
package tenantdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/remote"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
	ErrClientNotFound = errors.New("client not found")
)

// Service is the data-access shim over the remote data client
type Service struct {
	remote remote.Remote
}

func NewService(r remote.Remote) *Service {
	return &Service{remote: r}
}

// FetchTenants returns every tenant visible to the caller, oldest first
func (s *Service) FetchTenants(ctx context.Context) []models.Tenant {
	var rows []models.TenantRow
	err := s.remote.Select(ctx, remote.TableTenants, remote.Query{OrderBy: "created_at"}, &rows)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"driver": s.remote.Name(),
			"error":  err,
		}).Error("Failed to fetch tenants")
		return []models.Tenant{}
	}

	tenants := make([]models.Tenant, 0, len(rows))
	for _, row := range rows {
		tenants = append(tenants, TenantFromRow(row))
	}
	return tenants
}

// FetchTenant returns one tenant or ErrTenantNotFound
func (s *Service) FetchTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var rows []models.TenantRow
	q := remote.Query{Filters: []remote.Filter{remote.Eq("id", id)}, Limit: 1}
	if err := s.remote.Select(ctx, remote.TableTenants, q, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch tenant %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrTenantNotFound
	}
	t := TenantFromRow(rows[0])
	return &t, nil
}

// InsertTenant writes a new tenant row and returns what was stored
func (s *Service) InsertTenant(ctx context.Context, t models.Tenant) (*models.Tenant, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	row := TenantToRow(t)
	if err := s.remote.Insert(ctx, remote.TableTenants, &row); err != nil {
		logWriteFailure("insert", "tenant", t.ID, err)
		return nil, fmt.Errorf("failed to insert tenant: %w", err)
	}
	stored := TenantFromRow(row)
	return &stored, nil
}

// SaveTenant writes name, status and configuration of an existing tenant
func (s *Service) SaveTenant(ctx context.Context, t models.Tenant) error {
	patch := map[string]interface{}{
		"name":   t.Name,
		"status": string(t.Status),
		"config": tenantConfig(t),
	}
	if err := s.remote.Update(ctx, remote.TableTenants, []remote.Filter{remote.Eq("id", t.ID)}, patch); err != nil {
		logWriteFailure("update", "tenant", t.ID, err)
		return fmt.Errorf("failed to update tenant: %w", notFound(err, ErrTenantNotFound))
	}
	return nil
}

// DeleteTenant removes a tenant row
func (s *Service) DeleteTenant(ctx context.Context, id string) error {
	if err := s.remote.Delete(ctx, remote.TableTenants, []remote.Filter{remote.Eq("id", id)}); err != nil {
		logWriteFailure("delete", "tenant", id, err)
		return fmt.Errorf("failed to delete tenant: %w", notFound(err, ErrTenantNotFound))
	}
	return nil
}

// FetchClients returns the tenant's clients, newest first. A tenant with no
// clients gets an empty list.
func (s *Service) FetchClients(ctx context.Context, tenantID string) []models.Client {
	var rows []models.ClientRow
	q := remote.Query{
		Filters: []remote.Filter{remote.Eq("tenant_id", tenantID)},
		OrderBy: "created_at",
		Desc:    true,
	}
	if err := s.remote.Select(ctx, remote.TableClients, q, &rows); err != nil {
		logrus.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"driver":    s.remote.Name(),
			"error":     err,
		}).Error("Failed to fetch clients")
		return []models.Client{}
	}

	clients := make([]models.Client, 0, len(rows))
	for _, row := range rows {
		clients = append(clients, ClientFromRow(row))
	}
	return clients
}

// FetchClient returns one client of the tenant or ErrClientNotFound
func (s *Service) FetchClient(ctx context.Context, tenantID, clientID string) (*models.Client, error) {
	var rows []models.ClientRow
	q := remote.Query{
		Filters: []remote.Filter{remote.Eq("id", clientID), remote.Eq("tenant_id", tenantID)},
		Limit:   1,
	}
	if err := s.remote.Select(ctx, remote.TableClients, q, &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch client %s: %w", clientID, err)
	}
	if len(rows) == 0 {
		return nil, ErrClientNotFound
	}
	c := ClientFromRow(rows[0])
	return &c, nil
}

// CreateClient adds a client to the tenant
func (s *Service) CreateClient(ctx context.Context, tenantID string, in models.ClientInput) (*models.Client, error) {
	c := models.Client{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		CreatedAt: time.Now().UTC(),
	}
	in.Apply(&c)

	row := ClientToRow(c)
	if err := s.remote.Insert(ctx, remote.TableClients, &row); err != nil {
		logWriteFailure("insert", "client", c.ID, err)
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	stored := ClientFromRow(row)
	return &stored, nil
}

// UpdateClient replaces the writable fields of a client
func (s *Service) UpdateClient(ctx context.Context, tenantID, clientID string, in models.ClientInput) (*models.Client, error) {
	existing, err := s.FetchClient(ctx, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	in.Apply(existing)

	row := ClientToRow(*existing)
	patch := map[string]interface{}{
		"name":              row.Name,
		"email":             row.Email,
		"phone":             row.Phone,
		"address":           row.Address,
		"integration_ref":   row.IntegrationRef,
		"status":            row.Status,
		"budget_cap":        row.BudgetCap,
		"budget_used":       row.BudgetUsed,
		"renewal_date":      row.RenewalDate,
		"documents":         row.Documents,
		"home_care_package": row.HomeCarePackage,
		"funding_level":     row.FundingLevel,
		"support_at_home":   row.SupportAtHome,
		"chsp":              row.CHSP,
	}
	if err := s.remote.Update(ctx, remote.TableClients, clientFilters(tenantID, clientID), patch); err != nil {
		logWriteFailure("update", "client", clientID, err)
		return nil, fmt.Errorf("failed to update client: %w", notFound(err, ErrClientNotFound))
	}
	return existing, nil
}

// DeleteClient removes a client of the tenant
func (s *Service) DeleteClient(ctx context.Context, tenantID, clientID string) error {
	if err := s.remote.Delete(ctx, remote.TableClients, clientFilters(tenantID, clientID)); err != nil {
		logWriteFailure("delete", "client", clientID, err)
		return fmt.Errorf("failed to delete client: %w", notFound(err, ErrClientNotFound))
	}
	return nil
}

func clientFilters(tenantID, clientID string) []remote.Filter {
	return []remote.Filter{remote.Eq("id", clientID), remote.Eq("tenant_id", tenantID)}
}

// notFound tags a write that touched no row with the record's not-found error
func notFound(err, target error) error {
	if errors.Is(err, remote.ErrNoRows) {
		return fmt.Errorf("%w: %w", target, err)
	}
	return err
}

func logWriteFailure(op, kind, id string, err error) {
	logrus.WithFields(logrus.Fields{
		"op":    op,
		"kind":  kind,
		"id":    id,
		"error": err,
	}).Error("Remote write failed")
}
