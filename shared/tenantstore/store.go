// Package tenantstore is the process-wide cache of the tenant list and of each
// user's active tenant.
//
// Mutators are optimistic: the change is published first, then written to the
// remote. When the write fails the full list is reloaded and published so the
// cache reflects remote truth again. Published snapshots are never modified.
//
// Writes act as the caller. List reads always run detached from the caller's
// request, under the service token when one is configured, since the list is
// shared by every user of the process.
package tenantstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/care-intake-portal/shared/models"
	"github.com/pavitra93/care-intake-portal/shared/remote"
	"github.com/pavitra93/care-intake-portal/shared/tenantdata"
)

var (
	ErrTenantNotFound  = tenantdata.ErrTenantNotFound
	ErrDuplicateTenant = errors.New("tenant id already exists")
	ErrInvalidStatus   = errors.New("invalid tenant status")
)

const loadTimeout = 15 * time.Second

// Data is the subset of the data-access shim the store writes through
type Data interface {
	FetchTenants(ctx context.Context) []models.Tenant
	InsertTenant(ctx context.Context, t models.Tenant) (*models.Tenant, error)
	SaveTenant(ctx context.Context, t models.Tenant) error
	DeleteTenant(ctx context.Context, id string) error
}

// Snapshot is one published state of the store
type Snapshot struct {
	Tenants  []models.Tenant   `json:"tenants"`
	Active   map[string]string `json:"active"`
	Version  uint64            `json:"version"`
	LoadedAt time.Time         `json:"loaded_at"`
}

// Find returns the tenant with id
func (s Snapshot) Find(id string) (models.Tenant, bool) {
	for _, t := range s.Tenants {
		if t.ID == id {
			return t, true
		}
	}
	return models.Tenant{}, false
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		Tenants:  make([]models.Tenant, len(s.Tenants)),
		Active:   make(map[string]string, len(s.Active)),
		Version:  s.Version,
		LoadedAt: s.LoadedAt,
	}
	copy(out.Tenants, s.Tenants)
	for user, tenant := range s.Active {
		out.Active[user] = tenant
	}
	return out
}

// Store holds the current snapshot
type Store struct {
	data         Data
	serviceToken string

	mu      sync.RWMutex
	current Snapshot
	now     func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithServiceToken sets the bearer used to read the full tenant list
func WithServiceToken(token string) Option {
	return func(s *Store) { s.serviceToken = token }
}

func New(data Data, opts ...Option) *Store {
	s := &Store{
		data:    data,
		current: Snapshot{Tenants: []models.Tenant{}, Active: map[string]string{}},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone()
}

// Tenant returns one tenant from the current snapshot
func (s *Store) Tenant(id string) (models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.current.Find(id)
	if !ok {
		return models.Tenant{}, ErrTenantNotFound
	}
	return t, nil
}

// Load replaces the tenant list with what the remote returns. ctx only
// contributes its values: the read neither carries the caller's access token
// nor stops when ctx is cancelled.
func (s *Store) Load(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(remote.WithAccessToken(context.WithoutCancel(ctx), s.serviceToken), loadTimeout)
	defer cancel()

	tenants := s.data.FetchTenants(ctx)
	return s.publish(func(next *Snapshot) {
		next.Tenants = tenants
		next.LoadedAt = s.now()
	})
}

// SetActive selects the tenant userID works in
func (s *Store) SetActive(userID, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.current.Find(tenantID); !ok {
		return ErrTenantNotFound
	}
	next := s.current.clone()
	next.Active[userID] = tenantID
	s.commit(next)
	return nil
}

// ClearActive drops userID's selection
func (s *Store) ClearActive(userID string) {
	s.publish(func(next *Snapshot) {
		delete(next.Active, userID)
	})
}

// Active returns the tenant userID works in, if one is selected
func (s *Store) Active(userID string) (models.Tenant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.current.Active[userID]
	if !ok {
		return models.Tenant{}, false
	}
	return s.current.Find(id)
}

// Create adds a tenant. The id is generated here so the optimistic entry and
// the stored row agree.
func (s *Store) Create(ctx context.Context, in models.NewTenant) (models.Tenant, error) {
	t := models.Tenant{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Status:    in.Status,
		CreatedAt: s.now().UTC(),
		Branding:  models.DefaultBranding(),
		Features:  models.DefaultFeatures(),
		Documents: models.DefaultDocumentSettings(),
	}
	if t.Status == "" {
		t.Status = models.TenantStatusActive
	}
	if !t.Status.Valid() {
		return models.Tenant{}, ErrInvalidStatus
	}
	if in.Branding != nil {
		t.Branding = *in.Branding
	}
	if in.Features != nil {
		t.Features = *in.Features
	}
	if in.Documents != nil {
		t.Documents = *in.Documents
	}
	return s.insert(ctx, t)
}

func (s *Store) insert(ctx context.Context, t models.Tenant) (models.Tenant, error) {
	s.mu.Lock()
	if _, exists := s.current.Find(t.ID); exists {
		s.mu.Unlock()
		return models.Tenant{}, ErrDuplicateTenant
	}
	next := s.current.clone()
	next.Tenants = append(next.Tenants, t)
	s.commit(next)
	s.mu.Unlock()

	stored, err := s.data.InsertTenant(ctx, t)
	if err != nil {
		s.revert(ctx, "create", t.ID, err)
		return models.Tenant{}, err
	}

	s.replace(*stored)
	return *stored, nil
}

// UpdateFeatures replaces the feature toggles of a tenant
func (s *Store) UpdateFeatures(ctx context.Context, id string, features models.Features) (models.Tenant, error) {
	return s.update(ctx, "update_features", id, func(t *models.Tenant) error {
		t.Features = features
		return nil
	})
}

// UpdateStatus changes the lifecycle status of a tenant
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.TenantStatus) (models.Tenant, error) {
	if !status.Valid() {
		return models.Tenant{}, ErrInvalidStatus
	}
	return s.update(ctx, "update_status", id, func(t *models.Tenant) error {
		t.Status = status
		return nil
	})
}

// UpdateDetails changes name, branding or document settings of a tenant
func (s *Store) UpdateDetails(ctx context.Context, id string, details models.TenantDetails) (models.Tenant, error) {
	return s.update(ctx, "update_details", id, func(t *models.Tenant) error {
		details.Apply(t)
		return nil
	})
}

// Delete removes a tenant
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.current.Find(id); !ok {
		s.mu.Unlock()
		return ErrTenantNotFound
	}
	next := s.current.clone()
	kept := next.Tenants[:0]
	for _, t := range next.Tenants {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	next.Tenants = kept
	s.commit(next)
	s.mu.Unlock()

	if err := s.data.DeleteTenant(ctx, id); err != nil {
		s.revert(ctx, "delete", id, err)
		return err
	}
	return nil
}

func (s *Store) update(ctx context.Context, op, id string, change func(*models.Tenant) error) (models.Tenant, error) {
	s.mu.Lock()
	next := s.current.clone()
	idx := -1
	for i := range next.Tenants {
		if next.Tenants[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return models.Tenant{}, ErrTenantNotFound
	}
	if err := change(&next.Tenants[idx]); err != nil {
		s.mu.Unlock()
		return models.Tenant{}, err
	}
	updated := next.Tenants[idx]
	s.commit(next)
	s.mu.Unlock()

	if err := s.data.SaveTenant(ctx, updated); err != nil {
		s.revert(ctx, op, id, err)
		return models.Tenant{}, err
	}
	return updated, nil
}

// replace swaps in the stored version of a tenant if it is still listed
func (s *Store) replace(t models.Tenant) {
	s.publish(func(next *Snapshot) {
		for i := range next.Tenants {
			if next.Tenants[i].ID == t.ID {
				next.Tenants[i] = t
				return
			}
		}
	})
}

func (s *Store) revert(ctx context.Context, op, id string, cause error) {
	logrus.WithFields(logrus.Fields{
		"op":        op,
		"tenant_id": id,
		"error":     cause,
	}).Warn("Tenant write failed, reloading tenant list")
	s.Load(ctx)
}

func (s *Store) publish(change func(next *Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.current.clone()
	change(&next)
	s.commit(next)
	return next.clone()
}

// commit must be called with s.mu held. It drops selections of tenants that
// are no longer listed.
func (s *Store) commit(next Snapshot) {
	for user, tenantID := range next.Active {
		if _, ok := next.Find(tenantID); !ok {
			delete(next.Active, user)
		}
	}
	next.Version = s.current.Version + 1
	s.current = next
	logrus.WithField("snapshot", next.String()).Debug("Tenant snapshot published")
}

// String is used in log lines
func (s Snapshot) String() string {
	return fmt.Sprintf("snapshot v%d (%d tenants, %d active selections)", s.Version, len(s.Tenants), len(s.Active))
}
