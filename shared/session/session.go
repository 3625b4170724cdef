// Package session keeps portal sessions and short-lived OAuth state in the cache.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavitra93/care-intake-portal/shared/cache"
	"github.com/pavitra93/care-intake-portal/shared/models"
)

const (
	tokenSessionPrefix = "token:session:"
	revokedPrefix      = "token:revoked:"
	pkcePrefix         = "oauth:pkce:"

	// revokedTTL is used when the revoked token's expiry is unknown
	revokedTTL = time.Hour

	// PKCETTL bounds how long an OAuth redirect may take to come back
	PKCETTL = 10 * time.Minute
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrStateNotFound   = errors.New("oauth state not found or expired")
)

// Manager stores token sessions keyed by the hash of the access token
type Manager struct {
	cache cache.Cache
}

func NewManager(c cache.Cache) *Manager {
	return &Manager{cache: c}
}

// Create stores a session for accessToken (the token itself is never stored)
func (m *Manager) Create(ctx context.Context, accessToken string, user models.UserInfo, ttl time.Duration) (*models.TokenSession, error) {
	now := time.Now()
	sess := &models.TokenSession{
		User:       user,
		CreatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(ttl),
		SessionID:  uuid.New().String(),
	}

	if err := cache.SetJSON(ctx, m.cache, cache.HashKey(tokenSessionPrefix, accessToken), sess, ttl); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return sess, nil
}

// Get returns the session for accessToken
func (m *Manager) Get(ctx context.Context, accessToken string) (*models.TokenSession, error) {
	key := cache.HashKey(tokenSessionPrefix, accessToken)

	var sess models.TokenSession
	if err := cache.GetJSON(ctx, m.cache, key, &sess); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if sess.IsExpired() {
		_ = m.cache.Delete(ctx, key)
		return nil, ErrSessionExpired
	}
	return &sess, nil
}

// Touch updates the last used timestamp, keeping the original expiry
func (m *Manager) Touch(ctx context.Context, accessToken string) error {
	sess, err := m.Get(ctx, accessToken)
	if err != nil {
		return err
	}
	sess.UpdateLastUsed()

	remaining := time.Until(sess.ExpiresAt)
	if remaining <= 0 {
		return ErrSessionExpired
	}
	return cache.SetJSON(ctx, m.cache, cache.HashKey(tokenSessionPrefix, accessToken), sess, remaining)
}

// Revoke removes the session for accessToken and remembers the token as
// signed out until it would have expired
func (m *Manager) Revoke(ctx context.Context, accessToken string) error {
	ttl := revokedTTL
	if sess, err := m.Get(ctx, accessToken); err == nil {
		if remaining := time.Until(sess.ExpiresAt); remaining > 0 {
			ttl = remaining
		}
	}

	if err := m.cache.Delete(ctx, cache.HashKey(tokenSessionPrefix, accessToken)); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if err := m.cache.Set(ctx, cache.HashKey(revokedPrefix, accessToken), []byte("1"), ttl); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether accessToken was signed out
func (m *Manager) IsRevoked(ctx context.Context, accessToken string) bool {
	_, err := m.cache.Get(ctx, cache.HashKey(revokedPrefix, accessToken))
	return err == nil
}

// PKCEState is what the OAuth callback needs to finish a redirect sign-in
type PKCEState struct {
	Verifier    string `json:"verifier"`
	Provider    string `json:"provider"`
	RedirectTo  string `json:"redirect_to"`
	InviteToken string `json:"invite_token,omitempty"`
}

// SavePKCE stores the verifier under the OAuth state value
func (m *Manager) SavePKCE(ctx context.Context, state string, p PKCEState) error {
	return cache.SetJSON(ctx, m.cache, pkcePrefix+state, p, PKCETTL)
}

// TakePKCE loads and deletes the verifier stored under state; states are single use
func (m *Manager) TakePKCE(ctx context.Context, state string) (*PKCEState, error) {
	var p PKCEState
	if err := cache.GetJSON(ctx, m.cache, pkcePrefix+state, &p); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	_ = m.cache.Delete(ctx, pkcePrefix+state)
	return &p, nil
}
