// Package cache is the key-value store behind sessions, PKCE verifiers,
// onboarding drafts and notification feeds.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key is absent or expired
var ErrNotFound = errors.New("cache: key not found")

// Cache is implemented by the Redis and in-process backends
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Backend() string
	Close() error
}

// GetJSON loads key into dest
func GetJSON(ctx context.Context, c Cache, key string, dest interface{}) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache: failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// SetJSON stores value under key as JSON
func SetJSON(ctx context.Context, c Cache, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}

// HashKey builds a key from a secret value without storing the value itself
func HashKey(prefix, secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return prefix + hex.EncodeToString(hash[:])
}
