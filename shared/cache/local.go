package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/sirupsen/logrus"
)

// ErrCacheFull is returned by LocalCache.Set when the value was not admitted
var ErrCacheFull = errors.New("local cache full")

// LocalCache keeps values in process memory. It is used when Redis is not
// configured, which limits the portal to a single instance.
//
// ristretto only runs its admission policy once MaxCost is reached, so below
// that every write is kept until its TTL. Above it, entries can be refused or
// evicted; refused writes come back from Set as ErrCacheFull.
type LocalCache struct {
	c *ristretto.Cache[string, []byte]
}

// NewLocalCache creates a ristretto-backed cache holding up to maxCostBytes of
// keys and values
func NewLocalCache(maxCostBytes int64) (*LocalCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        maxCostBytes / 100 * 10,
		MaxCost:            maxCostBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
		OnReject: func(item *ristretto.Item[[]byte]) {
			logrus.WithField("cost", item.Cost).Warn("Local cache full, entry rejected")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create local cache: %w", err)
	}
	return &LocalCache{c: c}, nil
}

func (l *LocalCache) Get(_ context.Context, key string) ([]byte, error) {
	val, found := l.c.Get(key)
	if !found {
		return nil, ErrNotFound
	}
	return val, nil
}

// Set stores the value and waits for the write buffer so the value is readable on return
func (l *LocalCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	if !l.c.SetWithTTL(key, stored, int64(len(stored))+int64(len(key)), ttl) {
		return fmt.Errorf("%w: %s dropped", ErrCacheFull, key)
	}
	l.c.Wait()
	// the policy decides while the buffer drains
	if _, ok := l.c.Get(key); !ok {
		return fmt.Errorf("%w: %s not admitted", ErrCacheFull, key)
	}
	return nil
}

func (l *LocalCache) Delete(_ context.Context, key string) error {
	l.c.Del(key)
	return nil
}

func (l *LocalCache) Backend() string { return "memory" }

func (l *LocalCache) Close() error {
	l.c.Close()
	return nil
}
