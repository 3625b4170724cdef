// Package notifications keeps each user's notification feed and carries
// tenant events between services.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pavitra93/care-intake-portal/shared/cache"
	"github.com/pavitra93/care-intake-portal/shared/models"
)

const (
	feedPrefix = "notifications:"

	// MaxFeedSize is how many notifications a user keeps; older ones fall off
	MaxFeedSize = 50
	// FeedTTL is how long an untouched feed lives
	FeedTTL = 7 * 24 * time.Hour
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrEmptyMessage         = errors.New("notification message is required")
)

// Center stores per-user feeds in the cache, newest first
type Center struct {
	cache cache.Cache
	max   int
	ttl   time.Duration
	now   func() time.Time

	// serialises read-modify-write of a feed within this process
	locks sync.Map
}

func NewCenter(c cache.Cache) *Center {
	return &Center{cache: c, max: MaxFeedSize, ttl: FeedTTL, now: time.Now}
}

// Push adds n to the top of the user's feed and returns it with id and time set
func (c *Center) Push(ctx context.Context, userID string, n models.Notification) (models.Notification, error) {
	if strings.TrimSpace(n.Message) == "" {
		return models.Notification{}, ErrEmptyMessage
	}
	if !n.Severity.Valid() {
		n.Severity = models.SeverityInfo
	}
	n.CreatedAt = c.now().UTC()
	n.ID = ulid.MustNew(ulid.Timestamp(n.CreatedAt), ulid.DefaultEntropy()).String()
	n.Read = false

	err := c.modify(ctx, userID, func(feed []models.Notification) ([]models.Notification, error) {
		feed = append([]models.Notification{n}, feed...)
		if len(feed) > c.max {
			feed = feed[:c.max]
		}
		return feed, nil
	})
	if err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// List returns the user's feed, newest first
func (c *Center) List(ctx context.Context, userID string) ([]models.Notification, error) {
	return c.load(ctx, userID)
}

// UnreadCount is the badge number on the dropdown
func (c *Center) UnreadCount(ctx context.Context, userID string) (int, error) {
	feed, err := c.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	unread := 0
	for _, n := range feed {
		if !n.Read {
			unread++
		}
	}
	return unread, nil
}

// MarkRead flags one notification as read
func (c *Center) MarkRead(ctx context.Context, userID, id string) error {
	return c.modify(ctx, userID, func(feed []models.Notification) ([]models.Notification, error) {
		for i := range feed {
			if feed[i].ID == id {
				feed[i].Read = true
				return feed, nil
			}
		}
		return nil, ErrNotificationNotFound
	})
}

// MarkAllRead flags every notification as read
func (c *Center) MarkAllRead(ctx context.Context, userID string) error {
	return c.modify(ctx, userID, func(feed []models.Notification) ([]models.Notification, error) {
		for i := range feed {
			feed[i].Read = true
		}
		return feed, nil
	})
}

// Dismiss removes one notification
func (c *Center) Dismiss(ctx context.Context, userID, id string) error {
	return c.modify(ctx, userID, func(feed []models.Notification) ([]models.Notification, error) {
		for i := range feed {
			if feed[i].ID == id {
				return append(feed[:i], feed[i+1:]...), nil
			}
		}
		return nil, ErrNotificationNotFound
	})
}

// Clear empties the feed
func (c *Center) Clear(ctx context.Context, userID string) error {
	if err := c.cache.Delete(ctx, feedPrefix+userID); err != nil {
		return fmt.Errorf("failed to clear notifications: %w", err)
	}
	return nil
}

func (c *Center) load(ctx context.Context, userID string) ([]models.Notification, error) {
	var feed []models.Notification
	if err := cache.GetJSON(ctx, c.cache, feedPrefix+userID, &feed); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return []models.Notification{}, nil
		}
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}
	if feed == nil {
		feed = []models.Notification{}
	}
	return feed, nil
}

func (c *Center) modify(ctx context.Context, userID string, change func([]models.Notification) ([]models.Notification, error)) error {
	lock, _ := c.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	feed, err := c.load(ctx, userID)
	if err != nil {
		return err
	}
	feed, err = change(feed)
	if err != nil {
		return err
	}
	if err := cache.SetJSON(ctx, c.cache, feedPrefix+userID, feed, c.ttl); err != nil {
		return fmt.Errorf("failed to save notifications: %w", err)
	}
	return nil
}
