package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const (
	commentCachePrefix   = "helpdesk:comments:"
	commentVersionPrefix = "helpdesk:comments:ver:"
	commentVersionTTL    = 24 * time.Hour
)

// CommentCache holds comment threads keyed by ticket id. Threads are
// append-only, so an entry stays valid until the next write to that ticket.
//
// Fills are versioned: read Version before loading the thread from the store
// and pass it to Set. Invalidate bumps the version, so a fill that raced a
// write is dropped instead of caching the older thread.
type CommentCache interface {
	Get(ctx context.Context, ticketID string) ([]domain.Comment, bool, error)
	Version(ctx context.Context, ticketID string) (int64, error)
	Set(ctx context.Context, ticketID string, version int64, comments []domain.Comment) error
	Invalidate(ctx context.Context, ticketID string) error
}

type redisCommentCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCommentCache returns a Redis-backed cache, or a no-op cache when
// client is nil.
func NewRedisCommentCache(client *redis.Client, ttl time.Duration) CommentCache {
	if client == nil {
		return NopCommentCache{}
	}
	return &redisCommentCache{client: client, ttl: ttl}
}

func (c *redisCommentCache) Get(ctx context.Context, ticketID string) ([]domain.Comment, bool, error) {
	raw, err := c.client.Get(ctx, commentCachePrefix+ticketID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var comments []domain.Comment
	if err := json.Unmarshal(raw, &comments); err != nil {
		return nil, false, err
	}
	return comments, true, nil
}

func (c *redisCommentCache) Version(ctx context.Context, ticketID string) (int64, error) {
	return readVersion(ctx, c.client, commentVersionPrefix+ticketID)
}

// Set stores the thread only if the ticket's version still equals version.
func (c *redisCommentCache) Set(ctx context.Context, ticketID string, version int64, comments []domain.Comment) error {
	raw, err := json.Marshal(comments)
	if err != nil {
		return err
	}
	verKey := commentVersionPrefix + ticketID
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readVersion(ctx, tx, verKey)
		if err != nil {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, commentCachePrefix+ticketID, raw, c.ttl)
			return nil
		})
		return err
	}, verKey)
	if errors.Is(err, redis.TxFailedErr) {
		// the version moved while we were writing
		return nil
	}
	return err
}

func (c *redisCommentCache) Invalidate(ctx context.Context, ticketID string) error {
	verKey := commentVersionPrefix + ticketID
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, verKey)
		pipe.Expire(ctx, verKey, commentVersionTTL)
		pipe.Del(ctx, commentCachePrefix+ticketID)
		return nil
	})
	return err
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readVersion(ctx context.Context, cmd stringGetter, key string) (int64, error) {
	version, err := cmd.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

// NopCommentCache never stores anything.
type NopCommentCache struct{}

func (NopCommentCache) Get(context.Context, string) ([]domain.Comment, bool, error) {
	return nil, false, nil
}

func (NopCommentCache) Version(context.Context, string) (int64, error) { return 0, nil }

func (NopCommentCache) Set(context.Context, string, int64, []domain.Comment) error { return nil }

func (NopCommentCache) Invalidate(context.Context, string) error { return nil }
