// Package counter holds the shared registration counter. The value lives in Redis and
// is incremented with an optimistic WATCH/MULTI/EXEC transaction so concurrent
// registrations never lose an update. Every committed value is also published on a
// channel of the same name for realtime listeners (see Hub).
package counter

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrContention is returned when Increment keeps losing the optimistic race.
var ErrContention = errors.New("counter: too many conflicting writers")

// DefaultMaxRetries bounds how often Increment retries a conflicting transaction.
const DefaultMaxRetries = 100

// Store reads and increments the counter.
type Store struct {
	rdb        redis.UniversalClient
	key        string
	maxRetries int
}

// NewStore creates a Store for the given key.
func NewStore(rdb redis.UniversalClient, key string) *Store {
	return &Store{rdb: rdb, key: key, maxRetries: DefaultMaxRetries}
}

// Key returns the Redis key (and pub/sub channel) of the counter.
func (s *Store) Key() string {
	return s.key
}

// Get returns the current value. An absent key counts as zero.
func (s *Store) Get(ctx context.Context) (int64, error) {
	v, err := s.rdb.Get(ctx, s.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return v, nil
}

// Increment adds one and returns the committed value. The read-modify-write runs
// under WATCH; a concurrent write aborts EXEC with redis.TxFailedErr and the whole
// read is retried.
func (s *Store) Increment(ctx context.Context) (int64, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var next int64
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, s.key).Int64()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			next = cur + 1
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, s.key, next, 0)
				return nil
			})
			return err
		}, s.key)

		switch {
		case err == nil:
			s.publish(ctx, next)
			return next, nil
		case errors.Is(err, redis.TxFailedErr):
			if err := sleepJitter(ctx, attempt); err != nil {
				return 0, err
			}
			continue
		default:
			return 0, fmt.Errorf("increment counter: %w", err)
		}
	}
	return 0, ErrContention
}

// publish announces a committed value. Listeners resync on their own, so a lost
// publish only delays a live display.
func (s *Store) publish(ctx context.Context, v int64) {
	_ = s.rdb.Publish(ctx, s.key, strconv.FormatInt(v, 10)).Err()
}

func sleepJitter(ctx context.Context, attempt int) error {
	backoff := time.Duration(1+min(attempt, 10)) * time.Millisecond
	d := time.Duration(rand.Int64N(int64(backoff)) + 1)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
