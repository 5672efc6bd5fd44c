// Package quota stores per-identity daily counters in redis. The window
// rollover and the counter update run inside Lua scripts, so concurrent
// batches for one identity always see a consistent read-then-write sequence
// without client-side locking.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KeyQuota     = "qt"
	KeySeparator = ":"

	windowLayout = "2006-01-02"

	// Records outlive their day by enough to survive any clock skew, then
	// expire on their own. Stale records are reset on read anyway.
	recordTTL = 48 * time.Hour
)

// currentScript resets the record if its window is stale and returns the
// count for the given day.
var currentScript = redis.NewScript(`
local window = redis.call('HGET', KEYS[1], 'window')
if window ~= ARGV[1] then
	redis.call('HSET', KEYS[1], 'count', 0, 'window', ARGV[1])
	redis.call('EXPIRE', KEYS[1], ARGV[2])
	return 0
end
return tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
`)

// addScript applies the same rollover and then increments atomically.
var addScript = redis.NewScript(`
local window = redis.call('HGET', KEYS[1], 'window')
if window ~= ARGV[1] then
	redis.call('HSET', KEYS[1], 'count', 0, 'window', ARGV[1])
end
local count = redis.call('HINCRBY', KEYS[1], 'count', ARGV[3])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return count
`)

type quotaRepository struct {
	cl  *redis.Client
	log *slog.Logger
}

func NewQuotaRepository(cl *redis.Client, log *slog.Logger) *quotaRepository {
	return &quotaRepository{
		cl:  cl,
		log: log.With(slog.String("item", "QuotaRepository")),
	}
}

func (r *quotaRepository) Current(ctx context.Context, key string, window time.Time) (uint64, error) {
	count, err := currentScript.Run(ctx, r.cl,
		[]string{getKey(KeyQuota, key)},
		window.UTC().Format(windowLayout),
		int(recordTTL.Seconds()),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("cannot get quota counter: %w", err)
	}

	return uint64(count), nil
}

func (r *quotaRepository) Add(ctx context.Context, key string, window time.Time, n uint64) (uint64, error) {
	count, err := addScript.Run(ctx, r.cl,
		[]string{getKey(KeyQuota, key)},
		window.UTC().Format(windowLayout),
		int(recordTTL.Seconds()),
		n,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("cannot increment quota counter: %w", err)
	}

	return uint64(count), nil
}

func getKey(keys ...string) string {
	return strings.Join(keys, KeySeparator)
}
