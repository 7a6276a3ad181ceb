package location

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// keepNewest writes a rider's sample only if its timestamp is newer than the
// cached one, so late arrivals never replace a fresher position. A missing
// timestamp hash means the ride's entries were flushed or evicted, so the
// warm marker is dropped and the next read reloads from the store.
// KEYS: data hash, timestamp hash, warm marker. ARGV: user, unix micros, json, ttl ms.
var keepNewest = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 0 then
	redis.call('DEL', KEYS[3])
end
local cur = redis.call('HGET', KEYS[2], ARGV[1])
if cur and tonumber(cur) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
redis.call('PEXPIRE', KEYS[2], ARGV[4])
if redis.call('EXISTS', KEYS[3]) == 1 then
	redis.call('PEXPIRE', KEYS[3], ARGV[4])
end
return 1
`)

// RedisCache holds the latest position of every rider in a ride.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func latestKey(rideID string) string   { return "ride:" + rideID + ":latest" }
func latestTSKey(rideID string) string { return "ride:" + rideID + ":latest_ts" }
func warmKey(rideID string) string     { return "ride:" + rideID + ":warm" }

func (c *RedisCache) keys(rideID string) []string {
	return []string{latestKey(rideID), latestTSKey(rideID), warmKey(rideID)}
}

// Put stores s unless a newer sample is already cached. It reports whether
// the cache changed.
func (c *RedisCache) Put(ctx context.Context, s Sample) (bool, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return false, err
	}
	n, err := keepNewest.Run(ctx, c.rdb, c.keys(s.RideID),
		s.UserID, strconv.FormatInt(s.RecordedAt.UnixMicro(), 10), payload, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, Error.Wrap(err)
	}
	return n == 1, nil
}

// Warm loads a complete set of latest samples and marks the ride's cache as
// authoritative.
func (c *RedisCache) Warm(ctx context.Context, rideID string, samples map[string]Sample) error {
	for _, s := range samples {
		if _, err := c.Put(ctx, s); err != nil {
			return err
		}
	}
	return Error.Wrap(c.rdb.Set(ctx, warmKey(rideID), "1", c.ttl).Err())
}

// Invalidate drops the warm marker so the next read goes to the store.
func (c *RedisCache) Invalidate(ctx context.Context, rideID string) error {
	return Error.Wrap(c.rdb.Del(ctx, warmKey(rideID)).Err())
}

// Latest returns the cached samples and whether they are complete. Entries
// without a warm marker may be missing riders and must not be trusted.
func (c *RedisCache) Latest(ctx context.Context, rideID string) (map[string]Sample, bool, error) {
	pipe := c.rdb.TxPipeline()
	warm := pipe.Exists(ctx, warmKey(rideID))
	all := pipe.HGetAll(ctx, latestKey(rideID))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, false, Error.Wrap(err)
	}
	raw := all.Val()
	out := make(map[string]Sample, len(raw))
	for userID, v := range raw {
		var s Sample
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			return nil, false, Error.Wrap(err)
		}
		out[userID] = s
	}
	return out, warm.Val() == 1, nil
}

// CachedStore writes through to the durable store and serves Latest from
// redis once the ride's cache has been fully loaded. A cold, partial or
// failing cache falls back to the store and rewarms.
type CachedStore struct {
	store Store
	cache *RedisCache
	log   *zap.Logger
}

// NewCachedStore serves Latest from cache when the ride is warm and from
// store otherwise.
func NewCachedStore(store Store, cache *RedisCache, log *zap.Logger) *CachedStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedStore{store: store, cache: cache, log: log.Named("location.cache")}
}

func (c *CachedStore) Insert(ctx context.Context, s Sample) error {
	if err := c.store.Insert(ctx, s); err != nil {
		return err
	}
	if _, err := c.cache.Put(ctx, s); err != nil {
		c.log.Warn("cache put failed", zap.String("ride_id", s.RideID), zap.Error(err))
		if err := c.cache.Invalidate(ctx, s.RideID); err != nil {
			c.log.Warn("cache invalidate failed", zap.String("ride_id", s.RideID), zap.Error(err))
		}
	}
	return nil
}

func (c *CachedStore) Latest(ctx context.Context, rideID string) (map[string]Sample, error) {
	cached, warm, err := c.cache.Latest(ctx, rideID)
	if err == nil && warm {
		return cached, nil
	}
	if err != nil {
		c.log.Warn("cache read failed", zap.String("ride_id", rideID), zap.Error(err))
	}

	latest, err := c.store.Latest(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Warm(ctx, rideID, latest); err != nil {
		c.log.Warn("cache warm failed", zap.String("ride_id", rideID), zap.Error(err))
	}
	return latest, nil
}
