// README: Signal registry backed by Redis GEO, per-signal JSON, and a restore schedule set.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"

	"greencorridor/internal/geo"
	"greencorridor/internal/types"
)

const (
	signalGeoKey       = "signals:geo"
	signalKeyPrefix    = "signals:%s"
	restoreScheduleKey = "signals:restore"
	maxCASAttempts     = 8
)

type RedisRegistry struct {
	redis *redis.Client
}

func NewRedisRegistry(redis *redis.Client) *RedisRegistry {
	return &RedisRegistry{redis: redis}
}

func (r *RedisRegistry) Upsert(ctx context.Context, s Signal) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	pipe := r.redis.TxPipeline()
	pipe.GeoAdd(ctx, signalGeoKey, &redis.GeoLocation{
		Name:      string(s.ID),
		Longitude: s.Position.Lng,
		Latitude:  s.Position.Lat,
	})
	pipe.Set(ctx, signalKey(s.ID), raw, 0)
	schedule(ctx, pipe, s)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisRegistry) Get(ctx context.Context, id types.ID) (Signal, error) {
	return load(ctx, r.redis, id)
}

// FindNear queries the GEO index with the box's enclosing rectangle and then drops
// members outside the exact bound.
func (r *RedisRegistry) FindNear(ctx context.Context, box orb.Bound) ([]Signal, error) {
	center := geo.FromOrb(box.Center())
	width := geo.Distance(
		types.Point{Lat: center.Lat, Lng: box.Min.Lon()},
		types.Point{Lat: center.Lat, Lng: box.Max.Lon()},
	)
	height := geo.Distance(
		types.Point{Lat: box.Min.Lat(), Lng: center.Lng},
		types.Point{Lat: box.Max.Lat(), Lng: center.Lng},
	)
	ids, err := r.redis.GeoSearch(ctx, signalGeoKey, &redis.GeoSearchQuery{
		Longitude: center.Lng,
		Latitude:  center.Lat,
		BoxWidth:  width + 1,
		BoxHeight: height + 1,
		BoxUnit:   "m",
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = signalKey(types.ID(id))
	}
	vals, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Signal, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var s Signal
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			return nil, fmt.Errorf("decode signal %s: %w", ids[i], err)
		}
		if box.Contains(geo.ToOrb(s.Position)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *RedisRegistry) Preempt(ctx context.Context, id types.ID, claim Claim, now time.Time) (Signal, Action, error) {
	var (
		result Signal
		action Action
	)
	err := r.update(ctx, id, func(cur Signal) (Signal, bool) {
		next, a := Decide(cur, claim, now)
		result, action = next, a
		return next, a != ActionNone
	})
	return result, action, err
}

func (r *RedisRegistry) Restore(ctx context.Context, id types.ID) (Signal, bool, error) {
	var (
		result Signal
		done   bool
	)
	err := r.update(ctx, id, func(cur Signal) (Signal, bool) {
		done = cur.Overridden()
		result = restored(cur)
		return result, done
	})
	return result, done, err
}

// RestoreExpired reads due ids from the schedule set and restores each one under its own
// transaction, rechecking expiry so a concurrent extension wins.
func (r *RedisRegistry) RestoreExpired(ctx context.Context, now time.Time) ([]Signal, error) {
	ids, err := r.redis.ZRangeByScore(ctx, restoreScheduleKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []Signal
	var errs []error
	for _, id := range ids {
		var restoredSig Signal
		var did bool
		err := r.update(ctx, types.ID(id), func(cur Signal) (Signal, bool) {
			if !cur.Expired(now) {
				return cur, false
			}
			restoredSig, did = restored(cur), true
			return restoredSig, true
		})
		if errors.Is(err, ErrNotFound) {
			r.redis.ZRem(ctx, restoreScheduleKey, id)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", id, err))
			continue
		}
		if did {
			out = append(out, restoredSig)
		}
	}
	return out, errors.Join(errs...)
}

// update runs fn against the stored signal inside WATCH/MULTI, retrying on conflict.
// fn returns the new value and whether to write it.
func (r *RedisRegistry) update(ctx context.Context, id types.ID, fn func(Signal) (Signal, bool)) error {
	key := signalKey(id)
	txf := func(tx *redis.Tx) error {
		cur, err := load(ctx, tx, id)
		if err != nil {
			return err
		}
		next, write := fn(cur)
		if !write {
			return nil
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			schedule(ctx, pipe, next)
			return nil
		})
		return err
	}

	for i := 0; i < maxCASAttempts; i++ {
		err := r.redis.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrContended
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, id types.ID) (Signal, error) {
	raw, err := c.Get(ctx, signalKey(id)).Bytes()
	if err == redis.Nil {
		return Signal{}, ErrNotFound
	}
	if err != nil {
		return Signal{}, err
	}
	var s Signal
	if err := json.Unmarshal(raw, &s); err != nil {
		return Signal{}, fmt.Errorf("decode signal %s: %w", id, err)
	}
	return s, nil
}

func schedule(ctx context.Context, pipe redis.Pipeliner, s Signal) {
	if s.Override != nil {
		pipe.ZAdd(ctx, restoreScheduleKey, redis.Z{
			Score:  float64(s.Override.ScheduledRestoreAt.UnixMilli()),
			Member: string(s.ID),
		})
		return
	}
	pipe.ZRem(ctx, restoreScheduleKey, string(s.ID))
}

func signalKey(id types.ID) string {
	return fmt.Sprintf(signalKeyPrefix, string(id))
}
