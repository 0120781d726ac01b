// README: Driver presence backed by Redis hashes.
package driver

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"buggy/internal/types"
)

const (
	presenceKeyPrefix = "buggy:driver:%s:presence"
	// Login grace is the longest-lived field; keep keys a little longer than that.
	presenceTTL = 12 * time.Hour

	fieldHeartbeat = "hb"
	fieldGrace     = "grace"
	fieldLat       = "lat"
	fieldLng       = "lng"
	fieldFixAt     = "fix_at"
)

type RedisLiveness struct {
	redis *redis.Client
}

func NewRedisLiveness(redis *redis.Client) *RedisLiveness {
	return &RedisLiveness{redis: redis}
}

func (s *RedisLiveness) Load(ctx context.Context, ids []types.ID) (map[types.ID]Presence, error) {
	if len(ids) == 0 {
		return map[types.ID]Presence{}, nil
	}
	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	out := make(map[types.ID]Presence, len(ids))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			continue
		}
		out[ids[i]] = decodePresence(fields)
	}
	return out, nil
}

func (s *RedisLiveness) Heartbeat(ctx context.Context, id types.ID, at time.Time) error {
	return s.set(ctx, id, fieldHeartbeat, millis(at))
}

func (s *RedisLiveness) SetFix(ctx context.Context, id types.ID, fix Fix) error {
	return s.set(ctx, id,
		fieldLat, strconv.FormatFloat(fix.Point.Lat, 'f', -1, 64),
		fieldLng, strconv.FormatFloat(fix.Point.Lng, 'f', -1, 64),
		fieldFixAt, millis(fix.At),
	)
}

func (s *RedisLiveness) SetLoginGrace(ctx context.Context, id types.ID, until time.Time) error {
	return s.set(ctx, id, fieldGrace, millis(until))
}

func (s *RedisLiveness) Clear(ctx context.Context, id types.ID) error {
	return s.redis.Del(ctx, presenceKey(id)).Err()
}

func (s *RedisLiveness) set(ctx context.Context, id types.ID, values ...interface{}) error {
	key := presenceKey(id)
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key, values...)
	pipe.Expire(ctx, key, presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func decodePresence(fields map[string]string) Presence {
	var p Presence
	if t, ok := parseMillis(fields[fieldHeartbeat]); ok {
		p.LastHeartbeat = &t
	}
	if t, ok := parseMillis(fields[fieldGrace]); ok {
		p.LoginGraceUntil = &t
	}
	at, okAt := parseMillis(fields[fieldFixAt])
	lat, errLat := strconv.ParseFloat(fields[fieldLat], 64)
	lng, errLng := strconv.ParseFloat(fields[fieldLng], 64)
	if okAt && errLat == nil && errLng == nil {
		p.Fix = &Fix{Point: types.Point{Lat: lat, Lng: lng}, At: at}
	}
	return p
}

func presenceKey(id types.ID) string {
	return fmt.Sprintf(presenceKeyPrefix, string(id))
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
