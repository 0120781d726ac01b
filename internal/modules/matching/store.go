// README: Dispatch settings and scheduler cooldown, backed by Redis or memory.
package matching

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	settingsKey       = "buggy:dispatch:settings"
	cooldownKeyPrefix = "buggy:dispatch:cooldown:"

	fieldEnabled = "auto_assign_enabled"
	fieldMaxWait = "max_wait_seconds"
)

// SettingsStore persists Settings. Load reports false when nothing was saved yet.
type SettingsStore interface {
	Load(ctx context.Context) (Settings, bool, error)
	Save(ctx context.Context, s Settings) error
}

// CooldownStore grants at most one holder per key until ttl elapses.
type CooldownStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type RedisSettings struct {
	redis *redis.Client
}

func NewRedisSettings(redis *redis.Client) *RedisSettings {
	return &RedisSettings{redis: redis}
}

func (s *RedisSettings) Load(ctx context.Context) (Settings, bool, error) {
	fields, err := s.redis.HGetAll(ctx, settingsKey).Result()
	if err != nil {
		return Settings{}, false, err
	}
	if len(fields) == 0 {
		return Settings{}, false, nil
	}
	enabled, _ := strconv.ParseBool(fields[fieldEnabled])
	maxWait, err := strconv.Atoi(fields[fieldMaxWait])
	if err != nil {
		return Settings{}, false, err
	}
	return Settings{AutoAssignEnabled: enabled, MaxWaitSeconds: maxWait}, true, nil
}

func (s *RedisSettings) Save(ctx context.Context, st Settings) error {
	return s.redis.HSet(ctx, settingsKey,
		fieldEnabled, strconv.FormatBool(st.AutoAssignEnabled),
		fieldMaxWait, strconv.Itoa(st.MaxWaitSeconds),
	).Err()
}

type RedisCooldown struct {
	redis *redis.Client
}

func NewRedisCooldown(redis *redis.Client) *RedisCooldown {
	return &RedisCooldown{redis: redis}
}

// Acquire uses SET NX PX so concurrent schedulers agree on a single holder.
func (s *RedisCooldown) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.redis.SetNX(ctx, cooldownKeyPrefix+key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

type MemorySettings struct {
	mu    sync.RWMutex
	saved *Settings
}

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{}
}

func (s *MemorySettings) Load(_ context.Context) (Settings, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.saved == nil {
		return Settings{}, false, nil
	}
	return *s.saved, true, nil
}

func (s *MemorySettings) Save(_ context.Context, st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = &st
	return nil
}

type MemoryCooldown struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

func NewMemoryCooldown(now func() time.Time) *MemoryCooldown {
	if now == nil {
		now = time.Now
	}
	return &MemoryCooldown{until: make(map[string]time.Time), now: now}
}

func (s *MemoryCooldown) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if until, ok := s.until[key]; ok && now.Before(until) {
		return false, nil
	}
	s.until[key] = now.Add(ttl)
	return true, nil
}
