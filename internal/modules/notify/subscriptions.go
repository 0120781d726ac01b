// README: Web push subscription stores (Redis hash per recipient, in-memory).
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"
)

var ErrInvalidSubscription = errors.New("invalid push subscription")

type SubscriptionStore interface {
	Add(ctx context.Context, recipient string, sub webpush.Subscription) error
	Remove(ctx context.Context, recipient, endpoint string) error
	List(ctx context.Context, recipient string) ([]webpush.Subscription, error)
}

func validSubscription(sub webpush.Subscription) error {
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return ErrInvalidSubscription
	}
	return nil
}

const pushKeyPrefix = "buggy:push:%s"

type RedisSubscriptions struct {
	redis *redis.Client
}

func NewRedisSubscriptions(redis *redis.Client) *RedisSubscriptions {
	return &RedisSubscriptions{redis: redis}
}

func (s *RedisSubscriptions) Add(ctx context.Context, recipient string, sub webpush.Subscription) error {
	if err := validSubscription(sub); err != nil {
		return err
	}
	b, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return s.redis.HSet(ctx, pushKey(recipient), sub.Endpoint, b).Err()
}

func (s *RedisSubscriptions) Remove(ctx context.Context, recipient, endpoint string) error {
	return s.redis.HDel(ctx, pushKey(recipient), endpoint).Err()
}

func (s *RedisSubscriptions) List(ctx context.Context, recipient string) ([]webpush.Subscription, error) {
	vals, err := s.redis.HGetAll(ctx, pushKey(recipient)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]webpush.Subscription, 0, len(vals))
	for endpoint, raw := range vals {
		var sub webpush.Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			return nil, fmt.Errorf("decode subscription %s: %w", endpoint, err)
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

func pushKey(recipient string) string {
	return fmt.Sprintf(pushKeyPrefix, recipient)
}

type MemorySubscriptions struct {
	mu   sync.RWMutex
	subs map[string]map[string]webpush.Subscription
}

func NewMemorySubscriptions() *MemorySubscriptions {
	return &MemorySubscriptions{subs: make(map[string]map[string]webpush.Subscription)}
}

func (s *MemorySubscriptions) Add(_ context.Context, recipient string, sub webpush.Subscription) error {
	if err := validSubscription(sub); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[recipient] == nil {
		s.subs[recipient] = make(map[string]webpush.Subscription)
	}
	s.subs[recipient][sub.Endpoint] = sub
	return nil
}

func (s *MemorySubscriptions) Remove(_ context.Context, recipient, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[recipient], endpoint)
	return nil
}

func (s *MemorySubscriptions) List(_ context.Context, recipient string) ([]webpush.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]webpush.Subscription, 0, len(s.subs[recipient]))
	for _, sub := range s.subs[recipient] {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}
