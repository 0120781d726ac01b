// README: In-memory roster and liveness for tests and single-process deployments.
package driver

import (
	"context"
	"sort"
	"sync"
	"time"

	"buggy/internal/types"
)

type MemoryStore struct {
	mu       sync.RWMutex
	drivers  map[types.ID]Driver
	presence map[types.ID]Presence
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drivers:  make(map[types.ID]Driver),
		presence: make(map[types.ID]Presence),
	}
}

func (s *MemoryStore) List(_ context.Context) ([]Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		if d.Active {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Driver, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (s *MemoryStore) Upsert(_ context.Context, id types.ID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drivers[id] = Driver{ID: id, Name: name, Active: true}
	return nil
}

func (s *MemoryStore) Deactivate(_ context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return ErrNotFound
	}
	d.Active = false
	s.drivers[id] = d
	return nil
}

func (s *MemoryStore) Load(_ context.Context, ids []types.ID) (map[types.ID]Presence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.ID]Presence, len(ids))
	for _, id := range ids {
		if p, ok := s.presence[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *MemoryStore) Heartbeat(_ context.Context, id types.ID, at time.Time) error {
	s.update(id, func(p *Presence) { p.LastHeartbeat = &at })
	return nil
}

func (s *MemoryStore) SetFix(_ context.Context, id types.ID, fix Fix) error {
	s.update(id, func(p *Presence) { p.Fix = &fix })
	return nil
}

func (s *MemoryStore) SetLoginGrace(_ context.Context, id types.ID, until time.Time) error {
	s.update(id, func(p *Presence) { p.LoginGraceUntil = &until })
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.presence, id)
	return nil
}

// update replaces the stored presence so values handed out by Load stay unchanged.
func (s *MemoryStore) update(id types.ID, fn func(p *Presence)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.presence[id]
	fn(&p)
	s.presence[id] = p
}
