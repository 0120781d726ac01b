// README: In-memory ride store for tests and single-process deployments.
package ride

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"buggy/internal/types"
)

type MemoryStore struct {
	mu     sync.RWMutex
	rides  map[types.ID]*Ride
	events []Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[types.ID]*Ride)}
}

func (s *MemoryStore) Create(_ context.Context, r *Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.activeByRequesterLocked(r.RequesterName); existing != nil {
		return &DuplicateActiveRideError{Existing: existing.Clone()}
	}
	s.rides[r.ID] = r.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) ActiveByRequester(_ context.Context, name string) (*Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeByRequesterLocked(name).Clone(), nil
}

func (s *MemoryStore) activeByRequesterLocked(name string) *Ride {
	name = strings.TrimSpace(name)
	for _, r := range s.rides {
		if r.Status.Active() && strings.EqualFold(r.RequesterName, name) {
			return r
		}
	}
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, statuses ...Status) ([]*Ride, error) {
	return s.filter(func(r *Ride) bool { return hasStatus(r.Status, statuses) }), nil
}

func (s *MemoryStore) ListByRequester(_ context.Context, name string) ([]*Ride, error) {
	name = strings.TrimSpace(name)
	return s.filter(func(r *Ride) bool { return strings.EqualFold(r.RequesterName, name) }), nil
}

func (s *MemoryStore) ListByDriver(_ context.Context, driverID types.ID, statuses ...Status) ([]*Ride, error) {
	return s.filter(func(r *Ride) bool {
		return r.AssignedTo(driverID) && (len(statuses) == 0 || hasStatus(r.Status, statuses))
	}), nil
}

func (s *MemoryStore) ListFinishedSince(_ context.Context, since time.Time) ([]*Ride, error) {
	return s.filter(func(r *Ride) bool {
		at := r.FinishedAt()
		return at != nil && !at.Before(since)
	}), nil
}

func (s *MemoryStore) filter(keep func(*Ride) bool) []*Ride {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Ride
	for _, r := range s.rides {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryStore) CompareAndSet(_ context.Context, t Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[t.RideID]
	if !ok || r.Status != t.From || r.StatusVersion != t.Version {
		return false, nil
	}
	r.Status = t.To
	r.StatusVersion++
	if t.DriverID != nil {
		d := *t.DriverID
		r.DriverID = &d
	}
	if t.ETAMinutes != nil {
		r.ETAMinutes = cloneInt(t.ETAMinutes)
	}
	if t.Progress != nil {
		r.Progress = *t.Progress
	}
	setOnce(&r.AssignedAt, t.AssignedAt)
	setOnce(&r.PickedUpAt, t.PickedUpAt)
	setOnce(&r.DroppedOffAt, t.DroppedOffAt)
	setOnce(&r.CancelledAt, t.CancelledAt)
	return true, nil
}

func (s *MemoryStore) SetFeedback(_ context.Context, id types.ID, rating int, feedback string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok || r.Status != StatusCompleted || r.Rating != nil {
		return false, nil
	}
	r.Rating = &rating
	r.Feedback = &feedback
	return true, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := *e
	ev.ID = int64(len(s.events) + 1)
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryStore) Events(_ context.Context, id types.ID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.RideID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func setOnce(dst **time.Time, v *time.Time) {
	if *dst == nil && v != nil {
		*dst = cloneTime(v)
	}
}

func hasStatus(s Status, set []Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
