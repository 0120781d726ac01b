// README: Schedule collaborator answering whether a driver is on shift.
package shift

import (
	"context"
	"fmt"
	"time"

	"buggy/internal/types"
)

type Service struct {
	store Store
	loc   *time.Location
}

// NewService evaluates shift clock times in loc; nil means UTC.
func NewService(store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, loc: loc}
}

// LoadLocation resolves a timezone name, treating "" as Local.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("shift timezone %q: %w", name, err)
	}
	return loc, nil
}

func (s *Service) Add(ctx context.Context, sh Shift) (Shift, error) {
	if err := sh.validate(); err != nil {
		return Shift{}, err
	}
	return s.store.Add(ctx, sh)
}

func (s *Service) List(ctx context.Context, driverID types.ID, from, to time.Time) ([]Shift, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end before start", ErrBadRequest)
	}
	return s.store.ListByDriver(ctx, driverID, from, to)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

// IsOnShift reports whether driverID works at the given instant. Drivers
// without any recorded shift are treated as always on shift.
func (s *Service) IsOnShift(ctx context.Context, driverID types.ID, at time.Time) (bool, error) {
	has, err := s.store.HasShifts(ctx, driverID)
	if err != nil {
		return false, err
	}
	if !has {
		return true, nil
	}
	local := at.In(s.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	// yesterday's overnight shift may still be running
	shifts, err := s.store.ListByDriver(ctx, driverID, day.AddDate(0, 0, -1), day)
	if err != nil {
		return false, err
	}
	for _, sh := range shifts {
		if sh.Covers(at, s.loc) {
			return true, nil
		}
	}
	return false, nil
}
