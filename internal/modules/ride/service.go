// README: Ride service implements the lifecycle state machine on top of compare-and-set writes.
package ride

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"buggy/internal/config"
	"buggy/internal/logger"
	"buggy/internal/metrics"
	"buggy/internal/modules/notify"
	"buggy/internal/types"
)

// Notifier accepts fire-and-forget messages; delivery failures never reach the caller.
type Notifier interface {
	Dispatch(msg notify.Message)
}

type Service struct {
	store      Store
	notifier   Notifier
	log        logger.ILogger
	cancelLock time.Duration
	now        func() time.Time
}

func NewService(store Store, notifier Notifier, log logger.ILogger, cfg config.RideConfig) *Service {
	lock := cfg.CancelLock
	if lock <= 0 {
		lock = 15 * time.Minute
	}
	return &Service{store: store, notifier: notifier, log: log, cancelLock: lock, now: time.Now}
}

// WithClock replaces the wall clock, for tests and replay tooling.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateCommand struct {
	RequesterName string
	Room          string
	Pickup        string
	Destination   string
	GuestCount    int
	Notes         string
	Segments      []Segment
	Actor         Actor
}

type AssignCommand struct {
	RideID     types.ID
	DriverID   types.ID
	ETAMinutes *int
	// Arriving commits straight to ARRIVING for a driver already on the way.
	Arriving   bool
	// Force lets staff move a committed ride to another driver.
	Force      bool
	Actor      Actor
}

type StepCommand struct {
	RideID types.ID
	Actor  Actor
}

type RateCommand struct {
	RideID   types.ID
	Rating   int
	Feedback string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	r, err := newRide(cmd)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.ActiveByRequester(ctx, r.RequesterName)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &DuplicateActiveRideError{Existing: existing}
	}

	r.ID = newID()
	r.Status = StatusSearching
	r.CreatedAt = s.now()
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	metrics.RidesCreated.Inc()
	s.appendEvent(ctx, r.ID, StatusNone, StatusSearching, cmd.Actor, r.CreatedAt)

	s.notify(notify.Message{
		Recipient: notify.StaffRecipient,
		Title:     "New ride request",
		Body:      fmt.Sprintf("%s: %s to %s (%d guests)", r.RequesterName, r.Pickup, r.Destination, r.GuestCount),
		Data:      map[string]string{"type": "ride_created", "ride_id": string(r.ID)},
	})
	return r, nil
}

func newRide(cmd CreateCommand) (*Ride, error) {
	r := &Ride{
		RequesterName: strings.TrimSpace(cmd.RequesterName),
		Room:          strings.TrimSpace(cmd.Room),
		Pickup:        strings.TrimSpace(cmd.Pickup),
		Destination:   strings.TrimSpace(cmd.Destination),
		GuestCount:    cmd.GuestCount,
		Notes:         strings.TrimSpace(cmd.Notes),
	}
	if r.RequesterName == "" {
		return nil, fmt.Errorf("%w: requester name is required", ErrBadRequest)
	}
	if guestID(cmd.Actor) != nil {
		owner := *cmd.Actor.ID
		r.CreatedBy = &owner
	}
	if len(cmd.Segments) > 0 {
		segs, guests, err := normalizeSegments(cmd.Segments)
		if err != nil {
			return nil, err
		}
		r.Segments = segs
		r.Pickup = segs[0].From
		r.Destination = segs[len(segs)-1].To
		if r.GuestCount == 0 {
			r.GuestCount = min(guests, MaxGuests)
		}
	}
	if r.GuestCount == 0 {
		r.GuestCount = MinGuests
	}
	if r.GuestCount < MinGuests || r.GuestCount > MaxGuests {
		return nil, fmt.Errorf("%w: guest count must be between %d and %d", ErrBadRequest, MinGuests, MaxGuests)
	}
	if r.Pickup == "" || r.Destination == "" {
		return nil, fmt.Errorf("%w: pickup and destination are required", ErrBadRequest)
	}
	if strings.EqualFold(r.Pickup, r.Destination) && !r.Merged() {
		return nil, ErrInvalidRoute
	}
	return r, nil
}

// Assign commits a driver to a searching ride. Re-assigning the same driver
// is idempotent and keeps the original assigned_at.
func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (*Ride, error) {
	if cmd.DriverID == "" {
		return nil, fmt.Errorf("%w: driver id is required", ErrBadRequest)
	}
	if cmd.ETAMinutes != nil && *cmd.ETAMinutes < 0 {
		return nil, fmt.Errorf("%w: eta must not be negative", ErrBadRequest)
	}
	r, changed, err := s.mutate(ctx, cmd.RideID, cmd.Actor, func(r *Ride, now time.Time) (*Transition, error) {
		to := StatusAssigned
		if cmd.Arriving {
			to = StatusArriving
		}
		switch r.Status {
		case StatusSearching:
			return &Transition{To: to, DriverID: &cmd.DriverID, ETAMinutes: cmd.ETAMinutes, AssignedAt: &now}, nil
		case StatusAssigned, StatusArriving:
			if r.AssignedTo(cmd.DriverID) {
				if cmd.ETAMinutes == nil || sameInt(r.ETAMinutes, cmd.ETAMinutes) {
					return nil, nil
				}
				return &Transition{To: r.Status, ETAMinutes: cmd.ETAMinutes}, nil
			}
			if !cmd.Force {
				return nil, ErrInvalidTransition
			}
			return &Transition{To: r.Status, DriverID: &cmd.DriverID, ETAMinutes: cmd.ETAMinutes}, nil
		default:
			return nil, ErrInvalidTransition
		}
	})
	if err != nil || !changed {
		return r, err
	}
	eta := "soon"
	if r.ETAMinutes != nil {
		eta = fmt.Sprintf("in about %d min", *r.ETAMinutes)
	}
	s.notify(notify.Message{
		Recipient: notify.DriverRecipient(cmd.DriverID),
		Title:     "Ride assigned",
		Body:      fmt.Sprintf("Pick up %s at %s, drop at %s", r.RequesterName, r.Pickup, r.Destination),
		Data:      map[string]string{"type": "ride_assigned", "ride_id": string(r.ID)},
	})
	s.notify(notify.Message{
		Recipient: notify.GuestRecipient(r.RequesterName),
		Title:     "Your buggy is on the way",
		Body:      fmt.Sprintf("A driver will reach %s %s", r.Pickup, eta),
		Data:      map[string]string{"type": "ride_assigned", "ride_id": string(r.ID)},
	})
	return r, nil
}

func (s *Service) MarkArriving(ctx context.Context, cmd StepCommand) (*Ride, error) {
	return s.step(ctx, cmd.RideID, cmd.Actor, func(r *Ride, _ time.Time) (*Transition, error) {
		if err := checkDriver(r, cmd.Actor); err != nil {
			return nil, err
		}
		if r.Status == StatusArriving {
			return nil, nil
		}
		if r.Status != StatusAssigned {
			return nil, ErrInvalidTransition
		}
		return &Transition{To: StatusArriving}, nil
	})
}

// MarkAssigned reverts ARRIVING to ASSIGNED, e.g. when the driver is held up.
func (s *Service) MarkAssigned(ctx context.Context, cmd StepCommand) (*Ride, error) {
	return s.step(ctx, cmd.RideID, cmd.Actor, func(r *Ride, _ time.Time) (*Transition, error) {
		if err := checkDriver(r, cmd.Actor); err != nil {
			return nil, err
		}
		if r.Status == StatusAssigned {
			return nil, nil
		}
		if r.Status != StatusArriving {
			return nil, ErrInvalidTransition
		}
		return &Transition{To: StatusAssigned}, nil
	})
}

func (s *Service) PickUp(ctx context.Context, cmd StepCommand) (*Ride, error) {
	return s.step(ctx, cmd.RideID, cmd.Actor, func(r *Ride, now time.Time) (*Transition, error) {
		if err := checkDriver(r, cmd.Actor); err != nil {
			return nil, err
		}
		if r.Status != StatusAssigned && r.Status != StatusArriving {
			return nil, ErrInvalidTransition
		}
		t := &Transition{To: StatusOnTrip, PickedUpAt: &now}
		if r.Merged() {
			p := 1
			t.Progress = &p
		}
		return t, nil
	})
}

// Advance moves a merged ride to its next pickup or drop-off. The first
// advance starts the trip.
func (s *Service) Advance(ctx context.Context, cmd StepCommand) (*Ride, error) {
	return s.step(ctx, cmd.RideID, cmd.Actor, func(r *Ride, now time.Time) (*Transition, error) {
		if err := checkDriver(r, cmd.Actor); err != nil {
			return nil, err
		}
		if !r.Merged() {
			return nil, fmt.Errorf("%w: ride has no segments", ErrInvalidTransition)
		}
		p := r.Progress + 1
		switch {
		case r.Progress >= r.FinalProgress():
			return nil, fmt.Errorf("%w: all legs dropped, complete the ride", ErrInvalidTransition)
		case r.Status == StatusAssigned || r.Status == StatusArriving:
			if r.Progress != 0 {
				return nil, ErrInvalidTransition
			}
			return &Transition{To: StatusOnTrip, Progress: &p, PickedUpAt: &now}, nil
		case r.Status == StatusOnTrip:
			return &Transition{To: StatusOnTrip, Progress: &p}, nil
		default:
			return nil, ErrInvalidTransition
		}
	})
}

func (s *Service) Complete(ctx context.Context, cmd StepCommand) (*Ride, error) {
	return s.step(ctx, cmd.RideID, cmd.Actor, func(r *Ride, now time.Time) (*Transition, error) {
		if err := checkDriver(r, cmd.Actor); err != nil {
			return nil, err
		}
		if r.Status != StatusOnTrip {
			return nil, ErrInvalidTransition
		}
		if r.Merged() && r.Progress != r.FinalProgress() {
			return nil, fmt.Errorf("%w: %d of %d stops remaining", ErrInvalidTransition, r.FinalProgress()-r.Progress, r.FinalProgress())
		}
		return &Transition{To: StatusCompleted, DroppedOffAt: &now}, nil
	})
}

// Cancel is always allowed while searching. A committed ride unlocks only
// after the driver has had cancelLock to arrive.
func (s *Service) Cancel(ctx context.Context, cmd StepCommand) (*Ride, error) {
	return s.step(ctx, cmd.RideID, cmd.Actor, func(r *Ride, now time.Time) (*Transition, error) {
		if err := checkOwner(r, cmd.Actor); err != nil {
			return nil, err
		}
		switch r.Status {
		case StatusSearching:
		case StatusAssigned, StatusArriving:
			if r.AssignedAt != nil && now.Sub(*r.AssignedAt) < s.cancelLock {
				return nil, ErrRideLocked
			}
		case StatusOnTrip, StatusCompleted:
			return nil, ErrRideLocked
		default:
			return nil, ErrInvalidTransition
		}
		return &Transition{To: StatusCancelled, CancelledAt: &now}, nil
	})
}

func (s *Service) Rate(ctx context.Context, cmd RateCommand) (*Ride, error) {
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrBadRequest)
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusCompleted {
		return nil, ErrInvalidTransition
	}
	if r.Rating != nil {
		return nil, ErrAlreadyRated
	}
	ok, err := s.store.SetFeedback(ctx, r.ID, cmd.Rating, strings.TrimSpace(cmd.Feedback))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyRated
	}
	return s.store.Get(ctx, r.ID)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListByStatus(ctx context.Context, statuses ...Status) ([]*Ride, error) {
	return s.store.ListByStatus(ctx, statuses...)
}

func (s *Service) ListActive(ctx context.Context) ([]*Ride, error) {
	return s.store.ListByStatus(ctx, ActiveStatuses...)
}

func (s *Service) ListByRequester(ctx context.Context, name string) ([]*Ride, error) {
	return s.store.ListByRequester(ctx, name)
}

// ListFinishedSince returns rides that completed or were cancelled at or after since.
func (s *Service) ListFinishedSince(ctx context.Context, since time.Time) ([]*Ride, error) {
	return s.store.ListFinishedSince(ctx, since)
}

func (s *Service) ListByDriver(ctx context.Context, driverID types.ID, statuses ...Status) ([]*Ride, error) {
	return s.store.ListByDriver(ctx, driverID, statuses...)
}

func (s *Service) Events(ctx context.Context, id types.ID) ([]Event, error) {
	return s.store.Events(ctx, id)
}

// planFunc inspects the current ride and returns the write to attempt, nil for
// an idempotent no-op, or an error to reject the command.
type planFunc func(r *Ride, now time.Time) (*Transition, error)

// mutate runs plan against a fresh read and commits it with compare-and-set.
// A lost race is retried once against a refetched ride before StaleWrite is
// surfaced.
func (s *Service) mutate(ctx context.Context, id types.ID, actor Actor, plan planFunc) (*Ride, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		r, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, false, err
		}
		now := s.now()
		t, err := plan(r, now)
		if err != nil {
			return nil, false, err
		}
		if t == nil {
			return r, false, nil
		}
		if !CanTransition(r.Status, t.To) {
			return nil, false, ErrInvalidTransition
		}
		t.RideID, t.From, t.Version = r.ID, r.Status, r.StatusVersion

		ok, err := s.store.CompareAndSet(ctx, *t)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			metrics.StaleWrites.Inc()
			s.log.Debug("ride write lost race", logger.String("ride_id", string(id)), logger.Int("attempt", attempt))
			continue
		}
		metrics.RideTransitions.WithLabelValues(string(t.From), string(t.To)).Inc()
		s.appendEvent(ctx, r.ID, t.From, t.To, actor, now)
		updated, err := s.store.Get(ctx, id)
		return updated, true, err
	}
	return nil, false, ErrStaleWrite
}

func (s *Service) step(ctx context.Context, id types.ID, actor Actor, plan planFunc) (*Ride, error) {
	r, _, err := s.mutate(ctx, id, actor, plan)
	return r, err
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, from, to Status, actor Actor, at time.Time) {
	actorType := actor.Type
	if actorType == "" {
		actorType = ActorSystem
	}
	err := s.store.AppendEvent(ctx, &Event{
		RideID:     id,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actor.ID,
		CreatedAt:  at,
	})
	if err != nil {
		s.log.Warning("append ride event", logger.String("ride_id", string(id)), logger.Error(err))
	}
}

func (s *Service) notify(msg notify.Message) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(msg)
}

// checkDriver rejects driver actions on rides assigned to someone else. Staff
// and system actors may act on any ride.
func checkDriver(r *Ride, actor Actor) error {
	if actor.Type != ActorDriver || actor.ID == nil {
		return nil
	}
	if !r.AssignedTo(*actor.ID) {
		return ErrNotAssignedDriver
	}
	return nil
}

// checkOwner keeps guests to their own bookings. An anonymous guest carries no
// uid and is not checked.
func checkOwner(r *Ride, actor Actor) error {
	uid := guestID(actor)
	if uid == nil {
		return nil
	}
	if !r.OwnedBy(*uid) {
		return ErrNotRideOwner
	}
	return nil
}

func guestID(actor Actor) *types.ID {
	if actor.Type != ActorGuest || actor.ID == nil || *actor.ID == "" {
		return nil
	}
	return actor.ID
}

func normalizeSegments(in []Segment) ([]Segment, int, error) {
	out := make([]Segment, len(in))
	total := 0
	for i, seg := range in {
		seg.From = strings.TrimSpace(seg.From)
		seg.To = strings.TrimSpace(seg.To)
		if seg.Guests == 0 {
			seg.Guests = MinGuests
		}
		if seg.From == "" || seg.To == "" {
			return nil, 0, fmt.Errorf("%w: segment %d needs from and to", ErrBadRequest, i)
		}
		if strings.EqualFold(seg.From, seg.To) {
			return nil, 0, fmt.Errorf("%w: segment %d", ErrInvalidRoute, i)
		}
		if seg.Guests < MinGuests || seg.Guests > MaxGuests {
			return nil, 0, fmt.Errorf("%w: segment %d guest count must be between %d and %d", ErrBadRequest, i, MinGuests, MaxGuests)
		}
		total += seg.Guests
		out[i] = seg
	}
	return out, total, nil
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}

// IsConflict reports whether err is one of the lifecycle conflicts callers
// usually log and move past.
func IsConflict(err error) bool {
	return errors.Is(err, ErrStaleWrite) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateActiveRide) ||
		errors.Is(err, ErrRideLocked)
}
