// README: Ride aggregate, lifecycle statuses and the transition table.
package ride

import (
	"time"

	"buggy/internal/types"
)

type Status string

const (
	StatusNone      Status = "NONE"
	StatusSearching Status = "SEARCHING"
	StatusAssigned  Status = "ASSIGNED"
	StatusArriving  Status = "ARRIVING"
	StatusOnTrip    Status = "ON_TRIP"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// ActiveStatuses are the statuses that block a requester from opening another ride.
var ActiveStatuses = []Status{StatusSearching, StatusAssigned, StatusArriving, StatusOnTrip}

// CommittedStatuses are the statuses in which a driver is bound to the ride.
var CommittedStatuses = []Status{StatusAssigned, StatusArriving, StatusOnTrip}

func (s Status) Active() bool {
	switch s {
	case StatusSearching, StatusAssigned, StatusArriving, StatusOnTrip:
		return true
	}
	return false
}

func (s Status) Committed() bool {
	return s == StatusAssigned || s == StatusArriving || s == StatusOnTrip
}

const (
	MinGuests = 1
	MaxGuests = 7
)

// Segment is one leg of a merged trip.
type Segment struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Guests int    `json:"guests"`
}

type Ride struct {
	ID            types.ID
	RequesterName string
	// CreatedBy is the guest uid that booked the ride, nil for staff bookings.
	CreatedBy     *types.ID
	Room          string
	Pickup        string
	Destination   string
	Status        Status
	StatusVersion int
	DriverID      *types.ID
	ETAMinutes    *int
	GuestCount    int
	Notes         string
	Rating        *int
	Feedback      *string
	CreatedAt     time.Time
	AssignedAt    *time.Time
	PickedUpAt    *time.Time
	DroppedOffAt  *time.Time
	CancelledAt   *time.Time
	Segments      []Segment
	Progress      int
}

func (r *Ride) Merged() bool {
	return len(r.Segments) > 0
}

// FinalProgress is the progress value at which every leg has been dropped off.
func (r *Ride) FinalProgress() int {
	return 2 * len(r.Segments)
}

// FinishedAt is when the ride reached COMPLETED or CANCELLED, nil while it is
// still open.
func (r *Ride) FinishedAt() *time.Time {
	switch r.Status {
	case StatusCompleted:
		return r.DroppedOffAt
	case StatusCancelled:
		return r.CancelledAt
	}
	return nil
}

func (r *Ride) OwnedBy(uid types.ID) bool {
	return r.CreatedBy != nil && *r.CreatedBy == uid
}

func (r *Ride) AssignedTo(driverID types.ID) bool {
	return r.DriverID != nil && *r.DriverID == driverID
}

func (r *Ride) Clone() *Ride {
	if r == nil {
		return nil
	}
	c := *r
	if r.DriverID != nil {
		d := *r.DriverID
		c.DriverID = &d
	}
	if r.CreatedBy != nil {
		o := *r.CreatedBy
		c.CreatedBy = &o
	}
	c.ETAMinutes = cloneInt(r.ETAMinutes)
	c.Rating = cloneInt(r.Rating)
	if r.Feedback != nil {
		f := *r.Feedback
		c.Feedback = &f
	}
	c.AssignedAt = cloneTime(r.AssignedAt)
	c.PickedUpAt = cloneTime(r.PickedUpAt)
	c.DroppedOffAt = cloneTime(r.DroppedOffAt)
	c.CancelledAt = cloneTime(r.CancelledAt)
	if r.Segments != nil {
		c.Segments = append([]Segment(nil), r.Segments...)
	}
	return &c
}

type Event struct {
	ID         int64
	RideID     types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

const (
	ActorGuest  = "guest"
	ActorDriver = "driver"
	ActorStaff  = "staff"
	ActorSystem = "system"
)

type Actor struct {
	Type string
	ID   *types.ID
}

// AllowedTransitions represents the ride state flow as code. Self-loops carry
// field updates that keep the status (reassignment, ETA, segment progress).
var AllowedTransitions = map[Status][]Status{
	StatusSearching: {StatusAssigned, StatusArriving, StatusCancelled},
	StatusAssigned:  {StatusAssigned, StatusArriving, StatusOnTrip, StatusCancelled},
	StatusArriving:  {StatusArriving, StatusAssigned, StatusOnTrip, StatusCancelled},
	StatusOnTrip:    {StatusOnTrip, StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	t := *v
	return &t
}
