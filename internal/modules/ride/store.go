// README: Ride persistence contract shared by the Postgres and in-memory stores.
package ride

import (
	"context"
	"time"

	"buggy/internal/types"
)

// Transition is a compare-and-set write: it applies only while the stored ride
// still has status From at version Version. Timestamp fields are written only
// when the stored value is still empty.
type Transition struct {
	RideID       types.ID
	From         Status
	To           Status
	Version      int
	DriverID     *types.ID
	ETAMinutes   *int
	Progress     *int
	AssignedAt   *time.Time
	PickedUpAt   *time.Time
	DroppedOffAt *time.Time
	CancelledAt  *time.Time
}

type Store interface {
	// Create fails with a *DuplicateActiveRideError when the requester already has an active ride.
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	ActiveByRequester(ctx context.Context, name string) (*Ride, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Ride, error)
	ListByRequester(ctx context.Context, name string) ([]*Ride, error)
	ListByDriver(ctx context.Context, driverID types.ID, statuses ...Status) ([]*Ride, error)
	// ListFinishedSince returns rides completed or cancelled at or after since.
	ListFinishedSince(ctx context.Context, since time.Time) ([]*Ride, error)
	// CompareAndSet reports false when the expected status/version no longer match.
	CompareAndSet(ctx context.Context, t Transition) (bool, error)
	// SetFeedback reports false unless the ride is completed and not yet rated.
	SetFeedback(ctx context.Context, id types.ID, rating int, feedback string) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	Events(ctx context.Context, id types.ID) ([]Event, error)
}
