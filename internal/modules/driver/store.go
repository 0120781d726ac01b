// README: Driver storage contracts: a durable roster and volatile presence.
package driver

import (
	"context"
	"time"

	"buggy/internal/types"
)

// Roster is the durable list of drivers.
type Roster interface {
	List(ctx context.Context) ([]Driver, error)
	Get(ctx context.Context, id types.ID) (*Driver, error)
	Upsert(ctx context.Context, id types.ID, name string) error
	Deactivate(ctx context.Context, id types.ID) error
}

// Liveness keeps heartbeats, login grace and GPS fixes. Entries are expected
// to be short-lived and may be lost without harm.
type Liveness interface {
	Load(ctx context.Context, ids []types.ID) (map[types.ID]Presence, error)
	Heartbeat(ctx context.Context, id types.ID, at time.Time) error
	SetFix(ctx context.Context, id types.ID, fix Fix) error
	SetLoginGrace(ctx context.Context, id types.ID, until time.Time) error
	Clear(ctx context.Context, id types.ID) error
}
