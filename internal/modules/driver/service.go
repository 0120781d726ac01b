// README: Driver service: login, heartbeat, GPS updates and status snapshots.
package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"buggy/internal/config"
	"buggy/internal/logger"
	"buggy/internal/metrics"
	"buggy/internal/modules/ride"
	"buggy/internal/types"
)

// RideReader is the slice of the ride service the resolver needs.
type RideReader interface {
	ListByStatus(ctx context.Context, statuses ...ride.Status) ([]*ride.Ride, error)
	ListByDriver(ctx context.Context, driverID types.ID, statuses ...ride.Status) ([]*ride.Ride, error)
}

type Service struct {
	roster     Roster
	live       Liveness
	rides      RideReader
	resolver   *Resolver
	loginGrace time.Duration
	log        logger.ILogger
	now        func() time.Time
}

func NewService(roster Roster, live Liveness, rides RideReader, resolver *Resolver, cfg config.DriverConfig, log logger.ILogger) *Service {
	grace := cfg.LoginGrace
	if grace <= 0 {
		grace = 10 * time.Hour
	}
	return &Service{
		roster:     roster,
		live:       live,
		rides:      rides,
		resolver:   resolver,
		loginGrace: grace,
		log:        log,
		now:        time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Login registers the driver and grants the login grace window so the driver
// is dispatchable before the first heartbeat arrives.
func (s *Service) Login(ctx context.Context, id types.ID, name string) (View, error) {
	if id == "" {
		return View{}, fmt.Errorf("%w: driver id is required", ErrBadRequest)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = string(id)
	}
	if err := s.roster.Upsert(ctx, id, name); err != nil {
		return View{}, err
	}
	now := s.now()
	if err := s.live.SetLoginGrace(ctx, id, now.Add(s.loginGrace)); err != nil {
		return View{}, err
	}
	if err := s.live.Heartbeat(ctx, id, now); err != nil {
		return View{}, err
	}
	s.log.Info("driver logged in", logger.String("driver_id", string(id)))
	return s.View(ctx, id)
}

// Logout drops heartbeat, grace and GPS; the driver resolves OFFLINE unless
// still bound to a ride.
func (s *Service) Logout(ctx context.Context, id types.ID) error {
	if _, err := s.roster.Get(ctx, id); err != nil {
		return err
	}
	if err := s.live.Clear(ctx, id); err != nil {
		return err
	}
	s.log.Info("driver logged out", logger.String("driver_id", string(id)))
	return nil
}

func (s *Service) Heartbeat(ctx context.Context, id types.ID) error {
	if _, err := s.roster.Get(ctx, id); err != nil {
		return err
	}
	return s.live.Heartbeat(ctx, id, s.now())
}

// UpdateLocation records a GPS fix. A fix also counts as a heartbeat.
func (s *Service) UpdateLocation(ctx context.Context, id types.ID, p types.Point) error {
	if !p.Valid() {
		return fmt.Errorf("%w: invalid coordinates", ErrBadRequest)
	}
	if _, err := s.roster.Get(ctx, id); err != nil {
		return err
	}
	now := s.now()
	if err := s.live.SetFix(ctx, id, Fix{Point: p, At: now}); err != nil {
		return err
	}
	return s.live.Heartbeat(ctx, id, now)
}

// Deactivate removes a driver from the roster and clears presence.
func (s *Service) Deactivate(ctx context.Context, id types.ID) error {
	if err := s.roster.Deactivate(ctx, id); err != nil {
		return err
	}
	return s.live.Clear(ctx, id)
}

// Drivers lists roster entries merged with their current presence.
func (s *Service) Drivers(ctx context.Context) ([]Driver, error) {
	drivers, err := s.roster.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(drivers))
	for i, d := range drivers {
		ids[i] = d.ID
	}
	presence, err := s.live.Load(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range drivers {
		drivers[i].Presence = presence[drivers[i].ID]
	}
	return drivers, nil
}

// Snapshot resolves every active driver against a single read of committed
// rides. The snapshot is a value; callers may keep it across goroutines.
func (s *Service) Snapshot(ctx context.Context) ([]View, error) {
	drivers, err := s.Drivers(ctx)
	if err != nil {
		return nil, err
	}
	rides, err := s.rides.ListByStatus(ctx, ride.CommittedStatuses...)
	if err != nil {
		return nil, err
	}
	views := s.resolver.ResolveAll(drivers, s.now(), rides)

	counts := make(map[Status]int, len(AllStatuses))
	for _, v := range views {
		counts[v.Status]++
	}
	for _, st := range AllStatuses {
		metrics.DriversByStatus.WithLabelValues(string(st)).Set(float64(counts[st]))
	}
	return views, nil
}

// Active returns the roster entry for id. Unknown and deactivated drivers
// both report ErrNotFound.
func (s *Service) Active(ctx context.Context, id types.ID) (*Driver, error) {
	d, err := s.roster.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Active {
		return nil, ErrNotFound
	}
	return d, nil
}

func (s *Service) View(ctx context.Context, id types.ID) (View, error) {
	d, err := s.roster.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	presence, err := s.live.Load(ctx, []types.ID{id})
	if err != nil {
		return View{}, err
	}
	d.Presence = presence[id]
	rides, err := s.rides.ListByDriver(ctx, id, ride.CommittedStatuses...)
	if err != nil {
		return View{}, err
	}
	return s.resolver.Resolve(*d, s.now(), rides), nil
}
