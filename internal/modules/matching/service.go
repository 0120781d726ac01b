// README: Matching service runs the auto-assignment scheduler and manual assign-now passes.
package matching

import (
	"context"
	"errors"
	"time"

	"buggy/internal/config"
	"buggy/internal/logger"
	"buggy/internal/metrics"
	"buggy/internal/modules/driver"
	"buggy/internal/modules/ride"
	"buggy/internal/types"
)

type RideAssigner interface {
	ListByStatus(ctx context.Context, statuses ...ride.Status) ([]*ride.Ride, error)
	Assign(ctx context.Context, cmd ride.AssignCommand) (*ride.Ride, error)
}

type DriverSnapshotter interface {
	Snapshot(ctx context.Context) ([]driver.View, error)
}

type ShiftChecker interface {
	IsOnShift(ctx context.Context, driverID types.ID, at time.Time) (bool, error)
}

type Deps struct {
	Rides    RideAssigner
	Drivers  DriverSnapshotter
	Shifts   ShiftChecker
	Settings SettingsStore
	Cooldown CooldownStore
	ETA      ETAEstimator
	Distance Distancer
	Log      logger.ILogger
}

type Service struct {
	deps     Deps
	params   CostParams
	tick     time.Duration
	cooldown time.Duration
	seed     Settings
	now      func() time.Time
}

func NewService(deps Deps, cfg config.MatchingConfig) *Service {
	tick := time.Duration(cfg.TickSeconds) * time.Second
	if tick <= 0 {
		tick = 3 * time.Second
	}
	return &Service{
		deps:     deps,
		params:   CostParamsFromConfig(cfg),
		tick:     tick,
		cooldown: time.Duration(cfg.CooldownSeconds) * time.Second,
		seed:     Settings{AutoAssignEnabled: cfg.AutoAssignEnabled, MaxWaitSeconds: cfg.MaxWaitSeconds},
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Params() CostParams {
	return s.params
}

// RunScheduler ticks until ctx is cancelled. Tick errors are logged and the
// loop carries on.
func (s *Service) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.deps.Log.Info("auto-assign scheduler started", logger.Duration("tick", s.tick))
	for {
		select {
		case <-ctx.Done():
			s.deps.Log.Info("auto-assign scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.deps.Log.Error("auto-assign tick failed", logger.Error(err))
			}
		}
	}
}

// Tick reads the current settings and runs one scheduler pass with them.
func (s *Service) Tick(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() { metrics.SchedulerTickDuration.Observe(time.Since(start).Seconds()) }()

	settings, err := s.Settings(ctx)
	if err != nil {
		metrics.SchedulerTicks.WithLabelValues(string(OutcomeError)).Inc()
		return Report{Outcome: OutcomeError}, err
	}
	rep, err := s.runTick(ctx, settings, s.now())
	metrics.SchedulerTicks.WithLabelValues(string(rep.Outcome)).Inc()
	return rep, err
}

// runTick is one pass with explicit settings: only rides that waited at least
// MaxWait are planned, and a cooldown is taken before committing.
func (s *Service) runTick(ctx context.Context, settings Settings, now time.Time) (Report, error) {
	if !settings.AutoAssignEnabled {
		return Report{Outcome: OutcomeDisabled}, nil
	}
	searching, err := s.deps.Rides.ListByStatus(ctx, ride.StatusSearching)
	if err != nil {
		return Report{Outcome: OutcomeError}, err
	}
	var overdue []*ride.Ride
	for _, r := range searching {
		if ride.WaitingFor(r, now) >= settings.MaxWait() {
			overdue = append(overdue, r)
		}
	}
	rep := Report{Pending: len(overdue)}
	if len(overdue) == 0 {
		rep.Outcome = OutcomeIdle
		return rep, nil
	}

	plan, err := s.plan(ctx, overdue, now)
	if errors.Is(err, ErrNoAdmissibleDriver) {
		s.deps.Log.Info("no admissible driver for overdue rides", logger.Int("rides", len(overdue)))
		metrics.AssignmentFailures.WithLabelValues("no_admissible_driver").Inc()
		rep.Outcome = OutcomeNoDriver
		return rep, nil
	}
	if err != nil {
		rep.Outcome = OutcomeError
		return rep, err
	}
	rep.Planned = len(plan)

	if s.cooldown > 0 {
		ok, err := s.deps.Cooldown.Acquire(ctx, cooldownKey, s.cooldown)
		if err != nil {
			rep.Outcome = OutcomeError
			return rep, err
		}
		if !ok {
			rep.Outcome = OutcomeCooldown
			return rep, nil
		}
	}

	rep.Committed, rep.Failed = s.commit(ctx, plan, SourceAuto)
	rep.Outcome = OutcomeAssigned
	return rep, nil
}

// AssignNow plans every searching ride regardless of wait time or cooldown.
func (s *Service) AssignNow(ctx context.Context) (Report, error) {
	searching, err := s.deps.Rides.ListByStatus(ctx, ride.StatusSearching)
	if err != nil {
		return Report{Outcome: OutcomeError}, err
	}
	rep := Report{Pending: len(searching)}
	if len(searching) == 0 {
		rep.Outcome = OutcomeIdle
		return rep, nil
	}
	plan, err := s.plan(ctx, searching, s.now())
	if err != nil {
		if errors.Is(err, ErrNoAdmissibleDriver) {
			metrics.AssignmentFailures.WithLabelValues("no_admissible_driver").Inc()
			rep.Outcome = OutcomeNoDriver
		} else {
			rep.Outcome = OutcomeError
		}
		return rep, err
	}
	rep.Planned = len(plan)
	rep.Committed, rep.Failed = s.commit(ctx, plan, SourceManual)
	rep.Outcome = OutcomeAssigned
	return rep, nil
}

func (s *Service) plan(ctx context.Context, rides []*ride.Ride, now time.Time) ([]Assignment, error) {
	cands, err := s.candidates(ctx, now)
	if err != nil {
		return nil, err
	}
	return Plan(rides, cands, s.params, s.deps.Distance, now)
}

func (s *Service) candidates(ctx context.Context, now time.Time) ([]Candidate, error) {
	views, err := s.deps.Drivers.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	cands := make([]Candidate, 0, len(views))
	for _, v := range views {
		if v.Status == driver.StatusOffline {
			continue
		}
		onShift := true
		if s.deps.Shifts != nil {
			onShift, err = s.deps.Shifts.IsOnShift(ctx, v.Driver.ID, now)
			if err != nil {
				return nil, err
			}
		}
		cands = append(cands, Candidate{Driver: v, OnShift: onShift})
	}
	return cands, nil
}

// commit assigns each planned pair through the ride state machine. Lost
// races and rides that moved on are expected and only counted.
func (s *Service) commit(ctx context.Context, plan []Assignment, source string) ([]*ride.Ride, int) {
	var committed []*ride.Ride
	failed := 0
	for _, a := range plan {
		cmd := ride.AssignCommand{
			RideID:   a.Ride.ID,
			DriverID: a.Driver.Driver.ID,
			Actor:    ride.Actor{Type: ride.ActorSystem},
		}
		if s.deps.ETA != nil {
			if eta, ok := s.deps.ETA.EstimateMinutes(ctx, a.Driver, a.Ride.Pickup); ok {
				cmd.ETAMinutes = &eta
			}
		}
		if source == SourceManual {
			cmd.Actor = ride.Actor{Type: ride.ActorStaff}
		}

		r, err := s.deps.Rides.Assign(ctx, cmd)
		if err != nil {
			failed++
			fields := []logger.Field{
				logger.String("ride_id", string(a.Ride.ID)),
				logger.String("driver_id", string(a.Driver.Driver.ID)),
				logger.String("source", source),
				logger.Error(err),
			}
			if ride.IsConflict(err) {
				metrics.AssignmentFailures.WithLabelValues(failureReason(err)).Inc()
				s.deps.Log.Info("planned assignment skipped", fields...)
			} else {
				metrics.AssignmentFailures.WithLabelValues("error").Inc()
				s.deps.Log.Error("planned assignment failed", fields...)
			}
			continue
		}
		metrics.Assignments.WithLabelValues(source).Inc()
		s.deps.Log.Info("ride assigned",
			logger.String("ride_id", string(r.ID)),
			logger.String("driver_id", string(a.Driver.Driver.ID)),
			logger.Float64("cost", a.Cost),
			logger.String("source", source),
		)
		committed = append(committed, r)
	}
	return committed, failed
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ride.ErrStaleWrite):
		return "stale_write"
	case errors.Is(err, ride.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "conflict"
	}
}

// Settings returns the stored settings, or the configured seed when staff
// never saved any.
func (s *Service) Settings(ctx context.Context) (Settings, error) {
	st, ok, err := s.deps.Settings.Load(ctx)
	if err != nil {
		return Settings{}, err
	}
	if !ok {
		return s.seed, nil
	}
	return st, nil
}

// UpdateSettings is the only writer of dispatch settings. The next tick
// picks the new value up.
func (s *Service) UpdateSettings(ctx context.Context, st Settings) (Settings, error) {
	if err := st.Validate(); err != nil {
		return Settings{}, err
	}
	if err := s.deps.Settings.Save(ctx, st); err != nil {
		return Settings{}, err
	}
	s.deps.Log.Info("dispatch settings updated",
		logger.Bool("auto_assign", st.AutoAssignEnabled),
		logger.Int("max_wait_seconds", st.MaxWaitSeconds),
	)
	return st, nil
}
