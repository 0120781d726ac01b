// README: Matching unit tests covering the cost function, batch planning and the scheduler.
package matching

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buggy/internal/config"
	"buggy/internal/logger"
	"buggy/internal/modules/driver"
	"buggy/internal/modules/location"
	"buggy/internal/modules/ride"
	"buggy/internal/testutil"
	"buggy/internal/types"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func testCatalog(t *testing.T) *location.Catalog {
	t.Helper()
	c, err := location.NewCatalog([]location.Location{
		{Name: "Main Lobby", Lat: 20.63412, Lng: -87.06871},
		{Name: "Lobby Annex", Lat: 20.63450, Lng: -87.06900},
		{Name: "Beach Club", Lat: 20.63188, Lng: -87.06652},
		{Name: "Marina", Lat: 20.62500, Lng: -87.07500},
	})
	require.NoError(t, err)
	return c
}

func searching(id types.ID, pickup string, created time.Time) *ride.Ride {
	return &ride.Ride{ID: id, RequesterName: string(id), Pickup: pickup, Destination: "Marina", Status: ride.StatusSearching, CreatedAt: created}
}

func available(id types.ID) Candidate {
	return Candidate{Driver: driver.View{Driver: driver.Driver{ID: id}, Status: driver.StatusAvailable}, OnShift: true}
}

func busy(id types.ID, cur *ride.Ride) Candidate {
	return Candidate{Driver: driver.View{Driver: driver.Driver{ID: id}, Status: driver.StatusBusy, Current: cur}, OnShift: true}
}

func onTrip(dest string, pickedUp time.Time) *ride.Ride {
	return &ride.Ride{ID: "cur", Status: ride.StatusOnTrip, Pickup: "Marina", Destination: dest, PickedUpAt: &pickedUp}
}

// ---------------------------------------------------------------------------
// Cost
// ---------------------------------------------------------------------------

func TestCost_Admissibility(t *testing.T) {
	p := DefaultCostParams()
	r := searching("r1", "Beach Club", t0)

	assert.Equal(t, 10.0, Cost(r, available("d1"), p, nil, t0))

	offShift := available("d1")
	offShift.OnShift = false
	assert.True(t, math.IsInf(Cost(r, offShift, p, nil, t0), 1))

	offline := available("d1")
	offline.Driver.Status = driver.StatusOffline
	assert.True(t, math.IsInf(Cost(r, offline, p, nil, t0), 1))
}

func TestCost_BusyStages(t *testing.T) {
	p := DefaultCostParams()
	r := searching("r1", "Beach Club", t0)

	committed := &ride.Ride{ID: "cur", Status: ride.StatusAssigned, Destination: "Marina"}
	assert.Equal(t, 100.0, Cost(r, busy("d1", committed), p, nil, t0), "not picked up yet")

	cases := []struct {
		elapsed time.Duration
		want    float64
	}{
		{0, 100},
		{3*time.Minute + 59*time.Second, 100},
		{4 * time.Minute, 60},
		{6*time.Minute + 47*time.Second, 60},
		{6*time.Minute + 48*time.Second, 30},
		{20 * time.Minute, 30},
	}
	prev := math.Inf(1)
	for _, tc := range cases {
		got := Cost(r, busy("d1", onTrip("Marina", t0.Add(-tc.elapsed))), p, nil, t0)
		assert.Equal(t, tc.want, got, "elapsed %s", tc.elapsed)
		assert.LessOrEqual(t, got, prev, "cost must not increase as the trip progresses")
		prev = got
	}
}

func TestCost_WaitBonus(t *testing.T) {
	p := DefaultCostParams()
	c := available("d1")

	fresh := Cost(searching("r1", "Beach Club", t0), c, p, nil, t0)
	waited := Cost(searching("r2", "Beach Club", t0.Add(-100*time.Second)), c, p, nil, t0)
	assert.InDelta(t, fresh-5, waited, 1e-9, "100s at 0.05/s")

	// the same ride evaluated later never costs more
	r := searching("r3", "Beach Club", t0)
	assert.LessOrEqual(t, Cost(r, c, p, nil, t0.Add(time.Minute)), Cost(r, c, p, nil, t0))
}

func TestCost_ChainBonus(t *testing.T) {
	p := DefaultCostParams()
	cat := testCatalog(t)
	pickedUp := t0.Add(-time.Minute)

	near := Cost(searching("r1", "Main Lobby", t0), busy("d1", onTrip("Lobby Annex", pickedUp)), p, cat, t0)
	same := Cost(searching("r1", "Main Lobby", t0), busy("d1", onTrip("main lobby", pickedUp)), p, cat, t0)
	far := Cost(searching("r1", "Main Lobby", t0), busy("d1", onTrip("Marina", pickedUp)), p, cat, t0)

	assert.Equal(t, 75.0, near)
	assert.Equal(t, 75.0, same)
	assert.Equal(t, 100.0, far)
}

func TestCostParamsFromConfig(t *testing.T) {
	cfg := config.Defaults().Matching
	cfg.ChainBonus = 40
	cfg.TypicalTripMinutes = 12
	cfg.WaitBonusRate = 0

	p := CostParamsFromConfig(cfg)
	assert.Equal(t, 40.0, p.ChainBonus)
	assert.Equal(t, 12*time.Minute, p.TypicalTrip)
	assert.Equal(t, 0.05, p.WaitBonusRate, "zero keeps the default")
}

// ---------------------------------------------------------------------------
// Plan
// ---------------------------------------------------------------------------

func TestPlan_NoDoubleBooking(t *testing.T) {
	rides := []*ride.Ride{
		searching("r1", "Beach Club", t0.Add(-3*time.Minute)),
		searching("r2", "Beach Club", t0.Add(-2*time.Minute)),
		searching("r3", "Beach Club", t0.Add(-1*time.Minute)),
		searching("r4", "Beach Club", t0),
	}
	cands := []Candidate{available("d1"), available("d2")}

	plan, err := Plan(rides, cands, DefaultCostParams(), nil, t0)
	require.NoError(t, err)
	require.Len(t, plan, 2)

	seen := map[types.ID]bool{}
	for _, a := range plan {
		assert.False(t, seen[a.Driver.Driver.ID], "driver %s booked twice", a.Driver.Driver.ID)
		seen[a.Driver.Driver.ID] = true
	}
	// the two longest-waiting rides win
	assert.Equal(t, types.ID("r1"), plan[0].Ride.ID)
	assert.Equal(t, types.ID("r2"), plan[1].Ride.ID)
	assert.Equal(t, types.ID("d1"), plan[0].Driver.Driver.ID, "tie on cost goes to the lower driver id")
}

func TestPlan_GlobalMinimumFirst(t *testing.T) {
	cat := testCatalog(t)
	p := DefaultCostParams()
	// r1 is older, but the cheapest pair in the matrix is r2 with the
	// chaining driver; greedy must take that first.
	rides := []*ride.Ride{
		searching("r1", "Marina", t0.Add(-10*time.Second)),
		searching("r2", "Main Lobby", t0),
	}
	cands := []Candidate{
		busy("chain", onTrip("Lobby Annex", t0.Add(-7*time.Minute))),
		available("free"),
	}

	plan, err := Plan(rides, cands, p, cat, t0)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, types.ID("r2"), plan[0].Ride.ID)
	assert.Equal(t, types.ID("chain"), plan[0].Driver.Driver.ID)
	assert.Equal(t, 5.0, plan[0].Cost)
	assert.Equal(t, types.ID("r1"), plan[1].Ride.ID)
	assert.Equal(t, types.ID("free"), plan[1].Driver.Driver.ID)
}

func TestPlan_NoAdmissibleDriver(t *testing.T) {
	rides := []*ride.Ride{searching("r1", "Beach Club", t0)}

	_, err := Plan(rides, nil, DefaultCostParams(), nil, t0)
	assert.ErrorIs(t, err, ErrNoAdmissibleDriver)

	off := available("d1")
	off.OnShift = false
	_, err = Plan(rides, []Candidate{off}, DefaultCostParams(), nil, t0)
	assert.ErrorIs(t, err, ErrNoAdmissibleDriver)

	plan, err := Plan(nil, []Candidate{available("d1")}, DefaultCostParams(), nil, t0)
	assert.NoError(t, err)
	assert.Empty(t, plan)
}

func TestPlan_SkipsInadmissible(t *testing.T) {
	rides := []*ride.Ride{searching("r1", "Beach Club", t0), searching("r2", "Beach Club", t0)}
	off := available("d0")
	off.OnShift = false

	plan, err := Plan(rides, []Candidate{off, available("d1")}, DefaultCostParams(), nil, t0)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, types.ID("d1"), plan[0].Driver.Driver.ID)
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

type fakeDrivers struct {
	mu    sync.Mutex
	views []driver.View
	err   error
}

func (f *fakeDrivers) Snapshot(context.Context) ([]driver.View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]driver.View(nil), f.views...), f.err
}

type fakeShifts struct {
	off map[types.ID]bool
}

func (f fakeShifts) IsOnShift(_ context.Context, id types.ID, _ time.Time) (bool, error) {
	return !f.off[id], nil
}

type fixedETA int

func (e fixedETA) EstimateMinutes(context.Context, driver.View, string) (int, bool) {
	return int(e), true
}

type schedulerEnv struct {
	svc      *Service
	rides    *ride.Service
	store    *ride.MemoryStore
	drivers  *fakeDrivers
	settings *MemorySettings
	now      time.Time
}

func newSchedulerEnv(t *testing.T, off ...types.ID) *schedulerEnv {
	t.Helper()
	env := &schedulerEnv{
		store:    ride.NewMemoryStore(),
		drivers:  &fakeDrivers{},
		settings: NewMemorySettings(),
		now:      t0,
	}
	clock := func() time.Time { return env.now }
	env.rides = ride.NewService(env.store, nil, logger.NewNop(), config.Defaults().Ride).WithClock(clock)

	shifts := fakeShifts{off: map[types.ID]bool{}}
	for _, id := range off {
		shifts.off[id] = true
	}
	cfg := config.Defaults().Matching
	cfg.AutoAssignEnabled = true
	cfg.MaxWaitSeconds = 300
	env.svc = NewService(Deps{
		Rides:    env.rides,
		Drivers:  env.drivers,
		Shifts:   shifts,
		Settings: env.settings,
		Cooldown: NewMemoryCooldown(clock),
		ETA:      fixedETA(4),
		Distance: testCatalog(t),
		Log:      logger.NewNop(),
	}, cfg).WithClock(clock)
	return env
}

func (e *schedulerEnv) addDriver(id types.ID, status driver.Status) {
	e.drivers.mu.Lock()
	defer e.drivers.mu.Unlock()
	e.drivers.views = append(e.drivers.views, driver.View{Driver: driver.Driver{ID: id}, Status: status})
}

func (e *schedulerEnv) request(t *testing.T, name string) *ride.Ride {
	t.Helper()
	r, err := e.rides.Create(context.Background(), ride.CreateCommand{RequesterName: name, Pickup: "Beach Club", Destination: "Marina"})
	require.NoError(t, err)
	return r
}

func TestTick_AssignsOverdueRide(t *testing.T) {
	env := newSchedulerEnv(t)
	ctx := context.Background()
	env.addDriver("d1", driver.StatusAvailable)
	r := env.request(t, "Smith")

	env.now = t0.Add(299 * time.Second)
	rep, err := env.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdle, rep.Outcome)

	env.now = t0.Add(301 * time.Second)
	rep, err = env.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAssigned, rep.Outcome)
	require.Len(t, rep.Committed, 1)

	got, err := env.rides.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusAssigned, got.Status)
	assert.True(t, got.AssignedTo("d1"))
	assert.Equal(t, 4, *got.ETAMinutes)

	events, err := env.rides.Events(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, ride.ActorSystem, events[len(events)-1].ActorType)
}

func TestTick_Disabled(t *testing.T) {
	env := newSchedulerEnv(t)
	ctx := context.Background()
	env.addDriver("d1", driver.StatusAvailable)
	env.request(t, "Smith")
	env.now = t0.Add(time.Hour)

	_, err := env.svc.UpdateSettings(ctx, Settings{AutoAssignEnabled: false, MaxWaitSeconds: 300})
	require.NoError(t, err)
	rep, err := env.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDisabled, rep.Outcome)

	// hot reload: the very next tick sees the new value
	_, err = env.svc.UpdateSettings(ctx, Settings{AutoAssignEnabled: true, MaxWaitSeconds: 300})
	require.NoError(t, err)
	rep, err = env.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAssigned, rep.Outcome)
}

func TestTick_Cooldown(t *testing.T) {
	env := newSchedulerEnv(t)
	ctx := context.Background()
	env.addDriver("d1", driver.StatusAvailable)
	env.addDriver("d2", driver.StatusAvailable)
	env.request(t, "First")
	env.now = t0.Add(10 * time.Minute)

	rep, err := env.svc.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, OutcomeAssigned, rep.Outcome)

	env.request(t, "Second")
	env.now = env.now.Add(6 * time.Minute)
	rep, err = env.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAssigned, rep.Outcome, "cooldown has long expired")

	env.request(t, "Third")
	env.now = env.now.Add(301 * time.Second)
	_, err = env.svc.Tick(ctx)
	require.NoError(t, err)
	env.request(t, "Fourth")
	rep, err = env.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdle, rep.Outcome, "fourth has not waited yet")

	env.now = env.now.Add(5 * time.Second)
	rep, err = env.svc.runTick(ctx, Settings{AutoAssignEnabled: true, MaxWaitSeconds: 0}, env.now)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCooldown, rep.Outcome, "within ten seconds of the previous trigger")
}

func TestTick_NoAdmissibleDriverIsNotAnError(t *testing.T) {
	env := newSchedulerEnv(t, "d1")
	ctx := context.Background()
	env.addDriver("d1", driver.StatusAvailable)
	env.addDriver("d2", driver.StatusOffline)
	env.request(t, "Smith")
	env.now = t0.Add(time.Hour)

	rep, err := env.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoDriver, rep.Outcome)

	// a driver coming on shift is picked up on the very next tick
	env.addDriver("d3", driver.StatusAvailable)
	rep, err = env.svc.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAssigned, rep.Outcome)
}

func TestAssignNow(t *testing.T) {
	env := newSchedulerEnv(t)
	ctx := context.Background()

	rep, err := env.svc.AssignNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdle, rep.Outcome)

	env.request(t, "Fresh")
	_, err = env.svc.AssignNow(ctx)
	assert.ErrorIs(t, err, ErrNoAdmissibleDriver)

	env.addDriver("d1", driver.StatusAvailable)
	_, err = env.svc.UpdateSettings(ctx, Settings{AutoAssignEnabled: false})
	require.NoError(t, err)

	rep, err = env.svc.AssignNow(ctx)
	require.NoError(t, err, "wait gate, cooldown and the enabled flag do not apply")
	assert.Equal(t, OutcomeAssigned, rep.Outcome)
	require.Len(t, rep.Committed, 1)
	assert.Equal(t, ride.StatusAssigned, rep.Committed[0].Status)
}

// movingRides cancels the ride between planning and commit.
type movingRides struct {
	*ride.Service
}

func (m movingRides) Assign(ctx context.Context, cmd ride.AssignCommand) (*ride.Ride, error) {
	if _, err := m.Service.Cancel(ctx, ride.StepCommand{RideID: cmd.RideID}); err != nil {
		return nil, err
	}
	return m.Service.Assign(ctx, cmd)
}

func TestCommit_ConflictsAreCounted(t *testing.T) {
	env := newSchedulerEnv(t)
	ctx := context.Background()
	env.addDriver("d1", driver.StatusAvailable)
	env.request(t, "Smith")
	env.svc.deps.Rides = movingRides{env.rides}

	rep, err := env.svc.AssignNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Empty(t, rep.Committed)
}

func TestSettings(t *testing.T) {
	env := newSchedulerEnv(t)
	ctx := context.Background()

	st, err := env.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, Settings{AutoAssignEnabled: true, MaxWaitSeconds: 300}, st, "seeded from config")

	_, err = env.svc.UpdateSettings(ctx, Settings{MaxWaitSeconds: -1})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = env.svc.UpdateSettings(ctx, Settings{AutoAssignEnabled: false, MaxWaitSeconds: 60})
	require.NoError(t, err)
	st, err = env.svc.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, Settings{AutoAssignEnabled: false, MaxWaitSeconds: 60}, st)
}

func TestRunScheduler_StopsOnCancel(t *testing.T) {
	env := newSchedulerEnv(t)
	env.drivers.err = errors.New("snapshot unavailable")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		env.svc.RunScheduler(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

// ---------------------------------------------------------------------------
// Stores
// ---------------------------------------------------------------------------

func TestMemoryCooldown(t *testing.T) {
	now := t0
	cd := NewMemoryCooldown(func() time.Time { return now })
	ctx := context.Background()

	ok, err := cd.Acquire(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(9 * time.Second)
	ok, _ = cd.Acquire(ctx, "k", 10*time.Second)
	assert.False(t, ok)

	ok, _ = cd.Acquire(ctx, "other", 10*time.Second)
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Second)
	ok, _ = cd.Acquire(ctx, "k", 10*time.Second)
	assert.True(t, ok)
}

func TestRedisStores(t *testing.T) {
	rdb := testutil.Redis(t)
	ctx := context.Background()

	settings := NewRedisSettings(rdb)
	_, ok, err := settings.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	want := Settings{AutoAssignEnabled: true, MaxWaitSeconds: 90}
	require.NoError(t, settings.Save(ctx, want))
	got, ok, err := settings.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	cd := NewRedisCooldown(rdb)
	first, err := cd.Acquire(ctx, "test", time.Minute)
	require.NoError(t, err)
	second, err := cd.Acquire(ctx, "test", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
}
