package poll

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buggy/internal/logger"
	"buggy/internal/modules/driver"
	"buggy/internal/modules/ride"
	"buggy/internal/types"
)

func TestCadence_Interval(t *testing.T) {
	c := DefaultCadence()
	assert.Equal(t, 3*time.Second, c.Interval(StateActive))
	assert.Equal(t, 10*time.Second, c.Interval(StateIdle))
	assert.Equal(t, 30*time.Second, c.Interval(StateBackground))
}

func TestActivity_State(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	a := NewActivity(DefaultCadence(), clock)

	assert.Equal(t, StateActive, a.State())

	now = now.Add(61 * time.Second)
	assert.Equal(t, StateIdle, a.State())
	assert.Equal(t, 10*time.Second, a.Interval())

	a.Touch()
	assert.Equal(t, StateActive, a.State())

	a.SetBackground(true)
	assert.Equal(t, StateBackground, a.State())
	assert.Equal(t, 30*time.Second, a.Interval())

	a.Touch()
	assert.Equal(t, StateActive, a.State(), "interaction brings the surface back")
}

func TestTracker_ForwardOnly(t *testing.T) {
	tr := NewTracker()

	_, fired := tr.Observe(KindRide, "r1", "SEARCHING")
	assert.False(t, fired, "first sighting only records")

	_, fired = tr.Observe(KindRide, "r1", "SEARCHING")
	assert.False(t, fired, "unchanged state")

	got, fired := tr.Observe(KindRide, "r1", "ASSIGNED")
	require.True(t, fired)
	assert.Equal(t, Transition{Kind: KindRide, Key: "r1", From: "SEARCHING", To: "ASSIGNED"}, got)

	_, fired = tr.Observe(KindRide, "r1", "ASSIGNED")
	assert.False(t, fired)

	// ARRIVING -> ASSIGNED is a correction, not a forward step
	_, fired = tr.Observe(KindRide, "r1", "ARRIVING")
	assert.True(t, fired)
	_, fired = tr.Observe(KindRide, "r1", "ASSIGNED")
	assert.False(t, fired)
	_, fired = tr.Observe(KindRide, "r1", "ARRIVING")
	assert.False(t, fired, "same transition is never reported twice")

	_, fired = tr.Observe(KindRide, "r1", "ON_TRIP")
	assert.True(t, fired)
	_, fired = tr.Observe(KindRide, "r1", "COMPLETED")
	assert.True(t, fired)

	last, ok := tr.Last(KindRide, "r1")
	require.True(t, ok)
	assert.Equal(t, "COMPLETED", last)
}

func TestTracker_Drivers(t *testing.T) {
	tr := NewTracker()
	tr.Observe(KindDriver, "d1", "OFFLINE")

	_, fired := tr.Observe(KindDriver, "d1", "AVAILABLE")
	assert.True(t, fired)
	_, fired = tr.Observe(KindDriver, "d1", "BUSY")
	assert.False(t, fired)

	// ride and driver keys live in separate namespaces
	tr.Observe(KindRide, "d1", "SEARCHING")
	last, _ := tr.Last(KindDriver, "d1")
	assert.Equal(t, "BUSY", last)
}

func TestTracker_SkippedStates(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
	}{
		{"assigned to completed", "ASSIGNED", "COMPLETED"},
		{"searching to on trip", "SEARCHING", "ON_TRIP"},
		{"searching to completed", "SEARCHING", "COMPLETED"},
		{"arriving to completed", "ARRIVING", "COMPLETED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			tr.Observe(KindRide, "r1", tt.from)

			got, fired := tr.Observe(KindRide, "r1", tt.to)
			require.True(t, fired)
			assert.Equal(t, Transition{Kind: KindRide, Key: "r1", From: tt.from, To: tt.to}, got)

			_, fired = tr.Observe(KindRide, "r1", tt.to)
			assert.False(t, fired)
		})
	}
}

func TestTracker_ForgetsKeysOffTheBoard(t *testing.T) {
	tr := NewTracker()
	tr.ObserveBoard(Board{
		Rides:   []Ride{{ID: "r1", Status: "SEARCHING"}, {ID: "r2", Status: "ON_TRIP"}},
		Drivers: []Driver{{ID: "d1", Status: "OFFLINE"}, {ID: "d2", Status: "AVAILABLE"}},
	})
	trs := tr.ObserveBoard(Board{
		Rides:   []Ride{{ID: "r1", Status: "ASSIGNED"}},
		Drivers: []Driver{{ID: "d1", Status: "AVAILABLE"}},
	})
	require.Len(t, trs, 2)
	assert.Equal(t, 1, tr.Len(KindRide))
	assert.Equal(t, 1, tr.Len(KindDriver))

	_, ok := tr.Last(KindRide, "r2")
	assert.False(t, ok)

	// a ride that returns to the board is a first sighting again
	trs = tr.ObserveBoard(Board{
		Rides:   []Ride{{ID: "r1", Status: "ASSIGNED"}, {ID: "r2", Status: "COMPLETED"}},
		Drivers: []Driver{{ID: "d1", Status: "AVAILABLE"}},
	})
	assert.Empty(t, trs)
	assert.Equal(t, 2, tr.Len(KindRide))

	tr.ObserveBoard(Board{})
	assert.Zero(t, tr.Len(KindRide))
	assert.Zero(t, tr.Len(KindDriver))
	assert.Empty(t, tr.fired)
}

func TestIsForward(t *testing.T) {
	tests := []struct {
		kind     Kind
		from, to string
		want     bool
	}{
		{KindRide, "SEARCHING", "ASSIGNED", true},
		{KindRide, "SEARCHING", "ARRIVING", true},
		{KindRide, "ARRIVING", "ON_TRIP", true},
		{KindRide, "ON_TRIP", "COMPLETED", true},
		{KindRide, "ASSIGNED", "ARRIVING", true},
		{KindRide, "ASSIGNED", "COMPLETED", true},
		{KindRide, "SEARCHING", "ON_TRIP", true},
		{KindRide, "ARRIVING", "ASSIGNED", false},
		{KindRide, "ON_TRIP", "ASSIGNED", false},
		{KindRide, "ASSIGNED", "CANCELLED", false},
		{KindRide, "CANCELLED", "COMPLETED", false},
		{KindRide, "SEARCHING", "CANCELLED", false},
		{KindRide, "COMPLETED", "SEARCHING", false},
		{KindDriver, "OFFLINE", "AVAILABLE", true},
		{KindDriver, "AVAILABLE", "OFFLINE", false},
		{KindDriver, "OFFLINE", "BUSY", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsForward(tt.kind, tt.from, tt.to), "%s %s->%s", tt.kind, tt.from, tt.to)
	}
}

func TestView_ApplyThenReconcile(t *testing.T) {
	v := NewView[string, string]()
	v.Reconcile(map[string]string{"r1": "SEARCHING"})

	v.ApplyTentative("r1", "CANCELLED")
	got, _ := v.Get("r1")
	assert.Equal(t, "CANCELLED", got)
	assert.Equal(t, 1, v.Pending())

	// the server still says SEARCHING: the tentative change is dropped
	v.Reconcile(map[string]string{"r1": "SEARCHING", "r2": "ASSIGNED"})
	got, _ = v.Get("r1")
	assert.Equal(t, "SEARCHING", got)
	assert.Equal(t, 0, v.Pending())
	assert.Equal(t, 2, v.Len())

	v.Reconcile(nil)
	_, ok := v.Get("r1")
	assert.False(t, ok)
}

func TestTask_RunsAndStops(t *testing.T) {
	var runs atomic.Int32
	task := StartTask(context.Background(), func() time.Duration { return 5 * time.Millisecond }, func(context.Context) {
		runs.Add(1)
	})

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	task.Stop()
	task.Stop()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")

	select {
	case <-task.Done():
	default:
		t.Fatal("task not done after Stop")
	}
}

func TestTask_Wake(t *testing.T) {
	var runs atomic.Int32
	task := StartTask(context.Background(), func() time.Duration { return time.Hour }, func(context.Context) {
		runs.Add(1)
	})
	defer task.Stop()

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, time.Millisecond)
	task.Wake()
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, time.Millisecond)
}

func TestTask_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := StartTask(ctx, func() time.Duration { return time.Millisecond }, func(context.Context) {})
	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("task did not stop with its parent")
	}
}

type scriptedFetcher struct {
	mu     sync.Mutex
	boards []Board
	err    error
}

func (f *scriptedFetcher) FetchBoard(context.Context) (Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Board{}, f.err
	}
	b := f.boards[0]
	if len(f.boards) > 1 {
		f.boards = f.boards[1:]
	}
	return b, nil
}

func board(rideStatus, driverStatus string) Board {
	return Board{
		Rides:   []Ride{{ID: "r1", Status: rideStatus}},
		Drivers: []Driver{{ID: "d1", Status: driverStatus}},
	}
}

func TestWatcher_Poll(t *testing.T) {
	f := &scriptedFetcher{boards: []Board{
		board("SEARCHING", "OFFLINE"),
		board("SEARCHING", "OFFLINE"),
		board("ASSIGNED", "AVAILABLE"),
		board("ASSIGNED", "AVAILABLE"),
	}}
	var seen []Transition
	w := NewWatcher(f, NewActivity(DefaultCadence(), nil), func(tr Transition) { seen = append(seen, tr) }, logger.NewNop())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := w.Poll(ctx)
		require.NoError(t, err)
	}
	require.Len(t, seen, 2)
	assert.Equal(t, "ASSIGNED", seen[0].To)
	assert.Equal(t, KindDriver, seen[1].Kind)

	got, ok := w.View().Get("r1")
	require.True(t, ok)
	assert.Equal(t, "ASSIGNED", got.Status)

	f.err = errors.New("connection refused")
	w.View().ApplyTentative("r1", Ride{ID: "r1", Status: "CANCELLED"})
	_, err := w.Poll(ctx)
	require.Error(t, err)
	got, _ = w.View().Get("r1")
	assert.Equal(t, "CANCELLED", got.Status, "failed poll keeps the local view")
}

func TestWatcher_StartStop(t *testing.T) {
	f := &scriptedFetcher{boards: []Board{board("SEARCHING", "AVAILABLE"), board("ASSIGNED", "BUSY")}}
	c := Cadence{Foreground: 2 * time.Millisecond, Idle: 2 * time.Millisecond, Background: 2 * time.Millisecond, IdleAfter: time.Hour}

	var fired atomic.Int32
	w := NewWatcher(f, NewActivity(c, nil), func(Transition) { fired.Add(1) }, logger.NewNop())
	w.Start(context.Background())
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	w.Touch()
	time.Sleep(10 * time.Millisecond)
	w.Stop()

	assert.Equal(t, int32(1), fired.Load(), "re-fetching the same board fires nothing")
	last, ok := w.tracker.Last(KindRide, "r1")
	require.True(t, ok)
	assert.Equal(t, "ASSIGNED", last)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/staff/board" || r.Header.Get("Authorization") != "Bearer staff-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(board("ARRIVING", "BUSY"))
	}))
	defer srv.Close()

	b, err := NewHTTPFetcher(srv.URL+"/", "staff-token", time.Second).FetchBoard(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Rides, 1)
	assert.Equal(t, "ARRIVING", b.Rides[0].Status)

	_, err = NewHTTPFetcher(srv.URL, "wrong", time.Second).FetchBoard(context.Background())
	assert.ErrorContains(t, err, "401")
}

func TestNewRideAndDriver(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	assigned := created.Add(2 * time.Minute)
	did := types.ID("d1")
	r := &ride.Ride{
		ID: "r1", RequesterName: "Smith", Pickup: "Main Lobby", Destination: "Marina",
		Status: ride.StatusAssigned, StatusVersion: 1, DriverID: &did, GuestCount: 2,
		CreatedAt: created, AssignedAt: &assigned,
	}
	got := NewRide(r, assigned.Add(30*time.Second))
	assert.Equal(t, created.UnixMilli(), got.CreatedAt)
	require.NotNil(t, got.AssignedAt)
	assert.Equal(t, assigned.UnixMilli(), *got.AssignedAt)
	assert.Nil(t, got.PickedUpAt)
	assert.Equal(t, "d1", *got.DriverID)
	require.NotNil(t, got.Next)
	assert.Equal(t, ride.ActionPickUp, got.Next.Kind)
	assert.Equal(t, 30, got.Wait.ArrivingSeconds)

	p := types.Point{Lat: 25.03, Lng: 121.56}
	d := NewDriver(driver.View{
		Driver:  driver.Driver{ID: "d1", Name: "Ana"},
		Status:  driver.StatusBusy,
		Label:   driver.Label{Text: "Marina", Point: &p, Source: driver.LabelRide},
		Current: r,
	})
	assert.Equal(t, "BUSY", d.Status)
	assert.Equal(t, "Marina", d.Location)
	assert.Equal(t, 25.03, *d.Lat)
	assert.Equal(t, "r1", *d.CurrentRideID)
}
