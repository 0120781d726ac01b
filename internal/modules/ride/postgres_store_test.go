// README: DB-backed ride tests (compare-and-set races, duplicate guard, persistence).
package ride

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buggy/internal/testutil"
	"buggy/internal/types"
)

func setupTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	db := testutil.Postgres(t, "ride_state_events", "rides")
	return NewPostgresStore(db)
}

// TestRaceAssign_PG starts many drivers claiming one ride at the same moment.
func TestRaceAssign_PG(t *testing.T) {
	svc, _, _ := newTestService(setupTestStore(t))
	ctx := context.Background()
	r := mustCreate(t, svc, "Race Guest")

	const drivers = 12
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, drivers)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := svc.Assign(ctx, AssignCommand{RideID: r.ID, DriverID: types.ID(fmt.Sprintf("d%d", i))})
			errs <- err
		}(i)
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrStaleWrite), errors.Is(err, ErrInvalidTransition):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, success)

	got, err := svc.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, got.Status)
	assert.Equal(t, 1, got.StatusVersion)

	events, err := svc.Events(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

// TestRaceCreate_PG relies on the partial unique index to reject concurrent
// duplicates that both pass the pre-check.
func TestRaceCreate_PG(t *testing.T) {
	svc, _, _ := newTestService(setupTestStore(t))
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Create(ctx, CreateCommand{RequesterName: "Same Guest", Pickup: "Spa", Destination: "Marina"})
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		require.ErrorIs(t, err, ErrDuplicateActiveRide)
	}
	assert.Equal(t, 1, success)
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	owner := types.ID("g1")

	r := &Ride{
		ID:            "r-merged",
		RequesterName: "Tour Group",
		CreatedBy:     &owner,
		Pickup:        "Main Lobby",
		Destination:   "Marina",
		Status:        StatusSearching,
		GuestCount:    5,
		Segments: []Segment{
			{From: "Main Lobby", To: "Spa", Guests: 2},
			{From: "Spa", To: "Marina", Guests: 3},
		},
		CreatedAt: created,
	}
	require.NoError(t, store.Create(ctx, r))

	got, err := store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Segments, got.Segments)
	assert.Nil(t, got.DriverID)
	require.NotNil(t, got.CreatedBy)
	assert.Equal(t, owner, *got.CreatedBy)
	assert.True(t, created.Equal(got.CreatedAt))

	driver := types.ID("d1")
	assigned := created.Add(time.Minute)
	ok, err := store.CompareAndSet(ctx, Transition{
		RideID: r.ID, From: StatusSearching, To: StatusAssigned, Version: 0,
		DriverID: &driver, AssignedAt: &assigned,
	})
	require.NoError(t, err)
	require.True(t, ok)

	later := assigned.Add(time.Minute)
	ok, err = store.CompareAndSet(ctx, Transition{
		RideID: r.ID, From: StatusAssigned, To: StatusAssigned, Version: 0, AssignedAt: &later,
	})
	require.NoError(t, err)
	assert.False(t, ok, "stale version is rejected")

	ok, err = store.CompareAndSet(ctx, Transition{
		RideID: r.ID, From: StatusAssigned, To: StatusArriving, Version: 1, AssignedAt: &later,
	})
	require.NoError(t, err)
	require.True(t, ok)

	got, err = store.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusArriving, got.Status)
	assert.Equal(t, 2, got.StatusVersion)
	assert.True(t, got.AssignedTo("d1"))
	assert.True(t, assigned.Equal(*got.AssignedAt), "assigned_at is written once")

	rides, err := store.ListByDriver(ctx, "d1", CommittedStatuses...)
	require.NoError(t, err)
	assert.Len(t, rides, 1)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListFinishedSince_PG(t *testing.T) {
	checkFinishedSince(t, setupTestStore(t))
}
