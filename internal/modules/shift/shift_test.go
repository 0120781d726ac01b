package shift

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"buggy/internal/testutil"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "07:30", want: 450},
		{in: "24:00", want: 1440},
		{in: "24:01", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrBadRequest, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.in, FormatClock(got))
	}
}

func TestShiftCovers(t *testing.T) {
	loc := time.FixedZone("resort", -5*3600)
	dayShift := Shift{DriverID: "d1", Date: day(2026, 3, 14), StartMinute: 7 * 60, EndMinute: 15 * 60}
	night := Shift{DriverID: "d1", Date: day(2026, 3, 14), StartMinute: 22 * 60, EndMinute: 6 * 60}

	local := func(d, h, m int) time.Time { return time.Date(2026, 3, d, h, m, 0, 0, loc) }

	assert.True(t, dayShift.Covers(local(14, 7, 0), loc), "start is inclusive")
	assert.True(t, dayShift.Covers(local(14, 14, 59), loc))
	assert.False(t, dayShift.Covers(local(14, 15, 0), loc), "end is exclusive")
	assert.False(t, dayShift.Covers(local(15, 8, 0), loc))
	// 12:00 UTC is 07:00 in the resort zone
	assert.True(t, dayShift.Covers(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), loc))

	assert.True(t, night.Overnight())
	assert.True(t, night.Covers(local(14, 23, 0), loc))
	assert.True(t, night.Covers(local(15, 5, 59), loc))
	assert.False(t, night.Covers(local(15, 6, 0), loc))
	assert.False(t, night.Covers(local(14, 5, 0), loc))
}

func TestIsOnShift(t *testing.T) {
	svc := NewService(NewMemoryStore(), time.UTC)
	ctx := context.Background()

	on, err := svc.IsOnShift(ctx, "d1", time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, on, "drivers without a schedule are always on shift")

	_, err = svc.Add(ctx, Shift{DriverID: "d1", Date: day(2026, 3, 13), StartMinute: 20 * 60, EndMinute: 4 * 60})
	require.NoError(t, err)
	_, err = svc.Add(ctx, Shift{DriverID: "d1", Date: day(2026, 3, 14), StartMinute: 9 * 60, EndMinute: 17 * 60})
	require.NoError(t, err)

	cases := []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC), true},  // previous night's shift
		{time.Date(2026, 3, 14, 4, 0, 0, 0, time.UTC), false}, // gap
		{time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC), true},
		{time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC), false},
		{time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		on, err := svc.IsOnShift(ctx, "d1", tc.at)
		require.NoError(t, err)
		assert.Equal(t, tc.want, on, tc.at.String())
	}
}

func TestAdd_Validation(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	ctx := context.Background()

	bad := []Shift{
		{Date: day(2026, 3, 14), StartMinute: 60, EndMinute: 120},
		{DriverID: "d1", StartMinute: 60, EndMinute: 120},
		{DriverID: "d1", Date: day(2026, 3, 14), StartMinute: 60, EndMinute: 60},
		{DriverID: "d1", Date: day(2026, 3, 14), StartMinute: 1440, EndMinute: 60},
		{DriverID: "d1", Date: day(2026, 3, 14), StartMinute: 60, EndMinute: 1441},
	}
	for i, sh := range bad {
		_, err := svc.Add(ctx, sh)
		assert.ErrorIs(t, err, ErrBadRequest, "case %d", i)
	}

	_, err := svc.List(ctx, "d1", day(2026, 3, 15), day(2026, 3, 14))
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestMemoryStore_ListAndDelete(t *testing.T) {
	svc := NewService(NewMemoryStore(), nil)
	ctx := context.Background()

	late, err := svc.Add(ctx, Shift{DriverID: "d1", Date: day(2026, 3, 14), StartMinute: 600, EndMinute: 700})
	require.NoError(t, err)
	_, err = svc.Add(ctx, Shift{DriverID: "d1", Date: day(2026, 3, 14), StartMinute: 300, EndMinute: 400})
	require.NoError(t, err)
	_, err = svc.Add(ctx, Shift{DriverID: "d2", Date: day(2026, 3, 14), StartMinute: 300, EndMinute: 400})
	require.NoError(t, err)

	list, err := svc.List(ctx, "d1", day(2026, 3, 14), day(2026, 3, 14))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 300, list[0].StartMinute)

	require.NoError(t, svc.Delete(ctx, late.ID))
	assert.ErrorIs(t, svc.Delete(ctx, late.ID), ErrNotFound)
}

func TestPostgresStore(t *testing.T) {
	db := testutil.Postgres(t, "driver_shifts", "drivers")
	ctx := context.Background()
	_, err := db.Exec(ctx, `INSERT INTO drivers (id, name) VALUES ('d1', 'Marco')`)
	require.NoError(t, err)

	svc := NewService(NewPostgresStore(db), time.UTC)
	sh, err := svc.Add(ctx, Shift{DriverID: "d1", Date: day(2026, 3, 14), StartMinute: 22 * 60, EndMinute: 6 * 60})
	require.NoError(t, err)
	assert.NotZero(t, sh.ID)

	on, err := svc.IsOnShift(ctx, "d1", time.Date(2026, 3, 15, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, on)

	on, err = svc.IsOnShift(ctx, "d1", time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, on)

	list, err := svc.List(ctx, "d1", day(2026, 3, 1), day(2026, 3, 31))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, day(2026, 3, 14).Equal(list[0].Date))
}
