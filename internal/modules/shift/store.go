// README: Shift storage: PostgreSQL for deployments, memory for tests.
package shift

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"buggy/internal/types"
)

type Store interface {
	Add(ctx context.Context, s Shift) (Shift, error)
	// ListByDriver returns shifts starting on a date in [from, to], ordered by date and start.
	ListByDriver(ctx context.Context, driverID types.ID, from, to time.Time) ([]Shift, error)
	HasShifts(ctx context.Context, driverID types.ID) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Add(ctx context.Context, sh Shift) (Shift, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO driver_shifts (driver_id, shift_date, start_minute, end_minute)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		string(sh.DriverID), civil(sh.Date), sh.StartMinute, sh.EndMinute,
	).Scan(&sh.ID)
	if err != nil {
		return Shift{}, fmt.Errorf("insert shift: %w", err)
	}
	return sh, nil
}

func (s *PostgresStore) ListByDriver(ctx context.Context, driverID types.ID, from, to time.Time) ([]Shift, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, driver_id, shift_date, start_minute, end_minute
		FROM driver_shifts
		WHERE driver_id = $1 AND shift_date BETWEEN $2 AND $3
		ORDER BY shift_date, start_minute`,
		string(driverID), civil(from), civil(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Shift
	for rows.Next() {
		var sh Shift
		if err := rows.Scan(&sh.ID, &sh.DriverID, &sh.Date, &sh.StartMinute, &sh.EndMinute); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *PostgresStore) HasShifts(ctx context.Context, driverID types.ID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM driver_shifts WHERE driver_id = $1)`, string(driverID),
	).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM driver_shifts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	shifts []Shift
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Add(_ context.Context, sh Shift) (Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sh.ID = s.nextID
	sh.Date = civil(sh.Date)
	s.shifts = append(s.shifts, sh)
	return sh, nil
}

func (s *MemoryStore) ListByDriver(_ context.Context, driverID types.ID, from, to time.Time) ([]Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, hi := civil(from), civil(to)
	var out []Shift
	for _, sh := range s.shifts {
		if sh.DriverID == driverID && !sh.Date.Before(lo) && !sh.Date.After(hi) {
			out = append(out, sh)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartMinute < out[j].StartMinute
	})
	return out, nil
}

func (s *MemoryStore) HasShifts(_ context.Context, driverID types.ID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sh := range s.shifts {
		if sh.DriverID == driverID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sh := range s.shifts {
		if sh.ID == id {
			s.shifts = append(s.shifts[:i], s.shifts[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// civil drops the clock and zone, keeping the calendar date as midnight UTC.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
