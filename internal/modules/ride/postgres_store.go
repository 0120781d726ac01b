// README: Ride store backed by PostgreSQL.
package ride

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"buggy/internal/types"
)

const (
	uniqueViolation      = "23505"
	activeRequesterIndex = "rides_one_active_per_requester"
)

const rideColumns = `
	id, requester_name, created_by, room, pickup, destination, status, status_version,
	driver_id, eta_minutes, guest_count, notes, rating, feedback, segments, progress,
	created_at, assigned_at, picked_up_at, dropped_off_at, cancelled_at`

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, r *Ride) error {
	segments, err := encodeSegments(r.Segments)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO rides (
			id, requester_name, created_by, room, pickup, destination, status, status_version,
			driver_id, eta_minutes, guest_count, notes, segments, progress, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15
		)`,
		string(r.ID),
		r.RequesterName,
		toStringPtr(r.CreatedBy),
		r.Room,
		r.Pickup,
		r.Destination,
		string(r.Status),
		r.StatusVersion,
		toStringPtr(r.DriverID),
		r.ETAMinutes,
		r.GuestCount,
		r.Notes,
		segments,
		r.Progress,
		r.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == activeRequesterIndex {
		existing, lookupErr := s.ActiveByRequester(ctx, r.RequesterName)
		if lookupErr != nil {
			existing = nil
		}
		return &DuplicateActiveRideError{Existing: existing}
	}
	if err != nil {
		return fmt.Errorf("insert ride: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) ActiveByRequester(ctx context.Context, name string) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE lower(requester_name) = lower($1) AND status = ANY($2)
		LIMIT 1`, strings.TrimSpace(name), statusStrings(ActiveStatuses))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, statuses ...Status) ([]*Ride, error) {
	return s.query(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE status = ANY($1)
		ORDER BY created_at, id`, statusStrings(statuses))
}

func (s *PostgresStore) ListByRequester(ctx context.Context, name string) ([]*Ride, error) {
	return s.query(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE lower(requester_name) = lower($1)
		ORDER BY created_at, id`, strings.TrimSpace(name))
}

func (s *PostgresStore) ListByDriver(ctx context.Context, driverID types.ID, statuses ...Status) ([]*Ride, error) {
	if len(statuses) == 0 {
		return s.query(ctx, `SELECT `+rideColumns+` FROM rides
			WHERE driver_id = $1
			ORDER BY created_at, id`, string(driverID))
	}
	return s.query(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE driver_id = $1 AND status = ANY($2)
		ORDER BY created_at, id`, string(driverID), statusStrings(statuses))
}

func (s *PostgresStore) ListFinishedSince(ctx context.Context, since time.Time) ([]*Ride, error) {
	return s.query(ctx, `SELECT `+rideColumns+` FROM rides
		WHERE status IN ('COMPLETED', 'CANCELLED')
		  AND COALESCE(dropped_off_at, cancelled_at) >= $1
		ORDER BY created_at, id`, since)
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*Ride, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CompareAndSet(ctx context.Context, t Transition) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET status = $1,
			status_version = status_version + 1,
			driver_id = COALESCE($2, driver_id),
			eta_minutes = COALESCE($3, eta_minutes),
			progress = COALESCE($4, progress),
			assigned_at = COALESCE(assigned_at, $5),
			picked_up_at = COALESCE(picked_up_at, $6),
			dropped_off_at = COALESCE(dropped_off_at, $7),
			cancelled_at = COALESCE(cancelled_at, $8)
		WHERE id = $9 AND status = $10 AND status_version = $11`,
		string(t.To),
		toStringPtr(t.DriverID),
		t.ETAMinutes,
		t.Progress,
		t.AssignedAt,
		t.PickedUpAt,
		t.DroppedOffAt,
		t.CancelledAt,
		string(t.RideID),
		string(t.From),
		t.Version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) SetFeedback(ctx context.Context, id types.ID, rating int, feedback string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides SET rating = $1, feedback = $2
		WHERE id = $3 AND status = $4 AND rating IS NULL`,
		rating, feedback, string(id), string(StatusCompleted),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_state_events (
			ride_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.RideID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func (s *PostgresStore) Events(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, from_status, to_status, actor_type, actor_id, created_at
		FROM ride_state_events
		WHERE ride_id = $1
		ORDER BY id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID sql.NullString
		if err := rows.Scan(&e.ID, &e.RideID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			a := types.ID(actorID.String)
			e.ActorID = &a
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var driverID, createdBy, feedback sql.NullString
	var eta, rating sql.NullInt64
	var segments []byte
	var assignedAt, pickedUpAt, droppedOffAt, cancelledAt sql.NullTime

	err := row.Scan(
		&r.ID, &r.RequesterName, &createdBy, &r.Room, &r.Pickup, &r.Destination, &r.Status, &r.StatusVersion,
		&driverID, &eta, &r.GuestCount, &r.Notes, &rating, &feedback, &segments, &r.Progress,
		&r.CreatedAt, &assignedAt, &pickedUpAt, &droppedOffAt, &cancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if driverID.Valid {
		d := types.ID(driverID.String)
		r.DriverID = &d
	}
	if createdBy.Valid {
		o := types.ID(createdBy.String)
		r.CreatedBy = &o
	}
	r.ETAMinutes = toIntPtr(eta)
	r.Rating = toIntPtr(rating)
	if feedback.Valid {
		r.Feedback = &feedback.String
	}
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &r.Segments); err != nil {
			return nil, fmt.Errorf("decode segments of ride %s: %w", r.ID, err)
		}
	}
	r.AssignedAt = toTimePtr(assignedAt)
	r.PickedUpAt = toTimePtr(pickedUpAt)
	r.DroppedOffAt = toTimePtr(droppedOffAt)
	r.CancelledAt = toTimePtr(cancelledAt)
	return &r, nil
}

func encodeSegments(segs []Segment) ([]byte, error) {
	if len(segs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(segs)
	if err != nil {
		return nil, fmt.Errorf("encode segments: %w", err)
	}
	return b, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
