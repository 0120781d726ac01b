// README: Driver roster backed by PostgreSQL.
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"buggy/internal/types"
)

type PostgresRoster struct {
	db *pgxpool.Pool
}

func NewPostgresRoster(db *pgxpool.Pool) *PostgresRoster {
	return &PostgresRoster{db: db}
}

func (s *PostgresRoster) List(ctx context.Context) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, active
		FROM drivers
		WHERE active
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.Active); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresRoster) Get(ctx context.Context, id types.ID) (*Driver, error) {
	var d Driver
	err := s.db.QueryRow(ctx, `SELECT id, name, active FROM drivers WHERE id = $1`, string(id)).
		Scan(&d.ID, &d.Name, &d.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *PostgresRoster) Upsert(ctx context.Context, id types.ID, name string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (id, name, active)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, active = TRUE`,
		string(id), name,
	)
	if err != nil {
		return fmt.Errorf("upsert driver %s: %w", id, err)
	}
	return nil
}

// Deactivate removes a driver from dispatch without deleting shift history.
func (s *PostgresRoster) Deactivate(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `UPDATE drivers SET active = FALSE WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
