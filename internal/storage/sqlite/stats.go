package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"vehiclereport/internal/domain"
)

// Stat returns a precomputed statistic. ok is false when the key was never populated.
func (s *Store) Stat(ctx context.Context, key string) (int, bool, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT value FROM stats WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// SetStats upserts all stats in one transaction.
func (s *Store) SetStats(ctx context.Context, stats []domain.Stat) error {
	if len(stats) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stats (key, value, category, description, last_updated)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET
		   value = excluded.value,
		   category = excluded.category,
		   description = excluded.description,
		   last_updated = excluded.last_updated`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := s.now()
	for _, st := range stats {
		at := st.LastUpdated
		if at.IsZero() {
			at = now
		}
		if _, err := stmt.ExecContext(ctx, st.Key, st.Value, st.Category, st.Description, at); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) AllStats(ctx context.Context) ([]domain.Stat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, category, description, last_updated FROM stats ORDER BY category, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Stat
	for rows.Next() {
		var st domain.Stat
		if err := rows.Scan(&st.Key, &st.Value, &st.Category, &st.Description, &st.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
