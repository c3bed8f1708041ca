package sqlite

import (
	"context"
	"database/sql"
	"errors"
)

func (s *Store) RepairDescription(ctx context.Context, slug string) (string, bool, error) {
	var d string
	err := s.db.QueryRowContext(ctx, `SELECT description FROM repair_descriptions WHERE slug = ?`, slug).Scan(&d)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return d, true, nil
}

// SaveRepairDescription upserts; concurrent writers for one slug resolve last write wins.
func (s *Store) SaveRepairDescription(ctx context.Context, slug, description string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO repair_descriptions (slug, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (slug) DO UPDATE SET
		   description = excluded.description,
		   updated_at = excluded.updated_at`,
		slug, description, now, now,
	)
	return err
}
