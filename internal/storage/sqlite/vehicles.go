package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vehiclereport/internal/domain"
)

// Vehicle returns the document for year/make/model, or domain.ErrVehicleNotFound.
func (s *Store) Vehicle(ctx context.Context, year int, vehicleMake, model string) (domain.Vehicle, error) {
	var (
		id  int64
		doc string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document FROM vehicles WHERE year = ? AND make = ? AND model = ?`,
		year, vehicleMake, model,
	).Scan(&id, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Vehicle{}, domain.ErrVehicleNotFound
	}
	if err != nil {
		return domain.Vehicle{}, err
	}
	return decodeVehicle(id, doc)
}

// VehiclesInYears returns whichever of the requested model years exist, oldest first.
func (s *Store) VehiclesInYears(ctx context.Context, vehicleMake, model string, years []int) ([]domain.Vehicle, error) {
	if len(years) == 0 {
		return nil, nil
	}
	args := []any{vehicleMake, model}
	marks := make([]string, len(years))
	for i, y := range years {
		marks[i] = "?"
		args = append(args, y)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document FROM vehicles
		 WHERE make = ? AND model = ? AND year IN (`+strings.Join(marks, ",")+`)
		 ORDER BY year`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Vehicle
	for rows.Next() {
		var (
			id  int64
			doc string
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		v, err := decodeVehicle(id, doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// EachVehicle streams every stored document to fn. fn must not call back into the store.
func (s *Store) EachVehicle(ctx context.Context, fn func(domain.Vehicle) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document FROM vehicles ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  int64
			doc string
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return err
		}
		v, err := decodeVehicle(id, doc)
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *Store) CountVehicles(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicles`).Scan(&n)
	return n, err
}

// UpsertVehicles inserts or replaces documents keyed by year/make/model.
func (s *Store) UpsertVehicles(ctx context.Context, vehicles []domain.Vehicle) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO vehicles (year, make, model, document, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (year, make, model) DO UPDATE SET
		   document = excluded.document,
		   updated_at = excluded.updated_at`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := s.now()
	written := 0
	for _, v := range vehicles {
		if v.Year == 0 || strings.TrimSpace(v.Make) == "" || strings.TrimSpace(v.Model) == "" {
			return written, fmt.Errorf("vehicle %d: year, make and model are required", written)
		}
		v.ID = 0
		doc, err := json.Marshal(v)
		if err != nil {
			return written, err
		}
		if _, err := stmt.ExecContext(ctx, v.Year, v.Make, v.Model, string(doc), now); err != nil {
			return written, err
		}
		written++
	}
	return written, tx.Commit()
}

func decodeVehicle(id int64, doc string) (domain.Vehicle, error) {
	var v domain.Vehicle
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return domain.Vehicle{}, fmt.Errorf("decode vehicle %d: %w", id, err)
	}
	v.ID = id
	return v, nil
}
