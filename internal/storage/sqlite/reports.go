package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"vehiclereport/internal/domain"
)

const reportColumns = `id, uuid, user_id, session_uuid, tier, year, make, model, mileage,
	params, status, result, error, created_at, updated_at, completed_at`

// CreateReport inserts r as pending and fills in its ID and timestamps.
func (s *Store) CreateReport(ctx context.Context, r *domain.Report) error {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return err
	}
	now := s.now()
	r.Status = domain.StatusPending
	r.CreatedAt, r.UpdatedAt = now, now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (uuid, user_id, session_uuid, tier, year, make, model, mileage, params, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UUID, nullableID(r.UserID), r.SessionUUID, string(r.Tier), r.Year, r.Make, r.Model, r.Mileage,
		string(params), string(r.Status), now, now,
	)
	if err != nil {
		return err
	}
	r.ID, err = res.LastInsertId()
	return err
}

func (s *Store) ReportByUUID(ctx context.Context, uuid string) (domain.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE uuid = ?`, uuid)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Report{}, fmt.Errorf("%w: %s", domain.ErrReportNotFound, uuid)
	}
	return r, err
}

// ClaimPending moves up to limit pending reports to processing and returns them. A report
// is handed to exactly one caller.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]domain.Report, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE status = ? ORDER BY id LIMIT ?`,
		string(domain.StatusPending), limit,
	)
	if err != nil {
		return nil, err
	}
	var pending []domain.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		pending = append(pending, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	claimed := pending[:0]
	for _, r := range pending {
		res, err := tx.ExecContext(ctx,
			`UPDATE reports SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(domain.StatusProcessing), now, r.ID, string(domain.StatusPending),
		)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n == 1 {
			r.Status = domain.StatusProcessing
			r.UpdatedAt = now
			claimed = append(claimed, r)
		}
	}
	return claimed, tx.Commit()
}

func (s *Store) MarkCompleted(ctx context.Context, id int64, result *domain.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	now := s.now()
	return s.updateReport(ctx,
		`UPDATE reports SET status = ?, result = ?, error = '', updated_at = ?, completed_at = ? WHERE id = ?`,
		string(domain.StatusCompleted), string(payload), now, now, id,
	)
}

func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.updateReport(ctx,
		`UPDATE reports SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(domain.StatusFailed), reason, s.now(), id,
	)
}

// RequeueProcessing returns reports stuck in processing (a crashed worker) to pending.
func (s *Store) RequeueProcessing(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET status = ?, updated_at = ? WHERE status = ?`,
		string(domain.StatusPending), s.now(), string(domain.StatusProcessing),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) updateReport(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (domain.Report, error) {
	var (
		r           domain.Report
		userID      sql.NullInt64
		tier        string
		status      string
		params      string
		result      sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(
		&r.ID, &r.UUID, &userID, &r.SessionUUID, &tier, &r.Year, &r.Make, &r.Model, &r.Mileage,
		&params, &status, &result, &r.Error, &r.CreatedAt, &r.UpdatedAt, &completedAt,
	)
	if err != nil {
		return domain.Report{}, err
	}
	r.Tier = domain.Tier(tier)
	r.Status = domain.ReportStatus(status)
	if userID.Valid {
		id := userID.Int64
		r.UserID = &id
	}
	if completedAt.Valid {
		at := completedAt.Time
		r.CompletedAt = &at
	}
	if params != "" {
		if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
			return domain.Report{}, fmt.Errorf("decode params of report %s: %w", r.UUID, err)
		}
	}
	if result.Valid && result.String != "" {
		r.Result = &domain.Result{}
		if err := json.Unmarshal([]byte(result.String), r.Result); err != nil {
			return domain.Report{}, fmt.Errorf("decode result of report %s: %w", r.UUID, err)
		}
	}
	return r, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
