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

func (s *Store) CreateUser(ctx context.Context, email string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, fmt.Errorf("email is required")
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (email, credits, created_at) VALUES (?, 0, ?)`, email, now)
	if err != nil {
		return domain.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: id, Email: email, CreatedAt: now}, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, credits, created_at FROM users WHERE email = ?`, strings.TrimSpace(email)))
}

func (s *Store) UserByID(ctx context.Context, id int64) (domain.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx,
		`SELECT id, email, credits, created_at FROM users WHERE id = ?`, id))
}

func (s *Store) scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.Credits, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, err
}

func (s *Store) Balance(ctx context.Context, userID int64) (int, error) {
	u, err := s.UserByID(ctx, userID)
	if err != nil {
		return 0, err
	}
	return u.Credits, nil
}

// DeductCredits removes amount from the user's balance if, and only if, the balance
// covers it. The balance check, the decrement and the ledger entry commit together.
func (s *Store) DeductCredits(ctx context.Context, userID int64, amount int, reason string, metadata map[string]string) (domain.Transaction, error) {
	if amount <= 0 {
		return domain.Transaction{}, fmt.Errorf("deduction amount must be positive, got %d", amount)
	}
	return s.applyCredits(ctx, userID, -amount, domain.TransactionDeduction, reason, metadata)
}

func (s *Store) AddCredits(ctx context.Context, userID int64, amount int, reason string, metadata map[string]string) (domain.Transaction, error) {
	if amount <= 0 {
		return domain.Transaction{}, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	return s.applyCredits(ctx, userID, amount, domain.TransactionAddition, reason, metadata)
}

func (s *Store) applyCredits(ctx context.Context, userID int64, delta int, kind domain.TransactionType, reason string, metadata map[string]string) (domain.Transaction, error) {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return domain.Transaction{}, err
	}
	if metadata == nil {
		meta = []byte("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transaction{}, err
	}
	defer tx.Rollback()

	var before int
	err = tx.QueryRowContext(ctx, `SELECT credits FROM users WHERE id = ?`, userID).Scan(&before)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.Transaction{}, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET credits = credits + ? WHERE id = ? AND credits + ? >= 0`,
		delta, userID, delta,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Transaction{}, fmt.Errorf("%w: balance %d, need %d", domain.ErrInsufficientCredits, before, -delta)
	}

	t := domain.Transaction{
		UserID:        userID,
		Amount:        delta,
		Type:          kind,
		Description:   reason,
		BalanceBefore: before,
		BalanceAfter:  before + delta,
		Metadata:      metadata,
		CreatedAt:     s.now(),
	}
	res, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, amount, type, description, balance_before, balance_after, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Amount, string(t.Type), t.Description, t.BalanceBefore, t.BalanceAfter, string(meta), t.CreatedAt,
	)
	if err != nil {
		return domain.Transaction{}, err
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return domain.Transaction{}, err
	}
	return t, tx.Commit()
}

// Transactions lists a user's ledger, newest first.
func (s *Store) Transactions(ctx context.Context, userID int64) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, type, description, balance_before, balance_after, metadata, created_at
		 FROM transactions WHERE user_id = ? ORDER BY id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var (
			t    domain.Transaction
			kind string
			meta string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &kind, &t.Description,
			&t.BalanceBefore, &t.BalanceAfter, &meta, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = domain.TransactionType(kind)
		if meta != "" && meta != "{}" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &t.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
