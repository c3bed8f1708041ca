package domain

import "time"

type TransactionType string

const (
	TransactionDeduction TransactionType = "deduction"
	TransactionAddition  TransactionType = "addition"
)

type User struct {
	ID        int64
	Email     string
	Credits   int
	CreatedAt time.Time
}

// Transaction is one credit ledger entry. Amount is negative for deductions.
type Transaction struct {
	ID            int64
	UserID        int64
	Amount        int
	Type          TransactionType
	Description   string
	BalanceBefore int
	BalanceAfter  int
	Metadata      map[string]string
	CreatedAt     time.Time
}

type Stat struct {
	Key         string
	Value       int
	Category    string
	Description string
	LastUpdated time.Time
}
