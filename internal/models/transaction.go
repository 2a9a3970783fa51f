package models

import "time"

type TransactionKind string

const (
	TransactionDeposit    TransactionKind = "deposit"
	TransactionWithdrawal TransactionKind = "withdrawal"
)

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionPending   TransactionStatus = "pending"
)

// Transaction is an immutable ledger entry. The sum of an account's deposits
// minus withdrawals must always equal its current balance, which is why
// entries are only ever written inside the same atomic unit as the balance
// change they describe.
type Transaction struct {
	ID          int64             `json:"id"`
	AccountID   int64             `json:"account_id"`
	Kind        TransactionKind   `json:"kind"`
	AmountCents int64             `json:"amount_cents"`
	Description string            `json:"description"`
	Status      TransactionStatus `json:"status"`
	AccountType AccountType       `json:"account_type,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
}
