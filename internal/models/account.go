package models

import "time"

type AccountType string

const (
	AccountChecking AccountType = "checking"
	AccountSavings  AccountType = "savings"
)

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
)

// Account holds a balance in integer cents. Balance changes go through the
// ledger engine only; a user holds at most one account per type.
type Account struct {
	ID            int64         `json:"id"`
	UserID        int64         `json:"user_id"`
	AccountNumber string        `json:"account_number"`
	AccountType   AccountType   `json:"account_type"`
	Status        AccountStatus `json:"status"`
	BalanceCents  int64         `json:"balance_cents"`
	CreatedAt     time.Time     `json:"created_at"`
}
