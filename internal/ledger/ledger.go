// Package ledger implements the transaction engine: account creation with
// unique account numbers, atomic funding, and paginated history reads.
package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lumibank/backend/internal/models"
	"github.com/lumibank/backend/internal/storage"
)

var (
	// ErrInvalidAccountType rejects account types outside checking/savings.
	ErrInvalidAccountType = errors.New("account type must be checking or savings")

	// ErrAmountNotPositive rejects zero or negative funding amounts.
	ErrAmountNotPositive = errors.New("amount must be positive")

	// ErrAccountInactive rejects mutations against non-active accounts.
	ErrAccountInactive = errors.New("account is not active")

	// ErrRoutingRequired rejects bank-transfer funding without a routing number.
	ErrRoutingRequired = errors.New("routing number is required for bank transfers")

	// ErrInvalidFundingSource rejects funding source types outside card/bank.
	ErrInvalidFundingSource = errors.New("funding source must be card or bank")

	// ErrNumberSpaceExhausted signals the bounded account-number retry loop
	// ran out of attempts; it indicates a store problem, not caller error.
	ErrNumberSpaceExhausted = errors.New("could not allocate a unique account number")
)

const (
	// FundingSourceCard and FundingSourceBank are the accepted funding kinds.
	FundingSourceCard = "card"
	FundingSourceBank = "bank"

	maxNumberAttempts = 8
	defaultPageSize   = 10
)

// FundingSource describes where deposited money comes from.
type FundingSource struct {
	Type          string `json:"type"`
	AccountNumber string `json:"accountNumber"`
	RoutingNumber string `json:"routingNumber,omitempty"`
}

// FundRequest is a single funding operation against one account.
type FundRequest struct {
	AccountID   int64         `json:"account_id"`
	AmountCents int64         `json:"amount_cents"`
	Source      FundingSource `json:"funding_source"`
}

// FundResult carries the ledger entry and the balance read back from the same
// atomic unit that wrote it.
type FundResult struct {
	Transaction     models.Transaction `json:"transaction"`
	NewBalanceCents int64              `json:"new_balance_cents"`
}

// Engine performs all balance-affecting operations. Ledger entries and
// balance changes are written in one atomic unit, never separately.
type Engine struct {
	store  storage.Store
	logger *slog.Logger
}

// NewEngine constructs a ledger engine over the given store.
func NewEngine(store storage.Store, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// OpenAccount creates an account for the user with a fresh, collision-checked
// account number. A second account of the same type for one user is a
// conflict. The number-generation retry is bounded; exhaustion fails loudly
// instead of looping.
func (e *Engine) OpenAccount(ctx context.Context, userID int64, accountType models.AccountType) (models.Account, error) {
	switch accountType {
	case models.AccountChecking, models.AccountSavings:
	default:
		return models.Account{}, ErrInvalidAccountType
	}

	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		number, err := generateAccountNumber()
		if err != nil {
			return models.Account{}, fmt.Errorf("generate account number: %w", err)
		}
		inUse, err := e.store.AccountNumberInUse(ctx, number)
		if err != nil {
			return models.Account{}, fmt.Errorf("check account number: %w", err)
		}
		if inUse {
			continue
		}
		account, err := e.store.CreateAccount(ctx, models.Account{
			UserID:        userID,
			AccountNumber: number,
			AccountType:   accountType,
			Status:        models.AccountActive,
		})
		if errors.Is(err, storage.ErrDuplicateAccountNumber) {
			// Lost the check-then-insert race; try a fresh number.
			continue
		}
		if err != nil {
			return models.Account{}, err
		}
		return account, nil
	}
	e.logger.Error("account number generation exhausted", "user_id", userID)
	return models.Account{}, ErrNumberSpaceExhausted
}

// Fund deposits into an account the user owns. Ownership is enforced in the
// lookup query so a foreign account is indistinguishable from a missing one.
// The ledger insert and the balance update execute as one atomic unit; the
// returned balance comes from that unit, not a recomputation.
func (e *Engine) Fund(ctx context.Context, userID int64, req FundRequest) (FundResult, error) {
	if req.AmountCents <= 0 {
		return FundResult{}, ErrAmountNotPositive
	}
	switch req.Source.Type {
	case FundingSourceCard:
	case FundingSourceBank:
		if strings.TrimSpace(req.Source.RoutingNumber) == "" {
			return FundResult{}, ErrRoutingRequired
		}
	default:
		return FundResult{}, ErrInvalidFundingSource
	}

	account, err := e.store.FindUserAccount(ctx, req.AccountID, userID)
	if err != nil {
		return FundResult{}, err
	}
	if account.Status != models.AccountActive {
		return FundResult{}, ErrAccountInactive
	}

	var result FundResult
	err = e.store.WithTx(ctx, func(tx storage.Store) error {
		now := time.Now()
		entry, err := tx.InsertTransaction(ctx, models.Transaction{
			AccountID:   account.ID,
			Kind:        models.TransactionDeposit,
			AmountCents: req.AmountCents,
			Description: fmt.Sprintf("Funding from %s", req.Source.Type),
			Status:      models.TransactionCompleted,
			ProcessedAt: &now,
		})
		if err != nil {
			return fmt.Errorf("record ledger entry: %w", err)
		}
		balance, err := tx.AddToBalance(ctx, account.ID, req.AmountCents)
		if err != nil {
			return fmt.Errorf("apply balance change: %w", err)
		}
		result = FundResult{Transaction: entry, NewBalanceCents: balance}
		return nil
	})
	if err != nil {
		return FundResult{}, err
	}
	return result, nil
}

// ListTransactions returns one page of the account's history, most recent
// first, with each entry annotated with the account's type. Pages are
// stateless; callers advance offset themselves.
func (e *Engine) ListTransactions(ctx context.Context, userID, accountID int64, limit, offset int) ([]models.Transaction, error) {
	account, err := e.store.FindUserAccount(ctx, accountID, userID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := e.store.ListTransactions(ctx, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].AccountType = account.AccountType
	}
	return entries, nil
}

// Accounts returns every account the user owns.
func (e *Engine) Accounts(ctx context.Context, userID int64) ([]models.Account, error) {
	return e.store.ListUserAccounts(ctx, userID)
}

// generateAccountNumber builds a 10-digit number from 5 random bytes, each
// zero-padded to three decimal digits.
func generateAccountNumber() (string, error) {
	var buf [5]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	var b strings.Builder
	for _, v := range buf {
		fmt.Fprintf(&b, "%03d", v)
	}
	return b.String()[:10], nil
}
