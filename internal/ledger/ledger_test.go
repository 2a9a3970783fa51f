package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumibank/backend/internal/models"
	"github.com/lumibank/backend/internal/storage"
	"github.com/lumibank/backend/internal/storage/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewEngine(store, discardLogger()), store
}

func cardFunding(accountID, amountCents int64) FundRequest {
	return FundRequest{
		AccountID:   accountID,
		AmountCents: amountCents,
		Source:      FundingSource{Type: FundingSourceCard, AccountNumber: "4111111111111111"},
	}
}

func TestOpenAccount(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	account, err := engine.OpenAccount(ctx, 1, models.AccountChecking)
	require.NoError(t, err)
	assert.Len(t, account.AccountNumber, 10)
	assert.Equal(t, models.AccountActive, account.Status)
	assert.Zero(t, account.BalanceCents)

	// A savings account for the same user is fine; a second checking is not.
	_, err = engine.OpenAccount(ctx, 1, models.AccountSavings)
	require.NoError(t, err)
	_, err = engine.OpenAccount(ctx, 1, models.AccountChecking)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	_, err = engine.OpenAccount(ctx, 1, models.AccountType("money-market"))
	assert.ErrorIs(t, err, ErrInvalidAccountType)
}

// numberSquatter reports every candidate account number as taken.
type numberSquatter struct {
	storage.Store
	checks int
}

func (s *numberSquatter) AccountNumberInUse(ctx context.Context, number string) (bool, error) {
	s.checks++
	return true, nil
}

func TestOpenAccount_NumberRetryIsBounded(t *testing.T) {
	squatter := &numberSquatter{Store: memory.New()}
	engine := NewEngine(squatter, discardLogger())

	_, err := engine.OpenAccount(context.Background(), 1, models.AccountChecking)
	assert.ErrorIs(t, err, ErrNumberSpaceExhausted)
	assert.Equal(t, maxNumberAttempts, squatter.checks)
}

func TestFund_Preconditions(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	account, err := engine.OpenAccount(ctx, 1, models.AccountChecking)
	require.NoError(t, err)

	_, err = engine.Fund(ctx, 1, cardFunding(account.ID, 0))
	assert.ErrorIs(t, err, ErrAmountNotPositive)
	_, err = engine.Fund(ctx, 1, cardFunding(account.ID, -500))
	assert.ErrorIs(t, err, ErrAmountNotPositive)

	// Bank transfers need a routing number; the same payload as card does not.
	bank := FundRequest{
		AccountID:   account.ID,
		AmountCents: 1000,
		Source:      FundingSource{Type: FundingSourceBank, AccountNumber: "987654321"},
	}
	_, err = engine.Fund(ctx, 1, bank)
	assert.ErrorIs(t, err, ErrRoutingRequired)

	bank.Source.RoutingNumber = "021000021"
	_, err = engine.Fund(ctx, 1, bank)
	assert.NoError(t, err)

	card := bank
	card.Source = FundingSource{Type: FundingSourceCard, AccountNumber: "987654321"}
	_, err = engine.Fund(ctx, 1, card)
	assert.NoError(t, err, "card funding never requires a routing number")

	_, err = engine.Fund(ctx, 1, FundRequest{
		AccountID:   account.ID,
		AmountCents: 1000,
		Source:      FundingSource{Type: "crypto"},
	})
	assert.ErrorIs(t, err, ErrInvalidFundingSource)

	// Another user's account is indistinguishable from a missing one.
	_, err = engine.Fund(ctx, 2, cardFunding(account.ID, 1000))
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = engine.Fund(ctx, 1, cardFunding(9999, 1000))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFund_RejectsInactiveAccount(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	suspended, err := store.CreateAccount(ctx, models.Account{
		UserID:        1,
		AccountNumber: "0000000001",
		AccountType:   models.AccountChecking,
		Status:        models.AccountSuspended,
	})
	require.NoError(t, err)

	_, err = engine.Fund(ctx, 1, cardFunding(suspended.ID, 1000))
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestFund_AppliesEntryAndBalanceTogether(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	account, err := engine.OpenAccount(ctx, 1, models.AccountChecking)
	require.NoError(t, err)

	result, err := engine.Fund(ctx, 1, cardFunding(account.ID, 2500))
	require.NoError(t, err)
	assert.Equal(t, int64(2500), result.NewBalanceCents)
	assert.Equal(t, models.TransactionDeposit, result.Transaction.Kind)
	assert.Equal(t, int64(2500), result.Transaction.AmountCents)
	assert.Equal(t, "Funding from card", result.Transaction.Description)
	assert.Equal(t, models.TransactionCompleted, result.Transaction.Status)
	require.NotNil(t, result.Transaction.ProcessedAt)

	reloaded, err := store.FindUserAccount(ctx, account.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), reloaded.BalanceCents)
	assert.Equal(t, 1, store.TransactionCount())
}

// balanceFailer lets the ledger entry insert succeed and then fails the
// balance update, simulating a crash between the two writes.
type balanceFailer struct {
	storage.Store
}

func (s *balanceFailer) AddToBalance(ctx context.Context, accountID, deltaCents int64) (int64, error) {
	return 0, errors.New("simulated failure between writes")
}

func (s *balanceFailer) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	return s.Store.WithTx(ctx, func(tx storage.Store) error {
		return fn(&balanceFailer{Store: tx})
	})
}

func TestFund_AtomicRollback(t *testing.T) {
	store := memory.New()
	engine := NewEngine(&balanceFailer{Store: store}, discardLogger())
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, models.Account{
		UserID:        1,
		AccountNumber: "0000000002",
		AccountType:   models.AccountChecking,
		Status:        models.AccountActive,
	})
	require.NoError(t, err)

	_, err = engine.Fund(ctx, 1, cardFunding(account.ID, 1000))
	require.Error(t, err)

	// Neither the ledger entry nor the balance change may persist.
	assert.Equal(t, 0, store.TransactionCount())
	reloaded, err := store.FindUserAccount(ctx, account.ID, 1)
	require.NoError(t, err)
	assert.Zero(t, reloaded.BalanceCents)
}

func TestFund_ConcurrentDepositsConverge(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	account, err := engine.OpenAccount(ctx, 1, models.AccountChecking)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, amount := range []int64{1000, 2500} {
		wg.Add(1)
		go func(cents int64) {
			defer wg.Done()
			_, err := engine.Fund(ctx, 1, cardFunding(account.ID, cents))
			assert.NoError(t, err)
		}(amount)
	}
	wg.Wait()

	reloaded, err := store.FindUserAccount(ctx, account.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), reloaded.BalanceCents, "no increment may be lost")
	assert.Equal(t, 2, store.TransactionCount())
}

func TestListTransactions_OrderAndPagination(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	account, err := engine.OpenAccount(ctx, 1, models.AccountSavings)
	require.NoError(t, err)

	at := func(date string) time.Time {
		ts, err := time.Parse("2006-01-02", date)
		require.NoError(t, err)
		return ts
	}
	for _, date := range []string{"2023-01-01", "2025-12-01", "2024-06-01"} {
		_, err := store.InsertTransaction(ctx, models.Transaction{
			AccountID:   account.ID,
			Kind:        models.TransactionDeposit,
			AmountCents: 100,
			Status:      models.TransactionCompleted,
			CreatedAt:   at(date),
		})
		require.NoError(t, err)
	}

	entries, err := engine.ListTransactions(ctx, 1, account.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, at("2025-12-01"), entries[0].CreatedAt)
	assert.Equal(t, at("2024-06-01"), entries[1].CreatedAt)
	assert.Equal(t, at("2023-01-01"), entries[2].CreatedAt)
	for _, entry := range entries {
		assert.Equal(t, models.AccountSavings, entry.AccountType, "entries carry the account type")
	}

	page, err := engine.ListTransactions(ctx, 1, account.ID, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, at("2024-06-01"), page[0].CreatedAt)
	assert.Equal(t, at("2023-01-01"), page[1].CreatedAt)

	empty, err := engine.ListTransactions(ctx, 1, account.ID, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = engine.ListTransactions(ctx, 2, account.ID, 0, 0)
	assert.ErrorIs(t, err, storage.ErrNotFound, "history is ownership-checked like funding")
}

func TestAccounts_ListsOnlyOwn(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	mine, err := engine.OpenAccount(ctx, 1, models.AccountChecking)
	require.NoError(t, err)
	_, err = engine.OpenAccount(ctx, 2, models.AccountChecking)
	require.NoError(t, err)

	accounts, err := engine.Accounts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, mine.ID, accounts[0].ID)
}
