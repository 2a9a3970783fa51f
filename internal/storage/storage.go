package storage

import (
	"context"
	"errors"
	"time"

	"github.com/lumibank/backend/internal/models"
)

// ErrNotFound indicates a record does not exist. Lookups scoped to an owner
// return it for both "absent" and "owned by someone else" so existence never
// leaks across users.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict (duplicate email, or a
// second account of the same type for one user).
var ErrAlreadyExists = errors.New("record already exists")

// ErrDuplicateAccountNumber indicates the generated account number lost a
// uniqueness race; callers retry with a fresh number.
var ErrDuplicateAccountNumber = errors.New("account number already in use")

// Store captures all persistence operations used by the session authority and
// the ledger engine. No caller mutates balances or session rows outside it.
type Store interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	FindUserByID(ctx context.Context, id int64) (models.User, error)

	CreateSession(ctx context.Context, session models.Session) error
	FindSessionByToken(ctx context.Context, token string) (models.Session, error)
	// DeleteSessionByToken reports whether a row was actually deleted;
	// deleting an unknown token is not an error.
	DeleteSessionByToken(ctx context.Context, token string) (bool, error)
	// DeleteSessionsForUserExcept removes every session owned by userID whose
	// token differs from keepToken, in one statement. An empty keepToken
	// matches nothing, so all of the user's sessions go.
	DeleteSessionsForUserExcept(ctx context.Context, userID int64, keepToken string) (int64, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredUserSessions(ctx context.Context, userID int64, now time.Time) (int64, error)

	CreateAccount(ctx context.Context, account models.Account) (models.Account, error)
	AccountNumberInUse(ctx context.Context, number string) (bool, error)
	// FindUserAccount resolves an account by id and owner in a single query.
	FindUserAccount(ctx context.Context, accountID, userID int64) (models.Account, error)
	ListUserAccounts(ctx context.Context, userID int64) ([]models.Account, error)

	InsertTransaction(ctx context.Context, entry models.Transaction) (models.Transaction, error)
	// AddToBalance applies a signed delta and returns the resulting balance
	// read back from the same statement.
	AddToBalance(ctx context.Context, accountID, deltaCents int64) (int64, error)
	ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]models.Transaction, error)

	// WithTx runs fn against a transactional view of the store. Every write fn
	// performs is committed together or rolled back together.
	WithTx(ctx context.Context, fn func(Store) error) error
}
