package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumibank/backend/internal/models"
	"github.com/lumibank/backend/internal/storage"
)

// Ensure Store satisfies the storage.Store interface at compile time.
var _ storage.Store = (*Store)(nil)

// querier is the query surface shared by *pgxpool.Pool and pgx.Tx, so the
// same Store methods work inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides Postgres-backed persistence for users, sessions, accounts,
// and ledger entries.
type Store struct {
	db   querier
	pool *pgxpool.Pool // nil when this Store is a transactional view
}

// New connects a pool to the given database URL.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// WithTx runs fn against a Store bound to a single transaction. Nested calls
// reuse the surrounding transaction.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&Store{db: tx})
	})
}

const userColumns = `id, email, password_hash, ssn_hash, phone, first_name, last_name,
	date_of_birth, address, city, state, zip_code, created_at`

// CreateUser inserts a new user row. A duplicate email maps to
// storage.ErrAlreadyExists.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const query = `
	INSERT INTO users (email, password_hash, ssn_hash, phone, first_name, last_name,
		date_of_birth, address, city, state, zip_code)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	RETURNING ` + userColumns + `;`
	row := s.db.QueryRow(ctx, query,
		user.Email, user.PasswordHash, user.SSNHash, user.Phone,
		user.FirstName, user.LastName, user.DateOfBirth,
		user.Address, user.City, user.State, user.ZipCode)
	created, err := scanUser(row)
	if err != nil {
		return models.User{}, mapUniqueViolation(err)
	}
	return created, nil
}

// FindUserByEmail fetches a user by normalized email.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1;`, email)
	return scanUser(row)
}

// FindUserByID fetches a user by id.
func (s *Store) FindUserByID(ctx context.Context, id int64) (models.User, error) {
	row := s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1;`, id)
	return scanUser(row)
}

// CreateSession persists a session row.
func (s *Store) CreateSession(ctx context.Context, session models.Session) error {
	const query = `
	INSERT INTO sessions (id, user_id, token, expires_at, created_at)
	VALUES ($1, $2, $3, $4, $5);`
	_, err := s.db.Exec(ctx, query,
		session.ID, session.UserID, session.Token, session.ExpiresAt, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", mapUniqueViolation(err))
	}
	return nil
}

// FindSessionByToken fetches the session row matching a token.
func (s *Store) FindSessionByToken(ctx context.Context, token string) (models.Session, error) {
	const query = `
	SELECT id, user_id, token, expires_at, created_at
	FROM sessions WHERE token = $1;`
	var sess models.Session
	err := s.db.QueryRow(ctx, query, token).Scan(
		&sess.ID, &sess.UserID, &sess.Token, &sess.ExpiresAt, &sess.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, storage.ErrNotFound
		}
		return models.Session{}, fmt.Errorf("find session: %w", err)
	}
	return sess, nil
}

// DeleteSessionByToken removes at most one session and reports whether a row
// was deleted.
func (s *Store) DeleteSessionByToken(ctx context.Context, token string) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE token = $1;`, token)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteSessionsForUserExcept removes the user's other sessions in one
// statement. keepToken is never stored empty, so an empty keepToken clears
// every session the user holds.
func (s *Store) DeleteSessionsForUserExcept(ctx context.Context, userID int64, keepToken string) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND token <> $2;`, userID, keepToken)
	if err != nil {
		return 0, fmt.Errorf("delete other sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredSessions removes every session with expires_at <= now.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1;`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpiredUserSessions removes one user's sessions with expires_at <= now.
func (s *Store) DeleteExpiredUserSessions(ctx context.Context, userID int64, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND expires_at <= $2;`, userID, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired user sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

const accountColumns = `id, user_id, account_number, account_type, status, balance_cents, created_at`

// CreateAccount inserts an account row. Constraint violations map to
// storage.ErrAlreadyExists for a duplicate (user, type) pair and
// storage.ErrDuplicateAccountNumber for a lost number-uniqueness race.
func (s *Store) CreateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	const query = `
	INSERT INTO accounts (user_id, account_number, account_type, status, balance_cents)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING ` + accountColumns + `;`
	row := s.db.QueryRow(ctx, query,
		account.UserID, account.AccountNumber, account.AccountType,
		account.Status, account.BalanceCents)
	created, err := scanAccount(row)
	if err != nil {
		return models.Account{}, mapUniqueViolation(err)
	}
	return created, nil
}

// AccountNumberInUse reports whether any account holds the given number.
func (s *Store) AccountNumberInUse(ctx context.Context, number string) (bool, error) {
	var inUse bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE account_number = $1);`, number).Scan(&inUse)
	if err != nil {
		return false, fmt.Errorf("check account number: %w", err)
	}
	return inUse, nil
}

// FindUserAccount fetches an account by id and owner. An account owned by a
// different user is indistinguishable from one that does not exist.
func (s *Store) FindUserAccount(ctx context.Context, accountID, userID int64) (models.Account, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND user_id = $2;`,
		accountID, userID)
	return scanAccount(row)
}

// ListUserAccounts returns every account owned by the user.
func (s *Store) ListUserAccounts(ctx context.Context, userID int64) ([]models.Account, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY id;`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// InsertTransaction appends a ledger entry and returns it with generated
// fields populated.
func (s *Store) InsertTransaction(ctx context.Context, entry models.Transaction) (models.Transaction, error) {
	const query = `
	INSERT INTO transactions (account_id, kind, amount_cents, description, status, processed_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, created_at;`
	err := s.db.QueryRow(ctx, query,
		entry.AccountID, entry.Kind, entry.AmountCents, entry.Description,
		entry.Status, entry.ProcessedAt).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return entry, nil
}

// AddToBalance applies a signed delta to the account balance. The UPDATE takes
// a row lock, so concurrent funding of one account serializes here, and the
// returned balance is read back from the same statement.
func (s *Store) AddToBalance(ctx context.Context, accountID, deltaCents int64) (int64, error) {
	var balance int64
	err := s.db.QueryRow(ctx,
		`UPDATE accounts SET balance_cents = balance_cents + $2 WHERE id = $1 RETURNING balance_cents;`,
		accountID, deltaCents).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("update balance: %w", err)
	}
	return balance, nil
}

// ListTransactions returns one page of an account's ledger, most recent first.
func (s *Store) ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]models.Transaction, error) {
	const query = `
	SELECT id, account_id, kind, amount_cents, description, status, created_at, processed_at
	FROM transactions
	WHERE account_id = $1
	ORDER BY created_at DESC, id DESC
	LIMIT $2 OFFSET $3;`
	rows, err := s.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var entries []models.Transaction
	for rows.Next() {
		var entry models.Transaction
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Kind, &entry.AmountCents,
			&entry.Description, &entry.Status, &entry.CreatedAt, &entry.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.SSNHash, &user.Phone,
		&user.FirstName, &user.LastName, &user.DateOfBirth,
		&user.Address, &user.City, &user.State, &user.ZipCode, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var account models.Account
	err := row.Scan(&account.ID, &account.UserID, &account.AccountNumber,
		&account.AccountType, &account.Status, &account.BalanceCents, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, storage.ErrNotFound
		}
		return models.Account{}, err
	}
	return account, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == "accounts_account_number_key" {
			return storage.ErrDuplicateAccountNumber
		}
		return storage.ErrAlreadyExists
	}
	return err
}
