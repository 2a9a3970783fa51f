// Package memory provides an in-memory storage.Store used by tests. A single
// mutex serializes all mutation, and WithTx restores a snapshot on error so
// atomic-unit semantics match the Postgres store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lumibank/backend/internal/models"
	"github.com/lumibank/backend/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type state struct {
	users        map[int64]models.User
	sessions     map[string]models.Session
	accounts     map[int64]models.Account
	transactions []models.Transaction

	nextUserID    int64
	nextAccountID int64
	nextTxID      int64
}

func newState() *state {
	return &state{
		users:    make(map[int64]models.User),
		sessions: make(map[string]models.Session),
		accounts: make(map[int64]models.Account),
	}
}

func (st *state) clone() *state {
	cp := &state{
		users:         make(map[int64]models.User, len(st.users)),
		sessions:      make(map[string]models.Session, len(st.sessions)),
		accounts:      make(map[int64]models.Account, len(st.accounts)),
		transactions:  append([]models.Transaction(nil), st.transactions...),
		nextUserID:    st.nextUserID,
		nextAccountID: st.nextAccountID,
		nextTxID:      st.nextTxID,
	}
	for k, v := range st.users {
		cp.users[k] = v
	}
	for k, v := range st.sessions {
		cp.sessions[k] = v
	}
	for k, v := range st.accounts {
		cp.accounts[k] = v
	}
	return cp
}

// Store is the lock-holding handle. Transactional views share the same state
// but skip locking because WithTx already holds the mutex.
type Store struct {
	mu    *sync.Mutex
	state *state
	inTx  bool
}

func New() *Store {
	return &Store{mu: &sync.Mutex{}, state: newState()}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithTx serializes with all other access, runs fn on a view of the same
// state, and restores the pre-transaction snapshot if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(&Store{mu: s.mu, state: s.state, inTx: true}); err != nil {
		*s.state = *snapshot
		return err
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	defer s.lock()()
	for _, existing := range s.state.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return models.User{}, storage.ErrAlreadyExists
		}
	}
	s.state.nextUserID++
	user.ID = s.state.nextUserID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	s.state.users[user.ID] = user
	return user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	defer s.lock()()
	for _, user := range s.state.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return models.User{}, storage.ErrNotFound
}

func (s *Store) FindUserByID(ctx context.Context, id int64) (models.User, error) {
	defer s.lock()()
	user, ok := s.state.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return user, nil
}

func (s *Store) CreateSession(ctx context.Context, session models.Session) error {
	defer s.lock()()
	if _, exists := s.state.sessions[session.Token]; exists {
		return storage.ErrAlreadyExists
	}
	s.state.sessions[session.Token] = session
	return nil
}

func (s *Store) FindSessionByToken(ctx context.Context, token string) (models.Session, error) {
	defer s.lock()()
	session, ok := s.state.sessions[token]
	if !ok {
		return models.Session{}, storage.ErrNotFound
	}
	return session, nil
}

func (s *Store) DeleteSessionByToken(ctx context.Context, token string) (bool, error) {
	defer s.lock()()
	if _, ok := s.state.sessions[token]; !ok {
		return false, nil
	}
	delete(s.state.sessions, token)
	return true, nil
}

func (s *Store) DeleteSessionsForUserExcept(ctx context.Context, userID int64, keepToken string) (int64, error) {
	defer s.lock()()
	var deleted int64
	for token, session := range s.state.sessions {
		if session.UserID == userID && token != keepToken {
			delete(s.state.sessions, token)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	defer s.lock()()
	var deleted int64
	for token, session := range s.state.sessions {
		if !session.ExpiresAt.After(now) {
			delete(s.state.sessions, token)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) DeleteExpiredUserSessions(ctx context.Context, userID int64, now time.Time) (int64, error) {
	defer s.lock()()
	var deleted int64
	for token, session := range s.state.sessions {
		if session.UserID == userID && !session.ExpiresAt.After(now) {
			delete(s.state.sessions, token)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) CreateAccount(ctx context.Context, account models.Account) (models.Account, error) {
	defer s.lock()()
	for _, existing := range s.state.accounts {
		if existing.UserID == account.UserID && existing.AccountType == account.AccountType {
			return models.Account{}, storage.ErrAlreadyExists
		}
		if existing.AccountNumber == account.AccountNumber {
			return models.Account{}, storage.ErrDuplicateAccountNumber
		}
	}
	s.state.nextAccountID++
	account.ID = s.state.nextAccountID
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	s.state.accounts[account.ID] = account
	return account, nil
}

func (s *Store) AccountNumberInUse(ctx context.Context, number string) (bool, error) {
	defer s.lock()()
	for _, account := range s.state.accounts {
		if account.AccountNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) FindUserAccount(ctx context.Context, accountID, userID int64) (models.Account, error) {
	defer s.lock()()
	account, ok := s.state.accounts[accountID]
	if !ok || account.UserID != userID {
		return models.Account{}, storage.ErrNotFound
	}
	return account, nil
}

func (s *Store) ListUserAccounts(ctx context.Context, userID int64) ([]models.Account, error) {
	defer s.lock()()
	var accounts []models.Account
	for _, account := range s.state.accounts {
		if account.UserID == userID {
			accounts = append(accounts, account)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (s *Store) InsertTransaction(ctx context.Context, entry models.Transaction) (models.Transaction, error) {
	defer s.lock()()
	if _, ok := s.state.accounts[entry.AccountID]; !ok {
		return models.Transaction{}, storage.ErrNotFound
	}
	s.state.nextTxID++
	entry.ID = s.state.nextTxID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.state.transactions = append(s.state.transactions, entry)
	return entry, nil
}

func (s *Store) AddToBalance(ctx context.Context, accountID, deltaCents int64) (int64, error) {
	defer s.lock()()
	account, ok := s.state.accounts[accountID]
	if !ok {
		return 0, storage.ErrNotFound
	}
	account.BalanceCents += deltaCents
	s.state.accounts[accountID] = account
	return account.BalanceCents, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]models.Transaction, error) {
	defer s.lock()()
	var entries []models.Transaction
	for _, entry := range s.state.transactions {
		if entry.AccountID == accountID {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	if offset >= len(entries) {
		return nil, nil
	}
	entries = entries[offset:]
	if limit < len(entries) {
		entries = entries[:limit]
	}
	return append([]models.Transaction(nil), entries...), nil
}

// SessionCount reports the number of live session rows; test helper.
func (s *Store) SessionCount() int {
	defer s.lock()()
	return len(s.state.sessions)
}

// TransactionCount reports the number of ledger entries; test helper.
func (s *Store) TransactionCount() int {
	defer s.lock()()
	return len(s.state.transactions)
}
