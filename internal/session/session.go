// Package session implements the session authority: issuing, validating,
// revoking, and sweeping persisted login sessions.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lumibank/backend/internal/auth"
	"github.com/lumibank/backend/internal/models"
	"github.com/lumibank/backend/internal/storage"
)

// Reason codes carried in RevokeResult. The presentation layer owns the
// user-facing strings.
const (
	ReasonRevoked    = "revoked"
	ReasonNoSession  = "no_session"
	ReasonStoreError = "store_error"
)

// RevokeResult is the structured outcome of a logout. Revoked reports whether
// a server-side record was deleted; the client cookie is cleared by the
// caller regardless.
type RevokeResult struct {
	Revoked bool   `json:"success"`
	Reason  string `json:"reason"`
}

// Authority issues signed, time-bounded tokens and manages their persisted
// records. The record's expiry is the source of truth: revoking a session is
// effective even while its token's own expiry claim is still in the future.
type Authority struct {
	store  storage.Store
	tokens *auth.TokenManager
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewAuthority constructs a session authority with the given session lifetime.
func NewAuthority(store storage.Store, tokens *auth.TokenManager, ttl time.Duration, logger *slog.Logger) *Authority {
	return &Authority{store: store, tokens: tokens, ttl: ttl, logger: logger, now: time.Now}
}

// Issue creates a session for the user and returns its token and expiry.
// Before issuing, the user's already-expired session rows are cleaned up
// opportunistically; a cleanup failure is logged, not fatal.
func (a *Authority) Issue(ctx context.Context, userID int64) (string, time.Time, error) {
	if n, err := a.store.DeleteExpiredUserSessions(ctx, userID, a.now()); err != nil {
		a.logger.Warn("expired session cleanup failed", "user_id", userID, "error", err)
	} else if n > 0 {
		a.logger.Debug("cleaned up expired sessions", "user_id", userID, "deleted", n)
	}

	token, _, err := a.tokens.Generate(userID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}

	// The persisted expiry is computed independently of the token claim.
	expiresAt := a.now().Add(a.ttl)
	record := models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: a.now(),
	}
	if err := a.store.CreateSession(ctx, record); err != nil {
		return "", time.Time{}, fmt.Errorf("persist session: %w", err)
	}
	return token, expiresAt, nil
}

// Validate resolves a token to an identity. It fails closed: a bad signature,
// a malformed token, a missing record, or an expired record all yield no
// identity and never an error. A session is valid strictly before its expiry
// instant and invalid at and after it.
func (a *Authority) Validate(ctx context.Context, token string) (models.Identity, bool) {
	if token == "" {
		return models.Identity{}, false
	}
	userID, err := a.tokens.Parse(token)
	if err != nil {
		return models.Identity{}, false
	}
	record, err := a.store.FindSessionByToken(ctx, token)
	if err != nil {
		return models.Identity{}, false
	}
	if !a.now().Before(record.ExpiresAt) {
		return models.Identity{}, false
	}
	if record.UserID != userID {
		return models.Identity{}, false
	}
	return models.Identity{UserID: record.UserID}, true
}

// RevokeOne deletes the session matching token. Idempotent: an unknown or
// empty token reports no_session rather than an error.
func (a *Authority) RevokeOne(ctx context.Context, token string) RevokeResult {
	if token == "" {
		return RevokeResult{Revoked: false, Reason: ReasonNoSession}
	}
	deleted, err := a.store.DeleteSessionByToken(ctx, token)
	if err != nil {
		a.logger.Error("session delete failed", "error", err)
		return RevokeResult{Revoked: false, Reason: ReasonStoreError}
	}
	if !deleted {
		return RevokeResult{Revoked: false, Reason: ReasonNoSession}
	}
	return RevokeResult{Revoked: true, Reason: ReasonRevoked}
}

// RevokeAllOthers deletes every session owned by userID except the one
// matching currentToken, in one statement. When currentToken is unknown or
// empty the match excludes nothing, so every session goes: when in doubt,
// revoke everything.
func (a *Authority) RevokeAllOthers(ctx context.Context, userID int64, currentToken string) (int64, error) {
	n, err := a.store.DeleteSessionsForUserExcept(ctx, userID, currentToken)
	if err != nil {
		return 0, fmt.Errorf("revoke other sessions: %w", err)
	}
	return n, nil
}

// SweepExpired deletes every session record whose expiry has passed. Safe to
// call with nothing to do, and callable without authentication.
func (a *Authority) SweepExpired(ctx context.Context) (int64, error) {
	n, err := a.store.DeleteExpiredSessions(ctx, a.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	return n, nil
}

// SweepExpiredForUser is SweepExpired scoped to one user.
func (a *Authority) SweepExpiredForUser(ctx context.Context, userID int64) (int64, error) {
	n, err := a.store.DeleteExpiredUserSessions(ctx, userID, a.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	return n, nil
}
