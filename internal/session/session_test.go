package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumibank/backend/internal/auth"
	"github.com/lumibank/backend/internal/models"
	"github.com/lumibank/backend/internal/storage"
	"github.com/lumibank/backend/internal/storage/memory"
)

const testTTL = 168 * time.Hour

func newTestAuthority(t *testing.T) (*Authority, *memory.Store) {
	t.Helper()
	store := memory.New()
	tokens := auth.NewTokenManager("test-secret", "test", testTTL)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuthority(store, tokens, testTTL, logger), store
}

func addSession(t *testing.T, store *memory.Store, userID int64, token string, expiresAt time.Time) {
	t.Helper()
	err := store.CreateSession(context.Background(), models.Session{
		ID:        token + "-id",
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestIssueAndValidate(t *testing.T) {
	authority, store := newTestAuthority(t)
	ctx := context.Background()

	token, expiresAt, err := authority.Issue(ctx, 1)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(testTTL), expiresAt, time.Minute)

	record, err := store.FindSessionByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), record.UserID)
	// The persisted expiry stands on its own, independent of the token claim.
	assert.Equal(t, expiresAt, record.ExpiresAt)

	identity, ok := authority.Validate(ctx, token)
	require.True(t, ok)
	assert.Equal(t, int64(1), identity.UserID)
}

func TestIssue_CleansUpExpiredSessions(t *testing.T) {
	authority, store := newTestAuthority(t)
	ctx := context.Background()

	addSession(t, store, 1, "stale", time.Now().Add(-time.Hour))
	addSession(t, store, 2, "other-user-stale", time.Now().Add(-time.Hour))

	_, _, err := authority.Issue(ctx, 1)
	require.NoError(t, err)

	_, err = store.FindSessionByToken(ctx, "stale")
	assert.ErrorIs(t, err, storage.ErrNotFound, "issuing must clean up the user's expired sessions")
	_, err = store.FindSessionByToken(ctx, "other-user-stale")
	assert.NoError(t, err, "cleanup is scoped to the issuing user")
}

func TestValidate_ExclusiveExpiryBoundary(t *testing.T) {
	authority, _ := newTestAuthority(t)
	ctx := context.Background()

	issuedAt := time.Now()
	authority.now = func() time.Time { return issuedAt }
	token, _, err := authority.Issue(ctx, 1)
	require.NoError(t, err)
	expiresAt := issuedAt.Add(testTTL)

	// Any instant strictly before expiry is valid.
	authority.now = func() time.Time { return expiresAt.Add(-time.Nanosecond) }
	_, ok := authority.Validate(ctx, token)
	assert.True(t, ok, "session must be valid strictly before its expiry")

	// The exact expiry instant is invalid.
	authority.now = func() time.Time { return expiresAt }
	_, ok = authority.Validate(ctx, token)
	assert.False(t, ok, "session must be rejected at its exact expiry instant")

	authority.now = func() time.Time { return expiresAt.Add(time.Second) }
	_, ok = authority.Validate(ctx, token)
	assert.False(t, ok)
}

func TestValidate_FailsClosed(t *testing.T) {
	authority, _ := newTestAuthority(t)
	ctx := context.Background()

	_, ok := authority.Validate(ctx, "")
	assert.False(t, ok, "empty token")

	_, ok = authority.Validate(ctx, "garbage.token.value")
	assert.False(t, ok, "malformed token")

	forged, _, err := auth.NewTokenManager("other-secret", "test", testTTL).Generate(1)
	require.NoError(t, err)
	_, ok = authority.Validate(ctx, forged)
	assert.False(t, ok, "token signed with the wrong secret")

	// Well-signed token with no matching session record.
	orphan, _, err := auth.NewTokenManager("test-secret", "test", testTTL).Generate(1)
	require.NoError(t, err)
	_, ok = authority.Validate(ctx, orphan)
	assert.False(t, ok, "token without a persisted session")
}

func TestRevokeOne(t *testing.T) {
	authority, store := newTestAuthority(t)
	ctx := context.Background()

	token, _, err := authority.Issue(ctx, 1)
	require.NoError(t, err)

	result := authority.RevokeOne(ctx, token)
	assert.Equal(t, RevokeResult{Revoked: true, Reason: ReasonRevoked}, result)
	assert.Equal(t, 0, store.SessionCount())

	// Idempotent: revoking again reports no_session, not an error.
	result = authority.RevokeOne(ctx, token)
	assert.Equal(t, RevokeResult{Revoked: false, Reason: ReasonNoSession}, result)

	result = authority.RevokeOne(ctx, "")
	assert.Equal(t, RevokeResult{Revoked: false, Reason: ReasonNoSession}, result)
}

func TestRevokeAllOthers(t *testing.T) {
	authority, store := newTestAuthority(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	addSession(t, store, 1, "A", future)
	addSession(t, store, 1, "B", future)
	addSession(t, store, 1, "C", future)

	revoked, err := authority.RevokeAllOthers(ctx, 1, "A")
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)
	_, err = store.FindSessionByToken(ctx, "A")
	assert.NoError(t, err, "the current session survives")
	assert.Equal(t, 1, store.SessionCount())
}

func TestRevokeAllOthers_UnknownTokenRevokesEverything(t *testing.T) {
	authority, store := newTestAuthority(t)
	ctx := context.Background()
	future := time.Now().Add(time.Hour)

	addSession(t, store, 1, "A", future)
	addSession(t, store, 1, "B", future)

	revoked, err := authority.RevokeAllOthers(ctx, 1, "unknown")
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)
	assert.Equal(t, 0, store.SessionCount())
}

func TestSweepExpired_DeletesExactSubset(t *testing.T) {
	authority, store := newTestAuthority(t)
	ctx := context.Background()

	now := time.Now()
	authority.now = func() time.Time { return now }

	addSession(t, store, 1, "long-gone", now.Add(-time.Hour))
	addSession(t, store, 1, "expires-now", now)
	addSession(t, store, 2, "still-live", now.Add(time.Minute))

	deleted, err := authority.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted, "expires_at <= now is the exact deletion set")

	_, err = store.FindSessionByToken(ctx, "still-live")
	assert.NoError(t, err)

	// Nothing left to do: the sweep is a no-op, not an error.
	deleted, err = authority.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestSweepExpiredForUser_Scoped(t *testing.T) {
	authority, store := newTestAuthority(t)
	ctx := context.Background()

	now := time.Now()
	authority.now = func() time.Time { return now }

	addSession(t, store, 1, "mine-stale", now.Add(-time.Hour))
	addSession(t, store, 2, "theirs-stale", now.Add(-time.Hour))

	deleted, err := authority.SweepExpiredForUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	_, err = store.FindSessionByToken(ctx, "theirs-stale")
	assert.NoError(t, err)
}
