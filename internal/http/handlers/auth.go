package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lumibank/backend/internal/http/httpx"
	"github.com/lumibank/backend/internal/http/respond"
	"github.com/lumibank/backend/internal/middleware"
	"github.com/lumibank/backend/internal/models"
	"github.com/lumibank/backend/internal/models/dto"
	"github.com/lumibank/backend/internal/phone"
	"github.com/lumibank/backend/internal/session"
	"github.com/lumibank/backend/internal/storage"
)

// AuthHandler owns signup, login, and the session lifecycle endpoints.
type AuthHandler struct {
	store    storage.Store
	sessions *session.Authority
	ttl      time.Duration
	logger   *slog.Logger
}

// NewAuthHandler constructs the handler. ttl is the session lifetime and the
// cookie Max-Age.
func NewAuthHandler(store storage.Store, sessions *session.Authority, ttl time.Duration, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{store: store, sessions: sessions, ttl: ttl, logger: logger}
}

// Register attaches auth routes to the mux.
func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/signup", h.handleSignup)
	mux.HandleFunc("/login", h.handleLogin)
	mux.HandleFunc("/logout", h.handleLogout)
	mux.HandleFunc("/logout/others", h.handleLogoutOthers)
	mux.HandleFunc("/sessions/cleanup", h.handleCleanup)
}

func (h *AuthHandler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if err := validateSignup(req); err != nil {
		respond.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	normalizedPhone, ok := phone.Format(req.PhoneNumber)
	if !ok {
		respond.Error(w, http.StatusBadRequest, "invalid phone number format")
		return
	}
	passwordHash, err := hashSecret(req.Password)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	// The SSN gets the same one-way hashing discipline as the password.
	ssnHash, err := hashSecret(req.SSN)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, "failed to hash ssn")
		return
	}

	user := models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: passwordHash,
		SSNHash:      ssnHash,
		Phone:        normalizedPhone,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		DateOfBirth:  strings.TrimSpace(req.DateOfBirth),
		Address:      strings.TrimSpace(req.Address),
		City:         strings.TrimSpace(req.City),
		State:        strings.ToUpper(strings.TrimSpace(req.State)),
		ZipCode:      strings.TrimSpace(req.ZipCode),
	}
	created, err := h.store.CreateUser(r.Context(), user)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			respond.Error(w, http.StatusConflict, "user already exists")
			return
		}
		h.logger.Error("create user failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.issueSession(w, r, http.StatusCreated, "user created", created)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		respond.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}
	user, err := h.store.FindUserByEmail(r.Context(), email)
	if err != nil {
		// Unknown email and wrong password are indistinguishable to the caller.
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("login lookup failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to fetch user")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respond.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.issueSession(w, r, http.StatusOK, "login successful", user)
}

// handleLogout revokes the caller's session. The cookie is cleared whether or
// not a server-side record was found; the structured result tells the caller
// which case it was.
func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.LogoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // body fallback is optional

	token := httpx.SessionToken(r, req.Session)
	result := h.sessions.RevokeOne(r.Context(), token)
	httpx.ClearSessionCookie(w)

	message := "logged out successfully"
	if !result.Revoked {
		message = "no active session found"
	}
	respond.JSON(w, http.StatusOK, message, result)
}

func (h *AuthHandler) handleLogoutOthers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	current := httpx.SessionToken(r, "")
	revoked, err := h.sessions.RevokeAllOthers(r.Context(), identity.UserID, current)
	if err != nil {
		h.logger.Error("revoke other sessions failed", "user_id", identity.UserID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to revoke sessions")
		return
	}
	respond.JSON(w, http.StatusOK, "other sessions revoked", map[string]int64{"revoked": revoked})
}

// handleCleanup sweeps expired sessions globally. Intended for periodic
// invocation; deliberately unauthenticated.
func (h *AuthHandler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	deleted, err := h.sessions.SweepExpired(r.Context())
	if err != nil {
		h.logger.Error("session sweep failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to clean up sessions")
		return
	}
	respond.JSON(w, http.StatusOK, "expired sessions cleaned up", map[string]int64{"deleted": deleted})
}

func (h *AuthHandler) issueSession(w http.ResponseWriter, r *http.Request, status int, message string, user models.User) {
	token, expiresAt, err := h.sessions.Issue(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("session issue failed", "user_id", user.ID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	httpx.SetSessionCookie(w, token, h.ttl)
	respond.JSON(w, status, message, dto.AuthResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// validateSignup checks field presence and the few shape rules the backend
// enforces itself; full format validation belongs to the front door.
func validateSignup(req dto.SignupRequest) error {
	switch {
	case strings.TrimSpace(req.Email) == "" || !strings.Contains(req.Email, "@"):
		return errors.New("a valid email is required")
	case len(req.Password) < 8:
		return errors.New("password must be at least 8 characters")
	case strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "":
		return errors.New("first and last name are required")
	case strings.TrimSpace(req.DateOfBirth) == "":
		return errors.New("date of birth is required")
	case !isDigits(req.SSN) || len(req.SSN) != 9:
		return errors.New("ssn must be 9 digits")
	case strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.City) == "":
		return errors.New("address and city are required")
	case len(strings.TrimSpace(req.State)) != 2:
		return errors.New("state must be a 2-letter code")
	case !isDigits(req.ZipCode) || len(req.ZipCode) != 5:
		return errors.New("zip code must be 5 digits")
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
