package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/lumibank/backend/internal/http/respond"
	"github.com/lumibank/backend/internal/ledger"
	"github.com/lumibank/backend/internal/middleware"
	"github.com/lumibank/backend/internal/models"
	"github.com/lumibank/backend/internal/models/dto"
	"github.com/lumibank/backend/internal/storage"
)

// AccountHandler owns the account and ledger endpoints. Every route requires
// a resolved identity.
type AccountHandler struct {
	engine *ledger.Engine
	logger *slog.Logger
}

// NewAccountHandler constructs the handler.
func NewAccountHandler(engine *ledger.Engine, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{engine: engine, logger: logger}
}

// Register attaches account routes to the mux.
func (h *AccountHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/accounts", h.handleAccounts)
	mux.HandleFunc("/accounts/fund", h.handleFund)
	mux.HandleFunc("/accounts/transactions", h.handleTransactions)
}

func (h *AccountHandler) handleAccounts(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	switch r.Method {
	case http.MethodPost:
		h.createAccount(w, r, identity)
	case http.MethodGet:
		h.listAccounts(w, r, identity)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AccountHandler) createAccount(w http.ResponseWriter, r *http.Request, identity models.Identity) {
	var req dto.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	account, err := h.engine.OpenAccount(r.Context(), identity.UserID, models.AccountType(req.AccountType))
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidAccountType):
			respond.Error(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, storage.ErrAlreadyExists):
			respond.Error(w, http.StatusConflict, "you already have a "+req.AccountType+" account")
		default:
			h.logger.Error("open account failed", "user_id", identity.UserID, "error", err)
			respond.Error(w, http.StatusInternalServerError, "failed to create account")
		}
		return
	}
	respond.JSON(w, http.StatusCreated, "account created", account)
}

func (h *AccountHandler) listAccounts(w http.ResponseWriter, r *http.Request, identity models.Identity) {
	accounts, err := h.engine.Accounts(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("list accounts failed", "user_id", identity.UserID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	respond.JSON(w, http.StatusOK, "accounts", accounts)
}

func (h *AccountHandler) handleFund(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req dto.FundAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	result, err := h.engine.Fund(r.Context(), identity.UserID, ledger.FundRequest{
		AccountID:   req.AccountID,
		AmountCents: req.AmountCents,
		Source:      req.FundingSource,
	})
	if err != nil {
		h.writeFundError(w, identity, err)
		return
	}
	respond.JSON(w, http.StatusOK, "account funded", result)
}

func (h *AccountHandler) writeFundError(w http.ResponseWriter, identity models.Identity, err error) {
	switch {
	case errors.Is(err, ledger.ErrAmountNotPositive),
		errors.Is(err, ledger.ErrRoutingRequired),
		errors.Is(err, ledger.ErrInvalidFundingSource),
		errors.Is(err, ledger.ErrAccountInactive):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		respond.Error(w, http.StatusNotFound, "account not found")
	default:
		h.logger.Error("fund failed", "user_id", identity.UserID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to fund account")
	}
}

func (h *AccountHandler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	accountID, err := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "account_id is required")
		return
	}
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	entries, err := h.engine.ListTransactions(r.Context(), identity.UserID, accountID, limit, offset)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "account not found")
			return
		}
		h.logger.Error("list transactions failed", "user_id", identity.UserID, "error", err)
		respond.Error(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	respond.JSON(w, http.StatusOK, "transactions", entries)
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
