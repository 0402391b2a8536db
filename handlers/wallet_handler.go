package handlers

import (
	"net/http"

	"github.com/khelarena/arena-admin/services"
)

type WalletHandler struct {
	admin services.AdminService
}

func NewWalletHandler(admin services.AdminService) *WalletHandler {
	return &WalletHandler{admin: admin}
}

type creditInput struct {
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

// CreditHandler handles POST /admin/users/{userID}/wallet/credits. The
// client supplies the idempotency key, so a retry after a timeout lands
// on the same ledger entry instead of double-crediting.
func (h *WalletHandler) CreditHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input creditInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.IdempotencyKey == "" {
		input.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	balance, err := h.admin.CreditUserWallet(r.Context(), userID, input.Amount, input.IdempotencyKey)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user_id": userID, "balance": balance}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetBalanceHandler handles GET /admin/users/{userID}/wallet.
func (h *WalletHandler) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	balance, err := h.admin.GetWalletBalance(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user_id": userID, "balance": balance}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListEntriesHandler handles GET /admin/users/{userID}/wallet/entries,
// the audit view of every applied delta.
func (h *WalletHandler) ListEntriesHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := getIDFromURL(r, "userID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	entries, err := h.admin.ListWalletEntries(r.Context(), userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"user_id": userID, "entries": entries}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
