// Package handler exposes the in-memory payment ledger over HTTP so
// development and demo setups can fund caller accounts without a real
// payment provider.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dplay/internal/payment"
	dErrors "dplay/pkg/domain-errors"
	"dplay/pkg/platform/httputil"
	"dplay/pkg/requestcontext"
)

// Handler wires ledger funding endpoints to the payment ledger.
type Handler struct {
	ledger *payment.Ledger
	logger *slog.Logger
}

func New(ledger *payment.Ledger, logger *slog.Logger) *Handler {
	return &Handler{ledger: ledger, logger: logger}
}

// Register mounts the ledger endpoints. Callers mount these behind the
// bearer-token middleware.
func (h *Handler) Register(r chi.Router) {
	r.Post("/payments/deposits", h.HandleDeposit)
	r.Get("/payments/balance", h.HandleBalance)
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// HandleDeposit handles POST /payments/deposits requests, crediting the
// caller's ledger account.
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	req, ok := httputil.Decode[depositRequest](w, r)
	if !ok {
		return
	}
	if req.Amount <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "deposit amount must be positive"))
		return
	}

	h.ledger.Deposit(caller, req.Amount)
	h.logger.InfoContext(ctx, "ledger account funded",
		"account", caller,
		"amount", req.Amount,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, balanceResponse{Balance: h.ledger.Balance(caller)})
}

// HandleBalance handles GET /payments/balance requests for the caller's
// account.
func (h *Handler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	caller := requestcontext.Caller(r.Context())
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, balanceResponse{Balance: h.ledger.Balance(caller)})
}
