// Package handler exposes the registry ledger over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dplay/internal/eventlog"
	"dplay/internal/registry/models"
	id "dplay/pkg/domain"
	dErrors "dplay/pkg/domain-errors"
	"dplay/pkg/platform/httputil"
	"dplay/pkg/requestcontext"
)

// Service defines the registry operations the HTTP surface depends on.
type Service interface {
	RegisterListing(ctx context.Context, name, category, contentRef string, price, paidAmount int64, caller id.Identity) (id.ListingID, error)
	InstallListing(ctx context.Context, listingID id.ListingID, paidAmount int64, caller id.Identity) error
	RateListing(ctx context.Context, listingID id.ListingID, score int, caller id.Identity) error
	VerifyListing(ctx context.Context, listingID id.ListingID, caller id.Identity) error
	WithdrawBalance(ctx context.Context, caller id.Identity) (int64, error)
	GetListing(ctx context.Context, listingID id.ListingID) (*models.Listing, error)
	ListListings(ctx context.Context, category string) ([]*models.Listing, error)
	HasInstalled(ctx context.Context, installer id.Identity, listingID id.ListingID) (bool, error)
	Stats(ctx context.Context) (models.Stats, error)
	ListEvents(ctx context.Context, listingID id.ListingID) ([]eventlog.Event, error)
}

// Handler wires registry endpoints to the ledger service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a registry handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the unauthenticated read endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/listings", h.HandleListListings)
	r.Get("/listings/{listingID}", h.HandleGetListing)
	r.Get("/listings/{listingID}/installed", h.HandleHasInstalled)
	r.Get("/listings/{listingID}/events", h.HandleListEvents)
	r.Get("/stats", h.HandleStats)
}

// RegisterAuthed mounts the write endpoints. Callers mount these behind the
// bearer-token middleware so a caller identity is always present.
func (h *Handler) RegisterAuthed(r chi.Router) {
	r.Post("/listings", h.HandleRegisterListing)
	r.Post("/listings/{listingID}/install", h.HandleInstallListing)
	r.Post("/listings/{listingID}/rating", h.HandleRateListing)
}

// RegisterAdmin mounts the administrator-only endpoints. Callers mount these
// behind the admin guard middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/listings/{listingID}/verify", h.HandleVerifyListing)
	r.Post("/admin/withdrawals", h.HandleWithdrawBalance)
}

// HandleRegisterListing handles POST /listings requests.
func (h *Handler) HandleRegisterListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.Decode[registerListingRequest](w, r)
	if !ok {
		return
	}

	listingID, err := h.service.RegisterListing(ctx, req.Name, req.Category, req.ContentRef,
		req.Price, req.PaidAmount, caller)
	if err != nil {
		h.logger.ErrorContext(ctx, "listing registration failed",
			"request_id", requestID,
			"name", req.Name,
			"caller", caller,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "listing registration handled",
		"request_id", requestID,
		"listing_id", listingID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, registerListingResponse{ListingID: int64(listingID)})
}

// HandleInstallListing handles POST /listings/{listingID}/install requests.
func (h *Handler) HandleInstallListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	listingID, ok := h.listingID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[installListingRequest](w, r)
	if !ok {
		return
	}

	if err := h.service.InstallListing(ctx, listingID, req.PaidAmount, caller); err != nil {
		h.logger.ErrorContext(ctx, "listing install failed",
			"request_id", requestcontext.RequestID(ctx),
			"listing_id", listingID,
			"caller", caller,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRateListing handles POST /listings/{listingID}/rating requests.
func (h *Handler) HandleRateListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	listingID, ok := h.listingID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[rateListingRequest](w, r)
	if !ok {
		return
	}

	if err := h.service.RateListing(ctx, listingID, req.Score, caller); err != nil {
		h.logger.ErrorContext(ctx, "listing rating failed",
			"request_id", requestcontext.RequestID(ctx),
			"listing_id", listingID,
			"caller", caller,
			"score", req.Score,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleGetListing handles GET /listings/{listingID} requests.
func (h *Handler) HandleGetListing(w http.ResponseWriter, r *http.Request) {
	listingID, ok := h.listingID(w, r)
	if !ok {
		return
	}

	listing, err := h.service.GetListing(r.Context(), listingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromListing(listing))
}

// HandleListListings handles GET /listings requests. The optional category
// query parameter filters the catalog.
func (h *Handler) HandleListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.service.ListListings(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromListings(listings))
}

// HandleHasInstalled handles GET /listings/{listingID}/installed requests.
// The identity query parameter overrides the authenticated caller, so any
// client can check any identity's install status.
func (h *Handler) HandleHasInstalled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	listingID, ok := h.listingID(w, r)
	if !ok {
		return
	}
	installer := id.Identity(r.URL.Query().Get("identity"))
	if installer.IsZero() {
		installer = requestcontext.Caller(ctx)
	}
	if installer.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "identity is required"))
		return
	}

	installed, err := h.service.HasInstalled(ctx, installer, listingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, installedResponse{Installed: installed})
}

// HandleListEvents handles GET /listings/{listingID}/events requests.
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	listingID, ok := h.listingID(w, r)
	if !ok {
		return
	}

	events, err := h.service.ListEvents(r.Context(), listingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if events == nil {
		events = []eventlog.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

// HandleStats handles GET /stats requests.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// HandleVerifyListing handles POST /admin/listings/{listingID}/verify requests.
func (h *Handler) HandleVerifyListing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	listingID, ok := h.listingID(w, r)
	if !ok {
		return
	}

	if err := h.service.VerifyListing(ctx, listingID, caller); err != nil {
		h.logger.ErrorContext(ctx, "listing verification failed",
			"request_id", requestcontext.RequestID(ctx),
			"listing_id", listingID,
			"caller", caller,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleWithdrawBalance handles POST /admin/withdrawals requests.
func (h *Handler) HandleWithdrawBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller := requestcontext.Caller(ctx)
	if caller.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	amount, err := h.service.WithdrawBalance(ctx, caller)
	if err != nil {
		h.logger.ErrorContext(ctx, "withdrawal failed",
			"request_id", requestcontext.RequestID(ctx),
			"caller", caller,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, withdrawalResponse{Amount: amount})
}

func (h *Handler) listingID(w http.ResponseWriter, r *http.Request) (id.ListingID, bool) {
	listingID, err := id.ParseListingID(chi.URLParam(r, "listingID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid listing id"))
		return 0, false
	}
	return listingID, true
}
