// Package service implements the registry ledger's rules layer: listing
// registration, paid/free installation with fee routing, rating aggregation,
// access-controlled verification, and fee withdrawal.
//
// Every write operation validates all preconditions against current state,
// executes the pending payment transfer, and only then commits its mutations
// and event append, all inside one transactional unit. Any failure leaves the
// ledger untouched.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dplay/internal/eventlog"
	"dplay/internal/payment"
	registrymetrics "dplay/internal/registry/metrics"
	"dplay/internal/registry/models"
	id "dplay/pkg/domain"
	dErrors "dplay/pkg/domain-errors"
	"dplay/pkg/platform/sentinel"
	"dplay/pkg/requestcontext"
)

// Service is the registry ledger. It exclusively owns listings, install
// records, and the registry account; external collaborators only call the
// exported operations.
type Service struct {
	listings ListingStore
	installs InstallStore
	accounts AccountStore
	events   eventlog.Store
	channel  payment.Channel
	tx       StoreTx

	// treasury holds registration fees inside the payment channel until the
	// administrator withdraws them.
	treasury id.Identity

	logger  *slog.Logger
	metrics *registrymetrics.Metrics
	tracer  trace.Tracer
}

// DefaultTreasury is the payment channel account that accumulates fees.
const DefaultTreasury = id.Identity("dplay:treasury")

type serviceConfig struct {
	treasury id.Identity
	logger   *slog.Logger
	metrics  *registrymetrics.Metrics
}

// Option configures optional service dependencies.
type Option func(*serviceConfig)

// WithTreasury overrides the treasury account identity.
func WithTreasury(treasury id.Identity) Option {
	return func(c *serviceConfig) { c.treasury = treasury }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) { c.logger = logger }
}

// WithMetrics sets the Prometheus metrics collector.
func WithMetrics(m *registrymetrics.Metrics) Option {
	return func(c *serviceConfig) { c.metrics = m }
}

// New constructs the registry ledger service.
func New(listings ListingStore, installs InstallStore, accounts AccountStore,
	events eventlog.Store, channel payment.Channel, tx StoreTx, opts ...Option) *Service {
	cfg := &serviceConfig{
		treasury: DefaultTreasury,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Service{
		listings: listings,
		installs: installs,
		accounts: accounts,
		events:   events,
		channel:  channel,
		tx:       tx,
		treasury: cfg.treasury,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		tracer:   otel.Tracer("dplay/registry"),
	}
}

// RegisterListing publishes a new listing. The registration fee moves from
// the caller to the treasury; any declared payment above the fee stays with
// the caller, never retained silently.
func (s *Service) RegisterListing(ctx context.Context, name, category, contentRef string,
	price, paidAmount int64, caller id.Identity) (id.ListingID, error) {
	ctx, span := s.tracer.Start(ctx, "registry.RegisterListing",
		trace.WithAttributes(attribute.String("listing.name", name)))
	defer span.End()

	if caller.IsZero() {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}

	now := requestcontext.Now(ctx)
	listing, err := models.NewListing(name, category, contentRef, price, caller, now)
	if err != nil {
		return 0, err
	}

	var listingID id.ListingID
	var feeCollected int64
	err = s.tx.RunInAccountTx(ctx, func(txCtx context.Context) error {
		account, err := s.accounts.Get(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registry account")
		}
		if paidAmount < account.RegistrationFee {
			return dErrors.New(dErrors.CodeInsufficientPayment, "insufficient registration fee")
		}

		// Preconditions hold; move exactly the fee, then commit bookkeeping.
		if err := s.channel.Transfer(txCtx, caller, s.treasury, account.RegistrationFee); err != nil {
			return dErrors.Wrap(err, dErrors.CodeTransferFailed, "registration fee transfer rejected")
		}

		listingID, err = s.accounts.NextListingID(txCtx)
		if err != nil {
			return s.compensate(txCtx, s.treasury, caller, account.RegistrationFee,
				dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign listing id"))
		}
		listing.ID = listingID
		if err := s.listings.Create(txCtx, listing); err != nil {
			return s.compensate(txCtx, s.treasury, caller, account.RegistrationFee,
				dErrors.Wrap(err, dErrors.CodeInternal, "failed to store listing"))
		}
		if err := s.accounts.AddRetained(txCtx, account.RegistrationFee); err != nil {
			return s.compensate(txCtx, s.treasury, caller, account.RegistrationFee,
				dErrors.Wrap(err, dErrors.CodeInternal, "failed to retain registration fee"))
		}
		feeCollected = account.RegistrationFee
		return s.append(txCtx, eventlog.Registered(listingID, name, caller, contentRef, now))
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "listing registered",
		"listing_id", listingID,
		"name", name,
		"publisher", caller,
		"price", price,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.ListingsRegistered.Inc()
		s.metrics.FeesRetained.Add(float64(feeCollected))
	}
	span.SetAttributes(attribute.Int64("listing.id", int64(listingID)))
	return listingID, nil
}

// InstallListing records an install for the caller, incrementing the
// listing's download count and routing exactly the price to the publisher.
// Each (listing, caller) pair installs at most once.
func (s *Service) InstallListing(ctx context.Context, listingID id.ListingID,
	paidAmount int64, caller id.Identity) error {
	ctx, span := s.tracer.Start(ctx, "registry.InstallListing",
		trace.WithAttributes(attribute.Int64("listing.id", int64(listingID))))
	defer span.End()

	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}

	start := time.Now()
	now := requestcontext.Now(ctx)
	platform := requestcontext.Platform(ctx)

	var pricePaid int64
	err := s.tx.RunInListingTx(ctx, listingID, func(txCtx context.Context) error {
		listing, err := s.listings.FindByID(txCtx, listingID)
		if err != nil {
			return translateLookupErr(err)
		}
		installed, err := s.installs.Exists(txCtx, listingID, caller)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check install record")
		}
		if installed {
			return dErrors.New(dErrors.CodeAlreadyInstalled, "listing already installed")
		}
		if listing.Price > 0 && paidAmount < listing.Price {
			return dErrors.New(dErrors.CodeInsufficientPayment, "insufficient payment for listing price")
		}

		// Preconditions hold; route exactly the price to the publisher.
		// Excess declared payment never leaves the caller.
		if listing.Price > 0 {
			if err := s.channel.Transfer(txCtx, caller, listing.Publisher, listing.Price); err != nil {
				return dErrors.Wrap(err, dErrors.CodeTransferFailed, "payment to publisher rejected")
			}
		}
		pricePaid = listing.Price

		record := models.InstallRecord{
			ListingID:   listingID,
			Installer:   caller,
			PricePaid:   pricePaid,
			Platform:    platform,
			InstalledAt: now,
		}
		if err := s.installs.Create(txCtx, record); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				// Lost a race inside the same shard; undo the payment.
				return s.compensate(txCtx, listing.Publisher, caller, pricePaid,
					dErrors.New(dErrors.CodeAlreadyInstalled, "listing already installed"))
			}
			return s.compensate(txCtx, listing.Publisher, caller, pricePaid,
				dErrors.Wrap(err, dErrors.CodeInternal, "failed to store install record"))
		}
		if _, err := s.listings.Execute(txCtx, listingID, nil, func(l *models.Listing) {
			l.ApplyInstall(now)
		}); err != nil {
			return s.compensate(txCtx, listing.Publisher, caller, pricePaid,
				dErrors.Wrap(err, dErrors.CodeInternal, "failed to update download count"))
		}
		return s.append(txCtx, eventlog.Installed(listingID, caller, pricePaid, now))
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "listing installed",
		"listing_id", listingID,
		"installer", caller,
		"price_paid", pricePaid,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		if platform == "" {
			platform = "unknown"
		}
		s.metrics.Installs.WithLabelValues(platform).Inc()
		s.metrics.ObserveInstall(start)
	}
	return nil
}

// RateListing adds a score to the listing's rating aggregate. Only callers
// holding an install record may rate; repeat ratings by the same caller each
// add another data point.
func (s *Service) RateListing(ctx context.Context, listingID id.ListingID,
	score int, caller id.Identity) error {
	ctx, span := s.tracer.Start(ctx, "registry.RateListing",
		trace.WithAttributes(
			attribute.Int64("listing.id", int64(listingID)),
			attribute.Int("rating.score", score)))
	defer span.End()

	if caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}

	now := requestcontext.Now(ctx)
	err := s.tx.RunInListingTx(ctx, listingID, func(txCtx context.Context) error {
		if _, err := s.listings.FindByID(txCtx, listingID); err != nil {
			return translateLookupErr(err)
		}
		if !models.ValidScore(score) {
			return dErrors.New(dErrors.CodeInvalidInput, "rating score must be between 1 and 5")
		}
		installed, err := s.installs.Exists(txCtx, listingID, caller)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check install record")
		}
		if !installed {
			return dErrors.New(dErrors.CodeNotInstalled, "must install before rating")
		}
		if _, err := s.listings.Execute(txCtx, listingID, nil, func(l *models.Listing) {
			l.ApplyRating(score, now)
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update rating aggregate")
		}
		return s.append(txCtx, eventlog.Rated(listingID, caller, score, now))
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "listing rated",
		"listing_id", listingID,
		"rater", caller,
		"score", score,
		"request_id", requestcontext.RequestID(ctx),
	)
	if s.metrics != nil {
		s.metrics.Ratings.Inc()
	}
	return nil
}

// VerifyListing marks a listing verified. Administrator only; idempotent on
// repeat calls.
func (s *Service) VerifyListing(ctx context.Context, listingID id.ListingID, caller id.Identity) error {
	ctx, span := s.tracer.Start(ctx, "registry.VerifyListing",
		trace.WithAttributes(attribute.Int64("listing.id", int64(listingID))))
	defer span.End()

	now := requestcontext.Now(ctx)
	var transitioned bool
	err := s.tx.RunInListingTx(ctx, listingID, func(txCtx context.Context) error {
		if err := s.requireAdministrator(txCtx, caller); err != nil {
			return err
		}
		if _, err := s.listings.FindByID(txCtx, listingID); err != nil {
			return translateLookupErr(err)
		}
		if _, err := s.listings.Execute(txCtx, listingID, nil, func(l *models.Listing) {
			transitioned = l.ApplyVerification(now)
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify listing")
		}
		if !transitioned {
			return nil
		}
		return s.append(txCtx, eventlog.Verified(listingID, now))
	})
	if err != nil {
		return err
	}

	if transitioned {
		s.logger.InfoContext(ctx, "listing verified",
			"listing_id", listingID,
			"request_id", requestcontext.RequestID(ctx),
		)
		if s.metrics != nil {
			s.metrics.Verifications.Inc()
		}
	}
	return nil
}

// WithdrawBalance transfers the entire retained balance to the
// administrator and returns the transferred amount. Administrator only.
func (s *Service) WithdrawBalance(ctx context.Context, caller id.Identity) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "registry.WithdrawBalance")
	defer span.End()

	var amount int64
	err := s.tx.RunInAccountTx(ctx, func(txCtx context.Context) error {
		account, err := s.accounts.Get(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registry account")
		}
		if caller.IsZero() || caller != account.Administrator {
			return dErrors.New(dErrors.CodeUnauthorized, "only the administrator may perform this operation")
		}

		// Drain first so the row lock fixes the amount; a registration
		// committing between a read and the drain must not widen the payout.
		drained, err := s.accounts.DrainRetained(txCtx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to drain retained balance")
		}
		if drained == 0 {
			return nil
		}
		if err := s.channel.Transfer(txCtx, s.treasury, account.Administrator, drained); err != nil {
			if restoreErr := s.accounts.AddRetained(txCtx, drained); restoreErr != nil {
				s.logger.ErrorContext(txCtx, "CRITICAL: failed to restore retained balance after rejected withdrawal",
					"amount", drained,
					"error", restoreErr,
				)
			}
			return dErrors.Wrap(err, dErrors.CodeTransferFailed, "withdrawal transfer rejected")
		}
		amount = drained
		return nil
	})
	if err != nil {
		return 0, err
	}

	if amount > 0 {
		s.logger.InfoContext(ctx, "retained balance withdrawn",
			"amount", amount,
			"request_id", requestcontext.RequestID(ctx),
		)
		if s.metrics != nil {
			s.metrics.Withdrawals.Inc()
		}
	}
	span.SetAttributes(attribute.Int64("withdrawal.amount", amount))
	return amount, nil
}

// GetListing fetches a listing by ID.
func (s *Service) GetListing(ctx context.Context, listingID id.ListingID) (*models.Listing, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, translateLookupErr(err)
	}
	return listing, nil
}

// ListListings returns the catalog in ID order, optionally filtered by
// category.
func (s *Service) ListListings(ctx context.Context, category string) ([]*models.Listing, error) {
	listings, err := s.listings.List(ctx, category)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list listings")
	}
	return listings, nil
}

// HasInstalled reports whether an identity holds an install record for a
// listing. Total: unknown listings simply report false.
func (s *Service) HasInstalled(ctx context.Context, installer id.Identity, listingID id.ListingID) (bool, error) {
	installed, err := s.installs.Exists(ctx, listingID, installer)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check install record")
	}
	return installed, nil
}

// Stats exposes the aggregate counters of the registry account.
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	account, err := s.accounts.Get(ctx)
	if err != nil {
		return models.Stats{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registry account")
	}
	return models.Stats{
		ListingCount:    account.ListingCount,
		RetainedBalance: account.RetainedBalance,
	}, nil
}

// ListEvents returns the event log for one listing in append order.
func (s *Service) ListEvents(ctx context.Context, listingID id.ListingID) ([]eventlog.Event, error) {
	events, err := s.events.ListByListing(ctx, listingID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}
	return events, nil
}

func (s *Service) requireAdministrator(ctx context.Context, caller id.Identity) error {
	account, err := s.accounts.Get(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load registry account")
	}
	if caller.IsZero() || caller != account.Administrator {
		return dErrors.New(dErrors.CodeUnauthorized, "only the administrator may perform this operation")
	}
	return nil
}

func (s *Service) append(ctx context.Context, event eventlog.Event) error {
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.events.Append(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append event")
	}
	return nil
}

// compensate reverses an already-executed transfer after a later store
// failure aborts the operation, then returns the original error. A failed
// reversal is logged loudly; it means manual reconciliation.
func (s *Service) compensate(ctx context.Context, from, to id.Identity, amount int64, original error) error {
	if amount > 0 {
		if err := s.channel.Transfer(ctx, from, to, amount); err != nil {
			s.logger.ErrorContext(ctx, "CRITICAL: failed to reverse transfer after aborted operation",
				"from", from,
				"to", to,
				"amount", amount,
				"error", err,
			)
		}
	}
	return original
}

func translateLookupErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "listing not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load listing")
}
