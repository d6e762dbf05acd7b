package service

import (
	"context"

	"dplay/internal/registry/models"
	id "dplay/pkg/domain"
)

// Stores are interface-driven so the rules layer stays testable and the
// in-memory, Redis-cached, and PostgreSQL implementations swap without
// touching business code. Implementations return pkg/platform/sentinel
// errors; the service translates them into domain errors.

// ListingStore persists listings.
type ListingStore interface {
	// Create stores a listing under its preassigned ID.
	Create(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, listingID id.ListingID) (*models.Listing, error)
	// List returns listings in ID order, optionally filtered by category.
	List(ctx context.Context, category string) ([]*models.Listing, error)
	// Execute atomically validates then mutates one listing while holding
	// the implementation's lock (mutex or SELECT ... FOR UPDATE).
	Execute(ctx context.Context, listingID id.ListingID,
		validate func(*models.Listing) error,
		apply func(*models.Listing)) (*models.Listing, error)
}

// InstallStore persists (listing, installer) install records. Create must
// reject duplicates with sentinel.ErrConflict.
type InstallStore interface {
	Create(ctx context.Context, record models.InstallRecord) error
	Exists(ctx context.Context, listingID id.ListingID, installer id.Identity) (bool, error)
}

// AccountStore persists the singleton registry account.
type AccountStore interface {
	Get(ctx context.Context) (models.RegistryAccount, error)
	// NextListingID increments and returns the listing counter.
	NextListingID(ctx context.Context) (id.ListingID, error)
	// AddRetained adds a collected registration fee to the retained balance.
	AddRetained(ctx context.Context, amount int64) error
	// DrainRetained zeroes the retained balance and returns what it held.
	DrainRetained(ctx context.Context) (int64, error)
}

// StoreTx provides the transactional boundary for write operations.
//
// Listing-scoped operations (install, rate, verify) serialize per listing so
// unrelated listings proceed concurrently. Account-scoped operations
// (register, withdraw) serialize on the singleton registry account, which
// also keeps listing IDs dense and sequential.
//
// Implementations may wrap a database transaction or, in-memory, sharded
// locks. The pending payment transfer executes inside fn, so a channel
// failure aborts the whole unit.
type StoreTx interface {
	RunInListingTx(ctx context.Context, listingID id.ListingID, fn func(ctx context.Context) error) error
	RunInAccountTx(ctx context.Context, fn func(ctx context.Context) error) error
}
