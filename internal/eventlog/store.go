package eventlog

import (
	"context"

	"github.com/google/uuid"

	id "dplay/pkg/domain"
)

// Store persists the event log. Append runs inside the caller's transaction
// when one is active, so an aborted operation leaves no event behind.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByListing(ctx context.Context, listingID id.ListingID) ([]Event, error)

	// Outbox surface for the forwarding worker.
	ListPending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Sink receives committed events. Implementations must be safe for
// concurrent use by the forwarding worker.
type Sink interface {
	Publish(ctx context.Context, events []Event) error
}
