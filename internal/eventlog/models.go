// Package eventlog is the registry's append-only event log.
//
// Events are appended synchronously inside the same transaction as the state
// mutation they describe (transactional outbox), so replaying the log
// reconstructs the ledger deterministically. A background worker forwards
// committed events to Kafka for downstream consumers.
package eventlog

import (
	"time"

	"github.com/google/uuid"

	id "dplay/pkg/domain"
)

// Kind names one of the four registry event types.
type Kind string

const (
	KindRegistered Kind = "listing_registered"
	KindInstalled  Kind = "listing_installed"
	KindRated      Kind = "listing_rated"
	KindVerified   Kind = "listing_verified"
)

// Event is a single entry in the log. The populated payload fields depend on
// the kind; unused fields stay zero and are omitted from JSON.
type Event struct {
	ID        uuid.UUID    `json:"id"`
	Kind      Kind         `json:"kind"`
	ListingID id.ListingID `json:"listing_id"`
	Actor     id.Identity  `json:"actor,omitempty"`
	Name      string       `json:"name,omitempty"`
	ContentRef string      `json:"content_ref,omitempty"`
	PricePaid int64        `json:"price_paid,omitempty"`
	Score     int          `json:"score,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// Registered builds the event emitted on successful registration.
func Registered(listingID id.ListingID, name string, publisher id.Identity, contentRef string, now time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       KindRegistered,
		ListingID:  listingID,
		Actor:      publisher,
		Name:       name,
		ContentRef: contentRef,
		Timestamp:  now,
	}
}

// Installed builds the event emitted on successful install.
func Installed(listingID id.ListingID, installer id.Identity, pricePaid int64, now time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Kind:      KindInstalled,
		ListingID: listingID,
		Actor:     installer,
		PricePaid: pricePaid,
		Timestamp: now,
	}
}

// Rated builds the event emitted on successful rating.
func Rated(listingID id.ListingID, rater id.Identity, score int, now time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Kind:      KindRated,
		ListingID: listingID,
		Actor:     rater,
		Score:     score,
		Timestamp: now,
	}
}

// Verified builds the event emitted when the administrator verifies a listing.
func Verified(listingID id.ListingID, now time.Time) Event {
	return Event{
		ID:        uuid.New(),
		Kind:      KindVerified,
		ListingID: listingID,
		Timestamp: now,
	}
}
