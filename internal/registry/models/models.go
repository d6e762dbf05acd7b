// Package models holds the registry ledger's entities.
package models

import (
	"time"

	id "dplay/pkg/domain"
	dErrors "dplay/pkg/domain-errors"
)

// MaxRatingValue is the top of the accepted rating scale.
const MaxRatingValue = 5

// MaxNameLength bounds listing names to keep the catalog rendering sane.
const MaxNameLength = 128

// Listing is the unit of publication.
//
// Invariants:
//   - ID is positive, assigned sequentially starting at 1, immutable
//   - Name is non-empty, immutable
//   - Price is non-negative; 0 means free
//   - Downloads equals the count of distinct identities holding an
//     InstallRecord for this listing
//   - RatingSum/RatingCount only grow; average stays within [1, MaxRatingValue]
//     whenever RatingCount > 0
//   - Verified transitions false→true once and never reverts
type Listing struct {
	ID          id.ListingID `json:"id"`
	Name        string       `json:"name"`
	Category    string       `json:"category"`
	ContentRef  string       `json:"content_ref"`
	Price       int64        `json:"price"`
	Publisher   id.Identity  `json:"publisher"`
	Downloads   int64        `json:"downloads"`
	RatingSum   int64        `json:"rating_sum"`
	RatingCount int64        `json:"rating_count"`
	Verified    bool         `json:"verified"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// NewListing validates inputs and constructs an unpublished listing. The ID
// is assigned by the store when the listing is created.
func NewListing(name, category, contentRef string, price int64, publisher id.Identity, now time.Time) (*Listing, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "listing name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "listing name too long")
	}
	if price < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "listing price cannot be negative")
	}
	if publisher.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "publisher identity is required")
	}
	return &Listing{
		Name:       name,
		Category:   category,
		ContentRef: contentRef,
		Price:      price,
		Publisher:  publisher,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// AverageRating derives the running average; zero when unrated.
func (l *Listing) AverageRating() float64 {
	if l.RatingCount == 0 {
		return 0
	}
	return float64(l.RatingSum) / float64(l.RatingCount)
}

// ApplyInstall records one more distinct installer.
func (l *Listing) ApplyInstall(now time.Time) {
	l.Downloads++
	l.UpdatedAt = now
}

// ApplyRating folds one more score into the aggregate. Callers validate the
// score range first.
func (l *Listing) ApplyRating(score int, now time.Time) {
	l.RatingSum += int64(score)
	l.RatingCount++
	l.UpdatedAt = now
}

// ApplyVerification marks the listing verified. Idempotent: re-verifying an
// already verified listing is a no-op, not an error.
func (l *Listing) ApplyVerification(now time.Time) bool {
	if l.Verified {
		return false
	}
	l.Verified = true
	l.UpdatedAt = now
	return true
}

// ValidScore reports whether a rating score is within [1, MaxRatingValue].
func ValidScore(score int) bool {
	return score >= 1 && score <= MaxRatingValue
}

// InstallRecord marks that an identity has installed a listing. Existence is
// binary; records are created on first successful install and never deleted.
type InstallRecord struct {
	ListingID   id.ListingID `json:"listing_id"`
	Installer   id.Identity  `json:"installer"`
	PricePaid   int64        `json:"price_paid"`
	Platform    string       `json:"platform,omitempty"`
	InstalledAt time.Time    `json:"installed_at"`
}

// RegistryAccount is the process-wide singleton holding administrative state.
// Administrator and RegistrationFee are fixed at construction; ListingCount
// and RetainedBalance only change through ledger operations.
type RegistryAccount struct {
	Administrator   id.Identity `json:"administrator"`
	RegistrationFee int64       `json:"registration_fee"`
	ListingCount    int64       `json:"listing_count"`
	RetainedBalance int64       `json:"retained_balance"`
}

// Stats is the read-only aggregate view exposed by the query surface.
type Stats struct {
	ListingCount    int64 `json:"listing_count"`
	RetainedBalance int64 `json:"retained_balance"`
}
