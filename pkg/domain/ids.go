// Package domain defines the typed identifiers shared across the registry.
//
// Identifiers are small value types rather than bare strings/ints so that
// service signatures stay self-documenting and accidental swaps (listing ID
// where an identity belongs) fail at compile time.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Identity is the stable, already-authenticated identity of a caller as
// supplied by the hosting environment (JWT subject). The ledger never
// authenticates identities itself; it only compares and stores them.
type Identity string

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return strings.TrimSpace(string(i)) == ""
}

func (i Identity) String() string {
	return string(i)
}

// ListingID identifies a published listing. IDs are positive integers
// assigned sequentially starting at 1 and are immutable once created.
type ListingID int64

// IsValid reports whether the ID could reference an existing listing.
func (id ListingID) IsValid() bool {
	return id > 0
}

func (id ListingID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseListingID parses a listing ID from its decimal string form, as it
// appears in URL paths.
func ParseListingID(s string) (ListingID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid listing id %q", s)
	}
	return ListingID(n), nil
}
