package handler

import (
	"dplay/internal/registry/models"
)

// listingResponse is the wire shape of a listing, with the derived rating
// average folded in so clients never recompute it.
type listingResponse struct {
	*models.Listing
	AverageRating float64 `json:"average_rating"`
}

func fromListing(l *models.Listing) listingResponse {
	return listingResponse{Listing: l, AverageRating: l.AverageRating()}
}

func fromListings(listings []*models.Listing) []listingResponse {
	out := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		out = append(out, fromListing(l))
	}
	return out
}

type registerListingResponse struct {
	ListingID int64 `json:"listing_id"`
}

type installedResponse struct {
	Installed bool `json:"installed"`
}

type withdrawalResponse struct {
	Amount int64 `json:"amount"`
}
