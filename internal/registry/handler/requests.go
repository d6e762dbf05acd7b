package handler

// registerListingRequest is the POST /listings payload. PaidAmount declares
// the payment accompanying the registration; only the fee is taken.
type registerListingRequest struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	ContentRef string `json:"content_ref"`
	Price      int64  `json:"price"`
	PaidAmount int64  `json:"paid_amount"`
}

// installListingRequest is the POST /listings/{id}/install payload.
type installListingRequest struct {
	PaidAmount int64 `json:"paid_amount"`
}

// rateListingRequest is the POST /listings/{id}/rating payload.
type rateListingRequest struct {
	Score int `json:"score"`
}
