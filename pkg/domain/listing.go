package domain

// ListingFeatures is the classifier input assembled from a listing joined
// with its seller.
type ListingFeatures struct {
	ListingID        int64  `json:"listing_id"`
	IsVerifiedSeller bool   `json:"is_verified_seller"`
	ImagesQty        int    `json:"images_qty"`
	Description      string `json:"description"`
	Category         int    `json:"category"`
}

// Prediction is a classifier verdict for one listing.
type Prediction struct {
	IsViolation bool    `json:"is_violation"`
	Probability float64 `json:"probability"`
}
