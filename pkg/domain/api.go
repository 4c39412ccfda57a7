package domain

// Request/response payloads for the HTTP API. Binding tags reject malformed
// bodies at the boundary; services only ever see validated values.

type PredictRequest struct {
	SellerID         int64  `json:"seller_id" binding:"required"`
	IsVerifiedSeller bool   `json:"is_verified_seller"`
	ListingID        int64  `json:"listing_id" binding:"required"`
	Name             string `json:"name" binding:"required"`
	Description      string `json:"description" binding:"required"`
	Category         int    `json:"category" binding:"min=0"`
	ImagesQty        int    `json:"images_qty" binding:"min=0"`
}

type ListingRequest struct {
	ListingID int64 `json:"listing_id" binding:"required"`
}

type AsyncPredictResponse struct {
	TaskID  int64      `json:"task_id"`
	Status  TaskStatus `json:"status"`
	Message string     `json:"message"`
}

type ModerationResultResponse struct {
	TaskID      int64      `json:"task_id"`
	Status      TaskStatus `json:"status"`
	IsViolation *bool      `json:"is_violation,omitempty"`
	Probability *float64   `json:"probability,omitempty"`
}

type CloseListingResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ListingID int64  `json:"listing_id"`
}
