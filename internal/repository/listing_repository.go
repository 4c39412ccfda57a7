package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/admarket/moderation/pkg/domain"
)

// ListingRepository reads listing/seller attributes for moderation and flips
// the closed flag. Closed listings are invisible to every read path here.
type ListingRepository interface {
	// GetFeatures fetches the classifier input for an open listing.
	GetFeatures(ctx context.Context, listingID int64) (*domain.ListingFeatures, error)
	// Exists reports whether an open listing with this id exists.
	Exists(ctx context.Context, listingID int64) (bool, error)
	// Close marks the listing closed. Returns false when it was already
	// closed, ErrNotFound when no such listing exists.
	Close(ctx context.Context, listingID int64) (bool, error)
}

type listingPgRepo struct {
	db DB
}

func NewListingRepository(db DB) ListingRepository {
	return &listingPgRepo{db: db}
}

func (r *listingPgRepo) GetFeatures(ctx context.Context, listingID int64) (*domain.ListingFeatures, error) {
	query := `
		SELECT l.listing_id, s.is_verified, l.images_qty, l.description, l.category
		FROM listings l
		JOIN sellers s ON l.seller_id = s.seller_id
		WHERE l.listing_id = $1 AND NOT l.is_closed
	`
	var f domain.ListingFeatures
	err := r.db.QueryRow(ctx, query, listingID).Scan(
		&f.ListingID, &f.IsVerifiedSeller, &f.ImagesQty, &f.Description, &f.Category)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: listing %d", ErrNotFound, listingID)
		}
		return nil, mapPgError(err)
	}
	return &f, nil
}

func (r *listingPgRepo) Exists(ctx context.Context, listingID int64) (bool, error) {
	query := `SELECT listing_id FROM listings WHERE listing_id = $1 AND NOT is_closed`
	var id int64
	err := r.db.QueryRow(ctx, query, listingID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, mapPgError(err)
	}
	return true, nil
}

func (r *listingPgRepo) Close(ctx context.Context, listingID int64) (bool, error) {
	query := `UPDATE listings SET is_closed = TRUE WHERE listing_id = $1 AND NOT is_closed`
	tag, err := r.db.Exec(ctx, query, listingID)
	if err != nil {
		return false, mapPgError(err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Distinguish already-closed from absent.
	var id int64
	err = r.db.QueryRow(ctx, `SELECT listing_id FROM listings WHERE listing_id = $1`, listingID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%w: listing %d", ErrNotFound, listingID)
	}
	if err != nil {
		return false, mapPgError(err)
	}
	return false, nil
}
