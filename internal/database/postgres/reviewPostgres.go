package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/entity"
)

type reviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) database.ReviewRepository {
	return &reviewRepository{db: db}
}

func (r *reviewRepository) CreateIfAbsent(ctx context.Context, review *entity.Review) (bool, error) {
	query := `
		INSERT INTO reviews (id, booking_id, customer_id, provider_id, rating, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (booking_id) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query,
		review.ID,
		review.BookingID,
		review.CustomerID,
		review.ProviderID,
		review.Rating,
		review.Text,
		review.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create review: %w", err)
	}
	return affectedOne(res)
}

func (r *reviewRepository) GetByID(ctx context.Context, id string) (*entity.Review, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *reviewRepository) GetByBookingID(ctx context.Context, bookingID string) (*entity.Review, error) {
	return r.get(ctx, `WHERE booking_id = $1`, bookingID)
}

func (r *reviewRepository) get(ctx context.Context, where, arg string) (*entity.Review, error) {
	query := `SELECT id, booking_id, customer_id, provider_id, rating, text, created_at FROM reviews ` + where

	var review entity.Review
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&review.ID,
		&review.BookingID,
		&review.CustomerID,
		&review.ProviderID,
		&review.Rating,
		&review.Text,
		&review.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrReviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	return &review, nil
}

func (r *reviewRepository) CreateLinkIfAbsent(ctx context.Context, link *entity.ReviewLink) (bool, error) {
	query := `
		INSERT INTO review_links (token, booking_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, link.Token, link.BookingID, link.ExpiresAt, link.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create review link: %w", err)
	}
	return affectedOne(res)
}

func (r *reviewRepository) GetLink(ctx context.Context, token string) (*entity.ReviewLink, error) {
	query := `SELECT token, booking_id, expires_at, created_at FROM review_links WHERE token = $1`

	var link entity.ReviewLink
	err := r.db.QueryRowContext(ctx, query, token).Scan(
		&link.Token,
		&link.BookingID,
		&link.ExpiresAt,
		&link.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, entity.ErrReviewLinkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review link: %w", err)
	}
	return &link, nil
}
