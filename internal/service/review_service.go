package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// ReviewInput holds the writable fields of a review
type ReviewInput struct {
	Rating  int
	Title   string
	Comment string
}

func (in ReviewInput) validate() error {
	if in.Rating < 1 || in.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	return nil
}

// ReviewService manages product reviews
type ReviewService interface {
	Create(ctx context.Context, userID, productID uuid.UUID, in ReviewInput) (*domain.Review, error)
	ListByProduct(ctx context.Context, productID uuid.UUID, page, pageSize int) ([]*domain.Review, int, error)
	Update(ctx context.Context, actor Actor, id uuid.UUID, in ReviewInput) (*domain.Review, error)
	Delete(ctx context.Context, actor Actor, id uuid.UUID) error
}

type reviewService struct {
	reviewRepo  repository.ReviewRepository
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
}

// NewReviewService creates a new instance of ReviewService
func NewReviewService(
	reviewRepo repository.ReviewRepository,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
) ReviewService {
	return &reviewService{
		reviewRepo:  reviewRepo,
		productRepo: productRepo,
		orderRepo:   orderRepo,
	}
}

// Create stores a review. The verified purchase flag is decided here, once.
func (s *reviewService) Create(ctx context.Context, userID, productID uuid.UUID, in ReviewInput) (*domain.Review, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	if _, err := s.productRepo.FindByID(ctx, productID); err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	verified, err := s.orderRepo.HasDeliveredOrderWithProduct(ctx, userID, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to check purchase: %w", err)
	}

	now := time.Now().UTC()
	review := &domain.Review{
		ID:                 uuid.New(),
		ProductID:          productID,
		UserID:             userID,
		Rating:             in.Rating,
		Title:              strings.TrimSpace(in.Title),
		Comment:            strings.TrimSpace(in.Comment),
		IsVerifiedPurchase: verified,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.reviewRepo.Create(ctx, review); err != nil {
		return nil, fmt.Errorf("failed to create review: %w", err)
	}
	return review, nil
}

func (s *reviewService) ListByProduct(ctx context.Context, productID uuid.UUID, page, pageSize int) ([]*domain.Review, int, error) {
	page, pageSize = normalizePage(page, pageSize)

	reviews, total, err := s.reviewRepo.ListByProduct(ctx, productID, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, total, nil
}

// Update lets the author edit the text and rating
func (s *reviewService) Update(ctx context.Context, actor Actor, id uuid.UUID, in ReviewInput) (*domain.Review, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	review, err := s.reviewRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	if review.UserID != actor.UserID {
		return nil, ErrForbidden
	}

	review.Rating = in.Rating
	review.Title = strings.TrimSpace(in.Title)
	review.Comment = strings.TrimSpace(in.Comment)
	review.UpdatedAt = time.Now().UTC()

	if err := s.reviewRepo.Update(ctx, review); err != nil {
		return nil, fmt.Errorf("failed to update review: %w", err)
	}
	return review, nil
}

func (s *reviewService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	review, err := s.reviewRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get review: %w", err)
	}
	if !actor.CanAccess(review.UserID) {
		return ErrForbidden
	}

	if err := s.reviewRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	return nil
}
