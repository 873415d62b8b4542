package service

import (
	"context"
	"testing"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewService_VerifiedPurchaseRequiresDelivery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	buyer := env.customer()
	admin := env.admin()
	product := env.newProduct("20.00", 5)
	order := env.placeOrder(t, buyer, map[uuid.UUID]int{product.ID: 1})

	early, err := env.reviews.Create(ctx, buyer.UserID, product.ID, ReviewInput{Rating: 4, Title: " Nice "})
	require.NoError(t, err)
	assert.False(t, early.IsVerifiedPurchase)
	assert.Equal(t, "Nice", early.Title)
	require.NoError(t, env.reviews.Delete(ctx, buyer, early.ID))

	for _, status := range []domain.OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusShipped, domain.OrderStatusDelivered} {
		_, err := env.orders.UpdateStatus(ctx, admin, order.ID, StatusUpdate{Status: status})
		require.NoError(t, err)
	}

	review, err := env.reviews.Create(ctx, buyer.UserID, product.ID, ReviewInput{Rating: 5, Comment: "Arrived intact"})
	require.NoError(t, err)
	assert.True(t, review.IsVerifiedPurchase)

	other, err := env.reviews.Create(ctx, env.customer().UserID, product.ID, ReviewInput{Rating: 2})
	require.NoError(t, err)
	assert.False(t, other.IsVerifiedPurchase)

	_, err = env.reviews.Create(ctx, buyer.UserID, product.ID, ReviewInput{Rating: 3})
	assert.ErrorIs(t, err, repository.ErrReviewAlreadyExists)

	reviews, total, err := env.reviews.ListByProduct(ctx, product.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, reviews, 2)
}

func TestReviewService_RatingBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	actor := env.customer()
	product := env.newProduct("20.00", 5)

	for _, rating := range []int{0, 6, -1} {
		_, err := env.reviews.Create(ctx, actor.UserID, product.ID, ReviewInput{Rating: rating})
		assert.ErrorIs(t, err, ErrValidation, "rating %d", rating)
	}

	_, err := env.reviews.Create(ctx, actor.UserID, uuid.New(), ReviewInput{Rating: 3})
	assert.ErrorIs(t, err, repository.ErrProductNotFound)
}

func TestReviewService_OnlyAuthorEditsButAdminMayDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.customer()
	stranger := env.customer()
	admin := env.admin()
	product := env.newProduct("20.00", 5)

	review, err := env.reviews.Create(ctx, author.UserID, product.ID, ReviewInput{Rating: 3})
	require.NoError(t, err)

	_, err = env.reviews.Update(ctx, stranger, review.ID, ReviewInput{Rating: 1})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.reviews.Update(ctx, admin, review.ID, ReviewInput{Rating: 1})
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := env.reviews.Update(ctx, author, review.ID, ReviewInput{Rating: 4, Comment: "Grew on me"})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Rating)

	assert.ErrorIs(t, env.reviews.Delete(ctx, stranger, review.ID), ErrForbidden)
	require.NoError(t, env.reviews.Delete(ctx, admin, review.ID))

	err = env.reviews.Delete(ctx, author, review.ID)
	assert.True(t, IsNotFound(err))
}
