package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncLine is one client-side cart line submitted for synchronisation
type SyncLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// CartService manages the per-account cart
type CartService interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error)
	UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*domain.Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) (*domain.Cart, error)
	Sync(ctx context.Context, userID uuid.UUID, lines []SyncLine) (*domain.Cart, []string, error)
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	logger      *zap.Logger
}

// NewCartService creates a new instance of CartService
func NewCartService(cartRepo repository.CartRepository, productRepo repository.ProductRepository, logger *zap.Logger) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		logger:      logger,
	}
}

// Get returns the cart, creating it on first access. Lines whose product was deleted or
// deactivated are dropped and the pruned cart is persisted before it is returned.
func (s *cartService) Get(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.present(ctx, cart)
}

func (s *cartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}

	product, err := s.purchasableProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	cart, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	wanted := cart.QuantityOf(productID) + quantity
	if !product.HasStockFor(wanted) {
		return nil, insufficientStock(product, wanted)
	}

	cart.Upsert(productID, quantity, product.Price)
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return s.present(ctx, cart)
}

// UpdateItem sets the absolute quantity of a line already in the cart
func (s *cartService) UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.Cart, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}

	cart, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cart.Line(productID) == nil {
		return nil, ErrCartItemNotFound
	}

	product, err := s.purchasableProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.HasStockFor(quantity) {
		return nil, insufficientStock(product, quantity)
	}

	cart.SetQuantity(productID, quantity, product.Price)
	if err := s.save(ctx, cart); err != nil {
		return nil, err
	}
	return s.present(ctx, cart)
}

// RemoveItem drops a line. Removing a line that is not there succeeds.
func (s *cartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cart.Remove(productID) {
		if err := s.save(ctx, cart); err != nil {
			return nil, err
		}
	}
	return s.present(ctx, cart)
}

func (s *cartService) Clear(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !cart.IsEmpty() {
		cart.Clear()
		if err := s.save(ctx, cart); err != nil {
			return nil, err
		}
	}
	return cart, nil
}

// Sync replaces the cart with the valid subset of lines. Rejected lines are reported as
// messages and do not fail the call. When a product appears more than once the last line wins.
func (s *cartService) Sync(ctx context.Context, userID uuid.UUID, lines []SyncLine) (*domain.Cart, []string, error) {
	cart, err := s.loadOrCreate(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	order := make([]uuid.UUID, 0, len(lines))
	quantities := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if _, seen := quantities[line.ProductID]; !seen {
			order = append(order, line.ProductID)
		}
		quantities[line.ProductID] = line.Quantity
	}

	products, err := s.productRepo.FindByIDs(ctx, order)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load products: %w", err)
	}

	var problems []string
	items := make([]domain.CartItem, 0, len(order))
	for _, productID := range order {
		quantity := quantities[productID]
		product := products[productID]

		switch {
		case quantity < 1:
			problems = append(problems, fmt.Sprintf("product %s: quantity must be at least 1", productID))
		case !product.Purchasable():
			problems = append(problems, fmt.Sprintf("product %s is no longer available", productID))
		case !product.HasStockFor(quantity):
			problems = append(problems, fmt.Sprintf("%s: only %d in stock, %d requested", product.Name, product.Stock.Quantity, quantity))
		default:
			items = append(items, domain.CartItem{ProductID: productID, Quantity: quantity, UnitPrice: product.Price})
		}
	}

	cart.Items = items
	cart.Recalculate()
	if err := s.save(ctx, cart); err != nil {
		return nil, nil, err
	}

	if len(problems) > 0 {
		s.logger.Info("Cart sync dropped lines",
			zap.String("user_id", userID.String()),
			zap.Strings("problems", problems),
		)
	}

	cart, err = s.present(ctx, cart)
	if err != nil {
		return nil, nil, err
	}
	return cart, problems, nil
}

// loadOrCreate returns the cart of userID, creating an empty one if there is none yet
func (s *cartService) loadOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Cart, error) {
	cart, err := s.cartRepo.FindByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, repository.ErrCartNotFound) {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	cart = domain.NewCart(userID, time.Now().UTC())
	if err := s.cartRepo.Create(ctx, cart); err != nil {
		// Lost the race against a parallel first access of the same account
		if errors.Is(err, repository.ErrCartAlreadyExists) {
			return s.cartRepo.FindByUserID(ctx, userID)
		}
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return cart, nil
}

func (s *cartService) save(ctx context.Context, cart *domain.Cart) error {
	cart.UpdatedAt = time.Now().UTC()
	if err := s.cartRepo.Save(ctx, cart); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

// present prunes lines that can no longer be bought and fills in the product summaries
func (s *cartService) present(ctx context.Context, cart *domain.Cart) (*domain.Cart, error) {
	if cart.IsEmpty() {
		return cart, nil
	}

	ids := make([]uuid.UUID, len(cart.Items))
	for i, item := range cart.Items {
		ids[i] = item.ProductID
	}

	products, err := s.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart products: %w", err)
	}

	dropped := cart.Retain(func(item domain.CartItem) bool {
		return products[item.ProductID].Purchasable()
	})
	if dropped {
		s.logger.Info("Pruned unavailable products from cart", zap.String("user_id", cart.UserID.String()))
		if err := s.save(ctx, cart); err != nil {
			return nil, err
		}
	}

	for i := range cart.Items {
		product := products[cart.Items[i].ProductID]
		summary := &domain.ProductSummary{
			Name:     product.Name,
			SKU:      product.SKU,
			ImageURL: product.ImageURL,
		}
		if product.Stock.TrackQuantity {
			available := product.Stock.Quantity
			summary.Available = &available
		}
		cart.Items[i].Product = summary
	}
	return cart, nil
}

// purchasableProduct loads a product for a cart mutation; inactive products count as missing
func (s *cartService) purchasableProduct(ctx context.Context, productID uuid.UUID) (*domain.Product, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if !product.Purchasable() {
		return nil, repository.ErrProductNotFound
	}
	return product, nil
}

func insufficientStock(product *domain.Product, requested int) error {
	return fmt.Errorf("%w: %s has %d available, %d requested",
		ErrInsufficientStock, product.Name, product.Stock.Quantity, requested)
}
