package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for PostgreSQL. Every repository stores and returns
// copies, and transactions roll back by restoring a snapshot taken when they began.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users      map[uuid.UUID]domain.User
	tokens     map[string]domain.RefreshToken
	categories map[uuid.UUID]domain.Category
	products   map[uuid.UUID]domain.Product
	carts      map[uuid.UUID]*domain.Cart
	orders     map[uuid.UUID]*domain.Order
	reviews    map[uuid.UUID]domain.Review

	// afterFindByIDs runs after a batch product read, before the caller sees the result
	afterFindByIDs func()
	// afterFindOrder runs after a single order read, before the caller sees the result
	afterFindOrder func()
}

func newMemStore() *memStore {
	return &memStore{
		users:      make(map[uuid.UUID]domain.User),
		tokens:     make(map[string]domain.RefreshToken),
		categories: make(map[uuid.UUID]domain.Category),
		products:   make(map[uuid.UUID]domain.Product),
		carts:      make(map[uuid.UUID]*domain.Cart),
		orders:     make(map[uuid.UUID]*domain.Order),
		reviews:    make(map[uuid.UUID]domain.Review),
	}
}

type memSnapshot struct {
	users      map[uuid.UUID]domain.User
	tokens     map[string]domain.RefreshToken
	categories map[uuid.UUID]domain.Category
	products   map[uuid.UUID]domain.Product
	carts      map[uuid.UUID]*domain.Cart
	orders     map[uuid.UUID]*domain.Order
	reviews    map[uuid.UUID]domain.Review
}

func copyMap[K comparable, V any](m map[K]V, clone func(V) V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = clone(v)
	}
	return out
}

func same[V any](v V) V { return v }

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return memSnapshot{
		users:      copyMap(s.users, same[domain.User]),
		tokens:     copyMap(s.tokens, same[domain.RefreshToken]),
		categories: copyMap(s.categories, same[domain.Category]),
		products:   copyMap(s.products, same[domain.Product]),
		carts:      copyMap(s.carts, cloneCart),
		orders:     copyMap(s.orders, cloneOrder),
		reviews:    copyMap(s.reviews, same[domain.Review]),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.tokens = snap.tokens
	s.categories = snap.categories
	s.products = snap.products
	s.carts = snap.carts
	s.orders = snap.orders
	s.reviews = snap.reviews
}

func cloneCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = make([]domain.CartItem, len(c.Items))
	copy(cp.Items, c.Items)
	for i := range cp.Items {
		cp.Items[i].Product = nil
	}
	return &cp
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Items = make([]domain.OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	cp.StatusHistory = make([]domain.StatusHistoryEntry, len(o.StatusHistory))
	copy(cp.StatusHistory, o.StatusHistory)
	return &cp
}

type memTxKey struct{}

type memTransactor struct {
	s *memStore
}

func (t memTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	snap := t.s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		t.s.restore(snap)
		return err
	}
	return nil
}

func paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Users

type memUserRepo struct{ s *memStore }

func (r memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.Email == user.Email {
			return repository.ErrUserAlreadyExists
		}
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r memUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, user := range r.s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r memUserRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	user, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &user, nil
}

func (r memUserRepo) Update(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.users[user.ID]
	if !ok {
		return repository.ErrUserNotFound
	}
	stored.FirstName = user.FirstName
	stored.LastName = user.LastName
	stored.Phone = user.Phone
	stored.UpdatedAt = user.UpdatedAt
	r.s.users[user.ID] = stored
	return nil
}

func (r memUserRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	stored.IsActive = false
	r.s.users[id] = stored
	return nil
}

// Refresh tokens

type memTokenRepo struct{ s *memStore }

func (r memTokenRepo) Create(_ context.Context, token *domain.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.tokens[token.Token] = *token
	return nil
}

func (r memTokenRepo) FindByToken(_ context.Context, token string) (*domain.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tokens[token]
	if !ok {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if stored.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return &stored, nil
}

func (r memTokenRepo) Revoke(_ context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.tokens[token]
	if !ok {
		return repository.ErrRefreshTokenNotFound
	}
	stored.Revoked = true
	r.s.tokens[token] = stored
	return nil
}

func (r memTokenRepo) RevokeAllForUser(_ context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for key, token := range r.s.tokens {
		if token.UserID == userID {
			token.Revoked = true
			r.s.tokens[key] = token
		}
	}
	return nil
}

// Categories

type memCategoryRepo struct{ s *memStore }

func (r memCategoryRepo) Create(_ context.Context, category *domain.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.categories {
		if existing.Slug == category.Slug {
			return repository.ErrCategoryAlreadyExists
		}
	}
	r.s.categories[category.ID] = *category
	return nil
}

func (r memCategoryRepo) Update(_ context.Context, category *domain.Category) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[category.ID]; !ok {
		return repository.ErrCategoryNotFound
	}
	for _, existing := range r.s.categories {
		if existing.ID != category.ID && existing.Slug == category.Slug {
			return repository.ErrCategoryAlreadyExists
		}
	}
	r.s.categories[category.ID] = *category
	return nil
}

func (r memCategoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.categories[id]; !ok {
		return repository.ErrCategoryNotFound
	}
	for _, product := range r.s.products {
		if product.CategoryID == id {
			return repository.ErrCategoryInUse
		}
	}
	delete(r.s.categories, id)
	return nil
}

func (r memCategoryRepo) List(_ context.Context) ([]*domain.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	categories := make([]*domain.Category, 0, len(r.s.categories))
	for _, category := range r.s.categories {
		c := category
		categories = append(categories, &c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (r memCategoryRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	category, ok := r.s.categories[id]
	if !ok {
		return nil, repository.ErrCategoryNotFound
	}
	return &category, nil
}

// Products

type memProductRepo struct{ s *memStore }

func (r memProductRepo) Create(_ context.Context, product *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.products {
		if existing.SKU == product.SKU {
			return repository.ErrProductAlreadyExists
		}
	}
	r.s.products[product.ID] = *product
	return nil
}

func (r memProductRepo) Update(_ context.Context, product *domain.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.products[product.ID]
	if !ok {
		return repository.ErrProductNotFound
	}
	for _, existing := range r.s.products {
		if existing.ID != product.ID && existing.SKU == product.SKU {
			return repository.ErrProductAlreadyExists
		}
	}
	updated := *product
	updated.Stock = stored.Stock
	r.s.products[product.ID] = updated
	return nil
}

func (r memProductRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return repository.ErrProductNotFound
	}
	delete(r.s.products, id)
	return nil
}

func (r memProductRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	return &product, nil
}

func (r memProductRepo) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Product, error) {
	r.s.mu.Lock()
	found := make(map[uuid.UUID]*domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := r.s.products[id]; ok {
			p := product
			found[id] = &p
		}
	}
	hook := r.s.afterFindByIDs
	r.s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return found, nil
}

func (r memProductRepo) List(_ context.Context, filter repository.ProductFilter) ([]*domain.Product, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []*domain.Product
	for _, product := range r.s.products {
		if !filter.IncludeInactive && !product.IsActive {
			continue
		}
		if filter.CategoryID != nil && product.CategoryID != *filter.CategoryID {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(product.Name), strings.ToLower(filter.Query)) {
			continue
		}
		p := product
		matched = append(matched, &p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	return paginate(matched, filter.Page, filter.PageSize), len(matched), nil
}

func (r memProductRepo) ListLowStock(_ context.Context, limit int) ([]*domain.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var low []*domain.Product
	for _, product := range r.s.products {
		if product.IsActive && product.IsLowStock() {
			p := product
			low = append(low, &p)
		}
	}
	sort.Slice(low, func(i, j int) bool { return low[i].Stock.Quantity < low[j].Stock.Quantity })
	if len(low) > limit {
		low = low[:limit]
	}
	return low, nil
}

func (r memProductRepo) SetStock(_ context.Context, id uuid.UUID, stock domain.Stock) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	product.Stock = stock
	r.s.products[id] = product
	return nil
}

func (r memProductRepo) DecrementStock(_ context.Context, id uuid.UUID, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[id]
	if !ok {
		return repository.ErrInsufficientStock
	}
	if !product.Stock.TrackQuantity {
		return nil
	}
	if product.Stock.Quantity < quantity {
		return repository.ErrInsufficientStock
	}
	product.Stock.Quantity -= quantity
	r.s.products[id] = product
	return nil
}

func (r memProductRepo) IncrementStock(_ context.Context, id uuid.UUID, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	product, ok := r.s.products[id]
	if !ok || !product.Stock.TrackQuantity {
		return nil
	}
	product.Stock.Quantity += quantity
	r.s.products[id] = product
	return nil
}

// Carts

type memCartRepo struct{ s *memStore }

func (r memCartRepo) FindByUserID(_ context.Context, userID uuid.UUID) (*domain.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cart, ok := r.s.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return cloneCart(cart), nil
}

func (r memCartRepo) Create(_ context.Context, cart *domain.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.carts[cart.UserID]; ok {
		return repository.ErrCartAlreadyExists
	}
	r.s.carts[cart.UserID] = cloneCart(cart)
	return nil
}

func (r memCartRepo) Save(_ context.Context, cart *domain.Cart) error {
	cart.Recalculate()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.carts[cart.UserID]; !ok {
		return repository.ErrCartNotFound
	}
	r.s.carts[cart.UserID] = cloneCart(cart)
	return nil
}

func (r memCartRepo) DeleteByUserID(_ context.Context, userID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.carts, userID)
	return nil
}

// Orders

type memOrderRepo struct{ s *memStore }

func (r memOrderRepo) Create(_ context.Context, order *domain.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r memOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	r.s.mu.Lock()
	order, ok := r.s.orders[id]
	if !ok {
		r.s.mu.Unlock()
		return nil, repository.ErrOrderNotFound
	}
	found := cloneOrder(order)
	hook := r.s.afterFindOrder
	r.s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return found, nil
}

func (r memOrderRepo) List(_ context.Context, filter repository.OrderFilter) ([]*domain.Order, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []*domain.Order
	for _, order := range r.s.orders {
		if filter.UserID != nil && order.UserID != *filter.UserID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		matched = append(matched, cloneOrder(order))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return paginate(matched, filter.Page, filter.PageSize), len(matched), nil
}

func (r memOrderRepo) UpdateStatus(_ context.Context, order *domain.Order, prev domain.OrderStatus, entry *domain.StatusHistoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[order.ID]
	if !ok || stored.Status != prev {
		return repository.ErrOrderConflict
	}
	updated := cloneOrder(stored)
	updated.Status = order.Status
	updated.IsDelivered = order.IsDelivered
	updated.DeliveredAt = order.DeliveredAt
	updated.CancelledAt = order.CancelledAt
	updated.TrackingNumber = order.TrackingNumber
	updated.EstimatedDelivery = order.EstimatedDelivery
	updated.UpdatedAt = order.UpdatedAt
	if entry != nil {
		updated.StatusHistory = append(updated.StatusHistory, *entry)
	}
	r.s.orders[order.ID] = updated
	return nil
}

func (r memOrderRepo) MarkPaid(_ context.Context, order *domain.Order, prev domain.OrderStatus, entry *domain.StatusHistoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[order.ID]
	if !ok || stored.Status != prev || stored.IsPaid {
		return repository.ErrOrderConflict
	}
	updated := cloneOrder(stored)
	updated.IsPaid = true
	updated.Payment.TransactionID = order.Payment.TransactionID
	updated.Payment.PaidAt = order.Payment.PaidAt
	updated.Status = order.Status
	updated.UpdatedAt = order.UpdatedAt
	if entry != nil {
		updated.StatusHistory = append(updated.StatusHistory, *entry)
	}
	r.s.orders[order.ID] = updated
	return nil
}

func (r memOrderRepo) SetPaymentIntent(_ context.Context, id uuid.UUID, method, intentID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	stored.Payment.Method = method
	stored.Payment.IntentID = intentID
	return nil
}

func (r memOrderRepo) HasDeliveredOrderWithProduct(_ context.Context, userID, productID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, order := range r.s.orders {
		if order.UserID == userID && order.IsDelivered && orderHasProduct(order, productID) {
			return true, nil
		}
	}
	return false, nil
}

func (r memOrderRepo) HasOpenOrderWithProduct(_ context.Context, productID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, order := range r.s.orders {
		if !order.Status.IsTerminal() && orderHasProduct(order, productID) {
			return true, nil
		}
	}
	return false, nil
}

func orderHasProduct(order *domain.Order, productID uuid.UUID) bool {
	for _, item := range order.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// Reviews

type memReviewRepo struct{ s *memStore }

func (r memReviewRepo) Create(_ context.Context, review *domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.reviews {
		if existing.ProductID == review.ProductID && existing.UserID == review.UserID {
			return repository.ErrReviewAlreadyExists
		}
	}
	r.s.reviews[review.ID] = *review
	return nil
}

func (r memReviewRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	review, ok := r.s.reviews[id]
	if !ok {
		return nil, repository.ErrReviewNotFound
	}
	return &review, nil
}

func (r memReviewRepo) ListByProduct(_ context.Context, productID uuid.UUID, page, pageSize int) ([]*domain.Review, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var matched []*domain.Review
	for _, review := range r.s.reviews {
		if review.ProductID == productID {
			rv := review
			matched = append(matched, &rv)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return paginate(matched, page, pageSize), len(matched), nil
}

func (r memReviewRepo) Update(_ context.Context, review *domain.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.reviews[review.ID]
	if !ok {
		return repository.ErrReviewNotFound
	}
	stored.Rating = review.Rating
	stored.Title = review.Title
	stored.Comment = review.Comment
	stored.UpdatedAt = review.UpdatedAt
	r.s.reviews[review.ID] = stored
	return nil
}

func (r memReviewRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.reviews[id]; !ok {
		return repository.ErrReviewNotFound
	}
	delete(r.s.reviews, id)
	return nil
}
