package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"storefront/internal/cache"
	"storefront/internal/domain"
	"storefront/internal/notification"
	"storefront/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const validSignature = "t=1,v1=valid"

// fakeGateway keeps intents in memory. Webhook payloads are JSON encoded payment.Event
// values and are accepted only with validSignature.
type fakeGateway struct {
	mu        sync.Mutex
	intents   map[string]*payment.Intent
	refunds   []string
	createErr error
	refundErr error
	parseErr  error
	// onRefund runs before a refund is recorded
	onRefund func(intentID string)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: make(map[string]*payment.Intent)}
}

func (g *fakeGateway) CreateIntent(_ context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	intent := &payment.Intent{
		ID:           "pi_" + uuid.NewString()[:8],
		ClientSecret: "secret",
		Status:       payment.IntentRequiresPaymentMethod,
		Amount:       amount,
		Currency:     currency,
		Metadata:     metadata,
	}
	g.intents[intent.ID] = intent
	return intent, nil
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, id string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	intent, ok := g.intents[id]
	if !ok {
		return nil, fmt.Errorf("%w: no such intent %s", payment.ErrGateway, id)
	}
	cp := *intent
	return &cp, nil
}

func (g *fakeGateway) Refund(_ context.Context, intentID string) error {
	if g.onRefund != nil {
		g.onRefund(intentID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, intentID)
	return nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signatureHeader string) (*payment.Event, error) {
	if signatureHeader != validSignature {
		return nil, payment.ErrInvalidSignature
	}
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	var event payment.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", payment.ErrInvalidSignature, err)
	}
	return &event, nil
}

func (g *fakeGateway) succeed(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[id].Status = payment.IntentSucceeded
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

// fakeNotifier records every message it is asked to send
type fakeNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
	err      error
}

func (n *fakeNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *fakeNotifier) ofKind(kind notification.Kind) []notification.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notification.Message
	for _, msg := range n.messages {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}

type testEnv struct {
	store    *memStore
	gateway  *fakeGateway
	notifier *fakeNotifier
	logger   *zap.Logger

	users    UserService
	catalog  CatalogService
	carts    CartService
	orders   OrderService
	payments PaymentService
	reviews  ReviewService

	category domain.Category
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithCache(t, nil)
}

func newTestEnvWithCache(t *testing.T, productCache *cache.ProductCache) *testEnv {
	t.Helper()

	store := newMemStore()
	gateway := newFakeGateway()
	notifier := &fakeNotifier{}
	logger := zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
	tx := memTransactor{s: store}

	env := &testEnv{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
		users: NewUserService(memUserRepo{store}, memTokenRepo{store}, memCartRepo{store}, tx, TokenConfig{
			Secret: "test-secret-key",
		}),
		catalog: NewCatalogService(memCategoryRepo{store}, memProductRepo{store}, memOrderRepo{store}, productCache, logger),
		carts:   NewCartService(memCartRepo{store}, memProductRepo{store}, logger),
		orders: NewOrderService(OrderDeps{
			Transactor: tx,
			Orders:     memOrderRepo{store},
			Carts:      memCartRepo{store},
			Products:   memProductRepo{store},
			Users:      memUserRepo{store},
			Gateway:    gateway,
			Pricer:     domain.Pricer{Tax: domain.DefaultTaxPolicy(), Shipping: domain.DefaultShippingPolicy()},
			Cache:      productCache,
			Notifier:   notifier,
			AdminEmail: "ops@example.com",
			Logger:     logger,
		}),
		payments: NewPaymentService(memOrderRepo{store}, memUserRepo{store}, gateway, notifier, "usd", "ops@example.com", logger),
		reviews:  NewReviewService(memReviewRepo{store}, memProductRepo{store}, memOrderRepo{store}),
	}

	env.category = domain.Category{ID: uuid.New(), Name: "General", Slug: "general", IsActive: true}
	store.categories[env.category.ID] = env.category
	return env
}

func (e *testEnv) newUser(role string) Actor {
	id := uuid.New()
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	e.store.users[id] = domain.User{
		ID:        id,
		Email:     id.String()[:8] + "@example.com",
		FirstName: "Test",
		Role:      role,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	return Actor{UserID: id, Role: role}
}

func (e *testEnv) customer() Actor { return e.newUser(domain.RoleUser) }

func (e *testEnv) admin() Actor { return e.newUser(domain.RoleAdmin) }

// newProduct stores an active product with tracked stock
func (e *testEnv) newProduct(price string, stock int) domain.Product {
	id := uuid.New()
	product := domain.Product{
		ID:         id,
		SKU:        "SKU-" + id.String()[:8],
		Name:       "Product " + id.String()[:8],
		Slug:       "product-" + id.String()[:8],
		Price:      decimal.RequireFromString(price),
		CategoryID: e.category.ID,
		Weight:     decimal.RequireFromString("0.1"),
		Stock:      domain.Stock{Quantity: stock, LowStockThreshold: 2, TrackQuantity: true},
		IsActive:   true,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	e.store.products[id] = product
	return product
}

func (e *testEnv) stockOf(id uuid.UUID) int {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return e.store.products[id].Stock.Quantity
}

func (e *testEnv) setProduct(id uuid.UUID, mutate func(*domain.Product)) {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	product := e.store.products[id]
	mutate(&product)
	e.store.products[id] = product
}

func (e *testEnv) orderCount() int {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return len(e.store.orders)
}

func (e *testEnv) storedOrder(id uuid.UUID) *domain.Order {
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	return cloneOrder(e.store.orders[id])
}

func testAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		FullName:   "Ada Lovelace",
		Street:     "1 Analytical Way",
		City:       "London",
		State:      "ZZ",
		PostalCode: "N1",
		Country:    "GB",
	}
}

// placeOrder fills the cart of actor with lines and places an order
func (e *testEnv) placeOrder(t *testing.T, actor Actor, lines map[uuid.UUID]int) *domain.Order {
	t.Helper()
	ctx := context.Background()
	for productID, quantity := range lines {
		if _, err := e.carts.AddItem(ctx, actor.UserID, productID, quantity); err != nil {
			t.Fatalf("add item: %v", err)
		}
	}
	order, err := e.orders.PlaceOrder(ctx, actor.UserID, PlaceOrderInput{ShippingAddress: testAddress()})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	return order
}

func webhookPayload(t *testing.T, event payment.Event) []byte {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	return payload
}
