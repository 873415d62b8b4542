package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/middleware"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "transport-test-secret"

// Stubs embed the service interface; calling a method a test did not set panics.

type stubUsers struct {
	service.UserService
	register func(email string) (*domain.User, error)
	login    func(email, password string) (string, string, *domain.User, error)
	update   func(id uuid.UUID, in service.ProfileUpdate) (*domain.User, error)
}

func (s *stubUsers) Register(_ context.Context, email, _, _, _ string) (*domain.User, error) {
	return s.register(email)
}

func (s *stubUsers) Login(_ context.Context, email, password string) (string, string, *domain.User, error) {
	return s.login(email, password)
}

func (s *stubUsers) UpdateProfile(_ context.Context, id uuid.UUID, in service.ProfileUpdate) (*domain.User, error) {
	return s.update(id, in)
}

type stubCatalog struct {
	service.CatalogService
	listProducts  func(filter repository.ProductFilter) ([]*domain.Product, int, error)
	getProduct    func(id uuid.UUID, includeInactive bool) (*domain.Product, error)
	createProduct func(in service.ProductInput) (*domain.Product, error)
}

func (s *stubCatalog) ListProducts(_ context.Context, filter repository.ProductFilter) ([]*domain.Product, int, error) {
	return s.listProducts(filter)
}

func (s *stubCatalog) GetProduct(_ context.Context, id uuid.UUID, includeInactive bool) (*domain.Product, error) {
	return s.getProduct(id, includeInactive)
}

func (s *stubCatalog) CreateProduct(_ context.Context, in service.ProductInput) (*domain.Product, error) {
	return s.createProduct(in)
}

type stubCarts struct {
	service.CartService
	addItem func(userID, productID uuid.UUID, qty int) (*domain.Cart, error)
	sync    func(userID uuid.UUID, lines []service.SyncLine) (*domain.Cart, []string, error)
}

func (s *stubCarts) AddItem(_ context.Context, userID, productID uuid.UUID, qty int) (*domain.Cart, error) {
	return s.addItem(userID, productID, qty)
}

func (s *stubCarts) Sync(_ context.Context, userID uuid.UUID, lines []service.SyncLine) (*domain.Cart, []string, error) {
	return s.sync(userID, lines)
}

type stubOrders struct {
	service.OrderService
	place  func(userID uuid.UUID, in service.PlaceOrderInput) (*domain.Order, error)
	get    func(actor service.Actor, id uuid.UUID) (*domain.Order, error)
	list   func(actor service.Actor, q service.OrderQuery) ([]*domain.Order, int, error)
	cancel func(actor service.Actor, id uuid.UUID, reason string) (*domain.Order, error)
	update func(actor service.Actor, id uuid.UUID, u service.StatusUpdate) (*domain.Order, error)
}

func (s *stubOrders) PlaceOrder(_ context.Context, userID uuid.UUID, in service.PlaceOrderInput) (*domain.Order, error) {
	return s.place(userID, in)
}

func (s *stubOrders) GetOrder(_ context.Context, actor service.Actor, id uuid.UUID) (*domain.Order, error) {
	return s.get(actor, id)
}

func (s *stubOrders) ListOrders(_ context.Context, actor service.Actor, q service.OrderQuery) ([]*domain.Order, int, error) {
	return s.list(actor, q)
}

func (s *stubOrders) CancelOrder(_ context.Context, actor service.Actor, id uuid.UUID, reason string) (*domain.Order, error) {
	return s.cancel(actor, id, reason)
}

func (s *stubOrders) UpdateStatus(_ context.Context, actor service.Actor, id uuid.UUID, u service.StatusUpdate) (*domain.Order, error) {
	return s.update(actor, id, u)
}

type stubPayments struct {
	service.PaymentService
	createIntent func(actor service.Actor, orderID uuid.UUID) (*payment.Intent, error)
	webhook      func(payload []byte, sig string) error
}

func (s *stubPayments) CreateIntent(_ context.Context, actor service.Actor, orderID uuid.UUID) (*payment.Intent, error) {
	return s.createIntent(actor, orderID)
}

func (s *stubPayments) HandleWebhook(_ context.Context, payload []byte, sig string) error {
	return s.webhook(payload, sig)
}

type stubReviews struct {
	service.ReviewService
}

type testAPI struct {
	router   http.Handler
	users    *stubUsers
	catalog  *stubCatalog
	carts    *stubCarts
	orders   *stubOrders
	payments *stubPayments
}

func newTestAPI() *testAPI {
	logger := zap.NewNop()
	api := &testAPI{
		users:    &stubUsers{},
		catalog:  &stubCatalog{},
		carts:    &stubCarts{},
		orders:   &stubOrders{},
		payments: &stubPayments{},
	}

	passThrough := func(next http.Handler) http.Handler { return next }
	r := chi.NewRouter()
	r.Use(middleware.ErrorHandlingMiddleware(logger))
	RegisterRoutes(r, Handlers{
		Users:    NewUserHandler(api.users, logger),
		Catalog:  NewCatalogHandler(api.catalog, logger),
		Reviews:  NewReviewHandler(&stubReviews{}, logger),
		Carts:    NewCartHandler(api.carts, logger),
		Orders:   NewOrderHandler(api.orders, logger),
		Payments: NewPaymentHandler(api.payments, logger),
	}, Guards{
		Auth:         middleware.AuthMiddleware(testSecret, logger),
		OptionalAuth: middleware.OptionalAuthMiddleware(testSecret, logger),
		Admin:        middleware.RequireAdmin(logger),
		AuthLimit:    passThrough,
	})
	api.router = r
	return api
}

func bearer(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func (a *testAPI) do(t *testing.T, method, path, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success    bool                         `json:"success"`
	Data       json.RawMessage              `json:"data"`
	Error      string                       `json:"error"`
	Details    []middleware.ValidationError `json:"details"`
	Pagination *middleware.Pagination       `json:"pagination"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}
