package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Guards are the middlewares protected routes are wrapped in
type Guards struct {
	Auth         func(http.Handler) http.Handler
	OptionalAuth func(http.Handler) http.Handler
	Admin        func(http.Handler) http.Handler
	// AuthLimit throttles the credential endpoints
	AuthLimit func(http.Handler) http.Handler
}

// Handlers groups every API handler
type Handlers struct {
	Users    *UserHandler
	Catalog  *CatalogHandler
	Reviews  *ReviewHandler
	Carts    *CartHandler
	Orders   *OrderHandler
	Payments *PaymentHandler
}

// RegisterRoutes mounts the whole API under /api
func RegisterRoutes(r chi.Router, h Handlers, g Guards) {
	r.Route("/api/users", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			r.Use(g.AuthLimit)
			r.Post("/register", h.Users.Register)
			r.Post("/login", h.Users.Login)
			r.Post("/refresh", h.Users.RefreshToken)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(g.Auth)
			r.Post("/logout", h.Users.Logout)
			r.Get("/profile", h.Users.GetProfile)
			r.Put("/profile", h.Users.UpdateProfile)
			r.Delete("/profile", h.Users.DeactivateAccount)
		})
	})

	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", h.Catalog.ListCategories)
		r.Get("/{id}", h.Catalog.GetCategory)

		r.Group(func(r chi.Router) {
			r.Use(g.Auth, g.Admin)
			r.Post("/", h.Catalog.CreateCategory)
			r.Put("/{id}", h.Catalog.UpdateCategory)
			r.Delete("/{id}", h.Catalog.DeleteCategory)
		})
	})

	r.Route("/api/products", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(g.OptionalAuth)
			r.Get("/", h.Catalog.ListProducts)
			r.Get("/{id}", h.Catalog.GetProduct)
			r.Get("/{id}/reviews", h.Reviews.ListByProduct)
		})

		r.With(g.Auth).Post("/{id}/reviews", h.Reviews.Create)

		r.Group(func(r chi.Router) {
			r.Use(g.Auth, g.Admin)
			r.Get("/low-stock", h.Catalog.ListLowStock)
			r.Post("/", h.Catalog.CreateProduct)
			r.Put("/{id}", h.Catalog.UpdateProduct)
			r.Delete("/{id}", h.Catalog.DeleteProduct)
			r.Patch("/{id}/stock", h.Catalog.SetStock)
		})
	})

	r.Route("/api/reviews", func(r chi.Router) {
		r.Use(g.Auth)
		r.Put("/{id}", h.Reviews.Update)
		r.Delete("/{id}", h.Reviews.Delete)
	})

	r.Route("/api/cart", func(r chi.Router) {
		r.Use(g.Auth)
		r.Get("/", h.Carts.Get)
		r.Delete("/", h.Carts.Clear)
		r.Post("/items", h.Carts.AddItem)
		r.Put("/items/{productID}", h.Carts.UpdateItem)
		r.Delete("/items/{productID}", h.Carts.RemoveItem)
		r.Post("/sync", h.Carts.Sync)
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(g.Auth)
		r.Post("/", h.Orders.PlaceOrder)
		r.Get("/", h.Orders.ListOrders)
		r.With(g.Admin).Get("/all", h.Orders.ListAllOrders)
		r.Get("/{id}", h.Orders.GetOrder)
		r.Post("/{id}/cancel", h.Orders.CancelOrder)
		r.With(g.Admin).Put("/{id}/status", h.Orders.UpdateStatus)
	})

	r.Route("/api/payments", func(r chi.Router) {
		r.Post("/webhook", h.Payments.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(g.Auth)
			r.Post("/intent", h.Payments.CreateIntent)
			r.Post("/confirm", h.Payments.ConfirmPayment)
		})
	})
}
