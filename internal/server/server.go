package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/domain"
	custommiddleware "storefront/internal/middleware"
	"storefront/internal/notification"
	"storefront/internal/payment"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// HealthChecker reports the state of a backing store
type HealthChecker interface {
	Health() map[string]string
}

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
	kafka  *notification.KafkaNotifier
}

// NewServer wires repositories, services and handlers onto one router.
// Redis and Kafka are optional: without them caching and rate limiting are
// disabled and notifications are only logged.
func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB, health HealthChecker) *Server {
	s := &Server{config: cfg, logger: logger, db: db}

	rdb, err := cache.NewRedisClient(cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis unavailable, running without cache and rate limiting", zap.Error(err))
	} else {
		s.redis = rdb
	}

	var notifier notification.Notifier = notification.NewLogNotifier(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := notification.NewProducer(cfg.Kafka, logger)
		if err != nil {
			logger.Warn("Kafka unavailable, notifications will only be logged", zap.Error(err))
		} else {
			s.kafka = notification.NewKafkaNotifier(producer, cfg.Kafka.Topic, logger)
			notifier = s.kafka
		}
	}

	// Initialize repositories
	transactor := repository.NewTransactor(db)
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	categoryRepo := repository.NewCategoryRepository(db)
	productRepo := repository.NewProductRepository(db)
	cartRepo := repository.NewCartRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	reviewRepo := repository.NewReviewRepository(db)

	productCache := cache.NewProductCache(s.redis, cfg.Cache.ProductTTL, logger)
	gateway := payment.NewStripeGateway(cfg.Payment, logger)

	// Initialize services
	userService := service.NewUserService(userRepo, refreshTokenRepo, cartRepo, transactor, service.TokenConfig{
		Secret:        cfg.JWT.Secret,
		AccessExpiry:  time.Duration(cfg.JWT.AccessExpiry) * time.Minute,
		RefreshExpiry: time.Duration(cfg.JWT.RefreshExpiry) * 24 * time.Hour,
	})
	catalogService := service.NewCatalogService(categoryRepo, productRepo, orderRepo, productCache, logger)
	cartService := service.NewCartService(cartRepo, productRepo, logger)
	orderService := service.NewOrderService(service.OrderDeps{
		Transactor: transactor,
		Orders:     orderRepo,
		Carts:      cartRepo,
		Products:   productRepo,
		Users:      userRepo,
		Gateway:    gateway,
		Pricer:     newPricer(cfg.Pricing),
		Cache:      productCache,
		Notifier:   notifier,
		AdminEmail: cfg.Notifications.AdminEmail,
		Logger:     logger,
	})
	paymentService := service.NewPaymentService(orderRepo, userRepo, gateway, notifier,
		cfg.Payment.Currency, cfg.Notifications.AdminEmail, logger)
	reviewService := service.NewReviewService(reviewRepo, productRepo, orderRepo)

	router := chi.NewRouter()
	router.Use(custommiddleware.DefaultMiddlewareStack(logger)...)
	router.Use(custommiddleware.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.Server.Env == "development"))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := health.Health()
		if stats["status"] != "up" {
			custommiddleware.RespondWithErrorDetails(w, http.StatusServiceUnavailable, "database unavailable", stats)
			return
		}
		custommiddleware.RespondWithJSON(w, http.StatusOK, stats)
	})
	router.Handle("/metrics", custommiddleware.PrometheusHandler())

	transport.RegisterRoutes(router, transport.Handlers{
		Users:    transport.NewUserHandler(userService, logger),
		Catalog:  transport.NewCatalogHandler(catalogService, logger),
		Reviews:  transport.NewReviewHandler(reviewService, logger),
		Carts:    transport.NewCartHandler(cartService, logger),
		Orders:   transport.NewOrderHandler(orderService, logger),
		Payments: transport.NewPaymentHandler(paymentService, logger),
	}, transport.Guards{
		Auth:         custommiddleware.AuthMiddleware(cfg.JWT.Secret, logger),
		OptionalAuth: custommiddleware.OptionalAuthMiddleware(cfg.JWT.Secret, logger),
		Admin:        custommiddleware.RequireAdmin(logger),
		AuthLimit: custommiddleware.RateLimitMiddleware(s.redis, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.AuthRequests,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "ratelimit:auth",
		}, logger),
	})

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

func newPricer(cfg config.PricingConfig) domain.Pricer {
	tax := domain.DefaultTaxPolicy()
	tax.DefaultRate = cfg.DefaultTaxRate

	shipping := domain.DefaultShippingPolicy()
	shipping.FreeThreshold = cfg.FreeShippingThreshold
	shipping.BaseFee = cfg.BaseShippingFee
	shipping.MaxFee = cfg.MaxShippingFee

	return domain.Pricer{Tax: tax, Shipping: shipping}
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Error("Failed to close Kafka producer", zap.Error(err))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close Redis client", zap.Error(err))
		}
	}

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	_ = s.logger.Sync()
	return nil
}
