package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Payment       PaymentConfig
	Kafka         KafkaConfig
	Pricing       PricingConfig
	Notifications NotificationConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Cache         CacheConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	Schema          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  int // in minutes
	RefreshExpiry int // in days
}

type PaymentConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type PricingConfig struct {
	DefaultTaxRate        decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	BaseShippingFee       decimal.Decimal
	MaxShippingFee        decimal.Decimal
}

type NotificationConfig struct {
	AdminEmail string
}

type RateLimitConfig struct {
	AuthRequests int
	Window       time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type CacheConfig struct {
	ProductTTL time.Duration
}

func Load() *Config {
	// .env values are exported first so that viper.AutomaticEnv also sees them
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 25)
	viper.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JWT_ACCESS_EXPIRY", 15)
	viper.SetDefault("JWT_REFRESH_EXPIRY", 7)
	viper.SetDefault("PAYMENT_CURRENCY", "usd")
	viper.SetDefault("KAFKA_TOPIC", "storefront.notifications")
	viper.SetDefault("TAX_DEFAULT_RATE", "0.08")
	viper.SetDefault("SHIPPING_FREE_THRESHOLD", "100")
	viper.SetDefault("SHIPPING_BASE_FEE", "5.99")
	viper.SetDefault("SHIPPING_MAX_FEE", "25")
	viper.SetDefault("RATE_LIMIT_AUTH_REQUESTS", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW", "1m")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("CACHE_PRODUCT_TTL", "5m")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Could not read config file: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("SERVER_PORT"),
			Env:  viper.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			Host:            viper.GetString("DB_HOST"),
			Port:            viper.GetString("DB_PORT"),
			User:            viper.GetString("DB_USER"),
			Password:        viper.GetString("DB_PASSWORD"),
			Database:        viper.GetString("DB_DATABASE"),
			Schema:          viper.GetString("DB_SCHEMA"),
			SSLMode:         viper.GetString("DB_SSLMODE"),
			MaxOpenConns:    viper.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    viper.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: viper.GetDuration("DB_CONN_MAX_LIFETIME"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:        viper.GetString("JWT_SECRET"),
			AccessExpiry:  viper.GetInt("JWT_ACCESS_EXPIRY"),
			RefreshExpiry: viper.GetInt("JWT_REFRESH_EXPIRY"),
		},
		Payment: PaymentConfig{
			StripeSecretKey:     viper.GetString("STRIPE_SECRET_KEY"),
			StripeWebhookSecret: viper.GetString("STRIPE_WEBHOOK_SECRET"),
			Currency:            strings.ToLower(viper.GetString("PAYMENT_CURRENCY")),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(viper.GetString("KAFKA_BROKERS")),
			Topic:   viper.GetString("KAFKA_TOPIC"),
		},
		Pricing: PricingConfig{
			DefaultTaxRate:        getDecimal("TAX_DEFAULT_RATE"),
			FreeShippingThreshold: getDecimal("SHIPPING_FREE_THRESHOLD"),
			BaseShippingFee:       getDecimal("SHIPPING_BASE_FEE"),
			MaxShippingFee:        getDecimal("SHIPPING_MAX_FEE"),
		},
		Notifications: NotificationConfig{
			AdminEmail: viper.GetString("ADMIN_ALERT_EMAIL"),
		},
		RateLimit: RateLimitConfig{
			AuthRequests: viper.GetInt("RATE_LIMIT_AUTH_REQUESTS"),
			Window:       viper.GetDuration("RATE_LIMIT_WINDOW"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Cache: CacheConfig{
			ProductTTL: viper.GetDuration("CACHE_PRODUCT_TTL"),
		},
	}
}

// Validate reports settings that must be present before serving traffic
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Database.User == "" || c.Database.Database == "" {
		errs = append(errs, errors.New("DB_USER and DB_DATABASE are required"))
	}
	if c.Server.Env == "production" {
		if c.Payment.StripeSecretKey == "" || c.Payment.StripeWebhookSecret == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required in production"))
		}
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required in production"))
		}
	}
	return errors.Join(errs...)
}

func getDecimal(key string) decimal.Decimal {
	d, err := decimal.NewFromString(viper.GetString(key))
	if err != nil {
		log.Printf("Warning: invalid decimal for %s, using 0: %v", key, err)
		return decimal.Zero
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
