package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"callsubs-backend/pkg/constants"
	"callsubs-backend/pkg/env"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	MinIO    MinIOConfig
	JWT      JWTConfig
	Log      LogConfig
	Twitch   TwitchConfig
	Stripe   StripeConfig
	Daily    DailyConfig
	Email    EmailConfig
	Push     PushConfig
	Calls    CallConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Environment    string // development, staging, production
	ServiceName    string
	AppURL         string // public frontend URL used in redirects and emails
	AllowedOrigins []string
	RequestTimeout time.Duration
	RateLimit      int
	RateWindow     time.Duration
}

// DatabaseConfig holds Postgres configuration
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int
	MinConns    int
	AutoMigrate bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// MinIOConfig holds MinIO configuration. Exports fall back to inline CSV when Endpoint is empty.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// TwitchConfig holds the OAuth client used for sign-in
type TwitchConfig struct {
	Provider     string // twitch, mock
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// StripeConfig holds payment provider configuration
type StripeConfig struct {
	Provider           string // stripe, mock
	SecretKey          string
	WebhookSecret      string
	PlatformFeePercent decimal.Decimal
	Currency           string
}

// DailyConfig holds video room provider configuration
type DailyConfig struct {
	Provider string // daily, mock
	APIKey   string
	BaseURL  string
}

// EmailConfig holds transactional email configuration
type EmailConfig struct {
	Provider string // resend, mock
	APIKey   string
	From     string
}

// PushConfig holds push notification configuration
type PushConfig struct {
	Provider        string // firebase, mock
	ProjectID       string
	CredentialsPath string
}

// CallConfig holds call lifecycle timings
type CallConfig struct {
	RequestTTL       time.Duration
	PaymentWindow    time.Duration
	CompletionGrace  time.Duration
	SweepInterval    time.Duration
	SweepBatchSize   int
	WebhookDedupeTTL time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	feePercent, err := decimal.NewFromString(env.GetString("PLATFORM_FEE_PERCENT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_FEE_PERCENT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           env.GetInt("PORT", 8080),
			Environment:    env.GetString("ENV", "development"),
			ServiceName:    env.GetString("SERVICE_NAME", "callsubs"),
			AppURL:         env.GetString("APP_URL", "http://localhost:3000"),
			AllowedOrigins: env.GetSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RequestTimeout: env.GetDuration("REQUEST_TIMEOUT", constants.DefaultTimeout),
			RateLimit:      env.GetInt("RATE_LIMIT_REQUESTS", 120),
			RateWindow:     env.GetDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Database: DatabaseConfig{
			Host:        env.GetString("DB_HOST", "localhost"),
			Port:        env.GetInt("DB_PORT", 5432),
			User:        env.GetString("DB_USER", "postgres"),
			Password:    env.GetStringFromFile("DB_PASSWORD", ""),
			Database:    env.GetString("DB_NAME", "callsubs"),
			SSLMode:     env.GetString("DB_SSL_MODE", "disable"),
			MaxConns:    env.GetInt("DB_MAX_CONNS", 25),
			MinConns:    env.GetInt("DB_MIN_CONNS", 2),
			AutoMigrate: env.GetBool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		MinIO: MinIOConfig{
			Endpoint:  env.GetString("MINIO_ENDPOINT", ""),
			AccessKey: env.GetStringFromFile("MINIO_ACCESS_KEY", ""),
			SecretKey: env.GetStringFromFile("MINIO_SECRET_KEY", ""),
			UseSSL:    env.GetBool("MINIO_USE_SSL", false),
			Bucket:    env.GetString("MINIO_BUCKET", "callsubs-exports"),
		},
		JWT: JWTConfig{
			Secret:             env.GetStringFromFile("JWT_SECRET", ""),
			AccessTokenExpiry:  env.GetDuration("JWT_ACCESS_EXPIRY", constants.AccessTokenExpiry),
			RefreshTokenExpiry: env.GetDuration("JWT_REFRESH_EXPIRY", constants.RefreshTokenExpiry),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/app.log"),
		},
		Twitch: TwitchConfig{
			Provider:     env.GetString("AUTH_PROVIDER", "mock"),
			ClientID:     env.GetString("TWITCH_CLIENT_ID", ""),
			ClientSecret: env.GetStringFromFile("TWITCH_CLIENT_SECRET", ""),
			RedirectURL:  env.GetString("TWITCH_REDIRECT_URL", "http://localhost:8080/v1/auth/twitch/callback"),
		},
		Stripe: StripeConfig{
			Provider:           env.GetString("PAYMENT_PROVIDER", "mock"),
			SecretKey:          env.GetStringFromFile("STRIPE_SECRET_KEY", ""),
			WebhookSecret:      env.GetStringFromFile("STRIPE_WEBHOOK_SECRET", ""),
			PlatformFeePercent: feePercent,
			Currency:           env.GetString("CURRENCY", "usd"),
		},
		Daily: DailyConfig{
			Provider: env.GetString("VIDEO_PROVIDER", "mock"),
			APIKey:   env.GetStringFromFile("DAILY_API_KEY", ""),
			BaseURL:  env.GetString("DAILY_BASE_URL", "https://api.daily.co/v1"),
		},
		Email: EmailConfig{
			Provider: env.GetString("EMAIL_PROVIDER", "mock"),
			APIKey:   env.GetStringFromFile("RESEND_API_KEY", ""),
			From:     env.GetString("EMAIL_FROM", "CallSubs <noreply@callsubs.app>"),
		},
		Push: PushConfig{
			Provider:        env.GetString("PUSH_PROVIDER", "mock"),
			ProjectID:       env.GetStringFromFile("FIREBASE_PROJECT_ID", ""),
			CredentialsPath: env.GetString("FIREBASE_CREDENTIALS_PATH", ""),
		},
		Calls: CallConfig{
			RequestTTL:       env.GetDuration("CALL_REQUEST_TTL", 10*time.Minute),
			PaymentWindow:    env.GetDuration("CALL_PAYMENT_WINDOW", 30*time.Minute),
			CompletionGrace:  env.GetDuration("CALL_COMPLETION_GRACE", 2*time.Minute),
			SweepInterval:    env.GetDuration("CALL_SWEEP_INTERVAL", 30*time.Second),
			SweepBatchSize:   env.GetInt("CALL_SWEEP_BATCH_SIZE", 100),
			WebhookDedupeTTL: env.GetDuration("WEBHOOK_DEDUPE_TTL", 48*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.IsProduction() {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if c.Stripe.Provider == "mock" || c.Daily.Provider == "mock" || c.Twitch.Provider == "mock" {
			return fmt.Errorf("mock payment, video or auth providers are not allowed in production")
		}
	}

	if c.Stripe.Provider == "stripe" {
		if c.Stripe.SecretKey == "" || c.Stripe.WebhookSecret == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required for the stripe provider")
		}
	}
	if c.Twitch.Provider == "twitch" && (c.Twitch.ClientID == "" || c.Twitch.ClientSecret == "") {
		return fmt.Errorf("TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET are required for the twitch provider")
	}
	if c.Daily.Provider == "daily" && c.Daily.APIKey == "" {
		return fmt.Errorf("DAILY_API_KEY is required for the daily provider")
	}
	if c.Email.Provider == "resend" && c.Email.APIKey == "" {
		return fmt.Errorf("RESEND_API_KEY is required for the resend provider")
	}

	if c.Stripe.PlatformFeePercent.IsNegative() || c.Stripe.PlatformFeePercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("PLATFORM_FEE_PERCENT must be between 0 and 100")
	}
	if c.Calls.RequestTTL <= 0 || c.Calls.PaymentWindow <= 0 || c.Calls.SweepInterval <= 0 {
		return fmt.Errorf("call timings must be positive")
	}

	return nil
}
