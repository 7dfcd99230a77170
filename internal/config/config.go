package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Oatfi     OatfiConfig     `yaml:"oatfi"`
	Fees      FeesConfig      `yaml:"fees"`
	Invoice   InvoiceConfig   `yaml:"invoice"`
	SendGrid  SendGridConfig  `yaml:"sendgrid"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
	Firebase  FirebaseConfig  `yaml:"firebase"`
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres" (lib/pq) or "pgx"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// JWTConfig contains bearer token settings
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// StripeConfig contains payment gateway settings
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	ProductID     string `yaml:"product_id"`
	WebhookSecret string `yaml:"webhook_secret"`
	FeeAccount    string `yaml:"fee_account"` // connected account receiving platform fees
	Currency      string `yaml:"currency"`
	TimeoutSec    int    `yaml:"timeout_seconds"`
}

// OatfiConfig contains credit provider settings
type OatfiConfig struct {
	URL           string `yaml:"url"`
	APIKey        string `yaml:"api_key"`
	ProductID     string `yaml:"product_id"`
	StripeAccount string `yaml:"stripe_account"` // account loan repayments are transferred to
	TimeoutSec    int    `yaml:"timeout_seconds"`
	CacheTTLSec   int    `yaml:"preapproval_cache_ttl_seconds"`
}

// FeesConfig contains platform fee settings
type FeesConfig struct {
	// nil when unset; Validate fills in 1%. An explicit 0 is kept.
	HandlingFeePercent *decimal.Decimal `yaml:"handling_fee_percent"`
}

// InvoiceConfig contains invoice issuing settings
type InvoiceConfig struct {
	DueDays   int    `yaml:"due_days"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
	OpsEmail  string `yaml:"ops_email"` // operator alerts; empty disables alert email
}

// SendGridConfig contains email service settings
type SendGridConfig struct {
	APIKey string `yaml:"api_key"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	Type      string `yaml:"type"`       // "mock" or "s3"
	UploadDir string `yaml:"upload_dir"` // For mock storage
	BaseURL   string `yaml:"base_url"`   // Server base URL for mock URLs
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// RedisConfig contains cache settings. An empty address disables caching.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// FirebaseConfig contains push notification settings
type FirebaseConfig struct {
	CredentialsFile string `yaml:"credentials_file"` // empty disables push
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ReconcileStalledPayouts string `yaml:"reconcile_stalled_payouts"`
	MarkLateLoans           string `yaml:"mark_late_loans"`
	SyncUnpaidInvoices      string `yaml:"sync_unpaid_invoices"`
}

// WebhooksConfig contains webhook ingestion settings
type WebhooksConfig struct {
	ClaimStaleAfterSec int `yaml:"claim_stale_after_seconds"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.overrideWithEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, val)
	}
	*dst = n
	return nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() error {
	// Database
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.Host, "DB_HOST")
	if err := setInt(&c.Database.Port, "DB_PORT"); err != nil {
		return err
	}
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Database, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSL_MODE")

	// Server
	setString(&c.Server.Host, "SERVER_HOST")
	if err := setInt(&c.Server.Port, "SERVER_PORT"); err != nil {
		return err
	}

	setString(&c.JWT.Secret, "JWT_SECRET")

	// Stripe
	setString(&c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	setString(&c.Stripe.ProductID, "STRIPE_PRODUCT_ID")
	setString(&c.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setString(&c.Stripe.FeeAccount, "NAUVUS_FEE_ACCOUNT")

	// Oatfi
	setString(&c.Oatfi.URL, "OATFI_URL")
	setString(&c.Oatfi.APIKey, "OATFI_API_KEY")
	setString(&c.Oatfi.ProductID, "OATFI_PRODUCT_ID")
	setString(&c.Oatfi.StripeAccount, "OATFI_STRIPE_ACCOUNT")

	if val := os.Getenv("NAUVUS_HANDLING_FEE_PERCENT"); val != "" {
		pct, err := decimal.NewFromString(val)
		if err != nil {
			return fmt.Errorf("NAUVUS_HANDLING_FEE_PERCENT: %q is not a decimal", val)
		}
		c.Fees.HandlingFeePercent = &pct
	}

	setString(&c.SendGrid.APIKey, "SENDGRID_API_KEY")
	setString(&c.Invoice.FromEmail, "INVOICE_FROM_EMAIL")
	setString(&c.Invoice.OpsEmail, "OPS_ALERT_EMAIL")

	// Storage
	setString(&c.Storage.Type, "STORAGE_TYPE")
	setString(&c.Storage.UploadDir, "UPLOAD_DIR")
	setString(&c.Storage.Endpoint, "S3_ENDPOINT")
	setString(&c.Storage.AccessKey, "S3_ACCESS_KEY")
	setString(&c.Storage.SecretKey, "S3_SECRET_KEY")
	setString(&c.Storage.Bucket, "S3_BUCKET")

	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	setString(&c.Firebase.CredentialsFile, "FIREBASE_CREDENTIALS_FILE")

	// Log
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	return nil
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Database validation
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "pgx" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.Port < 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	// Stripe validation
	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("stripe secret key is required")
	}
	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("stripe webhook secret is required")
	}
	if c.Stripe.FeeAccount == "" {
		return fmt.Errorf("stripe fee account is required")
	}
	if c.Stripe.Currency == "" {
		c.Stripe.Currency = "usd"
	}
	if c.Stripe.TimeoutSec <= 0 {
		c.Stripe.TimeoutSec = 30
	}

	// Oatfi validation
	if c.Oatfi.URL == "" {
		return fmt.Errorf("oatfi url is required")
	}
	if c.Oatfi.TimeoutSec <= 0 {
		c.Oatfi.TimeoutSec = 15
	}
	if c.Oatfi.CacheTTLSec <= 0 {
		c.Oatfi.CacheTTLSec = 300
	}

	// Fee defaults
	if c.Fees.HandlingFeePercent == nil {
		pct := decimal.NewFromInt(1)
		c.Fees.HandlingFeePercent = &pct
	}
	if pct := *c.Fees.HandlingFeePercent; pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("handling fee percent must be between 0 and 100: %s", pct)
	}

	if c.Invoice.DueDays <= 0 {
		c.Invoice.DueDays = 30
	}
	if c.Invoice.FromName == "" {
		c.Invoice.FromName = "Nauvus"
	}

	// Storage defaults
	if c.Storage.Type == "" {
		c.Storage.Type = "mock"
	}
	if c.Storage.Type == "mock" && c.Storage.UploadDir == "" {
		return fmt.Errorf("upload directory is required")
	}
	if c.Storage.Type == "s3" && (c.Storage.Endpoint == "" || c.Storage.Bucket == "") {
		return fmt.Errorf("s3 endpoint and bucket are required")
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "nauvus"
	}

	// Scheduler defaults
	if c.Scheduler.ReconcileStalledPayouts == "" {
		c.Scheduler.ReconcileStalledPayouts = "0 */15 * * * *" // every 15 minutes
	}
	if c.Scheduler.MarkLateLoans == "" {
		c.Scheduler.MarkLateLoans = "0 0 2 * * *" // 2 AM UTC
	}
	if c.Scheduler.SyncUnpaidInvoices == "" {
		c.Scheduler.SyncUnpaidInvoices = "0 0 3 * * *" // 3 AM UTC
	}

	if c.Webhooks.ClaimStaleAfterSec <= 0 {
		c.Webhooks.ClaimStaleAfterSec = 600
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) StripeTimeout() time.Duration {
	return time.Duration(c.Stripe.TimeoutSec) * time.Second
}

func (c *Config) OatfiTimeout() time.Duration {
	return time.Duration(c.Oatfi.TimeoutSec) * time.Second
}

// HandlingFeePercent returns the configured fee, or 1% before Validate ran.
func (c *Config) HandlingFeePercent() decimal.Decimal {
	if c.Fees.HandlingFeePercent == nil {
		return decimal.NewFromInt(1)
	}
	return *c.Fees.HandlingFeePercent
}

func (c *Config) ClaimStaleAfter() time.Duration {
	return time.Duration(c.Webhooks.ClaimStaleAfterSec) * time.Second
}
