package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"vehicle-rental-backend/internal/domain"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Storage       StorageConfig       `yaml:"storage"`
	JWT           JWTConfig           `yaml:"jwt"`
	Booking       BookingConfig       `yaml:"booking"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Log           LogConfig           `yaml:"log"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
}

// ServerConfig holds the HTTP API port and the gRPC health port
type ServerConfig struct {
	Host          string `yaml:"host"`
	HTTPPort      int    `yaml:"http_port"`
	GRPCPort      int    `yaml:"grpc_port"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// StorageConfig selects the repository backend
type StorageConfig struct {
	Type string `yaml:"type"` // "postgres" or "memory"
	// Vehicles seeds the in-memory registry; postgres reads the vehicles table instead.
	Vehicles []VehicleSeed `yaml:"vehicles"`
}

type VehicleSeed struct {
	ID                    int32 `yaml:"id"`
	CurrentMileage        int32 `yaml:"current_mileage"`
	DailyRateCents        int32 `yaml:"daily_rate_cents"`
	DepositCents          int32 `yaml:"deposit_cents"`
	UnlimitedMileage      bool  `yaml:"unlimited_mileage"`
	DailyMileageAllowance int32 `yaml:"daily_mileage_allowance"`
	ExtraMileRateCents    int32 `yaml:"extra_mile_rate_cents"`
}

// SeedVehicles returns the configured registry entries as domain vehicles.
func (s StorageConfig) SeedVehicles() []domain.Vehicle {
	out := make([]domain.Vehicle, 0, len(s.Vehicles))
	for _, v := range s.Vehicles {
		out = append(out, domain.Vehicle{
			ID:                    v.ID,
			CurrentMileage:        v.CurrentMileage,
			DailyRateCents:        v.DailyRateCents,
			DepositCents:          v.DepositCents,
			UnlimitedMileage:      v.UnlimitedMileage,
			DailyMileageAllowance: v.DailyMileageAllowance,
			ExtraMileRateCents:    v.ExtraMileRateCents,
		})
	}
	return out
}

type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// BookingConfig holds the commercial policy knobs. Money is in cents.
type BookingConfig struct {
	PaymentToleranceCents     int32 `yaml:"payment_tolerance_cents"`
	CheckInLeadMinutes        int   `yaml:"check_in_lead_minutes"`
	FullRefundHours           int   `yaml:"full_refund_hours"`
	PartialRefundHours        int   `yaml:"partial_refund_hours"`
	PartialRefundPercent      int32 `yaml:"partial_refund_percent"`
	RefuelChargePerLevelCents int32 `yaml:"refuel_charge_per_level_cents"`
	TaxBasisPoints            int32 `yaml:"tax_basis_points"`
	UnconfirmedGraceMinutes   int   `yaml:"unconfirmed_grace_minutes"`
}

// NotificationsConfig configures the lifecycle event sinks. A sink with no settings is disabled.
type NotificationsConfig struct {
	AMQPURL               string `yaml:"amqp_url"`
	Exchange              string `yaml:"exchange"`
	SendGridAPIKey        string `yaml:"sendgrid_api_key"`
	FromEmail             string `yaml:"from_email"`
	FromName              string `yaml:"from_name"`
	OpsEmail              string `yaml:"ops_email"`
	FirebaseCredentials   string `yaml:"firebase_credentials_file"`
	PushTopicPrefix       string `yaml:"push_topic_prefix"`
	PublishTimeoutSeconds int    `yaml:"publish_timeout_seconds"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SchedulerConfig contains cron schedule settings (with seconds field)
type SchedulerConfig struct {
	ExpireUnconfirmedBookings string `yaml:"expire_unconfirmed_bookings"`
	RevokeExpiredDocuments    string `yaml:"revoke_expired_documents"`
}

// Load reads configuration from a YAML file. A .env file next to the working
// directory is loaded first so its values reach the environment overrides.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Server
	setString(&c.Server.Host, "SERVER_HOST")
	setInt(&c.Server.HTTPPort, "HTTP_PORT")
	setInt(&c.Server.GRPCPort, "GRPC_PORT")
	setString(&c.Server.WebhookSecret, "PAYMENT_WEBHOOK_SECRET")

	// Database
	setString(&c.Database.Host, "DB_HOST")
	setInt(&c.Database.Port, "DB_PORT")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Database, "DB_NAME")
	setString(&c.Database.SSLMode, "DB_SSL_MODE")

	setString(&c.Storage.Type, "STORAGE_TYPE")
	setString(&c.JWT.Secret, "JWT_SECRET")

	// Notifications
	setString(&c.Notifications.AMQPURL, "AMQP_URL")
	setString(&c.Notifications.SendGridAPIKey, "SENDGRID_API_KEY")
	setString(&c.Notifications.OpsEmail, "OPS_EMAIL")
	setString(&c.Notifications.FirebaseCredentials, "FIREBASE_CREDENTIALS_FILE")

	// Log
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		fmt.Sscanf(val, "%d", dst)
	}
}

// Validate checks if the configuration is valid and fills in defaults
func (c *Config) Validate() error {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = 9090
	}
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.HTTPPort)
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.Server.GRPCPort)
	}

	if c.Storage.Type == "" {
		c.Storage.Type = "postgres"
	}
	switch c.Storage.Type {
	case "postgres":
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
		if c.Database.SSLMode == "" {
			c.Database.SSLMode = "disable"
		}
	case "memory":
		if err := c.Storage.validateVehicles(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	b := &c.Booking
	if b.PaymentToleranceCents == 0 {
		b.PaymentToleranceCents = 1
	}
	if b.CheckInLeadMinutes == 0 {
		b.CheckInLeadMinutes = 60
	}
	if b.FullRefundHours == 0 {
		b.FullRefundHours = 24
	}
	if b.PartialRefundHours == 0 {
		b.PartialRefundHours = 6
	}
	if b.PartialRefundPercent == 0 {
		b.PartialRefundPercent = 50
	}
	if b.RefuelChargePerLevelCents == 0 {
		b.RefuelChargePerLevelCents = 1500
	}
	if b.PartialRefundHours >= b.FullRefundHours {
		return fmt.Errorf("partial refund window (%dh) must be shorter than full refund window (%dh)", b.PartialRefundHours, b.FullRefundHours)
	}
	if b.PartialRefundPercent < 0 || b.PartialRefundPercent > 100 {
		return fmt.Errorf("partial refund percent must be between 0 and 100")
	}
	if b.PaymentToleranceCents < 0 || b.TaxBasisPoints < 0 || b.CheckInLeadMinutes < 0 {
		return fmt.Errorf("booking policy values must not be negative")
	}

	n := &c.Notifications
	if n.Exchange == "" {
		n.Exchange = "booking_events"
	}
	if n.FromName == "" {
		n.FromName = "Vehicle Rental"
	}
	if n.PushTopicPrefix == "" {
		n.PushTopicPrefix = "customer-"
	}
	if n.PublishTimeoutSeconds == 0 {
		n.PublishTimeoutSeconds = 10
	}
	if n.SendGridAPIKey != "" && (n.FromEmail == "" || n.OpsEmail == "") {
		return fmt.Errorf("from_email and ops_email are required when SendGrid is enabled")
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Scheduler.ExpireUnconfirmedBookings == "" {
		c.Scheduler.ExpireUnconfirmedBookings = "0 */15 * * * *" // every 15 minutes
	}
	if c.Scheduler.RevokeExpiredDocuments == "" {
		c.Scheduler.RevokeExpiredDocuments = "0 0 1 * * *" // 1 AM UTC
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

func (c *Config) GetHTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}

func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

func (b BookingConfig) CheckInLead() time.Duration {
	return time.Duration(b.CheckInLeadMinutes) * time.Minute
}

func (b BookingConfig) UnconfirmedGrace() time.Duration {
	return time.Duration(b.UnconfirmedGraceMinutes) * time.Minute
}

func (n NotificationsConfig) PublishTimeout() time.Duration {
	return time.Duration(n.PublishTimeoutSeconds) * time.Second
}

func (s StorageConfig) validateVehicles() error {
	seen := make(map[int32]bool, len(s.Vehicles))
	for _, v := range s.Vehicles {
		if v.ID <= 0 {
			return fmt.Errorf("vehicle id must be positive, got %d", v.ID)
		}
		if seen[v.ID] {
			return fmt.Errorf("duplicate vehicle id %d", v.ID)
		}
		seen[v.ID] = true
		if v.CurrentMileage < 0 || v.DailyRateCents < 0 || v.DepositCents < 0 ||
			v.DailyMileageAllowance < 0 || v.ExtraMileRateCents < 0 {
			return fmt.Errorf("vehicle %d: mileage and rates must not be negative", v.ID)
		}
	}
	return nil
}
