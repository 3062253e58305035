package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/afiqaffendi/rbs/internal/models"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Broker     BrokerConfig     `yaml:"broker"`
	Outbox     OutboxConfig     `yaml:"outbox"`
	// RestaurantsFile is the optional seed file loaded at startup.
	RestaurantsFile string `yaml:"restaurants_file"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	CORS      APICORSConfig      `yaml:"cors"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	// JWTSecret signs the bearer tokens issued by the identity provider.
	JWTSecret    string         `yaml:"jwt_secret"`
	Issuer       string         `yaml:"issuer"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

// APIClientKey authenticates machine callers such as the payment gateway.
type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type BookingConfig struct {
	StepMinutes       int           `yaml:"step_minutes"`
	WindowMinutes     int           `yaml:"window_minutes"`
	DepositCents      int64         `yaml:"deposit_cents"`
	MaxAttempts       int           `yaml:"max_attempts"`
	LockTTL           time.Duration `yaml:"lock_ttl"`
	OperationTimeout  time.Duration `yaml:"operation_timeout"`
	MaxBookingDays    int           `yaml:"max_booking_days"`
	RateLimitRequests int           `yaml:"rate_limit_requests"`
	RateLimitWindow   int           `yaml:"rate_limit_window"`
	// Timezone is the IANA zone of the restaurants, e.g. "Asia/Kuala_Lumpur". Empty means local time.
	Timezone string `yaml:"timezone"`
}

// Location resolves a booking timezone name. Empty means time.Local.
func Location(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", models.ErrConfiguration, name, err)
	}
	return loc, nil
}

type BrokerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type OutboxConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", configPath, err)
	}

	return &config, nil
}

// Validate reports every problem at once. The error wraps models.ErrConfiguration.
func (c *Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if c.Database.Path == "" {
		add("database.path is required")
	}
	if c.API.Enabled && (c.API.Auth.JWTSecret == "" || c.API.Auth.JWTSecret == "CHANGE_ME") {
		add("api.auth.jwt_secret is required when the API is enabled")
	}
	if c.Booking.StepMinutes <= 0 || c.Booking.WindowMinutes <= 0 {
		add("booking.step_minutes and booking.window_minutes must be positive, got %d and %d", c.Booking.StepMinutes, c.Booking.WindowMinutes)
	}
	if c.Booking.DepositCents < 0 {
		add("booking.deposit_cents must not be negative, got %d", c.Booking.DepositCents)
	}
	if c.Broker.Enabled && c.Broker.URL == "" {
		add("broker.url is required when the broker is enabled")
	}
	if _, err := Location(c.Booking.Timezone); err != nil {
		add("booking.timezone %q is not a known IANA zone", c.Booking.Timezone)
	}
	if err := ValidateAPIKeys(c.API.Auth.APIKeys); err != nil {
		problems = append(problems, err)
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", models.ErrConfiguration, errors.Join(problems...))
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "rbs"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.Issuer == "" {
		c.API.Auth.Issuer = c.App.Name
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 20
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 40
	}

	// Booking defaults
	if c.Booking.StepMinutes == 0 {
		c.Booking.StepMinutes = models.DefaultStepMinutes
	}
	if c.Booking.WindowMinutes == 0 {
		c.Booking.WindowMinutes = models.DefaultWindowMinutes
	}
	if c.Booking.DepositCents == 0 {
		c.Booking.DepositCents = models.DefaultDepositCents
	}
	if c.Booking.MaxAttempts == 0 {
		c.Booking.MaxAttempts = models.DefaultMaxAttempts
	}
	if c.Booking.LockTTL == 0 {
		c.Booking.LockTTL = 10 * time.Second
	}
	if c.Booking.OperationTimeout == 0 {
		c.Booking.OperationTimeout = 5 * time.Second
	}
	if c.Booking.MaxBookingDays == 0 {
		c.Booking.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if c.Booking.RateLimitRequests == 0 {
		c.Booking.RateLimitRequests = models.RateLimitBookings
	}
	if c.Booking.RateLimitWindow == 0 {
		c.Booking.RateLimitWindow = models.RateLimitWindow
	}

	if c.Broker.Exchange == "" {
		c.Broker.Exchange = "rbs.bookings"
	}

	// Outbox defaults
	if c.Outbox.MaxRetries == 0 {
		c.Outbox.MaxRetries = 5
	}
	if c.Outbox.InitialDelay == 0 {
		c.Outbox.InitialDelay = 2 * time.Second
	}
	if c.Outbox.MaxDelay == 0 {
		c.Outbox.MaxDelay = time.Minute
	}
	if c.Outbox.PollInterval == 0 {
		c.Outbox.PollInterval = 5 * time.Second
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 50
	}
}
