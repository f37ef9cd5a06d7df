package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/johnson-oragui/multi-tenant-license-service/internal/adapters/postgres"
)

const (
	envPrefix    = "LICENSE"
	DriverMemory = "memory"
)

// Config is the resolved runtime configuration. Sections map one-to-one onto
// configs/default.yaml and onto LICENSE_<SECTION>_<FIELD> environment keys.
type Config struct {
	Service       ServiceConfig       `yaml:"service" envconfig:"SERVICE"`
	Store         StoreConfig         `yaml:"store" envconfig:"STORE"`
	Redis         RedisConfig         `yaml:"redis" envconfig:"REDIS"`
	Kafka         KafkaConfig         `yaml:"kafka" envconfig:"KAFKA"`
	Licensing     LicensingConfig     `yaml:"licensing" envconfig:"LICENSING"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Security      SecurityConfig      `yaml:"security" envconfig:"SECURITY"`
	Outbox        OutboxConfig        `yaml:"outbox" envconfig:"OUTBOX"`
	Observability ObservabilityConfig `yaml:"observability" envconfig:"OBSERVABILITY"`
}

type ServiceConfig struct {
	Name            string        `yaml:"name" envconfig:"NAME"`
	Environment     string        `yaml:"environment" envconfig:"ENVIRONMENT"`
	HTTPPort        int           `yaml:"http_port" envconfig:"HTTP_PORT"`
	GRPCPort        int           `yaml:"grpc_port" envconfig:"GRPC_PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

type StoreConfig struct {
	// Driver is one of memory, sqlite or postgres.
	Driver      string `yaml:"driver" envconfig:"DRIVER"`
	DSN         string `yaml:"dsn" envconfig:"DSN"`
	MaxConns    int32  `yaml:"max_conns" envconfig:"MAX_CONNS"`
	TxRetries   int    `yaml:"tx_retries" envconfig:"TX_RETRIES"`
	AutoMigrate bool   `yaml:"auto_migrate" envconfig:"AUTO_MIGRATE"`
}

type RedisConfig struct {
	URL string `yaml:"url" envconfig:"URL"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" envconfig:"BROKERS"`
	Topic   string   `yaml:"topic" envconfig:"TOPIC"`
}

type LicensingConfig struct {
	DefaultSeatLimit int `yaml:"default_seat_limit" envconfig:"DEFAULT_SEAT_LIMIT"`
	DefaultPageSize  int `yaml:"default_page_size" envconfig:"DEFAULT_PAGE_SIZE"`
	MaxPageSize      int `yaml:"max_page_size" envconfig:"MAX_PAGE_SIZE"`
}

type RateLimitConfig struct {
	BrandLimit int           `yaml:"brand_limit" envconfig:"BRAND_LIMIT"`
	AnonLimit  int           `yaml:"anon_limit" envconfig:"ANON_LIMIT"`
	Window     time.Duration `yaml:"window" envconfig:"WINDOW"`

	// TrustProxyHeaders keys anonymous windows on X-Forwarded-For instead of
	// the peer address. Only safe behind a proxy that overwrites the header.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" envconfig:"TRUST_PROXY_HEADERS"`
}

type SecurityConfig struct {
	BcryptCost int `yaml:"bcrypt_cost" envconfig:"BCRYPT_COST"`

	// ClientIPSecret keys the hash that anonymises caller addresses.
	ClientIPSecret string `yaml:"client_ip_secret" envconfig:"CLIENT_IP_SECRET"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`
	BatchSize    int           `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	ClaimTTL     time.Duration `yaml:"claim_ttl" envconfig:"CLAIM_TTL"`
	MaxRetries   int           `yaml:"max_retries" envconfig:"MAX_RETRIES"`
}

type ObservabilityConfig struct {
	LogLevel         string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	TracingEnabled   bool   `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED"`
	MetricsNamespace string `yaml:"metrics_namespace" envconfig:"METRICS_NAMESPACE"`
}

func defaultConfig() Config {
	return Config{
		Service: ServiceConfig{
			Name:            "license-service",
			Environment:     "development",
			HTTPPort:        8080,
			GRPCPort:        9090,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Driver:      DriverMemory,
			MaxConns:    20,
			TxRetries:   3,
			AutoMigrate: true,
		},
		Kafka: KafkaConfig{Topic: "license.audit"},
		Licensing: LicensingConfig{
			DefaultSeatLimit: 3,
			DefaultPageSize:  20,
			MaxPageSize:      100,
		},
		RateLimit: RateLimitConfig{
			BrandLimit: 600,
			AnonLimit:  60,
			Window:     time.Minute,
		},
		Security: SecurityConfig{BcryptCost: 12},
		Outbox: OutboxConfig{
			PollInterval: 2 * time.Second,
			BatchSize:    100,
			ClaimTTL:     30 * time.Second,
			MaxRetries:   5,
		},
		Observability: ObservabilityConfig{
			LogLevel:         "info",
			MetricsNamespace: "license",
		},
	}
}

// LoadConfig resolves configuration in priority order: defaults -> file ->
// .env -> environment. A missing file or .env is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("apply environment: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Service.Environment = strings.ToLower(strings.TrimSpace(c.Service.Environment))
	brokers := c.Kafka.Brokers[:0]
	for _, b := range c.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.Kafka.Brokers = brokers
}

func (c Config) IsProduction() bool {
	return c.Service.Environment == "production"
}

// Validate rejects configurations the runtime cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("store.driver memory is not allowed in production"))
		}
	case postgres.DriverSQLite, postgres.DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of memory, sqlite, postgres", c.Store.Driver))
	}
	if c.Store.MaxConns <= 0 {
		errs = append(errs, errors.New("store.max_conns must be positive"))
	}
	if c.Store.TxRetries < 0 {
		errs = append(errs, errors.New("store.tx_retries must not be negative"))
	}
	if c.Service.HTTPPort <= 0 || c.Service.GRPCPort <= 0 {
		errs = append(errs, errors.New("service ports must be positive"))
	}
	if c.Service.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("service.shutdown_timeout must be positive"))
	}
	if c.Licensing.DefaultSeatLimit < 0 {
		errs = append(errs, errors.New("licensing.default_seat_limit must not be negative"))
	}
	if c.Licensing.DefaultPageSize <= 0 || c.Licensing.MaxPageSize < c.Licensing.DefaultPageSize {
		errs = append(errs, errors.New("licensing page sizes must satisfy 0 < default_page_size <= max_page_size"))
	}
	if c.RateLimit.BrandLimit < 0 || c.RateLimit.AnonLimit < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	if (c.RateLimit.BrandLimit > 0 || c.RateLimit.AnonLimit > 0) && c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive when a limit is set"))
	}
	if c.IsProduction() && c.RateLimit.AnonLimit > 0 && c.Security.ClientIPSecret == "" {
		errs = append(errs, errors.New("security.client_ip_secret is required in production"))
	}
	if c.Security.BcryptCost < bcrypt.MinCost || c.Security.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("security.bcrypt_cost must be within [%d, %d]", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.MaxRetries <= 0 || c.Outbox.PollInterval <= 0 || c.Outbox.ClaimTTL <= 0 {
		errs = append(errs, errors.New("outbox settings must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
