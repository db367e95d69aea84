// Package config loads the dispatch core's configuration from the
// environment (with a local .env override for development), following
// the same getEnv/Load idiom the rest of the fleet's services use.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every configuration group the dispatch core needs.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	EventBus  EventBusConfig
	Geo       GeoConfig
	Telemetry TelemetryConfig
	Pricing   PricingConfig
	JWT       JWTConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	Environment  string
	ServiceName  string
	ReadTimeout  int
	WriteTimeout int
	CORSOrigins  string
}

// DatabaseConfig holds Postgres connection settings. Breaker is loaded
// from the DB_BREAKER_* variables, but no component reads it.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
	Breaker  BreakerConfig
}

// BreakerConfig configures a sony/gobreaker instance.
type BreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	TimeoutSeconds   int
	IntervalSeconds  int
}

// RedisConfig holds the optional shared driver-index backend's
// connection settings. When Enabled (REDIS_ENABLED) is false the
// Driver State Store runs purely in-process.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	Breaker  BreakerConfig
}

// EventBusConfig selects and configures the Event Bus backend. When
// Enabled (NATS_ENABLED) is false, or NATS is unreachable at startup,
// the in-process fan-out implementation is used (single instance only).
type EventBusConfig struct {
	NATSURL    string
	StreamName string
	Enabled    bool
}

// GeoConfig configures the H3 index and nearby-driver search.
type GeoConfig struct {
	MatchingResolution int
	KMax               int
	NearbyRadiusKm     float64
	HeartbeatStaleness time.Duration
}

// TelemetryConfig holds the Driver State Store's flush periods.
// StatusFlushPeriod is loaded from STATUS_FLUSH_MS, but no component
// reads it.
type TelemetryConfig struct {
	LocationFlushPeriod time.Duration
	StatusFlushPeriod   time.Duration
}

// VehicleRate holds the absolute per-vehicle-type pricing rates.
type VehicleRate struct {
	Base   float64
	PerKm  float64
	PerMin float64
}

// PricingConfig holds the fixed rate table, fixed fees, and default
// commission rate (overridable at runtime via the platform_config
// table — see internal/rides).
type PricingConfig struct {
	Rates                 map[string]VehicleRate
	ServiceFee            float64
	InsuranceFee          float64
	PlatformFee           float64
	DefaultCommissionRate float64
	AverageSpeedKmh       float64
}

// JWTConfig holds the settings needed to verify bearer tokens issued by
// the external auth service (token issuance is out of scope).
type JWTConfig struct {
	Secret string
}

const (
	defaultMatchingResolution = 9
	defaultKMax               = 3
)

// Load reads configuration for serviceName from the environment,
// applying a local .env file first if one is present.
func Load(serviceName string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ServiceName:  serviceName,
			ReadTimeout:  getEnvAsInt("READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("WRITE_TIMEOUT", 10),
			CORSOrigins:  getEnv("CORS_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "dispatch"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 5),
			Breaker: BreakerConfig{
				Enabled:          getEnvAsBool("DB_BREAKER_ENABLED", false),
				FailureThreshold: getEnvAsInt("DB_BREAKER_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("DB_BREAKER_SUCCESS_THRESHOLD", 1),
				TimeoutSeconds:   getEnvAsInt("DB_BREAKER_TIMEOUT_SECONDS", 30),
				IntervalSeconds:  getEnvAsInt("DB_BREAKER_INTERVAL_SECONDS", 60),
			},
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Breaker: BreakerConfig{
				Enabled:          getEnvAsBool("REDIS_BREAKER_ENABLED", true),
				FailureThreshold: getEnvAsInt("REDIS_BREAKER_FAILURE_THRESHOLD", 5),
				SuccessThreshold: getEnvAsInt("REDIS_BREAKER_SUCCESS_THRESHOLD", 2),
				TimeoutSeconds:   getEnvAsInt("REDIS_BREAKER_TIMEOUT_SECONDS", 20),
				IntervalSeconds:  getEnvAsInt("REDIS_BREAKER_INTERVAL_SECONDS", 60),
			},
		},
		EventBus: EventBusConfig{
			NATSURL:    getEnv("NATS_URL", ""),
			StreamName: getEnv("NATS_STREAM_NAME", "DISPATCH"),
			Enabled:    getEnvAsBool("NATS_ENABLED", false),
		},
		Geo: GeoConfig{
			MatchingResolution: getEnvAsInt("H3_RESOLUTION", defaultMatchingResolution),
			KMax:               getEnvAsInt("H3_KMAX", defaultKMax),
			NearbyRadiusKm:     getEnvAsFloat("NEARBY_RADIUS_KM", 10.0),
			HeartbeatStaleness: time.Duration(getEnvAsInt("HEARTBEAT_STALENESS_SECONDS", 300)) * time.Second,
		},
		Telemetry: TelemetryConfig{
			LocationFlushPeriod: time.Duration(getEnvAsInt("LOCATION_FLUSH_MS", 2000)) * time.Millisecond,
			StatusFlushPeriod:   time.Duration(getEnvAsInt("STATUS_FLUSH_MS", 500)) * time.Millisecond,
		},
		Pricing: PricingConfig{
			Rates: map[string]VehicleRate{
				"cab":  {Base: getEnvAsFloat("PRICE_CAB_BASE", 30), PerKm: getEnvAsFloat("PRICE_CAB_PER_KM", 15), PerMin: getEnvAsFloat("PRICE_CAB_PER_MIN", 1.5)},
				"auto": {Base: getEnvAsFloat("PRICE_AUTO_BASE", 30), PerKm: getEnvAsFloat("PRICE_AUTO_PER_KM", 10), PerMin: getEnvAsFloat("PRICE_AUTO_PER_MIN", 1.0)},
				"bike": {Base: getEnvAsFloat("PRICE_BIKE_BASE", 20), PerKm: getEnvAsFloat("PRICE_BIKE_PER_KM", 7), PerMin: getEnvAsFloat("PRICE_BIKE_PER_MIN", 1.0)},
			},
			ServiceFee:            getEnvAsFloat("FEE_SERVICE", 10),
			InsuranceFee:          getEnvAsFloat("FEE_INSURANCE", 2),
			PlatformFee:           getEnvAsFloat("FEE_PLATFORM", 10),
			DefaultCommissionRate: getEnvAsFloat("COMMISSION_RATE_DEFAULT", 0.20),
			AverageSpeedKmh:       getEnvAsFloat("AVERAGE_SPEED_KMH", 25.0),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me-in-production"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Geo.MatchingResolution < 7 || c.Geo.MatchingResolution > 10 {
		return fmt.Errorf("H3_RESOLUTION must be between 7 and 10, got %d", c.Geo.MatchingResolution)
	}
	if c.Geo.KMax < 1 || c.Geo.KMax > 10 {
		return fmt.Errorf("H3_KMAX must be between 1 and 10, got %d", c.Geo.KMax)
	}
	if c.Pricing.DefaultCommissionRate < 0 || c.Pricing.DefaultCommissionRate > 1 {
		return fmt.Errorf("COMMISSION_RATE_DEFAULT must be between 0 and 1, got %f", c.Pricing.DefaultCommissionRate)
	}
	return nil
}

// DSN returns the Postgres connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MigrationURL returns the "postgres://" URL form golang-migrate's
// postgres driver expects, as opposed to DSN's keyword/value form
// pgxpool.ParseConfig accepts.
func (c *DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, c.DBName, c.SSLMode)
}

// Addr returns the Redis host:port address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}
