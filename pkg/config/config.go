// Package config loads endpoint configuration, environment-first with an
// optional YAML profile underneath. Environment variables always win so
// deployments can override a checked-in profile without editing it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds factory endpoint configuration.
type Config struct {
	Mode          string        `yaml:"mode"`
	DefaultFormat string        `yaml:"default_format"`
	ListenAddr    string        `yaml:"listen_addr"`
	InvokePath    string        `yaml:"invoke_path"`
	LogLevel      string        `yaml:"log_level"`
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTIssuer     string        `yaml:"jwt_issuer"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	RedisURL      string        `yaml:"redis_url"`
	SQLitePath    string        `yaml:"sqlite_path"`
	RateRPS       int           `yaml:"rate_rps"`
	RateBurst     int           `yaml:"rate_burst"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
	OTLPEndpoint  string        `yaml:"otlp_endpoint"`
	ServiceName   string        `yaml:"service_name"`
}

// Load reads configuration from the environment, applying defaults for
// anything unset. If FACTORY_PROFILE names a YAML file, its values are
// loaded first and the environment overrides them.
func Load() (*Config, error) {
	cfg := defaults()

	if profile := os.Getenv("FACTORY_PROFILE"); profile != "" {
		loaded, err := LoadProfile(profile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnv(cfg)

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: FACTORY_JWT_SECRET is required")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Mode:          "logical",
		DefaultFormat: "ordinal",
		ListenAddr:    ":8080",
		InvokePath:    "/v1/factory/invoke",
		LogLevel:      "INFO",
		JWTIssuer:     "factory",
		SessionTTL:    time.Hour,
		SQLitePath:    "factory.db",
		RateRPS:       50,
		RateBurst:     100,
		MaxBodyBytes:  4 << 20,
		ServiceName:   "remote-factory",
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.Mode, "FACTORY_MODE")
	setString(&cfg.DefaultFormat, "FACTORY_FORMAT")
	setString(&cfg.ListenAddr, "FACTORY_LISTEN_ADDR")
	setString(&cfg.InvokePath, "FACTORY_INVOKE_PATH")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.JWTSecret, "FACTORY_JWT_SECRET")
	setString(&cfg.JWTIssuer, "FACTORY_JWT_ISSUER")
	setString(&cfg.RedisURL, "FACTORY_REDIS_URL")
	setString(&cfg.SQLitePath, "FACTORY_SQLITE_PATH")
	setString(&cfg.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.ServiceName, "FACTORY_SERVICE_NAME")
	setInt(&cfg.RateRPS, "FACTORY_RATE_RPS")
	setInt(&cfg.RateBurst, "FACTORY_RATE_BURST")

	if v := os.Getenv("FACTORY_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.MaxBodyBytes = n
		}
	}
	if v := os.Getenv("FACTORY_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SessionTTL = d
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
