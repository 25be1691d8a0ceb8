// Package config provides application configuration loading from environment variables and .env files.
// It uses viper for flexible configuration management with sensible defaults.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/TimurManjosov/flagpage/internal/validation"
)

// Config holds all application configuration loaded from environment variables or .env file.
// Configuration priority: environment variables > .env file > defaults.
type Config struct {
	AppEnv   string // Application environment (dev, staging, prod)
	HTTPAddr string // Page server bind address
	LogLevel string // zerolog level name

	SDKKey       string        // Flag service credential; required, checked by the flag client
	BaseURL      string        // Flag service URL
	Env          string        // Flag environment to read
	Streaming    bool          // SSE updates when true, polling otherwise
	PollInterval time.Duration // Polling period when streaming is off
	InitTimeout  time.Duration // Bound on the readiness wait; 0 waits forever
	RolloutSalt  string        // Overrides the salt published by the service when set
	HTTPRetries  int           // Retries per snapshot request

	TemplatePath string // Template file or directory
	FlagKey      string // Flag rendered on the page
	ContextKey   string // Evaluation identity
	ContextKind  string
	ContextName  string

	MetricsAddr     string        // Metrics and health listener; empty disables it
	ShutdownTimeout time.Duration // Drain deadline; 0 waits for every in-flight request
	RateLimitPerIP  int           // Page requests per IP per minute; 0 disables
	OTLPEndpoint    string        // OTLP/HTTP trace endpoint; empty disables tracing
}

// Load reads configuration from environment variables and .env file (if present).
// Environment variables take precedence over .env file values.
// Load does not validate; call Validate before using the result.
func Load() (*Config, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigFile(".env") // Optional; silently ignored if file doesn't exist
	_ = viperInstance.ReadInConfig()    // Ignore error - .env is optional
	viperInstance.AllowEmptyEnv(true)   // METRICS_ADDR="" must be able to disable the listener
	viperInstance.AutomaticEnv()

	setConfigDefaults(viperInstance)

	return &Config{
		AppEnv:   viperInstance.GetString("APP_ENV"),
		HTTPAddr: viperInstance.GetString("APP_HTTP_ADDR"),
		LogLevel: viperInstance.GetString("LOG_LEVEL"),

		SDKKey:       viperInstance.GetString("FLAGSHIP_SDK_KEY"),
		BaseURL:      viperInstance.GetString("FLAGSHIP_BASE_URL"),
		Env:          viperInstance.GetString("FLAGSHIP_ENV"),
		Streaming:    viperInstance.GetBool("FLAGSHIP_STREAMING"),
		PollInterval: viperInstance.GetDuration("FLAGSHIP_POLL_INTERVAL"),
		InitTimeout:  viperInstance.GetDuration("FLAGSHIP_INIT_TIMEOUT"),
		RolloutSalt:  viperInstance.GetString("FLAGSHIP_ROLLOUT_SALT"),
		HTTPRetries:  viperInstance.GetInt("FLAGSHIP_HTTP_RETRIES"),

		TemplatePath: viperInstance.GetString("TEMPLATE_PATH"),
		FlagKey:      viperInstance.GetString("FLAG_KEY"),
		ContextKey:   viperInstance.GetString("CONTEXT_KEY"),
		ContextKind:  viperInstance.GetString("CONTEXT_KIND"),
		ContextName:  viperInstance.GetString("CONTEXT_NAME"),

		MetricsAddr:     viperInstance.GetString("METRICS_ADDR"),
		ShutdownTimeout: viperInstance.GetDuration("SHUTDOWN_TIMEOUT"),
		RateLimitPerIP:  viperInstance.GetInt("RATE_LIMIT_PER_IP"),
		OTLPEndpoint:    viperInstance.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

// setConfigDefaults sets default values for all configuration options.
// FLAGSHIP_SDK_KEY deliberately has none.
func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("APP_HTTP_ADDR", "0.0.0.0:8000")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("FLAGSHIP_BASE_URL", "http://localhost:8080")
	v.SetDefault("FLAGSHIP_ENV", "prod")
	v.SetDefault("FLAGSHIP_STREAMING", true)
	v.SetDefault("FLAGSHIP_POLL_INTERVAL", "30s")
	v.SetDefault("FLAGSHIP_INIT_TIMEOUT", "0s")
	v.SetDefault("FLAGSHIP_HTTP_RETRIES", 3)

	v.SetDefault("TEMPLATE_PATH", "./templates/index.html")
	v.SetDefault("FLAG_KEY", "test-flag")
	v.SetDefault("CONTEXT_KEY", "018ee873-7b09-7f26-b296-0358b2ff1c87")
	v.SetDefault("CONTEXT_KIND", "device")
	v.SetDefault("CONTEXT_NAME", "Linux")

	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("SHUTDOWN_TIMEOUT", "0s")
	v.SetDefault("RATE_LIMIT_PER_IP", 0)
}

// ValidationError represents a configuration validation error with details about what failed.
type ValidationError struct {
	Field   string // Name of the configuration field
	Message string // Human-readable error message
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed [%s]: %s", e.Field, e.Message)
}

// Validate checks the configuration and returns the first problem as a ValidationError.
//
// Validation Rules:
//  1. APP_HTTP_ADDR, TEMPLATE_PATH, FLAG_KEY and CONTEXT_KEY must be non-empty
//     FLAG_KEY must be a valid flag key and FLAGSHIP_ENV a valid environment name
//  2. FLAGSHIP_POLL_INTERVAL must be positive
//  3. FLAGSHIP_INIT_TIMEOUT and SHUTDOWN_TIMEOUT cannot be negative
//  4. FLAGSHIP_HTTP_RETRIES and RATE_LIMIT_PER_IP cannot be negative
//
// The SDK key is not checked here; the flag client reports a missing key itself.
func (c *Config) Validate() error {
	required := []struct{ field, value string }{
		{"APP_HTTP_ADDR", c.HTTPAddr},
		{"TEMPLATE_PATH", c.TemplatePath},
		{"FLAG_KEY", c.FlagKey},
		{"CONTEXT_KEY", c.ContextKey},
	}
	for _, r := range required {
		if r.value == "" {
			return ValidationError{Field: r.field, Message: "cannot be empty"}
		}
	}

	if result := validation.ValidateKey(c.FlagKey); !result.Valid {
		return ValidationError{Field: "FLAG_KEY", Message: result.Errors["key"]}
	}
	if result := validation.ValidateEnv(c.Env); !result.Valid {
		return ValidationError{Field: "FLAGSHIP_ENV", Message: result.Errors["env"]}
	}

	if c.PollInterval <= 0 {
		return ValidationError{
			Field:   "FLAGSHIP_POLL_INTERVAL",
			Message: fmt.Sprintf("must be positive, got %s", c.PollInterval),
		}
	}
	if c.InitTimeout < 0 {
		return ValidationError{Field: "FLAGSHIP_INIT_TIMEOUT", Message: "cannot be negative"}
	}
	if c.ShutdownTimeout < 0 {
		return ValidationError{Field: "SHUTDOWN_TIMEOUT", Message: "cannot be negative"}
	}
	if c.HTTPRetries < 0 {
		return ValidationError{Field: "FLAGSHIP_HTTP_RETRIES", Message: "cannot be negative"}
	}
	if c.RateLimitPerIP < 0 {
		return ValidationError{Field: "RATE_LIMIT_PER_IP", Message: "cannot be negative"}
	}
	return nil
}
