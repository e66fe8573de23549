package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Settings is the typed view of the client configuration.
type Settings struct {
	BaseURL  string `mapstructure:"base_url" validate:"required,url"`
	TokenURL string `mapstructure:"token_url" validate:"required,url"`
	// Backend selects the refresh exchange implementation: "endpoint" posts
	// JSON through a bare client with no refresh or notifications, "oauth2"
	// uses the oauth2 refresh grant.
	Backend      string `mapstructure:"backend" validate:"oneof=endpoint oauth2"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`

	Network NetworkSettings `mapstructure:"network"`
	Log     LogSettings     `mapstructure:"log"`
	Toast   ToastSettings   `mapstructure:"toast"`
	Store   StoreSettings   `mapstructure:"store"`
	Events  EventSettings   `mapstructure:"events"`
	Tracing TraceSettings   `mapstructure:"tracing"`
}

type NetworkSettings struct {
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	ExchangeTimeout time.Duration `mapstructure:"exchange_timeout" validate:"gt=0"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" validate:"gt=0"`
	// RateLimit is requests per second; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst int     `mapstructure:"rate_burst" validate:"gte=0"`
	// BreakerFailures consecutive failures open the circuit; 0 disables the breaker.
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

type LogSettings struct {
	Level           string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Encoding        string `mapstructure:"encoding" validate:"oneof=console json"`
	RequestEnabled  bool   `mapstructure:"request_enabled"`
	ResponseEnabled bool   `mapstructure:"response_enabled"`
}

type ToastSettings struct {
	Enabled bool   `mapstructure:"enabled"`
	Locale  string `mapstructure:"locale"`
}

type StoreSettings struct {
	Driver      string `mapstructure:"driver" validate:"oneof=memory redis postgres sqlite"`
	SessionKey  string `mapstructure:"session_key" validate:"required"`
	RedisAddr   string `mapstructure:"redis_addr" validate:"required_if=Driver redis"`
	PostgresDSN string `mapstructure:"postgres_dsn" validate:"required_if=Driver postgres"`
	SQLitePath  string `mapstructure:"sqlite_path" validate:"required_if=Driver sqlite"`
}

type EventSettings struct {
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic"`
}

type TraceSettings struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint" validate:"required_if=Enabled true"`
	ServiceName string `mapstructure:"service_name"`
}

// DefaultValues returns the defaults New should be seeded with.
func DefaultValues() map[string]any {
	return map[string]any{
		"base_url":                 "",
		"token_url":                "",
		"backend":                  "endpoint",
		"client_id":                "",
		"client_secret":            "",
		"network.timeout":          30 * time.Second,
		"network.exchange_timeout": 15 * time.Second,
		"network.max_body_bytes":   int64(10 << 20),
		"network.rate_limit":       0,
		"network.rate_burst":       10,
		"network.breaker_failures": 0,
		"network.breaker_timeout":  30 * time.Second,
		"log.level":                "info",
		"log.encoding":             "console",
		"log.request_enabled":      false,
		"log.response_enabled":     false,
		"toast.enabled":            true,
		"toast.locale":             "en",
		"store.driver":             "memory",
		"store.session_key":        "apiclient:session",
		"store.redis_addr":         "",
		"store.postgres_dsn":       "",
		"store.sqlite_path":        "",
		"events.kafka_brokers":     []string{},
		"events.kafka_topic":       "",
		"tracing.enabled":          false,
		"tracing.endpoint":         "",
		"tracing.service_name":     "apiclient",
	}
}

// SensitiveKeys lists the settings that must never be logged in clear.
func SensitiveKeys() []string {
	return []string{"client_secret", "store.postgres_dsn"}
}

// LoadSettings decodes and validates the client settings.
func (c *Config) LoadSettings() (*Settings, error) {
	var s Settings
	if err := c.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("config: decode settings: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&s); err != nil {
		return nil, fmt.Errorf("config: invalid settings: %w", err)
	}
	if len(s.Events.KafkaBrokers) > 0 && s.Events.KafkaTopic == "" {
		return nil, fmt.Errorf("config: invalid settings: events.kafka_topic is required when brokers are set")
	}
	return &s, nil
}
