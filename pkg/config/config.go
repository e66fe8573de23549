package config

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the wrapper around viper with extra helpers.
type Config struct {
	*viper.Viper

	sensitiveKeys map[string]struct{}
	onChange      func()
}

// Option is a functional option for New.
type Option func(*Config) error

// New creates a Config instance. Use options to customize behavior.
// Example:
//
//	cfg, err := config.New(
//	  config.WithDefaults(config.DefaultValues()),
//	  config.WithFile("apiclient.yaml"),
//	  config.WithEnv("APICLIENT"),
//	  config.WithPFlags(flags),
//	)
func New(opts ...Option) (*Config, error) {
	cfg := &Config{
		Viper:         viper.New(),
		sensitiveKeys: map[string]struct{}{},
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("config: applying option: %w", err)
		}
	}

	if err := cfg.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfg.ConfigFileUsed() != "" {
			return nil, fmt.Errorf("config: read %s: %w", cfg.ConfigFileUsed(), err)
		}
		// env/flags/defaults only
	}

	return cfg, nil
}

/* ---------------------------
   Options
----------------------------*/

// WithDefaults sets default values (applied first)
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) error {
		for k, v := range defaults {
			c.SetDefault(k, v)
		}
		return nil
	}
}

// WithFile sets an exact config file; the extension determines the format.
func WithFile(path string) Option {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		c.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
			c.SetConfigType(ext)
		}
		return nil
	}
}

// WithEnv enables environment variable overrides.
// prefix = "APICLIENT" means APICLIENT_NETWORK_TIMEOUT overrides network.timeout.
func WithEnv(prefix string) Option {
	return func(c *Config) error {
		if prefix != "" {
			c.SetEnvPrefix(prefix)
		}
		c.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		c.AutomaticEnv()
		return nil
	}
}

// WithPFlags binds a pflag.FlagSet to viper. A nil set binds the default command line.
func WithPFlags(flags *pflag.FlagSet) Option {
	return func(c *Config) error {
		if flags == nil {
			flags = pflag.CommandLine
		}
		return c.BindPFlags(flags)
	}
}

// WithWatch enables hot-reload. onChange will be called after a successful reload.
func WithWatch(onChange func()) Option {
	return func(c *Config) error {
		c.Watch(onChange)
		return nil
	}
}

// Watch reloads the config file whenever it changes and then calls onChange.
// It needs a config file; without one it does nothing.
func (c *Config) Watch(onChange func()) {
	if c.ConfigFileUsed() == "" {
		return
	}
	c.onChange = onChange
	c.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("config: file changed: %s", e.Name)
		if c.onChange != nil {
			c.onChange()
		}
	})
	c.WatchConfig()
}

// WithSensitiveKeys registers keys which should be redacted when printing/logging.
func WithSensitiveKeys(keys ...string) Option {
	return func(c *Config) error {
		for _, k := range keys {
			c.sensitiveKeys[strings.ToLower(k)] = struct{}{}
		}
		return nil
	}
}

/* ---------------------------
   Validation & Utilities
----------------------------*/

// ValidateRequired ensures keys exist and are non-empty.
func (c *Config) ValidateRequired(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if !c.IsSet(k) || c.GetString(k) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required keys: %v", strings.Join(missing, ", "))
	}
	return nil
}

// MaskedSettings returns every key (flattened, dot separated) with sensitive
// values redacted.
func (c *Config) MaskedSettings() map[string]any {
	redacted := map[string]any{}
	for _, k := range c.AllKeys() {
		if _, ok := c.sensitiveKeys[k]; ok {
			redacted[k] = "***REDACTED***"
			continue
		}
		redacted[k] = c.Get(k)
	}
	return redacted
}
