package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfig(t *testing.T, opts ...Option) *Config {
	t.Helper()
	base := []Option{WithDefaults(DefaultValues()), WithSensitiveKeys(SensitiveKeys()...)}
	cfg, err := New(append(base, opts...)...)
	require.NoError(t, err)
	return cfg
}

func TestLoadSettingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apiclient.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: http://api.example.test
token_url: http://api.example.test/oauth/token
client_secret: hunter2
network:
  timeout: 5s
log:
  request_enabled: true
store:
  driver: redis
  redis_addr: localhost:6379
`), 0o600))

	s, err := newTestConfig(t, WithFile(path)).LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "http://api.example.test", s.BaseURL)
	assert.Equal(t, 5*time.Second, s.Network.Timeout)
	assert.Equal(t, 15*time.Second, s.Network.ExchangeTimeout)
	assert.True(t, s.Log.RequestEnabled)
	assert.False(t, s.Log.ResponseEnabled)
	assert.True(t, s.Toast.Enabled)
	assert.Equal(t, "redis", s.Store.Driver)
	assert.Equal(t, "endpoint", s.Backend)
}

func TestLoadSettingsEnvOverrides(t *testing.T) {
	t.Setenv("APICLIENT_BASE_URL", "http://env.example.test")
	t.Setenv("APICLIENT_TOKEN_URL", "http://env.example.test/oauth/token")
	t.Setenv("APICLIENT_NETWORK_TIMEOUT", "750ms")
	t.Setenv("APICLIENT_TOAST_ENABLED", "false")

	s, err := newTestConfig(t, WithEnv("APICLIENT")).LoadSettings()
	require.NoError(t, err)

	assert.Equal(t, "http://env.example.test", s.BaseURL)
	assert.Equal(t, 750*time.Millisecond, s.Network.Timeout)
	assert.False(t, s.Toast.Enabled)
}

func TestLoadSettingsFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("base_url", "", "")
	flags.String("token_url", "", "")
	require.NoError(t, flags.Parse([]string{
		"--base_url=http://flag.example.test",
		"--token_url=http://flag.example.test/oauth/token",
	}))

	s, err := newTestConfig(t, WithPFlags(flags)).LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "http://flag.example.test", s.BaseURL)
}

func TestLoadSettingsValidation(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{"missing base url", map[string]any{"token_url": "http://x.test/token"}},
		{"bad backend", map[string]any{"base_url": "http://x.test", "token_url": "http://x.test/token", "backend": "magic"}},
		{"redis without addr", map[string]any{"base_url": "http://x.test", "token_url": "http://x.test/token", "store.driver": "redis"}},
		{"kafka without topic", map[string]any{"base_url": "http://x.test", "token_url": "http://x.test/token", "events.kafka_brokers": []string{"localhost:9092"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t)
			for k, v := range tt.values {
				cfg.Set(k, v)
			}
			_, err := cfg.LoadSettings()
			assert.Error(t, err)
		})
	}
}

func TestMaskedSettings(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Set("client_secret", "hunter2")

	masked := cfg.MaskedSettings()
	assert.Equal(t, "***REDACTED***", masked["client_secret"])
	assert.Equal(t, "memory", masked["store.driver"])
}

func TestNewFailsOnMissingExplicitFile(t *testing.T) {
	_, err := New(WithFile(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Error(t, err)
}

func TestValidateRequired(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Set("base_url", "http://x.test")
	assert.NoError(t, cfg.ValidateRequired("base_url"))
	assert.ErrorContains(t, cfg.ValidateRequired("base_url", "token_url"), "token_url")
}

func TestWithWatchReloadsChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apiclient.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: info\n"), 0o600))

	reloaded := make(chan struct{}, 1)
	cfg := newTestConfig(t, WithFile(path), WithWatch(func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	}))
	require.Equal(t, "info", cfg.GetString("log.level"))

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))
	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
	assert.Equal(t, "debug", cfg.GetString("log.level"))
}

func TestWatchWithoutFileIsNoop(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Watch(func() { t.Error("unexpected reload") })
	assert.Empty(t, cfg.ConfigFileUsed())
}
