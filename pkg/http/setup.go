package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/milan604/apiclient/pkg/config"
	"github.com/milan604/apiclient/pkg/credentials"
	"github.com/milan604/apiclient/pkg/events"
	"github.com/milan604/apiclient/pkg/logger"
	"github.com/milan604/apiclient/pkg/notify"
	"github.com/milan604/apiclient/pkg/postgres"
)

// SessionStore is a CredentialStore that announces changes.
type SessionStore interface {
	CredentialStore
	Subscribe(l credentials.Listener)
}

// Stack is a client wired from settings together with its collaborators.
type Stack struct {
	Client      *Client
	Coordinator *RefreshCoordinator
	Notifier    *ErrorNotifier
	Store       SessionStore
	Metrics     *Metrics

	closers []func() error
}

// Close releases the store and event publisher connections.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type setupOptions struct {
	sink      notify.Sink
	store     SessionStore
	transport Transport
	tracer    trace.Tracer
}

// SetupOption overrides a collaborator NewFromSettings would otherwise build.
type SetupOption func(*setupOptions)

// WithNotificationSink replaces the default logging sink.
func WithNotificationSink(sink notify.Sink) SetupOption {
	return func(o *setupOptions) {
		o.sink = sink
	}
}

// WithSessionStore replaces the store selected by store.driver.
func WithSessionStore(store SessionStore) SetupOption {
	return func(o *setupOptions) {
		o.store = store
	}
}

// WithBaseTransport replaces the net/http transport. Breaker and rate
// limiting are still layered on top when configured.
func WithBaseTransport(t Transport) SetupOption {
	return func(o *setupOptions) {
		o.transport = t
	}
}

// WithRefreshTracer traces token exchanges with t instead of the global tracer.
func WithRefreshTracer(t trace.Tracer) SetupOption {
	return func(o *setupOptions) {
		o.tracer = t
	}
}

// NewFromSettings builds the full client: transport chain, credential store,
// auth backend, refresh coordinator and error notifier.
func NewFromSettings(ctx context.Context, s *config.Settings, log logger.LogManager, opts ...SetupOption) (*Stack, error) {
	var o setupOptions
	for _, opt := range opts {
		opt(&o)
	}
	log = logger.OrNop(log)
	stack := &Stack{Metrics: NewMetrics()}

	transport := o.transport
	if transport == nil {
		transport = NewHTTPTransport(
			WithTimeout(s.Network.Timeout),
			WithMaxBodyBytes(s.Network.MaxBodyBytes),
		)
	}
	if s.Network.BreakerFailures > 0 {
		transport = NewBreakerTransport(transport, "apiclient", s.Network.BreakerFailures, s.Network.BreakerTimeout, log)
	}
	if s.Network.RateLimit > 0 {
		transport = NewRateLimitedTransport(transport, s.Network.RateLimit, s.Network.RateBurst)
	}

	store := o.store
	if store == nil {
		var err error
		store, err = stack.openStore(ctx, s.Store, log)
		if err != nil {
			_ = stack.Close()
			return nil, err
		}
	}
	stack.Store = store

	if len(s.Events.KafkaBrokers) > 0 {
		pub := events.NewKafkaPublisher(s.Events.KafkaBrokers, s.Events.KafkaTopic, log)
		store.Subscribe(pub.Listener())
		stack.closers = append(stack.closers, pub.Close)
	}

	backend, err := newBackend(s, transport, log, stack.Metrics)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}

	client := NewClient(
		WithTransport(transport),
		WithBaseURL(s.BaseURL),
		WithLogger(log),
		WithMetrics(stack.Metrics),
		WithRequestHook(KeyCaseHook(SnakeCamel{})),
		WithRequestHook(DefaultHeadersHook(store)),
		WithRequestHook(RequestIDHook()),
		WithRequestHook(TracePropagationHook()),
	)
	if s.Log.RequestEnabled {
		client.Use(WithRequestHook(RequestLogHook(log)))
	}
	if s.Log.ResponseEnabled {
		client.Use(WithResponseHook(ResponseLogHook(log)))
	}
	client.Use(WithResponseHook(ResponseKeyCaseHook(SnakeCamel{})))

	refreshOpts := []RefreshOption{
		WithExchangeURL(s.TokenURL),
		WithExchangeTimeout(s.Network.ExchangeTimeout),
		WithRefreshLogger(log),
		WithRefreshMetrics(stack.Metrics),
	}
	if o.tracer != nil {
		refreshOpts = append(refreshOpts, WithTracer(o.tracer))
	}
	stack.Coordinator = NewRefreshCoordinator(store, backend, client, refreshOpts...)

	sink := o.sink
	if sink == nil {
		sink = notify.LogSink{Log: log}
	}
	stack.Notifier = NewErrorNotifier(sink,
		WithToast(s.Toast.Enabled),
		WithLocale(s.Toast.Locale),
		WithNetworkTimeout(s.Network.Timeout),
		WithNotifierLogger(log),
	)

	client.Use(
		WithErrorHook(stack.Coordinator.Hook()),
		WithErrorHook(stack.Notifier.Hook()),
	)
	stack.Client = client
	return stack, nil
}

func (s *Stack) openStore(ctx context.Context, cfg config.StoreSettings, log logger.LogManager) (SessionStore, error) {
	opts := []credentials.Option{credentials.WithSession(cfg.SessionKey)}

	switch cfg.Driver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		s.closers = append(s.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		return credentials.NewRedisStore(rdb, opts...), nil
	case "postgres":
		db, err := postgres.Open(cfg.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		return credentials.NewGormStore(db.Client, opts...)
	case "sqlite":
		db, err := credentials.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			s.closers = append(s.closers, sqlDB.Close)
		}
		return credentials.NewGormStore(db, opts...)
	default:
		return credentials.NewMemoryStore(opts...), nil
	}
}

// newBackend picks the exchange implementation. The endpoint backend posts
// through a bare client: no key translation, no refresh, no notifications.
func newBackend(s *config.Settings, transport Transport, log logger.LogManager, m *Metrics) (AuthBackend, error) {
	switch s.Backend {
	case "oauth2":
		return NewOAuth2Backend(s.TokenURL, s.ClientID, s.ClientSecret, &http.Client{Timeout: s.Network.ExchangeTimeout}), nil
	case "endpoint", "":
		exchange := NewClient(
			WithTransport(transport),
			WithLogger(log),
			WithMetrics(m),
			WithRequestHook(RequestIDHook()),
			WithRequestHook(TracePropagationHook()),
		)
		return NewEndpointBackend(exchange, s.TokenURL, WithClientCredentials(s.ClientID, s.ClientSecret)), nil
	default:
		return nil, fmt.Errorf("unknown auth backend %q", s.Backend)
	}
}
