package http

import (
	"context"
	"errors"
	"time"

	"github.com/milan604/apiclient/pkg/apperr"
	"github.com/milan604/apiclient/pkg/i18n"
	"github.com/milan604/apiclient/pkg/logger"
	"github.com/milan604/apiclient/pkg/notify"
)

// ErrorNotifier maps failed calls to *apperr.AppError values and, when toasts
// are enabled, emits one notification per failure. It belongs at the end of
// the error hook chain and never recovers a call.
type ErrorNotifier struct {
	sink    notify.Sink
	catalog *i18n.Translator
	enabled bool
	timeout time.Duration
	locale  string
	logger  logger.LogManager
}

// NotifierOption configures an ErrorNotifier.
type NotifierOption func(*ErrorNotifier)

// WithToast turns notifications on or off. Errors are mapped either way.
func WithToast(enabled bool) NotifierOption {
	return func(n *ErrorNotifier) {
		n.enabled = enabled
	}
}

// WithCatalog sets the message catalog. Defaults to notify.NewCatalog.
func WithCatalog(t *i18n.Translator) NotifierOption {
	return func(n *ErrorNotifier) {
		n.catalog = t
	}
}

// WithLocale sets the locale used when the request context carries none.
func WithLocale(locale string) NotifierOption {
	return func(n *ErrorNotifier) {
		n.locale = locale
	}
}

// WithNetworkTimeout is the timeout quoted in timeout messages.
func WithNetworkTimeout(d time.Duration) NotifierOption {
	return func(n *ErrorNotifier) {
		n.timeout = d
	}
}

func WithNotifierLogger(l logger.LogManager) NotifierOption {
	return func(n *ErrorNotifier) {
		n.logger = l
	}
}

func NewErrorNotifier(sink notify.Sink, opts ...NotifierOption) *ErrorNotifier {
	n := &ErrorNotifier{sink: sink, enabled: true}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = logger.OrNop(n.logger)
	if n.catalog == nil {
		cat, err := notify.NewCatalog()
		if err != nil {
			n.logger.WarnF("default notification catalog: %v", err)
		}
		n.catalog = cat
	}
	return n
}

// Hook returns the notifier as a client error hook.
func (n *ErrorNotifier) Hook() ErrorHook {
	return n.Handle
}

// Handle classifies err, notifies, and returns it as an *apperr.AppError. An
// error that already is an AppError is returned as the same instance.
func (n *ErrorNotifier) Handle(ctx context.Context, err error) (*Response, error) {
	ec := Classify(err)
	msg := n.message(ctx, ec)

	var ae *apperr.AppError
	if !errors.As(err, &ae) {
		ae = apperr.New(ec).WithMessage(msg).Wrap(err)
		if re, ok := AsRequestError(err); ok && re.Response != nil {
			ae.WithStatus(re.Response.StatusCode)
		}
	}

	n.logger.DebugFCtx(ctx, "request failed [%s]: %v", ec.Code(), err)
	if n.enabled && n.sink != nil {
		n.sink.Notify(ctx, notify.Notification{
			Title:    n.title(ctx, ec),
			Message:  msg,
			Color:    notify.ColorDanger,
			Position: notify.PositionTopRight,
			Code:     ec.Code(),
		})
	}
	return nil, ae
}

// Classify maps a client error to its error code.
func Classify(err error) *apperr.ErrorCode {
	if ec := apperr.CodeOf(err); ec != nil {
		return ec
	}
	re, ok := AsRequestError(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperr.ErrorCodeTimeout
		}
		return apperr.ErrorCodeRequestFailed
	}
	switch {
	case re.Response == nil && re.Timeout():
		return apperr.ErrorCodeTimeout
	case re.Response != nil:
		return apperr.ForStatus(re.Response.StatusCode)
	case re.Sent:
		return apperr.ErrorCodeNoResponse
	default:
		return apperr.ErrorCodeRequestFailed
	}
}

func (n *ErrorNotifier) localeFor(ctx context.Context) string {
	if l := i18n.LocaleFromContext(ctx); l != "" {
		return l
	}
	return n.locale
}

func (n *ErrorNotifier) message(ctx context.Context, ec *apperr.ErrorCode) string {
	if n.catalog == nil {
		return ec.Message()
	}
	var data map[string]any
	if ec == apperr.ErrorCodeTimeout {
		data = map[string]any{"timeout": n.timeout.Milliseconds()}
	}
	return n.catalog.T(n.localeFor(ctx), notify.MessageKey(ec), data)
}

func (n *ErrorNotifier) title(ctx context.Context, ec *apperr.ErrorCode) string {
	key := notify.KeyTitleClient
	if ec.ServerSide() {
		key = notify.KeyTitleServer
	}
	if n.catalog == nil {
		return notify.DefaultMessages()[key]
	}
	return n.catalog.T(n.localeFor(ctx), key, nil)
}
