// Package notify carries user-facing failure notifications from the client to
// whatever renders them. Delivery is fire-and-forget.
package notify

import (
	"context"
	"sync"

	"github.com/milan604/apiclient/pkg/logger"
)

const (
	ColorDanger  = "danger"
	ColorWarning = "warning"

	PositionTopRight = "top-right"
)

// Notification is one toast-style message.
type Notification struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Color    string `json:"color"`
	Position string `json:"position"`
	// Code is the apperr code the notification was derived from.
	Code string `json:"code,omitempty"`
}

// Sink receives notifications. Implementations must not block for long.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification)

func (f SinkFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// LogSink writes notifications to a logger.
type LogSink struct {
	Log logger.LogManager
}

func (s LogSink) Notify(ctx context.Context, n Notification) {
	logger.OrNop(s.Log).WarnFCtx(ctx, "notification [%s] %s: %s", n.Code, n.Title, n.Message)
}

// Multi fans a notification out to every sink.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, n Notification) {
		for _, s := range sinks {
			s.Notify(ctx, n)
		}
	})
}

// Recorder keeps every notification it receives. Safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	got []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

// Notifications returns a copy of what was recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}
