package logger

import (
	"context"
	"sync"
)

var (
	registryMu         sync.RWMutex
	contextKeyRegistry = make(map[any]string)
)

// RegisterContextKey makes the *FCtx methods log ctx.Value(ctxKey) under logField.
func RegisterContextKey(ctxKey any, logField string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	contextKeyRegistry[ctxKey] = logField
}

// WithRequestID stores a request id for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// RequestIDFrom returns the request id stored by WithRequestID.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

func withContext(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	fields := make([]any, 0, len(contextKeyRegistry)*2)
	for key, fieldName := range contextKeyRegistry {
		if val := ctx.Value(key); val != nil {
			fields = append(fields, fieldName, val)
		}
	}
	return fields
}
