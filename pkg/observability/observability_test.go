package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/milan604/apiclient/pkg/config"
)

func TestNewDisabled(t *testing.T) {
	obs, err := New(context.Background(), nil, config.TraceSettings{})
	require.NoError(t, err)
	assert.NotNil(t, obs.GetTracer())
	assert.NoError(t, obs.Shutdown(context.Background()))
}

func TestHelpersRecordOnSpan(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	AddSpanAttributes(ctx, AttrRequestID.String("r1"))
	AddSpanEvent(ctx, "queued")
	RecordSpanError(ctx, errors.New("boom"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "r1", ended[0].Attributes()[0].Value.AsString())
	assert.Len(t, ended[0].Events(), 2) // custom event + recorded error
}
