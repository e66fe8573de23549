package http

import (
	"context"
	"errors"
	"mime"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/milan604/apiclient/pkg/credentials"
	"github.com/milan604/apiclient/pkg/logger"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderRequestID     = "X-Request-ID"

	contentTypeJSON      = "application/json"
	contentTypeMultipart = "multipart/form-data"
)

func mediaType(h string) string {
	mt, _, err := mime.ParseMediaType(h)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(h))
	}
	return mt
}

func isJSON(contentType string) bool {
	mt := mediaType(contentType)
	return mt == contentTypeJSON || strings.HasSuffix(mt, "+json")
}

// KeyCaseHook converts query parameter names and JSON body keys to the wire
// convention. Multipart bodies are left alone.
func KeyCaseHook(t KeyTranslator) RequestHook {
	return func(_ context.Context, req *PendingRequest) error {
		if len(req.Query) > 0 {
			q := url.Values{}
			for k, v := range req.Query {
				wk := t.ToWire(k)
				q[wk] = append(q[wk], v...)
			}
			req.Query = q
		}
		ct := req.Header.Get(HeaderContentType)
		if len(req.Body) == 0 || mediaType(ct) == contentTypeMultipart {
			return nil
		}
		if ct != "" && !isJSON(ct) {
			return nil
		}
		if out, ok := TransformJSONKeys(req.Body, t.ToWire); ok {
			req.Body = out
		}
		return nil
	}
}

// ResponseKeyCaseHook converts JSON response keys to the application
// convention.
func ResponseKeyCaseHook(t KeyTranslator) ResponseHook {
	return func(_ context.Context, resp *Response) error {
		if len(resp.Body) == 0 || !isJSON(resp.Header.Get(HeaderContentType)) {
			return nil
		}
		out, ok := TransformJSONKeys(resp.Body, t.FromWire)
		if !ok {
			return errors.New("response body is not valid JSON")
		}
		resp.Body = out
		return nil
	}
}

// AccessTokenSource is the read side of a CredentialStore.
type AccessTokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// DefaultHeadersHook sets a JSON content type and the stored bearer token.
// Headers already on the request win.
func DefaultHeadersHook(store AccessTokenSource) RequestHook {
	return func(ctx context.Context, req *PendingRequest) error {
		if req.Header.Get(HeaderContentType) == "" {
			req.Header.Set(HeaderContentType, contentTypeJSON)
		}
		if store == nil || req.Header.Get(HeaderAuthorization) != "" {
			return nil
		}
		token, err := store.AccessToken(ctx)
		if errors.Is(err, credentials.ErrNoCredentials) {
			return nil
		}
		if err != nil {
			return err
		}
		req.Header.Set(HeaderAuthorization, BearerPrefix+token)
		return nil
	}
}

// RequestIDHook tags each request with an X-Request-ID. An id in the context
// (see logger.WithRequestID) is reused so client and caller logs line up.
func RequestIDHook() RequestHook {
	return func(ctx context.Context, req *PendingRequest) error {
		if req.Header.Get(HeaderRequestID) != "" {
			return nil
		}
		id := logger.RequestIDFrom(ctx)
		if id == "" {
			id = uuid.NewString()
		}
		req.Header.Set(HeaderRequestID, id)
		return nil
	}
}

// TracePropagationHook injects the W3C trace context of ctx.
func TracePropagationHook() RequestHook {
	prop := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	return func(ctx context.Context, req *PendingRequest) error {
		if p := otel.GetTextMapPropagator(); len(p.Fields()) > 0 {
			p.Inject(ctx, propagation.HeaderCarrier(req.Header))
			return nil
		}
		prop.Inject(ctx, propagation.HeaderCarrier(req.Header))
		return nil
	}
}

// RequestLogHook logs each outgoing request. The Authorization header is
// redacted.
func RequestLogHook(log logger.LogManager) RequestHook {
	log = logger.OrNop(log)
	return func(ctx context.Context, req *PendingRequest) error {
		log.InfoFCtx(ctx, "request to [start]: %s %s query=%v headers=%v body=%s",
			req.Method, req.URL, req.Query, redactHeaders(req.Header), truncate(req.Body, 1024))
		return nil
	}
}

// ResponseLogHook logs each successful response.
func ResponseLogHook(log logger.LogManager) ResponseHook {
	log = logger.OrNop(log)
	return func(ctx context.Context, resp *Response) error {
		target := ""
		if resp.Request != nil {
			target = resp.Request.URL
		}
		log.InfoFCtx(ctx, "response from [%s]: status=%d body=%s", target, resp.StatusCode, truncate(resp.Body, 1024))
		return nil
	}
}

func redactHeaders(h map[string][]string) map[string][]string {
	out := make(map[string][]string, len(h))
	for k, v := range h {
		if strings.EqualFold(k, HeaderAuthorization) {
			out[k] = []string{"[REDACTED]"}
			continue
		}
		out[k] = v
	}
	return out
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
