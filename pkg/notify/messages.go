package notify

import (
	"github.com/milan604/apiclient/pkg/apperr"
	"github.com/milan604/apiclient/pkg/i18n"
)

// Catalog keys.
const (
	KeyTitleClient = "title.client"
	KeyTitleServer = "title.server"
	KeyTimeout     = "error.timeout"
)

// MessageKey returns the catalog key for an error code.
func MessageKey(ec *apperr.ErrorCode) string {
	if ec == apperr.ErrorCodeTimeout {
		return KeyTimeout
	}
	return "error." + ec.Code()
}

// DefaultMessages is the English bundle.
func DefaultMessages() map[string]string {
	m := map[string]string{
		KeyTitleClient: "Client error responses",
		KeyTitleServer: "Server error responses.",
		KeyTimeout:     "Timeout of {{timeout}}ms.",
	}
	for _, ec := range []*apperr.ErrorCode{
		apperr.ErrorCodeNoResponse,
		apperr.ErrorCodeRequestFailed,
		apperr.ErrorCodeRefreshFailed,
		apperr.ErrorCodeBadRequest,
		apperr.ErrorCodeUnauthorized,
		apperr.ErrorCodeForbidden,
		apperr.ErrorCodeNotFound,
		apperr.ErrorCodeMethodNotAllowed,
		apperr.ErrorCodeRequestTimeout,
		apperr.ErrorCodeTooManyRequests,
		apperr.ErrorCodeInternal,
		apperr.ErrorCodeBadGateway,
		apperr.ErrorCodeUnexpected,
	} {
		m[MessageKey(ec)] = ec.Message()
	}
	return m
}

// NewCatalog returns a translator preloaded with DefaultMessages under "en".
// Extra options can add locales or override entries.
func NewCatalog(opts ...i18n.Option) (*i18n.Translator, error) {
	base := []i18n.Option{
		i18n.WithDefaultLocale("en"),
		i18n.WithBundle("en", DefaultMessages()),
	}
	return i18n.New(append(base, opts...)...)
}
