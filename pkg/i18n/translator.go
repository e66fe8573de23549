// Package i18n is a small thread-safe message catalog with {{placeholder}}
// interpolation and locale fallbacks. The client uses it to render user-facing
// notification text.
package i18n

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Translator holds locale -> key -> message bundles.
type Translator struct {
	mu            sync.RWMutex
	defaultLocale string
	fallbacks     []string
	store         map[string]map[string]string
}

// Option customizes Translator on creation.
type Option func(*Translator) error

// New creates a Translator. Options that fail (an unreadable bundle directory,
// say) are returned as an error.
func New(opts ...Option) (*Translator, error) {
	tr := &Translator{
		defaultLocale: "en",
		store:         make(map[string]map[string]string),
	}
	for _, opt := range opts {
		if err := opt(tr); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// WithDefaultLocale sets the default locale (e.g., "en").
func WithDefaultLocale(locale string) Option {
	return func(t *Translator) error {
		if strings.TrimSpace(locale) != "" {
			t.defaultLocale = locale
		}
		return nil
	}
}

// WithFallbackLocales sets fallback locales in preferred order.
func WithFallbackLocales(locales ...string) Option {
	return func(t *Translator) error {
		t.fallbacks = append([]string{}, locales...)
		return nil
	}
}

// WithBundle registers an in-memory bundle for locale.
func WithBundle(locale string, bundle map[string]string) Option {
	return func(t *Translator) error {
		t.AddBundle(locale, bundle)
		return nil
	}
}

// WithJSONDir loads every <locale>.json file in dir.
func WithJSONDir(dir string) Option {
	return func(t *Translator) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			locale := strings.TrimSuffix(e.Name(), ".json")
			if err := t.LoadJSONFile(locale, filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
		return nil
	}
}

// LoadJSONFile loads a key->message map from a JSON file into locale.
func (t *Translator) LoadJSONFile(locale, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	m := map[string]string{}
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("i18n: parse %s: %w", path, err)
	}
	t.AddBundle(locale, m)
	return nil
}

// AddBundle merges a bundle of key->message into locale.
func (t *Translator) AddBundle(locale string, bundle map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.store[locale]; !ok {
		t.store[locale] = make(map[string]string, len(bundle))
	}
	for k, v := range bundle {
		t.store[locale][k] = v
	}
}

// Locales returns the known locales, sorted.
func (t *Translator) Locales() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.store))
	for loc := range t.store {
		out = append(out, loc)
	}
	sort.Strings(out)
	return out
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// T translates key for locale. Lookup order is locale, fallbacks, default
// locale; a missing key renders as the key itself.
func (t *Translator) T(locale, key string, data map[string]any) string {
	if locale == "" {
		locale = t.defaultLocale
	}
	locales := append([]string{locale}, t.fallbacks...)
	locales = append(locales, t.defaultLocale)

	msg := key
	t.mu.RLock()
	for _, loc := range locales {
		if v, ok := t.store[loc][key]; ok {
			msg = v
			break
		}
	}
	t.mu.RUnlock()

	if len(data) == 0 {
		return msg
	}
	return placeholderRe.ReplaceAllStringFunc(msg, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if v, ok := data[name]; ok {
			return fmt.Sprint(v)
		}
		return m
	})
}

// TCtx translates using the locale stored in ctx.
func (t *Translator) TCtx(ctx context.Context, key string, data map[string]any) string {
	return t.T(LocaleFromContext(ctx), key, data)
}

// ErrNotFound is returned by Lookup when a key is missing.
var ErrNotFound = errors.New("i18n: key not found")

// Lookup returns the raw message for a key without fallbacks or interpolation.
func (t *Translator) Lookup(locale, key string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if v, ok := t.store[locale][key]; ok {
		return v, nil
	}
	return "", ErrNotFound
}

type ctxKey string

const localeCtxKey ctxKey = "i18n_locale"

// ContextWithLocale returns a child context with locale stored.
func ContextWithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeCtxKey, locale)
}

// LocaleFromContext returns the stored locale or empty.
func LocaleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(localeCtxKey).(string)
	return s
}
