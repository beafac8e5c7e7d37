package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"strings"
	"sync"
)

//go:embed messages/*.json
var messagesFS embed.FS

// Supported locales
const (
	LocaleEnglish = "en"
	LocaleGerman  = "de"
	DefaultLocale = LocaleEnglish
)

var supportedLocales = []string{LocaleEnglish, LocaleGerman}

type localeKey struct{}

var (
	messages     map[string]map[string]interface{}
	messagesOnce sync.Once
)

func loadMessages() {
	messagesOnce.Do(func() {
		messages = make(map[string]map[string]interface{})

		for _, locale := range supportedLocales {
			data, err := messagesFS.ReadFile("messages/" + locale + ".json")
			if err != nil {
				continue
			}

			var msg map[string]interface{}
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}

			messages[locale] = msg
		}
	})
}

// Localizer translates message keys for one locale
type Localizer struct {
	locale string
}

// NewLocalizer creates a localizer, falling back to English for unknown locales
func NewLocalizer(locale string) *Localizer {
	loadMessages()

	if !isSupported(locale) {
		locale = DefaultLocale
	}
	return &Localizer{locale: locale}
}

// LocalizerFromContext creates a localizer from the locale stored in ctx
func LocalizerFromContext(ctx context.Context) *Localizer {
	return NewLocalizer(GetLocaleFromContext(ctx))
}

// T translates a dot-notation key, replacing {param} placeholders.
// Unknown keys are returned unchanged.
func (l *Localizer) T(key string, params ...map[string]string) string {
	msg := lookup(key, l.locale)
	if msg == "" {
		msg = lookup(key, DefaultLocale)
	}
	if msg == "" {
		return key
	}

	if len(params) > 0 {
		for k, v := range params[0] {
			msg = strings.ReplaceAll(msg, "{"+k+"}", v)
		}
	}
	return msg
}

// Locale returns the localizer's locale
func (l *Localizer) Locale() string {
	return l.locale
}

func lookup(key, locale string) string {
	current, ok := messages[locale]
	if !ok {
		return ""
	}

	parts := strings.Split(key, ".")
	for i, part := range parts {
		if i == len(parts)-1 {
			str, _ := current[part].(string)
			return str
		}
		nested, ok := current[part].(map[string]interface{})
		if !ok {
			return ""
		}
		current = nested
	}
	return ""
}

func isSupported(locale string) bool {
	for _, l := range supportedLocales {
		if l == locale {
			return true
		}
	}
	return false
}

// WithLocale adds locale to context
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// GetLocaleFromContext retrieves locale from context
func GetLocaleFromContext(ctx context.Context) string {
	if locale, ok := ctx.Value(localeKey{}).(string); ok && locale != "" {
		return locale
	}
	return DefaultLocale
}

// ParseAcceptLanguage returns the first supported language in header order.
// Quality values are ignored; browsers already list tags by preference.
func ParseAcceptLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		primary := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if isSupported(primary) {
			return primary
		}
	}
	return DefaultLocale
}

// T translates using the default locale
func T(key string, params ...map[string]string) string {
	return NewLocalizer(DefaultLocale).T(key, params...)
}

// TFromContext translates using locale from context
func TFromContext(ctx context.Context, key string, params ...map[string]string) string {
	return LocalizerFromContext(ctx).T(key, params...)
}
