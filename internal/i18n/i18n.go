// Package i18n resolves label translations per namespace and locale.
package i18n

import (
	"context"
	"log/slog"

	"golang.org/x/text/language"
)

// LabelStore reads label translations keyed by locale.
type LabelStore interface {
	GetLabelTranslations(ctx context.Context, namespace, category, defaultLabel string) (map[string]string, error)
}

// Provider creates translators bound to one namespace and locale.
type Provider struct {
	store         LabelStore
	defaultLocale language.Tag
}

// NewProvider returns a provider. An unparsable default locale falls back to English.
func NewProvider(store LabelStore, defaultLocale string) *Provider {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.English
	}
	return &Provider{store: store, defaultLocale: tag}
}

// DefaultLocale returns the configured default locale.
func (p *Provider) DefaultLocale() language.Tag {
	return p.defaultLocale
}

// Bind returns a translator for namespace and the requested locale.
// The translator holds no shared state and is safe to use from one dispatch.
func (p *Provider) Bind(namespace, locale string) Translator {
	tag := p.defaultLocale
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			tag = parsed
		}
	}
	return Translator{store: p.store, namespace: namespace, locale: tag}
}

// Translator translates default labels into one locale.
// The zero value returns labels unchanged.
type Translator struct {
	store     LabelStore
	namespace string
	locale    language.Tag
}

// Locale returns the bound locale.
func (t Translator) Locale() language.Tag {
	return t.locale
}

// Translate returns the best translation of defaultLabel, or defaultLabel itself.
func (t Translator) Translate(ctx context.Context, category, defaultLabel string) string {
	if t.store == nil || defaultLabel == "" {
		return defaultLabel
	}
	translations, err := t.store.GetLabelTranslations(ctx, t.namespace, category, defaultLabel)
	if err != nil {
		slog.WarnContext(ctx, "label lookup failed",
			"namespace", t.namespace,
			"category", category,
			"error", err)
		return defaultLabel
	}
	if len(translations) == 0 {
		return defaultLabel
	}
	if text, ok := translations[t.locale.String()]; ok {
		return text
	}

	tags := make([]language.Tag, 0, len(translations))
	keys := make([]string, 0, len(translations))
	for locale := range translations {
		tag, err := language.Parse(locale)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		keys = append(keys, locale)
	}
	if len(tags) == 0 {
		return defaultLabel
	}
	_, index, confidence := language.NewMatcher(tags).Match(t.locale)
	if confidence == language.No {
		return defaultLabel
	}
	return translations[keys[index]]
}

// MatchLocale returns the supported locale closest to requested, or the first supported one.
func MatchLocale(requested string, supported []string) string {
	if len(supported) == 0 {
		return requested
	}
	tags := make([]language.Tag, 0, len(supported))
	for _, s := range supported {
		tags = append(tags, language.Make(s))
	}
	req, err := language.Parse(requested)
	if err != nil {
		return supported[0]
	}
	_, index, confidence := language.NewMatcher(tags).Match(req)
	if confidence == language.No {
		return supported[0]
	}
	return supported[index]
}
