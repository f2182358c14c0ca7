package i18n

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeStore struct {
	labels map[string]string
	err    error
	calls  int
}

func (f *fakeStore) GetLabelTranslations(context.Context, string, string, string) (map[string]string, error) {
	f.calls++
	return f.labels, f.err
}

func TestTranslate(t *testing.T) {
	store := &fakeStore{labels: map[string]string{"fr": "Bonjour", "pt-BR": "Olá"}}
	p := NewProvider(store, "en")
	ctx := context.Background()

	assert.Equal(t, "Bonjour", p.Bind("acme", "fr").Translate(ctx, "greetings", "Hello"))
	assert.Equal(t, "Bonjour", p.Bind("acme", "fr-CA").Translate(ctx, "greetings", "Hello"))
	assert.Equal(t, "Olá", p.Bind("acme", "pt").Translate(ctx, "greetings", "Hello"))
	assert.Equal(t, "Hello", p.Bind("acme", "ja").Translate(ctx, "greetings", "Hello"))
}

func TestTranslate_Fallbacks(t *testing.T) {
	ctx := context.Background()

	var zero Translator
	assert.Equal(t, "Hello", zero.Translate(ctx, "c", "Hello"))

	failing := NewProvider(&fakeStore{err: errors.New("db down")}, "en")
	assert.Equal(t, "Hello", failing.Bind("acme", "fr").Translate(ctx, "c", "Hello"))

	empty := &fakeStore{}
	p := NewProvider(empty, "en")
	assert.Equal(t, "", p.Bind("acme", "fr").Translate(ctx, "c", ""))
	assert.Zero(t, empty.calls)
}

func TestBind_Locale(t *testing.T) {
	p := NewProvider(nil, "not a locale!")
	assert.Equal(t, "en", p.DefaultLocale().String())
	assert.Equal(t, "en", p.Bind("acme", "").Locale().String())
	assert.Equal(t, "de", p.Bind("acme", "de").Locale().String())
}

func TestMatchLocale(t *testing.T) {
	assert.Equal(t, "fr", MatchLocale("fr-CA", []string{"en", "fr"}))
	assert.Equal(t, "en", MatchLocale("??", []string{"en", "fr"}))
	assert.Equal(t, "de", MatchLocale("de", nil))
}
