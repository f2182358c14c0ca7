package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveNLPApplication_MergesLocales(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveNLPApplication(ctx, &NLPApplication{Namespace: "acme", Name: "support", Locales: []string{"en"}}))
	require.NoError(t, db.SaveNLPApplication(ctx, &NLPApplication{Namespace: "acme", Name: "support", Locales: []string{"fr"}}))

	app, err := db.GetNLPApplication(ctx, "acme", "support")
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.Equal(t, []string{"en", "fr"}, app.Locales)

	missing, err := db.GetNLPApplication(ctx, "acme", "other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIntents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveIntent(ctx, &Intent{Namespace: "acme", Application: "support", Name: "greetings"}))
	require.NoError(t, db.SaveIntent(ctx, &Intent{Namespace: "acme", Application: "support", Name: "bye", Description: "leaving"}))

	intents, err := db.GetIntents(ctx, "acme", "support")
	require.NoError(t, err)
	require.Len(t, intents, 2)
	assert.Equal(t, "bye", intents[0].Name)

	require.NoError(t, db.DeleteIntent(ctx, "acme", "support", "bye"))
	assert.Error(t, db.DeleteIntent(ctx, "acme", "support", "bye"))
}

func TestSentences(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveSentence(ctx, &Sentence{
		Namespace: "acme", Application: "support", Text: "Hello  There", Intent: "greetings", Locale: "en",
	}))

	found, err := db.FindValidatedSentence(ctx, "acme", "support", "en", "hello there")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "greetings", found.Intent)

	none, err := db.FindValidatedSentence(ctx, "acme", "support", "fr", "hello there")
	require.NoError(t, err)
	assert.Nil(t, none)

	// Re-saving the same normalized text re-labels it.
	require.NoError(t, db.SaveSentence(ctx, &Sentence{
		Namespace: "acme", Application: "support", Text: "hello there", Intent: "smalltalk", Locale: "en",
	}))
	list, total, err := db.SearchSentences(ctx, SentenceQuery{Namespace: "acme", Text: "HELLO"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "smalltalk", list[0].Intent)
}

func TestParseLogStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, l := range []ParseLog{
		{Namespace: "acme", Application: "support", Text: "hi", Intent: "greetings", Score: 1, Source: "sentence"},
		{Namespace: "acme", Application: "support", Text: "hello", Intent: "greetings", Score: 0.5, Source: "classifier"},
		{Namespace: "acme", Application: "support", Text: "???", Intent: "unknown", Score: 0, Source: "fallback"},
	} {
		require.NoError(t, db.SaveParseLog(ctx, &l))
	}

	q := ParseLogQuery{Namespace: "acme", Application: "support"}
	logs, err := db.SearchParseLogs(ctx, q)
	require.NoError(t, err)
	assert.Len(t, logs, 3)

	total, err := db.CountParseLogs(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	counts, err := db.ParseLogIntentCounts(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"greetings": 2, "unknown": 1}, counts)

	avg, err := db.ParseLogAverageScore(ctx, q)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, avg, 1e-9)

	future, err := db.CountParseLogs(ctx, ParseLogQuery{Namespace: "acme", Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Zero(t, future)
}
