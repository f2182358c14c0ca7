package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/garyellow/convobot-go/internal/errors"
	"github.com/garyellow/convobot-go/internal/genai"
	"github.com/garyellow/convobot-go/internal/storage"
)

type fakeClassifier struct {
	result  *genai.Classification
	err     error
	intents []string
	calls   int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, intents []string) (*genai.Classification, error) {
	f.calls++
	f.intents = intents
	return f.result, f.err
}

type countingRecorder struct {
	parses       map[string]int
	applications map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{parses: map[string]int{}, applications: map[string]int{}}
}

func (r *countingRecorder) RecordNLPParse(source, status string, _ float64) {
	r.parses[source+"/"+status]++
}

func (r *countingRecorder) RecordNLPApplication(status string) { r.applications[status]++ }

func setup(t *testing.T, classifier Classifier) (*Service, *storage.DB, *countingRecorder) {
	t.Helper()
	db, err := storage.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rec := newCountingRecorder()
	svc := NewService(db, classifier, rec, "en")

	ctx := context.Background()
	require.NoError(t, svc.CreateApplication(ctx, "acme", "support", "en"))
	require.NoError(t, svc.SaveIntent(ctx, "acme", "support", "greetings", ""))
	require.NoError(t, svc.SaveIntent(ctx, "acme", "support", "opening_hours", ""))
	return svc, db, rec
}

func TestCreateApplication(t *testing.T) {
	svc, db, rec := setup(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.CreateApplication(ctx, "acme", "support", "fr-FR"))
	app, err := svc.Application(ctx, "acme", "support")
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "fr-FR"}, app.Locales)
	assert.Equal(t, 2, rec.applications["success"])

	_, err = svc.Application(ctx, "acme", "missing")
	assert.ErrorIs(t, err, domerrors.ErrNotFound)

	err = svc.CreateApplication(ctx, "acme", "support", "not a tag!")
	assert.ErrorIs(t, err, domerrors.ErrInvalidInput)

	err = svc.CreateApplication(ctx, "", "support", "en")
	assert.ErrorIs(t, err, domerrors.ErrInvalidInput)
	_ = db
}

func TestParse_ValidatedSentenceWins(t *testing.T) {
	classifier := &fakeClassifier{result: &genai.Classification{Intent: "opening_hours", Score: 0.7}}
	svc, db, rec := setup(t, classifier)
	ctx := context.Background()

	require.NoError(t, svc.SaveSentence(ctx, &storage.Sentence{
		Namespace: "acme", Application: "support", Text: "Hello there", Intent: "greetings",
	}))

	res, err := svc.Parse(ctx, Query{Namespace: "acme", Application: "support", Locale: "en-US", Text: "  hello   THERE "})
	require.NoError(t, err)
	assert.Equal(t, "greetings", res.Intent)
	assert.Equal(t, SourceSentence, res.Source)
	assert.InDelta(t, 1.0, res.Score, 1e-9)
	assert.Equal(t, "en", res.Locale)
	assert.Zero(t, classifier.calls)
	assert.Equal(t, 1, rec.parses["sentence/success"])

	n, err := db.CountParseLogs(ctx, storage.ParseLogQuery{Namespace: "acme", Application: "support"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestParse_Classifier(t *testing.T) {
	classifier := &fakeClassifier{result: &genai.Classification{Intent: "opening_hours", Score: 0.7}}
	svc, _, _ := setup(t, classifier)

	res, err := svc.Parse(context.Background(), Query{Namespace: "acme", Application: "support", Text: "when do you open?"})
	require.NoError(t, err)
	assert.Equal(t, "opening_hours", res.Intent)
	assert.Equal(t, SourceClassifier, res.Source)
	assert.Equal(t, []string{"greetings", "opening_hours"}, classifier.intents)
}

func TestParse_FallsBackToUnknown(t *testing.T) {
	tests := []struct {
		name       string
		classifier Classifier
		text       string
	}{
		{"no classifier", nil, "anything"},
		{"classifier error", &fakeClassifier{err: errors.New("503 unavailable")}, "anything"},
		{"classifier says unknown", &fakeClassifier{result: &genai.Classification{Intent: UnknownIntent, Score: 0.2}}, "anything"},
		{"blank text", &fakeClassifier{}, "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, rec := setup(t, tt.classifier)
			res, err := svc.Parse(context.Background(), Query{Namespace: "acme", Application: "support", Text: tt.text})
			require.NoError(t, err)
			assert.Equal(t, UnknownIntent, res.Intent)
			assert.Equal(t, SourceFallback, res.Source)
			assert.Equal(t, 1, rec.parses["fallback/success"])
		})
	}
}

func TestSaveSentence_Validation(t *testing.T) {
	svc, _, _ := setup(t, nil)
	ctx := context.Background()

	err := svc.SaveSentence(ctx, &storage.Sentence{Namespace: "acme", Application: "support", Text: "hi", Intent: "nope"})
	assert.ErrorIs(t, err, domerrors.ErrInvalidInput)

	err = svc.SaveSentence(ctx, &storage.Sentence{Namespace: "acme", Application: "support", Text: " ", Intent: "greetings"})
	assert.ErrorIs(t, err, domerrors.ErrInvalidInput)

	s := &storage.Sentence{Namespace: "acme", Application: "support", Text: "gibberish", Intent: UnknownIntent, Locale: "EN"}
	require.NoError(t, svc.SaveSentence(ctx, s))
	assert.Equal(t, "en", s.Locale)

	list, total, err := svc.SearchSentences(ctx, storage.SentenceQuery{Namespace: "acme", Application: "support"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "gibberish", list[0].Text)
}

func TestSaveIntent_RejectsReservedNames(t *testing.T) {
	svc, _, _ := setup(t, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SaveIntent(ctx, "acme", "support", UnknownIntent, ""), domerrors.ErrInvalidInput)
	assert.ErrorIs(t, svc.SaveIntent(ctx, "acme", "support", "  ", ""), domerrors.ErrInvalidInput)

	require.NoError(t, svc.DeleteIntent(ctx, "acme", "support", "greetings"))
	intents, err := svc.Intents(ctx, "acme", "support")
	require.NoError(t, err)
	assert.Equal(t, []string{"opening_hours"}, intents)
}

func TestHealthcheck(t *testing.T) {
	svc, db, _ := setup(t, nil)
	require.NoError(t, svc.Healthcheck(context.Background()))
	assert.False(t, svc.HasClassifier())

	require.NoError(t, db.Close())
	assert.Error(t, svc.Healthcheck(context.Background()))
}
