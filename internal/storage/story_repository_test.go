package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/garyellow/convobot-go/internal/errors"
)

func TestStoryLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s := &Story{
		Namespace: "acme", BotID: "support", StoryID: "opening-hours", Name: "Opening hours",
		Intent: "opening_hours", AnswerType: AnswerScript, Answer: `{{define "main"}}9-5{{end}}`, ScriptMain: "main",
	}
	require.NoError(t, db.SaveStory(ctx, s))

	got, err := db.GetStory(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, AnswerScript, got.AnswerType)
	assert.Equal(t, "main", got.ScriptMain)

	s.Answer = "Open 9-5"
	s.AnswerType = AnswerPlain
	s.ScriptMain = ""
	require.NoError(t, db.SaveStory(ctx, s))
	stories, err := db.GetStoriesByBot(ctx, "acme", "support")
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, "Open 9-5", stories[0].Answer)

	require.NoError(t, db.DeleteStory(ctx, s.ID))
	missing, err := db.GetStory(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.ErrorIs(t, db.DeleteStory(ctx, s.ID), domerrors.ErrNotFound)
}
