package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateDialog_Stable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d1, err := db.GetOrCreateDialog(ctx, "acme", "support", "u1", "c1")
	require.NoError(t, err)
	d2, err := db.GetOrCreateDialog(ctx, "acme", "support", "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, d1.ID, d2.ID)

	other, err := db.GetOrCreateDialog(ctx, "acme", "support", "u2", "c1")
	require.NoError(t, err)
	assert.NotEqual(t, d1.ID, other.ID)
}

func TestAppendActions_Sequence(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	d, err := db.GetOrCreateDialog(ctx, "acme", "support", "u1", "c1")
	require.NoError(t, err)

	first := []Action{
		{Kind: ActionUser, Text: "hello"},
		{Kind: ActionBot, StoryID: "greetings", Text: "hi there", LastAnswer: true},
	}
	require.NoError(t, db.AppendActions(ctx, d.ID, first))
	assert.Equal(t, 1, first[0].Seq)
	assert.Equal(t, 2, first[1].Seq)

	second := []Action{{Kind: ActionUser, Text: "bye"}}
	require.NoError(t, db.AppendActions(ctx, d.ID, second))
	assert.Equal(t, 3, second[0].Seq)

	got, err := db.GetDialog(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, got.Actions, 3)
	assert.True(t, got.Actions[1].LastAnswer)
	assert.Equal(t, ActionBot, got.Actions[1].Kind)
}

func TestSearchDialogs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, u := range []string{"u1", "u2"} {
		d, err := db.GetOrCreateDialog(ctx, "acme", "support", u, "c1")
		require.NoError(t, err)
		require.NoError(t, db.AppendActions(ctx, d.ID, []Action{{Kind: ActionUser, Text: "hello from " + u}}))
	}

	dialogs, total, err := db.SearchDialogs(ctx, DialogQuery{Namespace: "acme", Text: "from u2"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, dialogs, 1)
	assert.Equal(t, "u2", dialogs[0].UserID)
	assert.Len(t, dialogs[0].Actions, 1)

	_, total, err = db.SearchDialogs(ctx, DialogQuery{Namespace: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestSearchUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.TouchUser(ctx, &User{Namespace: "acme", BotID: "support", UserID: "alice", Locale: "en"}))
	require.NoError(t, db.TouchUser(ctx, &User{Namespace: "acme", BotID: "support", UserID: "alina"}))
	require.NoError(t, db.TouchUser(ctx, &User{Namespace: "acme", BotID: "support", UserID: "bob"}))
	// An empty locale does not erase the stored one.
	require.NoError(t, db.TouchUser(ctx, &User{Namespace: "acme", BotID: "support", UserID: "alice"}))

	users, total, err := db.SearchUsers(ctx, UserQuery{Namespace: "acme", UserID: "ali"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, users, 2)
	for _, u := range users {
		if u.UserID == "alice" {
			assert.Equal(t, "en", u.Locale)
		}
	}

	_, total, err = db.SearchUsers(ctx, UserQuery{Namespace: "acme", UserID: "%"})
	require.NoError(t, err)
	assert.Zero(t, total)
}
