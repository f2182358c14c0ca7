package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domerrors "github.com/garyellow/convobot-go/internal/errors"
)

const storyColumns = `id, namespace, bot_id, story_id, name, intent, answer_type, answer, script_main, created_at, updated_at`

// SaveStory inserts or updates a story keyed by (namespace, bot, story id).
func (db *DB) SaveStory(ctx context.Context, s *Story) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	query := `
		INSERT INTO stories (` + storyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, bot_id, story_id) DO UPDATE SET
			name = excluded.name,
			intent = excluded.intent,
			answer_type = excluded.answer_type,
			answer = excluded.answer,
			script_main = excluded.script_main,
			updated_at = excluded.updated_at
	`
	now := time.Now().Unix()
	if s.CreatedAt == 0 {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	start := time.Now()
	_, err := db.writer.ExecContext(ctx, query, s.ID, s.Namespace, s.BotID, s.StoryID, s.Name,
		s.Intent, string(s.AnswerType), s.Answer, s.ScriptMain, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "failed to save story",
			"story_id", s.StoryID,
			"error", err)
		return fmt.Errorf("failed to save story: %w", err)
	}
	warnIfSlow(ctx, "SaveStory", start, "story_id", s.StoryID)
	return nil
}

// GetStory returns a story by surrogate id, or nil.
func (db *DB) GetStory(ctx context.Context, id string) (*Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE id = ?`
	s, err := scanStory(db.reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to query story", "id", id, "error", err)
		return nil, fmt.Errorf("query story: %w", err)
	}
	return s, nil
}

// GetStoriesByBot returns the configured stories of a bot.
func (db *DB) GetStoriesByBot(ctx context.Context, namespace, botID string) ([]Story, error) {
	query := `SELECT ` + storyColumns + ` FROM stories WHERE namespace = ? AND bot_id = ? ORDER BY story_id`
	rows, err := db.reader.QueryContext(ctx, query, namespace, botID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to query stories", "bot_id", botID, "error", err)
		return nil, fmt.Errorf("query stories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Story
	for rows.Next() {
		s, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// DeleteStory removes a story by surrogate id.
func (db *DB) DeleteStory(ctx context.Context, id string) error {
	res, err := db.writer.ExecContext(ctx, `DELETE FROM stories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("story %s: %w", id, domerrors.ErrNotFound)
	}
	return nil
}

func scanStory(row rowScanner) (*Story, error) {
	var (
		s          Story
		answerType string
	)
	if err := row.Scan(&s.ID, &s.Namespace, &s.BotID, &s.StoryID, &s.Name, &s.Intent,
		&answerType, &s.Answer, &s.ScriptMain, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.AnswerType = AnswerType(answerType)
	return &s, nil
}
