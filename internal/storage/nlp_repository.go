package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	domerrors "github.com/garyellow/convobot-go/internal/errors"
)

// GetNLPApplication returns an application, or nil.
func (db *DB) GetNLPApplication(ctx context.Context, namespace, name string) (*NLPApplication, error) {
	var (
		app     NLPApplication
		locales string
	)
	err := db.reader.QueryRowContext(ctx,
		`SELECT namespace, name, locales, created_at FROM nlp_applications WHERE namespace = ? AND name = ?`,
		namespace, name).Scan(&app.Namespace, &app.Name, &locales, &app.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query nlp application: %w", err)
	}
	if err := json.Unmarshal([]byte(locales), &app.Locales); err != nil {
		return nil, fmt.Errorf("decode locales: %w", err)
	}
	return &app, nil
}

// SaveNLPApplication creates an application or merges new locales into it.
func (db *DB) SaveNLPApplication(ctx context.Context, app *NLPApplication) error {
	existing, err := db.GetNLPApplication(ctx, app.Namespace, app.Name)
	if err != nil {
		return err
	}
	locales := slices.Clone(app.Locales)
	createdAt := time.Now().Unix()
	if existing != nil {
		createdAt = existing.CreatedAt
		for _, l := range existing.Locales {
			if !slices.Contains(locales, l) {
				locales = append(locales, l)
			}
		}
	}
	slices.Sort(locales)
	raw, err := json.Marshal(locales)
	if err != nil {
		return fmt.Errorf("encode locales: %w", err)
	}
	_, err = db.writer.ExecContext(ctx,
		`INSERT INTO nlp_applications (namespace, name, locales, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, name) DO UPDATE SET locales = excluded.locales`,
		app.Namespace, app.Name, string(raw), createdAt)
	if err != nil {
		slog.ErrorContext(ctx, "failed to save nlp application", "application", app.Name, "error", err)
		return fmt.Errorf("failed to save nlp application: %w", err)
	}
	app.Locales = locales
	app.CreatedAt = createdAt
	return nil
}

// SaveIntent inserts or updates an intent.
func (db *DB) SaveIntent(ctx context.Context, in *Intent) error {
	_, err := db.writer.ExecContext(ctx,
		`INSERT INTO nlp_intents (namespace, application, name, description) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, application, name) DO UPDATE SET description = excluded.description`,
		in.Namespace, in.Application, in.Name, in.Description)
	if err != nil {
		return fmt.Errorf("failed to save intent: %w", err)
	}
	return nil
}

// GetIntents returns the intents of an application ordered by name.
func (db *DB) GetIntents(ctx context.Context, namespace, application string) ([]Intent, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT namespace, application, name, description FROM nlp_intents
		 WHERE namespace = ? AND application = ? ORDER BY name`, namespace, application)
	if err != nil {
		return nil, fmt.Errorf("query intents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var intents []Intent
	for rows.Next() {
		var in Intent
		if err := rows.Scan(&in.Namespace, &in.Application, &in.Name, &in.Description); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		intents = append(intents, in)
	}
	return intents, rows.Err()
}

// DeleteIntent removes an intent.
func (db *DB) DeleteIntent(ctx context.Context, namespace, application, name string) error {
	res, err := db.writer.ExecContext(ctx,
		`DELETE FROM nlp_intents WHERE namespace = ? AND application = ? AND name = ?`,
		namespace, application, name)
	if err != nil {
		return fmt.Errorf("failed to delete intent: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("intent %s: %w", name, domerrors.ErrNotFound)
	}
	return nil
}

// NormalizeSentence is the lookup key of a validated sentence.
func NormalizeSentence(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// SaveSentence inserts or updates a validated sentence.
func (db *DB) SaveSentence(ctx context.Context, s *Sentence) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = time.Now().Unix()
	}
	_, err := db.writer.ExecContext(ctx,
		`INSERT INTO nlp_sentences (id, namespace, application, text, normalized_text, intent, locale, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, application, normalized_text, locale) DO UPDATE SET
			text = excluded.text,
			intent = excluded.intent`,
		s.ID, s.Namespace, s.Application, s.Text, NormalizeSentence(s.Text), s.Intent, s.Locale, s.CreatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "failed to save sentence", "error", err)
		return fmt.Errorf("failed to save sentence: %w", err)
	}
	return nil
}

// FindValidatedSentence returns the sentence whose normalized text equals text's, or nil.
func (db *DB) FindValidatedSentence(ctx context.Context, namespace, application, locale, text string) (*Sentence, error) {
	var s Sentence
	err := db.reader.QueryRowContext(ctx,
		`SELECT id, namespace, application, text, intent, locale, created_at FROM nlp_sentences
		 WHERE namespace = ? AND application = ? AND locale = ? AND normalized_text = ?`,
		namespace, application, locale, NormalizeSentence(text)).
		Scan(&s.ID, &s.Namespace, &s.Application, &s.Text, &s.Intent, &s.Locale, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query sentence: %w", err)
	}
	return &s, nil
}

// SearchSentences returns a page of sentences and the total match count.
func (db *DB) SearchSentences(ctx context.Context, q SentenceQuery) ([]Sentence, int, error) {
	page := q.normalize()
	var (
		where []string
		args  []any
	)
	where, args = appendEq(where, args, "namespace", q.Namespace)
	where, args = appendEq(where, args, "application", q.Application)
	where, args = appendEq(where, args, "intent", q.Intent)
	where, args = appendEq(where, args, "locale", q.Locale)
	if q.Text != "" {
		where = append(where, `normalized_text LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(NormalizeSentence(q.Text)))
	}
	clause := whereClause(where)

	var total int
	if err := db.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM nlp_sentences`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sentences: %w", err)
	}

	rows, err := db.reader.QueryContext(ctx,
		`SELECT id, namespace, application, text, intent, locale, created_at FROM nlp_sentences`+clause+
			` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search sentences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Sentence
	for rows.Next() {
		var s Sentence
		if err := rows.Scan(&s.ID, &s.Namespace, &s.Application, &s.Text, &s.Intent, &s.Locale, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan sentence: %w", err)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}
