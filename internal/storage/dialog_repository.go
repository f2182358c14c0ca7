package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TouchUser records that a user talked to a bot.
func (db *DB) TouchUser(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (namespace, bot_id, user_id, locale, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, bot_id, user_id) DO UPDATE SET
			locale = CASE WHEN excluded.locale = '' THEN users.locale ELSE excluded.locale END,
			last_seen = excluded.last_seen
	`
	now := time.Now().Unix()
	if _, err := db.writer.ExecContext(ctx, query, u.Namespace, u.BotID, u.UserID, u.Locale, now, now); err != nil {
		slog.ErrorContext(ctx, "failed to save user", "user_id", u.UserID, "error", err)
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// SearchUsers returns a page of users matching q and the total match count.
func (db *DB) SearchUsers(ctx context.Context, q UserQuery) ([]User, int, error) {
	page := q.normalize()
	var (
		where []string
		args  []any
	)
	where, args = appendEq(where, args, "namespace", q.Namespace)
	where, args = appendEq(where, args, "bot_id", q.BotID)
	if q.UserID != "" {
		where = append(where, `user_id LIKE ? ESCAPE '\'`)
		args = append(args, prefixPattern(q.UserID))
	}
	clause := whereClause(where)

	var total int
	if err := db.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := `SELECT namespace, bot_id, user_id, locale, first_seen, last_seen FROM users` + clause +
		` ORDER BY last_seen DESC LIMIT ? OFFSET ?`
	rows, err := db.reader.QueryContext(ctx, query, append(args, page.Limit, page.Offset)...)
	if err != nil {
		slog.ErrorContext(ctx, "failed to search users", "error", err)
		return nil, 0, fmt.Errorf("search users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Namespace, &u.BotID, &u.UserID, &u.Locale, &u.FirstSeen, &u.LastSeen); err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// GetOrCreateDialog returns the dialog of a user with a bot, creating it when absent.
// Actions are not loaded.
func (db *DB) GetOrCreateDialog(ctx context.Context, namespace, botID, userID, connectorID string) (*Dialog, error) {
	now := time.Now().Unix()
	query := `
		INSERT INTO dialogs (id, namespace, bot_id, user_id, connector_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, bot_id, user_id) DO NOTHING
	`
	if _, err := db.writer.ExecContext(ctx, query, uuid.NewString(), namespace, botID, userID, connectorID, now, now); err != nil {
		slog.ErrorContext(ctx, "failed to create dialog", "user_id", userID, "error", err)
		return nil, fmt.Errorf("create dialog: %w", err)
	}

	var d Dialog
	err := db.writer.QueryRowContext(ctx,
		`SELECT id, namespace, bot_id, user_id, connector_id, created_at, updated_at
		 FROM dialogs WHERE namespace = ? AND bot_id = ? AND user_id = ?`,
		namespace, botID, userID).
		Scan(&d.ID, &d.Namespace, &d.BotID, &d.UserID, &d.ConnectorID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("load dialog: %w", err)
	}
	return &d, nil
}

// AppendActions appends actions to a dialog in order, assigning ids and sequence numbers.
func (db *DB) AppendActions(ctx context.Context, dialogID string, actions []Action) error {
	if len(actions) == 0 {
		return nil
	}
	start := time.Now()
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var last int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM actions WHERE dialog_id = ?`, dialogID).Scan(&last); err != nil {
			return fmt.Errorf("read last sequence: %w", err)
		}
		now := time.Now().Unix()
		for i := range actions {
			a := &actions[i]
			if a.ID == "" {
				a.ID = uuid.NewString()
			}
			last++
			a.DialogID = dialogID
			a.Seq = last
			if a.CreatedAt == 0 {
				a.CreatedAt = now
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO actions (id, dialog_id, seq, kind, story_id, intent, text, last_answer, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.ID, dialogID, a.Seq, string(a.Kind), a.StoryID, a.Intent, a.Text,
				boolToInt(a.LastAnswer), a.CreatedAt); err != nil {
				return fmt.Errorf("insert action: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE dialogs SET updated_at = ? WHERE id = ?`, now, dialogID)
		return err
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to append actions", "dialog_id", dialogID, "error", err)
		return fmt.Errorf("append actions: %w", err)
	}
	warnIfSlow(ctx, "AppendActions", start, "count", len(actions))
	return nil
}

// GetDialog returns a dialog with its actions, or nil.
func (db *DB) GetDialog(ctx context.Context, id string) (*Dialog, error) {
	var d Dialog
	err := db.reader.QueryRowContext(ctx,
		`SELECT id, namespace, bot_id, user_id, connector_id, created_at, updated_at FROM dialogs WHERE id = ?`, id).
		Scan(&d.ID, &d.Namespace, &d.BotID, &d.UserID, &d.ConnectorID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query dialog: %w", err)
	}
	if d.Actions, err = db.getActions(ctx, d.ID); err != nil {
		return nil, err
	}
	return &d, nil
}

// SearchDialogs returns a page of dialogs, most recent first, with their actions.
func (db *DB) SearchDialogs(ctx context.Context, q DialogQuery) ([]Dialog, int, error) {
	page := q.normalize()
	var (
		where []string
		args  []any
	)
	where, args = appendEq(where, args, "d.namespace", q.Namespace)
	where, args = appendEq(where, args, "d.bot_id", q.BotID)
	where, args = appendEq(where, args, "d.user_id", q.UserID)
	if q.Text != "" {
		where = append(where, `EXISTS (SELECT 1 FROM actions a WHERE a.dialog_id = d.id AND a.text LIKE ? ESCAPE '\')`)
		args = append(args, containsPattern(q.Text))
	}
	clause := whereClause(where)

	var total int
	if err := db.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM dialogs d`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count dialogs: %w", err)
	}

	start := time.Now()
	query := `SELECT d.id, d.namespace, d.bot_id, d.user_id, d.connector_id, d.created_at, d.updated_at
		FROM dialogs d` + clause + ` ORDER BY d.updated_at DESC, d.id LIMIT ? OFFSET ?`
	rows, err := db.reader.QueryContext(ctx, query, append(args, page.Limit, page.Offset)...)
	if err != nil {
		slog.ErrorContext(ctx, "failed to search dialogs", "error", err)
		return nil, 0, fmt.Errorf("search dialogs: %w", err)
	}
	var dialogs []Dialog
	for rows.Next() {
		var d Dialog
		if err := rows.Scan(&d.ID, &d.Namespace, &d.BotID, &d.UserID, &d.ConnectorID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, 0, fmt.Errorf("scan dialog: %w", err)
		}
		dialogs = append(dialogs, d)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range dialogs {
		if dialogs[i].Actions, err = db.getActions(ctx, dialogs[i].ID); err != nil {
			return nil, 0, err
		}
	}
	warnIfSlow(ctx, "SearchDialogs", start, "count", len(dialogs))
	return dialogs, total, nil
}

func (db *DB) getActions(ctx context.Context, dialogID string) ([]Action, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT id, dialog_id, seq, kind, story_id, intent, text, last_answer, created_at
		 FROM actions WHERE dialog_id = ? ORDER BY seq`, dialogID)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var actions []Action
	for rows.Next() {
		var (
			a          Action
			kind       string
			lastAnswer int
		)
		if err := rows.Scan(&a.ID, &a.DialogID, &a.Seq, &kind, &a.StoryID, &a.Intent, &a.Text, &lastAnswer, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Kind = ActionKind(kind)
		a.LastAnswer = lastAnswer != 0
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func appendEq(where []string, args []any, column, value string) ([]string, []any) {
	if value == "" {
		return where, args
	}
	return append(where, column+" = ?"), append(args, value)
}

func whereClause(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(where, " AND ")
}
