package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SaveParseLog records an intent resolution.
func (db *DB) SaveParseLog(ctx context.Context, l *ParseLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt == 0 {
		l.CreatedAt = time.Now().Unix()
	}
	_, err := db.writer.ExecContext(ctx,
		`INSERT INTO parse_logs (id, namespace, application, dialog_id, text, intent, score, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Namespace, l.Application, l.DialogID, l.Text, l.Intent, l.Score, l.Source, l.CreatedAt)
	if err != nil {
		slog.ErrorContext(ctx, "failed to save parse log", "error", err)
		return fmt.Errorf("failed to save parse log: %w", err)
	}
	return nil
}

func parseLogFilter(q ParseLogQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	where, args = appendEq(where, args, "namespace", q.Namespace)
	where, args = appendEq(where, args, "application", q.Application)
	where, args = appendEq(where, args, "intent", q.Intent)
	if q.Text != "" {
		where = append(where, `text LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(q.Text))
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, q.Since.Unix())
	}
	return whereClause(where), args
}

// SearchParseLogs returns a page of parse logs, most recent first.
func (db *DB) SearchParseLogs(ctx context.Context, q ParseLogQuery) ([]ParseLog, error) {
	page := q.normalize()
	clause, args := parseLogFilter(q)
	start := time.Now()
	rows, err := db.reader.QueryContext(ctx,
		`SELECT id, namespace, application, dialog_id, text, intent, score, source, created_at
		 FROM parse_logs`+clause+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...)
	if err != nil {
		slog.ErrorContext(ctx, "failed to search parse logs", "error", err)
		return nil, fmt.Errorf("search parse logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var logs []ParseLog
	for rows.Next() {
		var l ParseLog
		if err := rows.Scan(&l.ID, &l.Namespace, &l.Application, &l.DialogID, &l.Text, &l.Intent, &l.Score, &l.Source, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan parse log: %w", err)
		}
		logs = append(logs, l)
	}
	warnIfSlow(ctx, "SearchParseLogs", start, "count", len(logs))
	return logs, rows.Err()
}

// CountParseLogs returns the number of parse logs matching q, ignoring paging.
func (db *DB) CountParseLogs(ctx context.Context, q ParseLogQuery) (int, error) {
	clause, args := parseLogFilter(q)
	var n int
	if err := db.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM parse_logs`+clause, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count parse logs: %w", err)
	}
	return n, nil
}

// ParseLogIntentCounts returns per-intent counts of parse logs matching q.
func (db *DB) ParseLogIntentCounts(ctx context.Context, q ParseLogQuery) (map[string]int, error) {
	clause, args := parseLogFilter(q)
	rows, err := db.reader.QueryContext(ctx, `SELECT intent, COUNT(*) FROM parse_logs`+clause+` GROUP BY intent`, args...)
	if err != nil {
		return nil, fmt.Errorf("count intents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			intent string
			n      int
		)
		if err := rows.Scan(&intent, &n); err != nil {
			return nil, fmt.Errorf("scan intent count: %w", err)
		}
		counts[intent] = n
	}
	return counts, rows.Err()
}

// ParseLogAverageScore returns the mean score of parse logs matching q, 0 when none match.
func (db *DB) ParseLogAverageScore(ctx context.Context, q ParseLogQuery) (float64, error) {
	clause, args := parseLogFilter(q)
	var avg float64
	if err := db.reader.QueryRowContext(ctx, `SELECT COALESCE(AVG(score), 0) FROM parse_logs`+clause, args...).Scan(&avg); err != nil {
		return 0, fmt.Errorf("average score: %w", err)
	}
	return avg, nil
}
