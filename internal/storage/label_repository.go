package storage

import (
	"context"
	"fmt"
)

// SaveLabel inserts or updates a label translation.
func (db *DB) SaveLabel(ctx context.Context, l *Label) error {
	_, err := db.writer.ExecContext(ctx,
		`INSERT INTO labels (namespace, category, default_label, locale, translation) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, category, default_label, locale) DO UPDATE SET translation = excluded.translation`,
		l.Namespace, l.Category, l.DefaultLabel, l.Locale, l.Translation)
	if err != nil {
		return fmt.Errorf("failed to save label: %w", err)
	}
	return nil
}

// GetLabelTranslations returns the translations of a default label keyed by locale.
func (db *DB) GetLabelTranslations(ctx context.Context, namespace, category, defaultLabel string) (map[string]string, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT locale, translation FROM labels WHERE namespace = ? AND category = ? AND default_label = ?`,
		namespace, category, defaultLabel)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var locale, translation string
		if err := rows.Scan(&locale, &translation); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		out[locale] = translation
	}
	return out, rows.Err()
}
