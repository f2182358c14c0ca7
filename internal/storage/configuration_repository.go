package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domerrors "github.com/garyellow/convobot-go/internal/errors"
)

const configurationColumns = `id, application_id, bot_id, namespace, nlp_model, connector_id,
	connector_type, owner_connector_type, name, base_url, path, parameters,
	manually_modified, created_at, updated_at`

// SaveConfiguration inserts or updates an application configuration keyed by (bot, application).
// The surrogate id and creation time of an existing record are preserved.
func (db *DB) SaveConfiguration(ctx context.Context, cfg *ApplicationConfiguration) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	params, err := encodeParameters(cfg.Parameters)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO application_configurations (` + configurationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bot_id, application_id) DO UPDATE SET
			namespace = excluded.namespace,
			nlp_model = excluded.nlp_model,
			connector_id = excluded.connector_id,
			connector_type = excluded.connector_type,
			owner_connector_type = excluded.owner_connector_type,
			name = excluded.name,
			base_url = excluded.base_url,
			path = excluded.path,
			parameters = excluded.parameters,
			manually_modified = excluded.manually_modified,
			updated_at = excluded.updated_at
	`
	now := time.Now().Unix()
	start := time.Now()
	_, err = db.writer.ExecContext(ctx, query,
		cfg.ID, cfg.ApplicationID, cfg.BotID, cfg.Namespace, cfg.NLPModel, cfg.ConnectorID,
		string(cfg.ConnectorType), string(cfg.OwnerConnectorType), cfg.Name, cfg.BaseURL, cfg.Path, params,
		boolToInt(cfg.ManuallyModified), now, now)
	if err != nil {
		slog.ErrorContext(ctx, "failed to save configuration",
			"bot_id", cfg.BotID,
			"application_id", cfg.ApplicationID,
			"error", err)
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	warnIfSlow(ctx, "SaveConfiguration", start, "application_id", cfg.ApplicationID)
	return nil
}

// UpdateConfigurationIfNotManuallyModified overwrites the stored record unless an operator
// edited it. It reports whether a row was written.
func (db *DB) UpdateConfigurationIfNotManuallyModified(ctx context.Context, cfg *ApplicationConfiguration) (bool, error) {
	params, err := encodeParameters(cfg.Parameters)
	if err != nil {
		return false, err
	}
	query := `
		UPDATE application_configurations SET
			namespace = ?, nlp_model = ?, connector_id = ?, connector_type = ?,
			owner_connector_type = ?, name = ?, base_url = ?, path = ?, parameters = ?,
			updated_at = ?
		WHERE bot_id = ? AND application_id = ? AND manually_modified = 0
	`
	res, err := db.writer.ExecContext(ctx, query,
		cfg.Namespace, cfg.NLPModel, cfg.ConnectorID, string(cfg.ConnectorType),
		string(cfg.OwnerConnectorType), cfg.Name, cfg.BaseURL, cfg.Path, params,
		time.Now().Unix(), cfg.BotID, cfg.ApplicationID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to update configuration",
			"bot_id", cfg.BotID,
			"application_id", cfg.ApplicationID,
			"error", err)
		return false, fmt.Errorf("failed to update configuration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// GetConfigurationsByBotID returns the configurations of a bot ordered by application id.
func (db *DB) GetConfigurationsByBotID(ctx context.Context, botID string) ([]ApplicationConfiguration, error) {
	query := `SELECT ` + configurationColumns + ` FROM application_configurations
		WHERE bot_id = ? ORDER BY application_id`
	return db.queryConfigurations(ctx, query, botID)
}

// ListConfigurations returns every persisted configuration.
func (db *DB) ListConfigurations(ctx context.Context) ([]ApplicationConfiguration, error) {
	query := `SELECT ` + configurationColumns + ` FROM application_configurations
		ORDER BY bot_id, application_id`
	return db.queryConfigurations(ctx, query)
}

// GetConfigurationByID returns the configuration with the given surrogate id, or nil.
func (db *DB) GetConfigurationByID(ctx context.Context, id string) (*ApplicationConfiguration, error) {
	query := `SELECT ` + configurationColumns + ` FROM application_configurations WHERE id = ?`
	cfg, err := scanConfiguration(db.reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to query configuration",
			"id", id,
			"error", err)
		return nil, fmt.Errorf("query configuration: %w", err)
	}
	return cfg, nil
}

// DeleteConfiguration removes a configuration by surrogate id.
func (db *DB) DeleteConfiguration(ctx context.Context, id string) error {
	res, err := db.writer.ExecContext(ctx, `DELETE FROM application_configurations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete configuration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("configuration %s: %w", id, domerrors.ErrNotFound)
	}
	return nil
}

func (db *DB) queryConfigurations(ctx context.Context, query string, args ...any) ([]ApplicationConfiguration, error) {
	start := time.Now()
	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		slog.ErrorContext(ctx, "failed to query configurations", "error", err)
		return nil, fmt.Errorf("query configurations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ApplicationConfiguration
	for rows.Next() {
		cfg, err := scanConfiguration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan configuration: %w", err)
		}
		out = append(out, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate configurations: %w", err)
	}
	warnIfSlow(ctx, "queryConfigurations", start, "count", len(out))
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfiguration(row rowScanner) (*ApplicationConfiguration, error) {
	var (
		cfg              ApplicationConfiguration
		connectorType    string
		ownerType        string
		params           string
		manuallyModified int
	)
	err := row.Scan(&cfg.ID, &cfg.ApplicationID, &cfg.BotID, &cfg.Namespace, &cfg.NLPModel,
		&cfg.ConnectorID, &connectorType, &ownerType, &cfg.Name, &cfg.BaseURL, &cfg.Path,
		&params, &manuallyModified, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cfg.ConnectorType = connectorTypeOf(connectorType)
	cfg.OwnerConnectorType = connectorTypeOf(ownerType)
	cfg.ManuallyModified = manuallyModified != 0
	if err := json.Unmarshal([]byte(params), &cfg.Parameters); err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	return &cfg, nil
}

func encodeParameters(params map[string]string) (string, error) {
	if len(params) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode parameters: %w", err)
	}
	return string(raw), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
