// Package snapshot backs the SQLite store up to S3-compatible storage.
//
// Upload takes a consistent VACUUM INTO copy, compresses it with zstd and
// uploads it under one key. Restore brings that snapshot back when the local
// database is missing, before the store is opened. Start schedules uploads
// with a cron expression.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/garyellow/convobot-go/internal/logger"
	"github.com/garyellow/convobot-go/internal/r2client"
)

// ErrLeaseHeld is returned by Upload when another instance is uploading.
var ErrLeaseHeld = errors.New("snapshot: another instance holds the upload lease")

// Source produces a consistent copy of the database.
type Source interface {
	CreateSnapshot(ctx context.Context, destPath string) error
}

// Recorder receives snapshot metrics.
type Recorder interface {
	RecordSnapshot(operation, status string, duration float64)
}

// Config holds snapshot settings.
type Config struct {
	Key string // object key, e.g. snapshots/convobot.db.zst
	// LeaseKey guards uploads across instances; empty disables the lease.
	LeaseKey string
	LeaseTTL time.Duration
	TempDir  string
}

// Manager uploads and restores snapshots.
type Manager struct {
	store   r2client.Store
	cfg     Config
	metrics Recorder
	logger  *logger.Logger

	mu       sync.Mutex
	lastETag string
	cron     *cron.Cron
}

// New creates a manager. metrics may be nil.
func New(store r2client.Store, cfg Config, metrics Recorder, log *logger.Logger) *Manager {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 10 * time.Minute
	}
	return &Manager{store: store, cfg: cfg, metrics: metrics, logger: log.WithModule("snapshot")}
}

// Upload snapshots src and returns the ETag of the uploaded object.
func (m *Manager) Upload(ctx context.Context, src Source) (etag string, err error) {
	start := time.Now()
	defer func() { m.record("upload", err, start) }()

	if m.cfg.LeaseKey != "" {
		lease := r2client.NewLease(m.store, m.cfg.LeaseKey, m.cfg.LeaseTTL)
		ok, err := lease.Acquire(ctx)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", ErrLeaseHeld
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				m.logger.WithError(err).Warn("Failed to release snapshot lease")
			}
		}()
	}

	raw := filepath.Join(m.cfg.TempDir, fmt.Sprintf("snapshot_%d.db", time.Now().UnixNano()))
	if err := src.CreateSnapshot(ctx, raw); err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}
	defer func() { _ = os.Remove(raw) }()

	packed := raw + ".zst"
	size, err := r2client.CompressFile(raw, packed)
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(packed) }()

	f, err := os.Open(packed)
	if err != nil {
		return "", fmt.Errorf("open compressed snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	etag, err = m.store.Upload(ctx, m.cfg.Key, f, "application/zstd")
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.lastETag = etag
	m.mu.Unlock()

	m.logger.WithFields(map[string]any{
		"key":         m.cfg.Key,
		"etag":        etag,
		"bytes":       size,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Snapshot uploaded")
	return etag, nil
}

// Restore downloads the snapshot into dbPath when no database exists there.
// It reports whether a snapshot was restored; a missing snapshot is not an error.
func (m *Manager) Restore(ctx context.Context, dbPath string) (restored bool, err error) {
	if _, statErr := os.Stat(dbPath); statErr == nil {
		return false, nil
	}

	start := time.Now()
	defer func() {
		if restored || err != nil {
			m.record("restore", err, start)
		}
	}()

	body, etag, err := m.store.Download(ctx, m.cfg.Key)
	if errors.Is(err, r2client.ErrNotFound) {
		m.logger.WithField("key", m.cfg.Key).Info("No snapshot to restore")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer func() { _ = body.Close() }()

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return false, fmt.Errorf("create data dir: %w", err)
	}
	if err := r2client.DecompressTo(body, dbPath); err != nil {
		return false, err
	}

	m.mu.Lock()
	m.lastETag = etag
	m.mu.Unlock()

	m.logger.WithField("key", m.cfg.Key).WithField("etag", etag).Info("Database restored from snapshot")
	return true, nil
}

// Start schedules Upload of src with a standard 5-field cron expression.
func (m *Manager) Start(ctx context.Context, schedule string, src Source) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if _, err := m.Upload(ctx, src); err != nil {
			if errors.Is(err, ErrLeaseHeld) {
				m.logger.Info("Snapshot skipped: another instance is uploading")
				return
			}
			m.logger.WithError(err).Error("Scheduled snapshot failed")
		}
	}); err != nil {
		return fmt.Errorf("snapshot schedule %q: %w", schedule, err)
	}

	m.mu.Lock()
	m.cron = c
	m.mu.Unlock()
	c.Start()

	m.logger.WithField("schedule", schedule).WithField("key", m.cfg.Key).Info("Snapshot schedule started")
	return nil
}

// Stop stops the schedule and waits for a running upload.
func (m *Manager) Stop() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// LastETag returns the ETag of the last uploaded or restored snapshot.
func (m *Manager) LastETag() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastETag
}

func (m *Manager) record(op string, err error, start time.Time) {
	if m.metrics == nil {
		return
	}
	status := "success"
	switch {
	case errors.Is(err, ErrLeaseHeld):
		status = "skipped"
	case err != nil:
		status = "error"
	}
	m.metrics.RecordSnapshot(op, status, time.Since(start).Seconds())
}
