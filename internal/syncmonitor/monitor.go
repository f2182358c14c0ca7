// Package syncmonitor tracks which bots are under active configuration and
// reports drift between the installed connectors and the declarations file.
package syncmonitor

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/garyellow/convobot-go/internal/config"
	"github.com/garyellow/convobot-go/internal/connector"
	"github.com/garyellow/convobot-go/internal/logger"
)

// Drift lists declared connector ids that differ from the installed baseline.
type Drift struct {
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Changed []string `json:"changed,omitempty"`
}

// Empty reports whether nothing drifted.
func (d Drift) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// BotStatus lists the active connectors of one bot.
type BotStatus struct {
	BotID      string   `json:"botId"`
	Connectors []string `json:"connectors"`
}

// Status is the active configuration set and the last drift seen on disk.
type Status struct {
	Bots      []BotStatus `json:"bots"`
	Drift     *Drift      `json:"drift,omitempty"`
	CheckedAt time.Time   `json:"checkedAt,omitzero"`
}

// Monitor is safe for concurrent use.
type Monitor struct {
	logger *logger.Logger
	// CheckIntegrity, when set, validates reloaded declarations before drift is computed.
	CheckIntegrity func([]connector.Configuration) error

	mu        sync.RWMutex
	active    map[string]map[string]connector.Type
	baseline  map[string]connector.Configuration
	drift     *Drift
	checkedAt time.Time
}

// New creates an empty monitor.
func New(log *logger.Logger) *Monitor {
	return &Monitor{
		logger:   log.WithModule("syncmonitor"),
		active:   make(map[string]map[string]connector.Type),
		baseline: make(map[string]connector.Configuration),
	}
}

// Activate records that botID is served through connectorID.
func (m *Monitor) Activate(botID, connectorID string, t connector.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[botID] == nil {
		m.active[botID] = make(map[string]connector.Type)
	}
	m.active[botID][connectorID] = t
}

// Status returns the bots under active configuration, sorted, with their
// connector ids and the drift found by the last reload.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Status{Bots: make([]BotStatus, 0, len(m.active)), CheckedAt: m.checkedAt}
	for _, botID := range slices.Sorted(maps.Keys(m.active)) {
		st.Bots = append(st.Bots, BotStatus{
			BotID:      botID,
			Connectors: slices.Sorted(maps.Keys(m.active[botID])),
		})
	}
	if m.drift != nil {
		d := *m.drift
		st.Drift = &d
	}
	return st
}

// SetBaseline records the declared configurations the process was installed from.
// Configurations without an explicit id are not tracked for drift.
func (m *Monitor) SetBaseline(declared []connector.Configuration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseline = indexByID(declared)
}

// Drift compares declared configurations with the baseline.
func (m *Monitor) Drift(declared []connector.Configuration) Drift {
	next := indexByID(declared)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var d Drift
	for id, cfg := range next {
		prev, ok := m.baseline[id]
		switch {
		case !ok:
			d.Added = append(d.Added, id)
		case !sameDeclaration(prev, cfg):
			d.Changed = append(d.Changed, id)
		}
	}
	for id := range m.baseline {
		if _, ok := next[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	slices.Sort(d.Added)
	slices.Sort(d.Removed)
	slices.Sort(d.Changed)
	return d
}

// Watch reloads path on every change and logs drift until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (m *Monitor) Watch(ctx context.Context, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer w.Close()

	path = filepath.Clean(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	m.logger.WithField("path", path).Info("Declarations watcher started")

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Declarations watcher stopped")
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			m.reload(path)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.WithError(err).Error("File watcher error")
		}
	}
}

func (m *Monitor) reload(path string) {
	decls, err := config.LoadDeclarations(path)
	if err != nil {
		m.logger.WithError(err).Warn("Changed declarations are invalid")
		return
	}
	declared := decls.ToConfigurations()
	if m.CheckIntegrity != nil {
		if err := m.CheckIntegrity(declared); err != nil {
			m.logger.WithError(err).Warn("Changed declarations would not install")
		}
	}

	d := m.Drift(declared)
	m.mu.Lock()
	m.checkedAt = time.Now()
	m.drift = nil
	if !d.Empty() {
		m.drift = &d
	}
	m.mu.Unlock()

	if d.Empty() {
		m.logger.Debug("Declarations changed without connector drift")
		return
	}
	m.logger.WithFields(map[string]any{
		"added":   d.Added,
		"removed": d.Removed,
		"changed": d.Changed,
	}).Warn("Declared connectors drifted from installed ones; restart to apply")
}

func indexByID(cfgs []connector.Configuration) map[string]connector.Configuration {
	out := make(map[string]connector.Configuration, len(cfgs))
	for _, c := range cfgs {
		if c.HasExplicitID() {
			out[c.ConnectorID] = c
		}
	}
	return out
}

func sameDeclaration(a, b connector.Configuration) bool {
	return a.Type == b.Type &&
		a.Name == b.Name &&
		a.BaseURL == b.BaseURL &&
		a.Path == b.Path &&
		maps.Equal(a.Parameters, b.Parameters)
}
