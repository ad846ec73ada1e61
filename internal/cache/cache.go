// Package cache keeps the last good (events, summary) snapshot in the local
// store for offline fallback. Snapshots never expire; storage faults are
// logged and swallowed so they never reach the user.
package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/macrocal/internal/normalize"
	"github.com/seenimoa/macrocal/internal/storage"
	"github.com/seenimoa/macrocal/pkg/models"
)

// Storage keys.
const (
	KeyEvents    = "cached_events"
	KeySummary   = "cached_summary"
	KeyTimestamp = "cached_at"
)

// StaleMarker replaces the "last updated" text when cached data is shown.
const StaleMarker = "缓存数据"

// Manager reads and writes snapshots.
type Manager struct {
	store storage.Store
	log   logrus.FieldLogger
	now   func() time.Time
}

// New creates a Manager over store.
func New(store storage.Store, log logrus.FieldLogger) *Manager {
	return &Manager{
		store: store,
		log:   log.WithField("component", "cache"),
		now:   time.Now,
	}
}

// SaveSnapshot writes both halves of a snapshot.
func (m *Manager) SaveSnapshot(ctx context.Context, events []models.NormalizedEvent, summary string) {
	m.SaveEvents(ctx, events)
	m.SaveSummary(ctx, summary)
}

// SaveEvents writes the event half of the snapshot. IsExpanded is UI state
// and is not persisted.
func (m *Manager) SaveEvents(ctx context.Context, events []models.NormalizedEvent) {
	clean := make([]models.NormalizedEvent, len(events))
	for i, e := range events {
		e.IsExpanded = false
		clean[i] = e
	}
	if err := storage.SetJSON(ctx, m.store, KeyEvents, clean); err != nil {
		m.log.WithError(err).Warn("save cached events failed")
		return
	}
	m.touch(ctx)
	m.log.WithField("count", len(events)).Debug("events snapshot saved")
}

// SaveSummary writes the summary half of the snapshot.
func (m *Manager) SaveSummary(ctx context.Context, summary string) {
	if summary == "" {
		return
	}
	if err := storage.SetJSON(ctx, m.store, KeySummary, summary); err != nil {
		m.log.WithError(err).Warn("save cached summary failed")
		return
	}
	m.touch(ctx)
}

func (m *Manager) touch(ctx context.Context) {
	if err := storage.SetJSON(ctx, m.store, KeyTimestamp, m.now()); err != nil {
		m.log.WithError(err).Warn("save snapshot timestamp failed")
	}
}

// LoadSnapshot returns the stored snapshot, or an empty entry when nothing
// usable is stored. Cached events are passed through the normalizer again,
// so both raw and normalized event arrays are accepted.
func (m *Manager) LoadSnapshot(ctx context.Context) models.CacheEntry {
	var entry models.CacheEntry

	var raw []models.RawEvent
	if _, err := storage.GetJSON(ctx, m.store, KeyEvents, &raw); err != nil {
		m.log.WithError(err).Warn("load cached events failed")
	} else {
		entry.Events = normalize.Normalize(raw)
	}

	if _, err := storage.GetJSON(ctx, m.store, KeySummary, &entry.Summary); err != nil {
		m.log.WithError(err).Warn("load cached summary failed")
	}

	if _, err := storage.GetJSON(ctx, m.store, KeyTimestamp, &entry.Timestamp); err != nil {
		m.log.WithError(err).Debug("load snapshot timestamp failed")
	}
	return entry
}

// Clear removes the snapshot.
func (m *Manager) Clear(ctx context.Context) error {
	for _, key := range []string{KeyEvents, KeySummary, KeyTimestamp} {
		if err := m.store.Remove(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
