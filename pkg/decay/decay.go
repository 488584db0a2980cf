// Package decay recomputes item freshness on a schedule and archives items
// that fall below the threshold, keeping the searchable corpus relevant.
package decay

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/muninhq/munin/pkg/knowledge"
)

// ArchiveThreshold is the freshness score (0-100 scale) below which an item
// is archived.
const ArchiveThreshold = 30.0

// ErrPassRunning is returned when a decay pass is started while another is
// still in progress. Passes run exclusively.
var ErrPassRunning = errors.New("decay pass already running")

// Manager runs decay passes over the item store.
type Manager struct {
	store *knowledge.Store

	running atomic.Bool

	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a decay manager.
func NewManager(store *knowledge.Store) *Manager {
	return &Manager{
		store: store,
		now:   time.Now,
	}
}

// Freshness scores an item 0-100 from its age, 30-day access count and
// inbound reference count. Newer, more accessed, more referenced items score
// higher.
//
//	freshness = 50*recency + 30*min(access,20)/20 + 20*min(refs,10)/10
func Freshness(meta *knowledge.Meta, now time.Time) float64 {
	access := float64(meta.AccessCount30d)
	if access > 20 {
		access = 20
	}
	refs := float64(meta.ReferenceCount)
	if refs > 10 {
		refs = 10
	}

	return 50*recencyFactor(meta.Date, now) + 30*access/20 + 20*refs/10
}

// recencyFactor steps down with age, same steps the bundler uses for
// ranking. Missing dates sit in the middle.
func recencyFactor(date time.Time, now time.Time) float64 {
	if date.IsZero() {
		return 0.5
	}

	age := now.Sub(date)
	switch {
	case age <= 30*24*time.Hour:
		return 1.0
	case age <= 90*24*time.Hour:
		return 0.8
	case age <= 180*24*time.Hour:
		return 0.6
	case age <= 365*24*time.Hour:
		return 0.4
	default:
		return 0.2
	}
}

// PassResult summarizes one decay pass.
type PassResult struct {
	Scanned  int `json:"scanned"`
	Archived int `json:"archived"`
}

// RunPass scores every non-archived item and archives those below the
// threshold. Archival is one-way: already-archived items are never
// re-scored, so a second pass with no intervening activity is a no-op.
//
// Only one pass runs at a time; a concurrent call gets ErrPassRunning.
func (m *Manager) RunPass() (*PassResult, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrPassRunning
	}
	defer m.running.Store(false)

	now := m.now()
	result := &PassResult{}

	for _, t := range knowledge.AllTypes {
		items, err := m.store.List(t, "")
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", t, err)
		}

		for _, item := range items {
			meta := item.Common()
			if meta.Status == knowledge.StatusArchived {
				continue
			}
			result.Scanned++

			if Freshness(meta, now) >= ArchiveThreshold {
				continue
			}

			if err := m.store.UpdateStatus(meta.ID, knowledge.StatusArchived); err != nil {
				return nil, fmt.Errorf("archiving %s: %w", meta.ID, err)
			}
			result.Archived++
		}
	}

	if result.Archived > 0 {
		log.Printf("🧹 Decay pass archived %d of %d items", result.Archived, result.Scanned)
	}

	return result, nil
}

// TypeStats is the per-type breakdown returned by Stats.
type TypeStats struct {
	Type       knowledge.ItemType `json:"type"`
	Active     int                `json:"active"`
	Archived   int                `json:"archived"`
	Candidates int                `json:"candidates"`
}

// Stats reports, per type, how many items are active, archived, and below
// the archive threshold right now (candidates for the next pass). Read-only.
func (m *Manager) Stats() ([]TypeStats, error) {
	now := m.now()
	stats := make([]TypeStats, 0, len(knowledge.AllTypes))

	for _, t := range knowledge.AllTypes {
		items, err := m.store.List(t, "")
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", t, err)
		}

		ts := TypeStats{Type: t}
		for _, item := range items {
			meta := item.Common()
			if meta.Status == knowledge.StatusArchived {
				ts.Archived++
				continue
			}
			ts.Active++
			if Freshness(meta, now) < ArchiveThreshold {
				ts.Candidates++
			}
		}
		stats = append(stats, ts)
	}

	return stats, nil
}
