// Package engine implements the conversation flow and routing engine:
// static Q/A matching, flow interpretation, per-client session state,
// dialog lifecycle, and the router that ties them together per inbound
// message.
package engine

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"deskbot/internal/domain"
)

// Matcher maps message text to the best-matching static Q/A entry.
// It works on a cached snapshot of active entries that is refreshed
// periodically; a briefly stale snapshot is acceptable.
type Matcher struct {
	mu      sync.RWMutex
	entries []domain.QAEntry // active entries, ascending id
	logger  *slog.Logger
}

func NewMatcher(logger *slog.Logger) *Matcher {
	return &Matcher{logger: logger}
}

// Replace swaps the snapshot. Inactive entries are dropped here so
// Match never has to look at the flag.
func (m *Matcher) Replace(entries []domain.QAEntry) {
	active := make([]domain.QAEntry, 0, len(entries))
	for _, e := range entries {
		if e.Active {
			active = append(active, e)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	m.mu.Lock()
	m.entries = active
	m.mu.Unlock()
}

// Match returns the best-matching entry for the text, or nil.
// Case-insensitive exact match wins over substring containment of the
// stored question inside the message; ties break by ascending id.
// Side-effect free, never an error.
func (m *Matcher) Match(text string) *domain.QAEntry {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.entries {
		if strings.ToLower(m.entries[i].Question) == needle {
			e := m.entries[i]
			return &e
		}
	}
	for i := range m.entries {
		q := strings.ToLower(m.entries[i].Question)
		if q != "" && strings.Contains(needle, q) {
			e := m.entries[i]
			return &e
		}
	}
	return nil
}
