package filter

import (
	"path/filepath"

	"github.com/dyluth/cmdbus/internal/timespec"
	"github.com/dyluth/cmdbus/pkg/commandbus"
)

// Criteria defines filtering criteria for events.
// All filters are ANDed together - an event must match ALL criteria to pass.
type Criteria struct {
	Window      timespec.Range // Event timestamp window, open = no filter
	TypeGlob    string         // Glob pattern for event type, empty = no filter
	AggregateID string         // Exact match, empty = no filter
}

// Matches returns true if the event matches all filter criteria.
func (c *Criteria) Matches(e commandbus.EventMessage) bool {
	if !c.Window.Contains(e.Timestamp) {
		return false
	}

	if c.TypeGlob != "" {
		matched, err := filepath.Match(c.TypeGlob, e.Type)
		if err != nil || !matched {
			return false
		}
	}

	if c.AggregateID != "" && e.AggregateID != c.AggregateID {
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return !c.Window.IsOpen() || c.TypeGlob != "" || c.AggregateID != ""
}
