package commandbus

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// pendingCreates remembers which commands already received a "rescheduling" failure
// for a not-found aggregate. Presence means the command was retried once.
//
// Markers are bounded by capacity (oldest evicted first) and by ttl, so commands the
// caller never resubmits do not accumulate. A zero capacity or ttl disables that bound.
type pendingCreates struct {
	markers *expirable.LRU[string, struct{}]
}

func newPendingCreates(capacity int, ttl time.Duration) *pendingCreates {
	return &pendingCreates{
		markers: expirable.NewLRU[string, struct{}](capacity, nil, ttl),
	}
}

// put records commandID, refreshing its position and expiry if already present.
func (p *pendingCreates) put(commandID string) {
	p.markers.Add(commandID, struct{}{})
}

// remove deletes commandID and reports whether it was present and unexpired.
func (p *pendingCreates) remove(commandID string) bool {
	// Remove alone would also report markers that expired but were not swept yet.
	_, ok := p.markers.Get(commandID)
	p.markers.Remove(commandID)
	return ok
}

func (p *pendingCreates) len() int {
	return p.markers.Len()
}
