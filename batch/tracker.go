package batch

import (
	"sync"

	"github.com/google/uuid"
	"github.com/use-agent/gleaner/models"
)

// Tracker holds the externally visible progress of one run. It is read
// concurrently by the status API while workers update it.
type Tracker struct {
	mu      sync.RWMutex
	id      string
	order   []string
	states  map[string]models.ItemState
	records map[string]int
	done    bool
}

// NewTracker creates a Tracker with every item Pending.
func NewTracker(items []string) *Tracker {
	states := make(map[string]models.ItemState, len(items))
	for _, it := range items {
		states[it] = models.ItemPending
	}
	return &Tracker{
		id:      "run-" + uuid.NewString(),
		order:   append([]string(nil), items...),
		states:  states,
		records: make(map[string]int, len(items)),
	}
}

// ID returns the run identifier.
func (t *Tracker) ID() string { return t.id }

// SetState moves an item to the given state.
func (t *Tracker) SetState(item string, state models.ItemState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[item] = state
}

// SetRecords stores the record count harvested for an item.
func (t *Tracker) SetRecords(item string, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[item] = n
}

// Finish marks the run as no longer in flight.
func (t *Tracker) Finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
}

// Snapshot returns a point-in-time view of the run.
func (t *Tracker) Snapshot() models.RunSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := models.RunSnapshot{
		ID:    t.id,
		Total: len(t.order),
		Items: make([]models.ItemProgress, 0, len(t.order)),
	}
	for _, item := range t.order {
		state := t.states[item]
		n := t.records[item]
		snap.Items = append(snap.Items, models.ItemProgress{Item: item, State: state, Records: n})
		snap.Records += n
		switch state {
		case models.ItemCompleted:
			snap.Completed++
		case models.ItemFailed:
			snap.Failed++
		}
	}

	switch {
	case !t.done:
		snap.Status = "running"
	case snap.Failed == len(t.order) && len(t.order) > 0:
		snap.Status = "failed"
	case snap.Failed > 0:
		snap.Status = "partial"
	default:
		snap.Status = "completed"
	}
	return snap
}
