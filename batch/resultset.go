package batch

import (
	"sync"

	"github.com/use-agent/gleaner/models"
)

// ResultSet accumulates records in global insertion order plus the failure
// set. It is the single synchronized append point shared by all item
// pipelines; records are never mutated after append, so readers get copies.
type ResultSet struct {
	mu       sync.Mutex
	records  []models.Record
	failures []models.Failure
}

// NewResultSet creates an empty ResultSet.
func NewResultSet() *ResultSet {
	return &ResultSet{}
}

// Append adds records in order.
func (r *ResultSet) Append(records ...models.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
}

// Fail records a terminal item failure with the error's code.
func (r *ResultSet) Fail(item string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, models.Failure{
		Item:    item,
		Code:    models.CodeOf(err),
		Message: err.Error(),
	})
}

// Records returns a copy of the accumulated records.
func (r *ResultSet) Records() []models.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Record, len(r.records))
	copy(out, r.records)
	return out
}

// Failures returns a copy of the failure set.
func (r *ResultSet) Failures() []models.Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Failure, len(r.failures))
	copy(out, r.failures)
	return out
}

// Len returns the current record count.
func (r *ResultSet) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
