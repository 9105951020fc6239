package collector

import (
	"github.com/IshaanNene/markbook/internal/types"
)

// Accumulator holds the unique records seen during one session. It only
// grows: the first observation of an identifier wins and later
// observations are discarded.
type Accumulator struct {
	seen  map[string]int
	order []types.Record
}

// NewAccumulator creates an empty Accumulator with the given estimated capacity.
func NewAccumulator(estimatedCapacity int) *Accumulator {
	return &Accumulator{
		seen:  make(map[string]int, estimatedCapacity),
		order: make([]types.Record, 0, estimatedCapacity),
	}
}

// Add stores rec unless its identifier has been seen. It reports whether
// the record was novel.
func (a *Accumulator) Add(rec types.Record) bool {
	if rec.ID == "" {
		return false
	}
	if _, ok := a.seen[rec.ID]; ok {
		return false
	}
	a.seen[rec.ID] = len(a.order)
	a.order = append(a.order, rec)
	return true
}

// Has returns true if id has been seen.
func (a *Accumulator) Has(id string) bool {
	_, ok := a.seen[id]
	return ok
}

// Get returns the first-seen record for id.
func (a *Accumulator) Get(id string) (types.Record, bool) {
	i, ok := a.seen[id]
	if !ok {
		return types.Record{}, false
	}
	return a.order[i], true
}

// Len returns the number of unique records.
func (a *Accumulator) Len() int {
	return len(a.order)
}

// Records returns the collection in first-seen order.
func (a *Accumulator) Records() []types.Record {
	out := make([]types.Record, len(a.order))
	copy(out, a.order)
	return out
}
