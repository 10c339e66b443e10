// Package unitstate assigns dense per-map indices to raw unit identities.
package unitstate

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/event"
)

// Index is a dense slot index valid only for the generation that assigned it.
type Index uint16

// Invalid is returned for null identities and when the registry is full.
const Invalid Index = 0xFFFF

// DefaultCapacity is the number of units tracked per map.
const DefaultCapacity = 64

// Valid reports whether i names a slot.
func (i Index) Valid() bool { return i != Invalid }

// Entry is one tracked identity.
type Entry struct {
	Unit event.Identity
}

// Registry maps identities to indices in first-seen order.
//
// Identities are reused across maps, so indices are invalidated wholesale
// by Reset rather than per entry.
type Registry struct {
	entries    []Entry
	count      int
	logger     *zap.Logger
	warnedFull bool
}

// New creates an empty Registry.
//
// Precondition: capacity in [1, 0xFFFE].
func New(capacity int, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{entries: make([]Entry, capacity), logger: logger}
}

// GetOrCreate returns the index of unit, assigning the next free one on first sight.
//
// Postcondition: Returns Invalid for a null unit, or when unit is new and the registry is full.
func (r *Registry) GetOrCreate(unit event.Identity) Index {
	if !unit.Valid() {
		return Invalid
	}
	if i, ok := r.find(unit); ok {
		return i
	}
	if r.count >= len(r.entries) {
		if !r.warnedFull {
			r.warnedFull = true
			r.logger.Warn("unit registry full; unit untracked this map",
				zap.Stringer("unit", unit),
				zap.Int("capacity", len(r.entries)),
			)
		}
		return Invalid
	}
	r.entries[r.count] = Entry{Unit: unit}
	r.count++
	return Index(r.count - 1)
}

// Lookup returns the index of unit without assigning one.
func (r *Registry) Lookup(unit event.Identity) Index {
	if !unit.Valid() {
		return Invalid
	}
	if i, ok := r.find(unit); ok {
		return i
	}
	return Invalid
}

func (r *Registry) find(unit event.Identity) (Index, bool) {
	for i := 0; i < r.count; i++ {
		if r.entries[i].Unit == unit {
			return Index(i), true
		}
	}
	return Invalid, false
}

// Reset forgets every entry. Slots are overwritten as new units arrive.
func (r *Registry) Reset() {
	r.count = 0
	r.warnedFull = false
}

// Handle returns the identity stored at i, or event.NoIdentity if i is not live.
func (r *Registry) Handle(i Index) event.Identity {
	if int(i) >= r.count {
		return event.NoIdentity
	}
	return r.entries[i].Unit
}

// Count returns the number of live entries.
func (r *Registry) Count() int { return r.count }

// Capacity returns the maximum number of entries.
func (r *Registry) Capacity() int { return len(r.entries) }

// Entries returns the live entries. The slice aliases internal storage and
// is valid until the next Reset.
func (r *Registry) Entries() []Entry { return r.entries[:r.count] }
