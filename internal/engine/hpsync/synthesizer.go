// Package hpsync converts periodic absolute-HP reports into signed HpChange
// events. It is the only producer of HpChange.
package hpsync

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/bus"
	"github.com/cory-johannsen/battlebus/internal/engine/event"
	"github.com/cory-johannsen/battlebus/internal/observability"
)

// TurnSource supplies the turn context HpChange events are stamped with.
type TurnSource interface {
	ActiveSide() event.Side
	TurnContext(side event.Side) event.TurnContext
}

// Synthesizer remembers the last absolute HP seen per identity for the
// current map.
type Synthesizer struct {
	bus    *bus.Bus
	turns  TurnSource
	logger *zap.Logger
	budget *observability.Budget
	lastHp map[event.Identity]int
}

// New creates a Synthesizer publishing on b and registers its MapBegin reset.
//
// Precondition: b and turns must not be nil.
// Postcondition: Returns the Synthesizer and whether the reset handler was registered.
// A false second result means deltas would leak across maps; callers must treat it as fatal.
func New(b *bus.Bus, turns TurnSource, budget *observability.Budget, logger *zap.Logger) (*Synthesizer, bool) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if budget == nil {
		budget = observability.NewBudget(0)
	}
	s := &Synthesizer{
		bus:    b,
		turns:  turns,
		logger: logger,
		budget: budget,
		lastHp: make(map[event.Identity]int),
	}
	ok := b.RegisterMapBegin(func(event.MapContext) { s.Reset() })
	return s, ok
}

// Reset forgets every baseline.
func (s *Synthesizer) Reset() {
	clear(s.lastHp)
}

// Sync records hp as the absolute HP of unit and dispatches an HpChange for
// the difference from the previous report.
//
// Postcondition: Returns the emitted delta (previous - hp) and true when an
// event was dispatched; 0 and false for a null unit, a first sighting, or no change.
func (s *Synthesizer) Sync(unit event.Identity, hp int) (int, bool) {
	if !unit.Valid() {
		return 0, false
	}
	prev, seen := s.lastHp[unit]
	s.lastHp[unit] = hp
	if !seen {
		return 0, false
	}
	delta := prev - hp
	if delta == 0 {
		return 0, false
	}
	ev := event.HpChange{
		Source: event.NoIdentity,
		Target: unit,
		Amount: delta,
		Turn:   s.turns.TurnContext(s.turns.ActiveSide()),
	}
	if ev.Turn.Map.Active {
		if n, ok := s.budget.Take(ev.Turn.Map.Generation); ok {
			s.logger.Debug("hp sync",
				zap.Stringer("unit", unit),
				zap.Int("previous", prev),
				zap.Int("current", hp),
				zap.Int("delta", delta),
				zap.Stringer("side", ev.Turn.Side),
				zap.Int("n", n),
			)
		}
	}
	s.bus.DispatchHpChange(ev)
	return delta, true
}

// Tracked reports how many identities currently have a baseline.
func (s *Synthesizer) Tracked() int {
	return len(s.lastHp)
}
