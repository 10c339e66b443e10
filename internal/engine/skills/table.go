// Package skills tracks which units learned which skills during the current map.
package skills

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/bus"
	"github.com/cory-johannsen/battlebus/internal/engine/event"
	"github.com/cory-johannsen/battlebus/internal/observability"
)

// DefaultCapacity is the number of (unit, skill) pairs tracked per map.
const DefaultCapacity = 64

// DefaultWatchSkill marks units whose HP changes are logged.
const DefaultWatchSkill uint16 = 0x000E

type membership struct {
	unit  event.Identity
	skill uint16
}

// Table is a small linear-scan membership set of (unit, skill) pairs.
//
// Pairs learned before the first map survive into it. The table is cleared
// on MapEnd, and on MapBegin when the previous map never ended.
type Table struct {
	entries    []membership
	capacity   int
	watch      uint16
	inMap      bool
	warnedFull bool
	budget     *observability.Budget
	logger     *zap.Logger
}

// New creates an empty Table. HpChange events targeting a unit that knows
// watch are logged through budget.
//
// Precondition: capacity >= 1.
func New(capacity int, watch uint16, budget *observability.Budget, logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	if budget == nil {
		budget = observability.NewGlobalBudget(0)
	}
	return &Table{
		entries:  make([]membership, 0, capacity),
		capacity: capacity,
		watch:    watch,
		budget:   budget,
		logger:   logger,
	}
}

// Attach registers the table's MapBegin, MapEnd, SkillLearn and HpChange handlers.
//
// Postcondition: Returns false if any registration failed.
func (t *Table) Attach(b *bus.Bus) bool {
	ok := b.RegisterMapBegin(t.onMapBegin)
	ok = b.RegisterMapEnd(t.onMapEnd) && ok
	ok = b.RegisterSkillLearn(t.onSkillLearn) && ok
	ok = b.RegisterHpChange(t.onHpChange) && ok
	if !ok {
		t.logger.Error("skills: failed to register one or more handlers")
	} else {
		t.logger.Debug("skills: attached", zap.Uint16("watch_skill", t.watch))
	}
	return ok
}

func (t *Table) onMapBegin(event.MapContext) {
	if t.inMap {
		t.clear()
	}
	t.inMap = true
}

func (t *Table) onMapEnd(mc event.MapContext) {
	t.clear()
	t.inMap = false
	t.logger.Debug("skills: cleared at map end", zap.Uint32("generation", mc.Generation))
}

func (t *Table) clear() {
	t.entries = t.entries[:0]
	t.warnedFull = false
}

func (t *Table) onSkillLearn(ev event.SkillLearn) {
	if ev.Result <= 0 {
		return
	}
	t.Add(ev.Unit, ev.SkillID)
}

func (t *Table) onHpChange(ev event.HpChange) {
	if !t.UnitHasSkill(ev.Target, t.watch) {
		return
	}
	n, ok := t.budget.Take(ev.Turn.Map.Generation)
	if !ok {
		return
	}
	t.logger.Info("skills: watched unit hp change",
		zap.Stringer("unit", ev.Target),
		zap.Int("amount", ev.Amount),
		zap.Uint32("flags", ev.Flags),
		zap.Uint32("generation", ev.Turn.Map.Generation),
		zap.Stringer("side", ev.Turn.Side),
		zap.Uint32("side_turn", ev.Turn.SideTurnIndex),
		zap.Int("n", n),
	)
}

// Add records that unit knows skill.
//
// Postcondition: Returns false for a null unit or when the table is full;
// adding a known pair returns true without duplicating it.
func (t *Table) Add(unit event.Identity, skill uint16) bool {
	if !unit.Valid() {
		return false
	}
	if t.UnitHasSkill(unit, skill) {
		return true
	}
	if len(t.entries) >= t.capacity {
		if !t.warnedFull {
			t.warnedFull = true
			t.logger.Warn("skills: table full", zap.Int("capacity", t.capacity))
		}
		return false
	}
	t.entries = append(t.entries, membership{unit: unit, skill: skill})
	t.logger.Debug("skills: unit learned skill",
		zap.Stringer("unit", unit),
		zap.Uint16("skill", skill),
		zap.Int("count", len(t.entries)),
	)
	return true
}

// UnitHasSkill reports whether unit learned skill since the table was last cleared.
func (t *Table) UnitHasSkill(unit event.Identity, skill uint16) bool {
	if !unit.Valid() {
		return false
	}
	for _, m := range t.entries {
		if m.unit == unit && m.skill == skill {
			return true
		}
	}
	return false
}

// Len returns the number of tracked pairs.
func (t *Table) Len() int { return len(t.entries) }
