// Package hpkill rolls HpChange and Kill events up into per-side and
// per-unit statistics for the current map.
package hpkill

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/bus"
	"github.com/cory-johannsen/battlebus/internal/engine/event"
	"github.com/cory-johannsen/battlebus/internal/engine/unitstate"
)

// DefaultSummaryUnits is how many unit lines the MapEnd summary logs.
const DefaultSummaryUnits = 32

// SideStats accumulates HP flow attributed to the side holding the turn.
type SideStats struct {
	DamageDealt int
	HealingDone int
}

// UnitStats accumulates HP flow received by one unit.
type UnitStats struct {
	Unit            event.Identity
	DamageTaken     int
	HealingReceived int
}

// Summary is a by-value copy of every aggregate for one map.
type Summary struct {
	Generation  uint32
	TotalTurns  uint32
	TotalKills  uint32
	KillsBySide [event.SideCount]uint32
	Sides       [event.SideCount]SideStats
	Units       []UnitStats
}

type unitAccum struct {
	damageTaken     int
	healingReceived int
}

// Aggregator is a pure bus consumer. It owns the per-map reset of the unit
// registry it indexes into.
type Aggregator struct {
	units        *unitstate.Registry
	logger       *zap.Logger
	summaryUnits int

	sides       [event.SideCount]SideStats
	killsBySide [event.SideCount]uint32
	totalKills  uint32
	accum       []unitAccum
	snapshot    []UnitStats
	generation  uint32
	totalTurns  uint32
}

// New creates an Aggregator over units.
//
// Precondition: units must not be nil; summaryUnits >= 0.
func New(units *unitstate.Registry, summaryUnits int, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		units:        units,
		logger:       logger,
		summaryUnits: summaryUnits,
		accum:        make([]unitAccum, units.Capacity()),
		snapshot:     make([]UnitStats, 0, units.Capacity()),
	}
}

// Attach registers the aggregator's MapBegin, MapEnd, HpChange and Kill handlers.
//
// Postcondition: Returns false if any registration failed.
func (a *Aggregator) Attach(b *bus.Bus) bool {
	ok := b.RegisterMapBegin(a.onMapBegin)
	ok = b.RegisterMapEnd(a.onMapEnd) && ok
	ok = b.RegisterHpChange(a.onHpChange) && ok
	ok = b.RegisterKill(a.onKill) && ok
	if !ok {
		a.logger.Error("hpkill: failed to register one or more handlers")
	}
	return ok
}

func (a *Aggregator) onMapBegin(mc event.MapContext) {
	a.units.Reset()
	a.sides = [event.SideCount]SideStats{}
	a.killsBySide = [event.SideCount]uint32{}
	a.totalKills = 0
	clear(a.accum)
	a.generation = mc.Generation
	a.totalTurns = 0
	a.logger.Debug("hpkill: map begin", zap.Uint32("generation", mc.Generation), zap.Stringer("root", mc.Root))
}

func (a *Aggregator) onMapEnd(mc event.MapContext) {
	a.totalTurns = mc.TotalTurns
	a.logger.Info("hpkill: map end summary",
		zap.Uint32("generation", a.generation),
		zap.Uint32("total_turns", a.totalTurns),
		zap.Uint32("total_kills", a.totalKills),
		zap.Uint32s("kills_by_side", a.killsBySide[:]),
	)
	for i, s := range a.sides {
		a.logger.Info("hpkill: side totals",
			zap.String("side", event.Side(i).String()),
			zap.Int("damage_dealt", s.DamageDealt),
			zap.Int("healing_done", s.HealingDone),
		)
	}
	for i, u := range a.UnitStats() {
		if i >= a.summaryUnits {
			break
		}
		a.logger.Info("hpkill: unit totals",
			zap.String("slot", fmt.Sprintf("%02d", i)),
			zap.Stringer("unit", u.Unit),
			zap.Int("damage_taken", u.DamageTaken),
			zap.Int("healing_received", u.HealingReceived),
		)
	}
}

func (a *Aggregator) onHpChange(ev event.HpChange) {
	if ev.Amount == 0 {
		return
	}
	if idx, ok := ev.Turn.Side.Index(); ok {
		if ev.Amount > 0 {
			a.sides[idx].DamageDealt += ev.Amount
		} else {
			a.sides[idx].HealingDone += -ev.Amount
		}
	}
	slot := a.units.GetOrCreate(ev.Target)
	if !slot.Valid() {
		return
	}
	if ev.Amount > 0 {
		a.accum[slot].damageTaken += ev.Amount
	} else {
		a.accum[slot].healingReceived += -ev.Amount
	}
}

// onKill attributes the kill to whichever side holds the turn.
func (a *Aggregator) onKill(ev event.Kill) {
	a.totalKills++
	if idx, ok := ev.Turn.Side.Index(); ok {
		a.killsBySide[idx]++
	}
}

// SideStats returns a copy of every side's totals for the current map.
func (a *Aggregator) SideStats() [event.SideCount]SideStats {
	return a.sides
}

// SideStatsFor returns one side's totals.
//
// Postcondition: Returns false for SideUnknown.
func (a *Aggregator) SideStatsFor(side event.Side) (SideStats, bool) {
	idx, ok := side.Index()
	if !ok {
		return SideStats{}, false
	}
	return a.sides[idx], true
}

// UnitStats returns per-unit totals in registry order. The slice is reused
// and is only valid until the next HpChange or MapBegin.
func (a *Aggregator) UnitStats() []UnitStats {
	a.snapshot = a.snapshot[:0]
	for i, e := range a.units.Entries() {
		a.snapshot = append(a.snapshot, UnitStats{
			Unit:            e.Unit,
			DamageTaken:     a.accum[i].damageTaken,
			HealingReceived: a.accum[i].healingReceived,
		})
	}
	return a.snapshot
}

// QueryUnit returns a copy of one unit's totals.
//
// Postcondition: Returns false for a null or untracked unit.
func (a *Aggregator) QueryUnit(unit event.Identity) (UnitStats, bool) {
	slot := a.units.Lookup(unit)
	if !slot.Valid() {
		return UnitStats{}, false
	}
	return UnitStats{
		Unit:            unit,
		DamageTaken:     a.accum[slot].damageTaken,
		HealingReceived: a.accum[slot].healingReceived,
	}, true
}

// KillsBySide returns the per-side kill counts for the current map.
func (a *Aggregator) KillsBySide() [event.SideCount]uint32 {
	return a.killsBySide
}

// TotalKills returns every kill this map, including unattributed ones.
func (a *Aggregator) TotalKills() uint32 {
	return a.totalKills
}

// Summary returns a deep copy of every aggregate.
func (a *Aggregator) Summary() Summary {
	units := a.UnitStats()
	out := Summary{
		Generation:  a.generation,
		TotalTurns:  a.totalTurns,
		TotalKills:  a.totalKills,
		KillsBySide: a.killsBySide,
		Sides:       a.sides,
		Units:       make([]UnitStats, len(units)),
	}
	copy(out.Units, units)
	return out
}
