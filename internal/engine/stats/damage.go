// Package stats holds pure-observer telemetry modules. Each one resets on
// MapBegin, logs a summary on MapEnd and exposes a by-value Snapshot.
package stats

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/bus"
	"github.com/cory-johannsen/battlebus/internal/engine/event"
)

// DamageSide is one side's HP flow during its own turns.
type DamageSide struct {
	HpEvents    uint32
	TotalDamage int
	TotalHeals  int
	Kills       uint32
}

// DamageSnapshot is a copy of DamageStats for one map.
type DamageSnapshot struct {
	Generation uint32
	Sides      [event.SideCount]DamageSide
}

// DamageStats counts HP events, damage, healing and kills per side.
type DamageStats struct {
	logger *zap.Logger
	snap   DamageSnapshot
}

// NewDamageStats creates an empty DamageStats.
func NewDamageStats(logger *zap.Logger) *DamageStats {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DamageStats{logger: logger}
}

// Attach registers the module's handlers.
//
// Postcondition: Returns false if any registration failed.
func (d *DamageStats) Attach(b *bus.Bus) bool {
	ok := b.RegisterMapBegin(d.onMapBegin)
	ok = b.RegisterMapEnd(d.onMapEnd) && ok
	ok = b.RegisterHpChange(d.onHpChange) && ok
	ok = b.RegisterKill(d.onKill) && ok
	if !ok {
		d.logger.Warn("damage stats: some registrations failed")
	}
	return ok
}

func (d *DamageStats) onMapBegin(mc event.MapContext) {
	d.snap = DamageSnapshot{Generation: mc.Generation}
	d.logger.Debug("damage stats: reset", zap.Uint32("generation", mc.Generation), zap.Stringer("start_side", mc.StartSide))
}

func (d *DamageStats) onHpChange(ev event.HpChange) {
	idx, ok := ev.Turn.Side.Index()
	if !ok || ev.Amount == 0 {
		return
	}
	s := &d.snap.Sides[idx]
	s.HpEvents++
	if ev.Amount > 0 {
		s.TotalDamage += ev.Amount
	} else {
		s.TotalHeals += -ev.Amount
	}
}

func (d *DamageStats) onKill(ev event.Kill) {
	if idx, ok := ev.Turn.Side.Index(); ok {
		d.snap.Sides[idx].Kills++
	}
}

func (d *DamageStats) onMapEnd(mc event.MapContext) {
	d.logger.Info("damage stats: map summary", zap.Uint32("generation", mc.Generation), zap.Uint32("total_turns", mc.TotalTurns))
	for i, s := range d.snap.Sides {
		if s.HpEvents == 0 && s.Kills == 0 {
			continue
		}
		d.logger.Info("damage stats: side",
			zap.Stringer("side", event.Side(i)),
			zap.Uint32("hp_events", s.HpEvents),
			zap.Int("damage", s.TotalDamage),
			zap.Int("heals", s.TotalHeals),
			zap.Uint32("kills", s.Kills),
		)
	}
}

// Snapshot returns a copy of the current map's counters.
func (d *DamageStats) Snapshot() DamageSnapshot { return d.snap }
