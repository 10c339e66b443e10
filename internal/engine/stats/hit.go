package stats

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/bus"
	"github.com/cory-johannsen/battlebus/internal/engine/event"
)

// HitCount is a hit/attempt tally.
type HitCount struct {
	Attempts uint32
	Hits     uint32
}

// Rate returns hits as an integer percentage of attempts, or 0 with no attempts.
func (h HitCount) Rate() uint32 {
	if h.Attempts == 0 {
		return 0
	}
	return h.Hits * 100 / h.Attempts
}

// HitSnapshot is a copy of HitStats for one map.
type HitSnapshot struct {
	Generation uint32
	Total      HitCount
	BySide     [event.SideCount]HitCount
}

// HitStats counts hit attempts and successes per side.
type HitStats struct {
	logger *zap.Logger
	snap   HitSnapshot
}

// NewHitStats creates an empty HitStats.
func NewHitStats(logger *zap.Logger) *HitStats {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HitStats{logger: logger}
}

// Attach registers the module's handlers.
//
// Postcondition: Returns false if any registration failed.
func (h *HitStats) Attach(b *bus.Bus) bool {
	ok := b.RegisterMapBegin(h.onMapBegin)
	ok = b.RegisterMapEnd(h.onMapEnd) && ok
	ok = b.RegisterHitCalc(h.onHitCalc) && ok
	if !ok {
		h.logger.Warn("hit stats: some registrations failed")
	}
	return ok
}

func (h *HitStats) onMapBegin(mc event.MapContext) {
	h.snap = HitSnapshot{Generation: mc.Generation}
}

func (h *HitStats) onHitCalc(ev event.HitCalc) {
	hit := ev.Hit()
	h.snap.Total.Attempts++
	if hit {
		h.snap.Total.Hits++
	}
	if idx, ok := ev.Turn.Side.Index(); ok {
		h.snap.BySide[idx].Attempts++
		if hit {
			h.snap.BySide[idx].Hits++
		}
	}
}

func (h *HitStats) onMapEnd(mc event.MapContext) {
	h.logger.Info("hit stats: map summary",
		zap.Uint32("generation", mc.Generation),
		zap.Uint32("attempts", h.snap.Total.Attempts),
		zap.Uint32("hits", h.snap.Total.Hits),
		zap.Uint32("hit_rate_pct", h.snap.Total.Rate()),
	)
	for i, s := range h.snap.BySide {
		h.logger.Info("hit stats: side",
			zap.Stringer("side", event.Side(i)),
			zap.Uint32("attempts", s.Attempts),
			zap.Uint32("hits", s.Hits),
			zap.Uint32("hit_rate_pct", s.Rate()),
		)
	}
}

// Snapshot returns a copy of the current map's counters.
func (h *HitStats) Snapshot() HitSnapshot { return h.snap }
