package stats

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/bus"
	"github.com/cory-johannsen/battlebus/internal/engine/event"
)

// DefaultRngBounds caps the distinct bounds tracked per map.
const DefaultRngBounds = 8

// BoundCount is how many RNG calls used one upper bound.
type BoundCount struct {
	Bound uint32
	Count uint32
}

// RngSnapshot is a copy of RngStats for one map.
type RngSnapshot struct {
	Generation   uint32
	TotalCalls   uint32
	CallsPerSide [event.SideCount]uint32
	// Bounds is in first-seen order.
	Bounds []BoundCount
}

// RngStats counts RNG calls per side and keeps a capped histogram of bounds.
// Bounds first seen after the histogram is full are not counted.
type RngStats struct {
	logger    *zap.Logger
	maxBounds int
	snap      RngSnapshot
}

// NewRngStats creates an empty RngStats.
//
// Precondition: maxBounds >= 1.
func NewRngStats(maxBounds int, logger *zap.Logger) *RngStats {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RngStats{
		logger:    logger,
		maxBounds: maxBounds,
		snap:      RngSnapshot{Bounds: make([]BoundCount, 0, maxBounds)},
	}
}

// Attach registers the module's handlers.
//
// Postcondition: Returns false if any registration failed.
func (r *RngStats) Attach(b *bus.Bus) bool {
	ok := b.RegisterMapBegin(r.onMapBegin)
	ok = b.RegisterMapEnd(r.onMapEnd) && ok
	ok = b.RegisterRngCall(r.onRng) && ok
	if !ok {
		r.logger.Warn("rng stats: some registrations failed")
	}
	return ok
}

func (r *RngStats) onMapBegin(mc event.MapContext) {
	r.snap = RngSnapshot{Generation: mc.Generation, Bounds: r.snap.Bounds[:0]}
	r.logger.Debug("rng stats: reset", zap.Uint32("generation", mc.Generation), zap.Stringer("start_side", mc.StartSide))
}

func (r *RngStats) onRng(ev event.RngCall) {
	r.snap.TotalCalls++
	if idx, ok := ev.Turn.Side.Index(); ok {
		r.snap.CallsPerSide[idx]++
	}
	for i := range r.snap.Bounds {
		if r.snap.Bounds[i].Bound == ev.Bound {
			r.snap.Bounds[i].Count++
			return
		}
	}
	if len(r.snap.Bounds) < r.maxBounds {
		r.snap.Bounds = append(r.snap.Bounds, BoundCount{Bound: ev.Bound, Count: 1})
	}
}

func (r *RngStats) onMapEnd(mc event.MapContext) {
	r.logger.Info("rng stats: map summary",
		zap.Uint32("generation", mc.Generation),
		zap.Uint32("total_turns", mc.TotalTurns),
		zap.Uint32("total_calls", r.snap.TotalCalls),
	)
	for i, n := range r.snap.CallsPerSide {
		if n == 0 {
			continue
		}
		r.logger.Info("rng stats: side", zap.Stringer("side", event.Side(i)), zap.Uint32("calls", n))
	}
	for _, bc := range r.snap.Bounds {
		r.logger.Info("rng stats: bound", zap.Uint32("bound", bc.Bound), zap.Uint32("calls", bc.Count))
	}
}

// Snapshot returns a copy of the current map's counters.
func (r *RngStats) Snapshot() RngSnapshot {
	out := r.snap
	out.Bounds = append([]BoundCount(nil), r.snap.Bounds...)
	return out
}
