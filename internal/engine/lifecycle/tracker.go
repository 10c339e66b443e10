// Package lifecycle tracks the map/turn state machine and publishes the
// resulting MapBegin, MapEnd, TurnBegin, TurnEnd and Kill events.
package lifecycle

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/bus"
	"github.com/cory-johannsen/battlebus/internal/engine/event"
)

// DefaultKillCapacity is the per-map kill buffer size.
const DefaultKillCapacity = 64

// Tracker owns the single mutable "current map" record and builds fresh
// context snapshots from it for every dispatch.
//
// A Tracker is not safe for concurrent use.
type Tracker struct {
	bus    *bus.Bus
	logger *zap.Logger

	// lastRoot survives MapEnd so a map-start site that keeps ticking with
	// the same root after the map ended does not open a new generation.
	lastRoot    event.Identity
	generation  uint32
	startSide   event.Side
	currentSide event.Side
	totalTurns  uint32
	turnCount   [event.SideCount]uint32
	killEvents  uint32
	active      bool

	kills          []event.KillRecord
	killCap        int
	warnedKillFull bool
}

// New creates a Tracker that publishes on b.
//
// Precondition: b must not be nil; killCapacity >= 1.
// Postcondition: Returns an inactive Tracker at generation 0.
func New(b *bus.Bus, killCapacity int, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		bus:         b,
		logger:      logger,
		startSide:   event.SideUnknown,
		currentSide: event.SideUnknown,
		kills:       make([]event.KillRecord, 0, killCapacity),
		killCap:     killCapacity,
	}
}

// OnMapStart handles the per-tick map-start call site. Repeats of the last
// seen root are debounced; a new root opens a new generation and dispatches
// MapBegin.
//
// Postcondition: Returns true if a new map began.
func (t *Tracker) OnMapStart(root event.Identity, side event.Side) bool {
	if !root.Valid() || root == t.lastRoot {
		return false
	}
	t.lastRoot = root
	t.generation++
	t.startSide = side
	t.currentSide = side
	t.totalTurns = 0
	t.turnCount = [event.SideCount]uint32{}
	t.killEvents = 0
	t.kills = t.kills[:0]
	t.warnedKillFull = false
	t.active = true

	mc := t.MapContext()
	t.logger.Info("map begin",
		zap.Stringer("root", root),
		zap.Uint32("generation", mc.Generation),
		zap.Stringer("start_side", mc.StartSide),
	)
	t.bus.DispatchMapBegin(mc)
	return true
}

// OnMapEnd dispatches MapEnd for the active map and then marks it inactive.
// Counters are left intact for a final summary read.
func (t *Tracker) OnMapEnd(root event.Identity, side event.Side) {
	if !t.active {
		t.logger.Debug("map end ignored: no active map", zap.Stringer("root", root))
		return
	}
	mc := t.MapContext()
	t.logger.Info("map end",
		zap.Stringer("root", root),
		zap.Uint32("generation", mc.Generation),
		zap.Stringer("side", side),
		zap.Uint32("total_turns", mc.TotalTurns),
		zap.Uint32("kills", mc.KillEvents),
	)
	t.bus.DispatchMapEnd(mc)
	t.active = false
}

// OnTurnBegin records side as the current side, bumps the turn counters and
// dispatches TurnBegin. Unknown sides count towards TotalTurns only.
func (t *Tracker) OnTurnBegin(side event.Side) {
	t.currentSide = side
	t.totalTurns++
	if idx, ok := side.Index(); ok {
		t.turnCount[idx]++
	}
	tc := t.TurnContext(side)
	t.logger.Debug("turn begin",
		zap.Uint32("generation", tc.Map.Generation),
		zap.Stringer("side", side),
		zap.Uint32("side_turn", tc.SideTurnIndex),
		zap.Uint32("total_turns", tc.Map.TotalTurns),
	)
	t.bus.DispatchTurnBegin(tc)
}

// OnTurnEnd dispatches TurnEnd for the last side seen by OnTurnBegin.
// Counters are not touched.
func (t *Tracker) OnTurnEnd(seq event.Identity) {
	tc := t.TurnContext(t.currentSide)
	t.logger.Debug("turn end",
		zap.Stringer("seq", seq),
		zap.Uint32("generation", tc.Map.Generation),
		zap.Stringer("side", tc.Side),
		zap.Uint32("side_turn", tc.SideTurnIndex),
	)
	t.bus.DispatchTurnEnd(tc)
}

// OnKill buffers a real kill record and dispatches Kill attributed to the
// active side. Records that are not real kills are ignored.
//
// Postcondition: Returns true if the record was a real kill and was dispatched.
func (t *Tracker) OnKill(rec event.KillRecord) bool {
	if !rec.IsReal() {
		return false
	}
	if len(t.kills) < t.killCap {
		t.kills = append(t.kills, rec)
		t.killEvents++
	} else if !t.warnedKillFull {
		t.warnedKillFull = true
		t.logger.Warn("kill buffer full; further records dropped this map",
			zap.Int("capacity", t.killCap),
			zap.Uint32("generation", t.generation),
		)
	}
	ev := event.Kill{Record: rec, Turn: t.TurnContext(t.ActiveSide())}
	t.logger.Debug("kill",
		zap.Stringer("seq", rec.Seq),
		zap.Stringer("dead0", rec.Dead0),
		zap.Stringer("dead1", rec.Dead1),
		zap.Uint32("flags", rec.Flags),
		zap.Stringer("side", ev.Turn.Side),
		zap.Uint32("map_kills", ev.Turn.Map.KillEvents),
	)
	t.bus.DispatchKill(ev)
	return true
}

// MapContext returns a fresh snapshot of the current map state.
func (t *Tracker) MapContext() event.MapContext {
	return event.MapContext{
		Root:        t.lastRoot,
		Generation:  t.generation,
		StartSide:   t.startSide,
		CurrentSide: t.currentSide,
		TotalTurns:  t.totalTurns,
		KillEvents:  t.killEvents,
		Active:      t.active,
	}
}

// TurnContext returns a fresh snapshot stamped with side.
func (t *Tracker) TurnContext(side event.Side) event.TurnContext {
	tc := event.TurnContext{Map: t.MapContext(), Side: side}
	if idx, ok := side.Index(); ok {
		tc.SideTurnIndex = t.turnCount[idx]
	}
	return tc
}

// ActiveSide returns the side that currently holds the turn, or SideUnknown
// when no map is active.
func (t *Tracker) ActiveSide() event.Side {
	if !t.active {
		return event.SideUnknown
	}
	return t.currentSide
}

// Generation returns the current map generation.
func (t *Tracker) Generation() uint32 { return t.generation }

// Active reports whether a map is in progress.
func (t *Tracker) Active() bool { return t.active }

// Kills returns a copy of this map's buffered kill records.
func (t *Tracker) Kills() []event.KillRecord {
	out := make([]event.KillRecord, len(t.kills))
	copy(out, t.kills)
	return out
}
