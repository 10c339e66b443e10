package lifecycle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/battlebus/internal/engine/bus"
	"github.com/cory-johannsen/battlebus/internal/engine/event"
	"github.com/cory-johannsen/battlebus/internal/engine/lifecycle"
)

func newTracker(t *testing.T, killCap int) (*lifecycle.Tracker, *bus.Bus) {
	t.Helper()
	b := bus.New(bus.DefaultCapacities(), nil)
	return lifecycle.New(b, killCap, nil), b
}

func TestTracker_MapStartDebouncesSameRoot(t *testing.T) {
	tr, b := newTracker(t, lifecycle.DefaultKillCapacity)
	var begins []event.MapContext
	require.True(t, b.RegisterMapBegin(func(mc event.MapContext) { begins = append(begins, mc) }))

	assert.True(t, tr.OnMapStart(0x1000, event.Side1))
	assert.False(t, tr.OnMapStart(0x1000, event.Side1))
	assert.False(t, tr.OnMapStart(0x1000, event.Side2))

	require.Len(t, begins, 1)
	assert.Equal(t, uint32(1), begins[0].Generation)
	assert.Equal(t, event.Side1, begins[0].StartSide)
	assert.Equal(t, event.Side1, begins[0].CurrentSide)
	assert.True(t, begins[0].Active)
}

func TestTracker_NullRootIgnored(t *testing.T) {
	tr, _ := newTracker(t, lifecycle.DefaultKillCapacity)
	assert.False(t, tr.OnMapStart(event.NoIdentity, event.Side0))
	assert.Equal(t, uint32(0), tr.Generation())
	assert.False(t, tr.Active())
}

func TestTracker_SameRootAfterMapEndStaysDebounced(t *testing.T) {
	tr, _ := newTracker(t, lifecycle.DefaultKillCapacity)
	tr.OnMapStart(0x1000, event.Side0)
	tr.OnMapEnd(0x1000, event.Side0)
	assert.False(t, tr.OnMapStart(0x1000, event.Side0))
	assert.Equal(t, uint32(1), tr.Generation())
	assert.True(t, tr.OnMapStart(0x2000, event.Side0))
	assert.Equal(t, uint32(2), tr.Generation())
}

func TestTracker_NewMapResetsCounters(t *testing.T) {
	tr, _ := newTracker(t, lifecycle.DefaultKillCapacity)
	tr.OnMapStart(0x1000, event.Side0)
	tr.OnTurnBegin(event.Side0)
	tr.OnTurnBegin(event.Side1)
	tr.OnKill(event.KillRecord{Seq: 1, Dead0: 0x10})

	tr.OnMapStart(0x2000, event.Side3)
	mc := tr.MapContext()
	assert.Equal(t, uint32(2), mc.Generation)
	assert.Equal(t, uint32(0), mc.TotalTurns)
	assert.Equal(t, uint32(0), mc.KillEvents)
	assert.Equal(t, event.Side3, mc.StartSide)
	assert.Empty(t, tr.Kills())
	assert.Equal(t, uint32(0), tr.TurnContext(event.Side0).SideTurnIndex)
}

func TestTracker_TurnBeginCounts(t *testing.T) {
	tr, b := newTracker(t, lifecycle.DefaultKillCapacity)
	var turns []event.TurnContext
	require.True(t, b.RegisterTurnBegin(func(tc event.TurnContext) { turns = append(turns, tc) }))

	tr.OnMapStart(0x1000, event.Side0)
	tr.OnTurnBegin(event.Side0)
	tr.OnTurnBegin(event.Side1)
	tr.OnTurnBegin(event.Side0)
	tr.OnTurnBegin(event.SideUnknown)

	require.Len(t, turns, 4)
	assert.Equal(t, uint32(1), turns[0].SideTurnIndex)
	assert.Equal(t, uint32(1), turns[1].SideTurnIndex)
	assert.Equal(t, uint32(2), turns[2].SideTurnIndex)
	assert.Equal(t, uint32(3), turns[2].Map.TotalTurns)
	assert.Equal(t, uint32(0), turns[3].SideTurnIndex)
	assert.Equal(t, uint32(4), turns[3].Map.TotalTurns)
	assert.Equal(t, event.SideUnknown, turns[3].Map.CurrentSide)
}

func TestTracker_TurnEndReemitsLastSide(t *testing.T) {
	tr, b := newTracker(t, lifecycle.DefaultKillCapacity)
	var ends []event.TurnContext
	require.True(t, b.RegisterTurnEnd(func(tc event.TurnContext) { ends = append(ends, tc) }))

	tr.OnMapStart(0x1000, event.Side0)
	tr.OnTurnBegin(event.Side2)
	tr.OnTurnEnd(0x55)
	tr.OnTurnEnd(0x55)

	require.Len(t, ends, 2)
	for _, tc := range ends {
		assert.Equal(t, event.Side2, tc.Side)
		assert.Equal(t, uint32(1), tc.SideTurnIndex)
		assert.Equal(t, uint32(1), tc.Map.TotalTurns)
	}
}

func TestTracker_MapEndDispatchesWhileActiveThenDeactivates(t *testing.T) {
	tr, b := newTracker(t, lifecycle.DefaultKillCapacity)
	var ends []event.MapContext
	require.True(t, b.RegisterMapEnd(func(mc event.MapContext) {
		ends = append(ends, mc)
		assert.True(t, tr.Active(), "handlers observe the map as still active")
	}))

	tr.OnMapStart(0x1000, event.Side0)
	tr.OnTurnBegin(event.Side1)
	tr.OnMapEnd(0x1000, event.Side1)
	tr.OnMapEnd(0x1000, event.Side1)

	require.Len(t, ends, 1)
	assert.Equal(t, uint32(1), ends[0].TotalTurns)
	assert.False(t, tr.Active())
	assert.Equal(t, event.SideUnknown, tr.ActiveSide())
	assert.Equal(t, uint32(1), tr.MapContext().TotalTurns, "counters survive map end")
}

func TestTracker_KillAttributedToActiveSide(t *testing.T) {
	tr, b := newTracker(t, lifecycle.DefaultKillCapacity)
	var kills []event.Kill
	require.True(t, b.RegisterKill(func(k event.Kill) { kills = append(kills, k) }))

	tr.OnMapStart(0x1000, event.Side0)
	tr.OnTurnBegin(event.Side1)
	assert.True(t, tr.OnKill(event.KillRecord{Seq: 0x1, Dead0: 0x20}))
	assert.False(t, tr.OnKill(event.KillRecord{Seq: 0x1}), "empty record is not a kill")

	require.Len(t, kills, 1)
	assert.Equal(t, event.Side1, kills[0].Turn.Side)
	assert.Equal(t, uint32(1), kills[0].Turn.Map.KillEvents)
	assert.Equal(t, []event.KillRecord{{Seq: 0x1, Dead0: 0x20}}, tr.Kills())
}

func TestTracker_KillOutsideMapHasUnknownSide(t *testing.T) {
	tr, b := newTracker(t, lifecycle.DefaultKillCapacity)
	var kills []event.Kill
	require.True(t, b.RegisterKill(func(k event.Kill) { kills = append(kills, k) }))

	tr.OnKill(event.KillRecord{Flags: 1})
	require.Len(t, kills, 1)
	assert.Equal(t, event.SideUnknown, kills[0].Turn.Side)
}

func TestTracker_KillBufferOverflowStillDispatches(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := bus.New(bus.DefaultCapacities(), nil)
	tr := lifecycle.New(b, 2, zap.New(core))
	dispatched := 0
	require.True(t, b.RegisterKill(func(event.Kill) { dispatched++ }))

	tr.OnMapStart(0x1000, event.Side0)
	for i := 0; i < 4; i++ {
		assert.True(t, tr.OnKill(event.KillRecord{Flags: 1}))
	}

	assert.Equal(t, 4, dispatched)
	assert.Len(t, tr.Kills(), 2)
	assert.Equal(t, uint32(2), tr.MapContext().KillEvents)
	assert.Equal(t, 1, logs.FilterMessage("kill buffer full; further records dropped this map").Len())
}

func TestTracker_KillsReturnsCopy(t *testing.T) {
	tr, _ := newTracker(t, lifecycle.DefaultKillCapacity)
	tr.OnMapStart(0x1000, event.Side0)
	tr.OnKill(event.KillRecord{Flags: 7})
	k := tr.Kills()
	k[0].Flags = 99
	assert.Equal(t, uint32(7), tr.Kills()[0].Flags)
}

func TestPropertyGenerationMonotonicity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		b := bus.New(bus.DefaultCapacities(), nil)
		tr := lifecycle.New(b, lifecycle.DefaultKillCapacity, nil)
		roots := rapid.SliceOfN(rapid.Uint32Range(0, 8), 0, 64).Draw(rt, "roots")

		var prev uint32
		var last event.Identity
		changes := uint32(0)
		for _, r := range roots {
			root := event.Identity(r)
			if root.Valid() && root != last {
				changes++
				last = root
			}
			tr.OnMapStart(root, event.Side0)
			if rapid.Bool().Draw(rt, "end") {
				tr.OnMapEnd(root, event.Side0)
			}
			gen := tr.Generation()
			if gen < prev {
				rt.Fatalf("generation decreased from %d to %d", prev, gen)
			}
			prev = gen
		}
		assert.Equal(rt, changes, tr.Generation())
	})
}
