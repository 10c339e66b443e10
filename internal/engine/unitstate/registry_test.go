package unitstate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/battlebus/internal/engine/event"
	"github.com/cory-johannsen/battlebus/internal/engine/unitstate"
)

func TestGetOrCreate_SameIndexTwice(t *testing.T) {
	r := unitstate.New(unitstate.DefaultCapacity, nil)
	a := r.GetOrCreate(0x100)
	b := r.GetOrCreate(0x200)
	assert.Equal(t, unitstate.Index(0), a)
	assert.Equal(t, unitstate.Index(1), b)
	assert.Equal(t, a, r.GetOrCreate(0x100))
	assert.Equal(t, 2, r.Count())
}

func TestGetOrCreate_ResetStartsAtZero(t *testing.T) {
	r := unitstate.New(unitstate.DefaultCapacity, nil)
	r.GetOrCreate(0x100)
	r.GetOrCreate(0x200)
	r.Reset()
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, unitstate.Index(0), r.GetOrCreate(0x200))
	assert.Equal(t, unitstate.Invalid, r.Lookup(0x100))
}

func TestGetOrCreate_NullIsInvalid(t *testing.T) {
	r := unitstate.New(unitstate.DefaultCapacity, nil)
	assert.Equal(t, unitstate.Invalid, r.GetOrCreate(event.NoIdentity))
	assert.False(t, unitstate.Invalid.Valid())
	assert.Equal(t, 0, r.Count())
}

func TestGetOrCreate_CapacitySentinel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := unitstate.New(2, zap.New(core))
	require.True(t, r.GetOrCreate(1).Valid())
	require.True(t, r.GetOrCreate(2).Valid())
	assert.Equal(t, unitstate.Invalid, r.GetOrCreate(3))
	assert.Equal(t, unitstate.Invalid, r.GetOrCreate(4))
	assert.Equal(t, unitstate.Index(1), r.GetOrCreate(2), "known units still resolve when full")
	assert.Equal(t, 1, logs.Len(), "overflow warns once per map")

	r.Reset()
	r.GetOrCreate(1)
	r.GetOrCreate(2)
	r.GetOrCreate(3)
	assert.Equal(t, 2, logs.Len())
}

func TestHandleAndEntries(t *testing.T) {
	r := unitstate.New(4, nil)
	i := r.GetOrCreate(0xABC)
	assert.Equal(t, event.Identity(0xABC), r.Handle(i))
	assert.Equal(t, event.NoIdentity, r.Handle(3))
	assert.Equal(t, event.NoIdentity, r.Handle(unitstate.Invalid))
	assert.Equal(t, []unitstate.Entry{{Unit: 0xABC}}, r.Entries())
	assert.Equal(t, 4, r.Capacity())
}

func TestPropertyRegistry_IndicesStableWithinMap(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 16).Draw(rt, "capacity")
		r := unitstate.New(capacity, nil)
		units := rapid.SliceOfN(rapid.UintptrRange(1, 24), 0, 64).Draw(rt, "units")

		assigned := map[event.Identity]unitstate.Index{}
		for _, u := range units {
			id := event.Identity(u)
			got := r.GetOrCreate(id)
			if prev, ok := assigned[id]; ok {
				assert.Equal(rt, prev, got)
				continue
			}
			if len(assigned) < capacity {
				assert.Equal(rt, unitstate.Index(len(assigned)), got)
				assigned[id] = got
			} else {
				assert.Equal(rt, unitstate.Invalid, got)
			}
		}
		assert.Equal(rt, len(assigned), r.Count())
	})
}
