package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/battlebus/internal/engine/event"
)

func TestSideFromRaw_KnownAndUnknown(t *testing.T) {
	assert.Equal(t, event.Side0, event.SideFromRaw(0))
	assert.Equal(t, event.Side3, event.SideFromRaw(3))
	assert.Equal(t, event.SideUnknown, event.SideFromRaw(4))
	assert.Equal(t, event.SideUnknown, event.SideFromRaw(-1))
	assert.Equal(t, event.SideUnknown, event.SideFromRaw(0xFF))
}

func TestSide_String(t *testing.T) {
	assert.Equal(t, "Side2", event.Side2.String())
	assert.Equal(t, "Unknown", event.SideUnknown.String())
	assert.Equal(t, "Unknown", event.Side(9).String())
}

func TestKillRecord_IsReal(t *testing.T) {
	assert.False(t, event.KillRecord{Seq: 0x10}.IsReal())
	assert.True(t, event.KillRecord{Flags: 1}.IsReal())
	assert.True(t, event.KillRecord{Dead0: 0x20}.IsReal())
	assert.True(t, event.KillRecord{Dead1: 0x30}.IsReal())
}

func TestIdentity_StringAndValid(t *testing.T) {
	assert.Equal(t, "0x00001000", event.Identity(0x1000).String())
	assert.False(t, event.NoIdentity.Valid())
	assert.True(t, event.Identity(1).Valid())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "HpChange", event.KindHpChange.String())
	assert.Equal(t, "ItemGain", event.KindItemGain.String())
	assert.Equal(t, "Kind(42)", event.Kind(42).String())
}

func TestPropertySideIndex_RoundTripsForKnownSides(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.IntRange(-10, 300).Draw(rt, "raw")
		s := event.SideFromRaw(raw)
		idx, ok := s.Index()
		if raw >= 0 && raw < event.SideCount {
			assert.True(rt, ok)
			assert.Equal(rt, raw, idx)
		} else {
			assert.False(rt, ok)
			assert.Equal(rt, event.SideUnknown, s)
		}
	})
}
