// Package event defines the identity, side, context, and payload types shared
// by every engine component.
//
// Events are values. A handler receives its own copy and must not retain
// references into engine state past the dispatch call.
package event

import "fmt"

// Identity is an opaque token for a game entity, equivalent to a raw address.
// The engine never dereferences it; it is compared for equality and used as a
// key only.
//
// Identities are not stable across maps: the same value may name a different
// entity after a map transition. Every identity-keyed structure is reset
// wholesale at MapBegin rather than invalidated per entry.
type Identity uintptr

// NoIdentity is the null identity.
const NoIdentity Identity = 0

// Valid reports whether id is non-null.
func (id Identity) Valid() bool {
	return id != NoIdentity
}

// String renders id as a hex address.
func (id Identity) String() string {
	return fmt.Sprintf("0x%08x", uintptr(id))
}

// Side is the faction that owns a turn.
type Side uint8

const (
	Side0 Side = 0
	Side1 Side = 1
	Side2 Side = 2
	Side3 Side = 3
	// SideUnknown is reported whenever the owner of the current turn cannot be
	// determined, including every event delivered outside an active map.
	SideUnknown Side = 0xFF
)

// SideCount is the number of known sides.
const SideCount = 4

// SideFromRaw converts a raw side byte into a Side.
//
// Postcondition: Returns Side0..Side3 for raw in [0,3], otherwise SideUnknown.
func SideFromRaw(raw int) Side {
	if raw < 0 || raw >= SideCount {
		return SideUnknown
	}
	return Side(raw)
}

// Index returns the 0..3 slot for s.
//
// Postcondition: ok is false for SideUnknown and any other out-of-range value.
func (s Side) Index() (int, bool) {
	if int(s) >= SideCount {
		return -1, false
	}
	return int(s), true
}

// String returns "Side0".."Side3" or "Unknown".
func (s Side) String() string {
	switch s {
	case Side0:
		return "Side0"
	case Side1:
		return "Side1"
	case Side2:
		return "Side2"
	case Side3:
		return "Side3"
	default:
		return "Unknown"
	}
}

// Kind enumerates the event families carried by the bus.
type Kind uint8

const (
	KindMapBegin Kind = iota
	KindMapEnd
	KindTurnBegin
	KindTurnEnd
	KindKill
	KindHpChange
	KindRngCall
	KindHitCalc
	KindLevelUp
	KindSkillLearn
	KindItemGain
)

// KindCount is the number of event kinds.
const KindCount = int(KindItemGain) + 1

var kindNames = [KindCount]string{
	KindMapBegin:   "MapBegin",
	KindMapEnd:     "MapEnd",
	KindTurnBegin:  "TurnBegin",
	KindTurnEnd:    "TurnEnd",
	KindKill:       "Kill",
	KindHpChange:   "HpChange",
	KindRngCall:    "RngCall",
	KindHitCalc:    "HitCalc",
	KindLevelUp:    "LevelUp",
	KindSkillLearn: "SkillLearn",
	KindItemGain:   "ItemGain",
}

// String returns the kind's name.
func (k Kind) String() string {
	if int(k) < KindCount {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}
