package modifier

import "github.com/cory-johannsen/battlebus/internal/engine/event"

// SlotCount is the number of HP slots in a post-battle result.
const SlotCount = 4

// Turned is implemented by every pipeline context.
type Turned interface {
	TurnContext() event.TurnContext
}

// DamageContext describes one final-damage computation.
type DamageContext struct {
	Turn       event.TurnContext
	Root       event.Identity
	Calc       event.Identity
	Attacker   event.Identity
	Defender   event.Identity
	BaseDamage int
}

// TurnContext returns the turn the damage was computed in.
func (c DamageContext) TurnContext() event.TurnContext { return c.Turn }

// PostBattleContext describes one HP slot of a post-battle result.
type PostBattleContext struct {
	Turn event.TurnContext
	Seq  event.Identity
	// Slot is in [0, SlotCount).
	Slot int
	// Mode is the game's result mode; 0 is the normal combat result.
	Mode       int
	OriginalHP int
}

// TurnContext returns the turn the result was applied in.
func (c PostBattleContext) TurnContext() event.TurnContext { return c.Turn }
