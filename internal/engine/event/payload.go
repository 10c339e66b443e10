package event

// Kill is dispatched for every real kill record.
type Kill struct {
	Record KillRecord
	Turn   TurnContext
}

// HpChange is a signed HP delta for one unit.
//
// Amount > 0 is damage taken by Target, Amount < 0 is healing received, and
// Amount == 0 never occurs on the bus.
type HpChange struct {
	Source Identity
	Target Identity
	Amount int
	Flags  uint32
	Turn   TurnContext
}

// RngCall describes one call into the game's random number generator.
type RngCall struct {
	State  Identity
	Raw    uint32
	Bound  uint32
	Result uint32
	Turn   TurnContext
}

// HitCalc describes one hit roll: the input rate and the engine's verdict.
type HitCalc struct {
	BaseRate int
	Result   int
	Turn     TurnContext
}

// Hit reports whether the roll succeeded.
func (h HitCalc) Hit() bool {
	return h.Result != 0
}

// LevelUp is dispatched after a unit's new level has been applied.
type LevelUp struct {
	Unit  Identity
	Level uint8
	Turn  TurnContext
}

// SkillLearn is dispatched after a unit's skill add call returns.
type SkillLearn struct {
	Unit    Identity
	SkillID uint16
	Flags   uint16
	// Result is the underlying return code; > 0 means the skill was added.
	Result int
	Turn   TurnContext
}

// ItemGain is dispatched when a unit receives an item.
type ItemGain struct {
	Seq     Identity
	Unit    Identity
	ItemArg Identity
	ModeCtx Identity
	Result  int
	Turn    TurnContext
}
