package trace

import (
	"context"
	"fmt"

	"github.com/cory-johannsen/battlebus/internal/engine/event"
	"github.com/cory-johannsen/battlebus/internal/engine/modifier"
)

// Target is the instrumentation surface a trace is replayed into.
type Target interface {
	OnMapStart(root event.Identity, side event.Side) bool
	OnMapEnd(root event.Identity, side event.Side)
	OnTurnBegin(side event.Side)
	OnTurnEnd(seq event.Identity)
	OnKill(rec event.KillRecord)
	OnUnitHpSync(unit event.Identity, hp int)
	OnRngCall(state event.Identity, raw, bound, result uint32)
	OnHitCalc(baseRate, result int)
	OnUnitLevelUp(unit event.Identity, level uint8)
	OnUnitSkillLearn(unit event.Identity, skillID, flags uint16, result int)
	OnItemGain(seq, unit, itemArg, mode event.Identity, result int)
	OnActionEnd(inst, seqMap, cmdData event.Identity, cmdID, sideRaw uint32, side event.Side, unk28 uint32)
	ApplyDamageModifiers(root, calc, attacker, defender event.Identity, base int) int
	ApplyPostBattleHp(seq event.Identity, mode, slot, hp int) int
	ApplyPostBattleHpSlots(seq event.Identity, mode int, hp [modifier.SlotCount]int) [modifier.SlotCount]int
}

// Output is the value a damage or post_battle_hp call produced.
type Output struct {
	// Index is the call's position in the trace.
	Index  int
	Call   string
	Input  []int
	Result []int
}

// Result summarizes a replay.
type Result struct {
	// Calls is how many calls were delivered.
	Calls   int
	Outputs []Output
}

// Replay delivers calls to t in order, stopping early if ctx is cancelled.
//
// Postcondition: Returns the partial Result and ctx's error on cancellation,
// or an error for a call name Parse would have rejected.
func Replay(ctx context.Context, t Target, calls []Call) (Result, error) {
	var res Result
	for i, c := range calls {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("replay stopped at call %d: %w", i, err)
		}
		out, err := deliver(t, c)
		if err != nil {
			return res, fmt.Errorf("call %d: %w", i, err)
		}
		res.Calls++
		if out != nil {
			out.Index = i
			res.Outputs = append(res.Outputs, *out)
		}
	}
	return res, nil
}

func deliver(t Target, c Call) (*Output, error) {
	switch c.Call {
	case CallMapStart:
		t.OnMapStart(c.Root.Identity(), c.side())
	case CallMapEnd:
		t.OnMapEnd(c.Root.Identity(), c.side())
	case CallTurnBegin:
		t.OnTurnBegin(c.side())
	case CallTurnEnd:
		t.OnTurnEnd(c.Seq.Identity())
	case CallKill:
		t.OnKill(event.KillRecord{Seq: c.Seq.Identity(), Dead0: c.Dead0.Identity(), Dead1: c.Dead1.Identity(), Flags: c.Flags})
	case CallHpSync:
		t.OnUnitHpSync(c.Unit.Identity(), c.HP)
	case CallRng:
		t.OnRngCall(c.State.Identity(), c.Raw, c.Bound, uint32(c.Result))
	case CallHitCalc:
		t.OnHitCalc(c.BaseRate, c.Result)
	case CallLevelUp:
		t.OnUnitLevelUp(c.Unit.Identity(), c.Level)
	case CallSkillLearn:
		t.OnUnitSkillLearn(c.Unit.Identity(), c.Skill, uint16(c.Flags), c.Result)
	case CallItemGain:
		t.OnItemGain(c.Seq.Identity(), c.Unit.Identity(), c.ItemArg.Identity(), c.ModeCtx.Identity(), c.Result)
	case CallActionEnd:
		t.OnActionEnd(c.Inst.Identity(), c.SeqMap.Identity(), c.CmdData.Identity(), c.CmdID, c.SideRaw, c.side(), c.Unk28)
	case CallDamage:
		got := t.ApplyDamageModifiers(c.Root.Identity(), c.Calc.Identity(), c.Attacker.Identity(), c.Defender.Identity(), c.Base)
		return &Output{Call: c.Call, Input: []int{c.Base}, Result: []int{got}}, nil
	case CallPostBattleHp:
		if c.Slot != nil {
			got := t.ApplyPostBattleHp(c.Seq.Identity(), c.Mode, *c.Slot, c.HP)
			return &Output{Call: c.Call, Input: []int{c.HP}, Result: []int{got}}, nil
		}
		if len(c.HPs) != modifier.SlotCount {
			return nil, fmt.Errorf("post_battle_hp needs %d hps, got %d", modifier.SlotCount, len(c.HPs))
		}
		var in [modifier.SlotCount]int
		copy(in[:], c.HPs)
		got := t.ApplyPostBattleHpSlots(c.Seq.Identity(), c.Mode, in)
		return &Output{Call: c.Call, Input: in[:], Result: got[:]}, nil
	default:
		return nil, fmt.Errorf("unknown call %q", c.Call)
	}
	return nil, nil
}
