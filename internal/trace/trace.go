// Package trace defines a YAML file format for recorded instrumentation
// calls and replays such a recording into an Engine.
package trace

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/battlebus/internal/engine/event"
)

// Call names accepted in trace files.
const (
	CallMapStart     = "map_start"
	CallMapEnd       = "map_end"
	CallTurnBegin    = "turn_begin"
	CallTurnEnd      = "turn_end"
	CallKill         = "kill"
	CallHpSync       = "hp_sync"
	CallRng          = "rng"
	CallHitCalc      = "hit_calc"
	CallLevelUp      = "level_up"
	CallSkillLearn   = "skill_learn"
	CallItemGain     = "item_gain"
	CallActionEnd    = "action_end"
	CallDamage       = "damage"
	CallPostBattleHp = "post_battle_hp"
)

var knownCalls = map[string]bool{
	CallMapStart: true, CallMapEnd: true, CallTurnBegin: true, CallTurnEnd: true,
	CallKill: true, CallHpSync: true, CallRng: true, CallHitCalc: true,
	CallLevelUp: true, CallSkillLearn: true, CallItemGain: true, CallActionEnd: true,
	CallDamage: true, CallPostBattleHp: true,
}

// Addr is an opaque identity written as a decimal or 0x-prefixed hex integer.
type Addr uint64

// UnmarshalYAML parses decimal, hex, octal or binary integer literals.
func (a *Addr) UnmarshalYAML(value *yaml.Node) error {
	v, err := strconv.ParseUint(value.Value, 0, 64)
	if err != nil {
		return fmt.Errorf("line %d: invalid address %q: %w", value.Line, value.Value, err)
	}
	*a = Addr(v)
	return nil
}

// Identity converts a to an engine identity.
func (a Addr) Identity() event.Identity { return event.Identity(a) }

// Call is one recorded instrumentation call. Only the fields the named call
// uses are read.
type Call struct {
	Call string `yaml:"call"`

	// Side is the raw side byte; absent or out of range means unknown.
	Side *int `yaml:"side"`

	Root  Addr   `yaml:"root"`
	Seq   Addr   `yaml:"seq"`
	Unit  Addr   `yaml:"unit"`
	Flags uint32 `yaml:"flags"`
	Dead0 Addr   `yaml:"dead0"`
	Dead1 Addr   `yaml:"dead1"`
	HP    int    `yaml:"hp"`

	State Addr   `yaml:"state"`
	Raw   uint32 `yaml:"raw"`
	Bound uint32 `yaml:"bound"`

	Result   int    `yaml:"result"`
	BaseRate int    `yaml:"base_rate"`
	Level    uint8  `yaml:"level"`
	Skill    uint16 `yaml:"skill"`
	ItemArg  Addr   `yaml:"item"`
	ModeCtx  Addr   `yaml:"mode_ctx"`

	Inst    Addr   `yaml:"inst"`
	SeqMap  Addr   `yaml:"seq_map"`
	CmdData Addr   `yaml:"cmd_data"`
	CmdID   uint32 `yaml:"cmd_id"`
	SideRaw uint32 `yaml:"side_raw"`
	Unk28   uint32 `yaml:"unk28"`

	Calc     Addr `yaml:"calc"`
	Attacker Addr `yaml:"attacker"`
	Defender Addr `yaml:"defender"`
	Base     int  `yaml:"base"`

	Mode int `yaml:"mode"`
	// Slot selects one HP slot; when absent, HPs carries all four.
	Slot *int  `yaml:"slot"`
	HPs  []int `yaml:"hps"`
}

// side returns the call's side, or SideUnknown if none was recorded.
func (c Call) side() event.Side {
	if c.Side == nil {
		return event.SideUnknown
	}
	return event.SideFromRaw(*c.Side)
}

// LoadFile reads and validates a trace file.
//
// Precondition: path must be a readable YAML file containing a list of calls.
// Postcondition: Returns the calls in file order, or an error naming the first bad entry.
func LoadFile(path string) ([]Call, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trace %q: %w", path, err)
	}
	calls, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}
	return calls, nil
}

// Parse decodes and validates a list of calls. Unknown fields are rejected.
func Parse(data []byte) ([]Call, error) {
	var calls []Call
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&calls); err != nil {
		return nil, err
	}
	for i, c := range calls {
		if err := c.validate(); err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
	}
	return calls, nil
}

func (c Call) validate() error {
	if !knownCalls[c.Call] {
		return fmt.Errorf("unknown call %q", c.Call)
	}
	if c.Call == CallPostBattleHp && c.Slot == nil && len(c.HPs) != 4 {
		return fmt.Errorf("post_battle_hp needs slot or exactly 4 hps, got %d", len(c.HPs))
	}
	return nil
}
