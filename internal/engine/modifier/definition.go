package modifier

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/battlebus/internal/engine/event"
)

// Modifier kinds accepted in definition files.
const (
	KindFlat        = "flat"
	KindPercent     = "percent"
	KindSideFlat    = "side_flat"
	KindMin         = "min"
	KindMax         = "max"
	KindLua         = "lua"
	KindSlotPenalty = "slot_penalty"
)

// ErrNoScripts is returned when a lua definition is built without a script source.
var ErrNoScripts = errors.New("lua modifier requires a script source")

// ScriptSource resolves named script hooks into modifiers.
type ScriptSource interface {
	DamageModifier(hook string) (Func[DamageContext], error)
	PostBattleHpModifier(hook string) (Func[PostBattleContext], error)
}

// Definition is one declarative modifier, loaded from YAML.
type Definition struct {
	Kind  string `yaml:"kind"`
	Value int    `yaml:"value"`
	Side  *int   `yaml:"side"`  // side_flat only
	Slot  *int   `yaml:"slot"`  // slot_penalty only
	Limit int    `yaml:"limit"` // slot_penalty only; 0 = unlimited
	Hook  string `yaml:"hook"`  // lua only
}

// File lists damage and post-battle HP modifiers in registration order.
type File struct {
	Damage       []Definition `yaml:"damage"`
	PostBattleHP []Definition `yaml:"post_battle_hp"`
}

// LoadFile reads and validates a modifier definition file.
//
// Precondition: path must be a readable YAML file.
// Postcondition: Returns a validated File, or an error naming the first bad entry.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading modifier file %q: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates modifier definitions. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, err
	}
	for i, d := range f.Damage {
		if err := d.validate(false); err != nil {
			return nil, fmt.Errorf("damage[%d]: %w", i, err)
		}
	}
	for i, d := range f.PostBattleHP {
		if err := d.validate(true); err != nil {
			return nil, fmt.Errorf("post_battle_hp[%d]: %w", i, err)
		}
	}
	return &f, nil
}

func (d Definition) validate(postBattle bool) error {
	switch d.Kind {
	case KindFlat, KindMin, KindMax:
		return nil
	case KindPercent:
		if d.Value < -MaxPercent || d.Value > MaxPercent {
			return fmt.Errorf("percent value must be in [%d, %d], got %d", -MaxPercent, MaxPercent, d.Value)
		}
		return nil
	case KindSideFlat:
		if d.Side == nil || *d.Side < 0 || *d.Side >= event.SideCount {
			return fmt.Errorf("side_flat needs side in [0, %d)", event.SideCount)
		}
		return nil
	case KindLua:
		if d.Hook == "" {
			return errors.New("lua needs a hook name")
		}
		return nil
	case KindSlotPenalty:
		if !postBattle {
			return errors.New("slot_penalty is only valid for post_battle_hp")
		}
		if d.Slot == nil || *d.Slot < 0 || *d.Slot >= SlotCount {
			return fmt.Errorf("slot_penalty needs slot in [0, %d)", SlotCount)
		}
		if d.Limit < 0 {
			return fmt.Errorf("slot_penalty limit must be >= 0, got %d", d.Limit)
		}
		return nil
	default:
		return fmt.Errorf("unknown modifier kind %q", d.Kind)
	}
}

// DamageFunc builds the damage modifier d describes.
//
// Precondition: d was validated by Parse; scripts may be nil unless d.Kind is lua.
func (d Definition) DamageFunc(scripts ScriptSource) (Func[DamageContext], error) {
	if d.Kind == KindLua {
		if scripts == nil {
			return nil, ErrNoScripts
		}
		return scripts.DamageModifier(d.Hook)
	}
	if d.Kind == KindSideFlat {
		return SideFlat[DamageContext](event.SideFromRaw(*d.Side), d.Value), nil
	}
	return common[DamageContext](d)
}

// PostBattleFunc builds the post-battle HP modifier d describes.
//
// Precondition: d was validated by Parse; scripts may be nil unless d.Kind is lua.
func (d Definition) PostBattleFunc(scripts ScriptSource) (Func[PostBattleContext], error) {
	switch d.Kind {
	case KindLua:
		if scripts == nil {
			return nil, ErrNoScripts
		}
		return scripts.PostBattleHpModifier(d.Hook)
	case KindSideFlat:
		return SideFlat[PostBattleContext](event.SideFromRaw(*d.Side), d.Value), nil
	case KindSlotPenalty:
		return SlotPenalty(*d.Slot, d.Value, d.Limit), nil
	}
	return common[PostBattleContext](d)
}

func common[C any](d Definition) (Func[C], error) {
	switch d.Kind {
	case KindFlat:
		return Flat[C](d.Value), nil
	case KindPercent:
		return Percent[C](d.Value), nil
	case KindMin:
		return Min[C](d.Value), nil
	case KindMax:
		return Max[C](d.Value), nil
	}
	return nil, fmt.Errorf("modifier kind %q not valid here", d.Kind)
}
