package engine

import (
	"github.com/cory-johannsen/battlebus/internal/config"
	"github.com/cory-johannsen/battlebus/internal/engine/bus"
	"github.com/cory-johannsen/battlebus/internal/engine/hpkill"
	"github.com/cory-johannsen/battlebus/internal/engine/lifecycle"
	"github.com/cory-johannsen/battlebus/internal/engine/skills"
	"github.com/cory-johannsen/battlebus/internal/engine/stats"
	"github.com/cory-johannsen/battlebus/internal/engine/unitstate"
)

// LogCaps bounds the log lines of high-frequency events.
type LogCaps struct {
	// Per map generation.
	Rng      int
	HitCalc  int
	HpChange int
	HpSync   int
	// Per engine lifetime.
	ActionEnd int
	WatchedHp int
	// Unit lines in each MapEnd summary.
	MapUnits int
}

// Options sizes every fixed-capacity structure an Engine owns.
type Options struct {
	Handlers            bus.Capacities
	DamageModifiers     int
	PostBattleModifiers int
	UnitStates          int
	KillEvents          int
	SkillUnits          int
	RngBounds           int
	WatchSkill          uint16
	TraceEvents         bool
	LogCaps             LogCaps
}

// DefaultModifierCapacity is the stock size of each modifier pipeline.
const DefaultModifierCapacity = 8

// DefaultOptions returns the stock capacities.
func DefaultOptions() Options {
	return Options{
		Handlers:            bus.DefaultCapacities(),
		DamageModifiers:     DefaultModifierCapacity,
		PostBattleModifiers: DefaultModifierCapacity,
		UnitStates:          unitstate.DefaultCapacity,
		KillEvents:          lifecycle.DefaultKillCapacity,
		SkillUnits:          skills.DefaultCapacity,
		RngBounds:           stats.DefaultRngBounds,
		WatchSkill:          skills.DefaultWatchSkill,
		LogCaps: LogCaps{
			Rng:       64,
			HitCalc:   128,
			HpChange:  128,
			HpSync:    64,
			ActionEnd: 32,
			WatchedHp: 64,
			MapUnits:  hpkill.DefaultSummaryUnits,
		},
	}
}

// NewOptions converts validated configuration into Options.
//
// Precondition: cfg.Validate() == nil.
func NewOptions(cfg config.Config) Options {
	h := cfg.Engine.Handlers
	return Options{
		Handlers: bus.Capacities{
			MapBegin:   h.MapBegin,
			MapEnd:     h.MapEnd,
			TurnBegin:  h.TurnBegin,
			TurnEnd:    h.TurnEnd,
			Kill:       h.Kill,
			HpChange:   h.HpChange,
			RngCall:    h.RngCall,
			HitCalc:    h.HitCalc,
			LevelUp:    h.LevelUp,
			SkillLearn: h.SkillLearn,
			ItemGain:   h.ItemGain,
		},
		DamageModifiers:     cfg.Engine.DamageModifiers,
		PostBattleModifiers: cfg.Engine.PostBattleModifiers,
		UnitStates:          cfg.Engine.UnitStates,
		KillEvents:          cfg.Engine.KillEvents,
		SkillUnits:          cfg.Engine.SkillUnits,
		RngBounds:           cfg.Engine.RngBounds,
		WatchSkill:          uint16(cfg.Engine.WatchSkillID),
		TraceEvents:         cfg.Engine.TraceEvents,
		LogCaps: LogCaps{
			Rng:       cfg.LogCaps.Rng,
			HitCalc:   cfg.LogCaps.HitCalc,
			HpChange:  cfg.LogCaps.HpChange,
			HpSync:    cfg.LogCaps.HpSync,
			ActionEnd: cfg.LogCaps.ActionEnd,
			WatchedHp: cfg.LogCaps.WatchedHp,
			MapUnits:  cfg.LogCaps.MapUnits,
		},
	}
}
