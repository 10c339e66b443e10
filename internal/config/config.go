// Package config provides Viper-based configuration loading for the battle engine.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// HandlerConfig holds the bus handler capacity for every event kind.
type HandlerConfig struct {
	MapBegin   int `mapstructure:"map_begin"`
	MapEnd     int `mapstructure:"map_end"`
	TurnBegin  int `mapstructure:"turn_begin"`
	TurnEnd    int `mapstructure:"turn_end"`
	Kill       int `mapstructure:"kill"`
	HpChange   int `mapstructure:"hp_change"`
	RngCall    int `mapstructure:"rng_call"`
	HitCalc    int `mapstructure:"hit_calc"`
	LevelUp    int `mapstructure:"level_up"`
	SkillLearn int `mapstructure:"skill_learn"`
	ItemGain   int `mapstructure:"item_gain"`
}

// EngineConfig holds the fixed capacities of every engine registry.
type EngineConfig struct {
	Handlers HandlerConfig `mapstructure:"handlers"`
	// DamageModifiers is the damage pipeline capacity.
	DamageModifiers int `mapstructure:"damage_modifiers"`
	// PostBattleModifiers is the post-battle HP pipeline capacity.
	PostBattleModifiers int `mapstructure:"post_battle_modifiers"`
	// UnitStates is the identity registry capacity per map.
	UnitStates int `mapstructure:"unit_states"`
	// KillEvents is the per-map kill buffer capacity.
	KillEvents int `mapstructure:"kill_events"`
	// SkillUnits is the per-map skill table capacity.
	SkillUnits int `mapstructure:"skill_units"`
	// RngBounds caps the distinct RNG bounds tracked per map.
	RngBounds int `mapstructure:"rng_bounds"`
	// WatchSkillID marks units whose HP changes are logged.
	WatchSkillID int `mapstructure:"watch_skill_id"`
	// TraceEvents enables the debug event trace observer.
	TraceEvents bool `mapstructure:"trace_events"`
}

// LogCapsConfig holds per-generation log line budgets for high-frequency events.
type LogCapsConfig struct {
	Rng       int `mapstructure:"rng"`
	HitCalc   int `mapstructure:"hit_calc"`
	HpChange  int `mapstructure:"hp_change"`
	HpSync    int `mapstructure:"hp_sync"`
	ActionEnd int `mapstructure:"action_end"`
	WatchedHp int `mapstructure:"watched_hp"`
	MapUnits  int `mapstructure:"map_units"`
}

// ScriptingConfig holds Lua modifier script settings.
type ScriptingConfig struct {
	// Dir is the directory of *.lua files; empty disables scripting.
	Dir string `mapstructure:"dir"`
	// InstructionLimit bounds each hook call; 0 selects the default.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// ModifiersConfig locates declarative modifier definitions.
type ModifiersConfig struct {
	// File is a YAML modifier definition file; empty registers none.
	File string `mapstructure:"file"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Engine    EngineConfig    `mapstructure:"engine"`
	LogCaps   LogCapsConfig   `mapstructure:"logcaps"`
	Scripting ScriptingConfig `mapstructure:"scripting"`
	Modifiers ModifiersConfig `mapstructure:"modifiers"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateEngine(c.Engine); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogCaps(c.LogCaps); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Scripting.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("scripting.instruction_limit must be >= 0, got %d", c.Scripting.InstructionLimit))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// maxUnitStates keeps every registry index below the invalid sentinel 0xFFFF.
const maxUnitStates = 0xFFFE

func validateEngine(e EngineConfig) error {
	var errs []string
	positive := func(name string, v int) {
		if v < 1 {
			errs = append(errs, fmt.Sprintf("engine.%s must be >= 1, got %d", name, v))
		}
	}
	h := e.Handlers
	positive("handlers.map_begin", h.MapBegin)
	positive("handlers.map_end", h.MapEnd)
	positive("handlers.turn_begin", h.TurnBegin)
	positive("handlers.turn_end", h.TurnEnd)
	positive("handlers.kill", h.Kill)
	positive("handlers.hp_change", h.HpChange)
	positive("handlers.rng_call", h.RngCall)
	positive("handlers.hit_calc", h.HitCalc)
	positive("handlers.level_up", h.LevelUp)
	positive("handlers.skill_learn", h.SkillLearn)
	positive("handlers.item_gain", h.ItemGain)
	positive("damage_modifiers", e.DamageModifiers)
	positive("post_battle_modifiers", e.PostBattleModifiers)
	positive("unit_states", e.UnitStates)
	positive("kill_events", e.KillEvents)
	positive("skill_units", e.SkillUnits)
	positive("rng_bounds", e.RngBounds)
	if e.UnitStates > maxUnitStates {
		errs = append(errs, fmt.Sprintf("engine.unit_states must be <= %d, got %d", maxUnitStates, e.UnitStates))
	}
	if e.WatchSkillID < 0 || e.WatchSkillID > 0xFFFF {
		errs = append(errs, fmt.Sprintf("engine.watch_skill_id must be 0-65535, got %d", e.WatchSkillID))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogCaps(l LogCapsConfig) error {
	var errs []string
	nonNegative := func(name string, v int) {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("logcaps.%s must be >= 0, got %d", name, v))
		}
	}
	nonNegative("rng", l.Rng)
	nonNegative("hit_calc", l.HitCalc)
	nonNegative("hp_change", l.HpChange)
	nonNegative("hp_sync", l.HpSync)
	nonNegative("action_end", l.ActionEnd)
	nonNegative("watched_hp", l.WatchedHp)
	nonNegative("map_units", l.MapUnits)
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with BATTLEBUS_ prefix
	v.SetEnvPrefix("BATTLEBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration produced by an empty config file.
//
// Postcondition: Default().Validate() == nil.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := LoadFromViper(v)
	if err != nil {
		panic(fmt.Sprintf("config: defaults are invalid: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("engine.handlers.map_begin", 8)
	v.SetDefault("engine.handlers.map_end", 8)
	v.SetDefault("engine.handlers.turn_begin", 8)
	v.SetDefault("engine.handlers.turn_end", 8)
	v.SetDefault("engine.handlers.kill", 8)
	v.SetDefault("engine.handlers.hp_change", 16)
	v.SetDefault("engine.handlers.rng_call", 4)
	v.SetDefault("engine.handlers.hit_calc", 8)
	v.SetDefault("engine.handlers.level_up", 4)
	v.SetDefault("engine.handlers.skill_learn", 4)
	v.SetDefault("engine.handlers.item_gain", 4)
	v.SetDefault("engine.damage_modifiers", 8)
	v.SetDefault("engine.post_battle_modifiers", 8)
	v.SetDefault("engine.unit_states", 64)
	v.SetDefault("engine.kill_events", 64)
	v.SetDefault("engine.skill_units", 64)
	v.SetDefault("engine.rng_bounds", 8)
	v.SetDefault("engine.watch_skill_id", 0x000E)
	v.SetDefault("engine.trace_events", false)

	v.SetDefault("logcaps.rng", 64)
	v.SetDefault("logcaps.hit_calc", 128)
	v.SetDefault("logcaps.hp_change", 128)
	v.SetDefault("logcaps.hp_sync", 64)
	v.SetDefault("logcaps.action_end", 32)
	v.SetDefault("logcaps.watched_hp", 64)
	v.SetDefault("logcaps.map_units", 32)

	v.SetDefault("scripting.dir", "")
	v.SetDefault("scripting.instruction_limit", 0)

	v.SetDefault("modifiers.file", "")
}
