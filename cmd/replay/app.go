package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/battlebus/internal/config"
	"github.com/cory-johannsen/battlebus/internal/engine"
	"github.com/cory-johannsen/battlebus/internal/engine/event"
	"github.com/cory-johannsen/battlebus/internal/engine/hpkill"
	"github.com/cory-johannsen/battlebus/internal/engine/modifier"
	"github.com/cory-johannsen/battlebus/internal/scripting"
	"github.com/cory-johannsen/battlebus/internal/trace"
)

// App replays traces into one Engine and reports per-map summaries.
type App struct {
	engine *engine.Engine
	logger *zap.Logger
	maps   []hpkill.Summary
}

func provideEngine(cfg config.Config, logger *zap.Logger) (*engine.Engine, error) {
	return engine.New(engine.NewOptions(cfg), logger)
}

// provideScripts loads cfg.Scripting.Dir when set; otherwise the returned
// Scripts has no VM and lua modifiers fail to build.
func provideScripts(cfg config.Config, logger *zap.Logger) (*scripting.Scripts, func(), error) {
	s := scripting.NewScripts(cfg.Scripting.InstructionLimit, logger)
	if cfg.Scripting.Dir != "" {
		if err := s.LoadDir(cfg.Scripting.Dir); err != nil {
			return nil, nil, err
		}
	}
	return s, s.Close, nil
}

func provideModifiers(cfg config.Config) (*modifier.File, error) {
	if cfg.Modifiers.File == "" {
		return &modifier.File{}, nil
	}
	return modifier.LoadFile(cfg.Modifiers.File)
}

// NewApp registers every modifier in file, in file order, and subscribes
// to MapEnd to capture summaries.
//
// Postcondition: Returns an error if a definition cannot be built or a
// pipeline or the bus is full.
func NewApp(e *engine.Engine, scripts *scripting.Scripts, file *modifier.File, logger *zap.Logger) (*App, error) {
	a := &App{engine: e, logger: logger}
	for i, d := range file.Damage {
		fn, err := d.DamageFunc(scripts)
		if err != nil {
			return nil, fmt.Errorf("damage modifier %d: %w", i, err)
		}
		if !e.RegisterDamageModifier(fn) {
			return nil, fmt.Errorf("damage modifier %d: pipeline full", i)
		}
	}
	for i, d := range file.PostBattleHP {
		fn, err := d.PostBattleFunc(scripts)
		if err != nil {
			return nil, fmt.Errorf("post_battle_hp modifier %d: %w", i, err)
		}
		if !e.RegisterPostBattleHpModifier(fn) {
			return nil, fmt.Errorf("post_battle_hp modifier %d: pipeline full", i)
		}
	}
	if !e.Bus().RegisterMapEnd(a.onMapEnd) {
		return nil, fmt.Errorf("registering summary handler: %w", engine.ErrHandlerCapacity)
	}
	logger.Info("replay ready",
		zap.String("session", e.Session()),
		zap.Int("damage_modifiers", len(file.Damage)),
		zap.Int("post_battle_modifiers", len(file.PostBattleHP)),
	)
	return a, nil
}

func (a *App) onMapEnd(event.MapContext) {
	a.maps = append(a.maps, a.engine.Aggregator().Summary())
}

type unitReport struct {
	Unit            string `yaml:"unit"`
	DamageTaken     int    `yaml:"damage_taken"`
	HealingReceived int    `yaml:"healing_received"`
}

type sideReport struct {
	Side        string `yaml:"side"`
	DamageDealt int    `yaml:"damage_dealt"`
	HealingDone int    `yaml:"healing_done"`
	Kills       uint32 `yaml:"kills"`
}

type mapReport struct {
	Generation uint32       `yaml:"generation"`
	TotalTurns uint32       `yaml:"total_turns"`
	TotalKills uint32       `yaml:"total_kills"`
	Sides      []sideReport `yaml:"sides"`
	Units      []unitReport `yaml:"units,omitempty"`
}

type outputReport struct {
	Index  int    `yaml:"index"`
	Call   string `yaml:"call"`
	Input  []int  `yaml:"input,flow"`
	Result []int  `yaml:"result,flow"`
}

type report struct {
	Session    string         `yaml:"session"`
	Calls      int            `yaml:"calls"`
	Violations uint64         `yaml:"violations"`
	Maps       []mapReport    `yaml:"maps"`
	Outputs    []outputReport `yaml:"outputs,omitempty"`
}

// Run replays calls and writes a YAML report to w.
//
// Precondition: calls must have passed trace.Parse.
func (a *App) Run(ctx context.Context, calls []trace.Call, w io.Writer) error {
	res, err := trace.Replay(ctx, a.engine, calls)
	if err != nil {
		return err
	}
	a.logger.Info("replay complete", zap.Int("calls", res.Calls), zap.Int("maps", len(a.maps)))

	r := report{Session: a.engine.Session(), Calls: res.Calls, Violations: a.engine.Violations()}
	for _, m := range a.maps {
		r.Maps = append(r.Maps, newMapReport(m))
	}
	for _, o := range res.Outputs {
		r.Outputs = append(r.Outputs, outputReport(o))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return enc.Close()
}

// Maps returns the summaries captured so far.
func (a *App) Maps() []hpkill.Summary { return a.maps }

func newMapReport(s hpkill.Summary) mapReport {
	m := mapReport{Generation: s.Generation, TotalTurns: s.TotalTurns, TotalKills: s.TotalKills}
	for i, st := range s.Sides {
		m.Sides = append(m.Sides, sideReport{
			Side:        event.Side(i).String(),
			DamageDealt: st.DamageDealt,
			HealingDone: st.HealingDone,
			Kills:       s.KillsBySide[i],
		})
	}
	for _, u := range s.Units {
		m.Units = append(m.Units, unitReport{Unit: u.Unit.String(), DamageTaken: u.DamageTaken, HealingReceived: u.HealingReceived})
	}
	return m
}
