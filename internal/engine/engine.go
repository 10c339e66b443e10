// Package engine wires the bus, lifecycle tracker, HP synthesizer, modifier
// pipelines and aggregators into one instance and exposes the narrow
// instrumentation entry points the hook layer calls.
//
// Every entry point assumes the caller never delivers two instrumentation
// calls at once. The precondition is enforced: an overlapping or nested
// entry-point call is dropped, logged at Error and counted by Violations.
// Handlers that need to publish further events use Bus directly.
package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/bus"
	"github.com/cory-johannsen/battlebus/internal/engine/event"
	"github.com/cory-johannsen/battlebus/internal/engine/hpkill"
	"github.com/cory-johannsen/battlebus/internal/engine/hpsync"
	"github.com/cory-johannsen/battlebus/internal/engine/lifecycle"
	"github.com/cory-johannsen/battlebus/internal/engine/modifier"
	"github.com/cory-johannsen/battlebus/internal/engine/skills"
	"github.com/cory-johannsen/battlebus/internal/engine/stats"
	"github.com/cory-johannsen/battlebus/internal/engine/unitstate"
	"github.com/cory-johannsen/battlebus/internal/observability"
)

// Engine is one independent instance of the instrumentation core.
type Engine struct {
	session string
	logger  *zap.Logger

	bus         *bus.Bus
	tracker     *lifecycle.Tracker
	hp          *hpsync.Synthesizer
	damage      *modifier.Chain[modifier.DamageContext]
	postBattle  *modifier.Chain[modifier.PostBattleContext]
	units       *unitstate.Registry
	aggregator  *hpkill.Aggregator
	skills      *skills.Table
	damageStats *stats.DamageStats
	rngStats    *stats.RngStats
	hitStats    *stats.HitStats

	rngLog      *observability.Budget
	hitLog      *observability.Budget
	hpChangeLog *observability.Budget
	actionLog   *observability.Budget

	busy       atomic.Bool
	violations atomic.Uint64
}

// New builds an Engine and attaches its built-in modules to the bus.
//
// Precondition: every capacity in opts is >= 1.
// Postcondition: Returns a ready Engine, or an error if a built-in module
// could not register its handlers.
func New(opts Options, logger *zap.Logger) (*Engine, error) {
	session := uuid.NewString()
	logger = observability.WithSession(logger, session)

	b := bus.New(opts.Handlers, logger)
	tracker := lifecycle.New(b, opts.KillEvents, logger)
	units := unitstate.New(opts.UnitStates, logger)

	e := &Engine{
		session:     session,
		logger:      logger,
		bus:         b,
		tracker:     tracker,
		damage:      modifier.NewChain[modifier.DamageContext]("damage", opts.DamageModifiers),
		postBattle:  modifier.NewChain[modifier.PostBattleContext]("post_battle_hp", opts.PostBattleModifiers),
		units:       units,
		aggregator:  hpkill.New(units, opts.LogCaps.MapUnits, logger),
		skills:      skills.New(opts.SkillUnits, opts.WatchSkill, observability.NewGlobalBudget(opts.LogCaps.WatchedHp), logger),
		damageStats: stats.NewDamageStats(logger),
		rngStats:    stats.NewRngStats(opts.RngBounds, logger),
		hitStats:    stats.NewHitStats(logger),
		rngLog:      observability.NewBudget(opts.LogCaps.Rng),
		hitLog:      observability.NewBudget(opts.LogCaps.HitCalc),
		hpChangeLog: observability.NewBudget(opts.LogCaps.HpChange),
		actionLog:   observability.NewGlobalBudget(opts.LogCaps.ActionEnd),
	}

	var failed []string
	hp, ok := hpsync.New(b, tracker, observability.NewBudget(opts.LogCaps.HpSync), logger)
	if !ok {
		failed = append(failed, "hpsync")
	}
	e.hp = hp
	if !e.aggregator.Attach(b) {
		failed = append(failed, "hpkill")
	}
	if !e.skills.Attach(b) {
		failed = append(failed, "skills")
	}
	if !e.damageStats.Attach(b) {
		failed = append(failed, "damage stats")
	}
	if !e.rngStats.Attach(b) {
		failed = append(failed, "rng stats")
	}
	if !e.hitStats.Attach(b) {
		failed = append(failed, "hit stats")
	}
	if !b.RegisterHpChange(e.logHpChange) {
		failed = append(failed, "hp change log")
	}
	if opts.TraceEvents && !stats.NewTraceLogger(logger).Attach(b) {
		failed = append(failed, "trace logger")
	}
	if len(failed) > 0 {
		return nil, fmt.Errorf("registering engine modules: %w: %v", ErrHandlerCapacity, failed)
	}

	logger.Info("engine ready",
		zap.Int("damage_modifiers", opts.DamageModifiers),
		zap.Int("post_battle_modifiers", opts.PostBattleModifiers),
		zap.Int("unit_states", opts.UnitStates),
	)
	return e, nil
}

// ErrHandlerCapacity is wrapped by New when the bus is too small for the built-in modules.
var ErrHandlerCapacity = errors.New("bus handler capacity too small")

// enter claims the single-call slot for name.
func (e *Engine) enter(name string) bool {
	if e.busy.CompareAndSwap(false, true) {
		return true
	}
	e.violations.Add(1)
	e.logger.Error("engine: overlapping instrumentation call dropped", zap.String("entry_point", name))
	return false
}

func (e *Engine) leave() {
	e.busy.Store(false)
}

func (e *Engine) logHpChange(ev event.HpChange) {
	if !ev.Turn.Map.Active {
		return
	}
	n, ok := e.hpChangeLog.Take(ev.Turn.Map.Generation)
	if !ok {
		return
	}
	e.logger.Debug("hp change",
		zap.Stringer("source", ev.Source),
		zap.Stringer("target", ev.Target),
		zap.Int("amount", ev.Amount),
		zap.Uint32("flags", ev.Flags),
		zap.Uint32("generation", ev.Turn.Map.Generation),
		zap.Stringer("side", ev.Turn.Side),
		zap.Uint32("side_turn", ev.Turn.SideTurnIndex),
		zap.Int("n", n),
	)
}

// OnMapStart is called on every tick of the map-start site. A new root
// begins a new map.
//
// Postcondition: Returns true if MapBegin was dispatched.
func (e *Engine) OnMapStart(root event.Identity, side event.Side) bool {
	if !e.enter("OnMapStart") {
		return false
	}
	defer e.leave()
	return e.tracker.OnMapStart(root, side)
}

// OnMapEnd ends the active map.
func (e *Engine) OnMapEnd(root event.Identity, side event.Side) {
	if !e.enter("OnMapEnd") {
		return
	}
	defer e.leave()
	e.tracker.OnMapEnd(root, side)
}

// OnTurnBegin starts a turn for side.
func (e *Engine) OnTurnBegin(side event.Side) {
	if !e.enter("OnTurnBegin") {
		return
	}
	defer e.leave()
	e.tracker.OnTurnBegin(side)
}

// OnTurnEnd ends the current turn.
func (e *Engine) OnTurnEnd(seq event.Identity) {
	if !e.enter("OnTurnEnd") {
		return
	}
	defer e.leave()
	e.tracker.OnTurnEnd(seq)
}

// OnKill reports a kill record. Records with no flags and no dead slots are ignored.
func (e *Engine) OnKill(rec event.KillRecord) {
	if !e.enter("OnKill") {
		return
	}
	defer e.leave()
	e.tracker.OnKill(rec)
}

// OnUnitHpSync reports the absolute HP of unit after the game wrote it.
func (e *Engine) OnUnitHpSync(unit event.Identity, hp int) {
	if !e.enter("OnUnitHpSync") {
		return
	}
	defer e.leave()
	e.hp.Sync(unit, hp)
}

// OnRngCall reports one call into the game's RNG.
func (e *Engine) OnRngCall(state event.Identity, raw, bound, result uint32) {
	if !e.enter("OnRngCall") {
		return
	}
	defer e.leave()
	ev := event.RngCall{State: state, Raw: raw, Bound: bound, Result: result, Turn: e.turn()}
	if ev.Turn.Map.Active {
		if n, ok := e.rngLog.Take(ev.Turn.Map.Generation); ok {
			e.logger.Debug("rng call",
				zap.Stringer("state", state),
				zap.Uint32("raw", raw),
				zap.Uint32("bound", bound),
				zap.Uint32("result", result),
				zap.Stringer("side", ev.Turn.Side),
				zap.Int("n", n),
			)
		}
	}
	e.bus.DispatchRngCall(ev)
}

// OnHitCalc reports one hit roll.
func (e *Engine) OnHitCalc(baseRate, result int) {
	if !e.enter("OnHitCalc") {
		return
	}
	defer e.leave()
	ev := event.HitCalc{BaseRate: baseRate, Result: result, Turn: e.turn()}
	if ev.Turn.Map.Active {
		if n, ok := e.hitLog.Take(ev.Turn.Map.Generation); ok {
			e.logger.Debug("hit calc",
				zap.Int("base_rate", baseRate),
				zap.Int("result", result),
				zap.Stringer("side", ev.Turn.Side),
				zap.Uint32("side_turn", ev.Turn.SideTurnIndex),
				zap.Int("n", n),
			)
		}
	}
	e.bus.DispatchHitCalc(ev)
}

// OnUnitLevelUp reports a unit reaching level.
func (e *Engine) OnUnitLevelUp(unit event.Identity, level uint8) {
	if !e.enter("OnUnitLevelUp") {
		return
	}
	defer e.leave()
	ev := event.LevelUp{Unit: unit, Level: level, Turn: e.turn()}
	e.logger.Info("unit level up", zap.Stringer("unit", unit), zap.Uint8("level", level), zap.Stringer("side", ev.Turn.Side))
	e.bus.DispatchLevelUp(ev)
}

// OnUnitSkillLearn reports the outcome of adding skillID to unit.
func (e *Engine) OnUnitSkillLearn(unit event.Identity, skillID, flags uint16, result int) {
	if !e.enter("OnUnitSkillLearn") {
		return
	}
	defer e.leave()
	ev := event.SkillLearn{Unit: unit, SkillID: skillID, Flags: flags, Result: result, Turn: e.turn()}
	e.logger.Debug("unit skill learn",
		zap.Stringer("unit", unit),
		zap.Uint16("skill", skillID),
		zap.Uint16("flags", flags),
		zap.Int("result", result),
	)
	e.bus.DispatchSkillLearn(ev)
}

// OnItemGain reports a unit receiving an item.
func (e *Engine) OnItemGain(seq, unit, itemArg, mode event.Identity, result int) {
	if !e.enter("OnItemGain") {
		return
	}
	defer e.leave()
	ev := event.ItemGain{Seq: seq, Unit: unit, ItemArg: itemArg, ModeCtx: mode, Result: result, Turn: e.turn()}
	e.logger.Debug("item gain",
		zap.Stringer("seq", seq),
		zap.Stringer("unit", unit),
		zap.Stringer("item", itemArg),
		zap.Int("result", result),
	)
	e.bus.DispatchItemGain(ev)
}

// OnActionEnd logs the end of a unit action. Nothing is dispatched.
func (e *Engine) OnActionEnd(inst, seqMap, cmdData event.Identity, cmdID, sideRaw uint32, side event.Side, unk28 uint32) {
	if !e.enter("OnActionEnd") {
		return
	}
	defer e.leave()
	n, ok := e.actionLog.Take(0)
	if !ok {
		return
	}
	tc := e.tracker.TurnContext(side)
	e.logger.Info("action end",
		zap.Stringer("inst", inst),
		zap.Stringer("seq_map", seqMap),
		zap.Stringer("cmd_data", cmdData),
		zap.Uint32("cmd_id", cmdID),
		zap.Uint32("side_raw", sideRaw),
		zap.Stringer("side", side),
		zap.Uint32("unk28", unk28),
		zap.Uint32("generation", tc.Map.Generation),
		zap.Uint32("side_turn", tc.SideTurnIndex),
		zap.Int("n", n),
	)
}

// ApplyDamageModifiers runs base through the damage pipeline.
//
// Postcondition: Returns a value >= 0. A dropped overlapping call returns max(0, base).
func (e *Engine) ApplyDamageModifiers(root, calc, attacker, defender event.Identity, base int) int {
	if !e.enter("ApplyDamageModifiers") {
		return max(0, base)
	}
	defer e.leave()
	ctx := modifier.DamageContext{
		Turn:       e.turn(),
		Root:       root,
		Calc:       calc,
		Attacker:   attacker,
		Defender:   defender,
		BaseDamage: base,
	}
	return e.damage.Apply(ctx, base)
}

// ApplyPostBattleHp runs one HP slot through the post-battle pipeline.
//
// Postcondition: A slot outside [0, 4) and a dropped overlapping call return hp unchanged.
func (e *Engine) ApplyPostBattleHp(seq event.Identity, mode, slot, hp int) int {
	if !e.enter("ApplyPostBattleHp") {
		return hp
	}
	defer e.leave()
	return e.applyPostBattle(seq, mode, slot, hp, e.turn())
}

// ApplyPostBattleHpSlots runs every slot of a post-battle result through the
// pipeline independently, in slot order.
func (e *Engine) ApplyPostBattleHpSlots(seq event.Identity, mode int, hp [modifier.SlotCount]int) [modifier.SlotCount]int {
	if !e.enter("ApplyPostBattleHpSlots") {
		return hp
	}
	defer e.leave()
	tc := e.turn()
	var out [modifier.SlotCount]int
	for slot, v := range hp {
		out[slot] = e.applyPostBattle(seq, mode, slot, v, tc)
	}
	return out
}

func (e *Engine) applyPostBattle(seq event.Identity, mode, slot, hp int, tc event.TurnContext) int {
	if slot < 0 || slot >= modifier.SlotCount {
		e.logger.Warn("post-battle hp slot out of range", zap.Int("slot", slot))
		return hp
	}
	ctx := modifier.PostBattleContext{Turn: tc, Seq: seq, Slot: slot, Mode: mode, OriginalHP: hp}
	out := e.postBattle.Apply(ctx, hp)
	if out != hp {
		e.logger.Debug("post-battle hp modified", zap.Int("slot", slot), zap.Int("old_hp", hp), zap.Int("new_hp", out), zap.Int("mode", mode))
	}
	return out
}

// turn stamps events with the side holding the turn, or SideUnknown outside a map.
func (e *Engine) turn() event.TurnContext {
	return e.tracker.TurnContext(e.tracker.ActiveSide())
}

// RegisterDamageModifier appends fn to the damage pipeline.
//
// Postcondition: Returns false, and logs at Warn, if fn is nil or the pipeline is full.
func (e *Engine) RegisterDamageModifier(fn modifier.Func[modifier.DamageContext]) bool {
	return register(e.logger, e.damage, fn)
}

// RegisterPostBattleHpModifier appends fn to the post-battle HP pipeline.
//
// Postcondition: Returns false, and logs at Warn, if fn is nil or the pipeline is full.
func (e *Engine) RegisterPostBattleHpModifier(fn modifier.Func[modifier.PostBattleContext]) bool {
	return register(e.logger, e.postBattle, fn)
}

func register[C any](logger *zap.Logger, c *modifier.Chain[C], fn modifier.Func[C]) bool {
	if !c.Register(fn) {
		logger.Warn("modifier registration rejected",
			zap.String("pipeline", c.Name()),
			zap.Int("registered", c.Len()),
			zap.Int("capacity", c.Capacity()),
			zap.Bool("nil", fn == nil),
		)
		return false
	}
	logger.Debug("modifier registered", zap.String("pipeline", c.Name()), zap.Int("index", c.Len()))
	return true
}

// Session identifies this instance in logs.
func (e *Engine) Session() string { return e.session }

// Bus returns the event bus for registering handlers and publishing from inside them.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// MapContext returns a snapshot of the current map.
func (e *Engine) MapContext() event.MapContext { return e.tracker.MapContext() }

// Kills returns the current map's buffered kill records.
func (e *Engine) Kills() []event.KillRecord { return e.tracker.Kills() }

// Aggregator returns the HP/kill query surface.
func (e *Engine) Aggregator() *hpkill.Aggregator { return e.aggregator }

// Skills returns the per-map skill table.
func (e *Engine) Skills() *skills.Table { return e.skills }

// DamageStats returns the damage telemetry module.
func (e *Engine) DamageStats() *stats.DamageStats { return e.damageStats }

// RngStats returns the RNG telemetry module.
func (e *Engine) RngStats() *stats.RngStats { return e.rngStats }

// HitStats returns the hit telemetry module.
func (e *Engine) HitStats() *stats.HitStats { return e.hitStats }

// Violations counts entry-point calls dropped for overlapping another call.
func (e *Engine) Violations() uint64 { return e.violations.Load() }
