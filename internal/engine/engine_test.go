package engine_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/battlebus/internal/config"
	"github.com/cory-johannsen/battlebus/internal/engine"
	"github.com/cory-johannsen/battlebus/internal/engine/event"
	"github.com/cory-johannsen/battlebus/internal/engine/hpkill"
	"github.com/cory-johannsen/battlebus/internal/engine/modifier"
)

func newEngine(t *testing.T) (*engine.Engine, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	e, err := engine.New(engine.DefaultOptions(), zap.New(core))
	require.NoError(t, err)
	return e, logs
}

func TestNew_SessionsAreDistinct(t *testing.T) {
	a, _ := newEngine(t)
	b, _ := newEngine(t)
	assert.NotEmpty(t, a.Session())
	assert.NotEqual(t, a.Session(), b.Session())
}

func TestNew_FailsWhenBusTooSmall(t *testing.T) {
	opts := engine.DefaultOptions()
	opts.Handlers.MapBegin = 2
	_, err := engine.New(opts, nil)
	assert.ErrorIs(t, err, engine.ErrHandlerCapacity)
}

func TestNewOptions_FromDefaultConfig(t *testing.T) {
	assert.Equal(t, engine.DefaultOptions(), engine.NewOptions(config.Default()))
}

func TestEngine_FullMapScenario(t *testing.T) {
	e, _ := newEngine(t)
	const (
		root   = event.Identity(0x0800_1000)
		unitA  = event.Identity(0x0810_0000)
		unitB  = event.Identity(0x0810_0200)
		victim = event.Identity(0x0810_0400)
	)

	assert.True(t, e.OnMapStart(root, event.Side0))
	assert.False(t, e.OnMapStart(root, event.Side0))
	e.OnUnitHpSync(unitA, 30)
	e.OnUnitHpSync(unitB, 25)

	e.OnTurnBegin(event.Side0)
	e.OnUnitHpSync(unitB, 18)
	e.OnHitCalc(80, 1)
	e.OnHitCalc(80, 0)
	e.OnRngCall(0x1, 0xDEADBEEF, 100, 42)
	e.OnKill(event.KillRecord{Seq: 0x1, Dead0: victim})
	e.OnTurnEnd(0x1)

	e.OnTurnBegin(event.Side1)
	e.OnUnitHpSync(unitA, 21)
	e.OnUnitHpSync(unitB, 20)
	e.OnTurnEnd(0x1)
	e.OnMapEnd(root, event.Side1)

	agg := e.Aggregator()
	s0, _ := agg.SideStatsFor(event.Side0)
	s1, _ := agg.SideStatsFor(event.Side1)
	assert.Equal(t, hpkill.SideStats{DamageDealt: 7}, s0)
	assert.Equal(t, hpkill.SideStats{DamageDealt: 9, HealingDone: 2}, s1)
	assert.Equal(t, [event.SideCount]uint32{1, 0, 0, 0}, agg.KillsBySide())

	b, ok := agg.QueryUnit(unitB)
	require.True(t, ok)
	assert.Equal(t, hpkill.UnitStats{Unit: unitB, DamageTaken: 7, HealingReceived: 2}, b)

	mc := e.MapContext()
	assert.Equal(t, uint32(1), mc.Generation)
	assert.Equal(t, uint32(2), mc.TotalTurns)
	assert.Equal(t, uint32(1), mc.KillEvents)
	assert.False(t, mc.Active)

	hit := e.HitStats().Snapshot()
	assert.Equal(t, uint32(2), hit.BySide[0].Attempts)
	assert.Equal(t, uint32(1), hit.BySide[0].Hits)
	assert.Equal(t, uint32(1), e.RngStats().Snapshot().CallsPerSide[0])
	assert.Equal(t, uint32(1), e.DamageStats().Snapshot().Sides[0].Kills)
	assert.Equal(t, uint64(0), e.Violations())
}

func TestEngine_NewMapResetsAggregates(t *testing.T) {
	e, _ := newEngine(t)
	e.OnMapStart(0x1000, event.Side0)
	e.OnTurnBegin(event.Side0)
	e.OnUnitHpSync(0x10, 10)
	e.OnUnitHpSync(0x10, 5)
	e.OnMapEnd(0x1000, event.Side0)

	e.OnMapStart(0x2000, event.Side0)
	e.OnTurnBegin(event.Side0)
	e.OnUnitHpSync(0x10, 3)

	s0, _ := e.Aggregator().SideStatsFor(event.Side0)
	assert.Equal(t, 0, s0.DamageDealt, "baseline re-recorded after a new map")
	assert.Equal(t, uint32(2), e.MapContext().Generation)
}

func TestEngine_EventsOutsideMapAreUnattributed(t *testing.T) {
	e, _ := newEngine(t)
	var sides []event.Side
	require.True(t, e.Bus().RegisterHpChange(func(ev event.HpChange) { sides = append(sides, ev.Turn.Side) }))
	e.OnTurnBegin(event.Side2)
	e.OnUnitHpSync(0x10, 10)
	e.OnUnitHpSync(0x10, 4)
	assert.Equal(t, []event.Side{event.SideUnknown}, sides)
	assert.Equal(t, [event.SideCount]hpkill.SideStats{}, e.Aggregator().SideStats())
}

func TestEngine_DamagePipeline(t *testing.T) {
	e, _ := newEngine(t)
	assert.Equal(t, 0, e.ApplyDamageModifiers(0, 0, 0, 0, -5))

	require.True(t, e.RegisterDamageModifier(modifier.Flat[modifier.DamageContext](2)))
	require.True(t, e.RegisterDamageModifier(func(_ modifier.DamageContext, cur int) int { return cur * 0 }))
	assert.Equal(t, 0, e.ApplyDamageModifiers(0, 0, 0, 0, 10))
}

func TestEngine_DamageContextCarriesTurnAndUnits(t *testing.T) {
	e, _ := newEngine(t)
	var got modifier.DamageContext
	require.True(t, e.RegisterDamageModifier(func(ctx modifier.DamageContext, cur int) int {
		got = ctx
		return cur
	}))
	e.OnMapStart(0x1000, event.Side0)
	e.OnTurnBegin(event.Side3)
	assert.Equal(t, 12, e.ApplyDamageModifiers(0xA, 0xB, 0xC, 0xD, 12))
	assert.Equal(t, event.Side3, got.Turn.Side)
	assert.Equal(t, event.Identity(0xC), got.Attacker)
	assert.Equal(t, event.Identity(0xD), got.Defender)
	assert.Equal(t, 12, got.BaseDamage)
}

func TestEngine_RegisterModifierCapacityLogged(t *testing.T) {
	opts := engine.DefaultOptions()
	opts.DamageModifiers = 1
	core, logs := observer.New(zapcore.WarnLevel)
	e, err := engine.New(opts, zap.New(core))
	require.NoError(t, err)

	assert.True(t, e.RegisterDamageModifier(modifier.Flat[modifier.DamageContext](1)))
	assert.False(t, e.RegisterDamageModifier(modifier.Flat[modifier.DamageContext](1)))
	assert.False(t, e.RegisterPostBattleHpModifier(nil))
	assert.Equal(t, 2, logs.FilterMessage("modifier registration rejected").Len())
}

func TestEngine_PostBattleSlots(t *testing.T) {
	e, _ := newEngine(t)
	require.True(t, e.RegisterPostBattleHpModifier(modifier.SlotPenalty(2, 5, 0)))

	out := e.ApplyPostBattleHpSlots(0x1, 0, [modifier.SlotCount]int{10, 10, 10, 0})
	assert.Equal(t, [modifier.SlotCount]int{10, 10, 5, 0}, out)

	assert.Equal(t, 10, e.ApplyPostBattleHp(0x1, 1, 2, 10), "non-zero mode untouched")
	assert.Equal(t, 7, e.ApplyPostBattleHp(0x1, 0, 9, 7), "out-of-range slot passes through")
	assert.Equal(t, 0, e.ApplyPostBattleHp(0x1, 0, 2, 3))
}

func TestEngine_NestedEntryPointDropped(t *testing.T) {
	e, logs := newEngine(t)
	require.True(t, e.Bus().RegisterMapBegin(func(event.MapContext) {
		e.OnTurnBegin(event.Side1)
	}))

	e.OnMapStart(0x1000, event.Side0)

	assert.Equal(t, uint64(1), e.Violations())
	assert.Equal(t, uint32(0), e.MapContext().TotalTurns)
	entries := logs.FilterMessage("engine: overlapping instrumentation call dropped").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "OnTurnBegin", entries[0].ContextMap()["entry_point"])

	e.OnTurnBegin(event.Side1)
	assert.Equal(t, uint32(1), e.MapContext().TotalTurns, "guard released after the outer call")
}

func TestEngine_NestedApplyPassesThrough(t *testing.T) {
	e, _ := newEngine(t)
	var nested int
	require.True(t, e.RegisterDamageModifier(func(_ modifier.DamageContext, cur int) int {
		nested = e.ApplyDamageModifiers(0, 0, 0, 0, -3)
		return cur + 1
	}))
	assert.Equal(t, 11, e.ApplyDamageModifiers(0, 0, 0, 0, 10))
	assert.Equal(t, 0, nested)
	assert.Equal(t, uint64(1), e.Violations())
}

func TestEngine_HandlersMayPublishThroughBus(t *testing.T) {
	e, _ := newEngine(t)
	var levels []uint8
	require.True(t, e.Bus().RegisterLevelUp(func(ev event.LevelUp) { levels = append(levels, ev.Level) }))
	require.True(t, e.Bus().RegisterTurnBegin(func(tc event.TurnContext) {
		e.Bus().DispatchLevelUp(event.LevelUp{Unit: 0x10, Level: 2, Turn: tc})
	}))
	e.OnMapStart(0x1000, event.Side0)
	e.OnTurnBegin(event.Side0)
	assert.Equal(t, []uint8{2}, levels)
	assert.Equal(t, uint64(0), e.Violations())
}

func TestEngine_ConcurrentCallsAreCountedNotRaced(t *testing.T) {
	e, _ := newEngine(t)
	release := make(chan struct{})
	entered := make(chan struct{})
	require.True(t, e.Bus().RegisterHitCalc(func(event.HitCalc) {
		close(entered)
		<-release
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.OnHitCalc(50, 1)
	}()
	<-entered
	e.OnHitCalc(50, 1)
	close(release)
	wg.Wait()

	assert.Equal(t, uint64(1), e.Violations())
	assert.Equal(t, uint32(1), e.HitStats().Snapshot().Total.Attempts)
}

func TestEngine_SkillLearnAndItemGain(t *testing.T) {
	e, logs := newEngine(t)
	var items []event.ItemGain
	require.True(t, e.Bus().RegisterItemGain(func(ev event.ItemGain) { items = append(items, ev) }))

	e.OnMapStart(0x1000, event.Side0)
	e.OnUnitSkillLearn(0x10, 0x000E, 0, 1)
	e.OnItemGain(0x1, 0x10, 0x77, 0x2, 1)
	e.OnUnitLevelUp(0x10, 5)
	e.OnActionEnd(0x1, 0x2, 0x3, 4, 0, event.Side0, 0)

	assert.True(t, e.Skills().UnitHasSkill(0x10, 0x000E))
	require.Len(t, items, 1)
	assert.Equal(t, event.Identity(0x77), items[0].ItemArg)
	assert.Equal(t, 1, logs.FilterMessage("action end").Len())
	assert.Equal(t, 1, logs.FilterMessage("unit level up").Len())
}

func TestEngine_ActionEndLogCapped(t *testing.T) {
	opts := engine.DefaultOptions()
	opts.LogCaps.ActionEnd = 2
	core, logs := observer.New(zapcore.InfoLevel)
	e, err := engine.New(opts, zap.New(core))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		e.OnActionEnd(0x1, 0, 0, 0, 0, event.Side0, 0)
	}
	assert.Equal(t, 2, logs.FilterMessage("action end").Len())
}

func TestEngine_ActionEndBudgetSpansMaps(t *testing.T) {
	opts := engine.DefaultOptions()
	opts.LogCaps.ActionEnd = 2
	core, logs := observer.New(zapcore.InfoLevel)
	e, err := engine.New(opts, zap.New(core))
	require.NoError(t, err)

	e.OnMapStart(0x1000, event.Side0)
	e.OnActionEnd(0x1, 0, 0, 0, 0, event.Side0, 0)
	e.OnActionEnd(0x1, 0, 0, 0, 0, event.Side0, 0)
	e.OnMapEnd(0x1000, event.Side0)

	e.OnMapStart(0x2000, event.Side0)
	e.OnActionEnd(0x1, 0, 0, 0, 0, event.Side0, 0)
	assert.Equal(t, 2, logs.FilterMessage("action end").Len(), "a new map does not refill the budget")
}

func TestEngine_RngLogBudgetPerGenerationAndActiveOnly(t *testing.T) {
	opts := engine.DefaultOptions()
	opts.LogCaps.Rng = 2
	core, logs := observer.New(zapcore.DebugLevel)
	e, err := engine.New(opts, zap.New(core))
	require.NoError(t, err)

	e.OnRngCall(0, 0, 10, 1)
	assert.Equal(t, 0, logs.FilterMessage("rng call").Len(), "no lines outside a map")

	e.OnMapStart(0x1000, event.Side0)
	for i := 0; i < 4; i++ {
		e.OnRngCall(0, 0, 10, 1)
	}
	assert.Equal(t, 2, logs.FilterMessage("rng call").Len())

	e.OnMapEnd(0x1000, event.Side0)
	e.OnMapStart(0x2000, event.Side0)
	e.OnRngCall(0, 0, 10, 1)
	assert.Equal(t, 3, logs.FilterMessage("rng call").Len())
}

func TestPropertyEngine_GenerationCountsRootChanges(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e, err := engine.New(engine.DefaultOptions(), nil)
		require.NoError(rt, err)
		roots := rapid.SliceOfN(rapid.Uint32Range(1, 5), 0, 40).Draw(rt, "roots")
		var last event.Identity
		var want uint32
		for _, r := range roots {
			id := event.Identity(r)
			if id != last {
				want++
				last = id
			}
			e.OnMapStart(id, event.Side0)
		}
		assert.Equal(rt, want, e.MapContext().Generation)
	})
}
