// Package bus provides the engine's synchronous, capacity-bounded event bus.
//
// Each event kind has its own append-only handler list. Dispatch invokes the
// handlers of one kind in registration order and ignores anything they do
// besides side effects. There is no removal and no teardown.
//
// A Bus is not safe for concurrent use. The owning Engine guarantees a single
// caller at a time.
package bus

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/event"
)

// Capacities holds the maximum number of handlers per event kind.
type Capacities struct {
	MapBegin   int
	MapEnd     int
	TurnBegin  int
	TurnEnd    int
	Kill       int
	HpChange   int
	RngCall    int
	HitCalc    int
	LevelUp    int
	SkillLearn int
	ItemGain   int
}

// DefaultCapacities returns the stock handler limits.
func DefaultCapacities() Capacities {
	return Capacities{
		MapBegin:   8,
		MapEnd:     8,
		TurnBegin:  8,
		TurnEnd:    8,
		Kill:       8,
		HpChange:   16,
		RngCall:    4,
		HitCalc:    8,
		LevelUp:    4,
		SkillLearn: 4,
		ItemGain:   4,
	}
}

// Bus fans events out to registered handlers.
type Bus struct {
	logger *zap.Logger

	mapBegin   *handlerList[event.MapContext]
	mapEnd     *handlerList[event.MapContext]
	turnBegin  *handlerList[event.TurnContext]
	turnEnd    *handlerList[event.TurnContext]
	kill       *handlerList[event.Kill]
	hpChange   *handlerList[event.HpChange]
	rngCall    *handlerList[event.RngCall]
	hitCalc    *handlerList[event.HitCalc]
	levelUp    *handlerList[event.LevelUp]
	skillLearn *handlerList[event.SkillLearn]
	itemGain   *handlerList[event.ItemGain]
}

// New creates an empty Bus with the given per-kind capacities.
//
// Precondition: every capacity should be >= 0; negative values are treated as 0.
// Postcondition: Returns a Bus with no handlers registered.
func New(caps Capacities, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger:     logger,
		mapBegin:   newHandlerList[event.MapContext](event.KindMapBegin, caps.MapBegin, logger),
		mapEnd:     newHandlerList[event.MapContext](event.KindMapEnd, caps.MapEnd, logger),
		turnBegin:  newHandlerList[event.TurnContext](event.KindTurnBegin, caps.TurnBegin, logger),
		turnEnd:    newHandlerList[event.TurnContext](event.KindTurnEnd, caps.TurnEnd, logger),
		kill:       newHandlerList[event.Kill](event.KindKill, caps.Kill, logger),
		hpChange:   newHandlerList[event.HpChange](event.KindHpChange, caps.HpChange, logger),
		rngCall:    newHandlerList[event.RngCall](event.KindRngCall, caps.RngCall, logger),
		hitCalc:    newHandlerList[event.HitCalc](event.KindHitCalc, caps.HitCalc, logger),
		levelUp:    newHandlerList[event.LevelUp](event.KindLevelUp, caps.LevelUp, logger),
		skillLearn: newHandlerList[event.SkillLearn](event.KindSkillLearn, caps.SkillLearn, logger),
		itemGain:   newHandlerList[event.ItemGain](event.KindItemGain, caps.ItemGain, logger),
	}
}

// HandlerCount returns how many handlers are registered for kind.
func (b *Bus) HandlerCount(kind event.Kind) int {
	if l := b.list(kind); l != nil {
		return l.len()
	}
	return 0
}

// Capacity returns the handler limit for kind.
func (b *Bus) Capacity(kind event.Kind) int {
	if l := b.list(kind); l != nil {
		return l.capacityOf()
	}
	return 0
}

func (b *Bus) list(kind event.Kind) interface {
	len() int
	capacityOf() int
} {
	switch kind {
	case event.KindMapBegin:
		return b.mapBegin
	case event.KindMapEnd:
		return b.mapEnd
	case event.KindTurnBegin:
		return b.turnBegin
	case event.KindTurnEnd:
		return b.turnEnd
	case event.KindKill:
		return b.kill
	case event.KindHpChange:
		return b.hpChange
	case event.KindRngCall:
		return b.rngCall
	case event.KindHitCalc:
		return b.hitCalc
	case event.KindLevelUp:
		return b.levelUp
	case event.KindSkillLearn:
		return b.skillLearn
	case event.KindItemGain:
		return b.itemGain
	}
	return nil
}

// Registration. Each returns false without mutating anything when fn is nil,
// the list is full, or a dispatch of the same kind is in progress.

func (b *Bus) RegisterMapBegin(fn func(event.MapContext)) bool   { return b.mapBegin.register(fn) }
func (b *Bus) RegisterMapEnd(fn func(event.MapContext)) bool     { return b.mapEnd.register(fn) }
func (b *Bus) RegisterTurnBegin(fn func(event.TurnContext)) bool { return b.turnBegin.register(fn) }
func (b *Bus) RegisterTurnEnd(fn func(event.TurnContext)) bool   { return b.turnEnd.register(fn) }
func (b *Bus) RegisterKill(fn func(event.Kill)) bool             { return b.kill.register(fn) }
func (b *Bus) RegisterHpChange(fn func(event.HpChange)) bool     { return b.hpChange.register(fn) }
func (b *Bus) RegisterRngCall(fn func(event.RngCall)) bool       { return b.rngCall.register(fn) }
func (b *Bus) RegisterHitCalc(fn func(event.HitCalc)) bool       { return b.hitCalc.register(fn) }
func (b *Bus) RegisterLevelUp(fn func(event.LevelUp)) bool       { return b.levelUp.register(fn) }
func (b *Bus) RegisterSkillLearn(fn func(event.SkillLearn)) bool { return b.skillLearn.register(fn) }
func (b *Bus) RegisterItemGain(fn func(event.ItemGain)) bool     { return b.itemGain.register(fn) }

// Dispatch. Each invokes every handler of that kind in registration order.

func (b *Bus) DispatchMapBegin(ev event.MapContext)   { b.mapBegin.dispatch(ev) }
func (b *Bus) DispatchMapEnd(ev event.MapContext)     { b.mapEnd.dispatch(ev) }
func (b *Bus) DispatchTurnBegin(ev event.TurnContext) { b.turnBegin.dispatch(ev) }
func (b *Bus) DispatchTurnEnd(ev event.TurnContext)   { b.turnEnd.dispatch(ev) }
func (b *Bus) DispatchKill(ev event.Kill)             { b.kill.dispatch(ev) }
func (b *Bus) DispatchHpChange(ev event.HpChange)     { b.hpChange.dispatch(ev) }
func (b *Bus) DispatchRngCall(ev event.RngCall)       { b.rngCall.dispatch(ev) }
func (b *Bus) DispatchHitCalc(ev event.HitCalc)       { b.hitCalc.dispatch(ev) }
func (b *Bus) DispatchLevelUp(ev event.LevelUp)       { b.levelUp.dispatch(ev) }
func (b *Bus) DispatchSkillLearn(ev event.SkillLearn) { b.skillLearn.dispatch(ev) }
func (b *Bus) DispatchItemGain(ev event.ItemGain)     { b.itemGain.dispatch(ev) }
