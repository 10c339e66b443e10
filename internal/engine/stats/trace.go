package stats

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/bus"
	"github.com/cory-johannsen/battlebus/internal/engine/event"
)

// TraceLogger writes one debug line per MapBegin, Kill, HpChange and
// SkillLearn. It keeps no state.
type TraceLogger struct {
	logger *zap.Logger
}

// NewTraceLogger creates a TraceLogger.
func NewTraceLogger(logger *zap.Logger) *TraceLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TraceLogger{logger: logger.Named("trace")}
}

// Attach registers the logger's handlers.
func (l *TraceLogger) Attach(b *bus.Bus) bool {
	ok := b.RegisterMapBegin(func(mc event.MapContext) {
		l.logger.Debug("map begin", zap.Stringer("root", mc.Root), zap.Uint32("generation", mc.Generation))
	})
	ok = b.RegisterKill(func(ev event.Kill) {
		l.logger.Debug("kill",
			zap.Stringer("dead0", ev.Record.Dead0),
			zap.Stringer("dead1", ev.Record.Dead1),
			zap.Stringer("side", ev.Turn.Side),
		)
	}) && ok
	ok = b.RegisterHpChange(func(ev event.HpChange) {
		l.logger.Debug("hp change", zap.Stringer("target", ev.Target), zap.Int("amount", ev.Amount), zap.Stringer("side", ev.Turn.Side))
	}) && ok
	ok = b.RegisterSkillLearn(func(ev event.SkillLearn) {
		l.logger.Debug("skill learn", zap.Stringer("unit", ev.Unit), zap.Uint16("skill", ev.SkillID), zap.Int("result", ev.Result))
	}) && ok
	return ok
}
