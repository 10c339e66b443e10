package bus

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/event"
)

// handlerList is the append-only, capacity-bounded handler storage for one kind.
type handlerList[E any] struct {
	kind        event.Kind
	capacity    int
	handlers    []func(E)
	dispatching bool
	warnedFull  bool
	logger      *zap.Logger
}

func newHandlerList[E any](kind event.Kind, capacity int, logger *zap.Logger) *handlerList[E] {
	if capacity < 0 {
		capacity = 0
	}
	return &handlerList[E]{
		kind:     kind,
		capacity: capacity,
		handlers: make([]func(E), 0, capacity),
		logger:   logger,
	}
}

func (l *handlerList[E]) len() int        { return len(l.handlers) }
func (l *handlerList[E]) capacityOf() int { return l.capacity }

// register appends fn.
//
// Registering while the same kind is dispatching is rejected: the handler set
// observed by an in-flight dispatch never changes.
//
// Postcondition: Returns true iff fn was appended.
func (l *handlerList[E]) register(fn func(E)) bool {
	if fn == nil {
		return false
	}
	if l.dispatching {
		l.logger.Error("bus: registration during dispatch of the same kind rejected",
			zap.Stringer("kind", l.kind),
		)
		return false
	}
	if len(l.handlers) >= l.capacity {
		if !l.warnedFull {
			l.warnedFull = true
			l.logger.Warn("bus: handler capacity full",
				zap.Stringer("kind", l.kind),
				zap.Int("capacity", l.capacity),
			)
		}
		return false
	}
	l.handlers = append(l.handlers, fn)
	l.logger.Debug("bus: registered handler",
		zap.Stringer("kind", l.kind),
		zap.Int("index", len(l.handlers)),
	)
	return true
}

// dispatch calls every handler in registration order.
//
// A nested dispatch of the same kind from inside one of its own handlers is
// dropped; handlers may only trigger dispatches of other kinds.
func (l *handlerList[E]) dispatch(ev E) {
	if l.dispatching {
		l.logger.Error("bus: nested dispatch of the same kind dropped",
			zap.Stringer("kind", l.kind),
		)
		return
	}
	l.dispatching = true
	defer func() { l.dispatching = false }()
	for _, h := range l.handlers {
		h(ev)
	}
}
