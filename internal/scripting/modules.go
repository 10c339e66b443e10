package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/event"
)

// RegisterModules installs the engine global into L:
//
//	engine.log.debug(msg) / engine.log.info(msg) / engine.log.warn(msg)
//	engine.SIDE_UNKNOWN, engine.SIDE_COUNT
//	engine.side_name(n)
//
// Precondition: L must be from NewSandboxedState.
// Postcondition: engine global is defined in L.
func (s *Scripts) RegisterModules(L *lua.LState) {
	engine := L.NewTable()

	logTbl := L.NewTable()
	logFn := func(write func(string, ...zap.Field)) lua.LGFunction {
		return func(L *lua.LState) int {
			write(L.CheckString(1), zap.String("source", "lua"))
			return 0
		}
	}
	L.SetField(logTbl, "debug", L.NewFunction(logFn(s.logger.Debug)))
	L.SetField(logTbl, "info", L.NewFunction(logFn(s.logger.Info)))
	L.SetField(logTbl, "warn", L.NewFunction(logFn(s.logger.Warn)))
	L.SetField(engine, "log", logTbl)

	L.SetField(engine, "SIDE_UNKNOWN", lua.LNumber(event.SideUnknown))
	L.SetField(engine, "SIDE_COUNT", lua.LNumber(event.SideCount))
	L.SetField(engine, "side_name", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(event.SideFromRaw(L.CheckInt(1)).String()))
		return 1
	}))

	L.SetGlobal("engine", engine)
}
