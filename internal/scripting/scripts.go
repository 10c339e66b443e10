package scripting

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/battlebus/internal/engine/event"
	"github.com/cory-johannsen/battlebus/internal/engine/modifier"
)

// ErrNotLoaded is returned when a modifier is requested before any script was loaded.
var ErrNotLoaded = errors.New("scripting: no scripts loaded")

// Scripts owns one sandboxed LState and turns its global functions into
// pipeline modifiers.
//
// Scripts is safe for concurrent use; calls into the VM are serialized.
type Scripts struct {
	mu     sync.Mutex
	L      *lua.LState
	limit  int
	logger *zap.Logger
}

// NewScripts creates a Scripts with no VM loaded.
//
// Precondition: instLimit >= 0; 0 uses DefaultInstructionLimit.
func NewScripts(instLimit int, logger *zap.Logger) *Scripts {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scripts{limit: effectiveLimit(instLimit), logger: logger}
}

// LoadDir creates a fresh sandboxed VM, registers the engine module, then
// executes every *.lua file in dir in lexicographic order. A previously
// loaded VM is replaced only if every file loads.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns an error naming the first file that failed.
func (s *Scripts) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q: %w", dir, err)
	}
	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	L := NewSandboxedState()
	s.RegisterModules(L)
	for _, path := range luaFiles {
		if err := withLimit(L, s.limit, func() error { return L.DoFile(path) }); err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q: %w", path, err)
		}
	}
	s.install(L)
	s.logger.Info("scripting: scripts loaded", zap.String("dir", dir), zap.Int("files", len(luaFiles)))
	return nil
}

// LoadString is LoadDir for a single in-memory chunk.
func (s *Scripts) LoadString(name, src string) error {
	L := NewSandboxedState()
	s.RegisterModules(L)
	if err := withLimit(L, s.limit, func() error { return L.DoString(src) }); err != nil {
		L.Close()
		return fmt.Errorf("scripting: loading %q: %w", name, err)
	}
	s.install(L)
	return nil
}

func (s *Scripts) install(L *lua.LState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L != nil {
		s.L.Close()
	}
	s.L = L
}

// Close releases the VM.
func (s *Scripts) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L != nil {
		s.L.Close()
		s.L = nil
	}
}

// Loaded reports whether a VM is installed.
func (s *Scripts) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.L != nil
}

// HasHook reports whether hook is a global function in the loaded VM.
func (s *Scripts) HasHook(hook string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L == nil {
		return false
	}
	_, ok := s.L.GetGlobal(hook).(*lua.LFunction)
	return ok
}

// CallHook calls the named Lua global function. Returns LNil if no VM
// is loaded or the hook is not defined. Lua runtime errors, including an
// exhausted instruction budget, are logged at Warn level and never propagated.
//
// Postcondition: Returns the first return value of the hook, or LNil.
func (s *Scripts) CallHook(hook string, args ...lua.LValue) lua.LValue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callLocked(hook, args...)
}

// callLocked requires s.mu to be held.
func (s *Scripts) callLocked(hook string, args ...lua.LValue) lua.LValue {
	if s.L == nil {
		return lua.LNil
	}
	L := s.L
	fn := L.GetGlobal(hook)
	if fn == lua.LNil {
		return lua.LNil
	}
	err := withLimit(L, s.limit, func() error {
		return L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	})
	if err != nil {
		s.logger.Warn("scripting: Lua runtime error", zap.String("hook", hook), zap.Error(err))
		return lua.LNil
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret
}

// DamageModifier wraps hook as a damage modifier called as hook(ctx, current).
// An undefined hook passes the running value through.
//
// Postcondition: Returns ErrNotLoaded if no VM is installed.
func (s *Scripts) DamageModifier(hook string) (modifier.Func[modifier.DamageContext], error) {
	if !s.Loaded() {
		return nil, ErrNotLoaded
	}
	s.warnIfUndefined(hook)
	return func(ctx modifier.DamageContext, current int) int {
		return s.apply(hook, current, func(L *lua.LState, t *lua.LTable) {
			setTurn(L, t, ctx.Turn)
			L.SetField(t, "base", lua.LNumber(ctx.BaseDamage))
			L.SetField(t, "attacker", identity(ctx.Attacker))
			L.SetField(t, "defender", identity(ctx.Defender))
		})
	}, nil
}

// PostBattleHpModifier wraps hook as a post-battle HP modifier called as
// hook(ctx, current). An undefined hook passes the running value through.
//
// Postcondition: Returns ErrNotLoaded if no VM is installed.
func (s *Scripts) PostBattleHpModifier(hook string) (modifier.Func[modifier.PostBattleContext], error) {
	if !s.Loaded() {
		return nil, ErrNotLoaded
	}
	s.warnIfUndefined(hook)
	return func(ctx modifier.PostBattleContext, current int) int {
		return s.apply(hook, current, func(L *lua.LState, t *lua.LTable) {
			setTurn(L, t, ctx.Turn)
			L.SetField(t, "slot", lua.LNumber(ctx.Slot))
			L.SetField(t, "mode", lua.LNumber(ctx.Mode))
			L.SetField(t, "original", lua.LNumber(ctx.OriginalHP))
		})
	}, nil
}

func (s *Scripts) warnIfUndefined(hook string) {
	if !s.HasHook(hook) {
		s.logger.Warn("scripting: hook not defined; modifier passes through", zap.String("hook", hook))
	}
}

// apply calls hook with a context table and the running value. A nil result
// passes current through; any other non-number, NaN or infinity is logged and
// ignored. Finite results are truncated toward zero and saturate at the int range.
func (s *Scripts) apply(hook string, current int, fill func(*lua.LState, *lua.LTable)) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L == nil {
		return current
	}
	t := s.L.NewTable()
	fill(s.L, t)
	ret := s.callLocked(hook, t, lua.LNumber(current))
	switch v := ret.(type) {
	case lua.LNumber:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			s.logger.Warn("scripting: hook returned a non-finite number",
				zap.String("hook", hook),
				zap.Float64("value", f),
			)
			return current
		}
		return saturateInt(f)
	case *lua.LNilType:
		return current
	default:
		s.logger.Warn("scripting: hook returned a non-number",
			zap.String("hook", hook),
			zap.String("type", ret.Type().String()),
		)
		return current
	}
}

// saturateInt converts a finite f to int, clamping to [math.MinInt, math.MaxInt].
func saturateInt(f float64) int {
	switch {
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= math.MinInt:
		return math.MinInt
	}
	return int(f)
}

func setTurn(L *lua.LState, t *lua.LTable, tc event.TurnContext) {
	L.SetField(t, "generation", lua.LNumber(tc.Map.Generation))
	L.SetField(t, "side", lua.LNumber(tc.Side))
	L.SetField(t, "side_turn", lua.LNumber(tc.SideTurnIndex))
	L.SetField(t, "total_turns", lua.LNumber(tc.Map.TotalTurns))
}

func identity(id event.Identity) lua.LNumber {
	return lua.LNumber(id)
}
