package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the engine.* Lua tables into L:
//
//	engine.log.debug|info|warn|error(msg)
//	engine.dice.roll(expr)      -> {total, dice, modifier, expression}
//	engine.dice.between(lo, hi) -> integer in [lo, hi]
//
// Precondition: L must be from NewSandboxedState; scope names the VM in logs.
// Postcondition: engine global is defined in L.
func (m *Manager) RegisterModules(L *lua.LState, scope string) {
	engine := L.NewTable()
	engine.RawSetString("log", m.logModule(L, scope))
	engine.RawSetString("dice", m.diceModule(L))
	L.SetGlobal("engine", engine)
}

func (m *Manager) logModule(L *lua.LState, scope string) *lua.LTable {
	logger := m.logger.With(zap.String("script_scope", scope))
	mod := L.NewTable()
	for name, fn := range map[string]func(string, ...zap.Field){
		"debug": logger.Debug,
		"info":  logger.Info,
		"warn":  logger.Warn,
		"error": logger.Error,
	} {
		L.SetField(mod, name, L.NewFunction(func(L *lua.LState) int {
			fn(L.CheckString(1))
			return 0
		}))
	}
	return mod
}

func (m *Manager) diceModule(L *lua.LState) *lua.LTable {
	mod := L.NewTable()
	L.SetField(mod, "roll", L.NewFunction(func(L *lua.LState) int {
		res, err := m.roller.RollExpr(L.CheckString(1))
		if err != nil {
			L.ArgError(1, err.Error())
			return 0
		}
		sum := 0
		for _, d := range res.Dice {
			sum += d
		}
		t := L.NewTable()
		t.RawSetString("total", lua.LNumber(res.Total()))
		t.RawSetString("dice", lua.LNumber(sum))
		t.RawSetString("modifier", lua.LNumber(res.Modifier))
		t.RawSetString("expression", lua.LString(res.Expression))
		L.Push(t)
		return 1
	}))
	L.SetField(mod, "between", L.NewFunction(func(L *lua.LState) int {
		lo, hi := L.CheckInt(1), L.CheckInt(2)
		if lo > hi {
			L.ArgError(2, "hi must be >= lo")
			return 0
		}
		L.Push(lua.LNumber(m.roller.Between("script", lo, hi)))
		return 1
	}))
	return mod
}
