package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/crawl/internal/game/dice"
	"github.com/cory-johannsen/crawl/internal/game/encounter"
)

// globalKey is the reserved key for shared scripts loaded via LoadGlobal.
const globalKey = "__global__"

// GlobalDir is the directory under a script tree root holding shared scripts.
const GlobalDir = "global"

var _ encounter.ScriptRunner = (*Manager)(nil)

// ErrHookNotFound is returned by RunEventHook when neither the dungeon VM nor
// the global VM defines the hook.
var ErrHookNotFound = errors.New("script hook not found")

// vm is one sandboxed LState. An LState is single-threaded; mu serializes
// every load and call.
type vm struct {
	mu sync.Mutex
	L  *lua.LState
}

// Manager owns one sandboxed VM per dungeon plus an optional global VM, and
// dispatches hooks to them.
//
// Manager is safe for concurrent use. Calls into the same VM are serialized;
// different VMs run concurrently.
type Manager struct {
	mu     sync.RWMutex
	vms    map[string]*vm
	limit  int
	roller *dice.Roller
	logger *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithInstructionLimit sets the opcode budget of each load and hook call.
// Values <= 0 select DefaultInstructionLimit.
func WithInstructionLimit(n int) Option {
	return func(m *Manager) { m.limit = n }
}

// NewManager creates a Manager.
//
// Precondition: roller and logger must be non-nil; NewManager panics otherwise.
// Postcondition: Returns a non-nil Manager with no VMs loaded.
func NewManager(roller *dice.Roller, logger *zap.Logger, opts ...Option) *Manager {
	if roller == nil {
		panic("scripting.NewManager: roller must not be nil")
	}
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	m := &Manager{
		vms:    make(map[string]*vm),
		limit:  DefaultInstructionLimit,
		roller: roller,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadDungeon creates a sandboxed VM for dungeonID, registers the engine.*
// modules, then executes every *.lua file in dir in lexicographic order. A VM
// already loaded for dungeonID is replaced.
//
// Precondition: dungeonID must be non-empty; dir must be a readable directory.
// Postcondition: The VM is registered; returns an error on a Lua load failure.
func (m *Manager) LoadDungeon(dungeonID, dir string) error {
	if dungeonID == "" || dungeonID == GlobalDir {
		return fmt.Errorf("scripting: invalid dungeon id %q", dungeonID)
	}
	return m.loadInto(dungeonID, dir)
}

// LoadGlobal creates the global VM, used as the fallback for hooks a dungeon
// does not define.
//
// Precondition: dir must be a readable directory.
// Postcondition: The global VM is registered; returns an error on a Lua load failure.
func (m *Manager) LoadGlobal(dir string) error {
	return m.loadInto(globalKey, dir)
}

// LoadTree loads a script tree: root/global becomes the global VM and every
// other subdirectory root/<dungeon id> becomes that dungeon's VM.
//
// Postcondition: Returns the number of VMs loaded, or the first error.
func (m *Manager) LoadTree(root string) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, fmt.Errorf("scripting: reading script tree %q: %w", root, err)
	}
	loaded := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if e.Name() == GlobalDir {
			err = m.LoadGlobal(dir)
		} else {
			err = m.LoadDungeon(e.Name(), dir)
		}
		if err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}

func (m *Manager) loadInto(key, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q for %q: %w", dir, key, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	L := NewSandboxedState()
	m.RegisterModules(L, key)
	for _, path := range luaFiles {
		if err := Bounded(L, m.limit, func() error { return L.DoFile(path) }); err != nil {
			L.Close()
			return fmt.Errorf("scripting: loading %q for %q: %w", path, key, err)
		}
	}

	m.mu.Lock()
	old := m.vms[key]
	m.vms[key] = &vm{L: L}
	m.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.L.Close()
		old.mu.Unlock()
	}
	m.logger.Debug("scripts loaded",
		zap.String("scope", key),
		zap.Int("files", len(luaFiles)),
	)
	return nil
}

// resolve returns the VM that should run hook for dungeonID along with the
// hook function: the dungeon VM when it defines the hook, else the global VM.
// The returned VM is locked; the caller must unlock it.
//
// A VM replaced by a concurrent load is closed under its lock, so a candidate
// found closed once locked means the snapshot is stale and is taken again.
func (m *Manager) resolve(dungeonID, hook string) (*vm, lua.LValue, bool) {
	for {
		m.mu.RLock()
		candidates := []*vm{m.vms[dungeonID], m.vms[globalKey]}
		m.mu.RUnlock()

		stale := false
		for _, v := range candidates {
			if v == nil {
				continue
			}
			v.mu.Lock()
			if v.L.IsClosed() {
				v.mu.Unlock()
				stale = true
				break
			}
			if fn := v.L.GetGlobal(hook); fn.Type() == lua.LTFunction {
				return v, fn, true
			}
			v.mu.Unlock()
		}
		if !stale {
			return nil, lua.LNil, false
		}
	}
}

// CallHook calls the named Lua global function for dungeonID: in the dungeon
// VM when it defines the hook, else in the global VM. Returns (LNil, nil) if
// no VM defines the hook. Lua runtime errors, instruction limit overruns
// included, are logged at Warn level and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(dungeonID, hook string, args ...lua.LValue) (lua.LValue, error) {
	v, fn, ok := m.resolve(dungeonID, hook)
	if !ok {
		m.logger.Info("scripting: hook not defined",
			zap.String("dungeon", dungeonID),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}
	defer v.mu.Unlock()
	return m.call(v, fn, dungeonID, hook, args...), nil
}

func (m *Manager) call(v *vm, fn lua.LValue, dungeonID, hook string, args ...lua.LValue) lua.LValue {
	L := v.L
	err := Bounded(L, m.limit, func() error {
		return L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...)
	})
	if err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("dungeon", dungeonID),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret
}

// RunEventHook runs an event hook with in as a table argument and decodes the
// returned table. The hook may return a table with any of the numeric fields
// health, mana, gold and xp (relative deltas) and a string field message; a
// bare string is taken as the message; nil means no effect.
//
// Postcondition: Returns an error wrapping ErrHookNotFound when no VM defines
// hook. A hook that fails at runtime is logged and yields a zero output.
func (m *Manager) RunEventHook(dungeonID, hook string, in encounter.ScriptInput) (encounter.ScriptOutput, error) {
	v, fn, ok := m.resolve(dungeonID, hook)
	if !ok {
		return encounter.ScriptOutput{}, fmt.Errorf("dungeon %q hook %q: %w", dungeonID, hook, ErrHookNotFound)
	}
	defer v.mu.Unlock()

	ret := m.call(v, fn, dungeonID, hook, inputTable(v.L, in))
	switch r := ret.(type) {
	case *lua.LTable:
		return decodeOutput(r), nil
	case lua.LString:
		return encounter.ScriptOutput{Message: string(r)}, nil
	case *lua.LNilType:
		return encounter.ScriptOutput{}, nil
	default:
		m.logger.Warn("scripting: unexpected hook result",
			zap.String("dungeon", dungeonID),
			zap.String("hook", hook),
			zap.String("type", ret.Type().String()),
		)
		return encounter.ScriptOutput{}, nil
	}
}

func inputTable(L *lua.LState, in encounter.ScriptInput) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("character_id", lua.LString(in.CharacterID))
	t.RawSetString("dungeon_id", lua.LString(in.DungeonID))
	t.RawSetString("event_id", lua.LString(in.EventID))
	t.RawSetString("choice_id", lua.LString(in.ChoiceID))
	t.RawSetString("floor", lua.LNumber(in.Floor))
	t.RawSetString("health", lua.LNumber(in.Health))
	t.RawSetString("max_health", lua.LNumber(in.MaxHealth))
	t.RawSetString("mana", lua.LNumber(in.Mana))
	t.RawSetString("max_mana", lua.LNumber(in.MaxMana))
	return t
}

func decodeOutput(t *lua.LTable) encounter.ScriptOutput {
	num := func(key string) int {
		if n, ok := t.RawGetString(key).(lua.LNumber); ok {
			return int(n)
		}
		return 0
	}
	out := encounter.ScriptOutput{
		HealthDelta: num("health"),
		ManaDelta:   num("mana"),
		GoldDelta:   num("gold"),
		XPDelta:     num("xp"),
	}
	if s, ok := t.RawGetString("message").(lua.LString); ok {
		out.Message = string(s)
	}
	return out
}

// Close closes every VM. The Manager must not be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	vms := m.vms
	m.vms = make(map[string]*vm)
	m.mu.Unlock()
	for _, v := range vms {
		v.mu.Lock()
		v.L.Close()
		v.mu.Unlock()
	}
}
