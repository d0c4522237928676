package scripting

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// HookTick is the global function called once per battle tick.
const HookTick = "on_tick"

// UnitSpawn is a unit requested by a script through sim.spawn.
type UnitSpawn struct {
	Side     string
	X, Y     float64
	Health   uint32
	Range    *float64
	Cooldown *uint32
	Speed    float64
}

// Manager owns one sandbox per battle and exposes hook dispatch.
//
// Manager is safe for concurrent use. Each battle's sandbox is
// single-threaded; a per-battle lock serializes calls into it while different
// battles run concurrently.
type Manager struct {
	mu        sync.RWMutex
	battles   map[string]*battleVM
	instLimit int
	logger    *zap.Logger

	// Injected after construction. nil makes the matching sim.* call a no-op.
	Spawn func(battleID string, u UnitSpawn) (uint64, error)
	Alive func(battleID, side string) int
	Tick  func(battleID string) uint64
}

type battleVM struct {
	mu sync.Mutex
	sb *Sandbox
}

// NewManager creates a Manager.
//
// Precondition: logger must be non-nil; instLimit >= 0, 0 uses
// DefaultInstructionLimit.
// Postcondition: Returns a Manager with no battles loaded.
func NewManager(instLimit int, logger *zap.Logger) *Manager {
	if logger == nil {
		panic("scripting.NewManager: logger must not be nil")
	}
	return &Manager{
		battles:   make(map[string]*battleVM),
		instLimit: instLimit,
		logger:    logger,
	}
}

// LoadBattle creates a sandbox for battleID, registers the sim module and
// executes the script at path. A previously loaded sandbox for the same
// battle is closed and replaced.
//
// Precondition: battleID must be non-empty; path must be a readable Lua file.
// Postcondition: the battle's sandbox is registered; returns an error on Lua
// load failure and registers nothing.
func (m *Manager) LoadBattle(battleID, path string) error {
	sb := NewSandbox(m.instLimit)
	m.RegisterModules(sb.L, battleID)
	if err := sb.DoFile(path); err != nil {
		sb.Close()
		return fmt.Errorf("scripting: loading %q for battle %q: %w", path, battleID, err)
	}

	m.mu.Lock()
	old := m.battles[battleID]
	m.battles[battleID] = &battleVM{sb: sb}
	m.mu.Unlock()
	if old != nil {
		old.close()
	}
	return nil
}

// Unload closes the sandbox of battleID, if any.
func (m *Manager) Unload(battleID string) {
	m.mu.Lock()
	vm := m.battles[battleID]
	delete(m.battles, battleID)
	m.mu.Unlock()
	if vm != nil {
		vm.close()
	}
}

// Loaded reports whether battleID has a sandbox.
func (m *Manager) Loaded(battleID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.battles[battleID]
	return ok
}

// CallHook calls the named Lua global function in battleID's sandbox. Returns
// (LNil, nil) if the hook is not defined or the battle has no sandbox. Lua
// runtime errors, including an exhausted instruction budget, are logged at
// Warn level and never propagated.
//
// Precondition: args must be valid lua.LValue instances.
// Postcondition: Returns the first return value of the hook, or LNil.
func (m *Manager) CallHook(battleID, hook string, args ...lua.LValue) (lua.LValue, error) {
	m.mu.RLock()
	vm := m.battles[battleID]
	m.mu.RUnlock()
	if vm == nil {
		m.logger.Debug("scripting: no VM for battle",
			zap.String("battle", battleID),
			zap.String("hook", hook),
		)
		return lua.LNil, nil
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	ret, err := vm.sb.Call(hook, args...)
	if err != nil {
		m.logger.Warn("scripting: Lua runtime error",
			zap.String("battle", battleID),
			zap.String("hook", hook),
			zap.Error(err),
		)
		return lua.LNil, nil
	}
	return ret, nil
}

// OnTick dispatches the per-tick hook.
func (m *Manager) OnTick(battleID string, tick uint64) {
	_, _ = m.CallHook(battleID, HookTick, lua.LNumber(tick))
}

// Close unloads every battle.
func (m *Manager) Close() {
	m.mu.Lock()
	vms := m.battles
	m.battles = make(map[string]*battleVM)
	m.mu.Unlock()
	for _, vm := range vms {
		vm.close()
	}
}

func (vm *battleVM) close() {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.sb.Close()
}
