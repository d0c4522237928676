package scripting

import (
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// RegisterModules registers the sim table into L, bound to battleID.
//
// Precondition: L must belong to a Sandbox.
// Postcondition: sim global is defined in L with spawn, alive, tick and log.
func (m *Manager) RegisterModules(L *lua.LState, battleID string) {
	sim := L.NewTable()
	L.SetField(sim, "spawn", L.NewFunction(m.luaSpawn(battleID)))
	L.SetField(sim, "alive", L.NewFunction(m.luaAlive(battleID)))
	L.SetField(sim, "tick", L.NewFunction(m.luaTick(battleID)))
	L.SetField(sim, "log", L.NewFunction(m.luaLog(battleID)))
	L.SetGlobal("sim", sim)
}

// sim.spawn{side=, x=, y=, health=, range=, cooldown=, speed=} -> entity id or nil
//
// Malformed fields raise a Lua error; a spawn the battle refuses returns nil.
func (m *Manager) luaSpawn(battleID string) lua.LGFunction {
	return func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		u := UnitSpawn{
			Side: lua.LVAsString(tbl.RawGetString("side")),
			X:    float64(lua.LVAsNumber(tbl.RawGetString("x"))),
			Y:    float64(lua.LVAsNumber(tbl.RawGetString("y"))),
		}
		if u.Side == "" {
			L.ArgError(1, "side is required")
			return 0
		}
		health, ok := wholeField(L, tbl, "health", 1)
		if !ok {
			L.ArgError(1, "health is required")
			return 0
		}
		u.Health = health
		if c, ok := wholeField(L, tbl, "cooldown", 0); ok {
			u.Cooldown = &c
		}
		if r, ok := distanceField(L, tbl, "range"); ok {
			u.Range = &r
		}
		u.Speed, _ = distanceField(L, tbl, "speed")

		if m.Spawn == nil {
			L.Push(lua.LNil)
			return 1
		}
		id, err := m.Spawn(battleID, u)
		if err != nil {
			m.logger.Warn("scripting: spawn failed",
				zap.String("battle", battleID),
				zap.Error(err),
			)
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LNumber(id))
		return 1
	}
}

// wholeField reads tbl[key] as a whole number in [lo, math.MaxUint32],
// raising an argument error otherwise. Reports false when the field is absent.
func wholeField(L *lua.LState, tbl *lua.LTable, key string, lo uint32) (uint32, bool) {
	lv := tbl.RawGetString(key)
	if lv == lua.LNil {
		return 0, false
	}
	n, ok := lv.(lua.LNumber)
	v := float64(n)
	if !ok || math.Trunc(v) != v || v < float64(lo) || v > math.MaxUint32 {
		L.ArgError(1, fmt.Sprintf("%s must be a whole number in [%d, %d], got %s",
			key, lo, uint32(math.MaxUint32), lv.String()))
		return 0, false
	}
	return uint32(v), true
}

// distanceField reads tbl[key] as a finite number >= 0, raising an argument
// error otherwise. Reports false when the field is absent.
func distanceField(L *lua.LState, tbl *lua.LTable, key string) (float64, bool) {
	lv := tbl.RawGetString(key)
	if lv == lua.LNil {
		return 0, false
	}
	n, ok := lv.(lua.LNumber)
	v := float64(n)
	if !ok || !(v >= 0) || math.IsInf(v, 1) {
		L.ArgError(1, fmt.Sprintf("%s must be a number >= 0, got %s", key, lv.String()))
		return 0, false
	}
	return v, true
}

// sim.alive(side) -> number of live units on side
func (m *Manager) luaAlive(battleID string) lua.LGFunction {
	return func(L *lua.LState) int {
		side := L.CheckString(1)
		n := 0
		if m.Alive != nil {
			n = m.Alive(battleID, side)
		}
		L.Push(lua.LNumber(n))
		return 1
	}
}

// sim.tick() -> current tick
func (m *Manager) luaTick(battleID string) lua.LGFunction {
	return func(L *lua.LState) int {
		var tick uint64
		if m.Tick != nil {
			tick = m.Tick(battleID)
		}
		L.Push(lua.LNumber(tick))
		return 1
	}
}

// sim.log(msg)
func (m *Manager) luaLog(battleID string) lua.LGFunction {
	return func(L *lua.LState) int {
		m.logger.Info(L.CheckString(1),
			zap.String("battle", battleID),
			zap.String("source", "lua"),
		)
		return 0
	}
}
