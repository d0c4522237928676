package simulation

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/arena"
	"github.com/cory-johannsen/skirmish/internal/scripting"
)

// Host connects a scripting.Manager to the battles it scripts. The sim.*
// callbacks look battles up by ID, so one Manager can serve many battles.
type Host struct {
	scripts *scripting.Manager
	logger  *zap.Logger

	mu      sync.RWMutex
	battles map[string]*Battle
}

// NewHost creates a Host and installs its callbacks on scripts.
//
// Precondition: scripts and logger must be non-nil.
// Postcondition: scripts.Spawn, scripts.Alive and scripts.Tick route to the
// battles added to the Host.
func NewHost(scripts *scripting.Manager, logger *zap.Logger) *Host {
	h := &Host{
		scripts: scripts,
		logger:  logger,
		battles: make(map[string]*Battle),
	}
	scripts.Spawn = h.spawn
	scripts.Alive = h.alive
	scripts.Tick = h.tick
	return h
}

// Add registers b and loads the scenario script at path, if any. Once added,
// every Step of b runs the script's on_tick hook.
//
// Postcondition: on error b is not registered.
func (h *Host) Add(b *Battle, path string) error {
	id := b.ID().String()
	h.mu.Lock()
	h.battles[id] = b
	h.mu.Unlock()
	if path == "" {
		return nil
	}
	if err := h.scripts.LoadBattle(id, path); err != nil {
		h.Remove(b)
		return fmt.Errorf("loading script for battle %s: %w", id, err)
	}
	b.scripts = h.scripts
	h.logger.Info("battle script loaded", zap.String("battle", id), zap.String("script", path))
	return nil
}

// Remove unregisters b and closes its script.
func (h *Host) Remove(b *Battle) {
	id := b.ID().String()
	h.mu.Lock()
	delete(h.battles, id)
	h.mu.Unlock()
	h.scripts.Unload(id)
	b.scripts = nil
}

func (h *Host) lookup(battleID string) *Battle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.battles[battleID]
}

func (h *Host) spawn(battleID string, u scripting.UnitSpawn) (uint64, error) {
	b := h.lookup(battleID)
	if b == nil {
		return 0, fmt.Errorf("battle %s not hosted", battleID)
	}
	e, err := b.Spawn(arena.UnitSpec{
		Side:     arena.Side(u.Side),
		Position: arena.Vec2{X: u.X, Y: u.Y},
		Health:   u.Health,
		Range:    u.Range,
		Cooldown: u.Cooldown,
		Speed:    u.Speed,
	})
	if err != nil {
		return 0, err
	}
	return uint64(e), nil
}

func (h *Host) alive(battleID, side string) int {
	b := h.lookup(battleID)
	if b == nil {
		return 0
	}
	return b.AliveOf(side)
}

func (h *Host) tick(battleID string) uint64 {
	b := h.lookup(battleID)
	if b == nil {
		return 0
	}
	return b.Tick()
}
