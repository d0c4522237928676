// Package simulation runs scenarios: a Battle advances one arena tick by tick,
// a Host connects battles to their scripts and a Runner drives a Battle in
// real time while recording it.
package simulation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/arena"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/ecs"
	"github.com/cory-johannsen/skirmish/internal/game/movement"
	"github.com/cory-johannsen/skirmish/internal/game/scenario"
	"github.com/cory-johannsen/skirmish/internal/observability"
	"github.com/cory-johannsen/skirmish/internal/replay"
	"github.com/cory-johannsen/skirmish/internal/scripting"
	"github.com/cory-johannsen/skirmish/internal/storage"
)

// ErrUnknownSide is returned when a spawn names a side the battle was not
// set up with.
var ErrUnknownSide = errors.New("unknown side")

// TickReport summarizes one completed tick.
type TickReport struct {
	Tick         uint64
	Shots        int
	Hits         int
	Kills        int
	Retaliations int
	// Alive counts live units for every side of the battle, zero included.
	Alive map[string]int
}

// Record converts r into its storage form.
func (r TickReport) Record() storage.TickRecord {
	return storage.TickRecord{
		Tick:         r.Tick,
		Shots:        r.Shots,
		Hits:         r.Hits,
		Kills:        r.Kills,
		Retaliations: r.Retaliations,
		Alive:        r.Alive,
	}
}

// Outcome is the state of a battle's result.
type Outcome struct {
	// Decided is false while the battle should keep running.
	Decided bool
	// Winner is the only side with units left. Empty on a draw.
	Winner string
	// Draw is set when every side was wiped out or the tick cap was reached
	// with more than one side standing.
	Draw  bool
	Ticks uint64
}

// Options configures a Battle.
type Options struct {
	Params combat.Params
	// MaxTicks caps the battle when the scenario sets no cap. Zero means
	// uncapped.
	MaxTicks uint64
}

// Battle is one scenario running in its own arena. It is not safe for
// concurrent use; a Runner owns it.
type Battle struct {
	id       uuid.UUID
	scenario *scenario.Scenario
	arena    *arena.Arena
	pipeline *combat.Pipeline
	sides    []arena.Side
	maxTicks uint64
	logger   *zap.Logger

	scripts *scripting.Manager
}

// NewBattle spawns s into a fresh arena.
//
// Precondition: s must have passed Validate; logger must be non-nil.
// Postcondition: Returns a Battle at tick 0 with every scenario unit live, or
// an error if opts.Params is invalid.
func NewBattle(s *scenario.Scenario, opts Options, logger *zap.Logger) (*Battle, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	id := uuid.New()
	logger = observability.BattleLogger(logger, id.String(), s.Name)

	a := arena.New()
	s.Spawn(a)

	systems := append(combat.DefaultSystems(), movement.Systems()...)
	b := &Battle{
		id:       id,
		scenario: s,
		arena:    a,
		pipeline: combat.NewPipeline(a, opts.Params, logger, systems...),
		sides:    s.Sides(),
		maxTicks: opts.MaxTicks,
		logger:   logger,
	}
	if s.MaxTicks > 0 {
		b.maxTicks = uint64(s.MaxTicks)
	}
	return b, nil
}

// ID returns the battle's unique identifier.
func (b *Battle) ID() uuid.UUID { return b.id }

// Scenario returns the scenario name.
func (b *Battle) Scenario() string { return b.scenario.Name }

// Sides returns the battle's sides, sorted.
func (b *Battle) Sides() []string {
	out := make([]string, len(b.sides))
	for i, s := range b.sides {
		out[i] = string(s)
	}
	return out
}

// Arena exposes the battle's arena for inspection.
func (b *Battle) Arena() *arena.Arena { return b.arena }

// Tick returns the number of completed ticks.
func (b *Battle) Tick() uint64 { return b.pipeline.CurrentTick() }

// MaxTicks returns the tick cap, zero for none.
func (b *Battle) MaxTicks() uint64 { return b.maxTicks }

// Summary returns the storage row describing the battle before it starts.
func (b *Battle) Summary() storage.Battle {
	return storage.Battle{ID: b.id, Scenario: b.scenario.Name, Sides: b.Sides()}
}

// Step runs one full tick: the combat and movement pipeline, then the
// script's on_tick hook. Units spawned by the hook are live when Step
// returns.
//
// Postcondition: the arena buffer is empty.
func (b *Battle) Step() TickReport {
	stats := b.pipeline.Tick()
	if b.scripts != nil {
		b.scripts.OnTick(b.id.String(), stats.Tick)
		b.arena.Flush()
	}
	if stats.Kills > 0 {
		b.logger.Debug("units lost",
			zap.Uint64("tick", stats.Tick),
			zap.Int("kills", stats.Kills),
		)
	}
	return TickReport{
		Tick:         stats.Tick,
		Shots:        stats.Shots,
		Hits:         stats.Hits,
		Kills:        stats.Kills,
		Retaliations: stats.Retaliations,
		Alive:        b.Alive(),
	}
}

// Alive counts live units per side, with an entry for every side.
func (b *Battle) Alive() map[string]int {
	counts := b.arena.AliveBySide()
	out := make(map[string]int, len(b.sides))
	for _, s := range b.sides {
		out[string(s)] = counts[s]
	}
	return out
}

// AliveOf returns the live unit count of side; zero for an unknown side.
func (b *Battle) AliveOf(side string) int {
	return b.arena.AliveBySide()[arena.Side(side)]
}

// Outcome evaluates the battle at its current tick.
func (b *Battle) Outcome() Outcome {
	tick := b.Tick()
	standing := arena.SortedSides(b.arena.AliveBySide())
	switch {
	case len(standing) == 1:
		return Outcome{Decided: true, Winner: string(standing[0]), Ticks: tick}
	case len(standing) == 0:
		return Outcome{Decided: true, Draw: true, Ticks: tick}
	case b.maxTicks > 0 && tick >= b.maxTicks:
		return Outcome{Decided: true, Draw: true, Ticks: tick}
	}
	return Outcome{Ticks: tick}
}

// Spawn records a new unit through the arena buffer. The unit becomes live at
// the next barrier.
//
// Postcondition: Returns ErrUnknownSide if u.Side is not one of the
// battle's sides, or the UnitSpec.Validate error; nothing is spawned on error.
func (b *Battle) Spawn(u arena.UnitSpec) (ecs.Entity, error) {
	if !b.hasSide(u.Side) {
		return ecs.Nil, fmt.Errorf("spawning on side %q: %w", u.Side, ErrUnknownSide)
	}
	if err := u.Validate(); err != nil {
		return ecs.Nil, fmt.Errorf("spawning on side %q: %w", u.Side, err)
	}
	return b.arena.SpawnUnit(u), nil
}

// Frame snapshots the arena for replay and spectators.
func (b *Battle) Frame() replay.Frame {
	return replay.Capture(b.Tick(), b.arena)
}

func (b *Battle) hasSide(s arena.Side) bool {
	for _, side := range b.sides {
		if side == s {
			return true
		}
	}
	return false
}
