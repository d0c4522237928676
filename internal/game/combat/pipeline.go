package combat

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/arena"
	"github.com/cory-johannsen/skirmish/internal/game/ecs"
)

// Pass is the context handed to a system for one run.
type Pass struct {
	Arena  *arena.Arena
	Params Params
	Logger *zap.Logger
	Stats  *TickStats
}

// System is one step of the combat pipeline.
//
// Run may read and write component data in place but must record every
// structural change in the arena's buffer. Access declares the components Run
// touches so a scheduler can tell which systems may run concurrently.
type System interface {
	Name() string
	Access() ecs.Access
	Run(p *Pass)
}

// DefaultSystems returns the seven combat systems in tick order.
func DefaultSystems() []System {
	return []System{
		PruneDeadTargets{},
		AcquireTargets{},
		Fire{},
		ResolveProjectiles{},
		Retaliate{},
		RemoveDead{},
		DecayCooldowns{},
	}
}

// Pipeline runs the combat systems once per tick with a flush barrier after
// each, so structural changes made by one system are visible to the next and
// never to the system that made them.
type Pipeline struct {
	arena   *arena.Arena
	params  Params
	logger  *zap.Logger
	systems []System
	tick    uint64
}

// NewPipeline creates a Pipeline over a. With no systems given it runs
// DefaultSystems.
//
// Precondition: a and logger must be non-nil; params must pass Validate.
// Postcondition: Returns a Pipeline at tick 0.
func NewPipeline(a *arena.Arena, params Params, logger *zap.Logger, systems ...System) *Pipeline {
	if len(systems) == 0 {
		systems = DefaultSystems()
	}
	return &Pipeline{
		arena:   a,
		params:  params,
		logger:  logger,
		systems: systems,
	}
}

// Tick advances combat by one tick.
//
// Postcondition: every system has completed its pass; the buffer is empty;
// returns the statistics of the tick.
func (p *Pipeline) Tick() TickStats {
	p.tick++
	stats := TickStats{Tick: p.tick, Losses: make(map[arena.Side]int)}
	pass := &Pass{
		Arena:  p.arena,
		Params: p.params,
		Logger: p.logger.With(zap.Uint64("tick", p.tick)),
		Stats:  &stats,
	}
	// Changes recorded by the host between ticks become visible here.
	p.arena.Flush()
	for _, s := range p.systems {
		s.Run(pass)
		p.arena.Flush()
	}
	return stats
}

// CurrentTick returns the number of ticks run so far.
func (p *Pipeline) CurrentTick() uint64 { return p.tick }

// Systems returns the system names in run order.
func (p *Pipeline) Systems() []string {
	out := make([]string, len(p.systems))
	for i, s := range p.systems {
		out[i] = s.Name()
	}
	return out
}

// Conflicts returns every pair of systems whose declared access overlaps in a
// way that forbids running them concurrently.
func (p *Pipeline) Conflicts() [][2]string {
	var out [][2]string
	for i := 0; i < len(p.systems); i++ {
		for j := i + 1; j < len(p.systems); j++ {
			if p.systems[i].Access().ConflictsWith(p.systems[j].Access()) {
				out = append(out, [2]string{p.systems[i].Name(), p.systems[j].Name()})
			}
		}
	}
	return out
}
