// Package movement steers units toward their orders and integrates positions.
// Its systems run after the combat systems within the same tick.
package movement

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/arena"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/ecs"
)

// Systems returns the movement systems in run order.
func Systems() []combat.System {
	return []combat.System{Steer{}, Integrate{}}
}

// Steer sets or clears each unit's MoveTo from the front of its command queue.
//
// An attack order on a target outside firing range moves the unit toward the
// target's current position; within range the unit stops. An attack-move order
// moves the unit toward its destination and is popped once the unit stands on
// it. Idle units stop.
type Steer struct{}

func (Steer) Name() string { return "steer" }

func (Steer) Access() ecs.Access {
	return ecs.Access{
		Reads:  []ecs.ComponentID{arena.CompPosition, arena.CompFiringRange, arena.CompMoveSpeed},
		Writes: []ecs.ComponentID{arena.CompCommandQueue, arena.CompMoveTo},
	}
}

func (Steer) Run(p *combat.Pass) {
	a := p.Arena
	for _, e := range a.World.Query().With(a.Commands).With(a.Positions).With(a.MoveSpeeds).Execute() {
		q, _ := a.Commands.Get(e)
		pos, _ := a.Positions.Get(e)
		dest, ok := destination(a, e, pos.Vec2, q, p.Logger)
		if !ok {
			stop(a, e)
			continue
		}
		moveTo(a, e, dest)
	}
}

// destination resolves where e should be heading. It pops completed
// attack-move orders as a side effect.
func destination(a *arena.Arena, e ecs.Entity, pos arena.Vec2, q *arena.CommandQueue, logger *zap.Logger) (arena.Vec2, bool) {
	front, ok := q.Front()
	if !ok {
		return arena.Vec2{}, false
	}
	switch front.Kind {
	case arena.CommandAttack:
		target, ok := a.Positions.Get(front.Target)
		if !ok {
			return arena.Vec2{}, false
		}
		if rng, ok := a.Ranges.Get(e); ok && rng.InRange(pos, target.Vec2) {
			return arena.Vec2{}, false
		}
		return target.Vec2, true
	case arena.CommandAttackMove:
		if pos == front.Destination {
			q.PopFront()
			logger.Debug("unit arrived",
				zap.Stringer("unit", e),
				zap.Float64("x", pos.X),
				zap.Float64("y", pos.Y),
			)
			return arena.Vec2{}, false
		}
		return front.Destination, true
	default:
		return arena.Vec2{}, false
	}
}

func moveTo(a *arena.Arena, e ecs.Entity, dest arena.Vec2) {
	if mt, ok := a.MoveTos.Get(e); ok {
		mt.Vec2 = dest
		return
	}
	ecs.Attach(a.Buffer(), a.MoveTos, e, arena.MoveTo{Vec2: dest})
}

func stop(a *arena.Arena, e ecs.Entity) {
	if a.MoveTos.Has(e) {
		ecs.Detach(a.Buffer(), a.MoveTos, e)
	}
}

// Integrate advances every entity with a MoveTo and a MoveSpeed one step
// toward its MoveTo.
//
// Postcondition: an entity within one step of its MoveTo lands exactly on it;
// Facing, when present, holds the heading of the step.
type Integrate struct{}

func (Integrate) Name() string { return "integrate" }

func (Integrate) Access() ecs.Access {
	return ecs.Access{
		Reads:  []ecs.ComponentID{arena.CompMoveTo, arena.CompMoveSpeed},
		Writes: []ecs.ComponentID{arena.CompPosition, arena.CompFacing},
	}
}

func (Integrate) Run(p *combat.Pass) {
	a := p.Arena
	for _, e := range a.World.Query().With(a.Positions).With(a.MoveTos).With(a.MoveSpeeds).Execute() {
		pos, _ := a.Positions.Get(e)
		dest, _ := a.MoveTos.Get(e)
		speed, _ := a.MoveSpeeds.Get(e)
		if pos.Vec2 == dest.Vec2 {
			continue
		}
		if f, ok := a.Facings.Get(e); ok {
			f.Radians = dest.Vec2.Sub(pos.Vec2).Heading()
		}
		pos.Vec2 = Step(pos.Vec2, dest.Vec2, speed.PerTick)
	}
}

// Step returns the point reached by moving from pos toward dest by at most
// speed units.
func Step(pos, dest arena.Vec2, speed float64) arena.Vec2 {
	delta := dest.Sub(pos)
	dist := delta.Len()
	if dist <= speed {
		return dest
	}
	return pos.Add(delta.Scale(speed / dist))
}
