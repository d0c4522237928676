package combat

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/arena"
	"github.com/cory-johannsen/skirmish/internal/game/ecs"
)

// PruneDeadTargets pops attack orders whose target is no longer live from the
// front of every command queue. It restores the invariant all later systems
// rely on and must run first.
type PruneDeadTargets struct{}

func (PruneDeadTargets) Name() string { return "prune_dead_targets" }

func (PruneDeadTargets) Access() ecs.Access {
	return ecs.Access{Writes: []ecs.ComponentID{arena.CompCommandQueue}}
}

func (PruneDeadTargets) Run(p *Pass) {
	a := p.Arena
	for _, e := range a.World.Query().With(a.Commands).Execute() {
		q, _ := a.Commands.Get(e)
		for {
			front, ok := q.Front()
			if !ok || front.Kind != arena.CommandAttack || a.World.IsLive(front.Target) {
				break
			}
			q.PopFront()
			p.Stats.Pruned++
			p.Logger.Debug("dropped attack on dead target",
				zap.Stringer("unit", e),
				zap.Stringer("target", front.Target),
			)
		}
	}
}

// AcquireTargets gives idle or attack-moving units an attack order against
// the first enemy in range, in spawn order. Active attack orders are never
// interrupted.
type AcquireTargets struct{}

func (AcquireTargets) Name() string { return "acquire_targets" }

func (AcquireTargets) Access() ecs.Access {
	return ecs.Access{
		Reads:  []ecs.ComponentID{arena.CompPosition, arena.CompSide, arena.CompFiringRange},
		Writes: []ecs.ComponentID{arena.CompCommandQueue},
	}
}

func (AcquireTargets) Run(p *Pass) {
	a := p.Arena
	candidates := a.World.Query().With(a.Positions).With(a.Sides).Execute()
	units := a.World.Query().With(a.Positions).With(a.Sides).With(a.Ranges).With(a.Commands).Execute()
	for _, e := range units {
		q, _ := a.Commands.Get(e)
		if front, ok := q.Front(); ok && front.Kind != arena.CommandAttackMove {
			continue
		}
		pos, _ := a.Positions.Get(e)
		side, _ := a.Sides.Get(e)
		rng, _ := a.Ranges.Get(e)
		for _, c := range candidates {
			cs, _ := a.Sides.Get(c)
			if *cs == *side {
				continue
			}
			cp, _ := a.Positions.Get(c)
			if !rng.InRange(pos.Vec2, cp.Vec2) {
				continue
			}
			q.PushFront(arena.Attack(c))
			p.Stats.Acquired++
			p.Logger.Debug("target acquired",
				zap.Stringer("unit", e),
				zap.Stringer("target", c),
			)
			break
		}
	}
}

// Fire spawns a projectile for every ready unit whose active order is an
// attack on a target within range, and resets its cooldown.
type Fire struct{}

func (Fire) Name() string { return "fire" }

func (Fire) Access() ecs.Access {
	return ecs.Access{
		Reads:  []ecs.ComponentID{arena.CompPosition, arena.CompFiringRange, arena.CompCommandQueue},
		Writes: []ecs.ComponentID{arena.CompFiringCooldown},
	}
}

func (Fire) Run(p *Pass) {
	a := p.Arena
	for _, e := range a.World.Query().With(a.Cooldowns).With(a.Commands).With(a.Ranges).With(a.Positions).Execute() {
		cd, _ := a.Cooldowns.Get(e)
		if !cd.Ready() {
			continue
		}
		q, _ := a.Commands.Get(e)
		front, ok := q.Front()
		if !ok || front.Kind != arena.CommandAttack {
			continue
		}
		target, ok := a.Positions.Get(front.Target)
		if !ok {
			continue
		}
		pos, _ := a.Positions.Get(e)
		rng, _ := a.Ranges.Get(e)
		if !rng.InRange(pos.Vec2, target.Vec2) {
			continue
		}
		bullet := a.SpawnBullet(e, front.Target, pos.Vec2, target.Vec2, p.Params.ProjectileSpeed)
		cd.Ticks = p.Params.ReloadTicks
		p.Stats.Shots++
		p.Logger.Debug("shot fired",
			zap.Stringer("unit", e),
			zap.Stringer("target", front.Target),
			zap.Stringer("projectile", bullet),
		)
	}
}

// ResolveProjectiles applies one point of damage for every projectile that
// has reached its MoveTo, marks surviving targets as damaged, and removes the
// projectile whether or not its target still exists.
type ResolveProjectiles struct{}

func (ResolveProjectiles) Name() string { return "resolve_projectiles" }

func (ResolveProjectiles) Access() ecs.Access {
	return ecs.Access{
		Reads:  []ecs.ComponentID{arena.CompBullet, arena.CompPosition, arena.CompMoveTo},
		Writes: []ecs.ComponentID{arena.CompHealth},
	}
}

func (ResolveProjectiles) Run(p *Pass) {
	a := p.Arena
	buf := a.Buffer()
	for _, e := range a.World.Query().With(a.Bullets).With(a.Positions).With(a.MoveTos).Execute() {
		pos, _ := a.Positions.Get(e)
		dest, _ := a.MoveTos.Get(e)
		if !arrived(pos.Vec2, dest.Vec2, p.Params.ArrivalTolerance) {
			continue
		}
		b, _ := a.Bullets.Get(e)
		if h, ok := a.Healths.Get(b.Target); ok {
			h.Damage(ProjectileDamage)
			p.Stats.Hits++
			if !h.Dead() {
				ecs.Attach(buf, a.Damaged, b.Target, arena.DamagedThisTick{Attacker: b.Source})
			}
			p.Logger.Debug("projectile hit",
				zap.Stringer("target", b.Target),
				zap.Stringer("source", b.Source),
				zap.Uint32("health", h.Points),
			)
		}
		buf.Despawn(e)
	}
}

// Retaliate gives every idle unit damaged this tick an attack order against
// its attacker, then removes the damage marker from every marked entity.
type Retaliate struct{}

func (Retaliate) Name() string { return "retaliate" }

func (Retaliate) Access() ecs.Access {
	return ecs.Access{
		Reads:  []ecs.ComponentID{arena.CompDamaged},
		Writes: []ecs.ComponentID{arena.CompCommandQueue},
	}
}

func (Retaliate) Run(p *Pass) {
	a := p.Arena
	buf := a.Buffer()
	for _, e := range a.World.Query().With(a.Damaged).Execute() {
		d, _ := a.Damaged.Get(e)
		if q, ok := a.Commands.Get(e); ok && q.Empty() {
			q.PushFront(arena.Attack(d.Attacker))
			p.Stats.Retaliations++
			p.Logger.Debug("unit retaliating",
				zap.Stringer("unit", e),
				zap.Stringer("attacker", d.Attacker),
			)
		}
		ecs.Detach(buf, a.Damaged, e)
	}
}

// RemoveDead despawns every entity whose health has reached zero.
type RemoveDead struct{}

func (RemoveDead) Name() string { return "remove_dead" }

func (RemoveDead) Access() ecs.Access {
	return ecs.Access{Reads: []ecs.ComponentID{arena.CompHealth, arena.CompSide}}
}

func (RemoveDead) Run(p *Pass) {
	a := p.Arena
	buf := a.Buffer()
	for _, e := range a.World.Query().With(a.Healths).Execute() {
		h, _ := a.Healths.Get(e)
		if !h.Dead() {
			continue
		}
		buf.Despawn(e)
		p.Stats.Kills++
		var side arena.Side
		if s, ok := a.Sides.Get(e); ok {
			side = *s
		}
		p.Stats.Losses[side]++
		p.Logger.Debug("unit destroyed",
			zap.Stringer("unit", e),
			zap.String("side", string(side)),
		)
	}
}

// DecayCooldowns moves every weapon cooldown one tick toward zero.
type DecayCooldowns struct{}

func (DecayCooldowns) Name() string { return "decay_cooldowns" }

func (DecayCooldowns) Access() ecs.Access {
	return ecs.Access{Writes: []ecs.ComponentID{arena.CompFiringCooldown}}
}

func (DecayCooldowns) Run(p *Pass) {
	a := p.Arena
	for _, e := range a.World.Query().With(a.Cooldowns).Execute() {
		cd, _ := a.Cooldowns.Get(e)
		cd.Decay()
	}
}
