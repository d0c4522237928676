// Package arena defines the combat component types and the Arena, which binds
// one typed store per component to an ecs.World.
package arena

import (
	"math"

	"github.com/cory-johannsen/skirmish/internal/game/ecs"
)

// Component identifiers used in system access declarations.
const (
	CompPosition       ecs.ComponentID = "position"
	CompSide           ecs.ComponentID = "side"
	CompHealth         ecs.ComponentID = "health"
	CompFiringRange    ecs.ComponentID = "firing_range"
	CompFiringCooldown ecs.ComponentID = "firing_cooldown"
	CompCommandQueue   ecs.ComponentID = "command_queue"
	CompDamaged        ecs.ComponentID = "damaged_this_tick"
	CompBullet         ecs.ComponentID = "bullet"
	CompFacing         ecs.ComponentID = "facing"
	CompMoveTo         ecs.ComponentID = "move_to"
	CompMoveSpeed      ecs.ComponentID = "move_speed"
)

// Vec2 is a 2D vector in distance units.
type Vec2 struct {
	X float64 `yaml:"x" msgpack:"x"`
	Y float64 `yaml:"y" msgpack:"y"`
}

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Scale returns v * k.
func (v Vec2) Scale(k float64) Vec2 { return Vec2{X: v.X * k, Y: v.Y * k} }

// LenSq returns the squared length of v.
func (v Vec2) LenSq() float64 { return v.X*v.X + v.Y*v.Y }

// Len returns the length of v.
func (v Vec2) Len() float64 { return math.Sqrt(v.LenSq()) }

// DistSq returns the squared Euclidean distance between v and o.
func (v Vec2) DistSq(o Vec2) float64 { return v.Sub(o).LenSq() }

// Heading returns the angle of v in radians.
func (v Vec2) Heading() float64 { return math.Atan2(v.Y, v.X) }

// Position is an entity's location. Written by movement, read by combat.
type Position struct{ Vec2 }

// Side is a team identifier. Immutable after spawn.
type Side string

// Health is a unit's remaining hit points.
type Health struct{ Points uint32 }

// Damage subtracts n points, saturating at zero.
//
// Postcondition: Points >= 0 and Points == max(old-n, 0).
func (h *Health) Damage(n uint32) {
	if n >= h.Points {
		h.Points = 0
		return
	}
	h.Points -= n
}

// Dead reports whether the unit has no hit points left.
func (h Health) Dead() bool { return h.Points == 0 }

// FiringRange is the maximum engagement distance.
type FiringRange struct{ Distance float64 }

// InRange reports whether a and b are within r of each other, comparing
// squared distances.
func (r FiringRange) InRange(a, b Vec2) bool {
	return a.DistSq(b) <= r.Distance*r.Distance
}

// FiringCooldown counts ticks until the weapon is ready. Zero means ready.
type FiringCooldown struct{ Ticks uint32 }

// Ready reports whether the weapon may fire this tick.
func (c FiringCooldown) Ready() bool { return c.Ticks == 0 }

// Decay decrements the cooldown by one tick, saturating at zero.
func (c *FiringCooldown) Decay() {
	if c.Ticks > 0 {
		c.Ticks--
	}
}

// DamagedThisTick marks an entity hit this tick and records the attacker.
// It must never survive past the end of the tick it was attached in.
type DamagedThisTick struct{ Attacker ecs.Entity }

// Bullet is an in-flight projectile.
type Bullet struct {
	Target ecs.Entity
	Source ecs.Entity
}

// Facing is a heading in radians.
type Facing struct{ Radians float64 }

// MoveTo is the point an entity is moving toward. For bullets it is the
// target's position captured at fire time.
type MoveTo struct{ Vec2 }

// MoveSpeed is the distance covered per tick.
type MoveSpeed struct{ PerTick float64 }
