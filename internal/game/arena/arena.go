package arena

import (
	"fmt"
	"math"
	"sort"

	"github.com/cory-johannsen/skirmish/internal/game/ecs"
)

// Arena binds the combat component stores to one ecs.World.
type Arena struct {
	World *ecs.World

	Positions  *ecs.Store[Position]
	Sides      *ecs.Store[Side]
	Healths    *ecs.Store[Health]
	Ranges     *ecs.Store[FiringRange]
	Cooldowns  *ecs.Store[FiringCooldown]
	Commands   *ecs.Store[CommandQueue]
	Damaged    *ecs.Store[DamagedThisTick]
	Bullets    *ecs.Store[Bullet]
	Facings    *ecs.Store[Facing]
	MoveTos    *ecs.Store[MoveTo]
	MoveSpeeds *ecs.Store[MoveSpeed]
}

// New creates an Arena over a fresh World with every store registered.
//
// Postcondition: Returns an Arena with no entities.
func New() *Arena {
	w := ecs.NewWorld()
	return &Arena{
		World:      w,
		Positions:  ecs.Register[Position](w, CompPosition),
		Sides:      ecs.Register[Side](w, CompSide),
		Healths:    ecs.Register[Health](w, CompHealth),
		Ranges:     ecs.Register[FiringRange](w, CompFiringRange),
		Cooldowns:  ecs.Register[FiringCooldown](w, CompFiringCooldown),
		Commands:   ecs.Register[CommandQueue](w, CompCommandQueue),
		Damaged:    ecs.Register[DamagedThisTick](w, CompDamaged),
		Bullets:    ecs.Register[Bullet](w, CompBullet),
		Facings:    ecs.Register[Facing](w, CompFacing),
		MoveTos:    ecs.Register[MoveTo](w, CompMoveTo),
		MoveSpeeds: ecs.Register[MoveSpeed](w, CompMoveSpeed),
	}
}

// Buffer returns the world's deferred structural-change buffer.
func (a *Arena) Buffer() *ecs.Buffer { return a.World.Buffer() }

// Flush applies pending structural changes.
func (a *Arena) Flush() int { return a.World.Flush() }

// UnitSpec describes a combat unit to spawn. Optional components are attached
// only when their pointer is non-nil, so partial units can be modelled.
type UnitSpec struct {
	Side     Side
	Position Vec2
	Health   uint32
	Range    *float64
	Cooldown *uint32
	Speed    float64
	Orders   []Command
}

// Validate checks the fields every spawn path must agree on. Orders are not
// checked.
//
// Postcondition: Returns nil iff Side is non-empty, Health >= 1, Range (if set)
// is finite and >= 0, and Speed is finite and >= 0.
func (u UnitSpec) Validate() error {
	if u.Side == "" {
		return fmt.Errorf("side must not be empty")
	}
	if u.Health < 1 {
		return fmt.Errorf("health must be >= 1")
	}
	if u.Range != nil && !finiteNonNegative(*u.Range) {
		return fmt.Errorf("range must be >= 0, got %v", *u.Range)
	}
	if !finiteNonNegative(u.Speed) {
		return fmt.Errorf("speed must be >= 0, got %v", u.Speed)
	}
	return nil
}

func finiteNonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

// SpawnUnit records the spawn of a unit through the buffer. The unit is live
// after the next flush.
//
// Postcondition: Position, Side, Health and CommandQueue are always attached;
// FiringRange, FiringCooldown and MoveSpeed only when specified.
func (a *Arena) SpawnUnit(u UnitSpec) ecs.Entity {
	buf := a.Buffer()
	e := buf.Spawn()
	ecs.Attach(buf, a.Positions, e, Position{u.Position})
	ecs.Attach(buf, a.Sides, e, u.Side)
	ecs.Attach(buf, a.Healths, e, Health{Points: u.Health})
	ecs.Attach(buf, a.Commands, e, NewCommandQueue(u.Orders...))
	if u.Range != nil {
		ecs.Attach(buf, a.Ranges, e, FiringRange{Distance: *u.Range})
	}
	if u.Cooldown != nil {
		ecs.Attach(buf, a.Cooldowns, e, FiringCooldown{Ticks: *u.Cooldown})
	}
	if u.Speed > 0 {
		ecs.Attach(buf, a.MoveSpeeds, e, MoveSpeed{PerTick: u.Speed})
	}
	return e
}

// SpawnBullet records the spawn of a projectile from source toward target's
// current position dest.
func (a *Arena) SpawnBullet(source, target ecs.Entity, from, dest Vec2, speed float64) ecs.Entity {
	buf := a.Buffer()
	e := buf.Spawn()
	ecs.Attach(buf, a.Positions, e, Position{from})
	ecs.Attach(buf, a.Bullets, e, Bullet{Target: target, Source: source})
	ecs.Attach(buf, a.Facings, e, Facing{})
	ecs.Attach(buf, a.MoveTos, e, MoveTo{dest})
	ecs.Attach(buf, a.MoveSpeeds, e, MoveSpeed{PerTick: speed})
	return e
}

// AliveBySide counts live units (entities with Side and Health) per side.
func (a *Arena) AliveBySide() map[Side]int {
	out := make(map[Side]int)
	for _, e := range a.World.Query().With(a.Sides).With(a.Healths).Execute() {
		s, _ := a.Sides.Get(e)
		out[*s]++
	}
	return out
}

// SortedSides returns the sides in alive with a non-zero count, sorted.
func SortedSides(alive map[Side]int) []Side {
	out := make([]Side, 0, len(alive))
	for s, n := range alive {
		if n > 0 {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Ptr returns a pointer to v. Convenience for optional UnitSpec fields.
func Ptr[T any](v T) *T { return &v }
