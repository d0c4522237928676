// Package combat implements per-tick combat resolution: command pruning,
// target acquisition, firing, projectile resolution, retaliation, death
// cleanup and cooldown decay, run in that order by a Pipeline.
package combat

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/skirmish/internal/game/arena"
)

// ProjectileDamage is the hit points removed by one resolved projectile.
const ProjectileDamage uint32 = 1

// Params holds the tunable weapon constants.
type Params struct {
	// ReloadTicks is the cooldown set after firing.
	ReloadTicks uint32
	// ProjectileSpeed is the MoveSpeed given to spawned projectiles.
	ProjectileSpeed float64
	// ArrivalTolerance is the distance at which a projectile counts as
	// arrived. Zero requires exact equality with its MoveTo.
	ArrivalTolerance float64
}

// DefaultParams returns the reference weapon constants: reload 10 ticks,
// projectile speed 10 units per tick, exact arrival.
func DefaultParams() Params {
	return Params{
		ReloadTicks:      10,
		ProjectileSpeed:  10,
		ArrivalTolerance: 0,
	}
}

// Validate checks all parameter invariants.
//
// Postcondition: Returns nil if p is usable, or an error describing all violations.
func (p Params) Validate() error {
	var errs []string
	if p.ProjectileSpeed <= 0 {
		errs = append(errs, fmt.Sprintf("projectile speed must be > 0, got %v", p.ProjectileSpeed))
	}
	if p.ArrivalTolerance < 0 {
		errs = append(errs, fmt.Sprintf("arrival tolerance must be >= 0, got %v", p.ArrivalTolerance))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid combat params: %s", strings.Join(errs, "; "))
	}
	return nil
}

// arrived reports whether pos has reached dest under tolerance tol.
func arrived(pos, dest arena.Vec2, tol float64) bool {
	if tol == 0 {
		return pos == dest
	}
	return pos.DistSq(dest) <= tol*tol
}

// TickStats summarizes what the pipeline did during one tick.
type TickStats struct {
	Tick         uint64
	Pruned       int
	Acquired     int
	Shots        int
	Hits         int
	Retaliations int
	Kills        int
	// Losses counts units removed per side.
	Losses map[arena.Side]int
}
