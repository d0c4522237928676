package combat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/skirmish/internal/game/arena"
	"github.com/cory-johannsen/skirmish/internal/game/combat"
	"github.com/cory-johannsen/skirmish/internal/game/ecs"
)

// runSystems runs one tick of only the given systems with default params.
func runSystems(a *arena.Arena, systems ...combat.System) combat.TickStats {
	return combat.NewPipeline(a, combat.DefaultParams(), zap.NewNop(), systems...).Tick()
}

// shooter spawns an armed, ready unit.
func shooter(a *arena.Arena, side arena.Side, x, y, rng float64, orders ...arena.Command) ecs.Entity {
	return a.SpawnUnit(arena.UnitSpec{
		Side:     side,
		Position: arena.Vec2{X: x, Y: y},
		Health:   10,
		Range:    arena.Ptr(rng),
		Cooldown: arena.Ptr(uint32(0)),
		Orders:   orders,
	})
}

// dummy spawns an unarmed unit with the given health.
func dummy(a *arena.Arena, side arena.Side, x, y float64, hp uint32, orders ...arena.Command) ecs.Entity {
	return a.SpawnUnit(arena.UnitSpec{
		Side:     side,
		Position: arena.Vec2{X: x, Y: y},
		Health:   hp,
		Orders:   orders,
	})
}

// deadEntity returns an entity that was spawned and then despawned.
func deadEntity(a *arena.Arena) ecs.Entity {
	e := dummy(a, "ghost", 0, 0, 1)
	a.Flush()
	a.Buffer().Despawn(e)
	a.Flush()
	return e
}

func queueOf(t *testing.T, a *arena.Arena, e ecs.Entity) []arena.Command {
	t.Helper()
	q, ok := a.Commands.Get(e)
	require.True(t, ok)
	return q.Commands()
}

// --- Command pruning ---

func TestPrune_PopsEveryLeadingDeadAttack(t *testing.T) {
	a := arena.New()
	d1, d2 := deadEntity(a), deadEntity(a)
	live := dummy(a, "blue", 0, 0, 1)
	u := dummy(a, "red", 0, 0, 1, arena.Attack(d1), arena.Attack(d2), arena.Attack(live))
	a.Flush()

	stats := runSystems(a, combat.PruneDeadTargets{})
	assert.Equal(t, 2, stats.Pruned)
	assert.Equal(t, []arena.Command{arena.Attack(live)}, queueOf(t, a, u))
}

func TestPrune_StopsAtNonAttackFront(t *testing.T) {
	a := arena.New()
	dead := deadEntity(a)
	move := arena.AttackMove(arena.Vec2{X: 5})
	u := dummy(a, "red", 0, 0, 1, move, arena.Attack(dead))
	a.Flush()

	runSystems(a, combat.PruneDeadTargets{})
	assert.Equal(t, []arena.Command{move, arena.Attack(dead)}, queueOf(t, a, u))
}

func TestPrune_EmptiesQueueOfDeadAttacks(t *testing.T) {
	a := arena.New()
	u := dummy(a, "red", 0, 0, 1, arena.Attack(deadEntity(a)))
	a.Flush()

	runSystems(a, combat.PruneDeadTargets{})
	assert.Empty(t, queueOf(t, a, u))
}

// --- Target acquisition ---

func TestAcquire_IdleUnitTargetsEnemyInRange(t *testing.T) {
	a := arena.New()
	r := shooter(a, "red", 0, 0, 5)
	b := dummy(a, "blue", 3, 4, 1)

	stats := runSystems(a, combat.AcquireTargets{})
	assert.Equal(t, 1, stats.Acquired)
	assert.Equal(t, []arena.Command{arena.Attack(b)}, queueOf(t, a, r))
}

func TestAcquire_IgnoresEnemyBeyondRange(t *testing.T) {
	a := arena.New()
	r := shooter(a, "red", 0, 0, 5)
	dummy(a, "blue", 3, 4.001, 1)

	runSystems(a, combat.AcquireTargets{})
	assert.Empty(t, queueOf(t, a, r))
}

func TestAcquire_IgnoresSameSide(t *testing.T) {
	a := arena.New()
	r := shooter(a, "red", 0, 0, 5)
	dummy(a, "red", 1, 0, 1)

	runSystems(a, combat.AcquireTargets{})
	assert.Empty(t, queueOf(t, a, r))
}

func TestAcquire_DoesNotInterruptActiveAttack(t *testing.T) {
	a := arena.New()
	far := dummy(a, "blue", 100, 0, 1)
	r := shooter(a, "red", 0, 0, 5, arena.Attack(far))
	dummy(a, "blue", 1, 0, 1)

	stats := runSystems(a, combat.AcquireTargets{})
	assert.Zero(t, stats.Acquired)
	assert.Equal(t, []arena.Command{arena.Attack(far)}, queueOf(t, a, r))
}

func TestAcquire_InterruptsAttackMove(t *testing.T) {
	a := arena.New()
	move := arena.AttackMove(arena.Vec2{X: 50})
	r := shooter(a, "red", 0, 0, 5, move)
	b := dummy(a, "blue", 2, 0, 1)

	runSystems(a, combat.AcquireTargets{})
	assert.Equal(t, []arena.Command{arena.Attack(b), move}, queueOf(t, a, r))
}

func TestAcquire_TieBreakIsSpawnOrder(t *testing.T) {
	a := arena.New()
	r := shooter(a, "red", 0, 0, 5)
	first := dummy(a, "blue", 4, 0, 1)
	dummy(a, "blue", 1, 0, 1)

	runSystems(a, combat.AcquireTargets{})
	assert.Equal(t, []arena.Command{arena.Attack(first)}, queueOf(t, a, r),
		"the earliest spawned enemy wins even when a later one is closer")
}

func TestAcquire_SkipsUnitsWithoutRange(t *testing.T) {
	a := arena.New()
	u := dummy(a, "red", 0, 0, 1)
	dummy(a, "blue", 1, 0, 1)

	runSystems(a, combat.AcquireTargets{})
	assert.Empty(t, queueOf(t, a, u))
}

// --- Firing ---

func TestFire_SpawnsProjectileAndResetsCooldown(t *testing.T) {
	a := arena.New()
	b := dummy(a, "blue", 3, 0, 1)
	r := shooter(a, "red", 0, 0, 5, arena.Attack(b))

	stats := runSystems(a, combat.Fire{})
	assert.Equal(t, 1, stats.Shots)

	bullets := a.World.Query().With(a.Bullets).Execute()
	require.Len(t, bullets, 1)
	p := bullets[0]
	bullet, _ := a.Bullets.Get(p)
	assert.Equal(t, arena.Bullet{Target: b, Source: r}, *bullet)
	pos, _ := a.Positions.Get(p)
	assert.Equal(t, arena.Vec2{}, pos.Vec2)
	dest, _ := a.MoveTos.Get(p)
	assert.Equal(t, arena.Vec2{X: 3}, dest.Vec2)
	speed, _ := a.MoveSpeeds.Get(p)
	assert.Equal(t, 10.0, speed.PerTick)
	facing, _ := a.Facings.Get(p)
	assert.Equal(t, 0.0, facing.Radians)

	cd, _ := a.Cooldowns.Get(r)
	assert.Equal(t, uint32(10), cd.Ticks)
}

func TestFire_UsesConfiguredReloadAndSpeed(t *testing.T) {
	a := arena.New()
	b := dummy(a, "blue", 3, 0, 1)
	r := shooter(a, "red", 0, 0, 5, arena.Attack(b))

	params := combat.Params{ReloadTicks: 4, ProjectileSpeed: 2.5}
	combat.NewPipeline(a, params, zap.NewNop(), combat.Fire{}).Tick()

	cd, _ := a.Cooldowns.Get(r)
	assert.Equal(t, uint32(4), cd.Ticks)
	p := a.World.Query().With(a.Bullets).Execute()[0]
	speed, _ := a.MoveSpeeds.Get(p)
	assert.Equal(t, 2.5, speed.PerTick)
}

func TestFire_NotReadyDoesNothing(t *testing.T) {
	a := arena.New()
	b := dummy(a, "blue", 3, 0, 1)
	r := a.SpawnUnit(arena.UnitSpec{
		Side: "red", Health: 1, Range: arena.Ptr(5.0), Cooldown: arena.Ptr(uint32(3)),
		Orders: []arena.Command{arena.Attack(b)},
	})

	stats := runSystems(a, combat.Fire{})
	assert.Zero(t, stats.Shots)
	assert.Zero(t, a.Bullets.Len())
	cd, _ := a.Cooldowns.Get(r)
	assert.Equal(t, uint32(3), cd.Ticks)
}

func TestFire_OutOfRangeLeavesCooldownAlone(t *testing.T) {
	a := arena.New()
	b := dummy(a, "blue", 6, 0, 1)
	r := shooter(a, "red", 0, 0, 5, arena.Attack(b))

	runSystems(a, combat.Fire{})
	assert.Zero(t, a.Bullets.Len())
	cd, _ := a.Cooldowns.Get(r)
	assert.True(t, cd.Ready())
}

func TestFire_IgnoresNonAttackFront(t *testing.T) {
	a := arena.New()
	dummy(a, "blue", 1, 0, 1)
	shooter(a, "red", 0, 0, 5, arena.AttackMove(arena.Vec2{X: 1}))

	runSystems(a, combat.Fire{})
	assert.Zero(t, a.Bullets.Len())
}

func TestFire_TargetWithoutPositionIsSkipped(t *testing.T) {
	a := arena.New()
	buf := a.Buffer()
	ghost := buf.Spawn()
	ecs.Attach(buf, a.Healths, ghost, arena.Health{Points: 1})
	r := shooter(a, "red", 0, 0, 5, arena.Attack(ghost))

	assert.NotPanics(t, func() { runSystems(a, combat.Fire{}) })
	assert.Zero(t, a.Bullets.Len())
	cd, _ := a.Cooldowns.Get(r)
	assert.True(t, cd.Ready())
}

// --- Projectile resolution ---

func TestResolve_DamagesAndMarksSurvivor(t *testing.T) {
	a := arena.New()
	src := shooter(a, "red", 0, 0, 5)
	tgt := dummy(a, "blue", 3, 0, 5)
	p := a.SpawnBullet(src, tgt, arena.Vec2{X: 3}, arena.Vec2{X: 3}, 10)

	stats := runSystems(a, combat.ResolveProjectiles{})
	assert.Equal(t, 1, stats.Hits)
	h, _ := a.Healths.Get(tgt)
	assert.Equal(t, uint32(4), h.Points)
	mark, ok := a.Damaged.Get(tgt)
	require.True(t, ok)
	assert.Equal(t, src, mark.Attacker)
	assert.False(t, a.World.IsLive(p))
}

func TestResolve_LethalHitDoesNotMark(t *testing.T) {
	a := arena.New()
	src := shooter(a, "red", 0, 0, 5)
	tgt := dummy(a, "blue", 3, 0, 1)
	a.SpawnBullet(src, tgt, arena.Vec2{X: 3}, arena.Vec2{X: 3}, 10)

	runSystems(a, combat.ResolveProjectiles{})
	h, _ := a.Healths.Get(tgt)
	assert.Equal(t, uint32(0), h.Points)
	assert.False(t, a.Damaged.Has(tgt))
}

func TestResolve_InFlightProjectileIsUntouched(t *testing.T) {
	a := arena.New()
	src := shooter(a, "red", 0, 0, 5)
	tgt := dummy(a, "blue", 3, 0, 5)
	p := a.SpawnBullet(src, tgt, arena.Vec2{X: 2.999999}, arena.Vec2{X: 3}, 10)

	stats := runSystems(a, combat.ResolveProjectiles{})
	assert.Zero(t, stats.Hits)
	assert.True(t, a.World.IsLive(p))
	h, _ := a.Healths.Get(tgt)
	assert.Equal(t, uint32(5), h.Points)
}

func TestResolve_ToleranceAllowsNearArrival(t *testing.T) {
	a := arena.New()
	src := shooter(a, "red", 0, 0, 5)
	tgt := dummy(a, "blue", 3, 0, 5)
	p := a.SpawnBullet(src, tgt, arena.Vec2{X: 2.9}, arena.Vec2{X: 3}, 10)

	params := combat.DefaultParams()
	params.ArrivalTolerance = 0.25
	combat.NewPipeline(a, params, zap.NewNop(), combat.ResolveProjectiles{}).Tick()
	assert.False(t, a.World.IsLive(p))
	h, _ := a.Healths.Get(tgt)
	assert.Equal(t, uint32(4), h.Points)
}

func TestResolve_DeadTargetStillRemovesProjectile(t *testing.T) {
	a := arena.New()
	src := shooter(a, "red", 0, 0, 5)
	p := a.SpawnBullet(src, deadEntity(a), arena.Vec2{X: 3}, arena.Vec2{X: 3}, 10)

	stats := runSystems(a, combat.ResolveProjectiles{})
	assert.Zero(t, stats.Hits)
	assert.False(t, a.World.IsLive(p))
}

func TestResolve_SimultaneousHitsSaturate(t *testing.T) {
	a := arena.New()
	src := shooter(a, "red", 0, 0, 5)
	tgt := dummy(a, "blue", 3, 0, 2)
	for i := 0; i < 3; i++ {
		a.SpawnBullet(src, tgt, arena.Vec2{X: 3}, arena.Vec2{X: 3}, 10)
	}

	runSystems(a, combat.ResolveProjectiles{})
	h, _ := a.Healths.Get(tgt)
	assert.Equal(t, uint32(0), h.Points)
	assert.Zero(t, a.Bullets.Len())
}

// --- Retaliation ---

func markDamaged(a *arena.Arena, e, attacker ecs.Entity) {
	ecs.Attach(a.Buffer(), a.Damaged, e, arena.DamagedThisTick{Attacker: attacker})
	a.Flush()
}

func TestRetaliate_IdleUnitAttacksBack(t *testing.T) {
	a := arena.New()
	attacker := shooter(a, "red", 0, 0, 5)
	victim := dummy(a, "blue", 1, 0, 3)
	a.Flush()
	markDamaged(a, victim, attacker)

	stats := runSystems(a, combat.Retaliate{})
	assert.Equal(t, 1, stats.Retaliations)
	assert.Equal(t, []arena.Command{arena.Attack(attacker)}, queueOf(t, a, victim))
	assert.False(t, a.Damaged.Has(victim))
}

func TestRetaliate_BusyUnitKeepsOrders(t *testing.T) {
	a := arena.New()
	attacker := shooter(a, "red", 0, 0, 5)
	other := dummy(a, "red", 50, 0, 1)
	move := arena.AttackMove(arena.Vec2{X: 9})
	victim := dummy(a, "blue", 1, 0, 3, arena.Attack(other), move)
	a.Flush()
	markDamaged(a, victim, attacker)

	stats := runSystems(a, combat.Retaliate{})
	assert.Zero(t, stats.Retaliations)
	assert.Equal(t, []arena.Command{arena.Attack(other), move}, queueOf(t, a, victim))
	assert.False(t, a.Damaged.Has(victim))
}

func TestRetaliate_MarkerRemovedWithoutQueue(t *testing.T) {
	a := arena.New()
	buf := a.Buffer()
	e := buf.Spawn()
	ecs.Attach(buf, a.Healths, e, arena.Health{Points: 2})
	a.Flush()
	markDamaged(a, e, ecs.Entity(99))

	runSystems(a, combat.Retaliate{})
	assert.False(t, a.Damaged.Has(e))
}

// --- Death cleanup and cooldown decay ---

func TestRemoveDead(t *testing.T) {
	a := arena.New()
	dead := dummy(a, "blue", 0, 0, 0)
	alive := dummy(a, "red", 0, 0, 1)

	stats := runSystems(a, combat.RemoveDead{})
	assert.Equal(t, 1, stats.Kills)
	assert.Equal(t, map[arena.Side]int{"blue": 1}, stats.Losses)
	assert.False(t, a.World.IsLive(dead))
	assert.False(t, a.Positions.Has(dead))
	assert.True(t, a.World.IsLive(alive))
}

func TestDecayCooldowns(t *testing.T) {
	a := arena.New()
	hot := a.SpawnUnit(arena.UnitSpec{Side: "red", Health: 1, Cooldown: arena.Ptr(uint32(2))})
	cold := a.SpawnUnit(arena.UnitSpec{Side: "red", Health: 1, Cooldown: arena.Ptr(uint32(0))})

	runSystems(a, combat.DecayCooldowns{})
	h, _ := a.Cooldowns.Get(hot)
	c, _ := a.Cooldowns.Get(cold)
	assert.Equal(t, uint32(1), h.Ticks)
	assert.Equal(t, uint32(0), c.Ticks)
}

// --- Pipeline ---

func TestPipeline_DefaultOrder(t *testing.T) {
	p := combat.NewPipeline(arena.New(), combat.DefaultParams(), zap.NewNop())
	assert.Equal(t, []string{
		"prune_dead_targets",
		"acquire_targets",
		"fire",
		"resolve_projectiles",
		"retaliate",
		"remove_dead",
		"decay_cooldowns",
	}, p.Systems())
}

func TestPipeline_TickCounts(t *testing.T) {
	p := combat.NewPipeline(arena.New(), combat.DefaultParams(), zap.NewNop())
	assert.Equal(t, uint64(1), p.Tick().Tick)
	assert.Equal(t, uint64(2), p.Tick().Tick)
	assert.Equal(t, uint64(2), p.CurrentTick())
}

func TestPipeline_Conflicts(t *testing.T) {
	p := combat.NewPipeline(arena.New(), combat.DefaultParams(), zap.NewNop())
	conflicts := p.Conflicts()
	assert.Contains(t, conflicts, [2]string{"prune_dead_targets", "acquire_targets"})
	assert.Contains(t, conflicts, [2]string{"fire", "decay_cooldowns"})
	assert.Contains(t, conflicts, [2]string{"resolve_projectiles", "remove_dead"})
	assert.NotContains(t, conflicts, [2]string{"prune_dead_targets", "remove_dead"})
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, combat.DefaultParams().Validate())
	err := combat.Params{ProjectileSpeed: 0, ArrivalTolerance: -1}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "projectile speed")
	assert.Contains(t, err.Error(), "arrival tolerance")
}
