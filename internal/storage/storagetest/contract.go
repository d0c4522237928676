// Package storagetest checks that a storage.Store implementation honors the
// Store contract.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/skirmish/internal/storage"
)

// Run exercises s against the Store contract. s must be empty.
func Run(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		started := time.Now().UTC().Truncate(time.Millisecond)
		b := storage.Battle{
			ID:        uuid.New(),
			Scenario:  "duel",
			Sides:     []string{"blue", "red"},
			StartedAt: started,
		}
		require.NoError(t, s.BeginBattle(ctx, b))

		got, err := s.LoadBattle(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b.ID, got.ID)
		assert.Equal(t, "duel", got.Scenario)
		assert.Equal(t, []string{"blue", "red"}, got.Sides)
		assert.WithinDuration(t, started, got.StartedAt, time.Millisecond)
		assert.False(t, got.Finished())

		for tick := uint64(1); tick <= 3; tick++ {
			require.NoError(t, s.RecordTick(ctx, b.ID, storage.TickRecord{
				Tick:  tick,
				Shots: int(tick),
				Hits:  1,
				Kills: 0,
				Alive: map[string]int{"red": 2, "blue": int(3 - tick)},
			}))
		}
		ticks, err := s.Ticks(ctx, b.ID)
		require.NoError(t, err)
		require.Len(t, ticks, 3)
		assert.Equal(t, uint64(1), ticks[0].Tick)
		assert.Equal(t, 3, ticks[2].Shots)
		assert.Equal(t, map[string]int{"red": 2, "blue": 0}, ticks[2].Alive)

		finished := started.Add(time.Second)
		require.NoError(t, s.FinishBattle(ctx, b.ID, storage.Result{
			Winner:     "red",
			Ticks:      3,
			FinishedAt: finished,
		}))
		got, err = s.LoadBattle(ctx, b.ID)
		require.NoError(t, err)
		require.True(t, got.Finished())
		assert.WithinDuration(t, finished, *got.FinishedAt, time.Millisecond)
		assert.Equal(t, "red", got.Winner)
		assert.False(t, got.Draw)
		assert.Equal(t, uint64(3), got.Ticks)
	})

	t.Run("draw", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, s.BeginBattle(ctx, storage.Battle{ID: id, Scenario: "stalemate", Sides: []string{"a", "b"}, StartedAt: time.Now().UTC()}))
		require.NoError(t, s.FinishBattle(ctx, id, storage.Result{Draw: true, Ticks: 100, FinishedAt: time.Now().UTC()}))
		got, err := s.LoadBattle(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Draw)
		assert.Empty(t, got.Winner)
	})

	t.Run("duplicate battle", func(t *testing.T) {
		b := storage.Battle{ID: uuid.New(), Scenario: "dup", Sides: []string{"a"}, StartedAt: time.Now().UTC()}
		require.NoError(t, s.BeginBattle(ctx, b))
		assert.ErrorIs(t, s.BeginBattle(ctx, b), storage.ErrBattleExists)
	})

	t.Run("unknown battle", func(t *testing.T) {
		id := uuid.New()
		_, err := s.LoadBattle(ctx, id)
		assert.ErrorIs(t, err, storage.ErrBattleNotFound)
		_, err = s.Ticks(ctx, id)
		assert.ErrorIs(t, err, storage.ErrBattleNotFound)
		assert.ErrorIs(t, s.RecordTick(ctx, id, storage.TickRecord{Tick: 1}), storage.ErrBattleNotFound)
		assert.ErrorIs(t, s.FinishBattle(ctx, id, storage.Result{}), storage.ErrBattleNotFound)
	})

	t.Run("battle without ticks", func(t *testing.T) {
		id := uuid.New()
		require.NoError(t, s.BeginBattle(ctx, storage.Battle{ID: id, Scenario: "quiet", Sides: []string{"a"}, StartedAt: time.Now().UTC()}))
		ticks, err := s.Ticks(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, ticks)
	})
}
