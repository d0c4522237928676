package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/skirmish/internal/storage"
	"github.com/cory-johannsen/skirmish/internal/storage/sqlite"
	"github.com/cory-johannsen/skirmish/internal/storage/storagetest"
)

func openTemp(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "battles.db")
	s, err := sqlite.Open(path)
	require.NoError(t, err)
	return s, path
}

func TestStore_Contract(t *testing.T) {
	s, _ := openTemp(t)
	defer s.Close()
	storagetest.Run(t, s)
}

func TestStore_InMemory(t *testing.T) {
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	storagetest.Run(t, s)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	id := uuid.New()
	require.NoError(t, s.BeginBattle(ctx, storage.Battle{ID: id, Scenario: "duel", Sides: []string{"red"}, StartedAt: time.Now()}))
	require.NoError(t, s.RecordTick(ctx, id, storage.TickRecord{Tick: 1, Alive: map[string]int{"red": 1}}))
	require.NoError(t, s.Close())

	reopened, err := sqlite.Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	b, err := reopened.LoadBattle(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "duel", b.Scenario)
	assert.Equal(t, uint64(1), b.Ticks)
}

func TestStore_DuplicateTickFails(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()
	id := uuid.New()
	require.NoError(t, s.BeginBattle(ctx, storage.Battle{ID: id, Scenario: "x", Sides: []string{"a"}, StartedAt: time.Now()}))
	require.NoError(t, s.RecordTick(ctx, id, storage.TickRecord{Tick: 1}))
	assert.Error(t, s.RecordTick(ctx, id, storage.TickRecord{Tick: 1}))
}

func TestOpen_BadPath(t *testing.T) {
	_, err := sqlite.Open(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	assert.Error(t, err)
}
