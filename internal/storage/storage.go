// Package storage defines how battle results are recorded and read back. The
// postgres and sqlite subpackages implement Store.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrBattleNotFound is returned when a battle lookup yields no results.
var ErrBattleNotFound = errors.New("battle not found")

// ErrBattleExists is returned when a battle ID is recorded twice.
var ErrBattleExists = errors.New("battle already exists")

// Battle is the summary row of one battle.
type Battle struct {
	ID        uuid.UUID
	Scenario  string
	Sides     []string
	StartedAt time.Time
	// FinishedAt is nil while the battle is running.
	FinishedAt *time.Time
	// Winner is empty for a draw or an unfinished battle.
	Winner string
	Draw   bool
	Ticks  uint64
}

// Finished reports whether FinishBattle has been recorded.
func (b Battle) Finished() bool { return b.FinishedAt != nil }

// TickRecord is what one tick did.
type TickRecord struct {
	Tick         uint64
	Shots        int
	Hits         int
	Kills        int
	Retaliations int
	Alive        map[string]int
}

// Result is the final state of a battle.
type Result struct {
	Winner     string
	Draw       bool
	Ticks      uint64
	FinishedAt time.Time
}

// Recorder receives battle progress as it happens.
type Recorder interface {
	// BeginBattle records a new battle. Returns ErrBattleExists if b.ID is
	// already recorded.
	BeginBattle(ctx context.Context, b Battle) error
	// RecordTick appends one tick. Returns ErrBattleNotFound for an unknown id.
	RecordTick(ctx context.Context, id uuid.UUID, t TickRecord) error
	// FinishBattle stores the result. Returns ErrBattleNotFound for an
	// unknown id.
	FinishBattle(ctx context.Context, id uuid.UUID, r Result) error
}

// Store is a Recorder that can also read battles back.
type Store interface {
	Recorder
	// LoadBattle returns the summary of id, or ErrBattleNotFound.
	LoadBattle(ctx context.Context, id uuid.UUID) (Battle, error)
	// Ticks returns every recorded tick of id in tick order, or
	// ErrBattleNotFound.
	Ticks(ctx context.Context, id uuid.UUID) ([]TickRecord, error)
	Close() error
}

// Nop is a Store that records nothing.
type Nop struct{}

func (Nop) BeginBattle(context.Context, Battle) error { return nil }
func (Nop) RecordTick(context.Context, uuid.UUID, TickRecord) error { return nil }
func (Nop) FinishBattle(context.Context, uuid.UUID, Result) error { return nil }
func (Nop) LoadBattle(context.Context, uuid.UUID) (Battle, error) { return Battle{}, ErrBattleNotFound }
func (Nop) Ticks(context.Context, uuid.UUID) ([]TickRecord, error) { return nil, ErrBattleNotFound }
func (Nop) Close() error { return nil }
