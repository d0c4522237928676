package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/skirmish/internal/storage"
)

// BattleRepository provides battle persistence operations.
type BattleRepository struct {
	db *pgxpool.Pool
}

var _ storage.Recorder = (*BattleRepository)(nil)

// NewBattleRepository creates a BattleRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewBattleRepository(db *pgxpool.Pool) *BattleRepository {
	return &BattleRepository{db: db}
}

// BeginBattle inserts the battle summary row.
//
// Postcondition: Returns ErrBattleExists if b.ID is already recorded.
func (r *BattleRepository) BeginBattle(ctx context.Context, b storage.Battle) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO battles (id, scenario, sides, started_at)
		 VALUES ($1, $2, $3, $4)`,
		b.ID, b.Scenario, b.Sides, b.StartedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrBattleExists
		}
		return fmt.Errorf("inserting battle: %w", err)
	}
	return nil
}

// RecordTick appends one tick and advances the battle's tick count in a
// single transaction.
//
// Postcondition: Returns ErrBattleNotFound if id is unknown.
func (r *BattleRepository) RecordTick(ctx context.Context, id uuid.UUID, t storage.TickRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE battles SET ticks = GREATEST(ticks, $1) WHERE id = $2`,
		int64(t.Tick), id,
	)
	if err != nil {
		return fmt.Errorf("updating battle ticks: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrBattleNotFound
	}

	alive := t.Alive
	if alive == nil {
		alive = map[string]int{}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO battle_ticks (battle_id, tick, shots, hits, kills, retaliations, alive)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, int64(t.Tick), t.Shots, t.Hits, t.Kills, t.Retaliations, alive,
	); err != nil {
		return fmt.Errorf("inserting tick %d: %w", t.Tick, err)
	}
	return tx.Commit(ctx)
}

// FinishBattle stores the battle result.
//
// Postcondition: Returns ErrBattleNotFound if id is unknown.
func (r *BattleRepository) FinishBattle(ctx context.Context, id uuid.UUID, res storage.Result) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE battles SET finished_at = $1, winner = $2, draw = $3, ticks = $4 WHERE id = $5`,
		res.FinishedAt, res.Winner, res.Draw, int64(res.Ticks), id,
	)
	if err != nil {
		return fmt.Errorf("finishing battle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrBattleNotFound
	}
	return nil
}

// LoadBattle returns the battle summary.
//
// Postcondition: Returns ErrBattleNotFound if id is unknown.
func (r *BattleRepository) LoadBattle(ctx context.Context, id uuid.UUID) (storage.Battle, error) {
	var (
		b     storage.Battle
		ticks int64
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, scenario, sides, started_at, finished_at, winner, draw, ticks
		 FROM battles WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.Scenario, &b.Sides, &b.StartedAt, &b.FinishedAt, &b.Winner, &b.Draw, &ticks)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.Battle{}, storage.ErrBattleNotFound
	}
	if err != nil {
		return storage.Battle{}, fmt.Errorf("loading battle: %w", err)
	}
	b.Ticks = uint64(ticks)
	return b, nil
}

// Ticks returns every recorded tick of the battle in order.
//
// Postcondition: Returns ErrBattleNotFound if id is unknown.
func (r *BattleRepository) Ticks(ctx context.Context, id uuid.UUID) ([]storage.TickRecord, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM battles WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking battle: %w", err)
	}
	if !exists {
		return nil, storage.ErrBattleNotFound
	}

	rows, err := r.db.Query(ctx,
		`SELECT tick, shots, hits, kills, retaliations, alive
		 FROM battle_ticks WHERE battle_id = $1 ORDER BY tick`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying ticks: %w", err)
	}
	defer rows.Close()

	var out []storage.TickRecord
	for rows.Next() {
		var (
			t    storage.TickRecord
			tick int64
		)
		if err := rows.Scan(&tick, &t.Shots, &t.Hits, &t.Kills, &t.Retaliations, &t.Alive); err != nil {
			return nil, fmt.Errorf("scanning tick: %w", err)
		}
		t.Tick = uint64(tick)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Recent returns the most recently started battles, newest first.
//
// Precondition: limit > 0.
func (r *BattleRepository) Recent(ctx context.Context, limit int) ([]storage.Battle, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, scenario, sides, started_at, finished_at, winner, draw, ticks
		 FROM battles ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying battles: %w", err)
	}
	defer rows.Close()

	var out []storage.Battle
	for rows.Next() {
		var (
			b     storage.Battle
			ticks int64
		)
		if err := rows.Scan(&b.ID, &b.Scenario, &b.Sides, &b.StartedAt, &b.FinishedAt, &b.Winner, &b.Draw, &ticks); err != nil {
			return nil, fmt.Errorf("scanning battle: %w", err)
		}
		b.Ticks = uint64(ticks)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Store adapts a Pool and its BattleRepository to storage.Store.
type Store struct {
	*BattleRepository
	pool *Pool
}

var _ storage.Store = (*Store)(nil)

// NewStore wraps pool.
//
// Precondition: pool must be connected and migrated.
func NewStore(pool *Pool) *Store {
	return &Store{BattleRepository: NewBattleRepository(pool.DB()), pool: pool}
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Health pings the database.
func (s *Store) Health(ctx context.Context) error {
	return s.pool.Health(ctx, 2*time.Second)
}
