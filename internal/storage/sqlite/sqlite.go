// Package sqlite records battles in an embedded SQLite database for
// standalone runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/cory-johannsen/skirmish/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS battles (
	id          TEXT PRIMARY KEY,
	scenario    TEXT NOT NULL,
	sides       BLOB NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	winner      TEXT NOT NULL DEFAULT '',
	draw        INTEGER NOT NULL DEFAULT 0,
	ticks       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS battle_ticks (
	battle_id    TEXT NOT NULL REFERENCES battles(id) ON DELETE CASCADE,
	tick         INTEGER NOT NULL,
	shots        INTEGER NOT NULL DEFAULT 0,
	hits         INTEGER NOT NULL DEFAULT 0,
	kills        INTEGER NOT NULL DEFAULT 0,
	retaliations INTEGER NOT NULL DEFAULT 0,
	alive        BLOB NOT NULL,
	PRIMARY KEY (battle_id, tick)
);
`

// Store is a storage.Store over one SQLite file.
type Store struct {
	conn *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
//
// Precondition: path must be a writable file path or ":memory:".
// Postcondition: Returns a ready Store or a non-nil error.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %q: %w", path, err)
	}
	// One connection: SQLite allows a single writer, and ":memory:" is per
	// connection.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying %q: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying sqlite schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.conn.Close()
}

// BeginBattle inserts the battle summary row.
func (s *Store) BeginBattle(ctx context.Context, b storage.Battle) error {
	sides, err := msgpack.Marshal(b.Sides)
	if err != nil {
		return fmt.Errorf("encoding sides: %w", err)
	}
	res, err := s.conn.ExecContext(ctx,
		`INSERT INTO battles (id, scenario, sides, started_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		b.ID.String(), b.Scenario, sides, b.StartedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting battle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrBattleExists
	}
	return nil
}

// RecordTick appends one tick and advances the battle's tick count.
func (s *Store) RecordTick(ctx context.Context, id uuid.UUID, t storage.TickRecord) error {
	alive, err := msgpack.Marshal(t.Alive)
	if err != nil {
		return fmt.Errorf("encoding alive counts: %w", err)
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE battles SET ticks = MAX(ticks, ?) WHERE id = ?`,
		int64(t.Tick), id.String(),
	)
	if err != nil {
		return fmt.Errorf("updating battle ticks: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrBattleNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO battle_ticks (battle_id, tick, shots, hits, kills, retaliations, alive)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), int64(t.Tick), t.Shots, t.Hits, t.Kills, t.Retaliations, alive,
	); err != nil {
		return fmt.Errorf("inserting tick %d: %w", t.Tick, err)
	}
	return tx.Commit()
}

// FinishBattle stores the battle result.
func (s *Store) FinishBattle(ctx context.Context, id uuid.UUID, r storage.Result) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE battles SET finished_at = ?, winner = ?, draw = ?, ticks = ? WHERE id = ?`,
		r.FinishedAt.UnixMilli(), r.Winner, r.Draw, int64(r.Ticks), id.String(),
	)
	if err != nil {
		return fmt.Errorf("finishing battle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrBattleNotFound
	}
	return nil
}

// LoadBattle returns the battle summary.
func (s *Store) LoadBattle(ctx context.Context, id uuid.UUID) (storage.Battle, error) {
	var (
		b        storage.Battle
		rawID    string
		sides    []byte
		started  int64
		finished sql.NullInt64
		ticks    int64
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, scenario, sides, started_at, finished_at, winner, draw, ticks
		 FROM battles WHERE id = ?`,
		id.String(),
	).Scan(&rawID, &b.Scenario, &sides, &started, &finished, &b.Winner, &b.Draw, &ticks)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Battle{}, storage.ErrBattleNotFound
	}
	if err != nil {
		return storage.Battle{}, fmt.Errorf("loading battle: %w", err)
	}
	if b.ID, err = uuid.Parse(rawID); err != nil {
		return storage.Battle{}, fmt.Errorf("parsing battle id %q: %w", rawID, err)
	}
	if err := msgpack.Unmarshal(sides, &b.Sides); err != nil {
		return storage.Battle{}, fmt.Errorf("decoding sides: %w", err)
	}
	b.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		at := time.UnixMilli(finished.Int64).UTC()
		b.FinishedAt = &at
	}
	b.Ticks = uint64(ticks)
	return b, nil
}

// Ticks returns every recorded tick of the battle in order.
func (s *Store) Ticks(ctx context.Context, id uuid.UUID) ([]storage.TickRecord, error) {
	if _, err := s.LoadBattle(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT tick, shots, hits, kills, retaliations, alive
		 FROM battle_ticks WHERE battle_id = ? ORDER BY tick`,
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("querying ticks: %w", err)
	}
	defer rows.Close()

	var out []storage.TickRecord
	for rows.Next() {
		var (
			t     storage.TickRecord
			tick  int64
			alive []byte
		)
		if err := rows.Scan(&tick, &t.Shots, &t.Hits, &t.Kills, &t.Retaliations, &alive); err != nil {
			return nil, fmt.Errorf("scanning tick: %w", err)
		}
		t.Tick = uint64(tick)
		if err := msgpack.Unmarshal(alive, &t.Alive); err != nil {
			return nil, fmt.Errorf("decoding alive counts: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
