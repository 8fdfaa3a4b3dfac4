// Package sqlitejournal implements journal.Journal over a single SQLite file.
package sqlitejournal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nathoo/npcmind/journal"
	"github.com/nathoo/npcmind/journal/sqlitejournal/migrations"
	"github.com/nathoo/npcmind/types"
)

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store is a SQLite-backed journal.
type Store struct {
	sqlDB *sql.DB

	mu     sync.RWMutex
	closed bool
}

var _ journal.Journal = (*Store)(nil)

// Open opens a journal database at path and applies bundled migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// DB returns the raw database handle.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.sqlDB.Close()
}

func (s *Store) check() error {
	if s.closed {
		return journal.ErrClosed
	}
	return nil
}

// Append writes recs in one transaction.
func (s *Store) Append(ctx context.Context, recs []journal.Record) error {
	if len(recs) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO journal_events (id, npc_id, seq, type, event_json, recorded_at)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		payload, err := json.Marshal(rec.Event)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode event %s/%d: %w", rec.NPCID, rec.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.ID.String(), rec.NPCID, int64(rec.Seq), rec.Type, string(payload), toMillis(rec.RecordedAt),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert event %s/%d: %w", rec.NPCID, rec.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// Events returns npcID's records after the given seq.
func (s *Store) Events(ctx context.Context, npcID string, after uint64) ([]journal.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, npc_id, seq, type, event_json, recorded_at
FROM journal_events
WHERE npc_id = ? AND seq > ?
ORDER BY seq ASC`, npcID, int64(after))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []journal.Record
	for rows.Next() {
		var (
			id, npc, typ, payload string
			seq, recordedAt       int64
		)
		if err := rows.Scan(&id, &npc, &seq, &typ, &payload, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec := journal.Record{
			NPCID:      npc,
			Seq:        uint64(seq),
			Type:       typ,
			RecordedAt: fromMillis(recordedAt),
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse event id %q: %w", id, err)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Event); err != nil {
			return nil, fmt.Errorf("decode event %s/%d: %w", npc, seq, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Checkpoint returns npcID's checkpoint, or nil if it has none.
func (s *Store) Checkpoint(ctx context.Context, npcID string) (*types.NPCState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	var payload string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT state_json FROM journal_checkpoints WHERE npc_id = ?`, npcID,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}
	var st types.NPCState
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", npcID, err)
	}
	return &st, nil
}

// Rebase drops st.NPCID's events and stores st as its checkpoint.
func (s *Store) Rebase(ctx context.Context, st types.NPCState) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return err
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", st.NPCID, err)
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebase: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM journal_events WHERE npc_id = ?`, st.NPCID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete events: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO journal_checkpoints (npc_id, seq, state_json, taken_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(npc_id) DO UPDATE SET
    seq = excluded.seq,
    state_json = excluded.state_json,
    taken_at = excluded.taken_at`,
		st.NPCID, int64(st.Seq), string(payload), toMillis(time.Now()),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("put checkpoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebase: %w", err)
	}
	return nil
}

// NPCs lists every NPC with journaled history, sorted by id.
func (s *Store) NPCs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT npc_id FROM journal_events
UNION
SELECT npc_id FROM journal_checkpoints
ORDER BY npc_id`)
	if err != nil {
		return nil, fmt.Errorf("query npcs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan npc: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
