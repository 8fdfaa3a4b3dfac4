// Package pgjournal implements journal.Journal on PostgreSQL through gorm.
package pgjournal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/nathoo/npcmind/journal"
	"github.com/nathoo/npcmind/types"
)

type eventModel struct {
	ID         string `gorm:"primaryKey;type:uuid"`
	NPCID      string `gorm:"column:npc_id;not null;uniqueIndex:idx_journal_npc_seq,priority:1"`
	Seq        int64  `gorm:"not null;uniqueIndex:idx_journal_npc_seq,priority:2"`
	Type       string `gorm:"not null"`
	EventJSON  string `gorm:"column:event_json;type:jsonb;not null"`
	RecordedAt time.Time
}

func (eventModel) TableName() string {
	return "journal_events"
}

type checkpointModel struct {
	NPCID     string `gorm:"column:npc_id;primaryKey"`
	Seq       int64  `gorm:"not null"`
	StateJSON string `gorm:"column:state_json;type:jsonb;not null"`
	TakenAt   time.Time
}

func (checkpointModel) TableName() string {
	return "journal_checkpoints"
}

// Store is a PostgreSQL-backed journal.
type Store struct {
	db *gorm.DB

	mu     sync.RWMutex
	closed bool
}

var _ journal.Journal = (*Store)(nil)

// Open connects to databaseURL and migrates the journal tables.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return New(ctx, db)
}

// New wraps an open gorm handle and migrates the journal tables.
func New(ctx context.Context, db *gorm.DB) (*Store, error) {
	if err := db.WithContext(ctx).AutoMigrate(&eventModel{}, &checkpointModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal tables: %w", err)
	}
	return &Store{db: db}, nil
}

// DB returns the gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.db == nil {
		return nil
	}
	s.closed = true
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Append(ctx context.Context, recs []journal.Record) error {
	if len(recs) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return journal.ErrClosed
	}

	rows := make([]eventModel, len(recs))
	for i, rec := range recs {
		payload, err := json.Marshal(rec.Event)
		if err != nil {
			return fmt.Errorf("failed to encode event %s/%d: %w", rec.NPCID, rec.Seq, err)
		}
		rows[i] = eventModel{
			ID:         rec.ID.String(),
			NPCID:      rec.NPCID,
			Seq:        int64(rec.Seq),
			Type:       rec.Type,
			EventJSON:  string(payload),
			RecordedAt: rec.RecordedAt.UTC(),
		}
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to insert journal events: %w", err)
	}
	return nil
}

func (s *Store) Events(ctx context.Context, npcID string, after uint64) ([]journal.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, journal.ErrClosed
	}

	var rows []eventModel
	if err := s.db.WithContext(ctx).
		Where("npc_id = ? AND seq > ?", npcID, int64(after)).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query journal events: %w", err)
	}

	out := make([]journal.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := recordFromModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func recordFromModel(row eventModel) (journal.Record, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return journal.Record{}, fmt.Errorf("failed to parse event id %q: %w", row.ID, err)
	}
	rec := journal.Record{
		ID:         id,
		NPCID:      row.NPCID,
		Seq:        uint64(row.Seq),
		Type:       row.Type,
		RecordedAt: row.RecordedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.EventJSON), &rec.Event); err != nil {
		return journal.Record{}, fmt.Errorf("failed to decode event %s/%d: %w", row.NPCID, row.Seq, err)
	}
	return rec, nil
}

func (s *Store) Checkpoint(ctx context.Context, npcID string) (*types.NPCState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, journal.ErrClosed
	}

	var row checkpointModel
	err := s.db.WithContext(ctx).Where("npc_id = ?", npcID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}
	var st types.NPCState
	if err := json.Unmarshal([]byte(row.StateJSON), &st); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", npcID, err)
	}
	return &st, nil
}

func (s *Store) Rebase(ctx context.Context, st types.NPCState) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return journal.ErrClosed
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint %s: %w", st.NPCID, err)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("npc_id = ?", st.NPCID).Delete(&eventModel{}).Error; err != nil {
			return fmt.Errorf("failed to delete journal events: %w", err)
		}
		row := checkpointModel{
			NPCID:     st.NPCID,
			Seq:       int64(st.Seq),
			StateJSON: string(payload),
			TakenAt:   time.Now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to put checkpoint: %w", err)
		}
		return nil
	})
}

func (s *Store) NPCs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, journal.ErrClosed
	}

	var ids []string
	if err := s.db.WithContext(ctx).Raw(`
		SELECT npc_id FROM journal_events
		UNION
		SELECT npc_id FROM journal_checkpoints
		ORDER BY npc_id`).Scan(&ids).Error; err != nil {
		return nil, fmt.Errorf("failed to query journal npcs: %w", err)
	}
	return ids, nil
}
