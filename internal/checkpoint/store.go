package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"support-inbox-go/internal/model"
)

// Store persists the single mailbox ingestion checkpoint. Callers only call
// Advance with a history id they know is fully processed; the store itself
// additionally guarantees the value never decreases.
type Store struct {
	db  *gorm.DB
	key string
}

// NewStore creates a checkpoint store for the Gmail integration
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, key: model.CheckpointKeyGmail}
}

// Get returns the current checkpoint value. The bool reports whether a
// checkpoint exists at all (false on cold start).
func (s *Store) Get(ctx context.Context) (uint64, bool, error) {
	var cp model.SyncCheckpoint
	err := s.db.WithContext(ctx).Where("`key` = ?", s.key).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return cp.HistoryID, true, nil
}

// Advance upserts the checkpoint in a single atomic statement. GREATEST keeps
// the stored value monotonic even when overlapping runs commit out of order.
func (s *Store) Advance(ctx context.Context, historyID uint64) error {
	cp := model.SyncCheckpoint{
		Key:       s.key,
		HistoryID: historyID,
		UpdatedAt: time.Now(),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"history_id": gorm.Expr("GREATEST(history_id, VALUES(history_id))"),
			"updated_at": time.Now(),
		}),
	}).Create(&cp).Error
	if err != nil {
		return fmt.Errorf("failed to advance checkpoint to %d: %w", historyID, err)
	}
	return nil
}
