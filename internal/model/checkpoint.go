package model

import (
	"time"
)

// CheckpointKeyGmail is the logical key of the single Gmail ingestion
// checkpoint row.
const CheckpointKeyGmail = "gmail_inbox"

// SyncCheckpoint persists the last mailbox history id that has been fully
// ingested. There is exactly one row per mailbox integration; advances go
// through an upsert that never lowers the stored value.
type SyncCheckpoint struct {
	Key       string    `json:"key" gorm:"type:varchar(64);primaryKey"`
	HistoryID uint64    `json:"history_id" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for SyncCheckpoint
func (SyncCheckpoint) TableName() string {
	return "sync_checkpoints"
}
