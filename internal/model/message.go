package model

import (
	"time"
)

// Message direction values.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Message represents a single message on a ticket. Inbound messages created
// from mail carry the provider's message id; the unique index on it makes a
// re-delivered mid-thread email a duplicate-key no-op instead of a second row.
type Message struct {
	ID                uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TicketID          uint      `json:"ticket_id" gorm:"not null;index"`
	Direction         string    `json:"direction" gorm:"type:varchar(20);not null"`
	Content           string    `json:"content" gorm:"type:text"`
	SenderAddress     string    `json:"sender_address" gorm:"type:varchar(255)"`
	ProviderMessageID *string   `json:"provider_message_id,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	CreatedAt         time.Time `json:"created_at"`
}

// TableName specifies the table name for Message
func (Message) TableName() string {
	return "messages"
}
