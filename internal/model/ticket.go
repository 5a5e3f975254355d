package model

import (
	"time"

	"gorm.io/gorm"
)

// Ticket status values.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusClosed     = "closed"
)

// Ticket priority values.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// CategoryEmail is the category stamped on tickets created from inbound mail.
const CategoryEmail = "email"

// Ticket represents a support ticket in the database.
//
// ProviderThreadID and ProviderMessageID carry the mail provider's identifiers
// for tickets created from inbound email. Both are unique when present: the
// uniqueness constraints are the authoritative guard against a notification
// redelivery creating two tickets for the same physical email.
// ProviderMessageID always holds the id of the message that created or last
// touched the ticket.
type Ticket struct {
	ID                uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	Number            string         `json:"number" gorm:"type:varchar(36);not null;uniqueIndex"`
	Subject           string         `json:"subject" gorm:"type:varchar(512);not null"`
	Status            string         `json:"status" gorm:"type:varchar(20);not null;default:open;index"`
	Priority          string         `json:"priority" gorm:"type:varchar(20);not null;default:medium"`
	Category          string         `json:"category" gorm:"type:varchar(50);not null"`
	CustomerID        uint           `json:"customer_id" gorm:"not null;index"`
	ProviderThreadID  *string        `json:"provider_thread_id,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	ProviderMessageID *string        `json:"provider_message_id,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	LastMessageAt     time.Time      `json:"last_message_at"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`

	Customer *Customer `json:"customer,omitempty" gorm:"foreignKey:CustomerID;constraint:OnDelete:RESTRICT"`
	Messages []Message `json:"messages,omitempty" gorm:"foreignKey:TicketID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Ticket
func (Ticket) TableName() string {
	return "tickets"
}
