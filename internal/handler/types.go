package handler

import "time"

// WebhookResponse is the body returned to the push notification caller.
type WebhookResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Database   string            `json:"database"`
	Mailbox    string            `json:"mailbox"`
	Checkpoint *uint64           `json:"checkpoint,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

// CustomerResponse represents a customer in API responses
type CustomerResponse struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// MessageResponse represents a ticket message in API responses
type MessageResponse struct {
	ID                uint      `json:"id"`
	Direction         string    `json:"direction"`
	Content           string    `json:"content"`
	SenderAddress     string    `json:"sender_address,omitempty"`
	ProviderMessageID *string   `json:"provider_message_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// TicketResponse represents a ticket in API responses
type TicketResponse struct {
	ID               uint              `json:"id"`
	Number           string            `json:"number"`
	Subject          string            `json:"subject"`
	Status           string            `json:"status"`
	Priority         string            `json:"priority"`
	Category         string            `json:"category"`
	Customer         *CustomerResponse `json:"customer,omitempty"`
	ProviderThreadID *string           `json:"provider_thread_id,omitempty"`
	LastMessageAt    time.Time         `json:"last_message_at"`
	CreatedAt        time.Time         `json:"created_at"`
	Messages         []MessageResponse `json:"messages,omitempty"`
}
