package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"support-inbox-go/internal/mailbox"
	"support-inbox-go/internal/model"
)

// TicketRepository is the persistence layer for tickets, messages and
// customers. Duplicate-key violations are returned wrapped around
// gorm.ErrDuplicatedKey; the ingestion layer treats them as already-ingested
// no-ops.
type TicketRepository struct {
	db *gorm.DB
}

// New creates a new ticket repository
func New(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// AlreadyIngested reports whether a ticket or message already exists for the
// given provider message id. This is an optimization only; the unique
// constraints on those columns remain the authoritative guarantee.
func (r *TicketRepository) AlreadyIngested(ctx context.Context, providerMessageID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Ticket{}).
		Where("provider_message_id = ?", providerMessageID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check tickets for message %s: %w", providerMessageID, err)
	}
	if count > 0 {
		return true, nil
	}

	err = r.db.WithContext(ctx).Model(&model.Message{}).
		Where("provider_message_id = ?", providerMessageID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check messages for message %s: %w", providerMessageID, err)
	}
	return count > 0, nil
}

// TicketByProviderThread returns the ticket holding the given provider thread
// id, or nil when no ticket matches.
func (r *TicketRepository) TicketByProviderThread(ctx context.Context, threadID string) (*model.Ticket, error) {
	var ticket model.Ticket
	err := r.db.WithContext(ctx).Where("provider_thread_id = ?", threadID).First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ticket for thread %s: %w", threadID, err)
	}
	return &ticket, nil
}

// CreateTicketForMessage creates a new open ticket holding the message's
// thread, together with its first message, in one transaction. The customer
// is looked up (or created) by sender address beforehand so the remote-shaped
// data never crosses a transaction boundary.
func (r *TicketRepository) CreateTicketForMessage(ctx context.Context, msg *mailbox.RemoteMessage) (*model.Ticket, error) {
	customer, err := r.findOrCreateCustomer(ctx, msg.SenderAddress, msg.SenderName)
	if err != nil {
		return nil, err
	}

	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}

	threadID := msg.ProviderThreadID
	messageID := msg.ProviderMessageID
	ticket := model.Ticket{
		Number:            uuid.NewString(),
		Subject:           subject,
		Status:            model.StatusOpen,
		Priority:          model.PriorityMedium,
		Category:          model.CategoryEmail,
		CustomerID:        customer.ID,
		ProviderThreadID:  &threadID,
		ProviderMessageID: &messageID,
		LastMessageAt:     msg.ReceivedAt,
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ticket).Error; err != nil {
			return err
		}
		message := model.Message{
			TicketID:          ticket.ID,
			Direction:         model.DirectionInbound,
			Content:           msg.Body,
			SenderAddress:     msg.SenderAddress,
			ProviderMessageID: &messageID,
		}
		return tx.Create(&message).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket for message %s: %w", msg.ProviderMessageID, err)
	}

	return &ticket, nil
}

// AppendMessage adds the message to an existing ticket and stamps the
// ticket's last-message state, reopening it when it was closed.
func (r *TicketRepository) AppendMessage(ctx context.Context, ticket *model.Ticket, msg *mailbox.RemoteMessage) error {
	messageID := msg.ProviderMessageID

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		message := model.Message{
			TicketID:          ticket.ID,
			Direction:         model.DirectionInbound,
			Content:           msg.Body,
			SenderAddress:     msg.SenderAddress,
			ProviderMessageID: &messageID,
		}
		if err := tx.Create(&message).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"last_message_at":     msg.ReceivedAt,
			"provider_message_id": messageID,
		}
		if ticket.Status == model.StatusClosed {
			updates["status"] = model.StatusOpen
		}
		return tx.Model(&model.Ticket{}).Where("id = ?", ticket.ID).Updates(updates).Error
	})
	if err != nil {
		return fmt.Errorf("failed to append message %s to ticket %d: %w", msg.ProviderMessageID, ticket.ID, err)
	}
	return nil
}

// findOrCreateCustomer looks the customer up by email, creating one on first
// contact. It never merges details onto an existing customer.
func (r *TicketRepository) findOrCreateCustomer(ctx context.Context, email, name string) (*model.Customer, error) {
	var customer model.Customer
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&customer).Error
	if err == nil {
		return &customer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up customer %s: %w", email, err)
	}

	customer = model.Customer{Email: email, Name: name}
	err = r.db.WithContext(ctx).Create(&customer).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// Concurrent first contact; the other writer won.
		if err := r.db.WithContext(ctx).Where("email = ?", email).First(&customer).Error; err != nil {
			return nil, fmt.Errorf("failed to re-read customer %s after conflict: %w", email, err)
		}
		return &customer, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create customer %s: %w", email, err)
	}
	return &customer, nil
}

// ListTickets returns tickets ordered by most recent activity.
func (r *TicketRepository) ListTickets(ctx context.Context, limit, offset int) ([]model.Ticket, error) {
	var tickets []model.Ticket
	err := r.db.WithContext(ctx).
		Preload("Customer").
		Order("last_message_at DESC").
		Limit(limit).Offset(offset).
		Find(&tickets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// GetTicket returns a single ticket with its customer and messages, or nil
// when it does not exist.
func (r *TicketRepository) GetTicket(ctx context.Context, id uint) (*model.Ticket, error) {
	var ticket model.Ticket
	err := r.db.WithContext(ctx).
		Preload("Customer").
		Preload("Messages").
		First(&ticket, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticket %d: %w", id, err)
	}
	return &ticket, nil
}
