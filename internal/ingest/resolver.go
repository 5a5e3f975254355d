package ingest

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"support-inbox-go/internal/mailbox"
	"support-inbox-go/internal/model"
)

// Outcome describes what filing a message onto a ticket actually did.
type Outcome int

const (
	// OutcomeCreated means a new ticket was opened for the message's thread.
	OutcomeCreated Outcome = iota
	// OutcomeAppended means the message was added to an existing ticket.
	OutcomeAppended
	// OutcomeDuplicate means the unique constraints identified the message
	// as already ingested; nothing was written.
	OutcomeDuplicate
)

// TicketStore is the persistence surface the ingestion path writes through.
// It is implemented by repository.TicketRepository; duplicate-key violations
// must come back wrapped around gorm.ErrDuplicatedKey.
type TicketStore interface {
	AlreadyIngested(ctx context.Context, providerMessageID string) (bool, error)
	TicketByProviderThread(ctx context.Context, threadID string) (*model.Ticket, error)
	CreateTicketForMessage(ctx context.Context, msg *mailbox.RemoteMessage) (*model.Ticket, error)
	AppendMessage(ctx context.Context, ticket *model.Ticket, msg *mailbox.RemoteMessage) error
}

// ThreadResolver maps provider thread ids onto tickets and applies the
// create-or-append policy: the first message of a thread opens a ticket,
// every later one is appended.
type ThreadResolver struct {
	store TicketStore
}

// NewThreadResolver creates a new thread resolver
func NewThreadResolver(store TicketStore) *ThreadResolver {
	return &ThreadResolver{store: store}
}

// Resolve returns the ticket already holding the given thread, or nil when
// the thread is new.
func (r *ThreadResolver) Resolve(ctx context.Context, threadID string) (*model.Ticket, error) {
	return r.store.TicketByProviderThread(ctx, threadID)
}

// CreateOrAppend files the message onto the ticket owning its thread,
// creating the ticket when the thread is new. Races between concurrent runs
// are settled by the store's unique constraints: a create that loses the race
// re-resolves and appends, and an append that loses the race is a duplicate.
func (r *ThreadResolver) CreateOrAppend(ctx context.Context, msg *mailbox.RemoteMessage) (Outcome, error) {
	ticket, err := r.Resolve(ctx, msg.ProviderThreadID)
	if err != nil {
		return OutcomeDuplicate, err
	}

	if ticket == nil {
		if _, err := r.store.CreateTicketForMessage(ctx, msg); err == nil {
			return OutcomeCreated, nil
		} else if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return OutcomeDuplicate, err
		}

		// Lost the first-ticket race for this thread; re-read and append.
		ticket, err = r.Resolve(ctx, msg.ProviderThreadID)
		if err != nil {
			return OutcomeDuplicate, err
		}
		if ticket == nil {
			// The conflict was on the message id itself, not the thread:
			// this exact message has already been ingested.
			return OutcomeDuplicate, nil
		}
	}

	if err := r.store.AppendMessage(ctx, ticket, msg); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return OutcomeDuplicate, nil
		}
		return OutcomeDuplicate, fmt.Errorf("failed to append to ticket %d: %w", ticket.ID, err)
	}
	return OutcomeAppended, nil
}
