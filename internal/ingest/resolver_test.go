package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"support-inbox-go/internal/mailbox"
	"support-inbox-go/internal/model"
)

func remoteMessage(id, threadID string) *mailbox.RemoteMessage {
	return &mailbox.RemoteMessage{
		ProviderMessageID: id,
		ProviderThreadID:  threadID,
		Subject:           "subject " + id,
		SenderAddress:     "alice@example.com",
		Body:              "body " + id,
		ReceivedAt:        time.Now(),
	}
}

func TestCreateOrAppendCreatesForNewThread(t *testing.T) {
	store := newMemStore()
	resolver := NewThreadResolver(store)

	outcome, err := resolver.CreateOrAppend(context.Background(), remoteMessage("201", "thread-a"))
	assert.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, 1, store.ticketCount())
}

func TestCreateOrAppendAppendsToExistingThread(t *testing.T) {
	store := newMemStore()
	resolver := NewThreadResolver(store)

	_, err := resolver.CreateOrAppend(context.Background(), remoteMessage("201", "thread-a"))
	assert.NoError(t, err)

	outcome, err := resolver.CreateOrAppend(context.Background(), remoteMessage("202", "thread-a"))
	assert.NoError(t, err)
	assert.Equal(t, OutcomeAppended, outcome)
	assert.Equal(t, 1, store.ticketCount())
	assert.Equal(t, 2, store.messageCount())
}

func TestCreateOrAppendDuplicateMessageIsNoOp(t *testing.T) {
	store := newMemStore()
	resolver := NewThreadResolver(store)

	_, err := resolver.CreateOrAppend(context.Background(), remoteMessage("201", "thread-a"))
	assert.NoError(t, err)

	// Same thread, same message id: the append hits the unique constraint.
	outcome, err := resolver.CreateOrAppend(context.Background(), remoteMessage("201", "thread-a"))
	assert.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, 1, store.messageCount())
}

// raceStore simulates losing the first-ticket race: the initial thread lookup
// sees nothing, the create conflicts, and the re-read finds the winner's
// ticket.
type raceStore struct {
	*memStore
	resolveCalls int
}

func (s *raceStore) TicketByProviderThread(ctx context.Context, threadID string) (*model.Ticket, error) {
	s.resolveCalls++
	if s.resolveCalls == 1 {
		return nil, nil
	}
	return s.memStore.TicketByProviderThread(ctx, threadID)
}

func (s *raceStore) CreateTicketForMessage(ctx context.Context, msg *mailbox.RemoteMessage) (*model.Ticket, error) {
	if _, ok := s.byThread[msg.ProviderThreadID]; ok {
		return nil, fmt.Errorf("ticket thread conflict: %w", gorm.ErrDuplicatedKey)
	}
	return s.memStore.CreateTicketForMessage(ctx, msg)
}

func TestCreateOrAppendLoserOfCreateRaceAppends(t *testing.T) {
	inner := newMemStore()
	// The winner's ticket already exists when the loser's create runs.
	_, err := inner.CreateTicketForMessage(context.Background(), remoteMessage("200", "thread-a"))
	if err != nil {
		t.Fatalf("seed ticket failed: %v", err)
	}

	store := &raceStore{memStore: inner}
	resolver := NewThreadResolver(store)

	outcome, err := resolver.CreateOrAppend(context.Background(), remoteMessage("201", "thread-a"))
	assert.NoError(t, err)
	assert.Equal(t, OutcomeAppended, outcome)
	assert.Equal(t, 1, inner.ticketCount())
	assert.Equal(t, 2, inner.messageCount())
}
