package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"support-inbox-go/internal/mailbox"
	metricsPkg "support-inbox-go/internal/metrics"
	"support-inbox-go/internal/model"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = metricsPkg.NewMetrics()

// fakeMailbox implements mailbox.Client in memory with injectable failures.
type fakeMailbox struct {
	mu         sync.Mutex
	delta      []string
	deltaErr   error
	deltaCalls int
	messages   map[string]*mailbox.RemoteMessage
	fetchErr   map[string]error
}

func newFakeMailbox() *fakeMailbox {
	return &fakeMailbox{
		messages: make(map[string]*mailbox.RemoteMessage),
		fetchErr: make(map[string]error),
	}
}

func (f *fakeMailbox) HistoryDelta(ctx context.Context, sinceHistoryID uint64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deltaCalls++
	if f.deltaErr != nil {
		return nil, f.deltaErr
	}
	return append([]string(nil), f.delta...), nil
}

func (f *fakeMailbox) GetMessage(ctx context.Context, id string) (*mailbox.RemoteMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fetchErr[id]; ok {
		return nil, err
	}
	msg, ok := f.messages[id]
	if !ok {
		return nil, mailbox.ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

func (f *fakeMailbox) CheckConnection(ctx context.Context) error { return nil }

func (f *fakeMailbox) addMessage(id, threadID, subject, sender string, receivedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delta = append(f.delta, id)
	f.messages[id] = &mailbox.RemoteMessage{
		ProviderMessageID: id,
		ProviderThreadID:  threadID,
		Subject:           subject,
		SenderAddress:     sender,
		Body:              "body of " + id,
		ReceivedAt:        receivedAt,
	}
}

// memStore implements TicketStore in memory, enforcing the same uniqueness
// rules the real store enforces with constraints.
type memStore struct {
	mu        sync.Mutex
	nextID    uint
	tickets   map[uint]*model.Ticket
	byThread  map[string]uint
	byMessage map[string]uint // provider message id -> ticket id (tickets and messages)
	messages  map[uint][]model.Message
}

func newMemStore() *memStore {
	return &memStore{
		nextID:    1,
		tickets:   make(map[uint]*model.Ticket),
		byThread:  make(map[string]uint),
		byMessage: make(map[string]uint),
		messages:  make(map[uint][]model.Message),
	}
}

func (s *memStore) AlreadyIngested(ctx context.Context, providerMessageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byMessage[providerMessageID]
	return ok, nil
}

func (s *memStore) TicketByProviderThread(ctx context.Context, threadID string) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byThread[threadID]
	if !ok {
		return nil, nil
	}
	copied := *s.tickets[id]
	return &copied, nil
}

func (s *memStore) CreateTicketForMessage(ctx context.Context, msg *mailbox.RemoteMessage) (*model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byThread[msg.ProviderThreadID]; ok {
		return nil, fmt.Errorf("ticket thread conflict: %w", gorm.ErrDuplicatedKey)
	}
	if _, ok := s.byMessage[msg.ProviderMessageID]; ok {
		return nil, fmt.Errorf("ticket message conflict: %w", gorm.ErrDuplicatedKey)
	}

	threadID := msg.ProviderThreadID
	messageID := msg.ProviderMessageID
	ticket := &model.Ticket{
		ID:                s.nextID,
		Subject:           msg.Subject,
		Status:            model.StatusOpen,
		Priority:          model.PriorityMedium,
		Category:          model.CategoryEmail,
		ProviderThreadID:  &threadID,
		ProviderMessageID: &messageID,
		LastMessageAt:     msg.ReceivedAt,
	}
	s.nextID++
	s.tickets[ticket.ID] = ticket
	s.byThread[threadID] = ticket.ID
	s.byMessage[messageID] = ticket.ID
	s.messages[ticket.ID] = []model.Message{{
		TicketID:          ticket.ID,
		Direction:         model.DirectionInbound,
		Content:           msg.Body,
		ProviderMessageID: &messageID,
	}}

	copied := *ticket
	return &copied, nil
}

func (s *memStore) AppendMessage(ctx context.Context, ticket *model.Ticket, msg *mailbox.RemoteMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byMessage[msg.ProviderMessageID]; ok {
		return fmt.Errorf("message conflict: %w", gorm.ErrDuplicatedKey)
	}

	stored, ok := s.tickets[ticket.ID]
	if !ok {
		return fmt.Errorf("ticket %d not found", ticket.ID)
	}

	messageID := msg.ProviderMessageID
	s.byMessage[messageID] = stored.ID
	s.messages[stored.ID] = append(s.messages[stored.ID], model.Message{
		TicketID:          stored.ID,
		Direction:         model.DirectionInbound,
		Content:           msg.Body,
		ProviderMessageID: &messageID,
	})
	stored.LastMessageAt = msg.ReceivedAt
	stored.ProviderMessageID = &messageID
	if stored.Status == model.StatusClosed {
		stored.Status = model.StatusOpen
	}
	return nil
}

func (s *memStore) ticketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

func (s *memStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, msgs := range s.messages {
		n += len(msgs)
	}
	return n
}

// memCheckpoints implements CheckpointStore with the same monotonic advance
// semantics as the SQL store.
type memCheckpoints struct {
	mu     sync.Mutex
	value  uint64
	exists bool
	setErr error
}

func (c *memCheckpoints) Get(ctx context.Context) (uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.exists, nil
}

func (c *memCheckpoints) Advance(ctx context.Context, historyID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	if !c.exists || historyID > c.value {
		c.value = historyID
	}
	c.exists = true
	return nil
}

func (c *memCheckpoints) current() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.exists
}

// errTransient stands in for a timeout or rate-limit from the provider.
var errTransient = errors.New("transient: deadline exceeded")
