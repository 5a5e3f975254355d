package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"support-inbox-go/internal/config"
	"support-inbox-go/internal/mailbox"
	"support-inbox-go/internal/model"
)

func newTestEngine(client mailbox.Client, store TicketStore, checkpoints CheckpointStore) *Engine {
	return NewEngine(client, store, checkpoints, testMetrics, &config.IngestConfig{
		FetchTimeout: 5 * time.Second,
		RunTimeout:   time.Minute,
	})
}

func notification(historyID uint64) mailbox.Notification {
	return mailbox.Notification{EmailAddress: "support@example.com", HistoryID: historyID}
}

func TestColdStartAdoptsNotificationHistoryID(t *testing.T) {
	mb := newFakeMailbox()
	store := newMemStore()
	checkpoints := &memCheckpoints{}
	engine := newTestEngine(mb, store, checkpoints)

	err := engine.Process(context.Background(), notification(105))
	assert.NoError(t, err)

	value, exists := checkpoints.current()
	assert.True(t, exists)
	assert.Equal(t, uint64(105), value)
	assert.Equal(t, 0, store.ticketCount())
	// Cold start never touches the mailbox.
	assert.Equal(t, 0, mb.deltaCalls)
}

func TestNewThreadsCreateTickets(t *testing.T) {
	mb := newFakeMailbox()
	now := time.Now()
	mb.addMessage("201", "thread-a", "Login broken", "alice@example.com", now)
	mb.addMessage("202", "thread-b", "Billing question", "bob@example.com", now)

	store := newMemStore()
	checkpoints := &memCheckpoints{value: 100, exists: true}
	engine := newTestEngine(mb, store, checkpoints)

	err := engine.Process(context.Background(), notification(120))
	assert.NoError(t, err)

	assert.Equal(t, 2, store.ticketCount())
	assert.Equal(t, 2, store.messageCount())

	value, _ := checkpoints.current()
	assert.Equal(t, uint64(120), value)
}

func TestThreadMatchAppendsMessage(t *testing.T) {
	mb := newFakeMailbox()
	receivedAt := time.Now()
	mb.addMessage("201", "thread-a", "Re: Login broken", "alice@example.com", receivedAt)

	store := newMemStore()
	// Existing ticket already holds thread-a via an earlier message.
	_, err := store.CreateTicketForMessage(context.Background(), &mailbox.RemoteMessage{
		ProviderMessageID: "150",
		ProviderThreadID:  "thread-a",
		Subject:           "Login broken",
		SenderAddress:     "alice@example.com",
		ReceivedAt:        receivedAt.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("seed ticket failed: %v", err)
	}

	checkpoints := &memCheckpoints{value: 100, exists: true}
	engine := newTestEngine(mb, store, checkpoints)

	err = engine.Process(context.Background(), notification(120))
	assert.NoError(t, err)

	assert.Equal(t, 1, store.ticketCount())
	assert.Equal(t, 2, store.messageCount())

	ticket, _ := store.TicketByProviderThread(context.Background(), "thread-a")
	assert.Equal(t, receivedAt, ticket.LastMessageAt)
	assert.Equal(t, "201", *ticket.ProviderMessageID)
}

func TestAppendReopensClosedTicket(t *testing.T) {
	mb := newFakeMailbox()
	mb.addMessage("201", "thread-a", "Re: Login broken", "alice@example.com", time.Now())

	store := newMemStore()
	seeded, err := store.CreateTicketForMessage(context.Background(), &mailbox.RemoteMessage{
		ProviderMessageID: "150",
		ProviderThreadID:  "thread-a",
		SenderAddress:     "alice@example.com",
		ReceivedAt:        time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("seed ticket failed: %v", err)
	}
	store.mu.Lock()
	store.tickets[seeded.ID].Status = model.StatusClosed
	store.mu.Unlock()

	checkpoints := &memCheckpoints{value: 100, exists: true}
	engine := newTestEngine(mb, store, checkpoints)

	err = engine.Process(context.Background(), notification(120))
	assert.NoError(t, err)

	ticket, _ := store.TicketByProviderThread(context.Background(), "thread-a")
	assert.Equal(t, model.StatusOpen, ticket.Status)
}

func TestDuplicateDeliveryIsNoOp(t *testing.T) {
	mb := newFakeMailbox()
	mb.addMessage("201", "thread-a", "Login broken", "alice@example.com", time.Now())

	store := newMemStore()
	checkpoints := &memCheckpoints{value: 100, exists: true}
	engine := newTestEngine(mb, store, checkpoints)

	err := engine.Process(context.Background(), notification(120))
	assert.NoError(t, err)
	assert.Equal(t, 1, store.ticketCount())

	// Redelivery with the same history id is short-circuited by the
	// checkpoint.
	err = engine.Process(context.Background(), notification(120))
	assert.NoError(t, err)
	assert.Equal(t, 1, store.ticketCount())
	assert.Equal(t, 1, store.messageCount())

	// A later notification whose delta still contains 201 is settled by
	// dedup instead.
	err = engine.Process(context.Background(), notification(130))
	assert.NoError(t, err)
	assert.Equal(t, 1, store.ticketCount())
	assert.Equal(t, 1, store.messageCount())

	value, _ := checkpoints.current()
	assert.Equal(t, uint64(130), value)
}

func TestTransientFetchFailureWithholdsCheckpoint(t *testing.T) {
	mb := newFakeMailbox()
	now := time.Now()
	mb.addMessage("201", "thread-a", "Login broken", "alice@example.com", now)
	mb.addMessage("202", "thread-b", "Billing question", "bob@example.com", now)
	mb.fetchErr["202"] = errTransient

	store := newMemStore()
	checkpoints := &memCheckpoints{value: 100, exists: true}
	engine := newTestEngine(mb, store, checkpoints)

	err := engine.Process(context.Background(), notification(120))
	assert.Error(t, err)

	// 201 landed, 202 did not, and the checkpoint stayed put so the next
	// run re-covers 202.
	assert.Equal(t, 1, store.ticketCount())
	value, _ := checkpoints.current()
	assert.Equal(t, uint64(100), value)

	// The failure clears; a re-run ingests 202 exactly once.
	mb.mu.Lock()
	delete(mb.fetchErr, "202")
	mb.mu.Unlock()

	err = engine.Process(context.Background(), notification(120))
	assert.NoError(t, err)
	assert.Equal(t, 2, store.ticketCount())
	assert.Equal(t, 2, store.messageCount())
	value, _ = checkpoints.current()
	assert.Equal(t, uint64(120), value)
}

func TestDeletedMessageIsSkipped(t *testing.T) {
	mb := newFakeMailbox()
	mb.addMessage("201", "thread-a", "Login broken", "alice@example.com", time.Now())
	// 202 appears in the delta but was deleted before the fetch.
	mb.mu.Lock()
	mb.delta = append(mb.delta, "202")
	mb.mu.Unlock()

	store := newMemStore()
	checkpoints := &memCheckpoints{value: 100, exists: true}
	engine := newTestEngine(mb, store, checkpoints)

	err := engine.Process(context.Background(), notification(120))
	assert.NoError(t, err)

	assert.Equal(t, 1, store.ticketCount())
	value, _ := checkpoints.current()
	assert.Equal(t, uint64(120), value)
}

func TestHistoryGoneRebaselinesCheckpoint(t *testing.T) {
	mb := newFakeMailbox()
	mb.deltaErr = mailbox.ErrHistoryGone

	store := newMemStore()
	checkpoints := &memCheckpoints{value: 100, exists: true}
	engine := newTestEngine(mb, store, checkpoints)

	err := engine.Process(context.Background(), notification(500))
	assert.NoError(t, err)

	assert.Equal(t, 0, store.ticketCount())
	value, _ := checkpoints.current()
	assert.Equal(t, uint64(500), value)
}

func TestTransientDeltaFailureWithholdsCheckpoint(t *testing.T) {
	mb := newFakeMailbox()
	mb.deltaErr = errTransient

	store := newMemStore()
	checkpoints := &memCheckpoints{value: 100, exists: true}
	engine := newTestEngine(mb, store, checkpoints)

	err := engine.Process(context.Background(), notification(120))
	assert.Error(t, err)

	value, _ := checkpoints.current()
	assert.Equal(t, uint64(100), value)
}

func TestStaleNotificationDoesNotTouchMailbox(t *testing.T) {
	mb := newFakeMailbox()
	store := newMemStore()
	checkpoints := &memCheckpoints{value: 200, exists: true}
	engine := newTestEngine(mb, store, checkpoints)

	err := engine.Process(context.Background(), notification(150))
	assert.NoError(t, err)

	assert.Equal(t, 0, mb.deltaCalls)
	value, _ := checkpoints.current()
	assert.Equal(t, uint64(200), value)
}

func TestThreadCoherenceAcrossRuns(t *testing.T) {
	mb := newFakeMailbox()
	now := time.Now()
	mb.addMessage("201", "thread-a", "Login broken", "alice@example.com", now)

	store := newMemStore()
	checkpoints := &memCheckpoints{value: 100, exists: true}
	engine := newTestEngine(mb, store, checkpoints)

	if err := engine.Process(context.Background(), notification(110)); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// Two more messages arrive on the same thread.
	mb.addMessage("202", "thread-a", "Re: Login broken", "alice@example.com", now.Add(time.Minute))
	mb.addMessage("203", "thread-a", "Re: Login broken", "alice@example.com", now.Add(2*time.Minute))

	if err := engine.Process(context.Background(), notification(130)); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	// Exactly one ticket for the thread, one message per distinct id.
	assert.Equal(t, 1, store.ticketCount())
	assert.Equal(t, 3, store.messageCount())
}

func TestProcessAsyncCompletesBeforeWait(t *testing.T) {
	mb := newFakeMailbox()
	mb.addMessage("201", "thread-a", "Login broken", "alice@example.com", time.Now())

	store := newMemStore()
	checkpoints := &memCheckpoints{value: 100, exists: true}
	engine := newTestEngine(mb, store, checkpoints)

	engine.ProcessAsync(notification(120))
	engine.Wait()

	assert.Equal(t, 1, store.ticketCount())
	value, _ := checkpoints.current()
	assert.Equal(t, uint64(120), value)
}
