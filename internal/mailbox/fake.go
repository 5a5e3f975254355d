package mailbox

import (
	"context"
	"sync"
	"time"
)

// FakeClient is an in-memory Client and Watcher used in development and
// tests. It is selected at construction time via configuration; business
// logic never branches on the environment.
type FakeClient struct {
	mu       sync.Mutex
	messages map[string]*RemoteMessage
	// history records pair each message id with the mailbox history id at
	// which it appeared.
	history       []fakeHistoryRecord
	lastHistoryID uint64
}

type fakeHistoryRecord struct {
	historyID uint64
	messageID string
}

// NewFakeClient creates an empty fake mailbox
func NewFakeClient() *FakeClient {
	return &FakeClient{
		messages: make(map[string]*RemoteMessage),
	}
}

// AddMessage records a message as having appeared at the given history id.
func (f *FakeClient) AddMessage(historyID uint64, msg *RemoteMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.messages[msg.ProviderMessageID] = msg
	f.history = append(f.history, fakeHistoryRecord{historyID: historyID, messageID: msg.ProviderMessageID})
	if historyID > f.lastHistoryID {
		f.lastHistoryID = historyID
	}
}

// RemoveMessage deletes a message so that subsequent fetches report it gone.
func (f *FakeClient) RemoveMessage(messageID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, messageID)
}

// HistoryDelta returns the ids of messages recorded after sinceHistoryID.
func (f *FakeClient) HistoryDelta(ctx context.Context, sinceHistoryID uint64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seen := make(map[string]bool)
	var ids []string
	for _, rec := range f.history {
		if rec.historyID <= sinceHistoryID || seen[rec.messageID] {
			continue
		}
		seen[rec.messageID] = true
		ids = append(ids, rec.messageID)
	}
	return ids, nil
}

// GetMessage returns a previously added message.
func (f *FakeClient) GetMessage(ctx context.Context, id string) (*RemoteMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	copied := *msg
	return &copied, nil
}

// CheckConnection always succeeds for the fake mailbox.
func (f *FakeClient) CheckConnection(ctx context.Context) error {
	return nil
}

// Watch pretends to register a push channel.
func (f *FakeClient) Watch(ctx context.Context) (time.Time, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Now().Add(7 * 24 * time.Hour), f.lastHistoryID, nil
}

// StopWatch is a no-op for the fake mailbox.
func (f *FakeClient) StopWatch(ctx context.Context) error {
	return nil
}
