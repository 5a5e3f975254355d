package mailbox

import (
	"context"
	"errors"
	"time"
)

// ErrHistoryGone is returned by HistoryDelta when the provider has already
// expired the requested history window. The missed range is unrecoverable;
// callers must re-baseline their checkpoint.
var ErrHistoryGone = errors.New("mailbox: history window no longer available")

// ErrMessageNotFound is returned by GetMessage when the message was deleted
// between notification and fetch. Callers should skip the message.
var ErrMessageNotFound = errors.New("mailbox: message not found")

// RemoteMessage is the ephemeral representation of a message fetched from the
// mail provider. It lives only long enough to be mapped into a ticket and a
// message row.
type RemoteMessage struct {
	ProviderMessageID string
	ProviderThreadID  string
	Subject           string
	SenderAddress     string
	SenderName        string
	Body              string
	ReceivedAt        time.Time
}

// Client is the provider capability surface consumed by the ingestion engine.
// Any provider exposing a history/delta plus get-by-id API satisfies it.
//
// HistoryDelta returns the ids of messages added after sinceHistoryID. The
// result is a deduplicated, unordered set; the provider guarantees nothing
// about ordering across pages. GetMessage fetches a single message by
// provider id. All failures other than the sentinel errors above are
// transient and retryable.
type Client interface {
	HistoryDelta(ctx context.Context, sinceHistoryID uint64) ([]string, error)
	GetMessage(ctx context.Context, id string) (*RemoteMessage, error)
	CheckConnection(ctx context.Context) error
}

// Watcher manages the provider's push notification registration, which
// expires and must be renewed periodically.
type Watcher interface {
	Watch(ctx context.Context) (expiration time.Time, historyID uint64, err error)
	StopWatch(ctx context.Context) error
}
