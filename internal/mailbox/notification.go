package mailbox

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Notification is the decoded Gmail push notification. It is only a trigger
// to resync from the stored checkpoint up to at least HistoryID; it is never
// persisted.
type Notification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// PushEnvelope is the HTTP body of a Pub/Sub push delivery. Data carries the
// base64-encoded Notification JSON.
type PushEnvelope struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"message_id"`
		PublishTime string `json:"publish_time"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// DecodeNotification decodes the raw notification JSON produced by the
// provider. Pull-mode subscribers receive this directly as the message body.
func DecodeNotification(raw []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return Notification{}, fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	if n.EmailAddress == "" || n.HistoryID == 0 {
		return Notification{}, fmt.Errorf("notification is missing emailAddress or historyId")
	}
	return n, nil
}

// DecodePushPayload decodes the base64 data field of a push envelope into a
// Notification.
func DecodePushPayload(data string) (Notification, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return Notification{}, fmt.Errorf("failed to decode notification data: %w", err)
	}
	return DecodeNotification(raw)
}
