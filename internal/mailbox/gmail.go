package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/emersion/go-message"
	"github.com/sirupsen/logrus"

	"support-inbox-go/internal/config"
)

// GmailClient implements Client and Watcher on top of the Gmail API.
type GmailClient struct {
	service   *gmail.Service
	userEmail string
	topicName string
}

// NewGmailClient creates a new Gmail mailbox client
func NewGmailClient(cfg *config.GmailConfig) (*GmailClient, error) {
	ctx := context.Background()

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	tokenSource := oauth2Config.TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailClient{
		service:   service,
		userEmail: cfg.UserEmail,
		topicName: cfg.TopicName,
	}, nil
}

// HistoryDelta lists the ids of messages added to the mailbox after
// sinceHistoryID, following pagination and collapsing duplicates across
// history records.
func (c *GmailClient) HistoryDelta(ctx context.Context, sinceHistoryID uint64) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string

	pageToken := ""
	for {
		call := c.service.Users.History.List(c.userEmail).
			StartHistoryId(sinceHistoryID).
			HistoryTypes("messageAdded")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Context(ctx).Do()
		if err != nil {
			// Gmail answers 404 when the start history id has aged out of
			// the retention window.
			if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == http.StatusNotFound {
				return nil, ErrHistoryGone
			}
			return nil, fmt.Errorf("failed to list history since %d: %w", sinceHistoryID, err)
		}

		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true
				ids = append(ids, added.Message.Id)
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return ids, nil
}

// GetMessage fetches a single message and maps it into a RemoteMessage.
func (c *GmailClient) GetMessage(ctx context.Context, id string) (*RemoteMessage, error) {
	msg, err := c.service.Users.Messages.Get(c.userEmail, id).Format("full").Context(ctx).Do()
	if err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == http.StatusNotFound {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	rm := &RemoteMessage{
		ProviderMessageID: msg.Id,
		ProviderThreadID:  msg.ThreadId,
		ReceivedAt:        time.UnixMilli(msg.InternalDate),
	}

	if msg.Payload != nil {
		for _, header := range msg.Payload.Headers {
			switch header.Name {
			case "Subject":
				rm.Subject = header.Value
			case "From":
				rm.SenderAddress, rm.SenderName = parseSender(header.Value)
			}
		}
		rm.Body = extractBody(msg.Payload)
	}

	// Some payloads carry no decodable parts (e.g. pure attachment
	// containers); fall back to the raw RFC 822 form.
	if rm.Body == "" {
		body, err := c.fetchRawBody(ctx, id)
		if err != nil {
			logrus.Warnf("Failed to read raw body of message %s: %v", id, err)
		} else {
			rm.Body = body
		}
	}

	return rm, nil
}

// CheckConnection verifies that the Gmail API is reachable with the
// configured credentials.
func (c *GmailClient) CheckConnection(ctx context.Context) error {
	if _, err := c.service.Users.GetProfile(c.userEmail).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to get Gmail profile: %w", err)
	}
	return nil
}

// Watch registers (or re-registers) the push notification channel for the
// mailbox. Any existing watch is stopped first: Gmail allows only one push
// client per user.
func (c *GmailClient) Watch(ctx context.Context) (time.Time, uint64, error) {
	_ = c.service.Users.Stop(c.userEmail).Context(ctx).Do()

	req := &gmail.WatchRequest{
		TopicName: c.topicName,
		LabelIds:  []string{"INBOX"},
	}

	resp, err := c.service.Users.Watch(c.userEmail, req).Context(ctx).Do()
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("failed to watch mailbox: %w", err)
	}

	return time.UnixMilli(resp.Expiration), resp.HistoryId, nil
}

// StopWatch stops push notifications for the mailbox.
func (c *GmailClient) StopWatch(ctx context.Context) error {
	if err := c.service.Users.Stop(c.userEmail).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to stop mailbox watch: %w", err)
	}
	return nil
}

// extractBody walks the message payload and returns the first text/plain
// part, falling back to text/html.
func extractBody(part *gmail.MessagePart) string {
	plain, html := collectBodyParts(part)
	if plain != "" {
		return plain
	}
	return html
}

func collectBodyParts(part *gmail.MessagePart) (plain, html string) {
	if part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err == nil {
			switch part.MimeType {
			case "text/plain":
				plain = string(data)
			case "text/html":
				html = string(data)
			}
		}
	}

	for _, subPart := range part.Parts {
		p, h := collectBodyParts(subPart)
		if plain == "" {
			plain = p
		}
		if html == "" {
			html = h
		}
	}

	return plain, html
}

// fetchRawBody downloads the raw RFC 822 message and extracts a text body
// from it.
func (c *GmailClient) fetchRawBody(ctx context.Context, id string) (string, error) {
	msg, err := c.service.Users.Messages.Get(c.userEmail, id).Format("raw").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get raw message %s: %w", id, err)
	}

	raw, err := base64.URLEncoding.DecodeString(msg.Raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode raw message data: %w", err)
	}

	entity, err := message.Read(strings.NewReader(string(raw)))
	if err != nil {
		return "", fmt.Errorf("failed to read message: %w", err)
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", fmt.Errorf("failed to read part: %w", err)
			}

			contentType := p.Header.Get("Content-Type")
			if strings.Contains(contentType, "text/plain") {
				content, err := io.ReadAll(p.Body)
				if err != nil {
					return "", fmt.Errorf("failed to read part body: %w", err)
				}
				return string(content), nil
			}
		}
		return "", nil
	}

	content, err := io.ReadAll(entity.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read message body: %w", err)
	}
	return string(content), nil
}

// parseSender splits a From header of the form "Name <addr>" into its parts.
func parseSender(from string) (address, name string) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from), ""
	}
	return addr.Address, addr.Name
}
