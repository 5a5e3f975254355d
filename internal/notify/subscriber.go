package notify

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"support-inbox-go/internal/config"
	"support-inbox-go/internal/mailbox"
)

// Ingestor is the surface of the ingestion engine the subscriber needs.
type Ingestor interface {
	ProcessAsync(n mailbox.Notification)
}

// Subscriber consumes Gmail notifications from a Pub/Sub pull subscription
// and feeds them to the ingestion engine. It is an alternative to the push
// webhook for deployments that cannot expose a public endpoint.
type Subscriber struct {
	client   *pubsub.Client
	sub      *pubsub.Subscription
	ingestor Ingestor
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSubscriber creates a new pull-mode notification subscriber
func NewSubscriber(cfg *config.PubSubConfig, ingestor Ingestor) (*Subscriber, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	return &Subscriber{
		client:   client,
		sub:      client.Subscription(cfg.Subscription),
		ingestor: ingestor,
		done:     make(chan struct{}),
	}, nil
}

// Start begins receiving in the background.
func (s *Subscriber) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	logrus.Infof("Starting Pub/Sub pull subscriber on %s", s.sub.String())
	go s.receive(ctx)
}

func (s *Subscriber) receive(ctx context.Context) {
	defer close(s.done)

	err := s.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		notification, err := mailbox.DecodeNotification(msg.Data)
		if err != nil {
			// Malformed payloads never become valid; ack so the
			// subscription does not redeliver them forever.
			logrus.Warnf("Dropping undecodable pubsub message %s: %v", msg.ID, err)
			msg.Ack()
			return
		}

		s.ingestor.ProcessAsync(notification)
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		logrus.Errorf("Pub/Sub receive failed: %v", err)
	}
}

// Stop cancels receiving and closes the client.
func (s *Subscriber) Stop() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close pubsub client: %w", err)
	}
	return nil
}
