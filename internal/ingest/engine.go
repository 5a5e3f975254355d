package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"support-inbox-go/internal/config"
	"support-inbox-go/internal/mailbox"
	metricsPkg "support-inbox-go/internal/metrics"
)

// CheckpointStore persists the last fully-ingested mailbox history id.
type CheckpointStore interface {
	Get(ctx context.Context) (uint64, bool, error)
	Advance(ctx context.Context, historyID uint64) error
}

// Engine turns mailbox push notifications into tickets and messages.
//
// Each notification is processed as an independent run: read the checkpoint,
// fetch the history delta, ingest each candidate message as its own unit of
// work, and advance the checkpoint only when no message failed retryably.
// Correctness under concurrent or duplicate runs rests on the store's unique
// constraints, not on mutual exclusion between runs.
type Engine struct {
	mailbox     mailbox.Client
	store       TicketStore
	checkpoints CheckpointStore
	resolver    *ThreadResolver
	metrics     *metricsPkg.Metrics

	fetchTimeout time.Duration
	runTimeout   time.Duration
	wg           sync.WaitGroup
}

// NewEngine creates a new ingestion engine
func NewEngine(client mailbox.Client, store TicketStore, checkpoints CheckpointStore, m *metricsPkg.Metrics, cfg *config.IngestConfig) *Engine {
	return &Engine{
		mailbox:      client,
		store:        store,
		checkpoints:  checkpoints,
		resolver:     NewThreadResolver(store),
		metrics:      m,
		fetchTimeout: cfg.FetchTimeout,
		runTimeout:   cfg.RunTimeout,
	}
}

// ProcessAsync runs Process as a detached unit of work. The caller (the
// webhook handler) has already acknowledged the notification; the run's
// outcome is observable only through logs, metrics and the checkpoint.
func (e *Engine) ProcessAsync(n mailbox.Notification) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), e.runTimeout)
		defer cancel()

		if err := e.Process(ctx, n); err != nil {
			logrus.Errorf("Ingestion run for %s (history id %d) failed: %v", n.EmailAddress, n.HistoryID, err)
		}
	}()
}

// Wait blocks until all detached ingestion runs have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Process executes one ingestion run for the notification.
func (e *Engine) Process(ctx context.Context, n mailbox.Notification) error {
	start := time.Now()
	defer func() {
		e.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}()

	checkpoint, exists, err := e.checkpoints.Get(ctx)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}

	if !exists {
		// Cold start: adopt the notification's history id without
		// backfilling. Mail delivered before the first watch setup is
		// dropped; a bounded initial sync would have to be added explicitly.
		logrus.Infof("No checkpoint found, adopting history id %d as baseline", n.HistoryID)
		if err := e.checkpoints.Advance(ctx, n.HistoryID); err != nil {
			return fmt.Errorf("failed to write initial checkpoint: %w", err)
		}
		e.metrics.CheckpointValue.Set(float64(n.HistoryID))
		return nil
	}

	if n.HistoryID <= checkpoint {
		logrus.Debugf("Notification history id %d already covered by checkpoint %d, skipping", n.HistoryID, checkpoint)
		return nil
	}

	ids, err := e.mailbox.HistoryDelta(ctx, checkpoint)
	if errors.Is(err, mailbox.ErrHistoryGone) {
		// The provider expired the window between the checkpoint and now.
		// The range cannot be recovered; re-baseline and accept the gap.
		logrus.Errorf("Mailbox history since %d is gone, re-baselining checkpoint to %d; mail in the gap is lost", checkpoint, n.HistoryID)
		e.metrics.HistoryRebaselines.Inc()
		if err := e.checkpoints.Advance(ctx, n.HistoryID); err != nil {
			return fmt.Errorf("failed to re-baseline checkpoint: %w", err)
		}
		e.metrics.CheckpointValue.Set(float64(n.HistoryID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to fetch history delta since %d: %w", checkpoint, err)
	}

	failed := 0
	for _, id := range ids {
		if err := e.ingestMessage(ctx, id); err != nil {
			failed++
			logrus.Errorf("Failed to ingest message %s: %v", id, err)
		}
	}

	if failed > 0 {
		// Withholding the checkpoint makes the next run re-cover the missed
		// range; dedup keeps the re-processing safe.
		logrus.Warnf("%d of %d messages failed, checkpoint stays at %d", failed, len(ids), checkpoint)
		return fmt.Errorf("%d of %d messages failed to ingest", failed, len(ids))
	}

	if err := e.checkpoints.Advance(ctx, n.HistoryID); err != nil {
		return fmt.Errorf("failed to advance checkpoint to %d: %w", n.HistoryID, err)
	}
	e.metrics.CheckpointValue.Set(float64(n.HistoryID))

	logrus.Infof("Ingestion run complete: %d candidate messages, checkpoint advanced to %d", len(ids), n.HistoryID)
	return nil
}

// ingestMessage processes a single candidate message as its own unit of work.
// A nil return means the message is settled (ingested or safely skipped); an
// error means it must be retried by a later run.
func (e *Engine) ingestMessage(ctx context.Context, id string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	msg, err := e.mailbox.GetMessage(fetchCtx, id)
	if errors.Is(err, mailbox.ErrMessageNotFound) {
		// Deleted between notification and fetch.
		logrus.Warnf("Message %s disappeared before fetch, skipping", id)
		return nil
	}
	if err != nil {
		e.metrics.FetchFailures.Inc()
		return fmt.Errorf("failed to fetch message: %w", err)
	}

	ingested, err := e.store.AlreadyIngested(ctx, msg.ProviderMessageID)
	if err != nil {
		return fmt.Errorf("failed to check dedup index: %w", err)
	}
	if ingested {
		logrus.Debugf("Message %s already ingested, skipping", id)
		e.metrics.DuplicatesSkipped.Inc()
		return nil
	}

	outcome, err := e.resolver.CreateOrAppend(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to file message onto a ticket: %w", err)
	}

	switch outcome {
	case OutcomeCreated:
		e.metrics.TicketsCreated.Inc()
		e.metrics.MessagesIngested.Inc()
		logrus.Infof("Created ticket for thread %s from message %s", msg.ProviderThreadID, msg.ProviderMessageID)
	case OutcomeAppended:
		e.metrics.MessagesAppended.Inc()
		e.metrics.MessagesIngested.Inc()
		logrus.Infof("Appended message %s to existing ticket for thread %s", msg.ProviderMessageID, msg.ProviderThreadID)
	case OutcomeDuplicate:
		e.metrics.DuplicatesSkipped.Inc()
		logrus.Debugf("Message %s resolved as duplicate during filing", msg.ProviderMessageID)
	}

	return nil
}
