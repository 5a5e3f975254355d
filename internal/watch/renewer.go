package watch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"support-inbox-go/internal/config"
	"support-inbox-go/internal/mailbox"
)

// Renewer keeps the provider's push notification registration alive. Gmail
// watches expire after seven days; the renewer re-registers on a fixed
// interval and records the returned expiration and history id.
type Renewer struct {
	cron      *cron.Cron
	entryID   cron.EntryID
	watcher   mailbox.Watcher
	config    *config.WatchConfig
	isRunning bool
	mu        sync.RWMutex

	expiration    time.Time
	lastHistoryID uint64
}

// NewRenewer creates a new watch renewer
func NewRenewer(cfg *config.WatchConfig, watcher mailbox.Watcher) *Renewer {
	return &Renewer{
		cron:    cron.New(cron.WithSeconds()),
		watcher: watcher,
		config:  cfg,
	}
}

// Start registers the watch immediately and schedules periodic renewal.
func (r *Renewer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("watch renewer is already running")
	}

	schedule := fmt.Sprintf("0 0 */%d * * *", r.config.IntervalHours)
	entryID, err := r.cron.AddFunc(schedule, r.renew)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	r.entryID = entryID
	r.cron.Start()
	r.isRunning = true

	logrus.Infof("Watch renewer started with interval: %d hours", r.config.IntervalHours)

	go r.renew()
	return nil
}

// Stop stops the renewal schedule. The registration itself is left in place
// so notifications keep flowing until it expires.
func (r *Renewer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isRunning {
		return nil
	}

	ctx := r.cron.Stop()
	select {
	case <-ctx.Done():
		logrus.Info("Watch renewer stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Watch renewer stop timeout, forcing shutdown")
	}

	r.isRunning = false
	return nil
}

// IsRunning returns whether the renewer is running
func (r *Renewer) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isRunning
}

// Expiration returns the expiration of the most recent successful watch
// registration.
func (r *Renewer) Expiration() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.expiration
}

// LastHistoryID returns the mailbox history id reported by the most recent
// successful watch registration.
func (r *Renewer) LastHistoryID() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastHistoryID
}

// NextRenewal returns the time of the next scheduled renewal.
func (r *Renewer) NextRenewal() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.isRunning {
		return time.Time{}
	}
	return r.cron.Entry(r.entryID).Next
}

func (r *Renewer) renew() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	expiration, historyID, err := r.watcher.Watch(ctx)
	if err != nil {
		logrus.Errorf("Failed to renew mailbox watch: %v", err)
		return
	}

	r.mu.Lock()
	r.expiration = expiration
	r.lastHistoryID = historyID
	r.mu.Unlock()

	logrus.Infof("Mailbox watch renewed, expires %s (history id %d)", expiration.Format(time.RFC3339), historyID)
}
