package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	NotificationsReceived prometheus.Counter
	DecodeFailures        prometheus.Counter
	MessagesIngested      prometheus.Counter
	TicketsCreated        prometheus.Counter
	MessagesAppended      prometheus.Counter
	DuplicatesSkipped     prometheus.Counter
	FetchFailures         prometheus.Counter
	HistoryRebaselines    prometheus.Counter
	CheckpointValue       prometheus.Gauge
	RunDuration           prometheus.Histogram
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		NotificationsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "support_inbox_notifications_received_total",
			Help: "Total number of mailbox push notifications received",
		}),
		DecodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "support_inbox_notification_decode_failures_total",
			Help: "Total number of webhook payloads that failed to decode",
		}),
		MessagesIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "support_inbox_messages_ingested_total",
			Help: "Total number of inbound emails turned into ticket messages",
		}),
		TicketsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "support_inbox_tickets_created_total",
			Help: "Total number of tickets created from inbound email",
		}),
		MessagesAppended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "support_inbox_messages_appended_total",
			Help: "Total number of emails appended onto existing tickets",
		}),
		DuplicatesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "support_inbox_duplicates_skipped_total",
			Help: "Total number of already-ingested emails skipped",
		}),
		FetchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "support_inbox_fetch_failures_total",
			Help: "Total number of transient message fetch failures",
		}),
		HistoryRebaselines: promauto.NewCounter(prometheus.CounterOpts{
			Name: "support_inbox_history_rebaselines_total",
			Help: "Total number of checkpoint re-baselines after an expired history window",
		}),
		CheckpointValue: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "support_inbox_checkpoint_history_id",
			Help: "Last mailbox history id committed as fully ingested",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "support_inbox_ingest_run_duration_seconds",
			Help:    "Time spent on a single ingestion run",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
