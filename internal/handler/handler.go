package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"support-inbox-go/internal/checkpoint"
	"support-inbox-go/internal/mailbox"
	metricsPkg "support-inbox-go/internal/metrics"
	"support-inbox-go/internal/repository"
	"support-inbox-go/internal/watch"
)

// Ingestor is the surface of the ingestion engine the webhook needs: it
// hands the notification off and returns immediately.
type Ingestor interface {
	ProcessAsync(n mailbox.Notification)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	db          *gorm.DB
	repo        *repository.TicketRepository
	checkpoints *checkpoint.Store
	mailbox     mailbox.Client
	ingestor    Ingestor
	renewer     *watch.Renewer
	metrics     *metricsPkg.Metrics
}

// NewHandlers creates new HTTP handlers. The renewer may be nil when watch
// renewal is disabled.
func NewHandlers(db *gorm.DB, repo *repository.TicketRepository, checkpoints *checkpoint.Store, client mailbox.Client, ingestor Ingestor, renewer *watch.Renewer, m *metricsPkg.Metrics) *Handlers {
	return &Handlers{
		db:          db,
		repo:        repo,
		checkpoints: checkpoints,
		mailbox:     client,
		ingestor:    ingestor,
		renewer:     renewer,
		metrics:     m,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/gmail", h.GmailWebhook)

	api := router.Group("/api/v1")
	{
		api.GET("/tickets", h.ListTickets)
		api.GET("/tickets/:id", h.GetTicket)
	}
}
