package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"support-inbox-go/internal/mailbox"
)

// GmailWebhook receives Pub/Sub push deliveries of Gmail notifications.
//
// The response only acknowledges structural validity of the payload. The
// actual ingestion runs detached: its outcome never reaches this caller, only
// logs, metrics and the checkpoint.
func (h *Handlers) GmailWebhook(c *gin.Context) {
	var envelope mailbox.PushEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		h.metrics.DecodeFailures.Inc()
		logrus.Warnf("Rejected webhook with unparseable body: %v", err)
		c.JSON(http.StatusBadRequest, WebhookResponse{Success: false})
		return
	}

	notification, err := mailbox.DecodePushPayload(envelope.Message.Data)
	if err != nil {
		h.metrics.DecodeFailures.Inc()
		logrus.Warnf("Rejected webhook with undecodable notification data: %v", err)
		c.JSON(http.StatusBadRequest, WebhookResponse{Success: false})
		return
	}

	h.metrics.NotificationsReceived.Inc()
	logrus.Infof("Received notification for %s (history id %d)", notification.EmailAddress, notification.HistoryID)

	h.ingestor.ProcessAsync(notification)

	c.JSON(http.StatusOK, WebhookResponse{Success: true})
}
