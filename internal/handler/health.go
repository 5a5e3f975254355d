package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HealthCheck reports database, mailbox and checkpoint state. It never
// mutates anything.
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Mailbox:   "ok",
		Details:   make(map[string]string),
	}

	if err := h.db.Raw("SELECT 1").Error; err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	if err := h.mailbox.CheckConnection(ctx); err != nil {
		response.Status = "error"
		response.Mailbox = "error"
		logrus.Errorf("Mailbox health check failed: %v", err)
	}

	if value, exists, err := h.checkpoints.Get(ctx); err != nil {
		response.Details["checkpoint"] = "error"
	} else if exists {
		response.Checkpoint = &value
	} else {
		response.Details["checkpoint"] = "absent"
	}

	if h.renewer != nil {
		if h.renewer.IsRunning() {
			response.Details["watch_renewer"] = "running"
			if exp := h.renewer.Expiration(); !exp.IsZero() {
				response.Details["watch_expiration"] = exp.Format(time.RFC3339)
			}
			if hid := h.renewer.LastHistoryID(); hid > 0 {
				response.Details["watch_history_id"] = strconv.FormatUint(hid, 10)
			}
		} else {
			response.Details["watch_renewer"] = "stopped"
		}
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
