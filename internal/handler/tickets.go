package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"support-inbox-go/internal/model"
)

// ListTickets returns tickets ordered by most recent activity.
func (h *Handlers) ListTickets(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	tickets, err := h.repo.ListTickets(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch tickets",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	responses := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		responses = append(responses, toTicketResponse(&tickets[i]))
	}

	c.JSON(http.StatusOK, responses)
}

// GetTicket returns a single ticket with its messages.
func (h *Handlers) GetTicket(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid ticket ID",
			Code:    http.StatusBadRequest,
		})
		return
	}

	ticket, err := h.repo.GetTicket(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch ticket",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	if ticket == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Ticket not found",
			Code:    http.StatusNotFound,
		})
		return
	}

	c.JSON(http.StatusOK, toTicketResponse(ticket))
}

func toTicketResponse(t *model.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:               t.ID,
		Number:           t.Number,
		Subject:          t.Subject,
		Status:           t.Status,
		Priority:         t.Priority,
		Category:         t.Category,
		ProviderThreadID: t.ProviderThreadID,
		LastMessageAt:    t.LastMessageAt,
		CreatedAt:        t.CreatedAt,
	}

	if t.Customer != nil {
		resp.Customer = &CustomerResponse{
			ID:    t.Customer.ID,
			Email: t.Customer.Email,
			Name:  t.Customer.Name,
		}
	}

	for _, m := range t.Messages {
		resp.Messages = append(resp.Messages, MessageResponse{
			ID:                m.ID,
			Direction:         m.Direction,
			Content:           m.Content,
			SenderAddress:     m.SenderAddress,
			ProviderMessageID: m.ProviderMessageID,
			CreatedAt:         m.CreatedAt,
		})
	}

	return resp
}
