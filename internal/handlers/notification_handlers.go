package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/01moynul/taptosell-orders/internal/middleware"
)

//
// --- Notification Handlers ---
//

// notificationPageSize caps the list to avoid performance issues.
const notificationPageSize = 50

// GetMyNotifications is the handler for GET /v1/notifications
// It retrieves notifications for the logged-in user, unread and newest first.
func (h *Handlers) GetMyNotifications(c *gin.Context) {
	list, err := h.Inbox.ListForUser(c.Request.Context(), middleware.UserID(c), notificationPageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// MarkNotificationAsRead is the handler for PATCH /v1/notifications/:id/read
// Only the owner can mark a notification as read.
func (h *Handlers) MarkNotificationAsRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "Invalid notification ID"})
		return
	}

	if err := h.Inbox.MarkRead(c.Request.Context(), middleware.UserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}
