// Package http exposes the gateway's plain request/response endpoints.
package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wookja-0/messenger-service/internal/service"
)

// HistoryHandler serves room history and the online summary.
type HistoryHandler struct {
	historyService *service.HistoryService
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(historyService *service.HistoryService) *HistoryHandler {
	if historyService == nil {
		panic("HistoryService cannot be nil for HistoryHandler")
	}
	return &HistoryHandler{historyService: historyService}
}

// requesterID reads the identity the auth middleware stored on the context.
func requesterID(c *gin.Context) (string, bool) {
	userIDAny, exists := c.Get("user_id")
	if !exists {
		ErrorResponse(c, http.StatusUnauthorized, "User not authenticated")
		return "", false
	}
	userID, ok := userIDAny.(string)
	if !ok || userID == "" {
		ErrorResponse(c, http.StatusInternalServerError, "Internal server error")
		return "", false
	}
	return userID, true
}

func limitQuery(c *gin.Context, fallback int) int {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return fallback
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

// GetRoomMessages handles GET /api/rooms/:roomId/messages. The optional
// user_id query parameter is accepted for compatibility but may only differ
// from the token identity for the administrative account.
func (h *HistoryHandler) GetRoomMessages(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	roomID := c.Param("roomId")
	if roomID == "" {
		ErrorResponse(c, http.StatusBadRequest, "Room id is required")
		return
	}
	if onBehalfOf := c.Query("user_id"); onBehalfOf != "" && onBehalfOf != userID {
		ErrorResponse(c, http.StatusForbidden, service.ErrForbidden.Error())
		return
	}

	messages, err := h.historyService.GetHistory(c.Request.Context(), roomID, userID, limitQuery(c, 100))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, messages)
}

// GetAdminRoomMessages handles GET /api/admin/rooms/:roomId/messages.
func (h *HistoryHandler) GetAdminRoomMessages(c *gin.Context) {
	userID, ok := requesterID(c)
	if !ok {
		return
	}
	roomID := c.Param("roomId")
	if roomID == "" {
		ErrorResponse(c, http.StatusBadRequest, "Room id is required")
		return
	}

	messages, err := h.historyService.GetAdminHistory(c.Request.Context(), roomID, userID, limitQuery(c, 500))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, messages)
}

// GetOnlineUsers handles GET /api/online-users.
func (h *HistoryHandler) GetOnlineUsers(c *gin.Context) {
	if _, ok := requesterID(c); !ok {
		return
	}
	summary, err := h.historyService.GetOnlineSummary(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, summary)
}
