package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/salesalert/internal/alerting"
	"github.com/charlesng35/salesalert/pkg/errors"
	"github.com/charlesng35/salesalert/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for a user's notification inbox.
type NotificationHandler struct {
	engine *alerting.Engine
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(engine *alerting.Engine) *NotificationHandler {
	return &NotificationHandler{engine: engine}
}

// List returns notifications for the current user, newest first.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	filter, err := parseListFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	items, total, err := h.engine.List(requestContext(c), userID, filter)
	if err != nil {
		respondError(c, err)
		return
	}

	filter = filter.Normalized()
	response.SuccessWithMeta(c, http.StatusOK, items, response.OffsetMeta(total, filter.Limit, filter.Offset))
}

func parseListFilter(c *gin.Context) (alerting.ListFilter, error) {
	filter := alerting.ListFilter{
		Limit:  parseIntQuery(c, "limit", 0),
		Offset: parseIntQuery(c, "offset", 0),
	}

	if raw := strings.TrimSpace(c.Query("category")); raw != "" {
		category := alerting.Category(strings.ToLower(raw))
		if !category.Valid() {
			return filter, errors.NewBadRequest("unknown category " + raw)
		}
		filter.Category = &category
	}
	if raw := strings.TrimSpace(c.Query("priority")); raw != "" {
		priority := alerting.Priority(strings.ToLower(raw))
		if !priority.Valid() {
			return filter, errors.NewBadRequest("unknown priority " + raw)
		}
		filter.Priority = &priority
	}

	isRead, err := parseBoolQuery(c, "is_read")
	if err != nil {
		return filter, err
	}
	if unread, err := parseBoolQuery(c, "unread"); err != nil {
		return filter, err
	} else if unread != nil && isRead == nil {
		read := !*unread
		isRead = &read
	}
	filter.IsRead = isRead

	dismissed, err := parseBoolQuery(c, "include_dismissed")
	if err != nil {
		return filter, err
	}
	filter.IncludeDismissed = dismissed != nil && *dismissed
	return filter, nil
}

// MarkRead flags a notification as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	n, err := h.engine.MarkRead(requestContext(c), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, n)
}

// MarkAllRead marks every unread notification read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	count, err := h.engine.MarkAllRead(requestContext(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": count})
}

// Dismiss hides a notification and cancels its pending retries.
func (h *NotificationHandler) Dismiss(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	n, err := h.engine.Dismiss(requestContext(c), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, n)
}

// Stats returns aggregate counts over the user's notifications.
func (h *NotificationHandler) Stats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	stats, err := h.engine.Stats(requestContext(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}
