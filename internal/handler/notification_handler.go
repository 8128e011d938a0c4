package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/counselign/counselign-api/internal/models"
	appErrors "github.com/counselign/counselign-api/pkg/errors"
	"github.com/counselign/counselign-api/pkg/response"
)

type notificationService interface {
	UnreadCount(ctx context.Context, userID string) int
	Recent(ctx context.Context, userID string, since *time.Time) []models.FeedEntry
	MarkAsRead(ctx context.Context, notificationID, userID string) (bool, error)
	Create(ctx context.Context, req models.CreateNotificationRequest) (string, error)
	Persisted(ctx context.Context, userID string) ([]models.Notification, error)
}

// NotificationHandler exposes the activity feed and persisted notifications.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(svc notificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// UnreadCount godoc
// @Summary Count new activity since the caller's last visit
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	count := h.service.UnreadCount(c.Request.Context(), claims.UserID)
	response.JSON(c, http.StatusOK, gin.H{"unread_count": count}, nil)
}

// Recent godoc
// @Summary Merged activity feed since the caller's last visit
// @Tags Notifications
// @Produce json
// @Param since query string false "RFC3339 cursor override"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /notifications/recent [get]
func (h *NotificationHandler) Recent(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var since *time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid since parameter, expected RFC3339"))
			return
		}
		since = &parsed
	}

	entries := h.service.Recent(c.Request.Context(), claims.UserID, since)
	response.JSON(c, http.StatusOK, entries, nil)
}

// List godoc
// @Summary Persisted notifications for the caller
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	notifications, err := h.service.Persisted(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications, nil)
}

// MarkRead godoc
// @Summary Mark a persisted notification as read
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id}/read [patch]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	updated, err := h.service.MarkAsRead(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !updated {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "notification not found"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": true}, nil)
}

// Create godoc
// @Summary Persist a notification row for a user
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body models.CreateNotificationRequest true "Notification payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /notifications [post]
func (h *NotificationHandler) Create(c *gin.Context) {
	var req models.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid notification payload"))
		return
	}
	id, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"id": id})
}
