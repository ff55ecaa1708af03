package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stockwatch/stockwatch/internal/api/respond"
	"github.com/stockwatch/stockwatch/internal/notifications"
	"github.com/stockwatch/stockwatch/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// TriggerCheck runs one stock check cycle across all users.
// @Summary Run stock check
// @Description Runs the low-stock notification cycle for every user and returns the summary. Returns 409 when a cycle is already running.
// @Tags notifications
// @Produce json
// @Success 200 {object} notifications.CycleResult
// @Failure 409 {object} respond.ErrorResponse
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/notifications/check [post]
func (h *Handler) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.cycle.Run(r.Context())
	if errors.Is(err, notifications.ErrCycleInProgress) {
		respond.WriteError(w, http.StatusConflict, "CYCLE_IN_PROGRESS", "A stock check is already running")
		return
	}
	if err != nil {
		h.logger.Error("manual stock check failed", "error", err)
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "CHECK_FAILED", "Stock check failed", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"summary": result,
	})
}

// TriggerUserCheck runs the stock check for one user.
// @Summary Run stock check for a user
// @Tags notifications
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} notifications.UserResult
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/notifications/check [post]
func (h *Handler) TriggerUserCheck(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	result, err := h.users.RunForUser(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if err != nil {
		h.logger.Error("user stock check failed", "user_id", userID, "error", err)
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "CHECK_FAILED", "Stock check failed", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, result)
}

// ListNotifications returns the user's notification records, newest first.
// @Summary List notifications
// @Tags notifications
// @Produce json
// @Param userID path string true "User ID"
// @Param unread query bool false "Only unread records"
// @Param limit query int false "Maximum records (1-200)" default(50)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/notifications [get]
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	q := r.URL.Query()

	unreadOnly := false
	if v := q.Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_PARAM", "unread must be a boolean")
			return
		}
		unreadOnly = b
	}

	limit := defaultListLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_PARAM", "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	recs, err := h.store.ListNotifications(r.Context(), userID, unreadOnly, limit)
	if err != nil {
		h.logger.Error("list notifications failed", "user_id", userID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "DB_ERROR", "Failed to load notifications")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"notifications": recs,
		"count":         len(recs),
	})
}

// MarkRead marks one notification record read.
// @Summary Mark notification read
// @Tags notifications
// @Param userID path string true "User ID"
// @Param id path string true "Notification ID (UUID)"
// @Success 204
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/notifications/{id}/read [post]
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "Notification ID must be a UUID")
		return
	}

	err := h.store.MarkRead(r.Context(), userID, id)
	if errors.Is(err, store.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Notification not found")
		return
	}
	if err != nil {
		h.logger.Error("mark read failed", "user_id", userID, "id", id, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "DB_ERROR", "Failed to update notification")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead marks every unread notification of the user read.
// @Summary Mark all notifications read
// @Tags notifications
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/users/{userID}/notifications/read-all [post]
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	n, err := h.store.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.logger.Error("mark all read failed", "user_id", userID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "DB_ERROR", "Failed to update notifications")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{"updated": n})
}
