package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockwatch/stockwatch/internal/api/respond"
	"github.com/stockwatch/stockwatch/internal/notifications"
	"github.com/stockwatch/stockwatch/internal/store"
)

// settingsRequest is the body of PUT /settings. Pointers distinguish a
// missing field (keep current value) from an explicit zero.
type settingsRequest struct {
	GlobalLowStockThreshold *int                         `json:"globalLowStockThreshold" validate:"omitempty,min=0,max=100000"`
	NotificationSettings    *notificationSettingsRequest `json:"notificationSettings"`
}

type notificationSettingsRequest struct {
	Enabled           *bool `json:"enabled"`
	Interval          *int  `json:"interval" validate:"omitempty,min=1,max=10080"`
	LowStockEnabled   *bool `json:"lowStockEnabled"`
	OutOfStockEnabled *bool `json:"outOfStockEnabled"`
}

func (req settingsRequest) apply(us store.UserSettings) store.UserSettings {
	if req.GlobalLowStockThreshold != nil {
		us.GlobalLowStockThreshold = *req.GlobalLowStockThreshold
	}
	if ns := req.NotificationSettings; ns != nil {
		s := &us.NotificationSettings
		if ns.Enabled != nil {
			s.Enabled = *ns.Enabled
		}
		if ns.Interval != nil {
			s.Interval = *ns.Interval
		}
		if ns.LowStockEnabled != nil {
			s.LowStockEnabled = *ns.LowStockEnabled
		}
		if ns.OutOfStockEnabled != nil {
			s.OutOfStockEnabled = *ns.OutOfStockEnabled
		}
	}
	us.NotificationSettings = us.NotificationSettings.Normalize()
	return us
}

type settingsResponse struct {
	GlobalLowStockThreshold int                    `json:"globalLowStockThreshold"`
	NotificationSettings    notifications.Settings `json:"notificationSettings"`
	LastStockNotification   *time.Time             `json:"lastStockNotification"`
}

func newSettingsResponse(us store.UserSettings, last time.Time) settingsResponse {
	resp := settingsResponse{
		GlobalLowStockThreshold: us.GlobalLowStockThreshold,
		NotificationSettings:    us.NotificationSettings,
	}
	if !last.IsZero() {
		resp.LastStockNotification = &last
	}
	return resp
}

// GetSettings returns the user's settings with defaults filled in.
// @Summary Get user settings
// @Tags settings
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} settingsResponse
// @Router /api/v1/users/{userID}/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	us, last, err := h.store.LoadUserSettings(r.Context(), userID)
	if err != nil {
		h.logger.Error("load settings failed", "user_id", userID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "DB_ERROR", "Failed to load settings")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, newSettingsResponse(us, last))
}

// PutSettings updates the user's settings. Fields left out keep their
// current value.
// @Summary Update user settings
// @Tags settings
// @Accept json
// @Produce json
// @Param userID path string true "User ID"
// @Param body body settingsRequest true "Settings"
// @Success 200 {object} settingsResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/settings [put]
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req settingsRequest
	if err := h.decodeBody(r, &req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Invalid settings", err.Error())
		return
	}

	current, last, err := h.store.LoadUserSettings(r.Context(), userID)
	if err != nil {
		h.logger.Error("load settings failed", "user_id", userID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "DB_ERROR", "Failed to load settings")
		return
	}
	updated := req.apply(current)
	err = h.store.SaveUserSettings(r.Context(), userID, updated)
	if errors.Is(err, store.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if err != nil {
		h.logger.Error("save settings failed", "user_id", userID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "DB_ERROR", "Failed to save settings")
		return
	}

	// The global threshold feeds the stock summary.
	h.cache.DeletePrefix(summaryCacheKey(userID))
	respond.WriteJSONObject(w, http.StatusOK, newSettingsResponse(updated, last))
}

type pushTokenRequest struct {
	Token string `json:"token" validate:"required,max=512"`
}

// PutPushToken registers the device push token for the user.
// @Summary Register push token
// @Tags settings
// @Accept json
// @Param userID path string true "User ID"
// @Param body body pushTokenRequest true "Push token"
// @Success 204
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/push-token [put]
func (h *Handler) PutPushToken(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if err := h.decodeBody(r, &req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Invalid push token", err.Error())
		return
	}
	h.setPushToken(w, r, req.Token)
}

// DeletePushToken clears the user's push token.
// @Summary Clear push token
// @Tags settings
// @Param userID path string true "User ID"
// @Success 204
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/users/{userID}/push-token [delete]
func (h *Handler) DeletePushToken(w http.ResponseWriter, r *http.Request) {
	h.setPushToken(w, r, "")
}

func (h *Handler) setPushToken(w http.ResponseWriter, r *http.Request, token string) {
	userID := chi.URLParam(r, "userID")
	err := h.store.SetPushToken(r.Context(), userID, token)
	if errors.Is(err, store.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "User not found")
		return
	}
	if err != nil {
		h.logger.Error("set push token failed", "user_id", userID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "DB_ERROR", "Failed to save push token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
