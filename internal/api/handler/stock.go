package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stockwatch/stockwatch/internal/api/respond"
	"github.com/stockwatch/stockwatch/internal/cache"
	"github.com/stockwatch/stockwatch/internal/stock"
)

func summaryCacheKey(userID string) string {
	return "summary:" + userID
}

// GetStockSummary returns inventory statistics for the user: totals, low and
// out-of-stock counts and a per-category breakdown.
// @Summary Stock summary
// @Description Inventory statistics using the user's global threshold. Supports ETag/If-None-Match.
// @Tags stock
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} stock.Summary
// @Success 304 "Not Modified"
// @Router /api/v1/users/{userID}/stock/summary [get]
func (h *Handler) GetStockSummary(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	key := summaryCacheKey(userID)

	if data, etag, ok := h.cache.Get(key); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteCachedJSON(w, data, etag, cache.TTLStockSummary, true)
		return
	}

	ctx := r.Context()
	us, _, err := h.store.LoadUserSettings(ctx, userID)
	if err != nil {
		h.logger.Error("load settings failed", "user_id", userID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "DB_ERROR", "Failed to load settings")
		return
	}
	items, err := h.store.ListItems(ctx, userID)
	if err != nil {
		h.logger.Error("list inventory failed", "user_id", userID, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "DB_ERROR", "Failed to load inventory")
		return
	}

	data, err := json.Marshal(stock.Summarize(items, us.GlobalLowStockThreshold))
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_ERROR", "Failed to encode summary")
		return
	}
	etag := h.cache.Set(key, data, cache.TTLStockSummary)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteCachedJSON(w, data, etag, cache.TTLStockSummary, false)
}

type suggestRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// SuggestCategory asks the generative model for a product category.
// @Summary Suggest category
// @Tags categories
// @Accept json
// @Produce json
// @Param body body suggestRequest true "Product name"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/categories/suggest [post]
func (h *Handler) SuggestCategory(w http.ResponseWriter, r *http.Request) {
	if h.categories == nil || !h.categories.Configured() {
		respond.WriteError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "Category suggestion is not configured")
		return
	}

	var req suggestRequest
	if err := h.decodeBody(r, &req); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Invalid request", err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_BODY", "name is required")
		return
	}

	key := "suggest:" + strings.ToLower(name)
	if data, _, ok := h.cache.Get(key); ok {
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
			"name": name, "category": string(data), "cached": true,
		})
		return
	}

	category, err := h.categories.Suggest(r.Context(), name)
	if err != nil {
		h.logger.Warn("category suggestion failed", "name", name, "error", err)
		respond.WriteErrorDetail(w, http.StatusBadGateway, "UPSTREAM_ERROR", "Category suggestion failed", err.Error())
		return
	}
	h.cache.Set(key, []byte(category), cache.TTLSuggestion)
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name": name, "category": category, "cached": false,
	})
}
