package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockwatch/stockwatch/internal/cache"
	"github.com/stockwatch/stockwatch/internal/notifications"
	"github.com/stockwatch/stockwatch/internal/stock"
	"github.com/stockwatch/stockwatch/internal/store"
)

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

type fakeStore struct {
	mu        sync.Mutex
	healthErr error
	items     map[string][]stock.Item
	settings  map[string]store.UserSettings
	last      map[string]time.Time
	tokens    map[string]string
	records   map[string][]notifications.Record
	itemLoads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:    map[string][]stock.Item{},
		settings: map[string]store.UserSettings{},
		last:     map[string]time.Time{},
		tokens:   map[string]string{"u1": ""},
		records:  map[string][]notifications.Record{},
	}
}

func (f *fakeStore) HealthCheck(ctx context.Context) error { return f.healthErr }

func (f *fakeStore) ListItems(ctx context.Context, userID string) ([]stock.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.itemLoads++
	return f.items[userID], nil
}

func (f *fakeStore) LoadUserSettings(ctx context.Context, userID string) (store.UserSettings, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	us, ok := f.settings[userID]
	if !ok {
		us = store.DefaultUserSettings()
	}
	return us, f.last[userID], nil
}

func (f *fakeStore) SaveUserSettings(ctx context.Context, userID string, us store.UserSettings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[userID]; !ok {
		return store.ErrNotFound
	}
	f.settings[userID] = us
	return nil
}

func (f *fakeStore) SetPushToken(ctx context.Context, userID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[userID]; !ok {
		return store.ErrNotFound
	}
	f.tokens[userID] = token
	return nil
}

func (f *fakeStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notifications.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []notifications.Record{}
	for _, r := range f.records[userID] {
		if unreadOnly && r.Read {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) MarkRead(ctx context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.records[userID] {
		if r.ID == id {
			f.records[userID][i].Read = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for i, r := range f.records[userID] {
		if !r.Read {
			f.records[userID][i].Read = true
			n++
		}
	}
	return n, nil
}

type fakeCycle struct {
	result notifications.CycleResult
	err    error
}

func (f *fakeCycle) Run(ctx context.Context) (notifications.CycleResult, error) {
	return f.result, f.err
}

type fakeUsers struct{}

func (fakeUsers) RunForUser(ctx context.Context, userID string) (notifications.UserResult, error) {
	return notifications.UserResult{UserID: userID, Outcome: notifications.OutcomeGated}, nil
}

type wrappedNotFoundUsers struct{}

func (wrappedNotFoundUsers) RunForUser(ctx context.Context, userID string) (notifications.UserResult, error) {
	return notifications.UserResult{}, errors.Join(errors.New("get user"), store.ErrNotFound)
}

type fakeSuggester struct {
	configured bool
	calls      int
}

func (f *fakeSuggester) Configured() bool { return f.configured }

func (f *fakeSuggester) Suggest(ctx context.Context, name string) (string, error) {
	f.calls++
	return "Laticínios", nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

type testEnv struct {
	store   *fakeStore
	cycle   *fakeCycle
	suggest *fakeSuggester
	router  chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   newFakeStore(),
		cycle:   &fakeCycle{result: notifications.CycleResult{TotalUsers: 3, UsersWithToken: 2, UsersWithoutToken: 1, Errors: []string{}}},
		suggest: &fakeSuggester{configured: true},
	}
	h := New(Deps{
		Store:      env.store,
		Cycle:      env.cycle,
		Users:      fakeUsers{},
		Categories: env.suggest,
		Cache:      cache.New(true),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Version:    "test",
	})
	r := chi.NewRouter()
	r.Get("/health", h.HealthCheck)
	r.Get("/health/db", h.HealthCheckDB)
	r.Post("/api/v1/notifications/check", h.TriggerCheck)
	r.Post("/api/v1/categories/suggest", h.SuggestCategory)
	r.Route("/api/v1/users/{userID}", func(r chi.Router) {
		r.Post("/notifications/check", h.TriggerUserCheck)
		r.Get("/notifications", h.ListNotifications)
		r.Post("/notifications/read-all", h.MarkAllRead)
		r.Post("/notifications/{id}/read", h.MarkRead)
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.PutSettings)
		r.Put("/push-token", h.PutPushToken)
		r.Delete("/push-token", h.DeletePushToken)
		r.Get("/stock/summary", h.GetStockSummary)
	})
	env.router = r
	return env
}

func (e *testEnv) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	e, ok := body["error"].(map[string]interface{})
	require.True(t, ok, rec.Body.String())
	return e["code"].(string)
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestHealthDB(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health/db", "").Code)

	env.store.healthErr = errors.New("down")
	rec := env.do(http.MethodGet, "/health/db", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode(t, rec)["status"])
}

func TestTriggerCheckReturnsSummary(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/v1/notifications/check", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	summary := body["summary"].(map[string]interface{})
	assert.EqualValues(t, 3, summary["totalUsers"])
	assert.EqualValues(t, 2, summary["usersWithToken"])
	assert.EqualValues(t, 1, summary["usersWithoutToken"])
}

func TestTriggerCheckConflictAndFailure(t *testing.T) {
	env := newTestEnv(t)

	env.cycle.err = notifications.ErrCycleInProgress
	rec := env.do(http.MethodPost, "/api/v1/notifications/check", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CYCLE_IN_PROGRESS", errorCode(t, rec))

	env.cycle.err = errors.New("list users: connection refused")
	rec = env.do(http.MethodPost, "/api/v1/notifications/check", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "CHECK_FAILED", errorCode(t, rec))
}

func TestTriggerUserCheck(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/v1/users/u1/notifications/check", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gated", decode(t, rec)["outcome"])
}

func TestTriggerUserCheckNotFound(t *testing.T) {
	h := New(Deps{Store: newFakeStore(), Users: wrappedNotFoundUsers{}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	r := chi.NewRouter()
	r.Post("/users/{userID}/check", h.TriggerUserCheck)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/x/check", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListNotifications(t *testing.T) {
	env := newTestEnv(t)
	env.store.records["u1"] = []notifications.Record{
		{ID: "11111111-1111-1111-1111-111111111111", UserID: "u1", Title: "Stock baixo", Type: notifications.TypeLowStock, ItemIDs: []string{"a"}},
		{ID: "22222222-2222-2222-2222-222222222222", UserID: "u1", Title: "Produtos sem stock", Type: notifications.TypeOutOfStock, Read: true, ItemIDs: []string{"b"}},
	}

	rec := env.do(http.MethodGet, "/api/v1/users/u1/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["count"])

	rec = env.do(http.MethodGet, "/api/v1/users/u1/notifications?unread=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	rec = env.do(http.MethodGet, "/api/v1/users/u1/notifications?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	for _, q := range []string{"?limit=0", "?limit=500", "?limit=x", "?unread=maybe"} {
		rec = env.do(http.MethodGet, "/api/v1/users/u1/notifications"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestMarkRead(t *testing.T) {
	env := newTestEnv(t)
	id := "11111111-1111-1111-1111-111111111111"
	env.store.records["u1"] = []notifications.Record{{ID: id, UserID: "u1"}}

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/users/u1/notifications/not-a-uuid/read", "").Code)
	assert.Equal(t, http.StatusNotFound,
		env.do(http.MethodPost, "/api/v1/users/u1/notifications/33333333-3333-3333-3333-333333333333/read", "").Code)

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/api/v1/users/u1/notifications/"+id+"/read", "").Code)
	assert.True(t, env.store.records["u1"][0].Read)
}

func TestMarkAllRead(t *testing.T) {
	env := newTestEnv(t)
	env.store.records["u1"] = []notifications.Record{{ID: "a"}, {ID: "b", Read: true}, {ID: "c"}}

	rec := env.do(http.MethodPost, "/api/v1/users/u1/notifications/read-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["updated"])
}

func TestGetSettingsDefaults(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/users/u1/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.EqualValues(t, stock.DefaultGlobalThreshold, body["globalLowStockThreshold"])
	assert.Nil(t, body["lastStockNotification"])
	ns := body["notificationSettings"].(map[string]interface{})
	assert.Equal(t, true, ns["enabled"])
	assert.EqualValues(t, 60, ns["interval"])
}

func TestPutSettingsPartialUpdate(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPut, "/api/v1/users/u1/settings",
		`{"globalLowStockThreshold": 3, "notificationSettings": {"lowStockEnabled": false, "interval": 30}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	saved := env.store.settings["u1"]
	assert.Equal(t, 3, saved.GlobalLowStockThreshold)
	assert.False(t, saved.NotificationSettings.LowStockEnabled)
	assert.True(t, saved.NotificationSettings.OutOfStockEnabled)
	assert.True(t, saved.NotificationSettings.Enabled)
	assert.Equal(t, 30, saved.NotificationSettings.Interval)
}

func TestPutSettingsUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPut, "/api/v1/users/nobody/settings", `{"globalLowStockThreshold": 3}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
	assert.Empty(t, env.store.settings)
}

func TestPutSettingsValidation(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]string{
		"negative threshold": `{"globalLowStockThreshold": -1}`,
		"negative interval":  `{"notificationSettings": {"interval": -5}}`,
		"unknown field":      `{"threshold": 3}`,
		"not json":           `{`,
		"wrong type":         `{"globalLowStockThreshold": "three"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := env.do(http.MethodPut, "/api/v1/users/u1/settings", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_BODY", errorCode(t, rec))
		})
	}
	assert.Empty(t, env.store.settings)
}

func TestPutSettingsInvalidatesSummary(t *testing.T) {
	env := newTestEnv(t)
	env.store.items["u1"] = []stock.Item{{ID: "a", Name: "Leite", Quantity: stock.NumberOf(4)}}

	rec := env.do(http.MethodGet, "/api/v1/users/u1/stock/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["lowStock"])

	rec = env.do(http.MethodPut, "/api/v1/users/u1/settings", `{"globalLowStockThreshold": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/v1/users/u1/stock/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.EqualValues(t, 0, decode(t, rec)["lowStock"])
}

func TestPushToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/api/v1/users/u1/push-token", `{"token": "ExponentPushToken[abc]"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ExponentPushToken[abc]", env.store.tokens["u1"])

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/v1/users/u1/push-token", `{"token": ""}`).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPut, "/api/v1/users/nobody/push-token", `{"token": "t"}`).Code)

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/v1/users/u1/push-token", "").Code)
	assert.Equal(t, "", env.store.tokens["u1"])
}

func TestStockSummaryCachingAndETag(t *testing.T) {
	env := newTestEnv(t)
	env.store.items["u1"] = []stock.Item{
		{ID: "a", Name: "Leite", Category: "Laticínios", Quantity: stock.NumberOf(0)},
		{ID: "b", Name: "Arroz", Category: "Mercearia", Quantity: stock.NumberOf(2)},
		{ID: "c", Name: "Massa", Category: "Mercearia", Quantity: stock.NumberOf(10)},
	}

	rec := env.do(http.MethodGet, "/api/v1/users/u1/stock/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	body := decode(t, rec)
	assert.EqualValues(t, 3, body["totalItems"])
	assert.EqualValues(t, 1, body["outOfStock"])
	assert.EqualValues(t, 1, body["lowStock"])

	rec = env.do(http.MethodGet, "/api/v1/users/u1/stock/summary", "")
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	rec = env.do(http.MethodGet, "/api/v1/users/u1/stock/summary", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Equal(t, 1, env.store.itemLoads)
}

func TestSuggestCategory(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/api/v1/categories/suggest", `{"name": "Leite meio-gordo"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Laticínios", body["category"])
	assert.Equal(t, false, body["cached"])

	rec = env.do(http.MethodPost, "/api/v1/categories/suggest", `{"name": "LEITE MEIO-GORDO"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["cached"])
	assert.Equal(t, 1, env.suggest.calls)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/categories/suggest", `{"name": "  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/v1/categories/suggest", `{}`).Code)
}

func TestSuggestCategoryNotConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.suggest.configured = false

	rec := env.do(http.MethodPost, "/api/v1/categories/suggest", `{"name": "Leite"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "NOT_CONFIGURED", errorCode(t, rec))
}
