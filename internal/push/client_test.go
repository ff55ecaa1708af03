package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() Message {
	return Message{
		To:       "ExponentPushToken[abc]",
		Title:    "Produtos sem stock",
		Body:     "Leite está sem stock",
		Data:     Data{Type: "out-of-stock", UserID: "u1", Count: 1},
		Sound:    "default",
		Priority: PriorityHigh,
	}
}

func TestSendOK(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"data":{"status":"ok","id":"ticket-1"}}`))
	}))
	defer srv.Close()

	c := NewClient(Options{GatewayURL: srv.URL, AccessToken: "secret"}, nil)
	ticket, err := c.Send(context.Background(), testMessage())
	require.NoError(t, err)

	assert.Equal(t, "ticket-1", ticket.ID)
	assert.Equal(t, testMessage(), got)
}

func TestSendRejected(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"error status":   {http.StatusOK, `{"data":{"status":"error","message":"not registered","details":{"error":"DeviceNotRegistered"}}}`},
		"missing data":   {http.StatusOK, `{}`},
		"request errors": {http.StatusBadRequest, `{"errors":[{"code":"VALIDATION_ERROR","message":"bad token"}]}`},
		"not json":       {http.StatusBadGateway, `<html>bad gateway</html>`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewClient(Options{GatewayURL: srv.URL}, nil)
			_, err := c.Send(context.Background(), testMessage())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrRejected)
		})
	}
}

func TestSendNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Options{GatewayURL: url}, nil)
	_, err := c.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestSendHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"status":"ok"}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(Options{GatewayURL: srv.URL, RatePerSecond: 5}, nil)
	_, err := c.Send(ctx, testMessage())
	assert.Error(t, err)
}
