package listener

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockwatch/stockwatch/internal/notifications"
)

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	release chan struct{}
}

func (f *fakeRunner) RunForUser(ctx context.Context, userID string) (notifications.UserResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, userID)
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return notifications.UserResult{UserID: userID, Outcome: notifications.OutcomeDispatched}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent(`{"user_id":"u1"}`)
	require.NoError(t, err)
	assert.Equal(t, "u1", ev.UserID)

	_, err = ParseEvent(`{}`)
	assert.Error(t, err)

	_, err = ParseEvent(`not json`)
	assert.Error(t, err)
}

func TestHandleRunsUserCheck(t *testing.T) {
	runner := &fakeRunner{}
	l := New("", runner, testLogger())

	assert.True(t, l.Handle(context.Background(), `{"user_id":"u1"}`))
	assert.False(t, l.Handle(context.Background(), `garbage`))
	l.Wait()

	assert.Equal(t, []string{"u1"}, runner.calls)
}

func TestHandleDropsDuplicateInFlight(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	l := New("", runner, testLogger())

	assert.True(t, l.Handle(context.Background(), `{"user_id":"u1"}`))
	assert.False(t, l.Handle(context.Background(), `{"user_id":"u1"}`))
	assert.True(t, l.Handle(context.Background(), `{"user_id":"u2"}`))

	close(runner.release)
	l.Wait()

	assert.ElementsMatch(t, []string{"u1", "u2"}, runner.calls)

	// Once finished, the same user can be checked again.
	runner.release = nil
	assert.True(t, l.Handle(context.Background(), `{"user_id":"u1"}`))
	l.Wait()
	assert.Len(t, runner.calls, 3)
}
