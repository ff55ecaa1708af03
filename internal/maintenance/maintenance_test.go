package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakePurger) PurgeRead(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.n, f.err
}

func (f *fakePurger) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestCleanupCutoff(t *testing.T) {
	p := &fakePurger{n: 3}
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	n, err := Cleanup(context.Background(), p, 30*24*time.Hour, now, discard)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.Len(t, p.cutoffs, 1)
	assert.Equal(t, time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC), p.cutoffs[0])
}

func TestCleanupErrors(t *testing.T) {
	p := &fakePurger{err: errors.New("db down")}
	_, err := Cleanup(context.Background(), p, time.Hour, time.Now(), discard)
	assert.Error(t, err)

	_, err = Cleanup(context.Background(), p, 0, time.Now(), discard)
	assert.Error(t, err)
	assert.Equal(t, 1, p.calls())
}

func TestStartRunsUntilCancelled(t *testing.T) {
	p := &fakePurger{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Start(ctx, p, Config{CleanupInterval: 5 * time.Millisecond, Retention: time.Hour}, discard)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.calls() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestStartDisabled(t *testing.T) {
	p := &fakePurger{}
	Start(context.Background(), p, Config{}, discard)
	assert.Zero(t, p.calls())
}
