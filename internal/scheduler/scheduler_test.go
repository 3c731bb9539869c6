package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/jobwatch/internal/model"
	"github.com/ashita-ai/jobwatch/internal/service/ingest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRunner counts runs and tracks how many overlap.
type fakeRunner struct {
	mu      sync.Mutex
	users   []string
	calls   atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool
	hold    time.Duration
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, in ingest.RunInput) (ingest.RunResult, error) {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.active.Add(-1)
	f.calls.Add(1)
	f.mu.Lock()
	f.users = append(f.users, in.UserID)
	f.mu.Unlock()

	select {
	case <-time.After(f.hold):
	case <-ctx.Done():
		return ingest.RunResult{Run: model.Run{RunID: uuid.New(), Status: model.RunStatusAborted}}, ctx.Err()
	}
	if f.err != nil {
		return ingest.RunResult{}, f.err
	}
	return ingest.RunResult{Run: model.Run{RunID: uuid.New(), Status: model.RunStatusCompleted}}, nil
}

func TestScheduler_RunsImmediately(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, "@every 1h", "operator", time.Minute, testLogger())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return runner.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, []string{"operator"}, runner.users)
}

func TestScheduler_TicksNeverOverlap(t *testing.T) {
	runner := &fakeRunner{hold: 1500 * time.Millisecond}
	s := New(runner, "@every 1s", "operator", 0, testLogger())
	require.NoError(t, s.Start(context.Background()))

	time.Sleep(3500 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, runner.calls.Load(), int32(1))
	assert.False(t, runner.overlap.Load(), "a tick during a run is skipped")
}

func TestScheduler_TimeoutBoundsRun(t *testing.T) {
	runner := &fakeRunner{hold: time.Hour}
	s := New(runner, "@every 1h", "operator", 50*time.Millisecond, testLogger())
	require.NoError(t, s.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the run timed out")
	}
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestScheduler_ErrorsDoNotStopTicks(t *testing.T) {
	runner := &fakeRunner{err: errors.New("fetch failed")}
	s := New(runner, "@every 1s", "operator", 0, testLogger())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return runner.calls.Load() >= 2 }, 3*time.Second, 20*time.Millisecond)
}

func TestScheduler_CancelledContextSkipsRuns(t *testing.T) {
	runner := &fakeRunner{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(runner, "@every 1h", "operator", 0, testLogger())
	require.NoError(t, s.Start(ctx))
	s.Stop()
	assert.Equal(t, int32(0), runner.calls.Load())
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := New(&fakeRunner{}, "every tuesday", "operator", 0, testLogger())
	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "every tuesday")
}
