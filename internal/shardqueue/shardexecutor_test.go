package shardqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	rerrors "github.com/readbori/pulse-diary/internal/errors"
)

type noopJob struct{}

func (noopJob) Run(context.Context) error { return nil }

// waitFor fails the test if ch is not closed within d.
func waitFor(t *testing.T, ch <-chan struct{}, d time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(d):
		t.Fatalf("timeout waiting for %s", what)
	}
}

func TestShardExecutor_FIFOOrdering(t *testing.T) {
	t.Parallel()
	p := NewShardExecutor(Config{Shards: 4, QueueSize: 10})
	defer p.Stop()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 5; i++ {
		v := i
		if err := p.Submit(context.Background(), "record:1", JobFunc(func(context.Context) error {
			mu.Lock()
			order = append(order, v)
			mu.Unlock()
			return nil
		})); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Barrier(ctx, "record:1"); err != nil {
		t.Fatalf("barrier: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range order {
		if i != v {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestShardExecutor_ParallelDifferentKeys(t *testing.T) {
	t.Parallel()
	p := NewShardExecutor(Config{Shards: 4, QueueSize: 10})
	defer p.Stop()

	// Find two keys on different shards.
	a, b := "record:a", "record:b"
	for p.shardFor(a) == p.shardFor(b) {
		b += "x"
	}

	start := make(chan struct{})
	done := make(chan struct{})
	_ = p.Submit(context.Background(), a, JobFunc(func(context.Context) error {
		<-start
		close(done)
		return nil
	}))
	_ = p.Submit(context.Background(), b, JobFunc(func(context.Context) error {
		close(start)
		return nil
	}))
	waitFor(t, done, 500*time.Millisecond, "parallel shards")
}

func TestShardExecutor_SerialExecutionSameKey(t *testing.T) {
	t.Parallel()
	const n = 200
	p := NewShardExecutor(Config{Shards: 4, QueueSize: n})
	defer p.Stop()

	var inFlight, overlap int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		_ = p.Submit(context.Background(), "X", JobFunc(func(context.Context) error {
			defer wg.Done()
			if atomic.AddInt32(&inFlight, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(50 * time.Microsecond)
			atomic.AddInt32(&inFlight, -1)
			return nil
		}))
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	waitFor(t, done, 2*time.Second, "serial jobs")

	if atomic.LoadInt32(&overlap) == 1 {
		t.Fatal("detected overlapping execution for same key")
	}
}

func TestShardExecutor_QueueFull(t *testing.T) {
	t.Parallel()
	p := NewShardExecutor(Config{Shards: 1, QueueSize: 1, EnqueueTimeout: 10 * time.Millisecond})
	defer p.Stop()

	block, unblock := context.WithCancel(context.Background())
	defer unblock()
	started := make(chan struct{})
	_ = p.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		close(started)
		<-block.Done()
		return nil
	}))
	waitFor(t, started, time.Second, "blocking job")

	_ = p.Submit(context.Background(), "k", noopJob{})
	err := p.Submit(context.Background(), "k", noopJob{})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestShardExecutor_SubmitAfterStop(t *testing.T) {
	t.Parallel()
	p := NewShardExecutor(Config{Shards: 2, QueueSize: 2})
	p.Stop()
	p.Stop()

	if err := p.Submit(context.Background(), "Z", noopJob{}); !errors.Is(err, ErrExecutorClosed) {
		t.Fatalf("expected ErrExecutorClosed, got %v", err)
	}
}

func TestShardExecutor_StopDrainsQueue(t *testing.T) {
	t.Parallel()
	p := NewShardExecutor(Config{Shards: 1, QueueSize: 16})

	var ran int32
	for i := 0; i < 10; i++ {
		_ = p.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}))
	}
	p.Stop()

	if got := atomic.LoadInt32(&ran); got != 10 {
		t.Fatalf("ran %d jobs before Stop returned, want 10", got)
	}
}

func TestShardExecutor_StopSubmitRaceFree(t *testing.T) {
	t.Parallel()
	p := NewShardExecutor(Config{Shards: 4, QueueSize: 32})

	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Submit(context.Background(), "k", noopJob{})
		}()
	}
	go p.Stop()
	wg.Wait()
}

func TestShardExecutor_RetriesRecoverable(t *testing.T) {
	t.Parallel()
	p := NewShardExecutor(Config{Shards: 1, QueueSize: 10, MaxAttempts: 3, BaseBackoff: 5 * time.Millisecond})
	defer p.Stop()

	var attempts int32
	_ = p.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return rerrors.NewNetworkError("push", errors.New("connection reset"))
		}
		return nil
	}))
	if err := p.Barrier(context.Background(), "k"); err != nil {
		t.Fatalf("barrier: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestShardExecutor_IrrecoverableFailsFast(t *testing.T) {
	t.Parallel()
	var handled []string
	var mu sync.Mutex
	p := NewShardExecutor(Config{
		Shards: 1, QueueSize: 10, MaxAttempts: 5, BaseBackoff: time.Millisecond,
		ErrorHandler: func(key string, err error) {
			mu.Lock()
			handled = append(handled, key)
			mu.Unlock()
		},
	})
	defer p.Stop()

	var attempts int32
	_ = p.Submit(context.Background(), "report:9", JobFunc(func(context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return rerrors.NewHTTPError(403, "forbidden", "upsert")
	}))
	if err := p.Barrier(context.Background(), "report:9"); err != nil {
		t.Fatalf("barrier: %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 1 || handled[0] != "report:9" {
		t.Fatalf("error handler keys = %v", handled)
	}
}

func TestShardExecutor_ExhaustedAttemptsReported(t *testing.T) {
	t.Parallel()
	var calls int32
	p := NewShardExecutor(Config{
		Shards: 1, QueueSize: 4, MaxAttempts: 2, BaseBackoff: time.Millisecond,
		ErrorHandler: func(string, error) { atomic.AddInt32(&calls, 1) },
	})
	defer p.Stop()

	_ = p.Submit(context.Background(), "k", JobFunc(func(context.Context) error { return errors.New("boom") }))
	if err := p.Barrier(context.Background(), "k"); err != nil {
		t.Fatalf("barrier: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("error handler calls = %d, want 1", got)
	}
}

func TestShardExecutor_ErrorHandlerPanicRecovered(t *testing.T) {
	t.Parallel()
	p := NewShardExecutor(Config{
		Shards: 1, QueueSize: 8, MaxAttempts: 1,
		ErrorHandler: func(string, error) { panic("handler panic") },
	})
	defer p.Stop()

	_ = p.Submit(context.Background(), "k", JobFunc(func(context.Context) error { return errors.New("boom") }))
	ran := make(chan struct{})
	_ = p.Submit(context.Background(), "k", JobFunc(func(context.Context) error { close(ran); return nil }))
	waitFor(t, ran, time.Second, "job after handler panic")
}

func TestShardExecutor_JobPanicKeepsShardAlive(t *testing.T) {
	t.Parallel()
	var got error
	var mu sync.Mutex
	p := NewShardExecutor(Config{
		Shards: 1, QueueSize: 4, MaxAttempts: 3,
		ErrorHandler: func(_ string, err error) { mu.Lock(); got = err; mu.Unlock() },
	})
	defer p.Stop()

	_ = p.Submit(context.Background(), "k", JobFunc(func(context.Context) error { panic("job panic") }))
	ran := make(chan struct{})
	_ = p.Submit(context.Background(), "k", JobFunc(func(context.Context) error { close(ran); return nil }))
	waitFor(t, ran, time.Second, "job after panic on the same shard")

	mu.Lock()
	defer mu.Unlock()
	if !rerrors.IsIrrecoverable(got) {
		t.Fatalf("expected irrecoverable panic error, got %v", got)
	}
}

func TestShardExecutor_SkipsCanceledJob(t *testing.T) {
	t.Parallel()
	var handled int32
	p := NewShardExecutor(Config{
		Shards: 1, QueueSize: 4, MaxAttempts: 1,
		ErrorHandler: func(_ string, err error) {
			if errors.Is(err, context.Canceled) {
				atomic.AddInt32(&handled, 1)
			}
		},
	})
	defer p.Stop()

	block, unblock := context.WithCancel(context.Background())
	started := make(chan struct{})
	_ = p.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		close(started)
		<-block.Done()
		return nil
	}))
	<-started

	var ran int32
	jobCtx, cancelJob := context.WithCancel(context.Background())
	_ = p.Submit(jobCtx, "k", JobFunc(func(context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	}))
	cancelJob()
	unblock()

	if err := p.Barrier(context.Background(), "k"); err != nil {
		t.Fatalf("barrier: %v", err)
	}
	if atomic.LoadInt32(&ran) == 1 {
		t.Fatal("Run should not be called for a canceled job")
	}
	if atomic.LoadInt32(&handled) != 1 {
		t.Fatal("expected error handler to see context.Canceled")
	}
}

func TestSubmit_ContextCanceledWhileWaiting(t *testing.T) {
	t.Parallel()
	p := NewShardExecutor(Config{Shards: 1, QueueSize: 1, EnqueueTimeout: time.Second})
	defer p.Stop()

	block, unblock := context.WithCancel(context.Background())
	defer unblock()
	started := make(chan struct{})
	_ = p.Submit(context.Background(), "k", JobFunc(func(context.Context) error {
		close(started)
		<-block.Done()
		return nil
	}))
	<-started
	_ = p.Submit(context.Background(), "k", noopJob{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Submit(ctx, "k", noopJob{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestQueueFullError_ErrorAndIs(t *testing.T) {
	e := &QueueFullError{Shard: 3, Length: 10, Capacity: 16}
	if e.Error() == "" {
		t.Fatal("empty error string")
	}
	if !errors.Is(e, ErrQueueFull) || errors.Is(e, ErrExecutorClosed) {
		t.Fatal("QueueFullError must match only ErrQueueFull")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PULSE_PUSH_SHARDS", "8")
	t.Setenv("PULSE_PUSH_QUEUE_SIZE", "256")
	t.Setenv("PULSE_PUSH_ENQUEUE_TIMEOUT", "250ms")
	t.Setenv("PULSE_PUSH_MAX_ATTEMPTS", "5")
	t.Setenv("PULSE_PUSH_BASE_BACKOFF", "200ms")
	t.Setenv("PULSE_PUSH_MAX_INTERVAL", "5s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Shards != 8 || cfg.QueueSize != 256 || cfg.MaxAttempts != 5 {
		t.Fatalf("unexpected sizes: %+v", cfg)
	}
	if cfg.EnqueueTimeout != 250*time.Millisecond || cfg.BaseBackoff != 200*time.Millisecond || cfg.MaxInterval != 5*time.Second {
		t.Fatalf("unexpected durations: %+v", cfg)
	}
}
