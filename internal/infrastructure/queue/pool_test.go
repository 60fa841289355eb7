package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPool_RunsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPool(2, zerolog.Nop())
	p.Start(ctx)

	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Do(ctx, func() { n.Add(1) }); err != nil {
				t.Errorf("Do: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := n.Load(); got != 20 {
		t.Fatalf("expected 20 jobs run, got %d", got)
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const size = 3
	p := NewPool(size, zerolog.Nop())
	p.Start(ctx)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(ctx, func() {
				cur := running.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
			})
		}()
	}
	wg.Wait()

	if got := peak.Load(); got > size {
		t.Fatalf("peak concurrency %d exceeds pool size %d", got, size)
	}
}

func TestPool_WaitCancelledByContext(t *testing.T) {
	poolCtx, cancelPool := context.WithCancel(context.Background())
	defer cancelPool()

	p := NewPool(1, zerolog.Nop())
	p.Start(poolCtx)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.Do(poolCtx, func() {
			close(started)
			<-release
		})
	}()
	<-started

	reqCtx, cancelReq := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelReq()

	err := p.Do(reqCtx, func() { t.Error("job should not run") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(release)
}

func TestPool_StoppedPoolRejects(t *testing.T) {
	poolCtx, cancelPool := context.WithCancel(context.Background())
	p := NewPool(1, zerolog.Nop())
	p.Start(poolCtx)
	cancelPool()

	deadline := time.After(time.Second)
	for {
		err := p.Do(context.Background(), func() {})
		if errors.Is(err, ErrPoolStopped) {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("pool kept accepting jobs after stop, last err %v", err)
		default:
		}
	}
}

func TestPool_RecoversPanickingJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := NewPool(1, zerolog.Nop())
	p.Start(ctx)

	if err := p.Do(ctx, func() { panic("boom") }); err == nil {
		t.Fatal("expected error from panicking job")
	}
	if err := p.Do(ctx, func() {}); err != nil {
		t.Fatalf("worker should survive a panic, got %v", err)
	}
}

func TestNewPool_DefaultSize(t *testing.T) {
	if p := NewPool(0, zerolog.Nop()); p.Size() < 1 {
		t.Fatalf("expected default size >= 1, got %d", p.Size())
	}
}
