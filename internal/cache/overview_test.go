package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"budgets/internal/core"
)

func TestOverviewCache_LoadsOnce(t *testing.T) {
	c := NewOverviewCache(10, time.Minute)
	var loads int32
	load := func(context.Context) (core.Overview, error) {
		atomic.AddInt32(&loads, 1)
		return core.Overview{TransactionCount: 3, ReachedRatio: "1/2"}, nil
	}

	for i := 0; i < 3; i++ {
		ov, err := c.Load(context.Background(), "u1", load)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if ov.TransactionCount != 3 {
			t.Fatalf("unexpected overview %+v", ov)
		}
	}
	if loads != 1 {
		t.Fatalf("expected 1 load, got %d", loads)
	}

	c.Invalidate("u1")
	if _, err := c.Load(context.Background(), "u1", load); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loads != 2 {
		t.Fatalf("expected reload after invalidate, got %d loads", loads)
	}
}

func TestOverviewCache_ConcurrentMissesShareLoad(t *testing.T) {
	c := NewOverviewCache(10, time.Minute)
	var loads int32
	release := make(chan struct{})
	load := func(context.Context) (core.Overview, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return core.Overview{ReachedRatio: "0/0"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Load(context.Background(), "u1", load); err != nil {
				t.Errorf("Load: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&loads); n != 1 {
		t.Fatalf("expected a single shared load, got %d", n)
	}
}

func TestOverviewCache_ErrorsAreNotCached(t *testing.T) {
	c := NewOverviewCache(10, time.Minute)
	boom := errors.New("boom")
	if _, err := c.Load(context.Background(), "u1", func(context.Context) (core.Overview, error) {
		return core.Overview{}, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.Size() != 0 {
		t.Fatalf("failed load should not be cached")
	}
}

func TestOverviewCache_InvalidateDuringLoadSkipsStore(t *testing.T) {
	c := NewOverviewCache(10, time.Minute)
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Load(context.Background(), "u1", func(context.Context) (core.Overview, error) {
			close(started)
			<-release
			return core.Overview{TransactionCount: 1}, nil
		})
	}()

	<-started
	c.Invalidate("u1")
	close(release)
	<-done

	if c.Size() != 0 {
		t.Fatal("stale overview was stored after invalidation")
	}
}

func TestOverviewCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	c := NewOverviewCache(10, time.Minute)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	load := func(ctx context.Context) (core.Overview, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return core.Overview{}, err
		}
		return core.Overview{TransactionCount: 4}, nil
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Load(firstCtx, "u1", load)
		firstErr <- err
	}()
	<-started

	type result struct {
		ov  core.Overview
		err error
	}
	second := make(chan result, 1)
	go func() {
		ov, err := c.Load(context.Background(), "u1", load)
		second <- result{ov, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller got %v, want context.Canceled", err)
	}

	close(release)
	got := <-second
	if got.err != nil || got.ov.TransactionCount != 4 {
		t.Fatalf("waiting caller got %+v, %v", got.ov, got.err)
	}
	if c.Size() != 1 {
		t.Fatal("shared load result was not cached")
	}
}
