package await

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFirstSignalWinsOnce(t *testing.T) {
	a := make(chan struct{})
	b := make(chan struct{})
	c := make(chan struct{})
	var calls atomic.Int32

	First(context.Background(), []<-chan struct{}{a, b, c}, nil, 0, 0, func() {
		calls.Add(1)
	})

	close(b)
	close(a)
	close(c)

	waitFor(t, func() bool { return calls.Load() >= 1 })
	time.Sleep(20 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("Expected exactly one resolution, got %d", n)
	}
}

func TestFirstIgnoresInvalidSignal(t *testing.T) {
	sig := make(chan struct{})
	var ready atomic.Bool
	var calls atomic.Int32

	First(context.Background(), []<-chan struct{}{sig}, ready.Load, 5*time.Millisecond, 100, func() {
		calls.Add(1)
	})

	// Signal fires before the condition holds; only a later poll may resolve.
	close(sig)
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("Expected no resolution while check fails")
	}

	ready.Store(true)
	waitFor(t, func() bool { return calls.Load() == 1 })
}

func TestFirstPollsWithoutSignals(t *testing.T) {
	var ready atomic.Bool
	done := make(chan struct{})

	First(context.Background(), nil, ready.Load, 5*time.Millisecond, 50, func() {
		close(done)
	})
	ready.Store(true)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected polling to resolve")
	}
}

func TestFirstStopsPollingAfterMax(t *testing.T) {
	var checks atomic.Int32
	check := func() bool {
		checks.Add(1)
		return false
	}

	First(context.Background(), nil, check, time.Millisecond, 3, func() {
		t.Error("onReady must not be called")
	})

	time.Sleep(50 * time.Millisecond)
	if n := checks.Load(); n != 3 {
		t.Errorf("Expected 3 polls, got %d", n)
	}
}

func TestFirstCancelled(t *testing.T) {
	sig := make(chan struct{})
	var calls atomic.Int32

	stop := First(context.Background(), []<-chan struct{}{sig}, nil, 0, 0, func() {
		calls.Add(1)
	})
	stop()
	close(sig)

	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 0 {
		t.Error("Expected cancelled wait to ignore signals")
	}
}
