package watchdog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollerInvokesFnPeriodically(t *testing.T) {
	var calls int32
	p := NewPoller(PollingConfig{Interval: 10 * time.Millisecond, Enabled: true, Timeout: time.Second}, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil)

	p.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	p.Stop()

	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("expected at least 2 poll invocations, got %d", calls)
	}
}

func TestPollerDisabledNeverRuns(t *testing.T) {
	var calls int32
	p := NewPoller(PollingConfig{Interval: 10 * time.Millisecond, Enabled: false}, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, nil)

	p.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	p.Stop()

	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no invocations while disabled, got %d", calls)
	}
}
