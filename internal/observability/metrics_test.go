package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// A single test function calls NewMetrics once: it registers every
// collector against the process-wide default registry, so a second call
// anywhere else in this package's test binary would panic on duplicate
// registration.
func TestMetricsRecording(t *testing.T) {
	m := NewMetrics()

	m.RecordMailboxDepth("alice", 3)
	if got := testutil.ToFloat64(m.MailboxDepth.WithLabelValues("alice")); got != 3 {
		t.Fatalf("MailboxDepth = %v, want 3", got)
	}

	m.RecordWatchdogHit("rule-1", "search")
	if got := testutil.ToFloat64(m.WatchdogRuleHits.WithLabelValues("rule-1", "search")); got != 1 {
		t.Fatalf("WatchdogRuleHits = %v, want 1", got)
	}

	m.RecordToolCall("search", "success", 50*time.Millisecond)
	if got := testutil.ToFloat64(m.ToolCallCounter.WithLabelValues("search", "success")); got != 1 {
		t.Fatalf("ToolCallCounter = %v, want 1", got)
	}

	m.RecordA2AForward("send_private", "error", 10*time.Millisecond)
	if got := testutil.ToFloat64(m.A2AForwardCounter.WithLabelValues("send_private", "error")); got != 1 {
		t.Fatalf("A2AForwardCounter = %v, want 1", got)
	}
}

func TestNilMetricsRecordingIsANoop(t *testing.T) {
	var m *Metrics
	m.RecordMailboxDepth("alice", 3)
	m.RecordWatchdogHit("rule-1", "search")
	m.RecordToolCall("search", "success", time.Millisecond)
	m.RecordA2AForward("send_private", "success", time.Millisecond)
}
