package bus

import (
	"context"
	"testing"
	"time"

	"github.com/agentmesh/core/internal/observability"
	"github.com/agentmesh/core/pkg/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDirectDelivery(t *testing.T) {
	b := New(nil)
	_ = b.Register("A")
	rb := b.Register("B")

	ctx := context.Background()
	msg := domain.Message{ID: "m1", From: "A", To: domain.DirectTarget("B"), Content: "hi"}
	if err := b.Send(ctx, msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	got, ok := rb.TryRecv()
	if !ok {
		t.Fatal("expected B to receive a message")
	}
	if got.From != "A" || got.Content != "hi" {
		t.Fatalf("got %+v, want from=A content=hi", got)
	}
}

func TestDirectDeliveryUnknownRecipient(t *testing.T) {
	b := New(nil)
	_ = b.Register("A")

	err := b.Send(context.Background(), domain.Message{From: "A", To: domain.DirectTarget("ghost")})
	if err == nil {
		t.Fatal("expected error sending to unregistered recipient")
	}
}

func TestGroupFanOut(t *testing.T) {
	b := New(nil)
	ra := b.Register("A")
	rb := b.Register("B")
	rc := b.Register("C")

	if _, err := b.CreateGroup("g1", "G", "A", []string{"B", "C"}); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if err := ra.JoinGroup("g1"); err != nil {
		t.Fatalf("A JoinGroup() error = %v", err)
	}
	if err := rb.JoinGroup("g1"); err != nil {
		t.Fatalf("B JoinGroup() error = %v", err)
	}
	if err := rc.JoinGroup("g1"); err != nil {
		t.Fatalf("C JoinGroup() error = %v", err)
	}

	msg := domain.Message{ID: "m1", From: "A", To: domain.GroupTarget("g1"), Content: "hello"}
	if err := b.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// give the fan-out a moment to settle: publish is synchronous but
	// TryRecv polls, so this keeps the test simple without flaking.
	deadline := time.Now().Add(time.Second)
	waitFor := func(r *Receiver) (domain.Message, bool) {
		for time.Now().Before(deadline) {
			if m, ok := r.TryRecv(); ok {
				return m, true
			}
		}
		return domain.Message{}, false
	}

	if _, ok := waitFor(rb); !ok {
		t.Fatal("expected B to receive the group message")
	}
	if _, ok := waitFor(rc); !ok {
		t.Fatal("expected C to receive the group message")
	}
	if _, ok := ra.TryRecv(); ok {
		t.Fatal("sender should not receive its own group message")
	}
}

func TestCreateGroupRequiresRegisteredCreator(t *testing.T) {
	b := New(nil)
	if _, err := b.CreateGroup("g1", "G", "ghost", nil); err == nil {
		t.Fatal("expected error creating a group with an unregistered creator")
	}
}

func TestListGroupsReturnsEveryGroup(t *testing.T) {
	b := New(nil)
	b.Register("creator")
	if _, err := b.CreateGroup("g1", "G1", "creator", nil); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := b.CreateGroup("g2", "G2", "creator", nil); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	groups := b.ListGroups()
	if len(groups) != 2 {
		t.Fatalf("len(ListGroups()) = %d, want 2", len(groups))
	}
}

func TestBroadcastDelivery(t *testing.T) {
	b := New(nil)
	_ = b.Register("A")
	rb := b.Register("B")
	rc := b.Register("C")

	send := func() error {
		return b.Send(context.Background(), domain.Message{From: "A", To: domain.BroadcastTarget(), Content: "all"})
	}

	if err := send(); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, ok := rb.TryRecv(); !ok {
		t.Fatal("expected B to receive the broadcast")
	}
	if _, ok := rc.TryRecv(); !ok {
		t.Fatal("expected C to receive the broadcast")
	}

	b.Unregister("C")
	if err := send(); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, ok := rb.TryRecv(); !ok {
		t.Fatal("expected B to receive the second broadcast")
	}
	if msg, ok := rc.TryRecv(); ok {
		t.Fatalf("unregistered C should not receive further broadcasts, got %+v", msg)
	}
}

func TestSendRecordsMailboxDepthMetric(t *testing.T) {
	b := New(nil)
	_ = b.Register("A")
	b.Register("B")

	metrics := observability.NewMetrics()
	b.SetObservability(metrics, nil)

	if err := b.Send(context.Background(), domain.Message{ID: "m1", From: "A", To: domain.DirectTarget("B"), Content: "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := testutil.ToFloat64(metrics.MailboxDepth.WithLabelValues("B")); got != 1 {
		t.Fatalf("MailboxDepth = %v, want 1", got)
	}
}

func TestReRegisterClosesPreviousMailbox(t *testing.T) {
	b := New(nil)
	first := b.Register("A")
	_ = b.Register("A")

	select {
	case _, ok := <-first.mailbox:
		if ok {
			t.Fatal("expected previous mailbox to be closed, not carrying a message")
		}
	case <-time.After(time.Second):
		t.Fatal("expected previous mailbox to be closed promptly")
	}
}
