package a2a

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentmesh/core/internal/bus"
	"github.com/agentmesh/core/pkg/domain"
)

func newTestRouter(t *testing.T, remoteHandler http.Handler) (*Router, *bus.Bus, string) {
	t.Helper()
	b := bus.New(nil)

	var endpoint string
	if remoteHandler != nil {
		server := httptest.NewServer(remoteHandler)
		t.Cleanup(server.Close)
		endpoint = server.URL
	}

	client := NewClient("http://local")
	router := NewRouter(b, client, nil)
	return router, b, endpoint
}

func TestRegisterLocalAndRemoteAreMutuallyExclusive(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	router.RegisterLocalAgent("a1")
	if !router.IsLocal("a1") {
		t.Fatal("expected a1 to be local")
	}

	router.RegisterRemoteAgent("a1", "http://remote")
	if router.IsLocal("a1") {
		t.Fatal("expected remote registration to overwrite local")
	}
	if !router.IsKnown("a1") {
		t.Fatal("expected a1 to remain known")
	}
}

func TestRoutePrivateLocalDeliversThroughBus(t *testing.T) {
	router, b, _ := newTestRouter(t, nil)
	recv := b.Register("a2")
	router.RegisterLocalAgent("a2")

	msg := domain.Message{ID: "1", From: "a1", To: domain.DirectTarget("a2"), Content: "hi"}
	if err := router.Route(context.Background(), msg); err != nil {
		t.Fatalf("Route: %v", err)
	}

	got, ok := recv.TryRecv()
	if !ok || got.ID != "1" {
		t.Fatalf("got = %+v ok=%v", got, ok)
	}
}

func TestRoutePrivateUnknownRecipient(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)
	msg := domain.Message{ID: "1", From: "a1", To: domain.DirectTarget("ghost"), Content: "hi"}
	if err := router.Route(context.Background(), msg); err == nil {
		t.Fatal("expected error for unknown recipient")
	}
}

func TestRoutePrivateRemoteForwardsOverHTTP(t *testing.T) {
	var gotPath string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		writeSuccess(w, "1")
	})
	router, _, endpoint := newTestRouter(t, handler)
	router.RegisterRemoteAgent("a2", endpoint)

	msg := domain.Message{ID: "1", From: "a1", To: domain.DirectTarget("a2"), Content: "hi"}
	if err := router.Route(context.Background(), msg); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if gotPath != "/messages" {
		t.Fatalf("expected forward to /messages, got %q", gotPath)
	}
}

func TestRouteGroupRejectsNonMember(t *testing.T) {
	router, b, _ := newTestRouter(t, nil)
	b.Register("creator")
	group, err := b.CreateGroup("g1", "team", "creator", nil)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	router.RegisterLocalAgent("creator")

	msg := domain.Message{ID: "1", From: "outsider", To: domain.GroupTarget(group.ID), Content: "hi"}
	if err := router.Route(context.Background(), msg); err == nil {
		t.Fatal("expected error for non-member sender")
	}
}

func TestRouteGroupForwardsToRemoteMembersOnly(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeSuccess(w, "1")
	})
	router, b, endpoint := newTestRouter(t, handler)
	b.Register("creator")
	group, err := b.CreateGroup("g1", "team", "creator", []string{"local1", "remote1"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	b.Register("local1")
	router.RegisterLocalAgent("creator")
	router.RegisterLocalAgent("local1")
	router.RegisterRemoteAgent("remote1", endpoint)

	msg := domain.Message{ID: "1", From: "creator", To: domain.GroupTarget(group.ID), Content: "hi"}
	if err := router.Route(context.Background(), msg); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one remote forward, got %d", calls)
	}
}

func TestRouteBroadcastForwardsOncePerRemoteAgent(t *testing.T) {
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeSuccess(w, "1")
	})
	router, _, endpoint := newTestRouter(t, handler)
	router.RegisterRemoteAgent("r1", endpoint)
	router.RegisterRemoteAgent("r2", endpoint)

	msg := domain.Message{ID: "1", From: "a1", To: domain.BroadcastTarget(), Content: "hi"}
	if err := router.Route(context.Background(), msg); err != nil {
		t.Fatalf("Route: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one forward per remote agent (even sharing an endpoint), got %d", calls)
	}
}

func TestCreateGroupPropagatesToRemoteMembers(t *testing.T) {
	var gotPath string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		writeSuccess(w, "g1")
	})
	router, b, endpoint := newTestRouter(t, handler)
	b.Register("creator")
	router.RegisterLocalAgent("creator")
	router.RegisterRemoteAgent("remote1", endpoint)

	group, err := router.CreateGroup(context.Background(), "g1", "team", "creator", []string{"remote1"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if !group.HasMember("remote1") {
		t.Fatalf("expected remote1 to be a member, got %+v", group)
	}
	if gotPath != "/groups" {
		t.Fatalf("expected propagation POST to /groups, got %q", gotPath)
	}
}

func TestInviteToGroupPreservesExistingSubscription(t *testing.T) {
	router, b, _ := newTestRouter(t, nil)
	b.Register("creator")
	group, err := b.CreateGroup("g1", "team", "creator", nil)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	router.RegisterLocalAgent("creator")

	sub, err := b.SubscribeGroup(group.ID)
	if err != nil {
		t.Fatalf("SubscribeGroup: %v", err)
	}

	if err := router.InviteToGroup(context.Background(), group.ID, "creator", "invitee"); err != nil {
		t.Fatalf("InviteToGroup: %v", err)
	}

	updated, _ := b.GetGroup(group.ID)
	if !updated.HasMember("invitee") {
		t.Fatalf("expected invitee added, got %+v", updated)
	}

	msg := domain.Message{ID: "1", From: "creator", To: domain.GroupTarget(group.ID), Content: "hi"}
	if err := b.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case got := <-sub.C():
		if got.ID != "1" {
			t.Fatalf("got = %+v", got)
		}
	default:
		t.Fatal("expected the pre-invite subscription to still receive messages")
	}
}

func TestInviteToGroupRejectsNonMemberInviter(t *testing.T) {
	router, b, _ := newTestRouter(t, nil)
	b.Register("creator")
	group, err := b.CreateGroup("g1", "team", "creator", nil)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := router.InviteToGroup(context.Background(), group.ID, "outsider", "invitee"); err == nil {
		t.Fatal("expected error for non-member inviter")
	}
}
