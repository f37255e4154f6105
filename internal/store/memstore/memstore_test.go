package memstore

import (
	"context"
	"testing"

	"github.com/agentmesh/core/internal/store"
	"github.com/agentmesh/core/pkg/domain"
)

func TestSaveAndLoadOrganizationFullReplace(t *testing.T) {
	ctx := context.Background()
	s := New()

	org := domain.Organization{Departments: []domain.Department{{ID: "eng", Name: "Engineering"}}}
	if err := s.SaveOrganization(ctx, org); err != nil {
		t.Fatalf("SaveOrganization: %v", err)
	}

	loaded, err := s.LoadOrganization(ctx)
	if err != nil {
		t.Fatalf("LoadOrganization: %v", err)
	}
	if len(loaded.Departments) != 1 || loaded.Departments[0].ID != "eng" {
		t.Fatalf("loaded org = %+v", loaded)
	}

	// Full-replace: saving again with fewer departments drops the old ones.
	if err := s.SaveOrganization(ctx, domain.Organization{}); err != nil {
		t.Fatalf("SaveOrganization: %v", err)
	}
	loaded, _ = s.LoadOrganization(ctx)
	if len(loaded.Departments) != 0 {
		t.Fatalf("expected full replace to clear departments, got %+v", loaded)
	}
}

func TestLoadOrganizationEmptyWhenUnset(t *testing.T) {
	loaded, err := New().LoadOrganization(context.Background())
	if err != nil || len(loaded.Departments) != 0 || len(loaded.Agents) != 0 {
		t.Fatalf("expected empty org, got %+v err=%v", loaded, err)
	}
}

func TestGroupUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	g := domain.Group{ID: "g1", Name: "v1", CreatorID: "a1", Members: []string{"a1"}}
	if err := s.SaveGroup(ctx, g); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	g.Name = "v2"
	if err := s.SaveGroup(ctx, g); err != nil {
		t.Fatalf("SaveGroup upsert: %v", err)
	}

	groups, _ := s.LoadGroups(ctx)
	if len(groups) != 1 || groups[0].Name != "v2" {
		t.Fatalf("expected upsert to overwrite, got %+v", groups)
	}

	if err := s.DeleteGroup(ctx, "g1"); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	if err := s.DeleteGroup(ctx, "missing"); err != nil {
		t.Fatalf("DeleteGroup should be idempotent, got %v", err)
	}
	groups, _ = s.LoadGroups(ctx)
	if len(groups) != 0 {
		t.Fatalf("expected no groups after delete, got %+v", groups)
	}
}

func TestLoadMessagesFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	s := New()

	msgs := []domain.Message{
		{ID: "1", From: "a", To: domain.DirectTarget("b"), Timestamp: 100},
		{ID: "2", From: "b", To: domain.DirectTarget("a"), Timestamp: 200},
		{ID: "3", From: "a", To: domain.GroupTarget("g1"), Timestamp: 300},
	}
	if err := s.SaveMessages(ctx, msgs); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	got, err := s.LoadMessages(ctx, store.MessageFilter{From: "a", Limit: 10})
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "1" {
		t.Fatalf("expected messages from a sorted desc, got %+v", got)
	}

	got, err = s.LoadMessages(ctx, store.MessageFilter{TargetType: "group", Limit: 10})
	if err != nil || len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("expected one group message, got %+v err=%v", got, err)
	}

	got, _ = s.LoadMessages(ctx, store.MessageFilter{Since: 150, Limit: 10})
	if len(got) != 2 {
		t.Fatalf("expected 2 messages since 150, got %+v", got)
	}

	got, _ = s.LoadMessages(ctx, store.MessageFilter{Limit: 1})
	if len(got) != 1 || got[0].ID != "3" {
		t.Fatalf("expected limit to truncate to the newest, got %+v", got)
	}
}

func TestLoadMessagesByAgentDedupesAndSorts(t *testing.T) {
	ctx := context.Background()
	s := New()
	msgs := []domain.Message{
		{ID: "1", From: "a", To: domain.DirectTarget("b"), Timestamp: 100},
		{ID: "2", From: "b", To: domain.DirectTarget("a"), Timestamp: 200},
		{ID: "3", From: "a", To: domain.GroupTarget("g1"), Timestamp: 50},
		{ID: "4", From: "c", To: domain.DirectTarget("d"), Timestamp: 400},
	}
	_ = s.SaveMessages(ctx, msgs)

	got, err := store.LoadMessagesByAgent(ctx, s, "a", 10)
	if err != nil {
		t.Fatalf("LoadMessagesByAgent: %v", err)
	}
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 messages (1 sent, 1 received direct, 1 sent group), got %v", ids)
	}
	if ids[0] != "2" || ids[1] != "1" || ids[2] != "3" {
		t.Fatalf("expected descending timestamp order, got %v", ids)
	}
}

func TestLoadMessagesByGroup(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.SaveMessages(ctx, []domain.Message{
		{ID: "1", From: "a", To: domain.GroupTarget("g1"), Timestamp: 100},
		{ID: "2", From: "a", To: domain.GroupTarget("g2"), Timestamp: 200},
		{ID: "3", From: "a", To: domain.DirectTarget("g1"), Timestamp: 300},
	})

	got, err := store.LoadMessagesByGroup(ctx, s, "g1", 10)
	if err != nil || len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("expected only g1 group message, got %+v err=%v", got, err)
	}
}

func TestUserAndInvitationCodeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := domain.User{ID: "u1", Username: "alice", Name: "Alice"}
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	got, err := s.LoadUserByUsername(ctx, "alice")
	if err != nil || got == nil || got.ID != "u1" {
		t.Fatalf("LoadUserByUsername = %+v, err=%v", got, err)
	}
	if missing, _ := s.LoadUserByUsername(ctx, "bob"); missing != nil {
		t.Fatalf("expected nil for unknown username, got %+v", missing)
	}

	code := domain.InvitationCode{Code: "abc123", CreatedBy: "u1"}
	if err := s.SaveInvitationCode(ctx, code); err != nil {
		t.Fatalf("SaveInvitationCode: %v", err)
	}
	code.RedeemedBy = "u2"
	if err := s.UpdateInvitationCode(ctx, code); err != nil {
		t.Fatalf("UpdateInvitationCode: %v", err)
	}
	loaded, err := s.LoadInvitationCodeByCode(ctx, "abc123")
	if err != nil || loaded == nil || loaded.RedeemedBy != "u2" {
		t.Fatalf("expected update to persist, got %+v err=%v", loaded, err)
	}

	byCreator, err := s.LoadInvitationCodesByCreator(ctx, "u1")
	if err != nil || len(byCreator) != 1 {
		t.Fatalf("LoadInvitationCodesByCreator = %+v, err=%v", byCreator, err)
	}
}

var _ store.Store = (*Store)(nil)
