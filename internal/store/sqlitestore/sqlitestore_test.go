package sqlitestore

import (
	"context"
	"testing"

	"github.com/agentmesh/core/internal/store"
	"github.com/agentmesh/core/pkg/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadOrganizationFullReplace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	org := domain.Organization{
		Departments: []domain.Department{{ID: "eng", Name: "Engineering"}},
		Agents: []domain.Agent{{
			ID: "a1", Name: "Alice", DepartmentID: "eng",
			Role: domain.Role{Title: "SWE", Responsibilities: []string{"ship"}, SystemPrompt: "be helpful"},
			LLM:  domain.LLMConfig{Model: "gpt-5", Credential: "key", BaseURL: "https://api"},
		}},
	}
	if err := s.SaveOrganization(ctx, org); err != nil {
		t.Fatalf("SaveOrganization: %v", err)
	}

	loaded, err := s.LoadOrganization(ctx)
	if err != nil {
		t.Fatalf("LoadOrganization: %v", err)
	}
	if len(loaded.Departments) != 1 || len(loaded.Agents) != 1 {
		t.Fatalf("loaded = %+v", loaded)
	}
	if loaded.Agents[0].Role.Responsibilities[0] != "ship" {
		t.Fatalf("expected responsibilities to round-trip through JSON, got %+v", loaded.Agents[0].Role)
	}

	if err := s.SaveOrganization(ctx, domain.Organization{}); err != nil {
		t.Fatalf("SaveOrganization: %v", err)
	}
	loaded, _ = s.LoadOrganization(ctx)
	if len(loaded.Departments) != 0 || len(loaded.Agents) != 0 {
		t.Fatalf("expected full replace to clear prior rows, got %+v", loaded)
	}
}

func TestGroupUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	g := domain.Group{ID: "g1", Name: "v1", CreatorID: "a1", Members: []string{"a1"}, CreatedAt: 1}
	if err := s.SaveGroup(ctx, g); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}
	g.Name = "v2"
	g.Members = []string{"a1", "a2"}
	if err := s.SaveGroup(ctx, g); err != nil {
		t.Fatalf("SaveGroup upsert: %v", err)
	}

	groups, err := s.LoadGroups(ctx)
	if err != nil || len(groups) != 1 || groups[0].Name != "v2" || len(groups[0].Members) != 2 {
		t.Fatalf("expected upsert overwrite, got %+v err=%v", groups, err)
	}

	if err := s.DeleteGroup(ctx, "g1"); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	if err := s.DeleteGroup(ctx, "missing"); err != nil {
		t.Fatalf("DeleteGroup should be idempotent: %v", err)
	}
	groups, _ = s.LoadGroups(ctx)
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %+v", groups)
	}
}

func TestMessagesSaveFilterAndBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SaveMessage(ctx, domain.Message{ID: "1", From: "a", To: domain.DirectTarget("b"), Content: "hi", Timestamp: 100}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	batch := []domain.Message{
		{ID: "2", From: "b", To: domain.DirectTarget("a"), Content: "yo", Timestamp: 200, Mentions: []string{"a", "c"}},
		{ID: "3", From: "a", To: domain.GroupTarget("g1"), Content: "group", Timestamp: 300, ReplyTo: "1"},
	}
	if err := s.SaveMessages(ctx, batch); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	got, err := s.LoadMessages(ctx, store.MessageFilter{From: "a", Limit: 10})
	if err != nil || len(got) != 2 {
		t.Fatalf("LoadMessages from=a = %+v err=%v", got, err)
	}
	if got[0].ID != "3" || got[1].ID != "1" {
		t.Fatalf("expected descending timestamp order, got %+v", got)
	}
	if got[0].ReplyTo != "1" {
		t.Fatalf("expected reply_to to round-trip, got %q", got[0].ReplyTo)
	}

	got, err = s.LoadMessages(ctx, store.MessageFilter{TargetType: "group", Limit: 10})
	if err != nil || len(got) != 1 || got[0].To.GroupID != "g1" {
		t.Fatalf("LoadMessages target_type=group = %+v err=%v", got, err)
	}

	got, err = s.LoadMessages(ctx, store.MessageFilter{To: "a", TargetType: "direct", Limit: 10})
	if err != nil || len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("LoadMessages to=a direct = %+v err=%v", got, err)
	}
	if len(got[0].Mentions) != 2 {
		t.Fatalf("expected mentions to round-trip, got %+v", got[0].Mentions)
	}
}

func TestLoadMessagesByAgentAndGroup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_ = s.SaveMessages(ctx, []domain.Message{
		{ID: "1", From: "a", To: domain.DirectTarget("b"), Timestamp: 100},
		{ID: "2", From: "b", To: domain.DirectTarget("a"), Timestamp: 200},
		{ID: "3", From: "a", To: domain.GroupTarget("g1"), Timestamp: 50},
	})

	byAgent, err := store.LoadMessagesByAgent(ctx, s, "a", 10)
	if err != nil || len(byAgent) != 3 {
		t.Fatalf("LoadMessagesByAgent = %+v err=%v", byAgent, err)
	}

	byGroup, err := store.LoadMessagesByGroup(ctx, s, "g1", 10)
	if err != nil || len(byGroup) != 1 || byGroup[0].ID != "3" {
		t.Fatalf("LoadMessagesByGroup = %+v err=%v", byGroup, err)
	}
}

func TestUserRoundTripAndUnknown(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	u := domain.User{ID: "u1", Username: "alice", Name: "Alice", Email: "a@example.com", PasswordHash: "h", CreatedAt: 1}
	if err := s.SaveUser(ctx, u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	got, err := s.LoadUserByUsername(ctx, "alice")
	if err != nil || got == nil || got.Email != "a@example.com" {
		t.Fatalf("LoadUserByUsername = %+v err=%v", got, err)
	}
	missing, err := s.LoadUserByUsername(ctx, "bob")
	if err != nil || missing != nil {
		t.Fatalf("expected nil,nil for unknown username, got %+v err=%v", missing, err)
	}

	users, err := s.LoadUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("LoadUsers = %+v err=%v", users, err)
	}
}

func TestInvitationCodeLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	code := domain.InvitationCode{Code: "abc123", CreatedBy: "u1", CreatedAt: 1}
	if err := s.SaveInvitationCode(ctx, code); err != nil {
		t.Fatalf("SaveInvitationCode: %v", err)
	}

	code.RedeemedBy = "u2"
	code.RedeemedAt = 42
	if err := s.UpdateInvitationCode(ctx, code); err != nil {
		t.Fatalf("UpdateInvitationCode: %v", err)
	}
	if err := s.UpdateInvitationCode(ctx, domain.InvitationCode{Code: "missing"}); err == nil {
		t.Fatal("expected error updating an unknown invitation code")
	}

	loaded, err := s.LoadInvitationCodeByCode(ctx, "abc123")
	if err != nil || loaded == nil || loaded.RedeemedBy != "u2" || loaded.RedeemedAt != 42 {
		t.Fatalf("loaded = %+v err=%v", loaded, err)
	}

	byCreator, err := s.LoadInvitationCodesByCreator(ctx, "u1")
	if err != nil || len(byCreator) != 1 {
		t.Fatalf("LoadInvitationCodesByCreator = %+v err=%v", byCreator, err)
	}
}

var _ store.Store = (*Store)(nil)
