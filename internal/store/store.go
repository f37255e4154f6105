// Package store defines the persistence contract for organizations, groups,
// messages, and users, and the derived query helpers built on top of it.
// Grounded on core/store/mod.rs: a single Store interface with an in-memory
// implementation for tests (memstore) and two durable SQL-backed
// implementations (sqlitestore, pgstore).
package store

import (
	"context"
	"sort"

	"github.com/agentmesh/core/pkg/domain"
)

// MessageFilter narrows a LoadMessages query. TargetType, when set, must be
// "direct", "group", or "broadcast". Limit of 0 means "no limit" is NOT
// assumed by implementations; callers that want a bound must set it.
type MessageFilter struct {
	From       string
	To         string
	TargetType string
	Since      int64
	Limit      int
}

// Store is the single persistence contract shared by the in-memory and
// SQL-backed implementations. All methods propagate underlying I/O failures
// unchanged; load methods never fail on empty data, they return empty
// collections instead.
type Store interface {
	SaveOrganization(ctx context.Context, org domain.Organization) error
	LoadOrganization(ctx context.Context) (domain.Organization, error)

	SaveGroup(ctx context.Context, group domain.Group) error
	LoadGroups(ctx context.Context) ([]domain.Group, error)
	DeleteGroup(ctx context.Context, groupID string) error

	SaveMessage(ctx context.Context, message domain.Message) error
	SaveMessages(ctx context.Context, messages []domain.Message) error
	LoadMessages(ctx context.Context, filter MessageFilter) ([]domain.Message, error)

	SaveUser(ctx context.Context, user domain.User) error
	LoadUserByUsername(ctx context.Context, username string) (*domain.User, error)
	LoadUsers(ctx context.Context) ([]domain.User, error)

	SaveInvitationCode(ctx context.Context, code domain.InvitationCode) error
	LoadInvitationCodeByCode(ctx context.Context, code string) (*domain.InvitationCode, error)
	LoadInvitationCodes(ctx context.Context) ([]domain.InvitationCode, error)
	UpdateInvitationCode(ctx context.Context, code domain.InvitationCode) error
	LoadInvitationCodesByCreator(ctx context.Context, creatorID string) ([]domain.InvitationCode, error)
}

// LoadMessagesByAgent returns the union of messages sent by agentID and
// direct messages addressed to agentID, deduped by id and sorted by
// timestamp descending, truncated to limit. Implemented in terms of
// LoadMessages so every Store gets it for free, mirroring the default trait
// method on the original Store interface.
func LoadMessagesByAgent(ctx context.Context, s Store, agentID string, limit int) ([]domain.Message, error) {
	from, err := s.LoadMessages(ctx, MessageFilter{From: agentID, Limit: limit})
	if err != nil {
		return nil, err
	}
	to, err := s.LoadMessages(ctx, MessageFilter{To: agentID, TargetType: "direct", Limit: limit})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(from))
	all := make([]domain.Message, 0, len(from)+len(to))
	for _, m := range from {
		seen[m.ID] = struct{}{}
		all = append(all, m)
	}
	for _, m := range to {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		all = append(all, m)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp > all[j].Timestamp })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// LoadMessagesByGroup returns messages addressed to groupID, sorted
// descending and truncated to limit.
func LoadMessagesByGroup(ctx context.Context, s Store, groupID string, limit int) ([]domain.Message, error) {
	return s.LoadMessages(ctx, MessageFilter{To: groupID, TargetType: "group", Limit: limit})
}
