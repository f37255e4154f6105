// Package memstore implements internal/store.Store in memory, for tests and
// for running a company with no durable backend.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/agentmesh/core/internal/store"
	"github.com/agentmesh/core/pkg/domain"
)

// Store is an in-memory, mutex-serialized implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	org       domain.Organization
	groups    map[string]domain.Group
	messages  []domain.Message
	users     map[string]domain.User // keyed by username
	usersByID map[string]domain.User
	codes     map[string]domain.InvitationCode
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		groups:    make(map[string]domain.Group),
		users:     make(map[string]domain.User),
		usersByID: make(map[string]domain.User),
		codes:     make(map[string]domain.InvitationCode),
	}
}

func (s *Store) SaveOrganization(_ context.Context, org domain.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.org = org
	return nil
}

func (s *Store) LoadOrganization(_ context.Context) (domain.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.org, nil
}

func (s *Store) SaveGroup(_ context.Context, group domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[group.ID] = group
	return nil
}

func (s *Store) LoadGroups(_ context.Context) ([]domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteGroup(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.groups, groupID)
	return nil
}

func (s *Store) SaveMessage(_ context.Context, message domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

func (s *Store) SaveMessages(_ context.Context, messages []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, messages...)
	return nil
}

func (s *Store) LoadMessages(_ context.Context, filter store.MessageFilter) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	targetType := func(m domain.Message) string {
		switch m.To.Kind {
		case domain.TargetDirect:
			return "direct"
		case domain.TargetGroup:
			return "group"
		default:
			return "broadcast"
		}
	}
	targetID := func(m domain.Message) string {
		switch m.To.Kind {
		case domain.TargetDirect:
			return m.To.AgentID
		case domain.TargetGroup:
			return m.To.GroupID
		default:
			return ""
		}
	}

	var matched []domain.Message
	for _, m := range s.messages {
		if filter.From != "" && m.From != filter.From {
			continue
		}
		if filter.TargetType != "" && targetType(m) != filter.TargetType {
			continue
		}
		if filter.To != "" && targetID(m) != filter.To {
			continue
		}
		if filter.Since != 0 && m.Timestamp < filter.Since {
			continue
		}
		matched = append(matched, m)
	}

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Timestamp > matched[j].Timestamp })
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *Store) SaveUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = user
	s.usersByID[user.ID] = user
	return nil
}

func (s *Store) LoadUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *Store) LoadUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveInvitationCode(_ context.Context, code domain.InvitationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.Code] = code
	return nil
}

func (s *Store) LoadInvitationCodeByCode(_ context.Context, code string) (*domain.InvitationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codes[code]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) LoadInvitationCodes(_ context.Context) ([]domain.InvitationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.InvitationCode, 0, len(s.codes))
	for _, c := range s.codes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) UpdateInvitationCode(_ context.Context, code domain.InvitationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code.Code] = code
	return nil
}

func (s *Store) LoadInvitationCodesByCreator(_ context.Context, creatorID string) ([]domain.InvitationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.InvitationCode
	for _, c := range s.codes {
		if c.CreatedBy == creatorID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

var _ store.Store = (*Store)(nil)
