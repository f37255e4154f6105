// Package skills implements the skill-based access control layer: register
// skills, set per-tool/per-capability access types, bind skills to tools
// and capabilities, and answer can-call checks for a caller's skill set.
// Grounded exactly on the SkillManager in the original source's
// core/skill.rs.
package skills

import (
	"errors"
	"fmt"
	"sync"

	"github.com/agentmesh/core/internal/apperr"
	"github.com/agentmesh/core/internal/toolcat"
	"github.com/agentmesh/core/pkg/domain"
)

var (
	// ErrSkillAlreadyRegistered is returned by RegisterSkill for a
	// duplicate id.
	ErrSkillAlreadyRegistered = errors.New("skills: skill already registered")
	// ErrSkillNotFound is returned when a skill id has no registration.
	ErrSkillNotFound = errors.New("skills: skill not found")
	// ErrToolNotFound is returned when a tool id is not in the tool
	// registry.
	ErrToolNotFound = errors.New("skills: tool not found")
	// ErrCapabilityNotFound is returned when a capability id is not in
	// the capability registry.
	ErrCapabilityNotFound = errors.New("skills: capability not found")
)

// Manager holds skill registrations, tool/capability access types, and the
// bindings between them. A zero value is not usable; construct with New.
type Manager struct {
	tools        *toolcat.ToolRegistry
	capabilities *toolcat.CapabilityRegistry

	mu sync.RWMutex

	skills map[string]domain.Skill

	skillToolBindings map[string][]domain.Binding // skill_id -> bindings
	toolSkillBindings map[string][]string          // tool_id -> skill_ids
	toolAccess        map[string]domain.AccessType

	skillCapabilityBindings map[string][]domain.Binding // skill_id -> bindings
	capabilitySkillBindings map[string][]string          // capability_id -> skill_ids
	capabilityAccess        map[string]domain.AccessType
}

// New creates a Manager backed by the given tool and capability registries.
// Either may be nil, which is treated as an empty registry of that kind.
func New(tools *toolcat.ToolRegistry, capabilities *toolcat.CapabilityRegistry) *Manager {
	if tools == nil {
		tools = toolcat.NewToolRegistry()
	}
	if capabilities == nil {
		capabilities = toolcat.NewCapabilityRegistry()
	}
	return &Manager{
		tools:                   tools,
		capabilities:            capabilities,
		skills:                  make(map[string]domain.Skill),
		skillToolBindings:       make(map[string][]domain.Binding),
		toolSkillBindings:       make(map[string][]string),
		toolAccess:              make(map[string]domain.AccessType),
		skillCapabilityBindings: make(map[string][]domain.Binding),
		capabilitySkillBindings: make(map[string][]string),
		capabilityAccess:        make(map[string]domain.AccessType),
	}
}

// RegisterSkill adds a new skill. Fails if the id is already registered.
func (m *Manager) RegisterSkill(skill domain.Skill) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.skills[skill.ID]; ok {
		return apperr.New(apperr.KindAlreadyExists, fmt.Errorf("%w: %s", ErrSkillAlreadyRegistered, skill.ID))
	}
	m.skills[skill.ID] = skill
	return nil
}

// SetToolAccess sets toolID's access type. Fails if toolID is unknown to
// the tool registry.
func (m *Manager) SetToolAccess(toolID string, access domain.AccessType) error {
	if _, err := m.tools.Get(toolID); err != nil {
		return apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrToolNotFound, toolID))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolAccess[toolID] = access
	return nil
}

// SetCapabilityAccess sets capabilityID's access type. Fails if
// capabilityID is unknown to the capability registry.
func (m *Manager) SetCapabilityAccess(capabilityID string, access domain.AccessType) error {
	if _, err := m.capabilities.Get(capabilityID); err != nil {
		return apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrCapabilityNotFound, capabilityID))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.capabilityAccess[capabilityID] = access
	return nil
}

// BindSkillTool links a skill to a tool. If the tool has no access type set
// yet, it is automatically marked Private: a first binding is what takes a
// tool out of the public default.
func (m *Manager) BindSkillTool(binding domain.Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.skills[binding.SkillID]; !ok {
		return apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrSkillNotFound, binding.SkillID))
	}
	if _, err := m.tools.Get(binding.TargetID); err != nil {
		return apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrToolNotFound, binding.TargetID))
	}

	m.skillToolBindings[binding.SkillID] = append(m.skillToolBindings[binding.SkillID], binding)
	m.toolSkillBindings[binding.TargetID] = append(m.toolSkillBindings[binding.TargetID], binding.SkillID)

	if _, ok := m.toolAccess[binding.TargetID]; !ok {
		m.toolAccess[binding.TargetID] = domain.AccessPrivate
	}
	return nil
}

// BindSkillCapability links a skill to a capability, with the same
// auto-Private-on-first-binding behavior as BindSkillTool.
func (m *Manager) BindSkillCapability(binding domain.Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.skills[binding.SkillID]; !ok {
		return apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrSkillNotFound, binding.SkillID))
	}
	if _, err := m.capabilities.Get(binding.TargetID); err != nil {
		return apperr.New(apperr.KindNotFound, fmt.Errorf("%w: %s", ErrCapabilityNotFound, binding.TargetID))
	}

	m.skillCapabilityBindings[binding.SkillID] = append(m.skillCapabilityBindings[binding.SkillID], binding)
	m.capabilitySkillBindings[binding.TargetID] = append(m.capabilitySkillBindings[binding.TargetID], binding.SkillID)

	if _, ok := m.capabilityAccess[binding.TargetID]; !ok {
		m.capabilityAccess[binding.TargetID] = domain.AccessPrivate
	}
	return nil
}

// CanCallTool reports whether a caller possessing callerSkills may invoke
// toolID. Unknown tools are always denied. A tool with no access type set
// defaults to Public.
func (m *Manager) CanCallTool(toolID string, callerSkills []string) bool {
	if _, err := m.tools.Get(toolID); err != nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	access, ok := m.toolAccess[toolID]
	if !ok {
		access = domain.AccessPublic
	}
	if access == domain.AccessPublic {
		return true
	}
	return hasAny(m.toolSkillBindings[toolID], callerSkills)
}

// CanCallCapability reports whether a caller possessing callerSkills may
// invoke capabilityID, with the same default-Public semantics as
// CanCallTool.
func (m *Manager) CanCallCapability(capabilityID string, callerSkills []string) bool {
	if _, err := m.capabilities.Get(capabilityID); err != nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	access, ok := m.capabilityAccess[capabilityID]
	if !ok {
		access = domain.AccessPublic
	}
	if access == domain.AccessPublic {
		return true
	}
	return hasAny(m.capabilitySkillBindings[capabilityID], callerSkills)
}

func hasAny(allowed, callerSkills []string) bool {
	for _, s := range callerSkills {
		for _, a := range allowed {
			if s == a {
				return true
			}
		}
	}
	return false
}

// GetSkillTools returns the tools bound to skillID.
func (m *Manager) GetSkillTools(skillID string) []domain.Tool {
	m.mu.RLock()
	bindings := append([]domain.Binding(nil), m.skillToolBindings[skillID]...)
	m.mu.RUnlock()

	var out []domain.Tool
	for _, b := range bindings {
		if t, err := m.tools.Get(b.TargetID); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// GetSkillCapabilities returns the capabilities bound to skillID.
func (m *Manager) GetSkillCapabilities(skillID string) []domain.Capability {
	m.mu.RLock()
	bindings := append([]domain.Binding(nil), m.skillCapabilityBindings[skillID]...)
	m.mu.RUnlock()

	var out []domain.Capability
	for _, b := range bindings {
		if c, err := m.capabilities.Get(b.TargetID); err == nil {
			out = append(out, c)
		}
	}
	return out
}

// GetSkill returns the skill registered under id.
func (m *Manager) GetSkill(id string) (domain.Skill, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.skills[id]
	return s, ok
}

// ListSkills returns every registered skill.
func (m *Manager) ListSkills() []domain.Skill {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Skill, 0, len(m.skills))
	for _, s := range m.skills {
		out = append(out, s)
	}
	return out
}

// ListSkillIDs returns every registered skill's id.
func (m *Manager) ListSkillIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.skills))
	for id := range m.skills {
		out = append(out, id)
	}
	return out
}

// GetToolBoundSkills returns the skill ids bound to toolID.
func (m *Manager) GetToolBoundSkills(toolID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.toolSkillBindings[toolID]...)
}

// GetCapabilityBoundSkills returns the skill ids bound to capabilityID.
func (m *Manager) GetCapabilityBoundSkills(capabilityID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.capabilitySkillBindings[capabilityID]...)
}

// GetSkillBoundTools returns the tool ids bound to skillID.
func (m *Manager) GetSkillBoundTools(skillID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bindings := m.skillToolBindings[skillID]
	out := make([]string, len(bindings))
	for i, b := range bindings {
		out[i] = b.TargetID
	}
	return out
}

// GetSkillBoundCapabilities returns the capability ids bound to skillID.
func (m *Manager) GetSkillBoundCapabilities(skillID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bindings := m.skillCapabilityBindings[skillID]
	out := make([]string, len(bindings))
	for i, b := range bindings {
		out[i] = b.TargetID
	}
	return out
}
