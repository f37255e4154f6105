package skills

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agentmesh/core/internal/apperr"
	"github.com/agentmesh/core/pkg/domain"
)

// Manifest is the on-disk shape of a skill-binding bundle: the skills it
// defines, the tool/capability access overrides it sets explicitly, and the
// bindings it establishes. It supplements the spec's skill-binding
// operations with a file format agents and operators can hand-edit, the
// way the teacher's workspace skill bundles are authored as files.
type Manifest struct {
	Skills           []domain.Skill    `yaml:"skills"`
	ToolAccess       map[string]string `yaml:"tool_access"`
	CapabilityAccess map[string]string `yaml:"capability_access"`
	Bindings         []ManifestBinding `yaml:"bindings"`
}

// ManifestBinding is one skill-to-target binding entry in a Manifest.
type ManifestBinding struct {
	SkillID    string `yaml:"skill_id"`
	TargetID   string `yaml:"target_id"`
	TargetType string `yaml:"target_type"` // "tool" or "capability"
	Type       string `yaml:"type"`        // "required" or "optional"
}

// LoadManifestFile reads and parses a Manifest from a YAML file.
func LoadManifestFile(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read skill manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, apperr.New(apperr.KindValidation, fmt.Errorf("parse skill manifest %s: %w", path, err))
	}
	return m, nil
}

// ApplyManifest loads every skill, access override, and binding in the
// manifest into mgr. It is idempotent: a skill that is already registered,
// or a binding that already exists, is treated as a no-op rather than an
// error, so the same manifest file can be safely reapplied on every reload.
func ApplyManifest(mgr *Manager, m Manifest) error {
	for _, skill := range m.Skills {
		if _, exists := mgr.GetSkill(skill.ID); exists {
			continue
		}
		if err := mgr.RegisterSkill(skill); err != nil {
			return fmt.Errorf("register skill %s: %w", skill.ID, err)
		}
	}

	for toolID, access := range m.ToolAccess {
		if err := mgr.SetToolAccess(toolID, domain.AccessType(access)); err != nil {
			return fmt.Errorf("set tool access %s: %w", toolID, err)
		}
	}
	for capID, access := range m.CapabilityAccess {
		if err := mgr.SetCapabilityAccess(capID, domain.AccessType(access)); err != nil {
			return fmt.Errorf("set capability access %s: %w", capID, err)
		}
	}

	for _, b := range m.Bindings {
		binding := domain.Binding{
			SkillID:  b.SkillID,
			TargetID: b.TargetID,
			Type:     domain.BindingType(b.Type),
		}
		switch domain.TargetType(b.TargetType) {
		case domain.TargetCapability:
			binding.TargetType = domain.TargetCapability
			if hasBoundCapability(mgr, b.SkillID, b.TargetID) {
				continue
			}
			if err := mgr.BindSkillCapability(binding); err != nil {
				return fmt.Errorf("bind skill %s to capability %s: %w", b.SkillID, b.TargetID, err)
			}
		default:
			binding.TargetType = domain.TargetTool
			if hasBoundTool(mgr, b.SkillID, b.TargetID) {
				continue
			}
			if err := mgr.BindSkillTool(binding); err != nil {
				return fmt.Errorf("bind skill %s to tool %s: %w", b.SkillID, b.TargetID, err)
			}
		}
	}
	return nil
}

func hasBoundTool(mgr *Manager, skillID, toolID string) bool {
	for _, id := range mgr.GetSkillBoundTools(skillID) {
		if id == toolID {
			return true
		}
	}
	return false
}

func hasBoundCapability(mgr *Manager, skillID, capabilityID string) bool {
	for _, id := range mgr.GetSkillBoundCapabilities(skillID) {
		if id == capabilityID {
			return true
		}
	}
	return false
}
