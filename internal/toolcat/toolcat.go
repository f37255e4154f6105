// Package toolcat wires domain.Tool and domain.Capability into the generic
// internal/registry, and validates their Parameters/Returns JSON schemas
// with santhosh-tekuri/jsonschema, matching the schema-compile-and-cache
// pattern in pkg/pluginsdk/validation.go.
package toolcat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agentmesh/core/internal/registry"
	"github.com/agentmesh/core/pkg/domain"
)

// toolEntry adapts domain.Tool to registry.Entry.
type toolEntry struct{ domain.Tool }

func (t toolEntry) EntryID() string          { return t.ID }
func (t toolEntry) EntryName() string        { return t.Name }
func (t toolEntry) EntryDescription() string { return t.Description }
func (t toolEntry) EntryCategory() []string  { return t.Category }

// capabilityEntry adapts domain.Capability to registry.Entry.
type capabilityEntry struct{ domain.Capability }

func (c capabilityEntry) EntryID() string          { return c.ID }
func (c capabilityEntry) EntryName() string        { return c.Name }
func (c capabilityEntry) EntryDescription() string { return c.Description }
func (c capabilityEntry) EntryCategory() []string  { return c.Category }

// ToolRegistry catalogs Tools under their category paths.
type ToolRegistry struct {
	reg *registry.Registry[toolEntry]
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{reg: registry.New[toolEntry]()}
}

// Register validates tool's Parameters and Returns schemas (when set) and
// adds it to the catalog.
func (r *ToolRegistry) Register(tool domain.Tool) error {
	if err := validateSchema(tool.Parameters); err != nil {
		return fmt.Errorf("tool %s: invalid parameters schema: %w", tool.ID, err)
	}
	if err := validateSchema(tool.Returns); err != nil {
		return fmt.Errorf("tool %s: invalid returns schema: %w", tool.ID, err)
	}
	r.reg.Register(toolEntry{tool})
	return nil
}

// Unregister removes a tool by id.
func (r *ToolRegistry) Unregister(id string) { r.reg.Unregister(id) }

// Get returns the tool registered under id.
func (r *ToolRegistry) Get(id string) (domain.Tool, error) {
	e, err := r.reg.Get(id)
	return e.Tool, err
}

// ListAll returns every registered tool.
func (r *ToolRegistry) ListAll() []domain.Tool { return unwrapTools(r.reg.ListAll()) }

// Search finds tools matching query under match.
func (r *ToolRegistry) Search(query string, match registry.MatchType) []domain.Tool {
	return unwrapTools(r.reg.Search(query, match))
}

// ListByCategory returns tools under category, optionally recursing into
// sub-categories.
func (r *ToolRegistry) ListByCategory(category string, recursive bool) []domain.Tool {
	return unwrapTools(r.reg.ListByCategory(category, recursive))
}

// CategoryTree returns the tool category tree.
func (r *ToolRegistry) CategoryTree() *registry.CategoryNode { return r.reg.CategoryTree() }

func unwrapTools(entries []toolEntry) []domain.Tool {
	out := make([]domain.Tool, len(entries))
	for i, e := range entries {
		out[i] = e.Tool
	}
	return out
}

// CapabilityRegistry catalogs Capabilities under their category paths.
type CapabilityRegistry struct {
	reg *registry.Registry[capabilityEntry]
}

// NewCapabilityRegistry creates an empty CapabilityRegistry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{reg: registry.New[capabilityEntry]()}
}

// Register validates capability's schemas and adds it to the catalog.
func (r *CapabilityRegistry) Register(capability domain.Capability) error {
	if err := validateSchema(capability.Parameters); err != nil {
		return fmt.Errorf("capability %s: invalid parameters schema: %w", capability.ID, err)
	}
	if err := validateSchema(capability.Returns); err != nil {
		return fmt.Errorf("capability %s: invalid returns schema: %w", capability.ID, err)
	}
	r.reg.Register(capabilityEntry{capability})
	return nil
}

// Unregister removes a capability by id.
func (r *CapabilityRegistry) Unregister(id string) { r.reg.Unregister(id) }

// Get returns the capability registered under id.
func (r *CapabilityRegistry) Get(id string) (domain.Capability, error) {
	e, err := r.reg.Get(id)
	return e.Capability, err
}

// ListAll returns every registered capability.
func (r *CapabilityRegistry) ListAll() []domain.Capability {
	return unwrapCapabilities(r.reg.ListAll())
}

// Search finds capabilities matching query under match.
func (r *CapabilityRegistry) Search(query string, match registry.MatchType) []domain.Capability {
	return unwrapCapabilities(r.reg.Search(query, match))
}

// ListByCategory returns capabilities under category.
func (r *CapabilityRegistry) ListByCategory(category string, recursive bool) []domain.Capability {
	return unwrapCapabilities(r.reg.ListByCategory(category, recursive))
}

// CategoryTree returns the capability category tree.
func (r *CapabilityRegistry) CategoryTree() *registry.CategoryNode { return r.reg.CategoryTree() }

func unwrapCapabilities(entries []capabilityEntry) []domain.Capability {
	out := make([]domain.Capability, len(entries))
	for i, e := range entries {
		out[i] = e.Capability
	}
	return out
}

// ValidatePayload validates payload (already decoded into any, typically
// from json.Unmarshal) against schema. A nil or empty schema always passes.
func ValidatePayload(schema domain.JSONSchema, payload any) error {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	if err := compiled.Validate(payload); err != nil {
		return fmt.Errorf("payload invalid: %w", err)
	}
	return nil
}

func validateSchema(schema domain.JSONSchema) error {
	if len(schema) == 0 {
		return nil
	}
	_, err := compileSchema(schema)
	return err
}

var schemaCache sync.Map

func compileSchema(schema domain.JSONSchema) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	key := string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
