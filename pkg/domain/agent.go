// Package domain holds the value types shared across agentmesh: agents,
// organizations, messages, groups, and the tool/capability/skill catalog.
// Types here carry no behavior beyond small invariant helpers; persistence,
// routing, and execution live in the internal packages that consume them.
package domain

// Agent is an autonomous participant identified by a stable, opaque id.
type Agent struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	DepartmentID string    `json:"department_id,omitempty" yaml:"department_id,omitempty"`
	Role         Role      `json:"role" yaml:"role"`
	LLM          LLMConfig `json:"llm" yaml:"llm"`

	// WatchedTools lets an agent self-subscribe to watchdog rules at
	// startup: one rule per entry, wired up by the agent runtime.
	WatchedTools []string `json:"watched_tools,omitempty" yaml:"watched_tools,omitempty"`

	// TriggerConditions pairs 1:1 with WatchedTools by index; a missing
	// entry falls back to StatusMatches{"success"}.
	TriggerConditions []TriggerCondition `json:"trigger_conditions,omitempty" yaml:"trigger_conditions,omitempty"`
}

// Role is the behavioral prompt template and responsibilities attached to
// an agent.
type Role struct {
	Title            string   `json:"title" yaml:"title"`
	Responsibilities []string `json:"responsibilities,omitempty" yaml:"responsibilities,omitempty"`
	Expertise        []string `json:"expertise,omitempty" yaml:"expertise,omitempty"`
	SystemPrompt     string   `json:"system_prompt" yaml:"system_prompt"`
}

// LLMConfig names the model backing an agent. The client that turns this
// into HTTP calls is external to this module (spec §1 Non-goals).
type LLMConfig struct {
	Model      string `json:"model" yaml:"model"`
	Credential string `json:"credential" yaml:"credential"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
}
