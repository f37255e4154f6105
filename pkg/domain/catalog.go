package domain

// CategoryPath is an ordered list of path segments, e.g. ["org", "query"].
type CategoryPath []string

// String renders the path using "/" as separator, matching
// registry.CategoryPath.ToPathString in the examples this is grounded on.
func (p CategoryPath) String() string {
	out := ""
	for i, seg := range p {
		if i > 0 {
			out += "/"
		}
		out += seg
	}
	return out
}

// Tool is an internally-invokable operation registered under a taxonomic
// path. Immutable after registration.
type Tool struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    CategoryPath `json:"category"`
	Parameters  JSONSchema   `json:"parameters"`
	Returns     JSONSchema   `json:"returns"`
}

// Capability is a Tool-shaped entry additionally annotated with an
// externally-exposed protocol (MCP-compatible).
type Capability struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Category    CategoryPath `json:"category"`
	Parameters  JSONSchema   `json:"parameters"`
	Returns     JSONSchema   `json:"returns"`
	Protocol    Protocol     `json:"protocol"`
	Endpoint    string       `json:"endpoint,omitempty"`
}

// JSONSchema is a raw JSON-Schema document, kept untyped here so the
// domain package stays dependency-free; internal/toolcat compiles it with
// santhosh-tekuri/jsonschema.
type JSONSchema map[string]any

// Protocol is the wire protocol a Capability is exposed over.
type Protocol string

const (
	ProtocolHTTP      Protocol = "http"
	ProtocolStdio     Protocol = "stdio"
	ProtocolWebSocket Protocol = "websocket"
	ProtocolSSE       Protocol = "sse"
)

// Skill is a named bundle that, when possessed by a caller, authorizes
// access to targets bound to it.
type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Version     string `json:"version"`
	Owner       string `json:"owner"`
}

// TargetType discriminates what a Binding points at.
type TargetType string

const (
	TargetTool       TargetType = "tool"
	TargetCapability TargetType = "capability"
)

// BindingType records whether a binding is mandatory for the skill or
// merely available to it.
type BindingType string

const (
	BindingRequired BindingType = "required"
	BindingOptional BindingType = "optional"
)

// Binding links a Skill to a Tool or Capability.
type Binding struct {
	SkillID     string         `json:"skill_id"`
	TargetID    string         `json:"target_id"`
	TargetType  TargetType     `json:"target_type"`
	Type        BindingType    `json:"type"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AccessType is Public (any caller) or Private (caller must possess at
// least one skill bound to the target).
type AccessType string

const (
	AccessPublic  AccessType = "public"
	AccessPrivate AccessType = "private"
)
