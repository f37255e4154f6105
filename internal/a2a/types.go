// Package a2a implements the cross-node Agent-to-Agent protocol: a Router
// that dispatches direct/group/broadcast sends to either the local bus or a
// remote node's HTTP endpoint, an HTTP Server exposing the wire contract,
// and a Client for calling it. Grounded on protocol/{router,server,client}.rs
// (spec §4.7, §4.8).
package a2a

// AgentInfo is what one node publishes about an agent to the rest of the
// network: enough for a remote router to address it, not its full
// domain.Agent record (role, LLM credentials, etc. stay node-local).
type AgentInfo struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Endpoint     string         `json:"endpoint"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// RegisterAgentRequest registers either the caller's own local agent or,
// against /agents/register, announces a remote agent to this node.
type RegisterAgentRequest struct {
	Agent AgentInfo `json:"agent"`
}

// SendMessageRequest is the POST /messages body. To is a list so a single
// envelope covers direct (one id), group (one group id), and broadcast
// (empty) sends, matching the Rust client's send_private/send_group/
// send_broadcast, which all funnel through this one struct.
type SendMessageRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Content string   `json:"content"`
	Type    string   `json:"type"`
}

const (
	msgTypePrivate   = "private"
	msgTypeGroup     = "group"
	msgTypeBroadcast = "broadcast"
)

// CreateGroupRequest is the POST /groups body.
type CreateGroupRequest struct {
	GroupID string   `json:"group_id"`
	Name    string   `json:"name"`
	Creator string   `json:"creator"`
	Members []string `json:"members"`
}

// InviteMemberRequest is the POST /groups/invite body.
type InviteMemberRequest struct {
	GroupID string `json:"group_id"`
	Inviter string `json:"inviter"`
	Invitee string `json:"invitee"`
}

// GroupInfo is what GET /groups/{id} returns: the group's visible shape,
// independent of internal/store.Store's representation.
type GroupInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	CreatorID string   `json:"creator_id"`
	Members   []string `json:"members"`
	CreatedAt int64    `json:"created_at"`
}

// AgentCard is the self-describing discovery document served at
// GET /.well-known/agent.json, the original A2A protocol's discovery
// convention (src/a2a.rs's AgentCard/AgentEndpoints/Skill) — kept
// alongside, not instead of, the spec's own GET /agent and GET /agents.
type AgentCard struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Version      string           `json:"version"`
	Capabilities []string         `json:"capabilities"`
	Endpoints    AgentEndpoints   `json:"endpoints"`
	Skills       []AgentCardSkill `json:"skills"`
}

// AgentEndpoints locates how a peer can reach this agent.
type AgentEndpoints struct {
	A2AEndpoint     string `json:"a2a_endpoint"`
	WebhookEndpoint string `json:"webhook_endpoint,omitempty"`
}

// AgentCardSkill advertises one callable skill's name, description, and
// parameter schema, independent of internal/toolcat's Capability — the
// card is a public-facing summary, not the full catalog entry.
type AgentCardSkill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  any    `json:"parameters,omitempty"`
}

// apiResponse is the envelope every A2A HTTP endpoint replies with. Error is
// a pointer so omitempty drops it on success and Data is a pointer so a nil
// result (e.g. GET /groups/{id} for an unknown group) round-trips as
// "data": null rather than an empty struct.
type apiResponse[T any] struct {
	Success bool    `json:"success"`
	Data    *T      `json:"data,omitempty"`
	Error   *string `json:"error,omitempty"`
}

func apiSuccess[T any](data T) apiResponse[T] {
	return apiResponse[T]{Success: true, Data: &data}
}

func apiError[T any](message string) apiResponse[T] {
	return apiResponse[T]{Success: false, Error: &message}
}
