package a2a

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentmesh/core/internal/observability"
)

// Client calls another node's A2A Server over HTTP. Grounded on
// protocol/client.rs's A2AClient, including health_check's
// never-hard-fail behavior.
type Client struct {
	http          *http.Client
	localEndpoint string

	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewClient builds a Client that identifies itself as localEndpoint when
// registering with remote nodes. A 30s request timeout matches the
// original's reqwest::Client default.
func NewClient(localEndpoint string) *Client {
	return &Client{
		http:          &http.Client{Timeout: 30 * time.Second},
		localEndpoint: localEndpoint,
	}
}

// LocalEndpoint returns the endpoint this client announces itself as.
func (c *Client) LocalEndpoint() string { return c.localEndpoint }

// SetObservability attaches metrics and tracing to every request this
// client makes; either may be nil.
func (c *Client) SetObservability(metrics *observability.Metrics, tracer *observability.Tracer) {
	c.metrics = metrics
	c.tracer = tracer
}

// request sends an HTTP call to url, unwraps the apiResponse[R] envelope,
// and returns its data. A non-2xx status or a success:false envelope both
// become a typed error, so callers never have to check both layers
// themselves.
func request[R any](ctx context.Context, c *Client, method, url string, body any) (R, error) {
	ctx, span := c.tracer.TraceA2ARequest(ctx, method, url)
	defer span.End()
	start := time.Now()
	result, err := doRequest[R](ctx, c, method, url, body)
	status := "success"
	if err != nil {
		status = "error"
		c.tracer.RecordError(span, err)
	}
	c.metrics.RecordA2AForward(method, status, time.Since(start))
	return result, err
}

func doRequest[R any](ctx context.Context, c *Client, method, url string, body any) (R, error) {
	var zero R

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("a2a: encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return zero, fmt.Errorf("a2a: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("a2a: request %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("a2a: read response from %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, fmt.Errorf("a2a: %s %s returned %d: %s", method, url, resp.StatusCode, string(raw))
	}

	var envelope apiResponse[R]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return zero, fmt.Errorf("a2a: decode response from %s: %w", url, err)
	}
	if !envelope.Success {
		message := "unknown error"
		if envelope.Error != nil {
			message = *envelope.Error
		}
		return zero, fmt.Errorf("a2a: %s %s: %s", method, url, message)
	}
	if envelope.Data == nil {
		return zero, nil
	}
	return *envelope.Data, nil
}

// HealthCheck reports whether endpoint's A2A server is reachable. Unlike
// every other Client method, a failed request here is not itself an
// error: callers (seed discovery, the facade's peer pruning) want a bool,
// not a reason to abort.
func (c *Client) HealthCheck(ctx context.Context, endpoint string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// DiscoverAgentCard fetches endpoint's AgentCard discovery document.
// Unlike every other Client method, the response is not wrapped in an
// apiResponse envelope — it's the bare document, matching src/a2a.rs's
// discover_agent convention of GET "{endpoint}/.well-known/agent.json".
func (c *Client) DiscoverAgentCard(ctx context.Context, endpoint string) (AgentCard, error) {
	var zero AgentCard
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/.well-known/agent.json", nil)
	if err != nil {
		return zero, fmt.Errorf("a2a: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return zero, fmt.Errorf("a2a: discover agent card at %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, fmt.Errorf("a2a: %s returned %d", endpoint, resp.StatusCode)
	}
	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return zero, fmt.Errorf("a2a: decode agent card from %s: %w", endpoint, err)
	}
	return card, nil
}

// RegisterToRemote announces agent to the node at endpoint.
func (c *Client) RegisterToRemote(ctx context.Context, endpoint string, agent AgentInfo) error {
	_, err := request[string](ctx, c, http.MethodPost, endpoint+"/agent/register", RegisterAgentRequest{Agent: agent})
	return err
}

// DiscoverAgents lists every agent endpoint currently knows about.
func (c *Client) DiscoverAgents(ctx context.Context, endpoint string) ([]AgentInfo, error) {
	return request[[]AgentInfo](ctx, c, http.MethodGet, endpoint+"/agents", nil)
}

// SendPrivate delivers a direct message through endpoint's node.
func (c *Client) SendPrivate(ctx context.Context, endpoint, from, to, content string) error {
	req := SendMessageRequest{From: from, To: []string{to}, Content: content, Type: msgTypePrivate}
	_, err := request[string](ctx, c, http.MethodPost, endpoint+"/messages", req)
	return err
}

// SendGroup delivers a group message through endpoint's node.
func (c *Client) SendGroup(ctx context.Context, endpoint, from, groupID, content string) error {
	req := SendMessageRequest{From: from, To: []string{groupID}, Content: content, Type: msgTypeGroup}
	_, err := request[string](ctx, c, http.MethodPost, endpoint+"/messages", req)
	return err
}

// SendBroadcast delivers a broadcast message through endpoint's node.
func (c *Client) SendBroadcast(ctx context.Context, endpoint, from, content string) error {
	req := SendMessageRequest{From: from, To: nil, Content: content, Type: msgTypeBroadcast}
	_, err := request[string](ctx, c, http.MethodPost, endpoint+"/messages", req)
	return err
}

// CreateGroup creates a group on endpoint's node and returns its id.
func (c *Client) CreateGroup(ctx context.Context, endpoint, groupID, name, creator string, members []string) (string, error) {
	req := CreateGroupRequest{GroupID: groupID, Name: name, Creator: creator, Members: members}
	return request[string](ctx, c, http.MethodPost, endpoint+"/groups", req)
}

// GetGroup fetches group info from endpoint's node. A nil, nil result
// means the remote node has no such group.
func (c *Client) GetGroup(ctx context.Context, endpoint, groupID string) (*GroupInfo, error) {
	return request[*GroupInfo](ctx, c, http.MethodGet, endpoint+"/groups/"+groupID, nil)
}

// InviteToGroup invites invitee to groupID via endpoint's node.
func (c *Client) InviteToGroup(ctx context.Context, endpoint, groupID, inviter, invitee string) error {
	req := InviteMemberRequest{GroupID: groupID, Inviter: inviter, Invitee: invitee}
	_, err := request[string](ctx, c, http.MethodPost, endpoint+"/groups/invite", req)
	return err
}
