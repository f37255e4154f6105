package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/core/internal/bus"
	"github.com/agentmesh/core/pkg/domain"
)

// timeNow is overridden in tests so message timestamps are deterministic.
var timeNow = func() int64 { return time.Now().Unix() }

// Server exposes the A2A wire contract described in spec §4.8 over plain
// net/http: health, local-agent get/register, remote-agent discover/
// register, message send, group create/describe/invite. Grounded on
// protocol/server.rs's A2AServer/A2AServerState, using the teacher's
// net.Listen+http.Server{Handler: mux}+graceful-Shutdown idiom from
// internal/gateway/http_server.go rather than axum.
type Server struct {
	bus    *bus.Bus
	addr   string
	logger *slog.Logger

	mu           sync.RWMutex
	localAgent   *AgentInfo
	remoteAgents map[string]AgentInfo
	skills       []AgentCardSkill

	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds a Server bound to addr over b. If logger is nil,
// slog.Default() is used.
func NewServer(addr string, b *bus.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		bus:          b,
		addr:         addr,
		logger:       logger,
		remoteAgents: make(map[string]AgentInfo),
	}
}

// SetLocalAgent records what this node's A2A server reports as GET /agent.
func (s *Server) SetLocalAgent(agent AgentInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localAgent = &agent
}

// Addr returns the bind address this server was constructed with. An
// empty string means the facade should not start it (no A2A networking
// configured for this node).
func (s *Server) Addr() string { return s.addr }

// LocalAgent returns the current local agent, if set.
func (s *Server) LocalAgent() (AgentInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.localAgent == nil {
		return AgentInfo{}, false
	}
	return *s.localAgent, true
}

// SetSkills records the skills advertised on GET /.well-known/agent.json's
// AgentCard. Independent of SetLocalAgent so a caller building the card
// doesn't need to duplicate AgentInfo's fields.
func (s *Server) SetSkills(skills []AgentCardSkill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skills = skills
}

// RegisterRemoteAgent records a peer agent discovered or announced from
// another node.
func (s *Server) RegisterRemoteAgent(agent AgentInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteAgents[agent.ID] = agent
}

// RemoveRemoteAgent forgets a previously registered remote agent.
func (s *Server) RemoveRemoteAgent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.remoteAgents, id)
}

// ListRemoteAgents returns every remote agent this server currently knows.
func (s *Server) ListRemoteAgents() []AgentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AgentInfo, 0, len(s.remoteAgents))
	for _, a := range s.remoteAgents {
		out = append(out, a)
	}
	return out
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /.well-known/agent.json", s.handleAgentCard)
	mux.HandleFunc("GET /agent", s.handleGetAgent)
	mux.HandleFunc("POST /agent/register", s.handleRegisterLocalAgent)
	mux.HandleFunc("GET /agents", s.handleDiscoverAgents)
	mux.HandleFunc("POST /agents/register", s.handleRegisterRemoteAgent)
	mux.HandleFunc("POST /messages", s.handleSendMessage)
	mux.HandleFunc("POST /groups", s.handleCreateGroup)
	mux.HandleFunc("GET /groups/{group_id}", s.handleGetGroup)
	mux.HandleFunc("POST /groups/invite", s.handleInviteMember)
	return mux
}

// Start binds the listener and serves in a background goroutine, matching
// the teacher's startHTTPServer/stopHTTPServer split so callers can Start
// then Stop(ctx) independently of request handling.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("a2a: listen on %s: %w", s.addr, err)
	}

	server := &http.Server{
		Handler:           s.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("a2a server error", "error", err)
		}
	}()

	s.logger.Info("starting a2a server", "addr", s.addr)
	return nil
}

// Stop gracefully shuts the server down, falling back to a 5s timeout if
// ctx is nil.
func (s *Server) Stop(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("a2a server shutdown error", "error", err)
	}
	s.httpServer = nil
	s.listener = nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess[T any](w http.ResponseWriter, data T) {
	writeJSON(w, http.StatusOK, apiSuccess(data))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError[any](message))
}

func decodeBody[T any](r *http.Request) (T, error) {
	var body T
	err := json.NewDecoder(r.Body).Decode(&body)
	return body, err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.LocalAgent()
	if !ok {
		writeSuccess[*AgentInfo](w, nil)
		return
	}
	writeSuccess(w, &agent)
}

// handleAgentCard serves the A2A discovery document for this node's local
// agent, the convention src/a2a.rs's discover_agent reads from
// "{endpoint}/.well-known/agent.json". Unlike every other handler here it
// replies with the bare document (not an apiResponse envelope), matching
// the discovery convention it is grounded on.
func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	agent, ok := s.LocalAgent()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no local agent registered"})
		return
	}
	s.mu.RLock()
	skills := append([]AgentCardSkill(nil), s.skills...)
	s.mu.RUnlock()

	card := AgentCard{
		ID:           agent.ID,
		Name:         agent.Name,
		Description:  fmt.Sprintf("agentmesh node agent %s", agent.Name),
		Version:      "1.0.0",
		Capabilities: agent.Capabilities,
		Endpoints:    AgentEndpoints{A2AEndpoint: agent.Endpoint},
		Skills:       skills,
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) handleRegisterLocalAgent(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[RegisterAgentRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.SetLocalAgent(req.Agent)
	s.bus.Register(req.Agent.ID)
	writeSuccess(w, req.Agent.ID)
}

func (s *Server) handleDiscoverAgents(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, s.ListRemoteAgents())
}

func (s *Server) handleRegisterRemoteAgent(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[RegisterAgentRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.RegisterRemoteAgent(req.Agent)
	writeSuccess(w, req.Agent.ID)
}

// handleSendMessage builds a Message from the wire request and hands it
// straight to the local bus: by the time a remote node's client has
// reached this endpoint, routing has already decided the target lives
// here, matching server.rs's send_message.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[SendMessageRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var target domain.MessageTarget
	switch req.Type {
	case msgTypePrivate:
		if len(req.To) != 1 {
			writeError(w, http.StatusBadRequest, "private message requires exactly one recipient")
			return
		}
		target = domain.DirectTarget(req.To[0])
	case msgTypeGroup:
		if len(req.To) != 1 {
			writeError(w, http.StatusBadRequest, "group message requires exactly one group id")
			return
		}
		target = domain.GroupTarget(req.To[0])
	case msgTypeBroadcast:
		target = domain.BroadcastTarget()
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown message type %q", req.Type))
		return
	}

	msg := domain.Message{
		ID:        uuid.NewString(),
		From:      req.From,
		To:        target,
		Content:   req.Content,
		Timestamp: timeNow(),
	}
	if err := s.bus.Send(r.Context(), msg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeSuccess(w, msg.ID)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[CreateGroupRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	group, err := s.bus.CreateGroup(req.GroupID, req.Name, req.Creator, req.Members)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeSuccess(w, group.ID)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID := strings.TrimSpace(r.PathValue("group_id"))
	group, ok := s.bus.GetGroup(groupID)
	if !ok {
		writeSuccess[*GroupInfo](w, nil)
		return
	}
	info := &GroupInfo{ID: group.ID, Name: group.Name, CreatorID: group.CreatorID, Members: group.Members, CreatedAt: group.CreatedAt}
	writeSuccess(w, info)
}

func (s *Server) handleInviteMember(w http.ResponseWriter, r *http.Request) {
	req, err := decodeBody[InviteMemberRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	group, ok := s.bus.GetGroup(req.GroupID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown group")
		return
	}
	if !group.HasMember(req.Inviter) {
		writeError(w, http.StatusForbidden, "inviter is not a member of the group")
		return
	}
	if _, err := s.bus.AddMember(req.GroupID, req.Invitee); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeSuccess(w, req.Invitee)
}
