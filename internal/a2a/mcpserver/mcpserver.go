// Package mcpserver exposes the capability catalog and call surface over
// HTTP and WebSocket, the MCP-compatible half of spec §6's wire contract.
// Grounded on infrastructure/capability/{mcp_server,protocol_handler}.rs's
// method set (capabilities/list, capabilities/discover, capabilities/call,
// ping) and on the teacher's net/http + gorilla/websocket idiom
// (internal/gateway/{http_server,ws_control_plane}.go) rather than axum.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentmesh/core/internal/toolcat"
	"github.com/agentmesh/core/internal/toolexec"
	"github.com/agentmesh/core/pkg/domain"
)

// capabilitySummary is what /mcp/capabilities/list returns per capability:
// routing-relevant fields, not the full schema. Grounded on
// protocol_handler.rs's handle_capabilities_list.
type capabilitySummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"`
	Protocol    string `json:"protocol"`
	Endpoint    string `json:"endpoint,omitempty"`
}

// capabilityDetail is what /mcp/capabilities/discover returns: enough to
// construct a call. Grounded on handle_capabilities_discover.
type capabilityDetail struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Documentation string            `json:"documentation"`
	InputSchema   domain.JSONSchema `json:"input_schema"`
	OutputSchema  domain.JSONSchema `json:"output_schema"`
}

const protocolVersion = "1.0.0"

type discoverRequest struct {
	Requested []string `json:"requested,omitempty"`
}

type callRequest struct {
	CapabilityID string         `json:"capability_id"`
	Params       map[string]any `json:"params"`
}

// Server serves the MCP capability surface. Grounded on McpServer/
// McpServerState: the capability registry plus the executor that actually
// runs a call (the original leaves call handling as a stub; here it is
// wired to internal/toolexec.Registry, per spec §4.5/§6).
type Server struct {
	capabilities *toolcat.CapabilityRegistry
	executor     *toolexec.Registry
	addr         string
	logger       *slog.Logger
	upgrader     websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds a Server over the given capability catalog and
// executor. If logger is nil, slog.Default() is used.
func NewServer(addr string, capabilities *toolcat.CapabilityRegistry, executor *toolexec.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		capabilities: capabilities,
		executor:     executor,
		addr:         addr,
		logger:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /mcp/capabilities/list", s.handleList)
	mux.HandleFunc("POST /mcp/capabilities/discover", s.handleDiscover)
	mux.HandleFunc("POST /mcp/call", s.handleCall)
	mux.HandleFunc("GET /mcp/ping", s.handlePing)
	mux.HandleFunc("GET /mcp/ws", s.handleWebSocket)
	return mux
}

// Start binds the listener and serves in a background goroutine. Mirrors
// a2a.Server's Start/Stop split (same teacher idiom: net.Listen + a
// goroutine running http.Server.Serve).
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("mcpserver: listen on %s: %w", s.addr, err)
	}
	server := &http.Server{Handler: s.mux(), ReadHeaderTimeout: 5 * time.Second}
	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("mcp server error", "error", err)
		}
	}()
	s.logger.Info("starting mcp server", "addr", s.addr)
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
		s.logger.Warn("mcp server shutdown error", "error", err)
	}
	s.httpServer = nil
	s.listener = nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.listCapabilities())
}

func (s *Server) listCapabilities() map[string]any {
	caps := s.capabilities.ListAll()
	summaries := make([]capabilitySummary, 0, len(caps))
	for _, c := range caps {
		summaries = append(summaries, capabilitySummary{
			ID: c.ID, Name: c.Name, Description: c.Description,
			Path: c.Category.String(), Protocol: string(c.Protocol), Endpoint: c.Endpoint,
		})
	}
	return map[string]any{"capabilities": summaries, "count": len(summaries)}
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req discoverRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, s.discoverCapabilities(req.Requested))
}

func (s *Server) discoverCapabilities(requested []string) map[string]any {
	var caps []domain.Capability
	if len(requested) == 0 {
		caps = s.capabilities.ListAll()
	} else {
		for _, id := range requested {
			if c, err := s.capabilities.Get(id); err == nil {
				caps = append(caps, c)
			}
		}
	}

	details := make([]capabilityDetail, 0, len(caps))
	for _, c := range caps {
		details = append(details, capabilityDetail{
			Name: c.Name, Version: protocolVersion, Documentation: c.Description,
			InputSchema: c.Parameters, OutputSchema: c.Returns,
		})
	}
	return map[string]any{"capabilities": details}
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.CapabilityID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "capability_id is required"})
		return
	}
	result := s.call(r.Context(), req.CapabilityID, req.Params)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) call(ctx context.Context, capabilityID string, params map[string]any) toolexec.Result {
	call := toolexec.NewCallContext("mcp_client")
	return s.executor.Execute(ctx, capabilityID, params, call)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"result": "pong"})
}

// wsRequest/wsResponse frame the same request/response shapes as the HTTP
// endpoints, tagged with a correlation id so a client issuing several
// calls over one socket can match each reply to its request — spec §6's
// "/mcp/ws ... frames the same request/response envelope with a
// correlation id", following the teacher's wsFrame{ID,...} shape from
// ws_control_plane.go.
type wsRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type wsResponse struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			_ = conn.WriteJSON(wsResponse{Error: fmt.Sprintf("invalid frame: %s", err)})
			continue
		}

		resp := s.handleWSMethod(r.Context(), req)
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (s *Server) handleWSMethod(ctx context.Context, req wsRequest) wsResponse {
	switch req.Method {
	case "capabilities/list":
		return wsResponse{ID: req.ID, Result: s.listCapabilities()}
	case "capabilities/discover":
		var params discoverRequest
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return wsResponse{ID: req.ID, Error: err.Error()}
			}
		}
		return wsResponse{ID: req.ID, Result: s.discoverCapabilities(params.Requested)}
	case "capabilities/call":
		var params callRequest
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return wsResponse{ID: req.ID, Error: err.Error()}
		}
		return wsResponse{ID: req.ID, Result: s.call(ctx, params.CapabilityID, params.Params)}
	case "ping":
		return wsResponse{ID: req.ID, Result: map[string]string{"result": "pong"}}
	default:
		return wsResponse{ID: req.ID, Error: fmt.Sprintf("unknown method %q", req.Method)}
	}
}
