package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"agency-ai/internal/domain"
	"agency-ai/internal/usecase"
)

// HandlerDeps holds dependencies needed by RPC handlers.
type HandlerDeps struct {
	Workforce *usecase.Workforce
	Registry  *usecase.Registry
	Usage     domain.UsageStore // can be nil (no ledger configured)
	Logger    *slog.Logger
	Version   string
}

// RegisterDefaultHandlers registers all built-in RPC handlers on the server.
func RegisterDefaultHandlers(s *Server, deps HandlerDeps) {
	s.RegisterHandler("workforce.initialize", workforceInitializeHandler(deps))
	s.RegisterHandler("workforce.status", workforceStatusHandler(deps))
	s.RegisterHandler("workforce.delegate", workforceDelegateHandler(deps))
	s.RegisterHandler("agent.register", agentRegisterHandler(deps))
	s.RegisterHandler("agent.create_from_template", agentCreateFromTemplateHandler(deps))
	s.RegisterHandler("agent.get", agentGetHandler(deps))
	s.RegisterHandler("agent.list", agentListHandler(deps))
	s.RegisterHandler("agent.rename", agentRenameHandler(deps))
	s.RegisterHandler("agent.set_capabilities", agentSetCapabilitiesHandler(deps))
	s.RegisterHandler("capabilities.summary", capabilitiesSummaryHandler(deps))
	s.RegisterHandler("usage.stats", usageStatsHandler(deps))
	s.RegisterHandler("usage.recent", usageRecentHandler(deps))
}

// RegisterRESTHandlers registers the HTTP endpoints served alongside the
// WebSocket upgrade: GET /healthz (unauthenticated liveness) and
// GET /api/status (authenticated overview).
func RegisterRESTHandlers(s *Server, deps HandlerDeps) {
	startTime := time.Now()

	authMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if _, err := s.auth.Authenticate(requestToken(r)); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	s.RegisterHTTPRoute("/healthz", healthzHandler())
	s.RegisterHTTPRoute("/api/status", authMiddleware(statusHandler(deps, startTime)))
}

// --- workforce ---

func workforceInitializeHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		lead, err := deps.Workforce.Initialize(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(lead)
	}
}

type workforceStatusResponse struct {
	usecase.WorkforceStatus
	UptimeSeconds int64 `json:"uptime_seconds"`
}

func workforceStatusHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		st := deps.Workforce.Status()
		resp := workforceStatusResponse{WorkforceStatus: st}
		if !st.ReadySince.IsZero() {
			resp.UptimeSeconds = int64(time.Since(st.ReadySince).Seconds())
		}
		return json.Marshal(resp)
	}
}

type delegateRequest struct {
	Message      string            `json:"message"`
	Inputs       map[string]string `json:"inputs,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	TimeoutMS    int64             `json:"timeout_ms,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
}

func workforceDelegateHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req delegateRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		// Message validation happens in the coordinator so the error
		// code matches direct (non-gateway) callers.
		result, err := deps.Workforce.Delegate(ctx, domain.TaskSpec{
			Message:      req.Message,
			Inputs:       req.Inputs,
			Metadata:     req.Metadata,
			Timeout:      time.Duration(req.TimeoutMS) * time.Millisecond,
			Capabilities: req.Capabilities,
		})
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	}
}

// --- agents ---

func agentRegisterHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		if err := validateAgentDefinition(payload); err != nil {
			return nil, err
		}
		var def domain.AgentDefinition
		if err := json.Unmarshal(payload, &def); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		rec, err := deps.Workforce.RegisterAgent(ctx, def)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rec)
	}
}

type createFromTemplateRequest struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

func agentCreateFromTemplateHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req createFromTemplateRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.Type == "" {
			return nil, domain.ErrRPCInvalidPayload
		}
		rec, err := deps.Workforce.CreateFromTemplate(ctx, req.Type, req.Name)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rec)
	}
}

type agentGetRequest struct {
	ID string `json:"id"`
}

func agentGetHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req agentGetRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.ID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}
		rec, err := deps.Workforce.Agent(req.ID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rec)
	}
}

func agentListHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var filter domain.AgentFilter
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &filter); err != nil {
				return nil, domain.ErrRPCInvalidPayload
			}
		}
		return json.Marshal(deps.Workforce.ListAgents(filter))
	}
}

type agentRenameRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func agentRenameHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req agentRenameRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.ID == "" || req.Name == "" {
			return nil, domain.ErrRPCInvalidPayload
		}
		rec, err := deps.Registry.Rename(ctx, req.ID, req.Name)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rec)
	}
}

type agentSetCapabilitiesRequest struct {
	ID           string   `json:"id"`
	Capabilities []string `json:"capabilities"`
}

func agentSetCapabilitiesHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req agentSetCapabilitiesRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, domain.ErrRPCInvalidPayload
		}
		if req.ID == "" {
			return nil, domain.ErrRPCInvalidPayload
		}
		rec, err := deps.Registry.SetCapabilities(ctx, req.ID, req.Capabilities)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rec)
	}
}

func capabilitiesSummaryHandler(deps HandlerDeps) RPCHandler {
	return func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(deps.Workforce.CapabilitiesSummary())
	}
}

// --- usage ---

func usageStatsHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		if deps.Usage == nil {
			return nil, domain.NewDomainError("usage.stats", domain.ErrUnavailable, "usage ledger not configured")
		}
		var filter domain.UsageFilter
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &filter); err != nil {
				return nil, domain.ErrRPCInvalidPayload
			}
		}
		stats, err := deps.Usage.UsageStats(ctx, filter)
		if err != nil {
			return nil, err
		}
		return json.Marshal(stats)
	}
}

type usageRecentRequest struct {
	domain.UsageFilter
	Limit int `json:"limit,omitempty"`
}

func usageRecentHandler(deps HandlerDeps) RPCHandler {
	return func(ctx context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		if deps.Usage == nil {
			return nil, domain.NewDomainError("usage.recent", domain.ErrUnavailable, "usage ledger not configured")
		}
		var req usageRecentRequest
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &req); err != nil {
				return nil, domain.ErrRPCInvalidPayload
			}
		}
		rows, err := deps.Usage.RecentExecutions(ctx, req.UsageFilter, req.Limit)
		if err != nil {
			return nil, err
		}
		return json.Marshal(rows)
	}
}
