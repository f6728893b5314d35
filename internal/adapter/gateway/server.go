package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"go.opentelemetry.io/otel/trace"

	"agency-ai/internal/domain"
	"agency-ai/internal/infra/config"
	"agency-ai/internal/infra/logger"
	"agency-ai/internal/infra/middleware"
	"agency-ai/internal/infra/tracer"
)

// MethodSubscribe opts a connection into event frames. It is connection
// state rather than application logic, so the server handles it inline
// instead of through the handler table.
const MethodSubscribe = "subscribe"

// RPCHandler handles a single RPC method call.
type RPCHandler func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error)

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once

	subMu      sync.Mutex
	subscribed bool
	eventTypes map[domain.EventType]struct{} // nil with subscribed=true means all types
}

// subscribe opts the connection into event frames. An empty type list
// means every event; repeated calls accumulate types.
func (c *clientConn) subscribe(types []domain.EventType) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subscribed = true
	if len(types) == 0 {
		c.eventTypes = nil
		return
	}
	if c.eventTypes == nil {
		c.eventTypes = make(map[domain.EventType]struct{}, len(types))
	}
	for _, t := range types {
		c.eventTypes[t] = struct{}{}
	}
}

func (c *clientConn) wantsEvent(t domain.EventType) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if !c.subscribed {
		return false
	}
	if c.eventTypes == nil {
		return true
	}
	_, ok := c.eventTypes[t]
	return ok
}

// Server is the WebSocket gateway that exposes RPC methods and forwards
// bus events to subscribed clients.
type Server struct {
	bus           domain.EventBus
	clients       sync.Map // connID (uint64) -> *clientConn
	auth          Authenticator
	handlersMu    sync.RWMutex
	handlers      map[string]RPCHandler
	logger        *slog.Logger
	addr          string
	ratePerMinute int
	rateBurst     int
	httpSrv       *http.Server
	boundAddr     string
	nextID        atomic.Uint64
	unsubAll      func()
	httpRoutes    []httpRoute // additional HTTP routes
}

type httpRoute struct {
	pattern string
	handler http.HandlerFunc
}

// NewServer creates a gateway server bound per cfg. A nil logger
// discards records.
func NewServer(bus domain.EventBus, auth Authenticator, cfg config.GatewayConfig, log *slog.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		bus:           bus,
		auth:          auth,
		handlers:      make(map[string]RPCHandler),
		logger:        log,
		addr:          cfg.Addr,
		ratePerMinute: cfg.RatePerMinute,
		rateBurst:     cfg.RateBurst,
	}
}

// RegisterHandler adds an RPC handler for the given method name.
// Safe to call concurrently with active connections.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// RegisterHTTPRoute adds an HTTP handler to the gateway's mux.
// Must be called before Start().
func (s *Server) RegisterHTTPRoute(pattern string, handler http.HandlerFunc) {
	s.httpRoutes = append(s.httpRoutes, httpRoute{pattern: pattern, handler: handler})
}

// Start begins accepting WebSocket connections. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	for _, route := range s.httpRoutes {
		mux.HandleFunc(route.pattern, route.handler)
	}

	var handler http.Handler = middleware.SecurityHeaders(mux)
	if s.ratePerMinute > 0 {
		handler = middleware.RateLimit(ctx, s.ratePerMinute, s.rateBurst)(handler)
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{Handler: handler}

	// Forward bus events to subscribed clients.
	unsub := s.bus.SubscribeAll(func(_ context.Context, event domain.Event) {
		payload, err := json.Marshal(event)
		if err != nil {
			return
		}
		frame := Frame{
			Type:    FrameTypeEvent,
			Payload: payload,
		}
		s.clients.Range(func(_, value any) bool {
			cc := value.(*clientConn)
			if !cc.wantsEvent(event.Type) {
				return true
			}
			select {
			case cc.sendCh <- frame:
			default:
				s.logger.Warn("gateway: dropped event for slow client", "event", event.Type)
			}
			return true
		})
	})
	s.unsubAll = unsub

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	if s.unsubAll != nil {
		s.unsubAll()
	}

	// Close all client connections.
	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.closeOnce.Do(func() { close(cc.done) })
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

// requestToken extracts the bearer token from the Authorization header,
// falling back to the token query parameter for WebSocket clients that
// cannot set headers.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
		return h
	}
	return r.URL.Query().Get("token")
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	clientInfo, err := s.auth.Authenticate(requestToken(r))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Secure origin checking: allow localhost for dev, same-origin, or explicit allowed origins
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{
		info:   clientInfo,
		ws:     ws,
		sendCh: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	s.clients.Store(connID, cc)

	s.logger.Info("gateway client connected", "conn_id", connID, "client", clientInfo.Name)

	// Start write loop.
	go s.writeLoop(cc)

	// Read loop (blocking).
	s.readLoop(r.Context(), cc)

	// Cleanup.
	cc.closeOnce.Do(func() { close(cc.done) })
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		err := wsjson.Read(ctx, cc.ws, &frame)
		if err != nil {
			return // connection closed or error
		}

		if frame.Type != FrameTypeRequest {
			continue
		}

		go s.dispatchRPC(ctx, cc, frame)
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

type subscribeRequest struct {
	Types []domain.EventType `json:"types,omitempty"`
}

func (s *Server) handleSubscribe(cc *clientConn, req Frame) {
	var params subscribeRequest
	if len(req.Payload) > 0 {
		if err := json.Unmarshal(req.Payload, &params); err != nil {
			s.sendResponse(cc, req.ID, nil, domain.ErrRPCInvalidPayload)
			return
		}
	}
	cc.subscribe(params.Types)
	result, _ := json.Marshal(map[string]bool{"subscribed": true})
	s.sendResponse(cc, req.ID, result, nil)
}

func (s *Server) dispatchRPC(ctx context.Context, cc *clientConn, req Frame) {
	if req.Method == MethodSubscribe {
		s.handleSubscribe(cc, req)
		return
	}

	s.handlersMu.RLock()
	handler, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()
	if !ok {
		s.sendResponse(cc, req.ID, nil, domain.ErrRPCMethodNotFound)
		return
	}

	ctx, span := tracer.StartSpan(ctx, "gateway.dispatch",
		trace.WithAttributes(
			tracer.StringAttr("rpc.method", req.Method),
			tracer.StringAttr("gateway.client", cc.info.Name),
		))
	defer span.End()

	// Handlers and the layers below see the caller only as an owner key.
	if cc.info.OwnerID != "" {
		ctx = domain.ContextWithOwner(ctx, cc.info.OwnerID)
	}

	result, err := handler(ctx, cc.info, req.Payload)
	if err != nil {
		tracer.RecordError(span, err)
		s.logger.Warn("gateway rpc failed",
			"method", req.Method, "client", cc.info.Name,
			"code", string(domain.ErrorCodeOf(err)), "error", err)
	} else {
		tracer.SetOK(span)
	}
	s.sendResponse(cc, req.ID, result, err)
}

func (s *Server) sendResponse(cc *clientConn, id uint64, result json.RawMessage, err error) {
	resp := Frame{
		Type:    FrameTypeResponse,
		ID:      id,
		Payload: result,
	}
	if err != nil {
		resp.Error = err.Error()
		resp.Code = string(domain.ErrorCodeOf(err))
	}
	select {
	case cc.sendCh <- resp:
	default:
		s.logger.Warn("gateway: dropped RPC response for slow client", "frame_id", id)
	}
}
