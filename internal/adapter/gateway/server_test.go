package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"agency-ai/internal/domain"
	"agency-ai/internal/infra/config"
	"agency-ai/internal/infra/logger"
	"agency-ai/internal/usecase/eventbus"
)

func newTestAuth() Authenticator {
	return NewStaticTokenAuth([]Credential{
		{Token: "test-token", Name: "tester", Roles: []string{"admin"}},
	})
}

// startServer runs an already-configured server and blocks until it binds.
func startServer(t *testing.T, srv *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	started := make(chan struct{})
	go func() {
		// Wait for server to bind.
		go func() {
			for srv.BoundAddr() == "" {
				time.Sleep(5 * time.Millisecond)
			}
			close(started)
		}()
		if err := srv.Start(ctx); err != nil {
			// Only log; the test may have cancelled context already.
			_ = err
		}
	}()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("server did not start in time")
	}

	t.Cleanup(func() {
		srv.Stop(context.Background())
	})
}

func startTestServer(t *testing.T, bus domain.EventBus) *Server {
	t.Helper()
	srv := NewServer(bus, newTestAuth(), config.GatewayConfig{Addr: "127.0.0.1:0"}, logger.Discard())
	startServer(t, srv)
	return srv
}

func dialWS(t *testing.T, addr, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws://"+addr+"/ws?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

// sendSubscribe opts the connection into event frames and consumes the ack.
func sendSubscribe(t *testing.T, ws *websocket.Conn, types ...domain.EventType) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, _ := json.Marshal(subscribeRequest{Types: types})
	req := Frame{Type: FrameTypeRequest, ID: 999, Method: MethodSubscribe, Payload: payload}
	if err := wsjson.Write(ctx, ws, req); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	var ack Frame
	if err := wsjson.Read(ctx, ws, &ack); err != nil {
		t.Fatalf("read subscribe ack: %v", err)
	}
	if ack.Error != "" {
		t.Fatalf("subscribe error = %q", ack.Error)
	}
}

// --- tests ---

func TestServerLifecycle(t *testing.T) {
	srv := startTestServer(t, eventbus.New(nil))

	if srv.BoundAddr() == "" {
		t.Fatal("BoundAddr is empty")
	}
}

func TestServerAuthReject(t *testing.T) {
	srv := startTestServer(t, eventbus.New(nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=bad-token", nil)
	if err == nil {
		t.Fatal("expected auth rejection")
	}
}

func TestServerRPCRoundtrip(t *testing.T) {
	srv := startTestServer(t, eventbus.New(nil))

	// Register a simple echo handler.
	srv.RegisterHandler("echo", func(_ context.Context, _ *ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		return payload, nil
	})

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	ctx := context.Background()

	req := Frame{
		Type:    FrameTypeRequest,
		ID:      1,
		Method:  "echo",
		Payload: json.RawMessage(`{"msg":"hello"}`),
	}
	if err := wsjson.Write(ctx, ws, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp Frame
	if err := wsjson.Read(ctx, ws, &resp); err != nil {
		t.Fatalf("read: %v", err)
	}

	if resp.Type != FrameTypeResponse {
		t.Errorf("type = %q", resp.Type)
	}
	if resp.ID != 1 {
		t.Errorf("ID = %d", resp.ID)
	}
	if resp.Error != "" {
		t.Errorf("error = %q", resp.Error)
	}
	if string(resp.Payload) != `{"msg":"hello"}` {
		t.Errorf("payload = %s", resp.Payload)
	}
}

func TestServerUnknownMethod(t *testing.T) {
	srv := startTestServer(t, eventbus.New(nil))

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	ctx := context.Background()

	req := Frame{
		Type:   FrameTypeRequest,
		ID:     2,
		Method: "nonexistent",
	}
	if err := wsjson.Write(ctx, ws, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp Frame
	if err := wsjson.Read(ctx, ws, &resp); err != nil {
		t.Fatalf("read: %v", err)
	}

	if resp.Error == "" {
		t.Error("expected error for unknown method")
	}
	if resp.Code != string(domain.CodeRPCMethodNotFound) {
		t.Errorf("code = %q, want %q", resp.Code, domain.CodeRPCMethodNotFound)
	}
}

func TestServerOwnerInjection(t *testing.T) {
	srv := startTestServer(t, eventbus.New(nil))

	srv.RegisterHandler("whoami", func(ctx context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(map[string]string{"owner": domain.OwnerFromContext(ctx)})
	})

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	ctx := context.Background()

	if err := wsjson.Write(ctx, ws, Frame{Type: FrameTypeRequest, ID: 3, Method: "whoami"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var resp Frame
	if err := wsjson.Read(ctx, ws, &resp); err != nil {
		t.Fatalf("read: %v", err)
	}

	var body map[string]string
	json.Unmarshal(resp.Payload, &body)
	if body["owner"] != "tester" {
		t.Errorf("owner = %q, want credential name from context", body["owner"])
	}
}

func TestServerEventForwarding(t *testing.T) {
	bus := eventbus.New(nil)
	srv := startTestServer(t, bus)

	ws := dialWS(t, srv.BoundAddr(), "test-token")

	// Give the connection time to be registered.
	time.Sleep(100 * time.Millisecond)

	sendSubscribe(t, ws)

	bus.Publish(context.Background(), domain.Event{
		Type:      domain.EventTaskCompleted,
		Timestamp: time.Now(),
		AgentID:   "agent-1",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var frame Frame
	if err := wsjson.Read(ctx, ws, &frame); err != nil {
		t.Fatalf("read event: %v", err)
	}

	if frame.Type != FrameTypeEvent {
		t.Errorf("type = %q, want event", frame.Type)
	}
	var event domain.Event
	if err := json.Unmarshal(frame.Payload, &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if event.Type != domain.EventTaskCompleted {
		t.Errorf("event type = %q", event.Type)
	}
}

func TestServerNoEventsWithoutSubscribe(t *testing.T) {
	bus := eventbus.New(nil)
	srv := startTestServer(t, bus)

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	time.Sleep(100 * time.Millisecond)

	bus.Publish(context.Background(), domain.Event{
		Type:      domain.EventTaskCompleted,
		Timestamp: time.Now(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var frame Frame
	if err := wsjson.Read(ctx, ws, &frame); err == nil {
		t.Fatalf("got frame %+v, want none before subscribe", frame)
	}
}

func TestServerSubscribeTypeFilter(t *testing.T) {
	bus := eventbus.New(nil)
	srv := startTestServer(t, bus)

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	time.Sleep(100 * time.Millisecond)

	sendSubscribe(t, ws, domain.EventTaskFailed)

	// The filtered-out event must not arrive; the matching one must.
	bus.Publish(context.Background(), domain.Event{Type: domain.EventAgentRegistered, Timestamp: time.Now()})
	bus.Publish(context.Background(), domain.Event{Type: domain.EventTaskFailed, Timestamp: time.Now()})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var frame Frame
	if err := wsjson.Read(ctx, ws, &frame); err != nil {
		t.Fatalf("read event: %v", err)
	}
	var event domain.Event
	json.Unmarshal(frame.Payload, &event)
	if event.Type != domain.EventTaskFailed {
		t.Errorf("event type = %q, want only the subscribed type", event.Type)
	}
}

func TestServerSlowClient(t *testing.T) {
	bus := eventbus.New(nil)
	srv := startTestServer(t, bus)

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	time.Sleep(100 * time.Millisecond)
	sendSubscribe(t, ws)
	// Connected and subscribed but no longer reading.

	// Flood events; publishing must not block or panic.
	for i := 0; i < 200; i++ {
		bus.Publish(context.Background(), domain.Event{
			Type:      domain.EventTaskStarted,
			Timestamp: time.Now(),
		})
	}
}

func TestServerConcurrentClients(t *testing.T) {
	srv := startTestServer(t, eventbus.New(nil))

	srv.RegisterHandler("ping", func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"pong"`), nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			ws := dialWS(t, srv.BoundAddr(), "test-token")

			ctx := context.Background()
			req := Frame{Type: FrameTypeRequest, ID: uint64(id), Method: "ping"}
			if err := wsjson.Write(ctx, ws, req); err != nil {
				return
			}
			var resp Frame
			wsjson.Read(ctx, ws, &resp)
		}(i)
	}
	wg.Wait()
}

func TestServerDisconnect(t *testing.T) {
	bus := eventbus.New(nil)
	srv := startTestServer(t, bus)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws://"+srv.BoundAddr()+"/ws?token=test-token", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	// Immediately close.
	ws.Close(websocket.StatusNormalClosure, "bye")

	// Give server time to clean up.
	time.Sleep(100 * time.Millisecond)

	// Publishing after the client is gone must not panic.
	bus.Publish(context.Background(), domain.Event{
		Type:      domain.EventTaskStarted,
		Timestamp: time.Now(),
	})
}

func TestServerHandlerErrorCode(t *testing.T) {
	srv := startTestServer(t, eventbus.New(nil))

	srv.RegisterHandler("fail", func(_ context.Context, _ *ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		return nil, domain.NewDomainError("fail", domain.ErrInvalidInput, "bad request")
	})

	ws := dialWS(t, srv.BoundAddr(), "test-token")
	ctx := context.Background()

	req := Frame{Type: FrameTypeRequest, ID: 1, Method: "fail"}
	if err := wsjson.Write(ctx, ws, req); err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp Frame
	if err := wsjson.Read(ctx, ws, &resp); err != nil {
		t.Fatalf("read: %v", err)
	}

	if resp.Error == "" {
		t.Error("expected error in response")
	}
	if resp.Code != string(domain.CodeInvalidInput) {
		t.Errorf("code = %q, want %q", resp.Code, domain.CodeInvalidInput)
	}
}
