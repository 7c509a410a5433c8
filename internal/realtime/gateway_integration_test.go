package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	v1 "relay/contracts/chat/v1"
	"relay/internal/store"
)

type wsHarness struct {
	gateway *Gateway
	server  *httptest.Server
}

func newWSHarness(t *testing.T, st store.Store, cfg GatewayConfig) *wsHarness {
	t.Helper()

	g := newTestGateway(t, st, cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{userId}", g.HandleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &wsHarness{gateway: g, server: srv}
}

func (h *wsHarness) dial(t *testing.T, ctx context.Context, userID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/" + userID
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", userID, err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func readWireFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) v1.Frame {
	t.Helper()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f v1.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame %q: %v", data, err)
	}
	return f
}

func seedUser(t *testing.T, st store.Store, id, name string) {
	t.Helper()
	_, err := st.CreateUser(context.Background(), store.User{
		ID:             id,
		Username:       name,
		Email:          name + "@example.com",
		EmailConfirmed: true,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
}

func TestGatewaySessionLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemory()
	seedUser(t, st, "u-alice", "alice")
	seedUser(t, st, "u-bob", "bob")

	h := newWSHarness(t, st, GatewayConfig{})

	alice := h.dial(t, ctx, "u-alice")

	// Connection setup: one ack covering the auto-created default room,
	// then alice's own online event.
	ack := readWireFrame(t, ctx, alice)
	if ack.Type != v1.TypeSubscriptionsAck || ack.Status != v1.StatusSubscribed {
		t.Fatalf("expected subscriptions_ack first, got %+v", ack)
	}
	if len(ack.Rooms) != 1 || ack.Rooms[0] != store.DefaultRoomID {
		t.Fatalf("expected ack for the default room, got %v", ack.Rooms)
	}
	if f := readWireFrame(t, ctx, alice); f.Type != v1.TypeUserOnline || f.UserID != "u-alice" {
		t.Fatalf("expected alice's own online event, got %+v", f)
	}

	bob := h.dial(t, ctx, "u-bob")

	if f := readWireFrame(t, ctx, bob); f.Type != v1.TypeSubscriptionsAck {
		t.Fatalf("expected bob's subscriptions_ack, got %+v", f)
	}
	// Bob sees his own online event plus the replay of alice's presence.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		f := readWireFrame(t, ctx, bob)
		if f.Type != v1.TypeUserOnline {
			t.Fatalf("expected user_online, got %+v", f)
		}
		seen[f.UserID] = true
	}
	if !seen["u-bob"] || !seen["u-alice"] {
		t.Fatalf("bob's presence view incomplete: %v", seen)
	}
	// Alice is told bob arrived.
	if f := readWireFrame(t, ctx, alice); f.Type != v1.TypeUserOnline || f.UserID != "u-bob" {
		t.Fatalf("expected bob's online event at alice, got %+v", f)
	}

	// A text message from alice reaches both subscribers, alice included.
	out, _ := json.Marshal(v1.Inbound{
		Type: v1.TypeMessage,
		Data: v1.InboundData{ChatID: store.DefaultRoomID, Content: "hello"},
	})
	if err := alice.Write(ctx, websocket.MessageText, out); err != nil {
		t.Fatalf("write: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"alice": alice, "bob": bob} {
		f := readWireFrame(t, ctx, conn)
		if f.Type != v1.TypeMessage || f.Data == nil {
			t.Fatalf("%s: expected message frame, got %+v", name, f)
		}
		if f.Data.Content != "hello" || f.Data.SenderName != "alice" || f.Data.ChatID != store.DefaultRoomID {
			t.Fatalf("%s: unexpected message %+v", name, f.Data)
		}
	}

	// The message was persisted once.
	msgs, err := st.MessagesByRoom(ctx, store.DefaultRoomID, 10)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("expected 1 persisted message, got %d err=%v", len(msgs), err)
	}
}

func TestGatewayReconnectSupersedesOldConnection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemory()
	seedUser(t, st, "u-alice", "alice")

	h := newWSHarness(t, st, GatewayConfig{})

	first := h.dial(t, ctx, "u-alice")
	readWireFrame(t, ctx, first) // ack
	readWireFrame(t, ctx, first) // own online event

	second := h.dial(t, ctx, "u-alice")
	if f := readWireFrame(t, ctx, second); f.Type != v1.TypeSubscriptionsAck {
		t.Fatalf("expected subscriptions_ack on the new connection, got %+v", f)
	}
	if f := readWireFrame(t, ctx, second); f.Type != v1.TypeUserOnline || f.UserID != "u-alice" {
		t.Fatalf("expected alice's online event on the new connection, got %+v", f)
	}

	// The old connection goes away; its teardown must not evict the new
	// session or announce the still-connected user offline.
	_ = first.Close(websocket.StatusNormalClosure, "superseded")
	time.Sleep(300 * time.Millisecond)

	if h.gateway.reg.Len() != 1 {
		t.Fatalf("live session evicted by stale teardown, len=%d", h.gateway.reg.Len())
	}

	out, _ := json.Marshal(v1.Inbound{
		Type: v1.TypeMessage,
		Data: v1.InboundData{ChatID: store.DefaultRoomID, Content: "still here"},
	})
	if err := second.Write(ctx, websocket.MessageText, out); err != nil {
		t.Fatalf("write: %v", err)
	}

	for {
		f := readWireFrame(t, ctx, second)
		if f.Type == v1.TypeUserOffline {
			t.Fatalf("offline announced for a still-connected user: %+v", f)
		}
		if f.Type == v1.TypeMessage {
			if f.Data == nil || f.Data.Content != "still here" {
				t.Fatalf("unexpected message: %+v", f)
			}
			break
		}
	}
}

func TestGatewayRejectsUnknownUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newWSHarness(t, store.NewMemory(), GatewayConfig{})

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/ghost"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, _, err = conn.Read(readCtx); err == nil {
		t.Fatalf("expected the server to close the connection")
	}
	if got := websocket.CloseStatus(err); got != StatusUnauthorized {
		t.Fatalf("expected close status %d, got %d (%v)", StatusUnauthorized, got, err)
	}
}

func TestGatewayRefusesWhileDraining(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemory()
	seedUser(t, st, "u-alice", "alice")

	h := newWSHarness(t, st, GatewayConfig{})
	h.gateway.coord.Drain()

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/u-alice"
	if _, _, err := websocket.Dial(ctx, url, nil); err == nil {
		t.Fatalf("expected dial to fail while draining")
	}
}

func TestGatewayDrainTerminatesLiveConnection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewMemory()
	seedUser(t, st, "u-alice", "alice")

	h := newWSHarness(t, st, GatewayConfig{})
	alice := h.dial(t, ctx, "u-alice")

	// Consume setup frames so the close is the next thing we read.
	readWireFrame(t, ctx, alice) // ack
	readWireFrame(t, ctx, alice) // own online event

	h.gateway.coord.Drain()

	readCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if _, _, err := alice.Read(readCtx); err == nil {
		t.Fatalf("expected the drained connection to be closed")
	}
	if h.gateway.reg.Len() != 0 {
		t.Fatalf("expected registry empty after drain, len=%d", h.gateway.reg.Len())
	}
}
