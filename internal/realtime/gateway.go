// Package realtime implements the relay core: connection lifecycle,
// presence notification, message fan-out and the shutdown drain.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	v1 "relay/contracts/chat/v1"
	"relay/internal/ids"
	"relay/internal/registry"
	"relay/internal/store"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
)

// StatusUnauthorized is the close code for connections from unregistered
// users, distinct from generic internal errors and unsupported payloads.
const StatusUnauthorized = websocket.StatusCode(4001)

// GatewayConfig carries the tunables of the websocket gateway.
type GatewayConfig struct {
	// AllowGuests materializes a transient identity for unknown user ids
	// instead of rejecting them. Off by default; the strict reject-unknown
	// policy is the coherent contract.
	AllowGuests bool

	// AllowedOriginHosts is passed to websocket.Accept's origin check.
	AllowedOriginHosts []string

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	RateFrames int
	RateWindow time.Duration
}

// Gateway is the WebSocket entrypoint. It drives the per-connection state
// machine: accept, identify, register, auto-subscribe, serve, teardown.
type Gateway struct {
	log        *slog.Logger
	reg        *registry.Registry
	identities *registry.Identities
	store      store.Store
	presence   *Presence
	fanout     *Fanout
	coord      *Coordinator
	metrics    *Metrics

	cfg GatewayConfig
}

// NewGateway constructs a gateway with safe defaults for zero config values.
func NewGateway(
	log *slog.Logger,
	reg *registry.Registry,
	identities *registry.Identities,
	st store.Store,
	presence *Presence,
	fanout *Fanout,
	coord *Coordinator,
	metrics *Metrics,
	cfg GatewayConfig,
) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = wsDefaultWriteTimeout
	}
	if cfg.ReadIdleTimeout <= 0 {
		cfg.ReadIdleTimeout = wsDefaultReadIdle
	}
	if cfg.SendQueueSize < wsMinSendQueueSize {
		cfg.SendQueueSize = wsDefaultSendQueueSize
	}
	if cfg.RateFrames <= 0 {
		cfg.RateFrames = rateLimitFrames
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = rateLimitWindow
	}

	return &Gateway{
		log:        log,
		reg:        reg,
		identities: identities,
		store:      st,
		presence:   presence,
		fanout:     fanout,
		coord:      coord,
		metrics:    metrics,
		cfg:        cfg,
	}
}

// HandleWS upgrades /ws/{userId} to a websocket session and runs the
// lifecycle state machine until the connection closes.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if g.coord.Draining() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	userID := strings.TrimSpace(r.PathValue("userId"))
	if userID == "" {
		http.Error(w, "missing user id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.cfg.AllowedOriginHosts,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err, "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	user, err := g.identify(ctx, userID)
	if err != nil {
		g.metrics.RejectsTotal.Inc()
		g.log.Warn("ws.reject.unauthorized", "user_id", userID, "err", err)
		_ = conn.Close(StatusUnauthorized, "Unauthorized: User not registered")
		return
	}

	client := NewClient(userID, g.cfg.SendQueueSize)
	client.SetTransportCloser(func() {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	})

	g.reg.Register(userID, user.Username, client)
	g.metrics.ConnectionsTotal.Inc()
	g.metrics.ConnectionsActive.Inc()
	g.log.Info("ws.accepted", "user_id", userID, "username", user.Username)

	// teardown is the single guaranteed finalizer: every exit path funnels
	// through it exactly once, whichever error branch fired first.
	var teardownOnce sync.Once
	teardown := func(code websocket.StatusCode, reason string) {
		teardownOnce.Do(func() {
			// Only the connection the registry still holds owns the session
			// state; a superseded connection must not evict its replacement
			// or announce the user offline while they are still connected.
			if _, owned := g.reg.UnregisterConn(userID, client); owned {
				g.identities.Remove(userID)
				// Skipped internally while the process is draining.
				g.presence.AnnounceOffline(userID, user.Username)
			}

			client.Close()
			_ = conn.Close(code, reason)
			cancel()

			g.metrics.ConnectionsActive.Dec()
			g.log.Info("ws.closed", "user_id", userID, "reason", reason)
		})
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case frame := <-client.Send:
				if err := writeFrame(ctx, conn, frame, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "user_id", userID, "close_status", websocket.CloseStatus(err), "err", err)
					teardown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	// Watcher observes the drain flag within one poll interval so serving
	// connections transition to teardown without a client-initiated frame.
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)

		t := time.NewTicker(drainPollInterval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				teardown(websocket.StatusGoingAway, "server shutting down")
				return
			case <-t.C:
				if g.coord.Draining() {
					teardown(websocket.StatusGoingAway, "server shutting down")
					return
				}
			}
		}
	}()

	g.subscribeAll(ctx, client, userID)
	g.presence.AnnounceOnline(userID, user.Username)

	rl := NewRateLimiter(g.cfg.RateFrames, g.cfg.RateWindow)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		in, size, err := readFrame(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				teardown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				teardown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				teardown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				// Undecodable frames close the connection; shape errors inside
				// a decodable frame only answer with an error frame.
				g.log.Warn("ws.read.bad_json", "user_id", userID)
				teardown(websocket.StatusUnsupportedData, "invalid JSON")
				break readLoop
			default:
				g.log.Info("ws.read.fail", "user_id", userID, "err", err)
				teardown(websocket.StatusInternalError, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now, frameCost(size)) {
			client.Enqueue(v1.ErrorFrame("too many frames"))
			teardown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		g.handleInbound(ctx, client, user, in, now)
	}

	teardown(websocket.StatusNormalClosure, "bye")
	<-writerDone
	<-watcherDone
}

// identify resolves the connecting user: identity cache first, then the
// store. Unknown users are rejected unless guest mode is enabled, in which
// case a transient identity is materialized.
func (g *Gateway) identify(ctx context.Context, userID string) (store.User, error) {
	u, err := g.identities.Resolve(ctx, g.store, userID)
	if err == nil {
		return u, nil
	}
	if errors.Is(err, store.ErrNotFound) && g.cfg.AllowGuests {
		guest := store.User{
			ID:             userID,
			Username:       userID,
			Email:          userID + "@guest.invalid",
			EmailConfirmed: true,
		}
		g.identities.Put(guest)
		g.log.Info("ws.guest.materialized", "user_id", userID)
		return guest, nil
	}
	return store.User{}, err
}

// subscribeAll subscribes the user to every room currently known, creating
// the default room when the listing is empty, and acknowledges once for all
// rooms. A store failure here is logged and non-fatal; the connection keeps
// serving with whatever subscriptions succeeded.
func (g *Gateway) subscribeAll(ctx context.Context, client *Client, userID string) {
	rooms, err := g.store.Rooms(ctx)
	if err != nil {
		g.log.Error("ws.subscribe.rooms.fail", "user_id", userID, "err", err)
		return
	}
	if len(rooms) == 0 {
		room, err := g.store.CreateRoom(ctx, store.DefaultRoom())
		if err != nil {
			g.log.Error("ws.subscribe.default_room.fail", "user_id", userID, "err", err)
			return
		}
		rooms = []store.Room{room}
	}

	roomIDs := make([]string, 0, len(rooms))
	for _, room := range rooms {
		g.reg.Subscribe(userID, room.ID)
		roomIDs = append(roomIDs, room.ID)
	}

	if !client.Enqueue(v1.SubscriptionsAckFrame(roomIDs)) {
		g.log.Info("ws.subscriptions_ack.drop", "user_id", userID)
	}
}

// handleInbound processes one decoded client frame. Shape errors are
// connection-preserving: the sender gets an error frame and the loop
// continues.
func (g *Gateway) handleInbound(ctx context.Context, client *Client, user store.User, in v1.Inbound, now time.Time) {
	if err := in.Validate(); err != nil {
		g.log.Warn("ws.frame.invalid", "user_id", user.ID, "err", err)
		client.Enqueue(v1.ErrorFrame(err.Error()))
		return
	}

	// Only text messages travel over the websocket; attachments go via the
	// one-shot HTTP path.
	if in.Data.Content == "" || in.Data.AttachmentURL != "" {
		g.log.Warn("ws.frame.non_text", "user_id", user.ID, "room_id", in.Data.ChatID)
		client.Enqueue(v1.ErrorFrame("WebSocket messages should be text-only; use HTTP POST for attachments."))
		return
	}
	if len([]rune(in.Data.Content)) > maxMessageChars {
		client.Enqueue(v1.ErrorFrame(fmt.Sprintf("message too long: max=%d chars", maxMessageChars)))
		return
	}

	id, err := ids.NewULID(now)
	if err != nil {
		g.log.Error("ws.message.id.fail", "user_id", user.ID, "err", err)
		client.Enqueue(v1.ErrorFrame("internal error"))
		return
	}

	g.fanout.Publish(ctx, v1.Message{
		ID:         id,
		ChatID:     in.Data.ChatID,
		SenderID:   user.ID,
		SenderName: user.Username,
		Content:    in.Data.Content,
		Timestamp:  now,
		Kind:       v1.KindText,
	})
}

// ---- frame IO ----

// readFrame reads and decodes one inbound frame, reporting its wire size
// for rate-limit accounting.
func readFrame(ctx context.Context, conn *websocket.Conn) (v1.Inbound, int, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Inbound{}, 0, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Inbound{}, len(data), fmt.Errorf("unsupported message type: %v", mt)
	}
	var in v1.Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return v1.Inbound{}, len(data), errBadJSON{err}
	}
	return in, len(data), nil
}

func writeFrame(parent context.Context, conn *websocket.Conn, frame v1.Frame, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// ---- read error classification ----

type errBadJSON struct{ err error }

func (e errBadJSON) Error() string { return "bad json: " + e.err.Error() }
func (e errBadJSON) Unwrap() error { return e.err }

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	var bad errBadJSON
	if errors.As(err, &bad) {
		return readErrBadJSON
	}
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}
