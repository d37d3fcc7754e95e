// Package ws implements the websocket connection lifecycle and inbound
// frame dispatcher: upgrade, signed-token handshake, then per-connection
// read loop dispatching ping, call-signaling, and chat frames.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"chatgate/internal/auth"
	"chatgate/internal/metrics"
	"chatgate/internal/presence"
	"chatgate/internal/protocol"
	"chatgate/internal/router"
	"chatgate/internal/session"
	"chatgate/internal/signaling"
)

const writeTimeout = 5 * time.Second

// Handler wires the websocket endpoint to the session table, presence
// directory, delivery router, and call-signaling engine.
type Handler struct {
	sessions      *session.Table
	presence      *presence.Directory
	verifier      *auth.Verifier
	router        *router.Router
	signaling     *signaling.Engine
	podName       string
	maxFrameBytes int64
	upgrader      websocket.Upgrader
}

// New constructs a Handler.
func New(sessions *session.Table, pres *presence.Directory, verifier *auth.Verifier, rt *router.Router, sig *signaling.Engine, podName string, maxFrameBytes int64) *Handler {
	return &Handler{
		sessions:      sessions,
		presence:      pres,
		verifier:      verifier,
		router:        rt,
		signaling:     sig,
		podName:       podName,
		maxFrameBytes: maxFrameBytes,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// Register binds the websocket route onto e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/", h.HandleWebSocket)
}

// HandleWebSocket upgrades the request and verifies the handshake token
// before handing off to serveConn.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	token := c.QueryParam("token")
	userID, err := h.verifier.Verify(token)
	if err != nil {
		conn, upErr := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
		if upErr != nil {
			return nil
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "BAD_DATA"),
			time.Now().Add(writeTimeout))
		_ = conn.Close()
		metrics.HandshakeRejections.Inc()
		slog.Warn("handshake rejected", "component", "ws", "err", err)
		return nil
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("upgrade failed", "component", "ws", "err", err)
		return nil
	}

	h.serveConn(c.Request().Context(), conn, userID)
	return nil
}

// socket adapts *websocket.Conn to session.Socket, serializing concurrent
// writes under one mutex.
type socket struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *socket) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *socket) Close() error {
	return s.conn.Close()
}

func (h *Handler) serveConn(ctx context.Context, conn *websocket.Conn, userID string) {
	conn.SetReadLimit(h.maxFrameBytes)
	sock := &socket{conn: conn}

	h.sessions.Put(userID, sock)
	h.presence.Register(ctx, userID, h.podName)
	slog.Info("connected", "component", "ws", "user_id", userID)

	defer func() {
		h.sessions.Remove(userID, sock)
		h.presence.Unregister(ctx, userID)
		_ = conn.Close()
		slog.Info("disconnected", "component", "ws", "user_id", userID)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if err == websocket.ErrReadLimit {
				slog.Warn("frame too large, closing", "component", "ws", "user_id", userID)
			} else if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("read error", "component", "ws", "user_id", userID, "err", err)
			}
			return
		}
		h.handleFrame(ctx, userID, sock, raw)
	}
}

func (h *Handler) handleFrame(ctx context.Context, userID string, sock *socket, raw []byte) {
	var disc protocol.InboundFrame
	if err := json.Unmarshal(raw, &disc); err != nil {
		slog.Warn("unparseable frame dropped", "component", "ws", "user_id", userID, "err", err)
		return
	}

	if disc.Type == protocol.TypePing {
		_ = sock.Send(protocol.PingFrame{Type: protocol.TypePong})
		return
	}

	if disc.Signal != "" {
		if !protocol.CallSignals[disc.Signal] {
			slog.Warn("unrecognized signal dropped", "component", "ws", "user_id", userID, "signal", disc.Signal)
			return
		}
		var frame protocol.SignalFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			slog.Warn("unparseable signal frame dropped", "component", "ws", "user_id", userID, "err", err)
			return
		}
		frame.From = userID
		h.signaling.Handle(ctx, userID, frame)
		return
	}

	var req protocol.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		slog.Warn("unparseable chat frame dropped", "component", "ws", "user_id", userID, "err", err)
		return
	}
	req.SenderID = userID
	if req.ReceiverID == "" {
		slog.Warn("chat frame dropped: missing receiver", "component", "ws", "user_id", userID)
		return
	}
	h.router.RouteChat(ctx, req)
}
