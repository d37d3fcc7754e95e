// Package httpapi implements the thin HTTP surface alongside the websocket
// endpoint: presence lookup, out-of-band send, and undelivered-message
// retrieval, all on a single Echo app.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"chatgate/internal/auth"
	"chatgate/internal/metrics"
	"chatgate/internal/presence"
	"chatgate/internal/protocol"
	"chatgate/internal/router"
	"chatgate/internal/undelivered"
)

// Server is the Echo application exposing the gateway's HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	presence *presence.Directory
	router   *router.Router
	store    *undelivered.Store
	verifier *auth.Verifier
}

// New constructs an Echo app wired to the gateway's core components.
func New(pres *presence.Directory, rt *router.Router, store *undelivered.Store, verifier *auth.Verifier) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(requestLogger())

	s := &Server{echo: e, presence: pres, router: rt, store: store, verifier: verifier}
	s.registerRoutes()
	return s
}

// requestLogger returns Echo middleware that logs each HTTP request via slog.
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			slog.Info("http request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote", c.RealIP(),
			)
			return nil
		}
	}
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	s.echo.GET("/v1/websocket/user-status/:userId", s.handleUserStatus)
	s.echo.POST("/v1/websocket/send-message", s.requireAuth(s.handleSendMessage))
	s.echo.GET("/v1/messages/undelivered", s.requireAuth(s.handleFetchUndelivered))
	s.echo.DELETE("/v1/messages/undelivered", s.requireAuth(s.handleDeleteUndelivered))
	s.echo.GET("/v1/messages/undelivered/check", s.requireAuth(s.handleCheckUndelivered))
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down http server")
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		slog.Info("http server stopped")
		return nil
	}
}

// requireAuth wraps a handler with bearer-token verification: a missing or
// invalid token returns 401 before the handler ever runs. The authenticated
// user ID is stashed on the context for the handler to read.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		token := strings.TrimPrefix(header, "Bearer ")
		userID, err := s.verifier.Verify(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing bearer token")
		}
		c.Set("userID", userID)
		return next(c)
	}
}

type userStatusResponse struct {
	Online bool   `json:"online"`
	Pod    string `json:"pod,omitempty"`
}

func (s *Server) handleUserStatus(c echo.Context) error {
	userID := c.Param("userId")
	pod, ok := s.presence.Lookup(c.Request().Context(), userID)
	return c.JSON(http.StatusOK, userStatusResponse{Online: ok, Pod: pod})
}

type sendMessageRequest struct {
	SenderID      string            `json:"senderId"`
	ReceiverID    string            `json:"receiverId"`
	MessageID     string            `json:"messageId"`
	ActualMessage string            `json:"actualMessage,omitempty"`
	Files         map[string]string `json:"files,omitempty"`
	Timestamp     int64             `json:"timestamp,omitempty"`
}

// handleSendMessage implements the out-of-band send endpoint. It routes
// through RouteHTTP, which never falls through to the offline store: an
// offline receiver surfaces as 404, a receiver present locally whose send
// actually fails surfaces as 409, and a local or relayed delivery succeeds
// with 200.
func (s *Server) handleSendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.ReceiverID == "" || req.MessageID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "receiverId and messageId are required")
	}

	env := protocol.Envelope{
		SenderID:      req.SenderID,
		ReceiverID:    req.ReceiverID,
		MessageID:     req.MessageID,
		ActualMessage: req.ActualMessage,
		Files:         req.Files,
		MessageType:   protocol.MessageTypeChat,
		Timestamp:     req.Timestamp,
	}
	if len(req.Files) > 0 {
		env.MessageType = protocol.MessageTypeFile
	}

	switch s.router.RouteHTTP(c.Request().Context(), env) {
	case router.Delivered, router.Queued:
		return c.NoContent(http.StatusOK)
	case router.Failed:
		return echo.NewHTTPError(http.StatusConflict, "delivery failed")
	default:
		return echo.NewHTTPError(http.StatusNotFound, "receiver is offline")
	}
}

type undeliveredResponse struct {
	Messages    []protocol.Envelope `json:"messages"`
	TotalCount  int                 `json:"totalCount"`
	HasMessages bool                `json:"hasMessages"`
}

// handleFetchUndelivered fetches the bearer-authenticated caller's pending
// messages and immediately clears them: a second fetch in the same session
// returns an empty set.
func (s *Server) handleFetchUndelivered(c echo.Context) error {
	userID := c.Get("userID").(string)
	messages, err := s.store.Fetch(c.Request().Context(), userID)
	if err != nil {
		slog.Error("undelivered fetch failed", "component", "httpapi", "user_id", userID, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "fetch failed")
	}
	if err := s.store.DeleteAll(c.Request().Context(), userID); err != nil {
		slog.Error("undelivered auto-delete failed", "component", "httpapi", "user_id", userID, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "delete failed")
	}
	if messages == nil {
		messages = []protocol.Envelope{}
	}
	return c.JSON(http.StatusOK, undeliveredResponse{
		Messages:    messages,
		TotalCount:  len(messages),
		HasMessages: len(messages) > 0,
	})
}

func (s *Server) handleDeleteUndelivered(c echo.Context) error {
	userID := c.Get("userID").(string)
	if err := s.store.DeleteAll(c.Request().Context(), userID); err != nil {
		slog.Error("undelivered delete failed", "component", "httpapi", "user_id", userID, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "delete failed")
	}
	return c.NoContent(http.StatusOK)
}

type checkUndeliveredResponse struct {
	HasMessages bool   `json:"hasMessages"`
	ReceiverID  string `json:"receiverId"`
}

func (s *Server) handleCheckUndelivered(c echo.Context) error {
	userID := c.Get("userID").(string)
	has, err := s.store.Has(c.Request().Context(), userID)
	if err != nil {
		slog.Error("undelivered check failed", "component", "httpapi", "user_id", userID, "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "check failed")
	}
	return c.JSON(http.StatusOK, checkUndeliveredResponse{HasMessages: has, ReceiverID: userID})
}
