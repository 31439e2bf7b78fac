package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	wsReadLimit     = 4 << 20
	wsWriteTimeout  = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// wsTransport serves MCP over WebSocket, one session per connection.
// Each connection's inbound messages are throttled independently.
type wsTransport struct {
	server   *MCPServer
	upgrader websocket.Upgrader
	limit    rate.Limit
	burst    int
	log      logrus.FieldLogger
}

// newWebSocketHandler returns the HTTP handler exposing /mcp and /healthz.
func newWebSocketHandler(server *MCPServer, cfg Config, logger logrus.FieldLogger) http.Handler {
	t := &wsTransport{
		server: server,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		limit: rate.Limit(cfg.WSRate),
		burst: cfg.WSBurst,
		log:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/mcp", t.serveConn)
	return mux
}

func (t *wsTransport) serveConn(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := t.log.WithField("remote", r.RemoteAddr)
	logger.Info("websocket session opened")
	defer logger.Info("websocket session closed")

	ctx := r.Context()
	sess := &session{}
	limiter := rate.NewLimiter(t.limit, t.burst)
	conn.SetReadLimit(wsReadLimit)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithError(err).Warn("websocket read failed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}

		response := t.server.HandleMessage(ctx, sess, data)
		if response == nil {
			continue
		}

		payload, err := json.Marshal(response)
		if err != nil {
			logger.WithError(err).Error("error marshaling message")
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.WithError(err).Warn("websocket write failed")
			return
		}
	}
}

// serveWebSocket listens on addr until ctx is cancelled.
func serveWebSocket(ctx context.Context, addr string, handler http.Handler, logger logrus.FieldLogger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("shutdown failed")
		}
	}()

	logger.WithField("addr", addr).Info("listening for websocket MCP sessions on /mcp")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return nil
}
