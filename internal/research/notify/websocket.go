package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"deepsearch-workers/internal/common/logger"

	"github.com/gorilla/websocket"
)

// WebSocketChannel writes progress strings as text frames.
type WebSocketChannel struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func NewWebSocketChannel(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketChannel {
	return &WebSocketChannel{conn: conn, writeTimeout: writeTimeout}
}

func (c *WebSocketChannel) Send(_ context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
		c.closed = true
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return nil
}

func (c *WebSocketChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// WebSocketHandler upgrades the request, registers the connection under the
// session id returned by sessionID, and keeps it registered until the client
// disconnects. Inbound frames are read and discarded.
func WebSocketHandler(registry *Registry, sessionID func(*http.Request) string, allowedOrigins []string, writeTimeout time.Duration, log logger.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		id := sessionID(r)
		if id == "" {
			http.Error(w, "missing session id", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", map[string]interface{}{
				"sessionId": id,
				"error":     err.Error(),
			})
			return
		}

		ch := NewWebSocketChannel(conn, writeTimeout)
		registry.Register(id, ch)
		defer func() {
			log.Debug("websocket closed", map[string]interface{}{"sessionId": id})
			registry.Unregister(id, ch)
			_ = ch.Close()
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

var _ Channel = (*WebSocketChannel)(nil)
