package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport exchanges JSON-RPC messages over one WebSocket connection.
// Requests are serialized; each write waits for its reply.
type wsTransport struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// NewWebSocketClient dials url and returns an MCP client using the
// connection.
func NewWebSocketClient(ctx context.Context, name, url string, logger *slog.Logger) (Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	logger.Info("created MCP WebSocket client", "name", name, "url", url)
	return newRPCClient(name, "websocket", &wsTransport{conn: conn}, logger), nil
}

func (t *wsTransport) roundTrip(ctx context.Context, request JSONRPCRequest) (*JSONRPCResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, fmt.Errorf("client is closed")
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(60 * time.Second)
	}
	t.conn.SetWriteDeadline(deadline)
	t.conn.SetReadDeadline(deadline)

	if err := t.conn.WriteJSON(request); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	// Notifications and stale replies share the socket; skip them.
	for {
		var response JSONRPCResponse
		if err := t.conn.ReadJSON(&response); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if response.ID == request.ID {
			return &response, nil
		}
	}
}

func (t *wsTransport) close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	t.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}
