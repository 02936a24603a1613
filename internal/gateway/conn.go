// ABOUTME: Websocket connection wrapper with a write lock and frame codec.
// ABOUTME: The Conn interface lets tests substitute a scripted connection.

package gateway

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is one established gateway connection. ReadFrame may be unblocked by
// Close from another goroutine; WriteFrame is safe for concurrent use.
type Conn interface {
	ReadFrame() (Frame, error)
	WriteFrame(Frame) error
	Close() error
}

// Dialer establishes a Conn to a gateway URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// wsConn adapts a gorilla websocket connection. Reads happen only on the
// connection loop's goroutine; writes come from both the loop and the
// heartbeat task, so they serialize on a mutex.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// DialWebsocket is the production Dialer.
func DialWebsocket(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return &wsConn{conn: conn}, nil
}

func (c *wsConn) ReadFrame() (Frame, error) {
	var f Frame
	if err := c.conn.ReadJSON(&f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func (c *wsConn) WriteFrame(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(f)
}

func (c *wsConn) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"))
	return c.conn.Close()
}
