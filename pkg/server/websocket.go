package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jcber/spothoot/pkg/protocol"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// wsConn adapts a websocket connection to the Conn interface. The write
// mutex serializes frames from the connection's own handler and from
// broadcasts running on other goroutines.
type wsConn struct {
	id string
	ws *websocket.Conn

	writeMu sync.Mutex
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{id: uuid.NewString(), ws: ws}
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) WriteText(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// handleWS upgrades an HTTP request to a websocket connection, registers
// the session and serves the connection's read loop.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	ws.SetReadLimit(protocol.MaxMessageSize)

	conn := newWSConn(ws)
	s.dispatcher.HandleOpen(conn)
	go s.readLoop(conn)
}

// readLoop reads frames until the connection dies and feeds them to the
// dispatcher. One goroutine per connection.
func (s *Server) readLoop(conn *wsConn) {
	defer func() {
		s.dispatcher.HandleClose(conn)
		_ = conn.Close()
	}()

	for {
		msgType, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.dispatcher.HandleError(err, conn)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.dispatcher.HandleMessage(string(data), conn)
	}
}
