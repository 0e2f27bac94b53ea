package collab

import (
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 1 << 20 // rich-text payloads can be large
	sendBuffer     = 256
)

// Session is one live client socket. The connection id is the session id;
// it is unique per socket, not per user.
type Session struct {
	ID       string
	UserID   string
	UserName string

	Conn *websocket.Conn
	Send chan []byte

	hub         *Hub
	ConnectedAt time.Time
}

// NewSession wraps an upgraded connection with a fresh connection id.
func NewSession(hub *Hub, conn *websocket.Conn, userID, userName string) *Session {
	return &Session{
		ID:          ksuid.New().String(),
		UserID:      userID,
		UserName:    userName,
		Conn:        conn,
		Send:        make(chan []byte, sendBuffer),
		hub:         hub,
		ConnectedAt: time.Now(),
	}
}

func (s *Session) sender() senderInfo {
	return senderInfo{ConnectionID: s.ID, UserID: s.UserID, UserName: s.UserName}
}

// enqueue hands a frame to the write pump without blocking the hub loop. A
// full buffer means the client is slow or dead; the frame is dropped and the
// ping/pong deadline will reap the connection.
func (s *Session) enqueue(message []byte) {
	if message == nil {
		return
	}
	select {
	case s.Send <- message:
	default:
		log.Printf("session %s send buffer full, dropping frame", s.ID)
	}
}

// ReadPump reads frames from the socket and feeds them to the hub in arrival
// order, which gives the per-connection FIFO guarantee. It owns the
// unregister on exit, so disconnect cleanup runs no matter how the socket
// died.
func (s *Session) ReadPump() {
	defer func() {
		s.hub.Unregister(s)
		s.Conn.Close()
	}()

	s.Conn.SetReadLimit(maxMessageSize)
	s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("session %s read error: %v", s.ID, err)
			}
			break
		}

		s.hub.Inbound(s, message)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
// One writer goroutine per connection; gorilla connections do not allow
// concurrent writers.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := s.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain additional queued frames while we hold the writer.
			n := len(s.Send)
			for i := 0; i < n; i++ {
				s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.Conn.WriteMessage(websocket.TextMessage, <-s.Send); err != nil {
					return
				}
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
