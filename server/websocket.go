package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/oneprompt/agentd/dispatch"
)

// WebSocket timeout constants following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Per-client outbound buffer
	clientSendBuffer = 64
)

// JobUpdateMessage is pushed to WebSocket clients on every job transition
type JobUpdateMessage struct {
	Type string        `json:"type"`
	Job  *dispatch.Job `json:"job"`
}

// Client is one WebSocket connection
type Client struct {
	server    *Server
	conn      *websocket.Conn
	sendMsg   chan interface{}
	id        string
	closeOnce sync.Once
}

// close shuts the outbound channel exactly once; writePump closes the
// underlying connection when the channel drains
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.sendMsg)
	})
}

// handleWebSocket upgrades GET /ws/jobs and starts the client pumps
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	client := &Client{
		server:  s,
		conn:    conn,
		sendMsg: make(chan interface{}, clientSendBuffer),
		id:      uuid.NewString()[:8],
	}

	select {
	case s.register <- client:
	case <-s.ctx.Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// checkOrigin allows same-host connections plus any configured origin.
// An entry of "*" disables the check.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	s.logger.Warnw("WebSocket origin rejected", "origin", origin)
	return false
}

// readPump discards inbound frames but keeps the connection's read side
// alive for pong handling and close detection
func (c *Client) readPump() {
	defer func() {
		select {
		case c.server.unregister <- c:
		case <-c.server.ctx.Done():
			c.close()
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.server.logger.Warnw("WebSocket read error", "client_id", c.id, "error", err)
			}
			return
		}
	}
}

// writePump writes queued messages and periodic pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.server.ctx.Done():
			return
		case msg, ok := <-c.sendMsg:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Warnw("WebSocket write error", "client_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// startJobUpdateBroadcaster subscribes to scheduler transitions and fans
// them out to every connected client
func (s *Server) startJobUpdateBroadcaster() {
	updates := s.scheduler.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// Unsubscribe before returning so the scheduler stops writing,
		// then the buffered channel can be garbage collected
		defer s.scheduler.Unsubscribe(updates)

		for {
			select {
			case <-s.ctx.Done():
				return
			case job, ok := <-updates:
				if !ok {
					return
				}
				s.broadcastMessage(&JobUpdateMessage{Type: "job_update", Job: job})
			}
		}
	}()
}

// broadcastMessage delivers a message to all clients with a non-blocking
// send; slow clients drop updates rather than stall the broadcaster
func (s *Server) broadcastMessage(msg interface{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		select {
		case client.sendMsg <- msg:
		default:
			s.broadcastDrops.Add(1)
			s.logger.Debugw("Client send buffer full, dropping update",
				"client_id", client.id,
				"total_drops", s.broadcastDrops.Load(),
			)
		}
	}
}
