package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pseudocoder/layoutsync/internal/wire"
)

const (
	// writeWait is the time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = 30 * time.Second

	// maxMessageSize is the largest frame accepted from a peer.
	maxMessageSize = 512 * 1024
)

// closeSend safely signals the client to shut down exactly once.
// This is safe to call multiple times from different goroutines.
// We only close the done channel (not send) to avoid racing with
// ongoing send operations. All senders check done before sending.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

// writePump continuously sends frames from the send channel to the WebSocket.
// It also sends periodic pings to keep the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Shutdown signaled; send close frame and exit.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("server: failed to marshal %s frame: %v", msg.Type, err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("server: write error on session %s: %v", c.sessionID, err)
				return
			}

		case <-ticker.C:
			// Send a ping to keep the connection alive
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames from the WebSocket and relays them to the session.
// Frames for another session or of an unknown type are dropped.
func (c *Client) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	defer func() {
		cancel()

		// Unregister the client when this goroutine exits
		c.server.mu.Lock()
		delete(c.server.clients, c)
		c.server.mu.Unlock()

		// Signals writePump to exit, which closes the connection.
		c.closeSend()

		log.Printf("server: client left session %s (%d remaining)", c.sessionID, c.server.ClientCount())
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	// When we receive a pong (response to our ping), the client is alive.
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				log.Printf("server: read error on session %s: %v", c.sessionID, err)
			}
			return
		}

		var msg wire.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("server: failed to parse frame on session %s: %v", c.sessionID, err)
			continue
		}
		if !msg.Type.Valid() {
			log.Printf("server: dropping frame of unknown type %q on session %s", msg.Type, c.sessionID)
			continue
		}
		if msg.SessionID == "" {
			msg.SessionID = c.sessionID
		}
		if msg.SessionID != c.sessionID {
			log.Printf("server: dropping frame for session %s received on session %s", msg.SessionID, c.sessionID)
			continue
		}

		// Throttle rather than drop: a dropped frame would leave peers stale.
		if err := c.publishLimiter.Wait(ctx); err != nil {
			return
		}

		c.server.trackDevice(msg)
		c.server.Broadcast(msg)
	}
}

// trackDevice records activity for the device that sent msg.
func (s *Server) trackDevice(msg wire.Message) {
	if msg.DeviceID == "" {
		return
	}
	if err := s.store.TouchDevice(msg.SessionID, msg.DeviceID, msg.UserID, 1, time.Now()); err != nil {
		log.Printf("server: failed to record activity of device %s: %v", msg.DeviceID, err)
	}
}
