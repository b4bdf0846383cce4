package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	apperrors "github.com/pseudocoder/layoutsync/internal/errors"
	"github.com/pseudocoder/layoutsync/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024
	sendBuffer     = 64
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("realtime: channel closed")

var errNotConnected = errors.New("not connected")

// WSOptions configures a WSChannel.
type WSOptions struct {
	// BaseURL is the backend root. http and https are mapped to ws and wss.
	BaseURL string

	// SessionID selects the topic, /sessions/{id}/ws.
	SessionID string

	// Token, when set, is sent as a bearer token during the handshake.
	Token string

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// NewBackOff returns the reconnect policy. It defaults to an exponential
	// backoff that never gives up.
	NewBackOff func() backoff.BackOff

	// OnReconnect is called, on its own goroutine, every time the channel
	// re-establishes a connection after losing one. Messages sent while the
	// connection was down are lost, so the callback should trigger a full
	// re-fetch.
	OnReconnect func()
}

// WSChannel is a Channel backed by a WebSocket to the backend's session
// topic. It reconnects with backoff until closed.
type WSChannel struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	opts   WSOptions

	subs subscribers

	mu        sync.Mutex
	send      chan wire.Message
	connected bool
	connCh    chan struct{}

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// SessionURL returns the WebSocket URL of sessionID's topic on base.
func SessionURL(base, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("base url %q: unsupported scheme %q", base, u.Scheme)
	}
	return u.String() + "/sessions/" + url.PathEscape(sessionID) + "/ws", nil
}

// DialWS starts a WSChannel. It returns once the first connection attempt
// has finished; a failed first attempt is not an error, the channel keeps
// retrying in the background and Publish reports network.transient until
// it is connected.
func DialWS(ctx context.Context, opts WSOptions) (*WSChannel, error) {
	target, err := SessionURL(opts.BaseURL, opts.SessionID)
	if err != nil {
		return nil, err
	}

	c := &WSChannel{
		url:    target,
		header: http.Header{},
		dialer: opts.Dialer,
		opts:   opts,
		connCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	if c.dialer == nil {
		c.dialer = websocket.DefaultDialer
	}
	if opts.Token != "" {
		c.header.Set("Authorization", "Bearer "+opts.Token)
	}

	first := make(chan struct{})
	c.wg.Add(1)
	go c.run(first)

	select {
	case <-first:
	case <-ctx.Done():
	}
	return c, nil
}

// Subscribe registers h for every message on the topic, echoes included.
func (c *WSChannel) Subscribe(h Handler) func() {
	return c.subs.add(h)
}

// Publish queues msg for the write pump. It fails fast with
// network.transient when the channel is not connected.
func (c *WSChannel) Publish(ctx context.Context, msg wire.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.mu.Lock()
	send, connected := c.send, c.connected
	c.mu.Unlock()
	if !connected {
		return apperrors.TransientNetwork("publish "+string(msg.Type), errNotConnected)
	}

	select {
	case send <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// Connected reports whether a connection is currently established.
func (c *WSChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// WaitConnected blocks until the channel is connected or ctx is done.
func (c *WSChannel) WaitConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		connected, ch := c.connected, c.connCh
		c.mu.Unlock()
		if connected {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrClosed
		}
	}
}

// Close shuts the channel down and waits for its goroutines to exit.
func (c *WSChannel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
	return nil
}

// run owns the connection lifecycle: dial, pump, and redial with backoff.
func (c *WSChannel) run(first chan struct{}) {
	defer c.wg.Done()

	b := c.newBackOff()
	attempts := 0
	sessions := 0

	for {
		conn, _, err := c.dialer.Dial(c.url, c.header)
		attempts++
		if attempts == 1 {
			close(first)
		}
		if err != nil {
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				log.Printf("realtime: giving up on %s after %d attempts: %v", c.url, attempts, err)
				return
			}
			log.Printf("realtime: dial %s failed, retrying in %s: %v", c.url, wait, err)
			if !c.sleep(wait) {
				return
			}
			continue
		}
		b.Reset()
		sessions++
		if sessions > 1 {
			log.Printf("realtime: reconnected to %s", c.url)
			if c.opts.OnReconnect != nil {
				go c.opts.OnReconnect()
			}
		}

		c.serve(conn)

		select {
		case <-c.done:
			return
		default:
		}
	}
}

// serve runs the pumps for one connection and returns when it is lost or
// the channel is closed.
func (c *WSChannel) serve(conn *websocket.Conn) {
	send := make(chan wire.Message, sendBuffer)
	stop := make(chan struct{})

	c.mu.Lock()
	c.send = send
	c.connected = true
	close(c.connCh)
	c.connCh = make(chan struct{})
	c.mu.Unlock()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(conn, send, stop)
	}()

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		c.readPump(conn)
	}()

	select {
	case <-readerDone:
	case <-writerDone:
	case <-c.done:
	}

	c.mu.Lock()
	c.connected = false
	c.send = nil
	c.mu.Unlock()

	close(stop)
	<-writerDone
	conn.Close()
	<-readerDone
}

// writePump serialises publishes onto conn and keeps it alive with pings.
func (c *WSChannel) writePump(conn *websocket.Conn, send <-chan wire.Message, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg := <-send:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("realtime: failed to marshal %s message: %v", msg.Type, err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("realtime: write error: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump dispatches every inbound message to the subscribers in arrival
// order.
func (c *WSChannel) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure) {
				log.Printf("realtime: read error: %v", err)
			}
			return
		}

		var msg wire.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("realtime: dropping malformed frame: %v", err)
			continue
		}
		c.subs.dispatch(msg)
	}
}

func (c *WSChannel) newBackOff() backoff.BackOff {
	if c.opts.NewBackOff != nil {
		return c.opts.NewBackOff()
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// sleep waits for d and reports false if the channel was closed meanwhile.
func (c *WSChannel) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-c.done:
		return false
	}
}
