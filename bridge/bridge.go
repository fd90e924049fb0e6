// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ariana-dot-dev/ariana/lib/ipc"
	"github.com/ariana-dot-dev/ariana/lib/netutil"
	"github.com/ariana-dot-dev/ariana/lib/streamapi"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second

	// sendBuffer is the number of outbound frames queued per client.
	sendBuffer = 64
)

// ErrNoClient is returned by Send when no browser is connected.
var ErrNoClient = errors.New("bridge: no client connected")

// Bridge serves one browser over a WebSocket and exposes it as an IPC
// channel. The zero value needs ListenAddr before Start.
type Bridge struct {
	// ListenAddr is the TCP address to listen on (e.g. "127.0.0.1:8443").
	ListenAddr string

	// Path is the WebSocket endpoint. Defaults to "/stream".
	Path string

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger

	listener    net.Listener
	server      *http.Server
	upgrader    websocket.Upgrader
	cancel      context.CancelFunc
	done        chan struct{}
	connections sync.WaitGroup

	inbound chan ipc.ServerIPCMessage
	stopped chan struct{}

	mu              sync.Mutex
	active          *client
	connectionCount int64
}

// client is the connected browser.
type client struct {
	id     int64
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	// closing is closed to make the write pump send a close frame and
	// exit.
	closing   chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.closing) })
}

// logger returns the configured logger or the default.
func (b *Bridge) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// Start binds the listener and serves in the background until Stop is
// called or ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	if b.ListenAddr == "" {
		return fmt.Errorf("bridge: ListenAddr is required")
	}
	path := b.Path
	if path == "" {
		path = "/stream"
	}

	listener, err := net.Listen("tcp", b.ListenAddr)
	if err != nil {
		return fmt.Errorf("bridge: failed to listen on %s: %w", b.ListenAddr, err)
	}
	b.listener = listener

	// The streamer is reached directly by the page that embeds it, so
	// any origin may connect.
	b.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	b.inbound = make(chan ipc.ServerIPCMessage)
	b.stopped = make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc(path, b.handleUpgrade)
	b.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		b.serve(ctx)
	}()

	b.logger().Info("bridge started",
		"listen_addr", listener.Addr().String(),
		"path", path,
	)
	return nil
}

// Addr returns the listener's address, useful when binding to port 0.
// Returns nil if the bridge has not been started.
func (b *Bridge) Addr() net.Addr {
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

// Stop closes the listener and the active client and waits for every
// connection goroutine to finish. Receive returns net.ErrClosed after
// Stop.
func (b *Bridge) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.done != nil {
		<-b.done
	}
}

// Wait blocks until the bridge has stopped.
func (b *Bridge) Wait() {
	if b.done != nil {
		<-b.done
	}
}

// serve runs the HTTP server until ctx is done, then tears down the
// active client and waits for its goroutines.
func (b *Bridge) serve(ctx context.Context) {
	serveErr := make(chan error, 1)
	go func() { serveErr <- b.server.Serve(b.listener) }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			b.logger().Error("serve failed", "error", err)
		}
	}

	close(b.stopped)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := b.server.Shutdown(shutdownCtx); err != nil {
		b.logger().Warn("bridge shutdown", "error", err)
	}

	// Shutdown does not track hijacked connections.
	b.mu.Lock()
	if c := b.active; c != nil && c.conn != nil {
		c.close()
		c.conn.Close()
	}
	b.mu.Unlock()
	b.connections.Wait()
	b.logger().Info("bridge stopped")
}

func (b *Bridge) handleUpgrade(writer http.ResponseWriter, request *http.Request) {
	b.mu.Lock()
	if b.active != nil {
		b.mu.Unlock()
		http.Error(writer, "a client is already connected", http.StatusConflict)
		return
	}
	b.connectionCount++
	c := &client{
		id:      b.connectionCount,
		send:    make(chan []byte, sendBuffer),
		closing: make(chan struct{}),
	}
	c.logger = b.logger().With("connection_id", c.id)
	b.active = c
	b.mu.Unlock()

	conn, err := b.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		c.logger.Warn("websocket upgrade failed", "error", err)
		b.release(c)
		return
	}

	b.mu.Lock()
	select {
	case <-b.stopped:
		b.active = nil
		b.mu.Unlock()
		conn.Close()
		return
	default:
	}
	c.conn = conn
	b.connections.Add(2)
	b.mu.Unlock()
	c.logger.Info("client connected", "remote_addr", conn.RemoteAddr())

	go func() {
		defer b.connections.Done()
		b.writePump(c)
	}()
	go func() {
		defer b.connections.Done()
		b.readPump(c)
	}()
}

// release clears c as the active client if it still is.
func (b *Bridge) release(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == c {
		b.active = nil
	}
}

func (b *Bridge) readPump(c *client) {
	defer func() {
		c.close()
		c.conn.Close()
		b.release(c)
		c.logger.Info("client disconnected")
		b.deliver(ipc.ServerIPCMessage{Stop: true})
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !netutil.IsExpectedCloseError(err) {
				c.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var message ipc.ServerIPCMessage
		switch messageType {
		case websocket.TextMessage:
			var clientMessage streamapi.ClientMessage
			if err := json.Unmarshal(data, &clientMessage); err != nil {
				c.logger.Warn("ignoring malformed client message", "error", err)
				continue
			}
			message.WebSocket = &clientMessage
		case websocket.BinaryMessage:
			message.WebSocketTransport = data
		default:
			continue
		}
		if !b.deliver(message) {
			return
		}
	}
}

// deliver hands message to Receive. Reports false if the bridge
// stopped first.
func (b *Bridge) deliver(message ipc.ServerIPCMessage) bool {
	select {
	case b.inbound <- message:
		return true
	case <-b.stopped:
		return false
	}
}

func (b *Bridge) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !netutil.IsExpectedCloseError(err) {
					c.logger.Warn("websocket write failed", "error", err)
				}
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closing:
			if !flush(c) {
				return
			}
			closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended")
			c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever the streamer queued before asking to close.
func flush(c *client) bool {
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return false
			}
		default:
			return true
		}
	}
}

// Receive returns the next message from the browser. It blocks until
// one arrives and returns net.ErrClosed once the bridge has stopped.
func (b *Bridge) Receive() (ipc.ServerIPCMessage, error) {
	select {
	case message := <-b.inbound:
		return message, nil
	case <-b.stopped:
		return ipc.ServerIPCMessage{}, net.ErrClosed
	}
}

// Send writes a signaling message to the browser, or closes its socket
// when message is a Stop.
func (b *Bridge) Send(message ipc.StreamerIPCMessage) error {
	b.mu.Lock()
	c := b.active
	b.mu.Unlock()
	if c == nil {
		return ErrNoClient
	}

	if message.WebSocket != nil {
		data, err := json.Marshal(message.WebSocket)
		if err != nil {
			return fmt.Errorf("encoding server message: %w", err)
		}
		select {
		case <-c.closing:
			return ErrNoClient
		default:
		}
		select {
		case c.send <- data:
		case <-c.closing:
			return ErrNoClient
		default:
			return fmt.Errorf("bridge: send buffer full for connection %d", c.id)
		}
	}
	if message.Stop {
		c.close()
	}
	return nil
}
