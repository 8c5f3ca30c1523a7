package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/protocol"
	"github.com/shubham-shewale/stock-ticker/cmd/gateway/internal/session"
)

const (
	maxMessageSize = 512 * 1024
	commandTimeout = 10 * time.Second
)

type ClientAdapter struct {
	conn    net.Conn
	hub     *hub.Hub
	session *session.Session
	send    chan []byte
	pongs   chan []byte // ping payloads awaiting an echo
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewClient(conn net.Conn, h *hub.Hub, logger *zap.Logger, sendBuffer int) *ClientAdapter {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &ClientAdapter{
		conn:       conn,
		hub:        h,
		send:       make(chan []byte, sendBuffer),
		pongs:      make(chan []byte, 1),
		logger:     logger,
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

// Start registers an anonymous session and spins up the pumps.
func (c *ClientAdapter) Start() {
	c.session = c.hub.Register(c)
	go c.writePump()
	go c.readPump()
}

func (c *ClientAdapter) ID() string { return c.conn.RemoteAddr().String() }

// Close stops the write pump, which closes the connection. Safe to call twice.
func (c *ClientAdapter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *ClientAdapter) SendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Marshal outbound message failed", zap.Error(err))
		return
	}
	c.SendBytes(b)
}

func (c *ClientAdapter) SendBytes(b []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}

	select {
	case c.send <- b:
	default:
		// Backpressure: a slow reader loses messages instead of stalling the feed
		c.logger.Warn("Send buffer full, dropping message", zap.String("remote", c.ID()))
	}
}

// readPump handles frames strictly one after another, so a login is fully
// bound before the next frame (e.g. a subscribe) is even read.
func (c *ClientAdapter) readPump() {
	defer func() {
		c.hub.Unregister(c.session)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			break
		}

		if header.Length > int64(maxMessageSize) {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			break
		}

		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)")
			break
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			break
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPing:
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
			c.queuePong(payload)
			continue
		case ws.OpPong:
			c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
			continue
		case ws.OpText:
		default:
			continue
		}

		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))

		req, err := protocol.Decode(payload)
		if err != nil {
			c.SendJSON(protocol.Error("Invalid JSON"))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		c.hub.HandleCommand(ctx, c.session, req)
		cancel()
	}
}

// queuePong hands a ping payload to the write pump, which owns every write
// to the connection. A pong still waiting is replaced by the newer one.
func (c *ClientAdapter) queuePong(payload []byte) {
	for {
		select {
		case c.pongs <- payload:
			return
		default:
		}
		select {
		case <-c.pongs:
		default:
		}
	}
}

// writePump is the only goroutine writing frames: queued messages, pong
// replies and our own keep-alive pings.
func (c *ClientAdapter) writePump() {
	keepAlive := time.NewTicker(c.pingPeriod)
	defer func() {
		keepAlive.Stop()
		c.conn.Close()
	}()

	for {
		var (
			op      ws.OpCode
			payload []byte
		)

		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
				c.conn.Write(ws.CompiledClose)
				return
			}
			op, payload = ws.OpText, msg
		case p := <-c.pongs:
			op, payload = ws.OpPong, p
		case <-keepAlive.C:
			op = ws.OpPing
		}

		c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
		if err := wsutil.WriteServerMessage(c.conn, op, payload); err != nil {
			c.logger.Debug("Write failed, closing connection", zap.String("remote", c.ID()), zap.Error(err))
			return
		}
	}
}
