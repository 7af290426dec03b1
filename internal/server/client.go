// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/chatroom/internal/hub"
	"github.com/Tyrowin/chatroom/internal/logger"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is the transport side of one chat connection. It implements
// hub.Outbound with a buffered queue drained by writePump, so a send from a
// broadcast never waits on the network.
type Client struct {
	id             hub.ConnID
	conn           *websocket.Conn
	session        *hub.Session
	log            *logger.Logger
	maxMessageSize int64
	sendTimeout    time.Duration
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient creates a Client for conn using the limits in cfg. conn may be
// nil in tests that only exercise the outbound queue.
func NewClient(id hub.ConnID, conn *websocket.Conn, cfg *Config, log *logger.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	perSecond := float64(cfg.RateLimit.Burst) / cfg.RateLimit.RefillInterval.Seconds()

	return &Client{
		id:             id,
		conn:           conn,
		log:            log,
		maxMessageSize: cfg.MaxMessageSize,
		sendTimeout:    cfg.Hub.SendTimeout,
		limiter:        rate.NewLimiter(rate.Limit(perSecond), cfg.RateLimit.Burst),
		rateLimit:      cfg.RateLimit,
		send:           make(chan []byte, cfg.Hub.SendBuffer),
	}
}

// ID returns the connection id.
func (c *Client) ID() hub.ConnID {
	return c.id
}

// Send queues frame for writePump.
func (c *Client) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return hub.ErrOutboundClosed
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return hub.ErrOutboundFull
	}
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// closeSend stops the outbound queue. writePump sends a close frame once it
// has drained what is left.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.WarnWithErr("setting initial read deadline", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.WarnWithErr("setting read deadline in pong handler", err)
		}
		return nil
	})
}

// logReadError records why the read loop ended.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("message exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure):
		c.log.Info("client disconnected", "reason", err.Error())
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("client connection closed", "reason", err.Error())
	case websocket.IsUnexpectedCloseError(err):
		c.log.WarnWithErr("unexpected websocket close", err)
	default:
		c.log.WarnWithErr("websocket read error", err)
	}
}

func (c *Client) checkRateLimit() bool {
	if c.limiter.Allow() {
		return true
	}
	c.log.Warn("rate limit exceeded; discarding message",
		"burst", c.rateLimit.Burst,
		"interval", c.rateLimit.RefillInterval)
	return false
}

// readPump feeds inbound frames to the session until the peer goes away,
// then removes the connection from the hub exactly once.
func (c *Client) readPump() {
	defer func() {
		c.session.Close()
		c.closeSend()
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		frameType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		if err := c.session.Handle(frameType, data); err != nil {
			c.log.WarnWithErr("session rejected frame; closing", err)
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeSend()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		if !ok {
			c.writeCloseMessage()
			return false
		}
		return c.writeTextMessage(message)
	case <-ticker.C:
		return c.writePing()
	}
}

// writeTextMessage writes one envelope per websocket frame, bounded by the
// configured send timeout.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.sendTimeout)); err != nil {
		c.log.WarnWithErr("setting write deadline", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.WarnWithErr("writing message", err)
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() {
	deadline := time.Now().Add(c.sendTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		if !isExpectedCloseError(err) && !errors.Is(err, websocket.ErrCloseSent) {
			c.log.WarnWithErr("writing close message", err)
		}
	}
}

func (c *Client) writePing() bool {
	deadline := time.Now().Add(c.sendTimeout)
	if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		c.log.WarnWithErr("writing ping", err)
		return false
	}
	return true
}

func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.WarnWithErr("closing connection", err)
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
