// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/chatrelay/internal/chat"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one WebSocket connection. It implements chat.Channel: events
// sent to it are queued and written by its write pump.
type Client struct {
	id             string
	name           string
	addr           string
	conn           *websocket.Conn
	send           chan []byte
	chat           *chat.Service
	log            *slog.Logger
	maxMessageSize int64
	rateLimiter    *rate.Limiter
	rateLimit      RateLimitConfig
	onClose        func(*Client)

	mu    sync.Mutex
	state chat.ChannelState
}

// NewClient creates a Client for conn bound to the logged-in name. The send
// channel is buffered so broadcasts never wait on the network.
func NewClient(conn *websocket.Conn, svc *chat.Service, cfg Config, log *slog.Logger, name, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	id := uuid.NewString()

	return &Client{
		id:             id,
		name:           name,
		addr:           addr,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBufferSize),
		chat:           svc,
		log:            log.With("channel_id", id, "name", name, "remote_addr", addr),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		state:          chat.StateConnecting,
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Name() string { return c.name }

// State returns the current lifecycle state of the connection.
func (c *Client) State() chat.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Send queues evt for the write pump. A client whose buffer is full is
// considered too slow and is closed.
func (c *Client) Send(evt chat.OutboundEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == chat.StateClosed {
		return errClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.log.Warn("Closing client with full send buffer", "buffered", len(c.send))
		c.closeLocked()
		return errSlowClient
	}
}

// markRegistered moves the client from Connecting to Registered. It fails
// when the client was closed in the meantime.
func (c *Client) markRegistered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != chat.StateConnecting {
		return false
	}
	c.state = chat.StateRegistered
	return true
}

// Close stops the client. Queued events are still flushed by the write pump,
// which then sends a close frame. Calling Close more than once is safe.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.state == chat.StateClosed {
		return
	}
	c.state = chat.StateClosed
	close(c.send)
	if c.onClose != nil {
		go c.onClose(c)
	}
}

// report queues an error event for err. Delivery failures are only logged.
func (c *Client) report(err error) {
	if sendErr := c.Send(chat.NewErrorEvent(err)); sendErr != nil {
		c.log.Debug("Could not report error to client", "reason", err, "error", sendErr)
	}
}

// reject reports err to the client and closes it.
func (c *Client) reject(err error) {
	c.report(err)
	c.Close()
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Error("Error setting initial read deadline", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Error("Error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs the reason a read failed. Every read error ends the pump.
func (c *Client) handleReadError(err error) {
	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn("Message exceeded maximum size", "max_bytes", c.maxMessageSize)
		return
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Info("Client disconnected", "reason", err)
		return
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Info("Client connection closed", "reason", err)
		return
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.log.Warn("Unexpected WebSocket error", "error", err)
		return
	}

	c.log.Warn("WebSocket read error", "error", err)
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.Allow() {
		c.log.Warn("Rate limit exceeded; discarding message",
			"burst", c.rateLimit.Burst,
			"interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processMessage decodes one inbound frame and hands it to the chat service.
// It returns true if the event was accepted.
func (c *Client) processMessage(raw []byte) bool {
	var evt chat.InboundEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		c.log.Warn("Invalid frame", "error", err)
		c.report(chat.ErrInvalidPayload)
		return false
	}

	if err := c.chat.Dispatch(c, evt); err != nil {
		c.log.Debug("Event rejected", "event", evt.Event, "error", err)
		return false
	}
	return true
}

func (c *Client) readPump() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Recovered from panic in readPump", "panic", r)
		}
		c.chat.Disconnect(c)
		c.Close()
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.checkRateLimit() {
			c.report(errRateLimited)
			continue
		}

		c.processMessage(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if r := recover(); r != nil {
			c.log.Error("Recovered from panic in writePump", "panic", r)
		}
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
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Error("Error closing connection", "error", err)
		}
	}
}

// handleMessage writes one queued event and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Error("Error setting write deadline", "error", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := c.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Debug("Error writing close message", "error", err)
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Error("Error setting write deadline for ping", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("Error writing ping message", "error", err)
		return false
	}
	return true
}
