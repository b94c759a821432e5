package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dmchat/internal/pkg/logx"
)

const (
	// timeout for a single frame write.
	writeWait = 10 * time.Second

	// maximum size of an inbound frame. Clients have nothing to say on this channel
	// beyond control frames, so this stays small.
	maxInboundSize = 4096

	// WsCloseCodeSessionReplaced tells the client its session moved to a newer connection.
	WsCloseCodeSessionReplaced = 4001
)

var (
	// ErrClientClosed is returned by Push after the connection has been closed.
	ErrClientClosed = errors.New("client connection closed")

	// ErrSendQueueFull is returned by Push when the client is not draining its queue.
	ErrSendQueueFull = errors.New("client send queue full")
)

// ClientConfig tunes per-connection buffering and liveness checks.
type ClientConfig struct {
	// SendBuffer is the capacity of the outbound frame queue.
	SendBuffer int

	// Heartbeat enables ping/pong liveness: a connection that misses pongs for
	// PongWait is treated as disconnected.
	Heartbeat bool

	// PongWait is how long a read may stall before the connection is considered dead.
	PongWait time.Duration
}

// DefaultClientConfig returns the settings used when none are configured.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		SendBuffer: 256,
		Heartbeat:  true,
		PongWait:   60 * time.Second,
	}
}

// Client is a live WebSocket connection. It implements presence.Handle.
//
// Frames are queued by Push from any goroutine and written by WritePump, the only
// goroutine that writes to the socket, so per-connection order is queue order.
type Client struct {
	id     string
	userID string

	conn *websocket.Conn
	cfg  ClientConfig

	send chan []byte

	done        chan struct{}
	closeOnce   sync.Once
	closeReason string

	logger zerolog.Logger
}

// NewClient wraps an upgraded connection. userID may be empty for anonymous clients.
func NewClient(conn *websocket.Conn, userID string, cfg ClientConfig) *Client {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultClientConfig().SendBuffer
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultClientConfig().PongWait
	}

	id := uuid.NewString()

	return &Client{
		id:     id,
		userID: userID,
		conn:   conn,
		cfg:    cfg,
		send:   make(chan []byte, cfg.SendBuffer),
		done:   make(chan struct{}),
		logger: logx.Logger().With().
			Str("connection_id", id).
			Str("user_id", userID).
			Logger(),
	}
}

// ID returns the server-assigned connection id.
func (c *Client) ID() string { return c.id }

// UserID returns the user id taken from the handshake, or "" for anonymous clients.
func (c *Client) UserID() string { return c.userID }

// Push queues frame without blocking.
func (c *Client) Push(frame []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("client send queue full, dropping frame")
		return ErrSendQueueFull
	}
}

// Close asks WritePump to send a close frame carrying reason and shut the socket.
// Only the first call has an effect.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		close(c.done)
	})
}

// Done is closed once the client has been asked to close.
func (c *Client) Done() <-chan struct{} { return c.done }

// ReadPump consumes inbound frames until the connection fails, then calls onDisconnect
// exactly once and closes the client. It blocks for the lifetime of the connection.
func (c *Client) ReadPump(onDisconnect func()) {
	defer func() {
		onDisconnect()
		c.Close("")
	}()

	c.conn.SetReadLimit(maxInboundSize)

	if c.cfg.Heartbeat {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
			c.logger.Error().Err(err).Msg("failed to set read deadline")
			return
		}

		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		})
	}

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}

		c.logger.Debug().Int("bytes", len(payload)).Msg("ignoring inbound frame")
	}
}

// WritePump drains the send queue onto the socket and, with heartbeat enabled, pings
// the client. It closes the socket when it returns.
func (c *Client) WritePump() {
	var tick <-chan time.Time
	if c.cfg.Heartbeat {
		ticker := time.NewTicker(c.cfg.PongWait * 9 / 10)
		defer ticker.Stop()
		tick = ticker.C
	}

	defer func() {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("socket close")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				c.Close("")
				return
			}

		case <-tick:
			if !c.write(websocket.PingMessage, nil) {
				c.Close("")
				return
			}

		case <-c.done:
			c.writeClose()
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.logger.Debug().Err(err).Int("message_type", messageType).Msg("write failed")
		return false
	}

	return true
}

// writeClose sends the close frame matching the recorded reason.
func (c *Client) writeClose() {
	code := websocket.CloseNormalClosure
	switch c.closeReason {
	case ReasonSuperseded:
		code = WsCloseCodeSessionReplaced
	case ReasonShutdown:
		code = websocket.CloseGoingAway
	}

	c.write(websocket.CloseMessage, websocket.FormatCloseMessage(code, c.closeReason))
}
