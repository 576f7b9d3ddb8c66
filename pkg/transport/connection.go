package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// callback executed when a message is received.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

type OnCloseHandler func(connID uuid.UUID, err error)

type ConnectionConfig struct {
	// ReadTimeout is also the idle timeout: a peer that sends nothing
	// for this long is treated as gone.
	ReadTimeout  time.Duration
	PingInterval time.Duration
	SendBuffer   int
}

// ErrSendBufferFull reports that a frame could not be enqueued because the
// peer is not draining its connection. Callers treat it as a transport
// failure and close the connection.
var ErrSendBufferFull = errors.New("transport: send buffer full")

const (
	defaultReadTimeout  = 5 * time.Minute
	defaultPingInterval = 54 * time.Second
	defaultSendBuffer   = 256
	writeTimeout        = 10 * time.Second
)

// Connection represents a single, thread-safe WebSocket connection.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	closeOnce sync.Once
	cancel    context.CancelFunc

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, onMessage MessageHandler, onClose OnCloseHandler, logger *slog.Logger) *Connection {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaultReadTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaultPingInterval
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = defaultSendBuffer
	}

	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)
	connLogger := logger.With(slog.String("connID", id.String()))

	// Accounted for until Close runs, whether or not the pumps ever start.
	wg.Add(1)

	return &Connection{
		id:        id,
		conn:      conn,
		logger:    connLogger,
		config:    config,
		onMessage: onMessage,
		send:      make(chan []byte, config.SendBuffer),
		done:      make(chan struct{}),
		ctx:       connCtx,
		cancel:    cancel,
		onClose:   onClose,
		wg:        wg,
	}
}

func (c *Connection) Run() {
	go c.readPump()
	go c.writePump()

	c.logger.Debug("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		readCtx, cancelRead := context.WithTimeout(c.ctx, c.config.ReadTimeout)
		// Reader only yields data frames; control frames are handled by
		// the library.
		_, r, err := c.conn.Reader(readCtx)
		if err != nil {
			cancelRead()
			readErr = err
			return
		}
		message, err := io.ReadAll(r)
		cancelRead()
		if err != nil {
			readErr = err
			return
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, c.id, message)
		}
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
// and keeps the peer alive with periodic pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message := <-c.send:
			writeCtx, cancelWrite := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancelWrite()
			if err != nil {
				writeErr = err
				return
			}
		case <-ticker.C:
			pingCtx, cancelPing := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancelPing()
			if err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// TrySend enqueues a frame for delivery without blocking. It reports false
// when the connection is closed or the send buffer is full; the caller
// decides whether that failure warrants closing the connection.
func (c *Connection) TrySend(message []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// Close gracefully shuts down the connection and its resources. It is safe
// to call multiple times; only the first call runs the close handler.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		c.logger.Debug("Transport connection closing", slog.Any("reason", err))

		c.cancel() // Signal pumps to stop.
		if c.conn != nil {
			_ = c.conn.Close(websocket.StatusNormalClosure, "")
		}
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// Done returns a channel that is closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Connection) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
