package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/quickgpt/pkg/relay"
)

var (
	ErrChannelClosed = errors.New("websocket channel closed")
	ErrSendQueueFull = errors.New("websocket send queue full")
)

const (
	DefaultSendQueueSize = 256
	writeWait            = 10 * time.Second
)

// WSChannel adapts a websocket connection to relay.Channel. Sends are queued and
// written by a single writer goroutine; a full queue drops the connection.
type WSChannel struct {
	id     string
	conn   *websocket.Conn
	queue  chan []byte
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

var _ relay.Channel = &WSChannel{}

func NewWSChannel(conn *websocket.Conn, queueSize int) *WSChannel {
	if queueSize <= 0 {
		queueSize = DefaultSendQueueSize
	}
	id := uuid.NewString()
	logger := log.With().Str("component", "server").Str("channel_id", id).Logger()
	if conn != nil {
		logger = logger.With().Str("remote", conn.RemoteAddr().String()).Logger()
	}
	c := &WSChannel{
		id:     id,
		conn:   conn,
		queue:  make(chan []byte, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.writeLoop()
	return c
}

func (c *WSChannel) ID() string { return c.id }

func (c *WSChannel) Send(msg relay.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

// Done is closed once the channel has been closed.
func (c *WSChannel) Done() <-chan struct{} {
	return c.done
}

func (c *WSChannel) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *WSChannel) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

func (c *WSChannel) enqueue(b []byte) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	select {
	case c.queue <- b:
		return nil
	default:
		c.logger.Warn().Msg("ws send queue full, dropping connection")
		c.Close()
		return ErrSendQueueFull
	}
}

func (c *WSChannel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.queue:
			if c.conn == nil {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.logger.Warn().Err(err).Msg("ws write failed, dropping connection")
				c.Close()
				return
			}
		}
	}
}
