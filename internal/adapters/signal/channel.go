// Package signal implements the client side of the voice signaling
// channel: one websocket to the backend, a write pump draining a send
// queue and a read pump delivering frames in arrival order to the
// session state machine, the channel's sole consumer.
package signal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/edenward/carevoice/internal/core"
	"github.com/edenward/carevoice/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("channel closed")
	ErrNotOpen      = errors.New("channel not open")
)

const writeWait = 5 * time.Second

type outFrame struct {
	kind core.FrameKind
	data core.Frame
}

// Channel is a core.SignalChannel over gorilla/websocket.
type Channel struct {
	url     string
	dialer  *websocket.Dialer
	conn    *websocket.Conn
	send    chan outFrame
	inbound chan core.InboundFrame
	done    chan struct{}

	mu     sync.Mutex
	opened bool
	closed bool
}

func NewChannel(endpointURL string) *Channel {
	return &Channel{
		url:     endpointURL,
		dialer:  websocket.DefaultDialer,
		send:    make(chan outFrame, 32),
		inbound: make(chan core.InboundFrame, 64),
		done:    make(chan struct{}),
	}
}

// Open dials the backend and starts both pumps. A dial failure is a
// ConnectionError; the channel is unusable afterwards.
func (c *Channel) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.NewVoiceError(domain.ConnectionError, ErrClosed)
	}
	if c.opened {
		c.mu.Unlock()
		return domain.NewVoiceError(domain.ConnectionError, errors.New("already open"))
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return domain.NewVoiceError(domain.ConnectionError, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return domain.NewVoiceError(domain.ConnectionError, ErrClosed)
	}
	c.conn = conn
	c.opened = true
	c.mu.Unlock()

	log.Info().Str("module", "signal").Str("url", c.url).Msg("channel open")
	go c.writePump()
	go c.readPump()
	return nil
}

func (c *Channel) Inbound() <-chan core.InboundFrame { return c.inbound }

// TrySend enqueues a frame without blocking. No backpressure handling
// beyond the transport's own buffering.
func (c *Channel) TrySend(kind core.FrameKind, f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.opened {
		return ErrNotOpen
	}
	select {
	case c.send <- outFrame{kind: kind, data: f}:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close is idempotent and safe to call from any goroutine.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	close(c.done)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	log.Info().Str("module", "signal").Msg("channel closed")
}

func (c *Channel) writePump() {
	for {
		select {
		case <-c.done:
			log.Info().Str("module", "signal").Msg("writePump done")
			return
		case f := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			msgType := websocket.TextMessage
			if f.kind == core.FrameBinary {
				msgType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(msgType, f.data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (c *Channel) readPump() {
	// Closing inbound is how the consumer learns the transport dropped.
	defer func() {
		log.Info().Str("module", "signal").Msg("readPump closing")
		c.Close()
		close(c.inbound)
	}()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
			}
			return
		}
		kind := core.FrameText
		if msgType == websocket.BinaryMessage {
			kind = core.FrameBinary
		}
		select {
		case c.inbound <- core.InboundFrame{Kind: kind, Data: data}:
		case <-c.done:
			return
		}
	}
}
