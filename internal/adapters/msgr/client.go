// Package msgr connects the coordinator to the messaging gateway: the
// application's end-to-end message channel doubles as the call
// signaling transport, so there is no separate signaling server.
package msgr

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/akorolev/Dial/internal/core"
	"github.com/akorolev/Dial/internal/domain"
	"github.com/akorolev/Dial/internal/signal"
)

var ErrBackpressure = errors.New("backpressure")

const (
	writeTimeout   = 5 * time.Second
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Conn is an indirection over *websocket.Conn to ease testing.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer establishes one gateway connection.
type Dialer func(ctx context.Context) (Conn, error)

// GatewayDialer dials the real messaging gateway over websocket,
// identifying this client by its peer id.
func GatewayDialer(url string, self domain.PeerID) Dialer {
	return func(ctx context.Context) (Conn, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url+"?self="+string(self), nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Client implements core.Transport over a persistent gateway
// connection with automatic reconnect. Outbound envelopes queue in a
// bounded buffer that survives reconnects; the gateway owns delivery
// and retry beyond that.
type Client struct {
	dial    Dialer
	clk     clock.Clock
	handler func(signal.Envelope)

	send      chan []byte
	connected atomic.Bool
}

var _ core.Transport = (*Client)(nil)

func NewClient(dial Dialer, clk clock.Clock, handler func(signal.Envelope)) *Client {
	return &Client{
		dial:    dial,
		clk:     clk,
		handler: handler,
		send:    make(chan []byte, 256),
	}
}

func (c *Client) Connected() bool { return c.connected.Load() }

// Send queues an envelope for the gateway. It fails fast on a full
// queue rather than blocking the caller.
func (c *Client) Send(ctx context.Context, env signal.Envelope) error {
	data, err := signal.Encode(env)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBackpressure
	}
}

// Run dials and pumps until ctx is cancelled, reconnecting with capped
// exponential backoff.
func (c *Client) Run(ctx context.Context) {
	backoff := initialBackoff
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("module", "msgr").Dur("retry_in", backoff).Msg("gateway dial failed")
			select {
			case <-ctx.Done():
				return
			case <-c.clk.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		backoff = initialBackoff
		c.connected.Store(true)
		log.Info().Str("module", "msgr").Msg("gateway connected")
		c.pump(ctx, conn)
		c.connected.Store(false)
		log.Warn().Str("module", "msgr").Msg("gateway disconnected")

		if ctx.Err() != nil {
			return
		}
	}
}

// pump runs the read and write loops for one connection and returns
// when either side fails.
func (c *Client) pump(ctx context.Context, conn Conn) {
	defer conn.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.readPump(conn)
	}()

	c.writePump(ctx, conn, done)
	<-done
}

func (c *Client) readPump(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "msgr").Msg("read pump closing")
			return
		}
		env, err := signal.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "msgr").Msg("bad envelope from gateway")
			continue
		}
		c.handler(env)
	}
}

func (c *Client) writePump(ctx context.Context, conn Conn, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case data := <-c.send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "msgr").Msg("write pump set deadline")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "msgr").Msg("write pump write error")
				// Requeue for the next connection if there is room.
				select {
				case c.send <- data:
				default:
				}
				return
			}
		}
	}
}
