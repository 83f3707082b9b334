// Package client is the signaling client used by controllers and sources.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"roomcast/broker"
	"roomcast/pkg/socket"
	"roomcast/types/client/request"
	"roomcast/types/client/response"
)

// Below are the errors returned by the client.
var (
	ErrClosed   = errors.New("signaling channel closed")
	ErrRejected = errors.New("request rejected")
)

const sendBuffer = 64

// Client is a signaling connection. Server messages other than acks are
// published to the broker by topic.
type Client struct {
	socket socket.Socket
	broker *broker.Broker
	logger *slog.Logger

	send      chan []byte
	nextID    atomic.Int64
	mu        sync.Mutex
	pending   map[int]chan response.Ack
	id        string
	welcome   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

// Dial connects to the signaling server at url and waits for the welcome
// message carrying the connection id.
func Dial(ctx context.Context, url string, b *broker.Broker, logger *slog.Logger) (*Client, error) {
	ws, err := socket.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	c := New(ws, b, logger)
	select {
	case <-c.welcome:
		return c, nil
	case <-c.done:
		return nil, c.Err()
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
}

// New starts a client over an established socket.
func New(s socket.Socket, b *broker.Broker, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		socket:  s,
		broker:  b,
		logger:  logger,
		send:    make(chan []byte, sendBuffer),
		pending: make(map[int]chan response.Ack),
		welcome: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// ID returns the connection id assigned by the server.
func (c *Client) ID() string {
	select {
	case <-c.welcome:
		return c.id
	case <-c.done:
		return ""
	}
}

// Done is closed when the signaling channel is lost.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the channel was lost.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Close closes the signaling channel.
func (c *Client) Close() {
	c.shutdown(ErrClosed)
}

// Emit sends a message without waiting for an acknowledgement.
func (c *Client) Emit(msg request.Message) error {
	return c.write(0, msg)
}

// Call sends a message and waits for its acknowledgement. A negative ack is
// returned together with ErrRejected.
func (c *Client) Call(ctx context.Context, msg request.Message) (response.Ack, error) {
	id := int(c.nextID.Add(1))
	wait := make(chan response.Ack, 1)
	c.mu.Lock()
	c.pending[id] = wait
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(id, msg); err != nil {
		return response.Ack{}, err
	}
	select {
	case ack := <-wait:
		if !ack.Success {
			return ack, fmt.Errorf("%s: %s: %w", msg.Type(), ack.Error, ErrRejected)
		}
		return ack, nil
	case <-c.done:
		return response.Ack{}, c.err
	case <-ctx.Done():
		return response.Ack{}, ctx.Err()
	}
}

func (c *Client) write(id int, msg request.Message) error {
	env, err := request.Encode(id, msg)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", msg.Type(), err)
	}
	select {
	case <-c.done:
		return c.err
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return c.err
	}
}

func (c *Client) writeLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-c.done
		cancel()
	}()
	if err := socket.WritePump(ctx, c.socket, c.send, socket.PingPeriod); err != nil && !errors.Is(err, context.Canceled) {
		c.shutdown(fmt.Errorf("failed to write: %w", err))
	}
}

func (c *Client) readLoop() {
	for {
		var env response.Common
		if err := c.socket.ReadJSON(&env); err != nil {
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		msg, err := response.Decode(env)
		if err != nil {
			c.logger.Debug("dropping unknown server message", "type", env.Type, "error", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg response.Message) {
	switch m := msg.(type) {
	case response.Welcome:
		if c.id == "" {
			c.id = m.ConnectionID
			close(c.welcome)
		}
	case response.Ack:
		c.mu.Lock()
		wait, ok := c.pending[m.RequestID]
		c.mu.Unlock()
		if !ok {
			return
		}
		select {
		case wait <- m:
		default:
		}
	default:
		c.broker.Publish(TopicOf(msg), msg)
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		if closeErr := c.socket.Close(); closeErr != nil {
			c.logger.Debug("failed to close socket", "error", closeErr)
		}
	})
}

// TopicOf returns the broker topic a server message is published on.
func TopicOf(msg response.Message) broker.Topic {
	switch msg.(type) {
	case response.ParticipantsUpdated:
		return broker.Membership
	case response.Relay:
		return broker.Signal
	case response.Kicked, response.AdminAssigned:
		return broker.Control
	}
	return broker.Notice
}
