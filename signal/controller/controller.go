// Package controller handles the lifecycle of one signaling connection.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/time/rate"
	"roomcast/metric"
	"roomcast/pkg/socket"
	"roomcast/signal/coordinator"
	"roomcast/types/client/request"
	"roomcast/types/message"
)

// ErrRateLimited is returned when a connection sends faster than allowed.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config limits the inbound message rate of each connection.
type Config struct {
	Rate  float64
	Burst int
}

// Controller reads requests from connections and hands them to the hub.
type Controller struct {
	config      Config
	coordinator coordinator.Coordinator
	metric      *metric.Metrics
	logger      *slog.Logger
}

// New creates a new instance of Controller.
func New(c Config, cod coordinator.Coordinator, m *metric.Metrics, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		config:      c,
		coordinator: cod,
		metric:      m,
		logger:      logger,
	}
}

// Process serves the connection until it is closed. The connection leaves its
// room when Process returns.
func (c *Controller) Process(ctx context.Context, conn socket.Socket) error {
	c.metric.IncrementWebSocketConnections()
	defer c.metric.DecrementWebSocketConnections()

	// 01. Build the context for control response goroutine
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 02. Register the connection record
	session := coordinator.NewSession(shortuuid.New())
	if err := c.coordinator.Register(session); err != nil {
		return fmt.Errorf("failed to register connection: %w", err)
	}
	defer c.coordinator.Unregister(session)
	logger := c.logger.With("connection", session.ID)
	logger.Info("connection opened")

	go c.sendResponse(ctx, cancel, conn, session, logger)

	err := c.receiveRequest(ctx, conn, session.ID, logger)
	logger.Info("connection closed", "reason", err)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sendResponse writes queued server messages to the connection.
func (c *Controller) sendResponse(ctx context.Context, cancel context.CancelFunc, conn socket.Socket, s *coordinator.Session, logger *slog.Logger) {
	defer cancel()
	err := socket.WritePump(ctx, conn, s.Send(), socket.PingPeriod)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("write pump stopped", "error", err)
	}
	// Unblocks the pending read in receiveRequest.
	_ = conn.Close()
}

// receiveRequest receives requests from the websocket and submits them to the hub.
func (c *Controller) receiveRequest(ctx context.Context, conn socket.Socket, connectionID string, logger *slog.Logger) error {
	lim := rate.NewLimiter(rate.Limit(c.config.Rate), c.config.Burst)
	for {
		var req request.Common
		if err := conn.ReadJSON(&req); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if socket.IsUnexpectedClose(err) {
				return fmt.Errorf("failed to read request: %w", err)
			}
			return nil
		}
		if !lim.Allow() {
			return ErrRateLimited
		}

		msg, decodeErr := request.Decode(req)
		if decodeErr != nil && req.RequestID == 0 {
			logger.Debug("dropping malformed request", "type", req.Type, "error", decodeErr)
			continue
		}
		// Malformed requests that expect an ack still go to the hub to be rejected.
		if err := c.coordinator.Submit(message.Request{
			ConnectionID: connectionID,
			RequestID:    req.RequestID,
			Message:      msg,
			Err:          decodeErr,
		}); err != nil {
			return err
		}
	}
}
