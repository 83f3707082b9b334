// Package signal wires the signaling server together.
package signal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"roomcast/database/memory"
	"roomcast/metric"
	"roomcast/signal/controller"
	"roomcast/signal/coordinator"
	"roomcast/signal/handler"
	"roomcast/signal/middleware"
)

const (
	wsPath     = "/ws"
	healthPath = "/health"
)

// Signal contains the server and configuration.
type Signal struct {
	server  *http.Server
	conf    Config
	hub     *coordinator.Hub
	metrics *metric.Metrics
	logger  *slog.Logger
}

// New creates a new instance of Signal.
func New(config Config, logger *slog.Logger) *Signal {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := metric.New(metric.Config{
		Port: config.MetricsPort,
		Path: config.MetricsPath,
	})
	hub := coordinator.New(memory.New(), metrics, logger)
	con := controller.New(controller.Config{Rate: config.Rate, Burst: config.Burst}, hub, metrics, logger)

	mux := http.NewServeMux()
	mux.Handle(wsPath, handler.New(con))
	mux.Handle(healthPath, middleware.Set(controller.NewHealth(hub), middleware.NewCORS(config.AllowedOrigin)))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		ReadHeaderTimeout: 2 * time.Second,
		Handler:           middleware.Set(mux, middleware.NewLogger(logger)),
	}
	return &Signal{
		server:  srv,
		conf:    config,
		hub:     hub,
		metrics: metrics,
		logger:  logger,
	}
}

// Handler returns the root HTTP handler.
func (s *Signal) Handler() http.Handler {
	return s.server.Handler
}

// Hub returns the event loop of the server.
func (s *Signal) Hub() *coordinator.Hub {
	return s.hub
}

// Start runs the signal server until ctx is done.
func (s *Signal) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	if s.conf.MetricsPort != 0 {
		s.metrics.RegisterMetrics()
		s.metrics.UpdateSystemMetrics(ctx, 5*time.Second)
		s.metrics.Start()
		defer func() {
			if err := s.metrics.Stop(); err != nil {
				s.logger.Warn("failed to stop metrics server", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("failed to shut down server", "error", err)
		}
	}()

	var err error
	if s.conf.CertFile == "" || s.conf.KeyFile == "" {
		s.logger.Info("starting server without TLS", "port", s.conf.Port)
		err = s.server.ListenAndServe()
	} else {
		s.logger.Info("starting server with TLS", "port", s.conf.Port)
		err = s.server.ListenAndServeTLS(s.conf.CertFile, s.conf.KeyFile)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
