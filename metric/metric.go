// Package metric provides Prometheus metrics collection and monitoring.
package metric

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// Metrics contains the Prometheus metrics server and registered custom metrics.
type Metrics struct {
	httpServer           *http.Server
	config               Config
	registry             *prometheus.Registry
	webSocketConnections prometheus.Gauge
	rooms                prometheus.Gauge
	participants         prometheus.Gauge
	relayedSignals       *prometheus.CounterVec
	registryErrors       *prometheus.CounterVec
	peerSessions         *prometheus.GaugeVec
	peerQuality          *prometheus.GaugeVec
	cpuUsage             prometheus.Gauge
	memoryUsage          prometheus.Gauge
}

// New creates a new Metrics instance with the specified configuration.
func New(config Config) *Metrics {
	return &Metrics{
		config:   config.withDefaults(),
		registry: prometheus.NewRegistry(),
		webSocketConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "websocket_connections_total",
			Help: "Current number of WebSocket connections.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rooms_total",
			Help: "Current number of live rooms.",
		}),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "participants_total",
			Help: "Current number of participants across all rooms.",
		}),
		relayedSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayed_signals_total",
			Help: "Number of offers, answers and ICE candidates relayed.",
		}, []string{"kind"}),
		registryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_errors_total",
			Help: "Number of rejected registry operations.",
		}, []string{"reason"}),
		peerSessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "peer_sessions",
			Help: "Current number of media sessions by negotiation state.",
		}, []string{"state"}),
		peerQuality: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "peer_quality",
			Help: "Latest connection quality sample of a media session.",
		}, []string{"peer", "measure"}), // Measure: "fps", "bitrate_kbps", "dropped_frames" or "packet_loss_percent"
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpu_usage_percentage",
			Help: "CPU usage percentage.",
		}),
		memoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memory_usage_bytes",
			Help: "Current memory usage in bytes.",
		}),
	}
}

// RegisterMetrics registers custom metrics with Prometheus.
func (m *Metrics) RegisterMetrics() {
	m.registry.MustRegister(
		m.webSocketConnections,
		m.rooms,
		m.participants,
		m.relayedSignals,
		m.registryErrors,
		m.peerSessions,
		m.peerQuality,
		m.cpuUsage,
		m.memoryUsage,
	)
}

// Start initializes and starts the metrics HTTP server.
func (m *Metrics) Start() {
	mux := http.NewServeMux()
	mux.Handle(m.config.Path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	m.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", m.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 2 * time.Second,
	}

	go func() {
		slog.Info("starting metrics server", "port", m.config.Port, "path", m.config.Path)
		if err := m.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (m *Metrics) Stop() error {
	if m.httpServer != nil {
		slog.Info("stopping metrics server", "port", m.config.Port)
		return m.httpServer.Close()
	}
	return nil
}

// UpdateSystemMetrics collects CPU and memory usage every interval until ctx is done.
func (m *Metrics) UpdateSystemMetrics(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			m.collectSystemMetrics()
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (m *Metrics) collectSystemMetrics() {
	if vm, err := mem.VirtualMemory(); err == nil {
		m.memoryUsage.Set(float64(vm.Used))
	} else {
		slog.Debug("failed to read memory usage", "error", err)
	}
	// Zero interval compares against the previous call.
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		m.cpuUsage.Set(percents[0])
	} else if err != nil {
		slog.Debug("failed to read cpu usage", "error", err)
	}
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncrementWebSocketConnections increments the WebSocket connection count.
func (m *Metrics) IncrementWebSocketConnections() {
	m.webSocketConnections.Inc()
}

// DecrementWebSocketConnections decrements the WebSocket connection count.
func (m *Metrics) DecrementWebSocketConnections() {
	m.webSocketConnections.Dec()
}

// SetRoomStats sets the room and participant gauges.
func (m *Metrics) SetRoomStats(rooms, participants int) {
	m.rooms.Set(float64(rooms))
	m.participants.Set(float64(participants))
}

// IncrementRelayedSignals counts one relayed signal of the given kind.
func (m *Metrics) IncrementRelayedSignals(kind string) {
	m.relayedSignals.WithLabelValues(kind).Inc()
}

// IncrementRegistryErrors counts one rejected registry operation.
func (m *Metrics) IncrementRegistryErrors(reason string) {
	m.registryErrors.WithLabelValues(reason).Inc()
}

// SetPeerSessions sets the number of media sessions per state.
func (m *Metrics) SetPeerSessions(counts map[string]int) {
	m.peerSessions.Reset()
	for state, n := range counts {
		m.peerSessions.WithLabelValues(state).Set(float64(n))
	}
}

// UpdatePeerQuality records the latest quality sample of a peer.
func (m *Metrics) UpdatePeerQuality(peer string, fps, bitrateKbps, droppedFrames, packetLossPercent float64) {
	m.peerQuality.WithLabelValues(peer, "fps").Set(fps)
	m.peerQuality.WithLabelValues(peer, "bitrate_kbps").Set(bitrateKbps)
	m.peerQuality.WithLabelValues(peer, "dropped_frames").Set(droppedFrames)
	m.peerQuality.WithLabelValues(peer, "packet_loss_percent").Set(packetLossPercent)
}

// DeletePeerQuality drops the series of a closed peer.
func (m *Metrics) DeletePeerQuality(peer string) {
	m.peerQuality.DeletePartialMatch(prometheus.Labels{"peer": peer})
}
