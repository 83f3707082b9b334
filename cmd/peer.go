package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"roomcast/broker"
	"roomcast/client"
	"roomcast/coordinator"
	"roomcast/media"
	"roomcast/metric"
	"roomcast/types/client/request"
	"roomcast/types/client/response"
)

const (
	// DefaultServer is the signaling endpoint peers dial by default.
	DefaultServer = "ws://localhost:7070/ws"

	reportInterval = 5 * time.Second
	leaveTimeout   = 2 * time.Second
)

var errKicked = errors.New("kicked from the room")

// peerOptions are the flags shared by view and stream.
type peerOptions struct {
	server      string
	room        string
	password    string
	name        string
	stun        string
	turnUser    string
	turnPass    string
	udpMin      string
	udpMax      string
	metricsPort int
	debug       bool
}

func (o *peerOptions) bind(fs *pflag.FlagSet, name string) {
	fs.StringVar(&o.server, "server", DefaultServer, "signaling server url")
	fs.StringVar(&o.room, "room", "", "room id")
	fs.StringVar(&o.password, "password", "", "room password")
	fs.StringVar(&o.name, "name", name, "display name")
	fs.StringVar(&o.stun, "stun", envOr("STUN_SERVER", media.DefaultICEServer), "STUN or TURN server url")
	fs.StringVar(&o.turnUser, "turn-user", os.Getenv("TURN_USERNAME"), "TURN username")
	fs.StringVar(&o.turnPass, "turn-pass", os.Getenv("TURN_PASSWORD"), "TURN password")
	fs.StringVar(&o.udpMin, "udp-min", "", "minimum UDP port for WebRTC")
	fs.StringVar(&o.udpMax, "udp-max", "", "maximum UDP port for WebRTC")
	fs.IntVar(&o.metricsPort, "metrics-port", 0, "metrics port, 0 disables metrics")
	fs.BoolVar(&o.debug, "debug", false, "debug mode")
}

func (o *peerOptions) mediaConfig() media.Config {
	return media.Config{
		ICEServers:   []string{o.stun},
		TURNUsername: o.turnUser,
		TURNPassword: o.turnPass,
		MinUdpPort:   o.udpMin,
		MaxUdpPort:   o.udpMax,
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// joinFunc enters the room once the signaling channel is up.
type joinFunc func(ctx context.Context, c *client.Client) error

// runPeer connects to the server, joins the room and negotiates media until
// ctx is done, the server goes away or the peer is kicked.
func runPeer(ctx context.Context, w io.Writer, o *peerOptions, capturer media.Capturer, logger *slog.Logger, join joinFunc) error {
	b := broker.New()
	notices := b.Subscribe(16, broker.Notice, broker.Control)
	defer b.Unsubscribe(notices)

	c, err := client.Dial(ctx, o.server, b, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	logger = logger.With("connection", c.ID())

	factory, err := media.NewFactory(o.mediaConfig(), capturer, nil, logger)
	if err != nil {
		return err
	}

	var metrics *metric.Metrics
	if o.metricsPort != 0 {
		metrics = metric.New(metric.Config{Port: o.metricsPort, Path: metric.DefaultMetricsPath})
		metrics.RegisterMetrics()
		metrics.UpdateSystemMetrics(ctx, reportInterval)
		metrics.Start()
		defer func() {
			if err := metrics.Stop(); err != nil {
				logger.Warn("failed to stop metrics server", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	coord := coordinator.New(coordinator.Config{}, c, factory, b, metrics, logger)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = coord.Run(ctx)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	if err := join(ctx, c); err != nil {
		return err
	}
	if err := coord.CaptureReady(); err != nil {
		return err
	}
	defer leave(c, o.room, logger)

	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.Done():
			return c.Err()
		case msg := <-notices.Receive():
			if err := report(w, logger, msg); err != nil {
				return err
			}
		case <-ticker.C:
			reportQuality(logger, coord)
		}
	}
}

func leave(c *client.Client, roomID string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if _, err := c.Call(ctx, request.LeaveRoom{RoomID: roomID}); err != nil {
		logger.Debug("failed to leave room", "room", roomID, "error", err)
	}
}

// report prints a server notice. It returns errKicked once the peer was
// removed from the room.
func report(w io.Writer, logger *slog.Logger, msg any) error {
	switch m := msg.(type) {
	case response.UserJoined:
		fmt.Fprintf(w, "%s joined (video: %t, audio: %t)\n", m.Participant.ID, m.Participant.HasVideo, m.Participant.HasAudio)
	case response.UserLeft:
		fmt.Fprintf(w, "%s left\n", m.ParticipantID)
	case response.SettingsUpdated:
		fmt.Fprintf(w, "%s streams %s at %d fps, %d kbps\n", m.ParticipantID, m.Settings.Resolution, m.Settings.FPS, m.Settings.Bitrate)
	case response.KickSuccess:
		fmt.Fprintf(w, "%s was kicked\n", m.TargetID)
	case response.AdminAssigned:
		fmt.Fprintf(w, "you are now the admin of %s\n", m.RoomID)
	case response.Kicked:
		return errKicked
	case coordinator.SessionFailed:
		fmt.Fprintf(w, "connection to %s failed after %d attempts: %s\n", m.PeerID, m.Attempts, m.Err)
	default:
		logger.Debug("unhandled notice", "message", fmt.Sprintf("%T", msg))
	}
	return nil
}

func reportQuality(logger *slog.Logger, coord *coordinator.Coordinator) {
	for peerID, state := range coord.Sessions() {
		q, _ := coord.Quality(peerID)
		logger.Info("session",
			"peer", peerID,
			"state", state.String(),
			"fps", fmt.Sprintf("%.1f", q.FPS),
			"bitrate_kbps", fmt.Sprintf("%.0f", q.BitrateKbps),
			"dropped_frames", q.DroppedFrames,
			"packet_loss_percent", fmt.Sprintf("%.2f", q.PacketLossPercent),
		)
	}
}
