package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"roomcast/client"
	"roomcast/logging"
	"roomcast/media"
	"roomcast/types/client/request"
)

type streamOptions struct {
	peerOptions
	video      bool
	audio      bool
	rtpVideo   string
	rtpAudio   string
	resolution string
	fps        int
	bitrate    int
}

func newStreamCommand(w io.Writer) *cobra.Command {
	o := &streamOptions{}
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Join a room and stream media to its admin",
		Long: `Join a room as a source and send the RTP packets received on local UDP ports
to the room admin.

Examples:
  roomcast stream --room standup --password secret --rtp-video 127.0.0.1:5004
  ffmpeg -re -i input.mp4 -an -c:v libvpx -f rtp rtp://127.0.0.1:5004`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := logging.Init(w, o.debug)
			ctx := cmd.Context()

			capturer, err := media.NewStaticCapturer(o.name)
			if err != nil {
				return err
			}
			if err := forward(ctx, o.rtpVideo, capturer.Video, logger); err != nil {
				return err
			}
			if err := forward(ctx, o.rtpAudio, capturer.Audio, logger); err != nil {
				return err
			}

			settings := request.UpdateStreamSettings{RoomID: o.room}
			if cmd.Flags().Changed("resolution") {
				settings.Resolution = &o.resolution
			}
			if cmd.Flags().Changed("fps") {
				settings.FPS = &o.fps
			}
			if cmd.Flags().Changed("bitrate") {
				settings.Bitrate = &o.bitrate
			}
			return runPeer(ctx, w, &o.peerOptions, capturer, logger, func(ctx context.Context, c *client.Client) error {
				return joinRoom(ctx, w, c, o, settings)
			})
		},
	}
	o.bind(cmd.Flags(), "source")
	cmd.Flags().BoolVar(&o.video, "video", true, "announce video to the room")
	cmd.Flags().BoolVar(&o.audio, "audio", true, "announce audio to the room")
	cmd.Flags().StringVar(&o.rtpVideo, "rtp-video", "", "UDP address to read VP8 RTP from")
	cmd.Flags().StringVar(&o.rtpAudio, "rtp-audio", "", "UDP address to read Opus RTP from")
	cmd.Flags().StringVar(&o.resolution, "resolution", "", "announced resolution, e.g. 1080p")
	cmd.Flags().IntVar(&o.fps, "fps", 0, "announced frame rate")
	cmd.Flags().IntVar(&o.bitrate, "bitrate", 0, "announced bitrate in kbps")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

// forward feeds track from the UDP address. An empty address leaves the track silent.
func forward(ctx context.Context, addr string, track *webrtc.TrackLocalStaticRTP, logger *slog.Logger) error {
	if addr == "" {
		return nil
	}
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for rtp on %s: %w", addr, err)
	}
	go func() {
		if err := media.Forward(ctx, conn, track); err != nil {
			logger.Error("rtp forwarding stopped", "addr", addr, "error", err)
		}
	}()
	return nil
}

func joinRoom(ctx context.Context, w io.Writer, c *client.Client, o *streamOptions, settings request.UpdateStreamSettings) error {
	ack, err := c.Call(ctx, request.JoinRoom{RoomID: o.room, Password: o.password})
	if err != nil {
		return fmt.Errorf("failed to join room %s: %w", o.room, err)
	}
	status := request.UpdateStreamStatus{RoomID: o.room, HasVideo: o.video, HasAudio: o.audio}
	if _, err := c.Call(ctx, status); err != nil {
		return fmt.Errorf("failed to update stream status: %w", err)
	}
	if settings.Resolution != nil || settings.FPS != nil || settings.Bitrate != nil {
		if _, err := c.Call(ctx, settings); err != nil {
			return fmt.Errorf("failed to update stream settings: %w", err)
		}
	}
	fmt.Fprintf(w, "joined room %s with %d participant(s)\n", ack.RoomID, len(ack.Participants))
	return nil
}
