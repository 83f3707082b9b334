package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// StaticCapturer sends whatever RTP is written into its tracks.
type StaticCapturer struct {
	Video *webrtc.TrackLocalStaticRTP
	Audio *webrtc.TrackLocalStaticRTP
}

// NewStaticCapturer creates a VP8 video and an Opus audio track in streamID.
func NewStaticCapturer(streamID string) (*StaticCapturer, error) {
	video, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}
	audio, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}
	return &StaticCapturer{Video: video, Audio: audio}, nil
}

// Tracks implements Capturer.
func (c *StaticCapturer) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{c.Video, c.Audio}
}

// Forward copies RTP packets read from conn into track until ctx is done or
// conn fails.
func Forward(ctx context.Context, conn net.PacketConn, track *webrtc.TrackLocalStaticRTP) error {
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	buf := make([]byte, 1500)
	packet := &rtp.Packet{}
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read rtp: %w", err)
		}
		if err := packet.Unmarshal(buf[:n]); err != nil {
			continue
		}
		if err := track.WriteRTP(packet); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			return fmt.Errorf("failed to write rtp: %w", err)
		}
	}
}
