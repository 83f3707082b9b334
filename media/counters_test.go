package media

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
)

func packet(seq uint16, marker bool) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{Version: 2, SequenceNumber: seq, Marker: marker},
		Payload: make([]byte, 88),
	}
}

func TestStreamCounter(t *testing.T) {
	tests := []struct {
		name    string
		video   bool
		packets []*rtp.Packet
		want    Snapshot
	}{
		{
			name:    "given consecutive video packets when counted then every marker is a frame",
			video:   true,
			packets: []*rtp.Packet{packet(1, false), packet(2, true), packet(3, false), packet(4, true)},
			want:    Snapshot{Packets: 4, Bytes: 400, Frames: 2},
		},
		{
			name:    "given a sequence gap when counted then packets are lost and the frame is dropped",
			video:   true,
			packets: []*rtp.Packet{packet(1, true), packet(2, false), packet(5, true), packet(6, true)},
			want:    Snapshot{Packets: 4, PacketsLost: 2, Bytes: 400, Frames: 2, FramesDropped: 1},
		},
		{
			name:    "given a wrapping sequence when counted then nothing is lost",
			video:   true,
			packets: []*rtp.Packet{packet(65534, false), packet(65535, true), packet(0, true)},
			want:    Snapshot{Packets: 3, Bytes: 300, Frames: 2},
		},
		{
			name:    "given a late packet when counted then it is not loss",
			video:   true,
			packets: []*rtp.Packet{packet(10, true), packet(9, true), packet(11, true)},
			want:    Snapshot{Packets: 3, Bytes: 300, Frames: 3},
		},
		{
			name:    "given a sequence restart when counted then nothing is lost",
			video:   true,
			packets: []*rtp.Packet{packet(10, true), packet(30000, true), packet(30001, true)},
			want:    Snapshot{Packets: 3, Bytes: 300, Frames: 3},
		},
		{
			name:    "given audio packets when counted then no frames are counted",
			video:   false,
			packets: []*rtp.Packet{packet(1, true), packet(3, true)},
			want:    Snapshot{Packets: 2, PacketsLost: 1, Bytes: 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Counters{}
			s := newStreamCounter(c, tt.video)
			for _, p := range tt.packets {
				s.count(p)
			}
			assert.Equal(t, tt.want, c.Snapshot())
		})
	}
}
