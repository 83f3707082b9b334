package media

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

// maxGap bounds the sequence jump counted as loss. Larger jumps restart the
// stream and jumps backwards within maxGap are late packets.
const maxGap = 1 << 10

// Snapshot is a copy of cumulative transport counters.
type Snapshot struct {
	Packets       uint64
	PacketsLost   uint64
	Bytes         uint64
	Frames        uint64
	FramesDropped uint64
}

// Counters accumulates received media. It is safe for concurrent use.
type Counters struct {
	packets       atomic.Uint64
	packetsLost   atomic.Uint64
	bytes         atomic.Uint64
	frames        atomic.Uint64
	framesDropped atomic.Uint64
}

// Snapshot returns the current values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Packets:       c.packets.Load(),
		PacketsLost:   c.packetsLost.Load(),
		Bytes:         c.bytes.Load(),
		Frames:        c.frames.Load(),
		FramesDropped: c.framesDropped.Load(),
	}
}

// streamCounter tracks one received RTP stream. It is used by a single reader.
type streamCounter struct {
	counters *Counters
	video    bool
	started  bool
	lastSeq  uint16
	damaged  bool
}

func newStreamCounter(c *Counters, video bool) *streamCounter {
	return &streamCounter{counters: c, video: video}
}

func (s *streamCounter) count(packet *rtp.Packet) {
	s.counters.packets.Add(1)
	s.counters.bytes.Add(uint64(packet.MarshalSize()))

	switch gap := packet.SequenceNumber - s.lastSeq - 1; {
	case !s.started:
		s.started = true
		s.lastSeq = packet.SequenceNumber
	case gap >= 1<<16-maxGap:
		// late or duplicate packet
	case gap > 0 && gap < maxGap:
		s.counters.packetsLost.Add(uint64(gap))
		s.damaged = true
		s.lastSeq = packet.SequenceNumber
	default:
		s.lastSeq = packet.SequenceNumber
	}

	if !s.video || !packet.Marker {
		return
	}
	// The marker bit closes a video frame.
	if s.damaged {
		s.counters.framesDropped.Add(1)
		s.damaged = false
		return
	}
	s.counters.frames.Add(1)
}
