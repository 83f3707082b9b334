package media

import "time"

// Quality is the media quality measured over one sampling interval.
type Quality struct {
	FPS               float64 `json:"fps"`
	BitrateKbps       float64 `json:"bitrateKbps"`
	DroppedFrames     uint64  `json:"droppedFrames"`
	PacketLossPercent float64 `json:"packetLossPercent"`
}

// Sampler turns cumulative counters into per-interval quality. The first
// sample sets the baseline and reports zero quality.
type Sampler struct {
	prev   Snapshot
	prevAt time.Time
	primed bool
}

// Sample measures the quality since the previous sample. A counter that went
// backwards is treated as reset and contributes zero.
func (s *Sampler) Sample(cur Snapshot, now time.Time) Quality {
	prev, prevAt, primed := s.prev, s.prevAt, s.primed
	s.prev, s.prevAt, s.primed = cur, now, true

	if !primed {
		return Quality{}
	}
	elapsed := now.Sub(prevAt).Seconds()
	if elapsed <= 0 {
		return Quality{}
	}

	frames := delta(cur.Frames, prev.Frames)
	bytes := delta(cur.Bytes, prev.Bytes)
	packets := delta(cur.Packets, prev.Packets)
	lost := delta(cur.PacketsLost, prev.PacketsLost)

	q := Quality{
		FPS:           float64(frames) / elapsed,
		BitrateKbps:   float64(bytes*8) / 1000 / elapsed,
		DroppedFrames: delta(cur.FramesDropped, prev.FramesDropped),
	}
	if total := lost + packets; total > 0 {
		q.PacketLossPercent = float64(lost) / float64(total) * 100
	}
	return q
}

// Reset drops the baseline so the next sample starts over.
func (s *Sampler) Reset() {
	*s = Sampler{}
}

func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}
