package coordinator

import (
	"context"
	"time"

	"roomcast/media"
)

type sampler struct {
	generation uint64
	media.Sampler
}

// collectStats samples the quality of every session until ctx is done.
func (c *Coordinator) collectStats(ctx context.Context) {
	ticker := time.NewTicker(c.config.StatsInterval)
	defer ticker.Stop()

	samplers := make(map[string]*sampler)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.sample(samplers, now)
		}
	}
}

func (c *Coordinator) sample(samplers map[string]*sampler, now time.Time) {
	counts := make(map[string]int)
	seen := make(map[string]bool)
	c.views.Range(func(id string, v peerView) bool {
		counts[v.State.String()]++
		seen[id] = true
		if v.Transport == nil {
			return true
		}
		s, ok := samplers[id]
		if !ok || s.generation != v.Generation {
			s = &sampler{generation: v.Generation}
			samplers[id] = s
		}
		q := s.Sample(v.Transport.Stats(), now)
		c.quality.Store(id, q)
		if c.metrics != nil {
			c.metrics.UpdatePeerQuality(id, q.FPS, q.BitrateKbps, float64(q.DroppedFrames), q.PacketLossPercent)
		}
		return true
	})

	for id := range samplers {
		if seen[id] {
			continue
		}
		delete(samplers, id)
		c.quality.Delete(id)
		if c.metrics != nil {
			c.metrics.DeletePeerQuality(id)
		}
	}
	if c.metrics != nil {
		c.metrics.SetPeerSessions(counts)
	}
}
