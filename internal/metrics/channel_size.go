package metrics

import (
	"context"
	"time"

	"heatflow/internal/channel"
	"heatflow/logger"
)

// StartChannelSizeMetrics emits occupancy of the feed buffer every interval
// until the context is cancelled. When interval <= 0, a one-second cadence
// is used.
func StartChannelSizeMetrics(ctx context.Context, channels *channel.Channels, interval time.Duration) {
	if !IsFeatureEnabled(FeatureChannelSize) {
		return
	}
	if channels == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				emitChannelSize(log, channels)
			}
		}
	}()
}

func emitChannelSize(log *logger.Log, channels *channel.Channels) {
	stats := channels.GetStats()
	EmitMetric(log, "channel_buffers", "feed_buffer_length", len(channels.Feed), "gauge", logger.Fields{
		"buffer":   "feed",
		"capacity": cap(channels.Feed),
		"sent":     stats.FeedSent,
		"dropped":  stats.FeedDropped,
	})
}
