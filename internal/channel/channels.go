package channel

import (
	"context"
	"sync"
	"time"

	"heatflow/logger"
	"heatflow/models"
)

type ChannelStats struct {
	FeedSent    int64
	FeedDropped int64
}

// Channels carries raw feed messages from the sources to the engine. Sends
// never block: a full buffer drops the message and counts it.
type Channels struct {
	Feed chan models.RawFeedMessage

	stats      ChannelStats
	statsMutex sync.RWMutex
	closeOnce  sync.Once
	log        *logger.Log
}

func NewChannels(feedBufferSize int) *Channels {
	if feedBufferSize <= 0 {
		feedBufferSize = 1
	}
	log := logger.GetLogger()
	c := &Channels{
		Feed: make(chan models.RawFeedMessage, feedBufferSize),
		log:  log,
	}

	log.WithComponent("feed_channels").WithFields(logger.Fields{
		"feed_buffer_size": feedBufferSize,
	}).Info("feed channels initialized")

	return c
}

func (c *Channels) Close() {
	c.closeOnce.Do(func() {
		close(c.Feed)
		c.log.WithComponent("feed_channels").Info("feed channels closed")
	})
}

func (c *Channels) IncrementFeedSent() {
	c.statsMutex.Lock()
	c.stats.FeedSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementFeedDropped() {
	c.statsMutex.Lock()
	c.stats.FeedDropped++
	c.statsMutex.Unlock()
	logger.IncrementDropped()
}

// SendFeed enqueues msg. It returns false when ctx is done or the buffer is
// full; only the latter counts as a drop.
func (c *Channels) SendFeed(ctx context.Context, msg models.RawFeedMessage) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case c.Feed <- msg:
		c.IncrementFeedSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementFeedDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// StartMetricsReporting logs channel occupancy and counters every 30 seconds
// until ctx is cancelled.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.logStats()
			}
		}
	}()
}

func (c *Channels) logStats() {
	stats := c.GetStats()
	c.log.WithComponent("feed_channels").WithFields(logger.Fields{
		"feed_sent":     stats.FeedSent,
		"feed_dropped":  stats.FeedDropped,
		"feed_length":   len(c.Feed),
		"feed_capacity": cap(c.Feed),
	}).Info("channel statistics")
}
