// Package reader holds the feed sources that push raw order book messages
// into the engine's feed channel.
package reader

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	appconfig "heatflow/config"
	"heatflow/internal/channel"
	"heatflow/internal/metrics"
	"heatflow/logger"
	"heatflow/models"
)

// Source is a feed that runs until Stop is called or its context ends.
type Source interface {
	Start(ctx context.Context) error
	Stop()
}

// New returns the source selected by cfg.Feed.Source.
func New(cfg *appconfig.Config, ch *channel.Channels) (Source, error) {
	switch cfg.Feed.Source {
	case appconfig.SourceWebsocket:
		return NewWebsocketReader(cfg, ch), nil
	case appconfig.SourceNATS:
		return NewNATSReader(cfg, ch), nil
	case appconfig.SourceKafka:
		return NewKafkaReader(cfg, ch)
	case appconfig.SourceRedis:
		return NewRedisReader(cfg, ch), nil
	case appconfig.SourceBinance:
		return NewBinanceReader(cfg, ch), nil
	case appconfig.SourceSynthetic:
		return NewSyntheticReader(cfg, ch), nil
	default:
		return nil, fmt.Errorf("unknown feed source %q", cfg.Feed.Source)
	}
}

// reconnectLimiter paces connection attempts to one per delay.
func reconnectLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		delay = time.Second
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// forward hands msg to the feed channel. A full channel drops the message
// and records it.
func forward(ctx context.Context, log *logger.Entry, ch *channel.Channels, msg models.RawFeedMessage) bool {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if ch.SendFeed(ctx, msg) {
		return true
	}
	if ctx.Err() == nil {
		metrics.EmitDropMetric(logger.GetLogger(), metrics.DropMetricFeed, msg.Source, msg.Encoding, "reader")
		log.WithFields(logger.Fields{"encoding": msg.Encoding}).Warn("feed channel is full, dropping message")
	}
	return false
}
