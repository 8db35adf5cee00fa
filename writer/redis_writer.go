package writer

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	appconfig "heatflow/config"
	"heatflow/logger"
	"heatflow/models"
)

// RedisWriter publishes JSON feed messages to a pub/sub channel.
type RedisWriter struct {
	config  appconfig.RedisConfig
	in      <-chan models.FeedMessage
	client  *redis.Client
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewRedisWriter(cfg appconfig.RedisConfig, in <-chan models.FeedMessage) (*RedisWriter, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.Channel == "" {
		return nil, fmt.Errorf("redis channel is required")
	}
	return &RedisWriter{
		config: cfg,
		in:     in,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}, nil
}

func (w *RedisWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("redis writer already running")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     w.config.Addr,
		Password: w.config.Password,
		DB:       w.config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	w.client = client

	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.log.WithComponent("redis_writer").WithFields(logger.Fields{
		"addr":    w.config.Addr,
		"channel": w.config.Channel,
	}).Info("redis writer connected")

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

func (w *RedisWriter) run(ctx context.Context) {
	defer w.wg.Done()

	log := w.log.WithComponent("redis_writer")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.in:
			if !ok {
				return
			}
			data, err := EncodeJSON(msg)
			if err != nil {
				log.WithError(err).Warn("failed to encode message")
				continue
			}
			if err := w.client.Publish(ctx, w.config.Channel, data).Err(); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("publish failed")
			}
		}
	}
}

func (w *RedisWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	if err := w.client.Close(); err != nil {
		w.log.WithComponent("redis_writer").WithError(err).Debug("client close failed")
	}
	w.log.WithComponent("redis_writer").Info("redis writer stopped")
}
