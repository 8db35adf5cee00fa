package reader

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	appconfig "heatflow/config"
	"heatflow/internal/channel"
	"heatflow/logger"
	"heatflow/models"
)

// RedisReader subscribes to a pub/sub channel carrying JSON feed messages.
type RedisReader struct {
	config  *appconfig.Config
	ch      *channel.Channels
	client  *redis.Client
	pubsub  *redis.PubSub
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewRedisReader(cfg *appconfig.Config, ch *channel.Channels) *RedisReader {
	return &RedisReader{
		config: cfg,
		ch:     ch,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

func redisOptions(cfg appconfig.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func (r *RedisReader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("redis reader already running")
	}

	rcfg := r.config.Feed.Redis
	client := redis.NewClient(redisOptions(rcfg))
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	pubsub := client.Subscribe(ctx, rcfg.Channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", rcfg.Channel, err)
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.client = client
	r.pubsub = pubsub
	r.running = true

	r.log.WithComponent("redis_reader").WithFields(logger.Fields{
		"addr":    rcfg.Addr,
		"channel": rcfg.Channel,
	}).Info("redis reader started")

	r.wg.Add(1)
	go r.readLoop(ctx, pubsub.Channel())
	return nil
}

// readLoop forwards payloads until ctx ends. The client resubscribes on its
// own after a dropped connection.
func (r *RedisReader) readLoop(ctx context.Context, msgs <-chan *redis.Message) {
	defer r.wg.Done()

	log := r.log.WithComponent("redis_reader")
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			forward(ctx, log, r.ch, models.RawFeedMessage{
				Source:   appconfig.SourceRedis,
				Encoding: models.EncodingJSON,
				Data:     []byte(m.Payload),
			})
		}
	}
}

func (r *RedisReader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	log := r.log.WithComponent("redis_reader")
	log.Info("stopping redis reader")
	if err := r.pubsub.Close(); err != nil {
		log.WithError(err).Debug("pubsub close failed")
	}
	r.wg.Wait()
	if err := r.client.Close(); err != nil {
		log.WithError(err).Debug("client close failed")
	}
	log.Info("redis reader stopped")
}
