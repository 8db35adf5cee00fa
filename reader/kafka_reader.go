package reader

import (
	"context"
	"fmt"
	"sync"

	kafka "github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"

	appconfig "heatflow/config"
	"heatflow/internal/channel"
	"heatflow/logger"
	"heatflow/models"
)

// encodingHeader optionally names the payload encoding of a Kafka record.
const encodingHeader = "encoding"

// KafkaReader consumes feed messages from a Kafka topic. Records are JSON
// unless an "encoding" header says otherwise.
type KafkaReader struct {
	config  *appconfig.Config
	ch      *channel.Channels
	reader  *kafka.Reader
	limiter *rate.Limiter
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewKafkaReader(cfg *appconfig.Config, ch *channel.Channels) (*KafkaReader, error) {
	kcfg := cfg.Feed.Kafka
	if len(kcfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if kcfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}

	kr := &KafkaReader{
		config: cfg,
		ch:     ch,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  kcfg.Brokers,
			Topic:    kcfg.Topic,
			GroupID:  kcfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		limiter: reconnectLimiter(cfg.Feed.ReconnectDelay),
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
	kr.log.WithComponent("kafka_reader").WithFields(logger.Fields{
		"brokers": kcfg.Brokers,
		"topic":   kcfg.Topic,
		"group":   kcfg.GroupID,
	}).Debug("kafka reader initialized")
	return kr, nil
}

func recordEncoding(headers []kafka.Header) string {
	for _, h := range headers {
		if h.Key == encodingHeader && len(h.Value) > 0 {
			return string(h.Value)
		}
	}
	return models.EncodingJSON
}

func (kr *KafkaReader) Start(ctx context.Context) error {
	kr.mu.Lock()
	if kr.running {
		kr.mu.Unlock()
		return fmt.Errorf("kafka reader already running")
	}
	ctx, kr.cancel = context.WithCancel(ctx)
	kr.running = true
	kr.mu.Unlock()

	kr.log.WithComponent("kafka_reader").Info("starting kafka reader")

	kr.wg.Add(1)
	go kr.run(ctx)
	return nil
}

func (kr *KafkaReader) run(ctx context.Context) {
	defer kr.wg.Done()

	log := kr.log.WithComponent("kafka_reader").WithFields(logger.Fields{"topic": kr.config.Feed.Kafka.Topic})

	for {
		m, err := kr.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("failed to read kafka message")
			if err := kr.limiter.Wait(ctx); err != nil {
				return
			}
			continue
		}

		forward(ctx, log, kr.ch, models.RawFeedMessage{
			Source:    appconfig.SourceKafka,
			Encoding:  recordEncoding(m.Headers),
			Data:      m.Value,
			Timestamp: m.Time,
		})
	}
}

func (kr *KafkaReader) Stop() {
	kr.mu.Lock()
	if !kr.running {
		kr.mu.Unlock()
		return
	}
	kr.running = false
	kr.cancel()
	kr.mu.Unlock()

	kr.log.WithComponent("kafka_reader").Debug("stopping kafka reader")
	kr.wg.Wait()
	if err := kr.reader.Close(); err != nil {
		kr.log.WithComponent("kafka_reader").WithError(err).Warn("failed to close kafka reader")
	}
	kr.log.WithComponent("kafka_reader").Debug("kafka reader stopped")
}
