package writer

import (
	"context"
	"fmt"
	"sync"

	kafka "github.com/segmentio/kafka-go"

	appconfig "heatflow/config"
	"heatflow/logger"
	"heatflow/models"
)

type KafkaWriter struct {
	config  appconfig.KafkaConfig
	in      <-chan models.FeedMessage
	writer  *kafka.Writer
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewKafkaWriter(cfg appconfig.KafkaConfig, in <-chan models.FeedMessage) (*KafkaWriter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka topic not configured")
	}
	kw := &KafkaWriter{
		config: cfg,
		in:     in,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		wg:  &sync.WaitGroup{},
		log: logger.GetLogger(),
	}
	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Debug("kafka writer initialized")
	return kw, nil
}

// kafkaMessage keys records by message type so snapshots and orders keep
// their relative order within a partition.
func kafkaMessage(msg models.FeedMessage) (kafka.Message, error) {
	data, err := EncodeJSON(msg)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:     []byte(msg.Type),
		Value:   data,
		Headers: []kafka.Header{{Key: "encoding", Value: []byte(models.EncodingJSON)}},
	}, nil
}

func (kw *KafkaWriter) Start(ctx context.Context) error {
	kw.mu.Lock()
	if kw.running {
		kw.mu.Unlock()
		return fmt.Errorf("kafka writer already running")
	}
	ctx, kw.cancel = context.WithCancel(ctx)
	kw.running = true
	kw.mu.Unlock()

	kw.log.WithComponent("kafka_writer").Debug("starting kafka writer")

	kw.wg.Add(1)
	go kw.run(ctx)

	return nil
}

func (kw *KafkaWriter) run(ctx context.Context) {
	defer kw.wg.Done()

	log := kw.log.WithComponent("kafka_writer")
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-kw.in:
			if !ok {
				return
			}
			km, err := kafkaMessage(msg)
			if err != nil {
				log.WithError(err).Warn("failed to encode message")
				continue
			}
			if err := kw.writer.WriteMessages(ctx, km); err != nil {
				if ctx.Err() == nil {
					log.WithError(err).Warn("failed to write message")
				}
				continue
			}
			log.WithFields(logger.Fields{"type": msg.Type, "bytes": len(km.Value)}).Debug("message written to kafka")
		}
	}
}

func (kw *KafkaWriter) Stop() {
	kw.mu.Lock()
	if !kw.running {
		kw.mu.Unlock()
		return
	}
	kw.running = false
	kw.cancel()
	kw.mu.Unlock()

	kw.log.WithComponent("kafka_writer").Debug("stopping kafka writer")
	kw.wg.Wait()
	kw.writer.Close()
	kw.log.WithComponent("kafka_writer").Debug("kafka writer stopped")
}
