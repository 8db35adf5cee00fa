// Command feeder publishes a synthetic order book for heatflow to consume.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"heatflow/config"
	"heatflow/internal/simulator"
	"heatflow/logger"
	"heatflow/models"
	"heatflow/writer"
)

const (
	sinkNATS      = "nats"
	sinkWebsocket = "ws"
	sinkKafka     = "kafka"
	sinkRedis     = "redis"
)

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return def
}

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	defaults := config.Default()
	natsURL := defaults.Feed.NATS.URL
	if v := os.Getenv("NATS_URL"); v != "" {
		natsURL = v
	}

	sink := flag.String("sink", sinkWebsocket, "Where to publish: nats, ws, kafka or redis")
	rate := flag.Float64("rate", 10, "Snapshots per second")
	addr := flag.String("addr", ":8080", "Listen address of the websocket hub")
	seed := flag.Int64("seed", 42, "Generator seed")
	orders := flag.Bool("orders", envBool("PUBLISH_ORDERS", true), "Publish order events alongside snapshots")
	flag.StringVar(&natsURL, "nats-url", natsURL, "NATS server URL")
	brokers := flag.String("kafka-brokers", "localhost:9092", "Comma separated Kafka brokers")
	topic := flag.String("kafka-topic", defaults.Feed.Kafka.Topic, "Kafka topic")
	redisAddr := flag.String("redis-addr", defaults.Feed.Redis.Addr, "Redis address")
	redisChannel := flag.String("redis-channel", defaults.Feed.Redis.Channel, "Redis pub/sub channel")
	flag.Parse()

	if *rate <= 0 {
		log.Error("rate must be greater than 0")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan models.FeedMessage, 256)

	var (
		s      writer.Sink
		server *http.Server
	)
	switch *sink {
	case sinkNATS:
		natsCfg := defaults.Feed.NATS
		natsCfg.URL = natsURL
		s = writer.NewNATSWriter(natsCfg, out)
	case sinkKafka:
		kw, err := writer.NewKafkaWriter(config.KafkaConfig{Brokers: strings.Split(*brokers, ","), Topic: *topic}, out)
		if err != nil {
			log.WithError(err).Error("failed to create kafka writer")
			os.Exit(1)
		}
		s = kw
	case sinkRedis:
		rcfg := defaults.Feed.Redis
		rcfg.Addr = *redisAddr
		rcfg.Channel = *redisChannel
		rcfg.Password = os.Getenv("REDIS_PASSWORD")
		rw, err := writer.NewRedisWriter(rcfg, out)
		if err != nil {
			log.WithError(err).Error("failed to create redis writer")
			os.Exit(1)
		}
		s = rw
	case sinkWebsocket:
		hub := writer.NewHub(out)
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		server = &http.Server{Addr: *addr, Handler: mux}
		s = hub
	default:
		log.WithFields(logger.Fields{"sink": *sink}).Error("unknown sink")
		os.Exit(1)
	}

	if err := s.Start(ctx); err != nil {
		log.WithError(err).Error("sink failed to start")
		os.Exit(1)
	}

	if server != nil {
		go func() {
			log.WithFields(logger.Fields{"address": *addr}).Info("websocket hub listening on /ws")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("websocket hub failed")
				cancel()
			}
		}()
	}

	gcfg := simulator.DefaultConfig()
	gcfg.Seed = *seed
	gen := simulator.NewGenerator(gcfg)

	log.WithFields(logger.Fields{
		"sink":   *sink,
		"rate":   *rate,
		"orders": *orders,
	}).Info("feeder started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Duration(float64(time.Second) / *rate))
	defer ticker.Stop()

loop:
	for {
		select {
		case sig := <-sigChan:
			log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
			break loop
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			snap := gen.NextSnapshot()
			publish(out, models.FeedMessage{Type: models.MessageTypeSnapshot, Snapshot: &snap}, log)
			if *orders {
				publish(out, models.FeedMessage{Type: models.MessageTypeOrders, Orders: gen.Orders(snap)}, log)
			}
		}
	}

	cancel()
	if server != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		server.Shutdown(shutdownCtx)
		stop()
	}
	s.Stop()
	log.WithFields(logger.Fields{"ticks": gen.Tick()}).Info("feeder stopped")
}

func publish(out chan<- models.FeedMessage, msg models.FeedMessage, log *logger.Log) {
	select {
	case out <- msg:
	default:
		log.WithComponent("feeder").WithFields(logger.Fields{"type": msg.Type}).Warn("sink is behind, dropping message")
	}
}
