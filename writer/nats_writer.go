package writer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	appconfig "heatflow/config"
	"heatflow/internal/wire"
	"heatflow/logger"
	"heatflow/models"
)

// PairID is the instrument id stamped on everything the feeder publishes.
const PairID = 1

// NATSWriter publishes snapshots and order batches in the packed wire format.
type NATSWriter struct {
	config  appconfig.NATSConfig
	in      <-chan models.FeedMessage
	conn    *nats.Conn
	seq     uint64
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewNATSWriter(cfg appconfig.NATSConfig, in <-chan models.FeedMessage) *NATSWriter {
	return &NATSWriter{
		config: cfg,
		in:     in,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

// encode returns the subject and payload for msg. Order times are the
// snapshot tick they were generated against.
func (w *NATSWriter) encode(msg models.FeedMessage, tick uint64) (string, []byte, error) {
	switch msg.Type {
	case models.MessageTypeSnapshot:
		if msg.Snapshot == nil {
			return "", nil, fmt.Errorf("snapshot message without snapshot")
		}
		hdr := wire.SnapshotHeader{PairID: PairID, Timestamp: uint64(msg.Snapshot.Timestamp)}
		return w.config.SnapshotSubject, wire.EncodeSnapshot(hdr, *msg.Snapshot), nil
	case models.MessageTypeOrders:
		w.seq++
		orders := make([]wire.WireOrder, len(msg.Orders))
		for i, o := range msg.Orders {
			orders[i] = wire.WireOrder{PairID: PairID, Time: tick, OrderEntry: o}
		}
		return w.config.OrdersSubject, wire.EncodeOrders(wire.OrdersHeader{PairID: PairID, Seq: w.seq}, orders), nil
	default:
		return "", nil, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

func (w *NATSWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("nats writer already running")
	}

	conn, err := nats.Connect(w.config.URL,
		nats.Name("heatflow-feeder"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}
	w.conn = conn

	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	w.log.WithComponent("nats_writer").WithFields(logger.Fields{
		"url":              w.config.URL,
		"snapshot_subject": w.config.SnapshotSubject,
		"orders_subject":   w.config.OrdersSubject,
	}).Info("nats writer connected")

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

func (w *NATSWriter) run(ctx context.Context) {
	defer w.wg.Done()

	log := w.log.WithComponent("nats_writer")
	var tick uint64
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.in:
			if !ok {
				return
			}
			if msg.Type == models.MessageTypeSnapshot && msg.Snapshot != nil {
				tick = uint64(msg.Snapshot.Timestamp)
			}
			subject, payload, err := w.encode(msg, tick)
			if err != nil {
				log.WithError(err).Warn("failed to encode message")
				continue
			}
			if subject == "" {
				continue
			}
			if err := w.conn.Publish(subject, payload); err != nil {
				log.WithError(err).WithFields(logger.Fields{"subject": subject}).Warn("publish failed")
			}
		}
	}
}

func (w *NATSWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	if err := w.conn.Drain(); err != nil {
		w.conn.Close()
	}
	w.log.WithComponent("nats_writer").Info("nats writer stopped")
}
