package reader

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"

	appconfig "heatflow/config"
	"heatflow/internal/channel"
	"heatflow/logger"
	"heatflow/models"
)

// NATSReader subscribes to the packed snapshot and order subjects of the
// matching engine bus.
type NATSReader struct {
	config  *appconfig.Config
	ch      *channel.Channels
	conn    *nats.Conn
	subs    []*nats.Subscription
	cancel  context.CancelFunc
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewNATSReader(cfg *appconfig.Config, ch *channel.Channels) *NATSReader {
	return &NATSReader{
		config: cfg,
		ch:     ch,
		log:    logger.GetLogger(),
	}
}

// encodingForSubject maps a bus subject to the wire encoding it carries.
func (r *NATSReader) encodingForSubject(subject string) (string, bool) {
	switch subject {
	case r.config.Feed.NATS.SnapshotSubject:
		return models.EncodingWireSnapshot, true
	case r.config.Feed.NATS.OrdersSubject:
		return models.EncodingWireOrders, true
	default:
		return "", false
	}
}

func (r *NATSReader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("nats reader already running")
	}

	natsCfg := r.config.Feed.NATS
	log := r.log.WithComponent("nats_reader").WithFields(logger.Fields{"url": natsCfg.URL})

	conn, err := nats.Connect(natsCfg.URL,
		nats.Name("heatflow"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(r.config.Feed.ReconnectDelay),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithFields(logger.Fields{"server": nc.ConnectedUrl()}).Info("nats reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	subs := make([]*nats.Subscription, 0, 2)
	for _, subject := range []string{natsCfg.SnapshotSubject, natsCfg.OrdersSubject} {
		if subject == "" {
			continue
		}
		encoding, _ := r.encodingForSubject(subject)
		subLog := log.WithFields(logger.Fields{"subject": subject})
		sub, err := conn.Subscribe(subject, func(m *nats.Msg) {
			forward(ctx, subLog, r.ch, models.RawFeedMessage{
				Source:   appconfig.SourceNATS,
				Encoding: encoding,
				Data:     m.Data,
			})
		})
		if err != nil {
			cancel()
			conn.Close()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		subs = append(subs, sub)
	}

	r.conn = conn
	r.subs = subs
	r.cancel = cancel
	r.running = true

	log.WithFields(logger.Fields{
		"snapshot_subject": natsCfg.SnapshotSubject,
		"orders_subject":   natsCfg.OrdersSubject,
	}).Info("nats reader started")
	return nil
}

func (r *NATSReader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false

	log := r.log.WithComponent("nats_reader")
	log.Info("stopping nats reader")
	for _, sub := range r.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.WithError(err).Debug("unsubscribe failed")
		}
	}
	r.cancel()
	r.conn.Close()
	log.Info("nats reader stopped")
}
