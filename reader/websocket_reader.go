package reader

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	appconfig "heatflow/config"
	"heatflow/internal/channel"
	"heatflow/logger"
	"heatflow/models"
)

// WebsocketReader receives JSON feed messages from a websocket endpoint and
// reconnects whenever the connection drops.
type WebsocketReader struct {
	config  *appconfig.Config
	ch      *channel.Channels
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewWebsocketReader(cfg *appconfig.Config, ch *channel.Channels) *WebsocketReader {
	return &WebsocketReader{
		config:  cfg,
		ch:      ch,
		dialer:  websocket.DefaultDialer,
		limiter: reconnectLimiter(cfg.Feed.ReconnectDelay),
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

func (r *WebsocketReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("websocket reader already running")
	}
	if r.config.Feed.URL == "" {
		r.mu.Unlock()
		return fmt.Errorf("websocket feed url is not configured")
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.mu.Unlock()

	r.log.WithComponent("websocket_reader").WithFields(logger.Fields{
		"url":             r.config.Feed.URL,
		"reconnect_delay": r.config.Feed.ReconnectDelay.String(),
	}).Info("starting websocket reader")

	r.wg.Add(1)
	go r.run(ctx)
	return nil
}

func (r *WebsocketReader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.log.WithComponent("websocket_reader").Info("stopping websocket reader")
	r.wg.Wait()
	r.log.WithComponent("websocket_reader").Info("websocket reader stopped")
}

func (r *WebsocketReader) run(ctx context.Context) {
	defer r.wg.Done()

	log := r.log.WithComponent("websocket_reader").WithFields(logger.Fields{"url": r.config.Feed.URL})

	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}

		conn, _, err := r.dialer.DialContext(ctx, r.config.Feed.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("failed to connect websocket")
			continue
		}
		log.Info("websocket connected")

		r.readLoop(ctx, conn, log)
		conn.Close()

		if ctx.Err() != nil {
			log.Info("websocket reader stopped due to context cancellation")
			return
		}
		log.Warn("websocket disconnected; reconnecting")
	}
}

func (r *WebsocketReader) readLoop(ctx context.Context, conn *websocket.Conn, log *logger.Entry) {
	// unblock ReadMessage on shutdown
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		forward(ctx, log, r.ch, models.RawFeedMessage{
			Source:   appconfig.SourceWebsocket,
			Encoding: models.EncodingJSON,
			Data:     data,
		})
	}
}
