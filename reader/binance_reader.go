package reader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	appconfig "heatflow/config"
	"heatflow/internal/channel"
	ratemetrics "heatflow/internal/metrics/rate"
	"heatflow/logger"
	"heatflow/models"
)

// BinanceReader streams partial book depth for one futures symbol. Every
// depth event is a full top-of-book snapshot.
type BinanceReader struct {
	config  *appconfig.Config
	ch      *channel.Channels
	limiter *rate.Limiter
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewBinanceReader(cfg *appconfig.Config, ch *channel.Channels) *BinanceReader {
	return &BinanceReader{
		config:  cfg,
		ch:      ch,
		limiter: reconnectLimiter(cfg.Feed.ReconnectDelay),
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

func (r *BinanceReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance reader already running")
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.mu.Unlock()

	bcfg := r.config.Feed.Binance
	bcfg.Symbol = binanceSymbol(bcfg.Symbol)
	r.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"operation": "start",
		"symbol":    bcfg.Symbol,
		"levels":    bcfg.Levels,
		"update_ms": bcfg.UpdateMs,
	}).Info("starting binance reader")

	r.wg.Add(1)
	go r.streamSymbol(ctx, bcfg.Symbol, bcfg.Levels, time.Duration(bcfg.UpdateMs)*time.Millisecond)
	return nil
}

// binanceSymbol maps common exchange spellings ("btc-usdt", "BTC/USDT",
// "XBT-USDT-SWAP") onto the futures stream symbol.
func binanceSymbol(sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	sym = strings.TrimSuffix(sym, "-SWAP")
	sym = strings.NewReplacer("-", "", "/", "", "_", "").Replace(sym)
	if strings.HasPrefix(sym, "XBT") {
		sym = "BTC" + sym[3:]
	}
	return sym
}

func (r *BinanceReader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.log.WithComponent("binance_reader").Info("stopping binance reader")
	r.wg.Wait()
	r.log.WithComponent("binance_reader").Info("binance reader stopped")
}

func (r *BinanceReader) streamSymbol(ctx context.Context, symbol string, levels int, interval time.Duration) {
	defer r.wg.Done()

	log := r.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"worker": "depth_stream",
	})

	handler := func(event *futures.WsDepthEvent) {
		snap, err := depthSnapshot(event)
		if err != nil {
			log.WithError(err).Debug("skipping depth event")
			return
		}
		forward(ctx, log, r.ch, models.RawFeedMessage{
			Source:   appconfig.SourceBinance,
			Encoding: models.EncodingDecoded,
			Message:  &models.FeedMessage{Type: models.MessageTypeSnapshot, Snapshot: &snap},
		})
	}

	errHandler := func(err error) {
		if err == nil {
			return
		}
		if !ratemetrics.ReportLimitFromMessage(r.log, appconfig.SourceBinance, symbol, err.Error()) {
			log.WithError(err).Warn("websocket error")
		}
	}

	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return
		}

		doneC, stopC, err := futures.WsPartialDepthServeWithRate(symbol, levels, interval, handler, errHandler)
		if err != nil {
			log.WithError(err).Error("failed to subscribe to partial depth stream")
			continue
		}

		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			log.Info("worker stopped due to context cancellation")
			return
		case <-doneC:
			log.Warn("depth stream ended; resubscribing")
		}
	}
}

// depthSnapshot converts a partial depth event into a snapshot. Any level
// that does not parse fails the whole event.
func depthSnapshot(event *futures.WsDepthEvent) (models.Snapshot, error) {
	bids, err := parseLevels(len(event.Bids), func(i int) (string, string) {
		return event.Bids[i].Price, event.Bids[i].Quantity
	})
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(len(event.Asks), func(i int) (string, string) {
		return event.Asks[i].Price, event.Asks[i].Quantity
	})
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("asks: %w", err)
	}
	return models.Snapshot{Timestamp: event.Time, Bids: bids, Asks: asks}, nil
}

func parseLevels(n int, at func(int) (string, string)) ([]models.PriceLevel, error) {
	levels := make([]models.PriceLevel, 0, n)
	for i := 0; i < n; i++ {
		p, q := at(i)
		price, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", p, err)
		}
		qty, err := strconv.ParseFloat(q, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity %q: %w", q, err)
		}
		levels = append(levels, models.PriceLevel{Price: price, Qty: qty})
	}
	return levels, nil
}
