package reader

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "heatflow/config"
	"heatflow/internal/channel"
	"heatflow/internal/simulator"
	"heatflow/logger"
	"heatflow/models"
)

// SyntheticReader feeds the engine from the in-process market generator.
type SyntheticReader struct {
	config  *appconfig.Config
	ch      *channel.Channels
	gen     *simulator.Generator
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

func NewSyntheticReader(cfg *appconfig.Config, ch *channel.Channels) *SyntheticReader {
	scfg := cfg.Feed.Synthetic
	gcfg := simulator.DefaultConfig()
	gcfg.Seed = scfg.Seed
	if scfg.BasePrice > 0 {
		gcfg.BasePrice = scfg.BasePrice
	}
	if scfg.Depth > 0 {
		gcfg.Depth = scfg.Depth
	}
	return &SyntheticReader{
		config: cfg,
		ch:     ch,
		gen:    simulator.NewGenerator(gcfg),
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

func (r *SyntheticReader) interval() time.Duration {
	rate := r.config.Feed.Synthetic.Rate
	if rate <= 0 {
		rate = 10
	}
	return time.Duration(float64(time.Second) / rate)
}

func (r *SyntheticReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("synthetic reader already running")
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.running = true
	r.mu.Unlock()

	r.log.WithComponent("synthetic_reader").WithFields(logger.Fields{
		"interval": r.interval().String(),
		"seed":     r.config.Feed.Synthetic.Seed,
	}).Info("starting synthetic reader")

	r.wg.Add(1)
	go r.run(ctx)
	return nil
}

func (r *SyntheticReader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.log.WithComponent("synthetic_reader").Info("synthetic reader stopped")
}

func (r *SyntheticReader) run(ctx context.Context) {
	defer r.wg.Done()

	log := r.log.WithComponent("synthetic_reader")
	ticker := time.NewTicker(r.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := r.gen.NextSnapshot()
			orders := r.gen.Orders(snap)

			forward(ctx, log, r.ch, models.RawFeedMessage{
				Source:   appconfig.SourceSynthetic,
				Encoding: models.EncodingDecoded,
				Message:  &models.FeedMessage{Type: models.MessageTypeSnapshot, Snapshot: &snap},
			})
			forward(ctx, log, r.ch, models.RawFeedMessage{
				Source:   appconfig.SourceSynthetic,
				Encoding: models.EncodingDecoded,
				Message:  &models.FeedMessage{Type: models.MessageTypeOrders, Orders: orders},
			})
		}
	}
}
