// Package simulator produces a synthetic order book that drifts along a sine
// wave, for demos and load tests without a live feed.
package simulator

import (
	"math"
	"math/rand"

	"heatflow/models"
)

// Config shapes the generated market.
type Config struct {
	BasePrice float64
	Amplitude float64 // absolute price swing of the sine component
	Frequency float64 // cycles per tick
	Noise     float64
	Depth     int
	SpreadBps float64
	Seed      int64
}

// DefaultConfig keeps the drift within about one book width over a full
// default-sized heatmap.
func DefaultConfig() Config {
	return Config{
		BasePrice: 100,
		Amplitude: 0.15,
		Frequency: 0.0003,
		Noise:     0.02,
		Depth:     20,
		SpreadBps: 5,
		Seed:      42,
	}
}

// Generator is a deterministic market source. It is not safe for concurrent
// use.
type Generator struct {
	cfg      Config
	tickSize float64
	tick     uint64
	rng      *rand.Rand

	prevBids []models.PriceLevel
	prevAsks []models.PriceLevel
}

func NewGenerator(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = def.BasePrice
	}
	if cfg.Depth <= 0 {
		cfg.Depth = def.Depth
	}
	if cfg.SpreadBps <= 0 {
		cfg.SpreadBps = def.SpreadBps
	}

	tickSize := math.Round(cfg.BasePrice*0.0001*100) / 100
	if tickSize <= 0 {
		tickSize = 0.01
	}

	return &Generator{
		cfg:      cfg,
		tickSize: tickSize,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Tick is the number of snapshots generated so far.
func (g *Generator) Tick() uint64 { return g.tick }

// TickSize is the price distance between adjacent generated levels.
func (g *Generator) TickSize() float64 { return g.tickSize }

func roundToTick(price, tickSize float64) float64 {
	return math.Round(price/tickSize) * tickSize
}

// NextSnapshot advances one tick. Quantities at prices that were already in
// the book move 20% of the way towards a fresh random value.
func (g *Generator) NextSnapshot() models.Snapshot {
	g.tick++
	sine := g.cfg.Amplitude * math.Sin(2*math.Pi*g.cfg.Frequency*float64(g.tick))
	drift := (g.rng.Float64()*2 - 1) * g.cfg.Noise * 0.1
	mid := g.cfg.BasePrice + sine + drift

	halfSpread := mid * (g.cfg.SpreadBps / 10000) / 2
	bestBid := roundToTick(mid-halfSpread, g.tickSize)
	bestAsk := roundToTick(mid+halfSpread, g.tickSize)
	if bestAsk <= bestBid {
		bestAsk = bestBid + g.tickSize
	}

	bids := g.side(bestBid, -g.tickSize, g.prevBids)
	asks := g.side(bestAsk, g.tickSize, g.prevAsks)
	g.prevBids, g.prevAsks = bids, asks

	return models.Snapshot{Timestamp: int64(g.tick), Bids: bids, Asks: asks}
}

func (g *Generator) side(best, step float64, prev []models.PriceLevel) []models.PriceLevel {
	levels := make([]models.PriceLevel, g.cfg.Depth)
	for i := range levels {
		price := best + float64(i)*step
		qty := float64(500 + g.rng.Intn(4500))
		for _, p := range prev {
			if math.Abs(p.Price-price) < g.tickSize*0.5 {
				qty = math.Trunc(p.Qty*0.8 + qty*0.2)
				break
			}
		}
		if qty < 100 {
			qty = 100
		}
		levels[i] = models.PriceLevel{Price: models.RoundPrice(price), Qty: qty}
	}
	return levels
}

// Orders draws two to six random order events against the given book.
func (g *Generator) Orders(s models.Snapshot) []models.OrderEntry {
	n := 2 + g.rng.Intn(5)
	orders := make([]models.OrderEntry, 0, n)
	for i := 0; i < n; i++ {
		side, book := models.OrderSideSell, s.Asks
		if g.rng.Intn(2) == 0 {
			side, book = models.OrderSideBuy, s.Bids
		}
		if len(book) == 0 {
			continue
		}
		level := book[g.rng.Intn(len(book))]

		var action models.OrderAction
		switch roll := g.rng.Float64(); {
		case roll < 0.5:
			action = models.OrderActionAdd
		case roll < 0.8:
			action = models.OrderActionModify
		default:
			action = models.OrderActionRemove
		}

		orderType := models.OrderTypeLimit
		if g.rng.Float64() < 0.1 {
			orderType = models.OrderTypeMarket
		}

		orders = append(orders, models.OrderEntry{
			Price:     level.Price,
			Qty:       float64(50 + g.rng.Intn(2000)),
			Side:      side,
			Action:    action,
			OrderType: orderType,
		})
	}
	return orders
}
