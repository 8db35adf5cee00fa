package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	appconfig "heatflow/config"
	"heatflow/internal/heatmap"
	"heatflow/internal/metrics"
	"heatflow/internal/orderflow"
	"heatflow/logger"
	"heatflow/models"
)

var (
	// ErrEngineStopped is returned for gestures submitted while the engine
	// is not running.
	ErrEngineStopped = errors.New("engine stopped")
	// ErrUnknownGesture is returned for pan moves and ends that do not match
	// an active pan.
	ErrUnknownGesture = errors.New("unknown pan gesture")
	// ErrInvalidCanvas is returned for resize requests outside the allowed size.
	ErrInvalidCanvas = errors.New("invalid canvas size")
)

const (
	maxCanvasSide  = 8192
	maxActivePans  = 16
	perfLogEvery   = 600
	defaultRefresh = 16 * time.Millisecond
)

// GestureKind identifies a viewport command.
type GestureKind int

const (
	GestureQuery GestureKind = iota
	GestureZoom
	GesturePanStart
	GesturePanMove
	GesturePanEnd
	GestureReset
	GestureResize
)

func (k GestureKind) String() string {
	switch k {
	case GestureQuery:
		return "query"
	case GestureZoom:
		return "zoom"
	case GesturePanStart:
		return "pan_start"
	case GesturePanMove:
		return "pan_move"
	case GesturePanEnd:
		return "pan_end"
	case GestureReset:
		return "reset"
	case GestureResize:
		return "resize"
	default:
		return fmt.Sprintf("gesture(%d)", int(k))
	}
}

// Gesture is a viewport command sent to the engine loop. Only the fields
// relevant to Kind are read.
type Gesture struct {
	Kind GestureKind

	// zoom
	Fraction float64
	Delta    float64

	// pan move / end
	GestureID string
	DX, DY    float64

	// resize
	Width, Height int

	reply chan gestureResult
}

type gestureResult struct {
	state ViewState
	err   error
}

// EngineStats are cumulative counters of the engine loop.
type EngineStats struct {
	Snapshots int64 `json:"snapshots"`
	Orders    int64 `json:"orders"`
	Malformed int64 `json:"malformed"`
	Frames    int64 `json:"frames"`
	Columns   int64 `json:"columns"`
}

// Engine is the single goroutine that owns the heatmap buffer, viewport,
// order log and canvas size. Feed messages and gestures only mark the view
// dirty; frames are rendered on the refresh tick.
type Engine struct {
	config   *appconfig.Config
	feed     <-chan models.RawFeedMessage
	gestures chan Gesture
	sink     FrameSink
	log      *logger.Log

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	wg      *sync.WaitGroup

	// owned by the loop goroutine
	buf      *heatmap.Buffer
	vp       *heatmap.Viewport
	orders   *orderflow.Log
	width    int
	height   int
	dirty    bool
	pans     map[string]heatmap.PanAnchor
	panOrder []string
	seq      uint64

	snapshots int64
	orderCnt  int64
	malformed int64
	frames    int64
	columns   int64
}

func NewEngine(cfg *appconfig.Config, feed <-chan models.RawFeedMessage, sink FrameSink) *Engine {
	if sink == nil {
		sink = NewFrameStore()
	}
	gestureBuffer := cfg.Channels.GestureBuffer
	if gestureBuffer <= 0 {
		gestureBuffer = 1
	}
	return &Engine{
		config:   cfg,
		feed:     feed,
		gestures: make(chan Gesture, gestureBuffer),
		sink:     sink,
		log:      logger.GetLogger(),
		wg:       &sync.WaitGroup{},
		buf:      heatmap.NewBuffer(cfg.Heatmap.Capacity),
		vp:       heatmap.NewViewport(),
		orders:   orderflow.NewLog(cfg.Orders.Capacity),
		width:    clampSide(cfg.Heatmap.Width),
		height:   clampSide(cfg.Heatmap.Height),
		dirty:    true,
		pans:     make(map[string]heatmap.PanAnchor),
	}
}

func clampSide(v int) int {
	if v < 1 {
		return 1
	}
	if v > maxCanvasSide {
		return maxCanvasSide
	}
	return v
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	log := e.log.WithComponent("engine").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"capacity":         e.buf.Capacity(),
		"width":            e.width,
		"height":           e.height,
		"refresh_interval": e.refreshInterval().String(),
	}).Info("starting engine")

	e.wg.Add(1)
	go e.run(loopCtx, done)

	return nil
}

func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	e.log.WithComponent("engine").Info("stopping engine")
	cancel()
	e.wg.Wait()
	e.log.WithComponent("engine").WithFields(logger.Fields{
		"frames":    atomic.LoadInt64(&e.frames),
		"snapshots": atomic.LoadInt64(&e.snapshots),
	}).Info("engine stopped")
}

func (e *Engine) refreshInterval() time.Duration {
	if e.config.Heatmap.RefreshInterval > 0 {
		return e.config.Heatmap.RefreshInterval
	}
	return defaultRefresh
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer e.wg.Done()
	defer close(done)

	ticker := time.NewTicker(e.refreshInterval())
	defer ticker.Stop()

	log := e.log.WithComponent("engine")
	feed := e.feed

	// publish the placeholder right away so readers never see an empty store
	e.renderFrame()

	for {
		select {
		case <-ctx.Done():
			log.Info("engine loop stopped due to context cancellation")
			return
		case raw, ok := <-feed:
			if !ok {
				log.Info("feed channel closed; waiting for gestures only")
				feed = nil
				continue
			}
			e.handleFeed(raw)
		case g := <-e.gestures:
			state, err := e.applyGesture(g)
			g.reply <- gestureResult{state: state, err: err}
		case <-ticker.C:
			if e.dirty {
				e.renderFrame()
			}
		}
	}
}

func (e *Engine) handleFeed(raw models.RawFeedMessage) {
	msg, err := DecodeMessage(raw)
	if err != nil {
		atomic.AddInt64(&e.malformed, 1)
		metrics.EmitDropMetric(e.log, metrics.DropMetricMalformed, raw.Source, raw.Encoding, "adapter")
		e.log.WithComponent("adapter").WithError(err).WithFields(logger.Fields{
			"source":   raw.Source,
			"encoding": raw.Encoding,
			"bytes":    len(raw.Data),
		}).Debug("dropping malformed feed message")
		return
	}

	if !Apply(msg, e.buf, e.orders) {
		return
	}
	e.dirty = true

	switch msg.Type {
	case models.MessageTypeSnapshot:
		atomic.AddInt64(&e.snapshots, 1)
		atomic.StoreInt64(&e.columns, int64(e.buf.Len()))
		metrics.IncSnapshotIngested()
		logger.IncrementSnapshotRead(len(msg.Snapshot.Bids) + len(msg.Snapshot.Asks))
	case models.MessageTypeOrders:
		atomic.AddInt64(&e.orderCnt, int64(len(msg.Orders)))
		metrics.AddOrdersIngested(len(msg.Orders))
		logger.IncrementOrdersRead(len(msg.Orders))
	}
}

func (e *Engine) applyGesture(g Gesture) (ViewState, error) {
	var gestureID string
	switch g.Kind {
	case GestureQuery:
		return e.viewState(), nil

	case GestureZoom:
		e.vp.Zoom(e.buf, g.Fraction, g.Delta)

	case GesturePanStart:
		gestureID = uuid.NewString()
		e.addPan(gestureID, e.vp.BeginPan(e.buf))

	case GesturePanMove:
		anchor, ok := e.pans[g.GestureID]
		if !ok {
			return e.viewState(), fmt.Errorf("%w: %s", ErrUnknownGesture, g.GestureID)
		}
		e.vp.Pan(anchor, g.DX, g.DY, heatmap.ColumnWidth(e.width, e.buf.Capacity()), e.height)

	case GesturePanEnd:
		if _, ok := e.pans[g.GestureID]; !ok {
			return e.viewState(), fmt.Errorf("%w: %s", ErrUnknownGesture, g.GestureID)
		}
		e.removePan(g.GestureID)
		return e.viewState(), nil

	case GestureReset:
		e.vp.Reset()

	case GestureResize:
		if g.Width < 1 || g.Height < 1 || g.Width > maxCanvasSide || g.Height > maxCanvasSide {
			return e.viewState(), fmt.Errorf("%w: %dx%d", ErrInvalidCanvas, g.Width, g.Height)
		}
		e.width, e.height = g.Width, g.Height

	default:
		return e.viewState(), fmt.Errorf("unsupported gesture %s", g.Kind)
	}

	e.dirty = true
	state := e.viewState()
	state.GestureID = gestureID
	return state, nil
}

func (e *Engine) addPan(id string, anchor heatmap.PanAnchor) {
	if len(e.panOrder) >= maxActivePans {
		// abandoned drags; forget the oldest
		delete(e.pans, e.panOrder[0])
		e.panOrder = e.panOrder[1:]
	}
	e.pans[id] = anchor
	e.panOrder = append(e.panOrder, id)
}

func (e *Engine) removePan(id string) {
	delete(e.pans, id)
	for i, v := range e.panOrder {
		if v == id {
			e.panOrder = append(e.panOrder[:i], e.panOrder[i+1:]...)
			break
		}
	}
}

func (e *Engine) viewState() ViewState {
	state := ViewState{
		Viewport:    *e.vp,
		Columns:     e.buf.Len(),
		Capacity:    e.buf.Capacity(),
		MaxQty:      e.buf.MaxQty(),
		Orders:      e.orders.Len(),
		Width:       e.width,
		Height:      e.height,
		ColumnWidth: heatmap.ColumnWidth(e.width, e.buf.Capacity()),
	}
	if lo, hi := e.vp.EffectiveBounds(e.buf); finite(lo) && finite(hi) && hi > lo {
		state.Bounds = &PriceBounds{Min: lo, Max: hi}
	}
	return state
}

func (e *Engine) renderFrame() {
	start := time.Now()
	img := heatmap.Render(e.buf, e.vp, e.width, e.height)

	var out bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&out, img); err != nil {
		e.log.WithComponent("engine").WithError(err).Error("failed to encode frame")
		return
	}
	duration := time.Since(start)

	e.seq++
	e.sink.Publish(Frame{
		Seq:        e.seq,
		PNG:        out.Bytes(),
		Width:      e.width,
		Height:     e.height,
		RenderedAt: time.Now(),
		View:       e.viewState(),
		Orders:     e.orders.Recent(0),
	})
	e.dirty = false

	frames := atomic.AddInt64(&e.frames, 1)
	metrics.ObserveRender(duration)
	logger.IncrementFrameRendered(out.Len())

	if frames%perfLogEvery == 1 && metrics.IsFeatureEnabled(metrics.FeatureRender) {
		log := e.log.WithComponent("engine")
		logger.LogPerformanceEntry(log, "engine", "render_frame", duration, logger.Fields{
			"frame":   e.seq,
			"columns": e.buf.Len(),
			"bytes":   out.Len(),
		})
		metrics.EmitMetric(e.log, "engine", "render_duration_ms", float64(duration.Microseconds())/1000, "gauge", logger.Fields{"unit": "milliseconds"})
	}
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Snapshots: atomic.LoadInt64(&e.snapshots),
		Orders:    atomic.LoadInt64(&e.orderCnt),
		Malformed: atomic.LoadInt64(&e.malformed),
		Frames:    atomic.LoadInt64(&e.frames),
		Columns:   atomic.LoadInt64(&e.columns),
	}
}

// Submit hands g to the engine loop and waits for the resulting view.
func (e *Engine) Submit(ctx context.Context, g Gesture) (ViewState, error) {
	e.mu.Lock()
	running, done := e.running, e.done
	e.mu.Unlock()
	if !running {
		return ViewState{}, ErrEngineStopped
	}

	g.reply = make(chan gestureResult, 1)
	select {
	case e.gestures <- g:
	case <-ctx.Done():
		return ViewState{}, ctx.Err()
	case <-done:
		return ViewState{}, ErrEngineStopped
	}

	select {
	case res := <-g.reply:
		return res.state, res.err
	case <-ctx.Done():
		return ViewState{}, ctx.Err()
	case <-done:
		return ViewState{}, ErrEngineStopped
	}
}

func (e *Engine) View(ctx context.Context) (ViewState, error) {
	return e.Submit(ctx, Gesture{Kind: GestureQuery})
}

// Zoom zooms around the cursor at fraction of the canvas height (0 = top).
// A positive delta zooms out.
func (e *Engine) Zoom(ctx context.Context, fraction, delta float64) (ViewState, error) {
	return e.Submit(ctx, Gesture{Kind: GestureZoom, Fraction: fraction, Delta: delta})
}

// PanStart captures a pan anchor; the returned state carries its GestureID.
func (e *Engine) PanStart(ctx context.Context) (ViewState, error) {
	return e.Submit(ctx, Gesture{Kind: GesturePanStart})
}

// PanMove applies the total drag (dx, dy) since the matching PanStart.
func (e *Engine) PanMove(ctx context.Context, gestureID string, dx, dy float64) (ViewState, error) {
	return e.Submit(ctx, Gesture{Kind: GesturePanMove, GestureID: gestureID, DX: dx, DY: dy})
}

func (e *Engine) PanEnd(ctx context.Context, gestureID string) (ViewState, error) {
	return e.Submit(ctx, Gesture{Kind: GesturePanEnd, GestureID: gestureID})
}

func (e *Engine) Reset(ctx context.Context) (ViewState, error) {
	return e.Submit(ctx, Gesture{Kind: GestureReset})
}

func (e *Engine) Resize(ctx context.Context, width, height int) (ViewState, error) {
	return e.Submit(ctx, Gesture{Kind: GestureResize, Width: width, Height: height})
}
