package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"testing"
	"time"

	appconfig "heatflow/config"
	"heatflow/models"
)

func testConfig() *appconfig.Config {
	cfg := appconfig.Default()
	cfg.Heatmap.Capacity = 10
	cfg.Heatmap.Width = 100
	cfg.Heatmap.Height = 240
	cfg.Heatmap.RefreshInterval = 5 * time.Millisecond
	cfg.Orders.Capacity = 5
	return cfg
}

func startEngine(t *testing.T) (*Engine, *FrameStore, chan models.RawFeedMessage) {
	t.Helper()
	feed := make(chan models.RawFeedMessage, 16)
	store := NewFrameStore()
	engine := NewEngine(testConfig(), feed, store)
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(engine.Stop)
	return engine, store, feed
}

func waitForFrame(t *testing.T, store *FrameStore, ok func(Frame) bool) Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f, published := store.Latest(); published && ok(f) {
			return f
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for frame")
	return Frame{}
}

func snapshotJSON() models.RawFeedMessage {
	return jsonMessage(`{"type":"snapshot","timestamp":1,"bids":[{"price":100,"qty":5},{"price":99,"qty":3}],"asks":[{"price":101,"qty":4}]}`)
}

func TestEnginePublishesPlaceholderOnStart(t *testing.T) {
	_, store, _ := startEngine(t)

	f := waitForFrame(t, store, func(Frame) bool { return true })
	if f.View.Columns != 0 || f.View.Bounds != nil {
		t.Fatalf("first frame should be empty, got %+v", f.View)
	}
	img, err := png.Decode(bytes.NewReader(f.PNG))
	if err != nil {
		t.Fatalf("frame is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 240 {
		t.Fatalf("frame size = %v", img.Bounds())
	}
}

func TestEngineRendersIngestedSnapshot(t *testing.T) {
	_, store, feed := startEngine(t)

	feed <- snapshotJSON()
	f := waitForFrame(t, store, func(f Frame) bool { return f.View.Columns == 1 })

	if f.View.Bounds == nil {
		t.Fatal("expected usable bounds after a snapshot")
	}
	if f.View.MaxQty != 5 {
		t.Fatalf("maxQty = %v, want 5", f.View.MaxQty)
	}
	if f.View.ColumnWidth != 10 {
		t.Fatalf("column width = %d, want 10", f.View.ColumnWidth)
	}
}

func TestEngineOnlyRendersWhenDirty(t *testing.T) {
	engine, store, feed := startEngine(t)

	feed <- snapshotJSON()
	f := waitForFrame(t, store, func(f Frame) bool { return f.View.Columns == 1 })

	time.Sleep(50 * time.Millisecond)
	latest, _ := store.Latest()
	if latest.Seq != f.Seq {
		t.Fatalf("rendered %d extra frames without changes", latest.Seq-f.Seq)
	}
	if engine.Stats().Frames != int64(f.Seq) {
		t.Fatalf("stats frames = %d, want %d", engine.Stats().Frames, f.Seq)
	}
}

func TestEngineCountsMalformedMessages(t *testing.T) {
	engine, store, feed := startEngine(t)

	feed <- jsonMessage(`{"type":"nope"}`)
	feed <- jsonMessage(`not json`)
	feed <- snapshotJSON()
	waitForFrame(t, store, func(f Frame) bool { return f.View.Columns == 1 })

	if got := engine.Stats().Malformed; got != 2 {
		t.Fatalf("malformed = %d, want 2", got)
	}
	if got := engine.Stats().Snapshots; got != 1 {
		t.Fatalf("snapshots = %d, want 1", got)
	}
}

func TestEngineKeepsNewestOrders(t *testing.T) {
	_, store, feed := startEngine(t)

	for i := 0; i < 7; i++ {
		feed <- models.RawFeedMessage{
			Encoding: models.EncodingDecoded,
			Message: &models.FeedMessage{
				Type:   models.MessageTypeOrders,
				Orders: []models.OrderEntry{{Price: float64(i), Qty: 1, Side: models.OrderSideBuy}},
			},
		}
	}
	waitForFrame(t, store, func(f Frame) bool { return f.View.Orders == 5 && len(f.Orders) > 0 && f.Orders[0].Price == 6 })

	recent := store.Orders(2)
	if len(recent) != 2 || recent[0].Price != 6 || recent[1].Price != 5 {
		t.Fatalf("recent orders = %+v", recent)
	}
	if all := store.Orders(0); len(all) != 5 || all[4].Price != 2 {
		t.Fatalf("all orders = %+v", all)
	}
}

func TestEngineGestures(t *testing.T) {
	engine, store, feed := startEngine(t)
	ctx := context.Background()

	feed <- snapshotJSON()
	waitForFrame(t, store, func(f Frame) bool { return f.View.Columns == 1 })

	state, err := engine.Zoom(ctx, 0.5, 1)
	if err != nil {
		t.Fatalf("Zoom: %v", err)
	}
	if state.Viewport.AutoFollow {
		t.Fatal("zoom should leave auto-follow")
	}
	if got := state.Bounds.Max - state.Bounds.Min; got < 2.63 || got > 2.65 {
		t.Fatalf("zoomed range = %v, want 2.64", got)
	}

	start, err := engine.PanStart(ctx)
	if err != nil || start.GestureID == "" {
		t.Fatalf("PanStart: %+v, %v", start, err)
	}
	moved, err := engine.PanMove(ctx, start.GestureID, 20, 0)
	if err != nil {
		t.Fatalf("PanMove: %v", err)
	}
	if moved.Viewport.TimeOffset != 2 {
		t.Fatalf("time offset = %v, want 2", moved.Viewport.TimeOffset)
	}
	if _, err := engine.PanEnd(ctx, start.GestureID); err != nil {
		t.Fatalf("PanEnd: %v", err)
	}
	if _, err := engine.PanMove(ctx, start.GestureID, 1, 1); !errors.Is(err, ErrUnknownGesture) {
		t.Fatalf("move after end: %v, want ErrUnknownGesture", err)
	}

	reset, err := engine.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !reset.Viewport.AutoFollow || reset.Viewport.TimeOffset != 0 {
		t.Fatalf("reset viewport = %+v", reset.Viewport)
	}
}

func TestViewStateEncodesAfterRepeatedZoomOut(t *testing.T) {
	engine, store, feed := startEngine(t)
	ctx := context.Background()

	feed <- snapshotJSON()
	waitForFrame(t, store, func(f Frame) bool { return f.View.Columns == 1 })

	var state ViewState
	var err error
	for i := 0; i < 8000; i++ {
		if state, err = engine.Zoom(ctx, 0.5, 1); err != nil {
			t.Fatalf("Zoom %d: %v", i, err)
		}
	}
	if _, err := json.Marshal(state); err != nil {
		t.Fatalf("view after zooming out does not encode: %v (%+v)", err, state.Viewport)
	}
	if state.Bounds == nil {
		t.Fatal("zoomed view lost its bounds")
	}

	reset, err := engine.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := json.Marshal(reset); err != nil {
		t.Fatalf("view after reset does not encode: %v", err)
	}
}

func TestEngineResize(t *testing.T) {
	engine, store, _ := startEngine(t)
	ctx := context.Background()

	state, err := engine.Resize(ctx, 300, 120)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if state.Width != 300 || state.Height != 120 || state.ColumnWidth != 30 {
		t.Fatalf("state after resize = %+v", state)
	}
	waitForFrame(t, store, func(f Frame) bool { return f.Width == 300 && f.Height == 120 })

	if _, err := engine.Resize(ctx, 0, 120); !errors.Is(err, ErrInvalidCanvas) {
		t.Fatalf("zero width: %v, want ErrInvalidCanvas", err)
	}
}

func TestEngineStartTwice(t *testing.T) {
	engine, _, _ := startEngine(t)
	if err := engine.Start(context.Background()); err == nil {
		t.Fatal("expected error when starting twice")
	}
}

func TestEngineRejectsGesturesWhenStopped(t *testing.T) {
	engine := NewEngine(testConfig(), nil, nil)
	if _, err := engine.View(context.Background()); !errors.Is(err, ErrEngineStopped) {
		t.Fatalf("before start: %v, want ErrEngineStopped", err)
	}

	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	engine.Stop()
	if _, err := engine.Reset(context.Background()); !errors.Is(err, ErrEngineStopped) {
		t.Fatalf("after stop: %v, want ErrEngineStopped", err)
	}
}
