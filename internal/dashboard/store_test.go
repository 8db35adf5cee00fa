package dashboard

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"heatflow/internal/metrics"
	"heatflow/logger"
)

func TestRingKeepsNewest(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.push(i)
	}
	got := r.collect(nil)
	if len(got) != 3 || got[0] != 3 || got[2] != 5 {
		t.Fatalf("ring = %v, want [3 4 5]", got)
	}
	if even := r.collect(func(v int) bool { return v%2 == 0 }); len(even) != 1 || even[0] != 4 {
		t.Fatalf("filtered = %v, want [4]", even)
	}
	if last, ok := r.last(); !ok || last != 5 {
		t.Fatalf("last = %v %v", last, ok)
	}
	if _, ok := newRing[int](0).last(); ok {
		t.Fatal("empty ring reported a last item")
	}
}

func TestComponentStage(t *testing.T) {
	cases := map[string]string{
		"nats_reader":      stageFeed,
		"adapter":          stageFeed,
		"channels":         stageFeed,
		"engine":           stageRender,
		"processor":        stageRender,
		"heatmap":          stageRender,
		"dashboard":        stageDashboard,
		"resource_sampler": stageDashboard,
		"main":             stageSystem,
		"":                 stageSystem,
	}
	for component, want := range cases {
		if got := componentStage(component); got != want {
			t.Errorf("componentStage(%q) = %q, want %q", component, got, want)
		}
	}
}

func malformedDrop() metrics.Metric {
	return metrics.Metric{
		Component: "drops",
		Name:      string(metrics.DropMetricMalformed),
		Value:     1,
		Type:      "counter",
		Fields:    logger.Fields{"stage": "adapter", "encoding": "wire-orders"},
	}
}

func TestMetricStoreFiltersByStage(t *testing.T) {
	store := newMetricStore(10)
	store.handle(malformedDrop())
	store.handle(malformedDrop())
	store.handle(metrics.Metric{Component: "engine", Name: "render_duration_ms", Value: 2.5, Type: "gauge"})
	store.handle(metrics.Metric{Component: "drops", Name: string(metrics.DropMetricGesture), Value: 1, Type: "counter", Fields: logger.Fields{"stage": "/api/viewport/zoom"}})
	store.handle(metrics.Metric{Component: "report", Name: "uptime", Value: 9, Type: "gauge"})

	cases := []struct {
		filter metricFilter
		want   int
	}{
		{metricFilter{}, 5},
		{metricFilter{Stage: stageFeed}, 2},
		{metricFilter{Stage: stageRender}, 1},
		{metricFilter{Stage: stageDashboard}, 1},
		{metricFilter{Stage: stageSystem}, 1},
		{metricFilter{Name: "render_duration_ms"}, 1},
		{metricFilter{Stage: stageFeed, Name: "render_duration_ms"}, 0},
	}
	for _, tc := range cases {
		if got := len(store.query(tc.filter)); got != tc.want {
			t.Errorf("query(%+v) returned %d metrics, want %d", tc.filter, got, tc.want)
		}
	}
}

func TestMetricStoreCountersSurviveEviction(t *testing.T) {
	store := newMetricStore(2)
	for i := 0; i < 5; i++ {
		store.handle(malformedDrop())
	}
	store.handle(metrics.Metric{Component: "engine", Name: "render_duration_ms", Value: 4.0, Type: "gauge"})

	if n := len(store.query(metricFilter{})); n != 2 {
		t.Fatalf("retained %d metrics, want 2", n)
	}
	counters := store.counters()
	if counters[string(metrics.DropMetricMalformed)] != 5 {
		t.Fatalf("malformed total = %v, want 5", counters)
	}
	if _, ok := counters["render_duration_ms"]; ok {
		t.Fatal("gauges must not be accumulated")
	}
}

func TestMetricStoreReceivesDropMetrics(t *testing.T) {
	store := newMetricStore(10)
	id := metrics.RegisterMetricHandler(store.handle)
	t.Cleanup(func() { metrics.UnregisterMetricHandler(id) })

	metrics.EmitDropMetric(nil, metrics.DropMetricMalformed, "nats", "wire-orders", "adapter")

	found := store.query(metricFilter{Stage: stageFeed, Name: string(metrics.DropMetricMalformed)})
	if len(found) != 1 {
		t.Fatalf("expected the malformed drop in the feed stage, got %+v", store.query(metricFilter{}))
	}
	if found[0].Fields["encoding"] != "wire-orders" {
		t.Fatalf("drop fields = %+v", found[0].Fields)
	}
}

func fire(t *testing.T, store *logStore, level logrus.Level, component, msg string, data logrus.Fields) {
	t.Helper()
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Unix(10, 0)
	entry.Level = level
	entry.Message = msg
	entry.Data = logrus.Fields{"component": component}
	for k, v := range data {
		entry.Data[k] = v
	}
	if err := store.Fire(entry); err != nil {
		t.Fatalf("Fire: %v", err)
	}
}

func TestLogStoreFiltersByStageAndLevel(t *testing.T) {
	store := newLogStore(10)
	fire(t, store, logrus.WarnLevel, "nats_reader", "nats disconnected", logrus.Fields{"error": errors.New("eof")})
	fire(t, store, logrus.InfoLevel, "engine", "starting engine", nil)
	fire(t, store, logrus.ErrorLevel, "engine", "failed to encode frame", nil)
	fire(t, store, logrus.DebugLevel, "dashboard", "request", nil)

	cases := []struct {
		filter logFilter
		want   int
	}{
		{logFilter{MinLevel: logrus.TraceLevel}, 4},
		{logFilter{Stage: stageRender, MinLevel: logrus.TraceLevel}, 2},
		{logFilter{MinLevel: logrus.WarnLevel}, 2},
		{logFilter{Stage: stageRender, MinLevel: logrus.WarnLevel}, 1},
		{logFilter{Stage: stageDashboard, MinLevel: logrus.InfoLevel}, 0},
	}
	for _, tc := range cases {
		if got := len(store.query(tc.filter)); got != tc.want {
			t.Errorf("query(%+v) returned %d records, want %d", tc.filter, got, tc.want)
		}
	}

	feed := store.query(logFilter{Stage: stageFeed, MinLevel: logrus.TraceLevel})
	if len(feed) != 1 || feed[0].Component != "nats_reader" || feed[0].Fields["error"] != "eof" {
		t.Fatalf("feed record = %+v", feed)
	}
	if _, ok := feed[0].Fields["component"]; ok {
		t.Fatal("component should not be repeated in fields")
	}
}

func TestLogStoreIgnoresEntriesAfterClose(t *testing.T) {
	store := newLogStore(2)
	fire(t, store, logrus.InfoLevel, "engine", "one", nil)
	store.close()
	fire(t, store, logrus.InfoLevel, "engine", "two", nil)

	if got := store.query(logFilter{MinLevel: logrus.TraceLevel}); len(got) != 1 || got[0].Message != "one" {
		t.Fatalf("records after close = %+v", got)
	}
}
