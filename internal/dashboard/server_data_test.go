package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"heatflow/config"
	"heatflow/internal/metrics"
	"heatflow/logger"
	"heatflow/processor"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(config.DashboardConfig{Enabled: true, RefreshInterval: time.Second, MetricsRetention: 10, LogsRetention: 10}, logger.Logger(), &fakeEngine{}, processor.NewFrameStore())
	if err != nil {
		t.Fatalf("NewServer error: %v", err)
	}
	t.Cleanup(srv.cleanup)
	return srv
}

func TestMetricsEndpointFiltersByStage(t *testing.T) {
	srv := newTestServer(t)
	log := logger.Logger()

	metrics.EmitMetric(log, "channels", "feed_buffer_length", 5, "gauge", logger.Fields{"capacity": 10})
	metrics.EmitDropMetric(log, metrics.DropMetricMalformed, "websocket", "json", "adapter")
	metrics.EmitMetric(log, "engine", "render_duration_ms", 1.5, "gauge", nil)

	router, err := srv.buildRouter("app")
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}

	res := do(router, http.MethodGet, "/api/metrics?stage=feed", "")
	if res.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", res.Code)
	}
	var body struct {
		Metrics []struct {
			Stage string `json:"stage"`
			Name  string `json:"name"`
		} `json:"metrics"`
		Counters map[string]float64 `json:"counters"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Metrics) == 0 {
		t.Fatal("expected feed metrics")
	}
	for _, m := range body.Metrics {
		if m.Stage != stageFeed || m.Name == "render_duration_ms" {
			t.Fatalf("non-feed metric returned: %+v", m)
		}
	}
	if body.Counters[string(metrics.DropMetricMalformed)] < 1 {
		t.Fatalf("counters = %v", body.Counters)
	}

	if res := do(router, http.MethodGet, "/api/metrics?stage=bogus", ""); res.Code != http.StatusBadRequest {
		t.Fatalf("bad stage status = %d", res.Code)
	}
}

func TestLogsEndpointLevelFilter(t *testing.T) {
	srv := newTestServer(t)
	srv.log.WithComponent("engine").Warn("frame encode slow")

	router, err := srv.buildRouter("app")
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}

	res := do(router, http.MethodGet, "/api/logs?stage=render&level=warn", "")
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	var body struct {
		Logs []logRecord `json:"logs"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, l := range body.Logs {
		if l.Stage != stageRender {
			t.Fatalf("record outside render stage: %+v", l)
		}
		if l.Message == "frame encode slow" {
			found = true
		}
	}
	if !found {
		t.Fatalf("warning not returned: %+v", body.Logs)
	}

	if res := do(router, http.MethodGet, "/api/logs?level=loud", ""); res.Code != http.StatusBadRequest {
		t.Fatalf("bad level status = %d", res.Code)
	}
}

func TestResourcesEndpointReportsEngine(t *testing.T) {
	srv := newTestServer(t)
	srv.resourceSampler.host = stubHost(nil)
	srv.resourceSampler.sample(context.Background(), time.Now())

	router, err := srv.buildRouter("app")
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}
	res := do(router, http.MethodGet, "/api/resources", "")
	var body struct {
		Resources []resourceSample `json:"resources"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Resources) != 1 || body.Resources[0].Engine.Frames != 3 || body.Resources[0].CPUPercent != 42.5 {
		t.Fatalf("resources = %+v", body.Resources)
	}
}
