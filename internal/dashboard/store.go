package dashboard

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"heatflow/internal/metrics"
)

// Pipeline stages the dashboard groups metrics and logs by.
const (
	stageFeed      = "feed"
	stageRender    = "render"
	stageDashboard = "dashboard"
	stageSystem    = "system"
)

const defaultRetention = 200

// ring keeps the newest limit items pushed to it.
type ring[T any] struct {
	mu    sync.RWMutex
	items []T
	limit int
}

func newRing[T any](limit int) *ring[T] {
	if limit <= 0 {
		limit = defaultRetention
	}
	return &ring[T]{limit: limit, items: make([]T, 0, limit)}
}

func (r *ring[T]) push(v T) {
	r.mu.Lock()
	if len(r.items) == r.limit {
		copy(r.items, r.items[1:])
		r.items[len(r.items)-1] = v
	} else {
		r.items = append(r.items, v)
	}
	r.mu.Unlock()
}

// collect returns a copy of the retained items, oldest first, that keep
// accepts. A nil keep returns everything.
func (r *ring[T]) collect(keep func(T) bool) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(r.items))
	for _, v := range r.items {
		if keep == nil || keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (r *ring[T]) last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var zero T
	if len(r.items) == 0 {
		return zero, false
	}
	return r.items[len(r.items)-1], true
}

// componentStage maps a logger or metric component onto a pipeline stage.
func componentStage(component string) string {
	c := strings.ToLower(component)
	switch {
	case strings.Contains(c, "reader"), strings.Contains(c, "adapter"), strings.Contains(c, "feed"), strings.Contains(c, "channel"):
		return stageFeed
	case strings.Contains(c, "engine"), strings.Contains(c, "render"), c == "processor", c == "heatmap":
		return stageRender
	case strings.Contains(c, "dashboard"), strings.Contains(c, "resource"):
		return stageDashboard
	default:
		return stageSystem
	}
}

// metricStage classifies m. Drop counters carry the stage they were dropped
// at in their fields.
func metricStage(m metrics.Metric) string {
	switch {
	case strings.HasPrefix(m.Name, "render_"), strings.HasPrefix(m.Name, "frame_"):
		return stageRender
	case strings.HasPrefix(m.Name, "gestures_"):
		return stageDashboard
	case strings.HasPrefix(m.Name, "feed_"):
		return stageFeed
	}
	if stage, ok := m.Fields["stage"].(string); ok && stage != "" {
		return componentStage(stage)
	}
	return componentStage(m.Component)
}

// metricFilter selects metrics by stage and name. Empty fields match all.
type metricFilter struct {
	Stage string
	Name  string
}

func (f metricFilter) match(m metrics.Metric) bool {
	if f.Name != "" && m.Name != f.Name {
		return false
	}
	return f.Stage == "" || metricStage(m) == f.Stage
}

// metricStore retains recent metric events plus running totals per metric
// name so drop counters survive eviction from the window.
type metricStore struct {
	recent *ring[metrics.Metric]

	mu     sync.Mutex
	totals map[string]float64
}

func newMetricStore(limit int) *metricStore {
	return &metricStore{recent: newRing[metrics.Metric](limit), totals: map[string]float64{}}
}

func (s *metricStore) handle(m metrics.Metric) {
	s.recent.push(m)
	if m.Type != "counter" {
		return
	}
	if v, ok := numeric(m.Value); ok {
		s.mu.Lock()
		s.totals[m.Name] += v
		s.mu.Unlock()
	}
}

func (s *metricStore) query(f metricFilter) []metrics.Metric {
	return s.recent.collect(f.match)
}

// counters returns the accumulated value of every counter metric seen.
func (s *metricStore) counters() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.totals))
	for k, v := range s.totals {
		out[k] = v
	}
	return out
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

// logRecord is a captured log line as served by /api/logs.
type logRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Stage     string                 `json:"stage"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`

	level logrus.Level
}

// logFilter selects log records by stage and minimum severity.
type logFilter struct {
	Stage    string
	MinLevel logrus.Level
}

func (f logFilter) match(r logRecord) bool {
	if r.level > f.MinLevel {
		return false
	}
	return f.Stage == "" || r.Stage == f.Stage
}

// logStore is a logrus hook keeping the newest log lines for the dashboard.
type logStore struct {
	recent  *ring[logRecord]
	enabled atomic.Bool
}

func newLogStore(limit int) *logStore {
	ls := &logStore{recent: newRing[logRecord](limit)}
	ls.enabled.Store(true)
	return ls
}

func (s *logStore) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (s *logStore) Fire(entry *logrus.Entry) error {
	if !s.enabled.Load() {
		return nil
	}

	component, _ := entry.Data["component"].(string)
	record := logRecord{
		Timestamp: entry.Time,
		Level:     entry.Level.String(),
		Stage:     componentStage(component),
		Component: component,
		Message:   entry.Message,
		level:     entry.Level,
	}

	for k, v := range entry.Data {
		if k == "component" {
			continue
		}
		if record.Fields == nil {
			record.Fields = make(map[string]interface{}, len(entry.Data))
		}
		switch val := v.(type) {
		case error:
			record.Fields[k] = val.Error()
		case fmt.Stringer:
			record.Fields[k] = val.String()
		default:
			record.Fields[k] = val
		}
	}

	s.recent.push(record)
	return nil
}

func (s *logStore) query(f logFilter) []logRecord {
	return s.recent.collect(f.match)
}

func (s *logStore) close() {
	s.enabled.Store(false)
}
