package metrics

import "heatflow/logger"

// DropMetric identifies the metric name emitted when messages are dropped.
type DropMetric string

const (
	// DropMetricFeed records feed messages dropped because the feed buffer was full.
	DropMetricFeed DropMetric = "feed_messages_dropped"
	// DropMetricMalformed records feed messages dropped because they failed to decode.
	DropMetricMalformed DropMetric = "feed_messages_malformed"
	// DropMetricGesture records gestures rejected by the dashboard rate limiter.
	DropMetricGesture DropMetric = "gestures_dropped"
)

// EmitDropMetric logs and emits a metric for one dropped message and updates
// the matching Prometheus counter. Optional metadata (source, encoding,
// stage) is added to the metric fields when provided.
func EmitDropMetric(log *logger.Log, metric DropMetric, source, encoding, stage string) {
	fields := logger.Fields{}
	if source != "" {
		fields["source"] = source
	}
	if encoding != "" {
		fields["encoding"] = encoding
	}
	if stage != "" {
		fields["stage"] = stage
	}

	switch metric {
	case DropMetricFeed:
		IncFeedDropped(source)
	case DropMetricMalformed:
		IncMalformed(encoding)
	}

	EmitMetric(log, "drops", string(metric), 1, "counter", fields)
}
