package metrics

import "predictflow/logger"

// DropMetric identifies the metric name emitted when channel messages are dropped.
type DropMetric string

const (
	// DropMetricPrice records dropped price change events.
	DropMetricPrice DropMetric = "price_events_dropped"
	// DropMetricTrade records dropped trade events.
	DropMetricTrade DropMetric = "trade_events_dropped"
	// DropMetricBook records dropped order book events.
	DropMetricBook DropMetric = "book_events_dropped"
	// DropMetricError records dropped error notifications.
	DropMetricError DropMetric = "error_events_dropped"
)

// EmitDropMetric logs and emits a metric representing a dropped channel
// message. The metric value is always incremented by one so callers should
// invoke this helper for each dropped message. Optional metadata (asset,
// category) is added to the metric fields when provided which enables
// downstream aggregation per instrument and category.
func EmitDropMetric(log *logger.Log, metric DropMetric, assetID, category string) {
	fields := logger.Fields{}
	if assetID != "" {
		fields["asset_id"] = assetID
	}
	if category != "" {
		fields["category"] = category
	}

	EmitMetric(log, "channel_drops", string(metric), 1, "counter", fields)
}
