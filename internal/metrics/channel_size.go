package metrics

import (
	"context"
	"time"

	"predictflow/internal/channel"
	"predictflow/logger"
)

// StartChannelSizeMetrics emits occupancy metrics for the typed event channel
// buffers. Metrics are logged every `interval` until the context is
// cancelled. When interval <= 0, a one-second cadence is used.
func StartChannelSizeMetrics(ctx context.Context, channels *channel.Channels, interval time.Duration) {
	if !IsFeatureEnabled(FeatureChannelSize) {
		return
	}
	if channels == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)
	component := "channel_buffers"

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				EmitMetric(log, component, "price_buffer_length", len(channels.Prices), "gauge", logger.Fields{
					"buffer":   "prices",
					"capacity": cap(channels.Prices),
				})
				EmitMetric(log, component, "trade_buffer_length", len(channels.Trades), "gauge", logger.Fields{
					"buffer":   "trades",
					"capacity": cap(channels.Trades),
				})
				EmitMetric(log, component, "book_buffer_length", len(channels.Books), "gauge", logger.Fields{
					"buffer":   "books",
					"capacity": cap(channels.Books),
				})
				EmitMetric(log, component, "error_buffer_length", len(channels.Errors), "gauge", logger.Fields{
					"buffer":   "errors",
					"capacity": cap(channels.Errors),
				})
			}
		}
	}()
}
