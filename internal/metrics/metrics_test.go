package metrics

import (
	"context"
	"testing"
	"time"

	"predictflow/internal/channel"
	"predictflow/logger"
)

func TestEmitMetricWithoutClient(t *testing.T) {
	// No CloudWatch client configured: the metric should be recorded
	// locally without panicking.
	log := logger.GetLogger()
	EmitMetric(log, "test_component", "test_metric", int64(1), "counter", logger.Fields{"asset_id": "a1"})
	EmitMetric(log, "test_component", "bad_value", "not-a-number", "gauge", nil)
}

func TestEmitDropMetric(t *testing.T) {
	log := logger.GetLogger()
	EmitDropMetric(log, DropMetricPrice, "a1", "Finance")
	EmitDropMetric(log, DropMetricError, "", "")
}

func TestFeatureToggle(t *testing.T) {
	SetFeatureEnabled(FeatureChannelSize, false)
	if IsFeatureEnabled(FeatureChannelSize) {
		t.Fatal("feature should be disabled")
	}
	SetFeatureEnabled(FeatureChannelSize, true)
	if !IsFeatureEnabled(FeatureChannelSize) {
		t.Fatal("feature should be enabled")
	}
}

func TestStartChannelSizeMetrics(t *testing.T) {
	SetFeatureEnabled(FeatureChannelSize, true)
	ctx, cancel := context.WithCancel(context.Background())
	channels := channel.NewChannels(1, 1)
	StartChannelSizeMetrics(ctx, channels, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()
}
