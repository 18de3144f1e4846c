package metrics

import (
	"sync"

	"predictflow/logger"
)

// Feature identifies an optional metrics subsystem that can be toggled from
// configuration.
type Feature string

const (
	// FeatureChannelSize controls periodic buffer occupancy gauges.
	FeatureChannelSize Feature = "channel_size"
)

var (
	featureMu sync.RWMutex
	features  = map[Feature]bool{
		FeatureChannelSize: true,
	}
)

// SetFeatureEnabled toggles the given metrics feature at runtime.
func SetFeatureEnabled(f Feature, enabled bool) {
	featureMu.Lock()
	features[f] = enabled
	featureMu.Unlock()
}

// IsFeatureEnabled reports whether the given metrics feature is active.
func IsFeatureEnabled(f Feature) bool {
	featureMu.RLock()
	defer featureMu.RUnlock()
	return features[f]
}

type metricEvent struct {
	Component string
	Name      string
	Value     interface{}
	Type      string
	Fields    logger.Fields
}

// recordMetric logs the metric locally and returns the normalized event for
// publishing. A nil logger disables the metric entirely.
func recordMetric(log *logger.Log, component, metric string, value interface{}, metricType string, fields logger.Fields) (metricEvent, bool) {
	if log == nil {
		return metricEvent{}, false
	}
	if fields == nil {
		fields = logger.Fields{}
	}
	if metricType == "" {
		metricType = "counter"
	}

	logFields := logger.Fields{
		"metric":      metric,
		"value":       value,
		"metric_type": metricType,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	log.WithComponent(component).WithFields(logFields).Debug("metric")

	return metricEvent{
		Component: component,
		Name:      metric,
		Value:     value,
		Type:      metricType,
		Fields:    fields,
	}, true
}
