// Package metrics2 reports counters, gauges and timings to Prometheus.
package metrics2

import (
	"sync"
)

// Int64Metric is a gauge holding an int64.
type Int64Metric interface {
	Get() int64
	Update(v int64)
}

// Float64Metric is a gauge holding a float64.
type Float64Metric interface {
	Get() float64
	Update(v float64)
}

// Float64SummaryMetric accumulates observations, e.g. durations.
type Float64SummaryMetric interface {
	Observe(v float64)
}

// Counter is an Int64Metric that is only moved relative to its current value.
type Counter interface {
	Get() int64
	Inc(i int64)
	Dec(i int64)
	Reset()
}

// Client creates metrics.
type Client interface {
	GetInt64Metric(name string, tags ...map[string]string) Int64Metric
	GetFloat64Metric(name string, tags ...map[string]string) Float64Metric
	GetFloat64SummaryMetric(name string, tags ...map[string]string) Float64SummaryMetric
	GetCounter(name string, tags ...map[string]string) Counter
	NewTimer(name string, tags ...map[string]string) Timer
}

var (
	defaultClientMtx sync.Mutex
	defaultClient    Client
)

// GetDefaultClient returns the process-wide Client, creating it on first use.
func GetDefaultClient() Client {
	defaultClientMtx.Lock()
	defer defaultClientMtx.Unlock()
	if defaultClient == nil {
		defaultClient = newPromClient()
	}
	return defaultClient
}

// GetInt64Metric returns a gauge from the default client.
func GetInt64Metric(name string, tags ...map[string]string) Int64Metric {
	return GetDefaultClient().GetInt64Metric(name, tags...)
}

// GetFloat64Metric returns a gauge from the default client.
func GetFloat64Metric(name string, tags ...map[string]string) Float64Metric {
	return GetDefaultClient().GetFloat64Metric(name, tags...)
}

// GetCounter returns a counter from the default client.
func GetCounter(name string, tags ...map[string]string) Counter {
	return GetDefaultClient().GetCounter(name, tags...)
}

// NewTimer starts a timer on the default client.
func NewTimer(name string, tags ...map[string]string) Timer {
	return GetDefaultClient().NewTimer(name, tags...)
}
