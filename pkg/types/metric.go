package types

import (
	"strconv"
	"time"
)

// Metric is one normalized sample ready to be forwarded to the time-series
// store. Name is a dotted path (namespace.component.device.field).
//
// A zero Timestamp means "use the emission time": the forwarder stamps the
// metric with the current time when it writes the line.
type Metric struct {
	Name      string
	Value     float64
	Timestamp time.Time
}

// HasTimestamp reports whether the metric carries its own sample time.
func (m Metric) HasTimestamp() bool {
	return !m.Timestamp.IsZero()
}

// FormatValue renders the value in a locale-independent decimal form with
// the minimal number of digits ("3", "4.5", "0.001").
func (m Metric) FormatValue() string {
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}
