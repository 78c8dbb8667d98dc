package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/telepoll/telepoll/pkg/types"
)

// Shape tags the layout of a raw payload. Adapters know which shape each
// resource returns and set it explicitly.
type Shape int

const (
	// ShapeFlat is a JSON object of field → number.
	ShapeFlat Shape = iota
	// ShapeTree is {wrapper: {application: {metric: number}}}.
	ShapeTree
	// ShapeSamples is [{"timestamp": ..., "values": [number, ...]}, ...].
	ShapeSamples
)

func (s Shape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeTree:
		return "tree"
	case ShapeSamples:
		return "samples"
	default:
		return "shape(" + strconv.Itoa(int(s)) + ")"
	}
}

// Payload is one raw JSON document returned by a data source.
type Payload struct {
	Shape Shape
	Body  []byte

	// Series is the display name of the reader that produced a ShapeSamples
	// payload. Ignored for the other shapes.
	Series string
}

// Skip records a value that was deliberately not turned into a metric.
// Skips are expected (schema drift, non-numeric fields) and are not errors.
type Skip struct {
	Key    string
	Reason string
}

// Skip reasons.
const (
	ReasonNonNumeric    = "non-numeric value"
	ReasonUnknownApp    = "unknown application"
	ReasonUnknownMetric = "unknown metric"
	ReasonNotObject     = "not an object"
)

// Result is the outcome of one extraction.
type Result struct {
	Metrics []types.Metric
	Skipped []Skip
}

// Extract turns p into metrics named under prefix. Metrics are returned in a
// stable order. An error is returned only when the payload does not have the
// declared shape.
func Extract(prefix string, p Payload, n *Naming) (Result, error) {
	switch p.Shape {
	case ShapeFlat:
		return extractFlat(prefix, p.Body)
	case ShapeTree:
		return extractTree(prefix, p.Body, n)
	case ShapeSamples:
		return extractSamples(prefix, p.Series, p.Body)
	default:
		return Result{}, fmt.Errorf("extract: unsupported shape %s", p.Shape)
	}
}

func extractFlat(prefix string, body []byte) (Result, error) {
	var obj map[string]any
	if err := decode(body, &obj); err != nil {
		return Result{}, fmt.Errorf("extract: flat payload: %w", err)
	}

	var res Result
	for _, key := range sortedKeys(obj) {
		v, ok := number(obj[key])
		if !ok {
			res.Skipped = append(res.Skipped, Skip{Key: key, Reason: ReasonNonNumeric})
			continue
		}
		res.Metrics = append(res.Metrics, types.Metric{Name: prefix + "." + key, Value: v})
	}
	return res, nil
}

func extractTree(prefix string, body []byte, n *Naming) (Result, error) {
	var root map[string]json.RawMessage
	if err := decode(body, &root); err != nil {
		return Result{}, fmt.Errorf("extract: tree payload: %w", err)
	}

	var res Result
	for _, wrapper := range sortedKeys(root) {
		var apps map[string]json.RawMessage
		if !object(root[wrapper], &apps) {
			res.Skipped = append(res.Skipped, Skip{Key: wrapper, Reason: ReasonNotObject})
			continue
		}
		for _, appID := range sortedKeys(apps) {
			appName, ok := n.App(appID)
			if !ok {
				res.Skipped = append(res.Skipped, Skip{Key: appID, Reason: ReasonUnknownApp})
				continue
			}
			var fields map[string]any
			if !object(apps[appID], &fields) {
				res.Skipped = append(res.Skipped, Skip{Key: appID, Reason: ReasonNotObject})
				continue
			}
			for _, metricID := range sortedKeys(fields) {
				metricName, ok := n.Metric(metricID)
				if !ok {
					res.Skipped = append(res.Skipped, Skip{Key: appID + "/" + metricID, Reason: ReasonUnknownMetric})
					continue
				}
				v, ok := number(fields[metricID])
				if !ok {
					res.Skipped = append(res.Skipped, Skip{Key: appID + "/" + metricID, Reason: ReasonNonNumeric})
					continue
				}
				res.Metrics = append(res.Metrics, types.Metric{
					Name:  prefix + "." + appName + "-" + metricName,
					Value: v,
				})
			}
		}
	}
	return res, nil
}

// object decodes raw into v and reports whether raw is a JSON object.
// A null is not an object.
func object[V any](raw json.RawMessage, v *map[string]V) bool {
	return decode(raw, v) == nil && *v != nil
}

type sample struct {
	Timestamp any   `json:"timestamp"`
	Values    []any `json:"values"`
}

func extractSamples(prefix, series string, body []byte) (Result, error) {
	var samples []sample
	if err := decode(body, &samples); err != nil {
		return Result{}, fmt.Errorf("extract: samples payload: %w", err)
	}

	var res Result
	for _, s := range samples {
		ts := sampleTime(s.Timestamp)
		for i, raw := range s.Values {
			name := prefix + "." + series + "_" + strconv.Itoa(i+1)
			v, ok := number(raw)
			if !ok {
				res.Skipped = append(res.Skipped, Skip{Key: name, Reason: ReasonNonNumeric})
				continue
			}
			res.Metrics = append(res.Metrics, types.Metric{Name: name, Value: v, Timestamp: ts})
		}
	}
	return res, nil
}

// sampleTime accepts epoch seconds or an RFC 3339 string. Anything else
// yields the zero time, which the forwarder replaces with the emission time.
func sampleTime(raw any) time.Time {
	switch t := raw.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil || f <= 0 {
			return time.Time{}
		}
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}
		}
		return parsed.UTC()
	default:
		return time.Time{}
	}
}

// number reports whether v is a JSON number. Booleans, strings, nulls and
// containers are rejected.
func number(v any) (float64, bool) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// decode unmarshals body keeping numbers as json.Number so they are never
// confused with other scalar kinds.
func decode(body []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
