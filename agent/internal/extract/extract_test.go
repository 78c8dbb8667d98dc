package extract

import (
	"testing"
	"time"

	"github.com/telepoll/telepoll/agent/internal/config"
	"github.com/telepoll/telepoll/pkg/types"
)

// owletNaming mirrors a realistic street-lighting naming convention.
func owletNaming() *Naming {
	return NewNaming(config.NamingConfig{
		Apps: map[string]string{"SYS01": "dimmable", "SYS02": "metering"},
		Metrics: map[string]config.MetricSpec{
			"FDL": {Name: "dim_level_percent"},
			"FEC": {Name: "energy_consumption_kwh"},
		},
		Cities:    map[string]string{"GVA": "geneva"},
		Districts: map[string]string{"123": "servette"},
		Streets:   map[string]string{"4567": "rue_de_la_servette", "8910": "rue_liotard"},
		Readers:   map[string]string{"R-001": "entrance"},
	})
}

func metricMap(ms []types.Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		out[m.Name] = m.Value
	}
	return out
}

func TestExtract_FlatSkipsBooleans(t *testing.T) {
	res, err := Extract("x", Payload{Shape: ShapeFlat, Body: []byte(`{"a": 3, "b": true, "c": 4.5}`)}, nil)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	got := metricMap(res.Metrics)
	if len(got) != 2 || got["x.a"] != 3 || got["x.c"] != 4.5 {
		t.Errorf("metrics = %v, want x.a=3 x.c=4.5", got)
	}
	if _, ok := got["x.b"]; ok {
		t.Error("boolean field x.b must not be emitted")
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Key != "b" || res.Skipped[0].Reason != ReasonNonNumeric {
		t.Errorf("Skipped = %+v, want one non-numeric skip for b", res.Skipped)
	}
}

func TestExtract_FlatOrderAndTypes(t *testing.T) {
	body := `{"zeta": 1, "alpha": -2.25, "name": "bin-7", "missing": null, "nested": {"x": 1}, "big": 1e21}`
	res, err := Extract("eco.CH.geneva.level", Payload{Shape: ShapeFlat, Body: []byte(body)}, nil)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	wantNames := []string{"eco.CH.geneva.level.alpha", "eco.CH.geneva.level.big", "eco.CH.geneva.level.zeta"}
	if len(res.Metrics) != len(wantNames) {
		t.Fatalf("got %d metrics, want %d: %+v", len(res.Metrics), len(wantNames), res.Metrics)
	}
	for i, name := range wantNames {
		if res.Metrics[i].Name != name {
			t.Errorf("Metrics[%d].Name = %q, want %q", i, res.Metrics[i].Name, name)
		}
		if res.Metrics[i].HasTimestamp() {
			t.Errorf("Metrics[%d] has a timestamp, want none", i)
		}
	}
	if res.Metrics[0].Value != -2.25 {
		t.Errorf("alpha = %v, want -2.25", res.Metrics[0].Value)
	}
	if len(res.Skipped) != 3 {
		t.Errorf("Skipped = %+v, want 3 entries", res.Skipped)
	}
}

func TestExtract_Tree(t *testing.T) {
	prefix := "CH.geneva.servette.rue_de_la_servette.1234567"
	body := `{"wrap": {"SYS01": {"FDL": 42}}}`
	res, err := Extract(prefix, Payload{Shape: ShapeTree, Body: []byte(body)}, owletNaming())
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if len(res.Metrics) != 1 {
		t.Fatalf("got %d metrics, want 1: %+v", len(res.Metrics), res.Metrics)
	}
	m := res.Metrics[0]
	if m.Name != "CH.geneva.servette.rue_de_la_servette.1234567.dimmable-dim_level_percent" {
		t.Errorf("Name = %q", m.Name)
	}
	if m.Value != 42 {
		t.Errorf("Value = %v, want 42", m.Value)
	}
}

func TestExtract_TreeSkipsUnknownIdentifiers(t *testing.T) {
	body := `{
		"device": {
			"SYS01": {"FDL": 80, "XXX": 1, "FEC": false},
			"SYS02": {"FEC": 12.5},
			"SYS99": {"FDL": 10}
		}
	}`
	res, err := Extract("p", Payload{Shape: ShapeTree, Body: []byte(body)}, owletNaming())
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	got := metricMap(res.Metrics)
	want := map[string]float64{
		"p.dimmable-dim_level_percent":      80,
		"p.metering-energy_consumption_kwh": 12.5,
	}
	if len(got) != len(want) {
		t.Fatalf("metrics = %v, want %v", got, want)
	}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s = %v, want %v", name, got[name], v)
		}
	}

	reasons := map[string]string{}
	for _, s := range res.Skipped {
		reasons[s.Key] = s.Reason
	}
	if reasons["SYS99"] != ReasonUnknownApp {
		t.Errorf("SYS99 skip = %q, want %q", reasons["SYS99"], ReasonUnknownApp)
	}
	if reasons["SYS01/XXX"] != ReasonUnknownMetric {
		t.Errorf("SYS01/XXX skip = %q, want %q", reasons["SYS01/XXX"], ReasonUnknownMetric)
	}
	if reasons["SYS01/FEC"] != ReasonNonNumeric {
		t.Errorf("SYS01/FEC skip = %q, want %q", reasons["SYS01/FEC"], ReasonNonNumeric)
	}
}

func TestExtract_TreeSkipsNonObjectValues(t *testing.T) {
	body := `{
		"wrap": {"SYS01": {"FDL": 42}, "status": "online", "SYS02": 7},
		"ts": 1700000000
	}`
	res, err := Extract("p", Payload{Shape: ShapeTree, Body: []byte(body)}, owletNaming())
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if len(res.Metrics) != 1 || res.Metrics[0].Name != "p.dimmable-dim_level_percent" || res.Metrics[0].Value != 42 {
		t.Fatalf("metrics = %+v, want only p.dimmable-dim_level_percent=42", res.Metrics)
	}

	reasons := map[string]string{}
	for _, s := range res.Skipped {
		reasons[s.Key] = s.Reason
	}
	want := map[string]string{
		"ts":     ReasonNotObject,
		"status": ReasonUnknownApp,
		"SYS02":  ReasonNotObject,
	}
	for key, reason := range want {
		if reasons[key] != reason {
			t.Errorf("%s skip = %q, want %q", key, reasons[key], reason)
		}
	}
}

func TestExtract_TreeNilNamingSkipsEverything(t *testing.T) {
	res, err := Extract("p", Payload{Shape: ShapeTree, Body: []byte(`{"w": {"SYS01": {"FDL": 1}}}`)}, nil)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if len(res.Metrics) != 0 {
		t.Errorf("metrics = %+v, want none", res.Metrics)
	}
}

func TestExtract_Samples(t *testing.T) {
	body := `[
		{"timestamp": 1700000000, "values": [1.5, 2, true]},
		{"timestamp": "2026-03-01T12:00:00Z", "values": [7]},
		{"values": [9]}
	]`
	res, err := Extract("xemtec.CH.geneva", Payload{Shape: ShapeSamples, Series: "entrance", Body: []byte(body)}, nil)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	want := []types.Metric{
		{Name: "xemtec.CH.geneva.entrance_1", Value: 1.5, Timestamp: time.Unix(1700000000, 0).UTC()},
		{Name: "xemtec.CH.geneva.entrance_2", Value: 2, Timestamp: time.Unix(1700000000, 0).UTC()},
		{Name: "xemtec.CH.geneva.entrance_1", Value: 7, Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{Name: "xemtec.CH.geneva.entrance_1", Value: 9},
	}
	if len(res.Metrics) != len(want) {
		t.Fatalf("got %d metrics, want %d: %+v", len(res.Metrics), len(want), res.Metrics)
	}
	for i := range want {
		got := res.Metrics[i]
		if got.Name != want[i].Name || got.Value != want[i].Value || !got.Timestamp.Equal(want[i].Timestamp) {
			t.Errorf("Metrics[%d] = %+v, want %+v", i, got, want[i])
		}
	}
	// The boolean third value is skipped but keeps its position in the index.
	if len(res.Skipped) != 1 || res.Skipped[0].Key != "xemtec.CH.geneva.entrance_3" {
		t.Errorf("Skipped = %+v, want entrance_3", res.Skipped)
	}
}

func TestExtract_MalformedPayload(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		body  string
	}{
		{"flat array", ShapeFlat, `[1, 2]`},
		{"flat garbage", ShapeFlat, `{nope`},
		{"tree array root", ShapeTree, `[{"w": {}}]`},
		{"samples object", ShapeSamples, `{"values": [1]}`},
		{"unknown shape", Shape(42), `{}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Extract("p", Payload{Shape: tc.shape, Body: []byte(tc.body)}, owletNaming()); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDeviceName(t *testing.T) {
	n := owletNaming()
	tests := []struct {
		id      string
		want    string
		wantErr bool
	}{
		{id: "CH_GVA_1234567_ROAD", want: "CH.geneva.servette.rue_de_la_servette.ROAD"},
		{id: "CH_GVA_1238910_PARK", want: "CH.geneva.servette.rue_liotard.PARK"},
		// Unknown codes fall back to the raw identifiers.
		{id: "FR_LYS_9990001_LAMP", want: "FR.LYS.999.0001.LAMP"},
		// The device segment may itself contain underscores.
		{id: "CH_GVA_1234567_ROAD_2", want: "CH.geneva.servette.rue_de_la_servette.ROAD_2"},
		{id: "CH_GVA_1234567", wantErr: true},
		// A bare district code leaves the street empty.
		{id: "CH_GVA_123_ROAD", want: "CH.geneva.servette..ROAD"},
		{id: "CH_GVA_12_ROAD", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			got, err := DeviceName(tc.id, n)
			if (err != nil) != tc.wantErr {
				t.Fatalf("DeviceName(%q) error = %v, wantErr %v", tc.id, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("DeviceName(%q) = %q, want %q", tc.id, got, tc.want)
			}
		})
	}
}

func TestDeviceName_PositionalSplit(t *testing.T) {
	n := NewNaming(config.NamingConfig{
		Districts: map[string]string{"123": "D"},
		Streets:   map[string]string{"4567": "S"},
	})
	got, err := DeviceName("CC_CITY_1234567_DEV", n)
	if err != nil {
		t.Fatalf("DeviceName() error: %v", err)
	}
	// district "123", street "4567"
	if got != "CC.CITY.D.S.DEV" {
		t.Errorf("DeviceName() = %q, want CC.CITY.D.S.DEV", got)
	}

	got, err = DeviceName("CC_CITY_1234_DEV", nil)
	if err != nil {
		t.Fatalf("DeviceName() error: %v", err)
	}
	if got != "CC.CITY.123.4.DEV" {
		t.Errorf("DeviceName() = %q, want CC.CITY.123.4.DEV", got)
	}
}

func TestNaming_DoesNotAliasConfig(t *testing.T) {
	cfg := config.NamingConfig{Cities: map[string]string{"GVA": "geneva"}}
	n := NewNaming(cfg)
	cfg.Cities["GVA"] = "changed"
	if got := n.City("GVA"); got != "geneva" {
		t.Errorf("City(GVA) = %q, want geneva", got)
	}
}
