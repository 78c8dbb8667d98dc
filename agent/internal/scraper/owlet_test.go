package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/telepoll/telepoll/agent/internal/config"
	"github.com/telepoll/telepoll/agent/internal/httpclient"
)

func owletTestNaming() config.NamingConfig {
	return config.NamingConfig{
		Apps: map[string]string{"SYS01": "dimmable", "SYS02": "metering"},
		Metrics: map[string]config.MetricSpec{
			"FDL": {Name: "dim_level_percent"},
			"FEC": {Name: "energy_consumption_kwh"},
		},
		Cities:    map[string]string{"GVA": "geneva"},
		Districts: map[string]string{"123": "servette"},
		Streets:   map[string]string{"4567": "rue_de_la_servette", "8910": "rue_liotard"},
	}
}

func startOwlet(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/CH_GVA_1234567_ROAD", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("UN") != "lights" || r.URL.Query().Get("PW") != "pw" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"CH_GVA_1234567_ROAD": {"SYS01": {"FDL": 42, "FXX": 1}, "SYS02": {"FEC": 3.25}, "SYS77": {"FDL": 5}}}`))
	})
	mux.HandleFunc("/CH_GVA_1238910_PARK", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/CH_GVA_1230000_NEW", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestOwlet(t *testing.T, endpoint string, devices ...string) *owletScraper {
	t.Helper()
	t.Setenv("TEST_OWLET_PASSWORD", "pw")
	s, err := New(config.Source{
		ID:       "owlet",
		Type:     "owlet",
		Endpoint: endpoint,
		Auth:     config.AuthConfig{Mode: "none", Username: "lights", PasswordEnv: "TEST_OWLET_PASSWORD"},
		Devices:  devices,
		Naming:   owletTestNaming(),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s.(*owletScraper)
}

func TestOwletScraper_Scrape(t *testing.T) {
	srv := startOwlet(t)
	s := newTestOwlet(t, srv.URL, "CH_GVA_1234567_ROAD")

	metrics, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() error: %v", err)
	}
	want := map[string]float64{
		"CH.geneva.servette.rue_de_la_servette.ROAD.dimmable-dim_level_percent":      42,
		"CH.geneva.servette.rue_de_la_servette.ROAD.metering-energy_consumption_kwh": 3.25,
	}
	got := metricValues(metrics)
	if len(got) != len(want) {
		t.Fatalf("metrics = %v, want %v", got, want)
	}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s = %v, want %v", name, got[name], v)
		}
	}
}

func TestOwletScraper_DeviceFailureIsolated(t *testing.T) {
	srv := startOwlet(t)
	s := newTestOwlet(t, srv.URL, "BROKEN", "CH_GVA_1238910_PARK", "CH_GVA_1230000_NEW", "CH_GVA_1234567_ROAD")

	metrics, err := s.Scrape(context.Background())
	if len(metrics) != 2 {
		t.Errorf("got %d metrics, want 2 from the healthy device", len(metrics))
	}
	if err == nil {
		t.Fatal("Scrape() error = nil, want joined device errors")
	}
	var httpErr *httpclient.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusBadGateway {
		t.Errorf("Scrape() error = %v, want wrapped 502 *HTTPError", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "BROKEN") || !strings.Contains(msg, "CH_GVA_1238910_PARK") {
		t.Errorf("error %q does not name both failed devices", msg)
	}
	// An empty payload is not a failure.
	if strings.Contains(msg, "CH_GVA_1230000_NEW") {
		t.Errorf("error %q names the empty device", msg)
	}
}

func TestOwletScraper_SetNaming(t *testing.T) {
	srv := startOwlet(t)
	s := newTestOwlet(t, srv.URL, "CH_GVA_1234567_ROAD")

	updated := owletTestNaming()
	updated.Apps = map[string]string{"SYS01": "dimmer"}
	updated.Cities = map[string]string{"GVA": "genf"}
	var u NamingUpdater = s
	u.SetNaming(updated)

	metrics, err := s.Scrape(context.Background())
	if err != nil {
		t.Fatalf("Scrape() error: %v", err)
	}
	got := metricValues(metrics)
	if len(got) != 1 || got["CH.genf.servette.rue_de_la_servette.ROAD.dimmer-dim_level_percent"] != 42 {
		t.Errorf("metrics after SetNaming = %v", got)
	}
}

func TestIsEmptyPayload(t *testing.T) {
	for _, body := range []string{"", " ", "null", "{}", "[]\n"} {
		if !isEmptyPayload([]byte(body)) {
			t.Errorf("isEmptyPayload(%q) = false, want true", body)
		}
	}
	if isEmptyPayload([]byte(`{"a":{}}`)) {
		t.Error(`isEmptyPayload({"a":{}}) = true, want false`)
	}
}
