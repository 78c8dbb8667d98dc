package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validYAML = `
agent:
  sink_address: "127.0.0.1:2003"
  collect_interval: 30s
  sources:
    - id: eco
      type: ecowaste
      endpoint: "http://mycity.ecowaste.ch"
      client_identifier: mycity
      country: CH
      city: mycity
      weight_flows:
        waste: 1234
      auth:
        mode: session
        username: collector
        password_env: ECO_PASSWORD
    - id: lights
      type: owlet
      endpoint: "https://owlet.example.com/api"
      devices: [CH_GVA_1234567_ROAD]
      auth:
        mode: mtls
        cert_file: owlet.pem
      naming:
        apps:
          SYS01: dimmable
        metrics:
          FDL: {name: dim_level_percent}
        cities:
          GVA: geneva
`

func TestLoad_Valid(t *testing.T) {
	cfg := loadFromString(t, validYAML)

	if cfg.Agent.SinkAddress != "127.0.0.1:2003" {
		t.Errorf("sink_address: got %q", cfg.Agent.SinkAddress)
	}
	if cfg.Agent.CollectInterval != 30*time.Second {
		t.Errorf("collect_interval: got %v", cfg.Agent.CollectInterval)
	}
	if len(cfg.Agent.Sources) != 2 {
		t.Fatalf("sources: got %d, want 2", len(cfg.Agent.Sources))
	}
	eco := cfg.Agent.Sources[0]
	if eco.WeightFlows["waste"] != 1234 {
		t.Errorf("weight_flows[waste]: got %d", eco.WeightFlows["waste"])
	}
	if eco.MetricName() != "ecowaste" {
		t.Errorf("MetricName() = %q, want type as default", eco.MetricName())
	}
	owlet := cfg.Agent.Sources[1]
	if got := owlet.Naming.Metrics["FDL"].Name; got != "dim_level_percent" {
		t.Errorf("naming.metrics[FDL].name: got %q", got)
	}
	if got := owlet.Naming.Cities["GVA"]; got != "geneva" {
		t.Errorf("naming.cities[GVA]: got %q", got)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, `
agent:
  sink_address: "localhost:2003"
`)
	if cfg.Agent.CollectInterval != DefaultCollectInterval {
		t.Errorf("default collect_interval: got %v, want %v", cfg.Agent.CollectInterval, DefaultCollectInterval)
	}
	if cfg.Agent.SinkTimeout != DefaultSinkTimeout {
		t.Errorf("default sink_timeout: got %v, want %v", cfg.Agent.SinkTimeout, DefaultSinkTimeout)
	}
	if cfg.Agent.Status.TTL != DefaultStatusTTL {
		t.Errorf("default status ttl: got %v, want %v", cfg.Agent.Status.TTL, DefaultStatusTTL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing sink", `
agent:
  sources: []
`},
		{"sink without port", `
agent:
  sink_address: "localhost"
`},
		{"unknown type", `
agent:
  sink_address: "localhost:2003"
  sources:
    - id: mystery
      type: unknowntype
      endpoint: "http://localhost"
`},
		{"unknown auth mode", `
agent:
  sink_address: "localhost:2003"
  sources:
    - id: x
      type: xemtec
      endpoint: "http://localhost"
      country: CH
      city: bern
      auth: {mode: magictoken}
`},
		{"ecowaste without session", `
agent:
  sink_address: "localhost:2003"
  sources:
    - id: eco
      type: ecowaste
      endpoint: "http://localhost"
      client_identifier: c
      country: CH
      city: bern
      auth: {mode: basic}
`},
		{"owlet without devices", `
agent:
  sink_address: "localhost:2003"
  sources:
    - id: o
      type: owlet
      endpoint: "http://localhost"
`},
		{"mtls without cert", `
agent:
  sink_address: "localhost:2003"
  sources:
    - id: o
      type: owlet
      endpoint: "http://localhost"
      devices: [CH_GVA_1234567_ROAD]
      auth: {mode: mtls}
`},
		{"duplicate id", `
agent:
  sink_address: "localhost:2003"
  sources:
    - {id: x, type: xemtec, endpoint: "http://a", country: CH, city: bern}
    - {id: x, type: xemtec, endpoint: "http://b", country: CH, city: bern}
`},
		{"metric without name", `
agent:
  sink_address: "localhost:2003"
  sources:
    - id: o
      type: owlet
      endpoint: "http://localhost"
      devices: [CH_GVA_1234567_ROAD]
      naming:
        metrics:
          FDL: {}
`},
		{"unknown status auth", `
agent:
  sink_address: "localhost:2003"
  status:
    listen: ":9108"
    auth: {mode: oauth}
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAuthConfig_Password(t *testing.T) {
	t.Setenv("TEST_SOURCE_PASSWORD", "supersecret")
	a := AuthConfig{Mode: "basic", PasswordEnv: "TEST_SOURCE_PASSWORD"}
	if got := a.Password(); got != "supersecret" {
		t.Errorf("Password(): got %q, want %q", got, "supersecret")
	}
	if got := (AuthConfig{Mode: "basic"}).Password(); got != "" {
		t.Errorf("Password() with no PasswordEnv: got %q, want empty", got)
	}
}

func TestStatusAuthConfig(t *testing.T) {
	t.Setenv("TEST_STATUS_KEY", "k")
	a := StatusAuthConfig{Mode: "apikey", KeyEnv: "TEST_STATUS_KEY"}
	if got := a.Key(); got != "k" {
		t.Errorf("Key(): got %q", got)
	}
	if got := a.EffectiveHeader(); got != DefaultStatusHeader {
		t.Errorf("EffectiveHeader(): got %q, want %q", got, DefaultStatusHeader)
	}
	a.Header = "X-Status-Key"
	if got := a.EffectiveHeader(); got != "X-Status-Key" {
		t.Errorf("EffectiveHeader(): got %q", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) { got <- cfg })
	}()

	updated := validYAML + "\n" // content change is irrelevant; a write must trigger
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-got:
			if len(cfg.Agent.Sources) != 2 {
				t.Errorf("reloaded sources: got %d, want 2", len(cfg.Agent.Sources))
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch returned %v", err)
			}
			return
		case <-tick.C:
			// The watcher may not be registered yet; keep writing until it is.
			_ = os.WriteFile(path, []byte(updated), 0o600)
		case <-deadline:
			t.Fatal("onChange was not called after the file was rewritten")
		}
	}
}

func TestWatch_InvalidReloadKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	calls := 0
	reload(path+".missing", func(*Config) { calls++ })
	if calls != 0 {
		t.Errorf("onChange called %d times for an unreadable file, want 0", calls)
	}
	reload(path, func(*Config) { calls++ })
	if calls != 1 {
		t.Errorf("onChange called %d times for a valid file, want 1", calls)
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
