package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultCollectInterval = 60 * time.Second
	DefaultSinkTimeout     = 5 * time.Second
	DefaultStatusTTL       = 10 * time.Minute
	DefaultStatusHeader    = "X-API-Key"
)

// Config is the top-level configuration for the agent.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings.
type AgentConfig struct {
	// SinkAddress is the host:port of the plaintext line-protocol listener
	// (Graphite carbon, usually port 2003).
	SinkAddress string `yaml:"sink_address"`

	// SinkTimeout bounds the dial and the write of one forwarding call.
	SinkTimeout time.Duration `yaml:"sink_timeout"`

	// CollectInterval is the target wall-clock period of one collection pass.
	CollectInterval time.Duration `yaml:"collect_interval"`

	// Sources is the list of data sources to poll. Each one gets its own
	// collector with an independent session.
	Sources []Source `yaml:"sources"`

	// Status configures the optional HTTP status API.
	Status StatusConfig `yaml:"status"`
}

// Source describes one polled data source.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Type selects the adapter: ecowaste | owlet | xemtec.
	Type string `yaml:"type"`

	// Name is the root segment of every metric emitted by this source.
	// Defaults to Type.
	Name string `yaml:"name"`

	// Endpoint is the base URL of the data source API.
	Endpoint string `yaml:"endpoint"`

	// Auth configures how the agent authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`

	// ClientIdentifier and ApplicationName are sent in the token request
	// of session-authenticated sources.
	ClientIdentifier string `yaml:"client_identifier"`
	ApplicationName  string `yaml:"application_name"`

	// Country and City prefix the metric names of site-wide sources.
	Country string `yaml:"country"`
	City    string `yaml:"city"`

	// WeightFlows maps a flow display name to its remote flow type id (ecowaste).
	WeightFlows map[string]int `yaml:"weight_flows"`

	// Devices lists device identifiers of the form COUNTRY_CITY_DDDSSS_DEVICE (owlet).
	Devices []string `yaml:"devices"`

	// Readers lists reader serials to poll (xemtec). Empty means autodetect.
	Readers []string `yaml:"readers"`

	// Naming maps raw remote identifiers to display segments.
	Naming NamingConfig `yaml:"naming"`
}

// MetricName returns the metric namespace root of the source.
func (s Source) MetricName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Type
}

// NamingConfig holds the lookup tables of the naming convention.
// Every table falls back to the raw identifier when a key is absent.
type NamingConfig struct {
	Apps      map[string]string     `yaml:"apps"`
	Metrics   map[string]MetricSpec `yaml:"metrics"`
	Cities    map[string]string     `yaml:"cities"`
	Districts map[string]string     `yaml:"districts"`
	Streets   map[string]string     `yaml:"streets"`
	Readers   map[string]string     `yaml:"readers"`
}

// MetricSpec describes one tracked remote metric identifier.
type MetricSpec struct {
	Name string `yaml:"name"`
}

// AuthConfig specifies the authentication mode for a source.
type AuthConfig struct {
	// Mode is one of: session | basic | mtls | none.
	Mode string `yaml:"mode"`

	// mTLS fields, used when Mode == "mtls". KeyFile may be empty when
	// CertFile is a combined PEM holding both certificate and key.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// Username is the literal username (safe to store in config).
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`

	// Header is the request header carrying the session token.
	// Used when Mode == "session"; defaults to X-Client-Token.
	Header string `yaml:"header"`

	// TokenPath overrides the token request path of session sources.
	TokenPath string `yaml:"token_path"`
}

// Password returns the password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// StatusConfig configures the HTTP status API.
type StatusConfig struct {
	// Listen is the address the status API binds to. Empty disables it.
	Listen string `yaml:"listen"`

	// TTL is how long a source's last cycle report stays visible.
	TTL time.Duration `yaml:"ttl"`

	// Auth configures request authentication for the status API.
	Auth StatusAuthConfig `yaml:"auth"`
}

// StatusAuthConfig configures status API authentication.
type StatusAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the request header holding the key. Defaults to X-API-Key.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable holding the expected key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the status API key resolved from the environment.
func (a StatusAuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns Header or the default header name.
func (a StatusAuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return DefaultStatusHeader
	}
	return a.Header
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			SinkTimeout:     DefaultSinkTimeout,
			CollectInterval: DefaultCollectInterval,
			Status: StatusConfig{
				TTL: DefaultStatusTTL,
			},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.SinkAddress == "" {
		return fmt.Errorf("agent.sink_address is required")
	}
	if _, _, err := net.SplitHostPort(a.SinkAddress); err != nil {
		return fmt.Errorf("agent.sink_address %q: %w", a.SinkAddress, err)
	}
	if a.CollectInterval <= 0 {
		return fmt.Errorf("agent.collect_interval must be positive")
	}
	if a.SinkTimeout <= 0 {
		return fmt.Errorf("agent.sink_timeout must be positive")
	}
	if a.Status.Listen != "" && a.Status.TTL <= 0 {
		return fmt.Errorf("agent.status.ttl must be positive")
	}
	switch a.Status.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("agent.status.auth: unknown mode %q", a.Status.Auth.Mode)
	}

	seen := make(map[string]bool, len(a.Sources))
	for i, src := range a.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
		if src.Endpoint == "" {
			return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
		}
		switch src.Auth.Mode {
		case "session", "basic", "mtls", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
		if src.Auth.Mode == "mtls" && src.Auth.CertFile == "" {
			return fmt.Errorf("sources[%d] %q: auth.cert_file is required for mtls", i, src.ID)
		}
		if err := validateType(src); err != nil {
			return fmt.Errorf("sources[%d] %q: %w", i, src.ID, err)
		}
		for id, m := range src.Naming.Metrics {
			if m.Name == "" {
				return fmt.Errorf("sources[%d] %q: naming.metrics[%s]: name is required", i, src.ID, id)
			}
		}
	}
	return nil
}

// validateType checks the adapter-specific fields of src.
func validateType(src Source) error {
	switch src.Type {
	case "ecowaste":
		if src.Auth.Mode != "session" {
			return fmt.Errorf("ecowaste requires auth mode session, got %q", src.Auth.Mode)
		}
		if src.ClientIdentifier == "" {
			return fmt.Errorf("client_identifier is required")
		}
		if src.Country == "" || src.City == "" {
			return fmt.Errorf("country and city are required")
		}
	case "owlet":
		if len(src.Devices) == 0 {
			return fmt.Errorf("at least one device is required")
		}
	case "xemtec":
		if src.Country == "" || src.City == "" {
			return fmt.Errorf("country and city are required")
		}
	default:
		return fmt.Errorf("unknown type %q", src.Type)
	}
	return nil
}
