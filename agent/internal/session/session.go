package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Defaults used when Credentials leave the token request unspecified.
const (
	DefaultTokenPath       = "/ipServer/wise/public/api/authentification/requestToken"
	DefaultApplicationName = "WISE"

	// maxTokenResponse bounds the token response body read.
	maxTokenResponse = 1 << 20
)

// State is the validity state of a session token.
type State int

const (
	// Unauthenticated means no token has been acquired yet.
	Unauthenticated State = iota
	// Valid means a token is held and has not expired.
	Valid
	// Expired means a token was held but its lifetime elapsed or the remote
	// side rejected it.
	Expired
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Credentials is the static identity used for the token exchange.
type Credentials struct {
	// Endpoint is the base URL of the data source.
	Endpoint string
	Username string
	Password string

	ClientIdentifier string

	// ApplicationName defaults to DefaultApplicationName.
	ApplicationName string

	// Path is the token request resource; defaults to DefaultTokenPath.
	Path string
}

// AuthenticationError reports a failed token exchange: transport failure,
// non-2xx response, undecodable body, or a response without a token.
type AuthenticationError struct {
	// Status is the HTTP status of the token response, 0 if none was received.
	Status int
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authentication failed (HTTP %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// tokenResponse is the JSON shape of a successful token exchange.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// tokenRequest is the JSON body of the token exchange.
type tokenRequest struct {
	ApplicationName  string `json:"applicationName"`
	ClientIdentifier string `json:"clientIdentifier"`
}

// Manager owns the bearer token of one data source and its expiry instant.
// Token acquires or refreshes the token transparently.
//
// A Manager is owned by a single collector and used from one goroutine at a
// time; the mutex only makes State safe to call from status readers.
type Manager struct {
	creds  Credentials
	client *http.Client
	now    func() time.Time // injectable for deterministic tests

	mu     sync.Mutex
	token  string
	expiry time.Time
	held   bool // a token was acquired at least once
	auths  int
}

// New creates a Manager in the Unauthenticated state. client carries the
// transport settings (TLS, timeouts) of the data source.
func New(creds Credentials, client *http.Client) *Manager {
	if creds.ApplicationName == "" {
		creds.ApplicationName = DefaultApplicationName
	}
	if creds.Path == "" {
		creds.Path = DefaultTokenPath
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{
		creds:  creds,
		client: client,
		now:    time.Now,
	}
}

// Token returns a valid token, performing the authentication exchange first
// when the session is unauthenticated or expired.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.validLocked() {
		return m.token, nil
	}
	if err := m.authenticateLocked(ctx); err != nil {
		return "", err
	}
	return m.token, nil
}

// Invalidate forces the session into the Expired state so the next Token
// call re-authenticates. Called when the remote side rejects the token.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiry = time.Time{}
}

// State reports the current validity state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.validLocked():
		return Valid
	case m.held:
		return Expired
	default:
		return Unauthenticated
	}
}

// Authentications returns the number of successful token exchanges so far.
func (m *Manager) Authentications() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auths
}

// validLocked: token present and (no expiry or now before expiry).
func (m *Manager) validLocked() bool {
	if m.token == "" {
		return false
	}
	return m.expiry.IsZero() || m.now().Before(m.expiry)
}

func (m *Manager) authenticateLocked(ctx context.Context) error {
	body, err := json.Marshal(tokenRequest{
		ApplicationName:  m.creds.ApplicationName,
		ClientIdentifier: m.creds.ClientIdentifier,
	})
	if err != nil {
		return &AuthenticationError{Err: fmt.Errorf("encode request: %w", err)}
	}

	url := strings.TrimRight(m.creds.Endpoint, "/") + m.creds.Path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &AuthenticationError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(m.creds.Username, m.creds.Password)

	resp, err := m.client.Do(req)
	if err != nil {
		return &AuthenticationError{Err: fmt.Errorf("post %s: %w", url, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	if err != nil {
		return &AuthenticationError{Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &AuthenticationError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected status: %s", strings.TrimSpace(string(data))),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(data, &tr); err != nil {
		return &AuthenticationError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if tr.AccessToken == "" {
		return &AuthenticationError{Status: resp.StatusCode, Err: fmt.Errorf("response carries no access_token")}
	}

	m.token = tr.AccessToken
	m.expiry = time.Time{}
	if tr.ExpiresIn > 0 {
		m.expiry = m.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	m.held = true
	m.auths++

	slog.Debug("session: token acquired",
		"endpoint", m.creds.Endpoint,
		"expires_in", tr.ExpiresIn,
	)
	return nil
}
