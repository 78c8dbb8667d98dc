package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/telepoll/telepoll/agent/internal/config"
)

// DefaultTimeout bounds every request issued to a data source.
const DefaultTimeout = 10 * time.Second

// basicAuthRoundTripper attaches HTTP basic credentials to every request.
type basicAuthRoundTripper struct {
	base     http.RoundTripper
	username string
	password string
}

func (t *basicAuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	return t.base.RoundTrip(req)
}

// NewHTTPClient constructs an http.Client for the source's auth and TLS
// settings. Basic credentials are attached by the transport; session tokens
// are attached per request by Client, and the token exchange itself sets its
// own basic credentials.
func NewHTTPClient(src config.Source) (*http.Client, error) {
	tlsCfg, err := TLSConfig(src)
	if err != nil {
		return nil, err
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsCfg,
	}
	if src.Auth.Mode == "basic" {
		transport = &basicAuthRoundTripper{
			base:     transport,
			username: src.Auth.Username,
			password: src.Auth.Password(),
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   DefaultTimeout,
	}, nil
}

// TLSConfig returns the TLS settings used to reach src: the mTLS client
// certificate, the custom CA pool and the skip-verify flag.
func TLSConfig(src config.Source) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if src.Auth.Mode == "mtls" {
		cert, err := loadClientCert(src.Auth)
		if err != nil {
			return nil, err
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if src.Auth.CAFile != "" {
		caPEM, err := os.ReadFile(src.Auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs found in ca file %q", src.Auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return tlsCfg, nil
}

// loadClientCert loads the mTLS client certificate. A single combined PEM
// file (certificate followed by private key) is accepted when KeyFile is empty.
func loadClientCert(auth config.AuthConfig) (tls.Certificate, error) {
	keyFile := auth.KeyFile
	if keyFile == "" {
		keyFile = auth.CertFile
	}
	cert, err := tls.LoadX509KeyPair(auth.CertFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load client cert: %w", err)
	}
	return cert, nil
}
