package security

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/telepoll/telepoll/agent/internal/config"
	"github.com/telepoll/telepoll/agent/internal/httpclient"
)

// expiringDays is the remaining validity below which a certificate is
// reported as expiring.
const expiringDays = 30

// Certificate kinds.
const (
	KindEndpoint = "endpoint"
	KindClient   = "client"
)

// CertStatus describes one certificate used to reach a source.
type CertStatus struct {
	Source   string
	Kind     string // KindEndpoint | KindClient
	Subject  string // endpoint URL or client certificate file
	Issuer   string
	NotAfter time.Time
	DaysLeft int
	Status   string // valid | expiring | expired | unreachable | invalid
}

// Gauge receives the remaining validity of each checked certificate.
// *selfmetrics.Registry implements it.
type Gauge interface {
	SetCertDaysLeft(source, kind string, days float64)
}

// Check returns the status of every certificate involved in reaching src:
// the HTTPS endpoint's leaf certificate and, for mTLS sources, the client
// certificate.
func Check(ctx context.Context, src config.Source) []CertStatus {
	var out []CertStatus
	if cs := CheckEndpoint(ctx, src); cs != nil {
		out = append(out, *cs)
	}
	if cs := CheckClientCert(src); cs != nil {
		out = append(out, *cs)
	}
	return out
}

// CheckEndpoint dials the TLS endpoint of src and describes the leaf
// certificate.
//
// The handshake uses the source's own TLS settings (custom CA, client
// certificate), so privately signed endpoints are checked too. Returns nil
// for non-HTTPS endpoints. The dial is bounded by a 10-second timeout.
func CheckEndpoint(ctx context.Context, src config.Source) *CertStatus {
	u, err := url.Parse(src.Endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{Source: src.ID, Kind: KindEndpoint, Subject: src.Endpoint}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tlsCfg, err := httpclient.TLSConfig(src)
	if err != nil {
		slog.Debug("security: source tls settings unusable, checking with defaults", "source", src.ID, "err", err)
		tlsCfg = &tls.Config{InsecureSkipVerify: src.TLS.InsecureSkipVerify} //nolint:gosec
	}
	dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: tlsCfg}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = "unreachable"
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = "unreachable"
		return cs
	}
	describe(cs, peerCerts[0], time.Now())
	return cs
}

// CheckClientCert reads the client certificate of an mTLS source and
// describes it. The file may be a combined PEM holding the key as well.
//
// Returns nil when src does not use mTLS.
func CheckClientCert(src config.Source) *CertStatus {
	if src.Auth.Mode != "mtls" || src.Auth.CertFile == "" {
		return nil
	}
	cs := &CertStatus{Source: src.ID, Kind: KindClient, Subject: src.Auth.CertFile}

	cert, err := readCertificate(src.Auth.CertFile)
	if err != nil {
		slog.Warn("security: client certificate unreadable", "source", src.ID, "file", src.Auth.CertFile, "err", err)
		cs.Status = "invalid"
		return cs
	}
	describe(cs, cert, time.Now())
	return cs
}

// readCertificate parses the first CERTIFICATE block of a PEM file.
func readCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("no certificate in %q", path)
		}
		if block.Type == "CERTIFICATE" {
			return x509.ParseCertificate(block.Bytes)
		}
	}
}

// describe fills the validity fields of cs from cert.
func describe(cs *CertStatus, cert *x509.Certificate, now time.Time) {
	daysLeft := cert.NotAfter.Sub(now).Hours() / 24

	cs.NotAfter = cert.NotAfter.UTC()
	cs.Issuer = cert.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(daysLeft))

	switch {
	case daysLeft <= 0:
		cs.Status = "expired"
	case daysLeft <= expiringDays:
		cs.Status = "expiring"
	default:
		cs.Status = "valid"
	}
}

// Run checks the certificates of all sources immediately and then every
// interval until ctx is cancelled. Expiring, expired and unusable
// certificates are logged; the remaining validity is reported to g.
func Run(ctx context.Context, sources []config.Source, interval time.Duration, g Gauge) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		checkAll(ctx, sources, g)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func checkAll(ctx context.Context, sources []config.Source, g Gauge) {
	for _, src := range sources {
		for _, cs := range Check(ctx, src) {
			switch cs.Status {
			case "valid":
				slog.Debug("security: certificate valid", "source", cs.Source, "kind", cs.Kind, "days_left", cs.DaysLeft)
			case "expiring", "expired":
				slog.Warn("security: certificate "+cs.Status,
					"source", cs.Source,
					"kind", cs.Kind,
					"subject", cs.Subject,
					"not_after", cs.NotAfter.Format(time.RFC3339),
					"days_left", cs.DaysLeft)
			default:
				slog.Warn("security: certificate check failed", "source", cs.Source, "kind", cs.Kind, "status", cs.Status)
				continue
			}
			if g != nil {
				g.SetCertDaysLeft(cs.Source, cs.Kind, float64(cs.DaysLeft))
			}
		}
	}
}
