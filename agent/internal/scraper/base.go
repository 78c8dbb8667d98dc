package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/telepoll/telepoll/agent/internal/config"
	"github.com/telepoll/telepoll/agent/internal/extract"
	"github.com/telepoll/telepoll/agent/internal/httpclient"
	"github.com/telepoll/telepoll/agent/internal/session"
	"github.com/telepoll/telepoll/pkg/types"
)

// Scraper is the common interface implemented by every data source adapter.
//
// Scrape performs one collection pass. It may return metrics together with a
// non-nil error when some resources failed; the metrics that were collected
// are still valid and should be forwarded.
type Scraper interface {
	ID() string
	Scrape(ctx context.Context) ([]types.Metric, error)
}

// NamingUpdater is implemented by scrapers whose naming convention can be
// replaced while running, e.g. after a config reload.
type NamingUpdater interface {
	SetNaming(cfg config.NamingConfig)
}

// SessionReporter is implemented by scrapers of token-authenticated sources.
type SessionReporter interface {
	SessionState() session.State
	Authentications() int
}

// New returns the appropriate Scraper for the given source configuration.
// It builds the HTTP client (and the session, for token-authenticated
// sources) once and reuses it across scrape calls.
func New(src config.Source) (Scraper, error) {
	hc, err := httpclient.NewHTTPClient(src)
	if err != nil {
		return nil, fmt.Errorf("scraper %q: build http client: %w", src.ID, err)
	}
	switch src.Type {
	case "ecowaste":
		return newEcowaste(src, hc), nil
	case "owlet":
		return newOwlet(src, hc), nil
	case "xemtec":
		return newXemtec(src, hc), nil
	default:
		return nil, fmt.Errorf("scraper: unsupported type %q", src.Type)
	}
}

// namingHolder stores the current naming convention of a scraper. Reloads
// swap the whole table set atomically; a pass in progress keeps the tables it
// started with.
type namingHolder struct {
	p atomic.Pointer[extract.Naming]
}

func (h *namingHolder) SetNaming(cfg config.NamingConfig) {
	h.p.Store(extract.NewNaming(cfg))
}

func (h *namingHolder) naming() *extract.Naming {
	return h.p.Load()
}

// pass accumulates the metrics and per-resource failures of one Scrape call.
type pass struct {
	source  string
	metrics []types.Metric
	errs    []error
}

func newPass(source string) *pass {
	return &pass{source: source}
}

// fail records a failed resource and reports whether the pass must stop.
// Authentication failures abort the pass; any other failure only skips the
// resource.
func (p *pass) fail(resource string, err error) bool {
	err = fmt.Errorf("%s: %w", resource, err)
	p.errs = append(p.errs, err)

	var authErr *session.AuthenticationError
	if errors.As(err, &authErr) {
		return true
	}
	slog.Warn("scraper: resource failed, skipping",
		"source", p.source,
		"resource", resource,
		"err", err)
	return false
}

// extract normalizes payload under prefix and appends the metrics.
// A malformed payload is recorded as a failure of resource.
func (p *pass) extract(resource, prefix string, payload extract.Payload, n *extract.Naming) {
	res, err := extract.Extract(prefix, payload, n)
	if err != nil {
		p.fail(resource, err)
		return
	}
	for _, s := range res.Skipped {
		slog.Debug("scraper: value skipped",
			"source", p.source,
			"resource", resource,
			"key", s.Key,
			"reason", s.Reason)
	}
	p.metrics = append(p.metrics, res.Metrics...)
}

func (p *pass) result() ([]types.Metric, error) {
	return p.metrics, errors.Join(p.errs...)
}
