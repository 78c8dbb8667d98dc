package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/telepoll/telepoll/agent/internal/config"
	"github.com/telepoll/telepoll/agent/internal/extract"
	"github.com/telepoll/telepoll/agent/internal/httpclient"
	"github.com/telepoll/telepoll/pkg/types"
)

type xemtecScraper struct {
	namingHolder

	src    config.Source
	client *httpclient.Client
}

func newXemtec(src config.Source, hc *http.Client) *xemtecScraper {
	s := &xemtecScraper{
		src: src,
		client: httpclient.New(httpclient.Config{
			Endpoint:   src.Endpoint,
			HTTPClient: hc,
			ReasonKeys: []string{"detail"},
		}),
	}
	s.SetNaming(src.Naming)
	return s
}

func (s *xemtecScraper) ID() string { return s.src.ID }

// Scrape fetches the measurement samples of every reader. When no readers are
// configured they are autodetected from the readers list on every pass.
//
// Metric names:
//
//	<name>.<country>.<city>.<reader>_<n>
//
// where n is the 1-based position of the value in its sample.
func (s *xemtecScraper) Scrape(ctx context.Context) ([]types.Metric, error) {
	readers := s.src.Readers
	if len(readers) == 0 {
		detected, err := s.detectReaders(ctx)
		if err != nil {
			return nil, fmt.Errorf("detect readers: %w", err)
		}
		readers = detected
	}

	p := newPass(s.src.ID)
	naming := s.naming()
	prefix := s.src.MetricName() + "." + s.src.Country + "." + s.src.City

	for _, reader := range readers {
		body, err := s.client.Do(ctx, http.MethodGet, "api/measurements/"+url.PathEscape(reader), nil)
		if err != nil {
			if p.fail(reader, err) {
				return p.result()
			}
			continue
		}
		p.extract(reader, prefix, extract.Payload{
			Shape:  extract.ShapeSamples,
			Body:   body,
			Series: naming.Reader(reader),
		}, naming)
	}
	return p.result()
}

// detectReaders lists the serials of all readers known to the source.
func (s *xemtecScraper) detectReaders(ctx context.Context) ([]string, error) {
	var list []struct {
		Serial string `json:"serial"`
	}
	if err := s.client.GetJSON(ctx, "api/readers", nil, &list); err != nil {
		return nil, err
	}
	serials := make([]string, 0, len(list))
	for _, r := range list {
		if r.Serial != "" {
			serials = append(serials, r.Serial)
		}
	}
	return serials, nil
}
