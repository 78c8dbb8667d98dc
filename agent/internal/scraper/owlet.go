package scraper

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/telepoll/telepoll/agent/internal/config"
	"github.com/telepoll/telepoll/agent/internal/extract"
	"github.com/telepoll/telepoll/agent/internal/httpclient"
	"github.com/telepoll/telepoll/pkg/types"
)

type owletScraper struct {
	namingHolder

	src    config.Source
	client *httpclient.Client
}

func newOwlet(src config.Source, hc *http.Client) *owletScraper {
	s := &owletScraper{
		src:    src,
		client: httpclient.New(httpclient.Config{Endpoint: src.Endpoint, HTTPClient: hc}),
	}
	s.SetNaming(src.Naming)
	return s
}

func (s *owletScraper) ID() string { return s.src.ID }

// Scrape fetches the application/metric tree of every configured device.
// Each device is isolated: a failed or empty device is skipped and the
// others are still collected.
//
// Metric names:
//
//	<country>.<city>.<district>.<street>.<device>.<app>-<metric>
func (s *owletScraper) Scrape(ctx context.Context) ([]types.Metric, error) {
	p := newPass(s.src.ID)
	naming := s.naming()
	params := url.Values{
		"UN": {s.src.Auth.Username},
		"PW": {s.src.Auth.Password()},
	}

	for _, device := range s.src.Devices {
		prefix, err := extract.DeviceName(device, naming)
		if err != nil {
			p.fail(device, err)
			continue
		}

		body, err := s.client.Do(ctx, http.MethodGet, url.PathEscape(device), params)
		if err != nil {
			if p.fail(device, err) {
				return p.result()
			}
			continue
		}
		if isEmptyPayload(body) {
			slog.Info("scraper: no data for device, ignoring", "source", s.src.ID, "device", device)
			continue
		}
		p.extract(device, prefix, extract.Payload{Shape: extract.ShapeTree, Body: body}, naming)
	}
	return p.result()
}

// isEmptyPayload reports whether body carries no data at all.
func isEmptyPayload(body []byte) bool {
	switch string(bytes.TrimSpace(body)) {
	case "", "null", "{}", "[]":
		return true
	}
	return false
}
