package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/telepoll/telepoll/agent/internal/config"
	"github.com/telepoll/telepoll/agent/internal/extract"
	"github.com/telepoll/telepoll/agent/internal/httpclient"
	"github.com/telepoll/telepoll/agent/internal/session"
	"github.com/telepoll/telepoll/pkg/types"
)

// ecowasteDashboards is the resource root of the waste-bin dashboards API.
const ecowasteDashboards = "ipServer/wise/api/dashboards/"

// ecowasteFlatDashboards are polled every pass in addition to the weight flows.
var ecowasteFlatDashboards = []string{"equipment", "communication", "level"}

type ecowasteScraper struct {
	src     config.Source
	session *session.Manager
	client  *httpclient.Client
	now     func() time.Time
}

func newEcowaste(src config.Source, hc *http.Client) *ecowasteScraper {
	mgr := session.New(session.Credentials{
		Endpoint:         src.Endpoint,
		Username:         src.Auth.Username,
		Password:         src.Auth.Password(),
		ClientIdentifier: src.ClientIdentifier,
		ApplicationName:  src.ApplicationName,
		Path:             src.Auth.TokenPath,
	}, hc)
	return &ecowasteScraper{
		src:     src,
		session: mgr,
		client: httpclient.New(httpclient.Config{
			Endpoint:    src.Endpoint,
			HTTPClient:  hc,
			Tokens:      mgr,
			TokenHeader: src.Auth.Header,
			ReasonKeys:  []string{"reason"},
		}),
		now: time.Now,
	}
}

func (s *ecowasteScraper) ID() string { return s.src.ID }

func (s *ecowasteScraper) SessionState() session.State { return s.session.State() }

func (s *ecowasteScraper) Authentications() int { return s.session.Authentications() }

// Scrape polls the weight of every configured flow for the current month,
// then the equipment, communication and level dashboards.
//
// Metric names:
//
//	<name>.<country>.<city>.weight-<flow>.<field>
//	<name>.<country>.<city>.<dashboard>.<field>
func (s *ecowasteScraper) Scrape(ctx context.Context) ([]types.Metric, error) {
	p := newPass(s.src.ID)
	prefix := s.src.MetricName() + "." + s.src.Country + "." + s.src.City

	flows := make([]string, 0, len(s.src.WeightFlows))
	for name := range s.src.WeightFlows {
		flows = append(flows, name)
	}
	sort.Strings(flows)

	month := s.now().Format("2006-01")
	for _, flow := range flows {
		resource := "weight-" + flow
		body, err := s.client.Do(ctx, http.MethodGet, ecowasteDashboards+"weight", url.Values{
			"flowTypeId": {strconv.Itoa(s.src.WeightFlows[flow])},
			"startDate":  {month},
			"endDate":    {month},
		})
		if err == nil {
			body, err = firstElement(body)
		}
		if err != nil {
			if p.fail(resource, err) {
				return p.result()
			}
			continue
		}
		p.extract(resource, prefix+"."+resource, extract.Payload{Shape: extract.ShapeFlat, Body: body}, nil)
	}

	for _, dashboard := range ecowasteFlatDashboards {
		body, err := s.client.Do(ctx, http.MethodGet, ecowasteDashboards+dashboard, nil)
		if err != nil {
			if p.fail(dashboard, err) {
				return p.result()
			}
			continue
		}
		p.extract(dashboard, prefix+"."+dashboard, extract.Payload{Shape: extract.ShapeFlat, Body: body}, nil)
	}

	return p.result()
}

// firstElement returns the first element of a JSON array body.
func firstElement(body []byte) ([]byte, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode weight: %w", err)
	}
	if len(items) == 0 {
		return nil, errors.New("empty weight response")
	}
	return items[0], nil
}
