package extract

import (
	"fmt"
	"strings"

	"github.com/telepoll/telepoll/agent/internal/config"
)

// districtWidth is the fixed width of the district code packed at the front
// of a device identifier's third segment.
const districtWidth = 3

// Naming maps raw remote identifiers to display segments. City, district,
// street and reader lookups fall back to the raw identifier; application and
// metric lookups report whether the identifier is tracked at all.
//
// A Naming is never mutated after construction. A nil *Naming behaves as an
// empty convention.
type Naming struct {
	apps      map[string]string
	metrics   map[string]string
	cities    map[string]string
	districts map[string]string
	streets   map[string]string
	readers   map[string]string
}

// NewNaming copies the lookup tables of cfg.
func NewNaming(cfg config.NamingConfig) *Naming {
	n := &Naming{
		apps:      copyTable(cfg.Apps),
		metrics:   make(map[string]string, len(cfg.Metrics)),
		cities:    copyTable(cfg.Cities),
		districts: copyTable(cfg.Districts),
		streets:   copyTable(cfg.Streets),
		readers:   copyTable(cfg.Readers),
	}
	for id, spec := range cfg.Metrics {
		n.metrics[id] = spec.Name
	}
	return n
}

func copyTable(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// App returns the display name of a tracked application identifier.
func (n *Naming) App(id string) (string, bool) {
	if n == nil {
		return "", false
	}
	name, ok := n.apps[id]
	return name, ok
}

// Metric returns the display name of a tracked metric identifier.
func (n *Naming) Metric(id string) (string, bool) {
	if n == nil {
		return "", false
	}
	name, ok := n.metrics[id]
	return name, ok
}

// City returns the display name of a city code.
func (n *Naming) City(id string) string {
	if n == nil {
		return id
	}
	return fallback(n.cities, id)
}

// District returns the display name of a district code.
func (n *Naming) District(id string) string {
	if n == nil {
		return id
	}
	return fallback(n.districts, id)
}

// Street returns the display name of a street code.
func (n *Naming) Street(id string) string {
	if n == nil {
		return id
	}
	return fallback(n.streets, id)
}

// Reader returns the display name of a reader serial.
func (n *Naming) Reader(id string) string {
	if n == nil {
		return id
	}
	return fallback(n.readers, id)
}

func fallback(table map[string]string, id string) string {
	if name, ok := table[id]; ok && name != "" {
		return name
	}
	return id
}

// DeviceName decomposes a device identifier of the form
// COUNTRY_CITY_DDDSSS_DEVICE into a dotted metric prefix
// country.city.district.street.device. The third segment is split by
// position: the first three characters are the district code and the
// remainder, possibly empty, is the street code. City, district and street
// are mapped through n with identity fallback.
func DeviceName(id string, n *Naming) (string, error) {
	parts := strings.SplitN(id, "_", 4)
	if len(parts) != 4 {
		return "", fmt.Errorf("device %q: want COUNTRY_CITY_DISTRICTSTREET_DEVICE", id)
	}
	country, city, packed, device := parts[0], parts[1], parts[2], parts[3]
	if len(packed) < districtWidth {
		return "", fmt.Errorf("device %q: segment %q shorter than the district code", id, packed)
	}
	district, street := packed[:districtWidth], packed[districtWidth:]

	return strings.Join([]string{
		country,
		n.City(city),
		n.District(district),
		n.Street(street),
		device,
	}, "."), nil
}
