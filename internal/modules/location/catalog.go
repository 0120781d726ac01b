// README: Static catalog of named resort locations loaded from YAML.
package location

import (
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"buggy/internal/types"
)

var ErrUnknownLocation = errors.New("unknown location")

type Location struct {
	Name string  `yaml:"name" json:"name"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lng  float64 `yaml:"lng" json:"lng"`
}

func (l Location) Point() types.Point {
	return types.Point{Lat: l.Lat, Lng: l.Lng}
}

type catalogFile struct {
	Locations []Location `yaml:"locations"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	locations []Location
	byKey     map[string]int
}

func NewCatalog(locs []Location) (*Catalog, error) {
	c := &Catalog{
		locations: make([]Location, 0, len(locs)),
		byKey:     make(map[string]int, len(locs)),
	}
	for _, l := range locs {
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" {
			return nil, errors.New("location with empty name")
		}
		if !l.Point().Valid() {
			return nil, fmt.Errorf("location %q has invalid coordinates", l.Name)
		}
		k := key(l.Name)
		if _, dup := c.byKey[k]; dup {
			return nil, fmt.Errorf("duplicate location %q", l.Name)
		}
		c.byKey[k] = len(c.locations)
		c.locations = append(c.locations, l)
	}
	return c, nil
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing location catalog: %w", err)
	}
	return NewCatalog(f.Locations)
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseCatalog(data)
}

func (c *Catalog) Len() int {
	return len(c.locations)
}

func (c *Catalog) All() []Location {
	out := make([]Location, len(c.locations))
	copy(out, c.locations)
	return out
}

// Lookup matches names case-insensitively, ignoring surrounding whitespace.
func (c *Catalog) Lookup(name string) (Location, bool) {
	i, ok := c.byKey[key(name)]
	if !ok {
		return Location{}, false
	}
	return c.locations[i], true
}

// Nearest returns the closest named location within maxDeg (planar degrees).
func (c *Catalog) Nearest(p types.Point, maxDeg float64) (Location, bool) {
	best := -1
	bestDist := maxDeg
	for i, l := range c.locations {
		d := planarDeg(p, l.Point())
		if d <= bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Location{}, false
	}
	return c.locations[best], true
}

// FallbackFor picks a stable placeholder location for a driver with no GPS
// history: numeric ids index the catalog directly, others are hashed.
// TODO: replace with the driver's last dropoff once ride history is indexed by driver.
func (c *Catalog) FallbackFor(id types.ID) (Location, bool) {
	n := len(c.locations)
	if n == 0 {
		return Location{}, false
	}
	var idx int
	if v, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		if v < 0 {
			v = -v
		}
		idx = int(v % int64(n))
	} else {
		h := fnv.New32a()
		_, _ = h.Write([]byte(id))
		idx = int(h.Sum32() % uint32(n))
	}
	return c.locations[idx], true
}

// DistanceKm is the haversine distance between two named locations. Equal
// names are zero apart even when absent from the catalog.
func (c *Catalog) DistanceKm(from, to string) (float64, bool) {
	if key(from) == key(to) {
		return 0, true
	}
	a, ok := c.Lookup(from)
	if !ok {
		return 0, false
	}
	b, ok := c.Lookup(to)
	if !ok {
		return 0, false
	}
	return DistanceKm(a.Point(), b.Point()), true
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
