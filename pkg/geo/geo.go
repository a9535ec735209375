// Package geo resolves GPS coordinates to place names without any network
// dependency. It carries a compact embedded table of populated places and
// answers with the nearest entry within a cutoff radius.
package geo

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

//go:embed cities.csv
var citiesCSV string

// MaxDistanceKm is the cutoff beyond which a coordinate resolves to nothing
// (open ocean, wilderness). Photos outside it keep their raw coordinates.
const MaxDistanceKm = 200.0

// Place is one reverse-geocoding answer.
type Place struct {
	City       string
	Country    string
	Latitude   float64
	Longitude  float64
	DistanceKm float64
}

type city struct {
	name    string
	country string
	lat     float64
	lon     float64
}

// Resolver answers reverse-geocoding queries against the embedded table.
type Resolver struct {
	cities []city
}

var (
	defaultResolver *Resolver
	defaultOnce     sync.Once
	defaultErr      error
)

// Default returns the shared resolver backed by the embedded table.
func Default() (*Resolver, error) {
	defaultOnce.Do(func() {
		defaultResolver, defaultErr = parse(citiesCSV)
	})
	return defaultResolver, defaultErr
}

func parse(data string) (*Resolver, error) {
	r := csv.NewReader(strings.NewReader(data))
	r.FieldsPerRecord = 4
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse city table: %w", err)
	}
	cities := make([]city, 0, len(records))
	for i, rec := range records {
		lat, err := strconv.ParseFloat(rec[2], 64)
		if err != nil {
			return nil, fmt.Errorf("bad latitude on line %d: %w", i+1, err)
		}
		lon, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("bad longitude on line %d: %w", i+1, err)
		}
		cities = append(cities, city{name: rec[0], country: rec[1], lat: lat, lon: lon})
	}
	return &Resolver{cities: cities}, nil
}

// Resolve returns the nearest known place within MaxDistanceKm, or nil when
// nothing qualifies.
func (r *Resolver) Resolve(lat, lon float64) *Place {
	best := -1
	bestDist := math.MaxFloat64
	for i := range r.cities {
		d := HaversineKm(lat, lon, r.cities[i].lat, r.cities[i].lon)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 || bestDist > MaxDistanceKm {
		return nil
	}
	c := r.cities[best]
	return &Place{
		City:       c.name,
		Country:    c.country,
		Latitude:   c.lat,
		Longitude:  c.lon,
		DistanceKm: bestDist,
	}
}

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
