// SPDX-License-Identifier: MIT

// Package zone models a city's geofenced zones. Polygons arrive as WKT from
// the fleet backend and are kept as planar geometries for point-in-polygon
// checks, classification, and per-zone speed limits.
package zone

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/velomob/scootsim/internal/geo"
)

// Type identifies a zone classification.
type Type string

const (
	Charging    Type = "charging"
	Parking     Type = "parking"
	City        Type = "city" // overall city boundary polygon(s)
	Free        Type = "free" // classification result for the city interior
	Slow        Type = "slow"
	OutOfBounds Type = "outofbounds"
)

// storedTypes are the polygon buckets a city keeps. Free and OutOfBounds are
// classification results, not stored geometry.
var storedTypes = []Type{City, Slow, Parking, Charging}

// Def is one zone row as delivered by the backend.
type Def struct {
	ZoneType   string
	WKT        string
	SpeedLimit *float64
}

// CityModel holds a city's zone polygons and speed limits.
type CityModel struct {
	Name string

	polygons    map[Type][]orb.Polygon
	speedLimits map[Type]float64
	logger      zerolog.Logger
}

// NewCity builds a city from zone definitions. Malformed or empty polygons
// are skipped with a warning; unknown zone types are ignored.
func NewCity(name string, defs []Def, logger zerolog.Logger) *CityModel {
	c := &CityModel{
		Name:        name,
		polygons:    make(map[Type][]orb.Polygon, len(storedTypes)),
		speedLimits: make(map[Type]float64),
		logger:      logger.With().Str("city", name).Logger(),
	}

	for _, def := range defs {
		t := Type(strings.ToLower(def.ZoneType))
		if !lo.Contains(storedTypes, t) {
			continue
		}

		geom, err := wkt.Unmarshal(def.WKT)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("event", "zone.invalid_wkt").
				Str("zone_type", string(t)).
				Msg("skipping zone with invalid WKT")
		} else {
			for _, poly := range asPolygons(geom) {
				if emptyPolygon(poly) {
					c.logger.Warn().
						Str("event", "zone.empty_polygon").
						Str("zone_type", string(t)).
						Msg("skipping empty polygon")
					continue
				}
				c.polygons[t] = append(c.polygons[t], poly)
			}
		}

		if def.SpeedLimit != nil {
			c.speedLimits[t] = *def.SpeedLimit
		}
	}

	c.logger.Info().
		Str("event", "zone.city_loaded").
		Strs("zone_types", lo.Map(lo.Keys(c.polygons), func(t Type, _ int) string { return string(t) })).
		Int("polygons", len(lo.Flatten(lo.Values(c.polygons)))).
		Msg("city zones loaded")

	return c
}

func asPolygons(geom orb.Geometry) []orb.Polygon {
	switch g := geom.(type) {
	case orb.Polygon:
		return []orb.Polygon{g}
	case orb.MultiPolygon:
		return g
	default:
		return nil
	}
}

func emptyPolygon(poly orb.Polygon) bool {
	// A ring needs at least a closed triangle.
	return len(poly) == 0 || len(poly[0]) < 4
}

// IsInside reports whether the point is inside or on the boundary of any
// polygon of the given zone type.
func (c *CityModel) IsInside(lat, lng float64, t Type) bool {
	point := orb.Point{lng, lat}
	for _, poly := range c.polygons[t] {
		if planar.PolygonContains(poly, point) {
			return true
		}
	}
	return false
}

// ClassifyZone resolves a position to a zone type with fixed priority:
// charging > parking > city interior (free) > slow. Positions outside every
// polygon are out of bounds.
func (c *CityModel) ClassifyZone(lat, lng float64) Type {
	switch {
	case c.IsInside(lat, lng, Charging):
		return Charging
	case c.IsInside(lat, lng, Parking):
		return Parking
	case c.IsInside(lat, lng, City):
		return Free
	case c.IsInside(lat, lng, Slow):
		return Slow
	default:
		return OutOfBounds
	}
}

// InCityBoundary reports whether the point lies within the overall city
// polygon.
func (c *CityModel) InCityBoundary(lat, lng float64) bool {
	return c.IsInside(lat, lng, City)
}

// SpeedLimit returns the configured speed limit in km/h for a zone type, if
// one was provided.
func (c *CityModel) SpeedLimit(t Type) (float64, bool) {
	limit, ok := c.speedLimits[t]
	return limit, ok
}

// Centroids returns the centroid of every polygon of the given type, used to
// place stationary scooters and park-and-charge behaviors.
func (c *CityModel) Centroids(t Type) []geo.Point {
	points := make([]geo.Point, 0, len(c.polygons[t]))
	for _, poly := range c.polygons[t] {
		centroid, _ := planar.CentroidArea(poly)
		points = append(points, geo.Point{Lat: centroid.Y(), Lng: centroid.X()})
	}
	return points
}
