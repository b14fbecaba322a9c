// internal/domain/geo/model.go

package geo

import (
	"math"

	"github.com/rotisserie/eris"
)

// ErrInvalidCoordinate is returned when a latitude or longitude is out of range.
var ErrInvalidCoordinate = eris.New("geo: invalid coordinate")

// Coordinate is an immutable WGS84 point in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewCoordinate builds a validated coordinate.
func NewCoordinate(lat, lng float64) (Coordinate, error) {
	c := Coordinate{Latitude: lat, Longitude: lng}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// Validate checks latitude is within [-90,90] and longitude within [-180,180].
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return eris.Wrapf(ErrInvalidCoordinate, "latitude %f out of range", c.Latitude)
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return eris.Wrapf(ErrInvalidCoordinate, "longitude %f out of range", c.Longitude)
	}
	return nil
}

// RegionType describes the settlement pattern of a region
type RegionType string

const (
	RegionUrban  RegionType = "urban"
	RegionRural  RegionType = "rural"
	RegionRemote RegionType = "remote"
)

// Bounds is a rectangular bounding box in decimal degrees.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Contains reports whether c lies inside the box, edges included.
func (b Bounds) Contains(c Coordinate) bool {
	return c.Latitude <= b.North && c.Latitude >= b.South &&
		c.Longitude <= b.East && c.Longitude >= b.West
}

// Centroid returns the midpoint of the box.
func (b Bounds) Centroid() Coordinate {
	return Coordinate{
		Latitude:  (b.North + b.South) / 2,
		Longitude: (b.East + b.West) / 2,
	}
}

// Region is a named area of the catalog
type Region struct {
	Name        string     `json:"name"`
	State       string     `json:"state"`
	Type        RegionType `json:"type"`
	Bounds      Bounds     `json:"bounds"`
	MajorPlaces []string   `json:"majorPlaces,omitempty"`
}

// PlaceName returns the region's representative named place.
func (r Region) PlaceName() string {
	if len(r.MajorPlaces) > 0 {
		return r.MajorPlaces[0]
	}
	return r.Name
}

// NearbyPlace is the result of a nearest named place lookup
type NearbyPlace struct {
	Place      string  `json:"place"`
	DistanceKm float64 `json:"distanceKm"`
	Region     Region  `json:"region"`
}
