// internal/service/geo/service.go

package geo

import (
	"regionalert/internal/domain/geo"
)

// GeoSpatialConfig contains configuration for the geospatial service
type GeoSpatialConfig struct {
	Catalog       geo.Catalog
	CountryBounds geo.Bounds
}

// DefaultConfig returns the built-in Australian catalog and national bounds.
func DefaultConfig() GeoSpatialConfig {
	return GeoSpatialConfig{
		Catalog:       geo.DefaultCatalog(),
		CountryBounds: geo.CountryBounds,
	}
}

// GeoSpatialService implements the geo.Service interface over a region catalog
type GeoSpatialService struct {
	catalog geo.Catalog
	country geo.Bounds
}

var _ geo.Service = (*GeoSpatialService)(nil)

// NewGeoSpatialService creates a new geospatial service
func NewGeoSpatialService(config GeoSpatialConfig) *GeoSpatialService {
	return &GeoSpatialService{
		catalog: config.Catalog,
		country: config.CountryBounds,
	}
}

// Distance calculates the distance between two locations in kilometers
func (s *GeoSpatialService) Distance(a, b geo.Coordinate) float64 {
	return geo.Distance(a, b)
}

// ClassifyRegion scans the catalog in declaration order. The first match wins
// even when a later region is a tighter fit.
func (s *GeoSpatialService) ClassifyRegion(c geo.Coordinate) geo.Region {
	return s.catalog.Classify(c)
}

// NearestNamedPlace returns the closest region centroid and its named place
func (s *GeoSpatialService) NearestNamedPlace(c geo.Coordinate) (geo.NearbyPlace, bool) {
	return s.catalog.Nearest(c)
}

// IsWithinCountry checks if a location falls inside the national bounding box
func (s *GeoSpatialService) IsWithinCountry(c geo.Coordinate) bool {
	return s.country.Contains(c)
}

// IsWithinBounds checks if a location is within a specified geographic boundary
func (s *GeoSpatialService) IsWithinBounds(c, center geo.Coordinate, radiusKm float64) bool {
	return geo.IsWithinRadius(c, center, radiusKm)
}

// RegionNames returns the labels an alert centred on c is tagged with: the
// containing region and, when different, the nearest named place.
func (s *GeoSpatialService) RegionNames(c geo.Coordinate) []string {
	region := s.ClassifyRegion(c)
	names := []string{region.Name}

	if place, ok := s.NearestNamedPlace(c); ok && place.Place != region.Name {
		names = append(names, place.Place)
	}

	return names
}
