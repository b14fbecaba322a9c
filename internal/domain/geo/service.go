// internal/domain/geo/service.go

package geo

// Service defines the geospatial primitives used by the alert engine
type Service interface {
	// Distance returns the great-circle distance between two points in kilometers
	Distance(a, b Coordinate) float64

	// ClassifyRegion returns the first catalog region containing c
	ClassifyRegion(c Coordinate) Region

	// NearestNamedPlace returns the closest named place by region centroid
	NearestNamedPlace(c Coordinate) (NearbyPlace, bool)

	// IsWithinCountry checks c against the national bounding box
	IsWithinCountry(c Coordinate) bool

	// IsWithinBounds checks if a point lies within radiusKm of center
	IsWithinBounds(c, center Coordinate, radiusKm float64) bool
}
