// internal/domain/geo/distance.go

package geo

import "math"

// EarthRadiusKm is the mean Earth radius used for all spherical math.
const EarthRadiusKm = 6371.0

func toRadians(deg float64) float64 { return deg * math.Pi / 180.0 }

func toDegrees(rad float64) float64 { return rad * 180.0 / math.Pi }

// Distance returns the great-circle distance between a and b in kilometers
// using the haversine formula.
func Distance(a, b Coordinate) float64 {
	lat1 := toRadians(a.Latitude)
	lon1 := toRadians(a.Longitude)
	lat2 := toRadians(b.Latitude)
	lon2 := toRadians(b.Longitude)

	dLat := lat2 - lat1
	dLon := lon2 - lon1

	hSin := math.Sin(dLat / 2)
	hSin *= hSin

	vSin := math.Sin(dLon / 2)
	vSin *= vSin

	h := hSin + math.Cos(lat1)*math.Cos(lat2)*vSin
	if h > 1 {
		h = 1
	}

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// Destination returns the point reached by travelling distanceKm from c along
// the initial bearing (radians, clockwise from north) on a sphere.
func Destination(c Coordinate, bearing, distanceKm float64) Coordinate {
	lat1 := toRadians(c.Latitude)
	lon1 := toRadians(c.Longitude)
	delta := distanceKm / EarthRadiusKm

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) +
		math.Cos(lat1)*math.Sin(delta)*math.Cos(bearing))
	lon2 := lon1 + math.Atan2(
		math.Sin(bearing)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	// normalise to [-180,180]
	lng := math.Mod(toDegrees(lon2)+540, 360) - 180

	return Coordinate{Latitude: toDegrees(lat2), Longitude: lng}
}

// IsWithinRadius reports whether p lies within radiusKm of center.
func IsWithinRadius(p, center Coordinate, radiusKm float64) bool {
	return Distance(p, center) <= radiusKm
}
