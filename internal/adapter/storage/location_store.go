// internal/adapter/storage/location_store.go

package storage

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"regionalert/internal/domain/geo"
	"regionalert/internal/domain/location"
)

// LocationStore implements storage for user locations on PostGIS
type LocationStore struct {
	db Pool
}

// NewLocationStore creates a new location store
func NewLocationStore(db Pool) *LocationStore {
	return &LocationStore{
		db: db,
	}
}

const locationColumns = `
	user_id,
	ST_Y(location::geometry) AS lat, ST_X(location::geometry) AS lng,
	street, suburb, city, state, postcode, region,
	is_private, anonymized,
	approx_latitude, approx_longitude, approx_radius_km,
	source, accuracy_meters, last_updated`

// UpsertLocation creates or replaces the record for rec.UserID
func (s *LocationStore) UpsertLocation(ctx context.Context, rec location.Record) error {
	point, err := encodePoint(rec.Coordinates)
	if err != nil {
		return err
	}

	regionJSON, err := json.Marshal(rec.Region)
	if err != nil {
		return eris.Wrap(err, "storage: encode region")
	}

	var approxLat, approxLng, approxRadius *float64
	if rec.ApproximateLocation != nil {
		approxLat = &rec.ApproximateLocation.Coordinates.Latitude
		approxLng = &rec.ApproximateLocation.Coordinates.Longitude
		approxRadius = &rec.ApproximateLocation.RadiusKm
	}

	query := `
		INSERT INTO user_locations (
			user_id, location, street, suburb, city, state, postcode, region,
			is_private, anonymized, approx_latitude, approx_longitude, approx_radius_km,
			source, accuracy_meters, last_updated
		) VALUES (
			$1, ST_GeomFromEWKB($2)::geography, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16
		)
		ON CONFLICT (user_id) DO UPDATE
		SET
			location = EXCLUDED.location,
			street = EXCLUDED.street,
			suburb = EXCLUDED.suburb,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			postcode = EXCLUDED.postcode,
			region = EXCLUDED.region,
			is_private = EXCLUDED.is_private,
			anonymized = EXCLUDED.anonymized,
			approx_latitude = EXCLUDED.approx_latitude,
			approx_longitude = EXCLUDED.approx_longitude,
			approx_radius_km = EXCLUDED.approx_radius_km,
			source = EXCLUDED.source,
			accuracy_meters = EXCLUDED.accuracy_meters,
			last_updated = EXCLUDED.last_updated
	`

	_, err = s.db.Exec(ctx, query,
		rec.UserID,
		point,
		rec.Street,
		rec.Suburb,
		rec.City,
		rec.State,
		rec.Postcode,
		regionJSON,
		rec.IsPrivate,
		rec.Anonymized,
		approxLat,
		approxLng,
		approxRadius,
		string(rec.Source),
		rec.AccuracyMeters,
		rec.LastUpdated,
	)
	if err != nil {
		return eris.Wrapf(err, "storage: upsert location for %s", rec.UserID)
	}

	return nil
}

// GetLocation retrieves the record for a user
func (s *LocationStore) GetLocation(ctx context.Context, userID string) (*location.Record, error) {
	query := `SELECT ` + locationColumns + ` FROM user_locations WHERE user_id = $1`

	rec, err := scanLocation(s.db.QueryRow(ctx, query, userID))
	if err != nil {
		if isNoRows(err) {
			return nil, eris.Wrapf(location.ErrNotFound, "user %s", userID)
		}
		return nil, eris.Wrapf(err, "storage: get location for %s", userID)
	}

	return rec, nil
}

// FindWithinRadius finds non-private records within radiusKm of center,
// nearest first
func (s *LocationStore) FindWithinRadius(ctx context.Context, center geo.Coordinate, radiusKm float64) ([]location.Record, error) {
	query := `SELECT ` + locationColumns + `
		FROM user_locations
		WHERE NOT is_private
		AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography)
	`

	// PostGIS geography distances are in meters
	radiusMeters := radiusKm * 1000

	rows, err := s.db.Query(ctx, query, center.Longitude, center.Latitude, radiusMeters)
	if err != nil {
		return nil, eris.Wrap(err, "storage: query locations within radius")
	}
	defer rows.Close()

	var records []location.Record
	for rows.Next() {
		rec, err := scanLocation(rows)
		if err != nil {
			return nil, eris.Wrap(err, "storage: scan location")
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "storage: iterate locations")
	}

	return records, nil
}

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocation(row rowScanner) (*location.Record, error) {
	var (
		rec                             location.Record
		regionJSON                      []byte
		source                          string
		approxLat, approxLng, approxRad *float64
	)

	err := row.Scan(
		&rec.UserID,
		&rec.Coordinates.Latitude,
		&rec.Coordinates.Longitude,
		&rec.Street,
		&rec.Suburb,
		&rec.City,
		&rec.State,
		&rec.Postcode,
		&regionJSON,
		&rec.IsPrivate,
		&rec.Anonymized,
		&approxLat,
		&approxLng,
		&approxRad,
		&source,
		&rec.AccuracyMeters,
		&rec.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(regionJSON, &rec.Region); err != nil {
		return nil, eris.Wrap(err, "storage: decode region")
	}

	rec.Source = location.Source(source)
	if approxLat != nil && approxLng != nil {
		rec.ApproximateLocation = &location.ApproximateLocation{
			Coordinates: geo.Coordinate{Latitude: *approxLat, Longitude: *approxLng},
		}
		if approxRad != nil {
			rec.ApproximateLocation.RadiusKm = *approxRad
		}
	}

	return &rec, nil
}
