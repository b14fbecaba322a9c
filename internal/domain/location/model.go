// internal/domain/location/model.go

package location

import (
	"time"

	"github.com/rotisserie/eris"

	"regionalert/internal/domain/geo"
)

var (
	// ErrNotFound is returned when no location record exists for a user, or the
	// requester may not see it.
	ErrNotFound = eris.New("location: not found")

	// ErrInvalidLocation is returned when a location update fails validation.
	ErrInvalidLocation = eris.New("location: invalid location")
)

// Source describes how a location was obtained
type Source string

const (
	SourceGPS      Source = "gps"
	SourceManual   Source = "manual"
	SourceIP       Source = "ip"
	SourcePostcode Source = "postcode"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceGPS, SourceManual, SourceIP, SourcePostcode:
		return true
	}
	return false
}

// ApproximateLocation is the fuzzed point disclosed for anonymized records
type ApproximateLocation struct {
	Coordinates geo.Coordinate `json:"coordinates"`
	RadiusKm    float64        `json:"radiusKm"`
}

// Record is the last known location of a user. There is at most one per user.
type Record struct {
	UserID              string               `json:"userId"`
	Coordinates         geo.Coordinate       `json:"coordinates"`
	Street              string               `json:"street,omitempty"`
	Suburb              string               `json:"suburb,omitempty"`
	City                string               `json:"city,omitempty"`
	State               string               `json:"state,omitempty"`
	Postcode            string               `json:"postcode,omitempty"`
	Region              geo.Region           `json:"region"`
	IsPrivate           bool                 `json:"isPrivate"`
	Anonymized          bool                 `json:"anonymized"`
	ApproximateLocation *ApproximateLocation `json:"approximateLocation,omitempty"`
	Source              Source               `json:"source"`
	AccuracyMeters      *float64             `json:"accuracyMeters,omitempty"`
	LastUpdated         time.Time            `json:"lastUpdated"`
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if r.UserID == "" {
		return eris.Wrap(ErrInvalidLocation, "user id is required")
	}
	if err := r.Coordinates.Validate(); err != nil {
		return eris.Wrap(ErrInvalidLocation, err.Error())
	}
	if !r.Source.Valid() {
		return eris.Wrapf(ErrInvalidLocation, "unknown source %q", r.Source)
	}
	if r.Anonymized && r.ApproximateLocation == nil {
		return eris.Wrap(ErrInvalidLocation, "anonymized record requires an approximate location")
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	if r.ApproximateLocation != nil {
		approx := *r.ApproximateLocation
		out.ApproximateLocation = &approx
	}
	if r.AccuracyMeters != nil {
		acc := *r.AccuracyMeters
		out.AccuracyMeters = &acc
	}
	out.Region.MajorPlaces = append([]string(nil), r.Region.MajorPlaces...)
	return out
}
