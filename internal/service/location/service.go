// internal/service/location/service.go

package location

import (
	"context"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"regionalert/internal/domain/geo"
	"regionalert/internal/domain/location"
	"regionalert/internal/service/privacy"
)

// LocationStore defines the storage interface for user locations
type LocationStore interface {
	// UpsertLocation creates or replaces the record for a user
	UpsertLocation(ctx context.Context, rec location.Record) error

	// GetLocation retrieves the record for a user
	GetLocation(ctx context.Context, userID string) (*location.Record, error)

	// FindWithinRadius finds non-private records within radiusKm of center
	FindWithinRadius(ctx context.Context, center geo.Coordinate, radiusKm float64) ([]location.Record, error)
}

// Update is a location report from a user
type Update struct {
	Coordinates    geo.Coordinate
	Street         string
	Suburb         string
	City           string
	State          string
	Postcode       string
	IsPrivate      bool
	Anonymized     bool
	PrivacyLevel   string
	Source         location.Source
	AccuracyMeters *float64
}

// Service records user locations and applies privacy rules on read
type Service struct {
	store   LocationStore
	geo     geo.Service
	privacy *privacy.Manager
	clock   clockwork.Clock
	logger  *zap.Logger
}

// NewService creates a new location service
func NewService(
	store LocationStore,
	geoService geo.Service,
	privacyManager *privacy.Manager,
	clock clockwork.Clock,
	logger *zap.Logger,
) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   store,
		geo:     geoService,
		privacy: privacyManager,
		clock:   clock,
		logger:  logger,
	}
}

// UpdateLocation classifies, optionally anonymizes and stores a user's
// location, replacing any previous record.
func (s *Service) UpdateLocation(ctx context.Context, userID string, u Update) (*location.Record, error) {
	if u.Source == "" {
		u.Source = location.SourceManual
	}

	rec := location.Record{
		UserID:         strings.TrimSpace(userID),
		Coordinates:    u.Coordinates,
		Street:         u.Street,
		Suburb:         u.Suburb,
		City:           u.City,
		State:          u.State,
		Postcode:       u.Postcode,
		IsPrivate:      u.IsPrivate,
		Anonymized:     u.Anonymized,
		Source:         u.Source,
		AccuracyMeters: u.AccuracyMeters,
		LastUpdated:    s.clock.Now(),
	}
	if err := rec.Coordinates.Validate(); err != nil {
		return nil, eris.Wrap(location.ErrInvalidLocation, err.Error())
	}

	rec.Region = s.geo.ClassifyRegion(rec.Coordinates)
	if rec.State == "" && rec.Region.State != geo.FallbackRegion.State {
		rec.State = rec.Region.State
	}
	if rec.Anonymized {
		rec.ApproximateLocation = s.privacy.Approximate(rec.Coordinates, u.PrivacyLevel)
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.UpsertLocation(ctx, rec); err != nil {
		return nil, eris.Wrapf(err, "location: save location for %s", rec.UserID)
	}

	s.logger.Debug("location updated",
		zap.String("user_id", rec.UserID),
		zap.String("region", rec.Region.Name),
		zap.Bool("private", rec.IsPrivate),
		zap.Bool("anonymized", rec.Anonymized),
	)

	return &rec, nil
}

// GetLocation returns ownerID's location as requesterID may see it. A record
// hidden from the requester is reported as location.ErrNotFound.
func (s *Service) GetLocation(ctx context.Context, ownerID, requesterID string) (*location.Record, error) {
	rec, err := s.store.GetLocation(ctx, ownerID)
	if err != nil {
		return nil, eris.Wrapf(err, "location: get location for %s", ownerID)
	}

	visible := privacy.ResolveForRequester(rec, requesterID)
	if visible == nil {
		return nil, eris.Wrapf(location.ErrNotFound, "user %s", ownerID)
	}
	return visible, nil
}
