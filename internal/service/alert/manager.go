// internal/service/alert/manager.go

package alert

import (
	"context"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"regionalert/internal/adapter/lock"
	"regionalert/internal/domain/alert"
	"regionalert/internal/domain/geo"
	"regionalert/internal/observability"
	"regionalert/internal/service/broadcast"
)

// Status change reasons published with status events
const (
	ReasonFalseAlarmReports = "false_alarm_reports"
	ReasonExpired           = "expired"
)

// AlertStore defines the storage interface for alerts
type AlertStore interface {
	// CreateAlert persists a new alert
	CreateAlert(ctx context.Context, a alert.EmergencyAlert) error

	// GetAlert retrieves an alert and its responses by ID
	GetAlert(ctx context.Context, id string) (*alert.EmergencyAlert, error)

	// AppendResponse adds a response to an alert's response log
	AppendResponse(ctx context.Context, alertID string, r alert.Response) error

	// UpdateStatus moves an active alert to a terminal status
	UpdateStatus(ctx context.Context, id string, status alert.Status, verification alert.VerificationStatus) error

	// FindActiveNear finds active alerts whose area is within radiusKm of c
	FindActiveNear(ctx context.Context, c geo.Coordinate, radiusKm float64) ([]alert.EmergencyAlert, error)
}

// Enricher scores candidates and advises on responses without failing.
type Enricher interface {
	Enrich(ctx context.Context, c alert.Candidate) alert.RiskAnalysis
	CoordinateResponse(ctx context.Context, a alert.EmergencyAlert, counts map[alert.ResponseType]int) string
}

// Broadcaster fans alerts and alert events out to recipients.
type Broadcaster interface {
	Broadcast(ctx context.Context, a alert.EmergencyAlert) (broadcast.Result, error)
	PublishStatusChange(a alert.EmergencyAlert, previous alert.Status, reason string) error
	PublishResponseCounts(a alert.EmergencyAlert) error
}

// RegionTagger names the regions an alert centre falls in.
type RegionTagger interface {
	RegionNames(c geo.Coordinate) []string
}

// Manager owns the alert lifecycle: creation, response aggregation, crowd
// verification and expiry.
type Manager struct {
	store       AlertStore
	enricher    Enricher
	broadcaster Broadcaster
	regions     RegionTagger
	locker      lock.Locker
	clock       clockwork.Clock
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewManager creates a new alert manager. A nil locker falls back to an
// in-process keyed mutex.
func NewManager(
	store AlertStore,
	enricher Enricher,
	broadcaster Broadcaster,
	regions RegionTagger,
	locker lock.Locker,
	clock clockwork.Clock,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Manager {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:       store,
		enricher:    enricher,
		broadcaster: broadcaster,
		regions:     regions,
		locker:      locker,
		clock:       clock,
		metrics:     metrics,
		logger:      logger,
	}
}

// CreateAlert enriches, scores, persists and broadcasts a new alert.
func (m *Manager) CreateAlert(ctx context.Context, c alert.Candidate) (*alert.EmergencyAlert, broadcast.Result, error) {
	c.Title = strings.TrimSpace(c.Title)
	if err := c.Validate(); err != nil {
		return nil, broadcast.Result{}, err
	}

	analysis := m.enricher.Enrich(ctx, c)

	a := alert.EmergencyAlert{
		ID:          uuid.New().String(),
		Title:       c.Title,
		Description: c.Description,
		Type:        c.Type,
		Severity:    c.Severity,
		Location: alert.Location{
			Coordinates: c.Coordinates,
			RadiusKm:    c.RadiusKm,
			Regions:     m.regions.RegionNames(c.Coordinates),
			Description: c.LocationDescription,
		},
		Source: alert.Source{
			Type:               c.SourceType,
			Organization:       c.Organization,
			ReportedBy:         c.ReportedBy,
			VerificationStatus: alert.InitialVerification(c.SourceType, &analysis),
		},
		Priority:  alert.Priority(c.Severity, c.Type),
		Status:    alert.StatusActive,
		ExpiresAt: c.ExpiresAt,
		Metadata: alert.Metadata{
			RecommendedActions: alert.DefaultActions(c.Type),
			ContactInfo:        c.ContactInfo,
		},
		RiskAnalysis: &analysis,
		Responses:    []alert.Response{},
		CreatedAt:    m.clock.Now(),
	}

	if err := m.store.CreateAlert(ctx, a); err != nil {
		return nil, broadcast.Result{}, eris.Wrap(err, "alert: save alert")
	}
	m.metrics.AlertsCreated.WithLabelValues(string(a.Type), string(a.Severity)).Inc()

	m.logger.Info("alert created",
		zap.String("alert_id", a.ID),
		zap.String("type", string(a.Type)),
		zap.String("severity", string(a.Severity)),
		zap.Int("priority", a.Priority),
		zap.String("verification", string(a.Source.VerificationStatus)),
	)

	result, err := m.broadcaster.Broadcast(ctx, a)
	if err != nil {
		return &a, broadcast.Result{}, eris.Wrap(err, "alert: broadcast alert")
	}

	return &a, result, nil
}

// GetAlert returns an alert by ID
func (m *Manager) GetAlert(ctx context.Context, id string) (*alert.EmergencyAlert, error) {
	a, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "alert: get alert %s", id)
	}
	return a, nil
}

// ListActiveNear returns active alerts covering points within radiusKm of c
func (m *Manager) ListActiveNear(ctx context.Context, c geo.Coordinate, radiusKm float64) ([]alert.EmergencyAlert, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if radiusKm < 0 || math.IsNaN(radiusKm) {
		radiusKm = 0
	}
	alerts, err := m.store.FindActiveNear(ctx, c, radiusKm)
	if err != nil {
		return nil, eris.Wrap(err, "alert: find active alerts")
	}
	return alerts, nil
}

// RecordResponse appends a response to an alert and applies crowd
// verification. Responses for one alert are processed one at a time so the
// false alarm recount sees every earlier append.
func (m *Manager) RecordResponse(ctx context.Context, alertID string, r alert.Response) (*alert.EmergencyAlert, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = m.clock.Now()
	}

	unlock, err := m.locker.Lock(ctx, alertID)
	if err != nil {
		return nil, eris.Wrapf(err, "alert: lock alert %s", alertID)
	}
	defer unlock()

	a, err := m.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, eris.Wrapf(err, "alert: get alert %s", alertID)
	}

	if err := m.store.AppendResponse(ctx, alertID, r); err != nil {
		return nil, eris.Wrapf(err, "alert: append response to %s", alertID)
	}
	a.Responses = append(a.Responses, r)
	m.metrics.ResponsesRecorded.WithLabelValues(string(r.Type)).Inc()

	falseAlarms := a.ResponseCounts()[alert.ResponseFalseAlarm]
	if falseAlarms >= alert.FalseAlarmThreshold &&
		a.Source.VerificationStatus != alert.VerificationFalseAlarm &&
		alert.CanTransition(a.Status, alert.StatusCancelled) {
		if err := m.transition(ctx, a, alert.StatusCancelled, alert.VerificationFalseAlarm, ReasonFalseAlarmReports); err != nil {
			return nil, err
		}
		m.logger.Info("alert cancelled by false alarm reports",
			zap.String("alert_id", a.ID),
			zap.Int("false_alarms", falseAlarms),
		)
	}

	if err := m.broadcaster.PublishResponseCounts(*a); err != nil {
		m.logger.Warn("failed to publish response counts",
			zap.String("alert_id", a.ID),
			zap.Error(err),
		)
	}

	return a, nil
}

// ExpireAlert marks an active alert expired once its expiry time has passed.
// It reports whether the alert changed.
func (m *Manager) ExpireAlert(ctx context.Context, id string) (*alert.EmergencyAlert, bool, error) {
	unlock, err := m.locker.Lock(ctx, id)
	if err != nil {
		return nil, false, eris.Wrapf(err, "alert: lock alert %s", id)
	}
	defer unlock()

	a, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return nil, false, eris.Wrapf(err, "alert: get alert %s", id)
	}

	if a.ExpiresAt == nil || a.ExpiresAt.After(m.clock.Now()) ||
		!alert.CanTransition(a.Status, alert.StatusExpired) {
		return a, false, nil
	}

	if err := m.transition(ctx, a, alert.StatusExpired, a.Source.VerificationStatus, ReasonExpired); err != nil {
		return nil, false, err
	}
	return a, true, nil
}

// CoordinateResponse asks the enricher for coordination advice based on the
// responses recorded so far.
func (m *Manager) CoordinateResponse(ctx context.Context, id string) (string, error) {
	a, err := m.store.GetAlert(ctx, id)
	if err != nil {
		return "", eris.Wrapf(err, "alert: get alert %s", id)
	}
	return m.enricher.CoordinateResponse(ctx, *a, a.ResponseCounts()), nil
}

// transition persists a status change on a and announces it. a is updated in
// place only after the store accepts the change.
func (m *Manager) transition(
	ctx context.Context,
	a *alert.EmergencyAlert,
	status alert.Status,
	verification alert.VerificationStatus,
	reason string,
) error {
	if err := m.store.UpdateStatus(ctx, a.ID, status, verification); err != nil {
		return eris.Wrapf(err, "alert: update status of %s", a.ID)
	}

	previous := a.Status
	a.Status = status
	a.Source.VerificationStatus = verification
	m.metrics.StatusTransitions.WithLabelValues(string(status), reason).Inc()

	if err := m.broadcaster.PublishStatusChange(*a, previous, reason); err != nil {
		m.logger.Warn("failed to publish status change",
			zap.String("alert_id", a.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
	return nil
}
