// internal/adapter/storage/alert_store.go

package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"regionalert/internal/domain/alert"
	"regionalert/internal/domain/geo"
)

// AlertStore implements storage for alerts and their response logs on PostGIS
type AlertStore struct {
	db Pool
}

// NewAlertStore creates a new alert store
func NewAlertStore(db Pool) *AlertStore {
	return &AlertStore{
		db: db,
	}
}

const alertColumns = `
	id::text, title, description, alert_type, severity,
	ST_Y(location::geometry) AS lat, ST_X(location::geometry) AS lng,
	radius_km, regions, location_description,
	source_type, source_organization, reported_by, verification_status,
	priority, status, expires_at, recommended_actions, contact_info,
	risk_analysis, created_at`

// CreateAlert persists a new alert. Responses are stored separately.
func (s *AlertStore) CreateAlert(ctx context.Context, a alert.EmergencyAlert) error {
	point, err := encodePoint(a.Location.Coordinates)
	if err != nil {
		return err
	}

	var riskJSON []byte
	if a.RiskAnalysis != nil {
		if riskJSON, err = json.Marshal(a.RiskAnalysis); err != nil {
			return eris.Wrap(err, "storage: encode risk analysis")
		}
	}

	query := `
		INSERT INTO alerts (
			id, title, description, alert_type, severity,
			location, radius_km, regions, location_description,
			source_type, source_organization, reported_by, verification_status,
			priority, status, expires_at, recommended_actions, contact_info,
			risk_analysis, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			ST_GeomFromEWKB($6)::geography, $7, $8, $9,
			$10, $11, $12, $13,
			$14, $15, $16, $17, $18,
			$19, $20
		)
	`

	_, err = s.db.Exec(ctx, query,
		a.ID,
		a.Title,
		a.Description,
		string(a.Type),
		string(a.Severity),
		point,
		a.Location.RadiusKm,
		nonNil(a.Location.Regions),
		a.Location.Description,
		string(a.Source.Type),
		a.Source.Organization,
		a.Source.ReportedBy,
		string(a.Source.VerificationStatus),
		a.Priority,
		string(a.Status),
		a.ExpiresAt,
		nonNil(a.Metadata.RecommendedActions),
		a.Metadata.ContactInfo,
		riskJSON,
		a.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "storage: insert alert %s", a.ID)
	}

	return nil
}

// GetAlert retrieves an alert with its responses in append order
func (s *AlertStore) GetAlert(ctx context.Context, id string) (*alert.EmergencyAlert, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, eris.Wrapf(alert.ErrNotFound, "alert %s", id)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	a, err := scanAlert(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, eris.Wrapf(alert.ErrNotFound, "alert %s", id)
		}
		return nil, eris.Wrapf(err, "storage: get alert %s", id)
	}

	responses, err := s.responses(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Responses = responses

	return a, nil
}

func (s *AlertStore) responses(ctx context.Context, alertID string) ([]alert.Response, error) {
	query := `
		SELECT user_id, response_type, message, latitude, longitude, responded_at
		FROM alert_responses
		WHERE alert_id = $1
		ORDER BY id
	`

	rows, err := s.db.Query(ctx, query, alertID)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: query responses for %s", alertID)
	}
	defer rows.Close()

	responses := []alert.Response{}
	for rows.Next() {
		var (
			r            alert.Response
			responseType string
			lat, lng     *float64
		)
		if err := rows.Scan(&r.UserID, &responseType, &r.Message, &lat, &lng, &r.Timestamp); err != nil {
			return nil, eris.Wrap(err, "storage: scan response")
		}
		r.Type = alert.ResponseType(responseType)
		if lat != nil && lng != nil {
			r.Coordinates = &geo.Coordinate{Latitude: *lat, Longitude: *lng}
		}
		responses = append(responses, r)
	}

	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "storage: iterate responses")
	}

	return responses, nil
}

// AppendResponse adds a response to an alert's log
func (s *AlertStore) AppendResponse(ctx context.Context, alertID string, r alert.Response) error {
	if _, err := uuid.Parse(alertID); err != nil {
		return eris.Wrapf(alert.ErrNotFound, "alert %s", alertID)
	}

	var lat, lng *float64
	if r.Coordinates != nil {
		lat, lng = &r.Coordinates.Latitude, &r.Coordinates.Longitude
	}

	query := `
		INSERT INTO alert_responses (alert_id, user_id, response_type, message, latitude, longitude, responded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.Exec(ctx, query, alertID, r.UserID, string(r.Type), r.Message, lat, lng, r.Timestamp)
	if err != nil {
		if isForeignKeyViolation(err) {
			return eris.Wrapf(alert.ErrNotFound, "alert %s", alertID)
		}
		return eris.Wrapf(err, "storage: append response to %s", alertID)
	}

	return nil
}

// UpdateStatus moves an active alert to status. The row is only touched while
// it is still active, so terminal alerts never change.
func (s *AlertStore) UpdateStatus(ctx context.Context, id string, status alert.Status, verification alert.VerificationStatus) error {
	if !alert.CanTransition(alert.StatusActive, status) {
		return eris.Wrapf(alert.ErrInvalidTransition, "to %s", status)
	}

	query := `
		UPDATE alerts
		SET status = $2, verification_status = $3
		WHERE id = $1 AND status = 'active'
	`

	tag, err := s.db.Exec(ctx, query, id, string(status), string(verification))
	if err != nil {
		return eris.Wrapf(err, "storage: update status of %s", id)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1)`, id).Scan(&exists); err != nil {
			return eris.Wrapf(err, "storage: check alert %s", id)
		}
		if !exists {
			return eris.Wrapf(alert.ErrNotFound, "alert %s", id)
		}
		return eris.Wrapf(alert.ErrInvalidTransition, "alert %s is no longer active", id)
	}

	return nil
}

// FindActiveNear finds active alerts whose area reaches within radiusKm of c,
// highest priority first. Responses are not loaded.
func (s *AlertStore) FindActiveNear(ctx context.Context, c geo.Coordinate, radiusKm float64) ([]alert.EmergencyAlert, error) {
	query := `SELECT ` + alertColumns + `
		FROM alerts
		WHERE status = 'active'
		AND ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, (radius_km + $3) * 1000)
		ORDER BY priority DESC, created_at DESC
		LIMIT 100
	`

	rows, err := s.db.Query(ctx, query, c.Longitude, c.Latitude, radiusKm)
	if err != nil {
		return nil, eris.Wrap(err, "storage: query active alerts")
	}
	defer rows.Close()

	alerts := []alert.EmergencyAlert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, eris.Wrap(err, "storage: scan alert")
		}
		alerts = append(alerts, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "storage: iterate alerts")
	}

	return alerts, nil
}

func scanAlert(row rowScanner) (*alert.EmergencyAlert, error) {
	var (
		a                           alert.EmergencyAlert
		alertType, severity, status string
		sourceType, verification    string
		priority                    int16
		expiresAt                   *time.Time
		riskJSON                    []byte
	)

	err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Description,
		&alertType,
		&severity,
		&a.Location.Coordinates.Latitude,
		&a.Location.Coordinates.Longitude,
		&a.Location.RadiusKm,
		&a.Location.Regions,
		&a.Location.Description,
		&sourceType,
		&a.Source.Organization,
		&a.Source.ReportedBy,
		&verification,
		&priority,
		&status,
		&expiresAt,
		&a.Metadata.RecommendedActions,
		&a.Metadata.ContactInfo,
		&riskJSON,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Type = alert.Type(alertType)
	a.Severity = alert.Severity(severity)
	a.Status = alert.Status(status)
	a.Source.Type = alert.SourceType(sourceType)
	a.Source.VerificationStatus = alert.VerificationStatus(verification)
	a.Priority = int(priority)
	a.ExpiresAt = expiresAt
	a.Responses = []alert.Response{}

	if len(riskJSON) > 0 {
		var ra alert.RiskAnalysis
		if err := json.Unmarshal(riskJSON, &ra); err != nil {
			return nil, eris.Wrap(err, "storage: decode risk analysis")
		}
		a.RiskAnalysis = &ra
	}

	return &a, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
