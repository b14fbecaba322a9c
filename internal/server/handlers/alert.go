// internal/server/handlers/alert.go

package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"regionalert/internal/domain/alert"
	"regionalert/internal/domain/geo"
	"regionalert/internal/service/broadcast"
)

// DefaultNearbyRadiusKm is used by the nearby search when no radius is given
const DefaultNearbyRadiusKm = 10.0

// AlertService manages the alert lifecycle
type AlertService interface {
	CreateAlert(ctx context.Context, c alert.Candidate) (*alert.EmergencyAlert, broadcast.Result, error)
	GetAlert(ctx context.Context, id string) (*alert.EmergencyAlert, error)
	ListActiveNear(ctx context.Context, c geo.Coordinate, radiusKm float64) ([]alert.EmergencyAlert, error)
	RecordResponse(ctx context.Context, alertID string, r alert.Response) (*alert.EmergencyAlert, error)
	ExpireAlert(ctx context.Context, id string) (*alert.EmergencyAlert, bool, error)
	CoordinateResponse(ctx context.Context, id string) (string, error)
}

// AlertHandler handles alert-related HTTP requests
type AlertHandler struct {
	service  AlertService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(service AlertService, validate *validator.Validate, logger *zap.Logger) *AlertHandler {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertHandler{
		service:  service,
		validate: validate,
		logger:   logger,
	}
}

type createAlertRequest struct {
	Title               string     `json:"title" validate:"required,max=200"`
	Description         string     `json:"description" validate:"max=5000"`
	Type                string     `json:"type" validate:"required,max=50"`
	Severity            string     `json:"severity" validate:"required,oneof=low medium high critical"`
	Latitude            *float64   `json:"latitude" validate:"required,lat"`
	Longitude           *float64   `json:"longitude" validate:"required,lng"`
	RadiusKm            float64    `json:"radiusKm" validate:"required,radius_km"`
	LocationDescription string     `json:"locationDescription" validate:"max=500"`
	SourceType          string     `json:"sourceType" validate:"omitempty,oneof=official community ai_generated"`
	Organization        string     `json:"organization" validate:"max=200"`
	ReportedBy          string     `json:"reportedBy" validate:"max=100"`
	ContactInfo         string     `json:"contactInfo" validate:"max=200"`
	ExpiresAt           *time.Time `json:"expiresAt"`
}

func (req createAlertRequest) toCandidate() alert.Candidate {
	source := alert.SourceType(req.SourceType)
	if source == "" {
		source = alert.SourceCommunity
	}
	return alert.Candidate{
		Title:               req.Title,
		Description:         req.Description,
		Type:                alert.Type(req.Type),
		Severity:            alert.Severity(req.Severity),
		Coordinates:         geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude},
		RadiusKm:            req.RadiusKm,
		LocationDescription: req.LocationDescription,
		SourceType:          source,
		Organization:        req.Organization,
		ReportedBy:          req.ReportedBy,
		ContactInfo:         req.ContactInfo,
		ExpiresAt:           req.ExpiresAt,
	}
}

type createAlertResponse struct {
	Alert          *alert.EmergencyAlert `json:"alert"`
	AffectedUsers  int                   `json:"affectedUsers"`
	Delivered      int                   `json:"delivered"`
	BroadcastError string                `json:"broadcastError,omitempty"`
}

// CreateAlert creates and broadcasts a new alert
func (h *AlertHandler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		respondWithDomainError(w, h.logger, "Invalid alert", err)
		return
	}

	a, result, err := h.service.CreateAlert(r.Context(), req.toCandidate())
	if err != nil && a == nil {
		respondWithDomainError(w, h.logger, "Failed to create alert", err)
		return
	}

	resp := createAlertResponse{
		Alert:         a,
		AffectedUsers: result.Affected,
		Delivered:     result.Delivered(),
	}
	if err != nil {
		// The alert is stored; only targeting failed.
		h.logger.Error("alert saved but broadcast failed",
			zap.String("alert_id", a.ID),
			zap.Error(err),
		)
		resp.BroadcastError = "broadcast failed"
	}

	respondWithJSON(w, http.StatusCreated, resp)
}

// GetAlert returns an alert with its responses
func (h *AlertHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithDomainError(w, h.logger, "Alert not available", err)
		return
	}

	respondWithJSON(w, http.StatusOK, a)
}

// ListNearby returns active alerts covering points near lat/lng
func (h *AlertHandler) ListNearby(w http.ResponseWriter, r *http.Request) {
	c, err := queryCoordinate(r, "lat", "lng")
	if err != nil {
		respondWithDomainError(w, h.logger, "Invalid location", err)
		return
	}

	radius := DefaultNearbyRadiusKm
	if raw := r.URL.Query().Get("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(radius) || radius > MaxRadiusKm {
			respondWithError(w, h.logger, http.StatusBadRequest, "Invalid radius", errBadRequest)
			return
		}
	}

	alerts, err := h.service.ListActiveNear(r.Context(), c, radius)
	if err != nil {
		respondWithDomainError(w, h.logger, "Failed to list alerts", err)
		return
	}
	if alerts == nil {
		alerts = []alert.EmergencyAlert{}
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

type responseRequest struct {
	UserID       string   `json:"userId" validate:"required,max=100"`
	ResponseType string   `json:"responseType" validate:"required,oneof=acknowledged safe need_help false_alarm"`
	Message      string   `json:"message" validate:"max=1000"`
	Latitude     *float64 `json:"latitude" validate:"omitempty,lat"`
	Longitude    *float64 `json:"longitude" validate:"omitempty,lng"`
}

func (req responseRequest) toResponse() alert.Response {
	resp := alert.Response{
		UserID:  req.UserID,
		Type:    alert.ResponseType(req.ResponseType),
		Message: req.Message,
	}
	if req.Latitude != nil && req.Longitude != nil {
		resp.Coordinates = &geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}
	return resp
}

// RecordResponse appends a recipient response to an alert
func (h *AlertHandler) RecordResponse(w http.ResponseWriter, r *http.Request) {
	var req responseRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		respondWithDomainError(w, h.logger, "Invalid response", err)
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		respondWithError(w, h.logger, http.StatusBadRequest, "Invalid response",
			eris.Wrap(errBadRequest, "latitude and longitude must be given together"))
		return
	}

	a, err := h.service.RecordResponse(r.Context(), chi.URLParam(r, "id"), req.toResponse())
	if err != nil {
		respondWithDomainError(w, h.logger, "Failed to record response", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"alertId":            a.ID,
		"status":             a.Status,
		"verificationStatus": a.Source.VerificationStatus,
		"responseCounts":     a.ResponseCounts(),
		"totalResponses":     len(a.Responses),
	})
}

// ExpireAlert expires an alert whose expiry time has passed
func (h *AlertHandler) ExpireAlert(w http.ResponseWriter, r *http.Request) {
	a, changed, err := h.service.ExpireAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondWithDomainError(w, h.logger, "Failed to expire alert", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"alert":   a,
		"expired": changed,
	})
}

// GetCoordination returns response coordination advice for an alert
func (h *AlertHandler) GetCoordination(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	advice, err := h.service.CoordinateResponse(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, h.logger, "Failed to coordinate response", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"alertId":        id,
		"recommendation": advice,
	})
}
