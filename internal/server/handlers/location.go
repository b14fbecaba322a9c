// internal/server/handlers/location.go

package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"regionalert/internal/domain/alert"
	"regionalert/internal/domain/geo"
	"regionalert/internal/domain/location"
	locationsvc "regionalert/internal/service/location"
)

// LocationService records and discloses user locations
type LocationService interface {
	UpdateLocation(ctx context.Context, userID string, u locationsvc.Update) (*location.Record, error)
	GetLocation(ctx context.Context, ownerID, requesterID string) (*location.Record, error)
}

// LocationHandler handles user location HTTP requests
type LocationHandler struct {
	service  LocationService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(service LocationService, validate *validator.Validate, logger *zap.Logger) *LocationHandler {
	if validate == nil {
		validate = NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationHandler{
		service:  service,
		validate: validate,
		logger:   logger,
	}
}

type updateLocationRequest struct {
	Latitude       *float64 `json:"latitude" validate:"required,lat"`
	Longitude      *float64 `json:"longitude" validate:"required,lng"`
	Street         string   `json:"street" validate:"max=200"`
	Suburb         string   `json:"suburb" validate:"max=100"`
	City           string   `json:"city" validate:"max=100"`
	State          string   `json:"state" validate:"max=10"`
	Postcode       string   `json:"postcode" validate:"omitempty,numeric,len=4"`
	IsPrivate      bool     `json:"isPrivate"`
	Anonymized     bool     `json:"anonymized"`
	PrivacyLevel   string   `json:"privacyLevel" validate:"omitempty,oneof=precise neighborhood suburb regional"`
	Source         string   `json:"source" validate:"omitempty,oneof=gps manual ip postcode"`
	AccuracyMeters *float64 `json:"accuracyMeters" validate:"omitempty,gte=0"`
}

func (req updateLocationRequest) toUpdate() locationsvc.Update {
	return locationsvc.Update{
		Coordinates:    geo.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude},
		Street:         req.Street,
		Suburb:         req.Suburb,
		City:           req.City,
		State:          req.State,
		Postcode:       req.Postcode,
		IsPrivate:      req.IsPrivate,
		Anonymized:     req.Anonymized,
		PrivacyLevel:   req.PrivacyLevel,
		Source:         location.Source(req.Source),
		AccuracyMeters: req.AccuracyMeters,
	}
}

// UpdateLocation stores the caller's current location
func (h *LocationHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := alert.ValidateTopicID(userID); err != nil {
		respondWithDomainError(w, h.logger, "Invalid user ID", err)
		return
	}

	var req updateLocationRequest
	if err := decodeJSON(w, r, h.validate, &req); err != nil {
		respondWithDomainError(w, h.logger, "Invalid location update", err)
		return
	}

	rec, err := h.service.UpdateLocation(r.Context(), userID, req.toUpdate())
	if err != nil {
		respondWithDomainError(w, h.logger, "Failed to update location", err)
		return
	}

	respondWithJSON(w, http.StatusOK, rec)
}

// GetLocation returns a user's location as visible to requester_id
func (h *LocationHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	ownerID := chi.URLParam(r, "userID")
	requesterID := r.URL.Query().Get("requester_id")

	rec, err := h.service.GetLocation(r.Context(), ownerID, requesterID)
	if err != nil {
		respondWithDomainError(w, h.logger, "Location not available", err)
		return
	}

	respondWithJSON(w, http.StatusOK, rec)
}
