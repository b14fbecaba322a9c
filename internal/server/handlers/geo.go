// internal/server/handlers/geo.go

package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"regionalert/internal/domain/geo"
)

// GeoHandler handles geospatial-related HTTP requests
type GeoHandler struct {
	service geo.Service
	logger  *zap.Logger
}

// NewGeoHandler creates a new geo handler
func NewGeoHandler(service geo.Service, logger *zap.Logger) *GeoHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeoHandler{
		service: service,
		logger:  logger,
	}
}

// ClassifyRegion returns the catalog region containing lat/lng
func (h *GeoHandler) ClassifyRegion(w http.ResponseWriter, r *http.Request) {
	c, err := queryCoordinate(r, "lat", "lng")
	if err != nil {
		respondWithDomainError(w, h.logger, "Invalid location", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"coordinates":   c,
		"region":        h.service.ClassifyRegion(c),
		"withinCountry": h.service.IsWithinCountry(c),
	})
}

// NearestPlace returns the closest named place to lat/lng
func (h *GeoHandler) NearestPlace(w http.ResponseWriter, r *http.Request) {
	c, err := queryCoordinate(r, "lat", "lng")
	if err != nil {
		respondWithDomainError(w, h.logger, "Invalid location", err)
		return
	}

	place, ok := h.service.NearestNamedPlace(c)
	if !ok {
		respondWithError(w, h.logger, http.StatusNotFound, "No named places configured", nil)
		return
	}

	respondWithJSON(w, http.StatusOK, place)
}

// Distance returns the great-circle distance between two points
func (h *GeoHandler) Distance(w http.ResponseWriter, r *http.Request) {
	from, err := queryCoordinate(r, "from_lat", "from_lng")
	if err != nil {
		respondWithDomainError(w, h.logger, "Invalid origin", err)
		return
	}
	to, err := queryCoordinate(r, "to_lat", "to_lng")
	if err != nil {
		respondWithDomainError(w, h.logger, "Invalid destination", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"from":       from,
		"to":         to,
		"distanceKm": h.service.Distance(from, to),
	})
}

// WithinCountry reports whether lat/lng falls inside the national bounds
func (h *GeoHandler) WithinCountry(w http.ResponseWriter, r *http.Request) {
	c, err := queryCoordinate(r, "lat", "lng")
	if err != nil {
		respondWithDomainError(w, h.logger, "Invalid location", err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"coordinates":   c,
		"withinCountry": h.service.IsWithinCountry(c),
	})
}
