// internal/adapter/storage/memory.go

package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"regionalert/internal/domain/alert"
	"regionalert/internal/domain/geo"
	"regionalert/internal/domain/location"
)

// MemoryLocationStore keeps location records in process. It backs the
// "memory" database driver used for local development.
type MemoryLocationStore struct {
	mu      sync.RWMutex
	records map[string]location.Record
}

// NewMemoryLocationStore creates an empty store.
func NewMemoryLocationStore() *MemoryLocationStore {
	return &MemoryLocationStore{records: make(map[string]location.Record)}
}

// UpsertLocation replaces the record for rec.UserID.
func (s *MemoryLocationStore) UpsertLocation(_ context.Context, rec location.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.UserID] = rec.Clone()
	return nil
}

// GetLocation returns the record for userID or location.ErrNotFound.
func (s *MemoryLocationStore) GetLocation(_ context.Context, userID string) (*location.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, eris.Wrapf(location.ErrNotFound, "user %s", userID)
	}
	out := rec.Clone()
	return &out, nil
}

// FindWithinRadius returns non-private records within radiusKm of center,
// nearest first.
func (s *MemoryLocationStore) FindWithinRadius(_ context.Context, center geo.Coordinate, radiusKm float64) ([]location.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []location.Record
	for _, rec := range s.records {
		if rec.IsPrivate || !geo.IsWithinRadius(rec.Coordinates, center, radiusKm) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return geo.Distance(center, out[i].Coordinates) < geo.Distance(center, out[j].Coordinates)
	})
	return out, nil
}

// MemoryAlertStore keeps alerts and their response logs in process.
type MemoryAlertStore struct {
	mu     sync.RWMutex
	alerts map[string]alert.EmergencyAlert
}

// NewMemoryAlertStore creates an empty store.
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{alerts: make(map[string]alert.EmergencyAlert)}
}

// CreateAlert stores a new alert.
func (s *MemoryAlertStore) CreateAlert(_ context.Context, a alert.EmergencyAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[a.ID]; exists {
		return eris.Errorf("storage: alert %s already exists", a.ID)
	}
	s.alerts[a.ID] = cloneAlert(a)
	return nil
}

// GetAlert returns a copy of the alert or alert.ErrNotFound.
func (s *MemoryAlertStore) GetAlert(_ context.Context, id string) (*alert.EmergencyAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return nil, eris.Wrapf(alert.ErrNotFound, "alert %s", id)
	}
	out := cloneAlert(a)
	return &out, nil
}

// AppendResponse adds r to the alert's response log.
func (s *MemoryAlertStore) AppendResponse(_ context.Context, alertID string, r alert.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[alertID]
	if !ok {
		return eris.Wrapf(alert.ErrNotFound, "alert %s", alertID)
	}
	a.Responses = append(a.Responses, r)
	s.alerts[alertID] = a
	return nil
}

// UpdateStatus moves an active alert to status.
func (s *MemoryAlertStore) UpdateStatus(_ context.Context, id string, status alert.Status, verification alert.VerificationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return eris.Wrapf(alert.ErrNotFound, "alert %s", id)
	}
	if !alert.CanTransition(a.Status, status) {
		return eris.Wrapf(alert.ErrInvalidTransition, "%s -> %s", a.Status, status)
	}
	a.Status = status
	a.Source.VerificationStatus = verification
	s.alerts[id] = a
	return nil
}

// FindActiveNear returns active alerts whose area reaches within radiusKm of
// c, highest priority first.
func (s *MemoryAlertStore) FindActiveNear(_ context.Context, c geo.Coordinate, radiusKm float64) ([]alert.EmergencyAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []alert.EmergencyAlert
	for _, a := range s.alerts {
		if a.Status != alert.StatusActive {
			continue
		}
		if geo.Distance(c, a.Location.Coordinates) > a.Location.RadiusKm+radiusKm {
			continue
		}
		out = append(out, cloneAlert(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func cloneAlert(a alert.EmergencyAlert) alert.EmergencyAlert {
	out := a
	out.Location.Regions = append([]string(nil), a.Location.Regions...)
	out.Metadata.RecommendedActions = append([]string(nil), a.Metadata.RecommendedActions...)
	out.Responses = append([]alert.Response{}, a.Responses...)
	if a.RiskAnalysis != nil {
		ra := *a.RiskAnalysis
		out.RiskAnalysis = &ra
	}
	if a.ExpiresAt != nil {
		exp := *a.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}
