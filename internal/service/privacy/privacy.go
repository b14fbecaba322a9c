// internal/service/privacy/privacy.go

package privacy

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"regionalert/internal/domain/geo"
	"regionalert/internal/domain/location"
)

// Fuzzer displaces coordinates by a random bearing and distance. It is safe
// for concurrent use.
type Fuzzer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFuzzer creates a fuzzer drawing from src. A nil source is seeded from the
// current time; pass a fixed source for reproducible output.
func NewFuzzer(src rand.Source) *Fuzzer {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Fuzzer{rng: rand.New(src)}
}

// Fuzz returns a point at a uniformly random bearing in [0, 2π) and a uniformly
// random distance in [0, radiusKm] from c, using spherical destination math so
// longitude compression at high latitudes is respected.
func (f *Fuzzer) Fuzz(c geo.Coordinate, radiusKm float64) geo.Coordinate {
	if radiusKm <= 0 {
		return c
	}

	f.mu.Lock()
	bearing := f.rng.Float64() * 2 * math.Pi
	distance := f.rng.Float64() * radiusKm
	f.mu.Unlock()

	return geo.Destination(c, bearing, distance)
}

// ResolveForRequester projects a stored record for the given requester. The
// owner always sees the record as stored. Other requesters see nothing for a
// private record, and only the approximate location without street or suburb
// for an anonymized one. An anonymized record without an approximate location
// is withheld from them. The input is never modified.
func ResolveForRequester(record *location.Record, requesterID string) *location.Record {
	if record == nil {
		return nil
	}

	if requesterID == record.UserID {
		out := record.Clone()
		return &out
	}

	if record.IsPrivate {
		return nil
	}

	out := record.Clone()
	if record.Anonymized {
		if record.ApproximateLocation == nil {
			return nil
		}
		out.Coordinates = record.ApproximateLocation.Coordinates
		out.Street = ""
		out.Suburb = ""
	}

	return &out
}

// Level names a disclosure radius applied to anonymized records
type Level string

const (
	LevelPrecise      Level = "precise"
	LevelNeighborhood Level = "neighborhood"
	LevelSuburb       Level = "suburb"
	LevelRegional     Level = "regional"
)

// Manager maps privacy levels to fuzzing radii and produces approximate
// locations for anonymized records
type Manager struct {
	fuzzer       *Fuzzer
	levels       map[Level]float64
	defaultLevel Level
}

// NewManager creates a privacy manager with the built-in levels.
func NewManager(fuzzer *Fuzzer, defaultLevel Level) *Manager {
	m := &Manager{
		fuzzer: fuzzer,
		levels: map[Level]float64{
			LevelPrecise:      0.0,  // no displacement
			LevelNeighborhood: 1.0,  // ~1km
			LevelSuburb:       5.0,  // ~5km
			LevelRegional:     20.0, // ~20km
		},
		defaultLevel: LevelNeighborhood,
	}
	if m.ValidateLevel(string(defaultLevel)) {
		m.defaultLevel = defaultLevel
	}
	return m
}

// RadiusFor returns the disclosure radius for a level, falling back to the
// manager's default level when the name is unknown.
func (m *Manager) RadiusFor(level string) float64 {
	if r, ok := m.levels[Level(level)]; ok {
		return r
	}
	return m.levels[m.defaultLevel]
}

// Approximate fuzzes c for the named level.
func (m *Manager) Approximate(c geo.Coordinate, level string) *location.ApproximateLocation {
	radius := m.RadiusFor(level)
	return &location.ApproximateLocation{
		Coordinates: m.fuzzer.Fuzz(c, radius),
		RadiusKm:    radius,
	}
}

// Levels returns available privacy levels ordered by radius
func (m *Manager) Levels() []string {
	levels := make([]string, 0, len(m.levels))
	for level := range m.levels {
		levels = append(levels, string(level))
	}
	sort.Slice(levels, func(i, j int) bool {
		return m.levels[Level(levels[i])] < m.levels[Level(levels[j])]
	})
	return levels
}

// ValidateLevel checks if a privacy level is known
func (m *Manager) ValidateLevel(level string) bool {
	_, ok := m.levels[Level(level)]
	return ok
}
