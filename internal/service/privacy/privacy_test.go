package privacy

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regionalert/internal/domain/geo"
	"regionalert/internal/domain/location"
)

var sydney = geo.Coordinate{Latitude: -33.8688, Longitude: 151.2093}

func TestFuzz_StaysWithinRadius(t *testing.T) {
	f := NewFuzzer(rand.NewSource(42))
	origins := []geo.Coordinate{sydney, {Latitude: -43.1, Longitude: 147.3}, {Latitude: -10.6, Longitude: 142.5}, {Latitude: 85, Longitude: 0}}

	for _, c := range origins {
		for _, r := range []float64{0.1, 1, 5, 50} {
			for i := 0; i < 200; i++ {
				got := f.Fuzz(c, r)
				assert.LessOrEqual(t, geo.Distance(c, got), r+1e-6)
			}
		}
	}
}

func TestFuzz_Varies(t *testing.T) {
	f := NewFuzzer(nil)

	seen := map[geo.Coordinate]struct{}{}
	for i := 0; i < 20; i++ {
		seen[f.Fuzz(sydney, 5)] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}

func TestFuzz_ReproducibleWithSource(t *testing.T) {
	a := NewFuzzer(rand.NewSource(7)).Fuzz(sydney, 3)
	b := NewFuzzer(rand.NewSource(7)).Fuzz(sydney, 3)
	assert.Equal(t, a, b)
}

func TestFuzz_ZeroRadiusIsIdentity(t *testing.T) {
	assert.Equal(t, sydney, NewFuzzer(nil).Fuzz(sydney, 0))
}

func newRecord() *location.Record {
	acc := 12.0
	return &location.Record{
		UserID:      "owner",
		Coordinates: sydney,
		Street:      "1 Macquarie St",
		Suburb:      "Sydney",
		City:        "Sydney",
		State:       "NSW",
		Postcode:    "2000",
		ApproximateLocation: &location.ApproximateLocation{
			Coordinates: geo.Coordinate{Latitude: -33.87, Longitude: 151.22},
			RadiusKm:    1,
		},
		Source:         location.SourceGPS,
		AccuracyMeters: &acc,
		LastUpdated:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestResolveForRequester(t *testing.T) {
	tests := []struct {
		name       string
		private    bool
		anonymized bool
		requester  string
		wantNil    bool
		wantRaw    bool
	}{
		{"owner sees private", true, false, "owner", false, true},
		{"owner sees anonymized raw", false, true, "owner", false, true},
		{"owner sees private anonymized raw", true, true, "owner", false, true},
		{"other blocked by private", true, false, "other", true, false},
		{"other blocked by private anonymized", true, true, "other", true, false},
		{"other sees approximate", false, true, "other", false, false},
		{"other sees plain record", false, false, "other", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecord()
			rec.IsPrivate = tt.private
			rec.Anonymized = tt.anonymized
			before := rec.Clone()

			got := ResolveForRequester(rec, tt.requester)

			assert.Equal(t, before, *rec, "stored record must not change")
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			if tt.wantRaw {
				assert.Equal(t, sydney, got.Coordinates)
				assert.Equal(t, "1 Macquarie St", got.Street)
				assert.Equal(t, "Sydney", got.Suburb)
				return
			}
			assert.Equal(t, rec.ApproximateLocation.Coordinates, got.Coordinates)
			assert.Empty(t, got.Street)
			assert.Empty(t, got.Suburb)
			assert.Equal(t, "Sydney", got.City)
		})
	}
}

func TestResolveForRequester_CopyIsDetached(t *testing.T) {
	rec := newRecord()
	got := ResolveForRequester(rec, "owner")
	require.NotNil(t, got)

	got.ApproximateLocation.RadiusKm = 99
	*got.AccuracyMeters = 1

	assert.Equal(t, 1.0, rec.ApproximateLocation.RadiusKm)
	assert.Equal(t, 12.0, *rec.AccuracyMeters)
}

func TestResolveForRequester_AnonymizedWithoutApproximation(t *testing.T) {
	rec := newRecord()
	rec.Anonymized = true
	rec.ApproximateLocation = nil

	assert.Nil(t, ResolveForRequester(rec, "stranger"))

	own := ResolveForRequester(rec, "owner")
	require.NotNil(t, own)
	assert.Equal(t, sydney, own.Coordinates)
}

func TestResolveForRequester_Nil(t *testing.T) {
	assert.Nil(t, ResolveForRequester(nil, "anyone"))
}

func TestManager_Levels(t *testing.T) {
	m := NewManager(NewFuzzer(rand.NewSource(1)), LevelSuburb)

	assert.Equal(t, []string{"precise", "neighborhood", "suburb", "regional"}, m.Levels())
	assert.True(t, m.ValidateLevel("regional"))
	assert.False(t, m.ValidateLevel("street"))
	assert.Equal(t, 5.0, m.RadiusFor("unknown"))
	assert.Equal(t, 0.0, m.RadiusFor("precise"))
}

func TestManager_InvalidDefaultFallsBack(t *testing.T) {
	m := NewManager(NewFuzzer(nil), Level("bogus"))
	assert.Equal(t, 1.0, m.RadiusFor(""))
}

func TestManager_Approximate(t *testing.T) {
	m := NewManager(NewFuzzer(rand.NewSource(3)), LevelNeighborhood)

	approx := m.Approximate(sydney, "regional")
	require.NotNil(t, approx)
	assert.Equal(t, 20.0, approx.RadiusKm)
	assert.LessOrEqual(t, geo.Distance(sydney, approx.Coordinates), 20.0+1e-6)
}
