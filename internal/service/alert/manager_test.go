package alert

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regionalert/internal/adapter/storage"
	"regionalert/internal/domain/alert"
	"regionalert/internal/domain/geo"
	"regionalert/internal/domain/location"
	"regionalert/internal/observability"
	"regionalert/internal/service/broadcast"
	geosvc "regionalert/internal/service/geo"
)

type stubEnricher struct {
	analysis alert.RiskAnalysis

	mu     sync.Mutex
	counts map[alert.ResponseType]int
}

func (e *stubEnricher) Enrich(context.Context, alert.Candidate) alert.RiskAnalysis {
	return e.analysis
}

func (e *stubEnricher) CoordinateResponse(_ context.Context, _ alert.EmergencyAlert, counts map[alert.ResponseType]int) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts = counts
	return "Send the rural fire brigade to Penrith"
}

type fixture struct {
	manager   *Manager
	alerts    *storage.MemoryAlertStore
	locations *storage.MemoryLocationStore
	publisher *broadcast.Recorder
	enricher  *stubEnricher
	clock     *clockwork.FakeClock
	metrics   *observability.Metrics
}

var (
	penrith = geo.Coordinate{Latitude: -33.7507, Longitude: 150.6877}
	start   = time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		alerts:    storage.NewMemoryAlertStore(),
		locations: storage.NewMemoryLocationStore(),
		publisher: &broadcast.Recorder{},
		enricher: &stubEnricher{analysis: alert.RiskAnalysis{
			RiskScore: 0.7, Confidence: 0.5, PredictedImpact: "Homes at risk",
			RecommendedResponse: "Evacuate", IsLikelyValid: true,
		}},
		clock:   clockwork.NewFakeClockAt(start),
		metrics: observability.NewMetricsForTesting(),
	}

	b := broadcast.NewBroadcaster(f.locations, f.publisher, f.clock, broadcast.Config{Concurrency: 4}, f.metrics, nil)
	regions := geosvc.NewGeoSpatialService(geosvc.DefaultConfig())
	f.manager = NewManager(f.alerts, f.enricher, b, regions, nil, f.clock, f.metrics, nil)
	return f
}

func (f *fixture) addUser(t *testing.T, id string, c geo.Coordinate, private bool) {
	t.Helper()
	require.NoError(t, f.locations.UpsertLocation(context.Background(), location.Record{
		UserID: id, Coordinates: c, IsPrivate: private, Source: location.SourceGPS, LastUpdated: start,
	}))
}

func fireCandidate() alert.Candidate {
	return alert.Candidate{
		Title:       "Bushfire near Penrith",
		Description: "Fast moving grass fire heading east",
		Type:        alert.TypeFire,
		Severity:    alert.SeverityCritical,
		Coordinates: penrith,
		RadiusKm:    10,
		SourceType:  alert.SourceCommunity,
		ReportedBy:  "user-9",
	}
}

func TestCreateAlert(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "near", geo.Coordinate{Latitude: -33.76, Longitude: 150.70}, false)
	f.addUser(t, "hidden", geo.Coordinate{Latitude: -33.76, Longitude: 150.69}, true)
	f.addUser(t, "far", geo.Coordinate{Latitude: -37.81, Longitude: 144.96}, false)

	a, res, err := f.manager.CreateAlert(context.Background(), fireCandidate())
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, 10, a.Priority)
	assert.Equal(t, alert.StatusActive, a.Status)
	assert.Equal(t, alert.VerificationPending, a.Source.VerificationStatus)
	assert.Equal(t, alert.DefaultActions(alert.TypeFire), a.Metadata.RecommendedActions)
	assert.Contains(t, a.Location.Regions, "Greater Sydney")
	assert.Equal(t, start, a.CreatedAt)
	require.NotNil(t, a.RiskAnalysis)
	assert.Equal(t, "Homes at risk", a.RiskAnalysis.PredictedImpact)

	assert.Equal(t, 1, res.Affected)
	assert.Equal(t, 1, res.Delivered())
	assert.Len(t, f.publisher.Messages(alert.UserTopic("near")), 1)
	assert.Empty(t, f.publisher.Messages(alert.UserTopic("hidden")))
	assert.Len(t, f.publisher.Messages(alert.BroadcastTopic), 1)

	stored, err := f.alerts.GetAlert(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Title, stored.Title)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.AlertsCreated.WithLabelValues("fire", "critical")))
}

func TestCreateAlert_Verification(t *testing.T) {
	tests := []struct {
		name       string
		source     alert.SourceType
		confidence float64
		want       alert.VerificationStatus
	}{
		{"official always verified", alert.SourceOfficial, 0.1, alert.VerificationVerified},
		{"confident community verified", alert.SourceCommunity, 0.9, alert.VerificationVerified},
		{"threshold is exclusive", alert.SourceCommunity, 0.8, alert.VerificationPending},
		{"ai generated pending", alert.SourceAIGenerated, 0.3, alert.VerificationPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.enricher.analysis.Confidence = tt.confidence

			c := fireCandidate()
			c.SourceType = tt.source
			a, _, err := f.manager.CreateAlert(context.Background(), c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Source.VerificationStatus)
		})
	}
}

func TestCreateAlert_Invalid(t *testing.T) {
	f := newFixture(t)

	c := fireCandidate()
	c.Title = "   "
	_, _, err := f.manager.CreateAlert(context.Background(), c)
	require.Error(t, err)
	assert.True(t, eris.Is(err, alert.ErrInvalidAlert))
	assert.Empty(t, f.publisher.Messages(""))
}

func TestRecordResponse_UnknownAlert(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.RecordResponse(context.Background(), "missing", alert.Response{UserID: "u1", Type: alert.ResponseSafe})
	require.Error(t, err)
	assert.True(t, eris.Is(err, alert.ErrNotFound))
}

func TestRecordResponse_Invalid(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.RecordResponse(context.Background(), "any", alert.Response{UserID: "u1", Type: "panic"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, alert.ErrInvalidResponse))
}

func TestRecordResponse_ThreeFalseAlarmsCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _, err := f.manager.CreateAlert(ctx, fireCandidate())
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		got, err := f.manager.RecordResponse(ctx, a.ID, alert.Response{UserID: fmt.Sprintf("u%d", i), Type: alert.ResponseFalseAlarm})
		require.NoError(t, err)
		assert.Equal(t, alert.StatusActive, got.Status)
	}

	got, err := f.manager.RecordResponse(ctx, a.ID, alert.Response{UserID: "u3", Type: alert.ResponseFalseAlarm})
	require.NoError(t, err)
	assert.Equal(t, alert.StatusCancelled, got.Status)
	assert.Equal(t, alert.VerificationFalseAlarm, got.Source.VerificationStatus)
	assert.Len(t, f.publisher.Messages(alert.StatusTopic(a.ID)), 1)

	got, err = f.manager.RecordResponse(ctx, a.ID, alert.Response{UserID: "u4", Type: alert.ResponseFalseAlarm})
	require.NoError(t, err)
	assert.Equal(t, alert.StatusCancelled, got.Status)
	assert.Len(t, got.Responses, 4)
	assert.Len(t, f.publisher.Messages(alert.StatusTopic(a.ID)), 1)
	assert.Len(t, f.publisher.Messages(alert.ResponsesTopic(a.ID)), 4)

	stored, err := f.alerts.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, alert.StatusCancelled, stored.Status)
	assert.Len(t, stored.Responses, 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StatusTransitions.WithLabelValues("cancelled", ReasonFalseAlarmReports)))
}

func TestRecordResponse_OtherTypesDoNotCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _, err := f.manager.CreateAlert(ctx, fireCandidate())
	require.NoError(t, err)

	for _, rt := range []alert.ResponseType{alert.ResponseSafe, alert.ResponseNeedHelp, alert.ResponseAcknowledged, alert.ResponseFalseAlarm, alert.ResponseFalseAlarm} {
		got, err := f.manager.RecordResponse(ctx, a.ID, alert.Response{UserID: "u", Type: rt})
		require.NoError(t, err)
		assert.Equal(t, alert.StatusActive, got.Status)
	}
}

func TestRecordResponse_ConcurrentFalseAlarmsTransitionOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _, err := f.manager.CreateAlert(ctx, fireCandidate())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.RecordResponse(ctx, a.ID, alert.Response{UserID: fmt.Sprintf("u%d", i), Type: alert.ResponseFalseAlarm})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.alerts.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Responses, 10)
	assert.Equal(t, alert.StatusCancelled, stored.Status)
	assert.Len(t, f.publisher.Messages(alert.StatusTopic(a.ID)), 1)
}

func TestExpireAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := fireCandidate()
	expires := start.Add(2 * time.Hour)
	c.ExpiresAt = &expires
	a, _, err := f.manager.CreateAlert(ctx, c)
	require.NoError(t, err)

	got, changed, err := f.manager.ExpireAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, alert.StatusActive, got.Status)

	f.clock.Advance(2 * time.Hour)

	got, changed, err = f.manager.ExpireAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, alert.StatusExpired, got.Status)
	assert.Len(t, f.publisher.Messages(alert.StatusTopic(a.ID)), 1)

	_, changed, err = f.manager.ExpireAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestExpireAlert_NoExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _, err := f.manager.CreateAlert(ctx, fireCandidate())
	require.NoError(t, err)

	f.clock.Advance(365 * 24 * time.Hour)
	_, changed, err := f.manager.ExpireAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestExpiredAlertIgnoresFalseAlarms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := fireCandidate()
	expires := start.Add(time.Minute)
	c.ExpiresAt = &expires
	a, _, err := f.manager.CreateAlert(ctx, c)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, _, err = f.manager.ExpireAlert(ctx, a.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := f.manager.RecordResponse(ctx, a.ID, alert.Response{UserID: "u", Type: alert.ResponseFalseAlarm})
		require.NoError(t, err)
		assert.Equal(t, alert.StatusExpired, got.Status)
		assert.NotEqual(t, alert.VerificationFalseAlarm, got.Source.VerificationStatus)
	}
}

func TestCoordinateResponse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _, err := f.manager.CreateAlert(ctx, fireCandidate())
	require.NoError(t, err)
	_, err = f.manager.RecordResponse(ctx, a.ID, alert.Response{UserID: "u1", Type: alert.ResponseNeedHelp})
	require.NoError(t, err)

	advice, err := f.manager.CoordinateResponse(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Send the rural fire brigade to Penrith", advice)
	assert.Equal(t, 1, f.enricher.counts[alert.ResponseNeedHelp])

	_, err = f.manager.CoordinateResponse(ctx, "missing")
	assert.True(t, eris.Is(err, alert.ErrNotFound))
}

func TestListActiveNear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, _, err := f.manager.CreateAlert(ctx, fireCandidate())
	require.NoError(t, err)

	near, err := f.manager.ListActiveNear(ctx, geo.Coordinate{Latitude: -33.76, Longitude: 150.70}, 0)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, a.ID, near[0].ID)

	far, err := f.manager.ListActiveNear(ctx, geo.Coordinate{Latitude: -37.81, Longitude: 144.96}, 5)
	require.NoError(t, err)
	assert.Empty(t, far)

	far, err = f.manager.ListActiveNear(ctx, geo.Coordinate{Latitude: -37.81, Longitude: 144.96}, math.NaN())
	require.NoError(t, err)
	assert.Empty(t, far, "NaN radius is treated as zero")

	_, err = f.manager.ListActiveNear(ctx, geo.Coordinate{Latitude: 95}, 5)
	assert.True(t, eris.Is(err, geo.ErrInvalidCoordinate))
}
