package risk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"regionalert/internal/domain/alert"
	"regionalert/internal/domain/geo"
	"regionalert/internal/observability"
)

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type funcOracle func(ctx context.Context, prompt string) (string, error)

func (f funcOracle) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func candidate() alert.Candidate {
	return alert.Candidate{
		Title:               "Bushfire near Katoomba",
		Description:         "Smoke visible from the highway",
		Type:                alert.TypeFire,
		Severity:            alert.SeverityHigh,
		Coordinates:         geo.Coordinate{Latitude: -33.7125, Longitude: 150.3119},
		RadiusKm:            15,
		LocationDescription: "Great Western Highway",
		SourceType:          alert.SourceCommunity,
	}
}

func newEnricher(o Oracle, timeout time.Duration) (*Enricher, *observability.Metrics, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	metrics := observability.NewMetricsForTesting()
	return NewEnricher(o, EnricherConfig{Timeout: timeout}, metrics, zap.New(core)), metrics, logs
}

func TestEnrich_OracleErrorReturnsFallback(t *testing.T) {
	o := new(mockOracle)
	o.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("service unavailable"))

	e, metrics, logs := newEnricher(o, time.Second)
	got := e.Enrich(context.Background(), candidate())

	assert.Equal(t, FallbackAnalysis, got)
	assert.Equal(t, 0.5, got.RiskScore)
	assert.Equal(t, 0.3, got.Confidence)
	assert.Equal(t, "Unable to analyze", got.PredictedImpact)
	assert.Equal(t, "Follow standard emergency procedures", got.RecommendedResponse)
	assert.True(t, got.IsLikelyValid)
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OracleCalls.WithLabelValues("enrich", "fallback")))
	o.AssertExpectations(t)
}

func TestEnrich_PanickingOracleReturnsFallback(t *testing.T) {
	e, _, _ := newEnricher(funcOracle(func(context.Context, string) (string, error) {
		panic("boom")
	}), time.Second)

	assert.NotPanics(t, func() {
		assert.Equal(t, FallbackAnalysis, e.Enrich(context.Background(), candidate()))
	})
}

func TestEnrich_TimeoutReturnsFallback(t *testing.T) {
	e, _, _ := newEnricher(funcOracle(func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return `{"riskScore":0.9,"confidence":0.9}`, nil
	}), 20*time.Millisecond)

	start := time.Now()
	got := e.Enrich(context.Background(), candidate())

	assert.Equal(t, FallbackAnalysis, got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEnrich_HangingOracleIsBounded(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	e, _, _ := newEnricher(funcOracle(func(context.Context, string) (string, error) {
		<-block
		return "", nil
	}), 20*time.Millisecond)

	assert.Equal(t, FallbackAnalysis, e.Enrich(context.Background(), candidate()))
}

func TestEnrich_NilOracleReturnsFallback(t *testing.T) {
	e, _, _ := newEnricher(nil, time.Second)
	assert.Equal(t, FallbackAnalysis, e.Enrich(context.Background(), candidate()))
}

func TestEnrich_MalformedReplies(t *testing.T) {
	replies := map[string]string{
		"prose":          "I think this is quite dangerous.",
		"broken json":    `{"riskScore": 0.7, "confidence": }`,
		"missing scores": `{"predictedImpact": "Severe"}`,
		"empty":          "",
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			o := new(mockOracle)
			o.On("Complete", mock.Anything, mock.Anything).Return(reply, nil)

			e, _, _ := newEnricher(o, time.Second)
			assert.Equal(t, FallbackAnalysis, e.Enrich(context.Background(), candidate()))
		})
	}
}

func TestEnrich_ParsesReply(t *testing.T) {
	reply := "Here is my assessment:\n```json\n" +
		`{"riskScore": 0.85, "confidence": 0.9, "predictedImpact": "Property loss likely", "recommendedResponse": "Prepare to evacuate", "isLikelyValid": true}` +
		"\n```"
	o := new(mockOracle)
	o.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return assert.Contains(t, p, "Bushfire near Katoomba") &&
			assert.Contains(t, p, "Type: fire") &&
			assert.Contains(t, p, "Severity: high") &&
			assert.Contains(t, p, "-33.7125, 150.3119")
	})).Return(reply, nil)

	e, metrics, logs := newEnricher(o, time.Second)
	got := e.Enrich(context.Background(), candidate())

	assert.Equal(t, alert.RiskAnalysis{
		RiskScore:           0.85,
		Confidence:          0.9,
		PredictedImpact:     "Property loss likely",
		RecommendedResponse: "Prepare to evacuate",
		IsLikelyValid:       true,
	}, got)
	assert.Zero(t, logs.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OracleCalls.WithLabelValues("enrich", "success")))
	o.AssertExpectations(t)
}

func TestEnrich_ClampsScores(t *testing.T) {
	o := new(mockOracle)
	o.On("Complete", mock.Anything, mock.Anything).Return(`{"riskScore": 1.7, "confidence": -0.2, "isLikelyValid": false}`, nil)

	e, _, _ := newEnricher(o, time.Second)
	got := e.Enrich(context.Background(), candidate())

	assert.Equal(t, 1.0, got.RiskScore)
	assert.Equal(t, 0.0, got.Confidence)
	assert.False(t, got.IsLikelyValid)
	assert.Equal(t, "Unable to analyze", got.PredictedImpact)
}

func TestCoordinateResponse(t *testing.T) {
	a := alert.EmergencyAlert{
		ID:       "a1",
		Title:    "Flash flooding",
		Type:     alert.TypeFlood,
		Severity: alert.SeverityHigh,
		Status:   alert.StatusActive,
		Location: alert.Location{Regions: []string{"Northern Rivers", "Lismore"}},
	}
	counts := map[alert.ResponseType]int{alert.ResponseNeedHelp: 4, alert.ResponseSafe: 10}

	o := new(mockOracle)
	o.On("Complete", mock.Anything, mock.MatchedBy(func(p string) bool {
		return assert.Contains(t, p, "need_help: 4") && assert.Contains(t, p, "safe: 10") &&
			assert.Contains(t, p, "Northern Rivers, Lismore")
	})).Return("  Dispatch SES teams to the four households needing help.  ", nil)

	e, _, _ := newEnricher(o, time.Second)
	assert.Equal(t, "Dispatch SES teams to the four households needing help.", e.CoordinateResponse(context.Background(), a, counts))
	o.AssertExpectations(t)
}

func TestCoordinateResponse_Fallbacks(t *testing.T) {
	failing := new(mockOracle)
	failing.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("rate limited"))
	blank := new(mockOracle)
	blank.On("Complete", mock.Anything, mock.Anything).Return("   ", nil)

	for name, o := range map[string]Oracle{"error": failing, "blank": blank, "nil": nil} {
		t.Run(name, func(t *testing.T) {
			e, metrics, _ := newEnricher(o, time.Second)
			got := e.CoordinateResponse(context.Background(), alert.EmergencyAlert{ID: "a1"}, nil)
			require.Equal(t, FallbackCoordination, got)
			assert.Equal(t, 1.0, testutil.ToFloat64(metrics.OracleCalls.WithLabelValues("coordinate", "fallback")))
		})
	}
}
