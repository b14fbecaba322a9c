// internal/service/risk/enricher.go

package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"regionalert/internal/domain/alert"
	"regionalert/internal/observability"
)

// Oracle is an external text-completion service used for risk scoring.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// FallbackAnalysis is returned whenever the oracle cannot produce a usable
// assessment. Alert creation proceeds with it.
var FallbackAnalysis = alert.RiskAnalysis{
	RiskScore:           0.5,
	Confidence:          0.3,
	PredictedImpact:     "Unable to analyze",
	RecommendedResponse: "Follow standard emergency procedures",
	IsLikelyValid:       true,
}

// FallbackCoordination is returned when response coordination advice cannot
// be produced.
const FallbackCoordination = "Continue monitoring responses and coordinate with local emergency services"

const (
	opEnrich     = "enrich"
	opCoordinate = "coordinate"
)

// EnricherConfig contains configuration for the enricher
type EnricherConfig struct {
	Timeout time.Duration
}

// Enricher wraps the scoring oracle with a timeout and fixed fallbacks. Its
// methods never return errors.
type Enricher struct {
	oracle  Oracle
	config  EnricherConfig
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewEnricher creates a new enricher. A nil oracle always yields fallbacks.
func NewEnricher(oracle Oracle, config EnricherConfig, metrics *observability.Metrics, logger *zap.Logger) *Enricher {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		oracle:  oracle,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// Enrich scores a candidate alert. On timeout, oracle error, or an unusable
// reply it returns FallbackAnalysis.
func (e *Enricher) Enrich(ctx context.Context, c alert.Candidate) alert.RiskAnalysis {
	reply, err := e.complete(ctx, opEnrich, buildRiskPrompt(c))
	if err != nil {
		e.fallback(opEnrich, err, zap.String("title", c.Title))
		return FallbackAnalysis
	}

	analysis, err := parseRiskAnalysis(reply)
	if err != nil {
		e.fallback(opEnrich, err, zap.String("title", c.Title))
		return FallbackAnalysis
	}

	e.metrics.OracleCalls.WithLabelValues(opEnrich, "success").Inc()
	return analysis
}

// CoordinateResponse asks the oracle for coordination advice based on the
// aggregated responses to an alert. On any failure it returns
// FallbackCoordination.
func (e *Enricher) CoordinateResponse(ctx context.Context, a alert.EmergencyAlert, counts map[alert.ResponseType]int) string {
	reply, err := e.complete(ctx, opCoordinate, buildCoordinationPrompt(a, counts))
	if err != nil {
		e.fallback(opCoordinate, err, zap.String("alert_id", a.ID))
		return FallbackCoordination
	}

	advice := strings.TrimSpace(reply)
	if advice == "" {
		e.fallback(opCoordinate, eris.New("risk: empty coordination reply"), zap.String("alert_id", a.ID))
		return FallbackCoordination
	}

	e.metrics.OracleCalls.WithLabelValues(opCoordinate, "success").Inc()
	return advice
}

// complete calls the oracle under the configured timeout. A panicking oracle
// is reported as an error.
func (e *Enricher) complete(ctx context.Context, op, prompt string) (reply string, err error) {
	if e.oracle == nil {
		return "", eris.New("risk: oracle not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		e.metrics.OracleDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: eris.Errorf("risk: oracle panic: %v", r)}
			}
		}()
		text, err := e.oracle.Complete(ctx, prompt)
		done <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", eris.Wrap(ctx.Err(), "risk: oracle call")
	case r := <-done:
		if r.err != nil {
			return "", eris.Wrap(r.err, "risk: oracle call")
		}
		return r.text, nil
	}
}

func (e *Enricher) fallback(op string, err error, fields ...zap.Field) {
	e.metrics.OracleCalls.WithLabelValues(op, "fallback").Inc()
	e.logger.Warn("oracle unavailable, using fallback",
		append(fields, zap.String("operation", op), zap.Error(err))...,
	)
}

func buildRiskPrompt(c alert.Candidate) string {
	var b strings.Builder
	b.WriteString("You assess emergency reports for a regional Australian community alert service.\n")
	b.WriteString("Analyse the report below and reply with only a JSON object with the keys ")
	b.WriteString(`"riskScore" (0-1), "confidence" (0-1), "predictedImpact" (string), `)
	b.WriteString(`"recommendedResponse" (string) and "isLikelyValid" (boolean).` + "\n\n")
	fmt.Fprintf(&b, "Title: %s\n", c.Title)
	fmt.Fprintf(&b, "Description: %s\n", c.Description)
	fmt.Fprintf(&b, "Type: %s\n", c.Type)
	fmt.Fprintf(&b, "Severity: %s\n", c.Severity)
	fmt.Fprintf(&b, "Location: %.4f, %.4f (radius %.1f km)", c.Coordinates.Latitude, c.Coordinates.Longitude, c.RadiusKm)
	if c.LocationDescription != "" {
		fmt.Fprintf(&b, " %s", c.LocationDescription)
	}
	b.WriteString("\n")
	return b.String()
}

func buildCoordinationPrompt(a alert.EmergencyAlert, counts map[alert.ResponseType]int) string {
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, string(t))
	}
	sort.Strings(types)

	var b strings.Builder
	b.WriteString("You coordinate community responses to an emergency alert in regional Australia.\n")
	b.WriteString("Given the alert and the tally of recipient responses, give short, practical coordination recommendations.\n\n")
	fmt.Fprintf(&b, "Alert: %s (%s, %s)\n", a.Title, a.Type, a.Severity)
	fmt.Fprintf(&b, "Status: %s, verification: %s\n", a.Status, a.Source.VerificationStatus)
	if len(a.Location.Regions) > 0 {
		fmt.Fprintf(&b, "Regions: %s\n", strings.Join(a.Location.Regions, ", "))
	}
	b.WriteString("Responses:\n")
	for _, t := range types {
		fmt.Fprintf(&b, "- %s: %d\n", t, counts[alert.ResponseType(t)])
	}
	return b.String()
}

// oracleReply mirrors the JSON the oracle is asked to produce. Pointers
// distinguish missing fields from zero values.
type oracleReply struct {
	RiskScore           *float64 `json:"riskScore"`
	Confidence          *float64 `json:"confidence"`
	PredictedImpact     string   `json:"predictedImpact"`
	RecommendedResponse string   `json:"recommendedResponse"`
	IsLikelyValid       *bool    `json:"isLikelyValid"`
}

// parseRiskAnalysis extracts the outermost JSON object from reply, which may be
// wrapped in prose or code fences.
func parseRiskAnalysis(reply string) (alert.RiskAnalysis, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return alert.RiskAnalysis{}, eris.New("risk: no JSON object in oracle reply")
	}

	var r oracleReply
	if err := json.Unmarshal([]byte(reply[start:end+1]), &r); err != nil {
		return alert.RiskAnalysis{}, eris.Wrap(err, "risk: decode oracle reply")
	}
	if r.RiskScore == nil || r.Confidence == nil {
		return alert.RiskAnalysis{}, eris.New("risk: oracle reply missing scores")
	}

	analysis := alert.RiskAnalysis{
		RiskScore:           clamp01(*r.RiskScore),
		Confidence:          clamp01(*r.Confidence),
		PredictedImpact:     r.PredictedImpact,
		RecommendedResponse: r.RecommendedResponse,
		IsLikelyValid:       true,
	}
	if r.IsLikelyValid != nil {
		analysis.IsLikelyValid = *r.IsLikelyValid
	}
	if analysis.PredictedImpact == "" {
		analysis.PredictedImpact = FallbackAnalysis.PredictedImpact
	}
	if analysis.RecommendedResponse == "" {
		analysis.RecommendedResponse = FallbackAnalysis.RecommendedResponse
	}
	return analysis, nil
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
