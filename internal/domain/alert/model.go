// internal/domain/alert/model.go

package alert

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"regionalert/internal/domain/geo"
)

var (
	// ErrNotFound is returned when an alert id is unknown.
	ErrNotFound = eris.New("alert: not found")

	// ErrInvalidAlert is returned when a candidate alert fails validation.
	ErrInvalidAlert = eris.New("alert: invalid alert")

	// ErrInvalidResponse is returned when a response fails validation.
	ErrInvalidResponse = eris.New("alert: invalid response")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = eris.New("alert: invalid status transition")
)

// Type represents the kind of emergency
type Type string

const (
	TypeMedical        Type = "medical"
	TypeFire           Type = "fire"
	TypeFlood          Type = "flood"
	TypeWeather        Type = "weather"
	TypeSecurity       Type = "security"
	TypeInfrastructure Type = "infrastructure"
	TypeCommunity      Type = "community"
)

// Severity represents how serious an emergency is
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Status represents the lifecycle state of an alert
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// SourceType identifies who raised an alert
type SourceType string

const (
	SourceOfficial    SourceType = "official"
	SourceCommunity   SourceType = "community"
	SourceAIGenerated SourceType = "ai_generated"
)

// VerificationStatus is the trust state of an alert
type VerificationStatus string

const (
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
	VerificationFalseAlarm VerificationStatus = "false_alarm"
)

// ResponseType is a recipient's reaction to an alert
type ResponseType string

const (
	ResponseAcknowledged ResponseType = "acknowledged"
	ResponseSafe         ResponseType = "safe"
	ResponseNeedHelp     ResponseType = "need_help"
	ResponseFalseAlarm   ResponseType = "false_alarm"
)

// Location is the area an alert applies to
type Location struct {
	Coordinates geo.Coordinate `json:"coordinates"`
	RadiusKm    float64        `json:"radiusKm"`
	Regions     []string       `json:"regions"`
	Description string         `json:"description,omitempty"`
}

// Source describes where an alert came from
type Source struct {
	Type               SourceType         `json:"type"`
	Organization       string             `json:"organization,omitempty"`
	ReportedBy         string             `json:"reportedBy,omitempty"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
}

// Metadata carries guidance attached to an alert
type Metadata struct {
	RecommendedActions []string `json:"recommendedActions"`
	ContactInfo        string   `json:"contactInfo,omitempty"`
}

// RiskAnalysis is the best-effort assessment returned by the scoring oracle
type RiskAnalysis struct {
	RiskScore           float64 `json:"riskScore"`
	Confidence          float64 `json:"confidence"`
	PredictedImpact     string  `json:"predictedImpact"`
	RecommendedResponse string  `json:"recommendedResponse"`
	IsLikelyValid       bool    `json:"isLikelyValid"`
}

// Response is a single recipient reaction. Responses are append-only.
type Response struct {
	UserID      string          `json:"userId"`
	Type        ResponseType    `json:"responseType"`
	Message     string          `json:"message,omitempty"`
	Coordinates *geo.Coordinate `json:"coordinates,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// EmergencyAlert is an alert record. Once cancelled or expired it never changes
// status again.
type EmergencyAlert struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Type         Type          `json:"type"`
	Severity     Severity      `json:"severity"`
	Location     Location      `json:"location"`
	Source       Source        `json:"source"`
	Priority     int           `json:"priority"`
	Status       Status        `json:"status"`
	ExpiresAt    *time.Time    `json:"expiresAt,omitempty"`
	Metadata     Metadata      `json:"metadata"`
	RiskAnalysis *RiskAnalysis `json:"riskAnalysis,omitempty"`
	Responses    []Response    `json:"responses"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// IsTerminal reports whether the alert reached cancelled or expired.
func (a EmergencyAlert) IsTerminal() bool {
	return a.Status == StatusCancelled || a.Status == StatusExpired
}

// CanTransition reports whether moving from one status to another is allowed.
// Only active alerts move, and only forward.
func CanTransition(from, to Status) bool {
	return from == StatusActive && (to == StatusCancelled || to == StatusExpired)
}

// ResponseCounts tallies responses by type.
func (a EmergencyAlert) ResponseCounts() map[ResponseType]int {
	counts := make(map[ResponseType]int, 4)
	for _, r := range a.Responses {
		counts[r.Type]++
	}
	return counts
}

// Valid reports whether t is a known alert type.
func (t Type) Valid() bool {
	_, ok := typeWeights[t]
	return ok
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	_, ok := severityWeights[s]
	return ok
}

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	switch s {
	case SourceOfficial, SourceCommunity, SourceAIGenerated:
		return true
	}
	return false
}

// Valid reports whether t is a known response type.
func (t ResponseType) Valid() bool {
	switch t {
	case ResponseAcknowledged, ResponseSafe, ResponseNeedHelp, ResponseFalseAlarm:
		return true
	}
	return false
}

// Candidate is an unenriched alert submitted by a reporter or an official feed
type Candidate struct {
	Title               string
	Description         string
	Type                Type
	Severity            Severity
	Coordinates         geo.Coordinate
	RadiusKm            float64
	LocationDescription string
	SourceType          SourceType
	Organization        string
	ReportedBy          string
	ContactInfo         string
	ExpiresAt           *time.Time
}

// Validate checks the candidate fields needed to build an alert.
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return eris.Wrap(ErrInvalidAlert, "title is required")
	}
	if !c.Severity.Valid() {
		return eris.Wrapf(ErrInvalidAlert, "unknown severity %q", c.Severity)
	}
	if c.Type == "" {
		return eris.Wrap(ErrInvalidAlert, "type is required")
	}
	if !c.SourceType.Valid() {
		return eris.Wrapf(ErrInvalidAlert, "unknown source type %q", c.SourceType)
	}
	if c.RadiusKm <= 0 {
		return eris.Wrapf(ErrInvalidAlert, "radius %f must be positive", c.RadiusKm)
	}
	if err := c.Coordinates.Validate(); err != nil {
		return eris.Wrap(ErrInvalidAlert, err.Error())
	}
	return nil
}

// Validate checks a response before it is appended.
func (r Response) Validate() error {
	if r.UserID == "" {
		return eris.Wrap(ErrInvalidResponse, "user id is required")
	}
	if !r.Type.Valid() {
		return eris.Wrapf(ErrInvalidResponse, "unknown response type %q", r.Type)
	}
	if r.Coordinates != nil {
		if err := r.Coordinates.Validate(); err != nil {
			return eris.Wrap(ErrInvalidResponse, err.Error())
		}
	}
	return nil
}
