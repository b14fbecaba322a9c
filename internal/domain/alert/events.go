// internal/domain/alert/events.go

package alert

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
)

const (
	// BroadcastTopic carries every new alert to all connected clients.
	BroadcastTopic = "alerts.broadcast"
)

// ErrInvalidTopicID is returned for ids that cannot be embedded in a subject.
var ErrInvalidTopicID = eris.New("alert: invalid topic id")

// ValidateTopicID rejects ids that are empty or contain subject separators,
// wildcards, whitespace or control characters.
func ValidateTopicID(id string) error {
	if id == "" {
		return eris.Wrap(ErrInvalidTopicID, "empty id")
	}
	if strings.ContainsAny(id, ".*>") || strings.IndexFunc(id, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return eris.Wrapf(ErrInvalidTopicID, "%q", id)
	}
	return nil
}

// UserTopic is the per-recipient subject for targeted alerts.
func UserTopic(userID string) string {
	return fmt.Sprintf("alerts.user.%s", userID)
}

// StatusTopic carries status changes of one alert.
func StatusTopic(alertID string) string {
	return fmt.Sprintf("alerts.%s.status", alertID)
}

// ResponsesTopic carries response count updates of one alert.
func ResponsesTopic(alertID string) string {
	return fmt.Sprintf("alerts.%s.responses", alertID)
}

// Event types
const (
	EventAlertCreated   = "alert_created"
	EventTargetedAlert  = "targeted_alert"
	EventStatusChanged  = "status_changed"
	EventResponseCounts = "response_counts"
)

// CreatedEvent is published on the global topic
type CreatedEvent struct {
	Type  string         `json:"type"`
	Alert EmergencyAlert `json:"alert"`
	Time  time.Time      `json:"time"`
}

// TargetedEvent is published on a recipient's topic
type TargetedEvent struct {
	Type       string         `json:"type"`
	Alert      EmergencyAlert `json:"alert"`
	DistanceKm float64        `json:"distanceKm"`
	Time       time.Time      `json:"time"`
}

// StatusChangedEvent is published when an alert changes status
type StatusChangedEvent struct {
	Type               string             `json:"type"`
	AlertID            string             `json:"alertId"`
	PreviousStatus     Status             `json:"previousStatus"`
	Status             Status             `json:"status"`
	VerificationStatus VerificationStatus `json:"verificationStatus"`
	Reason             string             `json:"reason"`
	Time               time.Time          `json:"time"`
}

// ResponseCountsEvent is published after every recorded response
type ResponseCountsEvent struct {
	Type    string               `json:"type"`
	AlertID string               `json:"alertId"`
	Total   int                  `json:"total"`
	Counts  map[ResponseType]int `json:"counts"`
	Time    time.Time            `json:"time"`
}
