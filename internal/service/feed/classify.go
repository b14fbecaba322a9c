// internal/service/feed/classify.go

package feed

import (
	"strings"
	"unicode/utf8"

	"regionalert/internal/domain/alert"
)

const maxTitleLength = 120

// warningLevels maps Australian Warning System levels to alert severity,
// most severe first.
var warningLevels = []struct {
	phrase   string
	severity alert.Severity
}{
	{"emergency warning", alert.SeverityCritical},
	{"watch and act", alert.SeverityHigh},
	{"advice", alert.SeverityMedium},
}

// typeKeywords is checked in order; the first type with a matching keyword
// wins.
var typeKeywords = []struct {
	alertType alert.Type
	keywords  []string
}{
	{alert.TypeFire, []string{"bushfire", "grassfire", "fire", "blaze", "burn"}},
	{alert.TypeFlood, []string{"flood", "inundation", "river level", "evacuation centre"}},
	{alert.TypeWeather, []string{"storm", "cyclone", "heatwave", "hail", "damaging wind", "severe weather"}},
	{alert.TypeMedical, []string{"ambulance", "medical", "outbreak", "health alert"}},
	{alert.TypeSecurity, []string{"police", "lockdown", "threat", "armed"}},
	{alert.TypeInfrastructure, []string{"power outage", "outage", "road closed", "road closure", "bridge", "water supply"}},
}

// Classification is what a feed entry's wording says about the emergency
type Classification struct {
	Type     alert.Type
	Severity alert.Severity
}

// Relevant reports whether the entry looks like an emergency notice at all.
func (c Classification) Relevant() bool {
	return c.Type != alert.TypeCommunity || c.Severity != alert.SeverityLow
}

// Classify infers type and severity from the wording of an entry.
func Classify(text string) Classification {
	lower := strings.ToLower(text)

	c := Classification{Type: alert.TypeCommunity, Severity: alert.SeverityLow}
	for _, level := range warningLevels {
		if strings.Contains(lower, level.phrase) {
			c.Severity = level.severity
			break
		}
	}
	for _, tk := range typeKeywords {
		if containsAny(lower, tk.keywords) {
			c.Type = tk.alertType
			break
		}
	}
	return c
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// titleFrom uses the first line of text, shortened to maxTitleLength runes.
func titleFrom(text string) string {
	title := strings.TrimSpace(text)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		runes := []rune(title)
		title = strings.TrimSpace(string(runes[:maxTitleLength-1])) + "…"
	}
	return title
}
