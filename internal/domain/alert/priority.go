// internal/domain/alert/priority.go

package alert

const (
	// MaxPriority is the upper bound of the priority scale.
	MaxPriority = 10

	// defaultTypeWeight applies to unrecognised alert types.
	defaultTypeWeight = 1

	// AutoVerifyConfidence is the oracle confidence above which a
	// non-official alert is verified at creation.
	AutoVerifyConfidence = 0.8

	// FalseAlarmThreshold is the number of false_alarm responses that cancels
	// an alert.
	FalseAlarmThreshold = 3
)

var severityWeights = map[Severity]int{
	SeverityLow:      2,
	SeverityMedium:   5,
	SeverityHigh:     7,
	SeverityCritical: 10,
}

var typeWeights = map[Type]int{
	TypeMedical:        2,
	TypeFire:           3,
	TypeFlood:          2,
	TypeWeather:        1,
	TypeSecurity:       2,
	TypeInfrastructure: 1,
	TypeCommunity:      1,
}

// Priority scores an alert from its severity and type, clamped to [0, 10].
func Priority(severity Severity, t Type) int {
	tw, ok := typeWeights[t]
	if !ok {
		tw = defaultTypeWeight
	}

	p := severityWeights[severity] + tw
	if p > MaxPriority {
		return MaxPriority
	}
	if p < 0 {
		return 0
	}
	return p
}

var defaultActions = map[Type][]string{
	TypeMedical: {
		"Call emergency services on 000",
		"Provide first aid if trained",
		"Keep access clear for paramedics",
	},
	TypeFire: {
		"Evacuate if instructed",
		"Call emergency services",
		"Stay low if smoke present",
	},
	TypeFlood: {
		"Move to higher ground",
		"Never drive through floodwater",
		"Monitor local emergency broadcasts",
	},
	TypeWeather: {
		"Secure loose outdoor items",
		"Stay indoors away from windows",
		"Monitor weather warnings",
	},
	TypeSecurity: {
		"Stay indoors and lock doors",
		"Follow police instructions",
		"Report suspicious activity to police",
	},
	TypeInfrastructure: {
		"Avoid the affected area",
		"Report hazards to the relevant authority",
		"Check on vulnerable neighbours",
	},
	TypeCommunity: {
		"Stay informed through official channels",
		"Check on neighbours",
	},
}

var genericActions = []string{
	"Stay alert and monitor official updates",
	"Call emergency services if in danger",
}

// DefaultActions returns the recommended actions for an alert type. Unknown
// types get a generic list.
func DefaultActions(t Type) []string {
	actions, ok := defaultActions[t]
	if !ok {
		actions = genericActions
	}
	return append([]string(nil), actions...)
}

// InitialVerification decides the verification status of a new alert.
// Official sources are always verified; other sources are verified only when
// the risk analysis is confident.
func InitialVerification(source SourceType, analysis *RiskAnalysis) VerificationStatus {
	if source == SourceOfficial {
		return VerificationVerified
	}
	if analysis != nil && analysis.Confidence > AutoVerifyConfidence {
		return VerificationVerified
	}
	return VerificationPending
}
