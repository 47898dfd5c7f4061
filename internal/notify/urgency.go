// Package notify delivers prediction reports and one-time codes over email
// and SMS.
package notify

// Urgency classifies how soon a patient should seek a consultation based on
// prediction confidence.
type Urgency string

const (
	UrgencyHigh   Urgency = "High"
	UrgencyMedium Urgency = "Medium"
	UrgencyLow    Urgency = "Low"
)

// Confidence thresholds separating the urgency tiers.
const (
	highThreshold   = 0.8
	mediumThreshold = 0.5
)

// UrgencyFor maps a prediction confidence onto an urgency tier.
func UrgencyFor(confidence float64) Urgency {
	switch {
	case confidence >= highThreshold:
		return UrgencyHigh
	case confidence >= mediumThreshold:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// Advice returns the consultation window recommended for the tier.
func (u Urgency) Advice() string {
	switch u {
	case UrgencyHigh:
		return "Please consult a dermatologist within 3-7 days."
	case UrgencyMedium:
		return "Please consult a dermatologist within 2-4 weeks."
	default:
		return "Please consult a dermatologist within 8-12 weeks."
	}
}
