package domain

import "fmt"

// ExitAction is the decision of an exit heuristic.
type ExitAction string

const (
	ActionHold        ExitAction = "hold"
	ActionPartialExit ExitAction = "partial_exit"
	ActionFullExit    ExitAction = "full_exit"
)

// String returns the string representation of ExitAction.
func (a ExitAction) String() string {
	return string(a)
}

// Urgency ranks simultaneous exit signals.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyMedium
	UrgencyHigh
	UrgencyCritical
)

// String returns the lower-case urgency name.
func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyMedium:
		return "medium"
	case UrgencyHigh:
		return "high"
	case UrgencyCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// MarshalText encodes the urgency by name.
func (u Urgency) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText decodes an urgency name.
func (u *Urgency) UnmarshalText(text []byte) error {
	parsed, err := ParseUrgency(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// ParseUrgency parses a lower-case urgency name.
func ParseUrgency(s string) (Urgency, error) {
	switch s {
	case "low":
		return UrgencyLow, nil
	case "medium":
		return UrgencyMedium, nil
	case "high":
		return UrgencyHigh, nil
	case "critical":
		return UrgencyCritical, nil
	default:
		return UrgencyLow, fmt.Errorf("unknown urgency %q", s)
	}
}

// ExitSignal is the output of one exit heuristic for one position in one cycle.
type ExitSignal struct {
	Action     ExitAction `json:"action"`
	Percentage float64    `json:"percentage"` // share of the position to liquidate, 0-100
	Urgency    Urgency    `json:"urgency"`
	Reason     string     `json:"reason"`
	Rule       string     `json:"rule,omitempty"` // heuristic rule that fired, used for cooldowns
}

// Hold returns a hold signal. Hold always carries a zero percentage.
func Hold(reason string) ExitSignal {
	return ExitSignal{Action: ActionHold, Percentage: 0, Urgency: UrgencyLow, Reason: reason}
}

// IsHold reports whether the signal requests no action.
func (s ExitSignal) IsHold() bool {
	return s.Action == ActionHold
}
