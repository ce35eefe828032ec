// Package alert holds the alert and severity types shared by the ingestion
// endpoint, the dispatch engine and the monitor stream client.
package alert

import (
	"encoding/json"
	"fmt"
)

// Severity is the priority tier of an alert.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// AllSeverities is the fan-out set used when a subscription does not name a
// severity.
var AllSeverities = []Severity{SeverityHigh, SeverityMedium, SeverityLow}

// ParseSeverity maps a string onto a Severity. Unknown values map to
// SeverityLow, matching the historical command grammar.
func ParseSeverity(s string) Severity {
	switch s {
	case "high", "High", "HIGH":
		return SeverityHigh
	case "medium", "Medium", "MEDIUM":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Valid reports whether s is one of the three known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

func (s Severity) String() string { return string(s) }

// Alert is one health alert raised by the monitor about a member's service.
type Alert struct {
	Code          uint32            `json:"code"`
	Severity      Severity          `json:"severity"`
	Message       string            `json:"message"`
	MemberID      string            `json:"memberId"`
	ServiceID     string            `json:"serviceId"`
	HealthCheckID uint32            `json:"healthCheckId,omitempty"`
	HealthChecks  []json.RawMessage `json:"healthChecks"`
}

// DedupKey identifies "the same alert" for mute-window purposes.
func (a Alert) DedupKey() string {
	return fmt.Sprintf("%d:%s", a.Code, a.ServiceID)
}

// UnmarshalJSON accepts severity values outside the known set by folding
// them to low rather than failing the whole payload.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ParseSeverity(raw)
	return nil
}
