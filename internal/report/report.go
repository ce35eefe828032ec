// Package report renders alerts into the two-form chat messages the
// transport delivers: a plain-text body and an HTML-formatted variant.
package report

import (
	"fmt"
	"strings"

	"github.com/relayops/relaybot/internal/alert"
)

// Report is an ordered list of lines rendered either plain or formatted.
type Report struct {
	body []string
}

// New returns an empty report.
func New() *Report {
	return &Report{}
}

// AddLine appends one raw line to the report body.
func (r *Report) AddLine(line string) {
	r.body = append(r.body, line)
}

// AddBreak appends an empty line.
func (r *Report) AddBreak() {
	r.AddLine("")
}

// Message renders the plain-text form.
func (r *Report) Message() string {
	return strings.Join(r.body, "\n")
}

// FormattedMessage renders the HTML form, joining lines with <br>.
func (r *Report) FormattedMessage() string {
	return strings.Join(r.body, "<br>")
}

// FromAlert builds the delivery report for one alert: the alert code with a
// severity intensity marker, the member/service line, the message and a
// closing rule.
func FromAlert(a alert.Alert) *Report {
	r := New()
	r.AddLine(fmt.Sprintf("🚨 <b>Alert code: %d</b> %s", a.Code, severityMarker(a.Severity)))
	r.AddLine(fmt.Sprintf("‣ 🦸 %s (%s)", a.MemberID, a.ServiceID))
	r.AddLine(fmt.Sprintf("‣ 💬 %s", a.Message))
	r.AddLine("——")
	r.AddBreak()
	return r
}

// severityMarker repeats the intensity glyph three, two or one time for
// high, medium and low; anything else renders nothing.
func severityMarker(s alert.Severity) string {
	switch s {
	case alert.SeverityHigh:
		return "🔥🔥🔥"
	case alert.SeverityMedium:
		return "🔥🔥"
	case alert.SeverityLow:
		return "🔥"
	default:
		return ""
	}
}
