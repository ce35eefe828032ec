package report

import (
	"strings"
	"testing"

	"github.com/relayops/relaybot/internal/alert"
)

func TestFromAlert(t *testing.T) {
	a := alert.Alert{
		Code:      1002,
		Severity:  alert.SeverityHigh,
		Message:   "node unreachable",
		MemberID:  "turboflakes",
		ServiceID: "rpc-1",
	}
	r := FromAlert(a)

	want := strings.Join([]string{
		"🚨 <b>Alert code: 1002</b> 🔥🔥🔥",
		"‣ 🦸 turboflakes (rpc-1)",
		"‣ 💬 node unreachable",
		"——",
		"",
	}, "\n")
	if got := r.Message(); got != want {
		t.Errorf("Message() =\n%q\nwant\n%q", got, want)
	}

	formatted := r.FormattedMessage()
	if !strings.Contains(formatted, "<br>") || strings.Contains(formatted, "\n") {
		t.Errorf("FormattedMessage should join with <br>, got %q", formatted)
	}
}

func TestSeverityMarker(t *testing.T) {
	tests := []struct {
		severity alert.Severity
		want     string
	}{
		{alert.SeverityHigh, "🔥🔥🔥"},
		{alert.SeverityMedium, "🔥🔥"},
		{alert.SeverityLow, "🔥"},
		{alert.Severity("weird"), ""},
	}
	for _, tt := range tests {
		if got := severityMarker(tt.severity); got != tt.want {
			t.Errorf("severityMarker(%s) = %q, want %q", tt.severity, got, tt.want)
		}
	}
}

func TestReportBuilder(t *testing.T) {
	r := New()
	r.AddLine("one")
	r.AddBreak()
	r.AddLine("two")

	if got := r.Message(); got != "one\n\ntwo" {
		t.Errorf("Message() = %q", got)
	}
	if got := r.FormattedMessage(); got != "one<br><br>two" {
		t.Errorf("FormattedMessage() = %q", got)
	}
}
