package report

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilename(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name      string
		requested string
		scanID    string
		want      string
	}{
		{"adds extension", "report", "", "report.pdf"},
		{"keeps extension", "report.pdf", "", "report.pdf"},
		{"keeps upper-case extension", "REPORT.PDF", "", "REPORT.PDF"},
		{"replaces unsafe characters", "my report (final)", "", "my_report_final_.pdf"},
		{"drops directories", "../../etc/passwd", "", "passwd.pdf"},
		{"drops windows directories", `C:\tmp\audit`, "", "audit.pdf"},
		{"blank uses default", "   ", "scan-1", "seo_audit_scan-1_20260314_092653.pdf"},
		{"default without scan id", "", "", "seo_audit_unknown_20260314_092653.pdf"},
		{"extension only uses default", ".pdf", "", "seo_audit_unknown_20260314_092653.pdf"},
		{"scan id is sanitized", "", "a/b c", "seo_audit_a_b_c_20260314_092653.pdf"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Filename(tc.requested, tc.scanID, now))
		})
	}
}

func TestFilename_DefaultContainsTimestamp(t *testing.T) {
	got := Filename("", "", time.Now())
	assert.Regexp(t, regexp.MustCompile(`_\d{8}_\d{6}\.pdf$`), got)
}
