package report

import (
	"regexp"
	"strings"
	"time"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// Filename derives the download name. A caller-supplied name is sanitized and
// forced to end in .pdf; otherwise a timestamped name is built from scanID.
func Filename(requested, scanID string, now time.Time) string {
	name := strings.TrimSpace(requested)
	if i := strings.LastIndexAny(name, `/\`); i != -1 {
		name = name[i+1:]
	}
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")

	if name == "" || strings.EqualFold(name, "pdf") {
		return defaultFilename(scanID, now)
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

func defaultFilename(scanID string, now time.Time) string {
	if scanID == "" {
		scanID = "unknown"
	}
	scanID = unsafeFilenameChars.ReplaceAllString(scanID, "_")
	return "seo_audit_" + scanID + "_" + now.Format("20060102_150405") + ".pdf"
}
