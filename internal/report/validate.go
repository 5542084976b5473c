package report

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"report-renderer/internal/domain"
)

var (
	htmlTagPattern  = regexp.MustCompile(`(?i)<html[\s>]`)
	headTagPattern  = regexp.MustCompile(`(?i)<head[\s>]`)
	bodyTagPattern  = regexp.MustCompile(`(?i)<body[\s>]`)
	styleTagPattern = regexp.MustCompile(`(?i)<style[\s>]`)
)

// Validate scans html without rendering it. A missing <body> or content below
// minBytes makes the document invalid; other omissions are warnings.
func Validate(html string, minBytes int) domain.ValidationReport {
	report := domain.ValidationReport{
		Issues:   []string{},
		Warnings: []string{},
	}

	stats := domain.ValidationStats{
		HTMLBytes:       len(html),
		HasDoctype:      hasDoctype(html),
		HasHTML:         htmlTagPattern.MatchString(html),
		HasHead:         headTagPattern.MatchString(html),
		HasBody:         bodyTagPattern.MatchString(html),
		StyleBlocks:     len(styleTagPattern.FindAllStringIndex(html, -1)),
		PageBreakAlways: len(pageBreakAlwaysPattern.FindAllStringIndex(html, -1)),
	}
	stats.HasStyle = stats.StyleBlocks > 0

	trimmed := strings.TrimSpace(html)
	switch {
	case trimmed == "":
		report.Issues = append(report.Issues, "HTML content is required")
	case len(trimmed) < minBytes:
		report.Issues = append(report.Issues, fmt.Sprintf("HTML content is too short (minimum %d bytes)", minBytes))
	}

	if !stats.HasBody {
		report.Issues = append(report.Issues, "Missing <body> tag")
	}
	if !stats.HasDoctype {
		report.Warnings = append(report.Warnings, "Missing DOCTYPE declaration (one will be added)")
	}
	if !stats.HasHTML {
		report.Warnings = append(report.Warnings, "Missing <html> tag")
	}
	if !stats.HasHead {
		report.Warnings = append(report.Warnings, "Missing <head> tag")
	}
	if !stats.HasStyle {
		report.Warnings = append(report.Warnings, "No inline <style> block found; only the print stylesheet will apply")
	}
	if stats.PageBreakAlways > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf("%d 'page-break-after: always' declaration(s) will be removed", stats.PageBreakAlways))
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		stats.Elements = doc.Find("body *").Length()
		stats.Images = doc.Find("img").Length()
		stats.Links = doc.Find("a[href]").Length()
		stats.Tables = doc.Find("table").Length()
		stats.Headings = doc.Find("h1, h2, h3, h4, h5, h6").Length()
	}

	report.Stats = stats
	report.Valid = len(report.Issues) == 0
	return report
}
