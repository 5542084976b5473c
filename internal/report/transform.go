package report

import (
	"regexp"
	"strings"
)

const doctype = "<!DOCTYPE html>"

var (
	pageBreakAlwaysPattern = regexp.MustCompile(`(?i)page-break-after\s*:\s*always\s*(!important)?\s*;?`)
	styleOpenPattern       = regexp.MustCompile(`(?i)<style\b[^>]*>`)
	htmlOpenPattern        = regexp.MustCompile(`(?i)<html\b[^>]*>`)
	doctypePattern         = regexp.MustCompile(`(?i)^\s*<!doctype\b[^>]*>`)
	styleBlockPattern      = regexp.MustCompile(`(?is)(<style\b[^>]*>)(.*?)(</style>)`)
	styleAttrPattern       = regexp.MustCompile(`(?i)(\sstyle\s*=\s*)("[^"]*"|'[^']*')`)
)

// Normalize prepares caller HTML for rendering: it ensures a doctype, removes
// forced page breaks and injects the print stylesheet.
func Normalize(html string) string {
	html = EnsureDoctype(html)
	html = StripForcedPageBreaks(html)
	return InjectStylesheet(html, printStylesheet)
}

// EnsureDoctype prepends a doctype unless the document already starts with one.
func EnsureDoctype(html string) string {
	if hasDoctype(html) {
		return html
	}
	return doctype + "\n" + html
}

func hasDoctype(html string) bool {
	return doctypePattern.MatchString(html)
}

// StripForcedPageBreaks removes "page-break-after: always" declarations from
// <style> blocks and style attributes. Text content is left alone.
func StripForcedPageBreaks(html string) string {
	html = styleBlockPattern.ReplaceAllStringFunc(html, func(block string) string {
		m := styleBlockPattern.FindStringSubmatch(block)
		return m[1] + pageBreakAlwaysPattern.ReplaceAllString(m[2], "") + m[3]
	})
	return styleAttrPattern.ReplaceAllStringFunc(html, func(attr string) string {
		m := styleAttrPattern.FindStringSubmatch(attr)
		return m[1] + pageBreakAlwaysPattern.ReplaceAllString(m[2], "")
	})
}

// InjectStylesheet places css inside the first existing <style> block. With no
// style block it adds one before </head>, creating the head when missing.
func InjectStylesheet(html, css string) string {
	if css == "" {
		return html
	}
	css = sanitizeCSS(css)

	if loc := styleOpenPattern.FindStringIndex(html); loc != nil {
		return html[:loc[1]] + "\n" + css + "\n" + html[loc[1]:]
	}

	block := "<style>\n" + css + "\n</style>"
	lower := strings.ToLower(html)

	if idx := strings.Index(lower, "</head>"); idx != -1 {
		return html[:idx] + block + html[idx:]
	}

	if loc := htmlOpenPattern.FindStringIndex(html); loc != nil {
		return html[:loc[1]] + "<head>" + block + "</head>" + html[loc[1]:]
	}

	return insertAfterDoctype(html, block)
}

func insertAfterDoctype(html, block string) string {
	if loc := doctypePattern.FindStringIndex(html); loc != nil {
		return html[:loc[1]] + "\n" + block + html[loc[1]:]
	}
	return block + html
}

// sanitizeCSS escapes sequences that could close the surrounding <style> block.
func sanitizeCSS(css string) string {
	return strings.ReplaceAll(css, "</", `<\/`)
}
