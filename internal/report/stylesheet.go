package report

import (
	_ "embed"
	"fmt"
	"strings"

	"report-renderer/internal/domain"
)

//go:embed assets/print.css
var printStylesheet string

// PrintStylesheet returns the fixed stylesheet injected into every report.
func PrintStylesheet() string {
	return printStylesheet
}

// PageStylesheet builds the page-level stylesheet carrying size, orientation
// and margin for the renderer.
func PageStylesheet(p domain.PageOptions) string {
	size := p.Format
	switch size {
	case "LETTER", "LEGAL":
		size = strings.ToLower(size)
	}
	return fmt.Sprintf("@page { size: %s %s; margin: %s; }", size, p.Orientation, p.Margin)
}
