package domain

import (
	"strconv"
	"time"
)

// RenderRequest is the caller's payload for the render endpoints.
type RenderRequest struct {
	HTML        string         `json:"html" form:"html"`
	Filename    string         `json:"filename,omitempty" form:"filename"`
	Format      string         `json:"format,omitempty" form:"format"`
	Orientation string         `json:"orientation,omitempty" form:"orientation"`
	Margin      string         `json:"margin,omitempty" form:"margin"`
	Options     map[string]any `json:"pdf_options,omitempty" form:"-"`
	Metadata    map[string]any `json:"metadata,omitempty" form:"-"`

	// ScanID overrides the correlation identifier found in Metadata.
	ScanID string `json:"-" form:"scan_id"`
}

// CorrelationID returns the caller-supplied scan identifier, if any.
func (r RenderRequest) CorrelationID() string {
	if r.ScanID != "" {
		return r.ScanID
	}
	for _, key := range []string{"scanId", "scan_id", "scanID"} {
		if v, ok := r.Metadata[key]; ok {
			switch id := v.(type) {
			case string:
				if id != "" {
					return id
				}
			case float64:
				return strconv.FormatFloat(id, 'f', -1, 64)
			}
		}
	}
	return ""
}

// PageOptions is the resolved page geometry for one render.
type PageOptions struct {
	Format      string
	Orientation string
	// Margin is the CSS length applied on every side, e.g. "1cm".
	Margin string

	// Paper dimensions and margin in inches, orientation already applied.
	WidthIn  float64
	HeightIn float64
	MarginIn float64
}

// RenderOptions are the engine knobs callers may tune through pdf_options.
type RenderOptions struct {
	PrintBackground     bool
	Scale               float64
	PreferCSSPageSize   bool
	DisplayHeaderFooter bool
	Wait                time.Duration
}

// DefaultRenderOptions returns the options applied when the caller sends none.
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		PrintBackground:   true,
		Scale:             1.0,
		PreferCSSPageSize: true,
	}
}

// RenderResult is a rendered PDF plus the metadata returned to the caller.
type RenderResult struct {
	PDF            []byte
	SizeBytes      int
	Filename       string
	GeneratedAt    time.Time
	ScanID         string
	EstimatedPages int
	Cached         bool
}

// Base64Result is the JSON body of the preview endpoints.
type Base64Result struct {
	PDFBase64      string `json:"pdf_base64"`
	Filename       string `json:"filename,omitempty"`
	SizeBytes      int    `json:"size_bytes"`
	GeneratedAt    string `json:"generated_at"`
	ScanID         string `json:"scan_id,omitempty"`
	EstimatedPages int    `json:"estimated_pages"`
}

// ValidationReport is the outcome of a static HTML scan.
type ValidationReport struct {
	Valid    bool            `json:"valid"`
	Issues   []string        `json:"issues"`
	Warnings []string        `json:"warnings"`
	Stats    ValidationStats `json:"stats"`
}

// ValidationStats summarizes the scanned document.
type ValidationStats struct {
	HTMLBytes       int  `json:"html_bytes"`
	HasDoctype      bool `json:"has_doctype"`
	HasHTML         bool `json:"has_html"`
	HasHead         bool `json:"has_head"`
	HasBody         bool `json:"has_body"`
	HasStyle        bool `json:"has_style"`
	StyleBlocks     int  `json:"style_blocks"`
	Elements        int  `json:"elements"`
	Images          int  `json:"images"`
	Links           int  `json:"links"`
	Tables          int  `json:"tables"`
	Headings        int  `json:"headings"`
	PageBreakAlways int  `json:"page_break_always"`
}
