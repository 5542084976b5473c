package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"report-renderer/internal/config"
	"report-renderer/internal/domain"
	"report-renderer/internal/infra/logging"
)

const (
	minScale    = 0.1
	maxScale    = 2.0
	maxWaitMS   = 10000
	maxMarginIn = 3.0
)

// ResolvePage applies defaults to the requested format, orientation and margin
// and checks them against the configured paper sizes.
func ResolvePage(cfg config.Config, req domain.RenderRequest) (domain.PageOptions, error) {
	format := strings.ToUpper(strings.TrimSpace(req.Format))
	if format == "" {
		format = cfg.PDF.DefaultPaper
	}
	paper, ok := cfg.PDF.PaperSizes[format]
	if !ok {
		return domain.PageOptions{}, domain.InvalidInput(fmt.Sprintf("Invalid format %q: not supported", req.Format))
	}

	orientation := strings.ToLower(strings.TrimSpace(req.Orientation))
	if orientation == "" {
		orientation = cfg.PDF.DefaultOrientation
	}
	if orientation != "portrait" && orientation != "landscape" {
		return domain.PageOptions{}, domain.InvalidInput("Invalid orientation: must be 'portrait' or 'landscape'")
	}

	margin := strings.TrimSpace(req.Margin)
	if margin == "" {
		margin = cfg.PDF.DefaultMargin
	}
	marginIn, err := domain.ParseLengthInches(margin)
	if err != nil || marginIn > maxMarginIn {
		return domain.PageOptions{}, domain.InvalidInput(fmt.Sprintf("Invalid margin %q: expected a CSS length up to 3in", req.Margin))
	}
	if _, err := strconv.ParseFloat(margin, 64); err == nil {
		margin += "in"
	}

	width, height := paper.Width, paper.Height
	if orientation == "landscape" {
		width, height = height, width
	}
	if 2*marginIn >= math.Min(width, height) {
		return domain.PageOptions{}, domain.InvalidInput("Invalid margin: leaves no printable area")
	}

	return domain.PageOptions{
		Format:      format,
		Orientation: orientation,
		Margin:      margin,
		WidthIn:     width,
		HeightIn:    height,
		MarginIn:    marginIn,
	}, nil
}

// ParseRenderOptions reads the pdf_options map. Unknown keys are ignored;
// known keys with the wrong type or out of range are rejected.
func ParseRenderOptions(raw map[string]any) (domain.RenderOptions, error) {
	opts := domain.DefaultRenderOptions()
	for key, value := range raw {
		switch key {
		case "print_background":
			b, err := boolOption(key, value)
			if err != nil {
				return opts, err
			}
			opts.PrintBackground = b
		case "prefer_css_page_size":
			b, err := boolOption(key, value)
			if err != nil {
				return opts, err
			}
			opts.PreferCSSPageSize = b
		case "display_header_footer":
			b, err := boolOption(key, value)
			if err != nil {
				return opts, err
			}
			opts.DisplayHeaderFooter = b
		case "scale":
			f, err := numberOption(key, value)
			if err != nil {
				return opts, err
			}
			if f < minScale || f > maxScale {
				return opts, domain.InvalidInput("Invalid pdf_options.scale: must be between 0.1 and 2.0")
			}
			opts.Scale = f
		case "wait_ms":
			f, err := numberOption(key, value)
			if err != nil {
				return opts, err
			}
			if f < 0 || f > maxWaitMS {
				return opts, domain.InvalidInput("Invalid pdf_options.wait_ms: must be between 0 and 10000")
			}
			opts.Wait = time.Duration(f) * time.Millisecond
		default:
			logging.Debug("ignoring unknown pdf option", "key", key)
		}
	}
	return opts, nil
}

func boolOption(key string, value any) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, domain.InvalidInput(fmt.Sprintf("Invalid pdf_options.%s: expected a boolean", key))
	}
	return b, nil
}

func numberOption(key string, value any) (float64, error) {
	switch n := value.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, domain.InvalidInput(fmt.Sprintf("Invalid pdf_options.%s: expected a number", key))
}

// cacheFingerprint renders options in a stable order for cache keys.
func cacheFingerprint(p domain.PageOptions, o domain.RenderOptions) string {
	return fmt.Sprintf("%s|%s|%s|bg=%t|scale=%g|css=%t|hf=%t|wait=%d",
		p.Format, p.Orientation, p.Margin,
		o.PrintBackground, o.Scale, o.PreferCSSPageSize, o.DisplayHeaderFooter, o.Wait.Milliseconds())
}
