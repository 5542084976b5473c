package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"report-renderer/internal/config"
	"report-renderer/internal/domain"
)

const (
	inputPlaceholder  = "{input}"
	outputPlaceholder = "{output}"
)

// CommandEngine shells out to an HTML-to-PDF converter such as weasyprint or
// wkhtmltopdf. Args may reference {input} and {output}; when neither appears
// the input and output paths are appended.
type CommandEngine struct {
	Command string
	Args    []string
	Env     []string
	Timeout time.Duration
	// Dir is the parent of the per-render scratch directory; empty means the
	// system temp dir.
	Dir string
}

// Name implements Engine.
func (e *CommandEngine) Name() string { return config.EngineCommand }

// Render writes the document to a scratch directory, runs the converter and
// reads the produced PDF. The scratch directory is always removed.
func (e *CommandEngine) Render(ctx context.Context, doc Document) ([]byte, error) {
	cmdPath := strings.TrimSpace(e.Command)
	if cmdPath == "" {
		cmdPath = "weasyprint"
	}
	if _, err := exec.LookPath(cmdPath); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEngineUnavailable, err)
	}

	cmdCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	dir, err := os.MkdirTemp(e.Dir, "report-render-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.html")
	output := filepath.Join(dir, "output.pdf")
	if err := os.WriteFile(input, []byte(InlineStylesheets(doc.HTML, doc.Stylesheets)), 0o600); err != nil {
		return nil, fmt.Errorf("write input html: %w", err)
	}

	args := append(converterFlags(cmdPath, doc), commandArgs(e.Args, input, output)...)
	cmd := exec.CommandContext(cmdCtx, cmdPath, args...)
	cmd.Dir = dir
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cmdCtx.Err() != nil {
			return nil, classify(cmdCtx.Err())
		}
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = filepath.Base(cmdPath) + " failed"
		}
		return nil, fmt.Errorf("%s: %w", message, err)
	}

	pdf, err := os.ReadFile(output)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s produced no output", filepath.Base(cmdPath))
		}
		return nil, fmt.Errorf("read output pdf: %w", err)
	}
	return pdf, nil
}

// converterFlags maps page geometry and render options onto the flags of the
// known converters. Other commands get none and rely on the inlined CSS.
func converterFlags(cmdPath string, doc Document) []string {
	switch strings.TrimSuffix(filepath.Base(cmdPath), ".exe") {
	case "weasyprint":
		// Page size, margins and header/footer come from CSS; weasyprint
		// always paints backgrounds and has no scale flag.
		return []string{"--presentational-hints", "--optimize-images"}
	case "wkhtmltopdf":
		flags := []string{"--quiet", "--print-media-type", "--enable-local-file-access"}
		if doc.Page.WidthIn > 0 && doc.Page.HeightIn > 0 {
			flags = append(flags,
				"--page-width", inches(doc.Page.WidthIn),
				"--page-height", inches(doc.Page.HeightIn),
			)
		}
		if doc.Page.MarginIn > 0 {
			m := inches(doc.Page.MarginIn)
			flags = append(flags, "--margin-top", m, "--margin-bottom", m, "--margin-left", m, "--margin-right", m)
		}
		if doc.Options.Scale > 0 && doc.Options.Scale != 1 {
			flags = append(flags, "--zoom", strconv.FormatFloat(doc.Options.Scale, 'f', -1, 64))
		}
		if !doc.Options.PrintBackground {
			flags = append(flags, "--no-background")
		}
		if doc.Options.DisplayHeaderFooter {
			flags = append(flags, "--header-center", "[title]", "--footer-center", "[page] / [topage]")
		}
		return flags
	}
	return nil
}

func inches(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64) + "in"
}

func commandArgs(tmpl []string, input, output string) []string {
	args := make([]string, 0, len(tmpl)+2)
	placed := false
	for _, a := range tmpl {
		if strings.Contains(a, inputPlaceholder) || strings.Contains(a, outputPlaceholder) {
			placed = true
		}
		a = strings.ReplaceAll(a, inputPlaceholder, input)
		a = strings.ReplaceAll(a, outputPlaceholder, output)
		args = append(args, a)
	}
	if !placed {
		args = append(args, input, output)
	}
	return args
}
