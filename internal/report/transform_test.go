package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"report-renderer/internal/domain"
)

func TestEnsureDoctype(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"adds doctype", "<html><body>x</body></html>", "<!DOCTYPE html>\n<html><body>x</body></html>"},
		{"keeps doctype", "<!DOCTYPE html><html></html>", "<!DOCTYPE html><html></html>"},
		{"keeps lower-case doctype with leading space", "  <!doctype html><html></html>", "  <!doctype html><html></html>"},
		{"keeps legacy doctype", `<!DOCTYPE HTML PUBLIC "-//W3C//DTD HTML 4.01//EN"><html></html>`, `<!DOCTYPE HTML PUBLIC "-//W3C//DTD HTML 4.01//EN"><html></html>`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EnsureDoctype(tc.in))
		})
	}
}

func TestStripForcedPageBreaks(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`<div style="page-break-after: always">`, `<div style="">`},
		{`<div class='x' STYLE='color:red;page-break-after:always'>`, `<div class='x' STYLE='color:red;'>`},
		{`<style>.page{page-break-after:always;color:red}</style>`, `<style>.page{color:red}</style>`},
		{`<style media="print">.page { PAGE-BREAK-AFTER : Always !important; }</style>`, `<style media="print">.page {  }</style>`},
		{`<style>h1 { page-break-after: avoid; }</style>`, `<style>h1 { page-break-after: avoid; }</style>`},
		{`<pre><code>.page { page-break-after: always; }</code></pre>`, `<pre><code>.page { page-break-after: always; }</code></pre>`},
		{`<p>Avoid page-break-after: always in print CSS.</p><style>p{page-break-after:always}</style>`, `<p>Avoid page-break-after: always in print CSS.</p><style>p{}</style>`},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, StripForcedPageBreaks(tc.in), tc.in)
	}
}

func TestInjectStylesheet_IntoExistingStyleBlock(t *testing.T) {
	html := `<html><head><style type="text/css">.a{color:red}</style></head><body>x</body></html>`
	out := InjectStylesheet(html, ".injected{}")

	assert.Equal(t, 1, strings.Count(strings.ToLower(out), "<style"))
	assert.Contains(t, out, "<style type=\"text/css\">\n.injected{}\n.a{color:red}</style>")
}

func TestInjectStylesheet_NewBlockBeforeHeadClose(t *testing.T) {
	html := `<html><head><title>t</title></HEAD><body>x</body></html>`
	out := InjectStylesheet(html, ".injected{}")

	assert.Equal(t, `<html><head><title>t</title><style>
.injected{}
</style></HEAD><body>x</body></html>`, out)
}

func TestInjectStylesheet_CreatesHead(t *testing.T) {
	out := InjectStylesheet(`<html lang="en"><body>x</body></html>`, ".i{}")
	assert.Equal(t, "<html lang=\"en\"><head><style>\n.i{}\n</style></head><body>x</body></html>", out)

	out = InjectStylesheet("<!DOCTYPE html>\n<p>x</p>", ".i{}")
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>\n<style>"), out)

	out = InjectStylesheet("<p>x</p>", ".i{}")
	assert.True(t, strings.HasPrefix(out, "<style>"), out)
}

func TestInjectStylesheet_EscapesStyleClose(t *testing.T) {
	out := InjectStylesheet("<html><head></head></html>", "a{}</style><script>")
	assert.NotContains(t, out, "</style><script>")
}

func TestNormalize(t *testing.T) {
	html := `<html><head><style>.x{page-break-after: always;}</style></head><body><div class="section">a</div></body></html>`
	out := Normalize(html)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>\n"))
	assert.NotContains(t, out, "page-break-after: always")
	assert.Contains(t, out, PrintStylesheet())
	assert.Equal(t, 1, strings.Count(out, "<style>"))

	noStyle := Normalize("<html><head></head><body>hello</body></html>")
	assert.Contains(t, noStyle, "<style>\n"+PrintStylesheet()+"\n</style></head>")
}

func TestPrintStylesheet(t *testing.T) {
	css := PrintStylesheet()
	assert.NotContains(t, css, "@page")
	assert.Contains(t, css, "font-family")
	assert.Contains(t, css, "page-break-inside: avoid")
	assert.Contains(t, css, ".status-pass")
	assert.NotContains(t, css, "page-break-after: always")
}

func TestPageStylesheet(t *testing.T) {
	assert.Equal(t, "@page { size: A4 portrait; margin: 1cm; }",
		PageStylesheet(domain.PageOptions{Format: "A4", Orientation: "portrait", Margin: "1cm"}))
	assert.Equal(t, "@page { size: letter landscape; margin: 0.5in; }",
		PageStylesheet(domain.PageOptions{Format: "LETTER", Orientation: "landscape", Margin: "0.5in"}))
}
