// Package render turns solution Markdown into HTML.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer wraps goldmark with the extensions solutions use.
type Renderer struct {
	md goldmark.Markdown
}

func New() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)
	return &Renderer{md: md}
}

// Markdown escapes drop the backslash from \( \) \[ \], which MathJax needs.
var mathDelimiters = strings.NewReplacer(
	`\(`, `\\(`,
	`\)`, `\\)`,
	`\[`, `\\[`,
	`\]`, `\\]`,
)

// Fragment renders src to an HTML fragment. Raw HTML in src is omitted.
func (r *Renderer) Fragment(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(mathDelimiters.Replace(src)), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<script async src="https://cdn.jsdelivr.net/npm/mathjax@3/es5/tex-mml-chtml.js"></script>
<style>
body { font-family: -apple-system, system-ui, sans-serif; max-width: 46rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.55; }
img.problem { max-width: 100%; border-radius: 8px; }
pre { background: #f5f5f5; padding: .75rem; overflow-x: auto; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .ImageURI}}<img class="problem" src="{{.ImageURI}}" alt="Problem">{{end}}
{{.Body}}
</body>
</html>
`))

// Page is a standalone HTML document for one solution.
type Page struct {
	Title string
	// ImageURI is an optional data: or http(s) URL of the problem image.
	ImageURI template.URL
	Body     template.HTML
}

// Document renders solution as a complete HTML page.
func (r *Renderer) Document(title, solution string, imageURI string) ([]byte, error) {
	body, err := r.Fragment(solution)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	page := Page{Title: title, ImageURI: template.URL(imageURI), Body: body}
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}
	return buf.Bytes(), nil
}
