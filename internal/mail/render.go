// Package mail renders notification emails and hands them to a transport.
package mail

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
)

// TemplateReviewReady is sent when a product's summary has been generated.
const TemplateReviewReady = "email_template"

// SubjectReviewReady is the subject line of TemplateReviewReady.
const SubjectReviewReady = "Your review summary is ready"

// ErrUnknownTemplate means no template is registered under the requested name.
var ErrUnknownTemplate = errors.New("unknown email template")

//go:embed templates/*.html
var templateFS embed.FS

// Renderer executes the embedded HTML templates by name.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses every embedded template. The template name is the file
// name without its extension.
func NewRenderer() (*Renderer, error) {
	return newRenderer(templateFS, "templates")
}

func newRenderer(fsys fs.FS, dir string) (*Renderer, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading templates: %w", err)
	}

	r := &Renderer{templates: make(map[string]*template.Template)}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".html" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".html")
		t, err := template.New(e.Name()).Option("missingkey=zero").ParseFS(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// Render executes the named template with vars. Values are HTML-escaped.
func (r *Renderer) Render(name string, vars map[string]string) (string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	if vars == nil {
		vars = map[string]string{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", name, err)
	}
	return buf.String(), nil
}
