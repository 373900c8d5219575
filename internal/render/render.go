// Package render turns a TaskSpec into the HTML page workers see.
package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"sync"

	"github.com/dyluth/tally/pkg/crowd"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	// SandboxActionURL receives worker submissions in the sandbox marketplace.
	SandboxActionURL = "https://workersandbox.mturk.com/mturk/externalSubmit"

	// LiveActionURL receives worker submissions in the live marketplace.
	LiveActionURL = "https://www.mturk.com/mturk/externalSubmit"
)

// Renderer produces displayable content for a task.
type Renderer interface {
	Render(ctx context.Context, spec *crowd.TaskSpec) ([]byte, error)
}

// pageData is what templates see.
type pageData struct {
	Title       string
	Description string
	Keywords    []string
	Reward      string
	Annotation  string
	ActionURL   string
	Pairs       []pairData
}

type pairData struct {
	A   string
	B   string
	Key string
}

// TemplateRenderer renders TaskSpecs with html/template.
// Templates are looked up by the spec's TemplateName, first in the override
// directory (if any) and then in the built-in set.
type TemplateRenderer struct {
	actionURL string
	override  fs.FS

	mu    sync.Mutex
	cache map[string]*template.Template
}

// NewTemplateRenderer creates a renderer. When dir is non-empty, templates in
// it shadow the built-in ones of the same name.
func NewTemplateRenderer(sandbox bool, dir string) (*TemplateRenderer, error) {
	r := &TemplateRenderer{
		actionURL: LiveActionURL,
		cache:     make(map[string]*template.Template),
	}
	if sandbox {
		r.actionURL = SandboxActionURL
	}

	if dir != "" {
		info, err := os.Stat(dir)
		if err != nil {
			return nil, fmt.Errorf("template directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("template directory %s is not a directory", dir)
		}
		r.override = os.DirFS(dir)
	}

	return r, nil
}

// ActionURL returns the submission endpoint injected into every page.
func (r *TemplateRenderer) ActionURL() string {
	return r.actionURL
}

// Render executes the spec's template.
func (r *TemplateRenderer) Render(_ context.Context, spec *crowd.TaskSpec) ([]byte, error) {
	name := spec.TemplateName
	if name == "" {
		name = spec.Annotation + ".html"
	}

	tmpl, err := r.lookup(name)
	if err != nil {
		return nil, err
	}

	data := pageData{
		Title:       spec.Title,
		Description: spec.Description,
		Keywords:    spec.Keywords,
		Reward:      spec.Reward,
		Annotation:  spec.Annotation,
		ActionURL:   r.actionURL,
		Pairs:       make([]pairData, 0, len(spec.Pairs)),
	}
	for _, p := range spec.Pairs {
		data.Pairs = append(data.Pairs, pairData{A: p.A, B: p.B, Key: p.Key()})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func (r *TemplateRenderer) lookup(name string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tmpl, ok := r.cache[name]; ok {
		return tmpl, nil
	}

	content, err := r.read(name)
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(name).Funcs(template.FuncMap{
		"questionKey": crowd.QuestionKey,
	}).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	r.cache[name] = tmpl
	return tmpl, nil
}

func (r *TemplateRenderer) read(name string) ([]byte, error) {
	if r.override != nil {
		content, err := fs.ReadFile(r.override, name)
		if err == nil {
			return content, nil
		}
	}

	content, err := templatesFS.ReadFile("templates/" + name)
	if err != nil {
		return nil, fmt.Errorf("template %s not found", name)
	}
	return content, nil
}

// BuiltinTemplate returns the content of a built-in template, for seeding a
// project's override directory.
func BuiltinTemplate(name string) ([]byte, error) {
	return templatesFS.ReadFile("templates/" + name)
}
