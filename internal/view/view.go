// Package view loads the page templates once at startup and renders them.
// Rendering never fails the caller: problems come back as escaped error text.
package view

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/sprig/v3"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/flagpage/internal/telemetry"
)

var ErrTemplateLoad = errors.New("template load failed")

var extensions = []string{".html", ".tmpl"}

// View names a template and the data to execute it with.
type View struct {
	Name string
	Data any
}

// Renderer is a compiled, read-only template set.
type Renderer struct {
	templates map[string]*template.Template
	logger    zerolog.Logger
}

type Option func(*Renderer)

func WithLogger(l zerolog.Logger) Option { return func(r *Renderer) { r.logger = l } }

// Load compiles the template at path, or every *.html and *.tmpl file when path
// is a directory. Each template is named after its file without the extension.
func Load(path string, opts ...Option) (*Renderer, error) {
	r := &Renderer{templates: map[string]*template.Template{}, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateLoad, err)
	}

	files := []string{path}
	if info.IsDir() {
		files = nil
		for _, ext := range extensions {
			matches, err := filepath.Glob(filepath.Join(path, "*"+ext))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTemplateLoad, err)
			}
			files = append(files, matches...)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("%w: no templates in %s", ErrTemplateLoad, path)
		}
	}

	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		if _, dup := r.templates[name]; dup {
			return nil, fmt.Errorf("%w: duplicate template name %q", ErrTemplateLoad, name)
		}
		t, err := parseFile(name, f)
		if err != nil {
			return nil, err
		}
		r.templates[name] = t
	}
	return r, nil
}

func parseFile(name, path string) (*template.Template, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplateLoad, err)
	}
	t, err := template.New(name).
		Option("missingkey=error").
		Funcs(sprig.HtmlFuncMap()).
		Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateLoad, path, err)
	}
	return t, nil
}

// Names lists the loaded templates in sorted order.
func (r *Renderer) Names() []string {
	names := make([]string, 0, len(r.templates))
	for n := range r.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render executes v. An unknown template or an execution error yields the
// HTML-escaped error message instead of page content.
func (r *Renderer) Render(v View) (out string) {
	defer func() {
		if p := recover(); p != nil {
			out = r.fail(v.Name, fmt.Errorf("template %q panicked: %v", v.Name, p))
		}
	}()

	t, ok := r.templates[v.Name]
	if !ok {
		return r.fail(v.Name, fmt.Errorf("template %q not found", v.Name))
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, v.Data); err != nil {
		return r.fail(v.Name, err)
	}
	return buf.String()
}

func (r *Renderer) fail(name string, err error) string {
	r.logger.Error().Err(err).Str("template", name).Msg("render failed")
	telemetry.RenderErrors.WithLabelValues(name).Inc()
	return template.HTMLEscapeString(err.Error())
}
