package template

import (
	"fmt"
	htmltemplate "html/template"
	"strings"
	"sync"
	texttemplate "text/template"
)

// Renderer executes a compiled template against an enriched variable set.
// Implementations are safe for concurrent use once compiled.
type Renderer interface {
	Render(vars map[string]any) (RenderResult, error)
}

// Dialect compiles template content. Dialects are registered on the engine
// and are mutually exclusive per template.
type Dialect interface {
	Name() string
	Compile(c Content) (Renderer, error)
}

// GoDialect renders via the standard library template engines: text/template
// for subject, body and preheader, html/template for the HTML body so output
// is escaped correctly.
type GoDialect struct{}

// Name returns "go".
func (GoDialect) Name() string { return "go" }

type goRenderer struct {
	mu        sync.Mutex
	subject   *texttemplate.Template
	body      *texttemplate.Template
	preheader *texttemplate.Template
	html      *htmltemplate.Template
}

func (GoDialect) Compile(c Content) (Renderer, error) {
	r := &goRenderer{}

	var err error
	if r.subject, err = texttemplate.New("subject").Option("missingkey=zero").Parse(c.Subject); err != nil {
		return nil, fmt.Errorf("compile subject: %w", err)
	}
	if r.body, err = texttemplate.New("body").Option("missingkey=zero").Parse(c.Body); err != nil {
		return nil, fmt.Errorf("compile body: %w", err)
	}
	if c.Preheader != "" {
		if r.preheader, err = texttemplate.New("preheader").Option("missingkey=zero").Parse(c.Preheader); err != nil {
			return nil, fmt.Errorf("compile preheader: %w", err)
		}
	}
	if c.HTMLBody != "" {
		if r.html, err = htmltemplate.New("html").Option("missingkey=zero").Parse(c.HTMLBody); err != nil {
			return nil, fmt.Errorf("compile html body: %w", err)
		}
	}

	return r, nil
}

// Render executes all compiled parts. Template execution mutates internal
// state in text/template, so a single renderer serializes executions; the
// engine hands out one renderer per cache entry which keeps contention low.
func (r *goRenderer) Render(vars map[string]any) (RenderResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out RenderResult
	var sb strings.Builder

	if err := r.subject.Execute(&sb, vars); err != nil {
		return RenderResult{}, fmt.Errorf("render subject: %w", err)
	}
	out.Subject = sb.String()

	sb.Reset()
	if err := r.body.Execute(&sb, vars); err != nil {
		return RenderResult{}, fmt.Errorf("render body: %w", err)
	}
	out.Body = sb.String()

	if r.preheader != nil {
		sb.Reset()
		if err := r.preheader.Execute(&sb, vars); err != nil {
			return RenderResult{}, fmt.Errorf("render preheader: %w", err)
		}
		out.Preheader = sb.String()
	}

	if r.html != nil {
		sb.Reset()
		if err := r.html.Execute(&sb, vars); err != nil {
			return RenderResult{}, fmt.Errorf("render html body: %w", err)
		}
		out.HTMLBody = sb.String()
	}

	return out, nil
}
