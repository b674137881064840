// Package template resolves a template id plus variables into rendered
// notification content. Lookups and compiled renderers are cached separately:
// compilation is the expensive step, so its cache lives longer than the
// content lookup cache.
package template

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// VarType constrains a declared template variable.
type VarType string

const (
	VarString VarType = "string"
	VarNumber VarType = "number"
	VarBool   VarType = "bool"
	VarList   VarType = "list"
	VarMap    VarType = "map"
	VarAny    VarType = "any"
)

// Variable declares one substitution slot of a template.
type Variable struct {
	Name     string  `yaml:"name"`
	Type     VarType `yaml:"type"`
	Required bool    `yaml:"required"`
	Default  any     `yaml:"default,omitempty"`
}

// Content is the renderable material of a template for one locale.
type Content struct {
	Subject   string `yaml:"subject"`
	Body      string `yaml:"body"`
	HTMLBody  string `yaml:"html_body,omitempty"`
	Preheader string `yaml:"preheader,omitempty"`
}

// Template is a notification template with per-locale content. Exactly one
// dialect applies to the whole template; mixing dialects within one template
// is not supported.
type Template struct {
	ID            string             `yaml:"id"`
	Name          string             `yaml:"name"`
	Dialect       string             `yaml:"dialect"`
	DefaultLocale string             `yaml:"default_locale"`
	Locales       map[string]Content `yaml:"locales"`
	Variables     []Variable         `yaml:"variables,omitempty"`
}

// Fingerprint hashes the template content so cache entries are invalidated
// when the underlying material changes, not just when the TTL lapses.
func (t Template) Fingerprint() string {
	h := sha256.New()
	h.Write([]byte(t.Dialect))

	locales := make([]string, 0, len(t.Locales))
	for locale := range t.Locales {
		locales = append(locales, locale)
	}
	sort.Strings(locales)

	for _, locale := range locales {
		c := t.Locales[locale]
		h.Write([]byte(locale))
		h.Write([]byte(c.Subject))
		h.Write([]byte(c.Body))
		h.Write([]byte(c.HTMLBody))
		h.Write([]byte(c.Preheader))
	}

	return hex.EncodeToString(h.Sum(nil)[:16])
}

// VariableShape identifies the declared variable set, part of the compile
// cache key.
func (t Template) VariableShape() string {
	names := make([]string, 0, len(t.Variables))
	for _, v := range t.Variables {
		names = append(names, v.Name+":"+string(v.Type))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// RenderResult is the rendered output of a template.
type RenderResult struct {
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	HTMLBody  string `json:"html_body,omitempty"`
	Preheader string `json:"preheader,omitempty"`

	// Locale is the locale the content was actually resolved from, which may
	// be the default rather than the requested one.
	Locale string `json:"locale"`
}

// System variable names merged into every render.
const (
	SysVarTimestamp    = "timestamp"
	SysVarLocale       = "locale"
	SysVarTemplateID   = "templateId"
	SysVarTemplateName = "templateName"
)

func systemVars(t Template, locale string, now time.Time) map[string]any {
	return map[string]any{
		SysVarTimestamp:    now.UTC().Format(time.RFC3339),
		SysVarLocale:       locale,
		SysVarTemplateID:   t.ID,
		SysVarTemplateName: t.Name,
	}
}
