package template

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"

	"github.com/heraldlabs/herald/pkg/cache"
	"github.com/heraldlabs/herald/pkg/clock"
	"github.com/heraldlabs/herald/pkg/logger"
)

// Config holds template engine cache settings.
type Config struct {
	LookupTTL  time.Duration `env:"TEMPLATE_LOOKUP_TTL" envDefault:"5m"`
	CompileTTL time.Duration `env:"TEMPLATE_COMPILE_TTL" envDefault:"1h"`
}

// Engine resolves, validates, compiles and renders templates.
type Engine struct {
	source   Source
	dialects map[string]Dialect
	clock    clock.Clock
	logger   *slog.Logger

	// Two caches on purpose: a template lookup is cheap to redo, compilation
	// is not, so compiled renderers outlive the content cache. The compile key
	// includes a content fingerprint so a changed template never reuses a
	// stale renderer inside its TTL.
	lookups  *cache.TTL[string, Template]
	compiled *cache.TTL[string, Renderer]

	compileCount atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithDialect registers an additional dialect.
func WithDialect(d Dialect) Option {
	return func(e *Engine) {
		if d != nil {
			e.dialects[d.Name()] = d
		}
	}
}

// WithClock injects a clock for cache expiry and system variables.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) {
		if clk != nil {
			e.clock = clk
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates a template engine over the given source. The "go" dialect
// is always registered.
func NewEngine(source Source, cfg Config, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if cfg.LookupTTL <= 0 {
		cfg.LookupTTL = 5 * time.Minute
	}
	if cfg.CompileTTL <= 0 {
		cfg.CompileTTL = time.Hour
	}

	e := &Engine{
		source:   source,
		dialects: map[string]Dialect{GoDialect{}.Name(): GoDialect{}},
		clock:    clock.System(),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	e.lookups = cache.New[string, Template](cfg.LookupTTL, cache.WithClock[string, Template](e.clock))
	e.compiled = cache.New[string, Renderer](cfg.CompileTTL, cache.WithClock[string, Renderer](e.clock))

	return e, nil
}

// Render resolves the template, validates variables, and executes the
// compiled renderer for the best-matching locale.
func (e *Engine) Render(ctx context.Context, templateID string, vars map[string]any, locale string) (RenderResult, error) {
	tmpl, err := e.lookup(ctx, templateID)
	if err != nil {
		return RenderResult{}, err
	}

	resolvedLocale, content, err := e.resolveLocale(tmpl, locale)
	if err != nil {
		return RenderResult{}, err
	}

	if err := e.validateVars(tmpl, vars); err != nil {
		return RenderResult{}, err
	}

	enriched := e.enrichVars(tmpl, vars, resolvedLocale)

	renderer, err := e.compile(tmpl, resolvedLocale, content)
	if err != nil {
		return RenderResult{}, err
	}

	out, err := renderer.Render(enriched)
	if err != nil {
		return RenderResult{}, err
	}
	out.Locale = resolvedLocale
	return out, nil
}

// Invalidate drops a template from both caches, forcing re-lookup and
// recompilation on next render.
func (e *Engine) Invalidate(templateID string) {
	e.lookups.Delete(templateID)
	// Compiled entries are fingerprint-keyed; they fall out once the lookup
	// returns changed content, and the GC sweep reclaims the rest.
}

// Purge drops expired entries from both caches. Driven by the orchestrator's
// GC sweep.
func (e *Engine) Purge() {
	e.lookups.Purge()
	e.compiled.Purge()
}

// Close releases cache resources.
func (e *Engine) Close() {
	e.lookups.Close()
	e.compiled.Close()
}

func (e *Engine) lookup(ctx context.Context, id string) (Template, error) {
	if t, ok := e.lookups.Get(id); ok {
		return t, nil
	}

	t, err := e.source.ByID(ctx, id)
	if err != nil {
		return Template{}, err
	}
	if len(t.Locales) == 0 {
		return Template{}, fmt.Errorf("%s: %w", id, ErrNoContent)
	}

	e.lookups.Set(id, t)
	return t, nil
}

// resolveLocale picks the best matching locale content, falling back to the
// template's default locale when the requested one is absent.
func (e *Engine) resolveLocale(t Template, requested string) (string, Content, error) {
	fallback := t.DefaultLocale
	if fallback == "" {
		for locale := range t.Locales {
			fallback = locale
			break
		}
	}

	if requested == "" {
		requested = fallback
	}

	if c, ok := t.Locales[requested]; ok {
		return requested, c, nil
	}

	// Use language matching so "en-GB" finds "en" content before giving up.
	tags := make([]language.Tag, 0, len(t.Locales))
	names := make([]string, 0, len(t.Locales))
	for locale := range t.Locales {
		tag, err := language.Parse(locale)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		names = append(names, locale)
	}

	if want, err := language.Parse(requested); err == nil && len(tags) > 0 {
		matcher := language.NewMatcher(tags)
		if _, idx, conf := matcher.Match(want); conf >= language.High {
			name := names[idx]
			return name, t.Locales[name], nil
		}
	}

	c, ok := t.Locales[fallback]
	if !ok {
		return "", Content{}, fmt.Errorf("%s: %w", t.ID, ErrNoContent)
	}

	e.logger.LogAttrs(context.Background(), slog.LevelDebug, "locale fell back to default",
		logger.TemplateID(t.ID),
		slog.String("requested", requested),
		slog.String("resolved", fallback),
	)
	return fallback, c, nil
}

// validateVars checks every declared variable, aggregating all problems
// instead of stopping at the first.
func (e *Engine) validateVars(t Template, vars map[string]any) error {
	var fields []FieldError

	for _, decl := range t.Variables {
		val, present := vars[decl.Name]
		if !present || val == nil {
			if decl.Required && decl.Default == nil {
				fields = append(fields, FieldError{Name: decl.Name, Reason: reasonMissing})
			}
			continue
		}
		if !typeMatches(decl.Type, val) {
			fields = append(fields, FieldError{
				Name:   decl.Name,
				Reason: fmt.Sprintf("%s: expected %s, got %T", reasonWrongType, decl.Type, val),
			})
		}
	}

	if len(fields) > 0 {
		return &ValidationError{TemplateID: t.ID, Fields: fields}
	}
	return nil
}

func typeMatches(t VarType, val any) bool {
	switch t {
	case VarString:
		_, ok := val.(string)
		return ok
	case VarNumber:
		switch val.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case VarBool:
		_, ok := val.(bool)
		return ok
	case VarList:
		switch val.(type) {
		case []any, []string, []int, []float64:
			return true
		}
		return false
	case VarMap:
		_, ok := val.(map[string]any)
		return ok
	case VarAny, "":
		return true
	default:
		return true
	}
}

// enrichVars merges caller variables over declared defaults and the fixed
// system variable set. Caller values win over defaults; system variables win
// over both so templates can rely on them.
func (e *Engine) enrichVars(t Template, vars map[string]any, locale string) map[string]any {
	enriched := make(map[string]any, len(vars)+len(t.Variables)+4)

	for _, decl := range t.Variables {
		if decl.Default != nil {
			enriched[decl.Name] = decl.Default
		}
	}
	for k, v := range vars {
		enriched[k] = v
	}
	for k, v := range systemVars(t, locale, e.clock.Now()) {
		enriched[k] = v
	}

	return enriched
}

func (e *Engine) compile(t Template, locale string, c Content) (Renderer, error) {
	dialect, ok := e.dialects[t.Dialect]
	if !ok {
		return nil, fmt.Errorf("%w: %q (template %s)", ErrUnsupportedDialect, t.Dialect, t.ID)
	}

	key := fmt.Sprintf("%s|%s|%s|%s|%s", t.ID, t.Dialect, locale, t.Fingerprint(), t.VariableShape())
	if r, ok := e.compiled.Get(key); ok {
		return r, nil
	}

	r, err := dialect.Compile(c)
	if err != nil {
		return nil, err
	}
	e.compileCount.Add(1)
	e.compiled.Set(key, r)
	return r, nil
}

// CompileCount reports how many compilations have run; exposed for cache
// behavior tests and metrics.
func (e *Engine) CompileCount() int64 {
	return e.compileCount.Load()
}
