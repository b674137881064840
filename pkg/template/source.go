package template

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Source resolves templates by id. The engine caches lookups in front of it,
// so implementations may hit disk or a database on every call.
type Source interface {
	ByID(ctx context.Context, id string) (Template, error)
}

// MemorySource serves templates from an in-memory map. Used by tests and by
// callers that manage template content themselves.
type MemorySource struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewMemorySource creates a MemorySource pre-populated with the given templates.
func NewMemorySource(templates ...Template) *MemorySource {
	s := &MemorySource{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		s.templates[t.ID] = t
	}
	return s
}

// Put adds or replaces a template.
func (s *MemorySource) Put(t Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
}

func (s *MemorySource) ByID(ctx context.Context, id string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t, nil
}

// YAMLSource loads template definitions from *.yml / *.yaml files in a
// filesystem, one template per file, keyed by the declared id.
type YAMLSource struct {
	mu        sync.RWMutex
	fsys      fs.FS
	dir       string
	templates map[string]Template
}

// NewYAMLSource parses every yaml file under dir in fsys.
// Files that fail to parse abort loading: a broken template catalog should
// stop the service at startup, not surface per-notification.
func NewYAMLSource(fsys fs.FS, dir string) (*YAMLSource, error) {
	s := &YAMLSource{
		fsys:      fsys,
		dir:       dir,
		templates: make(map[string]Template),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the catalog from the filesystem.
func (s *YAMLSource) Reload() error {
	entries, err := fs.ReadDir(s.fsys, s.dir)
	if err != nil {
		return fmt.Errorf("template catalog: %w", err)
	}

	loaded := make(map[string]Template)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yml") && !strings.HasSuffix(name, ".yaml") {
			continue
		}

		raw, err := fs.ReadFile(s.fsys, path.Join(s.dir, name))
		if err != nil {
			return fmt.Errorf("template catalog: read %s: %w", name, err)
		}

		var t Template
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("template catalog: parse %s: %w", name, err)
		}
		if t.ID == "" {
			return fmt.Errorf("template catalog: %s declares no id", name)
		}
		if len(t.Locales) == 0 {
			return fmt.Errorf("template catalog: %s: %w", t.ID, ErrNoContent)
		}
		if _, dup := loaded[t.ID]; dup {
			return fmt.Errorf("template catalog: duplicate id %q in %s", t.ID, name)
		}
		loaded[t.ID] = t
	}

	s.mu.Lock()
	s.templates = loaded
	s.mu.Unlock()
	return nil
}

func (s *YAMLSource) ByID(ctx context.Context, id string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t, nil
}

// IDs lists every loaded template id.
func (s *YAMLSource) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.templates))
	for id := range s.templates {
		ids = append(ids, id)
	}
	return ids
}
