// Package templates holds the catalogue of starter block sequences offered
// when creating a page. The catalogue is read-only to the rest of the system.
package templates

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/starford/pagebook/internal/models"
)

//go:embed builtin.yaml
var builtinYAML []byte

// Template is a named starter block sequence.
type Template struct {
	Name   string      `yaml:"name" json:"name"`
	Title  string      `yaml:"title" json:"title"`
	Blocks []BlockSpec `yaml:"blocks" json:"blocks"`
}

// BlockSpec is a block prototype without an id.
type BlockSpec struct {
	Type     models.Kind `yaml:"type" json:"type"`
	Content  string      `yaml:"content" json:"content"`
	Checked  *bool       `yaml:"checked,omitempty" json:"checked,omitempty"`
	Src      string      `yaml:"src,omitempty" json:"src,omitempty"`
	Language string      `yaml:"language,omitempty" json:"language,omitempty"`
}

// Instantiate returns the template's blocks with freshly generated ids.
func (t Template) Instantiate() []models.Block {
	out := make([]models.Block, len(t.Blocks))
	for i, s := range t.Blocks {
		b := models.Block{
			ID:       models.NewID(),
			Kind:     s.Type,
			Content:  s.Content,
			Src:      s.Src,
			Language: s.Language,
		}
		if s.Checked != nil {
			v := *s.Checked
			b.Checked = &v
		}
		out[i] = b
	}
	return out
}

func (t Template) validate() error {
	if t.Name == "" {
		return fmt.Errorf("templates: template without name")
	}
	for i, b := range t.Blocks {
		if !b.Type.Valid() {
			return fmt.Errorf("templates: %s: block %d: unknown type %q", t.Name, i, b.Type)
		}
	}
	return nil
}

// Catalogue is the ordered list of templates: built-ins first, then any
// templates found in the user directory sorted by file name.
type Catalogue struct {
	mu      sync.RWMutex
	builtin []Template
	user    []Template
	dir     string
}

// NewCatalogue parses the built-in templates and, if dir is non-empty, loads
// user templates from it. A missing dir is not an error.
func NewCatalogue(dir string, logger *slog.Logger) (*Catalogue, error) {
	builtin, err := parse(builtinYAML)
	if err != nil {
		return nil, fmt.Errorf("templates: builtin: %w", err)
	}
	if len(builtin) == 0 {
		return nil, fmt.Errorf("templates: builtin catalogue is empty")
	}
	c := &Catalogue{builtin: builtin, dir: dir}
	if dir != "" {
		c.Reload(logger)
	}
	return c, nil
}

// List returns a copy of every template in catalogue order.
func (c *Catalogue) List() []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Template, 0, len(c.builtin)+len(c.user))
	out = append(out, c.builtin...)
	return append(out, c.user...)
}

// Default returns the first catalogue entry, used to seed a fresh workspace.
func (c *Catalogue) Default() Template {
	return c.builtin[0]
}

// Get looks a template up by name.
func (c *Catalogue) Get(name string) (Template, bool) {
	for _, t := range c.List() {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}

// Reload re-reads the user template directory. Invalid files are logged and
// skipped; names that clash with an earlier entry are ignored.
func (c *Catalogue) Reload(logger *slog.Logger) {
	if c.dir == "" {
		return
	}
	files, err := filepath.Glob(filepath.Join(c.dir, "*.yaml"))
	if err != nil {
		logger.Warn("templates: glob failed", slog.String("error", err.Error()))
		return
	}
	sort.Strings(files)

	seen := make(map[string]struct{}, len(c.builtin))
	for _, t := range c.builtin {
		seen[t.Name] = struct{}{}
	}

	var user []Template
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			logger.Warn("templates: read failed", slog.String("path", f), slog.String("error", err.Error()))
			continue
		}
		var t Template
		if err := yaml.Unmarshal(data, &t); err != nil {
			logger.Warn("templates: parse failed", slog.String("path", f), slog.String("error", err.Error()))
			continue
		}
		if t.Name == "" {
			t.Name = strings.TrimSuffix(filepath.Base(f), ".yaml")
		}
		if err := t.validate(); err != nil {
			logger.Warn("templates: invalid template", slog.String("path", f), slog.String("error", err.Error()))
			continue
		}
		if _, dup := seen[t.Name]; dup {
			logger.Warn("templates: duplicate name ignored", slog.String("name", t.Name), slog.String("path", f))
			continue
		}
		seen[t.Name] = struct{}{}
		user = append(user, t)
	}

	c.mu.Lock()
	c.user = user
	c.mu.Unlock()
	logger.Debug("templates: reloaded", slog.Int("user_templates", len(user)))
}

func parse(data []byte) ([]Template, error) {
	var out []Template
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	for _, t := range out {
		if err := t.validate(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
