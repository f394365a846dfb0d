package modelcatalog

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skosovsky/chatbridge"
)

const (
	objectModel    = "model"
	defaultOwnedBy = "yuanbao"
)

//go:embed models.yaml
var embedded embed.FS

// Model is one catalog entry. Several entries may share an ID: the name selects the
// feature suffixes (e.g. deepseek_think) while the ID is the upstream model.
type Model struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	OwnedBy string `yaml:"owned_by"`
}

// Catalog is an ordered, validated model list.
type Catalog struct {
	Entries []Model `yaml:"models"`
}

// Source yields the current model list.
type Source interface {
	Models(ctx context.Context) ([]chatbridge.ModelInfo, error)
}

// ParseBytes parses and validates a YAML catalog.
func ParseBytes(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseFile reads and parses a catalog file.
func ParseFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("modelcatalog: read file: %w", err)
	}
	return ParseBytes(data)
}

// ParseFS reads and parses a catalog from fsys.
func ParseFS(fsys fs.FS, name string) (*Catalog, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("modelcatalog: read fs: %w", err)
	}
	return ParseBytes(data)
}

// Embedded returns the built-in catalog.
func Embedded() *Catalog {
	c, err := ParseFS(embedded, "models.yaml")
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) validate() error {
	if len(c.Entries) == 0 {
		return fmt.Errorf("%w: no models", ErrInvalidCatalog)
	}
	seen := make(map[string]bool, len(c.Entries))
	for i, m := range c.Entries {
		if m.ID == "" {
			return fmt.Errorf("%w: model %d: missing id", ErrInvalidCatalog, i)
		}
		if m.Name == "" {
			return fmt.Errorf("%w: model %d: missing name", ErrInvalidCatalog, i)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidCatalog, m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// ModelInfos converts the catalog to API entries, in catalog order.
func (c *Catalog) ModelInfos() []chatbridge.ModelInfo {
	out := make([]chatbridge.ModelInfo, 0, len(c.Entries))
	for _, m := range c.Entries {
		owner := m.OwnedBy
		if owner == "" {
			owner = defaultOwnedBy
		}
		out = append(out, chatbridge.ModelInfo{ID: m.ID, Name: m.Name, Object: objectModel, OwnedBy: owner})
	}
	return out
}

// Models implements Source.
func (c *Catalog) Models(ctx context.Context) ([]chatbridge.ModelInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.ModelInfos(), nil
}

var _ Source = (*Catalog)(nil)
