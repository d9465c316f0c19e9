package provider

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/helixml/vectable/domain/embedding"
)

// ErrInvalidCatalog indicates a malformed function catalog.
var ErrInvalidCatalog = errors.New("invalid function catalog")

// Catalog is a list of named function aliases loaded from YAML:
//
//	functions:
//	  - name: small
//	    provider: openai
//	    params:
//	      model: text-embedding-3-small
type Catalog struct {
	Functions []CatalogEntry `yaml:"functions"`
}

// CatalogEntry registers Name as Provider with default Params. Params given
// on a definition override the defaults key by key.
type CatalogEntry struct {
	Name     string         `yaml:"name"`
	Provider string         `yaml:"provider"`
	Params   map[string]any `yaml:"params"`
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read function catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	seen := make(map[string]bool, len(c.Functions))
	for i, f := range c.Functions {
		switch {
		case f.Name == "":
			return Catalog{}, fmt.Errorf("%w: entry %d has no name", ErrInvalidCatalog, i)
		case f.Provider == "":
			return Catalog{}, fmt.Errorf("%w: %q has no provider", ErrInvalidCatalog, f.Name)
		case f.Name == f.Provider:
			return Catalog{}, fmt.Errorf("%w: %q refers to itself", ErrInvalidCatalog, f.Name)
		case seen[f.Name]:
			return Catalog{}, fmt.Errorf("%w: %q listed twice", ErrInvalidCatalog, f.Name)
		}
		seen[f.Name] = true
	}
	return c, nil
}

// Register adds every alias to registry. Providers must already be
// registered; an alias may build on an earlier entry.
func (c Catalog) Register(registry *embedding.Registry, opts ...embedding.RegisterOption) error {
	for _, f := range c.Functions {
		base, ok := registry.Get(f.Provider)
		if !ok {
			return &embedding.RegistryError{Name: f.Provider, Kind: embedding.ErrNotFound}
		}
		if err := registry.Register(f.Name, alias{base: base, defaults: f.Params}, opts...); err != nil {
			return err
		}
	}
	return nil
}

type alias struct {
	base     embedding.Handle
	defaults embedding.Params
}

func (a alias) Create(params embedding.Params) (embedding.Function, error) {
	merged := a.defaults.Clone()
	if merged == nil {
		merged = embedding.Params{}
	}
	for k, v := range params {
		merged[k] = v
	}
	return a.base.Create(merged)
}
