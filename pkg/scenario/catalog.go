package scenario

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinYAML []byte

// ErrNotFound is returned by [Catalog.Get] for an unknown scenario ID.
var ErrNotFound = errors.New("scenario: not found")

// Catalog is an ordered, read-only set of scenarios.
type Catalog struct {
	scenarios []Scenario
	byID      map[string]int
}

type catalogFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Builtin returns the embedded default catalog.
func Builtin() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(builtinYAML))
	if err != nil {
		panic(fmt.Sprintf("scenario: embedded catalog: %v", err))
	}
	return c
}

// LoadCatalogFile reads a YAML catalog from path.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: open catalog %q: %w", path, err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// LoadCatalog decodes a YAML catalog from r and validates every scenario.
// Unknown keys and duplicate IDs are rejected.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("scenario: decode catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]int, len(file.Scenarios))}
	var errs []error
	for i := range file.Scenarios {
		s := file.Scenarios[i]
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.byID[s.ID]; dup {
			errs = append(errs, fmt.Errorf("scenario %q: duplicate id", s.ID))
			continue
		}
		c.byID[s.ID] = len(c.scenarios)
		c.scenarios = append(c.scenarios, s)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("scenario: invalid catalog: %w", errors.Join(errs...))
	}
	return c, nil
}

// All returns copies of every scenario in catalog order.
func (c *Catalog) All() []Scenario {
	out := make([]Scenario, len(c.scenarios))
	for i, s := range c.scenarios {
		out[i] = s.Clone()
	}
	return out
}

// Get returns a copy of the scenario with the given ID.
func (c *Catalog) Get(id string) (Scenario, error) {
	i, ok := c.byID[id]
	if !ok {
		return Scenario{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return c.scenarios[i].Clone(), nil
}

// Len returns the number of scenarios.
func (c *Catalog) Len() int { return len(c.scenarios) }
