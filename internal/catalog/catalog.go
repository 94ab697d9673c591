// Package catalog loads the farms plots are sold on and the plant listings
// they offer.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/growfi/growfi-server/internal/layout"
)

//go:embed farms.yaml
var defaultCatalog []byte

//go:embed farms.schema.json
var schemaJSON string

// ErrFarmNotFound is returned by Get for an unknown id.
var ErrFarmNotFound = errors.New("farm not found")

// Farm is one catalog entry.
type Farm struct {
	ID                  string `yaml:"id" json:"id"`
	Name                string `yaml:"name" json:"name"`
	Location            string `yaml:"location" json:"location"`
	Address             string `yaml:"address" json:"address"`
	Description         string `yaml:"description" json:"description"`
	TotalPlots          int    `yaml:"total_plots" json:"total_plots"`
	SustainabilityScore int    `yaml:"sustainability_score" json:"sustainability_score"`
	TokenSymbol         string `yaml:"token_symbol" json:"token_symbol"`
	TokenID             string `yaml:"token_id" json:"token_id"`
	Seed                int64  `yaml:"seed" json:"-"`
}

type document struct {
	Farms  []Farm  `yaml:"farms"`
	Plants []Plant `yaml:"plants"`
}

// Catalog is an immutable set of farms and plants.
type Catalog struct {
	farms  []Farm
	byID   map[string]int
	plants []Plant
	plant  map[string]int
}

// Load reads the catalog at path, or the embedded default when path is
// empty, and applies GROWFI_TOKEN_<SYMBOL> overrides from the environment.
func Load(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return Parse(data, os.Getenv)
}

// Parse validates and decodes a YAML catalog document.  getenv resolves
// token id overrides and may be nil.
func Parse(data []byte, getenv func(string) string) (*Catalog, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]int, len(doc.Farms))}
	for _, f := range doc.Farms {
		if _, dup := c.byID[f.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate farm id %q", f.ID)
		}
		if f.Seed == 0 {
			f.Seed = layout.DefaultSeed
		}
		if getenv != nil {
			if v := strings.TrimSpace(getenv("GROWFI_TOKEN_" + f.TokenSymbol)); v != "" {
				f.TokenID = v
			}
		}
		c.byID[f.ID] = len(c.farms)
		c.farms = append(c.farms, f)
	}

	c.plant = make(map[string]int, len(doc.Plants))
	for _, p := range doc.Plants {
		if _, dup := c.plant[p.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate plant id %q", p.ID)
		}
		i, ok := c.byID[p.FarmID]
		if !ok {
			return nil, fmt.Errorf("catalog: plant %q references unknown farm %q", p.ID, p.FarmID)
		}
		if p.MinInvestment > p.TotalValue {
			return nil, fmt.Errorf("catalog: plant %q min investment exceeds total value", p.ID)
		}
		p.FarmName = c.farms[i].Name
		p.available()
		c.plant[p.ID] = len(c.plants)
		c.plants = append(c.plants, p)
	}
	return c, nil
}

// validate checks data against the embedded schema.  The YAML is decoded
// generically and round-tripped through JSON so the validator sees JSON
// value types.
func validate(data []byte) error {
	schema, err := jsonschema.CompileString("farms.schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("catalog schema: %w", err)
	}
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	buf, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	var doc any
	if err := json.Unmarshal(buf, &doc); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

// List returns the farms in catalog order.
func (c *Catalog) List() []Farm {
	out := make([]Farm, len(c.farms))
	copy(out, c.farms)
	return out
}

// Get returns the farm with id.
func (c *Catalog) Get(id string) (Farm, error) {
	i, ok := c.byID[id]
	if !ok {
		return Farm{}, fmt.Errorf("%w: %s", ErrFarmNotFound, id)
	}
	return c.farms[i], nil
}

// IDs returns the farm ids sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
