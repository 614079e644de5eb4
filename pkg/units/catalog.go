package units

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// CatalogUnit describes one unit known to the deployment.
type CatalogUnit struct {
	// Name is the unit name, matching the path basename without extension.
	Name string `yaml:"name" validate:"required"`

	// Path is where the unit module lives.
	Path string `yaml:"path" validate:"required"`

	// Checksum is the hex sha256 of the module bytes. Empty disables
	// verification for this unit.
	Checksum string `yaml:"checksum,omitempty" validate:"omitempty,len=64,hexadecimal"`

	// Description is free text for reports.
	Description string `yaml:"description,omitempty"`
}

// Catalog is the set of units a deployment expects, with optional
// checksum pins.
type Catalog struct {
	Units []CatalogUnit `yaml:"units" validate:"dive"`
}

// LoadCatalog reads and validates a YAML unit catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	return ParseCatalog(data)
}

// ParseCatalog parses a YAML unit catalog from raw bytes.
func ParseCatalog(data []byte) (*Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}

	validate := validator.New()
	for i := range catalog.Units {
		if err := validate.Struct(&catalog.Units[i]); err != nil {
			return nil, fmt.Errorf("invalid catalog unit %d: %w", i, err)
		}
	}

	seen := make(map[string]bool)
	for _, unit := range catalog.Units {
		if seen[unit.Name] {
			return nil, fmt.Errorf("duplicate catalog unit: %s", unit.Name)
		}
		seen[unit.Name] = true
	}

	return &catalog, nil
}

// Lookup returns the catalog entry for a unit name.
func (c *Catalog) Lookup(name string) (*CatalogUnit, bool) {
	for i := range c.Units {
		if c.Units[i].Name == name {
			return &c.Units[i], true
		}
	}
	return nil, false
}

// VerifyChecksum checks module bytes against the pinned checksum for the
// named unit. Units without a catalog entry or without a pin pass.
func (c *Catalog) VerifyChecksum(name string, module []byte) error {
	unit, ok := c.Lookup(name)
	if !ok || unit.Checksum == "" {
		return nil
	}

	hash := sha256.Sum256(module)
	computed := hex.EncodeToString(hash[:])

	if computed != unit.Checksum {
		return fmt.Errorf("unit checksum mismatch: expected %s, got %s",
			unit.Checksum, computed)
	}

	return nil
}

// Names returns the catalog unit names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.Units))
	for _, unit := range c.Units {
		names = append(names, unit.Name)
	}
	return names
}
