package thresholds

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/verdantworks/verdant/internal/domain"
)

// StaticCatalog is an immutable plant/stage catalog loaded once from
// YAML. Authoring and validation of catalog data happens upstream;
// this type only reads it.
type StaticCatalog struct {
	plants map[string]map[string]map[domain.Factor]domain.ThresholdRange
}

type catalogFile struct {
	Plants map[string]map[string]map[domain.Factor]domain.ThresholdRange `yaml:"plants"`
}

// LoadCatalog reads a plant catalog from a YAML file.
func LoadCatalog(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	return &StaticCatalog{plants: file.Plants}, nil
}

// NewStaticCatalog builds a catalog from already-loaded entries.
// Used by tests and the in-memory development mode.
func NewStaticCatalog(plants map[string]map[string]map[domain.Factor]domain.ThresholdRange) *StaticCatalog {
	return &StaticCatalog{plants: plants}
}

func (c *StaticCatalog) Range(plantType, stage string, factor domain.Factor) (domain.ThresholdRange, bool) {
	stages, ok := c.plants[plantType]
	if !ok {
		return domain.ThresholdRange{}, false
	}
	factors, ok := stages[stage]
	if !ok {
		return domain.ThresholdRange{}, false
	}
	rng, ok := factors[factor]
	return rng, ok
}

func (c *StaticCatalog) Stages(plantType string) []string {
	stages, ok := c.plants[plantType]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(stages))
	for name := range stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
