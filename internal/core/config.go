// Package core implements check and fetch over a pinned dataset
// configuration.
//
//   - config.go: the .data.yaml structure and validation
//   - lock.go: the .data.lock.yaml structure and I/O
//   - engine.go: Check and Fetch
package core

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jprybylski/doipin/internal/checksum"
	"github.com/jprybylski/doipin/internal/fetcher"
)

// Policies decide what Check does when a remote fingerprint has moved.
const (
	PolicyFail   = "fail"
	PolicyUpdate = "update"
	PolicyLog    = "log"
)

// DefaultParallel bounds concurrent downloads when defaults.parallel is unset.
const DefaultParallel = 4

// Config is the .data.yaml file.
type Config struct {
	Version  int       `yaml:"version"`
	Defaults Defaults  `yaml:"defaults"`
	Datasets []Dataset `yaml:"datasets"`
}

// Defaults apply to every dataset that does not override them.
type Defaults struct {
	Policy   string `yaml:"policy"`
	Algo     string `yaml:"algo"`
	Parallel int    `yaml:"parallel"`
}

// Dataset is one tracked file. Exactly one of Source or Sources is set;
// Sources are tried in order until one works.
type Dataset struct {
	ID      string           `yaml:"id"`
	Desc    string           `yaml:"desc"`
	Target  string           `yaml:"target"`
	Policy  string           `yaml:"policy"`
	Source  fetcher.Source   `yaml:"source,omitempty"`
	Sources []fetcher.Source `yaml:"sources,omitempty"`
}

// ReadConfig loads path and fills in defaults.
func ReadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if c.Defaults.Policy == "" {
		c.Defaults.Policy = PolicyFail
	}
	if c.Defaults.Algo == "" {
		c.Defaults.Algo = checksum.Default
	}
	if c.Defaults.Parallel <= 0 {
		c.Defaults.Parallel = DefaultParallel
	}
	if _, err := checksum.New(c.Defaults.Algo); err != nil {
		return nil, fmt.Errorf("defaults.algo: %w", err)
	}

	seen := make(map[string]bool, len(c.Datasets))
	for i := range c.Datasets {
		ds := &c.Datasets[i]
		if err := validateDataset(ds); err != nil {
			return nil, fmt.Errorf("dataset %d (%s): %w", i, ds.ID, err)
		}
		if seen[ds.ID] {
			return nil, fmt.Errorf("dataset %d: duplicate id %q", i, ds.ID)
		}
		seen[ds.ID] = true
	}
	return &c, nil
}

func validateDataset(ds *Dataset) error {
	if ds.ID == "" {
		return errors.New("missing id")
	}
	if ds.Target == "" {
		return errors.New("missing target")
	}

	hasSource := ds.Source.Type != ""
	hasSources := len(ds.Sources) > 0
	switch {
	case !hasSource && !hasSources:
		return errors.New("dataset must have either 'source' or 'sources' specified")
	case hasSource && hasSources:
		return errors.New("dataset cannot have both 'source' and 'sources' specified (use only one)")
	}
	for i, s := range ds.Sources {
		if s.Type == "" {
			return fmt.Errorf("sources[%d]: missing type", i)
		}
	}
	return nil
}

// GetSources returns Sources, or Source wrapped in a slice.
func (ds *Dataset) GetSources() []fetcher.Source {
	if len(ds.Sources) > 0 {
		return ds.Sources
	}
	return []fetcher.Source{ds.Source}
}

func (c *Config) policyFor(ds *Dataset) string {
	if ds.Policy != "" {
		return ds.Policy
	}
	return c.Defaults.Policy
}
