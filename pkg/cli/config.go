package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// verifyConfig is the YAML shape of a verify run. Flags given on the
// command line override the file.
type verifyConfig struct {
	Provider struct {
		Name   string `yaml:"name"`
		Scheme string `yaml:"scheme"`
		Host   string `yaml:"host"`
		Port   int    `yaml:"port"`
		Path   string `yaml:"path"`
	} `yaml:"provider"`

	Sources struct {
		Dirs   []string `yaml:"dirs"`
		Files  []string `yaml:"files"`
		URLs   []string `yaml:"urls"`
		Broker struct {
			URL   string `yaml:"url"`
			Token string `yaml:"token"`
		} `yaml:"broker"`
	} `yaml:"sources"`

	StateChangeURL string            `yaml:"stateChangeUrl"`
	Filter         string            `yaml:"filter"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutMs      int               `yaml:"timeoutMs"`
	Concurrency    int               `yaml:"concurrency"`
	H2C            bool              `yaml:"h2c"`
	PluginDir      string            `yaml:"pluginDir"`

	Publish struct {
		Version string   `yaml:"version"`
		Tags    []string `yaml:"tags"`
	} `yaml:"publish"`
}

// loadVerifyConfig reads and parses a verify configuration file.
func loadVerifyConfig(path string) (*verifyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	var cfg verifyConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &cfg, nil
}
