// Package config loads and validates the two YAML configuration files
// the pipeline consumes: the orchestrator config (workspace location and
// source list) and the workflow driver config (platform, Docker settings
// and workflow steps).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the orchestrator configuration (test_module_cfg.yaml).
type Config struct {
	// FolderPath is the workspace directory that is cleared and
	// repopulated with materialized sources on every run.
	FolderPath string `yaml:"folder_path"`

	// RepoURLs is the configured source list, used when no URL is
	// supplied on the command line. May be empty or omitted.
	RepoURLs []string `yaml:"repo_urls"`
}

// Load reads, expands and unmarshals the orchestrator configuration.
func Load(path string) (*Config, error) {
	data, err := readExpanded(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration shape. Retrieval-related problems
// (unreachable URLs etc.) are deliberately out of scope here.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.FolderPath) == "" {
		return fmt.Errorf("config: folder_path must be a non-empty string")
	}
	for i, u := range c.RepoURLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("config: repo_urls[%d] is empty", i)
		}
	}
	return nil
}

// SourceURLs returns the configured URLs with surrounding whitespace trimmed.
func (c *Config) SourceURLs() []string {
	urls := make([]string, 0, len(c.RepoURLs))
	for _, u := range c.RepoURLs {
		if s := strings.TrimSpace(u); s != "" {
			urls = append(urls, s)
		}
	}
	return urls
}

// readExpanded loads .env overlays, reads the file and expands ${VAR}
// references against the process environment.
func readExpanded(path string) ([]byte, error) {
	// .env values never override already-exported variables.
	_ = godotenv.Load(".env", ".env.local")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return []byte(os.ExpandEnv(string(data))), nil
}
