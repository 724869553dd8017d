package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultDockerTimeoutSeconds bounds how long the readiness gate waits
// for the Docker daemon after launching it.
const DefaultDockerTimeoutSeconds = 90

// DriverConfig is the workflow driver configuration (config.yaml),
// consumed one directory above the workspace.
type DriverConfig struct {
	// OS is the expected platform name, matched case-insensitively as a
	// substring of the running platform.
	OS string `yaml:"os"`

	Docker   DockerConfig   `yaml:"docker"`
	Workflow WorkflowConfig `yaml:"workflow"`
}

// DockerConfig describes the background container runtime.
type DockerConfig struct {
	// ExecutablePath is launched when the daemon is not already running.
	ExecutablePath string `yaml:"executable_path"`

	// TimeoutSeconds bounds the readiness wait. Defaults to 90.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// WorkflowConfig is the ordered step list. Each step is a command string
// split on whitespace into interpreter arguments.
type WorkflowConfig struct {
	Steps []string `yaml:"steps"`
}

// LoadDriver reads, expands and unmarshals the driver configuration,
// applying defaults after unmarshalling.
func LoadDriver(path string) (*DriverConfig, error) {
	data, err := readExpanded(path)
	if err != nil {
		return nil, err
	}

	var cfg DriverConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal driver config %s: %w", path, err)
	}

	if cfg.Docker.TimeoutSeconds <= 0 {
		cfg.Docker.TimeoutSeconds = DefaultDockerTimeoutSeconds
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the driver configuration shape. An empty step list is
// a misconfiguration, not a trivially-successful workflow.
func (c *DriverConfig) Validate() error {
	if strings.TrimSpace(c.OS) == "" {
		return fmt.Errorf("driver config: os must be a non-empty string")
	}
	if len(c.Workflow.Steps) == 0 {
		return fmt.Errorf("driver config: workflow.steps must not be empty")
	}
	for i, s := range c.Workflow.Steps {
		if len(strings.Fields(s)) == 0 {
			return fmt.Errorf("driver config: workflow.steps[%d] is blank", i)
		}
	}
	return nil
}

// MatchesPlatform reports whether the configured OS name matches the
// given platform identifier (typically runtime.GOOS), case-insensitively
// and in either substring direction so "windows" matches "Windows 11".
func (c *DriverConfig) MatchesPlatform(platform string) bool {
	want := strings.ToLower(strings.TrimSpace(c.OS))
	got := strings.ToLower(strings.TrimSpace(platform))
	if want == "" || got == "" {
		return false
	}
	return strings.Contains(got, want) || strings.Contains(want, got)
}
