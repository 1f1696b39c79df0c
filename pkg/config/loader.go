package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load loads a SenderConfig from a YAML file on top of defaults for the
// declared protocol. ${VAR} references are substituted from the environment
// before parsing so credentials stay out of config files.
func Load(filePath string) (*SenderConfig, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path is controlled by the caller
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	content := substituteEnvVars(string(data))

	var declared struct {
		Connection ConnectionConfig `yaml:"connection"`
	}
	if err := yaml.Unmarshal([]byte(content), &declared); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := NewSenderConfig(declared.Connection.Protocol, declared.Connection.Address)
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration back out as YAML.
func Save(filePath string, cfg *SenderConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
