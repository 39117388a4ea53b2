package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"mcphub/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/mcphub"
	configFileName = "config.yaml"
)

// GetDefaultConfigPath returns the per-user configuration directory.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// LoadConfig loads configuration from the specified directory. The
// directory should contain config.yaml; a missing file yields defaults.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config at %s: %w", configFilePath, err)
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s (%d services)", configFilePath, len(config.Services))
	return config, nil
}

// Validate checks service declarations and normalizes derived names.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Services))
	for i := range c.Services {
		svc := &c.Services[i]
		if svc.Transport == "" {
			svc.Transport = TransportSSE
		}
		switch svc.Transport {
		case TransportSSE, TransportStreamableHTTP:
			if svc.URL == "" {
				return fmt.Errorf("service %q: url is required for %s transport", svc.Name, svc.Transport)
			}
		case TransportStdio:
			if svc.Command == "" {
				return fmt.Errorf("service %q: command is required for stdio transport", svc.Name)
			}
		default:
			return fmt.Errorf("service %q: unknown transport %q", svc.Name, svc.Transport)
		}
		if svc.Name == "" {
			svc.Name = deriveServiceName(*svc)
		}
		// Underscores would be ambiguous inside qualified tool names
		// (service_tool), so they are not allowed in service names.
		if strings.Contains(svc.Name, "_") {
			return fmt.Errorf("service name %q must not contain %q", svc.Name, "_")
		}
		if seen[svc.Name] {
			return fmt.Errorf("duplicate service name %q", svc.Name)
		}
		seen[svc.Name] = true
	}
	return nil
}

// deriveServiceName produces a stable identity for services declared
// without one: the endpoint host for network transports, the command
// base name for stdio. Underscores are mapped to dashes to keep the name
// valid for qualified tool naming.
func deriveServiceName(svc ServiceConfig) string {
	name := ""
	if svc.URL != "" {
		name = svc.URL
		if u, err := url.Parse(svc.URL); err == nil && u.Host != "" {
			name = u.Host
		}
	} else {
		name = filepath.Base(svc.Command)
	}
	return strings.ReplaceAll(name, "_", "-")
}
