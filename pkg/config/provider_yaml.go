package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	if y.config != nil {
		return y.config, nil
	}

	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config := &ConfigData{}
	if err := yaml.UnmarshalStrict(cfgFile, config); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", y.filename, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", y.filename, err)
	}

	y.config = config
	return config, nil
}

// GetAnalysisConfig returns the analysis section
func (y *YAMLProvider) GetAnalysisConfig() (*AnalysisData, error) {
	config, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.Analysis, nil
}

// GetServerConfig returns the server section
func (y *YAMLProvider) GetServerConfig() (*ServerData, error) {
	config, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.Server, nil
}

// GetArchiveConfig returns the archive section, or nil if none is configured
func (y *YAMLProvider) GetArchiveConfig() (*ArchiveData, error) {
	config, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return config.Archive, nil
}

// IsReadOnly returns true since YAML files are read-only in this implementation
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
