package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrAzureConfigItemNotFound is returned when no item has the requested name.
var ErrAzureConfigItemNotFound = errors.New("config: azure config item not found")

// AzureConfigItem is one Azure OpenAI deployment the user can choose from.
type AzureConfigItem struct {
	Name           string `yaml:"name"`
	Endpoint       string `yaml:"endpoint"`
	DeploymentName string `yaml:"deployment_name"`
	APIVersion     string `yaml:"api_version"`
	ModelID        string `yaml:"model_id"`
	APIKeyEnvVar   string `yaml:"api_key_env_var"`
}

// APIKey reads the item's key from the environment variable it names.
func (i AzureConfigItem) APIKey() (string, error) {
	if i.APIKeyEnvVar == "" {
		return "", fmt.Errorf("azure config item %q: api_key_env_var is empty", i.Name)
	}
	key := os.Getenv(i.APIKeyEnvVar)
	if key == "" {
		return "", fmt.Errorf("azure config item %q: environment variable %s is not set", i.Name, i.APIKeyEnvVar)
	}
	return key, nil
}

// LoadAzureConfig reads the list of Azure config items. A missing file
// yields an empty list.
func LoadAzureConfig(path string) ([]AzureConfigItem, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config.LoadAzureConfig(%q): %w", path, err)
	}
	var items []AzureConfigItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("config.LoadAzureConfig(%q): %w", path, err)
	}
	for i, item := range items {
		if item.Name == "" {
			return nil, fmt.Errorf("config.LoadAzureConfig(%q): item %d has no name", path, i)
		}
	}
	return items, nil
}

// FindAzureConfigItem returns the item called name.
func FindAzureConfigItem(items []AzureConfigItem, name string) (AzureConfigItem, error) {
	for _, item := range items {
		if item.Name == name {
			return item, nil
		}
	}
	return AzureConfigItem{}, fmt.Errorf("%w: %q", ErrAzureConfigItemNotFound, name)
}

// AzureConfigItemNames lists item names in file order.
func AzureConfigItemNames(items []AzureConfigItem) []string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	return names
}
