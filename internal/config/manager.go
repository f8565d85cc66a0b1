package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

// Preferences are the user's persistent defaults for new sessions.
type Preferences struct {
	EngineName  string   `json:"engine_name,omitempty"` // e.g. openai_v1
	PlanFile    string   `json:"plan_file,omitempty"`   // file name under the plans directory
	Model       string   `json:"model,omitempty"`       // default model_id
	Temperature *float64 `json:"temperature,omitempty"`
}

// PreferenceKeys are the keys accepted by Preferences.Set.
var PreferenceKeys = []string{"engine_name", "plan_file", "model", "temperature"}

// Set assigns one preference by key.
func (p *Preferences) Set(key, value string) error {
	switch key {
	case "engine_name":
		p.EngineName = value
	case "plan_file":
		p.PlanFile = value
	case "model":
		p.Model = value
	case "temperature":
		t, err := strconv.ParseFloat(value, 64)
		if err != nil || t < 0 || t > 2 {
			return fmt.Errorf("temperature must be a number between 0 and 2, got %q", value)
		}
		p.Temperature = &t
	default:
		return fmt.Errorf("unknown preference %q (known: %v)", key, PreferenceKeys)
	}
	return nil
}

// Manager handles loading and saving the preferences file.
type Manager struct {
	configDir string
}

// NewManager creates a manager for <UserConfigDir>/climb.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return NewManagerAt(filepath.Join(configDir, "climb")), nil
}

// NewManagerAt creates a manager rooted at dir.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Load reads the preferences from disk.
// If the file does not exist, it returns empty Preferences and no error.
func (m *Manager) Load() (*Preferences, error) {
	data, err := os.ReadFile(m.GetConfigPath())
	if os.IsNotExist(err) {
		return &Preferences{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}
	return &prefs, nil
}

// Save writes the preferences to disk with restricted permissions (0600).
func (m *Manager) Save(prefs *Preferences) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks if the preferences file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}

// IsPreferenceKey reports whether key can be passed to Preferences.Set.
func IsPreferenceKey(key string) bool { return slices.Contains(PreferenceKeys, key) }
