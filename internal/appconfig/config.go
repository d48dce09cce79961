// Package appconfig loads, validates, and hot-reloads the App Configuration.
// Environment overlay is applied via godotenv; the file format is YAML,
// parsed with gopkg.in/yaml.v3, and changes are watched with
// github.com/fsnotify/fsnotify, publishing ConfigChanged on write.
package appconfig

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/corevox/noia/internal/coreerr"
)

// AgentConfig is immutable for the lifetime of a session.
type AgentConfig struct {
	Name                 string   `yaml:"name"`
	Instructions         string   `yaml:"instructions"`
	Temperature          *float64 `yaml:"temperature"`
	WakeWordModelID      string   `yaml:"wake_word_model_id"`
	WakeWordModelPath    string   `yaml:"wake_word_model_path"`
	WakeWordThreshold    float64  `yaml:"wake_word_threshold"`
	WakeWordTriggerLevel int      `yaml:"wake_word_trigger_level"`
	Voice                string   `yaml:"voice"`
	EnabledTools         []string `yaml:"enabled_tools"`
	Disabled             bool     `yaml:"disabled"`
}

// AppConfig is the root configuration document.
type AppConfig struct {
	RemoteAPIKey                         string        `yaml:"remote_api_key"`
	RemoteModel                          string        `yaml:"remote_model"`
	GlobalInstructions                   string        `yaml:"global_instructions"`
	SessionTimeoutMinutes                int           `yaml:"session_timeout_minutes"`
	ConversationInactivityTimeoutSeconds int           `yaml:"conversation_inactivity_timeout_seconds"`
	MemoryCap                            int           `yaml:"memory_cap"`
	StartupVolume                        int           `yaml:"startup_volume"`
	WakeWordSilenceAmplitudeThreshold    int           `yaml:"wake_word_silence_amplitude_threshold"`
	Agents                               []AgentConfig `yaml:"agents"`
}

// Load reads and validates the App Configuration at path. A .env file in the
// working directory (if present) is loaded first and may supply RemoteAPIKey
// via NOIA_REMOTE_API_KEY, overriding the YAML value.
func Load(path string) (*AppConfig, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, coreerr.Configuration("appconfig.Load", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, coreerr.Configuration("appconfig.Load", err)
	}

	if key := os.Getenv("NOIA_REMOTE_API_KEY"); key != "" {
		cfg.RemoteAPIKey = key
	}

	if err := cfg.Validate(); err != nil {
		return nil, coreerr.Configuration("appconfig.Load", err)
	}
	return &cfg, nil
}

// Validate checks the invariants downstream components rely on: non-empty
// API key and model, agent wake-word thresholds/trigger-levels within
// range, unique agent names.
func (c *AppConfig) Validate() error {
	if c.RemoteAPIKey == "" {
		return fmt.Errorf("remote_api_key is required")
	}
	if c.RemoteModel == "" {
		return fmt.Errorf("remote_model is required")
	}
	if c.SessionTimeoutMinutes <= 0 {
		return fmt.Errorf("session_timeout_minutes must be positive")
	}
	if c.ConversationInactivityTimeoutSeconds <= 0 {
		return fmt.Errorf("conversation_inactivity_timeout_seconds must be positive")
	}
	if c.StartupVolume < 0 || c.StartupVolume > 10 {
		return fmt.Errorf("startup_volume must be in [0,10]")
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if seen[a.Name] {
			return fmt.Errorf("duplicate agent name %q", a.Name)
		}
		seen[a.Name] = true
		if a.WakeWordThreshold < 0.1 || a.WakeWordThreshold > 0.9 {
			return fmt.Errorf("agent %q: wake_word_threshold must be in [0.1,0.9]", a.Name)
		}
		if a.WakeWordTriggerLevel < 1 || a.WakeWordTriggerLevel > 10 {
			return fmt.Errorf("agent %q: wake_word_trigger_level must be in [1,10]", a.Name)
		}
	}
	return nil
}

// Equal reports whether two configurations are semantically identical,
// used to suppress spurious ConfigChanged events on no-op file touches.
func (c *AppConfig) Equal(other *AppConfig) bool {
	if other == nil {
		return false
	}
	a, errA := yaml.Marshal(c)
	b, errB := yaml.Marshal(other)
	if errA != nil || errB != nil {
		return false
	}
	return string(a) == string(b)
}
