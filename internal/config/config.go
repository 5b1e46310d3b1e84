// Package config handles CodeLamp configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/codelamp/config.yaml, /etc/codelamp/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "codelamp", "config.yaml"))
	}

	paths = append(paths, "/etc/codelamp/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all CodeLamp configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	History   HistoryConfig   `yaml:"history"`
	Loop      LoopConfig      `yaml:"loop"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the bridge server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// GeminiConfig defines Gemini backend settings. The API key itself lives in
// the secret store, not the config file.
type GeminiConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"` // Override for testing; empty = production endpoint
}

// WorkspaceConfig defines the workspace root for file tools.
type WorkspaceConfig struct {
	// Path is the root directory file tool paths are resolved against.
	// If empty, relative paths resolve against the process working directory.
	Path string `yaml:"path"`
}

// HistoryConfig defines conversation archive settings.
type HistoryConfig struct {
	// MaxConversations caps the archive; the oldest entry is evicted on overflow.
	MaxConversations int `yaml:"max_conversations"`
}

// LoopConfig defines generation loop settings.
type LoopConfig struct {
	// MaxToolRounds bounds tool-call rounds per turn before the loop fails.
	MaxToolRounds int `yaml:"max_tool_rounds"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	dataDir := "codelamp-data"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".local", "share", "codelamp")
	}

	return &Config{
		Listen:  ListenConfig{Port: 8090},
		Gemini:  GeminiConfig{Model: "gemini-2.0-flash"},
		History: HistoryConfig{MaxConversations: 20},
		Loop:    LoopConfig{MaxToolRounds: 8},
		DataDir: dataDir,
	}
}
