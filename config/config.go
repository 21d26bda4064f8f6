package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the application configuration
type Config struct {
	APIBaseURL   string `json:"api_base_url"`
	UserEmail    string `json:"user_email"`
	Theme        string `json:"theme,omitempty"`
	PinnedChatID string `json:"pinned_chat_id,omitempty"`
}

// Manager handles configuration persistence
type Manager struct {
	configPath string
	config     *Config
}

// NewManager creates a new config manager
func NewManager() (*Manager, error) {
	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	// Create config directory if it doesn't exist
	configDir := filepath.Join(homeDir, ".polichat")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.json")

	m := &Manager{
		configPath: configPath,
		config:     &Config{},
	}

	// Load existing config if it exists
	if err := m.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return m, nil
}

// Load reads the configuration from disk
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, m.config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetAPIBaseURL returns the chat service base URL
func (m *Manager) GetAPIBaseURL() string {
	return m.config.APIBaseURL
}

// GetUserEmail returns the configured user email
func (m *Manager) GetUserEmail() string {
	return m.config.UserEmail
}

// GetTheme returns the configured theme name
func (m *Manager) GetTheme() string {
	if m.config.Theme == "" {
		return "default"
	}
	return m.config.Theme
}

// GetPinnedChatID returns the pinned chat, if any
func (m *Manager) GetPinnedChatID() string {
	return m.config.PinnedChatID
}

// SetDefaults updates the base URL and user email
func (m *Manager) SetDefaults(baseURL, userEmail string) error {
	m.config.APIBaseURL = baseURL
	m.config.UserEmail = userEmail
	return m.Save()
}

// SetPinnedChatID persists the pinned chat ("" clears the pin)
func (m *Manager) SetPinnedChatID(chatID string) error {
	m.config.PinnedChatID = chatID
	return m.Save()
}
