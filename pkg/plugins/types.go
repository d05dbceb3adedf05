package plugins

import (
	"errors"
	"fmt"
	"time"
)

// Plugin is the base interface all plugins must implement
type Plugin interface {
	Manifest() *Manifest
	Load() error
	Unload() error
}

// Factory constructs a plugin bound to a tool. Factories are registered by
// identifier and resolved at startup.
type Factory func(tool *Tool) (Plugin, error)

// Manifest describes plugin metadata
type Manifest struct {
	ID          string            `yaml:"id" json:"id"`                       // Unique ID (e.g., "toolhost.mcp.ServerPlugin")
	Name        string            `yaml:"name" json:"name"`                   // Display name
	Version     string            `yaml:"version" json:"version"`             // Semver
	APIVersion  string            `yaml:"api_version" json:"api_version"`     // Tool API version
	Description string            `yaml:"description" json:"description"`     // Short description
	Author      string            `yaml:"author" json:"author,omitempty"`     // Author name
	Type        PluginType        `yaml:"type" json:"type"`                   // Plugin type
	Metadata    map[string]string `yaml:"metadata" json:"metadata,omitempty"` // Additional metadata
}

// DisplayName returns the name shown on the host console
func (m *Manifest) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}
	return m.ID
}

// PluginType defines the category of plugin
type PluginType string

const (
	PluginTypeServer   PluginType = "server"
	PluginTypeAnalyzer PluginType = "analyzer"
	PluginTypeScript   PluginType = "script"
)

// PluginInfo contains runtime information about a registered plugin
type PluginInfo struct {
	Manifest  *Manifest `json:"manifest"`
	LoadedAt  time.Time `json:"loaded_at"`
	IsEnabled bool      `json:"enabled"`
	Source    string    `json:"source"` // factory identifier the plugin was built from
}

// ValidationError represents a manifest validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	// ErrFactoryNotFound is returned when no factory is registered under an identifier
	ErrFactoryNotFound = errors.New("plugin factory not found")
	// ErrPluginExists is returned when a plugin ID is already registered with a tool
	ErrPluginExists = errors.New("plugin already registered")
	// ErrPluginNotFound is returned when a tool has no plugin with the given ID
	ErrPluginNotFound = errors.New("plugin not found")
)
