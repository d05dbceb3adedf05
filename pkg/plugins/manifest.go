package plugins

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// CurrentAPIVersion is the plugin API version implemented by Tool
const CurrentAPIVersion = "1.0.0"

// ParseManifest decodes a YAML manifest
func ParseManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return &manifest, nil
}

// LoadManifest loads and parses a plugin manifest from a file
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	return ParseManifest(data)
}

// SaveManifest saves a plugin manifest to a file
func SaveManifest(manifest *Manifest, path string) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// ValidateManifest performs basic validation on a plugin manifest
func ValidateManifest(manifest *Manifest) []ValidationError {
	var errors []ValidationError

	if manifest.ID == "" {
		errors = append(errors, ValidationError{Field: "id", Message: "Plugin ID is required"})
	}

	if manifest.Name == "" {
		errors = append(errors, ValidationError{Field: "name", Message: "Plugin name is required"})
	}

	if manifest.Version == "" {
		errors = append(errors, ValidationError{Field: "version", Message: "Version is required"})
	} else if _, err := semver.StrictNewVersion(trimV(manifest.Version)); err != nil {
		errors = append(errors, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("Invalid semver format: %s", manifest.Version),
		})
	}

	if manifest.APIVersion == "" {
		errors = append(errors, ValidationError{Field: "api_version", Message: "API version is required"})
	} else if _, err := semver.StrictNewVersion(trimV(manifest.APIVersion)); err != nil {
		errors = append(errors, ValidationError{
			Field:   "api_version",
			Message: fmt.Sprintf("Invalid semver format: %s", manifest.APIVersion),
		})
	}

	switch manifest.Type {
	case PluginTypeServer, PluginTypeAnalyzer, PluginTypeScript:
	case "":
		errors = append(errors, ValidationError{Field: "type", Message: "Plugin type is required"})
	default:
		errors = append(errors, ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("Invalid plugin type: %s", manifest.Type),
		})
	}

	return errors
}

// IsCompatibleAPIVersion reports whether a plugin built against pluginAPIVersion
// can run on a tool implementing toolAPIVersion. Only the major version must match.
func IsCompatibleAPIVersion(pluginAPIVersion, toolAPIVersion string) bool {
	pv, err := semver.NewVersion(pluginAPIVersion)
	if err != nil {
		return false
	}
	tv, err := semver.NewVersion(toolAPIVersion)
	if err != nil {
		return false
	}

	return pv.Major() == tv.Major()
}

// semver.StrictNewVersion rejects a leading "v", which manifests allow
func trimV(version string) string {
	if len(version) > 0 && version[0] == 'v' {
		return version[1:]
	}
	return version
}
