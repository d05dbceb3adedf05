package plugins

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/platinummonkey/toolhost/pkg/observability"
	"github.com/platinummonkey/toolhost/pkg/program"
	"github.com/sirupsen/logrus"
)

// Tool is the host's plugin-management object. Plugins are constructed
// against a Tool and registered with AddPlugin.
type Tool struct {
	name    string
	options *Options
	program *program.Program
	metrics *observability.Metrics
	plugins map[string]*registration
	order   []string
	mu      sync.RWMutex
	log     *logrus.Logger
}

type registration struct {
	plugin Plugin
	info   PluginInfo
	// pending reserves the ID while Load runs outside the lock
	pending bool
}

// NewTool creates a new plugin tool
func NewTool(name string, log *logrus.Logger) *Tool {
	if log == nil {
		log = logrus.New()
	}

	return &Tool{
		name:    name,
		options: NewOptions(nil),
		plugins: make(map[string]*registration),
		log:     log,
	}
}

// Name returns the tool name
func (t *Tool) Name() string {
	return t.name
}

// Options returns the tool options plugins read their settings from
func (t *Tool) Options() *Options {
	return t.options
}

// Logger returns the tool logger
func (t *Tool) Logger() *logrus.Logger {
	return t.log
}

// SetProgram sets the program plugins operate on
func (t *Tool) SetProgram(p *program.Program) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.program = p
}

// CurrentProgram returns the program plugins operate on, or nil
func (t *Tool) CurrentProgram() *program.Program {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.program
}

// SetMetrics shares the host's metrics with plugins
func (t *Tool) SetMetrics(m *observability.Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// Metrics returns the host's metrics, or nil when the host runs without them
func (t *Tool) Metrics() *observability.Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.metrics
}

// AddPlugin validates, loads and registers a plugin
func (t *Tool) AddPlugin(plugin Plugin) error {
	return t.addPlugin(plugin, "")
}

// AddPluginFrom registers a plugin and records the factory identifier it came from
func (t *Tool) AddPluginFrom(plugin Plugin, source string) error {
	return t.addPlugin(plugin, source)
}

func (t *Tool) addPlugin(plugin Plugin, source string) error {
	if plugin == nil {
		return fmt.Errorf("cannot register nil plugin")
	}

	manifest := plugin.Manifest()
	if manifest == nil {
		return fmt.Errorf("plugin has nil manifest")
	}

	if validationErrors := ValidateManifest(manifest); len(validationErrors) > 0 {
		msgs := make([]string, 0, len(validationErrors))
		for _, ve := range validationErrors {
			msgs = append(msgs, ve.Error())
		}
		return fmt.Errorf("manifest validation failed: %s", strings.Join(msgs, "; "))
	}

	if !IsCompatibleAPIVersion(manifest.APIVersion, CurrentAPIVersion) {
		return fmt.Errorf("incompatible API version: plugin requires %s, tool is %s",
			manifest.APIVersion, CurrentAPIVersion)
	}

	if source == "" {
		source = manifest.ID
	}
	reg := &registration{plugin: plugin, pending: true}

	t.mu.Lock()
	if _, exists := t.plugins[manifest.ID]; exists {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPluginExists, manifest.ID)
	}
	t.plugins[manifest.ID] = reg
	t.mu.Unlock()

	// Load runs unlocked so the plugin may call back into the tool
	if err := plugin.Load(); err != nil {
		t.mu.Lock()
		if t.plugins[manifest.ID] == reg {
			delete(t.plugins, manifest.ID)
		}
		t.mu.Unlock()
		return fmt.Errorf("plugin load failed: %w", err)
	}

	t.mu.Lock()
	if t.plugins[manifest.ID] != reg {
		// Disposed while loading
		t.mu.Unlock()
		if err := plugin.Unload(); err != nil {
			t.log.WithError(err).WithField("plugin", manifest.ID).Error("Failed to unload plugin")
		}
		return fmt.Errorf("%w: tool disposed while loading %s", ErrPluginNotFound, manifest.ID)
	}
	reg.pending = false
	reg.info = PluginInfo{
		Manifest:  manifest,
		LoadedAt:  time.Now(),
		IsEnabled: true,
		Source:    source,
	}
	t.order = append(t.order, manifest.ID)
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{
		"tool":    t.name,
		"plugin":  manifest.ID,
		"version": manifest.Version,
		"type":    manifest.Type,
	}).Infof("Added plugin: %s v%s", manifest.DisplayName(), manifest.Version)

	return nil
}

// RemovePlugin unloads and unregisters a plugin by ID. The plugin stays
// registered if Unload fails.
func (t *Tool) RemovePlugin(id string) error {
	t.mu.RLock()
	reg, exists := t.lookup(id)
	t.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}

	if err := reg.plugin.Unload(); err != nil {
		return fmt.Errorf("failed to unload plugin: %w", err)
	}

	t.mu.Lock()
	if t.plugins[id] == reg {
		delete(t.plugins, id)
		t.order = removeID(t.order, id)
	}
	t.mu.Unlock()

	t.log.WithField("plugin", id).Info("Removed plugin")
	return nil
}

// GetPlugin retrieves a registered plugin by ID
func (t *Tool) GetPlugin(id string) (Plugin, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	reg, exists := t.lookup(id)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}

	return reg.plugin, nil
}

// HasPlugin checks if a plugin is registered
func (t *Tool) HasPlugin(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, exists := t.lookup(id)
	return exists
}

// Plugins returns all registered plugins sorted by ID
func (t *Tool) Plugins() []Plugin {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := t.sortedIDs()
	result := make([]Plugin, 0, len(ids))
	for _, id := range ids {
		result = append(result, t.plugins[id].plugin)
	}

	return result
}

// Infos returns runtime information for all registered plugins sorted by ID
func (t *Tool) Infos() []PluginInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := t.sortedIDs()
	result := make([]PluginInfo, 0, len(ids))
	for _, id := range ids {
		result = append(result, t.plugins[id].info)
	}

	return result
}

// Count returns the number of registered plugins
func (t *Tool) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.order)
}

// lookup returns a committed registration; callers hold t.mu
func (t *Tool) lookup(id string) (*registration, bool) {
	reg, ok := t.plugins[id]
	if !ok || reg.pending {
		return nil, false
	}
	return reg, true
}

// Dispose unloads every plugin in reverse registration order. All plugins
// are attempted; the first error is returned. Plugins are unloaded outside
// the tool lock so they may still query the tool while stopping.
func (t *Tool) Dispose() error {
	t.mu.Lock()
	order := t.order
	regs := t.plugins
	t.order = nil
	t.plugins = make(map[string]*registration)
	t.mu.Unlock()

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		if err := regs[id].plugin.Unload(); err != nil {
			t.log.WithError(err).WithField("plugin", id).Error("Failed to unload plugin")
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to unload %s: %w", id, err)
			}
		}
	}

	t.log.WithField("tool", t.name).Info("Tool disposed")
	return firstErr
}

func (t *Tool) sortedIDs() []string {
	ids := make([]string, 0, len(t.order))
	for id, reg := range t.plugins {
		if !reg.pending {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
