package plugins

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Options is a string key/value store of tool settings. Keys are
// dot-separated and namespaced by plugin, e.g. "mcp.addr".
type Options struct {
	values map[string]string
	mu     sync.RWMutex
}

// NewOptions creates an options store seeded with values
func NewOptions(values map[string]string) *Options {
	o := &Options{values: make(map[string]string, len(values))}
	for k, v := range values {
		o.values[k] = v
	}
	return o
}

// Set stores a value
func (o *Options) Set(key, value string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.values[key] = value
}

// Get returns the value for key, or def if unset or empty
func (o *Options) Get(key, def string) string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if v, ok := o.values[key]; ok && v != "" {
		return v
	}
	return def
}

// GetDuration parses the value for key as a duration, or returns def
func (o *Options) GetDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(o.Get(key, "")); err == nil {
		return d
	}
	return def
}

// GetInt parses the value for key as an int, or returns def
func (o *Options) GetInt(key string, def int) int {
	if i, err := strconv.Atoi(o.Get(key, "")); err == nil {
		return i
	}
	return def
}

// GetBool parses the value for key as a bool, or returns def
func (o *Options) GetBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(o.Get(key, "")); err == nil {
		return b
	}
	return def
}

// GetList splits a comma-separated value, dropping empty entries
func (o *Options) GetList(key string) []string {
	raw := o.Get(key, "")
	if raw == "" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Keys returns a snapshot of all keys
func (o *Options) Keys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	keys := make([]string, 0, len(o.values))
	for k := range o.values {
		keys = append(keys, k)
	}
	return keys
}
