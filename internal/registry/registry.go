// Package registry implements the shared plugin registration mechanism used
// by the extension points: content parsers, embedding providers, storage
// backends, and MCP tools.
//
// Plugins self-describe through an Entry carrying a static key and a
// constructor. The key lives on the registration entry rather than on a
// constructed instance, so the registry can index plugins without knowing
// their runtime configuration. Plugin packages collect their entries in a
// package-level list (appended from each plugin file's init function) and
// hand them to Discover at startup; adding a plugin is dropping in one file,
// with no central registration edit.
//
// A registry is populated once at process start and treated as read-only
// afterwards.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// ErrNotFound is returned by Get when no plugin is registered under a key.
// Callers can match it with errors.Is.
var ErrNotFound = errors.New("not registered")

// Entry describes one registered plugin implementation.
type Entry[T any] struct {
	// Key uniquely identifies the plugin within its capability class
	// (e.g. "html" for a parser, "pgvector" for a backend).
	Key string

	// New constructs an operational instance from the plugin's section of
	// the configuration file. Construction may fail; key lookup never
	// depends on it.
	New func(cfg map[string]any, logger *slog.Logger) (T, error)
}

// Registry indexes plugin entries of one capability class by key.
type Registry[T any] struct {
	label   string
	logger  *slog.Logger
	entries map[string]Entry[T]
}

// New creates an empty registry. The label names the capability class in
// log lines and error messages ("parser", "backend", "tool").
func New[T any](label string, logger *slog.Logger) *Registry[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry[T]{
		label:   label,
		logger:  logger,
		entries: make(map[string]Entry[T]),
	}
}

// Register adds a single entry. A duplicate key overwrites the earlier
// registration; the collision is logged loudly because it almost always
// indicates two plugins claiming the same identifier.
func (r *Registry[T]) Register(e Entry[T]) {
	if _, exists := r.entries[e.Key]; exists {
		r.logger.Warn("duplicate plugin key, last registration wins",
			"kind", r.label, "key", e.Key)
	}
	r.entries[e.Key] = e
	r.logger.Info("registered plugin", "kind", r.label, "key", e.Key)
}

// Discover registers a batch of entries and logs the final count. Entries
// typically come from a plugin package's Builtins list.
func (r *Registry[T]) Discover(entries ...Entry[T]) {
	for _, e := range entries {
		r.Register(e)
	}
	r.logger.Info("plugin discovery complete",
		"kind", r.label, "count", len(r.entries), "keys", r.Keys())
}

// Get returns the entry registered under key. The not-found error lists the
// available keys so an unknown key in configuration fails with an actionable
// message.
func (r *Registry[T]) Get(key string) (Entry[T], error) {
	e, ok := r.entries[key]
	if !ok {
		return Entry[T]{}, fmt.Errorf("unknown %s %q (available: %s): %w",
			r.label, key, strings.Join(r.Keys(), ", "), ErrNotFound)
	}
	return e, nil
}

// Keys returns all registered keys in sorted order.
func (r *Registry[T]) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Build looks up key and constructs an operational instance with the given
// plugin configuration.
func (r *Registry[T]) Build(key string, cfg map[string]any, logger *slog.Logger) (T, error) {
	e, err := r.Get(key)
	if err != nil {
		var zero T
		return zero, err
	}
	inst, err := e.New(cfg, logger)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("constructing %s %q: %w", r.label, key, err)
	}
	return inst, nil
}
