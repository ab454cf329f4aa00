// Package secrets implements the SecretsRegistry: a store of named secret
// values, static or dynamically produced, that can be substring-matched
// against tool output, masked for display, and exported as environment
// variables for tool execution.
package secrets

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Source supplies a secret's current value on demand. Implementations may
// call out to a vault, a subprocess, or any other provider — the registry
// never caches the returned value beyond a single Find/Mask/EnvFor call.
type Source interface {
	// Value returns the current secret value, or an error if it cannot be
	// retrieved right now.
	Value(ctx context.Context) (string, error)
}

// StaticSource is a Source that always returns the same fixed value.
type StaticSource string

func (s StaticSource) Value(context.Context) (string, error) {
	return string(s), nil
}

// FuncSource adapts a plain function to the Source interface, for
// dynamic/provider-backed secrets.
type FuncSource func(ctx context.Context) (string, error)

func (f FuncSource) Value(ctx context.Context) (string, error) {
	return f(ctx)
}

// entry pairs a secret's name with its value source and the environment
// variable name tools should see it under.
type entry struct {
	name   string
	envVar string
	source Source
}

// Registry holds the set of secrets known to a conversation. Safe for
// concurrent use.
type Registry struct {
	mu           sync.RWMutex
	entries      map[string]entry
	cipherKey    [32]byte
	hasCipherKey bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Update adds or replaces a secret. envVar defaults to name (uppercased)
// when empty.
func (r *Registry) Update(name, envVar string, source Source) {
	if envVar == "" {
		envVar = strings.ToUpper(name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{name: name, envVar: envVar, source: source}
}

// Remove deletes a secret by name. Removing an unknown name is a no-op.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// Names returns the registered secret names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for name := range r.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FindReferenced returns the names of secrets whose current value occurs
// as a substring of text. Used before dispatching tool output so the
// conversation can know which secrets require masking in that output.
func (r *Registry) FindReferenced(ctx context.Context, text string) ([]string, error) {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var found []string
	for _, e := range entries {
		val, err := e.source.Value(ctx)
		if err != nil {
			return nil, err
		}
		if val != "" && strings.Contains(text, val) {
			found = append(found, e.name)
		}
	}
	sort.Strings(found)
	return found, nil
}

// EnvFor resolves the current values of every registered secret into an
// environment map keyed by each secret's env var name, for passing to a
// tool execution subprocess.
func (r *Registry) EnvFor(ctx context.Context) (map[string]string, error) {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		val, err := e.source.Value(ctx)
		if err != nil {
			return nil, err
		}
		out[e.envVar] = val
	}
	return out, nil
}

// Mask replaces every occurrence of every registered secret's live value
// in text with "<secret:NAME>". Used before persisting or displaying
// event content that may contain raw secret values.
func (r *Registry) Mask(ctx context.Context, text string) (string, error) {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	masked := text
	for _, e := range entries {
		val, err := e.source.Value(ctx)
		if err != nil {
			return "", err
		}
		if val == "" {
			continue
		}
		masked = strings.ReplaceAll(masked, val, "<secret:"+e.name+">")
	}
	return masked, nil
}
