package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Pipeline)
)

// Register adds a pipeline to the global registry. It is called from
// pipeline package init() functions and panics on empty or duplicate
// names, which would mean two packages claim the same URL slot.
func Register(p Pipeline) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := p.Name()
	if name == "" {
		panic("pipeline: Register called with empty name")
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("pipeline: Register called twice for %q", name))
	}
	registry[name] = p
}

// Lookup returns the named pipeline, or nil when unknown.
func Lookup(name string) Pipeline {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// Names returns the registered pipeline names in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns the registered pipelines in sorted name order.
func All() []Pipeline {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Pipeline, 0, len(names))
	for _, name := range names {
		out = append(out, registry[name])
	}
	return out
}

// Reset removes all registered pipelines. Useful for testing.
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Pipeline)
}

// InitAll initializes every registered pipeline with the shared env,
// namespacing the logger per pipeline.
func InitAll(ctx context.Context, env Env) error {
	for _, p := range All() {
		penv := env
		if env.Logger != nil {
			penv.Logger = env.Logger.With("pipeline", p.Name())
		}
		if err := p.Init(ctx, penv); err != nil {
			return fmt.Errorf("init pipeline %s: %w", p.Name(), err)
		}
	}
	return nil
}
