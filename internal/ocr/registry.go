package ocr

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultEngineName is used when no detector provider is configured.
const DefaultEngineName = "vision"

// Registry stores detector engines and resolves a default engine.
type Registry struct {
	engines       map[string]Engine
	defaultEngine string
}

func NewRegistry(defaultEngine string) *Registry {
	normalizedDefault := normalizeEngineName(defaultEngine)
	if normalizedDefault == "" {
		normalizedDefault = DefaultEngineName
	}

	return &Registry{
		engines:       make(map[string]Engine),
		defaultEngine: normalizedDefault,
	}
}

// Register adds one engine.
func (r *Registry) Register(engine Engine) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	if engine == nil {
		return fmt.Errorf("engine is nil")
	}
	name := normalizeEngineName(engine.Name())
	if name == "" {
		return fmt.Errorf("engine name is required")
	}
	r.engines[name] = engine
	return nil
}

// Engine resolves an engine by name. Empty names use the configured default engine.
func (r *Registry) Engine(name string) (Engine, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	if len(r.engines) == 0 {
		return nil, fmt.Errorf("no detector engines are registered")
	}

	resolvedName := normalizeEngineName(name)
	if resolvedName == "" {
		resolvedName = r.defaultEngine
	}
	engine, ok := r.engines[resolvedName]
	if ok {
		return engine, nil
	}

	return nil, fmt.Errorf("detector engine %q is not registered (available: %s)", resolvedName, strings.Join(r.EngineNames(), ", "))
}

func (r *Registry) DefaultEngine() string {
	if r == nil {
		return ""
	}
	return r.defaultEngine
}

func (r *Registry) EngineNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeEngineName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
