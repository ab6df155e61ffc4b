package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind identifies a provider slot. Factories are registered at startup
// against a Kind; no reflection or dynamic class loading is involved.
type Kind string

const (
	KindPrice     Kind = "price"
	KindExecution Kind = "execution"
	KindNews      Kind = "news"
	KindAnalytics Kind = "analytics"
)

// Factory builds a provider implementation from its config section.
type Factory func(settings map[string]any) (any, error)

type registryKey struct {
	kind Kind
	name string
}

// Registry maps (kind, implementation name) to factories, resolved once
// during app construction.
type Registry struct {
	mu        sync.RWMutex
	factories map[registryKey]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[registryKey]Factory)}
}

func (r *Registry) Register(kind Kind, name string, f Factory) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("provider registry: name is required")
	}
	if f == nil {
		return fmt.Errorf("provider registry: nil factory for %s/%s", kind, name)
	}
	key := registryKey{kind: kind, name: name}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("provider registry: %s/%s already registered", kind, name)
	}
	r.factories[key] = f
	return nil
}

func (r *Registry) build(kind Kind, name string, settings map[string]any) (any, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[registryKey{kind: kind, name: name}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider registry: no %s provider named %q (known: %s)", kind, name, strings.Join(r.known(kind), ", "))
	}
	return f(settings)
}

func (r *Registry) known(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for key := range r.factories {
		if key.kind == kind {
			names = append(names, key.name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) BuildPrice(name string, settings map[string]any) (PriceDataProvider, error) {
	v, err := r.build(KindPrice, name, settings)
	if err != nil {
		return nil, err
	}
	p, ok := v.(PriceDataProvider)
	if !ok {
		return nil, fmt.Errorf("provider registry: %q is not a price provider", name)
	}
	return p, nil
}

func (r *Registry) BuildExecution(name string, settings map[string]any) (ExecutionProvider, error) {
	v, err := r.build(KindExecution, name, settings)
	if err != nil {
		return nil, err
	}
	p, ok := v.(ExecutionProvider)
	if !ok {
		return nil, fmt.Errorf("provider registry: %q is not an execution provider", name)
	}
	return p, nil
}

func (r *Registry) BuildNews(name string, settings map[string]any) (NewsProvider, error) {
	v, err := r.build(KindNews, name, settings)
	if err != nil {
		return nil, err
	}
	p, ok := v.(NewsProvider)
	if !ok {
		return nil, fmt.Errorf("provider registry: %q is not a news provider", name)
	}
	return p, nil
}

func (r *Registry) BuildAnalytics(name string, settings map[string]any) (AnalyticsProvider, error) {
	v, err := r.build(KindAnalytics, name, settings)
	if err != nil {
		return nil, err
	}
	p, ok := v.(AnalyticsProvider)
	if !ok {
		return nil, fmt.Errorf("provider registry: %q is not an analytics provider", name)
	}
	return p, nil
}
