package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	types "github.com/yungbote/rollup-backend/internal/domain/rollup"
)

// Registry resolves source types to mappers. It is constructed explicitly and
// handed to whoever needs it; there is no package-level instance.
type Registry struct {
	mu      sync.RWMutex
	mappers map[types.SourceType]Mapper
}

func NewRegistry() *Registry {
	return &Registry{mappers: make(map[types.SourceType]Mapper)}
}

// NewDefaultRegistry returns a registry holding every built-in source type.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	for _, spec := range BuiltinSpecs() {
		if err := r.RegisterSpec(spec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(m Mapper) error {
	if m == nil {
		return fmt.Errorf("nil mapper")
	}
	st := types.SourceType(strings.TrimSpace(string(m.SourceType())))
	if st == "" {
		return fmt.Errorf("mapper SourceType() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.mappers[st]; exists {
		return fmt.Errorf("mapper already registered for source_type=%s", st)
	}
	r.mappers[st] = m
	return nil
}

func (r *Registry) RegisterSpec(spec Spec) error {
	m, err := NewMapper(spec)
	if err != nil {
		return err
	}
	return r.Register(m)
}

// Resolve returns the mapper for sourceType. An unknown type is a configuration
// error wrapping ErrUnregisteredSourceType.
func (r *Registry) Resolve(sourceType string) (Mapper, error) {
	st := types.SourceType(strings.TrimSpace(sourceType))
	r.mu.RLock()
	m, ok := r.mappers[st]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnregisteredSourceType, sourceType)
	}
	return m, nil
}

func (r *Registry) Types() []types.SourceType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.SourceType, 0, len(r.mappers))
	for st := range r.mappers {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
