package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Platform is a configured source platform.
type Platform struct {
	ID     uuid.UUID
	Config *Config
}

// Name returns the platform name as stored.
func (p *Platform) Name() string { return p.Config.Name() }

// Resolver looks up a platform by case-insensitive name. Implementations
// return an error wrapping ErrNotFound when nothing matches.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*Platform, error)
}

// Registry is an in-memory Resolver. It backs tests and CLI runs that read
// the platform document directly instead of the platforms table.
type Registry struct {
	mu        sync.RWMutex
	platforms map[string]*Platform
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{platforms: make(map[string]*Platform)}
}

// RegistryFromDocument builds a registry holding every platform in doc.
// Platform ids are derived from the name so repeated loads agree.
func RegistryFromDocument(doc Document, defaultBatchSize int) (*Registry, error) {
	configs, err := doc.Configs(defaultBatchSize)
	if err != nil {
		return nil, err
	}

	r := NewRegistry()
	for _, cfg := range configs {
		if err := r.Register(&Platform{ID: NameID(cfg.Name()), Config: cfg}); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NameID returns the stable id used for a platform that has no stored id.
func NameID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("platform:"+normalize(name)))
}

// Register adds a platform. Names are unique ignoring case.
func (r *Registry) Register(p *Platform) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalize(p.Name())
	if existing, ok := r.platforms[key]; ok {
		return fmt.Errorf("platform already registered: %s (as %s)", p.Name(), existing.Name())
	}
	r.platforms[key] = p
	return nil
}

// Resolve implements Resolver.
func (r *Registry) Resolve(_ context.Context, name string) (*Platform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.platforms[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// All returns every registered platform sorted by name.
func (r *Registry) All() []*Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Platform, 0, len(r.platforms))
	for _, p := range r.platforms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registered platforms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.platforms)
}
