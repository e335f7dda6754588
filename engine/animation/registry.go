package animation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/anima-mesh/engine/core"
)

/**
 * @brief Holds the named skeletons meshes can bind to. Meshes resolve their
 * skeleton through it when the skeleton name is set.
 */
type SkeletonRegistry struct {
	mu        sync.RWMutex
	skeletons map[string]*Skeleton
}

func NewSkeletonRegistry() *SkeletonRegistry {
	return &SkeletonRegistry{skeletons: map[string]*Skeleton{}}
}

// Create builds an empty skeleton and registers it.
func (r *SkeletonRegistry) Create(name, group string) (*Skeleton, error) {
	s := NewSkeleton(name, group)
	if err := r.Register(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SkeletonRegistry) Register(s *Skeleton) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skeletons[s.Name()]; ok {
		return fmt.Errorf("skeleton '%s': %w", s.Name(), core.ErrDuplicateItem)
	}
	r.skeletons[s.Name()] = s
	core.LogDebug("skeleton '%s' registered with %d bones", s.Name(), s.NumBones())
	return nil
}

func (r *SkeletonRegistry) Get(name string) (*Skeleton, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skeletons[name]
	return s, ok
}

// LoadSkeleton returns the named skeleton, loading it if needed.
func (r *SkeletonRegistry) LoadSkeleton(name, group string) (*Skeleton, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("skeleton '%s' in group '%s': %w", name, group, core.ErrItemNotFound)
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SkeletonRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.skeletons[name]; ok {
		s.Unload()
		delete(r.skeletons, name)
	}
}

func (r *SkeletonRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.skeletons))
	for n := range r.skeletons {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Shutdown unloads and forgets every skeleton.
func (r *SkeletonRegistry) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.skeletons {
		s.Unload()
	}
	r.skeletons = map[string]*Skeleton{}
	return nil
}
