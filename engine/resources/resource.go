package resources

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/anima-mesh/engine/core"
)

/** @brief The lifecycle state of a resource. */
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateUnloading
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateUnloading:
		return "unloading"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

/**
 * @brief The part of a resource that knows how to bring its data in and out of memory.
 * Types embedding Resource implement this and pass themselves to Load/Unload.
 */
type Impl interface {
	LoadImpl() error
	UnloadImpl()
	CalculateSize() uint64
}

/**
 * @brief Populates a manually created resource instead of reading it from a file.
 */
type ManualLoader interface {
	LoadResource(res Impl) error
}

/** @brief The loader function adapter, like http.HandlerFunc. */
type ManualLoaderFunc func(res Impl) error

func (f ManualLoaderFunc) LoadResource(res Impl) error {
	return f(res)
}

/**
 * @brief The common base of every loadable object: identity, group and
 * the load state machine.
 */
type Resource struct {
	name   string
	group  string
	handle uuid.UUID
	manual bool
	loader ManualLoader
	state  State
	size   uint64
}

/**
 * @brief Creates a resource in the unloaded state.
 *
 * @param name The unique name of the resource in its group.
 * @param group The resource group.
 * @param loader When not nil the resource is manual and loader populates it.
 */
func NewResource(name, group string, loader ManualLoader) Resource {
	return Resource{
		name:   name,
		group:  group,
		handle: uuid.New(),
		manual: loader != nil,
		loader: loader,
	}
}

func (r *Resource) Name() string {
	return r.name
}

func (r *Resource) Group() string {
	return r.group
}

// Handle returns the identifier assigned when the resource was created.
func (r *Resource) Handle() uuid.UUID {
	return r.handle
}

func (r *Resource) IsManual() bool {
	return r.manual
}

func (r *Resource) ManualLoader() ManualLoader {
	return r.loader
}

func (r *Resource) State() State {
	return r.state
}

func (r *Resource) IsLoaded() bool {
	return r.state == StateLoaded
}

// Size returns the memory footprint computed by the last successful load.
func (r *Resource) Size() uint64 {
	return r.size
}

/**
 * @brief Loads the resource if it is not loaded yet. Manual resources call their
 * ManualLoader, others impl.LoadImpl. A failed load returns the resource to the
 * unloaded state.
 */
func (r *Resource) Load(impl Impl) error {
	if r.state != StateUnloaded {
		return nil
	}
	r.state = StateLoading

	var err error
	if r.manual {
		err = r.loader.LoadResource(impl)
	} else {
		err = impl.LoadImpl()
	}
	if err != nil {
		r.state = StateUnloaded
		return fmt.Errorf("failed to load resource '%s' in group '%s': %w", r.name, r.group, err)
	}

	r.size = impl.CalculateSize()
	r.state = StateLoaded
	core.LogDebug("resource '%s' loaded (%d bytes)", r.name, r.size)
	return nil
}

// Unload frees the resource data. Unloading an unloaded resource does nothing.
func (r *Resource) Unload(impl Impl) {
	if r.state != StateLoaded {
		return
	}
	r.state = StateUnloading
	impl.UnloadImpl()
	r.size = 0
	r.state = StateUnloaded
	core.LogDebug("resource '%s' unloaded", r.name)
}

// Reload unloads then loads the resource again, if it was loaded.
func (r *Resource) Reload(impl Impl) error {
	if r.state != StateLoaded {
		return nil
	}
	r.Unload(impl)
	return r.Load(impl)
}

// Touch makes sure the resource is loaded before use.
func (r *Resource) Touch(impl Impl) error {
	return r.Load(impl)
}
