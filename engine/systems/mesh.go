package systems

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spaghettifunk/anima-mesh/engine/animation"
	"github.com/spaghettifunk/anima-mesh/engine/config"
	"github.com/spaghettifunk/anima-mesh/engine/containers"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/mesh"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"github.com/spaghettifunk/anima-mesh/engine/resources"
)

/** @brief Where mesh files come from. Implemented by assets.AssetManager. */
type AssetSource interface {
	Open(name string) (io.ReadCloser, error)
	Resolve(name string) (string, error)
	OnChange(fn func(path string))
}

type MeshReference struct {
	ReferenceCount uint64
	Mesh           *mesh.Mesh
	/** @brief Unload and forget the mesh once the last reference is released. */
	AutoRelease bool

	// serializes Load/Unload of this mesh without holding the system lock
	loadMu sync.Mutex
}

type MeshSystemConfig struct {
	MaxMeshCount uint32
}

/** @brief One attempt to reload a mesh from its source. */
type ReloadEvent struct {
	Name string
	At   time.Time
	Err  error
}

// reloadHistorySize is how many reload attempts ReloadHistory remembers.
const reloadHistorySize = 32

/**
 * @brief Owns every mesh of the engine, keyed by name. Meshes are created with the
 * buffer policies, LOD strategy and shadow settings of the configuration and
 * reloaded when their file changes.
 */
type MeshSystem struct {
	Config *MeshSystemConfig

	mutex            sync.RWMutex
	registeredMeshes map[string]*MeshReference
	closed           bool

	deps      mesh.Dependencies
	autoEdges bool
	assets    AssetSource
	jobSystem *JobSystem

	historyMu sync.Mutex
	reloads   *containers.RingQueue[ReloadEvent]
}

/**
 * @brief Creates the mesh system.
 *
 * @param cfg The engine configuration.
 * @param buffers The buffer manager every mesh allocates through.
 * @param skeletons The registry skeletons are resolved from.
 * @param source Where mesh files are opened; nil reads them from the file system.
 * @param serializers The importers by file extension.
 * @param js Optional job system used by Preload.
 */
func NewMeshSystem(cfg *config.Config, buffers hardware.Manager, skeletons *animation.SkeletonRegistry, source AssetSource, serializers map[string]mesh.Serializer, js *JobSystem) (*MeshSystem, error) {
	if cfg.Mesh.MaxMeshCount == 0 {
		err := fmt.Errorf("func NewMeshSystem - config.MaxMeshCount must be > 0: %w", core.ErrInvalidParams)
		core.LogError(err.Error())
		return nil, err
	}
	vertexUsage, err := cfg.VertexUsage()
	if err != nil {
		return nil, err
	}
	indexUsage, err := cfg.IndexUsage()
	if err != nil {
		return nil, err
	}
	strategy, err := cfg.LodStrategy()
	if err != nil {
		return nil, err
	}

	ms := &MeshSystem{
		Config:           &MeshSystemConfig{MaxMeshCount: cfg.Mesh.MaxMeshCount},
		registeredMeshes: make(map[string]*MeshReference),
		autoEdges:        cfg.Mesh.AutoBuildEdgeLists,
		assets:           source,
		jobSystem:        js,
		reloads:          containers.NewRingQueue[ReloadEvent](reloadHistorySize),
	}
	ms.deps = mesh.Dependencies{
		Buffers:                 buffers,
		Skeletons:               skeletons,
		Meshes:                  ms,
		Lod:                     strategy,
		Serializers:             serializers,
		Open:                    ms.open,
		PrepareForShadowVolumes: cfg.Mesh.PrepareForShadowVolumes,
		VertexBufferPolicy:      &mesh.BufferPolicy{Usage: vertexUsage, Shadowed: cfg.Buffers.VertexShadow},
		IndexBufferPolicy:       &mesh.BufferPolicy{Usage: indexUsage, Shadowed: cfg.Buffers.IndexShadow},
	}
	if source != nil && cfg.Assets.Watch {
		source.OnChange(ms.onAssetChanged)
	}

	core.LogInfo("Mesh system initialized (max %d meshes, LOD strategy '%s').", cfg.Mesh.MaxMeshCount, strategy.Name())
	return ms, nil
}

func (ms *MeshSystem) open(name string) (io.ReadCloser, error) {
	if ms.assets != nil {
		return ms.assets.Open(name)
	}
	return os.Open(name)
}

// Dependencies returns what every mesh of this system is built with.
func (ms *MeshSystem) Dependencies() mesh.Dependencies {
	return ms.deps
}

// Create registers an unloaded mesh. It is kept until Shutdown.
func (ms *MeshSystem) Create(name, group string) (*mesh.Mesh, error) {
	ref, err := ms.register(name, func() *mesh.Mesh { return mesh.New(name, group, ms.deps) }, false)
	if err != nil {
		return nil, err
	}
	return ref.Mesh, nil
}

// CreateManual registers a mesh whose geometry is built by loader.
func (ms *MeshSystem) CreateManual(name, group string, loader resources.ManualLoader) (*mesh.Mesh, error) {
	ref, err := ms.register(name, func() *mesh.Mesh { return mesh.NewManual(name, group, loader, ms.deps) }, false)
	if err != nil {
		return nil, err
	}
	return ref.Mesh, nil
}

func (ms *MeshSystem) register(name string, build func() *mesh.Mesh, autoRelease bool) (*MeshReference, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	if ms.closed {
		return nil, fmt.Errorf("mesh system shut down: %w", core.ErrInvalidParams)
	}
	if _, ok := ms.registeredMeshes[name]; ok {
		return nil, fmt.Errorf("mesh '%s': %w", name, core.ErrDuplicateItem)
	}
	return ms.newReference(name, build, autoRelease)
}

// newReference must be called with the lock held.
func (ms *MeshSystem) newReference(name string, build func() *mesh.Mesh, autoRelease bool) (*MeshReference, error) {
	if uint32(len(ms.registeredMeshes)) >= ms.Config.MaxMeshCount {
		err := fmt.Errorf("mesh system cannot hold more than %d meshes: %w", ms.Config.MaxMeshCount, core.ErrInvalidParams)
		core.LogError(err.Error())
		return nil, err
	}
	m := build()
	m.SetAutoBuildEdgeLists(ms.autoEdges)
	ref := &MeshReference{Mesh: m, AutoRelease: autoRelease}
	ms.registeredMeshes[name] = ref
	return ref, nil
}

/**
 * @brief Returns the named mesh, loading it if needed, and increments its reference
 * count. A mesh first created by Acquire is released automatically once its last
 * reference goes away.
 *
 * @param name The mesh file name, resolved through the asset source.
 * @param group The resource group.
 * @return The loaded mesh, or an error if it can't be registered or loaded.
 */
func (ms *MeshSystem) Acquire(name, group string) (*mesh.Mesh, error) {
	return ms.acquire(name, group, true)
}

func (ms *MeshSystem) acquire(name, group string, autoRelease bool) (*mesh.Mesh, error) {
	ms.mutex.Lock()
	if ms.closed {
		ms.mutex.Unlock()
		return nil, fmt.Errorf("mesh system shut down: %w", core.ErrInvalidParams)
	}
	ref, ok := ms.registeredMeshes[name]
	if !ok {
		var err error
		ref, err = ms.newReference(name, func() *mesh.Mesh { return mesh.New(name, group, ms.deps) }, autoRelease)
		if err != nil {
			ms.mutex.Unlock()
			return nil, err
		}
	}
	ref.ReferenceCount++
	ms.mutex.Unlock()

	ref.loadMu.Lock()
	defer ref.loadMu.Unlock()
	if !ref.Mesh.IsLoaded() {
		if err := ref.Mesh.Load(); err != nil {
			core.LogError("Failed to load mesh '%s': %s", name, err)
			ms.dropReference(name, ref)
			return nil, err
		}
		core.LogDebug("Successfully loaded mesh '%s'.", name)
	}
	return ref.Mesh, nil
}

// dropReference undoes the increment of a failed acquire.
func (ms *MeshSystem) dropReference(name string, ref *MeshReference) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	if ref.ReferenceCount > 0 {
		ref.ReferenceCount--
	}
	if ref.ReferenceCount == 0 && ref.AutoRelease && ms.registeredMeshes[name] == ref {
		delete(ms.registeredMeshes, name)
	}
}

// LoadMesh resolves meshes referenced by others, e.g. manual LOD levels. They stay loaded until Shutdown.
func (ms *MeshSystem) LoadMesh(name, group string) (*mesh.Mesh, error) {
	return ms.acquire(name, group, false)
}

/**
 * @brief Decrements the reference count of a mesh. Auto released meshes are
 * unloaded and forgotten at zero.
 */
func (ms *MeshSystem) Release(name, group string) error {
	ms.mutex.Lock()
	ref, ok := ms.registeredMeshes[name]
	if !ok || ref.Mesh.Group() != group {
		ms.mutex.Unlock()
		core.LogWarn("Tried to release non-existent mesh: '%s'", name)
		return fmt.Errorf("mesh '%s' in group '%s': %w", name, group, core.ErrItemNotFound)
	}
	if ref.ReferenceCount == 0 {
		ms.mutex.Unlock()
		core.LogWarn("Tried to release mesh '%s' whose reference count was already 0.", name)
		return nil
	}
	ref.ReferenceCount--
	release := ref.ReferenceCount == 0 && ref.AutoRelease
	if release {
		delete(ms.registeredMeshes, name)
	}
	ms.mutex.Unlock()

	if release {
		ref.loadMu.Lock()
		ref.Mesh.Unload()
		ref.loadMu.Unlock()
		core.LogDebug("Released mesh '%s'. Mesh unloaded because reference count=0 and AutoRelease=true.", name)
	}
	return nil
}

func (ms *MeshSystem) Get(name string) (*mesh.Mesh, bool) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	ref, ok := ms.registeredMeshes[name]
	if !ok {
		return nil, false
	}
	return ref.Mesh, true
}

// ReferenceCount returns how many references the named mesh holds.
func (ms *MeshSystem) ReferenceCount(name string) uint64 {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	if ref, ok := ms.registeredMeshes[name]; ok {
		return ref.ReferenceCount
	}
	return 0
}

// Names returns the registered mesh names, sorted.
func (ms *MeshSystem) Names() []string {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	names := make([]string, 0, len(ms.registeredMeshes))
	for n := range ms.registeredMeshes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Reload reloads a loaded mesh from its source. Unloaded meshes are left alone.
func (ms *MeshSystem) Reload(name string) error {
	ms.mutex.RLock()
	ref, ok := ms.registeredMeshes[name]
	ms.mutex.RUnlock()
	if !ok {
		return fmt.Errorf("mesh '%s': %w", name, core.ErrItemNotFound)
	}

	ref.loadMu.Lock()
	defer ref.loadMu.Unlock()
	if !ref.Mesh.IsLoaded() {
		return nil
	}
	err := ref.Mesh.Reload()
	ms.historyMu.Lock()
	ms.reloads.Push(ReloadEvent{Name: name, At: time.Now(), Err: err})
	ms.historyMu.Unlock()
	if err != nil {
		return err
	}
	core.LogInfo("Reloaded mesh '%s'.", name)
	return nil
}

// ReloadHistory returns the most recent reload attempts, oldest first.
func (ms *MeshSystem) ReloadHistory() []ReloadEvent {
	ms.historyMu.Lock()
	defer ms.historyMu.Unlock()
	return ms.reloads.Items()
}

func (ms *MeshSystem) onAssetChanged(path string) {
	ms.mutex.RLock()
	if ms.closed {
		ms.mutex.RUnlock()
		return
	}
	var changed []string
	for name := range ms.registeredMeshes {
		resolved, err := ms.assets.Resolve(name)
		if err == nil && resolved == path {
			changed = append(changed, name)
		}
	}
	ms.mutex.RUnlock()

	for _, name := range changed {
		if err := ms.Reload(name); err != nil {
			core.LogError("Failed to reload mesh '%s' after '%s' changed: %s", name, path, err)
		}
	}
}

/**
 * @brief Acquires several meshes at once, loading them on the job system when one
 * was given. Every mesh that loaded keeps its reference even if others fail.
 *
 * @return The joined load errors.
 */
func (ms *MeshSystem) Preload(names []string, group string) error {
	if ms.jobSystem == nil {
		var errs []error
		for _, name := range names {
			if _, err := ms.Acquire(name, group); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, name := range names {
		wg.Add(1)
		err := ms.jobSystem.Submit(JobTask{
			Name: "load " + name,
			OnStart: func() error {
				_, err := ms.Acquire(name, group)
				return err
			},
			OnFailure: func(err error) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			},
			OnCompletionCallback: wg.Done,
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Shutdown unloads every mesh. The system can't be used afterwards.
func (ms *MeshSystem) Shutdown() error {
	ms.mutex.Lock()
	ms.closed = true
	refs := ms.registeredMeshes
	ms.registeredMeshes = make(map[string]*MeshReference)
	ms.mutex.Unlock()

	for _, ref := range refs {
		ref.loadMu.Lock()
		ref.Mesh.Unload()
		ref.loadMu.Unlock()
	}
	return nil
}
