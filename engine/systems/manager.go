package systems

import (
	"errors"
	"runtime"

	"github.com/spaghettifunk/anima-mesh/engine/animation"
	"github.com/spaghettifunk/anima-mesh/engine/assets"
	"github.com/spaghettifunk/anima-mesh/engine/config"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
)

type SystemManager struct {
	buffers          hardware.Manager
	skeletonRegistry *animation.SkeletonRegistry
	jobSystem        *JobSystem
	assetManager     *assets.AssetManager
	meshSystem       *MeshSystem
}

/**
 * @brief Creates every system in dependency order: buffers, skeletons, jobs, assets
 * and finally meshes. The asset manager is only started when the configuration
 * names an asset directory.
 */
func NewSystemManager(cfg *config.Config, buffers hardware.Manager) (*SystemManager, error) {
	if buffers == nil {
		buffers = hardware.NewDefaultManager()
	}
	sm := &SystemManager{
		buffers:          buffers,
		skeletonRegistry: animation.NewSkeletonRegistry(),
	}

	js, err := NewJobSystem(runtime.NumCPU(), 0)
	if err != nil {
		return nil, err
	}
	sm.jobSystem = js

	var source AssetSource
	if cfg.Assets.BasePath != "" {
		am, err := assets.NewAssetManager()
		if err != nil {
			return nil, errors.Join(err, sm.Shutdown())
		}
		if err := am.Initialize(cfg.Assets.BasePath); err != nil {
			return nil, errors.Join(err, am.Close(), sm.Shutdown())
		}
		sm.assetManager = am
		source = am
	}

	ms, err := NewMeshSystem(cfg, buffers, sm.skeletonRegistry, source, assets.MeshSerializers(sm.skeletonRegistry), js)
	if err != nil {
		return nil, errors.Join(err, sm.Shutdown())
	}
	sm.meshSystem = ms
	return sm, nil
}

func (sm *SystemManager) Buffers() hardware.Manager {
	return sm.buffers
}

func (sm *SystemManager) Skeletons() *animation.SkeletonRegistry {
	return sm.skeletonRegistry
}

func (sm *SystemManager) Jobs() *JobSystem {
	return sm.jobSystem
}

// Assets returns the asset manager, or nil when no asset directory is configured.
func (sm *SystemManager) Assets() *assets.AssetManager {
	return sm.assetManager
}

func (sm *SystemManager) Meshes() *MeshSystem {
	return sm.meshSystem
}

// Shutdown tears the systems down in reverse creation order.
func (sm *SystemManager) Shutdown() error {
	if sm.meshSystem != nil {
		if err := sm.meshSystem.Shutdown(); err != nil {
			return err
		}
	}
	if sm.assetManager != nil {
		if err := sm.assetManager.Close(); err != nil {
			return err
		}
	}
	if sm.jobSystem != nil {
		if err := sm.jobSystem.Shutdown(); err != nil {
			return err
		}
	}
	return sm.skeletonRegistry.Shutdown()
}
