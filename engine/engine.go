package engine

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-mesh/engine/config"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"github.com/spaghettifunk/anima-mesh/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine has released every system
	EngineStageShutdown
)

type Engine struct {
	config        *config.Config
	currentStage  Stage
	systemManager *systems.SystemManager
	clock         *core.Clock
	shutdownOnce  sync.Once
	shutdownErr   error
}

/**
 * @brief Creates the engine and every system from the configuration. A nil
 * configuration uses config.Default().
 */
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	core.SetLogLevel(cfg.Level())

	e := &Engine{
		config:       cfg,
		currentStage: EngineStageInitializing,
		clock:        core.NewClock(),
	}
	e.clock.Start()

	sm, err := systems.NewSystemManager(cfg, hardware.NewDefaultManager())
	if err != nil {
		core.LogError(err.Error())
		return nil, fmt.Errorf("creating systems: %w", err)
	}
	e.systemManager = sm
	e.currentStage = EngineStageInitialized

	e.clock.Update()
	core.LogInfo("Engine initialized in %.3fms.", e.clock.ElapsedMS())
	return e, nil
}

func (e *Engine) Systems() *systems.SystemManager {
	return e.systemManager
}

func (e *Engine) Config() *config.Config {
	return e.config
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

// Shutdown releases every system. Later calls return the first result.
func (e *Engine) Shutdown() error {
	e.shutdownOnce.Do(func() {
		e.currentStage = EngineStageShuttingDown
		e.shutdownErr = e.systemManager.Shutdown()
		e.currentStage = EngineStageShutdown
		core.LogInfo("Engine shut down.")
	})
	return e.shutdownErr
}
