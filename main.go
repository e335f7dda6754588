/*
Loads a mesh through the engine, generates its LOD levels, builds its edge
lists and runs one software skinning pass, then logs what it found.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spaghettifunk/anima-mesh/engine"
	"github.com/spaghettifunk/anima-mesh/engine/config"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/lod"
)

func parseLods(s string) ([]float32, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var values []float32
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("LOD value %q: %w", part, err)
		}
		values = append(values, float32(v))
	}
	return values, nil
}

func main() {
	configPath := flag.String("config", "", "path of the TOML configuration file")
	meshName := flag.String("mesh", "", "mesh to load, relative to the asset directory")
	lods := flag.String("lods", "", "comma separated LOD values to generate, e.g. 10,25,50")
	reduction := flag.Float64("reduction", 0.25, "proportion of vertices removed per LOD level")
	flag.Parse()

	if *meshName == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			core.LogFatal(err.Error())
		}
	}
	lodValues, err := parseLods(*lods)
	if err != nil {
		core.LogFatal(err.Error())
	}

	e, err := engine.New(cfg)
	if err != nil {
		core.LogFatal(err.Error())
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		core.LogWarn("Interrupted, shutting down.")
		_ = e.Shutdown()
		os.Exit(1)
	}()

	report, err := e.Inspect(*meshName, engine.InspectOptions{
		LodValues:    lodValues,
		LodMethod:    lod.ReductionProportional,
		LodReduction: float32(*reduction),
	})
	if err != nil {
		_ = e.Shutdown()
		core.LogFatal(err.Error())
	}

	core.LogInfo("mesh '%s': %d submeshes, %d vertices, bounds %v..%v, radius %.3f",
		report.Name, report.SubMeshes, report.Vertices, report.Bounds.Min, report.Bounds.Max, report.Radius)
	for i, l := range report.Lods {
		core.LogInfo("  LOD %d: value %.2f, %d triangles (manual=%t)", i, l.Value, l.Triangles, l.Manual)
	}
	core.LogInfo("  edges: %d in %d groups (closed=%t)", report.Edges, report.EdgeGroups, report.ClosedEdges)
	if report.Skeleton != "" {
		core.LogInfo("  skeleton '%s': %d bones, %d vertex sets skinned, drift %.6f",
			report.Skeleton, report.Bones, report.SkinnedSets, report.SkinningDrift)
	}
	core.LogInfo("  %d animations, %d poses", report.Animations, report.Poses)

	if err := e.Shutdown(); err != nil {
		core.LogFatal(err.Error())
	}
}
