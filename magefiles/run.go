//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Runs the mesh tool on $MESH (default "sample.glb") from the assets directory.
func (Run) Info() error {
	mg.Deps(Build.Tool)
	mesh := os.Getenv("MESH")
	if mesh == "" {
		mesh = "sample.glb"
	}
	fmt.Println("Run mesh tool...")
	if _, err := executeCmd("bin/anima-mesh", withArgs("-config", "config.toml", "-mesh", mesh, "-lods", "10,25,50"), withStream()); err != nil {
		return err
	}
	return nil
}
