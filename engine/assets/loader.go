package assets

import (
	"github.com/spaghettifunk/anima-mesh/engine/animation"
	"github.com/spaghettifunk/anima-mesh/engine/assets/loaders"
	"github.com/spaghettifunk/anima-mesh/engine/mesh"
)

// MeshSerializers returns the mesh importers by file extension. Imported skins are
// registered in skeletons.
func MeshSerializers(skeletons *animation.SkeletonRegistry) map[string]mesh.Serializer {
	gltfSerializer := &loaders.GLTFSerializer{Skeletons: skeletons}
	return map[string]mesh.Serializer{
		".gltf": gltfSerializer,
		".glb":  gltfSerializer,
	}
}
