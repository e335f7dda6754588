package mesh

import (
	"io"

	"github.com/spaghettifunk/anima-mesh/engine/animation"
	"github.com/spaghettifunk/anima-mesh/engine/edge"
	"github.com/spaghettifunk/anima-mesh/engine/lod"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

/** @brief One level of detail of a mesh. Level 0 is always the full detail mesh. */
type MeshLodUsage struct {
	/** @brief The value the level was requested with (e.g. a distance). NaN for level 0. */
	UserValue float32
	/** @brief UserValue transformed by the LOD strategy. */
	Value float32
	/** @brief For manual levels, the mesh to use instead. */
	ManualName  string
	ManualGroup string
	/** @brief The manual mesh, resolved on first access. */
	ManualMesh *Mesh
	/** @brief The edge list of this level, when built. */
	EdgeData *edge.EdgeData
}

/** @brief How the vertex or index buffers of a mesh are created. */
type BufferPolicy struct {
	Usage    hardware.Usage
	Shadowed bool
}

/** @brief Resolves skeletons by name. */
type SkeletonLoader interface {
	LoadSkeleton(name, group string) (*animation.Skeleton, error)
}

/** @brief Resolves meshes by name; used for manual LOD levels. */
type MeshLoader interface {
	LoadMesh(name, group string) (*Mesh, error)
}

/** @brief Reads a mesh file format into a Mesh. */
type Serializer interface {
	ImportMesh(r io.Reader, m *Mesh) error
}

/** @brief Builds edge lists from vertex and index sets. */
type EdgeBuilder interface {
	AddVertexData(vd *metadata.VertexData) int
	AddIndexData(id *metadata.IndexData, vertexSet int, opType metadata.OperationType)
	Build() (*edge.EdgeData, error)
}

/** @brief Generates reduced index lists for one submesh. */
type Reducer interface {
	Build(levels int, method lod.ReductionMethod, value float32) ([]*metadata.IndexData, error)
}

/**
 * @brief Everything a mesh needs from the rest of the engine. Zero fields get
 * in-memory defaults, except Skeletons, Meshes, Serializers and Open which are
 * only needed for the features using them.
 */
type Dependencies struct {
	Buffers   hardware.Manager
	Skeletons SkeletonLoader
	Meshes    MeshLoader
	Lod       lod.Strategy

	NewEdgeBuilder func() EdgeBuilder
	NewReducer     func(vd *metadata.VertexData, id *metadata.IndexData, policy BufferPolicy) Reducer

	/** @brief Importers by lower case file extension, including the dot. */
	Serializers map[string]Serializer
	/** @brief Opens the named mesh file. */
	Open func(name string) (io.ReadCloser, error)

	/** @brief Prepare shadow volumes (and edge lists when auto building) right after loading. */
	PrepareForShadowVolumes bool
	VertexBufferPolicy      *BufferPolicy
	IndexBufferPolicy       *BufferPolicy
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Buffers == nil {
		d.Buffers = hardware.NewDefaultManager()
	}
	if d.Lod == nil {
		d.Lod = lod.DistanceStrategy{}
	}
	if d.NewEdgeBuilder == nil {
		d.NewEdgeBuilder = func() EdgeBuilder { return edge.NewBuilder() }
	}
	if d.NewReducer == nil {
		buffers := d.Buffers
		d.NewReducer = func(vd *metadata.VertexData, id *metadata.IndexData, policy BufferPolicy) Reducer {
			return lod.NewProgressiveMesh(vd, id, buffers, policy.Usage, policy.Shadowed)
		}
	}
	return d
}

// BoundsPaddingFactor is how much SetBounds grows a box when padding is requested.
const BoundsPaddingFactor float32 = 0.01

func boundingRadius(box math.Extents3D) float32 {
	return max(box.Min.Length(), box.Max.Length())
}
