package engine

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/animation"
	"github.com/spaghettifunk/anima-mesh/engine/blend"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/lod"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/mesh"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

type InspectOptions struct {
	Group string
	/** @brief LOD values to generate, in the order of the mesh LOD strategy. None skips generation. */
	LodValues []float32
	LodMethod lod.ReductionMethod
	/** @brief Vertices removed per level, a proportion or a count depending on LodMethod. */
	LodReduction float32
}

type LodSummary struct {
	Value     float32
	Triangles int
	Manual    bool
}

/** @brief What Inspect found out about a mesh. */
type MeshReport struct {
	Name          string
	SubMeshes     int
	Vertices      int
	Lods          []LodSummary
	EdgeGroups    int
	Edges         int
	ClosedEdges   bool
	Skeleton      string
	Bones         int
	Animations    int
	Poses         int
	Bounds        math.Extents3D
	Radius        float32
	SkinnedSets   int
	SkinningDrift float32
}

/**
 * @brief Loads a mesh through the mesh system and runs it through the pipeline:
 * LOD generation, edge lists and one software skinning pass in the binding pose.
 * In the binding pose every offset matrix is the identity, so SkinningDrift is the
 * largest distance a vertex moved and should be close to zero.
 *
 * The mesh keeps its reference; callers release it through the mesh system.
 */
func (e *Engine) Inspect(name string, opts InspectOptions) (*MeshReport, error) {
	if opts.Group == "" {
		opts.Group = "General"
	}
	m, err := e.systemManager.Meshes().Acquire(name, opts.Group)
	if err != nil {
		return nil, err
	}

	if len(opts.LodValues) > 0 {
		if err := m.GenerateLodLevels(opts.LodValues, opts.LodMethod, opts.LodReduction); err != nil {
			return nil, fmt.Errorf("generating LOD levels of '%s': %w", name, err)
		}
	}
	if err := m.BuildEdgeList(); err != nil {
		return nil, fmt.Errorf("building edge list of '%s': %w", name, err)
	}

	report := &MeshReport{
		Name:       name,
		SubMeshes:  m.NumSubMeshes(),
		Animations: m.NumAnimations(),
		Poses:      m.NumPoses(),
		Bounds:     m.Bounds(),
		Radius:     m.BoundingSphereRadius(),
		Skeleton:   m.SkeletonName(),
	}
	for _, vd := range vertexSets(m) {
		report.Vertices += vd.VertexCount
	}
	for level := 0; level < m.NumLodLevels(); level++ {
		usage, err := m.LodLevel(level)
		if err != nil {
			return nil, err
		}
		report.Lods = append(report.Lods, LodSummary{
			Value:     usage.Value,
			Triangles: triangleCount(m, level),
			Manual:    usage.ManualMesh != nil,
		})
	}
	edges, err := m.EdgeList(0)
	if err != nil {
		return nil, err
	}
	if edges != nil {
		report.EdgeGroups = len(edges.EdgeGroups)
		report.ClosedEdges = edges.IsClosed
		for _, g := range edges.EdgeGroups {
			report.Edges += len(g.Edges)
		}
	}

	if m.HasSkeleton() {
		report.Bones = m.Skeleton().NumBones()
		if err := skinningPass(m, report); err != nil {
			return nil, fmt.Errorf("skinning '%s': %w", name, err)
		}
	}

	core.LogDebug("inspected mesh '%s': %d submeshes, %d LOD levels", name, report.SubMeshes, len(report.Lods))
	return report, nil
}

// vertexSets returns the shared vertex data and every private one.
func vertexSets(m *mesh.Mesh) []*metadata.VertexData {
	var sets []*metadata.VertexData
	if vd := m.SharedVertexData(); vd != nil {
		sets = append(sets, vd)
	}
	for _, sm := range m.SubMeshes() {
		if !sm.UseSharedVertices() && sm.VertexData() != nil {
			sets = append(sets, sm.VertexData())
		}
	}
	return sets
}

func triangleCount(m *mesh.Mesh, level int) int {
	count := 0
	for _, sm := range m.SubMeshes() {
		id, err := sm.LodIndexData(level)
		if err != nil || id == nil {
			continue
		}
		count += id.TriangleCount(sm.OperationType())
	}
	return count
}

func skinningPass(m *mesh.Mesh, report *MeshReport) error {
	set := animation.NewAnimationStateSet()
	if err := m.InitAnimationState(set); err != nil {
		return err
	}
	skel := m.Skeleton()
	skel.Reset()
	matrices := skel.OffsetMatrices()

	for _, vd := range vertexSets(m) {
		if _, ok := vd.Declaration.FindElementBySemantic(metadata.VES_BLEND_INDICES, 0); !ok {
			continue
		}
		dst, err := vd.Clone(true, nil)
		if err != nil {
			return err
		}
		_, hasNormals := vd.Declaration.FindElementBySemantic(metadata.VES_NORMAL, 0)
		if err := blend.SoftwareVertexBlend(vd, dst, matrices, hasNormals, false, false); err != nil {
			return err
		}
		before, err := vd.ReadFloat3(metadata.VES_POSITION, 0)
		if err != nil {
			return err
		}
		after, err := dst.ReadFloat3(metadata.VES_POSITION, 0)
		if err != nil {
			return err
		}
		for i := range before {
			d := after[i].Distance(before[i])
			report.SkinningDrift = max(report.SkinningDrift, d)
		}
		report.SkinnedSets++
	}
	return nil
}
