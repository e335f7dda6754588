package lod

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

/** @brief How many vertices each generated level removes. */
type ReductionMethod int

const (
	/** @brief A fixed number of vertices per level. */
	ReductionConstant ReductionMethod = iota
	/** @brief A proportion (0..1) of the vertices left by the previous level. */
	ReductionProportional
)

func (m ReductionMethod) String() string {
	if m == ReductionProportional {
		return "proportional"
	}
	return "constant"
}

/**
 * @brief Produces reduced index lists for a vertex and index set by repeatedly
 * collapsing the shortest edge. Vertices are never moved, only merged, so every
 * level reuses the original vertex data.
 */
type ProgressiveMesh struct {
	vertexData *metadata.VertexData
	indexData  *metadata.IndexData
	buffers    hardware.Manager
	usage      hardware.Usage
	shadow     bool
}

/**
 * @brief Creates a reducer for one triangle list.
 *
 * @param buffers Creates the index buffers of the generated levels.
 * @param usage The usage of the generated index buffers.
 * @param shadow Whether the generated index buffers keep a shadow copy.
 */
func NewProgressiveMesh(vd *metadata.VertexData, id *metadata.IndexData, buffers hardware.Manager, usage hardware.Usage, shadow bool) *ProgressiveMesh {
	return &ProgressiveMesh{vertexData: vd, indexData: id, buffers: buffers, usage: usage, shadow: shadow}
}

/**
 * @brief Generates one index set per level, each reduced further than the one before.
 * A source without triangles produces empty index sets.
 */
func (pm *ProgressiveMesh) Build(levels int, method ReductionMethod, value float32) ([]*metadata.IndexData, error) {
	if levels < 0 || value < 0 || (method == ReductionProportional && value > 1) {
		return nil, fmt.Errorf("cannot reduce %d levels by %v %s: %w", levels, value, method, core.ErrInvalidParams)
	}
	out := make([]*metadata.IndexData, 0, levels)

	var indices []uint32
	if pm.indexData != nil {
		var err error
		if indices, err = pm.indexData.Indices(); err != nil {
			return nil, err
		}
	}
	if len(indices) < 3 {
		for i := 0; i < levels; i++ {
			out = append(out, metadata.NewIndexData())
		}
		return out, nil
	}

	positions, err := pm.vertexData.ReadFloat3(metadata.VES_POSITION, 0)
	if err != nil {
		return nil, err
	}
	tris := make([][3]uint32, 0, len(indices)/3)
	for i := 0; i+2 < len(indices); i += 3 {
		t := [3]uint32{indices[i], indices[i+1], indices[i+2]}
		for _, v := range t {
			if int(v) >= len(positions) {
				return nil, fmt.Errorf("index %d references vertex %d of %d: %w", i, v, len(positions), core.ErrInvalidParams)
			}
		}
		tris = append(tris, t)
	}

	for l := 0; l < levels; l++ {
		remaining := countVertices(tris)
		remove := int(value)
		if method == ReductionProportional {
			remove = int(value * float32(remaining))
		}
		for r := 0; r < remove && len(tris) > 0; r++ {
			tris = collapseShortestEdge(tris, positions)
		}

		flat := make([]uint32, 0, len(tris)*3)
		for _, t := range tris {
			flat = append(flat, t[0], t[1], t[2])
		}
		id, err := metadata.NewIndexDataFromIndices(pm.buffers, flat, pm.usage, pm.shadow)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func countVertices(tris [][3]uint32) int {
	seen := map[uint32]struct{}{}
	for _, t := range tris {
		for _, v := range t {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}

// collapseShortestEdge merges the far vertex of the shortest edge into the near one
// and drops the triangles that become degenerate. Ties go to the lowest vertex pair.
func collapseShortestEdge(tris [][3]uint32, positions []math.Vec3) [][3]uint32 {
	var keep, drop uint32
	best := float32(-1)
	for _, t := range tris {
		for i := 0; i < 3; i++ {
			a, b := t[i], t[(i+1)%3]
			if a > b {
				a, b = b, a
			}
			d := positions[b].Sub(positions[a]).LengthSquared()
			if best < 0 || d < best || (d == best && (a < keep || (a == keep && b < drop))) {
				best, keep, drop = d, a, b
			}
		}
	}
	if best < 0 {
		return tris
	}

	out := tris[:0]
	for _, t := range tris {
		for i := range t {
			if t[i] == drop {
				t[i] = keep
			}
		}
		if t[0] == t[1] || t[1] == t[2] || t[0] == t[2] {
			continue
		}
		out = append(out, t)
	}
	return out
}
