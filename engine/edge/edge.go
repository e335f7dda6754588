package edge

import (
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

// NoTriangle marks the missing side of a degenerate edge.
const NoTriangle = -1

/** @brief A triangle of the edge list, indexed both locally and through the common vertex list. */
type Triangle struct {
	/** @brief The index data the triangle came from. */
	IndexSet int
	/** @brief The vertex data the triangle indexes. */
	VertexSet int
	/** @brief Vertex indices local to the vertex set. */
	VertIndex [3]uint32
	/** @brief Vertex indices into the common, position-merged vertex list. */
	SharedVertIndex [3]int
}

/** @brief An edge between one or two triangles. */
type Edge struct {
	/** @brief The triangle traversing the edge from vertex 0 to 1, and the one traversing it back. */
	TriIndex [2]int
	/** @brief Local vertex indices of the first triangle. */
	VertIndex [2]uint32
	SharedVertIndex [2]int
	/** @brief Set when only one triangle uses the edge. */
	Degenerate bool
}

/** @brief The edges and triangles of one vertex set. */
type EdgeGroup struct {
	VertexSet  int
	VertexData *metadata.VertexData
	/** @brief The first triangle of the group. Triangles are ordered by vertex set. */
	TriStart int
	TriCount int
	Edges    []Edge
}

/** @brief Adjacency information used to find silhouettes for shadow volumes. */
type EdgeData struct {
	Triangles []Triangle
	/** @brief Unnormalised triangle planes, one per triangle. */
	TriangleFaceNormals []math.Vec4
	/** @brief Whether each triangle faces the light, set by UpdateTriangleLightFacing. */
	TriangleLightFacings []bool
	EdgeGroups           []EdgeGroup
	/** @brief True when no edge is degenerate. */
	IsClosed bool
}

// UpdateTriangleLightFacing flags the triangles whose plane faces lightPos.
// A w of 0 makes lightPos a direction.
func (e *EdgeData) UpdateTriangleLightFacing(lightPos math.Vec4) {
	if len(e.TriangleLightFacings) != len(e.Triangles) {
		e.TriangleLightFacings = make([]bool, len(e.Triangles))
	}
	for i, n := range e.TriangleFaceNormals {
		e.TriangleLightFacings[i] = n.Dot(lightPos) > 0
	}
}

// UpdateFaceNormals recomputes the planes of the triangles of one vertex set from
// new positions, for example after software skinning.
func (e *EdgeData) UpdateFaceNormals(vertexSet int, positions []math.Vec3) {
	for i, t := range e.Triangles {
		if t.VertexSet != vertexSet {
			continue
		}
		e.TriangleFaceNormals[i] = math.TriangleFaceNormal(
			positions[t.VertIndex[0]], positions[t.VertIndex[1]], positions[t.VertIndex[2]])
	}
}

// DegenerateEdgeCount returns how many edges have a single triangle.
func (e *EdgeData) DegenerateEdgeCount() int {
	n := 0
	for _, g := range e.EdgeGroups {
		for _, ed := range g.Edges {
			if ed.Degenerate {
				n++
			}
		}
	}
	return n
}

// EdgeCount returns the number of edges in every group.
func (e *EdgeData) EdgeCount() int {
	n := 0
	for _, g := range e.EdgeGroups {
		n += len(g.Edges)
	}
	return n
}
