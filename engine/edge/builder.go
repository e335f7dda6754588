package edge

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

type geometry struct {
	indexSet  int
	vertexSet int
	indexData *metadata.IndexData
	opType    metadata.OperationType
}

type edgeKey struct {
	a, b int
}

type edgeRef struct {
	group int
	index int
}

/**
 * @brief Builds EdgeData from any number of vertex and index sets. Vertices of
 * different sets at exactly the same position are merged so that edges connect
 * across sets.
 */
type Builder struct {
	vertexData []*metadata.VertexData
	geometry   []geometry

	common     map[math.Vec3]int
	vertexMaps [][]int
	pending    map[edgeKey]edgeRef
}

func NewBuilder() *Builder {
	return &Builder{}
}

// AddVertexData registers a vertex set and returns its index.
func (b *Builder) AddVertexData(vd *metadata.VertexData) int {
	b.vertexData = append(b.vertexData, vd)
	return len(b.vertexData) - 1
}

// AddIndexData registers triangles indexing the given vertex set.
func (b *Builder) AddIndexData(id *metadata.IndexData, vertexSet int, opType metadata.OperationType) {
	b.geometry = append(b.geometry, geometry{
		indexSet:  len(b.geometry),
		vertexSet: vertexSet,
		indexData: id,
		opType:    opType,
	})
}

/**
 * @brief Builds the edge list.
 *
 * @return The edge data, or an error when an index set references a missing
 * vertex set or vertex, or is not made of triangles.
 */
func (b *Builder) Build() (*EdgeData, error) {
	b.common = map[math.Vec3]int{}
	b.pending = map[edgeKey]edgeRef{}
	b.vertexMaps = make([][]int, len(b.vertexData))

	positions := make([][]math.Vec3, len(b.vertexData))
	for i, vd := range b.vertexData {
		pos, err := vd.ReadFloat3(metadata.VES_POSITION, 0)
		if err != nil {
			return nil, fmt.Errorf("vertex set %d: %w", i, err)
		}
		positions[i] = pos
		b.vertexMaps[i] = make([]int, len(pos))
		for v, p := range pos {
			shared, ok := b.common[p]
			if !ok {
				shared = len(b.common)
				b.common[p] = shared
			}
			b.vertexMaps[i][v] = shared
		}
	}

	geoms := make([]geometry, len(b.geometry))
	copy(geoms, b.geometry)
	sort.SliceStable(geoms, func(i, j int) bool { return geoms[i].vertexSet < geoms[j].vertexSet })

	data := &EdgeData{}
	for vs, vd := range b.vertexData {
		data.EdgeGroups = append(data.EdgeGroups, EdgeGroup{VertexSet: vs, VertexData: vd})
	}

	for _, g := range geoms {
		if g.vertexSet < 0 || g.vertexSet >= len(b.vertexData) {
			return nil, fmt.Errorf("index set %d references vertex set %d of %d: %w",
				g.indexSet, g.vertexSet, len(b.vertexData), core.ErrInvalidParams)
		}
		tris, err := triangles(g)
		if err != nil {
			return nil, err
		}
		group := &data.EdgeGroups[g.vertexSet]
		if group.TriCount == 0 {
			group.TriStart = len(data.Triangles)
		}
		for _, tri := range tris {
			if err := b.addTriangle(data, g, tri, positions[g.vertexSet]); err != nil {
				return nil, err
			}
			group.TriCount++
		}
	}

	data.IsClosed = true
	for gi := range data.EdgeGroups {
		for ei := range data.EdgeGroups[gi].Edges {
			if data.EdgeGroups[gi].Edges[ei].Degenerate {
				data.IsClosed = false
			}
		}
	}
	data.TriangleLightFacings = make([]bool, len(data.Triangles))
	return data, nil
}

func triangles(g geometry) ([][3]uint32, error) {
	if g.indexData == nil {
		return nil, nil
	}
	indices, err := g.indexData.Indices()
	if err != nil {
		return nil, fmt.Errorf("index set %d: %w", g.indexSet, err)
	}
	var out [][3]uint32
	switch g.opType {
	case metadata.OT_TRIANGLE_LIST:
		for i := 0; i+2 < len(indices); i += 3 {
			out = append(out, [3]uint32{indices[i], indices[i+1], indices[i+2]})
		}
	case metadata.OT_TRIANGLE_STRIP:
		for i := 0; i+2 < len(indices); i++ {
			if i%2 == 0 {
				out = append(out, [3]uint32{indices[i], indices[i+1], indices[i+2]})
			} else {
				out = append(out, [3]uint32{indices[i+1], indices[i], indices[i+2]})
			}
		}
	case metadata.OT_TRIANGLE_FAN:
		for i := 1; i+1 < len(indices); i++ {
			out = append(out, [3]uint32{indices[0], indices[i], indices[i+1]})
		}
	default:
		return nil, fmt.Errorf("index set %d is not made of triangles: %w", g.indexSet, core.ErrInvalidParams)
	}
	return out, nil
}

func (b *Builder) addTriangle(data *EdgeData, g geometry, idx [3]uint32, positions []math.Vec3) error {
	vmap := b.vertexMaps[g.vertexSet]
	tri := Triangle{IndexSet: g.indexSet, VertexSet: g.vertexSet, VertIndex: idx}
	for i, v := range idx {
		if int(v) >= len(vmap) {
			return fmt.Errorf("index set %d references vertex %d of %d: %w", g.indexSet, v, len(vmap), core.ErrInvalidParams)
		}
		tri.SharedVertIndex[i] = vmap[v]
	}
	triIndex := len(data.Triangles)
	data.Triangles = append(data.Triangles, tri)
	data.TriangleFaceNormals = append(data.TriangleFaceNormals,
		math.TriangleFaceNormal(positions[idx[0]], positions[idx[1]], positions[idx[2]]))

	for i := 0; i < 3; i++ {
		j := (i + 1) % 3
		b.connectOrCreateEdge(data, g.vertexSet, triIndex,
			idx[i], idx[j], tri.SharedVertIndex[i], tri.SharedVertIndex[j])
	}
	return nil
}

// connectOrCreateEdge links the triangle to an edge traversed in the opposite
// direction by an earlier triangle, or starts a new degenerate edge.
func (b *Builder) connectOrCreateEdge(data *EdgeData, vertexSet, triIndex int, v0, v1 uint32, s0, s1 int) {
	if ref, ok := b.pending[edgeKey{s1, s0}]; ok {
		e := &data.EdgeGroups[ref.group].Edges[ref.index]
		e.TriIndex[1] = triIndex
		e.Degenerate = false
		delete(b.pending, edgeKey{s1, s0})
		return
	}
	group := &data.EdgeGroups[vertexSet]
	group.Edges = append(group.Edges, Edge{
		TriIndex:        [2]int{triIndex, NoTriangle},
		VertIndex:       [2]uint32{v0, v1},
		SharedVertIndex: [2]int{s0, s1},
		Degenerate:      true,
	})
	b.pending[edgeKey{s0, s1}] = edgeRef{group: vertexSet, index: len(group.Edges) - 1}
}
