package mesh

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

/**
 * @brief Generates per-vertex tangents from the triangle UV derivatives of a texture
 * coordinate set and stores them in a three float element, replacing an existing
 * one. Every vertex data of the mesh is processed.
 *
 * @param target VES_TANGENT, VES_BINORMAL or VES_TEXTURE_COORDINATES.
 * @param sourceTexCoordSet The texture coordinate set the tangents follow.
 * @param index The index of the target element. A texture coordinate target can't be set 0.
 */
func (m *Mesh) BuildTangentVectors(target metadata.VertexElementSemantic, sourceTexCoordSet, index uint16) error {
	switch target {
	case metadata.VES_TANGENT, metadata.VES_BINORMAL:
	case metadata.VES_TEXTURE_COORDINATES:
		if index == 0 || index == sourceTexCoordSet {
			return fmt.Errorf("tangents can't overwrite texture coordinate set %d: %w", index, core.ErrInvalidParams)
		}
	default:
		return fmt.Errorf("tangents can't be stored as %s: %w", target, core.ErrInvalidParams)
	}

	type work struct {
		vd   *metadata.VertexData
		subs []*SubMesh
	}
	var jobs []work
	if m.sharedVertexData != nil {
		w := work{vd: m.sharedVertexData}
		for _, sm := range m.subMeshes {
			if sm.useSharedVertices {
				w.subs = append(w.subs, sm)
			}
		}
		jobs = append(jobs, w)
	}
	for _, sm := range m.subMeshes {
		if !sm.useSharedVertices {
			jobs = append(jobs, work{vd: sm.vertexData, subs: []*SubMesh{sm}})
		}
	}

	for _, j := range jobs {
		if len(j.subs) == 0 || j.vd.VertexCount == 0 {
			continue
		}
		if err := m.buildTangents(j.vd, j.subs, target, sourceTexCoordSet, index); err != nil {
			return fmt.Errorf("tangents of mesh '%s': %w", m.Name(), err)
		}
	}
	return nil
}

func (m *Mesh) buildTangents(vd *metadata.VertexData, subs []*SubMesh, target metadata.VertexElementSemantic, uvSet, index uint16) error {
	if _, ok := vd.Declaration.FindElementBySemantic(metadata.VES_TEXTURE_COORDINATES, uvSet); !ok {
		return fmt.Errorf("no texture coordinate set %d: %w", uvSet, core.ErrItemNotFound)
	}
	positions, err := vd.ReadFloat3(metadata.VES_POSITION, 0)
	if err != nil {
		return err
	}
	uvs, err := vd.ReadFloat2(metadata.VES_TEXTURE_COORDINATES, uvSet)
	if err != nil {
		return err
	}

	tangents := make([]math.Vec3, vd.VertexCount)
	for _, sm := range subs {
		if !sm.isTriangles() {
			continue
		}
		tris, err := triangleList(sm.indexData, sm.operationType)
		if err != nil {
			return err
		}
		for _, tri := range tris {
			for _, v := range tri {
				if int(v) >= vd.VertexCount {
					return fmt.Errorf("index %d out of %d vertices: %w", v, vd.VertexCount, core.ErrInvalidParams)
				}
			}
			t := math.TriangleTangent(positions[tri[0]], positions[tri[1]], positions[tri[2]], uvs[tri[0]], uvs[tri[1]], uvs[tri[2]])
			for _, v := range tri {
				tangents[v] = tangents[v].Add(t)
			}
		}
	}
	for i := range tangents {
		tangents[i] = tangents[i].Normalize()
	}

	if e, ok := vd.Declaration.FindElementBySemantic(target, index); ok {
		if e.Type != metadata.VET_FLOAT3 {
			return fmt.Errorf("existing %s element %d is not three floats: %w", target, index, core.ErrInvalidParams)
		}
		return vd.WriteFloat3(target, index, tangents)
	}
	return vd.AddFloat3Element(target, index, tangents, m.vertexBufferPolicy.Usage, m.vertexBufferPolicy.Shadowed)
}

// triangleList expands an index stream into triangles. Strips alternate winding.
func triangleList(id *metadata.IndexData, op metadata.OperationType) ([][3]uint32, error) {
	if id == nil {
		return nil, nil
	}
	indices, err := id.Indices()
	if err != nil {
		return nil, err
	}
	var tris [][3]uint32
	switch op {
	case metadata.OT_TRIANGLE_LIST:
		for i := 0; i+2 < len(indices); i += 3 {
			tris = append(tris, [3]uint32{indices[i], indices[i+1], indices[i+2]})
		}
	case metadata.OT_TRIANGLE_STRIP:
		for i := 0; i+2 < len(indices); i++ {
			if i%2 == 0 {
				tris = append(tris, [3]uint32{indices[i], indices[i+1], indices[i+2]})
			} else {
				tris = append(tris, [3]uint32{indices[i+1], indices[i], indices[i+2]})
			}
		}
	case metadata.OT_TRIANGLE_FAN:
		for i := 1; i+1 < len(indices); i++ {
			tris = append(tris, [3]uint32{indices[0], indices[i], indices[i+1]})
		}
	default:
		return nil, fmt.Errorf("operation type %d has no triangles: %w", op, core.ErrInvalidParams)
	}
	return tris, nil
}
