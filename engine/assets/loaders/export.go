package loaders

import (
	"fmt"
	"io"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/spaghettifunk/anima-mesh/engine/animation"
	"github.com/spaghettifunk/anima-mesh/engine/mesh"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

type vertexAccessors struct {
	attributes map[string]uint32
}

/**
 * @brief Writes the mesh as a binary glTF: one glTF mesh per submesh with positions,
 * normals, first texture coordinates, up to four joints and weights per vertex and
 * indices. Shared vertex data is written once. The skeleton, when resolved, is
 * written as a skin in its current pose.
 */
func ExportGLB(m *mesh.Mesh, w io.Writer) error {
	doc := gltf.NewDocument()

	skinIdx := exportSkeleton(doc, m.Skeleton())
	var err error
	written := map[*metadata.VertexData]vertexAccessors{}
	for i, sm := range m.SubMeshes() {
		vd := sm.VertexData()
		if vd == nil {
			return fmt.Errorf("submesh %d of '%s' has no vertex data", i, m.Name())
		}
		acc, ok := written[vd]
		if !ok {
			assignments := m.BoneAssignments()
			if !sm.UseSharedVertices() {
				assignments = sm.BoneAssignments()
			}
			if acc, err = exportVertexData(doc, vd, assignments); err != nil {
				return fmt.Errorf("submesh %d of '%s': %w", i, m.Name(), err)
			}
			written[vd] = acc
		}

		prim := &gltf.Primitive{Attributes: acc.attributes, Mode: primitiveMode(sm.OperationType())}
		indices, err := sm.IndexData().Indices()
		if err != nil {
			return err
		}
		if len(indices) > 0 {
			prim.Indices = gltf.Index(modeler.WriteIndices(doc, indices))
		}
		if sm.MaterialName() != "" {
			doc.Materials = append(doc.Materials, &gltf.Material{Name: sm.MaterialName()})
			prim.Material = gltf.Index(uint32(len(doc.Materials) - 1))
		}

		doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: sm.Name(), Primitives: []*gltf.Primitive{prim}})
		node := &gltf.Node{
			Name:     sm.Name(),
			Mesh:     gltf.Index(uint32(len(doc.Meshes) - 1)),
			Rotation: [4]float32{0, 0, 0, 1},
			Scale:    [3]float32{1, 1, 1},
		}
		if _, skinned := acc.attributes[gltf.JOINTS_0]; skinned && skinIdx != nil {
			node.Skin = skinIdx
		}
		doc.Nodes = append(doc.Nodes, node)
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))
	}

	encoder := gltf.NewEncoder(w)
	encoder.AsBinary = true
	return encoder.Encode(doc)
}

func exportVertexData(doc *gltf.Document, vd *metadata.VertexData, assignments *mesh.BoneAssignments) (vertexAccessors, error) {
	attrs := map[string]uint32{}
	positions, err := vd.ReadFloat3(metadata.VES_POSITION, 0)
	if err != nil {
		return vertexAccessors{}, err
	}
	pos := make([][3]float32, len(positions))
	for i, p := range positions {
		pos[i] = [3]float32{p.X, p.Y, p.Z}
	}
	attrs[gltf.POSITION] = modeler.WritePosition(doc, pos)

	if _, ok := vd.Declaration.FindElementBySemantic(metadata.VES_NORMAL, 0); ok {
		normals, err := vd.ReadFloat3(metadata.VES_NORMAL, 0)
		if err != nil {
			return vertexAccessors{}, err
		}
		out := make([][3]float32, len(normals))
		for i, n := range normals {
			out[i] = [3]float32{n.X, n.Y, n.Z}
		}
		attrs[gltf.NORMAL] = modeler.WriteNormal(doc, out)
	}
	if _, ok := vd.Declaration.FindElementBySemantic(metadata.VES_TEXTURE_COORDINATES, 0); ok {
		uvs, err := vd.ReadFloat2(metadata.VES_TEXTURE_COORDINATES, 0)
		if err != nil {
			return vertexAccessors{}, err
		}
		out := make([][2]float32, len(uvs))
		for i, uv := range uvs {
			out[i] = [2]float32{uv.X, uv.Y}
		}
		attrs[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(doc, out)
	}

	if assignments.Len() > 0 {
		joints := make([][4]uint16, vd.VertexCount)
		weights := make([][4]float32, vd.VertexCount)
		for _, v := range assignments.Vertices() {
			if int(v) >= vd.VertexCount {
				continue
			}
			for slot, vba := range assignments.For(v) {
				if slot == 4 {
					break
				}
				joints[v][slot] = vba.BoneIndex
				weights[v][slot] = vba.Weight
			}
		}
		attrs[gltf.JOINTS_0] = modeler.WriteJoints(doc, joints)
		attrs[gltf.WEIGHTS_0] = modeler.WriteWeights(doc, weights)
	}
	return vertexAccessors{attributes: attrs}, nil
}

// exportSkeleton writes one node per bone, in handle order, and a skin over them.
func exportSkeleton(doc *gltf.Document, skel *animation.Skeleton) *uint32 {
	if skel == nil || skel.NumBones() == 0 {
		return nil
	}
	first := uint32(len(doc.Nodes))
	skin := &gltf.Skin{Name: skel.Name()}
	for _, b := range skel.Bones() {
		p, q, s := b.Position(), b.Orientation(), b.Scale()
		doc.Nodes = append(doc.Nodes, &gltf.Node{
			Name:        b.Name(),
			Translation: [3]float32{p.X, p.Y, p.Z},
			Rotation:    [4]float32{q.X, q.Y, q.Z, q.W},
			Scale:       [3]float32{s.X, s.Y, s.Z},
		})
		skin.Joints = append(skin.Joints, first+uint32(b.Handle()))
	}
	for _, b := range skel.Bones() {
		node := doc.Nodes[first+uint32(b.Handle())]
		for _, c := range b.Children() {
			node.Children = append(node.Children, first+uint32(c.Handle()))
		}
	}
	for _, root := range skel.RootBones() {
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, first+uint32(root.Handle()))
	}
	doc.Skins = append(doc.Skins, skin)
	return gltf.Index(uint32(len(doc.Skins) - 1))
}
