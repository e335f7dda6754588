package loaders

import (
	"fmt"
	"io"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/spaghettifunk/anima-mesh/engine/animation"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/mesh"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

/**
 * @brief Imports glTF 2.0 files (.gltf with embedded buffers, or .glb) into meshes.
 * Every primitive becomes a submesh; a file with a single primitive puts its
 * geometry in the shared vertex data. The first skin becomes the mesh skeleton.
 */
type GLTFSerializer struct {
	/** @brief Where imported skeletons are registered. Skins are ignored when nil. */
	Skeletons *animation.SkeletonRegistry
}

type gltfPrimitive struct {
	mesh      *gltf.Mesh
	primitive *gltf.Primitive
	index     int
}

func (s *GLTFSerializer) ImportMesh(r io.Reader, m *mesh.Mesh) error {
	doc := &gltf.Document{}
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return fmt.Errorf("failed to read glTF '%s': %w", m.Name(), err)
	}

	var prims []gltfPrimitive
	for _, gm := range doc.Meshes {
		for i, p := range gm.Primitives {
			prims = append(prims, gltfPrimitive{mesh: gm, primitive: p, index: i})
		}
	}
	if len(prims) == 0 {
		return fmt.Errorf("glTF '%s' has no primitives: %w", m.Name(), core.ErrUnsupportedFormat)
	}

	if len(doc.Skins) > 0 && s.Skeletons != nil {
		name, err := s.importSkeleton(doc, doc.Skins[0], m)
		if err != nil {
			return err
		}
		m.SetSkeletonName(name)
	}

	shared := len(prims) == 1
	for i, gp := range prims {
		if err := s.importPrimitive(doc, gp, m, shared); err != nil {
			return fmt.Errorf("glTF '%s' primitive %d: %w", m.Name(), i, err)
		}
	}

	if err := m.ComputeBounds(); err != nil {
		return err
	}
	core.LogDebug("imported glTF '%s': %d submeshes, %d poses", m.Name(), m.NumSubMeshes(), m.NumPoses())
	return nil
}

func (s *GLTFSerializer) importPrimitive(doc *gltf.Document, gp gltfPrimitive, m *mesh.Mesh, shared bool) error {
	p := gp.primitive
	posIdx, ok := p.Attributes[gltf.POSITION]
	if !ok {
		return fmt.Errorf("primitive without positions: %w", core.ErrUnsupportedFormat)
	}
	op, err := operationType(p.Mode)
	if err != nil {
		return err
	}

	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return err
	}

	sm := createSubMesh(m, subMeshName(gp))
	sm.SetOperationType(op)
	if p.Material != nil && int(*p.Material) < len(doc.Materials) {
		sm.SetMaterialName(doc.Materials[*p.Material].Name)
	}

	var vd *metadata.VertexData
	if shared {
		vd = m.CreateSharedVertexData()
	} else if vd, err = sm.CreateVertexData(); err != nil {
		return err
	}
	vd.VertexCount = len(positions)

	policy := m.VertexBufferPolicy()
	if err := vd.AddFloat3Element(metadata.VES_POSITION, 0, toVec3s(positions), policy.Usage, policy.Shadowed); err != nil {
		return err
	}
	if idx, ok := p.Attributes[gltf.NORMAL]; ok {
		normals, err := modeler.ReadNormal(doc, doc.Accessors[idx], nil)
		if err != nil {
			return err
		}
		if err := vd.AddFloat3Element(metadata.VES_NORMAL, 0, toVec3s(normals), policy.Usage, policy.Shadowed); err != nil {
			return err
		}
	}
	if idx, ok := p.Attributes[gltf.TEXCOORD_0]; ok {
		uvs, err := modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil)
		if err != nil {
			return err
		}
		if err := vd.AddFloat2Element(metadata.VES_TEXTURE_COORDINATES, 0, toVec2s(uvs), policy.Usage, policy.Shadowed); err != nil {
			return err
		}
	}

	var indices []uint32
	if p.Indices != nil {
		if indices, err = modeler.ReadIndices(doc, doc.Accessors[*p.Indices], nil); err != nil {
			return err
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	ipolicy := m.IndexBufferPolicy()
	id, err := metadata.NewIndexDataFromIndices(m.Buffers(), indices, ipolicy.Usage, ipolicy.Shadowed)
	if err != nil {
		return err
	}
	sm.SetIndexData(id)

	if err := importBoneAssignments(doc, p, m, sm, shared); err != nil {
		return err
	}

	target := uint16(0)
	if !shared {
		target = uint16(m.NumSubMeshes())
	}
	return importMorphTargets(doc, gp, m, target)
}

func createSubMesh(m *mesh.Mesh, name string) *mesh.SubMesh {
	if name != "" {
		if sm, err := m.CreateSubMeshNamed(name); err == nil {
			return sm
		}
	}
	return m.CreateSubMesh()
}

func subMeshName(gp gltfPrimitive) string {
	if gp.mesh.Name == "" {
		return ""
	}
	if len(gp.mesh.Primitives) == 1 {
		return gp.mesh.Name
	}
	return fmt.Sprintf("%s_%d", gp.mesh.Name, gp.index)
}

func operationType(mode gltf.PrimitiveMode) (metadata.OperationType, error) {
	switch mode {
	case gltf.PrimitiveTriangles:
		return metadata.OT_TRIANGLE_LIST, nil
	case gltf.PrimitiveTriangleStrip:
		return metadata.OT_TRIANGLE_STRIP, nil
	case gltf.PrimitiveTriangleFan:
		return metadata.OT_TRIANGLE_FAN, nil
	case gltf.PrimitivePoints:
		return metadata.OT_POINT_LIST, nil
	case gltf.PrimitiveLines:
		return metadata.OT_LINE_LIST, nil
	case gltf.PrimitiveLineStrip:
		return metadata.OT_LINE_STRIP, nil
	}
	return 0, fmt.Errorf("primitive mode %d: %w", mode, core.ErrUnsupportedFormat)
}

func primitiveMode(op metadata.OperationType) gltf.PrimitiveMode {
	switch op {
	case metadata.OT_TRIANGLE_STRIP:
		return gltf.PrimitiveTriangleStrip
	case metadata.OT_TRIANGLE_FAN:
		return gltf.PrimitiveTriangleFan
	case metadata.OT_POINT_LIST:
		return gltf.PrimitivePoints
	case metadata.OT_LINE_LIST:
		return gltf.PrimitiveLines
	case metadata.OT_LINE_STRIP:
		return gltf.PrimitiveLineStrip
	}
	return gltf.PrimitiveTriangles
}

// importBoneAssignments turns JOINTS_0/WEIGHTS_0 into bone assignments, skipping zero weights.
func importBoneAssignments(doc *gltf.Document, p *gltf.Primitive, m *mesh.Mesh, sm *mesh.SubMesh, shared bool) error {
	jIdx, hasJoints := p.Attributes[gltf.JOINTS_0]
	wIdx, hasWeights := p.Attributes[gltf.WEIGHTS_0]
	if !hasJoints || !hasWeights {
		return nil
	}
	joints, err := modeler.ReadJoints(doc, doc.Accessors[jIdx], nil)
	if err != nil {
		return err
	}
	weights, err := modeler.ReadWeights(doc, doc.Accessors[wIdx], nil)
	if err != nil {
		return err
	}
	if len(joints) != len(weights) {
		return fmt.Errorf("%d joints for %d weights: %w", len(joints), len(weights), core.ErrUnsupportedFormat)
	}
	for v := range joints {
		for slot := 0; slot < 4; slot++ {
			if weights[v][slot] == 0 {
				continue
			}
			vba := mesh.VertexBoneAssignment{VertexIndex: uint32(v), BoneIndex: joints[v][slot], Weight: weights[v][slot]}
			if shared {
				m.AddBoneAssignment(vba)
			} else if err := sm.AddBoneAssignment(vba); err != nil {
				return err
			}
		}
	}
	return nil
}

// importMorphTargets turns the POSITION deltas of every morph target into a pose.
func importMorphTargets(doc *gltf.Document, gp gltfPrimitive, m *mesh.Mesh, target uint16) error {
	for t, attrs := range gp.primitive.Targets {
		idx, ok := attrs[gltf.POSITION]
		if !ok {
			continue
		}
		deltas, err := modeler.ReadPosition(doc, doc.Accessors[idx], nil)
		if err != nil {
			return err
		}
		name := fmt.Sprintf("%s_target%d", subMeshName(gp), t)
		pose, err := m.CreatePose(target, name)
		if err != nil {
			return err
		}
		for v, d := range deltas {
			if d != [3]float32{} {
				pose.AddVertex(uint32(v), math.Vec3{X: d[0], Y: d[1], Z: d[2]})
			}
		}
	}
	return nil
}

// importSkeleton registers a skeleton with one bone per joint, in joint order, so
// JOINTS_0 values are bone handles.
func (s *GLTFSerializer) importSkeleton(doc *gltf.Document, skin *gltf.Skin, m *mesh.Mesh) (string, error) {
	name := skin.Name
	if name == "" {
		name = m.Name() + ".skeleton"
	}
	if _, ok := s.Skeletons.Get(name); ok {
		// a reload keeps the skeleton registered by the first load
		return name, nil
	}
	if len(skin.Joints) > animation.MaxBones {
		return "", fmt.Errorf("skin '%s' has %d joints: %w", name, len(skin.Joints), core.ErrUnsupportedFormat)
	}

	skel := animation.NewSkeleton(name, m.Group())
	bones := make(map[uint32]*animation.Bone, len(skin.Joints))
	for _, nodeIdx := range skin.Joints {
		if int(nodeIdx) >= len(doc.Nodes) {
			return "", fmt.Errorf("skin '%s' joint node %d: %w", name, nodeIdx, core.ErrUnsupportedFormat)
		}
		node := doc.Nodes[nodeIdx]
		bone, err := skel.CreateBone(node.Name)
		if err != nil {
			return "", err
		}
		bone.SetPosition(math.Vec3{X: node.Translation[0], Y: node.Translation[1], Z: node.Translation[2]})
		rot := node.Rotation
		if rot == [4]float32{} {
			rot = [4]float32{0, 0, 0, 1}
		}
		bone.SetOrientation(math.Quaternion{X: rot[0], Y: rot[1], Z: rot[2], W: rot[3]})
		scale := node.Scale
		if scale == [3]float32{} {
			scale = [3]float32{1, 1, 1}
		}
		bone.SetScale(math.Vec3{X: scale[0], Y: scale[1], Z: scale[2]})
		bones[nodeIdx] = bone
	}
	for _, nodeIdx := range skin.Joints {
		for _, child := range doc.Nodes[nodeIdx].Children {
			if cb, ok := bones[child]; ok {
				if err := bones[nodeIdx].AddChild(cb); err != nil {
					return "", err
				}
			}
		}
	}
	skel.SetBindingPose()
	if err := s.Skeletons.Register(skel); err != nil {
		return "", err
	}
	return name, nil
}

func toVec3s(in [][3]float32) []math.Vec3 {
	out := make([]math.Vec3, len(in))
	for i, v := range in {
		out[i] = math.Vec3{X: v[0], Y: v[1], Z: v[2]}
	}
	return out
}

func toVec2s(in [][2]float32) []math.Vec2 {
	out := make([]math.Vec2, len(in))
	for i, v := range in {
		out[i] = math.Vec2{X: v[0], Y: v[1]}
	}
	return out
}
