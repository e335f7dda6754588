package loaders

import (
	"bytes"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"github.com/spaghettifunk/anima-mesh/engine/animation"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/mesh"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	quadPositions = []math.Vec3{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	quadNormals   = []math.Vec3{{Z: 1}, {Z: 1}, {Z: 1}, {Z: 1}}
	quadUVs       = []math.Vec2{{X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}
	quadIndices   = []uint32{0, 1, 2, 0, 2, 3}
)

func newSkinnedMesh(t *testing.T, skeletons *animation.SkeletonRegistry) *mesh.Mesh {
	t.Helper()
	skel, err := skeletons.Create("arm", "General")
	require.NoError(t, err)
	shoulder, err := skel.CreateBone("shoulder")
	require.NoError(t, err)
	elbow, err := skel.CreateBone("elbow")
	require.NoError(t, err)
	require.NoError(t, shoulder.AddChild(elbow))
	elbow.SetPosition(math.Vec3{Y: 1})
	skel.SetBindingPose()

	m := mesh.New("arm.glb", "General", mesh.Dependencies{Skeletons: skeletons})
	m.SetSkeletonName("arm")

	for part := 0; part < 2; part++ {
		sm := m.CreateSubMesh()
		sm.SetMaterialName("skin")
		vd, err := sm.CreateVertexData()
		require.NoError(t, err)
		vd.VertexCount = len(quadPositions)
		offset := math.Vec3{X: float32(part) * 2}
		positions := make([]math.Vec3, len(quadPositions))
		for i, p := range quadPositions {
			positions[i] = p.Add(offset)
		}
		require.NoError(t, vd.AddFloat3Element(metadata.VES_POSITION, 0, positions, hardware.UsageStatic, true))
		require.NoError(t, vd.AddFloat3Element(metadata.VES_NORMAL, 0, quadNormals, hardware.UsageStatic, true))
		require.NoError(t, vd.AddFloat2Element(metadata.VES_TEXTURE_COORDINATES, 0, quadUVs, hardware.UsageStatic, true))
		id, err := metadata.NewIndexDataFromIndices(m.Buffers(), quadIndices, hardware.UsageStatic, true)
		require.NoError(t, err)
		sm.SetIndexData(id)

		for v := range quadPositions {
			require.NoError(t, sm.AddBoneAssignment(mesh.VertexBoneAssignment{VertexIndex: uint32(v), BoneIndex: 0, Weight: 0.25}))
			require.NoError(t, sm.AddBoneAssignment(mesh.VertexBoneAssignment{VertexIndex: uint32(v), BoneIndex: 1, Weight: 0.75}))
		}
	}
	return m
}

func TestGLBRoundTrip(t *testing.T) {
	source := newSkinnedMesh(t, animation.NewSkeletonRegistry())
	var buf bytes.Buffer
	require.NoError(t, ExportGLB(source, &buf))

	skeletons := animation.NewSkeletonRegistry()
	imported := mesh.New("arm_copy.glb", "General", mesh.Dependencies{Skeletons: skeletons})
	require.NoError(t, (&GLTFSerializer{Skeletons: skeletons}).ImportMesh(&buf, imported))

	require.Equal(t, 2, imported.NumSubMeshes())
	assert.Nil(t, imported.SharedVertexData())
	for part := 0; part < 2; part++ {
		want, _ := source.SubMesh(part)
		got, _ := imported.SubMesh(part)
		assert.Equal(t, "skin", got.MaterialName())
		assert.Equal(t, metadata.OT_TRIANGLE_LIST, got.OperationType())

		wantPos, err := want.VertexData().ReadFloat3(metadata.VES_POSITION, 0)
		require.NoError(t, err)
		gotPos, err := got.VertexData().ReadFloat3(metadata.VES_POSITION, 0)
		require.NoError(t, err)
		assert.Equal(t, wantPos, gotPos)

		gotNormals, err := got.VertexData().ReadFloat3(metadata.VES_NORMAL, 0)
		require.NoError(t, err)
		assert.Equal(t, quadNormals, gotNormals)
		gotUVs, err := got.VertexData().ReadFloat2(metadata.VES_TEXTURE_COORDINATES, 0)
		require.NoError(t, err)
		assert.Equal(t, quadUVs, gotUVs)

		indices, err := got.IndexData().Indices()
		require.NoError(t, err)
		assert.Equal(t, quadIndices, indices)

		assert.Equal(t, 8, got.BoneAssignments().Len())
		assert.Equal(t, want.BoneAssignments().For(2), got.BoneAssignments().For(2))
	}

	skel := imported.Skeleton()
	require.NotNil(t, skel)
	assert.Equal(t, "arm", imported.SkeletonName())
	require.Equal(t, 2, skel.NumBones())
	elbow, err := skel.BoneByName("elbow")
	require.NoError(t, err)
	require.NotNil(t, elbow.Parent())
	assert.Equal(t, "shoulder", elbow.Parent().Name())
	assert.Equal(t, math.Vec3{Y: 1}, elbow.Position())

	assert.Equal(t, math.Vec3{X: 3, Y: 1}, imported.Bounds().Max)
	require.NoError(t, imported.CompileBoneAssignments())
}

// newMorphDocument builds a single triangle with one morph target lifting vertex 2.
func newMorphDocument() *gltf.Document {
	doc := gltf.NewDocument()
	pos := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}})
	delta := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {0, 0, 0}, {0, 0, 2}})
	indices := modeler.WriteIndices(doc, []uint32{0, 1, 2})
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name: "blob",
		Primitives: []*gltf.Primitive{{
			Indices:    gltf.Index(indices),
			Attributes: gltf.Attribute{gltf.POSITION: pos},
			Targets:    []gltf.Attribute{{gltf.POSITION: delta}},
		}},
	})
	return doc
}

func TestImportSinglePrimitiveUsesSharedGeometry(t *testing.T) {
	var buf bytes.Buffer
	enc := gltf.NewEncoder(&buf)
	enc.AsBinary = true
	require.NoError(t, enc.Encode(newMorphDocument()))

	m := mesh.New("blob.glb", "General", mesh.Dependencies{})
	require.NoError(t, (&GLTFSerializer{}).ImportMesh(&buf, m))

	require.NotNil(t, m.SharedVertexData())
	sm, err := m.SubMeshByName("blob")
	require.NoError(t, err)
	assert.True(t, sm.UseSharedVertices())

	require.Equal(t, 1, m.NumPoses())
	pose, err := m.Pose(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), pose.Target())
	assert.Equal(t, map[uint32]math.Vec3{2: {Z: 2}}, pose.VertexOffsets())
}

func TestImportRejectsGarbage(t *testing.T) {
	m := mesh.New("junk.glb", "General", mesh.Dependencies{})
	err := (&GLTFSerializer{}).ImportMesh(bytes.NewReader([]byte("not a gltf file")), m)
	assert.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, gltf.NewEncoder(&buf).Encode(gltf.NewDocument()))
	err = (&GLTFSerializer{}).ImportMesh(&buf, m)
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}
