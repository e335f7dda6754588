package blend

import (
	"testing"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type skinnedVertex struct {
	pos     math.Vec3
	normal  math.Vec3
	bones   [4]uint8
	weights []float32
}

// newSkinnedData interleaves position and normal in source 0 and the blend
// indices and weights in source 1.
func newSkinnedData(t *testing.T, mgr hardware.Manager, verts []skinnedVertex, numWeights int) *metadata.VertexData {
	t.Helper()
	vd := metadata.NewVertexData(mgr)
	vd.VertexCount = len(verts)

	_, err := vd.Declaration.AddElement(0, 0, metadata.VET_FLOAT3, metadata.VES_POSITION, 0)
	require.NoError(t, err)
	_, err = vd.Declaration.AddElement(0, 12, metadata.VET_FLOAT3, metadata.VES_NORMAL, 0)
	require.NoError(t, err)
	wt, err := metadata.MultiplyTypeCount(metadata.VET_FLOAT1, numWeights)
	require.NoError(t, err)
	_, err = vd.Declaration.AddElement(1, 0, metadata.VET_UBYTE4, metadata.VES_BLEND_INDICES, 0)
	require.NoError(t, err)
	_, err = vd.Declaration.AddElement(1, 4, wt, metadata.VES_BLEND_WEIGHTS, 0)
	require.NoError(t, err)

	geom, err := mgr.CreateVertexBuffer(24, len(verts), hardware.UsageStatic, false)
	require.NoError(t, err)
	blendSize := 4 + 4*numWeights
	blendBuf, err := mgr.CreateVertexBuffer(blendSize, len(verts), hardware.UsageStatic, false)
	require.NoError(t, err)
	vd.Binding.SetBinding(0, geom)
	vd.Binding.SetBinding(1, blendBuf)

	g, err := geom.LockAll(hardware.LockDiscard)
	require.NoError(t, err)
	pos := hardware.NewElementView(g, 0, 24, len(verts))
	nrm := hardware.NewElementView(g, 12, 24, len(verts))
	for i, v := range verts {
		pos.SetFloat3(i, v.pos)
		nrm.SetFloat3(i, v.normal)
	}
	require.NoError(t, geom.Unlock())

	b, err := blendBuf.LockAll(hardware.LockDiscard)
	require.NoError(t, err)
	idx := hardware.NewElementView(b, 0, blendSize, len(verts))
	w := hardware.NewElementView(b, 4, blendSize, len(verts))
	for i, v := range verts {
		for slot := 0; slot < 4; slot++ {
			idx.SetUByte(i, slot, v.bones[slot])
		}
		for slot := 0; slot < numWeights; slot++ {
			if slot < len(v.weights) {
				w.SetFloat(i, slot, v.weights[slot])
			}
		}
	}
	require.NoError(t, blendBuf.Unlock())
	return vd
}

func assertVec3(t *testing.T, expected, actual math.Vec3) {
	t.Helper()
	assert.InDelta(t, expected.X, actual.X, 1e-5)
	assert.InDelta(t, expected.Y, actual.Y, 1e-5)
	assert.InDelta(t, expected.Z, actual.Z, 1e-5)
}

func sampleVertices() []skinnedVertex {
	return []skinnedVertex{
		{pos: math.Vec3{X: 1, Y: 2, Z: 3}, normal: math.Vec3{X: 0, Y: 0, Z: 1}, weights: []float32{1, 0}},
		{pos: math.Vec3{X: -1, Y: 0, Z: 4}, normal: math.Vec3{X: 0, Y: 1, Z: 0}, weights: []float32{1, 0}},
		{pos: math.Vec3{X: 5, Y: 5, Z: -2}, normal: math.Vec3{X: 1, Y: 0, Z: 0}, weights: []float32{1, 0}},
	}
}

func TestBlendIdentityRoundTrip(t *testing.T) {
	mgr := hardware.NewDefaultManager()
	verts := sampleVertices()
	src := newSkinnedData(t, mgr, verts, 2)
	dst, err := src.Clone(true, mgr)
	require.NoError(t, err)

	require.NoError(t, SoftwareVertexBlend(src, dst, []math.Affine3{math.NewAffine3Identity()}, true, false, false))

	positions, err := dst.ReadFloat3(metadata.VES_POSITION, 0)
	require.NoError(t, err)
	normals, err := dst.ReadFloat3(metadata.VES_NORMAL, 0)
	require.NoError(t, err)
	for i, v := range verts {
		assert.Equal(t, v.pos, positions[i])
		assert.Equal(t, v.normal, normals[i])
	}
}

func TestBlendTwoTranslations(t *testing.T) {
	mgr := hardware.NewDefaultManager()
	verts := sampleVertices()
	for i := range verts {
		verts[i].bones = [4]uint8{0, 1}
		verts[i].weights = []float32{0.5, 0.5}
	}
	src := newSkinnedData(t, mgr, verts, 2)
	dst, err := src.Clone(true, mgr)
	require.NoError(t, err)

	t1 := math.NewAffine3Translation(math.Vec3{X: 1})
	t2 := math.NewAffine3Translation(math.Vec3{Y: 2})
	require.NoError(t, SoftwareVertexBlend(src, dst, []math.Affine3{t1, t2}, true, false, false))

	positions, _ := dst.ReadFloat3(metadata.VES_POSITION, 0)
	normals, _ := dst.ReadFloat3(metadata.VES_NORMAL, 0)
	for i, v := range verts {
		expected := t1.TransformPoint(v.pos).MulScalar(0.5).Add(t2.TransformPoint(v.pos).MulScalar(0.5))
		assertVec3(t, expected, positions[i])
		assertVec3(t, v.normal, normals[i])
	}
}

func TestBlendZeroLengthNormalStaysZero(t *testing.T) {
	mgr := hardware.NewDefaultManager()
	verts := []skinnedVertex{
		{pos: math.Vec3{X: 1}, normal: math.Vec3{Z: 1}, bones: [4]uint8{0, 1}, weights: []float32{0.5, 0.5}},
	}
	src := newSkinnedData(t, mgr, verts, 2)
	dst, err := src.Clone(true, mgr)
	require.NoError(t, err)

	flip := math.Affine3{M: [3][3]float32{{-1, 0, 0}, {0, -1, 0}, {0, 0, -1}}}
	require.NoError(t, SoftwareVertexBlend(src, dst, []math.Affine3{math.NewAffine3Identity(), flip}, true, false, false))

	normals, _ := dst.ReadFloat3(metadata.VES_NORMAL, 0)
	assert.Equal(t, math.Vec3{}, normals[0])
}

func TestBlendInPlaceLocksSharedBufferOnce(t *testing.T) {
	mgr := hardware.NewDefaultManager()
	src := newSkinnedData(t, mgr, sampleVertices(), 2)
	dst, err := src.Clone(false, mgr)
	require.NoError(t, err)

	geom, _ := src.Binding.Buffer(0)
	before := geom.LockCount()

	move := math.NewAffine3Translation(math.Vec3{Z: 10})
	require.NoError(t, SoftwareVertexBlend(src, dst, []math.Affine3{move}, true, false, false))

	assert.Equal(t, before+1, geom.LockCount())
	assert.False(t, geom.IsLocked())
	positions, _ := src.ReadFloat3(metadata.VES_POSITION, 0)
	assert.Equal(t, float32(13), positions[0].Z)
}

func TestBlendBoneOutOfRange(t *testing.T) {
	mgr := hardware.NewDefaultManager()
	verts := sampleVertices()
	verts[1].bones = [4]uint8{3}
	src := newSkinnedData(t, mgr, verts, 2)
	dst, err := src.Clone(true, mgr)
	require.NoError(t, err)

	err = SoftwareVertexBlend(src, dst, []math.Affine3{math.NewAffine3Identity()}, true, false, false)
	assert.ErrorIs(t, err, core.ErrInvalidParams)

	for _, vd := range []*metadata.VertexData{src, dst} {
		for _, idx := range vd.Binding.Bindings() {
			buf, _ := vd.Binding.Buffer(idx)
			assert.False(t, buf.IsLocked())
		}
	}
}

func TestBlendRequiresBlendElements(t *testing.T) {
	mgr := hardware.NewDefaultManager()
	vd := metadata.NewVertexData(mgr)
	vd.VertexCount = 1
	require.NoError(t, vd.AddFloat3Element(metadata.VES_POSITION, 0, []math.Vec3{{}}, hardware.UsageStatic, false))

	err := SoftwareVertexBlend(vd, vd, nil, false, false, false)
	assert.ErrorIs(t, err, core.ErrItemNotFound)
}

func newPositionBuffer(t *testing.T, mgr hardware.Manager, positions []math.Vec3) *hardware.VertexBuffer {
	t.Helper()
	buf, err := mgr.CreateVertexBuffer(12, len(positions), hardware.UsageStatic, false)
	require.NoError(t, err)
	data, err := buf.LockAll(hardware.LockDiscard)
	require.NoError(t, err)
	view := hardware.NewElementView(data, 0, 12, len(positions))
	for i, p := range positions {
		view.SetFloat3(i, p)
	}
	require.NoError(t, buf.Unlock())
	return buf
}

func TestMorph(t *testing.T) {
	mgr := hardware.NewDefaultManager()
	a := []math.Vec3{{X: 0, Y: 0, Z: 0}, {X: 2, Y: 2, Z: 2}}
	b := []math.Vec3{{X: 2, Y: 4, Z: 6}, {X: 0, Y: 0, Z: 0}}
	bufA := newPositionBuffer(t, mgr, a)
	bufB := newPositionBuffer(t, mgr, b)

	dst := metadata.NewVertexData(mgr)
	dst.VertexCount = 2
	require.NoError(t, dst.AddFloat3Element(metadata.VES_POSITION, 0, make([]math.Vec3, 2), hardware.UsageStatic, false))

	cases := []struct {
		name     string
		t        float32
		expected []math.Vec3
	}{
		{"start", 0, a},
		{"end", 1, b},
		{"midpoint", 0.5, []math.Vec3{{X: 1, Y: 2, Z: 3}, {X: 1, Y: 1, Z: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, SoftwareVertexMorph(tc.t, bufA, bufB, dst))
			got, err := dst.ReadFloat3(metadata.VES_POSITION, 0)
			require.NoError(t, err)
			for i := range got {
				assertVec3(t, tc.expected[i], got[i])
			}
		})
	}
}

func TestPoseBlend(t *testing.T) {
	mgr := hardware.NewDefaultManager()
	dst := metadata.NewVertexData(mgr)
	dst.VertexCount = 3
	base := []math.Vec3{{X: 1}, {Y: 1}, {Z: 1}}
	require.NoError(t, dst.AddFloat3Element(metadata.VES_POSITION, 0, base, hardware.UsageStatic, false))
	buf, _ := dst.Binding.Buffer(0)
	offsets := map[uint32]math.Vec3{2: {X: 2}}

	before := buf.LockCount()
	require.NoError(t, SoftwareVertexPoseBlend(0, offsets, dst))
	assert.Equal(t, before, buf.LockCount())

	require.NoError(t, SoftwareVertexPoseBlend(0.5, offsets, dst))
	require.NoError(t, SoftwareVertexPoseBlend(0.5, offsets, dst))
	got, err := dst.ReadFloat3(metadata.VES_POSITION, 0)
	require.NoError(t, err)
	assertVec3(t, base[0], got[0])
	assertVec3(t, math.Vec3{X: 2, Z: 1}, got[2])

	err = SoftwareVertexPoseBlend(1, map[uint32]math.Vec3{7: {}}, dst)
	assert.ErrorIs(t, err, core.ErrInvalidParams)
}
