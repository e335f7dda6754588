package mesh

import (
	"errors"
	"io"
	gomath "math"
	"strings"
	"testing"

	"github.com/spaghettifunk/anima-mesh/engine/animation"
	"github.com/spaghettifunk/anima-mesh/engine/blend"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/edge"
	"github.com/spaghettifunk/anima-mesh/engine/lod"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-mesh/engine/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"golang.org/x/exp/slices"
)

// newQuadMesh builds a unit quad in the XY plane from two triangles sharing an edge,
// with texture coordinates following the positions.
func newQuadMesh(t *testing.T, deps Dependencies) *Mesh {
	t.Helper()
	m := New("quad", "General", deps)
	vd := m.CreateSharedVertexData()
	vd.VertexCount = 4
	positions := []math.Vec3{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	require.NoError(t, vd.AddFloat3Element(metadata.VES_POSITION, 0, positions, hardware.UsageStatic, true))
	uvs := []math.Vec2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	require.NoError(t, vd.AddFloat2Element(metadata.VES_TEXTURE_COORDINATES, 0, uvs, hardware.UsageStatic, true))

	sm := m.CreateSubMesh()
	id, err := metadata.NewIndexDataFromIndices(m.Buffers(), []uint32{0, 1, 2, 0, 2, 3}, hardware.UsageStatic, true)
	require.NoError(t, err)
	sm.SetIndexData(id)
	return m
}

// newGridMesh builds a 3x3 vertex grid of eight triangles.
func newGridMesh(t *testing.T, deps Dependencies) *Mesh {
	t.Helper()
	m := New("grid", "General", deps)
	var positions []math.Vec3
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			positions = append(positions, math.Vec3{X: float32(x) * (1 + float32(y)*0.1), Y: float32(y)})
		}
	}
	var indices []uint32
	for y := uint32(0); y < 2; y++ {
		for x := uint32(0); x < 2; x++ {
			a := y*3 + x
			indices = append(indices, a, a+1, a+4, a, a+4, a+3)
		}
	}
	vd := m.CreateSharedVertexData()
	vd.VertexCount = len(positions)
	require.NoError(t, vd.AddFloat3Element(metadata.VES_POSITION, 0, positions, hardware.UsageStatic, true))
	id, err := metadata.NewIndexDataFromIndices(m.Buffers(), indices, hardware.UsageStatic, true)
	require.NoError(t, err)
	m.CreateSubMesh().SetIndexData(id)
	return m
}

func TestRationalizeBoneAssignmentsProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		vertexCount := 1 + rng.Intn(6)
		var assignments BoneAssignments
		original := map[uint32][]VertexBoneAssignment{}
		mostBones := 0
		for v := 0; v < vertexCount; v++ {
			n := rng.Intn(11)
			mostBones = max(mostBones, n)
			for k := 0; k < n; k++ {
				vba := VertexBoneAssignment{VertexIndex: uint32(v), BoneIndex: uint16(k), Weight: 0.01 + rng.Float32()}
				if k > 0 && rng.Intn(4) == 0 {
					vba.Weight = original[uint32(v)][k-1].Weight
				}
				assignments.Add(vba)
				original[uint32(v)] = append(original[uint32(v)], vba)
			}
		}

		got := RationalizeBoneAssignments(vertexCount, &assignments)
		assert.Equal(t, min(mostBones, blend.MaxBlendWeights), got)

		for v := 0; v < vertexCount; v++ {
			kept := assignments.For(uint32(v))
			orig := original[uint32(v)]
			require.LessOrEqual(t, len(kept), blend.MaxBlendWeights)
			if len(orig) == 0 {
				assert.Empty(t, kept)
				continue
			}

			var sum float64
			for _, vba := range kept {
				sum += float64(vba.Weight)
			}
			assert.InDelta(t, 1.0, sum, 1.0/(1<<24))

			expected := slices.Clone(orig)
			slices.SortStableFunc(expected, func(a, b VertexBoneAssignment) int {
				switch {
				case a.Weight > b.Weight:
					return -1
				case a.Weight < b.Weight:
					return 1
				}
				return 0
			})
			expected = expected[:min(len(expected), blend.MaxBlendWeights)]
			var expectedBones, keptBones []uint16
			for _, vba := range expected {
				expectedBones = append(expectedBones, vba.BoneIndex)
			}
			for _, vba := range kept {
				keptBones = append(keptBones, vba.BoneIndex)
			}
			assert.ElementsMatch(t, expectedBones, keptBones)
		}
	}
}

func TestRationalizeKeepsNormalisedWeights(t *testing.T) {
	var assignments BoneAssignments
	assignments.Add(VertexBoneAssignment{VertexIndex: 0, BoneIndex: 0, Weight: 0.25})
	assignments.Add(VertexBoneAssignment{VertexIndex: 0, BoneIndex: 1, Weight: 0.75})

	assert.Equal(t, 2, RationalizeBoneAssignments(1, &assignments))
	kept := assignments.For(0)
	assert.Equal(t, float32(0.25), kept[0].Weight)
	assert.Equal(t, float32(0.75), kept[1].Weight)
}

func TestCompileBoneAssignments(t *testing.T) {
	m := newQuadMesh(t, Dependencies{})
	vd := m.SharedVertexData()
	m.AddBoneAssignment(VertexBoneAssignment{VertexIndex: 0, BoneIndex: 2, Weight: 1})
	m.AddBoneAssignment(VertexBoneAssignment{VertexIndex: 1, BoneIndex: 0, Weight: 0.5})
	m.AddBoneAssignment(VertexBoneAssignment{VertexIndex: 1, BoneIndex: 1, Weight: 0.5})
	assert.True(t, m.BoneAssignmentsOutOfDate())

	require.NoError(t, m.CompileBoneAssignments())
	assert.False(t, m.BoneAssignmentsOutOfDate())

	// blend elements follow the position element group
	indices, err := vd.Declaration.Element(1)
	require.NoError(t, err)
	assert.Equal(t, metadata.VES_BLEND_INDICES, indices.Semantic)
	weights, err := vd.Declaration.Element(2)
	require.NoError(t, err)
	assert.Equal(t, metadata.VES_BLEND_WEIGHTS, weights.Semantic)
	assert.Equal(t, metadata.VET_FLOAT2, weights.Type)
	assert.Equal(t, indices.Source, weights.Source)

	buf, err := vd.Binding.Buffer(indices.Source)
	require.NoError(t, err)
	data := make([]byte, buf.SizeInBytes())
	require.NoError(t, buf.ReadData(0, data))
	stride := buf.VertexSize()
	iv := hardware.NewElementView(data, 0, stride, 4)
	wv := hardware.NewElementView(data, 4, stride, 4)
	assert.Equal(t, uint8(2), iv.UByte(0, 0))
	assert.Equal(t, float32(1), wv.Float(0, 0))
	assert.Equal(t, float32(0), wv.Float(0, 1))
	assert.Equal(t, uint8(1), iv.UByte(1, 1))
	assert.Equal(t, float32(0.5), wv.Float(1, 1))
	assert.Equal(t, float32(0), wv.Float(3, 0))

	// compiling again replaces the blend buffer instead of adding one
	bound := vd.Binding.Count()
	require.NoError(t, m.CompileBoneAssignments())
	assert.Equal(t, bound, vd.Binding.Count())
	assert.Equal(t, []uint16{0, 1, 2}, m.BlendIndexToBoneIndexMap())
}

// dirtyManager hands out vertex buffers whose memory is filled with 0xFF.
type dirtyManager struct {
	*hardware.DefaultManager
}

func (d dirtyManager) CreateVertexBuffer(vertexSize, numVertices int, usage hardware.Usage, useShadow bool) (*hardware.VertexBuffer, error) {
	vb, err := d.DefaultManager.CreateVertexBuffer(vertexSize, numVertices, usage, useShadow)
	if err != nil {
		return nil, err
	}
	garbage := make([]byte, vb.SizeInBytes())
	for i := range garbage {
		garbage[i] = 0xFF
	}
	if err := vb.WriteData(0, garbage, true); err != nil {
		return nil, err
	}
	return vb, nil
}

func TestCompileBoneAssignmentsZeroesUnusedIndexSlots(t *testing.T) {
	m := newQuadMesh(t, Dependencies{Buffers: dirtyManager{hardware.NewDefaultManager()}})
	m.AddBoneAssignment(VertexBoneAssignment{VertexIndex: 0, BoneIndex: 3, Weight: 1})
	require.NoError(t, m.CompileBoneAssignments())

	vd := m.SharedVertexData()
	indices, ok := vd.Declaration.FindElementBySemantic(metadata.VES_BLEND_INDICES, 0)
	require.True(t, ok)
	buf, err := vd.Binding.Buffer(indices.Source)
	require.NoError(t, err)
	data := make([]byte, buf.SizeInBytes())
	require.NoError(t, buf.ReadData(0, data))
	iv := hardware.NewElementView(data, indices.Offset, buf.VertexSize(), vd.VertexCount)
	for v := 0; v < vd.VertexCount; v++ {
		for slot := 1; slot < 4; slot++ {
			assert.Equal(t, uint8(0), iv.UByte(v, slot), "vertex %d slot %d", v, slot)
		}
	}
	assert.Equal(t, uint8(3), iv.UByte(0, 0))
	assert.Equal(t, uint8(0), iv.UByte(1, 0))
}

func TestCompileBoneAssignmentsRejectsUnknownVertex(t *testing.T) {
	m := newQuadMesh(t, Dependencies{})
	m.AddBoneAssignment(VertexBoneAssignment{VertexIndex: 9, BoneIndex: 0, Weight: 1})
	// vertex 9 is outside the rationalised range, so only compile sees it
	m.AddBoneAssignment(VertexBoneAssignment{VertexIndex: 0, BoneIndex: 0, Weight: 1})
	err := m.CompileBoneAssignments()
	assert.ErrorIs(t, err, core.ErrInvalidParams)
}

func TestSkinnedCubeRotatesAboutZ(t *testing.T) {
	skeletons := animation.NewSkeletonRegistry()
	skel, err := skeletons.Create("cube.skeleton", "General")
	require.NoError(t, err)
	root, err := skel.CreateBone("root")
	require.NoError(t, err)
	skel.SetBindingPose()

	m := New("cube", "General", Dependencies{Skeletons: skeletons})
	m.SetSkeletonName("cube.skeleton")
	require.Same(t, skel, m.Skeleton())

	var corners []math.Vec3
	for _, x := range []float32{-1, 1} {
		for _, y := range []float32{-1, 1} {
			for _, z := range []float32{-1, 1} {
				corners = append(corners, math.Vec3{X: x, Y: y * 2, Z: z * 3})
			}
		}
	}
	vd := m.CreateSharedVertexData()
	vd.VertexCount = len(corners)
	require.NoError(t, vd.AddFloat3Element(metadata.VES_POSITION, 0, corners, hardware.UsageStatic, true))
	for v := range corners {
		m.AddBoneAssignment(VertexBoneAssignment{VertexIndex: uint32(v), BoneIndex: root.Handle(), Weight: 1})
	}

	set := animation.NewAnimationStateSet()
	require.NoError(t, m.InitAnimationState(set))
	assert.False(t, m.BoneAssignmentsOutOfDate())

	root.Rotate(math.NewQuatFromAxisAngle(math.Vec3{Z: 1}, math.K_HALF_PI, true))

	dst, err := vd.Clone(true, nil)
	require.NoError(t, err)
	require.NoError(t, blend.SoftwareVertexBlend(vd, dst, skel.OffsetMatrices(), false, false, false))

	got, err := dst.ReadFloat3(metadata.VES_POSITION, 0)
	require.NoError(t, err)
	for i, c := range corners {
		assert.InDelta(t, -c.Y, got[i].X, 1e-5)
		assert.InDelta(t, c.X, got[i].Y, 1e-5)
		assert.InDelta(t, c.Z, got[i].Z, 1e-5)
	}
}

func TestMissingSkeletonIsNotFatal(t *testing.T) {
	m := New("lonely", "General", Dependencies{Skeletons: animation.NewSkeletonRegistry()})
	m.SetSkeletonName("nowhere.skeleton")
	assert.True(t, m.HasSkeleton())
	assert.Nil(t, m.Skeleton())

	m.SetSkeletonName("")
	assert.False(t, m.HasSkeleton())
}

func TestGenerateAndRemoveLodLevels(t *testing.T) {
	m := newGridMesh(t, Dependencies{})
	require.NoError(t, m.GenerateLodLevels([]float32{10, 20}, lod.ReductionConstant, 1))

	assert.Equal(t, 3, m.NumLodLevels())
	assert.False(t, m.IsLodManual())
	level, err := m.LodLevel(1)
	require.NoError(t, err)
	assert.Equal(t, float32(10), level.UserValue)
	assert.Equal(t, float32(100), level.Value)
	sm, _ := m.SubMesh(0)
	assert.Equal(t, 2, sm.NumLodFaceLists())
	reduced, err := sm.LodIndexData(2)
	require.NoError(t, err)
	assert.Less(t, reduced.IndexCount, sm.IndexData().IndexCount)

	assert.Equal(t, 0, m.LodIndex(50))
	assert.Equal(t, 1, m.LodIndex(150))
	assert.Equal(t, 2, m.LodIndex(1000))

	m.RemoveLodLevels()
	assert.Equal(t, 1, m.NumLodLevels())
	base, err := m.LodLevel(0)
	require.NoError(t, err)
	assert.True(t, gomath.IsNaN(float64(base.UserValue)))
	assert.Equal(t, float32(0), base.Value)
	assert.Equal(t, 0, sm.NumLodFaceLists())

	_, err = m.LodLevel(1)
	assert.ErrorIs(t, err, core.ErrItemNotFound)
}

func TestGenerateLodLevelsRejectsUnsortedValues(t *testing.T) {
	m := newGridMesh(t, Dependencies{})
	err := m.GenerateLodLevels([]float32{20, 10}, lod.ReductionConstant, 1)
	assert.ErrorIs(t, err, core.ErrInvalidParams)
	assert.Equal(t, 1, m.NumLodLevels())
}

func TestSetLodStrategyTransformsValues(t *testing.T) {
	m := newGridMesh(t, Dependencies{})
	require.NoError(t, m.GenerateLodLevels([]float32{10}, lod.ReductionProportional, 0.5))
	m.SetLodStrategy(lod.PixelCountStrategy{})
	base, _ := m.LodLevel(0)
	level, _ := m.LodLevel(1)
	assert.Equal(t, float32(gomath.MaxFloat32), base.Value)
	assert.Equal(t, float32(10), level.Value)
}

type meshLoaderFunc func(name, group string) (*Mesh, error)

func (f meshLoaderFunc) LoadMesh(name, group string) (*Mesh, error) {
	return f(name, group)
}

func TestManualLodEntries(t *testing.T) {
	loads := 0
	var loader meshLoaderFunc = func(name, group string) (*Mesh, error) {
		loads++
		assert.Equal(t, "General", group)
		return newQuadMesh(t, Dependencies{}), nil
	}
	m := newGridMesh(t, Dependencies{Meshes: loader})
	m.SetAutoBuildEdgeLists(false)

	entries := []ManualLodEntry{{UserValue: 10, MeshName: "grid_lod1"}, {UserValue: 30, MeshName: "grid_lod2"}}
	require.NoError(t, m.AddManualLodEntries(entries))
	assert.True(t, m.IsLodManual())
	assert.Equal(t, 3, m.NumLodLevels())

	err := m.AddManualLodEntries(entries)
	assert.ErrorIs(t, err, core.ErrManualLodState)

	level, err := m.LodLevel(1)
	require.NoError(t, err)
	require.NotNil(t, level.ManualMesh)
	assert.NotNil(t, level.EdgeData)
	_, err = m.LodLevel(1)
	require.NoError(t, err)
	assert.Equal(t, 1, loads)

	require.NoError(t, m.UpdateManualLodLevel(1, "grid_other"))
	level, _ = m.LodLevel(1)
	assert.Equal(t, "grid_other", level.ManualName)
	assert.Equal(t, 2, loads)
	assert.ErrorIs(t, m.UpdateManualLodLevel(0, "x"), core.ErrInvalidParams)

	m.RemoveLodLevels()
	assert.False(t, m.IsLodManual())
	assert.ErrorIs(t, m.UpdateManualLodLevel(1, "x"), core.ErrManualLodState)

	generated := newGridMesh(t, Dependencies{})
	require.NoError(t, generated.GenerateLodLevels([]float32{10}, lod.ReductionConstant, 1))
	assert.ErrorIs(t, generated.AddManualLodEntries(entries), core.ErrManualLodState)
}

type countingEdgeBuilder struct {
	*edge.Builder
	builds *int
}

func (b countingEdgeBuilder) Build() (*edge.EdgeData, error) {
	*b.builds++
	return b.Builder.Build()
}

func TestBuildEdgeListIsIdempotent(t *testing.T) {
	builds := 0
	deps := Dependencies{NewEdgeBuilder: func() EdgeBuilder {
		return countingEdgeBuilder{Builder: edge.NewBuilder(), builds: &builds}
	}}
	m := newQuadMesh(t, deps)

	require.NoError(t, m.BuildEdgeList())
	require.NoError(t, m.BuildEdgeList())
	assert.Equal(t, 1, builds)
	assert.True(t, m.IsEdgeListBuilt())

	ed, err := m.EdgeList(0)
	require.NoError(t, err)
	require.NotNil(t, ed)
	assert.Len(t, ed.Triangles, 2)
	assert.False(t, ed.IsClosed)
	assert.Equal(t, 1, builds)

	m.FreeEdgeList()
	assert.False(t, m.IsEdgeListBuilt())
	base, _ := m.LodLevel(0)
	assert.Nil(t, base.EdgeData)
	_, err = m.EdgeList(0)
	require.NoError(t, err)
	assert.Equal(t, 2, builds)
}

func TestEdgeListsForGeneratedLevels(t *testing.T) {
	m := newGridMesh(t, Dependencies{})
	require.NoError(t, m.GenerateLodLevels([]float32{10}, lod.ReductionConstant, 1))
	require.NoError(t, m.BuildEdgeList())
	full, err := m.EdgeList(0)
	require.NoError(t, err)
	reduced, err := m.EdgeList(1)
	require.NoError(t, err)
	assert.Less(t, len(reduced.Triangles), len(full.Triangles))
}

func TestPrepareForShadowVolume(t *testing.T) {
	m := newQuadMesh(t, Dependencies{})
	require.NoError(t, m.PrepareForShadowVolume())
	assert.True(t, m.IsPreparedForShadowVolumes())
	assert.NotNil(t, m.SharedVertexData().HardwareShadowVolWBuffer)
	// a second call leaves the doubled buffers alone
	require.NoError(t, m.PrepareForShadowVolume())
	pos, _ := m.SharedVertexData().Declaration.FindElementBySemantic(metadata.VES_POSITION, 0)
	buf, _ := m.SharedVertexData().Binding.Buffer(pos.Source)
	assert.Equal(t, 8, buf.NumVertices())
}

func TestVertexAnimationTypes(t *testing.T) {
	m := newQuadMesh(t, Dependencies{})
	sm, _ := m.SubMesh(0)
	_, err := sm.CreateVertexData()
	assert.ErrorIs(t, err, core.ErrInvalidParams)
	m.CreateSubMesh()

	morph, err := m.CreateAnimation("morph", 1)
	require.NoError(t, err)
	_, err = morph.CreateVertexTrack(0, animation.VAT_MORPH)
	require.NoError(t, err)
	_, err = morph.CreateVertexTrack(2, animation.VAT_MORPH)
	require.NoError(t, err)
	m.InvalidateAnimationTypes()

	shared, err := m.VertexAnimationTypeFor(0)
	require.NoError(t, err)
	assert.Equal(t, animation.VAT_MORPH, shared)
	first, err := m.VertexAnimationTypeFor(1)
	require.NoError(t, err)
	assert.Equal(t, animation.VAT_NONE, first)

	pose, err := m.CreateAnimation("pose", 1)
	require.NoError(t, err)
	_, err = pose.CreateVertexTrack(2, animation.VAT_POSE)
	require.NoError(t, err)

	_, err = m.VertexAnimationTypeFor(2)
	assert.ErrorIs(t, err, core.ErrVertexAnimationTypeMix)
	_, err = m.VertexAnimationTypeFor(7)
	assert.ErrorIs(t, err, core.ErrItemNotFound)

	require.NoError(t, m.RemoveAnimation("morph"))
	second, err := m.VertexAnimationTypeFor(2)
	require.NoError(t, err)
	assert.Equal(t, animation.VAT_POSE, second)
}

func TestVertexTrackAddedAfterQueryIsChecked(t *testing.T) {
	m := newQuadMesh(t, Dependencies{})
	a, err := m.CreateAnimation("a", 1)
	require.NoError(t, err)
	b, err := m.CreateAnimation("b", 1)
	require.NoError(t, err)
	_, err = a.CreateVertexTrack(0, animation.VAT_MORPH)
	require.NoError(t, err)

	kind, err := m.SharedVertexDataAnimationType()
	require.NoError(t, err)
	assert.Equal(t, animation.VAT_MORPH, kind)

	_, err = b.CreateVertexTrack(0, animation.VAT_POSE)
	require.NoError(t, err)
	_, err = m.SharedVertexDataAnimationType()
	assert.ErrorIs(t, err, core.ErrVertexAnimationTypeMix)
	assert.ErrorIs(t, m.ApplyVertexAnimation(animation.NewAnimationStateSet(), m.VertexDataFor), core.ErrVertexAnimationTypeMix)

	b.DestroyVertexTrack(0)
	kind, err = m.SharedVertexDataAnimationType()
	require.NoError(t, err)
	assert.Equal(t, animation.VAT_MORPH, kind)

	// removed animations no longer report into the mesh
	require.NoError(t, m.RemoveAnimation("b"))
	_, err = m.SharedVertexDataAnimationType()
	require.NoError(t, err)
	_, err = b.CreateVertexTrack(0, animation.VAT_POSE)
	require.NoError(t, err)
	kind, err = m.SharedVertexDataAnimationType()
	require.NoError(t, err)
	assert.Equal(t, animation.VAT_MORPH, kind)
}

func TestAnimationAndPoseBookkeeping(t *testing.T) {
	m := newQuadMesh(t, Dependencies{})
	_, err := m.CreateAnimation("wave", 2)
	require.NoError(t, err)
	_, err = m.CreateAnimation("bounce", 1)
	require.NoError(t, err)
	_, err = m.CreateAnimation("wave", 3)
	assert.ErrorIs(t, err, core.ErrDuplicateItem)

	first, err := m.AnimationAt(0)
	require.NoError(t, err)
	assert.Equal(t, "bounce", first.Name())
	_, err = m.Animation("missing")
	assert.ErrorIs(t, err, core.ErrItemNotFound)
	assert.True(t, m.HasVertexAnimation())

	set := animation.NewAnimationStateSet()
	require.NoError(t, m.InitAnimationState(set))
	assert.Equal(t, []string{"bounce", "wave"}, set.Names())
	st, _ := set.AnimationState("wave")
	assert.False(t, st.Enabled())
	assert.Equal(t, float32(2), st.Length())

	smile, err := m.CreatePose(0, "smile")
	require.NoError(t, err)
	_, err = m.CreatePose(0, "frown")
	require.NoError(t, err)
	_, err = m.CreatePose(0, "smile")
	assert.ErrorIs(t, err, core.ErrDuplicateItem)
	_, err = m.CreatePose(5, "far")
	assert.ErrorIs(t, err, core.ErrInvalidParams)

	require.NoError(t, m.RemovePose(0))
	p, err := m.Pose(0)
	require.NoError(t, err)
	assert.Equal(t, "frown", p.Name())
	_, err = m.PoseByName(smile.Name())
	assert.ErrorIs(t, err, core.ErrItemNotFound)

	m.RemoveAllPoses()
	m.RemoveAllAnimations()
	assert.Equal(t, 0, m.NumPoses())
	assert.False(t, m.HasVertexAnimation())
}

func TestApplyPoseAnimation(t *testing.T) {
	m := newQuadMesh(t, Dependencies{})
	raise, err := m.CreatePose(0, "raise")
	require.NoError(t, err)
	raise.AddVertex(2, math.Vec3{Z: 2})

	anim, err := m.CreateAnimation("lift", 1)
	require.NoError(t, err)
	track, err := anim.CreateVertexTrack(0, animation.VAT_POSE)
	require.NoError(t, err)
	k0, err := track.CreatePoseKeyFrame(0)
	require.NoError(t, err)
	k0.AddPoseReference(0, 0)
	k1, err := track.CreatePoseKeyFrame(1)
	require.NoError(t, err)
	k1.AddPoseReference(0, 1)

	set := animation.NewAnimationStateSet()
	require.NoError(t, m.InitAnimationState(set))
	st, _ := set.AnimationState("lift")
	st.SetEnabled(true)
	st.SetTimePosition(0.5)

	work, err := m.SharedVertexData().Clone(true, nil)
	require.NoError(t, err)
	require.NoError(t, m.ApplyVertexAnimation(set, func(handle uint16) *metadata.VertexData {
		if handle == 0 {
			return work
		}
		return nil
	}))
	got, err := work.ReadFloat3(metadata.VES_POSITION, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got[2].Z, 1e-5)
	assert.Equal(t, float32(0), got[0].Z)
}

func TestBoundsAndRadius(t *testing.T) {
	m := New("box", "General", Dependencies{})
	box := math.Extents3D{Min: math.Vec3{X: -1, Y: -2, Z: -2}, Max: math.Vec3{X: 3, Y: 0, Z: 0}}
	m.SetBounds(box, false)
	assert.Equal(t, box, m.Bounds())
	assert.Equal(t, float32(3), m.BoundingSphereRadius())

	m.SetBounds(box, true)
	assert.InDelta(t, -1.04, m.Bounds().Min.X, 1e-5)
	assert.InDelta(t, 3.04, m.Bounds().Max.X, 1e-5)
	assert.InDelta(t, 3.03, m.BoundingSphereRadius(), 1e-5)

	q := newQuadMesh(t, Dependencies{})
	require.NoError(t, q.ComputeBounds())
	assert.Equal(t, math.Vec3{X: 1, Y: 1}, q.Bounds().Max)
	assert.InDelta(t, gomath.Sqrt2, q.BoundingSphereRadius(), 1e-5)

	// a submesh with its own vertices widens the shared bounds
	own := q.CreateSubMesh()
	vd, err := own.CreateVertexData()
	require.NoError(t, err)
	vd.VertexCount = 2
	require.NoError(t, vd.AddFloat3Element(metadata.VES_POSITION, 0,
		[]math.Vec3{{X: -2, Y: 0.5, Z: 1}, {X: 0.5, Y: 0.5, Z: -1}}, hardware.UsageStatic, true))
	require.NoError(t, q.ComputeBounds())
	assert.Equal(t, math.Extents3D{Min: math.Vec3{X: -2, Y: 0, Z: -1}, Max: math.Vec3{X: 1, Y: 1, Z: 1}}, q.Bounds())
}

func TestBuildTangentVectors(t *testing.T) {
	m := newQuadMesh(t, Dependencies{})
	err := m.BuildTangentVectors(metadata.VES_TEXTURE_COORDINATES, 0, 0)
	assert.ErrorIs(t, err, core.ErrInvalidParams)
	err = m.BuildTangentVectors(metadata.VES_NORMAL, 0, 0)
	assert.ErrorIs(t, err, core.ErrInvalidParams)

	require.NoError(t, m.BuildTangentVectors(metadata.VES_TANGENT, 0, 0))
	tangents, err := m.SharedVertexData().ReadFloat3(metadata.VES_TANGENT, 0)
	require.NoError(t, err)
	for _, tan := range tangents {
		assert.InDelta(t, 1.0, tan.X, 1e-5)
		assert.InDelta(t, 0.0, tan.Y, 1e-5)
	}

	// building again overwrites the existing element
	require.NoError(t, m.BuildTangentVectors(metadata.VES_TANGENT, 0, 0))
	assert.Len(t, m.SharedVertexData().Declaration.FindElementsBySource(2), 1)
}

func TestSubMeshes(t *testing.T) {
	m := newQuadMesh(t, Dependencies{})
	sm, err := m.CreateSubMeshNamed("hull")
	require.NoError(t, err)
	_, err = m.CreateSubMeshNamed("hull")
	assert.ErrorIs(t, err, core.ErrDuplicateItem)

	assert.ErrorIs(t, sm.AddBoneAssignment(VertexBoneAssignment{}), core.ErrInvalidParams)
	vd, err := sm.CreateVertexData()
	require.NoError(t, err)
	assert.Same(t, vd, sm.VertexData())
	assert.ErrorIs(t, sm.SetVertexData(vd), core.ErrInvalidParams)
	vd.VertexCount = 3
	require.NoError(t, vd.AddFloat3Element(metadata.VES_POSITION, 0, []math.Vec3{{}, {X: 1}, {Y: 1}}, hardware.UsageStatic, true))
	require.NoError(t, sm.AddBoneAssignment(VertexBoneAssignment{VertexIndex: 1, BoneIndex: 0, Weight: 1}))
	sm.SetMaterialName("steel")

	clone, err := sm.Clone("hull_copy", nil)
	require.NoError(t, err)
	assert.Equal(t, "steel", clone.MaterialName())
	assert.Equal(t, "hull_copy", clone.Name())
	assert.Equal(t, 1, clone.BoneAssignments().Len())
	assert.NotSame(t, sm.VertexData(), clone.VertexData())
	idx, err := m.SubMeshIndex("hull_copy")
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	require.NoError(t, m.DestroySubMesh(1))
	idx, err = m.SubMeshIndex("hull_copy")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	_, err = m.SubMeshByName("hull")
	assert.ErrorIs(t, err, core.ErrItemNotFound)
	assert.Equal(t, 2, m.NumSubMeshes())
}

func TestCloneKeepsUnreducedLodLevelsShared(t *testing.T) {
	buffers := hardware.NewDefaultManager()
	m := newQuadMesh(t, Dependencies{Buffers: buffers})
	sm, err := m.SubMesh(0)
	require.NoError(t, err)
	sm.SetOperationType(metadata.OT_TRIANGLE_STRIP)
	require.NoError(t, m.GenerateLodLevels([]float32{10, 20}, lod.ReductionConstant, 1))
	for _, l := range sm.LodFaceList() {
		assert.Same(t, sm.IndexData(), l)
	}

	before := buffers.IndexBufferCount()
	clone, err := sm.Clone("strip_copy", nil)
	require.NoError(t, err)
	assert.Equal(t, before+1, buffers.IndexBufferCount())
	assert.NotSame(t, sm.IndexData(), clone.IndexData())
	require.Len(t, clone.LodFaceList(), 2)
	for level := 1; level <= 2; level++ {
		id, err := clone.LodIndexData(level)
		require.NoError(t, err)
		assert.Same(t, clone.IndexData(), id)
	}
}

type stubSerializer struct {
	err error
}

func (s stubSerializer) ImportMesh(r io.Reader, m *Mesh) error {
	if s.err != nil {
		return s.err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.SetSkeletonName(string(body))
	vd := m.CreateSharedVertexData()
	vd.VertexCount = 3
	if err := vd.AddFloat3Element(metadata.VES_POSITION, 0, []math.Vec3{{}, {X: 1}, {Y: 1}}, hardware.UsageStatic, true); err != nil {
		return err
	}
	id, err := metadata.NewIndexDataFromIndices(m.Buffers(), []uint32{0, 1, 2}, hardware.UsageStatic, true)
	if err != nil {
		return err
	}
	m.CreateSubMesh().SetIndexData(id)
	return nil
}

func TestLoadAndUnload(t *testing.T) {
	deps := Dependencies{
		Skeletons:               animation.NewSkeletonRegistry(),
		Serializers:             map[string]Serializer{".stub": stubSerializer{}},
		Open:                    func(name string) (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("absent.skeleton")), nil },
		PrepareForShadowVolumes: true,
	}
	m := New("triangle.STUB", "General", deps)
	require.NoError(t, m.Load())
	assert.True(t, m.IsLoaded())
	assert.Equal(t, 1, m.NumSubMeshes())
	assert.True(t, m.IsEdgeListBuilt())
	assert.True(t, m.IsPreparedForShadowVolumes())
	assert.Equal(t, "absent.skeleton", m.SkeletonName())
	assert.Nil(t, m.Skeleton())
	assert.NotZero(t, m.Size())

	m.Unload()
	assert.False(t, m.IsLoaded())
	assert.Equal(t, 0, m.NumSubMeshes())
	assert.Nil(t, m.SharedVertexData())
	assert.False(t, m.HasSkeleton())
	assert.Equal(t, 1, m.NumLodLevels())
}

func TestLoadFailures(t *testing.T) {
	open := func(name string) (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("")), nil }

	unknown := New("thing.xyz", "General", Dependencies{Open: open})
	err := unknown.Load()
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
	assert.False(t, unknown.IsLoaded())

	boom := errors.New("corrupt")
	broken := New("thing.stub", "General", Dependencies{
		Open:        open,
		Serializers: map[string]Serializer{".stub": stubSerializer{err: boom}},
	})
	assert.ErrorIs(t, broken.Load(), boom)
	assert.False(t, broken.IsLoaded())
}

func TestManualMeshLoad(t *testing.T) {
	calls := 0
	m := NewManual("procedural", "General", resources.ManualLoaderFunc(func(res resources.Impl) error {
		calls++
		mesh := res.(*Mesh)
		mesh.CreateSharedVertexData()
		return nil
	}), Dependencies{})
	require.NoError(t, m.Load())
	assert.True(t, m.IsManual())
	assert.Equal(t, 1, calls)
	require.NoError(t, m.Reload())
	assert.Equal(t, 2, calls)
}
