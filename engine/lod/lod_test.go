package lod

import (
	stdmath "math"
	"testing"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceStrategy(t *testing.T) {
	s := DistanceStrategy{}
	assert.Equal(t, float32(0), s.BaseValue())
	assert.Equal(t, float32(100), s.TransformUserValue(10))

	values := []float32{0, 100, 400}
	assert.True(t, s.IsSorted(values))
	assert.False(t, s.IsSorted([]float32{0, 400, 100}))
	assert.Equal(t, 0, s.Index(50, values))
	assert.Equal(t, 1, s.Index(100, values))
	assert.Equal(t, 2, s.Index(1000, values))
	assert.Equal(t, 0, s.Index(5, []float32{0}))
}

func TestPixelCountStrategy(t *testing.T) {
	s := PixelCountStrategy{}
	assert.Equal(t, float32(stdmath.MaxFloat32), s.BaseValue())
	assert.Equal(t, float32(640), s.TransformUserValue(640))

	values := []float32{s.BaseValue(), 10000, 500}
	assert.True(t, s.IsSorted(values))
	assert.Equal(t, 0, s.Index(20000, values))
	assert.Equal(t, 1, s.Index(800, values))
	assert.Equal(t, 2, s.Index(10, values))
}

func TestStrategyByName(t *testing.T) {
	s, err := StrategyByName("pixel_count")
	require.NoError(t, err)
	assert.Equal(t, "pixel_count", s.Name())
	s, err = StrategyByName("")
	require.NoError(t, err)
	assert.Equal(t, "distance", s.Name())
	_, err = StrategyByName("screen")
	assert.ErrorIs(t, err, core.ErrInvalidParams)
}

func grid(t *testing.T, mgr hardware.Manager) (*metadata.VertexData, *metadata.IndexData) {
	t.Helper()
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
	vd := metadata.NewVertexData(mgr)
	vd.VertexCount = len(positions)
	require.NoError(t, vd.AddFloat3Element(metadata.VES_POSITION, 0, positions, hardware.UsageStaticWriteOnly, true))
	id, err := metadata.NewIndexDataFromIndices(mgr, indices, hardware.UsageStaticWriteOnly, true)
	require.NoError(t, err)
	return vd, id
}

func TestProgressiveMeshReduces(t *testing.T) {
	mgr := hardware.NewDefaultManager()
	vd, id := grid(t, mgr)
	pm := NewProgressiveMesh(vd, id, mgr, hardware.UsageStaticWriteOnly, true)

	levels, err := pm.Build(2, ReductionConstant, 1)
	require.NoError(t, err)
	require.Len(t, levels, 2)

	prev := id.IndexCount
	for _, lvl := range levels {
		assert.Less(t, lvl.IndexCount, prev)
		assert.Zero(t, lvl.IndexCount%3)
		indices, err := lvl.Indices()
		require.NoError(t, err)
		for _, i := range indices {
			assert.Less(t, i, uint32(9))
		}
		prev = lvl.IndexCount
	}
}

func TestProgressiveMeshProportional(t *testing.T) {
	mgr := hardware.NewDefaultManager()
	vd, id := grid(t, mgr)
	pm := NewProgressiveMesh(vd, id, mgr, hardware.UsageStaticWriteOnly, true)

	levels, err := pm.Build(1, ReductionProportional, 0.5)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Less(t, levels[0].IndexCount, id.IndexCount)

	_, err = pm.Build(1, ReductionProportional, 1.5)
	assert.ErrorIs(t, err, core.ErrInvalidParams)
}

func TestProgressiveMeshWithoutTriangles(t *testing.T) {
	mgr := hardware.NewDefaultManager()
	vd, _ := grid(t, mgr)
	pm := NewProgressiveMesh(vd, metadata.NewIndexData(), mgr, hardware.UsageStaticWriteOnly, true)

	levels, err := pm.Build(2, ReductionConstant, 1)
	require.NoError(t, err)
	require.Len(t, levels, 2)
	for _, lvl := range levels {
		assert.Zero(t, lvl.IndexCount)
		assert.Nil(t, lvl.IndexBuffer)
	}
}
