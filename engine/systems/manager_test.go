package systems

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/anima-mesh/engine/assets"
	"github.com/spaghettifunk/anima-mesh/engine/assets/loaders"
	"github.com/spaghettifunk/anima-mesh/engine/config"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/mesh"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTriangleGLB(t *testing.T, path string) {
	t.Helper()
	m := mesh.New("triangle.glb", "General", mesh.Dependencies{})
	vd := m.CreateSharedVertexData()
	vd.VertexCount = 3
	require.NoError(t, vd.AddFloat3Element(metadata.VES_POSITION, 0, []math.Vec3{{}, {X: 2}, {Y: 1}}, hardware.UsageStatic, true))
	id, err := metadata.NewIndexDataFromIndices(m.Buffers(), []uint32{0, 1, 2}, hardware.UsageStatic, true)
	require.NoError(t, err)
	m.CreateSubMesh().SetIndexData(id)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, loaders.ExportGLB(m, f))
}

func TestSystemManagerLoadsFromAssetDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTriangleGLB(t, filepath.Join(dir, "props", "triangle.glb"))

	cfg := config.Default()
	cfg.Assets.BasePath = dir
	cfg.Mesh.PrepareForShadowVolumes = true
	sm, err := NewSystemManager(cfg, nil)
	require.NoError(t, err)

	require.NotNil(t, sm.Assets())
	assert.Equal(t, []string{"props/triangle.glb"}, sm.Assets().Assets(assets.AssetKindMesh))

	m, err := sm.Meshes().Acquire("triangle.glb", "General")
	require.NoError(t, err)
	assert.Equal(t, 1, m.NumSubMeshes())
	assert.Equal(t, float32(2), m.Bounds().Max.X)
	assert.True(t, m.IsEdgeListBuilt())
	assert.True(t, m.IsPreparedForShadowVolumes())

	require.NoError(t, sm.Shutdown())
	assert.False(t, m.IsLoaded())
	assert.Empty(t, sm.Skeletons().Names())
}

func TestSystemManagerWithoutAssets(t *testing.T) {
	sm, err := NewSystemManager(config.Default(), hardware.NewDefaultManager())
	require.NoError(t, err)
	assert.Nil(t, sm.Assets())
	assert.NotNil(t, sm.Jobs())
	assert.NotNil(t, sm.Buffers())
	require.NoError(t, sm.Shutdown())
}

func TestJobSystem(t *testing.T) {
	_, err := NewJobSystem(0, 0)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)

	js, err := NewJobSystem(2, 4)
	require.NoError(t, err)
	results := make(chan string, 2)
	require.NoError(t, js.Submit(JobTask{
		Name:       "ok",
		OnStart:    func() error { return nil },
		OnComplete: func() { results <- "complete" },
	}))
	require.NoError(t, js.Submit(JobTask{
		Name:      "fail",
		OnStart:   func() error { return ErrNoWorkers },
		OnFailure: func(err error) { results <- err.Error() },
	}))
	require.NoError(t, js.Shutdown())
	close(results)

	var got []string
	for r := range results {
		got = append(got, r)
	}
	assert.ElementsMatch(t, []string{"complete", ErrNoWorkers.Error()}, got)
	assert.ErrorIs(t, js.Submit(JobTask{OnStart: func() error { return nil }}), ErrJobSystemClosed)
	require.NoError(t, js.Shutdown())
}
