package resources

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResource struct {
	Resource
	loads   int
	unloads int
	fail    error
}

func (f *fakeResource) LoadImpl() error {
	f.loads++
	return f.fail
}

func (f *fakeResource) UnloadImpl() {
	f.unloads++
}

func (f *fakeResource) CalculateSize() uint64 {
	return 64
}

func TestLoadLifecycle(t *testing.T) {
	f := &fakeResource{Resource: NewResource("cube", "General", nil)}
	assert.Equal(t, StateUnloaded, f.State())
	assert.False(t, f.IsManual())

	require.NoError(t, f.Load(f))
	require.NoError(t, f.Touch(f))
	assert.True(t, f.IsLoaded())
	assert.Equal(t, 1, f.loads)
	assert.Equal(t, uint64(64), f.Size())

	require.NoError(t, f.Reload(f))
	assert.Equal(t, 2, f.loads)
	assert.Equal(t, 1, f.unloads)

	f.Unload(f)
	f.Unload(f)
	assert.Equal(t, StateUnloaded, f.State())
	assert.Equal(t, 2, f.unloads)
	assert.Zero(t, f.Size())
}

func TestLoadFailureResetsState(t *testing.T) {
	boom := errors.New("boom")
	f := &fakeResource{Resource: NewResource("broken", "General", nil), fail: boom}

	err := f.Load(f)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateUnloaded, f.State())
}

func TestManualLoader(t *testing.T) {
	var called Impl
	loader := ManualLoaderFunc(func(res Impl) error {
		called = res
		return nil
	})
	f := &fakeResource{Resource: NewResource("manual", "General", loader)}

	require.NoError(t, f.Load(f))
	assert.True(t, f.IsManual())
	assert.Same(t, f, called)
	assert.Zero(t, f.loads)
}

func TestHandlesAreUnique(t *testing.T) {
	a := NewResource("a", "General", nil)
	b := NewResource("a", "General", nil)
	assert.NotEqual(t, a.Handle(), b.Handle())
}
