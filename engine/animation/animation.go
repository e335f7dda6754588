package animation

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

/**
 * @brief A named, timed animation made of tracks: vertex tracks keyed by target
 * geometry handle and node tracks keyed by bone handle.
 */
type Animation struct {
	name         string
	length       float32
	vertexTracks map[uint16]*VertexAnimationTrack
	nodeTracks   map[uint16]*NodeAnimationTrack
	// called whenever a vertex track is added or removed
	onVertexTracksChanged func()
}

func NewAnimation(name string, length float32) *Animation {
	return &Animation{
		name:         name,
		length:       length,
		vertexTracks: map[uint16]*VertexAnimationTrack{},
		nodeTracks:   map[uint16]*NodeAnimationTrack{},
	}
}

func (a *Animation) Name() string {
	return a.name
}

func (a *Animation) Length() float32 {
	return a.length
}

func (a *Animation) SetLength(length float32) {
	a.length = length
}

// SetVertexTracksChangedListener installs fn to run after a vertex track is created or destroyed.
func (a *Animation) SetVertexTracksChangedListener(fn func()) {
	a.onVertexTracksChanged = fn
}

func (a *Animation) vertexTracksChanged() {
	if a.onVertexTracksChanged != nil {
		a.onVertexTracksChanged()
	}
}

/**
 * @brief Creates the vertex track for a target geometry.
 *
 * @param handle 0 for shared geometry, submesh index + 1 otherwise.
 * @param animType Morph or pose.
 */
func (a *Animation) CreateVertexTrack(handle uint16, animType VertexAnimationType) (*VertexAnimationTrack, error) {
	if animType == VAT_NONE {
		return nil, fmt.Errorf("vertex track %d needs morph or pose type: %w", handle, core.ErrInvalidParams)
	}
	if _, ok := a.vertexTracks[handle]; ok {
		return nil, fmt.Errorf("vertex track %d in animation '%s': %w", handle, a.name, core.ErrDuplicateItem)
	}
	t := &VertexAnimationTrack{handle: handle, animType: animType}
	a.vertexTracks[handle] = t
	a.vertexTracksChanged()
	return t, nil
}

func (a *Animation) VertexTrack(handle uint16) (*VertexAnimationTrack, error) {
	t, ok := a.vertexTracks[handle]
	if !ok {
		return nil, fmt.Errorf("vertex track %d in animation '%s': %w", handle, a.name, core.ErrItemNotFound)
	}
	return t, nil
}

func (a *Animation) HasVertexTrack(handle uint16) bool {
	_, ok := a.vertexTracks[handle]
	return ok
}

func (a *Animation) DestroyVertexTrack(handle uint16) {
	if _, ok := a.vertexTracks[handle]; !ok {
		return
	}
	delete(a.vertexTracks, handle)
	a.vertexTracksChanged()
}

func (a *Animation) NumVertexTracks() int {
	return len(a.vertexTracks)
}

// VertexTrackHandles returns the handles of the vertex tracks in ascending order.
func (a *Animation) VertexTrackHandles() []uint16 {
	return sortedHandles(a.vertexTracks)
}

func (a *Animation) CreateNodeTrack(boneHandle uint16) (*NodeAnimationTrack, error) {
	if _, ok := a.nodeTracks[boneHandle]; ok {
		return nil, fmt.Errorf("node track %d in animation '%s': %w", boneHandle, a.name, core.ErrDuplicateItem)
	}
	t := &NodeAnimationTrack{handle: boneHandle}
	a.nodeTracks[boneHandle] = t
	return t, nil
}

func (a *Animation) NodeTrack(boneHandle uint16) (*NodeAnimationTrack, error) {
	t, ok := a.nodeTracks[boneHandle]
	if !ok {
		return nil, fmt.Errorf("node track %d in animation '%s': %w", boneHandle, a.name, core.ErrItemNotFound)
	}
	return t, nil
}

func (a *Animation) NodeTrackHandles() []uint16 {
	return sortedHandles(a.nodeTracks)
}

// ApplyToSkeleton moves the bones driven by node tracks. Tracks without a matching bone are ignored.
func (a *Animation) ApplyToSkeleton(s *Skeleton, timePos, weight float32) {
	for _, h := range a.NodeTrackHandles() {
		b, err := s.Bone(h)
		if err != nil {
			continue
		}
		a.nodeTracks[h].Apply(b, timePos, weight)
	}
}

/**
 * @brief Applies every vertex track to its target.
 *
 * @param target Resolves a track handle to the vertex data to write. A nil result skips the track.
 * @param poses The pose list referenced by pose keyframes.
 */
func (a *Animation) ApplyToVertexData(target func(handle uint16) *metadata.VertexData, timePos, weight float32, poses []*Pose) error {
	for _, h := range a.VertexTrackHandles() {
		vd := target(h)
		if vd == nil {
			continue
		}
		if err := a.vertexTracks[h].Apply(vd, timePos, weight, poses); err != nil {
			return fmt.Errorf("animation '%s' track %d: %w", a.name, h, err)
		}
	}
	return nil
}

func sortedHandles[T any](m map[uint16]T) []uint16 {
	out := make([]uint16, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
