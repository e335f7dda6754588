package mesh

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/anima-mesh/engine/animation"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

/* Vertex animations */

// CreateAnimation adds a vertex animation. Track handle 0 targets the shared
// vertex data and handle i+1 submesh i.
func (m *Mesh) CreateAnimation(name string, length float32) (*animation.Animation, error) {
	if _, ok := m.animations[name]; ok {
		return nil, fmt.Errorf("animation '%s' in mesh '%s': %w", name, m.Name(), core.ErrDuplicateItem)
	}
	a := animation.NewAnimation(name, length)
	a.SetVertexTracksChangedListener(m.InvalidateAnimationTypes)
	m.animations[name] = a
	m.animationTypesDirty = true
	return a, nil
}

func (m *Mesh) Animation(name string) (*animation.Animation, error) {
	a, ok := m.animations[name]
	if !ok {
		return nil, fmt.Errorf("animation '%s' in mesh '%s': %w", name, m.Name(), core.ErrItemNotFound)
	}
	return a, nil
}

// AnimationAt returns the i-th animation in name order.
func (m *Mesh) AnimationAt(i int) (*animation.Animation, error) {
	names := m.AnimationNames()
	if i < 0 || i >= len(names) {
		return nil, fmt.Errorf("animation %d in mesh '%s': %w", i, m.Name(), core.ErrItemNotFound)
	}
	return m.animations[names[i]], nil
}

func (m *Mesh) AnimationNames() []string {
	names := make([]string, 0, len(m.animations))
	for n := range m.animations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *Mesh) HasAnimation(name string) bool {
	_, ok := m.animations[name]
	return ok
}

func (m *Mesh) NumAnimations() int {
	return len(m.animations)
}

func (m *Mesh) HasVertexAnimation() bool {
	return len(m.animations) > 0
}

func (m *Mesh) RemoveAnimation(name string) error {
	if _, ok := m.animations[name]; !ok {
		return fmt.Errorf("animation '%s' in mesh '%s': %w", name, m.Name(), core.ErrItemNotFound)
	}
	m.animations[name].SetVertexTracksChangedListener(nil)
	delete(m.animations, name)
	m.animationTypesDirty = true
	return nil
}

func (m *Mesh) RemoveAllAnimations() {
	for _, a := range m.animations {
		a.SetVertexTracksChangedListener(nil)
	}
	clear(m.animations)
	m.animationTypesDirty = true
}

// InvalidateAnimationTypes makes the next type query rescan the animation tracks.
// Animations created through CreateAnimation call it when their vertex tracks change.
func (m *Mesh) InvalidateAnimationTypes() {
	m.animationTypesDirty = true
}

/**
 * @brief Derives the vertex animation type of the shared vertex data and of every
 * submesh from the tracks of all animations. A geometry targeted by both morph and
 * pose tracks is an error.
 */
func (m *Mesh) determineAnimationTypes() error {
	m.sharedVertexDataAnimationType = animation.VAT_NONE
	for _, sm := range m.subMeshes {
		sm.vertexAnimationType = animation.VAT_NONE
	}
	for _, name := range m.AnimationNames() {
		a := m.animations[name]
		for _, handle := range a.VertexTrackHandles() {
			track, _ := a.VertexTrack(handle)
			kind := track.AnimationType()
			target := &m.sharedVertexDataAnimationType
			if handle > 0 {
				if int(handle) > len(m.subMeshes) {
					return fmt.Errorf("animation '%s' targets submesh %d of mesh '%s': %w", name, handle-1, m.Name(), core.ErrItemNotFound)
				}
				target = &m.subMeshes[handle-1].vertexAnimationType
			}
			if *target != animation.VAT_NONE && *target != kind {
				return fmt.Errorf("animation tracks for handle %d of mesh '%s': %w", handle, m.Name(), core.ErrVertexAnimationTypeMix)
			}
			*target = kind
		}
	}
	m.animationTypesDirty = false
	return nil
}

func (m *Mesh) SharedVertexDataAnimationType() (animation.VertexAnimationType, error) {
	if m.animationTypesDirty {
		if err := m.determineAnimationTypes(); err != nil {
			return animation.VAT_NONE, err
		}
	}
	return m.sharedVertexDataAnimationType, nil
}

// VertexAnimationTypeFor returns the animation type of a track handle's target.
func (m *Mesh) VertexAnimationTypeFor(handle uint16) (animation.VertexAnimationType, error) {
	if handle == 0 {
		return m.SharedVertexDataAnimationType()
	}
	if int(handle) > len(m.subMeshes) {
		return animation.VAT_NONE, fmt.Errorf("handle %d of mesh '%s': %w", handle, m.Name(), core.ErrItemNotFound)
	}
	return m.subMeshes[handle-1].VertexAnimationType()
}

// VertexDataFor returns the vertex data a track handle targets, or nil.
func (m *Mesh) VertexDataFor(handle uint16) *metadata.VertexData {
	if handle == 0 {
		return m.sharedVertexData
	}
	if int(handle) > len(m.subMeshes) {
		return nil
	}
	sm := m.subMeshes[handle-1]
	if sm.useSharedVertices {
		return nil
	}
	return sm.vertexData
}

/**
 * @brief Adds animation states to set: the skeleton's animations when there is a
 * skeleton, which also compiles outdated bone assignments, then every vertex
 * animation missing from set.
 */
func (m *Mesh) InitAnimationState(set *animation.AnimationStateSet) error {
	if m.HasSkeleton() && m.skeleton != nil {
		m.skeleton.InitAnimationState(set)
		if err := m.updateCompiledBoneAssignments(); err != nil {
			return err
		}
	}
	for _, name := range m.AnimationNames() {
		if set.HasAnimationState(name) {
			continue
		}
		if _, err := set.CreateAnimationState(name, 0, m.animations[name].Length(), 1, false); err != nil {
			return err
		}
	}
	return nil
}

/* Poses */

// CreatePose adds a pose for a track handle. Named poses must be unique.
func (m *Mesh) CreatePose(target uint16, name string) (*animation.Pose, error) {
	if int(target) > len(m.subMeshes) {
		return nil, fmt.Errorf("pose target %d of mesh '%s': %w", target, m.Name(), core.ErrInvalidParams)
	}
	if name != "" {
		if _, err := m.PoseByName(name); err == nil {
			return nil, fmt.Errorf("pose '%s' in mesh '%s': %w", name, m.Name(), core.ErrDuplicateItem)
		}
	}
	p := animation.NewPose(target, name)
	m.poses = append(m.poses, p)
	return p, nil
}

func (m *Mesh) NumPoses() int {
	return len(m.poses)
}

func (m *Mesh) Pose(i int) (*animation.Pose, error) {
	if i < 0 || i >= len(m.poses) {
		return nil, fmt.Errorf("pose %d in mesh '%s': %w", i, m.Name(), core.ErrItemNotFound)
	}
	return m.poses[i], nil
}

func (m *Mesh) PoseByName(name string) (*animation.Pose, error) {
	for _, p := range m.poses {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("pose '%s' in mesh '%s': %w", name, m.Name(), core.ErrItemNotFound)
}

// Poses returns the poses in index order, the order pose key frames refer to.
func (m *Mesh) Poses() []*animation.Pose {
	return slices.Clone(m.poses)
}

// RemovePose removes pose i; later poses move down one index.
func (m *Mesh) RemovePose(i int) error {
	if i < 0 || i >= len(m.poses) {
		return fmt.Errorf("pose %d in mesh '%s': %w", i, m.Name(), core.ErrItemNotFound)
	}
	m.poses = slices.Delete(m.poses, i, i+1)
	return nil
}

func (m *Mesh) RemovePoseByName(name string) error {
	for i, p := range m.poses {
		if p.Name() == name {
			return m.RemovePose(i)
		}
	}
	return fmt.Errorf("pose '%s' in mesh '%s': %w", name, m.Name(), core.ErrItemNotFound)
}

func (m *Mesh) RemoveAllPoses() {
	m.poses = nil
}

/**
 * @brief Applies every enabled vertex animation of set to the targets returned by
 * target, usually working copies of the mesh's vertex data.
 */
func (m *Mesh) ApplyVertexAnimation(set *animation.AnimationStateSet, target func(handle uint16) *metadata.VertexData) error {
	if _, err := m.SharedVertexDataAnimationType(); err != nil {
		return err
	}
	for _, st := range set.EnabledStates() {
		a, ok := m.animations[st.Name()]
		if !ok {
			continue
		}
		if err := a.ApplyToVertexData(target, st.TimePosition(), st.Weight(), m.poses); err != nil {
			return fmt.Errorf("animation '%s' of mesh '%s': %w", a.Name(), m.Name(), err)
		}
	}
	return nil
}
