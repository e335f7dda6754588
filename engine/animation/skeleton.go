package animation

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/resources"
)

// MaxBones is the number of bones addressable by a UByte4 blend index.
const MaxBones = 256

/**
 * @brief A shared bone hierarchy plus the skeletal animations that drive it.
 * Entities animate their own SkeletonInstance rather than the master.
 */
type Skeleton struct {
	resources.Resource

	bones      []*Bone
	byName     map[string]*Bone
	animations map[string]*Animation
}

func NewSkeleton(name, group string) *Skeleton {
	return &Skeleton{
		Resource:   resources.NewResource(name, group, nil),
		byName:     map[string]*Bone{},
		animations: map[string]*Animation{},
	}
}

func (s *Skeleton) Load() error {
	return s.Resource.Load(s)
}

func (s *Skeleton) Unload() {
	s.Resource.Unload(s)
}

// LoadImpl does nothing: skeletons are built in code or by a mesh importer.
func (s *Skeleton) LoadImpl() error {
	return nil
}

func (s *Skeleton) UnloadImpl() {}

func (s *Skeleton) CalculateSize() uint64 {
	return uint64(len(s.bones)) * uint64(16*4*2)
}

/**
 * @brief Creates a parentless bone. Handles are assigned in creation order.
 *
 * @return The bone, ErrDuplicateItem if the name is taken or ErrInvalidParams past MaxBones.
 */
func (s *Skeleton) CreateBone(name string) (*Bone, error) {
	if len(s.bones) >= MaxBones {
		return nil, fmt.Errorf("skeleton '%s' already has %d bones: %w", s.Name(), MaxBones, core.ErrInvalidParams)
	}
	if name == "" {
		name = fmt.Sprintf("Unnamed_%d", len(s.bones))
	}
	if _, ok := s.byName[name]; ok {
		return nil, fmt.Errorf("bone '%s' in skeleton '%s': %w", name, s.Name(), core.ErrDuplicateItem)
	}
	b := newBone(uint16(len(s.bones)), name)
	s.bones = append(s.bones, b)
	s.byName[name] = b
	return b, nil
}

func (s *Skeleton) NumBones() int {
	return len(s.bones)
}

func (s *Skeleton) Bone(handle uint16) (*Bone, error) {
	if int(handle) >= len(s.bones) {
		return nil, fmt.Errorf("bone handle %d in skeleton '%s': %w", handle, s.Name(), core.ErrItemNotFound)
	}
	return s.bones[handle], nil
}

func (s *Skeleton) BoneByName(name string) (*Bone, error) {
	b, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("bone '%s' in skeleton '%s': %w", name, s.Name(), core.ErrItemNotFound)
	}
	return b, nil
}

func (s *Skeleton) HasBone(name string) bool {
	_, ok := s.byName[name]
	return ok
}

func (s *Skeleton) Bones() []*Bone {
	out := make([]*Bone, len(s.bones))
	copy(out, s.bones)
	return out
}

func (s *Skeleton) RootBones() []*Bone {
	var roots []*Bone
	for _, b := range s.bones {
		if b.parent == nil {
			roots = append(roots, b)
		}
	}
	return roots
}

// SetBindingPose records the current pose of every bone as the binding pose.
func (s *Skeleton) SetBindingPose() {
	for _, b := range s.bones {
		b.SetBindingPose()
	}
}

// Reset returns every bone to the binding pose.
func (s *Skeleton) Reset() {
	for _, b := range s.bones {
		b.Reset()
	}
}

// OffsetMatrices returns one blending matrix per bone, indexed by handle.
func (s *Skeleton) OffsetMatrices() []math.Affine3 {
	out := make([]math.Affine3, len(s.bones))
	for i, b := range s.bones {
		out[i] = b.OffsetTransform()
	}
	return out
}

func (s *Skeleton) CreateAnimation(name string, length float32) (*Animation, error) {
	if _, ok := s.animations[name]; ok {
		return nil, fmt.Errorf("animation '%s' in skeleton '%s': %w", name, s.Name(), core.ErrDuplicateItem)
	}
	a := NewAnimation(name, length)
	s.animations[name] = a
	return a, nil
}

func (s *Skeleton) Animation(name string) (*Animation, error) {
	a, ok := s.animations[name]
	if !ok {
		return nil, fmt.Errorf("animation '%s' in skeleton '%s': %w", name, s.Name(), core.ErrItemNotFound)
	}
	return a, nil
}

func (s *Skeleton) HasAnimation(name string) bool {
	_, ok := s.animations[name]
	return ok
}

func (s *Skeleton) RemoveAnimation(name string) error {
	if _, ok := s.animations[name]; !ok {
		return fmt.Errorf("animation '%s' in skeleton '%s': %w", name, s.Name(), core.ErrItemNotFound)
	}
	delete(s.animations, name)
	return nil
}

func (s *Skeleton) NumAnimations() int {
	return len(s.animations)
}

func (s *Skeleton) AnimationNames() []string {
	names := make([]string, 0, len(s.animations))
	for n := range s.animations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// InitAnimationState adds a disabled state for every skeletal animation missing from set.
func (s *Skeleton) InitAnimationState(set *AnimationStateSet) {
	for _, name := range s.AnimationNames() {
		if set.HasAnimationState(name) {
			continue
		}
		_, _ = set.CreateAnimationState(name, 0, s.animations[name].Length(), 1, false)
	}
}

// SetAnimationState resets the pose and applies every enabled state that names
// one of the skeleton's animations.
func (s *Skeleton) SetAnimationState(set *AnimationStateSet) {
	s.Reset()
	for _, st := range set.EnabledStates() {
		if a, ok := s.animations[st.Name()]; ok {
			a.ApplyToSkeleton(s, st.TimePosition(), st.Weight())
		}
	}
}
