package animation

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/blend"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

// bracket finds the keyframes around t in a time-sorted list and how far t is
// between them. Times outside the keyframes clamp to the first or last one.
func bracket(times []float32, t float32) (before, after int, alpha float32) {
	if len(times) == 0 {
		return -1, -1, 0
	}
	i, _ := slices.BinarySearch(times, t)
	switch {
	case i == 0:
		return 0, 0, 0
	case i >= len(times):
		return len(times) - 1, len(times) - 1, 0
	}
	if times[i] == t {
		return i, i, 0
	}
	before, after = i-1, i
	return before, after, (t - times[before]) / (times[after] - times[before])
}

/** @brief A complete position snapshot at a point in time. */
type VertexMorphKeyFrame struct {
	Time float32
	/** @brief A position-only buffer with one entry per vertex. */
	Buffer *hardware.VertexBuffer
}

/** @brief A reference to a pose in the mesh pose list with its influence. */
type PoseRef struct {
	PoseIndex int
	Influence float32
}

/** @brief A set of pose influences at a point in time. */
type VertexPoseKeyFrame struct {
	Time     float32
	PoseRefs []PoseRef
}

// AddPoseReference adds a pose, or updates its influence if it is already referenced.
func (k *VertexPoseKeyFrame) AddPoseReference(poseIndex int, influence float32) {
	for i := range k.PoseRefs {
		if k.PoseRefs[i].PoseIndex == poseIndex {
			k.PoseRefs[i].Influence = influence
			return
		}
	}
	k.PoseRefs = append(k.PoseRefs, PoseRef{PoseIndex: poseIndex, Influence: influence})
}

func (k *VertexPoseKeyFrame) RemovePoseReference(poseIndex int) {
	k.PoseRefs = slices.DeleteFunc(k.PoseRefs, func(r PoseRef) bool { return r.PoseIndex == poseIndex })
}

/**
 * @brief The keyframes animating one target geometry. A track holds either morph
 * or pose keyframes, never both.
 */
type VertexAnimationTrack struct {
	handle    uint16
	animType  VertexAnimationType
	morphKeys []*VertexMorphKeyFrame
	poseKeys  []*VertexPoseKeyFrame
}

func (t *VertexAnimationTrack) Handle() uint16 {
	return t.handle
}

func (t *VertexAnimationTrack) AnimationType() VertexAnimationType {
	return t.animType
}

func (t *VertexAnimationTrack) NumKeyFrames() int {
	if t.animType == VAT_MORPH {
		return len(t.morphKeys)
	}
	return len(t.poseKeys)
}

func (t *VertexAnimationTrack) RemoveAllKeyFrames() {
	t.morphKeys = nil
	t.poseKeys = nil
}

func (t *VertexAnimationTrack) times() []float32 {
	var out []float32
	if t.animType == VAT_MORPH {
		out = make([]float32, len(t.morphKeys))
		for i, k := range t.morphKeys {
			out[i] = k.Time
		}
		return out
	}
	out = make([]float32, len(t.poseKeys))
	for i, k := range t.poseKeys {
		out[i] = k.Time
	}
	return out
}

// CreateMorphKeyFrame inserts a keyframe keeping the list sorted by time.
func (t *VertexAnimationTrack) CreateMorphKeyFrame(time float32) (*VertexMorphKeyFrame, error) {
	if t.animType != VAT_MORPH {
		return nil, fmt.Errorf("morph keyframe on %s track %d: %w", t.animType, t.handle, core.ErrInvalidParams)
	}
	k := &VertexMorphKeyFrame{Time: time}
	i, _ := slices.BinarySearch(t.times(), time)
	t.morphKeys = slices.Insert(t.morphKeys, i, k)
	return k, nil
}

// CreatePoseKeyFrame inserts a keyframe keeping the list sorted by time.
func (t *VertexAnimationTrack) CreatePoseKeyFrame(time float32) (*VertexPoseKeyFrame, error) {
	if t.animType != VAT_POSE {
		return nil, fmt.Errorf("pose keyframe on %s track %d: %w", t.animType, t.handle, core.ErrInvalidParams)
	}
	k := &VertexPoseKeyFrame{Time: time}
	i, _ := slices.BinarySearch(t.times(), time)
	t.poseKeys = slices.Insert(t.poseKeys, i, k)
	return k, nil
}

func (t *VertexAnimationTrack) MorphKeyFrame(i int) *VertexMorphKeyFrame {
	return t.morphKeys[i]
}

func (t *VertexAnimationTrack) PoseKeyFrame(i int) *VertexPoseKeyFrame {
	return t.poseKeys[i]
}

// KeyFramesAt returns the indices of the keyframes around timePos and the
// interpolation factor between them. An empty track returns -1, -1.
func (t *VertexAnimationTrack) KeyFramesAt(timePos float32) (before, after int, alpha float32) {
	return bracket(t.times(), timePos)
}

/**
 * @brief Applies the track to target in software.
 *
 * Morph tracks interpolate the positions between the surrounding keyframes.
 * Pose tracks add each referenced pose with its interpolated influence times
 * weight, so target must hold the base positions before the call.
 */
func (t *VertexAnimationTrack) Apply(target *metadata.VertexData, timePos, weight float32, poses []*Pose) error {
	before, after, alpha := t.KeyFramesAt(timePos)
	if before < 0 {
		return nil
	}
	if t.animType == VAT_MORPH {
		k1, k2 := t.morphKeys[before], t.morphKeys[after]
		if k1.Buffer == nil || k2.Buffer == nil {
			return fmt.Errorf("morph keyframe without buffer on track %d: %w", t.handle, core.ErrInvalidParams)
		}
		return blend.SoftwareVertexMorph(alpha, k1.Buffer, k2.Buffer, target)
	}

	influences := map[int]float32{}
	for _, r := range t.poseKeys[before].PoseRefs {
		influences[r.PoseIndex] += r.Influence * (1 - alpha)
	}
	for _, r := range t.poseKeys[after].PoseRefs {
		influences[r.PoseIndex] += r.Influence * alpha
	}
	indices := make([]int, 0, len(influences))
	for i := range influences {
		indices = append(indices, i)
	}
	slices.Sort(indices)
	for _, i := range indices {
		if i < 0 || i >= len(poses) {
			return fmt.Errorf("pose %d of %d on track %d: %w", i, len(poses), t.handle, core.ErrItemNotFound)
		}
		if err := blend.SoftwareVertexPoseBlend(influences[i]*weight, poses[i].VertexOffsets(), target); err != nil {
			return err
		}
	}
	return nil
}

/** @brief A bone transform at a point in time, relative to the binding pose. */
type TransformKeyFrame struct {
	Time      float32
	Translate math.Vec3
	Rotation  math.Quaternion
	Scale     math.Vec3
}

/** @brief The keyframes driving one bone. */
type NodeAnimationTrack struct {
	handle uint16
	keys   []*TransformKeyFrame
}

func (t *NodeAnimationTrack) Handle() uint16 {
	return t.handle
}

func (t *NodeAnimationTrack) NumKeyFrames() int {
	return len(t.keys)
}

func (t *NodeAnimationTrack) times() []float32 {
	out := make([]float32, len(t.keys))
	for i, k := range t.keys {
		out[i] = k.Time
	}
	return out
}

// CreateKeyFrame inserts an identity keyframe keeping the list sorted by time.
func (t *NodeAnimationTrack) CreateKeyFrame(time float32) *TransformKeyFrame {
	k := &TransformKeyFrame{Time: time, Rotation: math.NewQuatIdentity(), Scale: math.NewVec3One()}
	i, _ := slices.BinarySearch(t.times(), time)
	t.keys = slices.Insert(t.keys, i, k)
	return k
}

// Interpolate returns the transform at timePos.
func (t *NodeAnimationTrack) Interpolate(timePos float32) TransformKeyFrame {
	before, after, alpha := bracket(t.times(), timePos)
	if before < 0 {
		return TransformKeyFrame{Time: timePos, Rotation: math.NewQuatIdentity(), Scale: math.NewVec3One()}
	}
	k1, k2 := t.keys[before], t.keys[after]
	return TransformKeyFrame{
		Time:      timePos,
		Translate: k1.Translate.Add(k2.Translate.Sub(k1.Translate).MulScalar(alpha)),
		Rotation:  k1.Rotation.Slerp(k2.Rotation, alpha),
		Scale:     k1.Scale.Add(k2.Scale.Sub(k1.Scale).MulScalar(alpha)),
	}
}

// Apply moves the bone by the interpolated transform scaled by weight.
func (t *NodeAnimationTrack) Apply(b *Bone, timePos, weight float32) {
	if len(t.keys) == 0 || weight == 0 {
		return
	}
	kf := t.Interpolate(timePos)
	b.Translate(kf.Translate.MulScalar(weight))
	b.Rotate(math.NewQuatIdentity().Slerp(kf.Rotation, weight))
	scale := math.NewVec3One().Add(kf.Scale.Sub(math.NewVec3One()).MulScalar(weight))
	b.SetScale(b.Scale().Mul(scale))
}
