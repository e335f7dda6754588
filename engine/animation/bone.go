package animation

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
)

/**
 * @brief A node of a skeleton. Its transform is relative to the parent bone;
 * the binding pose records where the bone sat when the mesh was skinned.
 */
type Bone struct {
	handle    uint16
	name      string
	parent    *Bone
	children  []*Bone
	transform *math.Transform

	initialPosition    math.Vec3
	initialOrientation math.Quaternion
	initialScale       math.Vec3
	/** @brief Inverse of the derived transform in the binding pose. */
	bindDerivedInverse math.Affine3
}

func newBone(handle uint16, name string) *Bone {
	return &Bone{
		handle:             handle,
		name:               name,
		transform:          math.TransformCreate(),
		initialOrientation: math.NewQuatIdentity(),
		initialScale:       math.NewVec3One(),
		bindDerivedInverse: math.NewAffine3Identity(),
	}
}

func (b *Bone) Handle() uint16 {
	return b.handle
}

func (b *Bone) Name() string {
	return b.name
}

func (b *Bone) Parent() *Bone {
	return b.parent
}

func (b *Bone) Children() []*Bone {
	out := make([]*Bone, len(b.children))
	copy(out, b.children)
	return out
}

// AddChild attaches a parentless bone below this one.
func (b *Bone) AddChild(child *Bone) error {
	if child.parent != nil {
		return fmt.Errorf("bone '%s' already has parent '%s': %w", child.name, child.parent.name, core.ErrInvalidParams)
	}
	for p := b; p != nil; p = p.parent {
		if p == child {
			return fmt.Errorf("bone '%s' cannot be a child of its descendant '%s': %w", child.name, b.name, core.ErrInvalidParams)
		}
	}
	child.parent = b
	child.transform.Parent = b.transform
	b.children = append(b.children, child)
	return nil
}

func (b *Bone) Position() math.Vec3 {
	return b.transform.Position
}

func (b *Bone) Orientation() math.Quaternion {
	return b.transform.Rotation
}

func (b *Bone) Scale() math.Vec3 {
	return b.transform.Scale
}

func (b *Bone) SetPosition(p math.Vec3) {
	b.transform.SetPosition(p)
}

func (b *Bone) SetOrientation(q math.Quaternion) {
	b.transform.SetRotation(q)
}

func (b *Bone) SetScale(s math.Vec3) {
	b.transform.SetScale(s)
}

func (b *Bone) Translate(v math.Vec3) {
	b.transform.Translate(v)
}

func (b *Bone) Rotate(q math.Quaternion) {
	b.transform.Rotate(q)
}

// DerivedTransform returns the transform of the bone in skeleton space.
func (b *Bone) DerivedTransform() math.Mat4 {
	return b.transform.GetWorld()
}

// DerivedPosition returns the bone origin in skeleton space.
func (b *Bone) DerivedPosition() math.Vec3 {
	return math.Vec3{}.Transform(b.DerivedTransform())
}

// SetBindingPose records the current transform as the pose the mesh was skinned in.
func (b *Bone) SetBindingPose() {
	b.initialPosition = b.transform.Position
	b.initialOrientation = b.transform.Rotation
	b.initialScale = b.transform.Scale
	b.bindDerivedInverse = b.DerivedTransform().ToAffine3().Inverse()
}

// Reset returns the bone to its binding pose.
func (b *Bone) Reset() {
	b.transform.SetPositionRotationScale(b.initialPosition, b.initialOrientation, b.initialScale)
}

// OffsetTransform maps a vertex from binding pose space to the current pose.
func (b *Bone) OffsetTransform() math.Affine3 {
	return b.bindDerivedInverse.Mul(b.DerivedTransform().ToAffine3())
}
