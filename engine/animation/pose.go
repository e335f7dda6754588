package animation

import (
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"golang.org/x/exp/maps"
)

/** @brief The kind of vertex animation applied to one piece of geometry. */
type VertexAnimationType int

const (
	VAT_NONE VertexAnimationType = iota
	/** @brief Interpolation between absolute position snapshots. */
	VAT_MORPH
	/** @brief Weighted sum of sparse offset sets. */
	VAT_POSE
)

func (t VertexAnimationType) String() string {
	switch t {
	case VAT_MORPH:
		return "morph"
	case VAT_POSE:
		return "pose"
	}
	return "none"
}

/**
 * @brief A named set of per-vertex position offsets for one target geometry:
 * handle 0 is the shared vertex data, handle i+1 the i-th submesh.
 */
type Pose struct {
	name    string
	target  uint16
	offsets map[uint32]math.Vec3
}

func NewPose(target uint16, name string) *Pose {
	return &Pose{name: name, target: target, offsets: map[uint32]math.Vec3{}}
}

func (p *Pose) Name() string {
	return p.name
}

func (p *Pose) Target() uint16 {
	return p.target
}

// AddVertex sets the offset of a vertex, replacing any previous one.
func (p *Pose) AddVertex(index uint32, offset math.Vec3) {
	p.offsets[index] = offset
}

func (p *Pose) RemoveVertex(index uint32) {
	delete(p.offsets, index)
}

func (p *Pose) ClearVertexOffsets() {
	clear(p.offsets)
}

// VertexOffsets returns the offsets. The map must not be modified.
func (p *Pose) VertexOffsets() map[uint32]math.Vec3 {
	return p.offsets
}

func (p *Pose) Clone() *Pose {
	return &Pose{name: p.name, target: p.target, offsets: maps.Clone(p.offsets)}
}
