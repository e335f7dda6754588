package mesh

import (
	"errors"
	"fmt"
	gomath "math"

	"github.com/spaghettifunk/anima-mesh/engine/blend"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"golang.org/x/exp/slices"
)

// weightTolerance is how far a weight sum may drift from one before it is renormalised.
const weightTolerance = 1.0 / (1 << 24)

// slots of the UByte4 blend index element
const blendIndexSlots = 4

/** @brief The influence of one bone on one vertex. */
type VertexBoneAssignment struct {
	VertexIndex uint32
	BoneIndex   uint16
	Weight      float32
}

/** @brief Bone assignments grouped by vertex. The zero value is ready to use. */
type BoneAssignments struct {
	byVertex map[uint32][]VertexBoneAssignment
	count    int
}

func (b *BoneAssignments) Add(vba VertexBoneAssignment) {
	if b.byVertex == nil {
		b.byVertex = make(map[uint32][]VertexBoneAssignment)
	}
	b.byVertex[vba.VertexIndex] = append(b.byVertex[vba.VertexIndex], vba)
	b.count++
}

// For returns the assignments of vertex v in insertion order.
func (b *BoneAssignments) For(v uint32) []VertexBoneAssignment {
	return b.byVertex[v]
}

// Vertices returns every vertex with at least one assignment, ascending.
func (b *BoneAssignments) Vertices() []uint32 {
	out := make([]uint32, 0, len(b.byVertex))
	for v := range b.byVertex {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// Len is the total number of assignments.
func (b *BoneAssignments) Len() int {
	return b.count
}

func (b *BoneAssignments) Clear() {
	b.byVertex = nil
	b.count = 0
}

func (b *BoneAssignments) clone() BoneAssignments {
	out := BoneAssignments{}
	for _, v := range b.Vertices() {
		for _, vba := range b.byVertex[v] {
			out.Add(vba)
		}
	}
	return out
}

func (b *BoneAssignments) set(v uint32, list []VertexBoneAssignment) {
	b.count += len(list) - len(b.byVertex[v])
	b.byVertex[v] = list
}

/**
 * @brief Limits every vertex in [0, vertexCount) to the four heaviest bone
 * assignments and renormalises weights that do not sum to one. Equal weights keep
 * their insertion order.
 *
 * @return The largest number of assignments of any vertex, clamped to four.
 */
func RationalizeBoneAssignments(vertexCount int, assignments *BoneAssignments) int {
	maxBones := 0
	for v := 0; v < vertexCount; v++ {
		list := assignments.For(uint32(v))
		if len(list) == 0 {
			continue
		}
		maxBones = max(maxBones, len(list))

		if len(list) > blend.MaxBlendWeights {
			list = slices.Clone(list)
			slices.SortStableFunc(list, func(a, b VertexBoneAssignment) int {
				switch {
				case a.Weight > b.Weight:
					return -1
				case a.Weight < b.Weight:
					return 1
				}
				return 0
			})
			list = list[:blend.MaxBlendWeights]
		}

		var total float64
		for _, vba := range list {
			total += float64(vba.Weight)
		}
		if total != 0 && gomath.Abs(total-1) > weightTolerance {
			heaviest := 0
			var sum float64
			for i := range list {
				list[i].Weight = float32(float64(list[i].Weight) / total)
				sum += float64(list[i].Weight)
				if list[i].Weight > list[heaviest].Weight {
					heaviest = i
				}
			}
			// push the float32 rounding residue into the heaviest weight
			list[heaviest].Weight = float32(float64(list[heaviest].Weight) + 1 - sum)
		}
		assignments.set(uint32(v), list)
	}

	if maxBones > blend.MaxBlendWeights {
		core.LogWarn("vertices with %d bone assignments found, only the %d heaviest are kept", maxBones, blend.MaxBlendWeights)
		maxBones = blend.MaxBlendWeights
	}
	return maxBones
}

/**
 * @brief Writes the assignments into blend index and blend weight elements of vd,
 * replacing existing ones. The new elements live in a buffer of their own, inserted
 * right after the position elements when the declaration starts with a position.
 */
func compileBoneAssignments(assignments *BoneAssignments, weightsPerVertex int, vd *metadata.VertexData, policy BufferPolicy) (err error) {
	for _, v := range assignments.Vertices() {
		if int(v) >= vd.VertexCount {
			return fmt.Errorf("bone assignment for vertex %d but only %d vertices: %w", v, vd.VertexCount, core.ErrInvalidParams)
		}
		for _, vba := range assignments.For(v) {
			if vba.BoneIndex > 0xFF {
				return fmt.Errorf("bone %d does not fit a blend index: %w", vba.BoneIndex, core.ErrInvalidParams)
			}
		}
	}
	weightType, err := metadata.MultiplyTypeCount(metadata.VET_FLOAT1, weightsPerVertex)
	if err != nil {
		return err
	}
	if vd.Manager() == nil {
		return fmt.Errorf("vertex data has no buffer manager: %w", core.ErrInvalidParams)
	}

	removeBlendElements(vd)

	bindIndex := vd.Binding.NextIndex()
	indexSize := metadata.TypeSize(metadata.VET_UBYTE4)
	decl := vd.Declaration
	if first, err := decl.Element(0); err == nil && first.Semantic == metadata.VES_POSITION {
		insertAt := 1
		for insertAt < decl.ElementCount() {
			e, _ := decl.Element(insertAt)
			if e.Source != first.Source {
				break
			}
			insertAt++
		}
		if _, err := decl.InsertElement(insertAt, bindIndex, 0, metadata.VET_UBYTE4, metadata.VES_BLEND_INDICES, 0); err != nil {
			return err
		}
		if _, err := decl.InsertElement(insertAt+1, bindIndex, indexSize, weightType, metadata.VES_BLEND_WEIGHTS, 0); err != nil {
			return err
		}
	} else {
		if _, err := decl.AddElement(bindIndex, 0, metadata.VET_UBYTE4, metadata.VES_BLEND_INDICES, 0); err != nil {
			return err
		}
		if _, err := decl.AddElement(bindIndex, indexSize, weightType, metadata.VES_BLEND_WEIGHTS, 0); err != nil {
			return err
		}
	}

	stride := decl.VertexSize(bindIndex)
	buf, err := vd.Manager().CreateVertexBuffer(stride, vd.VertexStart+vd.VertexCount, policy.Usage, policy.Shadowed)
	if err != nil {
		return err
	}
	vd.Binding.SetBinding(bindIndex, buf)

	data, err := buf.Lock(vd.VertexStart*stride, vd.VertexCount*stride, hardware.LockDiscard)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, buf.Unlock())
	}()

	indices := hardware.NewElementView(data, 0, stride, vd.VertexCount)
	weights := hardware.NewElementView(data, indexSize, stride, vd.VertexCount)
	for v := 0; v < vd.VertexCount; v++ {
		list := assignments.For(uint32(v))
		// the index element is always UByte4, so every slot is written
		for slot := 0; slot < blendIndexSlots; slot++ {
			index := uint8(0)
			if slot < weightsPerVertex && slot < len(list) {
				index = uint8(list[slot].BoneIndex)
			}
			indices.SetUByte(v, slot, index)
		}
		for slot := 0; slot < weightsPerVertex; slot++ {
			weight := float32(0)
			if slot < len(list) {
				weight = list[slot].Weight
			}
			weights.SetFloat(v, slot, weight)
		}
	}
	return nil
}

// removeBlendElements drops existing blend elements and unbinds their buffer when
// nothing else reads from it.
func removeBlendElements(vd *metadata.VertexData) {
	for _, sem := range []metadata.VertexElementSemantic{metadata.VES_BLEND_INDICES, metadata.VES_BLEND_WEIGHTS} {
		e, ok := vd.Declaration.FindElementBySemantic(sem, 0)
		if !ok {
			continue
		}
		vd.Declaration.RemoveElementBySemantic(sem, 0)
		if len(vd.Declaration.FindElementsBySource(e.Source)) == 0 {
			_ = vd.Binding.UnsetBinding(e.Source)
		}
	}
}
