package blend

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

// MaxBlendWeights is the number of bone influences a vertex can carry.
const MaxBlendWeights = 4

type stream struct {
	elem metadata.VertexElement
	buf  *hardware.VertexBuffer
}

func findStream(vd *metadata.VertexData, semantic metadata.VertexElementSemantic) (stream, bool, error) {
	elem, ok := vd.Declaration.FindElementBySemantic(semantic, 0)
	if !ok {
		return stream{}, false, nil
	}
	buf, err := vd.Binding.Buffer(elem.Source)
	if err != nil {
		return stream{}, false, err
	}
	return stream{elem: elem, buf: buf}, true, nil
}

func requireStream(vd *metadata.VertexData, semantic metadata.VertexElementSemantic, what string) (stream, error) {
	s, ok, err := findStream(vd, semantic)
	if err != nil {
		return stream{}, err
	}
	if !ok {
		return stream{}, fmt.Errorf("%s vertex data has no %s element: %w", what, semantic, core.ErrItemNotFound)
	}
	return s, nil
}

func (s stream) view(ls *lockSet, vd *metadata.VertexData) hardware.ElementView {
	stride := s.buf.VertexSize()
	return hardware.NewElementView(ls.data(s.buf), vd.VertexStart*stride+s.elem.Offset, stride, vd.VertexCount)
}

/**
 * @brief Deforms vertices by blending bone matrices (software skinning).
 *
 * Every vertex of src must carry a position, UByte4 blend indices and one to four blend
 * weights. For each non-zero weight the position is moved by the full affine matrix of
 * the referenced bone, while normals, tangents and binormals only use its 3x3 part.
 * The 3x3 part is applied directly rather than its inverse-transpose, which is only
 * exact for rotations with uniform scale. Accumulated directions are renormalised and
 * a zero length direction stays zero. Weights are expected to be normalised already.
 *
 * @param src The vertex data holding the original geometry and blend data.
 * @param dst The vertex data receiving the blended result.
 * @param matrices The bone matrices, indexed by the blend indices.
 * @param blendNormals Whether to blend normals, if src has them.
 * @param blendTangents Whether to blend tangents, if src has them.
 * @param blendBinormals Whether to blend binormals, if src has them.
 * @return An error if the layout is unsupported, a bone index has no matrix or a buffer can't be locked.
 */
func SoftwareVertexBlend(src, dst *metadata.VertexData, matrices []math.Affine3, blendNormals, blendTangents, blendBinormals bool) (err error) {
	if dst.VertexCount < src.VertexCount {
		return fmt.Errorf("destination has %d vertices, source %d: %w", dst.VertexCount, src.VertexCount, core.ErrInvalidParams)
	}

	srcPos, err := requireStream(src, metadata.VES_POSITION, "source")
	if err != nil {
		return err
	}
	srcIdx, err := requireStream(src, metadata.VES_BLEND_INDICES, "source")
	if err != nil {
		return err
	}
	if srcIdx.elem.Type != metadata.VET_UBYTE4 {
		return fmt.Errorf("blend indices must be UByte4: %w", core.ErrInvalidParams)
	}
	srcWeights, err := requireStream(src, metadata.VES_BLEND_WEIGHTS, "source")
	if err != nil {
		return err
	}
	numWeights := metadata.TypeCount(srcWeights.elem.Type)
	if srcWeights.elem.Type > metadata.VET_FLOAT4 || numWeights > MaxBlendWeights {
		return fmt.Errorf("blend weights must be 1 to 4 floats: %w", core.ErrInvalidParams)
	}
	dstPos, err := requireStream(dst, metadata.VES_POSITION, "destination")
	if err != nil {
		return err
	}

	type direction struct {
		semantic metadata.VertexElementSemantic
		src, dst stream
	}
	var dirs []direction
	wanted := []struct {
		on       bool
		semantic metadata.VertexElementSemantic
	}{
		{blendNormals, metadata.VES_NORMAL},
		{blendTangents, metadata.VES_TANGENT},
		{blendBinormals, metadata.VES_BINORMAL},
	}
	for _, w := range wanted {
		if !w.on {
			continue
		}
		s, ok, err := findStream(src, w.semantic)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		d, err := requireStream(dst, w.semantic, "destination")
		if err != nil {
			return err
		}
		dirs = append(dirs, direction{semantic: w.semantic, src: s, dst: d})
	}

	ls := newLockSet()
	ls.addSource(srcPos.buf)
	ls.addSource(srcIdx.buf)
	ls.addSource(srcWeights.buf)
	for _, d := range dirs {
		ls.addSource(d.src.buf)
	}
	ls.addDestination(dstPos.buf)
	for _, d := range dirs {
		ls.addDestination(d.dst.buf)
	}
	defer func() {
		err = errors.Join(err, ls.unlockAll())
	}()
	if err := ls.lockAll(); err != nil {
		return err
	}

	posIn := srcPos.view(ls, src)
	posOut := dstPos.view(ls, dst)
	indices := srcIdx.view(ls, src)
	weights := srcWeights.view(ls, src)
	dirIn := make([]hardware.ElementView, len(dirs))
	dirOut := make([]hardware.ElementView, len(dirs))
	for i, d := range dirs {
		dirIn[i] = d.src.view(ls, src)
		dirOut[i] = d.dst.view(ls, dst)
	}

	accumDirs := make([]math.Vec3, len(dirs))
	for v := 0; v < src.VertexCount; v++ {
		p := posIn.Float3(v)
		accumPos := math.Vec3{}
		for i := range accumDirs {
			accumDirs[i] = math.Vec3{}
		}

		for slot := 0; slot < numWeights; slot++ {
			weight := weights.Float(v, slot)
			if weight == 0 {
				continue
			}
			bone := int(indices.UByte(v, slot))
			if bone >= len(matrices) {
				return fmt.Errorf("vertex %d references bone %d but only %d matrices were given: %w",
					v, bone, len(matrices), core.ErrInvalidParams)
			}
			m := matrices[bone]
			accumPos = accumPos.Add(m.TransformPoint(p).MulScalar(weight))
			for i := range dirs {
				accumDirs[i] = accumDirs[i].Add(m.TransformDirection(dirIn[i].Float3(v)).MulScalar(weight))
			}
		}

		posOut.SetFloat3(v, accumPos)
		for i := range dirs {
			dirOut[i].SetFloat3(v, accumDirs[i].Normalize())
		}
	}
	return nil
}

/**
 * @brief Interpolates positions between two morph snapshots:
 * dst = a + t * (b - a). t is not clamped.
 *
 * @param a The position-only buffer at t = 0.
 * @param b The position-only buffer at t = 1.
 * @param dst The vertex data whose position element receives the result.
 */
func SoftwareVertexMorph(t float32, a, b *hardware.VertexBuffer, dst *metadata.VertexData) (err error) {
	dstPos, err := requireStream(dst, metadata.VES_POSITION, "destination")
	if err != nil {
		return err
	}
	count := dst.VertexCount
	if a.NumVertices() < count || b.NumVertices() < count {
		return fmt.Errorf("morph buffers hold %d and %d vertices, %d needed: %w",
			a.NumVertices(), b.NumVertices(), count, core.ErrInvalidParams)
	}

	ls := newLockSet()
	ls.addSource(a)
	ls.addSource(b)
	ls.addDestination(dstPos.buf)
	defer func() {
		err = errors.Join(err, ls.unlockAll())
	}()
	if err := ls.lockAll(); err != nil {
		return err
	}

	viewA := hardware.NewElementView(ls.data(a), 0, a.VertexSize(), count)
	viewB := hardware.NewElementView(ls.data(b), 0, b.VertexSize(), count)
	out := dstPos.view(ls, dst)
	for v := 0; v < count; v++ {
		pa := viewA.Float3(v)
		pb := viewB.Float3(v)
		out.SetFloat3(v, pa.Add(pb.Sub(pa).MulScalar(t)))
	}
	return nil
}

/**
 * @brief Adds a weighted pose to the current positions: dst[i] += offset[i] * weight.
 * Poses are additive, so callers apply them one at a time. A weight of zero
 * returns immediately without locking anything.
 *
 * @param offsets The sparse per-vertex offsets of the pose.
 */
func SoftwareVertexPoseBlend(weight float32, offsets map[uint32]math.Vec3, dst *metadata.VertexData) (err error) {
	if weight == 0 {
		return nil
	}
	dstPos, err := requireStream(dst, metadata.VES_POSITION, "destination")
	if err != nil {
		return err
	}
	for idx := range offsets {
		if int(idx) >= dst.VertexCount {
			return fmt.Errorf("pose offset for vertex %d but only %d vertices: %w", idx, dst.VertexCount, core.ErrInvalidParams)
		}
	}

	ls := newLockSet()
	ls.addSource(dstPos.buf)
	ls.addDestination(dstPos.buf)
	defer func() {
		err = errors.Join(err, ls.unlockAll())
	}()
	if err := ls.lockAll(); err != nil {
		return err
	}

	view := dstPos.view(ls, dst)
	for idx, offset := range offsets {
		i := int(idx)
		view.SetFloat3(i, view.Float3(i).Add(offset.MulScalar(weight)))
	}
	return nil
}
