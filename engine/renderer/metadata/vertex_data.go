package metadata

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
)

/**
 * @brief A vertex stream: a range of vertices, the declaration describing their
 * layout and the buffers holding them.
 */
type VertexData struct {
	/** @brief The first vertex used in the bound buffers. */
	VertexStart int
	/** @brief The number of vertices used. */
	VertexCount int
	Declaration *VertexDeclaration
	Binding     *VertexBufferBinding
	/**
	 * @brief Per-vertex w coordinates for shadow volume extrusion: 1 for the
	 * original vertices, 0 for the extruded copies. Set by PrepareForShadowVolume.
	 */
	HardwareShadowVolWBuffer *hardware.VertexBuffer

	manager hardware.Manager
}

/**
 * @brief Creates an empty vertex stream.
 *
 * @param mgr The buffer manager used when the stream needs new buffers.
 */
func NewVertexData(mgr hardware.Manager) *VertexData {
	return &VertexData{
		Declaration: NewVertexDeclaration(),
		Binding:     NewVertexBufferBinding(),
		manager:     mgr,
	}
}

func (vd *VertexData) Manager() hardware.Manager {
	return vd.manager
}

/**
 * @brief Clones the stream.
 *
 * @param copyData When true every bound buffer is duplicated, otherwise the clone shares the buffers.
 * @param mgr The manager creating the copies. Nil uses the stream's own manager.
 */
func (vd *VertexData) Clone(copyData bool, mgr hardware.Manager) (*VertexData, error) {
	if mgr == nil {
		mgr = vd.manager
	}
	out := &VertexData{
		VertexStart: vd.VertexStart,
		VertexCount: vd.VertexCount,
		Declaration: vd.Declaration.Clone(),
		Binding:     NewVertexBufferBinding(),
		manager:     mgr,
	}
	for _, idx := range vd.Binding.Bindings() {
		src := vd.Binding.bindings[idx]
		if !copyData {
			out.Binding.SetBinding(idx, src)
			continue
		}
		dst, err := cloneVertexBuffer(mgr, src)
		if err != nil {
			return nil, err
		}
		out.Binding.SetBinding(idx, dst)
	}
	if vd.HardwareShadowVolWBuffer != nil {
		if !copyData {
			out.HardwareShadowVolWBuffer = vd.HardwareShadowVolWBuffer
		} else {
			w, err := cloneVertexBuffer(mgr, vd.HardwareShadowVolWBuffer)
			if err != nil {
				return nil, err
			}
			out.HardwareShadowVolWBuffer = w
		}
	}
	return out, nil
}

func cloneVertexBuffer(mgr hardware.Manager, src *hardware.VertexBuffer) (*hardware.VertexBuffer, error) {
	if mgr == nil {
		return nil, fmt.Errorf("cannot copy vertex buffer without a buffer manager: %w", core.ErrInvalidParams)
	}
	dst, err := mgr.CreateVertexBuffer(src.VertexSize(), src.NumVertices(), src.Usage(), src.HasShadowBuffer())
	if err != nil {
		return nil, err
	}
	if err := dst.CopyData(src, 0, 0, src.SizeInBytes(), true); err != nil {
		return nil, fmt.Errorf("could not copy vertex buffer %d: %w", src.ID(), err)
	}
	return dst, nil
}

/**
 * @brief Moves positions into a dedicated buffer of twice the vertex count so the
 * second half can be extruded, and fills HardwareShadowVolWBuffer.
 * The remaining elements of the old position buffer stay where they are.
 */
func (vd *VertexData) PrepareForShadowVolume() error {
	if vd.manager == nil {
		return fmt.Errorf("vertex data has no buffer manager: %w", core.ErrInvalidParams)
	}
	posElem, ok := vd.Declaration.FindElementBySemantic(VES_POSITION, 0)
	if !ok {
		return fmt.Errorf("vertex data has no position element: %w", core.ErrItemNotFound)
	}
	positions, err := vd.ReadFloat3(VES_POSITION, 0)
	if err != nil {
		return err
	}
	oldBuf, err := vd.Binding.Buffer(posElem.Source)
	if err != nil {
		return err
	}
	start, count := vd.VertexStart, vd.VertexCount
	newBuf, err := vd.manager.CreateVertexBuffer(TypeSize(VET_FLOAT3), start+count*2, oldBuf.Usage(), true)
	if err != nil {
		return err
	}
	if err := fillShadowPositions(newBuf, start, positions); err != nil {
		return err
	}

	wBuf, err := vd.manager.CreateVertexBuffer(TypeSize(VET_FLOAT1), start+count*2, hardware.UsageStaticWriteOnly, false)
	if err != nil {
		return err
	}
	if err := fillShadowWeights(wBuf, start, count); err != nil {
		return err
	}

	idx := vd.Declaration.IndexOfSemantic(VES_POSITION, 0)
	source := posElem.Source
	if len(vd.Declaration.FindElementsBySource(posElem.Source)) > 1 {
		source = vd.Binding.NextIndex()
	}
	if err := vd.Declaration.ModifyElement(idx, source, 0, VET_FLOAT3, VES_POSITION, 0); err != nil {
		return err
	}
	vd.Binding.SetBinding(source, newBuf)
	vd.HardwareShadowVolWBuffer = wBuf
	return nil
}

func fillShadowPositions(buf *hardware.VertexBuffer, start int, positions []math.Vec3) (err error) {
	data, err := buf.LockAll(hardware.LockDiscard)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, buf.Unlock())
	}()
	view := hardware.NewElementView(data, start*buf.VertexSize(), buf.VertexSize(), len(positions)*2)
	for i, p := range positions {
		view.SetFloat3(i, p)
		view.SetFloat3(len(positions)+i, p)
	}
	return nil
}

// fillShadowWeights writes w = 1 for the original vertices and w = 0 for the extruded copies.
func fillShadowWeights(buf *hardware.VertexBuffer, start, count int) (err error) {
	data, err := buf.LockAll(hardware.LockDiscard)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, buf.Unlock())
	}()
	w := hardware.NewElementView(data, start*4, 4, count*2)
	for i := 0; i < count; i++ {
		w.SetFloat(i, 0, 1)
		w.SetFloat(count+i, 0, 0)
	}
	return nil
}

// CloseGapsInBindings renumbers the bound sources so they run contiguously from zero,
// updating every element that refers to them. Unused buffers are unbound.
func (vd *VertexData) CloseGapsInBindings() {
	used := map[uint16]bool{}
	for _, e := range vd.Declaration.elements {
		used[e.Source] = true
	}
	for _, idx := range vd.Binding.Bindings() {
		if !used[idx] {
			delete(vd.Binding.bindings, idx)
		}
	}
	if !vd.Binding.HasGaps() {
		return
	}

	remap := map[uint16]uint16{}
	rebound := NewVertexBufferBinding()
	for i, idx := range vd.Binding.Bindings() {
		remap[idx] = uint16(i)
		rebound.SetBinding(uint16(i), vd.Binding.bindings[idx])
	}
	for i, e := range vd.Declaration.elements {
		if to, ok := remap[e.Source]; ok {
			vd.Declaration.elements[i].Source = to
		}
	}
	vd.Binding = rebound
}

func (vd *VertexData) elementView(semantic VertexElementSemantic, index uint16, opts hardware.LockOptions) (*hardware.VertexBuffer, hardware.ElementView, error) {
	elem, ok := vd.Declaration.FindElementBySemantic(semantic, index)
	if !ok {
		return nil, hardware.ElementView{}, fmt.Errorf("vertex data has no %s element %d: %w", semantic, index, core.ErrItemNotFound)
	}
	buf, err := vd.Binding.Buffer(elem.Source)
	if err != nil {
		return nil, hardware.ElementView{}, err
	}
	stride := buf.VertexSize()
	if vd.VertexStart+vd.VertexCount > buf.NumVertices() {
		return nil, hardware.ElementView{}, fmt.Errorf("vertex range [%d, %d) outside of buffer with %d vertices: %w",
			vd.VertexStart, vd.VertexStart+vd.VertexCount, buf.NumVertices(), core.ErrInvalidParams)
	}
	data, err := buf.Lock(vd.VertexStart*stride, vd.VertexCount*stride, opts)
	if err != nil {
		return nil, hardware.ElementView{}, err
	}
	return buf, hardware.NewElementView(data, elem.Offset, stride, vd.VertexCount), nil
}

// ReadFloat3 copies a three float element of every vertex out of the stream.
func (vd *VertexData) ReadFloat3(semantic VertexElementSemantic, index uint16) (out []math.Vec3, err error) {
	buf, view, err := vd.elementView(semantic, index, hardware.LockReadOnly)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, buf.Unlock())
	}()
	out = make([]math.Vec3, view.Count())
	for i := range out {
		out[i] = view.Float3(i)
	}
	return out, nil
}

// ReadFloat2 copies a two float element of every vertex out of the stream.
func (vd *VertexData) ReadFloat2(semantic VertexElementSemantic, index uint16) (out []math.Vec2, err error) {
	buf, view, err := vd.elementView(semantic, index, hardware.LockReadOnly)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, buf.Unlock())
	}()
	out = make([]math.Vec2, view.Count())
	for i := range out {
		out[i] = view.Float2(i)
	}
	return out, nil
}

func (vd *VertexData) writeLockOptions(semantic VertexElementSemantic, index uint16) hardware.LockOptions {
	elem, _ := vd.Declaration.FindElementBySemantic(semantic, index)
	if len(vd.Declaration.FindElementsBySource(elem.Source)) == 1 {
		return hardware.LockDiscard
	}
	return hardware.LockNormal
}

// WriteFloat3 overwrites a three float element of every vertex.
func (vd *VertexData) WriteFloat3(semantic VertexElementSemantic, index uint16, values []math.Vec3) (err error) {
	if len(values) != vd.VertexCount {
		return fmt.Errorf("%d values for %d vertices: %w", len(values), vd.VertexCount, core.ErrInvalidParams)
	}
	buf, view, err := vd.elementView(semantic, index, vd.writeLockOptions(semantic, index))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, buf.Unlock())
	}()
	for i, v := range values {
		view.SetFloat3(i, v)
	}
	return nil
}

// WriteFloat2 overwrites a two float element of every vertex.
func (vd *VertexData) WriteFloat2(semantic VertexElementSemantic, index uint16, values []math.Vec2) (err error) {
	if len(values) != vd.VertexCount {
		return fmt.Errorf("%d values for %d vertices: %w", len(values), vd.VertexCount, core.ErrInvalidParams)
	}
	buf, view, err := vd.elementView(semantic, index, vd.writeLockOptions(semantic, index))
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, buf.Unlock())
	}()
	for i, v := range values {
		view.SetFloat2(i, v)
	}
	return nil
}

/**
 * @brief Adds a three float element in a new buffer of its own and fills it.
 *
 * @param usage The usage of the new buffer.
 * @param shadow Whether the new buffer keeps a system memory copy.
 */
func (vd *VertexData) AddFloat3Element(semantic VertexElementSemantic, index uint16, values []math.Vec3, usage hardware.Usage, shadow bool) error {
	return vd.addElement(VET_FLOAT3, semantic, index, usage, shadow, func(view hardware.ElementView) {
		for i, v := range values {
			view.SetFloat3(i, v)
		}
	}, len(values))
}

// AddFloat2Element adds a two float element in a new buffer of its own and fills it.
func (vd *VertexData) AddFloat2Element(semantic VertexElementSemantic, index uint16, values []math.Vec2, usage hardware.Usage, shadow bool) error {
	return vd.addElement(VET_FLOAT2, semantic, index, usage, shadow, func(view hardware.ElementView) {
		for i, v := range values {
			view.SetFloat2(i, v)
		}
	}, len(values))
}

func (vd *VertexData) addElement(t VertexElementType, semantic VertexElementSemantic, index uint16, usage hardware.Usage, shadow bool, fill func(hardware.ElementView), n int) (err error) {
	if n != vd.VertexCount {
		return fmt.Errorf("%d values for %d vertices: %w", n, vd.VertexCount, core.ErrInvalidParams)
	}
	if _, exists := vd.Declaration.FindElementBySemantic(semantic, index); exists {
		return fmt.Errorf("%s element %d: %w", semantic, index, core.ErrDuplicateItem)
	}
	if vd.manager == nil {
		return fmt.Errorf("vertex data has no buffer manager: %w", core.ErrInvalidParams)
	}
	size := TypeSize(t)
	buf, err := vd.manager.CreateVertexBuffer(size, vd.VertexStart+vd.VertexCount, usage, shadow)
	if err != nil {
		return err
	}
	source := vd.Binding.NextIndex()
	if _, err := vd.Declaration.AddElement(source, 0, t, semantic, index); err != nil {
		return err
	}
	vd.Binding.SetBinding(source, buf)

	data, err := buf.Lock(vd.VertexStart*size, vd.VertexCount*size, hardware.LockDiscard)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, buf.Unlock())
	}()
	fill(hardware.NewElementView(data, 0, size, vd.VertexCount))
	return nil
}

/** @brief The primitive type an index stream is assembled into. */
type OperationType int

const (
	OT_POINT_LIST OperationType = iota + 1
	OT_LINE_LIST
	OT_LINE_STRIP
	OT_TRIANGLE_LIST
	OT_TRIANGLE_STRIP
	OT_TRIANGLE_FAN
)

/** @brief A range of indices in an index buffer. */
type IndexData struct {
	IndexStart  int
	IndexCount  int
	IndexBuffer *hardware.IndexBuffer
}

func NewIndexData() *IndexData {
	return &IndexData{}
}

/**
 * @brief Builds an index stream holding the given indices. 32 bit indices are used
 * only when a value does not fit in 16 bits.
 */
func NewIndexDataFromIndices(mgr hardware.Manager, indices []uint32, usage hardware.Usage, shadow bool) (id *IndexData, err error) {
	id = NewIndexData()
	if len(indices) == 0 {
		return id, nil
	}
	itype := hardware.IndexType16
	for _, i := range indices {
		if i > 0xFFFF {
			itype = hardware.IndexType32
			break
		}
	}
	ib, err := mgr.CreateIndexBuffer(itype, len(indices), usage, shadow)
	if err != nil {
		return nil, err
	}
	data, err := ib.LockAll(hardware.LockDiscard)
	if err != nil {
		return nil, err
	}
	defer func() {
		if uerr := ib.Unlock(); uerr != nil {
			id, err = nil, errors.Join(err, uerr)
		}
	}()
	view := hardware.NewIndexView(data, itype, len(indices))
	for i, idx := range indices {
		view.SetIndex(i, idx)
	}
	id.IndexBuffer = ib
	id.IndexCount = len(indices)
	return id, nil
}

// Indices copies the used index range out of the buffer.
func (id *IndexData) Indices() (out []uint32, err error) {
	if id.IndexBuffer == nil || id.IndexCount == 0 {
		return nil, nil
	}
	size := id.IndexBuffer.IndexSize()
	data, err := id.IndexBuffer.Lock(id.IndexStart*size, id.IndexCount*size, hardware.LockReadOnly)
	if err != nil {
		return nil, err
	}
	defer func() {
		if uerr := id.IndexBuffer.Unlock(); uerr != nil {
			out, err = nil, errors.Join(err, uerr)
		}
	}()
	view := hardware.NewIndexView(data, id.IndexBuffer.Type(), id.IndexCount)
	out = make([]uint32, id.IndexCount)
	for i := range out {
		out[i] = view.Index(i)
	}
	return out, nil
}

// Clone copies the range. With copyData the index buffer is duplicated too.
func (id *IndexData) Clone(copyData bool, mgr hardware.Manager) (*IndexData, error) {
	out := &IndexData{IndexStart: id.IndexStart, IndexCount: id.IndexCount, IndexBuffer: id.IndexBuffer}
	if !copyData || id.IndexBuffer == nil {
		return out, nil
	}
	if mgr == nil {
		return nil, fmt.Errorf("cannot copy index buffer without a buffer manager: %w", core.ErrInvalidParams)
	}
	src := id.IndexBuffer
	dst, err := mgr.CreateIndexBuffer(src.Type(), src.NumIndexes(), src.Usage(), src.HasShadowBuffer())
	if err != nil {
		return nil, err
	}
	if err := dst.CopyData(src, 0, 0, src.SizeInBytes(), true); err != nil {
		return nil, fmt.Errorf("could not copy index buffer %d: %w", src.ID(), err)
	}
	out.IndexBuffer = dst
	return out, nil
}

// TriangleCount returns the number of triangles the range assembles into.
func (id *IndexData) TriangleCount(op OperationType) int {
	switch op {
	case OT_TRIANGLE_LIST:
		return id.IndexCount / 3
	case OT_TRIANGLE_STRIP, OT_TRIANGLE_FAN:
		return max(id.IndexCount-2, 0)
	}
	return 0
}
