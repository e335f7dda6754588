package hardware

import (
	"encoding/binary"
	stdmath "math"

	"github.com/spaghettifunk/anima-mesh/engine/math"
)

/**
 * @brief A strided view over a locked vertex range: one element (position,
 * normal, weights, ...) read out of every vertex. Offsets are computed once when
 * the view is built instead of on every access.
 */
type ElementView struct {
	data   []byte
	offset int
	stride int
	count  int
}

/**
 * @brief Creates a view.
 *
 * @param data The locked bytes.
 * @param offset The byte offset of the element inside the first vertex.
 * @param stride The size of one vertex in bytes.
 * @param count The number of vertices addressable through the view.
 */
func NewElementView(data []byte, offset, stride, count int) ElementView {
	return ElementView{data: data, offset: offset, stride: stride, count: count}
}

func (v ElementView) Count() int {
	return v.count
}

func (v ElementView) at(i, slot int) int {
	return i*v.stride + v.offset + slot*4
}

func (v ElementView) Float(i, slot int) float32 {
	p := v.at(i, slot)
	return stdmath.Float32frombits(binary.LittleEndian.Uint32(v.data[p : p+4]))
}

func (v ElementView) SetFloat(i, slot int, f float32) {
	p := v.at(i, slot)
	binary.LittleEndian.PutUint32(v.data[p:p+4], stdmath.Float32bits(f))
}

func (v ElementView) Float2(i int) math.Vec2 {
	return math.Vec2{X: v.Float(i, 0), Y: v.Float(i, 1)}
}

func (v ElementView) SetFloat2(i int, val math.Vec2) {
	v.SetFloat(i, 0, val.X)
	v.SetFloat(i, 1, val.Y)
}

func (v ElementView) Float3(i int) math.Vec3 {
	return math.Vec3{X: v.Float(i, 0), Y: v.Float(i, 1), Z: v.Float(i, 2)}
}

func (v ElementView) SetFloat3(i int, val math.Vec3) {
	v.SetFloat(i, 0, val.X)
	v.SetFloat(i, 1, val.Y)
	v.SetFloat(i, 2, val.Z)
}

// UByte reads one byte of a UByte4 element.
func (v ElementView) UByte(i, slot int) uint8 {
	return v.data[i*v.stride+v.offset+slot]
}

func (v ElementView) SetUByte(i, slot int, b uint8) {
	v.data[i*v.stride+v.offset+slot] = b
}

/** @brief A view over a locked range of 16 or 32 bit indices. */
type IndexView struct {
	data      []byte
	indexType IndexType
	count     int
}

func NewIndexView(data []byte, indexType IndexType, count int) IndexView {
	return IndexView{data: data, indexType: indexType, count: count}
}

func (v IndexView) Count() int {
	return v.count
}

func (v IndexView) Index(i int) uint32 {
	if v.indexType == IndexType32 {
		return binary.LittleEndian.Uint32(v.data[i*4 : i*4+4])
	}
	return uint32(binary.LittleEndian.Uint16(v.data[i*2 : i*2+2]))
}

func (v IndexView) SetIndex(i int, idx uint32) {
	if v.indexType == IndexType32 {
		binary.LittleEndian.PutUint32(v.data[i*4:i*4+4], idx)
		return
	}
	binary.LittleEndian.PutUint16(v.data[i*2:i*2+2], uint16(idx))
}
