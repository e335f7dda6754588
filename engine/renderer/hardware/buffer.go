package hardware

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/spaghettifunk/anima-mesh/engine/core"
)

/** @brief Describes how a buffer is expected to be used, so a backend can place it. */
type Usage int

const (
	/** @brief Rarely modified after creation. */
	UsageStatic Usage = 1
	/** @brief Modified often. */
	UsageDynamic Usage = 2
	/** @brief The application never reads the contents back. */
	UsageWriteOnly Usage = 4
	/** @brief Contents may be regenerated every frame, so discard locks are always fine. */
	UsageDiscardable Usage = 8

	UsageStaticWriteOnly             = UsageStatic | UsageWriteOnly
	UsageDynamicWriteOnly            = UsageDynamic | UsageWriteOnly
	UsageDynamicWriteOnlyDiscardable = UsageDynamicWriteOnly | UsageDiscardable
)

var usageNames = map[string]Usage{
	"static":                         UsageStatic,
	"dynamic":                        UsageDynamic,
	"static_write_only":              UsageStaticWriteOnly,
	"dynamic_write_only":             UsageDynamicWriteOnly,
	"dynamic_write_only_discardable": UsageDynamicWriteOnlyDiscardable,
}

// ParseUsage converts a configuration name into a Usage.
func ParseUsage(name string) (Usage, error) {
	u, ok := usageNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown buffer usage %q: %w", name, core.ErrInvalidParams)
	}
	return u, nil
}

func (u Usage) IsWriteOnly() bool {
	return u&UsageWriteOnly != 0
}

func (u Usage) String() string {
	for name, v := range usageNames {
		if v == u {
			return name
		}
	}
	return fmt.Sprintf("usage(%d)", int(u))
}

/** @brief Options controlling how a buffer is mapped by Lock. */
type LockOptions int

const (
	/** @brief Read/write access to the existing contents. */
	LockNormal LockOptions = iota
	/** @brief The caller overwrites the whole locked range; previous contents may be lost. */
	LockDiscard
	/** @brief The caller only reads. */
	LockReadOnly
	/** @brief The caller promises not to touch data in use by the GPU. */
	LockNoOverwrite
)

func (o LockOptions) readsContents() bool {
	return o == LockNormal || o == LockReadOnly
}

var nextBufferID atomic.Uint64

/**
 * @brief The in-memory state shared by vertex and index buffers: the backing
 * store, an optional system-memory shadow copy and the lock bookkeeping.
 */
type buffer struct {
	id        uint64
	usage     Usage
	data      []byte
	shadow    []byte
	locked    bool
	lockOpts  LockOptions
	lockStart int
	lockSize  int
	lockCount int
}

func newBuffer(sizeInBytes int, usage Usage, useShadow bool) buffer {
	b := buffer{
		id:    nextBufferID.Add(1),
		usage: usage,
		data:  make([]byte, sizeInBytes),
	}
	if useShadow {
		b.shadow = make([]byte, sizeInBytes)
	}
	return b
}

// ID identifies the physical buffer. Two elements backed by the same buffer share an ID.
func (b *buffer) ID() uint64 {
	return b.id
}

func (b *buffer) Usage() Usage {
	return b.usage
}

func (b *buffer) SizeInBytes() int {
	return len(b.data)
}

func (b *buffer) HasShadowBuffer() bool {
	return b.shadow != nil
}

func (b *buffer) IsLocked() bool {
	return b.locked
}

// LockCount returns how many times the buffer was successfully locked.
func (b *buffer) LockCount() int {
	return b.lockCount
}

/**
 * @brief Maps a range of the buffer. Every successful Lock must be paired with
 * an Unlock, usually via defer.
 *
 * @param offset The byte offset to start at.
 * @param length The number of bytes to map.
 * @param opts How the contents will be accessed.
 * @return The mapped bytes.
 */
func (b *buffer) Lock(offset, length int, opts LockOptions) ([]byte, error) {
	if b.locked {
		return nil, fmt.Errorf("buffer %d: %w", b.id, core.ErrBufferLocked)
	}
	if offset < 0 || length < 0 || offset+length > len(b.data) {
		return nil, fmt.Errorf("buffer %d: lock range [%d, %d) outside of %d bytes: %w",
			b.id, offset, offset+length, len(b.data), core.ErrInvalidParams)
	}
	if b.shadow == nil && b.usage.IsWriteOnly() && opts.readsContents() {
		return nil, fmt.Errorf("buffer %d: %w", b.id, core.ErrBufferNotReadable)
	}

	b.locked = true
	b.lockOpts = opts
	b.lockStart = offset
	b.lockSize = length
	b.lockCount++

	if b.shadow != nil {
		return b.shadow[offset : offset+length], nil
	}
	return b.data[offset : offset+length], nil
}

// LockAll maps the whole buffer.
func (b *buffer) LockAll(opts LockOptions) ([]byte, error) {
	return b.Lock(0, len(b.data), opts)
}

// Unlock releases the mapping. Writes made through a shadow copy are pushed to the
// real buffer unless the lock was read-only.
func (b *buffer) Unlock() error {
	if !b.locked {
		return fmt.Errorf("buffer %d: %w", b.id, core.ErrBufferNotLocked)
	}
	if b.shadow != nil && b.lockOpts != LockReadOnly {
		copy(b.data[b.lockStart:b.lockStart+b.lockSize], b.shadow[b.lockStart:b.lockStart+b.lockSize])
	}
	b.locked = false
	return nil
}

// ReadData copies len(dst) bytes starting at offset into dst.
func (b *buffer) ReadData(offset int, dst []byte) (err error) {
	src, err := b.Lock(offset, len(dst), LockReadOnly)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, b.Unlock())
	}()
	copy(dst, src)
	return nil
}

// WriteData copies src into the buffer at offset.
func (b *buffer) WriteData(offset int, src []byte, discardWholeBuffer bool) (err error) {
	opts := LockNormal
	if discardWholeBuffer || b.usage.IsWriteOnly() {
		opts = LockDiscard
	}
	dst, err := b.Lock(offset, len(src), opts)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, b.Unlock())
	}()
	copy(dst, src)
	return nil
}

func (b *buffer) copyFrom(src *buffer, srcOffset, dstOffset, length int, discardWholeBuffer bool) error {
	tmp := make([]byte, length)
	if err := src.ReadData(srcOffset, tmp); err != nil {
		return err
	}
	return b.WriteData(dstOffset, tmp, discardWholeBuffer)
}

/** @brief A buffer holding interleaved vertex data. */
type VertexBuffer struct {
	buffer
	vertexSize  int
	numVertices int
}

func (vb *VertexBuffer) VertexSize() int {
	return vb.vertexSize
}

func (vb *VertexBuffer) NumVertices() int {
	return vb.numVertices
}

// CopyData copies a byte range from another vertex buffer.
func (vb *VertexBuffer) CopyData(src *VertexBuffer, srcOffset, dstOffset, length int, discardWholeBuffer bool) error {
	return vb.copyFrom(&src.buffer, srcOffset, dstOffset, length, discardWholeBuffer)
}

/** @brief The width of the indices stored in an index buffer. */
type IndexType int

const (
	IndexType16 IndexType = iota
	IndexType32
)

func (t IndexType) Size() int {
	if t == IndexType32 {
		return 4
	}
	return 2
}

/** @brief A buffer of 16 or 32 bit indices. */
type IndexBuffer struct {
	buffer
	indexType  IndexType
	numIndexes int
}

func (ib *IndexBuffer) Type() IndexType {
	return ib.indexType
}

func (ib *IndexBuffer) IndexSize() int {
	return ib.indexType.Size()
}

func (ib *IndexBuffer) NumIndexes() int {
	return ib.numIndexes
}

// CopyData copies a byte range from another index buffer.
func (ib *IndexBuffer) CopyData(src *IndexBuffer, srcOffset, dstOffset, length int, discardWholeBuffer bool) error {
	return ib.copyFrom(&src.buffer, srcOffset, dstOffset, length, discardWholeBuffer)
}
