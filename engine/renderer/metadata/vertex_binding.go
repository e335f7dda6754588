package metadata

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"golang.org/x/exp/slices"
)

/** @brief Maps binding source indices to the vertex buffers they read from. */
type VertexBufferBinding struct {
	bindings map[uint16]*hardware.VertexBuffer
}

func NewVertexBufferBinding() *VertexBufferBinding {
	return &VertexBufferBinding{bindings: make(map[uint16]*hardware.VertexBuffer)}
}

// SetBinding binds buf to index, replacing any previous buffer.
func (b *VertexBufferBinding) SetBinding(index uint16, buf *hardware.VertexBuffer) {
	b.bindings[index] = buf
}

func (b *VertexBufferBinding) UnsetBinding(index uint16) error {
	if _, ok := b.bindings[index]; !ok {
		return fmt.Errorf("no buffer bound at %d: %w", index, core.ErrItemNotFound)
	}
	delete(b.bindings, index)
	return nil
}

func (b *VertexBufferBinding) UnsetAllBindings() {
	clear(b.bindings)
}

func (b *VertexBufferBinding) Buffer(index uint16) (*hardware.VertexBuffer, error) {
	buf, ok := b.bindings[index]
	if !ok {
		return nil, fmt.Errorf("no buffer bound at %d: %w", index, core.ErrItemNotFound)
	}
	return buf, nil
}

func (b *VertexBufferBinding) IsBufferBound(index uint16) bool {
	_, ok := b.bindings[index]
	return ok
}

func (b *VertexBufferBinding) Count() int {
	return len(b.bindings)
}

// NextIndex returns the first index above every bound index.
func (b *VertexBufferBinding) NextIndex() uint16 {
	next := uint16(0)
	for idx := range b.bindings {
		if idx >= next {
			next = idx + 1
		}
	}
	return next
}

// Bindings returns the bound indices in ascending order.
func (b *VertexBufferBinding) Bindings() []uint16 {
	keys := make([]uint16, 0, len(b.bindings))
	for idx := range b.bindings {
		keys = append(keys, idx)
	}
	slices.Sort(keys)
	return keys
}

// HasGaps reports whether the bound indices are not contiguous from zero.
func (b *VertexBufferBinding) HasGaps() bool {
	if len(b.bindings) == 0 {
		return false
	}
	return int(b.NextIndex()) != len(b.bindings)
}
