package hardware

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-mesh/engine/core"
)

/**
 * @brief The buffer management facility. Meshes, blending and LOD generation
 * allocate every vertex and index buffer through this interface so a render
 * backend can supply its own implementation.
 */
type Manager interface {
	CreateVertexBuffer(vertexSize, numVertices int, usage Usage, useShadow bool) (*VertexBuffer, error)
	CreateIndexBuffer(indexType IndexType, numIndexes int, usage Usage, useShadow bool) (*IndexBuffer, error)
}

// DefaultManager keeps every buffer in system memory.
type DefaultManager struct {
	mu           sync.Mutex
	vertexBuffer int
	indexBuffer  int
}

func NewDefaultManager() *DefaultManager {
	return &DefaultManager{}
}

func (m *DefaultManager) CreateVertexBuffer(vertexSize, numVertices int, usage Usage, useShadow bool) (*VertexBuffer, error) {
	if vertexSize <= 0 || numVertices < 0 {
		return nil, fmt.Errorf("vertex buffer of %d vertices of %d bytes: %w", numVertices, vertexSize, core.ErrInvalidParams)
	}
	vb := &VertexBuffer{
		buffer:      newBuffer(vertexSize*numVertices, usage, useShadow),
		vertexSize:  vertexSize,
		numVertices: numVertices,
	}
	m.mu.Lock()
	m.vertexBuffer++
	m.mu.Unlock()
	return vb, nil
}

func (m *DefaultManager) CreateIndexBuffer(indexType IndexType, numIndexes int, usage Usage, useShadow bool) (*IndexBuffer, error) {
	if numIndexes < 0 {
		return nil, fmt.Errorf("index buffer of %d indexes: %w", numIndexes, core.ErrInvalidParams)
	}
	ib := &IndexBuffer{
		buffer:     newBuffer(indexType.Size()*numIndexes, usage, useShadow),
		indexType:  indexType,
		numIndexes: numIndexes,
	}
	m.mu.Lock()
	m.indexBuffer++
	m.mu.Unlock()
	return ib, nil
}

// VertexBufferCount returns how many vertex buffers were created.
func (m *DefaultManager) VertexBufferCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vertexBuffer
}

// IndexBufferCount returns how many index buffers were created.
func (m *DefaultManager) IndexBufferCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexBuffer
}
