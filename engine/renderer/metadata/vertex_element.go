package metadata

import "fmt"

/** @brief The meaning of a vertex element. */
type VertexElementSemantic int

const (
	/** @brief Position, 3 floats per vertex. */
	VES_POSITION VertexElementSemantic = iota + 1
	/** @brief Blending weights. */
	VES_BLEND_WEIGHTS
	/** @brief Blending indices. */
	VES_BLEND_INDICES
	/** @brief Normal, 3 floats per vertex. */
	VES_NORMAL
	/** @brief Diffuse colours. */
	VES_DIFFUSE
	/** @brief Specular colours. */
	VES_SPECULAR
	/** @brief Texture coordinates. */
	VES_TEXTURE_COORDINATES
	/** @brief Binormal (Y axis if normal is Z). */
	VES_BINORMAL
	/** @brief Tangent (X axis if normal is Z). */
	VES_TANGENT
)

func (s VertexElementSemantic) String() string {
	switch s {
	case VES_POSITION:
		return "position"
	case VES_BLEND_WEIGHTS:
		return "blend_weights"
	case VES_BLEND_INDICES:
		return "blend_indices"
	case VES_NORMAL:
		return "normal"
	case VES_DIFFUSE:
		return "diffuse"
	case VES_SPECULAR:
		return "specular"
	case VES_TEXTURE_COORDINATES:
		return "texcoords"
	case VES_BINORMAL:
		return "binormal"
	case VES_TANGENT:
		return "tangent"
	}
	return fmt.Sprintf("semantic(%d)", int(s))
}

/** @brief The storage type of a vertex element. */
type VertexElementType int

const (
	VET_FLOAT1 VertexElementType = iota
	VET_FLOAT2
	VET_FLOAT3
	VET_FLOAT4
	/** @brief Packed 32 bit colour. */
	VET_COLOUR
	VET_SHORT2
	VET_SHORT4
	/** @brief Four unsigned bytes, used for blend indices. */
	VET_UBYTE4
)

// TypeSize returns the size in bytes of one element of the given type.
func TypeSize(t VertexElementType) int {
	switch t {
	case VET_FLOAT1:
		return 4
	case VET_FLOAT2:
		return 8
	case VET_FLOAT3:
		return 12
	case VET_FLOAT4:
		return 16
	case VET_COLOUR, VET_UBYTE4:
		return 4
	case VET_SHORT2:
		return 4
	case VET_SHORT4:
		return 8
	}
	return 0
}

// TypeCount returns the number of values in one element of the given type.
func TypeCount(t VertexElementType) int {
	switch t {
	case VET_FLOAT1, VET_COLOUR:
		return 1
	case VET_FLOAT2, VET_SHORT2:
		return 2
	case VET_FLOAT3:
		return 3
	case VET_FLOAT4, VET_SHORT4, VET_UBYTE4:
		return 4
	}
	return 0
}

// MultiplyTypeCount returns the float type holding count values, e.g. (VET_FLOAT1, 3) -> VET_FLOAT3.
func MultiplyTypeCount(base VertexElementType, count int) (VertexElementType, error) {
	if base != VET_FLOAT1 || count < 1 || count > 4 {
		return 0, fmt.Errorf("cannot multiply type %d by %d", base, count)
	}
	return VET_FLOAT1 + VertexElementType(count-1), nil
}

/**
 * @brief One attribute of a vertex: where it lives (buffer source and byte offset),
 * how it is stored and what it means.
 */
type VertexElement struct {
	/** @brief The binding index of the buffer holding the element. */
	Source uint16
	/** @brief The byte offset of the element inside one vertex of that buffer. */
	Offset int
	Type   VertexElementType
	/** @brief The meaning of the element. */
	Semantic VertexElementSemantic
	/** @brief Index of the semantic, used for multiple texture coordinates. */
	Index uint16
}

func (e VertexElement) Size() int {
	return TypeSize(e.Type)
}

func (e VertexElement) overlaps(other VertexElement) bool {
	if e.Source != other.Source {
		return false
	}
	return e.Offset < other.Offset+other.Size() && other.Offset < e.Offset+e.Size()
}
