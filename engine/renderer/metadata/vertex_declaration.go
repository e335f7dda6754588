package metadata

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"golang.org/x/exp/slices"
)

/**
 * @brief The ordered list of elements making up a vertex, possibly spread
 * over several buffer sources.
 */
type VertexDeclaration struct {
	elements []VertexElement
}

func NewVertexDeclaration() *VertexDeclaration {
	return &VertexDeclaration{}
}

// Elements returns a copy of the element list.
func (d *VertexDeclaration) Elements() []VertexElement {
	return slices.Clone(d.elements)
}

func (d *VertexDeclaration) ElementCount() int {
	return len(d.elements)
}

func (d *VertexDeclaration) Element(i int) (VertexElement, error) {
	if i < 0 || i >= len(d.elements) {
		return VertexElement{}, fmt.Errorf("vertex element %d of %d: %w", i, len(d.elements), core.ErrInvalidParams)
	}
	return d.elements[i], nil
}

func (d *VertexDeclaration) checkOverlap(e VertexElement, skip int) error {
	for i, other := range d.elements {
		if i != skip && e.overlaps(other) {
			return fmt.Errorf("element %s at source %d offset %d overlaps %s: %w",
				e.Semantic, e.Source, e.Offset, other.Semantic, core.ErrInvalidParams)
		}
	}
	return nil
}

/**
 * @brief Appends an element to the declaration.
 *
 * @return The new element, or ErrInvalidParams when it overlaps an existing element of the same source.
 */
func (d *VertexDeclaration) AddElement(source uint16, offset int, t VertexElementType, semantic VertexElementSemantic, index uint16) (VertexElement, error) {
	e := VertexElement{Source: source, Offset: offset, Type: t, Semantic: semantic, Index: index}
	if err := d.checkOverlap(e, -1); err != nil {
		return VertexElement{}, err
	}
	d.elements = append(d.elements, e)
	return e, nil
}

// InsertElement inserts an element at position at; at past the end appends.
func (d *VertexDeclaration) InsertElement(at int, source uint16, offset int, t VertexElementType, semantic VertexElementSemantic, index uint16) (VertexElement, error) {
	if at >= len(d.elements) {
		return d.AddElement(source, offset, t, semantic, index)
	}
	e := VertexElement{Source: source, Offset: offset, Type: t, Semantic: semantic, Index: index}
	if err := d.checkOverlap(e, -1); err != nil {
		return VertexElement{}, err
	}
	d.elements = slices.Insert(d.elements, max(at, 0), e)
	return e, nil
}

func (d *VertexDeclaration) RemoveElement(i int) error {
	if i < 0 || i >= len(d.elements) {
		return fmt.Errorf("vertex element %d of %d: %w", i, len(d.elements), core.ErrInvalidParams)
	}
	d.elements = slices.Delete(d.elements, i, i+1)
	return nil
}

// RemoveElementBySemantic removes the element with the given semantic and index, if any.
func (d *VertexDeclaration) RemoveElementBySemantic(semantic VertexElementSemantic, index uint16) {
	d.elements = slices.DeleteFunc(d.elements, func(e VertexElement) bool {
		return e.Semantic == semantic && e.Index == index
	})
}

func (d *VertexDeclaration) RemoveAllElements() {
	d.elements = nil
}

// ModifyElement replaces the element at position i.
func (d *VertexDeclaration) ModifyElement(i int, source uint16, offset int, t VertexElementType, semantic VertexElementSemantic, index uint16) error {
	if i < 0 || i >= len(d.elements) {
		return fmt.Errorf("vertex element %d of %d: %w", i, len(d.elements), core.ErrInvalidParams)
	}
	e := VertexElement{Source: source, Offset: offset, Type: t, Semantic: semantic, Index: index}
	if err := d.checkOverlap(e, i); err != nil {
		return err
	}
	d.elements[i] = e
	return nil
}

// FindElementBySemantic returns the element with the given semantic and index.
func (d *VertexDeclaration) FindElementBySemantic(semantic VertexElementSemantic, index uint16) (VertexElement, bool) {
	for _, e := range d.elements {
		if e.Semantic == semantic && e.Index == index {
			return e, true
		}
	}
	return VertexElement{}, false
}

// IndexOfSemantic returns the position of the element, or -1.
func (d *VertexDeclaration) IndexOfSemantic(semantic VertexElementSemantic, index uint16) int {
	return slices.IndexFunc(d.elements, func(e VertexElement) bool {
		return e.Semantic == semantic && e.Index == index
	})
}

func (d *VertexDeclaration) FindElementsBySource(source uint16) []VertexElement {
	var out []VertexElement
	for _, e := range d.elements {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

// VertexSize returns the size of one vertex in the buffer bound at source.
func (d *VertexDeclaration) VertexSize(source uint16) int {
	size := 0
	for _, e := range d.elements {
		if e.Source == source {
			size = max(size, e.Offset+e.Size())
		}
	}
	return size
}

// MaxSource returns the highest source index used, or -1 for an empty declaration.
func (d *VertexDeclaration) MaxSource() int {
	m := -1
	for _, e := range d.elements {
		m = max(m, int(e.Source))
	}
	return m
}

// NextFreeTextureCoordinate returns the first texture coordinate index not in use.
func (d *VertexDeclaration) NextFreeTextureCoordinate() uint16 {
	next := uint16(0)
	for _, e := range d.elements {
		if e.Semantic == VES_TEXTURE_COORDINATES && e.Index >= next {
			next = e.Index + 1
		}
	}
	return next
}

// Sort orders the elements by source, then semantic, then index.
func (d *VertexDeclaration) Sort() {
	slices.SortStableFunc(d.elements, func(a, b VertexElement) int {
		if a.Source != b.Source {
			return int(a.Source) - int(b.Source)
		}
		if a.Semantic != b.Semantic {
			return int(a.Semantic) - int(b.Semantic)
		}
		return int(a.Index) - int(b.Index)
	})
}

func (d *VertexDeclaration) Clone() *VertexDeclaration {
	return &VertexDeclaration{elements: slices.Clone(d.elements)}
}
