package core

import (
	"errors"
)

var (
	// Configuration errors.
	ErrItemNotFound           = errors.New("item not found")
	ErrDuplicateItem          = errors.New("duplicate item")
	ErrInvalidParams          = errors.New("invalid parameters")
	ErrVertexAnimationTypeMix = errors.New("morph and pose animations cannot target the same geometry")
	ErrManualLodState         = errors.New("manual LOD entries require a mesh with only the base level")

	// Resource and format errors.
	ErrUnsupportedFormat = errors.New("unsupported mesh format")
	ErrNotLoaded         = errors.New("resource not loaded")

	// Hardware buffer contract violations.
	ErrBufferLocked      = errors.New("buffer already locked")
	ErrBufferNotLocked   = errors.New("buffer not locked")
	ErrBufferNotReadable = errors.New("buffer is write-only and has no shadow copy")

	ErrUnknown = errors.New("unknown")
)
