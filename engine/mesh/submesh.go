package mesh

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/animation"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

/**
 * @brief A part of a mesh rendered with a single material. A submesh either uses the
 * shared vertex data of its mesh or owns vertex data of its own.
 */
type SubMesh struct {
	parent *Mesh

	materialName      string
	useSharedVertices bool
	vertexData        *metadata.VertexData
	indexData         *metadata.IndexData
	operationType     metadata.OperationType

	/** @brief Reduced index lists, one per LOD level above 0. */
	lodFaceList []*metadata.IndexData

	boneAssignments          BoneAssignments
	boneAssignmentsOutOfDate bool

	vertexAnimationType animation.VertexAnimationType
}

func newSubMesh(parent *Mesh) *SubMesh {
	return &SubMesh{
		parent:            parent,
		useSharedVertices: true,
		indexData:         metadata.NewIndexData(),
		operationType:     metadata.OT_TRIANGLE_LIST,
	}
}

func (sm *SubMesh) Parent() *Mesh {
	return sm.parent
}

// Name returns a name the parent mesh knows the submesh by, or "".
func (sm *SubMesh) Name() string {
	for name, i := range sm.parent.subMeshNames {
		if i < len(sm.parent.subMeshes) && sm.parent.subMeshes[i] == sm {
			return name
		}
	}
	return ""
}

func (sm *SubMesh) MaterialName() string {
	return sm.materialName
}

func (sm *SubMesh) SetMaterialName(name string) {
	sm.materialName = name
}

func (sm *SubMesh) UseSharedVertices() bool {
	return sm.useSharedVertices
}

// VertexData returns the vertex data the submesh renders from, shared or its own.
func (sm *SubMesh) VertexData() *metadata.VertexData {
	if sm.useSharedVertices {
		return sm.parent.sharedVertexData
	}
	return sm.vertexData
}

/**
 * @brief Gives the submesh vertex data of its own. This can happen once, before any
 * indices are set.
 */
func (sm *SubMesh) SetVertexData(vd *metadata.VertexData) error {
	if vd == nil {
		return fmt.Errorf("nil vertex data: %w", core.ErrInvalidParams)
	}
	if !sm.useSharedVertices || sm.indexData.IndexCount > 0 {
		return fmt.Errorf("submesh geometry already authored: %w", core.ErrInvalidParams)
	}
	sm.useSharedVertices = false
	sm.vertexData = vd
	return nil
}

// CreateVertexData gives the submesh new, empty vertex data of its own.
func (sm *SubMesh) CreateVertexData() (*metadata.VertexData, error) {
	vd := metadata.NewVertexData(sm.parent.deps.Buffers)
	if err := sm.SetVertexData(vd); err != nil {
		return nil, err
	}
	return vd, nil
}

func (sm *SubMesh) IndexData() *metadata.IndexData {
	return sm.indexData
}

func (sm *SubMesh) SetIndexData(id *metadata.IndexData) {
	if id == nil {
		id = metadata.NewIndexData()
	}
	sm.indexData = id
}

func (sm *SubMesh) OperationType() metadata.OperationType {
	return sm.operationType
}

func (sm *SubMesh) SetOperationType(op metadata.OperationType) {
	sm.operationType = op
}

func (sm *SubMesh) isTriangles() bool {
	switch sm.operationType {
	case metadata.OT_TRIANGLE_LIST, metadata.OT_TRIANGLE_STRIP, metadata.OT_TRIANGLE_FAN:
		return true
	}
	return false
}

// LodIndexData returns the index data used at a LOD level; level 0 is the full index data.
func (sm *SubMesh) LodIndexData(level int) (*metadata.IndexData, error) {
	if level == 0 {
		return sm.indexData, nil
	}
	if level < 0 || level > len(sm.lodFaceList) {
		return nil, fmt.Errorf("submesh has no LOD level %d: %w", level, core.ErrItemNotFound)
	}
	return sm.lodFaceList[level-1], nil
}

// LodFaceList returns the generated index lists, one per LOD level above 0.
func (sm *SubMesh) LodFaceList() []*metadata.IndexData {
	return sm.lodFaceList
}

func (sm *SubMesh) NumLodFaceLists() int {
	return len(sm.lodFaceList)
}

// RemoveLodLevels drops the generated index lists.
func (sm *SubMesh) RemoveLodLevels() {
	sm.lodFaceList = nil
}

/**
 * @brief Assigns a bone to a vertex of the submesh's own vertex data. Submeshes that
 * use shared vertices must have their bones assigned on the mesh.
 */
func (sm *SubMesh) AddBoneAssignment(vba VertexBoneAssignment) error {
	if sm.useSharedVertices {
		return fmt.Errorf("submesh uses shared geometry, assign bones to the mesh: %w", core.ErrInvalidParams)
	}
	sm.boneAssignments.Add(vba)
	sm.boneAssignmentsOutOfDate = true
	return nil
}

func (sm *SubMesh) ClearBoneAssignments() {
	sm.boneAssignments.Clear()
	sm.boneAssignmentsOutOfDate = true
}

func (sm *SubMesh) BoneAssignments() *BoneAssignments {
	return &sm.boneAssignments
}

// VertexAnimationType returns the kind of vertex animation targeting the submesh's own geometry.
func (sm *SubMesh) VertexAnimationType() (animation.VertexAnimationType, error) {
	if sm.parent.animationTypesDirty {
		if err := sm.parent.determineAnimationTypes(); err != nil {
			return animation.VAT_NONE, err
		}
	}
	return sm.vertexAnimationType, nil
}

/**
 * @brief Creates a copy of the submesh in parent, or in its own mesh when parent is
 * nil. Private vertex data, index data and LOD lists are deep copied.
 */
func (sm *SubMesh) Clone(name string, parent *Mesh) (*SubMesh, error) {
	if parent == nil {
		parent = sm.parent
	}
	if sm.useSharedVertices && parent != sm.parent && parent.sharedVertexData == nil {
		return nil, fmt.Errorf("target mesh has no shared vertex data: %w", core.ErrInvalidParams)
	}

	c := newSubMesh(parent)
	c.materialName = sm.materialName
	c.operationType = sm.operationType
	c.useSharedVertices = sm.useSharedVertices
	c.vertexAnimationType = sm.vertexAnimationType

	buffers := parent.deps.Buffers
	if !sm.useSharedVertices {
		vd, err := sm.vertexData.Clone(true, buffers)
		if err != nil {
			return nil, err
		}
		c.vertexData = vd
	}
	id, err := sm.indexData.Clone(true, buffers)
	if err != nil {
		return nil, err
	}
	c.indexData = id
	for _, lod := range sm.lodFaceList {
		// levels that alias the base index data keep aliasing the clone's
		if lod == sm.indexData {
			c.lodFaceList = append(c.lodFaceList, c.indexData)
			continue
		}
		lc, err := lod.Clone(true, buffers)
		if err != nil {
			return nil, err
		}
		c.lodFaceList = append(c.lodFaceList, lc)
	}
	c.boneAssignments = sm.boneAssignments.clone()
	c.boneAssignmentsOutOfDate = sm.boneAssignmentsOutOfDate

	if err := parent.addSubMesh(c, name); err != nil {
		return nil, err
	}
	return c, nil
}

func (sm *SubMesh) calculateSize() uint64 {
	var size uint64
	if !sm.useSharedVertices {
		size += vertexDataSize(sm.vertexData)
	}
	size += indexDataSize(sm.indexData)
	for _, lod := range sm.lodFaceList {
		if lod != sm.indexData {
			size += indexDataSize(lod)
		}
	}
	return size
}

func vertexDataSize(vd *metadata.VertexData) uint64 {
	if vd == nil {
		return 0
	}
	var size uint64
	for _, idx := range vd.Binding.Bindings() {
		if buf, err := vd.Binding.Buffer(idx); err == nil {
			size += uint64(buf.SizeInBytes())
		}
	}
	return size
}

func indexDataSize(id *metadata.IndexData) uint64 {
	if id == nil || id.IndexBuffer == nil {
		return 0
	}
	return uint64(id.IndexBuffer.SizeInBytes())
}
