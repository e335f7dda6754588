package mesh

import (
	"fmt"
	gomath "math"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-mesh/engine/animation"
	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/lod"
	"github.com/spaghettifunk/anima-mesh/engine/math"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/hardware"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
	"github.com/spaghettifunk/anima-mesh/engine/resources"
	"golang.org/x/exp/slices"
)

/**
 * @brief A loadable piece of geometry made of submeshes, with optional shared vertex
 * data, a skeleton, LOD levels, edge lists, vertex animations and poses.
 */
type Mesh struct {
	resources.Resource
	deps Dependencies

	sharedVertexData *metadata.VertexData
	subMeshes        []*SubMesh
	subMeshNames     map[string]int

	aabb        math.Extents3D
	boundRadius float32

	skeletonName string
	skeleton     *animation.Skeleton

	boneAssignments          BoneAssignments
	boneAssignmentsOutOfDate bool

	vertexBufferPolicy BufferPolicy
	indexBufferPolicy  BufferPolicy

	lodStrategy lod.Strategy
	lodUsages   []*MeshLodUsage
	isLodManual bool

	edgeListsBuilt           bool
	autoBuildEdgeLists       bool
	preparedForShadowVolumes bool

	animations                    map[string]*animation.Animation
	animationTypesDirty           bool
	sharedVertexDataAnimationType animation.VertexAnimationType
	poses                         []*animation.Pose
}

/**
 * @brief Creates an unloaded mesh. Load reads it through the serializer registered
 * for the extension of its name.
 */
func New(name, group string, deps Dependencies) *Mesh {
	return newMesh(name, group, nil, deps)
}

// NewManual creates a mesh whose Load calls loader instead of reading a file.
func NewManual(name, group string, loader resources.ManualLoader, deps Dependencies) *Mesh {
	return newMesh(name, group, loader, deps)
}

func newMesh(name, group string, loader resources.ManualLoader, deps Dependencies) *Mesh {
	deps = deps.withDefaults()
	m := &Mesh{
		Resource:           resources.NewResource(name, group, loader),
		deps:               deps,
		subMeshNames:       map[string]int{},
		vertexBufferPolicy: BufferPolicy{Usage: hardware.UsageStaticWriteOnly, Shadowed: true},
		indexBufferPolicy:  BufferPolicy{Usage: hardware.UsageStaticWriteOnly, Shadowed: true},
		lodStrategy:        deps.Lod,
		autoBuildEdgeLists: true,
		animations:         map[string]*animation.Animation{},
	}
	if deps.VertexBufferPolicy != nil {
		m.vertexBufferPolicy = *deps.VertexBufferPolicy
	}
	if deps.IndexBufferPolicy != nil {
		m.indexBufferPolicy = *deps.IndexBufferPolicy
	}
	m.resetLodUsages()
	return m
}

func (m *Mesh) Load() error {
	return m.Resource.Load(m)
}

func (m *Mesh) Unload() {
	m.Resource.Unload(m)
}

func (m *Mesh) Reload() error {
	return m.Resource.Reload(m)
}

// LoadImpl imports the mesh file and prepares it for shadow volumes if requested.
func (m *Mesh) LoadImpl() error {
	ext := strings.ToLower(filepath.Ext(m.Name()))
	serializer, ok := m.deps.Serializers[ext]
	if !ok {
		core.LogError("no importer for mesh '%s' (extension '%s')", m.Name(), ext)
		return fmt.Errorf("mesh '%s': %w", m.Name(), core.ErrUnsupportedFormat)
	}
	if m.deps.Open == nil {
		return fmt.Errorf("mesh '%s' has no file source: %w", m.Name(), core.ErrInvalidParams)
	}
	r, err := m.deps.Open(m.Name())
	if err != nil {
		return err
	}
	defer r.Close()

	if err := serializer.ImportMesh(r, m); err != nil {
		return err
	}
	return m.postLoad()
}

func (m *Mesh) postLoad() error {
	if !m.deps.PrepareForShadowVolumes {
		return nil
	}
	if m.edgeListsBuilt || m.autoBuildEdgeLists {
		if err := m.PrepareForShadowVolume(); err != nil {
			return err
		}
	}
	if !m.edgeListsBuilt && m.autoBuildEdgeLists {
		return m.BuildEdgeList()
	}
	return nil
}

// UnloadImpl drops all geometry, LOD levels, animations, poses and the skeleton.
func (m *Mesh) UnloadImpl() {
	m.subMeshes = nil
	m.subMeshNames = map[string]int{}
	m.sharedVertexData = nil
	m.RemoveLodLevels()
	m.preparedForShadowVolumes = false
	m.RemoveAllAnimations()
	m.RemoveAllPoses()
	m.boneAssignments.Clear()
	m.boneAssignmentsOutOfDate = false
	m.SetSkeletonName("")
}

// CalculateSize sums the bytes of every vertex and index buffer of the mesh.
func (m *Mesh) CalculateSize() uint64 {
	size := vertexDataSize(m.sharedVertexData)
	for _, sm := range m.subMeshes {
		size += sm.calculateSize()
	}
	return size
}

func (m *Mesh) Buffers() hardware.Manager {
	return m.deps.Buffers
}

/* Shared geometry */

func (m *Mesh) SharedVertexData() *metadata.VertexData {
	return m.sharedVertexData
}

func (m *Mesh) SetSharedVertexData(vd *metadata.VertexData) {
	m.sharedVertexData = vd
}

// CreateSharedVertexData replaces the shared vertex data with a new, empty one.
func (m *Mesh) CreateSharedVertexData() *metadata.VertexData {
	m.sharedVertexData = metadata.NewVertexData(m.deps.Buffers)
	return m.sharedVertexData
}

/* Submeshes */

// CreateSubMesh appends an unnamed submesh using the shared vertex data.
func (m *Mesh) CreateSubMesh() *SubMesh {
	sm := newSubMesh(m)
	m.subMeshes = append(m.subMeshes, sm)
	m.animationTypesDirty = true
	return sm
}

// CreateSubMeshNamed appends a submesh and names it.
func (m *Mesh) CreateSubMeshNamed(name string) (*SubMesh, error) {
	if _, ok := m.subMeshNames[name]; ok {
		return nil, fmt.Errorf("submesh '%s' in mesh '%s': %w", name, m.Name(), core.ErrDuplicateItem)
	}
	sm := m.CreateSubMesh()
	m.subMeshNames[name] = len(m.subMeshes) - 1
	return sm, nil
}

func (m *Mesh) addSubMesh(sm *SubMesh, name string) error {
	if name != "" {
		if _, ok := m.subMeshNames[name]; ok {
			return fmt.Errorf("submesh '%s' in mesh '%s': %w", name, m.Name(), core.ErrDuplicateItem)
		}
	}
	m.subMeshes = append(m.subMeshes, sm)
	if name != "" {
		m.subMeshNames[name] = len(m.subMeshes) - 1
	}
	m.animationTypesDirty = true
	return nil
}

// NameSubMesh gives submesh i a name, replacing any name pointing elsewhere.
func (m *Mesh) NameSubMesh(name string, i int) error {
	if i < 0 || i >= len(m.subMeshes) {
		return fmt.Errorf("submesh %d in mesh '%s': %w", i, m.Name(), core.ErrItemNotFound)
	}
	m.subMeshNames[name] = i
	return nil
}

func (m *Mesh) UnnameSubMesh(name string) {
	delete(m.subMeshNames, name)
}

func (m *Mesh) NumSubMeshes() int {
	return len(m.subMeshes)
}

func (m *Mesh) SubMesh(i int) (*SubMesh, error) {
	if i < 0 || i >= len(m.subMeshes) {
		return nil, fmt.Errorf("submesh %d in mesh '%s': %w", i, m.Name(), core.ErrItemNotFound)
	}
	return m.subMeshes[i], nil
}

func (m *Mesh) SubMeshByName(name string) (*SubMesh, error) {
	i, err := m.SubMeshIndex(name)
	if err != nil {
		return nil, err
	}
	return m.subMeshes[i], nil
}

func (m *Mesh) SubMeshIndex(name string) (int, error) {
	i, ok := m.subMeshNames[name]
	if !ok {
		return -1, fmt.Errorf("submesh '%s' in mesh '%s': %w", name, m.Name(), core.ErrItemNotFound)
	}
	return i, nil
}

// SubMeshes returns the submeshes in index order.
func (m *Mesh) SubMeshes() []*SubMesh {
	return slices.Clone(m.subMeshes)
}

// SubMeshNames returns the submesh name table.
func (m *Mesh) SubMeshNames() map[string]int {
	out := make(map[string]int, len(m.subMeshNames))
	for k, v := range m.subMeshNames {
		out[k] = v
	}
	return out
}

// DestroySubMesh removes submesh i; later submeshes move down one index.
func (m *Mesh) DestroySubMesh(i int) error {
	if i < 0 || i >= len(m.subMeshes) {
		return fmt.Errorf("submesh %d in mesh '%s': %w", i, m.Name(), core.ErrItemNotFound)
	}
	m.subMeshes = slices.Delete(m.subMeshes, i, i+1)
	for name, idx := range m.subMeshNames {
		switch {
		case idx == i:
			delete(m.subMeshNames, name)
		case idx > i:
			m.subMeshNames[name] = idx - 1
		}
	}
	m.animationTypesDirty = true
	return nil
}

func (m *Mesh) DestroySubMeshByName(name string) error {
	i, err := m.SubMeshIndex(name)
	if err != nil {
		return err
	}
	return m.DestroySubMesh(i)
}

/* Bounds */

func (m *Mesh) Bounds() math.Extents3D {
	return m.aabb
}

func (m *Mesh) BoundingSphereRadius() float32 {
	return m.boundRadius
}

/**
 * @brief Sets the bounding box. The bounding radius becomes the longer of the two
 * corner vectors. With pad, both grow by BoundsPaddingFactor.
 */
func (m *Mesh) SetBounds(box math.Extents3D, pad bool) {
	m.aabb = box
	m.boundRadius = boundingRadius(box)
	if pad {
		size := box.Max.Sub(box.Min).MulScalar(BoundsPaddingFactor)
		m.aabb = math.Extents3D{Min: box.Min.Sub(size), Max: box.Max.Add(size)}
		m.boundRadius += m.boundRadius * BoundsPaddingFactor
	}
}

func (m *Mesh) SetBoundingSphereRadius(radius float32) {
	m.boundRadius = radius
}

// ComputeBounds sets the bounds from every position of the mesh, without padding.
func (m *Mesh) ComputeBounds() error {
	var (
		box  math.Extents3D
		seen bool
	)
	collect := func(vd *metadata.VertexData) error {
		if vd == nil || vd.VertexCount == 0 {
			return nil
		}
		if _, ok := vd.Declaration.FindElementBySemantic(metadata.VES_POSITION, 0); !ok {
			return nil
		}
		p, err := vd.ReadFloat3(metadata.VES_POSITION, 0)
		if err != nil {
			return err
		}
		e := math.ExtentsFromPoints(p)
		if seen {
			e = box.Merge(e)
		}
		box, seen = e, true
		return nil
	}
	if err := collect(m.sharedVertexData); err != nil {
		return err
	}
	for _, sm := range m.subMeshes {
		if sm.useSharedVertices {
			continue
		}
		if err := collect(sm.vertexData); err != nil {
			return err
		}
	}
	m.SetBounds(box, false)
	return nil
}

/* Skeleton */

func (m *Mesh) SkeletonName() string {
	return m.skeletonName
}

func (m *Mesh) HasSkeleton() bool {
	return m.skeletonName != ""
}

// Skeleton returns the resolved skeleton, or nil.
func (m *Mesh) Skeleton() *animation.Skeleton {
	return m.skeleton
}

/**
 * @brief Links the mesh to a skeleton by name. A skeleton that can't be loaded is
 * logged and the mesh stays unanimated; this never fails.
 */
func (m *Mesh) SetSkeletonName(name string) {
	if name == m.skeletonName {
		return
	}
	m.skeletonName = name
	m.skeleton = nil
	if name == "" {
		return
	}
	if m.deps.Skeletons == nil {
		core.LogError("unable to load skeleton '%s' for mesh '%s': no skeleton loader; the mesh will not be animated", name, m.Name())
		return
	}
	skel, err := m.deps.Skeletons.LoadSkeleton(name, m.Group())
	if err != nil {
		core.LogError("unable to load skeleton '%s' for mesh '%s': %s; the mesh will not be animated", name, m.Name(), err)
		return
	}
	m.skeleton = skel
}

// NotifySkeleton links an already loaded skeleton.
func (m *Mesh) NotifySkeleton(skel *animation.Skeleton) {
	m.skeleton = skel
	if skel == nil {
		m.skeletonName = ""
		return
	}
	m.skeletonName = skel.Name()
}

/* Bone assignments */

// AddBoneAssignment assigns a bone to a vertex of the shared vertex data.
func (m *Mesh) AddBoneAssignment(vba VertexBoneAssignment) {
	m.boneAssignments.Add(vba)
	m.boneAssignmentsOutOfDate = true
}

func (m *Mesh) ClearBoneAssignments() {
	m.boneAssignments.Clear()
	m.boneAssignmentsOutOfDate = true
}

func (m *Mesh) BoneAssignments() *BoneAssignments {
	return &m.boneAssignments
}

func (m *Mesh) BoneAssignmentsOutOfDate() bool {
	if m.boneAssignmentsOutOfDate {
		return true
	}
	for _, sm := range m.subMeshes {
		if sm.boneAssignmentsOutOfDate {
			return true
		}
	}
	return false
}

/**
 * @brief Rationalises the bone assignments of the shared vertex data and of every
 * submesh with its own vertex data, then writes them into blend index and weight
 * elements.
 */
func (m *Mesh) CompileBoneAssignments() error {
	if m.sharedVertexData != nil {
		if n := RationalizeBoneAssignments(m.sharedVertexData.VertexCount, &m.boneAssignments); n > 0 {
			if err := compileBoneAssignments(&m.boneAssignments, n, m.sharedVertexData, m.vertexBufferPolicy); err != nil {
				return fmt.Errorf("mesh '%s': %w", m.Name(), err)
			}
		}
	}
	m.boneAssignmentsOutOfDate = false

	for i, sm := range m.subMeshes {
		if sm.useSharedVertices || sm.vertexData == nil {
			continue
		}
		if n := RationalizeBoneAssignments(sm.vertexData.VertexCount, &sm.boneAssignments); n > 0 {
			if err := compileBoneAssignments(&sm.boneAssignments, n, sm.vertexData, m.vertexBufferPolicy); err != nil {
				return fmt.Errorf("mesh '%s' submesh %d: %w", m.Name(), i, err)
			}
		}
		sm.boneAssignmentsOutOfDate = false
	}
	return nil
}

func (m *Mesh) updateCompiledBoneAssignments() error {
	if !m.BoneAssignmentsOutOfDate() {
		return nil
	}
	return m.CompileBoneAssignments()
}

/**
 * @brief Maps blend indices in the compiled vertex data to skeleton bone indices.
 * Blend indices are bone indices, so the map is the identity over the skeleton's
 * bones, or over the highest assigned bone when there is no skeleton.
 */
func (m *Mesh) BlendIndexToBoneIndexMap() []uint16 {
	n := 0
	if m.skeleton != nil {
		n = m.skeleton.NumBones()
	} else {
		scan := func(b *BoneAssignments) {
			for _, v := range b.Vertices() {
				for _, vba := range b.For(v) {
					n = max(n, int(vba.BoneIndex)+1)
				}
			}
		}
		scan(&m.boneAssignments)
		for _, sm := range m.subMeshes {
			scan(&sm.boneAssignments)
		}
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = uint16(i)
	}
	return out
}

/* Buffer policy */

func (m *Mesh) VertexBufferPolicy() BufferPolicy {
	return m.vertexBufferPolicy
}

func (m *Mesh) IndexBufferPolicy() BufferPolicy {
	return m.indexBufferPolicy
}

// SetVertexBufferPolicy applies to vertex buffers created from now on.
func (m *Mesh) SetVertexBufferPolicy(usage hardware.Usage, shadowed bool) {
	m.vertexBufferPolicy = BufferPolicy{Usage: usage, Shadowed: shadowed}
}

// SetIndexBufferPolicy applies to index buffers created from now on.
func (m *Mesh) SetIndexBufferPolicy(usage hardware.Usage, shadowed bool) {
	m.indexBufferPolicy = BufferPolicy{Usage: usage, Shadowed: shadowed}
}

func nan32() float32 {
	return float32(gomath.NaN())
}
