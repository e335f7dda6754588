package mesh

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/lod"
	"github.com/spaghettifunk/anima-mesh/engine/renderer/metadata"
)

/** @brief A manual LOD level: another mesh used from UserValue on. */
type ManualLodEntry struct {
	UserValue float32
	MeshName  string
	/** @brief The group of the mesh; empty means the group of the parent mesh. */
	Group string
}

func (m *Mesh) resetLodUsages() {
	m.lodUsages = []*MeshLodUsage{{
		UserValue: nan32(),
		Value:     m.lodStrategy.BaseValue(),
	}}
	m.isLodManual = false
}

func (m *Mesh) NumLodLevels() int {
	return len(m.lodUsages)
}

func (m *Mesh) IsLodManual() bool {
	return m.isLodManual
}

func (m *Mesh) LodStrategy() lod.Strategy {
	return m.lodStrategy
}

// SetLodStrategy switches strategy and transforms the stored user values again.
func (m *Mesh) SetLodStrategy(s lod.Strategy) {
	if s == nil {
		s = lod.DistanceStrategy{}
	}
	m.lodStrategy = s
	m.lodUsages[0].Value = s.BaseValue()
	for _, u := range m.lodUsages[1:] {
		u.Value = s.TransformUserValue(u.UserValue)
	}
}

func (m *Mesh) lodValues() []float32 {
	values := make([]float32, len(m.lodUsages))
	for i, u := range m.lodUsages {
		values[i] = u.Value
	}
	return values
}

// LodIndex returns the level to use for a strategy value.
func (m *Mesh) LodIndex(value float32) int {
	return m.lodStrategy.Index(value, m.lodValues())
}

/**
 * @brief Returns LOD level i. The mesh of a manual level is loaded on first access;
 * when the mesh does not build its own edge lists, that mesh's level 0 edge list is
 * taken over.
 */
func (m *Mesh) LodLevel(i int) (*MeshLodUsage, error) {
	if i < 0 || i >= len(m.lodUsages) {
		return nil, fmt.Errorf("LOD level %d of mesh '%s': %w", i, m.Name(), core.ErrItemNotFound)
	}
	usage := m.lodUsages[i]
	if m.isLodManual && i > 0 && usage.ManualMesh == nil {
		if m.deps.Meshes == nil {
			return nil, fmt.Errorf("manual LOD '%s' of mesh '%s' has no mesh loader: %w", usage.ManualName, m.Name(), core.ErrInvalidParams)
		}
		manual, err := m.deps.Meshes.LoadMesh(usage.ManualName, usage.ManualGroup)
		if err != nil {
			return nil, fmt.Errorf("manual LOD %d of mesh '%s': %w", i, m.Name(), err)
		}
		usage.ManualMesh = manual
		if usage.EdgeData == nil && !m.autoBuildEdgeLists {
			ed, err := manual.EdgeList(0)
			if err != nil {
				return nil, err
			}
			usage.EdgeData = ed
		}
	}
	return usage, nil
}

/**
 * @brief Replaces all LOD levels with automatically reduced ones. values are the
 * user values of the new levels, in the order the strategy expects.
 */
func (m *Mesh) GenerateLodLevels(values []float32, method lod.ReductionMethod, reduction float32) error {
	transformed := make([]float32, 0, len(values)+1)
	transformed = append(transformed, m.lodStrategy.BaseValue())
	for _, v := range values {
		transformed = append(transformed, m.lodStrategy.TransformUserValue(v))
	}
	if !m.lodStrategy.IsSorted(transformed) {
		return fmt.Errorf("LOD values %v are not ordered for the %s strategy: %w", values, m.lodStrategy.Name(), core.ErrInvalidParams)
	}

	m.RemoveLodLevels()
	core.LogInfo("generating %d LOD levels for mesh '%s'", len(values), m.Name())

	for i, v := range values {
		m.lodUsages = append(m.lodUsages, &MeshLodUsage{UserValue: v, Value: transformed[i+1]})
	}

	for i, sm := range m.subMeshes {
		if sm.operationType != metadata.OT_TRIANGLE_LIST {
			// only triangle lists are reduced; other submeshes keep their full index data
			for range values {
				sm.lodFaceList = append(sm.lodFaceList, sm.indexData)
			}
			continue
		}
		reducer := m.deps.NewReducer(sm.VertexData(), sm.indexData, m.indexBufferPolicy)
		lists, err := reducer.Build(len(values), method, reduction)
		if err != nil {
			m.RemoveLodLevels()
			return fmt.Errorf("reducing submesh %d of mesh '%s': %w", i, m.Name(), err)
		}
		sm.lodFaceList = lists
	}
	return nil
}

/**
 * @brief Adds manual LOD levels. Only a mesh with just its base level accepts them,
 * so they can't be mixed with generated levels or added twice.
 */
func (m *Mesh) AddManualLodEntries(entries []ManualLodEntry) error {
	if len(m.lodUsages) != 1 {
		return fmt.Errorf("mesh '%s' already has %d LOD levels: %w", m.Name(), len(m.lodUsages), core.ErrManualLodState)
	}
	transformed := []float32{m.lodStrategy.BaseValue()}
	for _, e := range entries {
		transformed = append(transformed, m.lodStrategy.TransformUserValue(e.UserValue))
	}
	if !m.lodStrategy.IsSorted(transformed) {
		return fmt.Errorf("manual LOD values are not ordered for the %s strategy: %w", m.lodStrategy.Name(), core.ErrInvalidParams)
	}
	for i, e := range entries {
		group := e.Group
		if group == "" {
			group = m.Group()
		}
		m.lodUsages = append(m.lodUsages, &MeshLodUsage{
			UserValue:   e.UserValue,
			Value:       transformed[i+1],
			ManualName:  e.MeshName,
			ManualGroup: group,
		})
	}
	m.isLodManual = len(entries) > 0
	return nil
}

// UpdateManualLodLevel points manual level i at another mesh.
func (m *Mesh) UpdateManualLodLevel(i int, meshName string) error {
	if !m.isLodManual {
		return fmt.Errorf("mesh '%s' has no manual LOD levels: %w", m.Name(), core.ErrManualLodState)
	}
	if i <= 0 || i >= len(m.lodUsages) {
		return fmt.Errorf("manual LOD level %d of mesh '%s': %w", i, m.Name(), core.ErrInvalidParams)
	}
	u := m.lodUsages[i]
	u.ManualName = meshName
	u.ManualMesh = nil
	u.EdgeData = nil
	return nil
}

// RemoveLodLevels leaves only the base level, using the current strategy's base value.
func (m *Mesh) RemoveLodLevels() {
	if !m.isLodManual {
		for _, sm := range m.subMeshes {
			sm.RemoveLodLevels()
		}
	}
	m.FreeEdgeList()
	m.resetLodUsages()
}
