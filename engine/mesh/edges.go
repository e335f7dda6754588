package mesh

import (
	"fmt"

	"github.com/spaghettifunk/anima-mesh/engine/core"
	"github.com/spaghettifunk/anima-mesh/engine/edge"
)

func (m *Mesh) IsEdgeListBuilt() bool {
	return m.edgeListsBuilt
}

func (m *Mesh) AutoBuildEdgeLists() bool {
	return m.autoBuildEdgeLists
}

func (m *Mesh) SetAutoBuildEdgeLists(auto bool) {
	m.autoBuildEdgeLists = auto
}

/**
 * @brief Builds an edge list for every LOD level. Manual levels take the level 0
 * edge list of their mesh once it is loaded. Building again is a no-op until
 * FreeEdgeList is called.
 */
func (m *Mesh) BuildEdgeList() error {
	if m.edgeListsBuilt {
		return nil
	}
	for level, usage := range m.lodUsages {
		if m.isLodManual && level > 0 {
			if usage.ManualMesh != nil {
				ed, err := usage.ManualMesh.EdgeList(0)
				if err != nil {
					return err
				}
				usage.EdgeData = ed
			}
			continue
		}

		builder := m.deps.NewEdgeBuilder()
		sharedSet := -1
		if m.sharedVertexData != nil {
			sharedSet = builder.AddVertexData(m.sharedVertexData)
		}
		atLeastOne := false
		for _, sm := range m.subMeshes {
			if !sm.isTriangles() {
				continue
			}
			id, err := sm.LodIndexData(level)
			if err != nil {
				continue
			}
			if sm.useSharedVertices {
				if sharedSet < 0 {
					continue
				}
				builder.AddIndexData(id, sharedSet, sm.operationType)
			} else {
				set := builder.AddVertexData(sm.vertexData)
				builder.AddIndexData(id, set, sm.operationType)
			}
			atLeastOne = true
		}
		if !atLeastOne {
			continue
		}
		ed, err := builder.Build()
		if err != nil {
			return fmt.Errorf("edge list for LOD %d of mesh '%s': %w", level, m.Name(), err)
		}
		usage.EdgeData = ed
	}
	m.edgeListsBuilt = true
	core.LogDebug("edge lists built for mesh '%s'", m.Name())
	return nil
}

// FreeEdgeList drops the edge lists of every LOD level.
func (m *Mesh) FreeEdgeList() {
	if !m.edgeListsBuilt {
		return
	}
	for _, usage := range m.lodUsages {
		usage.EdgeData = nil
	}
	m.edgeListsBuilt = false
}

// EdgeList returns the edge list of a LOD level, building the lists first if needed.
func (m *Mesh) EdgeList(level int) (*edge.EdgeData, error) {
	if !m.edgeListsBuilt {
		if err := m.BuildEdgeList(); err != nil {
			return nil, err
		}
	}
	usage, err := m.LodLevel(level)
	if err != nil {
		return nil, err
	}
	return usage.EdgeData, nil
}

func (m *Mesh) IsPreparedForShadowVolumes() bool {
	return m.preparedForShadowVolumes
}

/**
 * @brief Doubles the positions of the shared vertex data and of every triangle
 * submesh with its own vertex data, for shadow volume extrusion. Runs once.
 */
func (m *Mesh) PrepareForShadowVolume() error {
	if m.preparedForShadowVolumes {
		return nil
	}
	if m.sharedVertexData != nil {
		if err := m.sharedVertexData.PrepareForShadowVolume(); err != nil {
			return fmt.Errorf("shared vertex data of mesh '%s': %w", m.Name(), err)
		}
	}
	for i, sm := range m.subMeshes {
		if sm.useSharedVertices || !sm.isTriangles() {
			continue
		}
		if err := sm.vertexData.PrepareForShadowVolume(); err != nil {
			return fmt.Errorf("submesh %d of mesh '%s': %w", i, m.Name(), err)
		}
	}
	m.preparedForShadowVolumes = true
	return nil
}
