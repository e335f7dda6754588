package animation

/**
 * @brief A per-entity copy of a skeleton's bones. Animations are shared with
 * the master; bone transforms are not, so instances never need to synchronise.
 */
type SkeletonInstance struct {
	*Skeleton
	master *Skeleton
}

func NewSkeletonInstance(master *Skeleton) (*SkeletonInstance, error) {
	inst := NewSkeleton(master.Name(), master.Group())
	for _, src := range master.bones {
		b, err := inst.CreateBone(src.name)
		if err != nil {
			return nil, err
		}
		b.transform.SetPositionRotationScale(src.transform.Position, src.transform.Rotation, src.transform.Scale)
		b.initialPosition = src.initialPosition
		b.initialOrientation = src.initialOrientation
		b.initialScale = src.initialScale
		b.bindDerivedInverse = src.bindDerivedInverse
	}
	for _, src := range master.bones {
		for _, child := range src.children {
			if err := inst.bones[src.handle].AddChild(inst.bones[child.handle]); err != nil {
				return nil, err
			}
		}
	}
	inst.animations = master.animations
	return &SkeletonInstance{Skeleton: inst, master: master}, nil
}

func (si *SkeletonInstance) Master() *Skeleton {
	return si.master
}
