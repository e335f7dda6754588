package lod

import (
	"fmt"
	stdmath "math"

	"github.com/spaghettifunk/anima-mesh/engine/core"
)

/**
 * @brief Maps a LOD selection value (distance, screen size...) to a LOD level.
 * Values are stored transformed so comparisons stay cheap at render time.
 */
type Strategy interface {
	Name() string
	/** @brief The value of the full detail level. */
	BaseValue() float32
	/** @brief Converts a user supplied value into the stored value. */
	TransformUserValue(userValue float32) float32
	/** @brief Returns the level for value given the stored values of every level. */
	Index(value float32, values []float32) int
	/** @brief Reports whether the stored values are in the order the strategy expects. */
	IsSorted(values []float32) bool
}

/** @brief Selects levels by camera distance. Stored values are squared distances, ascending. */
type DistanceStrategy struct{}

func (DistanceStrategy) Name() string {
	return "distance"
}

func (DistanceStrategy) BaseValue() float32 {
	return 0
}

func (DistanceStrategy) TransformUserValue(userValue float32) float32 {
	return userValue * userValue
}

func (DistanceStrategy) Index(value float32, values []float32) int {
	return indexAscending(value, values)
}

func (DistanceStrategy) IsSorted(values []float32) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return false
		}
	}
	return true
}

/** @brief Selects levels by projected pixel count. Stored values descend from the base. */
type PixelCountStrategy struct{}

func (PixelCountStrategy) Name() string {
	return "pixel_count"
}

func (PixelCountStrategy) BaseValue() float32 {
	return stdmath.MaxFloat32
}

func (PixelCountStrategy) TransformUserValue(userValue float32) float32 {
	return userValue
}

func (PixelCountStrategy) Index(value float32, values []float32) int {
	return indexDescending(value, values)
}

func (PixelCountStrategy) IsSorted(values []float32) bool {
	for i := 1; i < len(values); i++ {
		if values[i] > values[i-1] {
			return false
		}
	}
	return true
}

// indexAscending returns the last level whose value is not above value.
func indexAscending(value float32, values []float32) int {
	for i, v := range values {
		if v > value {
			return max(i-1, 0)
		}
	}
	return max(len(values)-1, 0)
}

// indexDescending returns the last level whose value is not below value.
func indexDescending(value float32, values []float32) int {
	for i, v := range values {
		if v < value {
			return max(i-1, 0)
		}
	}
	return max(len(values)-1, 0)
}

// StrategyByName returns the strategy registered under name.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "", "distance":
		return DistanceStrategy{}, nil
	case "pixel_count":
		return PixelCountStrategy{}, nil
	}
	return nil, fmt.Errorf("unknown LOD strategy %q: %w", name, core.ErrInvalidParams)
}
