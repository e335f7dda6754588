package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion Vec4

/**
 * @brief a 4x4 matrix, typically used to represent object transformations.
 * Vectors are treated as rows, so the translation lives in Data[12..14]
 * and matrices concatenate left to right (local * parent).
 */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

/**
 * @brief A 4x3 affine matrix: a 3x3 linear part plus a translation.
 * This is the layout bone matrices are handed to the blending code in.
 */
type Affine3 struct {
	/** @brief Row-major linear part. Row i is the image of basis axis i. */
	M [3][3]float32
	/** @brief The translation. */
	T Vec3
}

/**
 * @brief Represents the extents of a 3d object.
 */
type Extents3D struct {
	/** @brief The minimum extents of the object. */
	Min Vec3
	/** @brief The maximum extents of the object. */
	Max Vec3
}
