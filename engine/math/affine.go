package math

// NewAffine3Identity returns the identity transform.
func NewAffine3Identity() Affine3 {
	return Affine3{
		M: [3][3]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0, 0, 1},
		},
	}
}

// NewAffine3Translation returns a pure translation.
func NewAffine3Translation(t Vec3) Affine3 {
	a := NewAffine3Identity()
	a.T = t
	return a
}

// TransformPoint applies the full affine transform (linear part and translation).
func (a Affine3) TransformPoint(v Vec3) Vec3 {
	return Vec3{
		v.X*a.M[0][0] + v.Y*a.M[1][0] + v.Z*a.M[2][0] + a.T.X,
		v.X*a.M[0][1] + v.Y*a.M[1][1] + v.Z*a.M[2][1] + a.T.Y,
		v.X*a.M[0][2] + v.Y*a.M[1][2] + v.Z*a.M[2][2] + a.T.Z,
	}
}

// TransformDirection applies only the 3x3 linear part.
func (a Affine3) TransformDirection(v Vec3) Vec3 {
	return Vec3{
		v.X*a.M[0][0] + v.Y*a.M[1][0] + v.Z*a.M[2][0],
		v.X*a.M[0][1] + v.Y*a.M[1][1] + v.Z*a.M[2][1],
		v.X*a.M[0][2] + v.Y*a.M[1][2] + v.Z*a.M[2][2],
	}
}

// Mul concatenates a then other, so that
// a.Mul(other).TransformPoint(v) == other.TransformPoint(a.TransformPoint(v)).
func (a Affine3) Mul(other Affine3) Affine3 {
	out := Affine3{}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.M[r][c] = a.M[r][0]*other.M[0][c] + a.M[r][1]*other.M[1][c] + a.M[r][2]*other.M[2][c]
		}
	}
	out.T = other.TransformPoint(a.T)
	return out
}

// Determinant of the linear part.
func (a Affine3) Determinant() float32 {
	m := a.M
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Inverse returns the inverse transform. A singular linear part yields the identity.
func (a Affine3) Inverse() Affine3 {
	det := a.Determinant()
	if det == 0 {
		return NewAffine3Identity()
	}
	inv := 1.0 / det
	m := a.M
	out := Affine3{}
	out.M[0][0] = (m[1][1]*m[2][2] - m[1][2]*m[2][1]) * inv
	out.M[0][1] = (m[0][2]*m[2][1] - m[0][1]*m[2][2]) * inv
	out.M[0][2] = (m[0][1]*m[1][2] - m[0][2]*m[1][1]) * inv
	out.M[1][0] = (m[1][2]*m[2][0] - m[1][0]*m[2][2]) * inv
	out.M[1][1] = (m[0][0]*m[2][2] - m[0][2]*m[2][0]) * inv
	out.M[1][2] = (m[0][2]*m[1][0] - m[0][0]*m[1][2]) * inv
	out.M[2][0] = (m[1][0]*m[2][1] - m[1][1]*m[2][0]) * inv
	out.M[2][1] = (m[0][1]*m[2][0] - m[0][0]*m[2][1]) * inv
	out.M[2][2] = (m[0][0]*m[1][1] - m[0][1]*m[1][0]) * inv
	out.T = out.TransformDirection(a.T).Neg()
	return out
}

// ToMat4 expands the transform back into a full 4x4 matrix.
func (a Affine3) ToMat4() Mat4 {
	out := NewMat4Identity()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out.Data[r*4+c] = a.M[r][c]
		}
	}
	out.Data[12] = a.T.X
	out.Data[13] = a.T.Y
	out.Data[14] = a.T.Z
	return out
}
