package math

// TriangleFaceNormal returns the unnormalised plane of the triangle: xyz is the
// cross product of the two edges and w the negative plane distance.
func TriangleFaceNormal(v0, v1, v2 Vec3) Vec4 {
	edge1 := v1.Sub(v0)
	edge2 := v2.Sub(v0)
	n := edge1.Cross(edge2)
	return Vec4{n.X, n.Y, n.Z, -n.Dot(v0)}
}

// TriangleTangent computes the tangent of a triangle from its positions and texture
// coordinates. Degenerate UV mappings yield the zero vector.
func TriangleTangent(p0, p1, p2 Vec3, uv0, uv1, uv2 Vec2) Vec3 {
	edge1 := p1.Sub(p0)
	edge2 := p2.Sub(p0)

	deltaU1 := uv1.X - uv0.X
	deltaV1 := uv1.Y - uv0.Y

	deltaU2 := uv2.X - uv0.X
	deltaV2 := uv2.Y - uv0.Y

	dividend := (deltaU1*deltaV2 - deltaU2*deltaV1)
	if dividend == 0 {
		return Vec3{}
	}
	fc := 1.0 / dividend

	tangent := Vec3{
		(fc * (deltaV2*edge1.X - deltaV1*edge2.X)),
		(fc * (deltaV2*edge1.Y - deltaV1*edge2.Y)),
		(fc * (deltaV2*edge1.Z - deltaV1*edge2.Z))}

	return tangent.Normalize()
}

// ExtentsFromPoints returns the bounding box of the points. An empty slice
// produces a zero box.
func ExtentsFromPoints(points []Vec3) Extents3D {
	if len(points) == 0 {
		return Extents3D{}
	}
	e := Extents3D{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		e.Min = e.Min.MinV(p)
		e.Max = e.Max.MaxV(p)
	}
	return e
}

// Merge grows the extents to include other.
func (e Extents3D) Merge(other Extents3D) Extents3D {
	return Extents3D{Min: e.Min.MinV(other.Min), Max: e.Max.MaxV(other.Max)}
}

// Corners returns the eight corners of the box.
func (e Extents3D) Corners() [8]Vec3 {
	return [8]Vec3{
		{e.Min.X, e.Min.Y, e.Min.Z},
		{e.Min.X, e.Min.Y, e.Max.Z},
		{e.Min.X, e.Max.Y, e.Min.Z},
		{e.Min.X, e.Max.Y, e.Max.Z},
		{e.Max.X, e.Min.Y, e.Min.Z},
		{e.Max.X, e.Min.Y, e.Max.Z},
		{e.Max.X, e.Max.Y, e.Min.Z},
		{e.Max.X, e.Max.Y, e.Max.Z},
	}
}
