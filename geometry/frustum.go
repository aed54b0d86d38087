package geometry

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Plane is the half-space Normal·p + D >= 0.
type Plane struct {
	Normal mgl32.Vec3
	D      float32
}

// Distance returns the signed distance from p to the plane. It is positive on
// the side the normal points to.
func (p Plane) Distance(point mgl32.Vec3) float32 {
	return p.Normal.Dot(point) + p.D
}

func newNormalizedPlane(v mgl32.Vec4) Plane {
	normal := v.Vec3()
	l := normal.Len()
	if l == 0 {
		return Plane{}
	}
	return Plane{
		Normal: normal.Mul(1 / l),
		D:      v[3] / l,
	}
}

const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
	NumFrustumPlanes
)

// Frustum is a convex volume bounded by six inward facing planes.
type Frustum struct {
	Planes [NumFrustumPlanes]Plane
}

// NewFrustumFromMatrix extracts the planes of the clip volume of the given
// view-projection matrix (OpenGL clip space conventions).
func NewFrustumFromMatrix(viewProj mgl32.Mat4) Frustum {
	r0 := viewProj.Row(0)
	r1 := viewProj.Row(1)
	r2 := viewProj.Row(2)
	r3 := viewProj.Row(3)

	var f Frustum
	f.Planes[PlaneLeft] = newNormalizedPlane(r3.Add(r0))
	f.Planes[PlaneRight] = newNormalizedPlane(r3.Sub(r0))
	f.Planes[PlaneBottom] = newNormalizedPlane(r3.Add(r1))
	f.Planes[PlaneTop] = newNormalizedPlane(r3.Sub(r1))
	f.Planes[PlaneNear] = newNormalizedPlane(r3.Add(r2))
	f.Planes[PlaneFar] = newNormalizedPlane(r3.Sub(r2))
	return f
}

func (f Frustum) IsInside(p mgl32.Vec3) Intersection {
	for _, plane := range f.Planes {
		if plane.Distance(p) < 0 {
			return Outside
		}
	}
	return Inside
}

// IsInsideBox classifies box against the frustum using the box center and
// its projected radius on each plane normal.
func (f Frustum) IsInsideBox(box BoundingBox) Intersection {
	if !box.Defined {
		return Outside
	}

	center := box.Center()
	halfSize := box.HalfSize()
	allInside := true

	for _, plane := range f.Planes {
		dist := plane.Distance(center)
		radius := absVec3(plane.Normal).Dot(halfSize)

		if dist < -radius {
			return Outside
		}
		if dist < radius {
			allInside = false
		}
	}

	if allInside {
		return Inside
	}
	return Intersects
}
