package geometry

import (
	"github.com/go-gl/mathgl/mgl32"
)

type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

func (s Sphere) IsInside(p mgl32.Vec3) Intersection {
	d := p.Sub(s.Center)
	if d.Dot(d) < s.Radius*s.Radius {
		return Inside
	}
	return Outside
}

// IsInsideBox classifies box against the sphere.
func (s Sphere) IsInsideBox(box BoundingBox) Intersection {
	if !box.Defined {
		return Outside
	}

	radiusSquared := s.Radius * s.Radius

	// squared distance from the center to the closest point of the box:
	var distSquared float32
	for axis := 0; axis < 3; axis++ {
		if c := s.Center[axis]; c < box.Min[axis] {
			d := c - box.Min[axis]
			distSquared += d * d
		} else if c > box.Max[axis] {
			d := c - box.Max[axis]
			distSquared += d * d
		}
	}
	if distSquared >= radiusSquared {
		return Outside
	}

	// the box is inside only when its farthest corner is:
	mn := box.Min.Sub(s.Center)
	mx := box.Max.Sub(s.Center)
	far := mgl32.Vec3{
		max(abs(mn[0]), abs(mx[0])),
		max(abs(mn[1]), abs(mx[1])),
		max(abs(mn[2]), abs(mx[2])),
	}
	if far.Dot(far) >= radiusSquared {
		return Intersects
	}
	return Inside
}

// BoundingBox returns the box enclosing the sphere.
func (s Sphere) BoundingBox() BoundingBox {
	r := mgl32.Vec3{s.Radius, s.Radius, s.Radius}
	return NewBoundingBox(s.Center.Sub(r), s.Center.Add(r))
}
