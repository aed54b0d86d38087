package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Ray is a half-line starting at Origin. Direction is expected to be
// normalized; a zero direction is a caller error and yields undefined hits.
type Ray struct {
	Origin    mgl32.Vec3
	Direction mgl32.Vec3
}

// NewRay returns a ray with a normalized direction.
func NewRay(origin, direction mgl32.Vec3) Ray {
	return Ray{
		Origin:    origin,
		Direction: direction.Normalize(),
	}
}

// NewRayFromPoints returns the ray starting at from and heading to to.
func NewRayFromPoints(from, to mgl32.Vec3) Ray {
	return NewRay(from, to.Sub(from))
}

// Point returns the point at distance along the ray.
func (r Ray) Point(distance float32) mgl32.Vec3 {
	return r.Origin.Add(r.Direction.Mul(distance))
}

// HitDistance returns the distance along the ray to the first intersection
// with box, 0 when the origin is inside the box and Infinity on a miss.
func (r Ray) HitDistance(box BoundingBox) float32 {
	if !box.Defined {
		return Infinity
	}
	if box.IsInside(r.Origin) == Inside {
		return 0
	}

	tMin := float32(0)
	tMax := Infinity

	// slab test, one axis at a time:
	for axis := 0; axis < 3; axis++ {
		origin := r.Origin[axis]
		direction := r.Direction[axis]

		if abs(direction) < Epsilon {
			if origin < box.Min[axis] || origin > box.Max[axis] {
				return Infinity
			}
			continue
		}

		invDirection := 1 / direction
		t1 := (box.Min[axis] - origin) * invDirection
		t2 := (box.Max[axis] - origin) * invDirection
		if t1 > t2 {
			t1, t2 = t2, t1
		}

		tMin = max(tMin, t1)
		tMax = min(tMax, t2)
		if tMin > tMax {
			return Infinity
		}
	}

	return tMin
}

// HitDistanceSphere returns the distance along the ray to sphere s, or
// Infinity on a miss.
func (r Ray) HitDistanceSphere(s Sphere) float32 {
	centeredOrigin := r.Origin.Sub(s.Center)
	squaredRadius := s.Radius * s.Radius

	if centeredOrigin.Dot(centeredOrigin) <= squaredRadius {
		return 0
	}

	b := 2 * centeredOrigin.Dot(r.Direction)
	c := centeredOrigin.Dot(centeredOrigin) - squaredRadius
	d := b*b - 4*c
	if d < 0 {
		return Infinity
	}

	// the origin is outside the sphere, so both roots share a sign:
	dist := (-b - float32(math.Sqrt(float64(d)))) / 2
	if dist < 0 {
		return Infinity
	}
	return dist
}
