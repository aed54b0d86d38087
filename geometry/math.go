// Package geometry implements the volumes used to partition and query a 3D
// scene.
package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Epsilon is the tolerance used by the intersection tests.
const Epsilon = 0.000001

// Infinity is returned as the distance of a ray that does not hit anything.
var Infinity = float32(math.Inf(1))

// Intersection is the result of testing a volume against another.
type Intersection int

const (
	Outside Intersection = iota
	Intersects
	Inside
)

func (i Intersection) String() string {
	switch i {
	case Outside:
		return "outside"
	case Intersects:
		return "intersects"
	case Inside:
		return "inside"
	default:
		return "unknown"
	}
}

// Volume is implemented by shapes that can classify an axis-aligned box.
type Volume interface {
	IsInsideBox(box BoundingBox) Intersection
}

func EqualWithEpsilon(a float32, b float32, epsilon float64) bool {
	return math.Abs((float64)(a-b)) <= epsilon
}

func isFinite(v mgl32.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return false
		}
	}
	return true
}

func minVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{min(a[0], b[0]), min(a[1], b[1]), min(a[2], b[2])}
}

func maxVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{max(a[0], b[0]), max(a[1], b[1]), max(a[2], b[2])}
}

func absVec3(v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{abs(v[0]), abs(v[1]), abs(v[2])}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
