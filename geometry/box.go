package geometry

import (
	"github.com/go-gl/mathgl/mgl32"
)

// BoundingBox is an axis-aligned box. The zero value is an undefined box that
// contains nothing.
type BoundingBox struct {
	Min     mgl32.Vec3
	Max     mgl32.Vec3
	Defined bool
}

// NewBoundingBox returns a defined box spanning min and max.
func NewBoundingBox(min, max mgl32.Vec3) BoundingBox {
	return BoundingBox{
		Min:     min,
		Max:     max,
		Defined: true,
	}
}

// NewBoundingBoxFromCenter returns a defined box of the given size centered
// on center.
func NewBoundingBoxFromCenter(center, size mgl32.Vec3) BoundingBox {
	halfSize := size.Mul(0.5)
	return NewBoundingBox(center.Sub(halfSize), center.Add(halfSize))
}

// NewBoundingBoxFromPoints returns the smallest box containing all points.
func NewBoundingBoxFromPoints(points ...mgl32.Vec3) BoundingBox {
	var box BoundingBox
	for _, p := range points {
		box.MergePoint(p)
	}
	return box
}

func (b BoundingBox) Center() mgl32.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

func (b BoundingBox) Size() mgl32.Vec3 {
	return b.Max.Sub(b.Min)
}

func (b BoundingBox) HalfSize() mgl32.Vec3 {
	return b.Size().Mul(0.5)
}

// IsDegenerate reports whether the box cannot be used for spatial fitting:
// undefined, non-finite, inverted on any axis or collapsed to a single point.
func (b BoundingBox) IsDegenerate() bool {
	if !b.Defined || !isFinite(b.Min) || !isFinite(b.Max) {
		return true
	}

	size := b.Size()
	if size[0] < 0 || size[1] < 0 || size[2] < 0 {
		return true
	}
	return size[0] == 0 && size[1] == 0 && size[2] == 0
}

// Merge grows b to contain o.
func (b *BoundingBox) Merge(o BoundingBox) {
	if !o.Defined {
		return
	}
	if !b.Defined {
		*b = o
		return
	}
	b.Min = minVec3(b.Min, o.Min)
	b.Max = maxVec3(b.Max, o.Max)
}

// MergePoint grows b to contain p.
func (b *BoundingBox) MergePoint(p mgl32.Vec3) {
	if !b.Defined {
		*b = NewBoundingBox(p, p)
		return
	}
	b.Min = minVec3(b.Min, p)
	b.Max = maxVec3(b.Max, p)
}

// Expanded returns b grown by margin on every side.
func (b BoundingBox) Expanded(margin mgl32.Vec3) BoundingBox {
	if !b.Defined {
		return b
	}
	return NewBoundingBox(b.Min.Sub(margin), b.Max.Add(margin))
}

// Transformed returns the box containing the 8 corners of b transformed by m.
func (b BoundingBox) Transformed(m mgl32.Mat4) BoundingBox {
	if !b.Defined {
		return b
	}

	mn, mx := b.Min, b.Max
	corners := [8]mgl32.Vec3{
		{mn[0], mn[1], mn[2]},
		{mx[0], mn[1], mn[2]},
		{mn[0], mx[1], mn[2]},
		{mx[0], mx[1], mn[2]},
		{mn[0], mn[1], mx[2]},
		{mx[0], mn[1], mx[2]},
		{mn[0], mx[1], mx[2]},
		{mx[0], mx[1], mx[2]},
	}

	var result BoundingBox
	for _, c := range corners {
		result.MergePoint(m.Mul4x1(c.Vec4(1)).Vec3())
	}
	return result
}

// IsInside classifies point p against b.
func (b BoundingBox) IsInside(p mgl32.Vec3) Intersection {
	if !b.Defined {
		return Outside
	}
	if p[0] < b.Min[0] || p[0] > b.Max[0] ||
		p[1] < b.Min[1] || p[1] > b.Max[1] ||
		p[2] < b.Min[2] || p[2] > b.Max[2] {
		return Outside
	}
	return Inside
}

// IsInsideBox classifies o against b.
func (b BoundingBox) IsInsideBox(o BoundingBox) Intersection {
	if !b.Defined || !o.Defined {
		return Outside
	}
	if o.Max[0] < b.Min[0] || o.Min[0] > b.Max[0] ||
		o.Max[1] < b.Min[1] || o.Min[1] > b.Max[1] ||
		o.Max[2] < b.Min[2] || o.Min[2] > b.Max[2] {
		return Outside
	}
	if o.Min[0] < b.Min[0] || o.Max[0] > b.Max[0] ||
		o.Min[1] < b.Min[1] || o.Max[1] > b.Max[1] ||
		o.Min[2] < b.Min[2] || o.Max[2] > b.Max[2] {
		return Intersects
	}
	return Inside
}

// Contains reports whether o lies entirely within b.
func (b BoundingBox) Contains(o BoundingBox) bool {
	return b.IsInsideBox(o) == Inside
}
