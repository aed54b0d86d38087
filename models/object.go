package models

import (
	"github.com/aukilabs/octree/geometry"
	"github.com/aukilabs/octree/octree"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	ObjectKindBox   = "box"
	ObjectKindLight = "light"
)

// Object is a drawable placed in a scene.
type Object interface {
	octree.Drawable

	Node() *Node
}

// Node identifies a scene object and holds its transform.
type Node struct {
	ID        uint32
	Name      string
	Kind      string
	Transform *Transform
}

// BoxDrawable is a piece of geometry bounded by a box in local space.
type BoxDrawable struct {
	octree.DrawableBase

	node        Node
	boundingBox geometry.BoundingBox
}

// NewBoxDrawable creates a box drawable. The transform is owned by the
// drawable afterwards: changing it marks the drawable dirty.
func NewBoxDrawable(id uint32, name string, boundingBox geometry.BoundingBox, transform *Transform) *BoxDrawable {
	d := &BoxDrawable{
		node: Node{
			ID:        id,
			Name:      name,
			Kind:      ObjectKindBox,
			Transform: transform,
		},
		boundingBox: boundingBox,
	}
	d.Init(d, octree.FlagGeometry)
	transform.setListener(d.OnMarkedDirty)
	return d
}

func (d *BoxDrawable) Node() *Node {
	return &d.node
}

// BoundingBox returns the local space bounding box.
func (d *BoxDrawable) BoundingBox() geometry.BoundingBox {
	return d.boundingBox
}

func (d *BoxDrawable) ComputeWorldBoundingBox() geometry.BoundingBox {
	return d.boundingBox.Transformed(d.node.Transform.Matrix())
}

func (d *BoxDrawable) WorldPosition() mgl32.Vec3 {
	return d.node.Transform.Position()
}

// ProcessRayQuery tests the oriented box for the OBB and triangle levels,
// and the world bounding box otherwise.
func (d *BoxDrawable) ProcessRayQuery(query *octree.RayOctreeQuery, results []octree.RayQueryResult) []octree.RayQueryResult {
	if query.Level == octree.RayAABB {
		return octree.ProcessRayQueryBox(d, query, results)
	}

	inverse := d.node.Transform.Matrix().Inv()
	localRay := geometry.Ray{
		Origin:    inverse.Mul4x1(query.Ray.Origin.Vec4(1)).Vec3(),
		Direction: inverse.Mul4x1(query.Ray.Direction.Vec4(0)).Vec3(),
	}

	// The local direction is not normalized so the hit parameter is also
	// the world distance.
	distance := localRay.HitDistance(d.boundingBox)
	if distance >= query.MaxDistance {
		return results
	}

	return append(results, octree.RayQueryResult{
		Drawable: d,
		Distance: distance,
		Position: query.Ray.Point(distance),
	})
}

// PointLight is a light affecting the geometry within its range.
type PointLight struct {
	octree.DrawableBase

	node       Node
	color      mgl32.Vec3
	lightRange float32
	intensity  float32
}

func NewPointLight(id uint32, name string, lightRange, intensity float32, color mgl32.Vec3, transform *Transform) *PointLight {
	l := &PointLight{
		node: Node{
			ID:        id,
			Name:      name,
			Kind:      ObjectKindLight,
			Transform: transform,
		},
		color:      color,
		lightRange: max(lightRange, 0),
		intensity:  max(intensity, 0),
	}
	l.Init(l, octree.FlagLight)
	transform.setListener(l.OnMarkedDirty)
	return l
}

func (l *PointLight) Node() *Node {
	return &l.node
}

func (l *PointLight) Range() float32 {
	return l.lightRange
}

func (l *PointLight) Intensity() float32 {
	return l.intensity
}

func (l *PointLight) Color() mgl32.Vec3 {
	return l.color
}

// Sphere returns the volume lit by the light.
func (l *PointLight) Sphere() geometry.Sphere {
	return geometry.Sphere{
		Center: l.node.Transform.Position(),
		Radius: l.lightRange,
	}
}

func (l *PointLight) ComputeWorldBoundingBox() geometry.BoundingBox {
	return l.Sphere().BoundingBox()
}

func (l *PointLight) WorldPosition() mgl32.Vec3 {
	return l.node.Transform.Position()
}

// IntensitySortValue orders lights by their distance divided by their
// intensity: nearer and brighter lights come first.
func (l *PointLight) IntensitySortValue(position mgl32.Vec3) float32 {
	distance := position.Sub(l.node.Transform.Position()).Len()
	return distance / max(l.intensity, geometry.Epsilon)
}
