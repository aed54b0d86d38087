package octree

import (
	"cmp"
	"slices"

	"github.com/aukilabs/octree/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

// OctreeQuery selects drawables during an Octree traversal.
type OctreeQuery interface {
	// Tests the culling box of an octant. inside is true when an ancestor
	// was already found fully inside the query volume.
	TestOctant(box geometry.BoundingBox, inside bool) geometry.Intersection

	// Tests the drawables stored in an octant and collects the accepted
	// ones.
	TestDrawables(drawables []Drawable, inside bool)

	// Clears the collected results.
	Reset()
}

// VolumeQuery collects the drawables whose world bounding box intersects a
// volume and that match its drawable flags and view mask.
type VolumeQuery struct {
	Volume        geometry.Volume
	DrawableFlags DrawableFlags
	ViewMask      uint32
	Result        []Drawable
}

// NewVolumeQuery returns a query over any volume.
func NewVolumeQuery(v geometry.Volume, flags DrawableFlags, viewMask uint32) *VolumeQuery {
	return &VolumeQuery{
		Volume:        v,
		DrawableFlags: flags,
		ViewMask:      viewMask,
	}
}

// NewPointQuery returns a query for the drawables containing point.
func NewPointQuery(point mgl32.Vec3, flags DrawableFlags, viewMask uint32) *VolumeQuery {
	return NewVolumeQuery(pointVolume(point), flags, viewMask)
}

// NewBoxQuery returns a query for the drawables intersecting box.
func NewBoxQuery(box geometry.BoundingBox, flags DrawableFlags, viewMask uint32) *VolumeQuery {
	return NewVolumeQuery(box, flags, viewMask)
}

// NewSphereQuery returns a query for the drawables intersecting sphere.
func NewSphereQuery(sphere geometry.Sphere, flags DrawableFlags, viewMask uint32) *VolumeQuery {
	return NewVolumeQuery(sphere, flags, viewMask)
}

// NewFrustumQuery returns a query for the drawables intersecting frustum.
func NewFrustumQuery(frustum geometry.Frustum, flags DrawableFlags, viewMask uint32) *VolumeQuery {
	return NewVolumeQuery(frustum, flags, viewMask)
}

// NewAllQuery returns a query accepting every drawable matching flags and
// viewMask.
func NewAllQuery(flags DrawableFlags, viewMask uint32) *VolumeQuery {
	return NewVolumeQuery(constantVolume(geometry.Inside), flags, viewMask)
}

// NewNoneQuery returns a query rejecting every drawable.
func NewNoneQuery() *VolumeQuery {
	return NewVolumeQuery(constantVolume(geometry.Outside), FlagAny, DefaultViewMask)
}

func (q *VolumeQuery) TestOctant(box geometry.BoundingBox, inside bool) geometry.Intersection {
	if inside {
		return geometry.Inside
	}
	return q.Volume.IsInsideBox(box)
}

func (q *VolumeQuery) TestDrawables(drawables []Drawable, inside bool) {
	for _, d := range drawables {
		if !acceptsDrawable(d, q.DrawableFlags, q.ViewMask) {
			continue
		}

		if inside || q.Volume.IsInsideBox(d.Base().WorldBoundingBox()) != geometry.Outside {
			q.Result = append(q.Result, d)
		}
	}
}

func (q *VolumeQuery) Reset() {
	clear(q.Result)
	q.Result = q.Result[:0]
}

func acceptsDrawable(d Drawable, flags DrawableFlags, viewMask uint32) bool {
	base := d.Base()
	return base.flags&flags != 0 && base.viewMask&viewMask != 0
}

type pointVolume mgl32.Vec3

// A point never contains a box, so boxes containing it only intersect.
func (p pointVolume) IsInsideBox(box geometry.BoundingBox) geometry.Intersection {
	if box.IsInside(mgl32.Vec3(p)) != geometry.Outside {
		return geometry.Intersects
	}
	return geometry.Outside
}

type constantVolume geometry.Intersection

func (c constantVolume) IsInsideBox(geometry.BoundingBox) geometry.Intersection {
	return geometry.Intersection(c)
}

// RayQueryLevel is the precision drawables test rays with.
type RayQueryLevel int

const (
	RayAABB RayQueryLevel = iota
	RayOBB
	RayTriangle
)

// RayQueryResult is a drawable hit by a ray.
type RayQueryResult struct {
	Drawable Drawable
	Distance float32
	Position mgl32.Vec3
}

// RayOctreeQuery collects the drawables hit by a ray.
type RayOctreeQuery struct {
	Ray           geometry.Ray
	MaxDistance   float32
	Level         RayQueryLevel
	DrawableFlags DrawableFlags
	ViewMask      uint32
	Result        []RayQueryResult
}

// NewRayOctreeQuery returns a ray query. A max distance of 0 or less means
// unlimited.
func NewRayOctreeQuery(ray geometry.Ray, maxDistance float32, level RayQueryLevel, flags DrawableFlags, viewMask uint32) *RayOctreeQuery {
	if maxDistance <= 0 {
		maxDistance = geometry.Infinity
	}

	return &RayOctreeQuery{
		Ray:           ray,
		MaxDistance:   maxDistance,
		Level:         level,
		DrawableFlags: flags,
		ViewMask:      viewMask,
	}
}

func (q *RayOctreeQuery) accepts(d Drawable) bool {
	return acceptsDrawable(d, q.DrawableFlags, q.ViewMask)
}

func processRayQuery(d Drawable, query *RayOctreeQuery, results []RayQueryResult) []RayQueryResult {
	if p, ok := d.(RayQueryProcessor); ok {
		return p.ProcessRayQuery(query, results)
	}
	return ProcessRayQueryBox(d, query, results)
}

// ProcessRayQueryBox appends a hit when the query ray hits the world bounding
// box of d within the max distance. It is the default ray test.
func ProcessRayQueryBox(d Drawable, query *RayOctreeQuery, results []RayQueryResult) []RayQueryResult {
	distance := query.Ray.HitDistance(d.Base().WorldBoundingBox())
	if distance >= query.MaxDistance {
		return results
	}

	return append(results, RayQueryResult{
		Drawable: d,
		Distance: distance,
		Position: query.Ray.Point(distance),
	})
}

func sortRayQueryResults(results []RayQueryResult) {
	slices.SortStableFunc(results, func(a, b RayQueryResult) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
}
