package octree

import (
	"sync/atomic"
	"testing"

	"github.com/aukilabs/octree/geometry"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

type testDrawable struct {
	DrawableBase

	box          geometry.BoundingBox
	computeCalls int
	updateCalls  atomic.Int32
}

func newTestDrawable(box geometry.BoundingBox) *testDrawable {
	d := &testDrawable{box: box}
	d.Init(d, FlagGeometry)
	return d
}

func newTestCube(center mgl32.Vec3, size float32) *testDrawable {
	return newTestDrawable(geometry.NewBoundingBoxFromCenter(center, mgl32.Vec3{size, size, size}))
}

func (d *testDrawable) ComputeWorldBoundingBox() geometry.BoundingBox {
	d.computeCalls++
	return d.box
}

func (d *testDrawable) move(box geometry.BoundingBox) {
	d.box = box
	d.OnMarkedDirty()
}

// fixedHitDrawable reports every ray hit at the same distance, whatever its
// bounding box.
type fixedHitDrawable struct {
	*testDrawable
	hitDistance float32
}

func newFixedHitDrawable(box geometry.BoundingBox, hitDistance float32) fixedHitDrawable {
	d := fixedHitDrawable{testDrawable: newTestDrawable(box), hitDistance: hitDistance}
	d.Init(d, FlagGeometry)
	return d
}

func (d fixedHitDrawable) ProcessRayQuery(query *RayOctreeQuery, results []RayQueryResult) []RayQueryResult {
	return append(results, RayQueryResult{
		Drawable: d,
		Distance: d.hitDistance,
		Position: query.Ray.Origin.Add(query.Ray.Direction.Mul(d.hitDistance)),
	})
}

type updatedDrawable struct {
	*testDrawable
}

func newUpdatedDrawable(center mgl32.Vec3, size float32) updatedDrawable {
	d := updatedDrawable{testDrawable: newTestCube(center, size)}
	d.Init(d, FlagGeometry)
	return d
}

func (d updatedDrawable) Update(frame FrameInfo) {
	d.updateCalls.Add(1)
}

type testCamera struct {
	position mgl32.Vec3
}

func (c *testCamera) Distance(p mgl32.Vec3) float32 {
	return p.Sub(c.position).Len()
}

func (c *testCamera) LodDistance(distance, scale, bias float32) float32 {
	return distance / max(scale*bias, geometry.Epsilon)
}

type testLight struct {
	name  string
	value float32
}

func (l *testLight) IntensitySortValue(mgl32.Vec3) float32 {
	return l.value
}

type debugCollector struct {
	accept bool
	boxes  []geometry.BoundingBox
}

func (c *debugCollector) IsInside(geometry.BoundingBox) bool {
	return c.accept
}

func (c *debugCollector) AddBoundingBox(box geometry.BoundingBox, color mgl32.Vec4, depthTest bool) {
	c.boxes = append(c.boxes, box)
}

// requireTreeConsistent checks the drawable counts, the parent links, the
// octant count and the containment of every drawable.
func requireTreeConsistent(t *testing.T, o *Octree) {
	numOctants := 0

	var walk func(octant *Octant) int
	walk = func(octant *Octant) int {
		numOctants++

		count := len(octant.Drawables())
		for _, d := range octant.Drawables() {
			require.Same(t, octant, d.Base().Octant())

			box := d.Base().WorldBoundingBox()
			if box.IsDegenerate() {
				require.Nil(t, octant.Parent(), "degenerate drawables live at the root")
				continue
			}
			if octant.Parent() != nil {
				require.True(t, octant.CullingBox().Contains(box),
					"octant %v does not contain %v", octant.CullingBox(), box)
			}
		}

		for i := 0; i < numChildren; i++ {
			child := octant.Child(i)
			if child == nil {
				continue
			}

			require.Same(t, octant, child.Parent())
			require.Equal(t, octant.Level()+1, child.Level())
			require.LessOrEqual(t, child.Level(), o.NumLevels())

			n := walk(child)
			require.NotZero(t, n, "empty octants are freed")
			count += n
		}

		require.Equal(t, count, octant.NumDrawables())
		return count
	}

	walk(&o.Octant)
	require.Equal(t, numOctants, o.NumOctants())
}
