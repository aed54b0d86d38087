package octree

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/aukilabs/octree/featureflag"
	"github.com/aukilabs/octree/geometry"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func randomCube(rnd *rand.Rand, extent, maxSize float32) geometry.BoundingBox {
	center := mgl32.Vec3{
		(rnd.Float32()*2 - 1) * extent,
		(rnd.Float32()*2 - 1) * extent,
		(rnd.Float32()*2 - 1) * extent,
	}
	size := mgl32.Vec3{
		0.01 + rnd.Float32()*maxSize,
		0.01 + rnd.Float32()*maxSize,
		0.01 + rnd.Float32()*maxSize,
	}
	return geometry.NewBoundingBoxFromCenter(center, size)
}

func TestNewOctree(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		o := NewDefault()
		require.Equal(t, DefaultOctreeLevels, o.NumLevels())
		require.Equal(t, DefaultBoundingBox(), o.WorldBoundingBox())
		require.Equal(t, 1, o.NumOctants())
		require.Zero(t, o.NumDrawables())
		require.Nil(t, o.Parent())
		require.Same(t, o, o.Root())
	})

	t.Run("degenerate bounds and levels are replaced", func(t *testing.T) {
		o := New(geometry.BoundingBox{}, 0, WithWorkers(0), WithName("test"))
		require.Equal(t, DefaultBoundingBox(), o.WorldBoundingBox())
		require.Equal(t, 1, o.NumLevels())
		require.Equal(t, 1, o.Workers())
		require.Equal(t, "test", o.Name())
	})

	t.Run("culling box is expanded by half size", func(t *testing.T) {
		o := NewDefault()
		require.Equal(t, mgl32.Vec3{-2000, -2000, -2000}, o.CullingBox().Min)
		require.Equal(t, mgl32.Vec3{2000, 2000, 2000}, o.CullingBox().Max)
	})
}

func TestOctreeInsertionDepth(t *testing.T) {
	o := NewDefault()

	large := newTestCube(mgl32.Vec3{}, 1000)
	medium := newTestCube(mgl32.Vec3{}, 10)
	small := newTestCube(mgl32.Vec3{}, 0.1)

	large.AddToOctree(o)
	medium.AddToOctree(o)
	small.AddToOctree(o)

	require.Equal(t, 0, large.Octant().Level())
	require.Equal(t, 7, medium.Octant().Level())
	require.Equal(t, DefaultOctreeLevels, small.Octant().Level())
	require.Same(t, o, small.Octree())
	require.Equal(t, 3, o.NumDrawables())
	requireTreeConsistent(t, o)
}

func TestOctreeFitThreshold(t *testing.T) {
	o := NewDefault()

	wide := newTestDrawable(geometry.NewBoundingBoxFromCenter(mgl32.Vec3{100, 100, 100}, mgl32.Vec3{1500, 1, 1}))
	wide.AddToOctree(o)
	require.Equal(t, 0, wide.Octant().Level())

	tall := newTestDrawable(geometry.NewBoundingBoxFromCenter(mgl32.Vec3{500, 500, 500}, mgl32.Vec3{1, 999, 1}))
	tall.AddToOctree(o)
	require.Equal(t, 1, tall.Octant().Level())

	// Growing over the threshold moves the drawable up.
	tall.move(geometry.NewBoundingBoxFromCenter(mgl32.Vec3{500, 500, 500}, mgl32.Vec3{1, 1001, 1}))
	require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 1}))
	require.Equal(t, 0, tall.Octant().Level())
	requireTreeConsistent(t, o)
}

func TestOctreeContainment(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	o := NewDefault()

	drawables := make([]*testDrawable, 500)
	for i := range drawables {
		drawables[i] = newTestDrawable(randomCube(rnd, 900, 300))
		drawables[i].AddToOctree(o)
	}
	require.Equal(t, len(drawables), o.NumDrawables())
	requireTreeConsistent(t, o)

	for frame := uint32(1); frame <= 5; frame++ {
		for _, d := range drawables {
			if rnd.Intn(2) == 0 {
				continue
			}

			if rnd.Intn(4) == 0 {
				d.move(randomCube(rnd, 900, 300))
				continue
			}

			offset := mgl32.Vec3{rnd.Float32() - 0.5, rnd.Float32() - 0.5, rnd.Float32() - 0.5}.Mul(10)
			d.move(geometry.NewBoundingBox(d.box.Min.Add(offset), d.box.Max.Add(offset)))
		}

		require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: frame}))
		require.Zero(t, o.NumQueuedReinsertions())
		require.Equal(t, len(drawables), o.NumDrawables())
		requireTreeConsistent(t, o)
	}

	for i, d := range drawables {
		if i%2 == 0 {
			d.RemoveFromOctree()
			require.Nil(t, d.Octant())
		}
	}
	require.Equal(t, len(drawables)/2, o.NumDrawables())
	requireTreeConsistent(t, o)
}

func TestOctreeReinsertion(t *testing.T) {
	t.Run("reinsertion with unchanged bounds is idempotent", func(t *testing.T) {
		o := NewDefault()
		d := newTestCube(mgl32.Vec3{10, 20, 30}, 1)
		d.AddToOctree(o)
		octant := d.Octant()

		d.OnMarkedDirty()
		require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 1}))
		require.Same(t, octant, d.Octant())
	})

	t.Run("small moves inside the culling box keep the octant", func(t *testing.T) {
		o := NewDefault()
		d := newTestCube(mgl32.Vec3{10, 20, 30}, 1)
		d.AddToOctree(o)
		octant := d.Octant()

		d.move(geometry.NewBoundingBoxFromCenter(mgl32.Vec3{10.1, 20, 30}, mgl32.Vec3{1, 1, 1}))
		require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 1}))
		require.Same(t, octant, d.Octant())
	})

	t.Run("queueing twice keeps one entry", func(t *testing.T) {
		o := NewDefault()
		d := newTestCube(mgl32.Vec3{10, 10, 10}, 1)
		d.AddToOctree(o)

		d.move(geometry.NewBoundingBoxFromCenter(mgl32.Vec3{-500, -500, -500}, mgl32.Vec3{1, 1, 1}))
		d.move(geometry.NewBoundingBoxFromCenter(mgl32.Vec3{600, -600, 600}, mgl32.Vec3{1, 1, 1}))
		require.Equal(t, 1, o.NumQueuedReinsertions())

		require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 1}))
		require.Zero(t, o.NumQueuedReinsertions())
		require.True(t, d.Octant().CullingBox().Contains(d.WorldBoundingBox()))
		require.Greater(t, d.WorldBoundingBox().Center().X(), float32(0))
		requireTreeConsistent(t, o)
	})

	t.Run("moves across siblings stay loose", func(t *testing.T) {
		box := geometry.NewBoundingBoxFromCenter(mgl32.Vec3{-1, 1, 1}, mgl32.Vec3{1, 1, 1})

		loose := New(DefaultBoundingBox(), 1)
		d := newTestCube(mgl32.Vec3{1, 1, 1}, 1)
		d.AddToOctree(loose)
		require.Same(t, loose.Child(7), d.Octant())

		d.move(box)
		require.NoError(t, loose.Update(context.Background(), FrameInfo{FrameNumber: 1}))
		require.Same(t, loose.Child(7), d.Octant())

		strict := New(DefaultBoundingBox(), 1, WithFeatureFlags(featureflag.New([]string{
			string(featureflag.FlagDisableReinsertionFitCheck),
		})))
		d = newTestCube(mgl32.Vec3{1, 1, 1}, 1)
		d.AddToOctree(strict)

		d.move(box)
		require.NoError(t, strict.Update(context.Background(), FrameInfo{FrameNumber: 1}))
		require.Same(t, strict.Child(6), d.Octant())
		require.Nil(t, strict.Child(7))
		requireTreeConsistent(t, strict)
	})
}

func TestOctreeConcurrentReinsertion(t *testing.T) {
	o := NewDefault()

	drawables := make([]*testDrawable, 1000)
	for i := range drawables {
		drawables[i] = newTestCube(mgl32.Vec3{float32(i) - 500, 0, 0}, 0.5)
		drawables[i].AddToOctree(o)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, d := range drawables {
				d.OnMarkedDirty()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, len(drawables), o.NumQueuedReinsertions())
	require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 1}))
	require.Zero(t, o.NumQueuedReinsertions())
	require.Equal(t, len(drawables), o.NumDrawables())
	requireTreeConsistent(t, o)
}

func TestOctreeReinsertionDuringUpdates(t *testing.T) {
	o := NewDefault(WithWorkers(4))

	drawables := make([]*testDrawable, 200)
	for i := range drawables {
		drawables[i] = newTestCube(mgl32.Vec3{float32(i) - 100, 0, 0}, 0.5)
		drawables[i].AddToOctree(o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				for _, d := range drawables {
					d.OnMarkedDirty()
				}
			}
		}()
	}

	for frame := uint32(1); frame < 50; frame++ {
		require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: frame}))
	}
	cancel()
	wg.Wait()

	require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 50}))
	require.Zero(t, o.NumQueuedReinsertions())
	require.Equal(t, len(drawables), o.NumDrawables())
	requireTreeConsistent(t, o)
}

func TestOctreeReinsertionAfterMoveToAnotherOctree(t *testing.T) {
	a := NewDefault()
	b := NewDefault()

	d := newTestCube(mgl32.Vec3{10, 0, 0}, 1)
	d.AddToOctree(a)
	d.RemoveFromOctree()

	// A request racing the removal lands in the old octree.
	a.QueueReinsertion(d)
	require.Zero(t, a.NumQueuedReinsertions())

	d.AddToOctree(b)
	d.move(geometry.NewBoundingBoxFromCenter(mgl32.Vec3{-600, 0, 0}, mgl32.Vec3{1, 1, 1}))
	require.Equal(t, 1, b.NumQueuedReinsertions())

	require.NoError(t, b.Update(context.Background(), FrameInfo{FrameNumber: 1}))
	require.Equal(t, geometry.Inside, d.Octant().CullingBox().IsInsideBox(d.WorldBoundingBox()))
	requireTreeConsistent(t, b)
}

func TestOctreeUpdate(t *testing.T) {
	t.Run("threaded update calls every drawable once", func(t *testing.T) {
		o := NewDefault(WithWorkers(4))
		camera := &testCamera{position: mgl32.Vec3{0, 0, -100}}

		drawables := make([]updatedDrawable, 100)
		for i := range drawables {
			drawables[i] = newUpdatedDrawable(mgl32.Vec3{float32(i), 0, 0}, 1)
			drawables[i].AddToOctree(o)
			drawables[i].MarkForUpdate()
			drawables[i].MarkForUpdate()
		}
		require.Equal(t, len(drawables), o.NumQueuedUpdates())

		require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 1, Camera: camera}))
		require.Zero(t, o.NumQueuedUpdates())

		for _, d := range drawables {
			require.EqualValues(t, 1, d.updateCalls.Load())
			require.Greater(t, d.Distance(), float32(99))
			require.True(t, d.LodLevelsDirty())
		}
	})

	t.Run("single threaded update", func(t *testing.T) {
		o := NewDefault(WithFeatureFlags(featureflag.New([]string{
			string(featureflag.FlagDisableThreadedUpdate),
		})))

		d := newUpdatedDrawable(mgl32.Vec3{3, 4, 0}, 1)
		d.AddToOctree(o)
		d.MarkForUpdate()

		require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 1, Camera: &testCamera{}}))
		require.EqualValues(t, 1, d.updateCalls.Load())
		require.InDelta(t, 5, d.Distance(), 0.0001)
	})

	t.Run("canceled update keeps reinsertions", func(t *testing.T) {
		o := NewDefault()
		d := newTestCube(mgl32.Vec3{10, 10, 10}, 1)
		d.AddToOctree(o)
		d.MarkForUpdate()
		d.move(geometry.NewBoundingBoxFromCenter(mgl32.Vec3{-300, 10, 10}, mgl32.Vec3{1, 1, 1}))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := o.Update(ctx, FrameInfo{FrameNumber: 1})
		require.Error(t, err)
		require.Zero(t, o.NumQueuedUpdates())
		require.Equal(t, 1, o.NumQueuedReinsertions())

		require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 2}))
		require.Zero(t, o.NumQueuedReinsertions())
		require.True(t, d.Octant().CullingBox().Contains(d.WorldBoundingBox()))
	})

	t.Run("stale entries are skipped", func(t *testing.T) {
		o := NewDefault()
		d := newTestCube(mgl32.Vec3{10, 10, 10}, 1)
		d.AddToOctree(o)
		d.RemoveFromOctree()

		o.QueueUpdate(d)
		o.QueueReinsertion(d)
		require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 1}))
		require.Nil(t, d.Octant())
		require.Zero(t, o.NumDrawables())
		require.Zero(t, o.NumQueuedUpdates())
		require.Zero(t, o.NumQueuedReinsertions())
	})

	t.Run("removal cancels queued work", func(t *testing.T) {
		o := NewDefault()
		d := newTestCube(mgl32.Vec3{10, 10, 10}, 1)
		d.AddToOctree(o)
		d.MarkForUpdate()
		d.OnMarkedDirty()
		require.Equal(t, 1, o.NumQueuedUpdates())
		require.Equal(t, 1, o.NumQueuedReinsertions())

		o.RemoveManualDrawable(d)
		require.Zero(t, o.NumQueuedUpdates())
		require.Zero(t, o.NumQueuedReinsertions())
		require.Nil(t, d.Octree())
	})
}

func TestOctreeDegenerateDrawables(t *testing.T) {
	nan := float32(math.NaN())

	tests := []struct {
		name string
		box  geometry.BoundingBox
	}{
		{
			name: "undefined",
			box:  geometry.BoundingBox{},
		},
		{
			name: "non finite",
			box:  geometry.NewBoundingBox(mgl32.Vec3{nan, 0, 0}, mgl32.Vec3{1, 1, 1}),
		},
		{
			name: "inverted",
			box:  geometry.NewBoundingBox(mgl32.Vec3{1, 1, 1}, mgl32.Vec3{0, 0, 0}),
		},
		{
			name: "point",
			box:  geometry.NewBoundingBox(mgl32.Vec3{5, 5, 5}, mgl32.Vec3{5, 5, 5}),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			o := NewDefault()
			d := newTestDrawable(test.box)
			d.AddToOctree(o)
			require.Same(t, &o.Octant, d.Octant())

			d.OnMarkedDirty()
			require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 1}))
			require.Same(t, &o.Octant, d.Octant())

			query := NewAllQuery(FlagAny, DefaultViewMask)
			o.GetDrawables(query)
			require.Len(t, query.Result, 1)

			d.move(geometry.NewBoundingBoxFromCenter(mgl32.Vec3{5, 5, 5}, mgl32.Vec3{1, 1, 1}))
			require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 2}))
			require.Greater(t, d.Octant().Level(), 0)

			d.move(test.box)
			require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 3}))
			require.Same(t, &o.Octant, d.Octant())
			requireTreeConsistent(t, o)
		})
	}
}

func TestOctreeDrawableOutsideRoot(t *testing.T) {
	o := NewDefault()
	d := newTestCube(mgl32.Vec3{5000, 0, 0}, 1)
	d.AddToOctree(o)
	require.Same(t, &o.Octant, d.Octant())

	query := NewPointQuery(mgl32.Vec3{5000, 0, 0}, FlagAny, DefaultViewMask)
	o.GetDrawables(query)
	require.Len(t, query.Result, 1)

	ray := NewRayOctreeQuery(geometry.NewRay(mgl32.Vec3{}, mgl32.Vec3{1, 0, 0}), 0, RayAABB, FlagAny, DefaultViewMask)
	o.Raycast(ray)
	require.Len(t, ray.Result, 1)
	require.InDelta(t, 4999.5, ray.Result[0].Distance, 0.01)
}

func TestOctreeEmptyOctantsAreFreed(t *testing.T) {
	o := NewDefault()
	d := newTestCube(mgl32.Vec3{500, 500, 500}, 0.5)
	d.AddToOctree(o)
	require.Greater(t, o.NumOctants(), 1)

	d.RemoveFromOctree()
	require.Equal(t, 1, o.NumOctants())
	for i := 0; i < numChildren; i++ {
		require.Nil(t, o.Child(i))
	}

	d.AddToOctree(o)
	d.move(geometry.NewBoundingBoxFromCenter(mgl32.Vec3{-500, -500, -500}, mgl32.Vec3{0.5, 0.5, 0.5}))
	require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 1}))
	require.Nil(t, o.Child(7))
	require.NotNil(t, o.Child(0))
	requireTreeConsistent(t, o)
}

func TestOctreeResize(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	o := NewDefault()

	drawables := make([]*testDrawable, 200)
	for i := range drawables {
		drawables[i] = newTestDrawable(randomCube(rnd, 500, 20))
		drawables[i].AddToOctree(o)
	}
	drawables[0].OnMarkedDirty()

	o.Resize(geometry.NewBoundingBox(mgl32.Vec3{-100, -100, -100}, mgl32.Vec3{100, 100, 100}), 4)
	require.Equal(t, 4, o.NumLevels())
	require.Equal(t, len(drawables), o.NumDrawables())
	require.Len(t, o.Drawables(), len(drawables))
	requireTreeConsistent(t, o)

	require.NoError(t, o.Update(context.Background(), FrameInfo{FrameNumber: 1}))
	require.Equal(t, len(drawables), o.NumDrawables())
	requireTreeConsistent(t, o)

	o.Resize(geometry.BoundingBox{}, 12)
	require.Equal(t, DefaultBoundingBox(), o.WorldBoundingBox())
	require.Equal(t, len(drawables), o.NumDrawables())
	requireTreeConsistent(t, o)
}

func TestOctreeGetDrawables(t *testing.T) {
	o := NewDefault()

	a := newTestCube(mgl32.Vec3{100, 100, 100}, 2)
	b := newTestCube(mgl32.Vec3{-100, -100, -100}, 2)
	c := newTestCube(mgl32.Vec3{500, 0, 0}, 2)
	light := newTestCube(mgl32.Vec3{0, 0, -50}, 2)
	light.Init(light, FlagLight)
	for _, d := range []*testDrawable{a, b, c, light} {
		d.AddToOctree(o)
	}

	tests := []struct {
		name     string
		query    *VolumeQuery
		expected []Drawable
	}{
		{
			name:     "all",
			query:    NewAllQuery(FlagAny, DefaultViewMask),
			expected: []Drawable{a, b, c, light},
		},
		{
			name:     "all geometries",
			query:    NewAllQuery(FlagGeometry, DefaultViewMask),
			expected: []Drawable{a, b, c},
		},
		{
			name:  "none",
			query: NewNoneQuery(),
		},
		{
			name:     "box",
			query:    NewBoxQuery(geometry.NewBoundingBoxFromCenter(mgl32.Vec3{100, 100, 100}, mgl32.Vec3{10, 10, 10}), FlagAny, DefaultViewMask),
			expected: []Drawable{a},
		},
		{
			name:     "sphere",
			query:    NewSphereQuery(geometry.Sphere{Radius: 200}, FlagGeometry, DefaultViewMask),
			expected: []Drawable{a, b},
		},
		{
			name:     "point",
			query:    NewPointQuery(mgl32.Vec3{500.5, 0.5, -0.5}, FlagAny, DefaultViewMask),
			expected: []Drawable{c},
		},
		{
			name: "frustum",
			query: NewFrustumQuery(geometry.NewFrustumFromMatrix(
				mgl32.Perspective(mgl32.DegToRad(90), 1, 0.1, 90).Mul4(
					mgl32.LookAtV(mgl32.Vec3{}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}),
				),
			), FlagAny, DefaultViewMask),
			expected: []Drawable{light},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			o.GetDrawables(test.query)
			requireSameDrawables(t, test.expected, test.query.Result)

			// Results are reset between runs.
			o.GetDrawables(test.query)
			require.Len(t, test.query.Result, len(test.expected))
		})
	}

	t.Run("view mask", func(t *testing.T) {
		c.SetViewMask(0x2)
		defer c.SetViewMask(DefaultViewMask)

		query := NewAllQuery(FlagAny, 0x1)
		o.GetDrawables(query)
		requireSameDrawables(t, []Drawable{a, b, light}, query.Result)
	})
}

func TestOctreeRaycast(t *testing.T) {
	newScene := func(options ...Option) (*Octree, []*testDrawable) {
		o := NewDefault(options...)
		drawables := []*testDrawable{
			newTestCube(mgl32.Vec3{30, 0, 0}, 2),
			newTestCube(mgl32.Vec3{10, 0, 0}, 2),
			newTestCube(mgl32.Vec3{20, 0, 0}, 2),
			newTestCube(mgl32.Vec3{0, 50, 0}, 2),
		}
		for _, d := range drawables {
			d.AddToOctree(o)
		}
		return o, drawables
	}

	ray := geometry.NewRay(mgl32.Vec3{}, mgl32.Vec3{1, 0, 0})

	t.Run("results are sorted by distance", func(t *testing.T) {
		o, drawables := newScene()
		query := NewRayOctreeQuery(ray, 0, RayAABB, FlagAny, DefaultViewMask)
		o.Raycast(query)

		require.Len(t, query.Result, 3)
		require.Same(t, drawables[1], query.Result[0].Drawable)
		require.Same(t, drawables[2], query.Result[1].Drawable)
		require.Same(t, drawables[0], query.Result[2].Drawable)
		require.InDelta(t, 9, query.Result[0].Distance, 0.0001)
		require.InDelta(t, 19, query.Result[1].Distance, 0.0001)
		require.InDelta(t, 29, query.Result[2].Distance, 0.0001)
		require.True(t, query.Result[0].Position.ApproxEqual(mgl32.Vec3{9, 0, 0}))
	})

	t.Run("max distance", func(t *testing.T) {
		o, drawables := newScene()
		query := NewRayOctreeQuery(ray, 15, RayAABB, FlagAny, DefaultViewMask)
		o.Raycast(query)

		require.Len(t, query.Result, 1)
		require.Same(t, drawables[1], query.Result[0].Drawable)
	})

	t.Run("single returns the nearest hit", func(t *testing.T) {
		o, _ := newScene()

		all := NewRayOctreeQuery(ray, 0, RayAABB, FlagAny, DefaultViewMask)
		o.Raycast(all)

		single := NewRayOctreeQuery(ray, 0, RayAABB, FlagAny, DefaultViewMask)
		o.RaycastSingle(single)

		require.Len(t, single.Result, 1)
		require.Equal(t, all.Result[0], single.Result[0])
	})

	t.Run("single resolves equal hits in traversal order", func(t *testing.T) {
		o := NewDefault()

		// Too large for a child, so it stays at the root with its near edge at 5.
		large := newFixedHitDrawable(geometry.NewBoundingBox(mgl32.Vec3{5, -600, -600}, mgl32.Vec3{1205, 600, 600}), 10)
		large.AddToOctree(o)
		small := newFixedHitDrawable(geometry.NewBoundingBoxFromCenter(mgl32.Vec3{3, 0, 0}, mgl32.Vec3{1, 1, 1}), 10)
		small.AddToOctree(o)
		require.Same(t, &o.Octant, large.Octant())
		require.NotSame(t, &o.Octant, small.Octant())

		all := NewRayOctreeQuery(ray, 0, RayOBB, FlagAny, DefaultViewMask)
		o.Raycast(all)
		require.Len(t, all.Result, 2)

		single := NewRayOctreeQuery(ray, 0, RayOBB, FlagAny, DefaultViewMask)
		o.RaycastSingle(single)

		require.Len(t, single.Result, 1)
		require.Equal(t, all.Result[0], single.Result[0])
		require.Equal(t, Drawable(large), single.Result[0].Drawable)
	})

	t.Run("single without hits", func(t *testing.T) {
		o, _ := newScene()
		query := NewRayOctreeQuery(geometry.NewRay(mgl32.Vec3{}, mgl32.Vec3{-1, 0, 0}), 0, RayAABB, FlagAny, DefaultViewMask)
		o.RaycastSingle(query)
		require.Empty(t, query.Result)
	})

	t.Run("threaded raycast matches single threaded", func(t *testing.T) {
		rnd := rand.New(rand.NewSource(3))
		serial := NewDefault(WithWorkers(1))
		threaded := NewDefault(WithWorkers(4))

		for i := 0; i < 300; i++ {
			box := randomCube(rnd, 100, 10)
			newTestDrawable(box).AddToOctree(serial)
			newTestDrawable(box).AddToOctree(threaded)
		}

		for i := 0; i < 20; i++ {
			r := geometry.NewRayFromPoints(
				randomCube(rnd, 150, 1).Center(),
				randomCube(rnd, 50, 1).Center(),
			)

			a := NewRayOctreeQuery(r, 0, RayTriangle, FlagAny, DefaultViewMask)
			serial.Raycast(a)

			b := NewRayOctreeQuery(r, 0, RayTriangle, FlagAny, DefaultViewMask)
			threaded.Raycast(b)

			require.Equal(t, rayDistances(a.Result), rayDistances(b.Result))
		}
	})
}

func requireSameDrawables(t *testing.T, expected, actual []Drawable) {
	expectedSet := make(map[Drawable]struct{}, len(expected))
	for _, d := range expected {
		expectedSet[d] = struct{}{}
	}

	actualSet := make(map[Drawable]struct{}, len(actual))
	for _, d := range actual {
		actualSet[d] = struct{}{}
	}

	require.Len(t, actual, len(expected))
	require.Len(t, actualSet, len(expectedSet))
	for d := range actualSet {
		_, ok := expectedSet[d]
		require.True(t, ok, "unexpected drawable %v", d.Base().WorldBoundingBox())
	}
}

func rayDistances(results []RayQueryResult) []float32 {
	distances := make([]float32, len(results))
	for i, r := range results {
		distances[i] = r.Distance
	}
	return distances
}

func TestOctreeDrawDebugGeometry(t *testing.T) {
	o := NewDefault()
	newTestCube(mgl32.Vec3{500, 500, 500}, 1).AddToOctree(o)
	newTestCube(mgl32.Vec3{-500, 500, 500}, 1).AddToOctree(o)

	accepted := &debugCollector{accept: true}
	o.DrawDebugGeometry(accepted, false)
	require.Len(t, accepted.boxes, o.NumOctants())
	require.Equal(t, o.WorldBoundingBox(), accepted.boxes[0])

	rejected := &debugCollector{}
	o.DrawDebugGeometry(rejected, false)
	require.Empty(t, rejected.boxes)
}
