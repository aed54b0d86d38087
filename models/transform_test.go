package models

import (
	"sync"
	"testing"

	"github.com/aukilabs/octree/geometry"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestTransform(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		transform := NewTransform(mgl32.Vec3{1, 2, 3})
		require.Equal(t, mgl32.Vec3{1, 2, 3}, transform.Position())
		require.Equal(t, mgl32.Vec3{1, 1, 1}, transform.Scale())
		require.Equal(t, mgl32.QuatIdent(), transform.Rotation())
		require.True(t, transform.Matrix().ApproxEqual(mgl32.Translate3D(1, 2, 3)))
	})

	t.Run("changes are notified", func(t *testing.T) {
		transform := NewTransform(mgl32.Vec3{})

		var notified int
		transform.setListener(func() {
			notified++
		})

		transform.SetPosition(mgl32.Vec3{1, 0, 0})
		transform.Translate(mgl32.Vec3{1, 0, 0})
		transform.SetScale(mgl32.Vec3{2, 2, 2})
		transform.SetRotation(mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 0, 1}))
		require.Equal(t, 4, notified)
		require.Equal(t, mgl32.Vec3{2, 0, 0}, transform.Position())

		p := transform.Matrix().Mul4x1(mgl32.Vec4{1, 0, 0, 1}).Vec3()
		require.True(t, p.ApproxEqualThreshold(mgl32.Vec3{2, 2, 0}, 0.0001), "%v", p)
	})

	t.Run("concurrent updates", func(t *testing.T) {
		transform := NewTransform(mgl32.Vec3{})

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					transform.Translate(mgl32.Vec3{1, 0, 0})
					transform.Matrix()
				}
			}()
		}
		wg.Wait()

		require.Equal(t, float32(800), transform.Position().X())
	})
}

func TestBoxDrawableFollowsTransform(t *testing.T) {
	transform := NewTransform(mgl32.Vec3{})
	box := NewBoxDrawable(1, "crate", unitBox(), transform)
	require.Equal(t, unitBox(), box.WorldBoundingBox())

	transform.SetScale(mgl32.Vec3{2, 4, 2})
	transform.SetPosition(mgl32.Vec3{10, 0, 0})

	world := box.WorldBoundingBox()
	require.Equal(t, mgl32.Vec3{9, -2, -1}, world.Min)
	require.Equal(t, mgl32.Vec3{11, 2, 1}, world.Max)
	require.Equal(t, mgl32.Vec3{10, 0, 0}, box.WorldPosition())
}

func TestPointLight(t *testing.T) {
	light := NewPointLight(1, "lamp", 5, 2, mgl32.Vec3{1, 0, 0}, NewTransform(mgl32.Vec3{0, 10, 0}))

	require.Equal(t, ObjectKindLight, light.Node().Kind)
	require.Equal(t, float32(5), light.Range())
	require.Equal(t, float32(2), light.Intensity())
	require.Equal(t, mgl32.Vec3{1, 0, 0}, light.Color())
	require.Equal(t, mgl32.Vec3{-5, 5, -5}, light.WorldBoundingBox().Min)
	require.InDelta(t, 2.5, light.IntensitySortValue(mgl32.Vec3{0, 5, 0}), 0.0001)

	dark := NewPointLight(2, "dark", -1, -1, mgl32.Vec3{}, NewTransform(mgl32.Vec3{}))
	require.Zero(t, dark.Range())
	require.True(t, dark.WorldBoundingBox().IsDegenerate())
	require.Greater(t, dark.IntensitySortValue(mgl32.Vec3{1, 0, 0}), float32(1000))
}

func TestCamera(t *testing.T) {
	t.Run("distance", func(t *testing.T) {
		camera := NewCamera()
		camera.Apply(CameraSettings{
			Position: mgl32.Vec3{0, 0, 5},
			Target:   mgl32.Vec3{},
		})

		require.InDelta(t, 5, camera.Distance(mgl32.Vec3{}), 0.0001)
		require.InDelta(t, 2.5, camera.LodDistance(5, 2, 1), 0.0001)
	})

	t.Run("invalid settings are ignored", func(t *testing.T) {
		camera := NewCamera()
		camera.Apply(CameraSettings{
			Position: mgl32.Vec3{1, 1, 1},
			Target:   mgl32.Vec3{1, 1, 1},
			Fov:      200,
			Near:     -1,
			Far:      0.01,
		})

		settings := camera.Settings()
		require.Equal(t, mgl32.Vec3{1, 1, 1}, settings.Position)
		require.Equal(t, mgl32.Vec3{0, 0, -1}, settings.Target)
		require.Equal(t, float32(DefaultCameraFov), settings.Fov)
		require.Equal(t, float32(DefaultCameraNear), settings.Near)
		require.Equal(t, float32(DefaultCameraFar), settings.Far)
	})

	t.Run("frustum", func(t *testing.T) {
		camera := NewCamera()
		frustum := camera.Frustum()

		require.Equal(t, geometry.Inside, frustum.IsInside(mgl32.Vec3{0, 0, -10}))
		require.Equal(t, geometry.Outside, frustum.IsInside(mgl32.Vec3{0, 0, 10}))
	})
}
