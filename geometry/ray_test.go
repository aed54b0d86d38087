package geometry

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestRayHitDistance(t *testing.T) {
	box := NewBoundingBox(mgl32.Vec3{-1, -1, -1}, mgl32.Vec3{1, 1, 1})

	t.Run("hit", func(t *testing.T) {
		ray := NewRay(mgl32.Vec3{0, 0, -10}, mgl32.Vec3{0, 0, 1})
		require.InDelta(t, 9, ray.HitDistance(box), 0.0001)
	})

	t.Run("origin inside", func(t *testing.T) {
		ray := NewRay(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 0})
		require.Equal(t, float32(0), ray.HitDistance(box))
	})

	t.Run("miss", func(t *testing.T) {
		ray := NewRay(mgl32.Vec3{5, 0, -10}, mgl32.Vec3{0, 0, 1})
		require.Equal(t, Infinity, ray.HitDistance(box))
	})

	t.Run("box behind", func(t *testing.T) {
		ray := NewRay(mgl32.Vec3{0, 0, 10}, mgl32.Vec3{0, 0, 1})
		require.Equal(t, Infinity, ray.HitDistance(box))
	})

	t.Run("diagonal", func(t *testing.T) {
		ray := NewRayFromPoints(mgl32.Vec3{-5, -5, -5}, mgl32.Vec3{0, 0, 0})
		expected := mgl32.Vec3{4, 4, 4}.Len()
		require.InDelta(t, expected, ray.HitDistance(box), 0.0001)
	})

	t.Run("undefined box", func(t *testing.T) {
		ray := NewRay(mgl32.Vec3{0, 0, -10}, mgl32.Vec3{0, 0, 1})
		require.Equal(t, Infinity, ray.HitDistance(BoundingBox{}))
	})
}

func TestRayHitDistanceSphere(t *testing.T) {
	sphere := Sphere{Center: mgl32.Vec3{0, 0, 0}, Radius: 2}

	ray := NewRay(mgl32.Vec3{0, 0, -10}, mgl32.Vec3{0, 0, 1})
	require.InDelta(t, 8, ray.HitDistanceSphere(sphere), 0.0001)

	away := NewRay(mgl32.Vec3{0, 0, -10}, mgl32.Vec3{0, 0, -1})
	require.Equal(t, Infinity, away.HitDistanceSphere(sphere))

	inside := NewRay(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	require.Equal(t, float32(0), inside.HitDistanceSphere(sphere))
}

func TestRayPoint(t *testing.T) {
	ray := NewRay(mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 2, 0})
	require.True(t, ray.Point(3).ApproxEqual(mgl32.Vec3{1, 3, 0}))
}
