package octree

import (
	"github.com/aukilabs/octree/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

// FrameInfo describes the frame an Octree is updated for.
type FrameInfo struct {
	// A number increasing every frame.
	FrameNumber uint32

	// The elapsed time since the previous frame, in seconds.
	TimeStep float32

	// The active camera. Drawables are not distance sorted when it is nil.
	Camera Camera
}

// Camera is the view drawables compute their distance and LOD metric from.
// Implementations must be safe for concurrent reads and comparable, since
// drawables remember the camera they were last seen by.
type Camera interface {
	// Returns the distance from the camera to the given world position.
	Distance(worldPos mgl32.Vec3) float32

	// Returns the LOD distance metric for an object at the given distance,
	// with the given average size and LOD bias.
	LodDistance(distance, scale, bias float32) float32
}

// Light is a light source that can be assigned to drawables.
type Light interface {
	// Returns a value that orders lights affecting an object at position,
	// lower values first. It must not mutate the light since it is called
	// for every lit drawable.
	IntensitySortValue(position mgl32.Vec3) float32
}

// DebugRenderer receives debug geometry.
type DebugRenderer interface {
	// Reports whether the box is worth drawing, e.g. whether it is visible.
	IsInside(box geometry.BoundingBox) bool

	AddBoundingBox(box geometry.BoundingBox, color mgl32.Vec4, depthTest bool)
}
