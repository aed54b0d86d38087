package models

import (
	"sync"

	"github.com/aukilabs/octree/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	DefaultCameraFov  = 45
	DefaultCameraNear = 0.1
	DefaultCameraFar  = 1000
)

// Camera is a perspective camera. It is safe for concurrent use.
type Camera struct {
	mutex    sync.RWMutex
	position mgl32.Vec3
	target   mgl32.Vec3
	up       mgl32.Vec3
	fov      float32
	aspect   float32
	near     float32
	far      float32
	zoom     float32
	lodBias  float32
}

// NewCamera returns a camera at the origin looking toward -Z.
func NewCamera() *Camera {
	return &Camera{
		target:  mgl32.Vec3{0, 0, -1},
		up:      mgl32.Vec3{0, 1, 0},
		fov:     DefaultCameraFov,
		aspect:  1,
		near:    DefaultCameraNear,
		far:     DefaultCameraFar,
		zoom:    1,
		lodBias: 1,
	}
}

// CameraSettings is the externally settable state of a camera. Zero values
// keep the current setting, except for the position.
type CameraSettings struct {
	Position mgl32.Vec3 `json:"position"`
	Target   mgl32.Vec3 `json:"target"`
	Fov      float32    `json:"fov,omitempty"`
	Aspect   float32    `json:"aspect,omitempty"`
	Near     float32    `json:"near,omitempty"`
	Far      float32    `json:"far,omitempty"`
	Zoom     float32    `json:"zoom,omitempty"`
	LodBias  float32    `json:"lod_bias,omitempty"`
}

// Apply updates the camera with s. A target equal to the position is
// ignored.
func (c *Camera) Apply(s CameraSettings) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.position = s.Position
	if !s.Target.ApproxEqual(s.Position) {
		c.target = s.Target
	}
	if s.Fov > 0 && s.Fov < 180 {
		c.fov = s.Fov
	}
	if s.Aspect > 0 {
		c.aspect = s.Aspect
	}
	if s.Near > 0 {
		c.near = s.Near
	}
	if s.Far > c.near {
		c.far = s.Far
	}
	if s.Zoom > 0 {
		c.zoom = s.Zoom
	}
	if s.LodBias > 0 {
		c.lodBias = s.LodBias
	}
}

// Settings returns the current camera settings.
func (c *Camera) Settings() CameraSettings {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return CameraSettings{
		Position: c.position,
		Target:   c.target,
		Fov:      c.fov,
		Aspect:   c.aspect,
		Near:     c.near,
		Far:      c.far,
		Zoom:     c.zoom,
		LodBias:  c.lodBias,
	}
}

func (c *Camera) Position() mgl32.Vec3 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.position
}

func (c *Camera) Distance(worldPos mgl32.Vec3) float32 {
	return worldPos.Sub(c.Position()).Len()
}

func (c *Camera) LodDistance(distance, scale, bias float32) float32 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return distance / max(c.lodBias*bias*scale*c.zoom, geometry.Epsilon)
}

// ViewProjection returns the projection matrix multiplied by the view
// matrix.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	projection := mgl32.Perspective(mgl32.DegToRad(c.fov/c.zoom), c.aspect, c.near, c.far)
	view := mgl32.LookAtV(c.position, c.target, c.up)
	return projection.Mul4(view)
}

func (c *Camera) Frustum() geometry.Frustum {
	return geometry.NewFrustumFromMatrix(c.ViewProjection())
}
