package models

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Transform is the world placement of a scene object. It is safe for
// concurrent use: changes are reported to the listener, which marks the
// object dirty in its octree.
type Transform struct {
	mutex    sync.RWMutex
	position mgl32.Vec3
	rotation mgl32.Quat
	scale    mgl32.Vec3

	onChange func()
}

func NewTransform(position mgl32.Vec3) *Transform {
	return &Transform{
		position: position,
		rotation: mgl32.QuatIdent(),
		scale:    mgl32.Vec3{1, 1, 1},
	}
}

func (t *Transform) SetPosition(v mgl32.Vec3) {
	t.mutex.Lock()
	t.position = v
	t.mutex.Unlock()

	t.notify()
}

func (t *Transform) Position() mgl32.Vec3 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.position
}

// Translate moves the transform by delta.
func (t *Transform) Translate(delta mgl32.Vec3) {
	t.mutex.Lock()
	t.position = t.position.Add(delta)
	t.mutex.Unlock()

	t.notify()
}

func (t *Transform) SetRotation(v mgl32.Quat) {
	t.mutex.Lock()
	t.rotation = v.Normalize()
	t.mutex.Unlock()

	t.notify()
}

func (t *Transform) Rotation() mgl32.Quat {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.rotation
}

func (t *Transform) SetScale(v mgl32.Vec3) {
	t.mutex.Lock()
	t.scale = v
	t.mutex.Unlock()

	t.notify()
}

func (t *Transform) Scale() mgl32.Vec3 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return t.scale
}

// Matrix returns the local to world matrix.
func (t *Transform) Matrix() mgl32.Mat4 {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	return mgl32.Translate3D(t.position.X(), t.position.Y(), t.position.Z()).
		Mul4(t.rotation.Mat4()).
		Mul4(mgl32.Scale3D(t.scale.X(), t.scale.Y(), t.scale.Z()))
}

func (t *Transform) setListener(f func()) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.onChange = f
}

func (t *Transform) notify() {
	t.mutex.RLock()
	onChange := t.onChange
	t.mutex.RUnlock()

	if onChange != nil {
		onChange()
	}
}
