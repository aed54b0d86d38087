package octree

import (
	"cmp"
	"math"
	"slices"
	"sync/atomic"

	"github.com/aukilabs/octree/geometry"
	"github.com/bits-and-blooms/bitset"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	DefaultViewMask  uint32 = math.MaxUint32
	DefaultLightMask uint32 = math.MaxUint32

	minLodBias = 0.000001
)

var dotScale = mgl32.Vec3{1.0 / 3, 1.0 / 3, 1.0 / 3}

// DrawableFlags identify the kind of a drawable so queries can filter without
// type checks.
type DrawableFlags uint8

const (
	FlagGeometry DrawableFlags = 1 << iota
	FlagLight
	FlagZone

	FlagAny DrawableFlags = 0xff
)

// Drawable is an object indexed by an Octree. Concrete drawables embed a
// DrawableBase, initialized with Init, and compute their own bounds.
type Drawable interface {
	// Returns the octree bookkeeping of the drawable.
	Base() *DrawableBase

	// Computes the world-space bounding box. It is only called when the
	// cached box is dirty. An undefined or degenerate box makes the drawable
	// unboundable: it is then kept at the octree root.
	ComputeWorldBoundingBox() geometry.BoundingBox
}

// Updater is implemented by drawables that need per-frame work during
// Octree.Update. Update is called from worker goroutines: it must only touch
// the drawable's own state. It may call OnMarkedDirty but not MarkForUpdate.
type Updater interface {
	Update(frame FrameInfo)
}

// RayQueryProcessor is implemented by drawables that test rays with more
// precision than their bounding box. Implementations append their hits to
// results and return it. They can be called from worker goroutines.
type RayQueryProcessor interface {
	ProcessRayQuery(query *RayOctreeQuery, results []RayQueryResult) []RayQueryResult
}

// Positioner is implemented by drawables which have a world position distinct
// from their bounding box center.
type Positioner interface {
	WorldPosition() mgl32.Vec3
}

// DrawableBase holds the state shared by all drawables.
//
// Except for OnMarkedDirty, which can be called from any goroutine, its
// methods must be called from the goroutine that owns the octree.
type DrawableBase struct {
	owner Drawable
	flags DrawableFlags

	octant      atomic.Pointer[Octant]
	octantIndex int

	worldBoundingBox      geometry.BoundingBox
	worldBoundingBoxDirty atomic.Bool

	drawDistance   float32
	shadowDistance float32
	lodBias        float32
	viewMask       uint32
	lightMask      uint32
	maxLights      int
	visible        bool
	castShadows    bool
	occluder       bool

	distance       float32
	lodDistance    float32
	sortValue      float32
	lodLevelsDirty bool

	viewFrameNumber uint32
	viewCamera      Camera

	firstLight    Light
	lights        []Light
	basePassFlags bitset.BitSet

	updateQueued     bool
	reinsertionQueue atomic.Pointer[Octree]
}

// Init initializes the base of owner. It must be called before the drawable
// is added to an octree.
func (d *DrawableBase) Init(owner Drawable, flags DrawableFlags) {
	d.owner = owner
	d.flags = flags
	d.lodBias = 1
	d.viewMask = DefaultViewMask
	d.lightMask = DefaultLightMask
	d.visible = true
	d.lodLevelsDirty = true
	d.worldBoundingBoxDirty.Store(true)
}

func (d *DrawableBase) Base() *DrawableBase {
	return d
}

// Owner returns the drawable that embeds d.
func (d *DrawableBase) Owner() Drawable {
	return d.owner
}

func (d *DrawableBase) Flags() DrawableFlags {
	return d.flags
}

// Octant returns the octant the drawable is indexed in, or nil.
func (d *DrawableBase) Octant() *Octant {
	return d.octant.Load()
}

// Octree returns the octree the drawable is indexed in, or nil.
func (d *DrawableBase) Octree() *Octree {
	if octant := d.octant.Load(); octant != nil {
		return octant.root
	}
	return nil
}

// WorldBoundingBox returns the cached world bounding box, recomputing it if
// the drawable was marked dirty since the last call.
func (d *DrawableBase) WorldBoundingBox() geometry.BoundingBox {
	if d.worldBoundingBoxDirty.CompareAndSwap(true, false) {
		d.worldBoundingBox = d.owner.ComputeWorldBoundingBox()
	}
	return d.worldBoundingBox
}

// OnMarkedDirty is called when the world transform of the drawable changed.
// It invalidates the bounding box and requests a reinsertion from the octree,
// which happens during the next Octree.Update. Safe for concurrent use.
func (d *DrawableBase) OnMarkedDirty() {
	d.worldBoundingBoxDirty.Store(true)

	if octant := d.octant.Load(); octant != nil {
		octant.root.QueueReinsertion(d.owner)
	}
}

// MarkForUpdate requests the drawable to be updated during the next
// Octree.Update.
func (d *DrawableBase) MarkForUpdate() {
	if octant := d.octant.Load(); octant != nil {
		octant.root.QueueUpdate(d.owner)
	}
}

// AddToOctree indexes the drawable in o. It does nothing when the drawable is
// already indexed.
func (d *DrawableBase) AddToOctree(o *Octree) {
	o.AddManualDrawable(d.owner)
}

// RemoveFromOctree cancels the pending updates of the drawable and removes it
// from its octree.
func (d *DrawableBase) RemoveFromOctree() {
	octant := d.octant.Load()
	if octant == nil {
		return
	}

	o := octant.root
	o.CancelUpdate(d.owner)
	o.CancelReinsertion(d.owner)
	octant.removeDrawable(d.owner, true)
}

// UpdateDistance computes the distance to the frame camera and the LOD
// distance metric.
func (d *DrawableBase) UpdateDistance(frame FrameInfo) {
	if frame.Camera == nil {
		return
	}

	box := d.WorldBoundingBox()
	d.distance = frame.Camera.Distance(d.worldPosition(box))

	scale := box.Size().Dot(dotScale)
	lodDistance := frame.Camera.LodDistance(d.distance, scale, d.lodBias)
	if lodDistance != d.lodDistance {
		d.lodDistance = lodDistance
		d.lodLevelsDirty = true
	}
}

func (d *DrawableBase) worldPosition(box geometry.BoundingBox) mgl32.Vec3 {
	if p, ok := d.owner.(Positioner); ok {
		return p.WorldPosition()
	}
	return box.Center()
}

func (d *DrawableBase) Distance() float32 {
	return d.distance
}

func (d *DrawableBase) LodDistance() float32 {
	return d.lodDistance
}

func (d *DrawableBase) LodLevelsDirty() bool {
	return d.lodLevelsDirty
}

// ClearLodLevelsDirty is called once the LOD levels were selected from the
// current LOD distance.
func (d *DrawableBase) ClearLodLevelsDirty() {
	d.lodLevelsDirty = false
}

// SetDrawDistance sets the distance beyond which the drawable is not
// rendered. 0 means unlimited.
func (d *DrawableBase) SetDrawDistance(distance float32) {
	d.drawDistance = distance
}

func (d *DrawableBase) DrawDistance() float32 {
	return d.drawDistance
}

// SetShadowDistance sets the distance beyond which the drawable casts no
// shadow. 0 means unlimited.
func (d *DrawableBase) SetShadowDistance(distance float32) {
	d.shadowDistance = distance
}

func (d *DrawableBase) ShadowDistance() float32 {
	return d.shadowDistance
}

// InDrawDistance reports whether the last computed distance is within the
// draw distance.
func (d *DrawableBase) InDrawDistance() bool {
	return d.drawDistance == 0 || d.distance <= d.drawDistance
}

// InShadowDistance reports whether the last computed distance is within the
// shadow distance.
func (d *DrawableBase) InShadowDistance() bool {
	return d.shadowDistance == 0 || d.distance <= d.shadowDistance
}

// SetLodBias sets the LOD bias. Values are clamped to a small positive
// minimum.
func (d *DrawableBase) SetLodBias(bias float32) {
	d.lodBias = max(bias, minLodBias)
}

func (d *DrawableBase) LodBias() float32 {
	return d.lodBias
}

func (d *DrawableBase) SetViewMask(mask uint32) {
	d.viewMask = mask
}

func (d *DrawableBase) ViewMask() uint32 {
	return d.viewMask
}

func (d *DrawableBase) SetLightMask(mask uint32) {
	d.lightMask = mask
}

func (d *DrawableBase) LightMask() uint32 {
	return d.lightMask
}

// SetMaxLights sets the maximum number of per-object lights. 0 means
// unlimited.
func (d *DrawableBase) SetMaxLights(num int) {
	d.maxLights = max(num, 0)
}

func (d *DrawableBase) MaxLights() int {
	return d.maxLights
}

func (d *DrawableBase) SetVisible(enable bool) {
	d.visible = enable
}

func (d *DrawableBase) Visible() bool {
	return d.visible
}

func (d *DrawableBase) SetCastShadows(enable bool) {
	d.castShadows = enable
}

func (d *DrawableBase) CastShadows() bool {
	return d.castShadows
}

func (d *DrawableBase) SetOccluder(enable bool) {
	d.occluder = enable
}

func (d *DrawableBase) Occluder() bool {
	return d.occluder
}

func (d *DrawableBase) SetSortValue(value float32) {
	d.sortValue = value
}

func (d *DrawableBase) SortValue() float32 {
	return d.sortValue
}

// MarkInView marks the drawable visible from the frame camera.
func (d *DrawableBase) MarkInView(frame FrameInfo) {
	d.viewFrameNumber = frame.FrameNumber
	d.viewCamera = frame.Camera
}

// MarkInShadowView marks the drawable visible in the frame only through a
// shadow camera.
func (d *DrawableBase) MarkInShadowView(frame FrameInfo) {
	if d.viewFrameNumber != frame.FrameNumber {
		d.viewFrameNumber = frame.FrameNumber
		d.viewCamera = nil
	}
}

// IsInView reports whether the drawable was marked visible from the frame
// camera during the frame.
func (d *DrawableBase) IsInView(frame FrameInfo) bool {
	return d.viewFrameNumber == frame.FrameNumber && d.viewCamera == frame.Camera
}

// IsInViewFrame reports whether the drawable was marked visible by any camera
// during the given frame.
func (d *DrawableBase) IsInViewFrame(frameNumber uint32) bool {
	return d.viewFrameNumber == frameNumber
}

// ClearLights resets the per-frame light list and base pass flags.
func (d *DrawableBase) ClearLights() {
	d.basePassFlags.ClearAll()
	d.firstLight = nil
	clear(d.lights)
	d.lights = d.lights[:0]
}

func (d *DrawableBase) AddLight(l Light) {
	if len(d.lights) == 0 {
		d.firstLight = l
	}
	d.lights = append(d.lights, l)
}

// LimitLights sorts the lights by their intensity sort value relative to the
// bounding box center, strongest first, and drops the ones exceeding the
// maximum number of lights. Lights with equal values keep their order.
func (d *DrawableBase) LimitLights() {
	if d.maxLights == 0 || len(d.lights) == 0 {
		return
	}

	position := d.WorldBoundingBox().Center()

	type sortedLight struct {
		light Light
		value float32
	}

	sorted := make([]sortedLight, len(d.lights))
	for i, l := range d.lights {
		sorted[i] = sortedLight{
			light: l,
			value: l.IntensitySortValue(position),
		}
	}

	slices.SortStableFunc(sorted, func(a, b sortedLight) int {
		return cmp.Compare(a.value, b.value)
	})

	for i, s := range sorted {
		d.lights[i] = s.light
	}

	if len(d.lights) > d.maxLights {
		clear(d.lights[d.maxLights:])
		d.lights = d.lights[:d.maxLights]
	}
	d.firstLight = d.lights[0]
}

// Lights returns the lights affecting the drawable this frame. The returned
// slice must not be modified.
func (d *DrawableBase) Lights() []Light {
	return d.lights
}

func (d *DrawableBase) FirstLight() Light {
	return d.firstLight
}

// SetBasePass records that the render pass with the given index emitted a
// base draw call for the drawable this frame.
func (d *DrawableBase) SetBasePass(passIndex uint) {
	d.basePassFlags.Set(passIndex)
}

func (d *DrawableBase) HasBasePass(passIndex uint) bool {
	return d.basePassFlags.Test(passIndex)
}
