package models

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/octree/featureflag"
	"github.com/aukilabs/octree/geometry"
	"github.com/aukilabs/octree/octree"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "github.com/aukilabs/octree/models"

// SceneOptions configures a scene.
type SceneOptions struct {
	// The interval between two frames.
	FrameDuration time.Duration

	// The octree bounds. The default bounds are used when undefined.
	BoundingBox geometry.BoundingBox

	// The octree subdivision levels.
	Levels int

	// The goroutines used for threaded octree work.
	Workers int

	// The per-object light limit given to new boxes. 0 means unlimited.
	MaxLights int

	FeatureFlags featureflag.FeatureFlag
}

// FrameStats summarizes the last frame of a scene.
type FrameStats struct {
	FrameNumber  uint32        `json:"frame_number"`
	Objects      int           `json:"objects"`
	Drawables    int           `json:"drawables"`
	Octants      int           `json:"octants"`
	Levels       int           `json:"levels"`
	Visible      int           `json:"visible"`
	Lights       int           `json:"lights"`
	LitDrawables int           `json:"lit_drawables"`
	Duration     time.Duration `json:"duration"`
}

// ObjectInfo is a snapshot of a scene object.
type ObjectInfo struct {
	ID          uint32     `json:"id"`
	Name        string     `json:"name,omitempty"`
	Kind        string     `json:"kind"`
	Position    mgl32.Vec3 `json:"position"`
	Scale       mgl32.Vec3 `json:"scale"`
	Min         mgl32.Vec3 `json:"min"`
	Max         mgl32.Vec3 `json:"max"`
	OctantLevel int        `json:"octant_level"`
	InView      bool       `json:"in_view"`
	Distance    float32    `json:"distance"`
	Lights      []uint32   `json:"lights,omitempty"`
}

// RaycastHit is an object hit by a ray.
type RaycastHit struct {
	Object   ObjectInfo `json:"object"`
	Distance float32    `json:"distance"`
	Position mgl32.Vec3 `json:"position"`
}

// Scene is a set of objects indexed by an octree and updated every frame.
type Scene struct {
	ID        uint32
	SceneUUID string

	objectIDs   SequentialIDGenerator
	objectMutex sync.RWMutex
	objects     map[uint32]Object

	// Guards the octree, the drawables bookkeeping and the frame state.
	mutex         sync.Mutex
	octree        *octree.Octree
	camera        *Camera
	maxLights     int
	featureFlags  featureflag.FeatureFlag
	frameDuration time.Duration
	frameNumber   uint32
	lastFrame     time.Time
	stats         FrameStats

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameHandlerIDs SequentialIDGenerator
	frameHandlers   map[uint32]func()
	frameMutex      sync.RWMutex

	closeOnce sync.Once
}

func NewScene(id uint32, opts SceneOptions) *Scene {
	if opts.FrameDuration <= 0 {
		opts.FrameDuration = time.Second / 60
	}

	sceneUUID := uuid.New().String()
	treeOptions := []octree.Option{
		octree.WithName(sceneUUID),
		octree.WithFeatureFlags(opts.FeatureFlags),
	}
	if opts.Workers > 0 {
		treeOptions = append(treeOptions, octree.WithWorkers(opts.Workers))
	}

	box := opts.BoundingBox
	if !box.Defined {
		box = octree.DefaultBoundingBox()
	}
	levels := opts.Levels
	if levels <= 0 {
		levels = octree.DefaultOctreeLevels
	}

	return &Scene{
		ID:             id,
		SceneUUID:      sceneUUID,
		objects:        make(map[uint32]Object),
		octree:         octree.New(box, levels, treeOptions...),
		camera:         NewCamera(),
		maxLights:      max(opts.MaxLights, 0),
		featureFlags:   opts.FeatureFlags,
		frameDuration:  opts.FrameDuration,
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    time.NewTicker(opts.FrameDuration),
		frameHandlers:  make(map[uint32]func()),
	}
}

func (s *Scene) Close() {
	s.closeOnce.Do(func() {
		s.frameTicker.Stop()
		s.closeFrameChan <- struct{}{}
	})
}

// Camera returns the camera the scene is viewed from.
func (s *Scene) Camera() *Camera {
	return s.camera
}

// AddBox adds a box drawable bounded by box in local space.
func (s *Scene) AddBox(name string, box geometry.BoundingBox, transform *Transform) *BoxDrawable {
	d := NewBoxDrawable(s.objectIDs.New(), name, box, transform)
	d.SetMaxLights(s.maxLights)
	s.addObject(d)
	return d
}

// AddPointLight adds a point light.
func (s *Scene) AddPointLight(name string, lightRange, intensity float32, color mgl32.Vec3, transform *Transform) *PointLight {
	l := NewPointLight(s.objectIDs.New(), name, lightRange, intensity, color, transform)
	s.addObject(l)
	return l
}

func (s *Scene) addObject(o Object) {
	s.objectMutex.Lock()
	s.objects[o.Node().ID] = o
	s.objectMutex.Unlock()

	s.mutex.Lock()
	o.Base().AddToOctree(s.octree)
	o.Base().MarkForUpdate()
	s.mutex.Unlock()

	instrumentAddObject(o.Node().Kind)
}

// RemoveObject removes the object with the given id from the scene.
func (s *Scene) RemoveObject(id uint32) error {
	s.objectMutex.Lock()
	o, ok := s.objects[id]
	delete(s.objects, id)
	s.objectMutex.Unlock()

	if !ok {
		return errors.New("object not found").
			WithType(ErrTypeObjectNotFound).
			WithTag("scene_id", s.ID).
			WithTag("object_id", id)
	}

	s.mutex.Lock()
	o.Base().RemoveFromOctree()
	s.mutex.Unlock()

	s.objectIDs.Reuse(id)
	instrumentRemoveObject(o.Node().Kind)
	return nil
}

// Object returns the object with the given id.
func (s *Scene) Object(id uint32) (Object, bool) {
	s.objectMutex.RLock()
	defer s.objectMutex.RUnlock()

	o, ok := s.objects[id]
	return o, ok
}

// Objects returns the scene objects sorted by id.
func (s *Scene) Objects() []Object {
	s.objectMutex.RLock()
	objects := make([]Object, 0, len(s.objects))
	for _, o := range s.objects {
		objects = append(objects, o)
	}
	s.objectMutex.RUnlock()

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Node().ID < objects[j].Node().ID
	})
	return objects
}

func (s *Scene) ObjectCount() int {
	s.objectMutex.RLock()
	defer s.objectMutex.RUnlock()

	return len(s.objects)
}

// MoveObject sets the position of an object. The octree picks up the move
// during the next frame.
func (s *Scene) MoveObject(id uint32, position mgl32.Vec3) error {
	o, ok := s.Object(id)
	if !ok {
		return errors.New("object not found").
			WithType(ErrTypeObjectNotFound).
			WithTag("scene_id", s.ID).
			WithTag("object_id", id)
	}

	o.Node().Transform.SetPosition(position)
	return nil
}

// ObjectInfo returns a snapshot of the object with the given id.
func (s *Scene) ObjectInfo(id uint32) (ObjectInfo, bool) {
	o, ok := s.Object(id)
	if !ok {
		return ObjectInfo{}, false
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.objectInfo(o), true
}

// objectInfo must be called with the scene mutex held.
func (s *Scene) objectInfo(o Object) ObjectInfo {
	node := o.Node()
	base := o.Base()
	box := base.WorldBoundingBox()

	info := ObjectInfo{
		ID:          node.ID,
		Name:        node.Name,
		Kind:        node.Kind,
		Position:    node.Transform.Position(),
		Scale:       node.Transform.Scale(),
		Min:         box.Min,
		Max:         box.Max,
		OctantLevel: -1,
		InView:      s.frameNumber != 0 && base.IsInViewFrame(s.frameNumber),
		Distance:    base.Distance(),
	}

	if octant := base.Octant(); octant != nil {
		info.OctantLevel = octant.Level()
	}

	for _, l := range base.Lights() {
		if light, ok := l.(*PointLight); ok {
			info.Lights = append(info.Lights, light.node.ID)
		}
	}
	return info
}

// Query returns the objects selected by query.
func (s *Scene) Query(query *octree.VolumeQuery) []ObjectInfo {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.octree.GetDrawables(query)
	return s.objectInfos(query.Result)
}

// QueryVolume returns the objects matching flags whose bounds intersect v.
func (s *Scene) QueryVolume(v geometry.Volume, flags octree.DrawableFlags) []ObjectInfo {
	return s.Query(octree.NewVolumeQuery(v, flags, octree.DefaultViewMask))
}

func (s *Scene) objectInfos(drawables []octree.Drawable) []ObjectInfo {
	infos := make([]ObjectInfo, 0, len(drawables))
	for _, d := range drawables {
		if o, ok := d.(Object); ok {
			infos = append(infos, s.objectInfo(o))
		}
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Raycast returns the objects hit by ray, nearest first. Only the nearest
// hit is returned when single is true.
func (s *Scene) Raycast(ray geometry.Ray, maxDistance float32, level octree.RayQueryLevel, flags octree.DrawableFlags, single bool) []RaycastHit {
	query := octree.NewRayOctreeQuery(ray, maxDistance, level, flags, octree.DefaultViewMask)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if single {
		s.octree.RaycastSingle(query)
	} else {
		s.octree.Raycast(query)
	}

	hits := make([]RaycastHit, 0, len(query.Result))
	for _, r := range query.Result {
		o, ok := r.Drawable.(Object)
		if !ok {
			continue
		}

		hits = append(hits, RaycastHit{
			Object:   s.objectInfo(o),
			Distance: r.Distance,
			Position: r.Position,
		})
	}
	return hits
}

// Resize changes the octree bounds and levels.
func (s *Scene) Resize(box geometry.BoundingBox, levels int) error {
	if box.IsDegenerate() || levels <= 0 {
		return errors.New("invalid octree size").
			WithType(ErrTypeInvalidArgument).
			WithTag("scene_id", s.ID).
			WithTag("levels", levels)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.octree.Resize(box, levels)
	return nil
}

// DrawDebugGeometry submits the octant boxes of the scene octree to debug.
func (s *Scene) DrawDebugGeometry(debug octree.DebugRenderer, depthTest bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.octree.DrawDebugGeometry(debug, depthTest)
}

// Stats returns the statistics of the last frame.
func (s *Scene) Stats() FrameStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.stats
}

// Frame runs a frame: the octree is updated, then the objects in the camera
// frustum are marked in view and lit by the visible lights. Distances are
// refreshed by the octree update of the next frame.
func (s *Scene) Frame(ctx context.Context) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "scene.Frame")
	defer span.End()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	start := time.Now()
	timeStep := s.frameDuration
	if !s.lastFrame.IsZero() {
		timeStep = start.Sub(s.lastFrame)
	}
	s.lastFrame = start
	s.frameNumber++

	frame := octree.FrameInfo{
		FrameNumber: s.frameNumber,
		TimeStep:    float32(timeStep.Seconds()),
		Camera:      s.camera,
	}

	if err := s.octree.Update(ctx, frame); err != nil {
		return errors.New("scene frame failed").
			WithTag("scene_id", s.ID).
			Wrap(err)
	}

	query := octree.NewFrustumQuery(s.camera.Frustum(), octree.FlagGeometry|octree.FlagLight, octree.DefaultViewMask)
	s.octree.GetDrawables(query)

	var lights []*PointLight
	var geometries []octree.Drawable

	for _, d := range query.Result {
		base := d.Base()
		base.MarkForUpdate()
		if !base.Visible() || !base.InDrawDistance() {
			continue
		}
		base.MarkInView(frame)

		if l, ok := d.(*PointLight); ok {
			lights = append(lights, l)
			continue
		}

		base.ClearLights()
		geometries = append(geometries, d)
	}

	litDrawables := 0
	s.featureFlags.IfNotSet(featureflag.FlagDisableLightAssignment, func() {
		litDrawables = s.assignLights(frame, lights, geometries)
	})

	s.stats = FrameStats{
		FrameNumber:  s.frameNumber,
		Objects:      s.ObjectCount(),
		Drawables:    s.octree.NumDrawables(),
		Octants:      s.octree.NumOctants(),
		Levels:       s.octree.NumLevels(),
		Visible:      len(lights) + len(geometries),
		Lights:       len(lights),
		LitDrawables: litDrawables,
		Duration:     time.Since(start),
	}

	span.SetAttributes(
		attribute.Int("visible", s.stats.Visible),
		attribute.Int("lit_drawables", litDrawables),
	)
	instrumentFrame(start, s.stats.Visible)
	return nil
}

func (s *Scene) assignLights(frame octree.FrameInfo, lights []*PointLight, geometries []octree.Drawable) int {
	for _, l := range lights {
		query := octree.NewSphereQuery(l.Sphere(), octree.FlagGeometry, octree.DefaultViewMask)
		s.octree.GetDrawables(query)

		for _, d := range query.Result {
			base := d.Base()
			if !base.IsInView(frame) || base.LightMask()&l.LightMask() == 0 {
				continue
			}
			base.AddLight(l)
		}
	}

	lit := 0
	for _, d := range geometries {
		base := d.Base()
		base.LimitLights()
		if len(base.Lights()) != 0 {
			lit++
		}
	}
	return lit
}

// HandleFrame registers h to be called after every frame. The returned
// function unregisters it.
func (s *Scene) HandleFrame(h func()) (cancel func()) {
	s.frameMutex.Lock()
	defer s.frameMutex.Unlock()

	id := s.frameHandlerIDs.New()
	s.frameHandlers[id] = h

	return func() {
		s.frameMutex.Lock()
		defer s.frameMutex.Unlock()

		delete(s.frameHandlers, id)
		s.frameHandlerIDs.Reuse(id)
	}
}

// StartDispatchFrames runs a frame at every tick until the scene is closed.
func (s *Scene) StartDispatchFrames(ctx context.Context) {
	s.startFrameOnce.Do(func() {
		for {
			select {
			case <-s.closeFrameChan:
				return

			case <-ctx.Done():
				return

			case <-s.frameTicker.C:
				if err := s.Frame(ctx); err != nil {
					logs.WithTag("scene_id", s.ID).Warn(err)
					continue
				}

				s.frameMutex.RLock()
				for _, h := range s.frameHandlers {
					h()
				}
				s.frameMutex.RUnlock()
			}
		}
	})
}
