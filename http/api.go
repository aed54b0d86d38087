package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/octree/geometry"
	"github.com/aukilabs/octree/models"
	"github.com/aukilabs/octree/octree"
	"github.com/go-gl/mathgl/mgl32"
)

// API serves the scenes over HTTP as JSON.
type API struct {
	// The context the frame loops of the created scenes run with.
	Context context.Context

	Scenes *models.SceneStore

	// The options of the created scenes. Requests can override the octree
	// bounds and levels.
	SceneOptions models.SceneOptions
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /scenes", a.handleCreateScene)
	mux.HandleFunc("GET /scenes", a.handleListScenes)
	mux.HandleFunc("GET /scenes/{scene}", a.handleGetScene)
	mux.HandleFunc("DELETE /scenes/{scene}", a.handleDeleteScene)

	mux.HandleFunc("PUT /scenes/{scene}/octree", a.handleResizeOctree)
	mux.HandleFunc("GET /scenes/{scene}/camera", a.handleGetCamera)
	mux.HandleFunc("PUT /scenes/{scene}/camera", a.handleSetCamera)

	mux.HandleFunc("POST /scenes/{scene}/objects", a.handleAddObject)
	mux.HandleFunc("GET /scenes/{scene}/objects", a.handleListObjects)
	mux.HandleFunc("GET /scenes/{scene}/objects/{object}", a.handleGetObject)
	mux.HandleFunc("PUT /scenes/{scene}/objects/{object}/position", a.handleMoveObject)
	mux.HandleFunc("DELETE /scenes/{scene}/objects/{object}", a.handleRemoveObject)

	mux.HandleFunc("POST /scenes/{scene}/query", a.handleQuery)
	mux.HandleFunc("POST /scenes/{scene}/raycast", a.handleRaycast)
}

// SceneRequest creates a scene.
type SceneRequest struct {
	Min    *mgl32.Vec3 `json:"min,omitempty"`
	Max    *mgl32.Vec3 `json:"max,omitempty"`
	Levels int         `json:"levels,omitempty"`
}

// SceneResponse describes a scene.
type SceneResponse struct {
	ID     uint32                `json:"id"`
	UUID   string                `json:"uuid"`
	Stats  models.FrameStats     `json:"stats"`
	Camera models.CameraSettings `json:"camera"`
}

func sceneResponse(scene *models.Scene) SceneResponse {
	return SceneResponse{
		ID:     scene.ID,
		UUID:   scene.SceneUUID,
		Stats:  scene.Stats(),
		Camera: scene.Camera().Settings(),
	}
}

func (a *API) handleCreateScene(w http.ResponseWriter, r *http.Request) {
	var req SceneRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	}

	opts := a.SceneOptions
	if req.Min != nil && req.Max != nil {
		box := geometry.NewBoundingBox(*req.Min, *req.Max)
		if box.IsDegenerate() {
			writeError(w, r, errors.New("invalid octree bounds").
				WithType(models.ErrTypeInvalidArgument).
				WithTag("min", req.Min).
				WithTag("max", req.Max))
			return
		}
		opts.BoundingBox = box
	}
	if req.Levels > 0 {
		opts.Levels = req.Levels
	}

	scene := models.NewScene(a.Scenes.NewID(), opts)
	if err := a.Scenes.Add(r.Context(), scene); err != nil {
		scene.Close()
		writeError(w, r, err)
		return
	}
	go scene.StartDispatchFrames(a.context())

	logs.WithTag("scene_id", scene.ID).
		WithTag("scene_uuid", scene.SceneUUID).
		Info("scene created")

	writeJSON(w, http.StatusCreated, sceneResponse(scene))
}

func (a *API) context() context.Context {
	if a.Context == nil {
		return context.Background()
	}
	return a.Context
}

func (a *API) handleListScenes(w http.ResponseWriter, r *http.Request) {
	scenes := a.Scenes.List()

	res := make([]SceneResponse, len(scenes))
	for i, scene := range scenes {
		res[i] = sceneResponse(scene)
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleGetScene(w http.ResponseWriter, r *http.Request) {
	scene, err := a.scene(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sceneResponse(scene))
}

func (a *API) handleDeleteScene(w http.ResponseWriter, r *http.Request) {
	scene, err := a.scene(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	a.Scenes.Remove(r.Context(), scene)
	logs.WithTag("scene_id", scene.ID).Info("scene deleted")
	w.WriteHeader(http.StatusNoContent)
}

// OctreeRequest resizes a scene octree.
type OctreeRequest struct {
	Min    mgl32.Vec3 `json:"min"`
	Max    mgl32.Vec3 `json:"max"`
	Levels int        `json:"levels"`
}

func (a *API) handleResizeOctree(w http.ResponseWriter, r *http.Request) {
	scene, err := a.scene(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req OctreeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := scene.Resize(geometry.NewBoundingBox(req.Min, req.Max), req.Levels); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sceneResponse(scene))
}

func (a *API) handleGetCamera(w http.ResponseWriter, r *http.Request) {
	scene, err := a.scene(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scene.Camera().Settings())
}

func (a *API) handleSetCamera(w http.ResponseWriter, r *http.Request) {
	scene, err := a.scene(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req models.CameraSettings
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	scene.Camera().Apply(req)
	writeJSON(w, http.StatusOK, scene.Camera().Settings())
}

// ObjectRequest adds an object to a scene.
type ObjectRequest struct {
	Kind     string      `json:"kind"`
	Name     string      `json:"name,omitempty"`
	Position mgl32.Vec3  `json:"position"`
	Angles   *mgl32.Vec3 `json:"angles,omitempty"`
	Scale    *mgl32.Vec3 `json:"scale,omitempty"`

	// Box local bounds.
	Min mgl32.Vec3 `json:"min"`
	Max mgl32.Vec3 `json:"max"`

	// Light settings.
	Range     float32    `json:"range,omitempty"`
	Intensity float32    `json:"intensity,omitempty"`
	Color     mgl32.Vec3 `json:"color"`
}

func (req ObjectRequest) transform() *models.Transform {
	transform := models.NewTransform(req.Position)
	if req.Angles != nil {
		angles := *req.Angles
		transform.SetRotation(mgl32.AnglesToQuat(
			mgl32.DegToRad(angles.X()),
			mgl32.DegToRad(angles.Y()),
			mgl32.DegToRad(angles.Z()),
			mgl32.XYZ,
		))
	}
	if req.Scale != nil {
		transform.SetScale(*req.Scale)
	}
	return transform
}

func (a *API) handleAddObject(w http.ResponseWriter, r *http.Request) {
	scene, err := a.scene(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req ObjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var id uint32

	switch req.Kind {
	case models.ObjectKindBox, "":
		box := geometry.NewBoundingBox(req.Min, req.Max)
		if box.Size() == (mgl32.Vec3{}) {
			box = geometry.NewBoundingBoxFromCenter(mgl32.Vec3{}, mgl32.Vec3{1, 1, 1})
		}
		id = scene.AddBox(req.Name, box, req.transform()).Node().ID

	case models.ObjectKindLight:
		if req.Intensity == 0 {
			req.Intensity = 1
		}
		if req.Color == (mgl32.Vec3{}) {
			req.Color = mgl32.Vec3{1, 1, 1}
		}
		id = scene.AddPointLight(req.Name, req.Range, req.Intensity, req.Color, req.transform()).Node().ID

	default:
		writeError(w, r, errors.New("unknown object kind").
			WithType(models.ErrTypeInvalidArgument).
			WithTag("kind", req.Kind))
		return
	}

	writeObjectInfo(w, r, scene, id, http.StatusCreated)
}

func (a *API) handleListObjects(w http.ResponseWriter, r *http.Request) {
	scene, err := a.scene(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	objects := scene.Objects()
	infos := make([]models.ObjectInfo, 0, len(objects))
	for _, o := range objects {
		if info, ok := scene.ObjectInfo(o.Node().ID); ok {
			infos = append(infos, info)
		}
	}
	writeJSON(w, http.StatusOK, infos)
}

func (a *API) handleGetObject(w http.ResponseWriter, r *http.Request) {
	scene, id, err := a.object(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeObjectInfo(w, r, scene, id, http.StatusOK)
}

// writeObjectInfo answers with the object description, or 404 when the object
// was removed in the meantime.
func writeObjectInfo(w http.ResponseWriter, r *http.Request, scene *models.Scene, id uint32, status int) {
	info, ok := scene.ObjectInfo(id)
	if !ok {
		writeError(w, r, objectNotFound(scene, id))
		return
	}
	writeJSON(w, status, info)
}

// PositionRequest moves an object.
type PositionRequest struct {
	Position mgl32.Vec3 `json:"position"`
}

func (a *API) handleMoveObject(w http.ResponseWriter, r *http.Request) {
	scene, id, err := a.object(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req PositionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := scene.MoveObject(id, req.Position); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleRemoveObject(w http.ResponseWriter, r *http.Request) {
	scene, id, err := a.object(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := scene.RemoveObject(id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// QueryRequest selects the objects intersecting a volume.
type QueryRequest struct {
	// point, box, sphere, frustum or all.
	Type  string `json:"type"`
	Flags string `json:"flags,omitempty"`

	Point  mgl32.Vec3 `json:"point"`
	Min    mgl32.Vec3 `json:"min"`
	Max    mgl32.Vec3 `json:"max"`
	Center mgl32.Vec3 `json:"center"`
	Radius float32    `json:"radius"`
}

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	scene, err := a.scene(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req QueryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	flags, err := parseDrawableFlags(req.Flags)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var query *octree.VolumeQuery

	switch req.Type {
	case "point":
		query = octree.NewPointQuery(req.Point, flags, octree.DefaultViewMask)

	case "box":
		query = octree.NewBoxQuery(geometry.NewBoundingBox(req.Min, req.Max), flags, octree.DefaultViewMask)

	case "sphere":
		query = octree.NewSphereQuery(geometry.Sphere{Center: req.Center, Radius: req.Radius}, flags, octree.DefaultViewMask)

	case "frustum":
		query = octree.NewFrustumQuery(scene.Camera().Frustum(), flags, octree.DefaultViewMask)

	case "all", "":
		query = octree.NewAllQuery(flags, octree.DefaultViewMask)

	default:
		writeError(w, r, errors.New("unknown query type").
			WithType(models.ErrTypeInvalidArgument).
			WithTag("type", req.Type))
		return
	}

	writeJSON(w, http.StatusOK, scene.Query(query))
}

// RaycastRequest finds the objects hit by a ray.
type RaycastRequest struct {
	Origin      mgl32.Vec3 `json:"origin"`
	Direction   mgl32.Vec3 `json:"direction"`
	MaxDistance float32    `json:"max_distance,omitempty"`

	// aabb, obb or triangle.
	Level  string `json:"level,omitempty"`
	Flags  string `json:"flags,omitempty"`
	Single bool   `json:"single,omitempty"`
}

func (a *API) handleRaycast(w http.ResponseWriter, r *http.Request) {
	scene, err := a.scene(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req RaycastRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if req.Direction.Len() < geometry.Epsilon {
		writeError(w, r, errors.New("ray direction is zero").
			WithType(models.ErrTypeInvalidArgument))
		return
	}

	flags, err := parseDrawableFlags(req.Flags)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var level octree.RayQueryLevel
	switch req.Level {
	case "aabb", "":
		level = octree.RayAABB
	case "obb":
		level = octree.RayOBB
	case "triangle":
		level = octree.RayTriangle
	default:
		writeError(w, r, errors.New("unknown ray query level").
			WithType(models.ErrTypeInvalidArgument).
			WithTag("level", req.Level))
		return
	}

	hits := scene.Raycast(geometry.NewRay(req.Origin, req.Direction), req.MaxDistance, level, flags, req.Single)
	writeJSON(w, http.StatusOK, hits)
}

func parseDrawableFlags(v string) (octree.DrawableFlags, error) {
	switch v {
	case "", "any":
		return octree.FlagAny, nil
	case "geometry":
		return octree.FlagGeometry, nil
	case "light":
		return octree.FlagLight, nil
	case "zone":
		return octree.FlagZone, nil
	default:
		return 0, errors.New("unknown drawable flags").
			WithType(models.ErrTypeInvalidArgument).
			WithTag("flags", v)
	}
}

func (a *API) scene(r *http.Request) (*models.Scene, error) {
	v := r.PathValue("scene")

	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		if scene, ok := a.Scenes.GetByUUID(v); ok {
			return scene, nil
		}
		return nil, errors.New("scene not found").
			WithType(models.ErrTypeSceneNotFound).
			WithTag("scene", v)
	}

	scene, ok := a.Scenes.Get(uint32(id))
	if !ok {
		return nil, errors.New("scene not found").
			WithType(models.ErrTypeSceneNotFound).
			WithTag("scene", v)
	}
	return scene, nil
}

func (a *API) object(r *http.Request) (*models.Scene, uint32, error) {
	scene, err := a.scene(r)
	if err != nil {
		return nil, 0, err
	}

	v := r.PathValue("object")
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return nil, 0, errors.New("invalid object id").
			WithType(models.ErrTypeInvalidArgument).
			WithTag("object", v).
			Wrap(err)
	}
	return scene, uint32(id), nil
}

func objectNotFound(scene *models.Scene, id uint32) error {
	return errors.New("object not found").
		WithType(models.ErrTypeObjectNotFound).
		WithTag("scene_id", scene.ID).
		WithTag("object_id", id)
}
