package smoketest

import (
	"context"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/octree/featureflag"
	"github.com/aukilabs/octree/geometry"
	"github.com/aukilabs/octree/models"
	"github.com/aukilabs/octree/octree"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/segmentio/encoding/json"
)

const (
	DefaultDrawables = 500
	DefaultTimeout   = 10 * time.Second

	maxDrawables = 100000

	ErrTypeInvariant = "invariant_violation"
)

// Options configures the octrees built by smoke tests.
type Options struct {
	// The octree subdivision levels.
	Levels int

	// The goroutines used for threaded octree work.
	Workers int

	FeatureFlags featureflag.FeatureFlag

	// Called with the results of every smoke test when set.
	SendResult func(context.Context, Results) error
}

// Request is the body of a smoke test request.
type Request struct {
	Drawables int           `json:"drawables"`
	Seed      uint64        `json:"seed"`
	Timeout   time.Duration `json:"timeout"`
}

// Results reports the steps of a smoke test.
type Results struct {
	Success   bool          `json:"success"`
	Drawables int           `json:"drawables"`
	Octants   int           `json:"octants"`
	Levels    int           `json:"levels"`
	Steps     []StepResult  `json:"steps"`
	Duration  time.Duration `json:"duration"`
}

type StepResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				logs.Debug(errors.New("decoding smoke test request failed").Wrap(err))
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		if req.Timeout <= 0 {
			req.Timeout = DefaultTimeout
		}

		runCtx, cancel := context.WithTimeout(ctx, req.Timeout)
		defer cancel()

		res, err := Run(runCtx, req, opts)
		if err != nil {
			logs.WithTag("drawables", req.Drawables).
				WithTag("seed", req.Seed).
				Warn(err)
		}

		if opts.SendResult != nil {
			if err := opts.SendResult(ctx, res); err != nil {
				logs.Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}

		statusCode := http.StatusOK
		if !res.Success {
			statusCode = http.StatusInternalServerError
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(res)
	}
}

// Run builds a scratch octree, moves, queries and raycasts its drawables,
// checking the tree after each step. The first failing step stops the test.
func Run(ctx context.Context, req Request, opts Options) (Results, error) {
	start := time.Now()

	if req.Drawables <= 0 {
		req.Drawables = DefaultDrawables
	}
	req.Drawables = min(req.Drawables, maxDrawables)
	if opts.Levels <= 0 {
		opts.Levels = octree.DefaultOctreeLevels
	}

	treeOptions := []octree.Option{
		octree.WithName("smoke-test"),
		octree.WithFeatureFlags(opts.FeatureFlags),
	}
	if opts.Workers > 0 {
		treeOptions = append(treeOptions, octree.WithWorkers(opts.Workers))
	}

	t := tester{
		rand:   rand.New(rand.NewPCG(req.Seed, req.Seed)),
		tree:   octree.New(octree.DefaultBoundingBox(), opts.Levels, treeOptions...),
		camera: models.NewCamera(),
	}

	res := Results{
		Drawables: req.Drawables,
		Success:   true,
	}

	steps := []struct {
		name string
		run  func(context.Context, int) error
	}{
		{name: "insert", run: t.insert},
		{name: "update", run: t.update},
		{name: "move", run: t.move},
		{name: "query", run: t.query},
		{name: "raycast", run: t.raycast},
		{name: "resize", run: t.resize},
		{name: "remove", run: t.remove},
	}

	var err error
	for _, step := range steps {
		stepStart := time.Now()

		err = ctx.Err()
		if err == nil {
			err = step.run(ctx, req.Drawables)
		}
		if err == nil {
			err = t.checkTree()
		}

		result := StepResult{
			Name:     step.name,
			Duration: time.Since(stepStart),
		}
		if err != nil {
			err = errors.New("smoke test step failed").
				WithTag("step", step.name).
				Wrap(err)
			result.Error = err.Error()
			res.Success = false
		}
		res.Steps = append(res.Steps, result)

		if err != nil {
			break
		}
	}

	res.Octants = t.tree.NumOctants()
	res.Levels = t.tree.NumLevels()
	res.Duration = time.Since(start)
	return res, err
}

type tester struct {
	rand        *rand.Rand
	tree        *octree.Octree
	camera      *models.Camera
	frameNumber uint32
	boxes       []*models.BoxDrawable
}

func (t *tester) randomPosition(extent float32) mgl32.Vec3 {
	return mgl32.Vec3{
		(t.rand.Float32()*2 - 1) * extent,
		(t.rand.Float32()*2 - 1) * extent,
		(t.rand.Float32()*2 - 1) * extent,
	}
}

func (t *tester) insert(ctx context.Context, n int) error {
	for i := range n {
		size := 0.1 + t.rand.Float32()*10
		box := geometry.NewBoundingBoxFromCenter(mgl32.Vec3{}, mgl32.Vec3{size, size, size})

		d := models.NewBoxDrawable(uint32(i+1), "", box, models.NewTransform(t.randomPosition(450)))
		d.AddToOctree(t.tree)
		d.MarkForUpdate()
		t.boxes = append(t.boxes, d)
	}

	if got := t.tree.NumDrawables(); got != n {
		return errors.New("unexpected drawable count").
			WithType(ErrTypeInvariant).
			WithTag("expected", n).
			WithTag("got", got)
	}
	return nil
}

func (t *tester) frame(ctx context.Context) error {
	t.frameNumber++
	return t.tree.Update(ctx, octree.FrameInfo{
		FrameNumber: t.frameNumber,
		TimeStep:    1.0 / 60,
		Camera:      t.camera,
	})
}

func (t *tester) update(ctx context.Context, n int) error {
	if err := t.frame(ctx); err != nil {
		return err
	}

	for _, d := range t.boxes {
		expected := t.camera.Distance(d.WorldPosition())
		if !geometry.EqualWithEpsilon(d.Distance(), expected, 1e-3) {
			return errors.New("drawable distance not updated").
				WithType(ErrTypeInvariant).
				WithTag("drawable", d.Node().ID).
				WithTag("expected", expected).
				WithTag("got", d.Distance())
		}
	}
	return nil
}

func (t *tester) move(ctx context.Context, n int) error {
	for _, d := range t.boxes {
		if t.rand.IntN(2) == 0 {
			d.Node().Transform.Translate(t.randomPosition(50))
		}
	}

	if err := t.frame(ctx); err != nil {
		return err
	}

	if queued := t.tree.NumQueuedReinsertions(); queued != 0 {
		return errors.New("reinsertions left after update").
			WithType(ErrTypeInvariant).
			WithTag("queued", queued)
	}
	return nil
}

func (t *tester) query(ctx context.Context, n int) error {
	for range 10 {
		volume := geometry.NewBoundingBoxFromCenter(t.randomPosition(400), mgl32.Vec3{200, 200, 200})

		query := octree.NewBoxQuery(volume, octree.FlagAny, octree.DefaultViewMask)
		t.tree.GetDrawables(query)

		found := make(map[octree.Drawable]struct{}, len(query.Result))
		for _, d := range query.Result {
			found[d] = struct{}{}
		}

		for _, d := range t.boxes {
			_, ok := found[d]
			expected := volume.IsInsideBox(d.WorldBoundingBox()) != geometry.Outside
			if ok != expected {
				return errors.New("box query mismatch").
					WithType(ErrTypeInvariant).
					WithTag("drawable", d.Node().ID).
					WithTag("expected", expected)
			}
		}
	}
	return nil
}

func (t *tester) raycast(ctx context.Context, n int) error {
	for range 10 {
		ray := geometry.NewRayFromPoints(t.randomPosition(500), t.randomPosition(500))

		query := octree.NewRayOctreeQuery(ray, 0, octree.RayAABB, octree.FlagAny, octree.DefaultViewMask)
		t.tree.Raycast(query)

		expected := 0
		for _, d := range t.boxes {
			if ray.HitDistance(d.WorldBoundingBox()) < geometry.Infinity {
				expected++
			}
		}
		if len(query.Result) != expected {
			return errors.New("raycast hit count mismatch").
				WithType(ErrTypeInvariant).
				WithTag("expected", expected).
				WithTag("got", len(query.Result))
		}

		for i := 1; i < len(query.Result); i++ {
			if query.Result[i].Distance < query.Result[i-1].Distance {
				return errors.New("raycast results not sorted").
					WithType(ErrTypeInvariant)
			}
		}

		single := octree.NewRayOctreeQuery(ray, 0, octree.RayAABB, octree.FlagAny, octree.DefaultViewMask)
		t.tree.RaycastSingle(single)
		if expected != 0 && (len(single.Result) != 1 ||
			!geometry.EqualWithEpsilon(single.Result[0].Distance, query.Result[0].Distance, 1e-3)) {
			return errors.New("single raycast did not return the closest hit").
				WithType(ErrTypeInvariant)
		}
	}
	return nil
}

func (t *tester) resize(ctx context.Context, n int) error {
	t.tree.Resize(geometry.NewBoundingBoxFromCenter(mgl32.Vec3{}, mgl32.Vec3{2000, 2000, 2000}), t.tree.NumLevels())

	if got := t.tree.NumDrawables(); got != n {
		return errors.New("drawables lost while resizing").
			WithType(ErrTypeInvariant).
			WithTag("expected", n).
			WithTag("got", got)
	}
	return nil
}

func (t *tester) remove(ctx context.Context, n int) error {
	for _, d := range t.boxes {
		d.RemoveFromOctree()
	}

	if got := t.tree.NumDrawables(); got != 0 {
		return errors.New("drawables left after removal").
			WithType(ErrTypeInvariant).
			WithTag("got", got)
	}
	if got := t.tree.NumOctants(); got != 1 {
		return errors.New("octants left after removal").
			WithType(ErrTypeInvariant).
			WithTag("got", got)
	}
	return nil
}

// checkTree verifies that every drawable lies in the culling box of its
// octant and that the drawable counts add up.
func (t *tester) checkTree() error {
	var check func(o *octree.Octant) (int, error)

	check = func(o *octree.Octant) (int, error) {
		count := len(o.Drawables())

		for _, d := range o.Drawables() {
			base := d.Base()
			if base.Octant() != o {
				return 0, errors.New("drawable octant mismatch").
					WithType(ErrTypeInvariant).
					WithTag("level", o.Level())
			}

			box := base.WorldBoundingBox()
			if o.Parent() != nil && !o.CullingBox().Contains(box) {
				return 0, errors.New("drawable outside of its octant").
					WithType(ErrTypeInvariant).
					WithTag("level", o.Level()).
					WithTag("min", box.Min).
					WithTag("max", box.Max)
			}
		}

		for i := range 8 {
			child := o.Child(i)
			if child == nil {
				continue
			}
			if child.IsEmpty() {
				return 0, errors.New("empty octant not freed").
					WithType(ErrTypeInvariant).
					WithTag("level", child.Level())
			}

			n, err := check(child)
			if err != nil {
				return 0, err
			}
			count += n
		}

		if count != o.NumDrawables() {
			return 0, errors.New("octant drawable count mismatch").
				WithType(ErrTypeInvariant).
				WithTag("level", o.Level()).
				WithTag("expected", count).
				WithTag("got", o.NumDrawables())
		}
		return count, nil
	}

	_, err := check(&t.tree.Octant)
	return err
}
