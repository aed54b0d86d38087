// Package octree implements a loose octree indexing drawable objects for
// visibility culling, spatial queries and raycasts.
//
// Tree mutations, queries and Update must be serialized by the caller.
// Drawables may be marked dirty from any goroutine: their reinsertion is then
// deferred to the next Update.
package octree

import (
	"cmp"
	"context"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/octree/featureflag"
	"github.com/aukilabs/octree/geometry"
	"github.com/go-gl/mathgl/mgl32"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultOctreeSize   = 1000
	DefaultOctreeLevels = 8

	drawablesPerWorkItem = 16
	raycastsPerWorkItem  = 4

	tracerName = "github.com/aukilabs/octree/octree"
)

// DefaultBoundingBox returns the bounds of an octree created without explicit
// bounds.
func DefaultBoundingBox() geometry.BoundingBox {
	return geometry.NewBoundingBox(
		mgl32.Vec3{-DefaultOctreeSize, -DefaultOctreeSize, -DefaultOctreeSize},
		mgl32.Vec3{DefaultOctreeSize, DefaultOctreeSize, DefaultOctreeSize},
	)
}

// Octree is the root octant of a loose octree.
type Octree struct {
	Octant

	name         string
	numLevels    int
	workers      int
	featureFlags featureflag.FeatureFlag
	numOctants   int

	updates []Drawable

	reinsertionMutex sync.Mutex
	reinsertions     []Drawable
}

// Option configures an Octree.
type Option func(*Octree)

// WithName sets the name the octree reports its logs and metrics with.
func WithName(name string) Option {
	return func(o *Octree) {
		o.name = name
	}
}

// WithWorkers sets the maximum number of goroutines used by Update and
// Raycast. 1 or less disables threading.
func WithWorkers(n int) Option {
	return func(o *Octree) {
		o.workers = max(n, 1)
	}
}

// WithFeatureFlags sets the feature flags toggling the threaded stages and
// the reinsertion fit check.
func WithFeatureFlags(f featureflag.FeatureFlag) Option {
	return func(o *Octree) {
		o.featureFlags = f
	}
}

// New creates an octree covering box and subdivided at most numLevels times.
// A degenerate box is replaced by the default bounds and numLevels is clamped
// to at least 1.
func New(box geometry.BoundingBox, numLevels int, options ...Option) *Octree {
	o := &Octree{
		name:       "default",
		workers:    runtime.NumCPU(),
		numOctants: 1,
	}
	o.Octant.root = o

	for _, opt := range options {
		opt(o)
	}

	o.setSize(box, numLevels)
	return o
}

// NewDefault creates an octree with the default bounds and levels.
func NewDefault(options ...Option) *Octree {
	return New(DefaultBoundingBox(), DefaultOctreeLevels, options...)
}

func (o *Octree) setSize(box geometry.BoundingBox, numLevels int) {
	if box.IsDegenerate() {
		box = DefaultBoundingBox()
	}
	o.Octant.initialize(box)
	o.numLevels = max(numLevels, 1)
}

func (o *Octree) Name() string {
	return o.name
}

// NumLevels returns the maximum subdivision depth.
func (o *Octree) NumLevels() int {
	return o.numLevels
}

// NumOctants returns the number of allocated octants, root included.
func (o *Octree) NumOctants() int {
	return o.numOctants
}

func (o *Octree) Workers() int {
	return o.workers
}

// NumQueuedUpdates returns the number of drawables waiting for an update.
func (o *Octree) NumQueuedUpdates() int {
	return len(o.updates)
}

// NumQueuedReinsertions returns the number of drawables waiting for a
// reinsertion.
func (o *Octree) NumQueuedReinsertions() int {
	o.reinsertionMutex.Lock()
	defer o.reinsertionMutex.Unlock()
	return len(o.reinsertions)
}

// Drawables returns all the indexed drawables, parents before children.
func (o *Octree) Drawables() []Drawable {
	return o.Octant.collectDrawables(make([]Drawable, 0, o.numDrawables))
}

// Resize changes the bounds and the maximum depth of the octree. Indexed
// drawables are reinserted and queued work stays valid.
func (o *Octree) Resize(box geometry.BoundingBox, numLevels int) {
	drawables := o.Drawables()
	for _, d := range drawables {
		d.Base().octant.Store(nil)
	}

	o.children = [numChildren]*Octant{}
	clear(o.drawables)
	o.drawables = o.drawables[:0]
	o.numDrawables = 0
	o.numOctants = 1
	o.setSize(box, numLevels)

	for _, d := range drawables {
		o.insertDrawable(d)
	}

	instrumentSize(o)
	logs.WithTag("octree", o.name).
		WithTag("num_levels", o.numLevels).
		WithTag("drawables", len(drawables)).
		WithTag("octants", o.numOctants).
		Debug("octree resized")
}

// AddManualDrawable indexes d. It does nothing when d is already indexed by
// an octree.
func (o *Octree) AddManualDrawable(d Drawable) {
	if d == nil || d.Base().Octant() != nil {
		return
	}
	o.insertDrawable(d)
}

// RemoveManualDrawable removes d from the octree, cancelling its queued
// work. It does nothing when d is not indexed by o.
func (o *Octree) RemoveManualDrawable(d Drawable) {
	if d == nil || d.Base().Octree() != o {
		return
	}
	d.Base().RemoveFromOctree()
}

func (o *Octree) insertDrawable(d Drawable) {
	box := d.Base().WorldBoundingBox()
	if box.IsDegenerate() {
		o.Octant.place(d)
		return
	}
	o.Octant.insertDrawable(d, box.Center(), box.Size())
}

// QueueUpdate queues d to be updated during the next Update. Queuing a
// drawable more than once per frame has no effect.
func (o *Octree) QueueUpdate(d Drawable) {
	base := d.Base()
	if base.updateQueued {
		return
	}

	base.updateQueued = true
	o.updates = append(o.updates, d)
}

// CancelUpdate removes d from the update queue.
func (o *Octree) CancelUpdate(d Drawable) {
	base := d.Base()
	if !base.updateQueued {
		return
	}

	base.updateQueued = false
	o.updates = slices.DeleteFunc(o.updates, func(e Drawable) bool {
		return e == d
	})
}

// QueueReinsertion queues d to be reinserted during the next Update. It is
// safe for concurrent use and queuing a drawable more than once per frame
// has no effect.
func (o *Octree) QueueReinsertion(d Drawable) {
	o.reinsertionMutex.Lock()
	defer o.reinsertionMutex.Unlock()

	base := d.Base()
	if base.Octree() != o || base.reinsertionQueue.Load() == o {
		return
	}

	base.reinsertionQueue.Store(o)
	o.reinsertions = append(o.reinsertions, d)
}

// CancelReinsertion removes d from the reinsertion queue.
func (o *Octree) CancelReinsertion(d Drawable) {
	o.reinsertionMutex.Lock()
	defer o.reinsertionMutex.Unlock()

	base := d.Base()
	if !base.reinsertionQueue.CompareAndSwap(o, nil) {
		return
	}

	o.reinsertions = slices.DeleteFunc(o.reinsertions, func(e Drawable) bool {
		return e == d
	})
}

// Update runs the per-frame processing: queued drawables are updated,
// possibly in parallel, then the moved ones are reinserted. An error is
// returned when ctx is canceled during the update stage, in which case the
// queued updates are dropped and the reinsertions stay queued for the next
// frame.
func (o *Octree) Update(ctx context.Context, frame FrameInfo) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "octree.Update")
	defer span.End()

	span.SetAttributes(
		attribute.String("octree", o.name),
		attribute.Int64("frame_number", int64(frame.FrameNumber)),
		attribute.Int("updates", len(o.updates)),
	)

	if err := o.updateDrawables(ctx, frame); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "updating drawables failed")

		return errors.New("updating drawables failed").
			WithTag("octree", o.name).
			WithTag("frame_number", frame.FrameNumber).
			Wrap(err)
	}

	reinserted := o.reinsertDrawables()
	span.SetAttributes(attribute.Int("reinsertions", reinserted))

	instrumentSize(o)
	return nil
}

func (o *Octree) updateDrawables(ctx context.Context, frame FrameInfo) error {
	if len(o.updates) == 0 {
		return nil
	}
	defer instrumentStageLatency(o.name, updateStage, time.Now())

	updates := o.updates
	defer func() {
		for _, d := range updates {
			d.Base().updateQueued = false
		}
		clear(o.updates)
		o.updates = o.updates[:0]
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	stale := 0
	live := make([]Drawable, 0, len(updates))
	for _, d := range updates {
		if d.Base().Octree() != o {
			stale++
			continue
		}
		live = append(live, d)
	}
	if stale != 0 {
		instrumentStaleEntries(o.name, updateStage, stale)
	}

	if o.workers <= 1 ||
		o.featureFlags.Has(featureflag.FlagDisableThreadedUpdate) ||
		len(live) <= drawablesPerWorkItem {
		for _, d := range live {
			updateDrawable(d, frame)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for start := 0; start < len(live); start += drawablesPerWorkItem {
		batch := live[start:min(start+drawablesPerWorkItem, len(live))]

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			for _, d := range batch {
				updateDrawable(d, frame)
			}
			return nil
		})
	}
	return g.Wait()
}

func updateDrawable(d Drawable, frame FrameInfo) {
	if u, ok := d.(Updater); ok {
		u.Update(frame)
	}
	d.Base().UpdateDistance(frame)
}

// reinsertDrawables drains the reinsertion queue. The queue lock is held for
// the whole drain so drawables must not be marked dirty from
// ComputeWorldBoundingBox.
func (o *Octree) reinsertDrawables() int {
	o.reinsertionMutex.Lock()
	defer o.reinsertionMutex.Unlock()

	if len(o.reinsertions) == 0 {
		return 0
	}
	defer instrumentStageLatency(o.name, reinsertStage, time.Now())

	checkFit := !o.featureFlags.Has(featureflag.FlagDisableReinsertionFitCheck)
	stale := 0
	reinserted := 0

	for _, d := range o.reinsertions {
		base := d.Base()
		base.reinsertionQueue.CompareAndSwap(o, nil)

		octant := base.Octant()
		if octant == nil || octant.root != o {
			stale++
			continue
		}

		if checkFit && octant.fits(base.WorldBoundingBox()) {
			continue
		}

		o.insertDrawable(d)
		reinserted++
	}

	clear(o.reinsertions)
	o.reinsertions = o.reinsertions[:0]

	if stale != 0 {
		instrumentStaleEntries(o.name, reinsertStage, stale)
	}
	instrumentReinsertions(o.name, reinserted)
	return reinserted
}

// GetDrawables runs query against the octree. The query results are reset
// before the traversal.
func (o *Octree) GetDrawables(query OctreeQuery) {
	defer instrumentQueryLatency(o.name, "drawables", time.Now())

	query.Reset()
	o.Octant.getDrawablesInternal(query, false)
}

// Raycast collects every accepted drawable hit by the query ray within its
// maximum distance, sorted by increasing distance.
func (o *Octree) Raycast(query *RayOctreeQuery) {
	defer instrumentQueryLatency(o.name, "raycast", time.Now())

	clear(query.Result)
	query.Result = query.Result[:0]

	if query.Level != RayTriangle ||
		o.workers <= 1 ||
		o.featureFlags.Has(featureflag.FlagDisableThreadedRaycast) {
		query.Result = o.Octant.getDrawablesRayInternal(query, query.Result)
		sortRayQueryResults(query.Result)
		return
	}

	candidates := o.Octant.getDrawablesOnlyInternal(query, nil)
	if len(candidates) <= raycastsPerWorkItem {
		for _, d := range candidates {
			query.Result = processRayQuery(d, query, query.Result)
		}
		sortRayQueryResults(query.Result)
		return
	}

	batches := make([][]RayQueryResult, (len(candidates)+raycastsPerWorkItem-1)/raycastsPerWorkItem)

	var g errgroup.Group
	g.SetLimit(o.workers)

	for i := range batches {
		start := i * raycastsPerWorkItem
		batch := candidates[start:min(start+raycastsPerWorkItem, len(candidates))]

		g.Go(func() error {
			var results []RayQueryResult
			for _, d := range batch {
				results = processRayQuery(d, query, results)
			}
			batches[i] = results
			return nil
		})
	}

	// Workers never fail.
	_ = g.Wait()

	for _, results := range batches {
		query.Result = append(query.Result, results...)
	}
	sortRayQueryResults(query.Result)
}

// RaycastSingle finds the nearest drawable hit by the query ray. Candidates
// are tested by increasing bounding box distance and the search stops once
// the next candidate is farther than the closest hit. Hits at equal distance
// resolve to the drawable met first in traversal order, as in Raycast. The
// query result holds at most one entry.
func (o *Octree) RaycastSingle(query *RayOctreeQuery) {
	defer instrumentQueryLatency(o.name, "raycast_single", time.Now())

	clear(query.Result)
	query.Result = query.Result[:0]

	type candidate struct {
		drawable Drawable
		distance float32
		index    int
	}

	drawables := o.Octant.getDrawablesOnlyInternal(query, nil)
	candidates := make([]candidate, len(drawables))
	for i, d := range drawables {
		candidates[i] = candidate{
			drawable: d,
			distance: query.Ray.HitDistance(d.Base().WorldBoundingBox()),
			index:    i,
		}
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(a.distance, b.distance)
	})

	var (
		best      RayQueryResult
		bestIndex = -1
		closest   = geometry.Infinity
		results   []RayQueryResult
	)

	for _, c := range candidates {
		if c.distance >= query.MaxDistance || c.distance > closest {
			break
		}

		results = processRayQuery(c.drawable, query, results[:0])
		for _, r := range results {
			if r.Distance < closest || (r.Distance == closest && c.index < bestIndex) {
				best = r
				bestIndex = c.index
				closest = r.Distance
			}
		}
	}

	if bestIndex >= 0 {
		query.Result = append(query.Result, best)
	}
}

// DrawDebugGeometry submits the bounds of the octants accepted by debug.
// Children of a rejected octant are skipped.
func (o *Octree) DrawDebugGeometry(debug DebugRenderer, depthTest bool) {
	if debug == nil {
		return
	}
	o.Octant.drawDebugGeometry(debug, depthTest)
}
