package octree

import (
	"github.com/aukilabs/octree/geometry"
	"github.com/go-gl/mathgl/mgl32"
)

const numChildren = 8

var debugColor = mgl32.Vec4{0.25, 0.25, 0.25, 1}

// Octant is a node of an Octree. It owns up to 8 children which are created
// when a drawable is pushed into them and freed once their subtree is empty.
type Octant struct {
	worldBoundingBox geometry.BoundingBox
	cullingBox       geometry.BoundingBox
	center           mgl32.Vec3
	halfSize         mgl32.Vec3

	drawables []Drawable
	children  [numChildren]*Octant

	level        int
	index        int
	numDrawables int
	parent       *Octant
	root         *Octree
}

func newOctant(box geometry.BoundingBox, level int, parent *Octant, root *Octree, index int) *Octant {
	o := &Octant{
		level:  level,
		index:  index,
		parent: parent,
		root:   root,
	}
	o.initialize(box)
	return o
}

func (o *Octant) initialize(box geometry.BoundingBox) {
	o.worldBoundingBox = box
	o.center = box.Center()
	o.halfSize = box.HalfSize()
	o.cullingBox = box.Expanded(o.halfSize)
}

// WorldBoundingBox returns the region covered by the octant.
func (o *Octant) WorldBoundingBox() geometry.BoundingBox {
	return o.worldBoundingBox
}

// CullingBox returns the loose bounds used for containment and query tests:
// the region expanded by its half size on every side.
func (o *Octant) CullingBox() geometry.BoundingBox {
	return o.cullingBox
}

// Level returns the subdivision depth, 0 being the root.
func (o *Octant) Level() int {
	return o.level
}

// Parent returns the enclosing octant, or nil for the root.
func (o *Octant) Parent() *Octant {
	return o.parent
}

// Root returns the octree the octant belongs to.
func (o *Octant) Root() *Octree {
	return o.root
}

// Child returns the child at index, or nil when it does not exist. Bit 0, 1
// and 2 of the index select the upper half on the X, Y and Z axis.
func (o *Octant) Child(index int) *Octant {
	return o.children[index]
}

// Drawables returns the drawables stored in this octant, excluding children.
// The returned slice must not be modified.
func (o *Octant) Drawables() []Drawable {
	return o.drawables
}

// NumDrawables returns the number of drawables in the octant and its
// descendants.
func (o *Octant) NumDrawables() int {
	return o.numDrawables
}

// IsEmpty reports whether neither the octant nor its descendants hold drawables.
func (o *Octant) IsEmpty() bool {
	return o.numDrawables == 0
}

func (o *Octant) getOrCreateChild(index int) *Octant {
	if child := o.children[index]; child != nil {
		return child
	}

	newMin := o.worldBoundingBox.Min
	newMax := o.worldBoundingBox.Max
	for axis := 0; axis < 3; axis++ {
		if index&(1<<axis) != 0 {
			newMin[axis] = o.center[axis]
		} else {
			newMax[axis] = o.center[axis]
		}
	}

	child := newOctant(geometry.NewBoundingBox(newMin, newMax), o.level+1, o, o.root, index)
	o.children[index] = child
	o.root.numOctants++
	return child
}

func (o *Octant) deleteChild(index int) {
	if o.children[index] == nil {
		return
	}

	o.children[index] = nil
	o.root.numOctants--
}

// checkDrawableSize reports whether a drawable of the given size must be
// stored in this octant rather than in a child.
func (o *Octant) checkDrawableSize(boxSize mgl32.Vec3) bool {
	if o.level >= o.root.numLevels {
		return true
	}

	return boxSize.X() >= o.halfSize.X() ||
		boxSize.Y() >= o.halfSize.Y() ||
		boxSize.Z() >= o.halfSize.Z()
}

// fits reports whether inserting a drawable with the given box would leave it
// in this octant, accepting any octant whose culling box still contains it.
func (o *Octant) fits(box geometry.BoundingBox) bool {
	if box.IsDegenerate() {
		return o.parent == nil
	}

	size := box.Size()
	if o.parent != nil && o.parent.checkDrawableSize(size) {
		return false
	}
	return o.cullingBox.Contains(box) && o.checkDrawableSize(size)
}

func (o *Octant) insertDrawable(d Drawable, boxCenter, boxSize mgl32.Vec3) {
	if o.checkDrawableSize(boxSize) || o.worldBoundingBox.IsInside(boxCenter) != geometry.Inside {
		o.place(d)
		return
	}

	index := 0
	for axis := 0; axis < 3; axis++ {
		if boxCenter[axis] >= o.center[axis] {
			index |= 1 << axis
		}
	}
	o.getOrCreateChild(index).insertDrawable(d, boxCenter, boxSize)
}

// place stores d in this octant, removing it from its previous one. The
// drawable is added before being removed so that an ancestor emptied by the
// removal is never freed.
func (o *Octant) place(d Drawable) {
	base := d.Base()
	old := base.Octant()
	if old == o {
		return
	}

	oldIndex := base.octantIndex
	o.addDrawable(d)
	if old != nil {
		old.removeDrawableAt(d, oldIndex, false)
	}
}

func (o *Octant) addDrawable(d Drawable) {
	base := d.Base()
	base.octant.Store(o)
	base.octantIndex = len(o.drawables)
	o.drawables = append(o.drawables, d)
	o.incDrawableCount()
}

func (o *Octant) removeDrawable(d Drawable, resetOctant bool) bool {
	return o.removeDrawableAt(d, d.Base().octantIndex, resetOctant)
}

func (o *Octant) removeDrawableAt(d Drawable, index int, resetOctant bool) bool {
	if index < 0 || index >= len(o.drawables) || o.drawables[index] != d {
		index = -1
		for i, e := range o.drawables {
			if e == d {
				index = i
				break
			}
		}
		if index < 0 {
			return false
		}
	}

	if resetOctant {
		d.Base().octant.Store(nil)
	}

	last := len(o.drawables) - 1
	if index != last {
		moved := o.drawables[last]
		o.drawables[index] = moved
		moved.Base().octantIndex = index
	}
	o.drawables[last] = nil
	o.drawables = o.drawables[:last]

	o.decDrawableCount()
	return true
}

func (o *Octant) incDrawableCount() {
	for octant := o; octant != nil; octant = octant.parent {
		octant.numDrawables++
	}
}

func (o *Octant) decDrawableCount() {
	for octant := o; octant != nil; {
		parent := octant.parent
		octant.numDrawables--
		if octant.numDrawables == 0 && parent != nil {
			parent.deleteChild(octant.index)
		}
		octant = parent
	}
}

func (o *Octant) collectDrawables(dst []Drawable) []Drawable {
	dst = append(dst, o.drawables...)
	for _, child := range o.children {
		if child != nil {
			dst = child.collectDrawables(dst)
		}
	}
	return dst
}

func (o *Octant) getDrawablesInternal(query OctreeQuery, inside bool) {
	if o.parent != nil {
		switch query.TestOctant(o.cullingBox, inside) {
		case geometry.Inside:
			inside = true
		case geometry.Outside:
			return
		}
	}

	if len(o.drawables) != 0 {
		query.TestDrawables(o.drawables, inside)
	}

	for _, child := range o.children {
		if child != nil {
			child.getDrawablesInternal(query, inside)
		}
	}
}

func (o *Octant) getDrawablesRayInternal(query *RayOctreeQuery, results []RayQueryResult) []RayQueryResult {
	if o.parent != nil && query.Ray.HitDistance(o.cullingBox) >= query.MaxDistance {
		return results
	}

	for _, d := range o.drawables {
		if query.accepts(d) {
			results = processRayQuery(d, query, results)
		}
	}

	for _, child := range o.children {
		if child != nil {
			results = child.getDrawablesRayInternal(query, results)
		}
	}
	return results
}

func (o *Octant) getDrawablesOnlyInternal(query *RayOctreeQuery, candidates []Drawable) []Drawable {
	if o.parent != nil && query.Ray.HitDistance(o.cullingBox) >= query.MaxDistance {
		return candidates
	}

	for _, d := range o.drawables {
		if query.accepts(d) {
			candidates = append(candidates, d)
		}
	}

	for _, child := range o.children {
		if child != nil {
			candidates = child.getDrawablesOnlyInternal(query, candidates)
		}
	}
	return candidates
}

func (o *Octant) drawDebugGeometry(debug DebugRenderer, depthTest bool) {
	if !debug.IsInside(o.worldBoundingBox) {
		return
	}

	debug.AddBoundingBox(o.worldBoundingBox, debugColor, depthTest)
	for _, child := range o.children {
		if child != nil {
			child.drawDebugGeometry(debug, depthTest)
		}
	}
}
