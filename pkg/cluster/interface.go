package cluster

import (
	"math"
	"sort"

	"voxelseg/pkg/labelmap"
	"voxelseg/pkg/voxel"
)

// Strategy is the domain hook of a cluster: it decides which evidence an interface
// keeps, how the evidence is scored and when a scored interface fuses. Update and
// CheckFusion are required; a nil AddPair stores both voxels of a pair in Voxels and a
// nil Fuse does nothing beyond the evidence union.
type Strategy struct {
	Name string

	// AddPair records the adjacent voxels v1 (in E1) and v2 (in E2).
	AddPair func(i *Interface, v1, v2 voxel.Point)

	// Update scores the accumulated evidence. Empty evidence should score NaN.
	Update func(i *Interface) float64

	// CheckFusion reports whether the two regions of i should merge. It must return
	// false for a NaN value.
	CheckFusion func(i *Interface) bool

	// Fuse runs after src's evidence has been merged into dst.
	Fuse func(dst, src *Interface)

	// Validate checks the images and masks the strategy reads against the population
	// extent. New fails with ErrGeometryMismatch when it returns an error.
	Validate func(dims voxel.Dims) error
}

func storeBoth(i *Interface, v1, v2 voxel.Point) {
	i.Voxels[v1] = struct{}{}
	i.Voxels[v2] = struct{}{}
}

// Interface is the boundary between two adjacent regions. E1 always has the lower
// label; the background pseudo region has label 0 and is therefore always E1.
type Interface struct {
	E1, E2 *labelmap.Region

	// Voxels is the primary evidence, Duplicated the secondary evidence.
	Voxels     map[voxel.Point]struct{}
	Duplicated map[voxel.Point]struct{}

	// Value is the score computed by the last Update, NaN before the first one.
	Value float64

	pairs    map[[2]voxel.Point]struct{}
	strategy *Strategy
	version  int
	dead     bool
}

func newInterface(a, b *labelmap.Region, s *Strategy) *Interface {
	if b.Label < a.Label {
		a, b = b, a
	}
	return &Interface{
		E1:         a,
		E2:         b,
		Voxels:     make(map[voxel.Point]struct{}),
		Duplicated: make(map[voxel.Point]struct{}),
		Value:      math.NaN(),
		pairs:      make(map[[2]voxel.Point]struct{}),
		strategy:   s,
	}
}

func pairKey(v1, v2 voxel.Point) [2]voxel.Point {
	if voxel.ComparePoints(v2, v1) < 0 {
		v1, v2 = v2, v1
	}
	return [2]voxel.Point{v1, v2}
}

// AddPair records an adjacent voxel pair, v1 in E1 and v2 in E2. A pair already seen,
// in either order, is ignored.
func (i *Interface) AddPair(v1, v2 voxel.Point) {
	key := pairKey(v1, v2)
	if _, ok := i.pairs[key]; ok {
		return
	}
	i.pairs[key] = struct{}{}
	if i.strategy.AddPair == nil {
		storeBoth(i, v1, v2)
		return
	}
	i.strategy.AddPair(i, v1, v2)
}

// Pairs returns the number of distinct voxel pairs recorded.
func (i *Interface) Pairs() int { return len(i.pairs) }

// Update recomputes Value from the evidence.
func (i *Interface) Update() float64 {
	i.Value = i.strategy.Update(i)
	i.version++
	return i.Value
}

// CheckFusion asks the strategy whether the two regions should merge.
func (i *Interface) CheckFusion() bool { return i.strategy.CheckFusion(i) }

// HasBackground reports whether one side is the background pseudo region.
func (i *Interface) HasBackground() bool { return i.E1.Label == labelmap.Background }

// Involves reports whether r is one side of i.
func (i *Interface) Involves(r *labelmap.Region) bool { return i.E1 == r || i.E2 == r }

// Other returns the side of i that is not r.
func (i *Interface) Other(r *labelmap.Region) *labelmap.Region {
	if i.E1 == r {
		return i.E2
	}
	return i.E1
}

// FuseWith moves the evidence of other into i. Value is NaN until the next Update.
func (i *Interface) FuseWith(other *Interface) {
	for k := range other.pairs {
		i.pairs[k] = struct{}{}
	}
	for p := range other.Voxels {
		i.Voxels[p] = struct{}{}
	}
	for p := range other.Duplicated {
		i.Duplicated[p] = struct{}{}
	}
	i.Value = math.NaN()
	i.version++
	if i.strategy.Fuse != nil {
		i.strategy.Fuse(i, other)
	}
}

// retarget moves the evidence of i onto a new interface between survivor and the
// region on the other side of absorbed, and retires i.
func (i *Interface) retarget(absorbed, survivor *labelmap.Region) *Interface {
	other := i.Other(absorbed)
	n := newInterface(survivor, other, i.strategy)
	n.Voxels, n.Duplicated, n.pairs = i.Voxels, i.Duplicated, i.pairs
	n.Value = math.NaN()
	i.dead = true
	return n
}

// SortedPoints returns the members of an evidence set in scan order. Sums over
// evidence iterate in this order so scores do not depend on map iteration.
func SortedPoints(set map[voxel.Point]struct{}) []voxel.Point {
	out := make([]voxel.Point, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(a, b int) bool { return voxel.ComparePoints(out[a], out[b]) < 0 })
	return out
}

// CompareLabels orders interfaces by E1 label, then E2 label.
func CompareLabels(a, b *Interface) int {
	if a.E1.Label != b.E1.Label {
		return cmpInt(a.E1.Label, b.E1.Label)
	}
	return cmpInt(a.E2.Label, b.E2.Label)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareValues orders ascending with NaN after every number.
func compareValues(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return 1
	case bn:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
