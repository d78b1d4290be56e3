package watershed

import (
	"github.com/pkg/errors"

	"voxelseg/pkg/labelmap"
	"voxelseg/pkg/voxel"
)

// PropagationCriterion decides whether a region may advance from current onto the
// unlabelled voxel next. next.Value is already computed from the region's score map.
type PropagationCriterion interface {
	ContinuePropagation(e *Engine, current, next voxel.Voxel) bool
}

// FusionCriterion decides whether two regions meeting at voxel at merge immediately.
// r is the region being expanded, s the region already owning the neighbour.
type FusionCriterion interface {
	CheckFusion(e *Engine, r, s *labelmap.Region, at voxel.Voxel) bool
}

// DimsChecker is implemented by criteria that read images of their own. New rejects a
// criterion whose images do not cover the score maps' extent.
type DimsChecker interface {
	CheckDims(dims voxel.Dims) error
}

// PropagationFunc adapts a function to PropagationCriterion.
type PropagationFunc func(e *Engine, current, next voxel.Voxel) bool

// ContinuePropagation calls f.
func (f PropagationFunc) ContinuePropagation(e *Engine, current, next voxel.Voxel) bool {
	return f(e, current, next)
}

// FusionFunc adapts a function to FusionCriterion.
type FusionFunc func(e *Engine, r, s *labelmap.Region, at voxel.Voxel) bool

// CheckFusion calls f.
func (f FusionFunc) CheckFusion(e *Engine, r, s *labelmap.Region, at voxel.Voxel) bool {
	return f(e, r, s, at)
}

// AlwaysPropagate is the default propagation criterion.
type AlwaysPropagate struct{}

// ContinuePropagation always returns true.
func (AlwaysPropagate) ContinuePropagation(*Engine, voxel.Voxel, voxel.Voxel) bool { return true }

// MonotonicPropagation only lets a region advance in the flood direction: onto values
// not lower than the current one when rising, not higher when falling.
type MonotonicPropagation struct{}

// ContinuePropagation implements PropagationCriterion.
func (MonotonicPropagation) ContinuePropagation(e *Engine, current, next voxel.Voxel) bool {
	if e.Decreasing() {
		return next.Value <= current.Value
	}
	return next.Value >= current.Value
}

// ScoreThreshold stops propagation at a score-map value: a rising flood only enters
// voxels strictly below Threshold, a falling flood only voxels strictly above it.
type ScoreThreshold struct {
	Threshold float64
}

// ContinuePropagation implements PropagationCriterion.
func (c ScoreThreshold) ContinuePropagation(e *Engine, _, next voxel.Voxel) bool {
	if e.Decreasing() {
		return next.Value > c.Threshold
	}
	return next.Value < c.Threshold
}

// ImageThreshold stops propagation on an auxiliary image, independently of the flood
// direction. With StopBelow set, voxels whose value is below Threshold are refused;
// otherwise voxels above it are.
type ImageThreshold struct {
	Image     *voxel.Image
	Threshold float64
	StopBelow bool
}

// ContinuePropagation implements PropagationCriterion.
func (c ImageThreshold) ContinuePropagation(_ *Engine, _, next voxel.Voxel) bool {
	v := c.Image.At(next.Point)
	if c.StopBelow {
		return v >= c.Threshold
	}
	return v <= c.Threshold
}

// CheckDims implements DimsChecker.
func (c ImageThreshold) CheckDims(dims voxel.Dims) error {
	if c.Image == nil {
		return errors.New("image threshold without an image")
	}
	return voxel.SameDims(dims, c.Image.Dims())
}

type allPropagation []PropagationCriterion

// AllPropagation is satisfied when every criterion is.
func AllPropagation(criteria ...PropagationCriterion) PropagationCriterion {
	return allPropagation(criteria)
}

func (a allPropagation) ContinuePropagation(e *Engine, current, next voxel.Voxel) bool {
	for _, c := range a {
		if !c.ContinuePropagation(e, current, next) {
			return false
		}
	}
	return true
}

func (a allPropagation) CheckDims(dims voxel.Dims) error {
	for _, c := range a {
		if dc, ok := c.(DimsChecker); ok {
			if err := dc.CheckDims(dims); err != nil {
				return err
			}
		}
	}
	return nil
}

// NeverFuse is the default fusion criterion.
type NeverFuse struct{}

// CheckFusion always returns false.
func (NeverFuse) CheckFusion(*Engine, *labelmap.Region, *labelmap.Region, voxel.Voxel) bool {
	return false
}

// SizeFusion merges two regions when either holds fewer than MinSize voxels.
type SizeFusion struct {
	MinSize int
}

// CheckFusion implements FusionCriterion.
func (c SizeFusion) CheckFusion(_ *Engine, r, s *labelmap.Region, _ voxel.Voxel) bool {
	return r.Size() < c.MinSize || s.Size() < c.MinSize
}

// NumberFusion merges regions while more than Target of them are alive.
type NumberFusion struct {
	Target int
}

// CheckFusion implements FusionCriterion.
func (c NumberFusion) CheckFusion(e *Engine, _, _ *labelmap.Region, _ voxel.Voxel) bool {
	return e.RegionCount() > c.Target
}

// AllFusion is satisfied when every criterion is.
func AllFusion(criteria ...FusionCriterion) FusionCriterion {
	return FusionFunc(func(e *Engine, r, s *labelmap.Region, at voxel.Voxel) bool {
		for _, c := range criteria {
			if !c.CheckFusion(e, r, s, at) {
				return false
			}
		}
		return true
	})
}

// AnyFusion is satisfied when at least one criterion is.
func AnyFusion(criteria ...FusionCriterion) FusionCriterion {
	return FusionFunc(func(e *Engine, r, s *labelmap.Region, at voxel.Voxel) bool {
		for _, c := range criteria {
			if c.CheckFusion(e, r, s, at) {
				return true
			}
		}
		return false
	})
}
