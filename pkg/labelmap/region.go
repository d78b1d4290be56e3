package labelmap

import (
	"gonum.org/v1/gonum/stat"

	"voxelseg/pkg/voxel"
)

// Region is a connected, exclusively owned set of voxels carrying one label.
type Region struct {
	// Label is unique among live regions, 1-based.
	Label int

	// Scale is the index of the score map the region grows from.
	Scale int

	// Voxels holds the members; Value is the priority a member had when absorbed.
	Voxels []voxel.Voxel
}

// Size is the number of member voxels.
func (r *Region) Size() int { return len(r.Voxels) }

// Points returns the member coordinates.
func (r *Region) Points() []voxel.Point {
	out := make([]voxel.Point, len(r.Voxels))
	for i, v := range r.Voxels {
		out[i] = v.Point
	}
	return out
}

// Bounds returns the inclusive bounding box of the region. ok is false for an empty
// region.
func (r *Region) Bounds() (min, max voxel.Point, ok bool) {
	if len(r.Voxels) == 0 {
		return min, max, false
	}
	min, max = r.Voxels[0].Point, r.Voxels[0].Point
	for _, v := range r.Voxels[1:] {
		if v.X < min.X {
			min.X = v.X
		}
		if v.Y < min.Y {
			min.Y = v.Y
		}
		if v.Z < min.Z {
			min.Z = v.Z
		}
		if v.X > max.X {
			max.X = v.X
		}
		if v.Y > max.Y {
			max.Y = v.Y
		}
		if v.Z > max.Z {
			max.Z = v.Z
		}
	}
	return min, max, true
}

// Stats returns the mean and standard deviation of img over the region.
func (r *Region) Stats(img *voxel.Image) (mean, std float64) {
	values := make([]float64, len(r.Voxels))
	for i, v := range r.Voxels {
		values[i] = img.At(v.Point)
	}
	return stat.MeanStdDev(values, nil)
}
