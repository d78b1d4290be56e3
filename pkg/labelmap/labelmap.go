// Package labelmap holds the integer-labelled voxel buffer produced by segmentation and
// the population of regions that owns its labels.
//
// Label 0 is reserved for background ("no region") and is never handed out to a region.
package labelmap

import (
	"sort"

	"voxelseg/pkg/voxel"
)

// Background is the label of unlabelled voxels.
const Background = 0

// LabelMap maps each voxel to the label of the region owning it.
type LabelMap struct {
	dims   voxel.Dims
	labels []int
}

// New allocates a label map with every voxel set to Background.
func New(dims voxel.Dims) (*LabelMap, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	return &LabelMap{dims: dims, labels: make([]int, dims.Size())}, nil
}

// Dims returns the extent of the map.
func (lm *LabelMap) Dims() voxel.Dims { return lm.dims }

// Get returns the label at p, or Background when p is out of bounds.
func (lm *LabelMap) Get(p voxel.Point) int {
	if !lm.dims.Contains(p) {
		return Background
	}
	return lm.labels[lm.dims.Index(p)]
}

// Set stores label at p. p must be inside the map.
func (lm *LabelMap) Set(p voxel.Point, label int) {
	lm.labels[lm.dims.Index(p)] = label
}

// Raw exposes the backing buffer in flat voxel order.
func (lm *LabelMap) Raw() []int { return lm.labels }

// Labels returns the distinct non-background labels in ascending order.
func (lm *LabelMap) Labels() []int {
	seen := make(map[int]struct{})
	for _, l := range lm.labels {
		if l != Background {
			seen[l] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Count returns the number of voxels carrying label.
func (lm *LabelMap) Count(label int) int {
	n := 0
	for _, l := range lm.labels {
		if l == label {
			n++
		}
	}
	return n
}

// Relabel rewrites every occurrence of from into to.
func (lm *LabelMap) Relabel(from, to int) {
	for i, l := range lm.labels {
		if l == from {
			lm.labels[i] = to
		}
	}
}

// Clone returns a deep copy.
func (lm *LabelMap) Clone() *LabelMap {
	labels := make([]int, len(lm.labels))
	copy(labels, lm.labels)
	return &LabelMap{dims: lm.dims, labels: labels}
}
