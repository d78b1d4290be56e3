package cluster

import (
	"math"

	"github.com/pkg/errors"

	"voxelseg/pkg/voxel"
)

// ContactStrategy scores an interface by the negated number of distinct voxel pairs
// along it, so the longest boundaries come first. Pairs merge while they share at
// least minContact voxel pairs.
func ContactStrategy(minContact int) Strategy {
	return Strategy{
		Name:    "contact",
		AddPair: storeBoth,
		Update: func(i *Interface) float64 {
			if i.Pairs() == 0 {
				return math.NaN()
			}
			return -float64(i.Pairs())
		},
		CheckFusion: func(i *Interface) bool {
			return i.Value <= -float64(minContact)
		},
	}
}

// EdgeStrategy scores an interface by the mean of edgeMap over its boundary voxels.
// Pairs merge while the mean stays below threshold, i.e. where no edge separates them.
func EdgeStrategy(edgeMap *voxel.Image, threshold float64) Strategy {
	return Strategy{
		Name:    "edge",
		AddPair: storeBoth,
		Update: func(i *Interface) float64 {
			if len(i.Voxels) == 0 {
				return math.NaN()
			}
			sum := 0.0
			for _, p := range SortedPoints(i.Voxels) {
				sum += edgeMap.At(p)
			}
			return sum / float64(len(i.Voxels))
		},
		CheckFusion: func(i *Interface) bool {
			return i.Value < threshold
		},
		Validate: func(dims voxel.Dims) error {
			if edgeMap == nil {
				return errors.New("nil edge map")
			}
			return voxel.SameDims(dims, edgeMap.Dims())
		},
	}
}
