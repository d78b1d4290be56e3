// Package seeds extracts watershed seed components from masks, intensity maps and
// existing label maps. Every function returns components in scan order of their first
// voxel, so seed labels are reproducible.
package seeds

import (
	"math"

	"voxelseg/pkg/labelmap"
	"voxelseg/pkg/neighborhood"
	"voxelseg/pkg/voxel"
)

// flood collects the component of start: every voxel reachable through nbh on which
// accept holds. seen is shared between calls so each voxel is visited once.
func flood(start voxel.Point, dims voxel.Dims, nbh *neighborhood.Neighborhood, seen []bool, accept func(voxel.Point) bool) []voxel.Point {
	seen[dims.Index(start)] = true
	comp := []voxel.Point{start}
	for qi := 0; qi < len(comp); qi++ {
		nbh.ForEachMatching(comp[qi], dims, accept, func(q voxel.Point) {
			k := dims.Index(q)
			if !seen[k] {
				seen[k] = true
				comp = append(comp, q)
			}
		})
	}
	return comp
}

// Components labels the connected components of mask.
//
// Time:   O(N·d) for N voxels and d neighbours.
// Memory: O(N) for visited flags and output.
func Components(mask *voxel.Mask, nbh *neighborhood.Neighborhood) [][]voxel.Point {
	dims := mask.Dims()
	seen := make([]bool, dims.Size())
	var comps [][]voxel.Point
	for idx := 0; idx < dims.Size(); idx++ {
		p := dims.Point(idx)
		if seen[idx] || !mask.Contains(p) {
			continue
		}
		comps = append(comps, flood(p, dims, nbh, seen, mask.Contains))
	}
	return comps
}

// RegionalExtrema returns the regional maxima (or minima) of img inside mask: connected
// plateaus of equal value with no masked neighbour strictly above (below) them. A
// plateau is kept only if its value is at least threshold for maxima, at most threshold
// for minima. NaN voxels never seed. mask may be nil.
func RegionalExtrema(img *voxel.Image, mask *voxel.Mask, nbh *neighborhood.Neighborhood, maxima bool, threshold float64) [][]voxel.Point {
	dims := img.Dims()
	inside := func(p voxel.Point) bool { return mask == nil || mask.Contains(p) }
	beyond := func(a, b float64) bool {
		if maxima {
			return a > b
		}
		return a < b
	}

	seen := make([]bool, dims.Size())
	var comps [][]voxel.Point
	for idx := 0; idx < dims.Size(); idx++ {
		p := dims.Point(idx)
		if seen[idx] || !inside(p) {
			continue
		}
		value := img.At(p)
		plateau := flood(p, dims, nbh, seen, func(q voxel.Point) bool {
			return inside(q) && img.At(q) == value
		})
		if math.IsNaN(value) || beyond(threshold, value) {
			continue
		}
		extremum := true
		for _, v := range plateau {
			nbh.ForEachMatching(v, dims, inside, func(q voxel.Point) {
				if beyond(img.At(q), value) {
					extremum = false
				}
			})
			if !extremum {
				break
			}
		}
		if extremum {
			comps = append(comps, plateau)
		}
	}
	return comps
}

// FromLabelMap returns one component per label of lm, in ascending label order. The
// components need not be connected.
func FromLabelMap(lm *labelmap.LabelMap) [][]voxel.Point {
	labels := lm.Labels()
	slot := make(map[int]int, len(labels))
	for i, l := range labels {
		slot[l] = i
	}
	comps := make([][]voxel.Point, len(labels))
	dims := lm.Dims()
	for idx, l := range lm.Raw() {
		if l == labelmap.Background {
			continue
		}
		comps[slot[l]] = append(comps[slot[l]], dims.Point(idx))
	}
	return comps
}
