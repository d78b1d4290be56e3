package labelmap

import (
	"github.com/pkg/errors"

	"voxelseg/pkg/voxel"
)

var (
	// ErrVoxelOwned indicates a voxel claimed by a second live region.
	ErrVoxelOwned = errors.New("labelmap: voxel already belongs to a region")
	// ErrOutOfBounds indicates a voxel outside the label map.
	ErrOutOfBounds = errors.New("labelmap: voxel out of bounds")
)

// Population is an arena of regions indexed by label. Fused regions leave a nil
// tombstone in their slot so label lookups stay O(1); Compact renumbers the survivors.
type Population struct {
	lm      *LabelMap
	regions []*Region // regions[label], regions[0] is always nil
	alive   int
}

// NewPopulation returns an empty population over a fresh label map.
func NewPopulation(dims voxel.Dims) (*Population, error) {
	lm, err := New(dims)
	if err != nil {
		return nil, err
	}
	return &Population{lm: lm, regions: []*Region{nil}}, nil
}

// FromLabelMap builds a population from an existing label map. Labels are renumbered
// densely in ascending order of the original labels; lm itself is not modified. When
// img is non-nil the member values are read from it.
func FromLabelMap(lm *LabelMap, img *voxel.Image) (*Population, error) {
	if img != nil {
		if err := voxel.SameDims(lm.Dims(), img.Dims()); err != nil {
			return nil, err
		}
	}
	pop, err := NewPopulation(lm.Dims())
	if err != nil {
		return nil, err
	}
	remap := make(map[int]*Region)
	for _, l := range lm.Labels() {
		r := &Region{Label: len(pop.regions)}
		pop.regions = append(pop.regions, r)
		pop.alive++
		remap[l] = r
	}
	dims := lm.Dims()
	for idx, l := range lm.labels {
		if l == Background {
			continue
		}
		r := remap[l]
		p := dims.Point(idx)
		v := voxel.Voxel{Point: p}
		if img != nil {
			v.Value = img.At(p)
		}
		r.Voxels = append(r.Voxels, v)
		pop.lm.labels[idx] = r.Label
	}
	return pop, nil
}

// LabelMap returns the label map kept in sync with the regions.
func (p *Population) LabelMap() *LabelMap { return p.lm }

// Dims returns the extent of the label map.
func (p *Population) Dims() voxel.Dims { return p.lm.dims }

// Add creates a region with the next free label from the given voxels. It fails
// without side effects if a voxel is out of bounds or already owned.
func (p *Population) Add(scale int, voxels []voxel.Voxel) (*Region, error) {
	label := len(p.regions)
	seen := make(map[voxel.Point]struct{}, len(voxels))
	for _, v := range voxels {
		if !p.lm.dims.Contains(v.Point) {
			return nil, errors.Wrapf(ErrOutOfBounds, "%+v", v.Point)
		}
		if _, dup := seen[v.Point]; dup || p.lm.Get(v.Point) != Background {
			return nil, errors.Wrapf(ErrVoxelOwned, "%+v", v.Point)
		}
		seen[v.Point] = struct{}{}
	}
	r := &Region{Label: label, Scale: scale, Voxels: append([]voxel.Voxel(nil), voxels...)}
	for _, v := range voxels {
		p.lm.Set(v.Point, label)
	}
	p.regions = append(p.regions, r)
	p.alive++
	return r, nil
}

// Absorb assigns v to r, writing the label map. The caller guarantees v is free.
func (p *Population) Absorb(r *Region, v voxel.Voxel) {
	r.Voxels = append(r.Voxels, v)
	p.lm.Set(v.Point, r.Label)
}

// Get returns the live region with the given label, or nil.
func (p *Population) Get(label int) *Region {
	if label <= Background || label >= len(p.regions) {
		return nil
	}
	return p.regions[label]
}

// At returns the live region owning pt, or nil.
func (p *Population) At(pt voxel.Point) *Region {
	return p.Get(p.lm.Get(pt))
}

// Count returns the number of live regions.
func (p *Population) Count() int { return p.alive }

// Alive returns the live regions in ascending label order.
func (p *Population) Alive() []*Region {
	out := make([]*Region, 0, p.alive)
	for _, r := range p.regions {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Fuse merges a and b. The region with the smaller label absorbs the other, whose slot
// is tombstoned. Both must be live members of p. The survivor is returned.
func (p *Population) Fuse(a, b *Region) *Region {
	if a == b {
		return a
	}
	keep, drop := a, b
	if drop.Label < keep.Label {
		keep, drop = drop, keep
	}
	for _, v := range drop.Voxels {
		p.lm.Set(v.Point, keep.Label)
	}
	keep.Voxels = append(keep.Voxels, drop.Voxels...)
	p.regions[drop.Label] = nil
	drop.Voxels = nil
	p.alive--
	return keep
}

// Compact returns a new population whose live regions are renumbered 1..n in
// ascending order of their current labels. Regions are copied; p is left unchanged.
func (p *Population) Compact() *Population {
	lm := &LabelMap{dims: p.lm.dims, labels: make([]int, len(p.lm.labels))}
	out := &Population{lm: lm, regions: []*Region{nil}}
	for _, r := range p.Alive() {
		nr := &Region{
			Label:  len(out.regions),
			Scale:  r.Scale,
			Voxels: append([]voxel.Voxel(nil), r.Voxels...),
		}
		for _, v := range nr.Voxels {
			lm.Set(v.Point, nr.Label)
		}
		out.regions = append(out.regions, nr)
		out.alive++
	}
	return out
}
