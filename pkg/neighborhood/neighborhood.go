// Package neighborhood enumerates the relative offsets of an ellipsoidal voxel
// neighbourhood. The offset table is computed once per radius configuration and then
// reused for every query; queries filter out-of-bounds neighbours and never index them.
package neighborhood

import (
	"math"

	"github.com/pkg/errors"

	"voxelseg/pkg/voxel"
)

// ErrInvalidRadius indicates a non-positive neighbourhood radius.
var ErrInvalidRadius = errors.New("neighborhood: radius must be positive")

// Neighborhood is an immutable table of offsets.
type Neighborhood struct {
	radius  float64
	zRadius float64
	is3D    bool
	offsets []voxel.Point
}

// New builds a 3D ellipsoidal neighbourhood: offset (dx, dy, dz) belongs to it when
// (dx²+dy²)/radius² + dz²/zRadius² ≤ 1. zRadius may differ from radius for
// anisotropic stacks; a zRadius below 1 yields no inter-plane neighbours.
func New(radius, zRadius float64, excludeCenter bool) (*Neighborhood, error) {
	if !(radius > 0) {
		return nil, errors.Wrapf(ErrInvalidRadius, "radius %v", radius)
	}
	if !(zRadius > 0) {
		return nil, errors.Wrapf(ErrInvalidRadius, "z radius %v", zRadius)
	}
	return build(radius, zRadius, true, excludeCenter), nil
}

// New2D builds a planar neighbourhood of the given radius.
func New2D(radius float64, excludeCenter bool) (*Neighborhood, error) {
	if !(radius > 0) {
		return nil, errors.Wrapf(ErrInvalidRadius, "radius %v", radius)
	}
	return build(radius, 0, false, excludeCenter), nil
}

// ForDims returns New2D(radius) for planar extents and New(radius, zRadius) otherwise.
func ForDims(dims voxel.Dims, radius, zRadius float64, excludeCenter bool) (*Neighborhood, error) {
	if dims.Is3D() {
		return New(radius, zRadius, excludeCenter)
	}
	return New2D(radius, excludeCenter)
}

// HighConnectivity is the 8-connected (2D) or 18-connected (3D) neighbourhood.
func HighConnectivity(is3D bool) *Neighborhood {
	if is3D {
		return build(1.5, 1.5, true, true)
	}
	return build(1.5, 0, false, true)
}

// LowConnectivity is the 4-connected (2D) or 6-connected (3D) neighbourhood.
func LowConnectivity(is3D bool) *Neighborhood {
	if is3D {
		return build(1, 1, true, true)
	}
	return build(1, 0, false, true)
}

func build(radius, zRadius float64, is3D, excludeCenter bool) *Neighborhood {
	n := &Neighborhood{radius: radius, zRadius: zRadius, is3D: is3D}
	r := int(math.Floor(radius))
	rz := 0
	if is3D {
		rz = int(math.Floor(zRadius))
	}
	r2 := radius * radius
	rz2 := zRadius * zRadius
	for dz := -rz; dz <= rz; dz++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if excludeCenter && dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				d := float64(dx*dx+dy*dy) / r2
				if dz != 0 {
					d += float64(dz*dz) / rz2
				}
				if d > 1 {
					continue
				}
				n.offsets = append(n.offsets, voxel.Point{X: dx, Y: dy, Z: dz})
			}
		}
	}
	return n
}

// Radius returns the in-plane radius.
func (n *Neighborhood) Radius() float64 { return n.radius }

// ZRadius returns the inter-plane radius, 0 for planar neighbourhoods.
func (n *Neighborhood) ZRadius() float64 { return n.zRadius }

// Is3D reports whether the table has inter-plane offsets enabled.
func (n *Neighborhood) Is3D() bool { return n.is3D }

// Size is the number of offsets.
func (n *Neighborhood) Size() int { return len(n.offsets) }

// Offsets returns a copy of the offset table, ordered by dz, dy, dx.
func (n *Neighborhood) Offsets() []voxel.Point {
	out := make([]voxel.Point, len(n.offsets))
	copy(out, n.offsets)
	return out
}

// ForEach calls fn for every neighbour of p inside dims.
func (n *Neighborhood) ForEach(p voxel.Point, dims voxel.Dims, fn func(q voxel.Point)) {
	for _, o := range n.offsets {
		q := p.Add(o)
		if dims.Contains(q) {
			fn(q)
		}
	}
}

// ForEachMatching calls fn for every in-bounds neighbour of p accepted by accept. It is
// the constrained variant used to stay inside one compartment of a label map.
func (n *Neighborhood) ForEachMatching(p voxel.Point, dims voxel.Dims, accept func(q voxel.Point) bool, fn func(q voxel.Point)) {
	for _, o := range n.offsets {
		q := p.Add(o)
		if dims.Contains(q) && accept(q) {
			fn(q)
		}
	}
}

// Neighbors returns the in-bounds neighbours of p.
func (n *Neighborhood) Neighbors(p voxel.Point, dims voxel.Dims) []voxel.Point {
	out := make([]voxel.Point, 0, len(n.offsets))
	n.ForEach(p, dims, func(q voxel.Point) { out = append(out, q) })
	return out
}

// Forward returns the half of the table that follows the origin in scan order. Visiting
// only forward offsets from every voxel enumerates each unordered pair once.
func (n *Neighborhood) Forward() *Neighborhood {
	half := &Neighborhood{radius: n.radius, zRadius: n.zRadius, is3D: n.is3D}
	origin := voxel.Point{}
	for _, o := range n.offsets {
		if voxel.ComparePoints(o, origin) > 0 {
			half.offsets = append(half.offsets, o)
		}
	}
	return half
}
