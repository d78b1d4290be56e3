// Package voxel provides the voxel-addressable buffers shared by the segmentation
// packages: integer coordinates, prioritized voxels, float score maps and binary masks.
//
// All buffers use the same flat row-major layout, z*width*height + y*width + x, so a
// 2D image is simply a volume of depth 1.
package voxel

import (
	"math"
)

// Point is an integer voxel coordinate.
type Point struct {
	X, Y, Z int
}

// Add returns p translated by the offset o.
func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

// Voxel is a coordinate carrying the priority it had when it entered a frontier.
type Voxel struct {
	Point
	Value float64
}

// New returns a voxel at (x, y, z) with the given value.
func New(x, y, z int, value float64) Voxel {
	return Voxel{Point: Point{X: x, Y: y, Z: z}, Value: value}
}

// Compare orders voxels by value, ascending unless decreasing is set, then by Z, Y and
// X. NaN values sort after every number in both directions. The order is total: two
// voxels compare equal only if they share coordinates and value.
func Compare(a, b Voxel, decreasing bool) int {
	if c := compareValues(a.Value, b.Value, decreasing); c != 0 {
		return c
	}
	return ComparePoints(a.Point, b.Point)
}

// ComparePoints orders points by Z, then Y, then X.
func ComparePoints(a, b Point) int {
	switch {
	case a.Z != b.Z:
		return sign(a.Z - b.Z)
	case a.Y != b.Y:
		return sign(a.Y - b.Y)
	default:
		return sign(a.X - b.X)
	}
}

func compareValues(a, b float64, decreasing bool) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	}
	if decreasing {
		a, b = b, a
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	default:
		return 0
	}
}
