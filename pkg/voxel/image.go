package voxel

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidDims indicates a buffer extent with a non-positive side.
	ErrInvalidDims = errors.New("voxel: width, height and depth must be positive")
	// ErrDimensionMismatch indicates two buffers that should share an extent do not.
	ErrDimensionMismatch = errors.New("voxel: dimension mismatch")
)

// Dims is the extent of a voxel buffer. Depth is 1 for 2D images.
type Dims struct {
	Width, Height, Depth int
}

// Validate returns ErrInvalidDims if any side is not positive.
func (d Dims) Validate() error {
	if d.Width <= 0 || d.Height <= 0 || d.Depth <= 0 {
		return errors.Wrapf(ErrInvalidDims, "got %dx%dx%d", d.Width, d.Height, d.Depth)
	}
	return nil
}

// Size is the number of voxels.
func (d Dims) Size() int {
	return d.Width * d.Height * d.Depth
}

// Is3D reports whether the buffer has more than one plane.
func (d Dims) Is3D() bool {
	return d.Depth > 1
}

// Contains reports whether p lies inside the buffer.
func (d Dims) Contains(p Point) bool {
	return p.X >= 0 && p.X < d.Width &&
		p.Y >= 0 && p.Y < d.Height &&
		p.Z >= 0 && p.Z < d.Depth
}

// OnBorder reports whether p lies on the outer faces of the buffer. The z faces only
// count for 3D buffers.
func (d Dims) OnBorder(p Point) bool {
	if p.X == 0 || p.Y == 0 || p.X == d.Width-1 || p.Y == d.Height-1 {
		return true
	}
	return d.Is3D() && (p.Z == 0 || p.Z == d.Depth-1)
}

// Index returns the flat offset of p. The caller must ensure Contains(p).
func (d Dims) Index(p Point) int {
	return p.Z*d.Width*d.Height + p.Y*d.Width + p.X
}

// Point is the inverse of Index.
func (d Dims) Point(idx int) Point {
	plane := d.Width * d.Height
	z := idx / plane
	rem := idx - z*plane
	return Point{X: rem % d.Width, Y: rem / d.Width, Z: z}
}

// Image is a scalar voxel buffer, typically an intensity stack or a score map.
type Image struct {
	dims Dims
	data []float64
}

// NewImage allocates a zero-filled image.
func NewImage(dims Dims) (*Image, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	return &Image{dims: dims, data: make([]float64, dims.Size())}, nil
}

// ImageFromData wraps data without copying. len(data) must equal dims.Size().
func ImageFromData(dims Dims, data []float64) (*Image, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	if len(data) != dims.Size() {
		return nil, errors.Wrapf(ErrDimensionMismatch, "%d values for %dx%dx%d",
			len(data), dims.Width, dims.Height, dims.Depth)
	}
	return &Image{dims: dims, data: data}, nil
}

// Dims returns the image extent.
func (im *Image) Dims() Dims { return im.dims }

// Data exposes the backing buffer.
func (im *Image) Data() []float64 { return im.data }

// At returns the value at p. p must be inside the image.
func (im *Image) At(p Point) float64 {
	return im.data[im.dims.Index(p)]
}

// Set stores v at p. p must be inside the image.
func (im *Image) Set(p Point, v float64) {
	im.data[im.dims.Index(p)] = v
}

// Clone returns a deep copy.
func (im *Image) Clone() *Image {
	data := make([]float64, len(im.data))
	copy(data, im.data)
	return &Image{dims: im.dims, data: data}
}

// Mask is a binary voxel buffer delimiting where regions may exist.
type Mask struct {
	dims Dims
	data []bool
}

// NewMask allocates an empty mask.
func NewMask(dims Dims) (*Mask, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	return &Mask{dims: dims, data: make([]bool, dims.Size())}, nil
}

// FullMask returns a mask containing every voxel.
func FullMask(dims Dims) (*Mask, error) {
	m, err := NewMask(dims)
	if err != nil {
		return nil, err
	}
	for i := range m.data {
		m.data[i] = true
	}
	return m, nil
}

// MaskFromImage builds a mask holding every voxel of img for which keep returns true.
func MaskFromImage(img *Image, keep func(float64) bool) *Mask {
	m := &Mask{dims: img.dims, data: make([]bool, len(img.data))}
	for i, v := range img.data {
		m.data[i] = keep(v)
	}
	return m
}

// Dims returns the mask extent.
func (m *Mask) Dims() Dims { return m.dims }

// Contains reports whether p is inside the buffer and set. Out-of-bounds points are
// never indexed.
func (m *Mask) Contains(p Point) bool {
	return m.dims.Contains(p) && m.data[m.dims.Index(p)]
}

// Set marks or clears p. p must be inside the mask.
func (m *Mask) Set(p Point, v bool) {
	m.data[m.dims.Index(p)] = v
}

// Count returns the number of set voxels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.data {
		if v {
			n++
		}
	}
	return n
}

// Invert returns the complement of m.
func (m *Mask) Invert() *Mask {
	out := &Mask{dims: m.dims, data: make([]bool, len(m.data))}
	for i, v := range m.data {
		out.data[i] = !v
	}
	return out
}

// SameDims returns ErrDimensionMismatch unless a and b are equal.
func SameDims(a, b Dims) error {
	if a != b {
		return errors.Wrapf(ErrDimensionMismatch, "%dx%dx%d vs %dx%dx%d",
			a.Width, a.Height, a.Depth, b.Width, b.Height, b.Depth)
	}
	return nil
}
