// Package scalespace derives score maps from an intensity stack: Gaussian smoothing at
// several scales, gradient magnitude and value inversion.
package scalespace

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"voxelseg/pkg/voxel"
)

// ErrInvalidSigma indicates a negative or NaN smoothing scale.
var ErrInvalidSigma = errors.New("scalespace: sigma must be a non-negative number")

// kernel returns a normalised Gaussian of radius ceil(3 sigma).
func kernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	k := make([]float64, 2*radius+1)
	for i := range k {
		d := float64(i - radius)
		k[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(k), k)
	return k
}

// Gaussian smooths img with an isotropic Gaussian of standard deviation sigma, one axis
// at a time. Planes are smoothed along z as well when img is a volume.
//
// Parameters:
//   - img: Input intensity or score map
//   - sigma: Standard deviation in voxels; 0 returns a copy of img
//
// Returns:
//   - A new smoothed image of the same extent
//   - ErrInvalidSigma for a negative or NaN sigma
func Gaussian(img *voxel.Image, sigma float64) (*voxel.Image, error) {
	if math.IsNaN(sigma) || sigma < 0 {
		return nil, errors.Wrapf(ErrInvalidSigma, "sigma %v", sigma)
	}
	out := img.Clone()
	if sigma == 0 {
		return out, nil
	}
	k := kernel(sigma)
	dims := img.Dims()
	data := out.Data()

	// stride and length describe the lines along one axis: a line starting at index s
	// visits s, s+stride, ... for length samples.
	type axis struct{ length, stride int }
	axes := []axis{
		{dims.Width, 1},
		{dims.Height, dims.Width},
	}
	if dims.Is3D() {
		axes = append(axes, axis{dims.Depth, dims.Width * dims.Height})
	}

	for _, ax := range axes {
		if ax.length < 2 {
			continue
		}
		f := newLineFilter(k, ax.length)
		line := make([]float64, ax.length)
		for start := range data {
			// A line starts wherever the coordinate along this axis is 0.
			if (start/ax.stride)%ax.length != 0 {
				continue
			}
			for i := range line {
				line[i] = data[start+i*ax.stride]
			}
			f.apply(line, line)
			for i, v := range line {
				data[start+i*ax.stride] = v
			}
		}
	}
	return out, nil
}

// Pyramid returns one smoothed copy of img per sigma, in order. The result is the
// score-map list of a multi-scale watershed.
func Pyramid(img *voxel.Image, sigmas []float64) ([]*voxel.Image, error) {
	out := make([]*voxel.Image, len(sigmas))
	for i, s := range sigmas {
		g, err := Gaussian(img, s)
		if err != nil {
			return nil, errors.Wrapf(err, "scale %d", i)
		}
		out[i] = g
	}
	return out, nil
}

// GradientMagnitude returns the central-difference gradient norm of img, with one-sided
// differences on the faces. Planar images have no z component.
func GradientMagnitude(img *voxel.Image) *voxel.Image {
	dims := img.Dims()
	out := img.Clone()
	grad := make([]float64, 0, 3)
	for idx := range out.Data() {
		p := dims.Point(idx)
		grad = grad[:0]
		grad = append(grad,
			derivative(img, p, voxel.Point{X: 1}, p.X, dims.Width),
			derivative(img, p, voxel.Point{Y: 1}, p.Y, dims.Height))
		if dims.Is3D() {
			grad = append(grad, derivative(img, p, voxel.Point{Z: 1}, p.Z, dims.Depth))
		}
		out.Data()[idx] = floats.Norm(grad, 2)
	}
	return out
}

// derivative is the first derivative of img at p along step. pos is p's coordinate on
// that axis and n the axis length.
func derivative(img *voxel.Image, p, step voxel.Point, pos, n int) float64 {
	back := voxel.Point{X: -step.X, Y: -step.Y, Z: -step.Z}
	switch {
	case n < 2:
		return 0
	case pos == 0:
		return img.At(p.Add(step)) - img.At(p)
	case pos == n-1:
		return img.At(p) - img.At(p.Add(back))
	}
	return (img.At(p.Add(step)) - img.At(p.Add(back))) / 2
}

// Invert maps every value v to max(img) - v, turning bright objects into basins.
func Invert(img *voxel.Image) *voxel.Image {
	out := img.Clone()
	data := out.Data()
	if len(data) == 0 {
		return out
	}
	top := floats.Max(data)
	for i, v := range data {
		data[i] = top - v
	}
	return out
}
