package scalespace

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"voxelseg/pkg/voxel"
)

// createTestImage fills an image of the given extent from a pattern function.
func createTestImage(t *testing.T, dims voxel.Dims, pattern func(p voxel.Point) float64) *voxel.Image {
	t.Helper()
	img, err := voxel.NewImage(dims)
	require.NoError(t, err)
	for idx := range img.Data() {
		img.Data()[idx] = pattern(dims.Point(idx))
	}
	return img
}

func TestKernelIsNormalised(t *testing.T) {
	for _, sigma := range []float64{0.5, 1, 2.5} {
		k := kernel(sigma)
		assert.Equal(t, 1, len(k)%2, "odd length")
		assert.InDelta(t, 1, floats.Sum(k), 1e-12)
		assert.Equal(t, k[0], k[len(k)-1], "symmetric")
	}
}

func TestGaussianRejectsBadSigma(t *testing.T) {
	img := createTestImage(t, voxel.Dims{Width: 4, Height: 4, Depth: 1}, func(voxel.Point) float64 { return 1 })
	_, err := Gaussian(img, -1)
	assert.True(t, errors.Is(err, ErrInvalidSigma))

	_, err = Pyramid(img, []float64{0, -2})
	assert.True(t, errors.Is(err, ErrInvalidSigma))
}

func TestGaussianZeroSigmaCopies(t *testing.T) {
	img := createTestImage(t, voxel.Dims{Width: 3, Height: 2, Depth: 1}, func(p voxel.Point) float64 {
		return float64(p.X + 10*p.Y)
	})
	out, err := Gaussian(img, 0)
	require.NoError(t, err)
	assert.Equal(t, img.Data(), out.Data())
	out.Data()[0] = 99
	assert.Equal(t, 0.0, img.Data()[0], "result does not alias the input")
}

func TestGaussianKeepsConstantImages(t *testing.T) {
	dims := voxel.Dims{Width: 9, Height: 7, Depth: 3}
	img := createTestImage(t, dims, func(voxel.Point) float64 { return 4 })
	out, err := Gaussian(img, 1.5)
	require.NoError(t, err)
	for idx, v := range out.Data() {
		assert.InDelta(t, 4, v, 1e-9, "voxel %+v, borders included", dims.Point(idx))
	}
}

func TestGaussianImpulse(t *testing.T) {
	dims := voxel.Dims{Width: 21, Height: 1, Depth: 1}
	img := createTestImage(t, dims, func(p voxel.Point) float64 {
		if p.X == 10 {
			return 1
		}
		return 0
	})
	out, err := Gaussian(img, 1)
	require.NoError(t, err)

	data := out.Data()
	assert.InDelta(t, 1, floats.Sum(data), 1e-9, "mass is preserved away from the ends")
	assert.Equal(t, 10, floats.MaxIdx(data))
	for d := 1; d <= 3; d++ {
		assert.InDelta(t, data[10-d], data[10+d], 1e-12)
		assert.Greater(t, data[10+d-1], data[10+d])
	}
	assert.InDelta(t, 0, data[0], 1e-9, "no wrap-around")
}

func TestGaussianSmoothsAlongZ(t *testing.T) {
	dims := voxel.Dims{Width: 1, Height: 1, Depth: 9}
	img := createTestImage(t, dims, func(p voxel.Point) float64 {
		if p.Z == 4 {
			return 1
		}
		return 0
	})
	out, err := Gaussian(img, 1)
	require.NoError(t, err)
	assert.Greater(t, out.At(voxel.Point{Z: 3}), 0.1)
	assert.Less(t, out.At(voxel.Point{Z: 4}), 1.0)
}

func TestPyramid(t *testing.T) {
	img := createTestImage(t, voxel.Dims{Width: 8, Height: 8, Depth: 1}, func(p voxel.Point) float64 {
		return float64((p.X * p.Y) % 5)
	})
	maps, err := Pyramid(img, []float64{0, 1, 2})
	require.NoError(t, err)
	require.Len(t, maps, 3)
	assert.Equal(t, img.Data(), maps[0].Data())

	spread := func(im *voxel.Image) float64 { return floats.Max(im.Data()) - floats.Min(im.Data()) }
	assert.Greater(t, spread(maps[0]), spread(maps[1]))
	assert.Greater(t, spread(maps[1]), spread(maps[2]))
}

func TestGradientMagnitude(t *testing.T) {
	tests := []struct {
		name     string
		dims     voxel.Dims
		pattern  func(p voxel.Point) float64
		expected float64
	}{
		{"ramp along x", voxel.Dims{Width: 5, Height: 3, Depth: 1}, func(p voxel.Point) float64 { return 2 * float64(p.X) }, 2},
		{"ramp along z", voxel.Dims{Width: 2, Height: 2, Depth: 4}, func(p voxel.Point) float64 { return float64(p.Z) }, 1},
		{"diagonal", voxel.Dims{Width: 4, Height: 4, Depth: 1}, func(p voxel.Point) float64 { return float64(3*p.X + 4*p.Y) }, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grad := GradientMagnitude(createTestImage(t, tt.dims, tt.pattern))
			for _, v := range grad.Data() {
				assert.InDelta(t, tt.expected, v, 1e-12)
			}
		})
	}
}

func TestInvert(t *testing.T) {
	img := createTestImage(t, voxel.Dims{Width: 3, Height: 1, Depth: 1}, func(p voxel.Point) float64 {
		return []float64{1, 5, 3}[p.X]
	})
	assert.Equal(t, []float64{4, 0, 2}, Invert(img).Data())
	assert.Equal(t, []float64{1, 5, 3}, img.Data())
}
