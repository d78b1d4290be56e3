package seeds

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelseg/pkg/labelmap"
	"voxelseg/pkg/neighborhood"
	"voxelseg/pkg/voxel"
)

// createTestImage builds a planar image from rows of values.
func createTestImage(t *testing.T, rows ...[]float64) *voxel.Image {
	t.Helper()
	dims := voxel.Dims{Width: len(rows[0]), Height: len(rows), Depth: 1}
	img, err := voxel.NewImage(dims)
	require.NoError(t, err)
	for y, row := range rows {
		for x, v := range row {
			img.Set(voxel.Point{X: x, Y: y}, v)
		}
	}
	return img
}

func TestComponents(t *testing.T) {
	img := createTestImage(t,
		[]float64{1, 0, 0, 1},
		[]float64{0, 1, 0, 1},
		[]float64{0, 0, 0, 0},
		[]float64{1, 1, 0, 1},
	)
	mask := voxel.MaskFromImage(img, func(v float64) bool { return v > 0 })

	tests := []struct {
		name  string
		nbh   *neighborhood.Neighborhood
		sizes []int
	}{
		{"4-connected", neighborhood.LowConnectivity(false), []int{1, 2, 1, 2, 1}},
		{"8-connected", neighborhood.HighConnectivity(false), []int{2, 2, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comps := Components(mask, tt.nbh)
			sizes := make([]int, len(comps))
			for i, c := range comps {
				sizes[i] = len(c)
			}
			assert.Equal(t, tt.sizes, sizes)
			assert.Equal(t, voxel.Point{X: 0, Y: 0}, comps[0][0], "scan order")
		})
	}
}

func TestRegionalExtrema(t *testing.T) {
	img := createTestImage(t,
		[]float64{5, 5, 1, 0, 3},
		[]float64{1, 1, 1, 0, 0},
		[]float64{0, 2, 0, 0, 4},
	)
	nbh := neighborhood.LowConnectivity(false)

	maxima := RegionalExtrema(img, nil, nbh, true, math.Inf(-1))
	require.Len(t, maxima, 4)
	assert.ElementsMatch(t, []voxel.Point{{X: 0, Y: 0}, {X: 1, Y: 0}}, maxima[0], "plateau of 5")
	assert.Equal(t, []voxel.Point{{X: 4, Y: 0}}, maxima[1])
	assert.Equal(t, []voxel.Point{{X: 1, Y: 2}}, maxima[2])
	assert.Equal(t, []voxel.Point{{X: 4, Y: 2}}, maxima[3])

	strong := RegionalExtrema(img, nil, nbh, true, 4)
	assert.Len(t, strong, 2, "only 5 and 4 pass the threshold")

	minima := RegionalExtrema(img, nil, nbh, false, math.Inf(1))
	require.Len(t, minima, 2)
	assert.Len(t, minima[0], 5, "the zero plateau on the right")
	assert.Equal(t, []voxel.Point{{X: 0, Y: 2}}, minima[1])
}

func TestRegionalExtremaRespectsMask(t *testing.T) {
	img := createTestImage(t, []float64{9, 1, 0, 2})
	mask, err := voxel.FullMask(img.Dims())
	require.NoError(t, err)
	mask.Set(voxel.Point{X: 0}, false)

	maxima := RegionalExtrema(img, mask, neighborhood.LowConnectivity(false), true, math.Inf(-1))
	assert.Equal(t, [][]voxel.Point{{{X: 1}}, {{X: 3}}}, maxima,
		"the masked 9 neither seeds nor hides the 1 next to it")
}

func TestRegionalExtremaSkipsNaN(t *testing.T) {
	img := createTestImage(t, []float64{math.NaN(), 1, 0})
	maxima := RegionalExtrema(img, nil, neighborhood.LowConnectivity(false), true, math.Inf(-1))
	assert.Equal(t, [][]voxel.Point{{{X: 1}}}, maxima)
}

func TestFromLabelMap(t *testing.T) {
	lm, err := labelmap.New(voxel.Dims{Width: 3, Height: 2, Depth: 1})
	require.NoError(t, err)
	lm.Set(voxel.Point{X: 2, Y: 0}, 7)
	lm.Set(voxel.Point{X: 0, Y: 1}, 7)
	lm.Set(voxel.Point{X: 1, Y: 1}, 2)

	comps := FromLabelMap(lm)
	assert.Equal(t, [][]voxel.Point{
		{{X: 1, Y: 1}},
		{{X: 2, Y: 0}, {X: 0, Y: 1}},
	}, comps)
}
