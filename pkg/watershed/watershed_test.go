package watershed

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelseg/pkg/cluster"
	"voxelseg/pkg/labelmap"
	"voxelseg/pkg/neighborhood"
	"voxelseg/pkg/voxel"
)

// createScoreMap builds a planar score map from a pattern function.
func createScoreMap(t *testing.T, width, height int, pattern func(x, y int) float64) *voxel.Image {
	t.Helper()
	img, err := voxel.NewImage(voxel.Dims{Width: width, Height: height, Depth: 1})
	require.NoError(t, err)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(voxel.Point{X: x, Y: y}, pattern(x, y))
		}
	}
	return img
}

// createLine builds a 1-pixel-high score map from values.
func createLine(t *testing.T, values ...float64) *voxel.Image {
	t.Helper()
	return createScoreMap(t, len(values), 1, func(x, _ int) float64 { return values[x] })
}

func seedsAt(points ...voxel.Point) [][]voxel.Point {
	out := make([][]voxel.Point, len(points))
	for i, p := range points {
		out[i] = []voxel.Point{p}
	}
	return out
}

func runEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, e.Run())
	return e
}

func labelsOf(lm *labelmap.LabelMap) []int {
	return append([]int(nil), lm.Raw()...)
}

func TestFlatImageTwoSeeds(t *testing.T) {
	flat := createScoreMap(t, 5, 5, func(int, int) float64 { return 1 })
	cfg := Config{
		ScoreMaps: []*voxel.Image{flat},
		Seeds:     [][][]voxel.Point{seedsAt(voxel.Point{X: 0, Y: 0}, voxel.Point{X: 4, Y: 4})},
	}
	e := runEngine(t, cfg)

	lm := e.LabelImage()
	for _, l := range lm.Raw() {
		assert.Contains(t, []int{1, 2}, l)
	}
	// Equal scores are expanded in scan order, so the first seed floods everything the
	// second seed has not claimed yet.
	assert.Equal(t, 24, lm.Count(1))
	assert.Equal(t, 1, lm.Count(2))
	assert.Equal(t, 2, lm.Get(voxel.Point{X: 4, Y: 4}))

	again := runEngine(t, Config{
		ScoreMaps: []*voxel.Image{flat},
		Seeds:     [][][]voxel.Point{seedsAt(voxel.Point{X: 0, Y: 0}, voxel.Point{X: 4, Y: 4})},
	})
	assert.Equal(t, labelsOf(lm), labelsOf(again.LabelImage()), "runs are deterministic")
}

func TestTwoBasinsSplitAtRidge(t *testing.T) {
	line := createLine(t, 0, 1, 2, 3, 2, 1, 0)
	e := runEngine(t, Config{
		ScoreMaps: []*voxel.Image{line},
		Seeds:     [][][]voxel.Point{seedsAt(voxel.Point{X: 0}, voxel.Point{X: 6})},
	})

	assert.Equal(t, []int{1, 1, 1, 1, 2, 2, 2}, labelsOf(e.LabelImage()))
	regions := e.ObjectPopulation()
	require.Len(t, regions, 2)
	assert.Equal(t, 4, regions[0].Size())
	assert.Equal(t, 3, regions[1].Size())
}

func TestDecreasingFloodStartsFromMaxima(t *testing.T) {
	line := createLine(t, 5, 4, 1, 3, 9)
	e := runEngine(t, Config{
		ScoreMaps:  []*voxel.Image{line},
		Seeds:      [][][]voxel.Point{seedsAt(voxel.Point{X: 0}, voxel.Point{X: 4})},
		Decreasing: true,
	})
	// 9 claims 3 and 5 claims 4. 4 outranks 3, so region 1 reaches the valley first.
	assert.Equal(t, []int{1, 1, 1, 2, 2}, labelsOf(e.LabelImage()))
}

func TestPartitionRespectsMask(t *testing.T) {
	flat := createScoreMap(t, 5, 5, func(int, int) float64 { return 0 })
	mask := voxel.MaskFromImage(createScoreMap(t, 5, 5, func(x, _ int) float64 { return float64(x) }),
		func(v float64) bool { return v != 2 })

	e := runEngine(t, Config{
		ScoreMaps: []*voxel.Image{flat},
		Mask:      mask,
		Seeds:     [][][]voxel.Point{seedsAt(voxel.Point{X: 0, Y: 0})},
	})

	lm := e.LabelImage()
	for idx, l := range lm.Raw() {
		p := lm.Dims().Point(idx)
		if p.X < 2 {
			assert.Equal(t, 1, l, "reachable voxel %+v", p)
		} else {
			assert.Equal(t, labelmap.Background, l, "wall or unreachable voxel %+v", p)
		}
	}
	assert.Equal(t, 10, e.Stats().Labelled)
}

func TestSeedOutsideMaskIsDropped(t *testing.T) {
	line := createLine(t, 0, 0, 0)
	mask, err := voxel.NewMask(line.Dims())
	require.NoError(t, err)
	mask.Set(voxel.Point{X: 0}, true)

	e := runEngine(t, Config{
		ScoreMaps: []*voxel.Image{line},
		Mask:      mask,
		Seeds:     [][][]voxel.Point{seedsAt(voxel.Point{X: 0}, voxel.Point{X: 2})},
	})
	assert.Equal(t, []int{1, 0, 0}, labelsOf(e.LabelImage()))
	assert.Equal(t, 1, e.Stats().Seeds)
}

func TestMonotonicPropagation(t *testing.T) {
	line := createLine(t, 0, 1, 0.5, 2)
	e := runEngine(t, Config{
		ScoreMaps:   []*voxel.Image{line},
		Seeds:       [][][]voxel.Point{seedsAt(voxel.Point{X: 0})},
		Propagation: MonotonicPropagation{},
	})
	assert.Equal(t, []int{1, 1, 0, 0}, labelsOf(e.LabelImage()))
}

func TestThresholdPropagation(t *testing.T) {
	line := createLine(t, 0, 1, 2, 3, 4)

	rising := runEngine(t, Config{
		ScoreMaps:   []*voxel.Image{line},
		Seeds:       [][][]voxel.Point{seedsAt(voxel.Point{X: 0})},
		Propagation: ScoreThreshold{Threshold: 3},
	})
	assert.Equal(t, []int{1, 1, 1, 0, 0}, labelsOf(rising.LabelImage()))

	falling := runEngine(t, Config{
		ScoreMaps:   []*voxel.Image{line},
		Seeds:       [][][]voxel.Point{seedsAt(voxel.Point{X: 4})},
		Decreasing:  true,
		Propagation: ScoreThreshold{Threshold: 1},
	})
	assert.Equal(t, []int{0, 0, 1, 1, 1}, labelsOf(falling.LabelImage()))

	aux := createLine(t, 9, 9, 0, 9, 9)
	combined := runEngine(t, Config{
		ScoreMaps: []*voxel.Image{line},
		Seeds:     [][][]voxel.Point{seedsAt(voxel.Point{X: 0})},
		Propagation: AllPropagation(
			MonotonicPropagation{},
			ImageThreshold{Image: aux, Threshold: 5, StopBelow: true},
		),
	})
	assert.Equal(t, []int{1, 1, 0, 0, 0}, labelsOf(combined.LabelImage()))
}

func TestSizeFusion(t *testing.T) {
	line := createLine(t, 0, 0, 0, 0, 0, 0)
	e := runEngine(t, Config{
		ScoreMaps:    []*voxel.Image{line},
		Seeds:        [][][]voxel.Point{seedsAt(voxel.Point{X: 0}, voxel.Point{X: 5})},
		Fusion:       SizeFusion{MinSize: 2},
		Neighborhood: neighborhood.LowConnectivity(false),
	})

	assert.Equal(t, []int{1, 1, 1, 1, 1, 1}, labelsOf(e.LabelImage()))
	assert.Len(t, e.ObjectPopulation(), 1)
	assert.Equal(t, 1, e.Stats().Fusions)
}

func TestNumberFusionStopsAtTarget(t *testing.T) {
	line := createLine(t, 0, 1, 0, 1, 0, 1, 0)
	seeds := seedsAt(voxel.Point{X: 0}, voxel.Point{X: 2}, voxel.Point{X: 4}, voxel.Point{X: 6})

	e := runEngine(t, Config{
		ScoreMaps: []*voxel.Image{line},
		Seeds:     [][][]voxel.Point{seeds},
		Fusion:    NumberFusion{Target: 2},
	})

	assert.Len(t, e.ObjectPopulation(), 2)
	assert.Equal(t, 2, e.Stats().Fusions, "each fusion removes exactly one region")
	assert.Equal(t, []int{1, 2}, e.LabelImage().Labels())

	never := runEngine(t, Config{
		ScoreMaps: []*voxel.Image{line},
		Seeds:     [][][]voxel.Point{seeds},
		Fusion:    AllFusion(NumberFusion{Target: 2}, SizeFusion{MinSize: 0}),
	})
	assert.Len(t, never.ObjectPopulation(), 4)

	either := runEngine(t, Config{
		ScoreMaps: []*voxel.Image{line},
		Seeds:     [][][]voxel.Point{seeds},
		Fusion:    AnyFusion(NeverFuse{}, NumberFusion{Target: 3}),
	})
	assert.Len(t, either.ObjectPopulation(), 3)
}

func TestMultiScaleSeeds(t *testing.T) {
	low := createLine(t, 0, 0, 0, 0)
	high := createLine(t, 10, 10, 10, 10)

	e := runEngine(t, Config{
		ScoreMaps: []*voxel.Image{low, high},
		Seeds: [][][]voxel.Point{
			seedsAt(voxel.Point{X: 0}),
			seedsAt(voxel.Point{X: 3}),
		},
	})

	regions := e.ObjectPopulation()
	require.Len(t, regions, 2)
	assert.Equal(t, 0, regions[0].Scale)
	assert.Equal(t, 1, regions[1].Scale)
	assert.Equal(t, 3, regions[0].Size())
	for _, v := range regions[1].Voxels {
		assert.Equal(t, 10.0, v.Value, "values come from the region's own scale")
	}
}

func TestNewRejectsMalformedInput(t *testing.T) {
	line := createLine(t, 0, 0, 0)
	other := createLine(t, 0, 0)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no score map", Config{}},
		{"seed count mismatch", Config{
			ScoreMaps: []*voxel.Image{line},
			Seeds:     [][][]voxel.Point{seedsAt(voxel.Point{}), seedsAt(voxel.Point{X: 1})},
		}},
		{"score maps differ", Config{
			ScoreMaps: []*voxel.Image{line, other},
			Seeds:     [][][]voxel.Point{nil, nil},
		}},
		{"seed outside image", Config{
			ScoreMaps: []*voxel.Image{line},
			Seeds:     [][][]voxel.Point{seedsAt(voxel.Point{X: 7})},
		}},
		{"voxel in two seeds", Config{
			ScoreMaps: []*voxel.Image{line},
			Seeds:     [][][]voxel.Point{seedsAt(voxel.Point{X: 1}, voxel.Point{X: 1})},
		}},
		{"threshold image smaller than score maps", Config{
			ScoreMaps:   []*voxel.Image{line},
			Seeds:       [][][]voxel.Point{seedsAt(voxel.Point{})},
			Propagation: ImageThreshold{Image: other, Threshold: 1},
		}},
		{"nested threshold image smaller than score maps", Config{
			ScoreMaps: []*voxel.Image{line},
			Seeds:     [][][]voxel.Point{seedsAt(voxel.Point{})},
			Propagation: AllPropagation(
				MonotonicPropagation{},
				ImageThreshold{Image: other, Threshold: 1},
			),
		}},
		{"threshold without image", Config{
			ScoreMaps:   []*voxel.Image{line},
			Seeds:       [][][]voxel.Point{seedsAt(voxel.Point{})},
			Propagation: ImageThreshold{Threshold: 1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidArgument))
		})
	}
}

func TestPopulationIsCallerOwned(t *testing.T) {
	e := runEngine(t, Config{
		ScoreMaps: []*voxel.Image{createLine(t, 0, 1, 0, 1, 0)},
		Seeds:     [][][]voxel.Point{seedsAt(voxel.Point{X: 0}, voxel.Point{X: 2}, voxel.Point{X: 4})},
	})
	before := labelsOf(e.LabelImage())
	require.Equal(t, []int{1, 2, 3}, e.LabelImage().Labels())

	pop := e.Population()
	c, err := cluster.New(pop, nil, cluster.ContactStrategy(1), cluster.Options{})
	require.NoError(t, err)
	require.Equal(t, 1, c.MergeSort(cluster.MergeOptions{MinRegions: 2}))
	require.Len(t, pop.LabelMap().Labels(), 2)

	assert.Equal(t, before, labelsOf(e.LabelImage()))
	assert.Equal(t, []int{1, 2, 3}, e.LabelImage().Labels())
	objects := e.ObjectPopulation()
	require.Len(t, objects, 3)
	for i, r := range objects {
		assert.Equal(t, i+1, r.Label)
		assert.NotEmpty(t, r.Voxels)
	}
	assert.NotSame(t, pop, e.Population(), "every call returns a fresh copy")
}

func TestRunTwice(t *testing.T) {
	e, err := New(Config{
		ScoreMaps: []*voxel.Image{createLine(t, 0, 0)},
		Seeds:     [][][]voxel.Point{seedsAt(voxel.Point{})},
	})
	require.NoError(t, err)
	require.NoError(t, e.Run())
	assert.True(t, errors.Is(e.Run(), ErrAlreadyRun))
}

func TestVolumeFlood(t *testing.T) {
	dims := voxel.Dims{Width: 4, Height: 4, Depth: 3}
	score, err := voxel.NewImage(dims)
	require.NoError(t, err)

	e := runEngine(t, Config{
		ScoreMaps: []*voxel.Image{score},
		Seeds: [][][]voxel.Point{{
			{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}},
			{{X: 3, Y: 3, Z: 2}},
		}},
	})

	lm := e.LabelImage()
	assert.Zero(t, lm.Count(labelmap.Background), "every voxel is reachable")
	assert.Equal(t, []int{1, 2}, lm.Labels())
	total := 0
	for _, r := range e.ObjectPopulation() {
		total += r.Size()
		for _, v := range r.Voxels {
			assert.Equal(t, r.Label, lm.Get(v.Point))
		}
	}
	assert.Equal(t, dims.Size(), total)
}

func BenchmarkEngineRun(b *testing.B) {
	dims := voxel.Dims{Width: 128, Height: 128, Depth: 1}
	score, _ := voxel.NewImage(dims)
	for idx := range score.Data() {
		p := dims.Point(idx)
		score.Data()[idx] = float64((p.X*7 + p.Y*13) % 17)
	}
	seeds := seedsAt(voxel.Point{X: 10, Y: 10}, voxel.Point{X: 100, Y: 20}, voxel.Point{X: 64, Y: 100})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e, _ := New(Config{ScoreMaps: []*voxel.Image{score}, Seeds: [][][]voxel.Point{seeds}})
		_ = e.Run()
	}
}
