package pipeline

import (
	"voxelseg/pkg/config"
)

// Params holds the segmentation parameters of one run.
type Params struct {
	// NumCores specifies how many frames are segmented concurrently.
	NumCores int

	// Debug logs every watershed fusion and cluster merge.
	Debug bool

	// Decreasing floods each score map from its maxima down.
	Decreasing bool

	// Radius and ZRadius size the flooding neighbourhood, in voxels and planes.
	Radius  float64
	ZRadius float64

	// Scales lists the Gaussian sigmas of the score maps; 0 keeps the raw intensity.
	Scales []float64

	// Propagation is one of the config.Propagation* names. PropagationThreshold is
	// compared against score-map values.
	Propagation          string
	PropagationThreshold float64

	// Fusion is one of the config.Fusion* names.
	Fusion            string
	MinRegionSize     int
	TargetRegionCount int

	// ForegroundThreshold is the lowest intensity that may be segmented.
	ForegroundThreshold float64

	// BrightObjects seeds on intensity maxima instead of minima.
	BrightObjects bool

	// MinSeedValue discards weaker extrema.
	MinSeedValue float64

	// MergeStrategy is one of the config.Merge* names.
	MergeStrategy    string
	SplitThreshold   float64
	MinContact       int
	HighConnectivity bool
	HessianScale     float64
	MinRegions       int
	FillHoles        bool

	// SaveLabels writes the label maps under LabelsDir, one subdirectory per frame.
	SaveLabels bool
	LabelsDir  string
}

// ParamsFromConfig flattens a validated configuration.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		NumCores:             cfg.Processing.NumCores,
		Debug:                cfg.Processing.Debug,
		Decreasing:           cfg.Watershed.Decreasing,
		Radius:               cfg.Watershed.Radius,
		ZRadius:              cfg.Watershed.ZRadius,
		Scales:               append([]float64(nil), cfg.Watershed.Scales...),
		Propagation:          cfg.Watershed.Propagation,
		PropagationThreshold: cfg.Watershed.PropagationThreshold,
		Fusion:               cfg.Watershed.Fusion,
		MinRegionSize:        cfg.Watershed.MinRegionSize,
		TargetRegionCount:    cfg.Watershed.TargetRegionCount,
		ForegroundThreshold:  cfg.Seeds.ForegroundThreshold,
		BrightObjects:        cfg.Seeds.Extrema == "max",
		MinSeedValue:         cfg.Seeds.MinSeedValue,
		MergeStrategy:        cfg.Merge.Strategy,
		SplitThreshold:       cfg.Merge.SplitThreshold,
		MinContact:           cfg.Merge.MinContact,
		HighConnectivity:     cfg.Merge.HighConnectivity,
		HessianScale:         cfg.Merge.HessianScale,
		MinRegions:           cfg.Merge.MinRegions,
		FillHoles:            cfg.Merge.FillHoles,
		SaveLabels:           cfg.Output.SaveLabels,
		LabelsDir:            cfg.Output.LabelsDir,
	}
}

// DefaultParams returns the parameters of config.DefaultConfig.
func DefaultParams() Params {
	return ParamsFromConfig(config.DefaultConfig())
}
