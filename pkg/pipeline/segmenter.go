// Package pipeline segments frames of a time-lapse end to end: foreground masking,
// multi-scale seeded watershed and region merging.
package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voxelseg/internal/models"
	"voxelseg/pkg/cluster"
	"voxelseg/pkg/config"
	"voxelseg/pkg/hessian"
	"voxelseg/pkg/labelmap"
	"voxelseg/pkg/logging"
	"voxelseg/pkg/metrics"
	"voxelseg/pkg/neighborhood"
	"voxelseg/pkg/scalespace"
	"voxelseg/pkg/seeds"
	"voxelseg/pkg/visualization"
	"voxelseg/pkg/voxel"
	"voxelseg/pkg/watershed"
)

var (
	// ErrInvalidParams is returned for parameters naming an unknown criterion or strategy.
	ErrInvalidParams = errors.New("pipeline: invalid parameters")
	// ErrEmptyFrame is returned for a frame without intensity data.
	ErrEmptyFrame = errors.New("pipeline: frame has no intensity image")
)

// Result is the segmentation of one frame.
type Result struct {
	Frame   models.Frame
	Labels  *labelmap.LabelMap
	Regions []*labelmap.Region

	// Seeds counts the seed components flooded, Fusions the watershed fusions and
	// Merges the cluster merges plus filled holes.
	Seeds    int
	Fusions  int
	Merges   int
	Duration time.Duration
}

// Segmenter runs the segmentation of frames. It is safe for concurrent use.
type Segmenter struct {
	params  Params
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	runID   string
}

// NewSegmenter creates a segmenter with the provided parameters.
//
// Parameters:
//   - params: segmentation parameters, usually from ParamsFromConfig
//   - logger: destination of progress logs; nil discards them
//   - m: collectors updated per frame; nil records nothing
//
// Returns:
//   - A new Segmenter tagged with a fresh run id
//   - ErrInvalidParams if a criterion or strategy name is unknown
func NewSegmenter(params Params, logger *zap.SugaredLogger, m *metrics.Metrics) (*Segmenter, error) {
	if err := params.check(); err != nil {
		return nil, err
	}
	runID := uuid.New().String()
	return &Segmenter{
		params:  params,
		logger:  logging.OrNop(logger).With("run", runID),
		metrics: m,
		runID:   runID,
	}, nil
}

func (p Params) check() error {
	var err error
	switch p.Propagation {
	case config.PropagationAlways, config.PropagationMonotonic, config.PropagationThreshold:
	default:
		err = multierr.Append(err, errors.Errorf("unknown propagation %q", p.Propagation))
	}
	switch p.Fusion {
	case config.FusionNever, config.FusionSize, config.FusionNumber, config.FusionSizeNumber:
	default:
		err = multierr.Append(err, errors.Errorf("unknown fusion %q", p.Fusion))
	}
	switch p.MergeStrategy {
	case config.MergeNone, config.MergeHessian, config.MergeContact, config.MergeEdge:
	default:
		err = multierr.Append(err, errors.Errorf("unknown merge strategy %q", p.MergeStrategy))
	}
	if len(p.Scales) == 0 {
		err = multierr.Append(err, errors.New("no scale"))
	}
	if p.NumCores < 1 {
		err = multierr.Append(err, errors.Errorf("numCores %d", p.NumCores))
	}
	if err != nil {
		return errors.Wrap(ErrInvalidParams, err.Error())
	}
	return nil
}

// RunID identifies the segmenter in logs.
func (s *Segmenter) RunID() string { return s.runID }

// SegmentFrames segments frames concurrently, at most NumCores at a time. Results are
// returned in frame order; a frame that failed leaves a nil entry and its error joins
// the returned error. Cancelling ctx stops frames that have not started.
func (s *Segmenter) SegmentFrames(ctx context.Context, frames []models.Frame) ([]*Result, error) {
	results := make([]*Result, len(frames))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.params.NumCores)

	var (
		mu   sync.Mutex
		errs error
	)
	s.logger.Infow("segmenting frames", "frames", len(frames), "workers", s.params.NumCores)
	for i := range frames {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := s.SegmentFrame(frames[i])
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, errors.Wrapf(err, "frame %s", frames[i].Name))
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		errs = multierr.Append(errs, err)
	}
	return results, errs
}

// SegmentFrame runs the whole segmentation of one frame:
// 1. Mask voxels at or above the foreground threshold
// 2. Smooth the intensity at every scale and extract seeds at each
// 3. Flood the score maps from the seeds
// 4. Merge regions with the configured strategy and fill holes
// 5. Renumber regions and optionally save the label map
func (s *Segmenter) SegmentFrame(frame models.Frame) (*Result, error) {
	start := time.Now()
	res, err := s.segment(frame)
	if err != nil {
		s.metrics.FrameFailed()
		s.logger.Warnw("frame failed", "frame", frame.Name, "error", err)
		return nil, err
	}
	res.Duration = time.Since(start)
	s.metrics.ObserveFrame(res.Seeds, res.Fusions, res.Merges, res.Duration)
	s.logger.Infow("frame segmented",
		"frame", frame.Name, "regions", len(res.Regions), "seeds", res.Seeds,
		"fusions", res.Fusions, "merges", res.Merges, "duration", res.Duration)
	return res, nil
}

func (s *Segmenter) segment(frame models.Frame) (*Result, error) {
	p := s.params
	intensity := frame.Intensity
	if intensity == nil {
		return nil, ErrEmptyFrame
	}
	dims := intensity.Dims()
	logger := s.logger.With("frame", frame.Name)

	// Step 1: foreground
	foreground := voxel.MaskFromImage(intensity, func(v float64) bool { return v >= p.ForegroundThreshold })
	logger.Debugw("foreground masked", "voxels", foreground.Count())

	// Step 2: score maps and seeds
	nbh, err := neighborhood.ForDims(dims, p.Radius, p.ZRadius, true)
	if err != nil {
		return nil, err
	}
	smoothed, err := scalespace.Pyramid(intensity, p.Scales)
	if err != nil {
		return nil, err
	}
	invert := p.BrightObjects != p.Decreasing
	scoreMaps := make([]*voxel.Image, len(smoothed))
	for i, img := range smoothed {
		scoreMaps[i] = img
		if invert {
			scoreMaps[i] = scalespace.Invert(img)
		}
	}
	seedSets := s.extractSeeds(smoothed, foreground, nbh)

	// Step 3: flooding
	propagation, fusion := p.criteria()
	engine, err := watershed.New(watershed.Config{
		ScoreMaps:    scoreMaps,
		Mask:         foreground,
		Seeds:        seedSets,
		Decreasing:   p.Decreasing,
		Propagation:  propagation,
		Fusion:       fusion,
		Neighborhood: nbh,
		Logger:       logger,
		Debug:        p.Debug,
	})
	if err != nil {
		return nil, err
	}
	if err := engine.Run(); err != nil {
		return nil, err
	}
	stats := engine.Stats()
	pop := engine.Population()

	// Step 4: merging
	merges, pop, err := s.merge(pop, intensity, smoothed[0], foreground, logger)
	if err != nil {
		return nil, err
	}

	// Step 5: output
	res := &Result{
		Frame:   frame,
		Labels:  pop.LabelMap(),
		Regions: pop.Alive(),
		Seeds:   stats.Seeds,
		Fusions: stats.Fusions,
		Merges:  merges,
	}
	if p.SaveLabels {
		dir := filepath.Join(p.LabelsDir, frame.Name)
		if err := visualization.SaveLabelSequence(res.Labels, dir); err != nil {
			return nil, errors.Wrap(err, "saving labels")
		}
		logger.Debugw("labels saved", "dir", dir)
	}
	return res, nil
}

// extractSeeds returns the extrema of every smoothed map. Extrema are taken on intensity
// so MinSeedValue keeps its meaning whichever way the score maps run. A voxel already
// seeded at a finer scale is not seeded again.
func (s *Segmenter) extractSeeds(smoothed []*voxel.Image, mask *voxel.Mask, nbh *neighborhood.Neighborhood) [][][]voxel.Point {
	p := s.params
	claimed := make(map[voxel.Point]struct{})
	out := make([][][]voxel.Point, len(smoothed))
	for i, img := range smoothed {
		for _, comp := range seeds.RegionalExtrema(img, mask, nbh, p.BrightObjects, p.MinSeedValue) {
			kept := comp[:0]
			for _, q := range comp {
				if _, ok := claimed[q]; !ok {
					claimed[q] = struct{}{}
					kept = append(kept, q)
				}
			}
			if len(kept) > 0 {
				out[i] = append(out[i], kept)
			}
		}
	}
	return out
}

func (p Params) criteria() (watershed.PropagationCriterion, watershed.FusionCriterion) {
	var propagation watershed.PropagationCriterion
	switch p.Propagation {
	case config.PropagationMonotonic:
		propagation = watershed.MonotonicPropagation{}
	case config.PropagationThreshold:
		propagation = watershed.ScoreThreshold{Threshold: p.PropagationThreshold}
	default:
		propagation = watershed.AlwaysPropagate{}
	}

	var fusion watershed.FusionCriterion
	switch p.Fusion {
	case config.FusionSize:
		fusion = watershed.SizeFusion{MinSize: p.MinRegionSize}
	case config.FusionNumber:
		fusion = watershed.NumberFusion{Target: p.TargetRegionCount}
	case config.FusionSizeNumber:
		fusion = watershed.AllFusion(
			watershed.SizeFusion{MinSize: p.MinRegionSize},
			watershed.NumberFusion{Target: p.TargetRegionCount})
	default:
		fusion = watershed.NeverFuse{}
	}
	return propagation, fusion
}

// merge simplifies pop with the configured strategy. It returns the number of merges
// and filled holes with the renumbered population.
func (s *Segmenter) merge(pop *labelmap.Population, intensity, smoothed *voxel.Image, foreground *voxel.Mask, logger *zap.SugaredLogger) (int, *labelmap.Population, error) {
	p := s.params
	if p.MergeStrategy == config.MergeNone && !p.FillHoles {
		return 0, pop, nil
	}

	opts := cluster.Options{HighConnectivity: p.HighConnectivity, Logger: logger, Debug: p.Debug}
	var strategy cluster.Strategy
	switch p.MergeStrategy {
	case config.MergeHessian:
		cache := hessian.NewCache(intensity, p.HessianScale)
		if _, err := cache.Get(); err != nil {
			return 0, nil, err
		}
		strategy = hessian.Strategy(cache, intensity, foreground, p.SplitThreshold)
		opts.Background = true
	case config.MergeEdge:
		strategy = cluster.EdgeStrategy(scalespace.GradientMagnitude(smoothed), p.SplitThreshold)
	default:
		// Contact scoring also backs hole filling when no merge strategy is set.
		strategy = cluster.ContactStrategy(max(1, p.MinContact))
	}

	c, err := cluster.New(pop, foreground, strategy, opts)
	if err != nil {
		return 0, nil, err
	}
	merges := 0
	if p.MergeStrategy != config.MergeNone {
		merges = c.MergeSort(cluster.MergeOptions{MinRegions: p.MinRegions})
	}
	if p.FillHoles {
		merges += c.FillHoles()
	}
	return merges, c.Population(), nil
}
