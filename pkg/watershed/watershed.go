// Package watershed implements a seeded, multi-scale watershed transform.
//
// Regions grow from seed components over one or more score maps ("scales"). A single
// frontier shared by every region always expands the globally lowest voxel (highest
// when the flood is decreasing). Growth onto an unlabelled voxel is guarded by a
// PropagationCriterion; two regions meeting are merged when a FusionCriterion agrees.
//
// An Engine is single-use and not safe for concurrent use.
package watershed

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"voxelseg/pkg/labelmap"
	"voxelseg/pkg/logging"
	"voxelseg/pkg/neighborhood"
	"voxelseg/pkg/voxel"
)

var (
	// ErrInvalidArgument reports malformed engine input.
	ErrInvalidArgument = errors.New("watershed: invalid argument")
	// ErrAlreadyRun is returned by a second call to Run.
	ErrAlreadyRun = errors.New("watershed: engine already run")
)

// Config holds the engine inputs.
type Config struct {
	// ScoreMaps are the priority maps, one per scale. All must share one extent.
	ScoreMaps []*voxel.Image

	// Mask delimits where regions may grow. nil means the whole image.
	Mask *voxel.Mask

	// Seeds[scale] lists the seed components growing over ScoreMaps[scale]. Each
	// component becomes one region.
	Seeds [][][]voxel.Point

	// Decreasing floods from high to low values instead of low to high.
	Decreasing bool

	// Propagation defaults to AlwaysPropagate.
	Propagation PropagationCriterion

	// Fusion defaults to NeverFuse.
	Fusion FusionCriterion

	// Neighborhood defaults to radius 1.5, in 3D with a z radius of 1.5.
	Neighborhood *neighborhood.Neighborhood

	// Logger defaults to a no-op logger.
	Logger *zap.SugaredLogger

	// Debug logs every fusion.
	Debug bool
}

// Stats summarises a run.
type Stats struct {
	Seeds    int
	Fusions  int
	Labelled int
}

// Engine is a single watershed computation.
type Engine struct {
	cfg     Config
	dims    voxel.Dims
	mask    *voxel.Mask
	pop     *labelmap.Population
	queue   *frontier
	logger  *zap.SugaredLogger
	stats   Stats
	ran     bool
	compact *labelmap.Population
}

// New validates cfg, creates one region per seed component and queues the seeds.
func New(cfg Config) (*Engine, error) {
	if len(cfg.ScoreMaps) == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "no score map")
	}
	if len(cfg.Seeds) != len(cfg.ScoreMaps) {
		return nil, errors.Wrapf(ErrInvalidArgument, "%d score maps but %d seed sets",
			len(cfg.ScoreMaps), len(cfg.Seeds))
	}
	dims := cfg.ScoreMaps[0].Dims()
	for i, m := range cfg.ScoreMaps {
		if m == nil {
			return nil, errors.Wrapf(ErrInvalidArgument, "score map %d is nil", i)
		}
		if err := voxel.SameDims(dims, m.Dims()); err != nil {
			return nil, errors.Wrapf(ErrInvalidArgument, "score map %d: %v", i, err)
		}
	}

	mask := cfg.Mask
	if mask == nil {
		var err error
		if mask, err = voxel.FullMask(dims); err != nil {
			return nil, errors.Wrap(ErrInvalidArgument, err.Error())
		}
	} else if err := voxel.SameDims(dims, mask.Dims()); err != nil {
		return nil, errors.Wrapf(ErrInvalidArgument, "mask: %v", err)
	}

	if cfg.Propagation == nil {
		cfg.Propagation = AlwaysPropagate{}
	}
	if dc, ok := cfg.Propagation.(DimsChecker); ok {
		if err := dc.CheckDims(dims); err != nil {
			return nil, errors.Wrapf(ErrInvalidArgument, "propagation criterion: %v", err)
		}
	}
	if cfg.Fusion == nil {
		cfg.Fusion = NeverFuse{}
	}
	if cfg.Neighborhood == nil {
		nbh, err := neighborhood.ForDims(dims, 1.5, 1.5, true)
		if err != nil {
			return nil, err
		}
		cfg.Neighborhood = nbh
	}
	cfg.Logger = logging.OrNop(cfg.Logger)

	pop, err := labelmap.NewPopulation(dims)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidArgument, err.Error())
	}
	e := &Engine{
		cfg:    cfg,
		dims:   dims,
		mask:   mask,
		pop:    pop,
		queue:  newFrontier(cfg.Decreasing),
		logger: cfg.Logger,
	}
	if err := e.seed(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) seed() error {
	for scale, components := range e.cfg.Seeds {
		score := e.cfg.ScoreMaps[scale]
		for ci, component := range components {
			voxels := make([]voxel.Voxel, 0, len(component))
			for _, p := range component {
				if !e.dims.Contains(p) {
					return errors.Wrapf(ErrInvalidArgument, "seed %+v of component %d (scale %d) outside image",
						p, ci, scale)
				}
				if !e.mask.Contains(p) {
					continue
				}
				voxels = append(voxels, voxel.Voxel{Point: p, Value: score.At(p)})
			}
			if len(voxels) == 0 {
				continue
			}
			if _, err := e.pop.Add(scale, voxels); err != nil {
				return errors.Wrapf(ErrInvalidArgument, "component %d (scale %d): %v", ci, scale, err)
			}
			for _, v := range voxels {
				e.queue.push(v)
			}
			e.stats.Seeds++
			e.stats.Labelled += len(voxels)
		}
	}
	return nil
}

// Run floods the image until the frontier is empty.
func (e *Engine) Run() error {
	if e.ran {
		return ErrAlreadyRun
	}
	e.ran = true
	lm := e.pop.LabelMap()
	nbh := e.cfg.Neighborhood

	for e.queue.Len() > 0 {
		v := e.queue.pop()
		r := e.pop.At(v.Point)
		if r == nil {
			continue
		}
		nbh.ForEach(v.Point, e.dims, func(q voxel.Point) {
			if !e.mask.Contains(q) {
				return
			}
			label := lm.Get(q)
			switch {
			case label == labelmap.Background:
				next := voxel.Voxel{Point: q, Value: e.cfg.ScoreMaps[r.Scale].At(q)}
				if !e.cfg.Propagation.ContinuePropagation(e, v, next) {
					return
				}
				e.pop.Absorb(r, next)
				e.queue.push(next)
				e.stats.Labelled++
			case label != r.Label:
				s := e.pop.Get(label)
				if e.cfg.Fusion.CheckFusion(e, r, s, v) {
					r = e.fuse(r, s, v)
				}
			}
		})
	}

	e.logger.Debugw("watershed done",
		"seeds", e.stats.Seeds, "regions", e.pop.Count(),
		"fusions", e.stats.Fusions, "labelled", e.stats.Labelled)
	return nil
}

func (e *Engine) fuse(r, s *labelmap.Region, at voxel.Voxel) *labelmap.Region {
	rl, sl := r.Label, s.Label
	survivor := e.pop.Fuse(r, s)
	e.stats.Fusions++
	if e.cfg.Debug {
		e.logger.Debugw("fused regions",
			"expanding", rl, "met", sl, "survivor", survivor.Label,
			"at", at.Point, "size", survivor.Size(), "remaining", e.pop.Count())
	}
	return survivor
}

// Decreasing reports the flood direction.
func (e *Engine) Decreasing() bool { return e.cfg.Decreasing }

// RegionCount returns the number of live regions.
func (e *Engine) RegionCount() int { return e.pop.Count() }

// Region returns the live region with the given working label, or nil.
func (e *Engine) Region(label int) *labelmap.Region { return e.pop.Get(label) }

// ScoreMap returns the score map of a scale.
func (e *Engine) ScoreMap(scale int) *voxel.Image { return e.cfg.ScoreMaps[scale] }

// Dims returns the image extent.
func (e *Engine) Dims() voxel.Dims { return e.dims }

// Stats returns counters for the run so far.
func (e *Engine) Stats() Stats { return e.stats }

func (e *Engine) result() *labelmap.Population {
	if !e.ran {
		return e.pop.Compact()
	}
	if e.compact == nil {
		e.compact = e.pop.Compact()
	}
	return e.compact
}

// LabelImage returns the partition with labels renumbered 1..n without gaps.
func (e *Engine) LabelImage() *labelmap.LabelMap {
	return e.result().LabelMap()
}

// ObjectPopulation returns the surviving regions in label order, labels matching
// LabelImage.
func (e *Engine) ObjectPopulation() []*labelmap.Region {
	return e.result().Alive()
}

// Population returns a copy of the compacted population that the caller owns. Merging
// it afterwards leaves LabelImage and ObjectPopulation untouched.
func (e *Engine) Population() *labelmap.Population {
	return e.result().Compact()
}
