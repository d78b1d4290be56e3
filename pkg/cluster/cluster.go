// Package cluster builds the interface graph of a region population and simplifies it
// by best-first merging.
//
// Every pair of adjacent regions shares exactly one Interface holding the voxel
// evidence found along their boundary. A Strategy turns that evidence into a score and
// decides whether the pair should merge. MergeSort repeatedly fuses the best scored
// pair until the strategy refuses; FillHoles absorbs enclosed regions.
//
// A Cluster mutates the population it was built from and is not safe for concurrent use.
package cluster

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"voxelseg/pkg/labelmap"
	"voxelseg/pkg/logging"
	"voxelseg/pkg/neighborhood"
	"voxelseg/pkg/voxel"
)

var (
	// ErrUnknownRegion is returned when a region is not a live member of the cluster.
	ErrUnknownRegion = errors.New("cluster: unknown region")
	// ErrGeometryMismatch is returned when the mask or a strategy image and the population
	// differ in extent.
	ErrGeometryMismatch = errors.New("cluster: image and population geometry differ")
	// ErrInvalidStrategy is returned for a strategy without Update or CheckFusion.
	ErrInvalidStrategy = errors.New("cluster: strategy needs Update and CheckFusion")
)

// Options tune interface discovery and merge ordering.
type Options struct {
	// HighConnectivity uses 8 (2D) or 18 (3D) neighbours instead of 4 or 6.
	HighConnectivity bool

	// Background creates interfaces between regions and the background pseudo region
	// (label 0) wherever a region touches an unlabelled or out-of-mask voxel.
	Background bool

	// Compare breaks ties between equal values. It must only look at E1 and E2.
	// Defaults to CompareLabels.
	Compare func(a, b *Interface) int

	Logger *zap.SugaredLogger

	// Debug logs every merge.
	Debug bool
}

// MergeOptions bound a MergeSort run.
type MergeOptions struct {
	// MinRegions stops merging once this many regions are left. 0 means no bound.
	MinRegions int
}

// Cluster is the interface graph over a population.
type Cluster struct {
	pop        *labelmap.Population
	mask       *voxel.Mask
	strategy   *Strategy
	opts       Options
	nbh        *neighborhood.Neighborhood
	background *labelmap.Region
	adj        map[int]map[int]*Interface
	count      int
	logger     *zap.SugaredLogger
}

// New discovers every interface of pop and scores it once. mask may be nil, meaning the
// whole image.
func New(pop *labelmap.Population, mask *voxel.Mask, strategy Strategy, opts Options) (*Cluster, error) {
	if strategy.Update == nil || strategy.CheckFusion == nil {
		return nil, errors.Wrapf(ErrInvalidStrategy, "strategy %q", strategy.Name)
	}
	dims := pop.Dims()
	if mask == nil {
		var err error
		if mask, err = voxel.FullMask(dims); err != nil {
			return nil, err
		}
	} else if err := voxel.SameDims(dims, mask.Dims()); err != nil {
		return nil, errors.Wrap(ErrGeometryMismatch, err.Error())
	}
	if strategy.Validate != nil {
		if err := strategy.Validate(dims); err != nil {
			return nil, errors.Wrapf(ErrGeometryMismatch, "strategy %q: %v", strategy.Name, err)
		}
	}
	if opts.Compare == nil {
		opts.Compare = CompareLabels
	}
	opts.Logger = logging.OrNop(opts.Logger)

	nbh := neighborhood.LowConnectivity(dims.Is3D())
	if opts.HighConnectivity {
		nbh = neighborhood.HighConnectivity(dims.Is3D())
	}

	c := &Cluster{
		pop:        pop,
		mask:       mask,
		strategy:   &strategy,
		opts:       opts,
		nbh:        nbh,
		background: &labelmap.Region{Label: labelmap.Background},
		adj:        make(map[int]map[int]*Interface),
		logger:     opts.Logger,
	}
	c.discover()
	for _, i := range c.all() {
		i.Update()
	}
	c.logger.Debugw("interfaces discovered",
		"strategy", strategy.Name, "regions", pop.Count(), "interfaces", c.count)
	return c, nil
}

// discover visits every voxel pair of the neighbourhood once, through its forward half.
// A voxel outside the mask or without a label stands for the background; a pair of two
// background voxels, or of two voxels of one region, is no boundary.
func (c *Cluster) discover() {
	lm := c.pop.LabelMap()
	dims := lm.Dims()
	forward := c.nbh.Forward()
	owner := func(p voxel.Point) (*labelmap.Region, bool) {
		label := lm.Get(p)
		if label == labelmap.Background || !c.mask.Contains(p) {
			return nil, true
		}
		r := c.pop.Get(label)
		return r, r != nil
	}
	for idx := range lm.Raw() {
		p := dims.Point(idx)
		r, ok := owner(p)
		if !ok {
			continue
		}
		forward.ForEach(p, dims, func(q voxel.Point) {
			s, ok := owner(q)
			switch {
			case !ok || r == s:
			case r == nil:
				if c.opts.Background {
					c.link(c.background, s).AddPair(p, q)
				}
			case s == nil:
				if c.opts.Background {
					c.link(c.background, r).AddPair(q, p)
				}
			case r.Label < s.Label:
				c.link(r, s).AddPair(p, q)
			default:
				c.link(s, r).AddPair(q, p)
			}
		})
	}
}

// link returns the interface between a and b, creating it on first use.
func (c *Cluster) link(a, b *labelmap.Region) *Interface {
	if i := c.adj[a.Label][b.Label]; i != nil {
		return i
	}
	i := newInterface(a, b, c.strategy)
	c.insert(i)
	return i
}

func (c *Cluster) insert(i *Interface) {
	for _, pair := range [2][2]int{{i.E1.Label, i.E2.Label}, {i.E2.Label, i.E1.Label}} {
		m := c.adj[pair[0]]
		if m == nil {
			m = make(map[int]*Interface)
			c.adj[pair[0]] = m
		}
		m[pair[1]] = i
	}
	c.count++
}

func (c *Cluster) remove(i *Interface) {
	delete(c.adj[i.E1.Label], i.E2.Label)
	delete(c.adj[i.E2.Label], i.E1.Label)
	i.dead = true
	c.count--
}

// all returns every interface in label order.
func (c *Cluster) all() []*Interface {
	out := make([]*Interface, 0, c.count)
	for label, m := range c.adj {
		for other, i := range m {
			if label < other {
				out = append(out, i)
			}
		}
	}
	sort.Slice(out, func(a, b int) bool { return CompareLabels(out[a], out[b]) < 0 })
	return out
}

// incident returns the interfaces of a label ordered by the label on the other side.
func (c *Cluster) incident(label int) []*Interface {
	m := c.adj[label]
	others := make([]int, 0, len(m))
	for other := range m {
		others = append(others, other)
	}
	sort.Ints(others)
	out := make([]*Interface, len(others))
	for k, other := range others {
		out[k] = m[other]
	}
	return out
}

func (c *Cluster) check(r *labelmap.Region) error {
	if r == nil {
		return errors.Wrap(ErrUnknownRegion, "nil region")
	}
	if r == c.background || c.pop.Get(r.Label) == r {
		return nil
	}
	return errors.Wrapf(ErrUnknownRegion, "label %d", r.Label)
}

// Interfaces returns the interfaces incident to r.
func (c *Cluster) Interfaces(r *labelmap.Region) ([]*Interface, error) {
	if err := c.check(r); err != nil {
		return nil, err
	}
	return c.incident(r.Label), nil
}

// Interactants returns the regions adjacent to r, in label order. The background pseudo
// region is included only when withBackground is set.
func (c *Cluster) Interactants(r *labelmap.Region, withBackground bool) ([]*labelmap.Region, error) {
	ifaces, err := c.Interfaces(r)
	if err != nil {
		return nil, err
	}
	out := make([]*labelmap.Region, 0, len(ifaces))
	for _, i := range ifaces {
		if i.HasBackground() && !withBackground {
			continue
		}
		out = append(out, i.Other(r))
	}
	return out, nil
}

// Interface returns the interface between a and b, or nil if they are not adjacent.
func (c *Cluster) Interface(a, b *labelmap.Region) *Interface {
	if a == nil || b == nil {
		return nil
	}
	return c.adj[a.Label][b.Label]
}

// Background returns the pseudo region standing for label 0.
func (c *Cluster) Background() *labelmap.Region { return c.background }

// Len returns the number of interfaces, background interfaces included.
func (c *Cluster) Len() int { return c.count }

// RegionCount returns the number of live regions.
func (c *Cluster) RegionCount() int { return c.pop.Count() }

// Population returns the live regions renumbered 1..n.
func (c *Cluster) Population() *labelmap.Population { return c.pop.Compact() }

// MergeSort fuses regions best interface first until the best remaining interface fails
// CheckFusion, only background interfaces remain, or opts.MinRegions is reached. It
// returns the number of merges.
func (c *Cluster) MergeSort(opts MergeOptions) int {
	q := newMergeQueue(c.opts.Compare)
	for _, i := range c.all() {
		if !i.HasBackground() {
			q.push(i)
		}
	}

	merges := 0
	for {
		if opts.MinRegions > 0 && c.pop.Count() <= opts.MinRegions {
			break
		}
		best := q.next()
		if best == nil || !best.CheckFusion() {
			break
		}
		value := best.Value
		survivor := c.fuse(best)
		merges++
		if c.opts.Debug {
			c.logger.Debugw("merged regions",
				"strategy", c.strategy.Name, "survivor", survivor.Label,
				"value", value, "size", survivor.Size(), "remaining", c.pop.Count())
		}
		for _, i := range c.incident(survivor.Label) {
			if !i.HasBackground() {
				q.push(i)
			}
		}
	}
	c.logger.Debugw("merge done", "strategy", c.strategy.Name, "merges", merges, "regions", c.pop.Count())
	return merges
}

// fuse merges the two regions of i. The absorbed region's interfaces move to the
// survivor, joining an existing interface when the survivor already borders the same
// neighbour. Every survivor interface is then rescored.
func (c *Cluster) fuse(i *Interface) *labelmap.Region {
	keep, drop := i.E1, i.E2
	c.remove(i)
	c.pop.Fuse(keep, drop)

	for _, di := range c.incident(drop.Label) {
		other := di.Other(drop)
		c.remove(di)
		if existing := c.adj[keep.Label][other.Label]; existing != nil {
			existing.FuseWith(di)
			continue
		}
		c.insert(di.retarget(drop, keep))
	}
	delete(c.adj, drop.Label)

	for _, si := range c.incident(keep.Label) {
		si.Update()
	}
	return keep
}

// FillHoles absorbs every region that is enclosed by a single other region: it borders
// exactly one region, no background voxel, and not the image border. It repeats until
// no hole is left and returns the number of regions filled.
func (c *Cluster) FillHoles() int {
	filled := 0
	for changed := true; changed; {
		changed = false
		for _, r := range c.pop.Alive() {
			if c.pop.Get(r.Label) != r {
				continue
			}
			ifaces := c.incident(r.Label)
			if len(ifaces) != 1 || ifaces[0].HasBackground() || c.touchesOutside(r) {
				continue
			}
			enclosing := ifaces[0].Other(r)
			survivor := c.fuse(ifaces[0])
			filled++
			changed = true
			if c.opts.Debug {
				c.logger.Debugw("filled hole",
					"hole", r.Label, "enclosing", enclosing.Label, "survivor", survivor.Label)
			}
		}
	}
	return filled
}

func (c *Cluster) touchesOutside(r *labelmap.Region) bool {
	lm := c.pop.LabelMap()
	dims := lm.Dims()
	for _, v := range r.Voxels {
		if dims.OnBorder(v.Point) {
			return true
		}
		outside := false
		c.nbh.ForEach(v.Point, dims, func(q voxel.Point) {
			if !c.mask.Contains(q) || lm.Get(q) == labelmap.Background {
				outside = true
			}
		})
		if outside {
			return true
		}
	}
	return false
}
