// Package hessian scores region interfaces by local curvature. A boundary between two
// touching objects runs along an intensity valley whose curvature is high relative to
// the intensity; the inside of one object is flat or convex.
package hessian

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"voxelseg/pkg/cluster"
	"voxelseg/pkg/scalespace"
	"voxelseg/pkg/voxel"
)

// Compute returns, for every voxel, the largest eigenvalue of the Hessian of img
// smoothed at sigma. Second derivatives are central differences with the image edge
// replicated.
func Compute(img *voxel.Image, sigma float64) (*voxel.Image, error) {
	smooth, err := scalespace.Gaussian(img, sigma)
	if err != nil {
		return nil, errors.Wrap(err, "hessian")
	}
	dims := img.Dims()
	n := 2
	if dims.Is3D() {
		n = 3
	}
	axes := []voxel.Point{{X: 1}, {Y: 1}, {Z: 1}}[:n]

	out, err := voxel.NewImage(dims)
	if err != nil {
		return nil, err
	}
	h := mat.NewSymDense(n, nil)
	var eig mat.EigenSym
	values := make([]float64, n)
	for idx := range out.Data() {
		p := dims.Point(idx)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				h.SetSym(i, j, second(smooth, p, axes[i], axes[j]))
			}
		}
		if !eig.Factorize(h, false) {
			return nil, errors.Errorf("hessian: eigen decomposition failed at %+v", p)
		}
		out.Data()[idx] = floats.Max(eig.Values(values))
	}
	return out, nil
}

// at reads img with coordinates clamped to the extent.
func at(img *voxel.Image, p voxel.Point) float64 {
	d := img.Dims()
	p.X = clamp(p.X, d.Width)
	p.Y = clamp(p.Y, d.Height)
	p.Z = clamp(p.Z, d.Depth)
	return img.At(p)
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

func neg(p voxel.Point) voxel.Point { return voxel.Point{X: -p.X, Y: -p.Y, Z: -p.Z} }

// second is the second derivative of img at p along axes a and b.
func second(img *voxel.Image, p, a, b voxel.Point) float64 {
	if a == b {
		return at(img, p.Add(a)) - 2*at(img, p) + at(img, p.Add(neg(a)))
	}
	return (at(img, p.Add(a).Add(b)) - at(img, p.Add(a).Add(neg(b))) -
		at(img, p.Add(neg(a)).Add(b)) + at(img, p.Add(neg(a)).Add(neg(b)))) / 4
}

// Cache computes a Hessian map on first use. It is safe for concurrent use.
type Cache struct {
	img   *voxel.Image
	sigma float64

	once sync.Once
	hess *voxel.Image
	err  error
}

// NewCache returns a cache for the Hessian of img at sigma.
func NewCache(img *voxel.Image, sigma float64) *Cache {
	return &Cache{img: img, sigma: sigma}
}

// Get returns the Hessian map, computing it on the first call.
func (c *Cache) Get() (*voxel.Image, error) {
	c.once.Do(func() {
		c.hess, c.err = Compute(c.img, c.sigma)
	})
	return c.hess, c.err
}

// Strategy scores an interface by the Hessian-to-intensity ratio over its evidence and
// fuses the two regions when the ratio is below splitThreshold.
//
// A pair whose first voxel lies outside foreground only touches background, so its
// second voxel is kept as secondary evidence. An interface without primary evidence
// scores NaN and never fuses. cluster.New rejects a cache, intensity image or
// foreground mask whose extent differs from the population. Get should be called on
// the cache before the strategy is used; a cache error makes every interface score NaN.
func Strategy(cache *Cache, intensity *voxel.Image, foreground *voxel.Mask, splitThreshold float64) cluster.Strategy {
	return cluster.Strategy{
		Name: "hessian",
		AddPair: func(i *cluster.Interface, v1, v2 voxel.Point) {
			if !foreground.Contains(v1) {
				i.Duplicated[v2] = struct{}{}
				return
			}
			i.Voxels[v1] = struct{}{}
			i.Voxels[v2] = struct{}{}
		},
		Update: func(i *cluster.Interface) float64 {
			if len(i.Voxels) == 0 {
				return math.NaN()
			}
			hess, err := cache.Get()
			if err != nil {
				return math.NaN()
			}
			var sumH, sumI float64
			add := func(p voxel.Point) {
				sumH += hess.At(p)
				sumI += intensity.At(p)
			}
			for _, p := range cluster.SortedPoints(i.Voxels) {
				add(p)
			}
			for _, p := range cluster.SortedPoints(i.Duplicated) {
				if _, dup := i.Voxels[p]; !dup {
					add(p)
				}
			}
			return sumH / sumI
		},
		CheckFusion: func(i *cluster.Interface) bool {
			return i.Value < splitThreshold
		},
		Validate: func(dims voxel.Dims) error {
			if cache == nil || cache.img == nil || intensity == nil || foreground == nil {
				return errors.New("hessian strategy needs a cache, an intensity image and a foreground mask")
			}
			if err := voxel.SameDims(dims, cache.img.Dims()); err != nil {
				return errors.Wrap(err, "hessian cache")
			}
			if err := voxel.SameDims(dims, intensity.Dims()); err != nil {
				return errors.Wrap(err, "intensity")
			}
			if err := voxel.SameDims(dims, foreground.Dims()); err != nil {
				return errors.Wrap(err, "foreground")
			}
			return nil
		},
	}
}
