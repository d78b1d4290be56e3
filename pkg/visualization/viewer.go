// Package visualization renders label maps as colour images, one region one colour.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"voxelseg/pkg/labelmap"
	"voxelseg/pkg/voxel"
)

// ErrInvalidAxis is returned for an axis other than x, y or z.
var ErrInvalidAxis = errors.New("visualization: axis must be x, y or z")

// goldenAngle spreads consecutive hues as far apart as possible.
const goldenAngle = 137.50776405003785

// Palette returns n+1 colours: black for the background at index 0, then one distinct
// colour per label. The palette is the same for every call with the same n.
func Palette(n int) []color.RGBA {
	if n < 0 {
		n = 0
	}
	out := make([]color.RGBA, n+1)
	out[0] = color.RGBA{A: 255}
	for i := 1; i <= n; i++ {
		hue := math.Mod(float64(i-1)*goldenAngle, 360)
		// Alternate brightness so neighbouring labels with close hues stay apart.
		v := 0.95
		if i%2 == 0 {
			v = 0.75
		}
		r, g, b := colorful.Hsv(hue, 0.7, v).Clamped().RGB255()
		out[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return out
}

// Viewer renders the planes of one label map.
type Viewer struct {
	// labels is the label map to render
	labels *labelmap.LabelMap

	// palette holds one colour per label, background first
	palette []color.RGBA
}

// NewViewer creates a viewer for lm with a palette large enough for its highest label.
func NewViewer(lm *labelmap.LabelMap) *Viewer {
	highest := 0
	for _, l := range lm.Raw() {
		if l > highest {
			highest = l
		}
	}
	return &Viewer{labels: lm, palette: Palette(highest)}
}

// Color returns the colour of label.
func (v *Viewer) Color(label int) color.RGBA {
	if label < 0 || label >= len(v.palette) {
		return v.palette[0]
	}
	return v.palette[label]
}

// ExtractSlice renders the plane of the label map orthogonal to axis at position
func (v *Viewer) ExtractSlice(axis string, position int) (*image.RGBA, error) {
	if position < 0 {
		return nil, errors.Errorf("position must be non-negative, got %d", position)
	}
	dims := v.labels.Dims()

	var (
		img   *image.RGBA
		limit int
		at    func(u, w int) voxel.Point
	)
	switch axis {
	case "x", "X":
		// YZ plane, z horizontal
		limit = dims.Width
		img = image.NewRGBA(image.Rect(0, 0, dims.Depth, dims.Height))
		at = func(u, w int) voxel.Point { return voxel.Point{X: position, Y: w, Z: u} }
	case "y", "Y":
		// XZ plane, z vertical
		limit = dims.Height
		img = image.NewRGBA(image.Rect(0, 0, dims.Width, dims.Depth))
		at = func(u, w int) voxel.Point { return voxel.Point{X: u, Y: position, Z: w} }
	case "z", "Z":
		limit = dims.Depth
		img = image.NewRGBA(image.Rect(0, 0, dims.Width, dims.Height))
		at = func(u, w int) voxel.Point { return voxel.Point{X: u, Y: w, Z: position} }
	default:
		return nil, errors.Wrapf(ErrInvalidAxis, "got %q", axis)
	}
	if position >= limit {
		return nil, errors.Errorf("position %d exceeds %s extent %d", position, axis, limit)
	}

	b := img.Bounds()
	for w := 0; w < b.Dy(); w++ {
		for u := 0; u < b.Dx(); u++ {
			img.SetRGBA(u, w, v.Color(v.labels.Get(at(u, w))))
		}
	}
	return img, nil
}

// SaveSlice saves a rendered plane as a PNG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence renders and saves every plane along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	dims := v.labels.Dims()
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = dims.Width
	case "y", "Y":
		maxPos = dims.Height
	case "z", "Z":
		maxPos = dims.Depth
	default:
		return errors.Wrapf(ErrInvalidAxis, "got %q", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("labels_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return errors.Wrapf(err, "saving %s", filename)
		}
	}
	return nil
}

// SaveLabelSequence writes one PNG per z plane of lm into outputDir.
func SaveLabelSequence(lm *labelmap.LabelMap, outputDir string) error {
	return NewViewer(lm).SaveSliceSequence("z", outputDir)
}
