package pipeline

import (
	"image"
	"image/color"
	_ "image/jpeg" // register the JPEG decoder
	_ "image/png"  // register the PNG decoder
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"voxelseg/internal/models"
	"voxelseg/pkg/voxel"
)

var (
	// ErrNoImages is returned for a directory without any JPEG or PNG plane.
	ErrNoImages = errors.New("pipeline: no images found")
	// ErrStackMismatch is returned when the planes of a stack differ in size.
	ErrStackMismatch = errors.New("pipeline: planes differ in size")
)

// LoadFrames reads a time-lapse from dir. Every subdirectory holding images is one
// frame, ordered by the number in its name. A directory without subdirectories is a
// single frame.
func LoadFrames(dir string) ([]models.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading input directory")
	}

	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, e.Name())
		}
	}
	if len(subdirs) == 0 {
		img, err := LoadStack(dir)
		if err != nil {
			return nil, err
		}
		return []models.Frame{{Index: 0, Name: filepath.Base(dir), Intensity: img}}, nil
	}

	sortByNumber(subdirs)
	frames := make([]models.Frame, 0, len(subdirs))
	for _, name := range subdirs {
		img, err := LoadStack(filepath.Join(dir, name))
		if errors.Is(err, ErrNoImages) {
			continue
		}
		if err != nil {
			return nil, errors.Wrapf(err, "frame %s", name)
		}
		frames = append(frames, models.Frame{Index: len(frames), Name: name, Intensity: img})
	}
	if len(frames) == 0 {
		return nil, errors.Wrapf(ErrNoImages, "%s", dir)
	}
	return frames, nil
}

// LoadStack reads the planes of dir, in filename number order, into one image. A single
// plane gives a 2D image.
func LoadStack(dir string) (*voxel.Image, error) {
	slices, err := loadSlices(dir)
	if err != nil {
		return nil, err
	}

	bounds := slices[0].Image.Bounds()
	dims := voxel.Dims{Width: bounds.Dx(), Height: bounds.Dy(), Depth: len(slices)}
	img, err := voxel.NewImage(dims)
	if err != nil {
		return nil, errors.Wrapf(err, "stack %s", dir)
	}

	plane := dims.Width * dims.Height
	data := img.Data()
	for z, s := range slices {
		b := s.Image.Bounds()
		if b.Dx() != dims.Width || b.Dy() != dims.Height {
			return nil, errors.Wrapf(ErrStackMismatch, "%s is %dx%d, expected %dx%d",
				s.Filename, b.Dx(), b.Dy(), dims.Width, dims.Height)
		}
		copy(data[z*plane:(z+1)*plane], imageToFloat(s.Image))
	}
	return img, nil
}

func loadSlices(dir string) ([]models.Slice, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading stack directory")
	}

	// Filter image files
	var imageFiles []string
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(file.Name())) {
		case ".jpg", ".jpeg", ".png":
			imageFiles = append(imageFiles, file.Name())
		}
	}
	if len(imageFiles) == 0 {
		return nil, errors.Wrapf(ErrNoImages, "%s", dir)
	}

	// Planes are ordered by the number in their filename
	sortByNumber(imageFiles)

	slices := make([]models.Slice, 0, len(imageFiles))
	for _, filename := range imageFiles {
		img, err := loadImage(filepath.Join(dir, filename))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load image %s", filename)
		}
		slices = append(slices, models.Slice{Image: img, Index: extractNumber(filename), Filename: filename})
	}
	return slices, nil
}

func sortByNumber(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ni, nj := extractNumber(names[i]), extractNumber(names[j])
		if ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})
}

// extractNumber extracts the numeric part from a filename
func extractNumber(filename string) int {
	base := filepath.Base(filename)
	var digits strings.Builder
	for _, c := range base {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}

	if digits.Len() > 0 {
		if num, err := strconv.Atoi(digits.String()); err == nil {
			return num
		}
	}
	return 0
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// imageToFloat converts an image to grey levels in the range 0-255
func imageToFloat(img image.Image) []float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	result := make([]float64, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16)
			result[y*width+x] = float64(g.Y) / 257.0
		}
	}
	return result
}
