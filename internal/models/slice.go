package models

import (
	"image"

	"voxelseg/pkg/voxel"
)

// Slice represents a single decoded plane of an image stack
type Slice struct {
	// Image is the decoded plane
	Image image.Image

	// Index is the number found in the filename, used to order the planes
	Index int

	// Filename is the original filename of the slice
	Filename string
}

// Frame is one time point of a time-lapse: a 2D image or a 3D stack of planes
type Frame struct {
	// Index is the position of the frame in the time-lapse
	Index int

	// Name identifies the frame in logs and output directories
	Name string

	// Intensity holds grey levels in the range 0-255
	Intensity *voxel.Image
}
