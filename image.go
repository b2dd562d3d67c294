package atlas

import (
	"fmt"

	"github.com/AustinJ235/basalt-sub001/internal/format"
)

// Image is the input carrier accepted by LoadImage. Exactly one of the
// two payload shapes is populated: a raw byte buffer with a declared
// PixelFormat/Depth, or an already GPU-resident view marked
// atlas-ready. The conversion module (internal/format) only ever sees
// the raw-buffer shape; GPU-resident inputs skip straight to a copy or
// blit command.
type Image struct {
	Width, Height int

	// raw payload fields, used when gpuView.IsZero()
	pixelFormat format.PixelFormat
	depth       format.Depth
	data        []byte

	// already-resident payload, used when non-zero
	gpuView   ImageID
	gpuFormat ImageFormat
}

// NewImage validates and builds a raw-payload Image. w and h must be
// positive and data's length must equal w*h*components(format) at the
// given depth.
func NewImage(w, h int, pf format.PixelFormat, depth format.Depth, data []byte) (Image, error) {
	if w <= 0 || h <= 0 {
		return Image{}, ErrInvalidDimensions
	}
	comps := pf.Components()
	if comps == 0 {
		return Image{}, fmt.Errorf("%w: unsupported pixel format %v", ErrDataLengthMismatch, pf)
	}
	bytesPerSample := 1
	if depth == format.Depth16 {
		bytesPerSample = 2
	}
	want := w * h * comps * bytesPerSample
	if len(data) != want {
		return Image{}, fmt.Errorf("%w: got %d want %d", ErrDataLengthMismatch, len(data), want)
	}
	return Image{Width: w, Height: h, pixelFormat: pf, depth: depth, data: data}, nil
}

// NewGPUImage wraps an already GPU-resident, atlas-ready view: 2D,
// non-multisampled, UNORM color. The caller retains ownership until the
// atlas has copied or blitted it into a backing.
func NewGPUImage(w, h int, view ImageID, viewFormat ImageFormat) (Image, error) {
	if w <= 0 || h <= 0 {
		return Image{}, ErrInvalidDimensions
	}
	if view.IsZero() {
		return Image{}, fmt.Errorf("%w: nil gpu view", ErrInvalidDimensions)
	}
	return Image{Width: w, Height: h, gpuView: view, gpuFormat: viewFormat}, nil
}

// isGPUResident reports whether img carries an already-resident GPU view
// rather than a raw byte payload.
func (img Image) isGPUResident() bool { return !img.gpuView.IsZero() }

func (img Image) sourceImage() format.SourceImage {
	return format.SourceImage{
		Format: img.pixelFormat,
		Depth:  img.depth,
		Width:  img.Width,
		Height: img.Height,
		Data:   img.data,
	}
}
