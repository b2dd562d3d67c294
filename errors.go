package atlas

import "errors"

// Sentinel errors for the atlas package.
var (
	// ErrImageTooBig is returned when an allocation cannot be satisfied
	// even in a freshly created atlas image because the padded request
	// exceeds the device's maximum 2D image dimension.
	ErrImageTooBig = errors.New("atlas: image too big")

	// ErrDataLengthMismatch is returned by NewImage when the payload
	// length disagrees with width*height*components(format).
	ErrDataLengthMismatch = errors.New("atlas: data length mismatch")

	// ErrInvalidDimensions is returned for a zero width or height.
	ErrInvalidDimensions = errors.New("atlas: invalid dimensions")

	// ErrClosed is returned by any façade operation called after Close.
	ErrClosed = errors.New("atlas: closed")

	// ErrGPULost marks every future response as failed after a fatal
	// submission-or-fence error poisons the atlas.
	ErrGPULost = errors.New("atlas: gpu lost")

	// ErrNoStorageFormat is returned at construction when none of the
	// candidate storage formats in the preference list maps to a GPU
	// image format.
	ErrNoStorageFormat = errors.New("atlas: device supports no usable storage format")
)
