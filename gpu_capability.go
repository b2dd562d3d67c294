package atlas

// This file defines the GPU capability contract the atlas core assumes
// from its GPU collaborator: the minimal set of operations the worker
// needs. It intentionally mirrors the shape of a WebGPU-style HAL
// (see github.com/gogpu/wgpu/hal) but is trimmed to exactly what the
// worker's command-buffer assembly needs: image lifetime, staging
// buffers, copies/blits/clears, and fenced submission.
//
// A production caller supplies a Device backed by a real GPU (see
// internal/wgpubackend). Tests use the in-memory fake in
// internal/gpufake, which performs every operation on host byte slices
// so round-trip pixel content can be asserted directly.

// ImageFormat enumerates the GPU-side texel layouts the atlas can target.
// These correspond to the format package's storage-format preference
// list.
type ImageFormat uint8

const (
	// ImageFormatRGBA16Unorm is 16-bit UNORM RGBA, the first storage
	// format preference.
	ImageFormatRGBA16Unorm ImageFormat = iota
	// ImageFormatRGBA8Unorm is 8-bit UNORM RGBA.
	ImageFormatRGBA8Unorm
	// ImageFormatRGBA8UnormSRGB is 8-bit UNORM RGBA with an sRGB transfer
	// function applied by the sampler.
	ImageFormatRGBA8UnormSRGB
	// ImageFormatBGRA8Unorm is 8-bit UNORM BGRA.
	ImageFormatBGRA8Unorm
	// ImageFormatBGRA8UnormSRGB is 8-bit UNORM BGRA, sRGB-sampled.
	ImageFormatBGRA8UnormSRGB
	// ImageFormatABGR8UnormPacked is 8-bit UNORM ABGR packed into a
	// single 32-bit word, the last storage format preference.
	ImageFormatABGR8UnormPacked
)

// BytesPerPixel returns the storage size of one texel in the format.
func (f ImageFormat) BytesPerPixel() int {
	switch f {
	case ImageFormatRGBA16Unorm:
		return 8
	default:
		return 4
	}
}

// ImageID names a GPU-resident 2D image. The zero value is never a
// valid handle returned by a Device.
type ImageID uint64

// IsZero reports whether id is the zero handle.
func (id ImageID) IsZero() bool { return id == 0 }

// BufferID names a host-visible staging buffer.
type BufferID uint64

// FenceID names a submission fence.
type FenceID uint64

// SamplerID names a created sampler.
type SamplerID uint64

// Extent is a 2D pixel size.
type Extent struct{ W, H int }

// Offset is a 2D pixel origin.
type Offset struct{ X, Y int }

// Rect is an axis-aligned pixel rectangle with an integer origin and size.
type Rect struct{ X, Y, W, H int }

// ImageDesc describes a 2D, non-multisampled UNORM color image with
// usage {transfer-src, transfer-dst, sampled}.
type ImageDesc struct {
	Width, Height int
	Format        ImageFormat
	Label         string
}

// SamplerDesc describes a sampler with unnormalized coordinates and a
// clamp-to-transparent-black border.
type SamplerDesc struct {
	// Linear selects linear filtering; false selects nearest.
	Linear bool
	Label  string
}

// CommandEncoder records the operations of one worker cycle's command
// buffer: freespace clears, backing resizes with content-preserving
// copies, and new content uploads.
type CommandEncoder interface {
	// ClearColorImage clears region of img to transparent black.
	ClearColorImage(img ImageID, region Rect)

	// CopyImage performs a GPU-side image-to-image copy of matching format.
	CopyImage(src ImageID, srcOrigin Offset, dst ImageID, dstOrigin Offset, size Extent)

	// BlitImage performs an image-to-image copy with format conversion.
	BlitImage(src ImageID, srcRect Rect, dst ImageID, dstRect Rect)

	// CopyBufferToImage uploads staged host data into dst at dstOrigin.
	CopyBufferToImage(buf BufferID, dst ImageID, dstOrigin Offset, size Extent, bytesPerRow int)

	// CopyImageToBuffer reads src back into a staging buffer, used by
	// diagnostics and by round-trip tests.
	CopyImageToBuffer(src ImageID, srcOrigin Offset, size Extent, buf BufferID, bytesPerRow int)
}

// Device is the GPU capability contract the atlas worker relies on. The
// atlas worker holds exactly one Device for its lifetime.
type Device interface {
	// MaxImageDimension2D is read once at construction.
	MaxImageDimension2D() int

	// CreateImage allocates a new GPU image. Its contents are undefined
	// until cleared or written.
	CreateImage(desc ImageDesc) (ImageID, error)

	// DestroyImage releases a GPU image created by CreateImage.
	DestroyImage(id ImageID)

	// NewStagingBuffer allocates a host-visible buffer with
	// transfer-src usage and the given length.
	NewStagingBuffer(size int) (BufferID, error)

	// WriteStagingBuffer copies data into a previously allocated
	// staging buffer. data must fit within the buffer's length.
	WriteStagingBuffer(buf BufferID, data []byte)

	// ReadStagingBuffer reads back a staging buffer previously filled
	// by a CopyImageToBuffer command whose fence has been waited on.
	ReadStagingBuffer(buf BufferID) []byte

	// DestroyStagingBuffer releases a staging buffer.
	DestroyStagingBuffer(buf BufferID)

	// NewEncoder starts recording a new command buffer.
	NewEncoder() CommandEncoder

	// Submit submits a recorded command buffer and returns a fence that
	// signals when the GPU work has completed.
	Submit(enc CommandEncoder) (FenceID, error)

	// WaitFence blocks until fence signals. A submission-or-fence error
	// is fatal to the worker.
	WaitFence(fence FenceID) error

	// CreateSampler creates a sampler with unnormalized coordinates and
	// a transparent-black border.
	CreateSampler(desc SamplerDesc) (SamplerID, error)

	// ImageExtent returns the current size of a live image.
	ImageExtent(id ImageID) Extent
}
