// Package format converts declared input pixel formats into the atlas's
// chosen storage format. It builds on the linear/sRGB transfer pair
// used throughout the color package, generalized to cover the full
// cross product of mono/RGB/RGBA/YUV inputs, 8/16-bit depths, and the
// atlas's four candidate storage layouts.
package format

import "fmt"

// PixelFormat is a declared input format carried on an Image.
// The L/S prefix selects the transfer function: L is already linear,
// S is standard (sRGB) transfer.
type PixelFormat uint8

const (
	LRGBA PixelFormat = iota
	LRGB
	LMono
	LMonoA
	SRGBA
	SRGB
	SMono
	SMonoA
	YUV444
)

// Components returns the number of interleaved channels the raw payload
// carries for this declared format (before expansion to RGBA).
func (f PixelFormat) Components() int {
	switch f {
	case LRGBA, SRGBA:
		return 4
	case LRGB, SRGB, YUV444:
		return 3
	case LMonoA, SMonoA:
		return 2
	case LMono, SMono:
		return 1
	default:
		return 0
	}
}

// IsSRGB reports whether the raw samples need an sRGB->linear transfer
// before use. YUV444 is treated as sRGB-encoded luma/chroma.
func (f PixelFormat) IsSRGB() bool {
	switch f {
	case SRGBA, SRGB, SMono, SMonoA, YUV444:
		return true
	default:
		return false
	}
}

func (f PixelFormat) String() string {
	switch f {
	case LRGBA:
		return "LRGBA"
	case LRGB:
		return "LRGB"
	case LMono:
		return "LMono"
	case LMonoA:
		return "LMonoA"
	case SRGBA:
		return "SRGBA"
	case SRGB:
		return "SRGB"
	case SMono:
		return "SMono"
	case SMonoA:
		return "SMonoA"
	case YUV444:
		return "YUV444"
	default:
		return fmt.Sprintf("PixelFormat(%d)", uint8(f))
	}
}

// Depth is the per-channel sample width of a raw payload.
type Depth uint8

const (
	Depth8 Depth = iota
	Depth16
)

// StorageFormat is one of the atlas's four candidate physical layouts.
type StorageFormat uint8

const (
	StorageRGBA16 StorageFormat = iota
	StorageRGBA8
	StorageBGRA8
	StorageABGR8Packed
)

// BytesPerPixel returns the storage size of one texel.
func (s StorageFormat) BytesPerPixel() int {
	if s == StorageRGBA16 {
		return 8
	}
	return 4
}

// channelOrder maps output byte slot -> source channel index
// (0=R, 1=G, 2=B, 3=A), letting RGBA8/BGRA8/ABGR8Packed share one
// packing routine.
func (s StorageFormat) channelOrder() [4]int {
	switch s {
	case StorageBGRA8:
		return [4]int{2, 1, 0, 3}
	case StorageABGR8Packed:
		return [4]int{3, 2, 1, 0}
	default:
		return [4]int{0, 1, 2, 3}
	}
}

// StorageDescriptor fully describes an atlas's chosen texel layout: the
// physical byte layout plus whether the GPU format is an sRGB variant
// (in which case RGB channels are sRGB-encoded on write; alpha never is).
type StorageDescriptor struct {
	Format      StorageFormat
	SRGBEncoded bool
}

// PreferenceList returns the four storage candidates in the order the
// atlas tries them against device format support.
func PreferenceList(srgbSupported bool) []StorageDescriptor {
	return []StorageDescriptor{
		{Format: StorageRGBA16, SRGBEncoded: false},
		{Format: StorageRGBA8, SRGBEncoded: srgbSupported},
		{Format: StorageBGRA8, SRGBEncoded: srgbSupported},
		{Format: StorageABGR8Packed, SRGBEncoded: srgbSupported},
	}
}
