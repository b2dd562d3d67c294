package format

import (
	"fmt"
	"math"
)

// SourceImage is the normalized view of an Image's raw payload that the
// converter dispatches on: the (Format, Depth) pair selects decoding,
// the bytes are reinterpreted according to Depth.
type SourceImage struct {
	Format PixelFormat
	Depth  Depth
	Width  int
	Height int
	Data   []byte
}

// rgbaF32 is a linear-light, unpremultiplied working pixel.
type rgbaF32 struct{ r, g, b, a float32 }

// SRGBToLinear converts one sRGB-encoded component to linear light using
// the exact piecewise transfer function rather than a cheaper power-law
// approximation.
func SRGBToLinear(s float32) float32 {
	if s <= 0.04045 {
		return s / 12.92
	}
	return float32(math.Pow(float64((s+0.055)/1.055), 2.4))
}

// LinearToSRGB converts one linear-light component to sRGB encoding
// using the exact piecewise transfer function.
func LinearToSRGB(l float32) float32 {
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*float32(math.Pow(float64(l), 1.0/2.4)) - 0.055
}

func maxForDepth(d Depth) float32 {
	if d == Depth16 {
		return 65535
	}
	return 255
}

// decodeChannel reads the i-th sample (0-indexed) from raw data at the
// given depth and normalizes it to [0,1].
func decodeChannel(data []byte, i int, depth Depth) float32 {
	maxV := maxForDepth(depth)
	if depth == Depth16 {
		off := i * 2
		v := uint16(data[off]) | uint16(data[off+1])<<8
		return float32(v) / maxV
	}
	return float32(data[i]) / maxV
}

// quantize converts a normalized [0,1] value back to an integer sample
// at the given depth, truncating rather than rounding.
func quantize(v float32, depth Depth) uint32 {
	maxV := maxForDepth(depth)
	scaled := v * maxV
	if scaled < 0 {
		scaled = 0
	}
	if scaled > maxV {
		scaled = maxV
	}
	return uint32(scaled)
}

// decodePixel reads one pixel's worth of channels starting at component
// index base and produces a linear-light rgbaF32, dispatching on the
// declared PixelFormat.
func decodePixel(src SourceImage, base int) rgbaF32 {
	depth := src.Depth
	srgb := src.Format.IsSRGB()

	toLinear := func(v float32) float32 {
		if srgb {
			return SRGBToLinear(v)
		}
		return v
	}

	switch src.Format {
	case LRGBA, SRGBA:
		return rgbaF32{
			r: toLinear(decodeChannel(src.Data, base+0, depth)),
			g: toLinear(decodeChannel(src.Data, base+1, depth)),
			b: toLinear(decodeChannel(src.Data, base+2, depth)),
			a: decodeChannel(src.Data, base+3, depth),
		}
	case LRGB, SRGB:
		return rgbaF32{
			r: toLinear(decodeChannel(src.Data, base+0, depth)),
			g: toLinear(decodeChannel(src.Data, base+1, depth)),
			b: toLinear(decodeChannel(src.Data, base+2, depth)),
			a: 1,
		}
	case LMono, SMono:
		lum := toLinear(decodeChannel(src.Data, base+0, depth))
		return rgbaF32{r: lum, g: lum, b: lum, a: 1}
	case LMonoA, SMonoA:
		lum := toLinear(decodeChannel(src.Data, base+0, depth))
		a := decodeChannel(src.Data, base+1, depth)
		return rgbaF32{r: lum, g: lum, b: lum, a: a}
	case YUV444:
		y := decodeChannel(src.Data, base+0, depth)
		u := decodeChannel(src.Data, base+1, depth)
		v := decodeChannel(src.Data, base+2, depth)
		r := y + 1.402*(v-0.5)
		g := y + 0.344*(u-0.5) - 0.714*(v-0.5)
		b := y + 1.772*(u-0.5)
		return rgbaF32{
			r: SRGBToLinear(clamp01(r)),
			g: SRGBToLinear(clamp01(g)),
			b: SRGBToLinear(clamp01(b)),
			a: 1,
		}
	default:
		return rgbaF32{}
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// packPixel writes one texel of dst's storage layout into out at byte
// offset. RGB channels are re-encoded to sRGB when dst.SRGBEncoded;
// alpha is always written linear.
func packPixel(px rgbaF32, dst StorageDescriptor, out []byte, offset int) {
	vals := [4]float32{px.r, px.g, px.b, px.a}
	if dst.SRGBEncoded {
		vals[0] = LinearToSRGB(clamp01(vals[0]))
		vals[1] = LinearToSRGB(clamp01(vals[1]))
		vals[2] = LinearToSRGB(clamp01(vals[2]))
	}

	order := dst.Format.channelOrder()
	depth := Depth8
	if dst.Format == StorageRGBA16 {
		depth = Depth16
	}

	for slot, ch := range order {
		q := quantize(clamp01(vals[ch]), depth)
		if depth == Depth16 {
			o := offset + slot*2
			out[o] = byte(q)
			out[o+1] = byte(q >> 8)
		} else {
			out[offset+slot] = byte(q)
		}
	}
}

// Convert normalizes src into dst's storage layout, returning the raw
// bytes ready for a staging-buffer upload. This is the CPU-side path;
// already GPU-resident payloads never reach this function (they are
// copied or blitted directly on the GPU instead).
func Convert(src SourceImage, dst StorageDescriptor) ([]byte, error) {
	comps := src.Format.Components()
	if comps == 0 {
		return nil, fmt.Errorf("format: unsupported pixel format %v", src.Format)
	}

	bytesPerSample := 1
	if src.Depth == Depth16 {
		bytesPerSample = 2
	}

	expected := src.Width * src.Height * comps * bytesPerSample
	if len(src.Data) != expected {
		return nil, fmt.Errorf("format: data length mismatch: got %d want %d", len(src.Data), expected)
	}

	out := make([]byte, src.Width*src.Height*dst.Format.BytesPerPixel())
	pixelCount := src.Width * src.Height
	dstStride := dst.Format.BytesPerPixel()

	for i := 0; i < pixelCount; i++ {
		px := decodePixel(src, i*comps)
		packPixel(px, dst, out, i*dstStride)
	}

	return out, nil
}

// DecodeToLinearRGBA8 is the inverse of Convert for the RGBA8 family of
// storage formats: it reads back atlas-resident bytes and produces
// linear 8-bit RGBA. It exists for round-trip tests and for the
// diagnostic dump operation, and is not part of the upload path.
func DecodeToLinearRGBA8(desc StorageDescriptor, data []byte, width, height int) ([]byte, error) {
	bpp := desc.Format.BytesPerPixel()
	expected := width * height * bpp
	if len(data) != expected {
		return nil, fmt.Errorf("format: data length mismatch: got %d want %d", len(data), expected)
	}

	order := desc.Format.channelOrder()
	depth := Depth8
	if desc.Format == StorageRGBA16 {
		depth = Depth16
	}

	out := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		srcOff := i * bpp
		var vals [4]float32
		for slot, ch := range order {
			var raw float32
			if depth == Depth16 {
				o := srcOff + slot*2
				v := uint16(data[o]) | uint16(data[o+1])<<8
				raw = float32(v) / 65535
			} else {
				raw = float32(data[srcOff+slot]) / 255
			}
			vals[ch] = raw
		}
		if desc.SRGBEncoded {
			vals[0] = SRGBToLinear(vals[0])
			vals[1] = SRGBToLinear(vals[1])
			vals[2] = SRGBToLinear(vals[2])
		}
		o := i * 4
		out[o+0] = byte(quantize(clamp01(vals[0]), Depth8))
		out[o+1] = byte(quantize(clamp01(vals[1]), Depth8))
		out[o+2] = byte(quantize(clamp01(vals[2]), Depth8))
		out[o+3] = byte(quantize(clamp01(vals[3]), Depth8))
	}
	return out, nil
}
