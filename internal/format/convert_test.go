package format

import "testing"

// buildRaw constructs a raw payload of the given format/depth with every
// pixel set to the same channel values (already in that format's native
// range, i.e. sRGB-encoded for S* formats).
func buildRaw(pf PixelFormat, depth Depth, w, h int, channels []float32) []byte {
	comps := pf.Components()
	bps := 1
	maxV := float32(255)
	if depth == Depth16 {
		bps = 2
		maxV = 65535
	}
	out := make([]byte, w*h*comps*bps)
	for i := 0; i < w*h; i++ {
		base := i * comps * bps
		for c := 0; c < comps; c++ {
			q := uint32(channels[c]*maxV + 0.5)
			if bps == 2 {
				out[base+c*2] = byte(q)
				out[base+c*2+1] = byte(q >> 8)
			} else {
				out[base+c] = byte(q)
			}
		}
	}
	return out
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// TestRoundTripFormats covers the (input format, depth, storage format)
// cross product: converting a synthetic image of known values into the
// atlas storage format and decoding it back must land within one
// integer quantization step of the source under the defined transfer
// functions.
func TestRoundTripFormats(t *testing.T) {
	storages := []StorageDescriptor{
		{Format: StorageRGBA16, SRGBEncoded: false},
		{Format: StorageRGBA8, SRGBEncoded: false},
		{Format: StorageRGBA8, SRGBEncoded: true},
		{Format: StorageBGRA8, SRGBEncoded: false},
		{Format: StorageBGRA8, SRGBEncoded: true},
		{Format: StorageABGR8Packed, SRGBEncoded: true},
	}

	cases := []struct {
		name     string
		pf       PixelFormat
		channels []float32 // native-range values, comps long
	}{
		{"LRGBA", LRGBA, []float32{0.2, 0.4, 0.8, 1.0}},
		{"LRGB", LRGB, []float32{0.1, 0.5, 0.9}},
		{"LMono", LMono, []float32{0.6}},
		{"LMonoA", LMonoA, []float32{0.3, 0.7}},
		{"SRGBA", SRGBA, []float32{0.2, 0.4, 0.8, 1.0}},
		{"SRGB", SRGB, []float32{0.1, 0.5, 0.9}},
		{"SMono", SMono, []float32{0.6}},
		{"SMonoA", SMonoA, []float32{0.3, 0.7}},
		{"YUV444", YUV444, []float32{0.5, 0.5, 0.5}},
	}

	for _, depth := range []Depth{Depth8, Depth16} {
		for _, tc := range cases {
			for _, dst := range storages {
				t.Run(tc.name, func(t *testing.T) {
					raw := buildRaw(tc.pf, depth, 2, 2, tc.channels)
					src := SourceImage{Format: tc.pf, Depth: depth, Width: 2, Height: 2, Data: raw}

					out, err := Convert(src, dst)
					if err != nil {
						t.Fatalf("Convert: %v", err)
					}

					back, err := DecodeToLinearRGBA8(dst, out, 2, 2)
					if err != nil {
						t.Fatalf("DecodeToLinearRGBA8: %v", err)
					}

					// Compute the expected linear RGBA for pixel 0 the
					// same way decodePixel does, then compare within one
					// 8-bit quantization step of the readback (round trip
					// target is 8-bit RGBA regardless of storage depth).
					// sRGB-encoded storage truncates once more, in the
					// encoded domain, so for its RGB channels one storage
					// step, measured in linear light at the expected
					// value, is added to the tolerance.
					expected := decodePixel(src, 0)
					const readbackTol = 1.0 / 255.0 * 1.5

					got := [4]float32{
						float32(back[0]) / 255,
						float32(back[1]) / 255,
						float32(back[2]) / 255,
						float32(back[3]) / 255,
					}
					want := [4]float32{expected.r, expected.g, expected.b, expected.a}
					for i := range want {
						tol := float32(readbackTol)
						if dst.SRGBEncoded && i < 3 {
							s := LinearToSRGB(clamp01(want[i]))
							tol += SRGBToLinear(s) - SRGBToLinear(max(s-1.0/255, 0))
						}
						if abs32(got[i]-want[i]) > tol {
							t.Fatalf("channel %d: got %v want %v (storage=%v srgb=%v depth=%v)",
								i, got[i], want[i], dst.Format, dst.SRGBEncoded, depth)
						}
					}
				})
			}
		}
	}
}

func TestSRGBLinearRoundTrip(t *testing.T) {
	for _, v := range []float32{0, 0.01, 0.04045, 0.2, 0.5, 0.9, 1.0} {
		lin := SRGBToLinear(v)
		back := LinearToSRGB(lin)
		if abs32(back-v) > 1e-4 {
			t.Fatalf("sRGB round trip for %v: got %v", v, back)
		}
	}
}

func TestConvertRejectsDataLengthMismatch(t *testing.T) {
	src := SourceImage{Format: LRGBA, Depth: Depth8, Width: 4, Height: 4, Data: make([]byte, 10)}
	if _, err := Convert(src, StorageDescriptor{Format: StorageRGBA8}); err == nil {
		t.Fatalf("expected a data length mismatch error")
	}
}

func TestYUV444MidGrayDecodesNearGray(t *testing.T) {
	// y=u=v=0.5 is the BT.601 mid-gray point: r=g=b should come out
	// equal (within rounding) regardless of the +0.344/-0.714 cross
	// terms, since (u-0.5) and (v-0.5) are (almost) zero. 16-bit samples
	// are used because 8 bits cannot hold 0.5 (it becomes 128/255, which
	// leaves cross terms large enough to split r, g and b by ~3e-3);
	// 32768/65535 is within 1e-5 of 0.5.
	raw := buildRaw(YUV444, Depth16, 1, 1, []float32{0.5, 0.5, 0.5})
	src := SourceImage{Format: YUV444, Depth: Depth16, Width: 1, Height: 1, Data: raw}
	px := decodePixel(src, 0)
	if abs32(px.r-px.g) > 1e-3 || abs32(px.g-px.b) > 1e-3 {
		t.Fatalf("expected r=g=b at mid-gray, got %+v", px)
	}
}
