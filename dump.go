package atlas

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/AustinJ235/basalt-sub001/internal/format"
)

// DumpBackings writes every currently published backing's content as a
// PNG file under dir, named "atlas-<image-id>.png". This is a
// diagnostic operation, not part of the upload/lookup contract: it
// reads GPU content back through a staging buffer, so it forces a
// synchronous round trip and should not be called from a hot path.
// thumbnailMax, if > 0, downsamples each PNG so its longer edge is at
// most that many pixels, using a bilinear resample.
func (a *Atlas) DumpBackings(dir string, thumbnailMax int) error {
	_, views, ok := a.ImageViews()
	if !ok {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atlas: dump: %w", err)
	}

	for id, view := range views {
		if err := a.dumpOne(dir, id, view, thumbnailMax); err != nil {
			return err
		}
	}
	return nil
}

func (a *Atlas) dumpOne(dir string, id ImageHandle, view *ImageView, thumbnailMax int) error {
	w, h := view.Extent.W, view.Extent.H
	if w <= 0 || h <= 0 {
		return nil
	}
	bpp := a.gpuFmt.BytesPerPixel()

	buf, err := a.device.NewStagingBuffer(w * h * bpp)
	if err != nil {
		return fmt.Errorf("atlas: dump: staging buffer: %w", err)
	}
	defer a.device.DestroyStagingBuffer(buf)

	enc := a.device.NewEncoder()
	enc.CopyImageToBuffer(view.GPUImage, Offset{}, Extent{W: w, H: h}, buf, w*bpp)
	fence, err := a.device.Submit(enc)
	if err != nil {
		return fmt.Errorf("atlas: dump: submit: %w", err)
	}
	if err := a.device.WaitFence(fence); err != nil {
		return fmt.Errorf("atlas: dump: wait: %w", err)
	}

	raw := a.device.ReadStagingBuffer(buf)
	rgba8, err := format.DecodeToLinearRGBA8(a.storage, raw, w, h)
	if err != nil {
		return fmt.Errorf("atlas: dump: decode: %w", err)
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := (y*w + x) * 4
			img.SetNRGBA(x, y, color.NRGBA{R: rgba8[o], G: rgba8[o+1], B: rgba8[o+2], A: rgba8[o+3]})
		}
	}

	out := image.Image(img)
	if thumbnailMax > 0 {
		if tw, th, ok := shrinkToFit(w, h, thumbnailMax); ok {
			thumb := image.NewNRGBA(image.Rect(0, 0, tw, th))
			draw.BiLinear.Scale(thumb, thumb.Bounds(), img, img.Bounds(), draw.Over, nil)
			out = thumb
		}
	}

	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("atlas-%d.png", uint64(id))))
	if err != nil {
		return fmt.Errorf("atlas: dump: create file: %w", err)
	}
	defer f.Close()
	return png.Encode(f, out)
}

// shrinkToFit returns the dimensions w,h scaled down so neither side
// exceeds max, preserving aspect ratio. ok is false when no shrink is
// needed.
func shrinkToFit(w, h, max int) (int, int, bool) {
	if w <= max && h <= max {
		return w, h, false
	}
	if w >= h {
		nh := h * max / w
		if nh < 1 {
			nh = 1
		}
		return max, nh, true
	}
	nw := w * max / h
	if nw < 1 {
		nw = 1
	}
	return nw, max, true
}
