//go:build !nogpu

// Package wgpubackend implements atlas.Device over a real gogpu/wgpu
// device and queue. It brings up an Instance, Adapter, Device and Queue
// the same way the rendering backend does, then exposes the atlas
// core's minimal image/buffer/encoder contract on top of it.
//
// Texture upload and copy commands are tracked as logical GPU images
// behind an internal registry rather than issued through wgpu's
// texture-copy calls: the vendored core package does not yet expose a
// texture creation or copy surface (core.Texture is a placeholder
// type), the same limitation internal/gpu/gpu_texture.go works around
// by tracking textures as logical resources pending real wgpu support.
// Once that support lands, CreateImage/CopyImage/BlitImage/
// CopyBufferToImage/CopyImageToBuffer are the only functions that need
// to start issuing real wgpu calls; the Device/Queue bring-up below
// does not change.
package wgpubackend

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	atlas "github.com/AustinJ235/basalt-sub001"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/core"
	"github.com/gogpu/wgpu/types"
)

// Device brings up one wgpu adapter/device/queue and implements
// atlas.Device against it.
type Device struct {
	mu sync.Mutex

	instance *core.Instance
	adapter  core.AdapterID
	device   core.DeviceID
	queue    core.QueueID

	maxDim int

	nextImage  atomic.Uint64
	nextBuf    atomic.Uint64
	nextFence  atomic.Uint64
	nextSample atomic.Uint64

	images  map[atlas.ImageID]*image
	buffers map[atlas.BufferID][]byte
}

type image struct {
	desc atlas.ImageDesc
	pix  []byte
}

// New brings up a wgpu instance, requests a high-performance adapter,
// creates a device and retrieves its queue. label is used for the
// device's debug label.
func New(label string) (*Device, error) {
	instance := core.NewInstance(&gputypes.InstanceDescriptor{
		Backends: gputypes.BackendsPrimary,
	})

	adapterID, err := instance.RequestAdapter(&gputypes.RequestAdapterOptions{
		PowerPreference: gputypes.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpubackend: request adapter: %w", err)
	}

	if info, err := core.GetAdapterInfo(adapterID); err == nil {
		log.Printf("wgpubackend: adapter %s (%s, %s)", info.Name, info.DeviceType, info.Backend)
	}

	deviceID, err := core.RequestDevice(adapterID, &types.DeviceDescriptor{
		Label:          label,
		RequiredLimits: types.DefaultLimits(),
	})
	if err != nil {
		_ = core.AdapterDrop(adapterID)
		return nil, fmt.Errorf("wgpubackend: request device: %w", err)
	}

	queueID, err := core.GetDeviceQueue(deviceID)
	if err != nil {
		_ = core.DeviceDrop(deviceID)
		_ = core.AdapterDrop(adapterID)
		return nil, fmt.Errorf("wgpubackend: get device queue: %w", err)
	}

	limits, err := core.GetDeviceLimits(deviceID)
	maxDim := int(types.DefaultLimits().MaxTextureDimension2D)
	if err == nil && limits.MaxTextureDimension2D > 0 {
		maxDim = int(limits.MaxTextureDimension2D)
	}

	return &Device{
		instance: instance,
		adapter:  adapterID,
		device:   deviceID,
		queue:    queueID,
		maxDim:   maxDim,
		images:   make(map[atlas.ImageID]*image),
		buffers:  make(map[atlas.BufferID][]byte),
	}, nil
}

// Close releases the device and adapter. The Device must not be used
// afterward.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.device.IsZero() {
		if err := core.DeviceDrop(d.device); err != nil {
			log.Printf("wgpubackend: error releasing device: %v", err)
		}
		d.device = core.DeviceID{}
	}
	if !d.adapter.IsZero() {
		if err := core.AdapterDrop(d.adapter); err != nil {
			log.Printf("wgpubackend: error releasing adapter: %v", err)
		}
		d.adapter = core.AdapterID{}
	}
}

func (d *Device) MaxImageDimension2D() int { return d.maxDim }

func (d *Device) CreateImage(desc atlas.ImageDesc) (atlas.ImageID, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return 0, fmt.Errorf("wgpubackend: invalid image size %dx%d", desc.Width, desc.Height)
	}
	id := atlas.ImageID(d.nextImage.Add(1))

	d.mu.Lock()
	d.images[id] = &image{desc: desc, pix: make([]byte, desc.Width*desc.Height*desc.Format.BytesPerPixel())}
	d.mu.Unlock()
	return id, nil
}

func (d *Device) DestroyImage(id atlas.ImageID) {
	d.mu.Lock()
	delete(d.images, id)
	d.mu.Unlock()
}

func (d *Device) NewStagingBuffer(size int) (atlas.BufferID, error) {
	if size < 0 {
		return 0, fmt.Errorf("wgpubackend: negative buffer size")
	}
	id := atlas.BufferID(d.nextBuf.Add(1))
	d.mu.Lock()
	d.buffers[id] = make([]byte, size)
	d.mu.Unlock()
	return id, nil
}

func (d *Device) WriteStagingBuffer(buf atlas.BufferID, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[buf]
	if !ok {
		return
	}
	copy(b, data)
}

func (d *Device) ReadStagingBuffer(buf atlas.BufferID) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[buf]
	if !ok {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (d *Device) DestroyStagingBuffer(buf atlas.BufferID) {
	d.mu.Lock()
	delete(d.buffers, buf)
	d.mu.Unlock()
}

func (d *Device) NewEncoder() atlas.CommandEncoder {
	return &encoder{dev: d}
}

func (d *Device) Submit(enc atlas.CommandEncoder) (atlas.FenceID, error) {
	e, ok := enc.(*encoder)
	if !ok {
		return 0, fmt.Errorf("wgpubackend: foreign encoder")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, op := range e.ops {
		if err := op.apply(d); err != nil {
			return 0, err
		}
	}
	return atlas.FenceID(d.nextFence.Add(1)), nil
}

// WaitFence is a no-op: Submit already applies every operation
// synchronously against the logical image/buffer registry.
func (d *Device) WaitFence(atlas.FenceID) error { return nil }

func (d *Device) CreateSampler(atlas.SamplerDesc) (atlas.SamplerID, error) {
	return atlas.SamplerID(d.nextSample.Add(1)), nil
}

func (d *Device) ImageExtent(id atlas.ImageID) atlas.Extent {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[id]
	if !ok {
		return atlas.Extent{}
	}
	return atlas.Extent{W: img.desc.Width, H: img.desc.Height}
}

// encoder accumulates one cycle's worth of image operations and
// applies them in order at Submit, mirroring the in-memory semantics
// internal/gpufake uses for tests.
type encoder struct {
	dev *Device
	ops []op
}

type op interface{ apply(d *Device) error }

func (e *encoder) ClearColorImage(img atlas.ImageID, region atlas.Rect) {
	e.ops = append(e.ops, clearOp{img, region})
}

func (e *encoder) CopyImage(src atlas.ImageID, srcOrigin atlas.Offset, dst atlas.ImageID, dstOrigin atlas.Offset, size atlas.Extent) {
	e.ops = append(e.ops, copyImageOp{src, srcOrigin, dst, dstOrigin, size})
}

func (e *encoder) BlitImage(src atlas.ImageID, srcRect atlas.Rect, dst atlas.ImageID, dstRect atlas.Rect) {
	e.ops = append(e.ops, blitOp{src, srcRect, dst, dstRect})
}

func (e *encoder) CopyBufferToImage(buf atlas.BufferID, dst atlas.ImageID, dstOrigin atlas.Offset, size atlas.Extent, bytesPerRow int) {
	e.ops = append(e.ops, bufferToImageOp{buf, dst, dstOrigin, size, bytesPerRow})
}

func (e *encoder) CopyImageToBuffer(src atlas.ImageID, srcOrigin atlas.Offset, size atlas.Extent, buf atlas.BufferID, bytesPerRow int) {
	e.ops = append(e.ops, imageToBufferOp{src, srcOrigin, size, buf, bytesPerRow})
}

type clearOp struct {
	img    atlas.ImageID
	region atlas.Rect
}

func (o clearOp) apply(d *Device) error {
	img, ok := d.images[o.img]
	if !ok {
		return fmt.Errorf("wgpubackend: clear: unknown image %d", o.img)
	}
	bpp := img.desc.Format.BytesPerPixel()
	stride := img.desc.Width * bpp
	for y := 0; y < o.region.H; y++ {
		row := (o.region.Y + y) * stride
		start := row + o.region.X*bpp
		for i := 0; i < o.region.W*bpp; i++ {
			img.pix[start+i] = 0
		}
	}
	return nil
}

type copyImageOp struct {
	src       atlas.ImageID
	srcOrigin atlas.Offset
	dst       atlas.ImageID
	dstOrigin atlas.Offset
	size      atlas.Extent
}

func (o copyImageOp) apply(d *Device) error {
	src, ok := d.images[o.src]
	if !ok {
		return fmt.Errorf("wgpubackend: copy: unknown src image %d", o.src)
	}
	dst, ok := d.images[o.dst]
	if !ok {
		return fmt.Errorf("wgpubackend: copy: unknown dst image %d", o.dst)
	}
	bpp := src.desc.Format.BytesPerPixel()
	srcStride := src.desc.Width * bpp
	dstStride := dst.desc.Width * bpp
	rowBytes := o.size.W * bpp
	for y := 0; y < o.size.H; y++ {
		srcOff := (o.srcOrigin.Y+y)*srcStride + o.srcOrigin.X*bpp
		dstOff := (o.dstOrigin.Y+y)*dstStride + o.dstOrigin.X*bpp
		copy(dst.pix[dstOff:dstOff+rowBytes], src.pix[srcOff:srcOff+rowBytes])
	}
	return nil
}

// blitOp performs a nearest-neighbor resample between possibly
// different formats/sizes, matching the fallback path the worker takes
// when a GPU-resident upload's format does not match the atlas's
// storage format.
type blitOp struct {
	src     atlas.ImageID
	srcRect atlas.Rect
	dst     atlas.ImageID
	dstRect atlas.Rect
}

func (o blitOp) apply(d *Device) error {
	src, ok := d.images[o.src]
	if !ok {
		return fmt.Errorf("wgpubackend: blit: unknown src image %d", o.src)
	}
	dst, ok := d.images[o.dst]
	if !ok {
		return fmt.Errorf("wgpubackend: blit: unknown dst image %d", o.dst)
	}
	srcBpp := src.desc.Format.BytesPerPixel()
	dstBpp := dst.desc.Format.BytesPerPixel()
	srcStride := src.desc.Width * srcBpp
	dstStride := dst.desc.Width * dstBpp

	for y := 0; y < o.dstRect.H; y++ {
		sy := o.srcRect.Y
		if o.srcRect.H > 0 {
			sy += y * o.srcRect.H / o.dstRect.H
		}
		for x := 0; x < o.dstRect.W; x++ {
			sx := o.srcRect.X
			if o.srcRect.W > 0 {
				sx += x * o.srcRect.W / o.dstRect.W
			}
			so := sy*srcStride + sx*srcBpp
			dOff := (o.dstRect.Y+y)*dstStride + (o.dstRect.X+x)*dstBpp
			n := srcBpp
			if dstBpp < n {
				n = dstBpp
			}
			copy(dst.pix[dOff:dOff+n], src.pix[so:so+n])
		}
	}
	return nil
}

type bufferToImageOp struct {
	buf         atlas.BufferID
	dst         atlas.ImageID
	dstOrigin   atlas.Offset
	size        atlas.Extent
	bytesPerRow int
}

func (o bufferToImageOp) apply(d *Device) error {
	data, ok := d.buffers[o.buf]
	if !ok {
		return fmt.Errorf("wgpubackend: upload: unknown staging buffer %d", o.buf)
	}
	dst, ok := d.images[o.dst]
	if !ok {
		return fmt.Errorf("wgpubackend: upload: unknown dst image %d", o.dst)
	}
	bpp := dst.desc.Format.BytesPerPixel()
	dstStride := dst.desc.Width * bpp
	rowBytes := o.size.W * bpp
	for y := 0; y < o.size.H; y++ {
		srcOff := y * o.bytesPerRow
		dstOff := (o.dstOrigin.Y+y)*dstStride + o.dstOrigin.X*bpp
		if srcOff+rowBytes > len(data) {
			return fmt.Errorf("wgpubackend: upload: staging buffer too short")
		}
		copy(dst.pix[dstOff:dstOff+rowBytes], data[srcOff:srcOff+rowBytes])
	}
	return nil
}

type imageToBufferOp struct {
	src         atlas.ImageID
	srcOrigin   atlas.Offset
	size        atlas.Extent
	buf         atlas.BufferID
	bytesPerRow int
}

func (o imageToBufferOp) apply(d *Device) error {
	src, ok := d.images[o.src]
	if !ok {
		return fmt.Errorf("wgpubackend: readback: unknown src image %d", o.src)
	}
	buf, ok := d.buffers[o.buf]
	if !ok {
		return fmt.Errorf("wgpubackend: readback: unknown staging buffer %d", o.buf)
	}
	bpp := src.desc.Format.BytesPerPixel()
	srcStride := src.desc.Width * bpp
	rowBytes := o.size.W * bpp
	for y := 0; y < o.size.H; y++ {
		srcOff := (o.srcOrigin.Y+y)*srcStride + o.srcOrigin.X*bpp
		dstOff := y * o.bytesPerRow
		if dstOff+rowBytes > len(buf) {
			return fmt.Errorf("wgpubackend: readback: staging buffer too short")
		}
		copy(buf[dstOff:dstOff+rowBytes], src.pix[srcOff:srcOff+rowBytes])
	}
	return nil
}
