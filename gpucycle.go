package atlas

import (
	"sync/atomic"
	"time"
)

// backingPlan is the outcome of classifying one atlas image's backings
// for a cycle.
type backingPlan struct {
	targetIdx int  // index of the backing chosen for update this cycle, -1 if none
	deferred  bool // true iff an update is needed but no backing is updatable and N is reached
}

// planBackingUpdate classifies ai's backings and, if one is chosen,
// records its resize/create/upload commands into enc. destroy collects GPU images that must be destroyed after
// this cycle's fence has been waited on (a resized backing's old
// image), and stagingBufs collects staging buffers to release the same
// way.
func (a *Atlas) planBackingUpdate(ai *atlasImage, enc CommandEncoder, destroy *[]ImageID, stagingBufs *[]BufferID) backingPlan {
	canonical := ai.canonicalSet()

	targetIdx := -1
	anyNeedsUpdate := false
	for i := range ai.backings {
		b := &ai.backings[i]
		if b.image.IsZero() {
			continue
		}
		current := b.isCurrent(canonical) && len(b.clearRegions) == 0
		if current {
			continue
		}
		anyNeedsUpdate = true
		if b.updatable && targetIdx == -1 {
			targetIdx = i
		} else if !b.updatable {
			b.stale = true
		}
	}

	if targetIdx == -1 {
		for i := range ai.backings {
			if ai.backings[i].image.IsZero() {
				targetIdx = i
				anyNeedsUpdate = true
				break
			}
		}
	}

	if !anyNeedsUpdate {
		return backingPlan{targetIdx: -1}
	}
	if targetIdx == -1 {
		return backingPlan{targetIdx: -1, deferred: true}
	}

	b := &ai.backings[targetIdx]
	neededW, neededH := ai.extent()

	switch {
	case b.image.IsZero():
		id, err := a.device.CreateImage(ImageDesc{Width: neededW, Height: neededH, Format: a.gpuFmt, Label: "atlas-backing"})
		if err != nil {
			slogger().Error("atlas: create backing image failed", "error", err)
			return backingPlan{targetIdx: -1, deferred: true}
		}
		enc.ClearColorImage(id, Rect{X: 0, Y: 0, W: neededW, H: neededH})
		b.image = id
		b.extent = Extent{W: neededW, H: neededH}

	case b.extent.W < neededW || b.extent.H < neededH:
		newID, err := a.device.CreateImage(ImageDesc{Width: neededW, Height: neededH, Format: a.gpuFmt, Label: "atlas-backing"})
		if err != nil {
			slogger().Error("atlas: resize backing image failed", "error", err)
			return backingPlan{targetIdx: -1, deferred: true}
		}
		enc.CopyImage(b.image, Offset{}, newID, Offset{}, Extent{W: b.extent.W, H: b.extent.H})
		if b.extent.W < neededW {
			enc.ClearColorImage(newID, Rect{X: b.extent.W, Y: 0, W: neededW - b.extent.W, H: neededH})
		}
		if b.extent.H < neededH {
			enc.ClearColorImage(newID, Rect{X: 0, Y: b.extent.H, W: b.extent.W, H: neededH - b.extent.H})
		}
		*destroy = append(*destroy, b.image)
		b.image = newID
		b.extent = Extent{W: neededW, H: neededH}
	}

	for _, r := range b.clearRegions {
		enc.ClearColorImage(b.image, r)
	}
	b.clearRegions = nil

	for id := range canonical {
		if _, ok := b.contains[id]; ok {
			continue
		}
		si := ai.subImages[id]
		inner := si.inner(ai.pad)
		if si.img.isGPUResident() {
			if si.img.gpuFormat == a.gpuFmt {
				enc.CopyImage(si.img.gpuView, Offset{}, b.image, Offset{X: inner.X, Y: inner.Y}, Extent{W: inner.W, H: inner.H})
			} else {
				enc.BlitImage(si.img.gpuView, Rect{X: 0, Y: 0, W: inner.W, H: inner.H}, b.image, inner)
			}
		} else if len(si.img.data) > 0 {
			buf, err := a.device.NewStagingBuffer(len(si.img.data))
			if err != nil {
				slogger().Error("atlas: staging buffer alloc failed", "error", err)
				continue
			}
			a.device.WriteStagingBuffer(buf, si.img.data)
			bytesPerRow := inner.W * a.storage.Format.BytesPerPixel()
			enc.CopyBufferToImage(buf, b.image, Offset{X: inner.X, Y: inner.Y}, Extent{W: inner.W, H: inner.H}, bytesPerRow)
			*stagingBufs = append(*stagingBufs, buf)
		}
		b.contains[id] = struct{}{}
	}

	b.pendingUpdate = true
	return backingPlan{targetIdx: targetIdx}
}

// runGPUCycle builds and submits one command buffer covering every
// atlas image's pending backing work, waits for it, then promotes
// staged upload responses and publishes a fresh view snapshot.
func (a *Atlas) runGPUCycle(newPending []pendingUpload) {
	pending := append(a.deferred, newPending...)
	a.deferred = nil

	enc := a.device.NewEncoder()
	var destroy []ImageID
	var stagingBufs []BufferID

	plans := make(map[ImageHandle]backingPlan, len(a.imageOrder))
	for _, handle := range a.imageOrder {
		plans[handle] = a.planBackingUpdate(a.images[handle], enc, &destroy, &stagingBufs)
	}

	fence, err := a.device.Submit(enc)
	if err != nil {
		a.failCycle(pending, err)
		return
	}
	if err := a.device.WaitFence(fence); err != nil {
		a.failCycle(pending, err)
		return
	}

	for _, buf := range stagingBufs {
		a.device.DestroyStagingBuffer(buf)
	}
	for _, img := range destroy {
		a.device.DestroyImage(img)
	}

	now := time.Now()
	snapViews := map[ImageHandle]*ImageView{}
	if prev := a.snapshot.Load(); prev != nil {
		for k, v := range prev.views {
			snapViews[k] = v
		}
	}

	for _, handle := range a.imageOrder {
		ai := a.images[handle]
		plan := plans[handle]

		for i := range ai.backings {
			b := &ai.backings[i]
			if b.image.IsZero() {
				continue
			}
			if i == plan.targetIdx {
				b.pendingUpdate = false
				b.stale = false
			} else if b.pendingUpdate {
				b.pendingUpdate = false
				b.stale = false
			} else if b.stale && b.currentView != nil {
				b.currentView.stale.Store(true)
			}
		}

		if plan.targetIdx == -1 {
			continue
		}

		ai.active = plan.targetIdx
		b := &ai.backings[plan.targetIdx]
		b.updatable = false
		b.tempViewsAlive++

		if b.currentView != nil {
			b.currentView.stale.Store(true)
		}

		view := &ImageView{
			AtlasImage:   ai.id,
			GPUImage:     b.image,
			Extent:       b.extent,
			backingIndex: plan.targetIdx,
			atlas:        a,
		}
		view.stale = new(atomic.Bool)
		b.currentView = view
		snapViews[ai.id] = view
	}

	a.snapshot.Store(&viewSnapshot{publishedAt: now, views: snapViews})

	for _, p := range pending {
		plan := plans[p.atlasImage]
		if plan.deferred {
			a.deferred = append(a.deferred, p)
			continue
		}
		p.resp.stage(p.result)
		p.resp.promote()
	}
}

func (a *Atlas) failCycle(pending []pendingUpload, err error) {
	slogger().Error("atlas: gpu submission failed", "error", err)
	a.gpuLost.Store(true)
	for _, p := range pending {
		p.resp.stage(uploadResult{err: ErrGPULost})
		p.resp.promote()
	}
}
