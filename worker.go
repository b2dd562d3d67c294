package atlas

import (
	"time"
)

// run is the atlas's single dedicated worker goroutine. It owns every
// mutable field on Atlas that isn't a sampler/snapshot/queue, and
// drives the command-cycle sequence.
func (a *Atlas) run() {
	defer close(a.workerDone)

	for {
		cmds, ok := a.queue.drain()
		if !ok {
			return
		}
		a.cycle(cmds)
	}
}

type pendingUpload struct {
	atlasImage ImageHandle
	resp       *CommandResponse[uploadResult]
	result     uploadResult
}

// cycle processes one batch of drained commands through to completion.
func (a *Atlas) cycle(cmds []command) {
	slogger().Debug("atlas: cycle start", "commands", len(cmds))

	var uploads []uploadCommand
	var lookups []lookupCommand
	var batches []batchLookupCommand
	var drops []droppedCommand
	var tempDrops []tempViewDroppedCommand

	for _, c := range cmds {
		switch v := c.(type) {
		case uploadCommand:
			uploads = append(uploads, v)
		case lookupCommand:
			lookups = append(lookups, v)
		case batchLookupCommand:
			batches = append(batches, v)
		case droppedCommand:
			drops = append(drops, v)
		case tempViewDroppedCommand:
			tempDrops = append(tempDrops, v)
		}
	}

	changed := false

	// Step 2: process Dropped commands.
	for _, d := range drops {
		if a.processDropped(d) {
			changed = true
		}
	}

	// Step 3: pending-removal sweep, only when uploads are present this
	// cycle. This piggybacks TTL eviction on upload traffic rather than
	// running it every cycle, so a quiet atlas with no new loads never
	// sweeps expired entries until the next upload arrives.
	if len(uploads) > 0 {
		if a.processPendingRemoval(time.Now()) {
			changed = true
		}
	}

	// Step 4: process Upload commands in order.
	var pending []pendingUpload
	for _, u := range uploads {
		res, needsGPU := a.processUpload(u)
		if needsGPU {
			changed = true
			pending = append(pending, pendingUpload{atlasImage: res.coords.ImageID, resp: u.resp, result: res})
		} else {
			u.resp.stage(res)
			u.resp.promote()
		}
	}

	// Step 5: process lookups; these never depend on GPU work.
	for _, l := range lookups {
		res := a.processLookup(l.cacheID)
		l.resp.stage(res)
		l.resp.promote()
	}
	for _, b := range batches {
		results := make([]lookupResult, len(b.cacheIDs))
		for i, id := range b.cacheIDs {
			results[i] = a.processLookup(id)
		}
		b.resp.stage(results)
		b.resp.promote()
	}

	// Step 6: temporary view drops.
	for _, t := range tempDrops {
		a.processTempViewDropped(t)
	}

	// Step 7: submit GPU work for this cycle and promote staged
	// responses only once it has completed.
	if changed {
		a.runGPUCycle(pending)
	}

	slogger().Debug("atlas: cycle end", "changed", changed)
}

func (a *Atlas) processDropped(d droppedCommand) bool {
	ai, ok := a.images[d.atlasImage]
	if !ok {
		return false
	}
	si, ok := ai.subImages[d.subImage]
	if !ok {
		return false
	}
	si.alive--
	if si.alive > 0 {
		return false
	}

	switch si.cacheCtrl.Kind {
	case CacheCtrlIndefinite:
		return false
	case CacheCtrlSeconds:
		now := time.Now()
		si.zeroAt = now
		a.pendingRemoval[subRef{atlasImage: d.atlasImage, subImage: d.subImage}] = si.cacheCtrl.deadline(now)
		return false
	default: // CacheCtrlImmediate
		a.evict(ai, d.subImage)
		return true
	}
}

func (a *Atlas) processPendingRemoval(now time.Time) bool {
	changed := false
	for ref, deadline := range a.pendingRemoval {
		ai, ok := a.images[ref.atlasImage]
		if !ok {
			delete(a.pendingRemoval, ref)
			continue
		}
		si, ok := ai.subImages[ref.subImage]
		if !ok {
			delete(a.pendingRemoval, ref)
			continue
		}
		if si.alive != 0 {
			delete(a.pendingRemoval, ref)
			continue
		}
		if now.Before(deadline) {
			continue
		}
		a.evict(ai, ref.subImage)
		delete(a.pendingRemoval, ref)
		changed = true
	}
	return changed
}

func (a *Atlas) evict(ai *atlasImage, id subImageID) {
	si, ok := ai.subImages[id]
	if !ok {
		return
	}
	if si.cacheID.Kind != CacheIDNone {
		delete(a.cachedMap, si.cacheID)
	}
	delete(a.pendingRemoval, subRef{atlasImage: ai.id, subImage: id})
	ai.evict(id)
	slogger().Debug("atlas: evicted sub-image", "atlas_image", ai.id, "sub_image", id)
}

// processUpload returns the chosen result and whether it requires this
// cycle's GPU work to complete before becoming ready.
func (a *Atlas) processUpload(u uploadCommand) (uploadResult, bool) {
	if u.cacheID.Kind != CacheIDNone {
		if ref, ok := a.cachedMap[u.cacheID]; ok {
			if ai, ok := a.images[ref.atlasImage]; ok {
				if si, ok := ai.subImages[ref.subImage]; ok {
					si.alive++
					inner := si.inner(ai.pad)
					coords := newCoords(a, ai.id, si.id, float32(inner.X), float32(inner.Y), float32(inner.W), float32(inner.H))
					return uploadResult{coords: coords}, false
				}
			}
		}
	}

	for _, handle := range a.imageOrder {
		ai := a.images[handle]
		if res, ok := a.allocateInto(ai, u); ok {
			return res, true
		}
	}

	ai := newAtlasImage(ImageHandle(a.ids.nextID()), a.cfg, a.maxDim)
	a.images[ai.id] = ai
	a.imageOrder = append(a.imageOrder, ai.id)
	if res, ok := a.allocateInto(ai, u); ok {
		return res, true
	}

	return uploadResult{err: ErrImageTooBig}, false
}

func (a *Atlas) allocateInto(ai *atlasImage, u uploadCommand) (uploadResult, bool) {
	allocHandle, padded, ok := ai.tryAllocate(u.img.width, u.img.height)
	if !ok {
		return uploadResult{}, false
	}

	id := subImageID(a.ids.nextID())
	si := &subImage{
		id:          id,
		allocHandle: allocHandle,
		padded:      padded,
		img:         Image{Width: u.img.width, Height: u.img.height, gpuView: u.img.gpuView, gpuFormat: u.img.gpuFormat, data: u.img.data},
		cacheID:     u.cacheID,
		cacheCtrl:   u.cacheCtrl,
		alive:       1,
	}
	ai.subImages[id] = si

	if u.cacheID.Kind != CacheIDNone {
		a.cachedMap[u.cacheID] = subRef{atlasImage: ai.id, subImage: id}
	}

	inner := si.inner(ai.pad)
	coords := newCoords(a, ai.id, si.id, float32(inner.X), float32(inner.Y), float32(inner.W), float32(inner.H))
	return uploadResult{coords: coords}, true
}

func (a *Atlas) processLookup(cacheID CacheID) lookupResult {
	if cacheID.Kind == CacheIDNone {
		return lookupResult{}
	}
	ref, ok := a.cachedMap[cacheID]
	if !ok {
		return lookupResult{}
	}
	ai, ok := a.images[ref.atlasImage]
	if !ok {
		return lookupResult{}
	}
	si, ok := ai.subImages[ref.subImage]
	if !ok {
		return lookupResult{}
	}
	si.alive++
	inner := si.inner(ai.pad)
	coords := newCoords(a, ai.id, si.id, float32(inner.X), float32(inner.Y), float32(inner.W), float32(inner.H))
	return lookupResult{coords: coords, ok: true}
}

func (a *Atlas) processTempViewDropped(t tempViewDroppedCommand) {
	ai, ok := a.images[t.atlasImage]
	if !ok {
		return
	}
	if t.backingIndex < 0 || t.backingIndex >= len(ai.backings) {
		return
	}
	b := &ai.backings[t.backingIndex]
	if b.tempViewsAlive > 0 {
		b.tempViewsAlive--
	}
	if b.tempViewsAlive == 0 {
		b.updatable = true
	}
}
