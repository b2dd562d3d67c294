package atlas

import "github.com/AustinJ235/basalt-sub001/internal/alloc"

// atlasImage is the worker's internal record for one logical atlas
// image, created on demand and retained for the process lifetime: once
// created, an atlas image is never torn down, only grown.
type atlasImage struct {
	id        ImageHandle
	allocator *alloc.Allocator
	subImages map[subImageID]*subImage
	backings  []backingSlot
	active    int // index into backings, -1 if none published yet

	pad int
	// maxAllocSeen is the largest single allocation (padded area) ever
	// attempted against this atlas image. It is recorded only; nothing
	// reads it, and freed regions are zeroed with ClearColorImage rather
	// than from a zero-filled staging buffer.
	maxAllocSeen int
}

func newAtlasImage(id ImageHandle, cfg AtlasConfig, maxDim int) *atlasImage {
	backings := make([]backingSlot, cfg.BackingCount)
	for i := range backings {
		backings[i] = newBackingSlot()
	}
	return &atlasImage{
		id:        id,
		allocator: alloc.New(cfg.InitialExtent, cfg.InitialExtent, maxDim, cfg.AllocSmall, cfg.AllocLarge),
		subImages: make(map[subImageID]*subImage),
		backings:  backings,
		active:    -1,
		pad:       cfg.Pad,
	}
}

// tryAllocate attempts to place a w x h (unpadded) request, returning
// the allocator handle and padded rectangle on success.
func (ai *atlasImage) tryAllocate(w, h int) (alloc.Handle, Rect, bool) {
	pw, ph := w+2*ai.pad, h+2*ai.pad
	if pw*ph > ai.maxAllocSeen {
		ai.maxAllocSeen = pw * ph
	}
	handle, r, err := ai.allocator.Allocate(pw, ph)
	if err != nil {
		return 0, Rect{}, false
	}
	return handle, Rect{X: r.X, Y: r.Y, W: r.W, H: r.H}, true
}

// canonicalSet returns the set of sub-image ids that should be resident
// in every up-to-date backing of this atlas image.
func (ai *atlasImage) canonicalSet() map[subImageID]struct{} {
	set := make(map[subImageID]struct{}, len(ai.subImages))
	for id := range ai.subImages {
		set[id] = struct{}{}
	}
	return set
}

// evict removes a sub-image, returns its allocation to the allocator,
// and schedules its rectangle for zero-fill in every backing.
func (ai *atlasImage) evict(id subImageID) {
	si, ok := ai.subImages[id]
	if !ok {
		return
	}
	ai.allocator.Deallocate(si.allocHandle)
	ai.allocator.Coalesce()
	delete(ai.subImages, id)
	for i := range ai.backings {
		if _, had := ai.backings[i].contains[id]; had {
			delete(ai.backings[i].contains, id)
			ai.backings[i].clearRegions = append(ai.backings[i].clearRegions, si.padded)
		}
	}
}

func (ai *atlasImage) extent() (int, int) { return ai.allocator.Size() }
