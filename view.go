package atlas

import "sync/atomic"

// ImageView is the outward-facing handle published in the map returned
// by Atlas.ImageViews, realized per the arena strategy described in
// backing.go and DESIGN.md. Callers should use a view for one frame and
// then call Release; retaining one across frames blocks the worker from
// freeing the backing it was using when that backing needs to grow past
// BackingCount outstanding slots.
type ImageView struct {
	AtlasImage ImageHandle
	GPUImage   ImageID
	Extent     Extent

	backingIndex int
	stale        *atomic.Bool
	atlas        *Atlas
}

// IsStale reports whether this view's snapshot has been superseded by a
// newer publication.
func (v *ImageView) IsStale() bool {
	if v.stale == nil {
		return false
	}
	return v.stale.Load()
}

// Release notifies the worker that this temporary view is no longer in
// use, allowing its backing to become updatable again.
func (v *ImageView) Release() {
	if v.atlas == nil {
		return
	}
	v.atlas.enqueueTempViewDropped(v.AtlasImage, v.backingIndex)
}
