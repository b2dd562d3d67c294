package atlas

// backingSlot is one element of an AtlasImage's fixed-size backing
// array. This array is the arena that resolves the cyclic parent/child
// ownership a naive design would need (see DESIGN.md): the slot plays
// the role of the "parent", and ImageView values handed to renderers
// play the role of "child", identified by (atlasImage, backingIndex)
// instead of a back-reference.
type backingSlot struct {
	image  ImageID
	extent Extent

	// contains names every sub-image currently resident in this
	// backing's GPU content.
	contains map[subImageID]struct{}

	// updatable is true iff no outstanding temporary view references
	// this backing.
	updatable bool
	// stale is true iff this backing's contents are behind the
	// canonical sub-image set for its atlas image.
	stale bool
	// pendingUpdate marks the backing chosen to be written this cycle.
	pendingUpdate bool

	// clearRegions holds padded rectangles freed by eviction, awaiting
	// zero-fill on the next update of this backing.
	clearRegions []Rect

	// tempViewsAlive counts outstanding ImageView handles into this
	// backing. Mutated only by the worker goroutine: increments when a
	// temp view is published, decrements when a tempViewDroppedCommand
	// for this slot is processed.
	tempViewsAlive int

	// currentView is the most recently published ImageView for this
	// backing, kept so its stale flag can be flipped when a newer
	// generation supersedes it.
	currentView *ImageView
}

func newBackingSlot() backingSlot {
	return backingSlot{contains: make(map[subImageID]struct{}), updatable: true}
}

// isCurrent reports whether contains already equals the canonical set.
func (b *backingSlot) isCurrent(canonical map[subImageID]struct{}) bool {
	if len(b.contains) != len(canonical) {
		return false
	}
	for id := range canonical {
		if _, ok := b.contains[id]; !ok {
			return false
		}
	}
	return true
}
