package atlas

import (
	"time"

	"github.com/AustinJ235/basalt-sub001/internal/alloc"
)

// subImage is the worker's internal record for one allocation. img is
// retained so it can still be copied into a backing created after the
// sub-image was first uploaded.
type subImage struct {
	id          subImageID
	allocHandle alloc.Handle
	// padded is the allocator's rectangle, including the pad border on
	// every side. inner (exposed to clients via Coords) is padded
	// shrunk by pad on each side.
	padded Rect

	img Image

	cacheID   CacheID
	cacheCtrl CacheCtrl

	alive int
	// zeroAt is when alive last reached zero; meaningful only under
	// CacheCtrlSeconds.
	zeroAt time.Time
}

func (s *subImage) inner(pad int) Rect {
	return Rect{X: s.padded.X + pad, Y: s.padded.Y + pad, W: s.padded.W - 2*pad, H: s.padded.H - 2*pad}
}
