package atlas

import "sync/atomic"

// ImageHandle names one logical atlas image. Zero is reserved for
// "none"; the maximum value is reserved for "external" coordinates
// that point outside any atlas image.
type ImageHandle uint64

const (
	noImageHandle       ImageHandle = 0
	externalImageHandle ImageHandle = ^ImageHandle(0)
)

// IsNone reports whether h is the "no atlas image" sentinel.
func (h ImageHandle) IsNone() bool { return h == noImageHandle }

// IsExternal reports whether h is the "outside any atlas" sentinel.
func (h ImageHandle) IsExternal() bool { return h == externalImageHandle }

// subImageID uniquely names one allocation across the whole atlas for
// its lifetime. Values are never reused.
type subImageID uint64

// idGenerator hands out monotonically increasing ids. Each Atlas owns
// one, and it serves both atlas images and sub-images, so the two kinds
// draw from one sequence. Only the worker calls it, but it is
// atomic-backed so it needs no external synchronization.
type idGenerator struct {
	next atomic.Uint64
}

// nextID returns the next id starting at 1 (0 stays reserved for "none").
func (g *idGenerator) nextID() uint64 {
	return g.next.Add(1)
}
