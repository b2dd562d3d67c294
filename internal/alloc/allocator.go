// Package alloc implements the guillotine-style rectangle packer used
// by each atlas image. It is a single-threaded, in-process data
// structure: callers are expected to serialize access themselves (the
// atlas worker is the only caller, by construction).
package alloc

import "errors"

// ErrNoFit is returned by Allocate when a request cannot be placed even
// after growth is exhausted.
var ErrNoFit = errors.New("alloc: no fit")

// Rect is an axis-aligned integer rectangle.
type Rect struct{ X, Y, W, H int }

func (r Rect) area() int { return r.W * r.H }

func (r Rect) fits(w, h int) bool { return r.W >= w && r.H >= h }

// Handle names one live allocation. Handles are never reused.
type Handle uint64

// Allocator packs rectangular requests into a growable 2D extent using
// a guillotine split: each placement splits its host free rectangle
// along the longer remaining edge, and a small/medium/large size class
// bounded by a (small, large) threshold pair, is consulted first so a
// request tends to land among free rectangles of a similar size before
// falling back to a full scan.
type Allocator struct {
	width, height int
	maxDim        int
	small, large  int

	free   []Rect
	allocs map[Handle]Rect
	nextID uint64
}

// New creates an allocator starting at (width, height), capped at
// maxDim along either axis, with the given size-class thresholds.
func New(width, height, maxDim, smallThreshold, largeThreshold int) *Allocator {
	a := &Allocator{
		width:  width,
		height: height,
		maxDim: maxDim,
		small:  smallThreshold,
		large:  largeThreshold,
		allocs: make(map[Handle]Rect),
	}
	a.free = []Rect{{X: 0, Y: 0, W: width, H: height}}
	return a
}

// Size returns the allocator's current extent.
func (a *Allocator) Size() (int, int) { return a.width, a.height }

func (a *Allocator) sizeClass(w, h int) int {
	m := w
	if h > m {
		m = h
	}
	switch {
	case m <= a.small:
		return 0
	case m <= a.large:
		return 1
	default:
		return 2
	}
}

// Allocate places a w x h request (already including any caller-side
// padding), growing the extent if necessary. Rejects immediately if
// either axis exceeds maxDim.
func (a *Allocator) Allocate(w, h int) (Handle, Rect, error) {
	if w > a.maxDim || h > a.maxDim {
		return 0, Rect{}, ErrNoFit
	}

	if idx, ok := a.findBestFit(w, h); ok {
		return a.place(idx, w, h)
	}

	if a.growFor(w, h) {
		// growFor appends new free rectangles along whichever axis it
		// extended; a request needing both axes to grow from a small
		// extent leaves two disjoint L-shaped strips that individually
		// cannot hold w x h even though their union can. Coalesce
		// merges adjacent free rectangles back into one before the
		// single retry below, so that retry has a chance to succeed.
		a.Coalesce()
		if idx, ok := a.findBestFit(w, h); ok {
			return a.place(idx, w, h)
		}
	}

	return 0, Rect{}, ErrNoFit
}

// findBestFit returns the index of the smallest-area free rectangle
// that can hold w x h, preferring same-size-class candidates first and
// breaking ties by earliest insertion, so placement is deterministic.
func (a *Allocator) findBestFit(w, h int) (int, bool) {
	class := a.sizeClass(w, h)

	best := -1
	bestArea := 0
	for i, r := range a.free {
		if a.sizeClass(r.W, r.H) != class || !r.fits(w, h) {
			continue
		}
		if best == -1 || r.area() < bestArea {
			best, bestArea = i, r.area()
		}
	}
	if best != -1 {
		return best, true
	}

	for i, r := range a.free {
		if !r.fits(w, h) {
			continue
		}
		if best == -1 || r.area() < bestArea {
			best, bestArea = i, r.area()
		}
	}
	return best, best != -1
}

func (a *Allocator) place(freeIdx, w, h int) (Handle, Rect, error) {
	host := a.free[freeIdx]
	placed := Rect{X: host.X, Y: host.Y, W: w, H: h}

	a.free = append(a.free[:freeIdx], a.free[freeIdx+1:]...)
	a.free = append(a.free, splitFreeRect(host, placed)...)

	a.nextID++
	handle := Handle(a.nextID)
	a.allocs[handle] = placed
	return handle, placed, nil
}

// splitFreeRect divides host's leftover L-shaped region (after placed is
// carved out of its top-left corner) into up to two rectangles, cutting
// along the longer remaining edge so elongated free space stays
// contiguous.
func splitFreeRect(host, placed Rect) []Rect {
	rightW := host.W - placed.W
	bottomH := host.H - placed.H

	var out []Rect
	if rightW > bottomH {
		if rightW > 0 {
			out = append(out, Rect{X: host.X + placed.W, Y: host.Y, W: rightW, H: host.H})
		}
		if bottomH > 0 {
			out = append(out, Rect{X: host.X, Y: host.Y + placed.H, W: placed.W, H: bottomH})
		}
	} else {
		if bottomH > 0 {
			out = append(out, Rect{X: host.X, Y: host.Y + placed.H, W: host.W, H: bottomH})
		}
		if rightW > 0 {
			out = append(out, Rect{X: host.X + placed.W, Y: host.Y, W: rightW, H: placed.H})
		}
	}
	return out
}

func nextPow2Size(cur, need, maxDim int) int {
	if cur >= need {
		return cur
	}
	n := cur
	if n <= 0 {
		n = 1
	}
	for n < need && n < maxDim {
		n *= 2
	}
	if n > maxDim {
		n = maxDim
	}
	return n
}

// growFor grows the extent axis-wise, up to maxDim, preferring whichever
// single axis closes the deficit on its own.
func (a *Allocator) growFor(w, h int) bool {
	if w > a.maxDim || h > a.maxDim {
		return false
	}

	if a.height >= h {
		if newW := nextPow2Size(a.width, w, a.maxDim); newW > a.width {
			a.growWidth(newW)
			return true
		}
	}
	if a.width >= w {
		if newH := nextPow2Size(a.height, h, a.maxDim); newH > a.height {
			a.growHeight(newH)
			return true
		}
	}

	grew := false
	if newW := nextPow2Size(a.width, w, a.maxDim); newW > a.width {
		a.growWidth(newW)
		grew = true
	}
	if newH := nextPow2Size(a.height, h, a.maxDim); newH > a.height {
		a.growHeight(newH)
		grew = true
	}
	return grew
}

func (a *Allocator) growWidth(newW int) {
	if newW <= a.width {
		return
	}
	a.free = append(a.free, Rect{X: a.width, Y: 0, W: newW - a.width, H: a.height})
	a.width = newW
}

func (a *Allocator) growHeight(newH int) {
	if newH <= a.height {
		return
	}
	a.free = append(a.free, Rect{X: 0, Y: a.height, W: a.width, H: newH - a.height})
	a.height = newH
}

// Deallocate returns h's rectangle to the free set. The free set is not
// coalesced here; call Coalesce periodically to merge adjacent free
// rectangles back together.
func (a *Allocator) Deallocate(h Handle) {
	r, ok := a.allocs[h]
	if !ok {
		return
	}
	delete(a.allocs, h)
	a.free = append(a.free, r)
}

// Coalesce merges pairs of free rectangles that share a full edge,
// repeating until no further merge is found.
func (a *Allocator) Coalesce() {
	for {
		merged := false
		for i := 0; i < len(a.free); i++ {
			for j := i + 1; j < len(a.free); j++ {
				if m, ok := mergeRects(a.free[i], a.free[j]); ok {
					a.free[i] = m
					a.free = append(a.free[:j], a.free[j+1:]...)
					merged = true
					break
				}
			}
			if merged {
				break
			}
		}
		if !merged {
			return
		}
	}
}

func mergeRects(a, b Rect) (Rect, bool) {
	// Horizontally adjacent, same y-span and height.
	if a.Y == b.Y && a.H == b.H {
		if a.X+a.W == b.X {
			return Rect{X: a.X, Y: a.Y, W: a.W + b.W, H: a.H}, true
		}
		if b.X+b.W == a.X {
			return Rect{X: b.X, Y: b.Y, W: a.W + b.W, H: a.H}, true
		}
	}
	// Vertically adjacent, same x-span and width.
	if a.X == b.X && a.W == b.W {
		if a.Y+a.H == b.Y {
			return Rect{X: a.X, Y: a.Y, W: a.W, H: a.H + b.H}, true
		}
		if b.Y+b.H == a.Y {
			return Rect{X: b.X, Y: b.Y, W: a.W, H: a.H + b.H}, true
		}
	}
	return Rect{}, false
}
