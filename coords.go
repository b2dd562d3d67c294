package atlas

import "sync/atomic"

// Coords is the public handle returned by LoadImage and the cache
// lookups. ImageID and the texel rectangle are always valid; Release
// must be called exactly once per handle that carries a refcounted
// inner (i.e. was not produced by NoneCoords or ExternalCoords) once
// the caller no longer needs the allocation.
type Coords struct {
	ImageID ImageHandle
	// X, Y, W, H are the top-left x, top-left y, width and height of
	// the sub-image in atlas texel space.
	X, Y, W, H float32

	inner *coordsInner
}

// coordsInner is the shared, refcounted drop hook. Cloning a Coords
// increments it; Release decrements it. It deliberately does not call
// the worker's unparker itself on drop: the enqueued droppedCommand
// travels through the same commandQueue.push path as every other
// command, which performs the unpark, so no separate wakeup is needed.
type coordsInner struct {
	atlas      *Atlas
	atlasImage ImageHandle
	subImage   subImageID
	refs       atomic.Int32
	released   atomic.Bool
}

func newCoords(a *Atlas, atlasImage ImageHandle, subImage subImageID, x, y, w, h float32) Coords {
	inner := &coordsInner{atlas: a, atlasImage: atlasImage, subImage: subImage}
	inner.refs.Store(1)
	return Coords{ImageID: atlasImage, X: x, Y: y, W: w, H: h, inner: inner}
}

// NoneCoords returns the sentinel "no image" handle. It carries no
// refcounted inner and Release is a no-op on it.
func NoneCoords() Coords {
	return Coords{ImageID: noImageHandle}
}

// ExternalCoords returns the sentinel for coordinates that lie outside
// any atlas image, used for content the caller manages on its own GPU
// image rather than inside an atlas backing. It carries no refcounted
// inner.
func ExternalCoords(x, y, w, h float32) Coords {
	return Coords{ImageID: externalImageHandle, X: x, Y: y, W: w, H: h}
}

// IsNone reports whether c is the NoneCoords sentinel.
func (c Coords) IsNone() bool { return c.ImageID.IsNone() }

// IsExternal reports whether c is an ExternalCoords sentinel.
func (c Coords) IsExternal() bool { return c.ImageID.IsExternal() }

// Clone increments the refcount and returns a handle that must be
// released independently of c.
func (c Coords) Clone() Coords {
	if c.inner != nil {
		c.inner.refs.Add(1)
	}
	return c
}

// Release decrements the refcount. When the last clone of a
// non-sentinel Coords is released, a droppedCommand is enqueued to the
// owning atlas's worker; it is a no-op on NoneCoords/ExternalCoords or
// on an already-released handle.
func (c Coords) Release() {
	if c.inner == nil {
		return
	}
	if c.inner.refs.Add(-1) != 0 {
		return
	}
	if !c.inner.released.CompareAndSwap(false, true) {
		return
	}
	c.inner.atlas.enqueueDropped(c.inner.atlasImage, c.inner.subImage)
}

// Equal compares image id, rectangle, and (if present) the owning
// atlas identity plus sub-image id.
func (c Coords) Equal(other Coords) bool {
	if c.ImageID != other.ImageID || c.X != other.X || c.Y != other.Y || c.W != other.W || c.H != other.H {
		return false
	}
	if (c.inner == nil) != (other.inner == nil) {
		return false
	}
	if c.inner == nil {
		return true
	}
	return c.inner.atlas == other.inner.atlas && c.inner.subImage == other.inner.subImage
}
