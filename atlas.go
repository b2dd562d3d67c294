// Package atlas implements a concurrent, deduplicating, bin-packing GPU
// texture cache: it maps logical image identities (paths, URLs, glyphs,
// or raw GPU handles) to stable sub-regions inside a small set of large
// GPU images, serves draw-time views with staleness tracking, and
// coordinates incremental GPU uploads with lifetime-driven eviction.
package atlas

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AustinJ235/basalt-sub001/internal/format"
)

// subRef names one sub-image by its owning atlas image and local id.
type subRef struct {
	atlasImage ImageHandle
	subImage   subImageID
}

// viewSnapshot is the immutable, read-copy-update published view map:
// one writer (the worker goroutine) publishes a new pointer, and any
// number of readers load it without locking.
type viewSnapshot struct {
	publishedAt time.Time
	views       map[ImageHandle]*ImageView
}

// Atlas is the public façade of this package. All mutable allocator,
// sub-image, and backing state lives behind the single worker goroutine
// started by New; the fields below that the worker touches are never
// read or written from any other goroutine.
type Atlas struct {
	cfg     AtlasConfig
	device  Device
	storage format.StorageDescriptor
	gpuFmt  ImageFormat
	maxDim  int

	queue *commandQueue
	ids   idGenerator

	snapshot atomic.Pointer[viewSnapshot]

	linearSampler  SamplerID
	nearestSampler SamplerID
	emptyView      Coords

	decodeCache *decodeCache

	workerDone chan struct{}
	closeOnce  sync.Once
	gpuLost    atomic.Bool

	// worker-owned state: only the worker goroutine touches these
	// after New returns
	images         map[ImageHandle]*atlasImage
	imageOrder     []ImageHandle
	cachedMap      map[CacheID]subRef
	pendingRemoval map[subRef]time.Time
	deferred       []pendingUpload
}

// New constructs an Atlas backed by device, picking the first storage
// format from the preference list (built for srgbSupported) that maps to
// a GPU image format, and starts its worker goroutine. The device is not
// asked which formats it supports; every entry maps, so the first entry,
// 16-bit RGBA, is always chosen.
func New(device Device, cfg AtlasConfig, srgbSupported bool) (*Atlas, error) {
	maxDim := device.MaxImageDimension2D()
	storage, gpuFmt, ok := pickStorageFormat(srgbSupported)
	if !ok {
		return nil, ErrNoStorageFormat
	}

	cache, err := newDecodeCache(cfg.DecodeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("atlas: decode cache: %w", err)
	}

	a := &Atlas{
		cfg:            cfg,
		device:         device,
		storage:        storage,
		gpuFmt:         gpuFmt,
		maxDim:         maxDim,
		queue:          newCommandQueue(),
		decodeCache:    cache,
		workerDone:     make(chan struct{}),
		images:         make(map[ImageHandle]*atlasImage),
		cachedMap:      make(map[CacheID]subRef),
		pendingRemoval: make(map[subRef]time.Time),
	}

	linear, err := device.CreateSampler(SamplerDesc{Linear: true, Label: "atlas-linear"})
	if err != nil {
		return nil, fmt.Errorf("atlas: create linear sampler: %w", err)
	}
	nearest, err := device.CreateSampler(SamplerDesc{Linear: false, Label: "atlas-nearest"})
	if err != nil {
		return nil, fmt.Errorf("atlas: create nearest sampler: %w", err)
	}
	a.linearSampler = linear
	a.nearestSampler = nearest

	empty, err := NewImage(1, 1, format.LRGBA, format.Depth8, []byte{255, 255, 255, 255})
	if err != nil {
		return nil, err
	}
	resp := newCommandResponse[uploadResult]()
	a.queue.push(uploadCommand{resp: resp, cacheID: NoneCacheID(), cacheCtrl: Indefinite(), img: a.preparedOf(empty)})
	go a.run()
	res := resp.Wait()
	if res.err != nil {
		return nil, fmt.Errorf("atlas: create empty image: %w", res.err)
	}
	a.emptyView = res.coords

	return a, nil
}

func pickStorageFormat(srgbSupported bool) (format.StorageDescriptor, ImageFormat, bool) {
	for _, desc := range format.PreferenceList(srgbSupported) {
		if f, ok := gpuFormatFor(desc); ok {
			return desc, f, true
		}
	}
	return format.StorageDescriptor{}, 0, false
}

func gpuFormatFor(desc format.StorageDescriptor) (ImageFormat, bool) {
	switch desc.Format {
	case format.StorageRGBA16:
		return ImageFormatRGBA16Unorm, true
	case format.StorageRGBA8:
		if desc.SRGBEncoded {
			return ImageFormatRGBA8UnormSRGB, true
		}
		return ImageFormatRGBA8Unorm, true
	case format.StorageBGRA8:
		if desc.SRGBEncoded {
			return ImageFormatBGRA8UnormSRGB, true
		}
		return ImageFormatBGRA8Unorm, true
	case format.StorageABGR8Packed:
		return ImageFormatABGR8UnormPacked, true
	default:
		return 0, false
	}
}

// preparedImage is what the worker actually consumes for an Upload: the
// calling thread has already converted a raw Image into the atlas
// storage format, or carries an already-resident GPU view untouched.
type preparedImage struct {
	width, height int
	gpuResident   bool
	data          []byte
	gpuView       ImageID
	gpuFormat     ImageFormat
}

func (a *Atlas) preparedOf(img Image) preparedImage {
	if img.isGPUResident() {
		return preparedImage{width: img.Width, height: img.Height, gpuResident: true, gpuView: img.gpuView, gpuFormat: img.gpuFormat}
	}
	data, err := format.Convert(img.sourceImage(), a.storage)
	if err != nil {
		// img was already validated by NewImage; a conversion failure
		// here would mean an internal inconsistency, not a client
		// error, so the payload is replaced by a zero-filled one and
		// worker allocation still proceeds against the declared
		// dimensions.
		data = make([]byte, img.Width*img.Height*a.storage.Format.BytesPerPixel())
	}
	return preparedImage{width: img.Width, height: img.Height, data: data}
}

// LoadImage posts img under cacheID with the given eviction policy and
// blocks until the worker has published GPU-resident coordinates for
// it. Non-None cache ids first hit deduplication, the same lookup
// CacheCoords performs: a second load under the same cache id returns
// the existing allocation and discards img's payload.
func (a *Atlas) LoadImage(cacheID CacheID, cacheCtrl CacheCtrl, img Image) (Coords, error) {
	if a.gpuLost.Load() {
		return Coords{}, ErrGPULost
	}
	resp := newCommandResponse[uploadResult]()
	a.queue.push(uploadCommand{resp: resp, cacheID: cacheID, cacheCtrl: cacheCtrl, img: a.preparedOf(img)})
	res := resp.Wait()
	return res.coords, res.err
}

// LoadImageFromBytes decodes an already-fetched byte buffer and calls
// LoadImage. sRGB vs. linear is inferred from the container hint (JPEG
// implies sRGB, everything else implies linear).
func (a *Atlas) LoadImageFromBytes(cacheID CacheID, cacheCtrl CacheCtrl, data []byte, hint ContainerHint, decode Decoder) (Coords, error) {
	if coords, ok := a.CacheCoords(cacheID); ok {
		return coords, nil
	}
	w, h, pf, depth, pixels, err := decode(data, hint)
	if err != nil {
		return Coords{}, fmt.Errorf("atlas: decode: %w", err)
	}
	img, err := NewImage(w, h, pf, depth, pixels)
	if err != nil {
		return Coords{}, err
	}
	return a.LoadImage(cacheID, cacheCtrl, img)
}

// ContainerHint names the source container of a decoded byte buffer,
// used only to pick a default linear/sRGB PixelFormat.
type ContainerHint uint8

const (
	ContainerUnknown ContainerHint = iota
	ContainerJPEG
)

// Decoder decodes an encoded image buffer into raw pixels plus their
// declared dimensions, PixelFormat and Depth. Image decoding itself is
// an external collaborator; callers supply their own.
type Decoder func(data []byte, hint ContainerHint) (w, h int, pf format.PixelFormat, depth format.Depth, pixels []byte, err error)

// LoadImageFromPath decodes the file at path (skipping decode entirely
// on a cache-coords hit or a decode-cache hit) and loads it under
// PathCacheID(path).
func (a *Atlas) LoadImageFromPath(path string, cacheCtrl CacheCtrl, readFile func(string) ([]byte, error), decode Decoder) (Coords, error) {
	cacheID := PathCacheID(path)
	if coords, ok := a.CacheCoords(cacheID); ok {
		return coords, nil
	}
	if img, ok := a.decodeCache.get(path); ok {
		return a.LoadImage(cacheID, cacheCtrl, img)
	}
	data, err := readFile(path)
	if err != nil {
		return Coords{}, fmt.Errorf("atlas: read %s: %w", path, err)
	}
	w, h, pf, depth, pixels, err := decode(data, ContainerUnknown)
	if err != nil {
		return Coords{}, fmt.Errorf("atlas: decode %s: %w", path, err)
	}
	img, err := NewImage(w, h, pf, depth, pixels)
	if err != nil {
		return Coords{}, err
	}
	a.decodeCache.add(path, img)
	return a.LoadImage(cacheID, cacheCtrl, img)
}

// LoadImageFromURL fetches url over HTTP, decodes it, and loads it
// under URLCacheID(url). JPEG responses are treated as sRGB.
func (a *Atlas) LoadImageFromURL(url string, cacheCtrl CacheCtrl, client *http.Client, decode Decoder) (Coords, error) {
	cacheID := URLCacheID(url)
	if coords, ok := a.CacheCoords(cacheID); ok {
		return coords, nil
	}
	if img, ok := a.decodeCache.get(url); ok {
		return a.LoadImage(cacheID, cacheCtrl, img)
	}

	resp, err := client.Get(url)
	if err != nil {
		return Coords{}, fmt.Errorf("atlas: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Coords{}, fmt.Errorf("atlas: read %s: %w", url, err)
	}

	hint := ContainerUnknown
	if ct := resp.Header.Get("Content-Type"); ct == "image/jpeg" {
		hint = ContainerJPEG
	}

	w, h, pf, depth, pixels, err := decode(data, hint)
	if err != nil {
		return Coords{}, fmt.Errorf("atlas: decode %s: %w", url, err)
	}
	img, err := NewImage(w, h, pf, depth, pixels)
	if err != nil {
		return Coords{}, err
	}
	a.decodeCache.add(url, img)
	return a.LoadImage(cacheID, cacheCtrl, img)
}

// CacheCoords performs a synchronous point lookup, incrementing the
// sub-image's refcount on hit.
func (a *Atlas) CacheCoords(cacheID CacheID) (Coords, bool) {
	resp := newCommandResponse[lookupResult]()
	a.queue.push(lookupCommand{resp: resp, cacheID: cacheID})
	res := resp.Wait()
	return res.coords, res.ok
}

// BatchCacheCoords performs every lookup in one worker round-trip,
// equal element-wise to calling CacheCoords for each id in order.
func (a *Atlas) BatchCacheCoords(cacheIDs []CacheID) []Coords {
	resp := newCommandResponse[[]lookupResult]()
	a.queue.push(batchLookupCommand{resp: resp, cacheIDs: append([]CacheID(nil), cacheIDs...)})
	results := resp.Wait()
	out := make([]Coords, len(results))
	for i, r := range results {
		if r.ok {
			out[i] = r.coords
		} else {
			out[i] = NoneCoords()
		}
	}
	return out
}

// EmptyImage returns a 1x1 opaque-white view usable as a "no texture"
// binding.
func (a *Atlas) EmptyImage() Coords { return a.emptyView.Clone() }

// ImageViews returns the most recently published snapshot of atlas
// backings, or false if none has been published yet. Callers must not
// retain the result across frames.
func (a *Atlas) ImageViews() (time.Time, map[ImageHandle]*ImageView, bool) {
	snap := a.snapshot.Load()
	if snap == nil {
		return time.Time{}, nil, false
	}
	return snap.publishedAt, snap.views, true
}

// LinearSampler returns the cached linear-filtering sampler.
func (a *Atlas) LinearSampler() SamplerID { return a.linearSampler }

// NearestSampler returns the cached nearest-filtering sampler.
func (a *Atlas) NearestSampler() SamplerID { return a.nearestSampler }

// Close stops the worker goroutine. In-flight responses still resolve;
// no further commands are accepted afterward.
func (a *Atlas) Close() {
	a.closeOnce.Do(func() {
		a.queue.close()
		<-a.workerDone
	})
}

func (a *Atlas) enqueueDropped(atlasImage ImageHandle, sub subImageID) {
	a.queue.push(droppedCommand{atlasImage: atlasImage, subImage: sub})
}

func (a *Atlas) enqueueTempViewDropped(atlasImage ImageHandle, backingIndex int) {
	a.queue.push(tempViewDroppedCommand{atlasImage: atlasImage, backingIndex: backingIndex})
}
