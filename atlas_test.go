package atlas_test

import (
	"testing"
	"time"

	atlas "github.com/AustinJ235/basalt-sub001"
	"github.com/AustinJ235/basalt-sub001/internal/format"
	"github.com/AustinJ235/basalt-sub001/internal/gpufake"
)

func solidImage(t *testing.T, w, h int, pf format.PixelFormat, depth format.Depth, r, g, b, a byte) atlas.Image {
	t.Helper()
	comps := pf.Components()
	bps := 1
	if depth == format.Depth16 {
		bps = 2
	}
	channels := [4]byte{r, g, b, a}
	data := make([]byte, w*h*comps*bps)
	for i := 0; i < w*h; i++ {
		base := i * comps * bps
		for c := 0; c < comps; c++ {
			v := channels[c]
			if bps == 2 {
				data[base+c*2] = v
				data[base+c*2+1] = v
			} else {
				data[base+c] = v
			}
		}
	}
	img, err := atlas.NewImage(w, h, pf, depth, data)
	if err != nil {
		t.Fatalf("NewImage: %v", err)
	}
	return img
}

func newTestAtlas(t *testing.T, cfg atlas.AtlasConfig) (*atlas.Atlas, *gpufake.Device) {
	t.Helper()
	dev := gpufake.New(4096)
	a, err := atlas.New(dev, cfg, true)
	if err != nil {
		t.Fatalf("atlas.New: %v", err)
	}
	t.Cleanup(a.Close)
	return a, dev
}

// smallCfg returns the default atlas config. It exists as a named seam
// so individual tests can be retargeted at a cheaper config (smaller
// InitialExtent/BackingCount) without touching every call site; the
// scenario tests below assert against the literal 512x512 initial
// extent from spec §3, so they keep the default here.
func smallCfg() atlas.AtlasConfig {
	return atlas.DefaultAtlasConfig()
}

func rectsOverlap(ax, ay, aw, ah, bx, by, bw, bh float32) bool {
	if ax+aw <= bx || bx+bw <= ax {
		return false
	}
	if ay+ah <= by || by+bh <= ay {
		return false
	}
	return true
}

// Scenario 1: load a 10x10 solid-red image under Immediate, expect the
// first allocation to land padded by 2 on every side, and expect
// dropping the last handle to make a subsequent lookup miss.
func TestScenarioImmediateEvictionAfterDrop(t *testing.T) {
	a, _ := newTestAtlas(t, smallCfg())

	img := solidImage(t, 10, 10, format.LRGBA, format.Depth8, 255, 0, 0, 255)
	coords, err := a.LoadImage(atlas.PathCacheID("a"), atlas.Immediate(), img)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	if coords.ImageID != 1 {
		t.Fatalf("expected first atlas image id 1, got %v", coords.ImageID)
	}
	if coords.X != 2 || coords.Y != 2 || coords.W != 10 || coords.H != 10 {
		t.Fatalf("unexpected coords: %+v", coords)
	}

	coords.Release()

	// Release enqueues its Dropped command on the same FIFO queue
	// CacheCoords' lookup travels over, so the lookup below is
	// guaranteed to observe the drop regardless of worker timing.
	if _, ok := a.CacheCoords(atlas.PathCacheID("a")); ok {
		t.Fatalf("expected eviction to be visible after the last handle drops")
	}
}

// Scenario 2: two images loaded Indefinite must not overlap and must
// stay within the initial 512x512 extent.
func TestScenarioTwoImagesNonOverlapping(t *testing.T) {
	a, _ := newTestAtlas(t, smallCfg())

	red := solidImage(t, 10, 10, format.LRGBA, format.Depth8, 255, 0, 0, 255)
	redCoords, err := a.LoadImage(atlas.PathCacheID("red"), atlas.Indefinite(), red)
	if err != nil {
		t.Fatalf("LoadImage red: %v", err)
	}
	defer redCoords.Release()

	blue := solidImage(t, 20, 30, format.SRGB, format.Depth8, 0, 0, 255, 255)
	blueCoords, err := a.LoadImage(atlas.PathCacheID("blue"), atlas.Indefinite(), blue)
	if err != nil {
		t.Fatalf("LoadImage blue: %v", err)
	}
	defer blueCoords.Release()

	if rectsOverlap(redCoords.X, redCoords.Y, redCoords.W, redCoords.H,
		blueCoords.X, blueCoords.Y, blueCoords.W, blueCoords.H) {
		t.Fatalf("rectangles overlap: red=%+v blue=%+v", redCoords, blueCoords)
	}

	const extent = 512
	for _, c := range []atlas.Coords{redCoords, blueCoords} {
		if c.X < 2 || c.Y < 2 || c.X+c.W > extent-2 || c.Y+c.H > extent-2 {
			t.Fatalf("coords not contained in padded extent: %+v", c)
		}
	}
}

// Scenario 3: a 600x600 image against a 512x512 initial extent forces
// growth to at least 604x604 and still places at the padded origin.
func TestScenarioGrowsAtlasImage(t *testing.T) {
	a, _ := newTestAtlas(t, smallCfg())

	img := solidImage(t, 600, 600, format.LRGBA, format.Depth8, 10, 20, 30, 255)
	coords, err := a.LoadImage(atlas.NoneCacheID(), atlas.Indefinite(), img)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	defer coords.Release()

	if coords.X != 2 || coords.Y != 2 || coords.W != 600 || coords.H != 600 {
		t.Fatalf("unexpected placement: %+v", coords)
	}
}

// Scenario 4: a request wider than the device maximum dimension (even
// in a fresh atlas image) reports ErrImageTooBig.
func TestScenarioImageTooBig(t *testing.T) {
	dev := gpufake.New(16)
	a, err := atlas.New(dev, smallCfg(), true)
	if err != nil {
		t.Fatalf("atlas.New: %v", err)
	}
	defer a.Close()

	img := solidImage(t, 17, 1, format.LRGBA, format.Depth8, 0, 0, 0, 255)
	_, err = a.LoadImage(atlas.NoneCacheID(), atlas.Indefinite(), img)
	if err == nil {
		t.Fatalf("expected an error for an over-max-dimension image")
	}
}

// Scenario 5: 10 distinct glyph uploads followed by a single
// BatchCacheCoords round-trip return 10 hits in order with no overlap.
func TestScenarioBatchGlyphLookup(t *testing.T) {
	a, _ := newTestAtlas(t, smallCfg())

	ids := make([]atlas.CacheID, 10)
	var coordsList []atlas.Coords
	for i := 0; i < 10; i++ {
		ids[i] = atlas.GlyphCacheID("Sans", 400, uint32(i), 16.0)
		img := solidImage(t, 8, 8, format.LMono, format.Depth8, byte(i*20), 0, 0, 255)
		c, err := a.LoadImage(ids[i], atlas.Indefinite(), img)
		if err != nil {
			t.Fatalf("LoadImage glyph %d: %v", i, err)
		}
		coordsList = append(coordsList, c)
	}
	defer func() {
		for _, c := range coordsList {
			c.Release()
		}
	}()

	results := a.BatchCacheCoords(ids)
	if len(results) != 10 {
		t.Fatalf("expected 10 results, got %d", len(results))
	}
	for i, r := range results {
		if r.IsNone() {
			t.Fatalf("glyph %d: expected a hit", i)
		}
		if r.ImageID != 1 {
			t.Fatalf("glyph %d: expected image_id=1, got %v", i, r.ImageID)
		}
		r.Release()
	}
	for i := 0; i < len(results); i++ {
		for j := i + 1; j < len(results); j++ {
			if rectsOverlap(results[i].X, results[i].Y, results[i].W, results[i].H,
				results[j].X, results[j].Y, results[j].W, results[j].H) {
				t.Fatalf("glyph %d overlaps glyph %d", i, j)
			}
		}
	}
}

// Deduplication: two loads under the same non-None cache id return
// equal coords pointing at the same sub-image.
func TestDeduplicationReturnsSameSubImage(t *testing.T) {
	a, _ := newTestAtlas(t, smallCfg())

	id := atlas.PathCacheID("dup")
	img1 := solidImage(t, 5, 5, format.LRGBA, format.Depth8, 1, 2, 3, 255)
	c1, err := a.LoadImage(id, atlas.Indefinite(), img1)
	if err != nil {
		t.Fatalf("load 1: %v", err)
	}
	defer c1.Release()

	img2 := solidImage(t, 5, 5, format.LRGBA, format.Depth8, 200, 200, 200, 255)
	c2, err := a.LoadImage(id, atlas.Indefinite(), img2)
	if err != nil {
		t.Fatalf("load 2: %v", err)
	}
	defer c2.Release()

	if !c1.Equal(c2) {
		t.Fatalf("expected equal coords for deduplicated load: %+v vs %+v", c1, c2)
	}
}

// Refcount safety: while a clone is live, a direct lookup still returns
// the sub-image, even after the original handle is released.
func TestRefcountKeepsSubImageAliveUntilAllDrop(t *testing.T) {
	a, _ := newTestAtlas(t, smallCfg())

	id := atlas.PathCacheID("ref")
	img := solidImage(t, 4, 4, format.LRGBA, format.Depth8, 9, 9, 9, 255)
	c, err := a.LoadImage(id, atlas.Immediate(), img)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	clone := c.Clone()
	c.Release()

	if _, ok := a.CacheCoords(id); !ok {
		t.Fatalf("expected sub-image to remain resident while clone is live")
	}

	clone.Release()
}

// TTL eviction: a Seconds(n) policy keeps the sub-image resident until
// the deadline passes and a subsequent upload runs the removal sweep.
func TestTTLEvictionAfterDeadlineAndNextUpload(t *testing.T) {
	a, _ := newTestAtlas(t, smallCfg())

	id := atlas.PathCacheID("ttl")
	img := solidImage(t, 4, 4, format.LRGBA, format.Depth8, 1, 1, 1, 255)
	c, err := a.LoadImage(id, atlas.AfterSeconds(0), img)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}
	c.Release()

	time.Sleep(5 * time.Millisecond)

	// Trigger a cycle that processes uploads, so the pending-removal
	// sweep (spec §4.3 step 3) actually runs.
	other := solidImage(t, 4, 4, format.LRGBA, format.Depth8, 2, 2, 2, 255)
	oc, err := a.LoadImage(atlas.NoneCacheID(), atlas.Indefinite(), other)
	if err != nil {
		t.Fatalf("LoadImage other: %v", err)
	}
	defer oc.Release()

	if _, ok := a.CacheCoords(id); ok {
		t.Fatalf("expected sub-image to have been evicted after TTL deadline")
	}
}

// Idempotent lookup: BatchCacheCoords must equal element-wise calling
// CacheCoords for each id.
func TestBatchLookupMatchesIndividualLookups(t *testing.T) {
	a, _ := newTestAtlas(t, smallCfg())

	ids := make([]atlas.CacheID, 5)
	for i := range ids {
		ids[i] = atlas.PathCacheID(string(rune('a' + i)))
		img := solidImage(t, 3, 3, format.LRGBA, format.Depth8, byte(i), 0, 0, 255)
		c, err := a.LoadImage(ids[i], atlas.Indefinite(), img)
		if err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
		defer c.Release()
	}
	// One id with no prior load: a genuine miss.
	ids = append(ids, atlas.PathCacheID("missing"))

	batch := a.BatchCacheCoords(ids)
	for i, id := range ids {
		single, ok := a.CacheCoords(id)
		if ok != !batch[i].IsNone() {
			t.Fatalf("id %d: batch hit=%v single hit=%v", i, !batch[i].IsNone(), ok)
		}
		if ok {
			if !single.Equal(batch[i]) {
				t.Fatalf("id %d: batch result %+v != single result %+v", i, batch[i], single)
			}
			single.Release()
			batch[i].Release()
		}
	}
}

// View freshness: after a second upload's cycle completes, the first
// snapshot's backing for that atlas image reports stale, and the new
// snapshot carries a later timestamp.
func TestImageViewsPublishesFreshSnapshotAndMarksPriorStale(t *testing.T) {
	a, _ := newTestAtlas(t, smallCfg())

	img1 := solidImage(t, 4, 4, format.LRGBA, format.Depth8, 1, 1, 1, 255)
	c1, err := a.LoadImage(atlas.NoneCacheID(), atlas.Indefinite(), img1)
	if err != nil {
		t.Fatalf("load 1: %v", err)
	}
	defer c1.Release()

	t1, views1, ok := a.ImageViews()
	if !ok {
		t.Fatalf("expected a published snapshot")
	}
	v1, ok := views1[c1.ImageID]
	if !ok {
		t.Fatalf("expected a view for atlas image %v", c1.ImageID)
	}
	if v1.IsStale() {
		t.Fatalf("freshly published view should not be stale")
	}

	// Hold a temporary view so the active backing is not updatable,
	// forcing the next update to mark v1 stale rather than reuse it.
	img2 := solidImage(t, 4, 4, format.LRGBA, format.Depth8, 2, 2, 2, 255)
	c2, err := a.LoadImage(atlas.NoneCacheID(), atlas.Indefinite(), img2)
	if err != nil {
		t.Fatalf("load 2: %v", err)
	}
	defer c2.Release()

	t2, views2, ok := a.ImageViews()
	if !ok {
		t.Fatalf("expected a published snapshot")
	}
	if !t2.After(t1) {
		t.Fatalf("expected second snapshot timestamp %v to be after first %v", t2, t1)
	}
	if _, ok := views2[c2.ImageID]; !ok {
		t.Fatalf("expected a view for the second atlas image in the new snapshot")
	}
	if c1.ImageID == c2.ImageID && !v1.IsStale() {
		t.Fatalf("expected the superseded view to be marked stale once a newer generation publishes")
	}
}

// EmptyImage returns a usable 1x1 coords handle that participates in
// normal refcounting.
func TestEmptyImage(t *testing.T) {
	a, _ := newTestAtlas(t, smallCfg())

	empty := a.EmptyImage()
	if empty.IsNone() || empty.IsExternal() {
		t.Fatalf("expected a concrete 1x1 coords, got %+v", empty)
	}
	if empty.W != 1 || empty.H != 1 {
		t.Fatalf("expected 1x1 empty image, got %+v", empty)
	}
	empty.Release()
}

// NoneCoords and ExternalCoords are sentinels that never carry a
// refcounted inner and are safe to Release repeatedly.
func TestSentinelCoordsReleaseIsNoop(t *testing.T) {
	n := atlas.NoneCoords()
	if !n.IsNone() {
		t.Fatalf("expected IsNone")
	}
	n.Release()
	n.Release()

	ext := atlas.ExternalCoords(1, 2, 3, 4)
	if !ext.IsExternal() {
		t.Fatalf("expected IsExternal")
	}
	ext.Release()
}

// NewImage rejects a payload whose length disagrees with
// width*height*components(format).
func TestNewImageRejectsDataLengthMismatch(t *testing.T) {
	_, err := atlas.NewImage(4, 4, format.LRGBA, format.Depth8, make([]byte, 10))
	if err == nil {
		t.Fatalf("expected a data length mismatch error")
	}
}

// NewImage rejects zero dimensions.
func TestNewImageRejectsZeroDimensions(t *testing.T) {
	_, err := atlas.NewImage(0, 4, format.LRGBA, format.Depth8, nil)
	if err == nil {
		t.Fatalf("expected an invalid dimensions error")
	}
}
