package atlas

// CacheIDKind discriminates the variants of CacheID.
type CacheIDKind uint8

const (
	// CacheIDNone marks an allocation that is never deduplicated.
	CacheIDNone CacheIDKind = iota
	// CacheIDPath identifies a sub-image by filesystem path.
	CacheIDPath
	// CacheIDURL identifies a sub-image by URL.
	CacheIDURL
	// CacheIDGlyph identifies a sub-image by font/glyph identity.
	CacheIDGlyph
)

// CacheID is the tagged identity used for deduplication. The zero
// value is CacheIDNone, which LoadImage never deduplicates against any
// other allocation.
//
// Glyph size participates in equality as an exact float32 bit pattern:
// two glyph requests at "the same" size only dedupe if the bits match
// exactly, not merely the rounded value.
type CacheID struct {
	Kind   CacheIDKind
	Path   string
	URL    string
	Family string
	Weight uint16
	Glyph  uint32
	Size   float32
}

// PathCacheID builds a CacheID for a file-path-identified image.
func PathCacheID(path string) CacheID { return CacheID{Kind: CacheIDPath, Path: path} }

// URLCacheID builds a CacheID for a URL-identified image.
func URLCacheID(url string) CacheID { return CacheID{Kind: CacheIDURL, URL: url} }

// GlyphCacheID builds a CacheID for one rendered glyph at a specific size.
func GlyphCacheID(family string, weight uint16, glyph uint32, size float32) CacheID {
	return CacheID{Kind: CacheIDGlyph, Family: family, Weight: weight, Glyph: glyph, Size: size}
}

// NoneCacheID returns a CacheID that is never deduplicated; every
// load_image call using it allocates a fresh sub-image.
func NoneCacheID() CacheID { return CacheID{Kind: CacheIDNone} }

// dedupes reports whether two non-None cache ids identify the same
// logical image. CacheIDNone values never dedupe, even against
// themselves.
func (c CacheID) dedupes(other CacheID) bool {
	if c.Kind == CacheIDNone || other.Kind == CacheIDNone {
		return false
	}
	return c == other
}
