package atlas

import lru "github.com/hashicorp/golang-lru"

// decodeCache bounds the number of decoded Image payloads kept around
// so a path or URL that is requested again after its atlas allocation
// was evicted does not pay a full decode again. It uses a
// library-backed LRU for this CPU-side cache rather than a second
// hand-rolled eviction list alongside the GPU-side one.
type decodeCache struct {
	cache *lru.Cache
}

func newDecodeCache(size int) (*decodeCache, error) {
	c, err := lru.New(max(size, 1))
	if err != nil {
		return nil, err
	}
	return &decodeCache{cache: c}, nil
}

func (d *decodeCache) get(key string) (Image, bool) {
	v, ok := d.cache.Get(key)
	if !ok {
		return Image{}, false
	}
	return v.(Image), true
}

func (d *decodeCache) add(key string, img Image) {
	d.cache.Add(key, img)
}
