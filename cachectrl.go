package atlas

import "time"

// CacheCtrlKind discriminates the variants of CacheCtrl.
type CacheCtrlKind uint8

const (
	// CacheCtrlImmediate evicts a sub-image as soon as its refcount
	// reaches zero, on the same worker cycle that observes the drop.
	CacheCtrlImmediate CacheCtrlKind = iota
	// CacheCtrlIndefinite never evicts a sub-image once refcount hits
	// zero; it stays resident until the process exits.
	CacheCtrlIndefinite
	// CacheCtrlSeconds makes a sub-image eligible for eviction Seconds
	// after its refcount reaches zero, unless it is re-referenced before
	// the deadline. Expired entries are only swept on a worker cycle that
	// also processes an upload, so on an idle atlas eviction happens at
	// the first upload after the deadline.
	CacheCtrlSeconds
)

// CacheCtrl is the lifetime policy applied once a sub-image's refcount
// reaches zero.
type CacheCtrl struct {
	Kind    CacheCtrlKind
	Seconds uint64
}

// Immediate is the CacheCtrl that evicts on the same cycle the last
// handle drops.
func Immediate() CacheCtrl { return CacheCtrl{Kind: CacheCtrlImmediate} }

// Indefinite is the CacheCtrl that never evicts.
func Indefinite() CacheCtrl { return CacheCtrl{Kind: CacheCtrlIndefinite} }

// AfterSeconds is the CacheCtrl that evicts once n seconds have passed
// since the last handle dropped, unless re-referenced first; the
// eviction itself happens on the next cycle that processes an upload.
func AfterSeconds(n uint64) CacheCtrl { return CacheCtrl{Kind: CacheCtrlSeconds, Seconds: n} }

// deadline computes the eviction instant for a Seconds policy starting
// from the moment refcount reached zero. Callers must only invoke this
// for CacheCtrlSeconds.
func (c CacheCtrl) deadline(zeroAt time.Time) time.Time {
	return zeroAt.Add(time.Duration(c.Seconds) * time.Second)
}
