package alloc

import "testing"

func overlaps(a, b Rect) bool {
	if a.X+a.W <= b.X || b.X+b.W <= a.X {
		return false
	}
	if a.Y+a.H <= b.Y || b.Y+b.H <= a.Y {
		return false
	}
	return true
}

func TestAllocateNonOverlapping(t *testing.T) {
	a := New(512, 512, 4096, 16, 1024)

	var placed []Rect
	sizes := [][2]int{{14, 14}, {24, 34}, {18, 18}, {100, 20}, {20, 100}}
	for _, s := range sizes {
		_, r, err := a.Allocate(s[0], s[1])
		if err != nil {
			t.Fatalf("allocate %v: %v", s, err)
		}
		for _, prev := range placed {
			if overlaps(prev, r) {
				t.Fatalf("rect %v overlaps %v", r, prev)
			}
		}
		placed = append(placed, r)
	}
}

func TestAllocateExactPlacement(t *testing.T) {
	a := New(512, 512, 4096, 16, 1024)

	_, r1, err := a.Allocate(14, 14)
	if err != nil {
		t.Fatalf("allocate 1: %v", err)
	}
	if r1 != (Rect{X: 0, Y: 0, W: 14, H: 14}) {
		t.Fatalf("unexpected first placement: %v", r1)
	}

	_, r2, err := a.Allocate(24, 34)
	if err != nil {
		t.Fatalf("allocate 2: %v", err)
	}
	if overlaps(r1, r2) {
		t.Fatalf("second allocation overlaps first: %v vs %v", r2, r1)
	}
}

func TestAllocateGrows(t *testing.T) {
	a := New(512, 512, 4096, 16, 1024)

	_, r, err := a.Allocate(600, 600)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	w, h := a.Size()
	if w < 604 || h < 604 {
		t.Fatalf("expected extent to grow to at least 604x604, got %dx%d", w, h)
	}
	if r.X != 0 || r.Y != 0 {
		t.Fatalf("expected placement at origin, got %v", r)
	}
}

func TestAllocateRejectsOverMaxDim(t *testing.T) {
	a := New(512, 512, 4096, 16, 1024)
	_, _, err := a.Allocate(4097, 1)
	if err != ErrNoFit {
		t.Fatalf("expected ErrNoFit, got %v", err)
	}
}

func TestDeallocateAndCoalesceReclaims(t *testing.T) {
	a := New(64, 64, 4096, 16, 1024)

	h1, r1, err := a.Allocate(64, 32)
	if err != nil {
		t.Fatalf("allocate 1: %v", err)
	}
	_, _, err = a.Allocate(64, 32)
	if err != nil {
		t.Fatalf("allocate 2: %v", err)
	}

	a.Deallocate(h1)
	a.Coalesce()

	_, r3, err := a.Allocate(64, 32)
	if err != nil {
		t.Fatalf("allocate 3 after coalesce: %v", err)
	}
	if r3 != r1 {
		t.Fatalf("expected reclaimed rect %v, got %v", r1, r3)
	}
}

func TestSmallRequestPlacesInLargeFreeRect(t *testing.T) {
	a := New(2048, 2048, 4096, 16, 1024)

	// A large free rectangle already exists (the whole atlas). A small
	// request should still place cleanly without error regardless of
	// which free rect class is searched first.
	_, r, err := a.Allocate(8, 8)
	if err != nil {
		t.Fatalf("allocate small: %v", err)
	}
	if r.W != 8 || r.H != 8 {
		t.Fatalf("unexpected size: %v", r)
	}
}
