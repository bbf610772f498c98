package datasets

import "testing"

func TestSampleCache(t *testing.T) {
	c := NewSampleCache(2)
	if c.Capacity() != 2 || c.Len() != 0 || c.Full() {
		t.Fatalf("unexpected empty cache state")
	}

	s0, s1, s2 := &Sample{Label: 0}, &Sample{Label: 1}, &Sample{Label: 1}
	if !c.Put(0, s0) || !c.Put(1, s1) {
		t.Fatalf("Put failed below capacity")
	}
	if !c.Full() {
		t.Fatalf("cache not full at capacity")
	}
	if c.Put(2, s2) {
		t.Fatalf("Put stored past capacity")
	}
	if _, ok := c.Get(2); ok {
		t.Fatalf("index 2 cached past capacity")
	}
	if c.Len() != 2 {
		t.Fatalf("Len %d, want 2", c.Len())
	}

	// existing entries are never replaced
	if !c.Put(0, s2) {
		t.Fatalf("Put of cached index reported false")
	}
	if got, _ := c.Get(0); got != s0 {
		t.Fatalf("cached entry replaced")
	}
}

func TestSampleCacheDisabled(t *testing.T) {
	for _, capacity := range []int{0, -3} {
		c := NewSampleCache(capacity)
		if c.Put(0, &Sample{}) {
			t.Fatalf("capacity %d: Put stored an entry", capacity)
		}
		if c.Len() != 0 || !c.Full() {
			t.Fatalf("capacity %d: unexpected state len=%d", capacity, c.Len())
		}
	}
}
