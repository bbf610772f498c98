package datasets

import "github.com/Noofbiz/facePairs/pointcloud"

// Sample is one loaded pair.
type Sample struct {
	A     *pointcloud.Cloud
	B     *pointcloud.Cloud
	Label int32
}

// SampleCache keeps loaded pairs by index. It holds at most Capacity
// entries and never evicts: once full, new indices are simply not stored.
// Cached samples are shared with callers and must not be modified.
type SampleCache struct {
	capacity int
	entries  map[int]*Sample
}

// NewSampleCache returns an empty cache. A capacity of zero caches nothing.
func NewSampleCache(capacity int) *SampleCache {
	if capacity < 0 {
		capacity = 0
	}
	return &SampleCache{capacity: capacity, entries: make(map[int]*Sample)}
}

// Capacity returns the maximum number of entries.
func (c *SampleCache) Capacity() int { return c.capacity }

// Len returns the number of entries.
func (c *SampleCache) Len() int { return len(c.entries) }

// Full reports whether no further indices will be stored.
func (c *SampleCache) Full() bool { return len(c.entries) >= c.capacity }

// Get returns the sample cached for index i.
func (c *SampleCache) Get(i int) (*Sample, bool) {
	s, ok := c.entries[i]
	return s, ok
}

// Put stores s under index i unless the cache is full. It reports whether
// i is cached afterwards; an existing entry is kept as is.
func (c *SampleCache) Put(i int, s *Sample) bool {
	if _, ok := c.entries[i]; ok {
		return true
	}
	if c.Full() {
		return false
	}
	c.entries[i] = s
	return true
}
