package schema

import "sync"

// CachedPayload pairs a resolved bundle with where it came from.
// Stored payloads are treated as immutable; replacement happens only
// through explicit invalidation followed by a reload.
type CachedPayload struct {
	Path      string
	TargetKey string
	Bundle    *Bundle
}

// DropdownTable maps lower-cased category to lower-cased field name
// to the enum value labels for that field.
type DropdownTable map[string]map[string][]string

// Cache holds parsed schema payloads keyed by target identity and by
// source file path. Safe for concurrent readers and writers; a single
// mutex guards all maps.
type Cache struct {
	mu          sync.Mutex
	byTarget    map[string]CachedPayload
	jsonByPath  map[string]map[string]any
	dropsByPath map[string]DropdownTable
}

func NewCache() *Cache {
	return &Cache{
		byTarget:    make(map[string]CachedPayload),
		jsonByPath:  make(map[string]map[string]any),
		dropsByPath: make(map[string]DropdownTable),
	}
}

// Target returns the payload cached for a lower-cased target key.
func (c *Cache) Target(targetKey string) (CachedPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byTarget[targetKey]
	return p, ok
}

func (c *Cache) SetTarget(p CachedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTarget[p.TargetKey] = p
}

// JSON returns the parsed document cached for a file path.
func (c *Cache) JSON(path string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.jsonByPath[path]
	return d, ok
}

func (c *Cache) SetJSON(path string, doc map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jsonByPath[path] = doc
}

// Dropdowns returns the dropdown table cached for a file path.
func (c *Cache) Dropdowns(path string) (DropdownTable, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.dropsByPath[path]
	return d, ok
}

func (c *Cache) SetDropdowns(path string, table DropdownTable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropsByPath[path] = table
}

// InvalidateTarget drops the payload for one target key, forcing the
// next load to go back to disk.
func (c *Cache) InvalidateTarget(targetKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byTarget, targetKey)
}

// InvalidatePath drops everything parsed from one file path. Target
// payloads may be merged from several files, so all of them are
// dropped; the next load re-reads disk.
func (c *Cache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.jsonByPath, path)
	delete(c.dropsByPath, path)
	for key := range c.byTarget {
		delete(c.byTarget, key)
	}
}

// Clear empties the cache entirely.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byTarget = make(map[string]CachedPayload)
	c.jsonByPath = make(map[string]map[string]any)
	c.dropsByPath = make(map[string]DropdownTable)
}
