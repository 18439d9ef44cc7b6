package imageutil

import (
	"image"
	"sync"
)

// Cache provides thread-safe caching of loaded grayscale images to avoid
// redundant disk reads when several materialization passes visit the same
// form scans.
//
// Cached images remain in memory until explicitly removed via Evict() or
// Clear(). A full IAM preparation run visits each form image a handful of
// times; callers working through many forms should Evict() a form once they
// are done with it.
type Cache struct {
	mu     sync.RWMutex
	images map[string]*image.Gray
}

// NewCache creates an empty image cache, ready for concurrent use.
func NewCache() *Cache {
	return &Cache{images: make(map[string]*image.Gray)}
}

// Load retrieves a grayscale image from the cache or loads it from disk if
// not cached. The image is keyed by the exact path string provided.
func (c *Cache) Load(path string) (*image.Gray, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	img, err := LoadGray(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Evict removes a specific image from the cache by its path.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Clear removes all images from the cache, freeing the associated memory.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]*image.Gray)
	c.mu.Unlock()
}
