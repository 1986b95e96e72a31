package cache

import (
	"container/list"
	"sync"
	"time"
)

// Clip is a synthesized audio clip waiting to be fetched by the telephony provider.
type Clip struct {
	Data        []byte
	ContentType string
}

// ClipCache is an LRU of audio clips with TTL and a total byte budget.
// Twilio fetches a clip a few hundred milliseconds after the TwiML that references it,
// so entries only need to live for a short while.
type ClipCache struct {
	capacity   int
	maxBytes   int
	defaultTTL time.Duration
	mu         sync.Mutex

	clips map[string]*entry
	order *list.List // front = most recently used
	bytes int

	now func() time.Time
}

type entry struct {
	key       string
	clip      Clip
	expiresAt time.Time
	element   *list.Element
}

// NewClipCache creates a new clip cache.
func NewClipCache(capacity, maxBytes int, defaultTTL time.Duration) *ClipCache {
	if capacity <= 0 {
		capacity = 256
	}
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}

	return &ClipCache{
		capacity:   capacity,
		maxBytes:   maxBytes,
		defaultTTL: defaultTTL,
		clips:      make(map[string]*entry),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get retrieves a clip from the cache.
func (c *ClipCache) Get(key string) (Clip, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.clips[key]
	if !ok {
		return Clip{}, false
	}

	if c.now().After(e.expiresAt) {
		c.removeEntry(e)
		return Clip{}, false
	}

	c.order.MoveToFront(e.element)
	return e.clip, true
}

// Put stores a clip. Clips larger than the byte budget are rejected.
func (c *ClipCache) Put(key string, clip Clip, ttl time.Duration) bool {
	if len(clip.Data) > c.maxBytes {
		return false
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.clips[key]; ok {
		c.removeEntry(e)
	}

	for len(c.clips) >= c.capacity || c.bytes+len(clip.Data) > c.maxBytes {
		if !c.evictOldest() {
			break
		}
	}

	e := &entry{
		key:       key,
		clip:      clip,
		expiresAt: c.now().Add(ttl),
	}
	e.element = c.order.PushFront(e)
	c.clips[key] = e
	c.bytes += len(clip.Data)
	return true
}

// Delete removes a clip.
func (c *ClipCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.clips[key]; ok {
		c.removeEntry(e)
	}
}

// Size returns the number of clips in the cache.
func (c *ClipCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clips)
}

// Bytes returns the total size of cached audio.
func (c *ClipCache) Bytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// CleanupExpired removes all expired clips.
// Returns the number of clips removed.
func (c *ClipCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toDelete []*entry
	now := c.now()
	for _, e := range c.clips {
		if now.After(e.expiresAt) {
			toDelete = append(toDelete, e)
		}
	}
	for _, e := range toDelete {
		c.removeEntry(e)
	}
	return len(toDelete)
}

// evictOldest removes the least recently used clip.
// Must be called with lock held.
func (c *ClipCache) evictOldest() bool {
	oldest := c.order.Back()
	if oldest == nil {
		return false
	}
	c.removeEntry(oldest.Value.(*entry))
	return true
}

// Must be called with lock held.
func (c *ClipCache) removeEntry(e *entry) {
	c.order.Remove(e.element)
	delete(c.clips, e.key)
	c.bytes -= len(e.clip.Data)
}
