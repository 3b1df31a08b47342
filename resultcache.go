package main

import (
	"slices"
	"sync"

	"github.com/sirupsen/logrus"
)

// ResultCache maps a SearchKey to the page of results fetched for it. Entries are
// written once and never expire; Clear is the only way to drop them. One cache is
// shared by every session of the site.
type ResultCache struct {
	mu    sync.RWMutex
	pages map[SearchKey]ResultPage
	log   *logrus.Entry
}

func NewResultCache() *ResultCache {
	return &ResultCache{
		pages: make(map[SearchKey]ResultPage),
		log:   componentLogger("cache"),
	}
}

// Get returns the cached page for key. The returned page shares its image slice
// with the cache and must not be modified.
func (c *ResultCache) Get(key SearchKey) (ResultPage, bool) {
	c.mu.RLock()
	page, ok := c.pages[key]
	c.mu.RUnlock()
	if ok {
		resultCacheLookups.WithLabelValues("hit").Inc()
	} else {
		resultCacheLookups.WithLabelValues("miss").Inc()
	}
	return page, ok
}

// Put stores page under key unless the key is already present; a stored page is
// never replaced. It reports whether the page was stored.
func (c *ResultCache) Put(key SearchKey, page ResultPage) bool {
	page.Images = slices.Clone(page.Images)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.pages[key]; exists {
		return false
	}
	c.pages[key] = page
	c.log.WithFields(logrus.Fields{"key": key.String(), "images": len(page.Images)}).Debug("stored")
	return true
}

func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pages)
}

func (c *ResultCache) Clear() {
	c.mu.Lock()
	c.pages = make(map[SearchKey]ResultPage)
	c.mu.Unlock()
	c.log.Info("cleared")
}
