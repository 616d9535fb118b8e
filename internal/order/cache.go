package order

import (
	"fmt"
	"strings"

	"github.com/ashevelev/order-platform-service/internal/config"
	"github.com/ashevelev/order-platform-service/pkg/logger"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ListCache keeps serialized list snapshots keyed by owner, filter and
// page. Entries live until the TTL or an explicit owner-scoped
// invalidation, whichever comes first. The repository stays the source
// of truth; the cache is a read optimization only.
type ListCache struct {
	lru    *expirable.LRU[string, []byte]
	logger logger.Logger
}

func NewListCache(cfg config.Cache, logger logger.Logger) *ListCache {
	return &ListCache{
		lru:    expirable.NewLRU[string, []byte](cfg.Size, nil, cfg.TTL),
		logger: logger,
	}
}

// cacheKey derives the snapshot key from the owner scope, the status
// filter and the page. Pagination produces many keys per owner, hence
// the owner prefix used by Invalidate.
func cacheKey(ownerID int, f Filter, p Page) string {
	status := "all"
	if f.Status != "" {
		status = string(f.Status)
	}
	return fmt.Sprintf("orders:%d:%s:%d:%d", ownerID, status, p.Offset, p.Limit)
}

func ownerPrefix(ownerID int) string {
	return fmt.Sprintf("orders:%d:", ownerID)
}

func (c *ListCache) Get(key string) ([]byte, bool) {
	return c.lru.Get(key)
}

func (c *ListCache) Put(key string, snapshot []byte) {
	c.lru.Add(key, snapshot)
}

// Invalidate removes every cached list snapshot of the owner.
func (c *ListCache) Invalidate(ownerID int) {
	prefix := ownerPrefix(ownerID)
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// Invalidator is the owner-scoped invalidation interface consumed by
// the background worker.
type Invalidator interface {
	Invalidate(ownerID int)
}

var _ Invalidator = (*ListCache)(nil)
