package table

// Cache holds parsed tables keyed by file content identity. Entries live for the
// process lifetime; there is no eviction. Tables are immutable so sharing is safe.
type Cache interface {
	Get(key string) (*Table, bool)
	Put(key string, t *Table)
}

// MemoryCache is an in-process Cache. It is not safe for concurrent use.
type MemoryCache struct {
	entries map[string]*Table
	Hits    int
	Misses  int
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]*Table{}}
}

func (c *MemoryCache) Get(key string) (*Table, bool) {
	t, ok := c.entries[key]
	if ok {
		c.Hits++
	} else {
		c.Misses++
	}
	return t, ok
}

func (c *MemoryCache) Put(key string, t *Table) { c.entries[key] = t }

// Len is the number of cached tables.
func (c *MemoryCache) Len() int { return len(c.entries) }

// NoopCache never stores anything; every load re-parses.
type NoopCache struct{}

func (NoopCache) Get(string) (*Table, bool) { return nil, false }
func (NoopCache) Put(string, *Table)        {}
