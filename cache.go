package lf

import (
	sorted "github.com/tobshub/go-sortedmap"
)

// rowCache holds every resident row of one table, ordered by row id so
// table scans are deterministic. Writes reach it only when a journal
// replays at commit; rows are never evicted within a session.
type rowCache struct {
	rows  *sorted.SortedMap[uint64, *Row]
	count int
}

func rowCacheLess(a, b *Row) bool {
	return a.ID < b.ID
}

func newRowCache() *rowCache {
	return &rowCache{rows: sorted.New[uint64, *Row](0, rowCacheLess)}
}

func (c *rowCache) Get(id uint64) (*Row, bool) {
	return c.rows.Get(id)
}

func (c *rowCache) Put(row *Row) {
	if !c.rows.Insert(row.ID, row) {
		c.rows.Replace(row.ID, row)
		return
	}
	c.count++
}

func (c *rowCache) Delete(id uint64) {
	if c.rows.Has(id) {
		c.rows.Delete(id)
		c.count--
	}
}

func (c *rowCache) Len() int {
	return c.count
}

// All returns every cached row in row-id order.
func (c *rowCache) All() []*Row {
	out := make([]*Row, 0, c.count)
	iterCh, err := c.rows.IterCh()
	if err != nil {
		return out // empty map
	}
	for rec := range iterCh.Records() {
		out = append(out, rec.Val)
	}
	return out
}
