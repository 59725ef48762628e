package lf

import (
	"bytes"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// MemStore is a transient in-memory BackStore. It snapshots the whole
// store on transaction begin (simplicity over efficiency) and admits a
// single writer at a time, which is all the runner above requires.
type MemStore struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tables  map[string]*memTable
	name    string
	version uint64
	closed  bool
	writer  bool
}

func NewMemStore() *MemStore {
	s := &MemStore{tables: make(map[string]*memTable)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *MemStore) Open(scm *Schema, upgrade UpgradeFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errf(CodeBackStore, nil, "store closed")
	}
	stored := s.version
	if stored > scm.Version() {
		s.mu.Unlock()
		return errf(CodeBackStore, nil, "stored schema version %d is newer than declared %d", stored, scm.Version())
	}
	for _, tbl := range scm.Tables() {
		if s.tables[tbl.Name()] == nil {
			s.tables[tbl.Name()] = &memTable{}
		}
	}
	s.mu.Unlock()

	if stored != 0 && stored < scm.Version() && upgrade != nil {
		tx, err := s.CreateTx(ReadWrite, nil)
		if err != nil {
			return err
		}
		if err := upgrade(tx, stored); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.name = scm.Name()
	s.version = scm.Version()
	s.mu.Unlock()
	return nil
}

func (s *MemStore) CreateTx(mode TxMode, scope []string) (BackStoreTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errf(CodeBackStore, nil, "store closed")
	}
	if mode == ReadWrite {
		for s.writer && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			return nil, errf(CodeBackStore, nil, "store closed")
		}
		s.writer = true
	}

	snap := make(map[string]*memTable, len(s.tables))
	for k, t := range s.tables {
		snap[k] = t.clone()
	}
	return &memTx{base: s, mode: mode, scope: scopeSet(scope), tables: snap}, nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tables = nil
	if s.cond != nil {
		s.cond.Broadcast()
	}
	return nil
}

type memTx struct {
	base   *MemStore
	mode   TxMode
	scope  map[string]bool
	tables map[string]*memTable
	closed bool
}

func (tx *memTx) Mode() TxMode { return tx.mode }

func (tx *memTx) Store(table string) (ObjectStore, error) {
	if tx.closed {
		panic("tx is closed")
	}
	if tx.scope != nil && !tx.scope[table] {
		return nil, errf(CodeBackStore, nil, "table %q outside tx scope", table)
	}
	t := tx.tables[table]
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, table)
	}
	return memTableHandle{tx: tx, t: t}, nil
}

func (tx *memTx) closeLocked() {
	if tx.closed {
		return
	}
	tx.closed = true
	if tx.mode == ReadWrite {
		tx.base.writer = false
		tx.base.cond.Broadcast()
	}
}

func (tx *memTx) Commit() error {
	if tx.closed {
		return nil
	}
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	if tx.mode != ReadWrite {
		tx.closeLocked()
		return nil
	}
	if tx.base.closed {
		tx.closeLocked()
		return errf(CodeBackStore, nil, "store closed")
	}
	tx.base.tables = tx.tables
	tx.closeLocked()
	return nil
}

func (tx *memTx) Rollback() error {
	tx.base.mu.Lock()
	defer tx.base.mu.Unlock()
	tx.closeLocked()
	return nil
}

type memTable struct {
	items []memKV // sorted by key
}

type memKV struct {
	key   []byte
	value []byte
}

func (t *memTable) clone() *memTable {
	out := &memTable{items: make([]memKV, len(t.items))}
	for i, kv := range t.items {
		out.items[i] = memKV{key: slices.Clone(kv.key), value: slices.Clone(kv.value)}
	}
	return out
}

type memTableHandle struct {
	tx *memTx
	t  *memTable
}

func (h memTableHandle) find(key []byte) (int, bool) {
	items := h.t.items
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, key) >= 0
	})
	if i < len(items) && bytes.Equal(items[i].key, key) {
		return i, true
	}
	return i, false
}

func (h memTableHandle) Get(key []byte) []byte {
	i, ok := h.find(key)
	if !ok {
		return nil
	}
	return h.t.items[i].value
}

func (h memTableHandle) Put(key, value []byte) error {
	if h.tx.mode != ReadWrite {
		return errf(CodeBackStore, nil, "tx not writable")
	}
	key = slices.Clone(key)
	value = slices.Clone(value)
	i, ok := h.find(key)
	if ok {
		h.t.items[i].value = value
		return nil
	}
	h.t.items = slices.Insert(h.t.items, i, memKV{key: key, value: value})
	return nil
}

func (h memTableHandle) Delete(key []byte) error {
	if h.tx.mode != ReadWrite {
		return errf(CodeBackStore, nil, "tx not writable")
	}
	i, ok := h.find(key)
	if !ok {
		return nil
	}
	h.t.items = slices.Delete(h.t.items, i, i+1)
	return nil
}

func (h memTableHandle) Cursor() StoreCursor {
	return &memCursor{t: h.t, pos: -1}
}

func (h memTableHandle) KeyCount() int { return len(h.t.items) }

type memCursor struct {
	t   *memTable
	pos int
}

func (c *memCursor) First() ([]byte, []byte) {
	if len(c.t.items) == 0 {
		c.pos = 0
		return nil, nil
	}
	c.pos = 0
	kv := c.t.items[c.pos]
	return kv.key, kv.value
}

func (c *memCursor) Last() ([]byte, []byte) {
	if len(c.t.items) == 0 {
		c.pos = 0
		return nil, nil
	}
	c.pos = len(c.t.items) - 1
	kv := c.t.items[c.pos]
	return kv.key, kv.value
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	items := c.t.items
	i := sort.Search(len(items), func(i int) bool {
		return bytes.Compare(items[i].key, seek) >= 0
	})
	c.pos = i
	if i >= len(items) {
		return nil, nil
	}
	kv := items[i]
	return kv.key, kv.value
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.pos < 0 {
		return c.First()
	}
	c.pos++
	if c.pos >= len(c.t.items) {
		return nil, nil
	}
	kv := c.t.items[c.pos]
	return kv.key, kv.value
}

func (c *memCursor) Prev() ([]byte, []byte) {
	if c.pos < 0 {
		return nil, nil
	}
	c.pos--
	if c.pos < 0 || c.pos >= len(c.t.items) {
		return nil, nil
	}
	kv := c.t.items[c.pos]
	return kv.key, kv.value
}
