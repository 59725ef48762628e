package lf

import (
	"github.com/google/btree"
	"github.com/vmihailenco/msgpack/v5"
)

const orderedIndexDegree = 32

// orderedIndex keeps keys in a B-tree, giving deterministic range
// scans and cheap extremal lookups.
type orderedIndex struct {
	name   string
	unique bool
	tree   *btree.BTree
	count  int
}

type indexItem struct {
	key  Value
	rows []uint64
}

func (it *indexItem) Less(than btree.Item) bool {
	return valueLess(it.key, than.(*indexItem).key)
}

func newOrderedIndex(name string, unique bool) *orderedIndex {
	return &orderedIndex{
		name:   name,
		unique: unique,
		tree:   btree.New(orderedIndexDegree),
	}
}

func (idx *orderedIndex) Name() string { return idx.name }
func (idx *orderedIndex) Unique() bool { return idx.unique }
func (idx *orderedIndex) Len() int     { return idx.count }

func (idx *orderedIndex) item(key Value) *indexItem {
	if it := idx.tree.Get(&indexItem{key: key}); it != nil {
		return it.(*indexItem)
	}
	return nil
}

func (idx *orderedIndex) Add(key Value, rowID uint64) error {
	if it := idx.item(key); it != nil {
		if idx.unique {
			return errf(CodeConstraintViolation, nil, "index %s: duplicate key %s", idx.name, key)
		}
		it.rows = append(it.rows, rowID)
		idx.count++
		return nil
	}
	idx.tree.ReplaceOrInsert(&indexItem{key: key, rows: []uint64{rowID}})
	idx.count++
	return nil
}

func (idx *orderedIndex) Set(key Value, rowID uint64) {
	if it := idx.item(key); it != nil {
		idx.count -= len(it.rows)
		it.rows = []uint64{rowID}
		idx.count++
		return
	}
	idx.tree.ReplaceOrInsert(&indexItem{key: key, rows: []uint64{rowID}})
	idx.count++
}

func (idx *orderedIndex) Remove(key Value, rowIDs ...uint64) {
	it := idx.item(key)
	if it == nil {
		return
	}
	if len(rowIDs) == 0 {
		idx.count -= len(it.rows)
		idx.tree.Delete(it)
		return
	}
	for _, id := range rowIDs {
		n := len(it.rows)
		it.rows = removeRowID(it.rows, id)
		idx.count -= n - len(it.rows)
	}
	if len(it.rows) == 0 {
		idx.tree.Delete(it)
	}
}

func (idx *orderedIndex) Get(key Value) []uint64 {
	it := idx.item(key)
	if it == nil {
		return nil
	}
	return append([]uint64(nil), it.rows...)
}

func (idx *orderedIndex) scanRange(r KeyRange, fn func(it *indexItem) bool) {
	iter := func(i btree.Item) bool {
		it := i.(*indexItem)
		if r.To != nil {
			c, ok := compareValues(it.key, *r.To)
			if ok && (c > 0 || (c == 0 && r.ToExcl)) {
				return false
			}
		}
		if r.Contains(it.key) {
			return fn(it)
		}
		return true
	}
	if r.From != nil {
		idx.tree.AscendGreaterOrEqual(&indexItem{key: *r.From}, iter)
	} else {
		idx.tree.Ascend(iter)
	}
}

func (idx *orderedIndex) GetRange(ranges []KeyRange) []uint64 {
	if ranges == nil {
		ranges = []KeyRange{AllRange()}
	}
	var out []uint64
	for _, r := range ranges {
		idx.scanRange(r, func(it *indexItem) bool {
			out = append(out, it.rows...)
			return true
		})
	}
	return out
}

func (idx *orderedIndex) Cost(ranges []KeyRange) int {
	if ranges == nil {
		return idx.count
	}
	var n int
	for _, r := range ranges {
		idx.scanRange(r, func(it *indexItem) bool {
			n += len(it.rows)
			return true
		})
	}
	return n
}

func (idx *orderedIndex) Min() (Value, bool) {
	if it := idx.tree.Min(); it != nil {
		return it.(*indexItem).key, true
	}
	return Value{}, false
}

func (idx *orderedIndex) Max() (Value, bool) {
	if it := idx.tree.Max(); it != nil {
		return it.(*indexItem).key, true
	}
	return Value{}, false
}

func (idx *orderedIndex) Serialize() ([]byte, error) {
	entries := make([]wireIndexEntry, 0, idx.tree.Len())
	idx.tree.Ascend(func(i btree.Item) bool {
		it := i.(*indexItem)
		entries = append(entries, wireIndexEntry{K: toWireValue(it.key), R: append([]uint64(nil), it.rows...)})
		return true
	})
	return msgpack.Marshal(entries)
}

func (idx *orderedIndex) Deserialize(data []byte) error {
	var entries []wireIndexEntry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return errf(CodeBackStore, err, "corrupt index snapshot %s", idx.name)
	}
	idx.Clear()
	for _, e := range entries {
		idx.tree.ReplaceOrInsert(&indexItem{key: fromWireValue(e.K), rows: e.R})
		idx.count += len(e.R)
	}
	return nil
}

func (idx *orderedIndex) Clear() {
	idx.tree = btree.New(orderedIndexDegree)
	idx.count = 0
}
