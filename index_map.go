package lf

import (
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// mapIndex is the flat hash-style index: point lookups by formatted
// key, with range scans degrading to a sorted full scan.
type mapIndex struct {
	name    string
	unique  bool
	entries map[string]*mapIndexEntry
	count   int
}

type mapIndexEntry struct {
	key  Value
	rows []uint64
}

func newMapIndex(name string, unique bool) *mapIndex {
	return &mapIndex{name: name, unique: unique, entries: make(map[string]*mapIndexEntry)}
}

func (idx *mapIndex) Name() string { return idx.name }
func (idx *mapIndex) Unique() bool { return idx.unique }
func (idx *mapIndex) Len() int     { return idx.count }

func (idx *mapIndex) Add(key Value, rowID uint64) error {
	k := formatKey(key)
	e := idx.entries[k]
	if e != nil {
		if idx.unique {
			return errf(CodeConstraintViolation, nil, "index %s: duplicate key %s", idx.name, key)
		}
		e.rows = append(e.rows, rowID)
		idx.count++
		return nil
	}
	idx.entries[k] = &mapIndexEntry{key: key, rows: []uint64{rowID}}
	idx.count++
	return nil
}

func (idx *mapIndex) Set(key Value, rowID uint64) {
	k := formatKey(key)
	if e := idx.entries[k]; e != nil {
		idx.count -= len(e.rows)
		e.rows = []uint64{rowID}
		idx.count++
		return
	}
	idx.entries[k] = &mapIndexEntry{key: key, rows: []uint64{rowID}}
	idx.count++
}

func (idx *mapIndex) Remove(key Value, rowIDs ...uint64) {
	k := formatKey(key)
	e := idx.entries[k]
	if e == nil {
		return
	}
	if len(rowIDs) == 0 {
		idx.count -= len(e.rows)
		delete(idx.entries, k)
		return
	}
	for _, id := range rowIDs {
		n := len(e.rows)
		e.rows = removeRowID(e.rows, id)
		idx.count -= n - len(e.rows)
	}
	if len(e.rows) == 0 {
		delete(idx.entries, k)
	}
}

func (idx *mapIndex) Get(key Value) []uint64 {
	e := idx.entries[formatKey(key)]
	if e == nil {
		return nil
	}
	return append([]uint64(nil), e.rows...)
}

func (idx *mapIndex) sortedEntries() []*mapIndexEntry {
	out := make([]*mapIndexEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return valueLess(out[i].key, out[j].key)
	})
	return out
}

func (idx *mapIndex) GetRange(ranges []KeyRange) []uint64 {
	var out []uint64
	for _, e := range idx.sortedEntries() {
		if ranges == nil || rangesContain(ranges, e.key) {
			out = append(out, e.rows...)
		}
	}
	return out
}

func (idx *mapIndex) Cost(ranges []KeyRange) int {
	if ranges == nil {
		return idx.count
	}
	// Point lookups are cheap here; anything else counts the matches of
	// a full scan.
	n := 0
	allPoints := true
	for _, r := range ranges {
		if r.From == nil || r.To == nil || r.FromExcl || r.ToExcl {
			allPoints = false
			break
		}
		if c, ok := compareValues(*r.From, *r.To); !ok || c != 0 {
			allPoints = false
			break
		}
		n += len(idx.Get(*r.From))
	}
	if allPoints {
		return n
	}
	return len(idx.GetRange(ranges))
}

func (idx *mapIndex) Min() (Value, bool) {
	es := idx.sortedEntries()
	if len(es) == 0 {
		return Value{}, false
	}
	return es[0].key, true
}

func (idx *mapIndex) Max() (Value, bool) {
	es := idx.sortedEntries()
	if len(es) == 0 {
		return Value{}, false
	}
	return es[len(es)-1].key, true
}

func (idx *mapIndex) Serialize() ([]byte, error) {
	es := idx.sortedEntries()
	entries := make([]wireIndexEntry, len(es))
	for i, e := range es {
		entries[i] = wireIndexEntry{K: toWireValue(e.key), R: append([]uint64(nil), e.rows...)}
	}
	return msgpack.Marshal(entries)
}

func (idx *mapIndex) Deserialize(data []byte) error {
	var entries []wireIndexEntry
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return errf(CodeBackStore, err, "corrupt index snapshot %s", idx.name)
	}
	idx.Clear()
	for _, e := range entries {
		key := fromWireValue(e.K)
		idx.entries[formatKey(key)] = &mapIndexEntry{key: key, rows: e.R}
		idx.count += len(e.R)
	}
	return nil
}

func (idx *mapIndex) Clear() {
	idx.entries = make(map[string]*mapIndexEntry)
	idx.count = 0
}

func rangesContain(ranges []KeyRange, v Value) bool {
	for _, r := range ranges {
		if r.Contains(v) {
			return true
		}
	}
	return false
}
