package lf

// Index maps keys to sets of row ids. Implementations are not safe for
// concurrent use; the owning tableState's lock guards them.
type Index interface {
	Name() string
	Unique() bool

	// Len returns the total number of row-id entries.
	Len() int

	// Add inserts a row id under key. On a unique index an existing key
	// fails with CONSTRAINT_VIOLATION; otherwise insertion order within
	// a key is preserved.
	Add(key Value, rowID uint64) error

	// Set replaces all row ids under key with the single given one.
	Set(key Value, rowID uint64)

	// Remove drops the given row ids under key, or every entry for the
	// key when none are given.
	Remove(key Value, rowIDs ...uint64)

	// Get returns the row ids stored under key, in insertion order.
	Get(key Value) []uint64

	// GetRange returns row ids for all keys inside the ranges, in key
	// order. A nil slice of ranges means every key.
	GetRange(ranges []KeyRange) []uint64

	// Cost estimates how many row ids GetRange would return. The
	// estimate never exceeds the true count and grows monotonically
	// with range width.
	Cost(ranges []KeyRange) int

	// Min and Max report the extremal keys.
	Min() (Value, bool)
	Max() (Value, bool)

	// Serialize and Deserialize snapshot the index contents.
	Serialize() ([]byte, error)
	Deserialize(data []byte) error

	Clear()
}

func newIndexForSpec(spec *IndexSpec) Index {
	if spec.Kind == IndexHash {
		return newMapIndex(spec.Name, spec.Unique)
	}
	return newOrderedIndex(spec.Name, spec.Unique)
}

// indexKeyForRow computes the key a row contributes to an index. Null
// column values are not valid index keys, so rows with a null in any
// key column stay out of the index. Composite keys fold the column
// values into one binary key that preserves column-wise ordering.
func indexKeyForRow(spec *IndexSpec, row *Row) (Value, bool) {
	if len(spec.Columns) == 1 {
		v := row.Get(spec.Columns[0])
		if v.IsNull() {
			return Value{}, false
		}
		return v, true
	}
	vals := make([]Value, len(spec.Columns))
	for i, col := range spec.Columns {
		v := row.Get(col)
		if v.IsNull() {
			return Value{}, false
		}
		vals[i] = v
	}
	return Binary(encodeKeyTuple(nil, vals)), true
}

func removeRowID(rows []uint64, id uint64) []uint64 {
	for i, r := range rows {
		if r == id {
			return append(rows[:i], rows[i+1:]...)
		}
	}
	return rows
}

type wireIndexEntry struct {
	K wireValue `msgpack:"k"`
	R []uint64  `msgpack:"r"`
}
