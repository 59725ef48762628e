package lf

import (
	"testing"
)

// Keys 10..19 map to row ids 20..29, the canonical single-column
// numeric index scenario.
func numericIndex(t *testing.T, idx Index) {
	t.Helper()
	for i := uint64(0); i < 10; i++ {
		if err := idx.Add(Int(int64(10+i)), 20+i); err != nil {
			t.Fatal(err)
		}
	}
}

func TestOrderedIndexScenario(t *testing.T) {
	idx := newOrderedIndex("num", false)
	numericIndex(t, idx)

	deepEqual(t, idx.Get(Int(15)), []uint64{25})

	got := idx.GetRange([]KeyRange{LowerBound(Int(15), true)})
	deepEqual(t, got, []uint64{26, 27, 28, 29})

	got = idx.GetRange([]KeyRange{NewRange(Int(12), Int(15), false, true)})
	deepEqual(t, got, []uint64{22, 23, 24})

	idx.Remove(Int(12), 22)
	deepEqual(t, len(idx.Get(Int(12))), 0)

	idx.Set(Int(15), 35)
	deepEqual(t, idx.Get(Int(15)), []uint64{35})

	deepEqual(t, len(idx.GetRange(nil)), 9)

	min, ok := idx.Min()
	if !ok {
		t.Fatal("Min on non-empty index")
	}
	deepEqual(t, min, Int(10))
	max, _ := idx.Max()
	deepEqual(t, max, Int(19))
}

func TestOrderedIndexUnique(t *testing.T) {
	idx := newOrderedIndex("uq", true)
	if err := idx.Add(Text("x@y"), 1); err != nil {
		t.Fatal(err)
	}
	err := idx.Add(Text("x@y"), 2)
	if CodeOf(err) != CodeConstraintViolation {
		t.Fatalf("got %v, wanted constraint violation", err)
	}
	// Set replaces without complaint.
	idx.Set(Text("x@y"), 3)
	deepEqual(t, idx.Get(Text("x@y")), []uint64{3})
}

func TestOrderedIndexInsertionOrder(t *testing.T) {
	idx := newOrderedIndex("multi", false)
	ensure(idx.Add(Int(1), 7))
	ensure(idx.Add(Int(1), 3))
	ensure(idx.Add(Int(1), 9))
	deepEqual(t, idx.Get(Int(1)), []uint64{7, 3, 9})
}

func TestOrderedIndexNoCoercion(t *testing.T) {
	idx := newOrderedIndex("mixed", false)
	ensure(idx.Add(Int(1), 1))
	ensure(idx.Add(Text("1"), 2))
	deepEqual(t, idx.Get(Int(1)), []uint64{1})
	deepEqual(t, idx.Get(Text("1")), []uint64{2})
}

// Cost never exceeds the true count and grows with range width.
func TestIndexCostMonotonicity(t *testing.T) {
	idx := newOrderedIndex("cost", false)
	numericIndex(t, idx)

	nested := []KeyRange{
		Only(Int(15)),
		NewRange(Int(14), Int(16), false, false),
		NewRange(Int(12), Int(18), false, false),
		AllRange(),
	}
	prev := 0
	for _, r := range nested {
		c := idx.Cost([]KeyRange{r})
		if c < prev {
			t.Fatalf("cost(%s) = %d shrank below %d", r, c, prev)
		}
		if c > idx.Len() {
			t.Fatalf("cost(%s) = %d exceeds count %d", r, c, idx.Len())
		}
		prev = c
	}
	deepEqual(t, idx.Cost(nil), idx.Len())
}

func TestMapIndexBasics(t *testing.T) {
	idx := newMapIndex("flat", false)
	numericIndex(t, idx)

	deepEqual(t, idx.Get(Int(15)), []uint64{25})

	// Range scans degrade to a full scan, still in key order.
	got := idx.GetRange([]KeyRange{LowerBound(Int(17), false)})
	deepEqual(t, got, []uint64{27, 28, 29})
	deepEqual(t, len(idx.GetRange(nil)), 10)

	idx.Remove(Int(10))
	deepEqual(t, len(idx.Get(Int(10))), 0)
	deepEqual(t, idx.Len(), 9)
}

func TestMapIndexUnique(t *testing.T) {
	idx := newMapIndex("uq", true)
	ensure(idx.Add(Text("x@y"), 1))
	err := idx.Add(Text("x@y"), 2)
	if CodeOf(err) != CodeConstraintViolation {
		t.Fatalf("got %v, wanted constraint violation", err)
	}
}

func TestIndexSerializeRoundtrip(t *testing.T) {
	idx := newOrderedIndex("snap", false)
	numericIndex(t, idx)
	data, err := idx.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	fresh := newOrderedIndex("snap", false)
	if err := fresh.Deserialize(data); err != nil {
		t.Fatal(err)
	}
	deepEqual(t, fresh.Len(), idx.Len())
	deepEqual(t, fresh.GetRange(nil), idx.GetRange(nil))
}

func TestCompositeIndexKey(t *testing.T) {
	spec := &IndexSpec{Name: "ab", Columns: []string{"a", "b"}}
	r1 := &Row{ID: 1, Values: map[string]Value{"a": Int(1), "b": Text("x")}}
	r2 := &Row{ID: 2, Values: map[string]Value{"a": Int(1), "b": Text("y")}}
	k1, ok1 := indexKeyForRow(spec, r1)
	k2, ok2 := indexKeyForRow(spec, r2)
	if !ok1 || !ok2 {
		t.Fatal("composite keys must build")
	}
	if c, ok := compareValues(k1, k2); !ok || c >= 0 {
		t.Fatalf("composite keys must order column-wise, got cmp %d", c)
	}

	// Null in any key column keeps the row out of the index.
	r3 := &Row{ID: 3, Values: map[string]Value{"a": Int(1)}}
	if _, ok := indexKeyForRow(spec, r3); ok {
		t.Fatal("null column must not produce an index key")
	}
}
