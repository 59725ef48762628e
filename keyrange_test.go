package lf

import (
	"testing"
)

func TestKeyRangeContains(t *testing.T) {
	r := NewRange(Int(12), Int(15), false, true)
	for k, want := range map[int64]bool{11: false, 12: true, 14: true, 15: false} {
		if got := r.Contains(Int(k)); got != want {
			t.Errorf("Contains(%d) = %v, wanted %v", k, got, want)
		}
	}

	lb := LowerBound(Int(15), true)
	if lb.Contains(Int(15)) || !lb.Contains(Int(16)) {
		t.Errorf("exclusive lower bound misbehaves: %s", lb)
	}

	if !AllRange().Contains(Text("anything")) {
		t.Error("all range must contain every key")
	}
	if AllRange().Contains(Null()) {
		t.Error("null is not a valid key")
	}
}

func TestKeyRangeOnly(t *testing.T) {
	r := Only(Int(7))
	if !r.Contains(Int(7)) || r.Contains(Int(8)) {
		t.Errorf("Only(7) misbehaves: %s", r)
	}
	// Numeric keys compare by value.
	if !r.Contains(Real(7)) {
		t.Error("Only(7) must contain Real(7)")
	}
	// No cross-type coercion.
	if r.Contains(Text("7")) {
		t.Error("Only(7) must not contain Text(\"7\")")
	}
}

func TestKeyRangeReverse(t *testing.T) {
	r := NewRange(Int(1), Int(9), true, false)
	rev := r.Reverse()
	deepEqual(t, *rev.From, Int(9))
	deepEqual(t, *rev.To, Int(1))
	if rev.FromExcl || !rev.ToExcl {
		t.Errorf("Reverse must swap exclusivity: %s", rev)
	}
	if !r.Equal(rev.Reverse()) {
		t.Error("double reverse must restore the range")
	}
}

func TestKeyRangeComplement(t *testing.T) {
	deepEqual(t, len(AllRange().Complement()), 0)

	c := LowerBound(Int(5), false).Complement()
	deepEqual(t, len(c), 1)
	if c[0].Contains(Int(5)) || !c[0].Contains(Int(4)) {
		t.Errorf("complement of [5, +inf) wrong: %s", c[0])
	}

	c = NewRange(Int(3), Int(8), false, false).Complement()
	deepEqual(t, len(c), 2)
	if c[0].Contains(Int(3)) || !c[0].Contains(Int(2)) || c[1].Contains(Int(8)) || !c[1].Contains(Int(9)) {
		t.Errorf("complement of [3, 8] wrong: %s", formatRanges(c))
	}
}

// Complement law: complementing a complement restores the key set.
func TestKeyRangeComplementLaw(t *testing.T) {
	ranges := []KeyRange{
		Only(Int(5)),
		LowerBound(Int(10), true),
		UpperBound(Text("m"), false),
		NewRange(Int(3), Int(8), false, true),
	}
	probes := []Value{Int(2), Int(3), Int(5), Int(8), Int(9), Int(10), Int(11), Text("a"), Text("m"), Text("z")}

	for _, r := range ranges {
		back := complementRanges(r.Complement())
		for _, p := range probes {
			if got, want := rangesContain(back, p), r.Contains(p); got != want {
				t.Errorf("%s: complement² disagrees at %s: got %v, wanted %v", r, p, got, want)
			}
		}
	}
}

func TestKeyRangeEqual(t *testing.T) {
	if !Only(Int(5)).Equal(NewRange(Int(5), Int(5), false, false)) {
		t.Error("Only(5) must equal [5, 5]")
	}
	if Only(Int(5)).Equal(Only(Int(6))) {
		t.Error("distinct singletons must differ")
	}
	if LowerBound(Int(5), true).Equal(LowerBound(Int(5), false)) {
		t.Error("exclusivity is part of structural equality")
	}
}
