package lf

import (
	"strings"
	"testing"
)

func evalOn(t *testing.T, p Predicate, row *Row) bool {
	t.Helper()
	bound, err := p.bind(nil)
	if err != nil {
		t.Fatal(err)
	}
	return evalPredicate(bound, execRow{"t": row})
}

func TestValuePredicateEval(t *testing.T) {
	row := &Row{ID: 1, Values: map[string]Value{"a": Int(5), "s": Text("hello")}}

	cases := []struct {
		pred Predicate
		want bool
	}{
		{Eq("t.a", 5), true},
		{Eq("t.a", 6), false},
		{Neq("t.a", 6), true},
		{Lt("t.a", 6), true},
		{Lte("t.a", 5), true},
		{Gt("t.a", 5), false},
		{Gte("t.a", 5), true},
		{Between("t.a", 1, 10), true},
		{Between("t.a", 6, 10), false},
		{In("t.a", 1, 5, 9), true},
		{In("t.a", 1, 2), false},
		{MatchRe("t.s", "^hel"), true},
		{MatchRe("t.s", "^xyz"), false},
		{Eq("t.a", "5"), false}, // no cross-type coercion
		{Eq("t.missing", 5), false},
	}
	for _, c := range cases {
		if got := evalOn(t, c.pred, row); got != c.want {
			t.Errorf("%s = %v, wanted %v", c.pred, got, c.want)
		}
	}
}

func TestCombinedPredicateEval(t *testing.T) {
	row := &Row{ID: 1, Values: map[string]Value{"a": Int(5), "b": Int(7)}}
	if !evalOn(t, And(Eq("t.a", 5), Eq("t.b", 7)), row) {
		t.Error("and")
	}
	if evalOn(t, And(Eq("t.a", 5), Eq("t.b", 8)), row) {
		t.Error("and with false arm")
	}
	if !evalOn(t, Or(Eq("t.a", 9), Eq("t.b", 7)), row) {
		t.Error("or")
	}
	if evalOn(t, Not(Eq("t.a", 5)), row) {
		t.Error("not")
	}
}

func TestPushNot(t *testing.T) {
	p := normalisePredicate(Not(And(Eq("a", 1), Lt("b", 2))))
	cp, ok := p.(*CombinedPredicate)
	if !ok || cp.Kind != CombineOr {
		t.Fatalf("NOT(AND) must become OR, got %s", p)
	}
	deepEqual(t, cp.Children[0].(*ValuePredicate).Op, OpNeq)
	deepEqual(t, cp.Children[1].(*ValuePredicate).Op, OpGte)

	// Double negation cancels.
	p = normalisePredicate(Not(Not(Eq("a", 1))))
	deepEqual(t, p.(*ValuePredicate).Op, OpEq)

	// NOT over match has no operator negation and stays a NOT node.
	p = normalisePredicate(Not(MatchRe("a", "x")))
	if cp, ok := p.(*CombinedPredicate); !ok || cp.Kind != CombineNot {
		t.Fatalf("NOT(match) must stay combined, got %s", p)
	}
}

func TestFlatten(t *testing.T) {
	p := normalisePredicate(And(And(Eq("a", 1), Eq("b", 2)), Eq("c", 3)))
	cp, ok := p.(*CombinedPredicate)
	if !ok || cp.Kind != CombineAnd {
		t.Fatalf("got %s", p)
	}
	deepEqual(t, len(cp.Children), 3)
}

func TestBindSlots(t *testing.T) {
	p := Between("a", Param(0), Param(1))
	if p.resolved() {
		t.Fatal("slots must leave the predicate unresolved")
	}

	bound, err := p.bind([]Value{Int(1), Int(9)})
	if err != nil {
		t.Fatal(err)
	}
	if !bound.resolved() {
		t.Fatal("bind must resolve all slots")
	}
	// The original is untouched.
	if p.resolved() {
		t.Fatal("bind must not mutate the source predicate")
	}

	if _, err := p.bind([]Value{Int(1)}); CodeOf(err) != CodeSyntax {
		t.Fatalf("got %v, wanted syntax error for missing param", err)
	}
}

func TestRangesForPredicate(t *testing.T) {
	rs, ok := rangesForPredicate(valuePred("a", OpEq, 5).(*ValuePredicate))
	if !ok || len(rs) != 1 || !rs[0].Equal(Only(Int(5))) {
		t.Fatalf("eq translation wrong: %s", formatRanges(rs))
	}

	rs, ok = rangesForPredicate(Between("a", 1, 9).(*ValuePredicate))
	if !ok || !rs[0].Equal(NewRange(Int(1), Int(9), false, false)) {
		t.Fatalf("between translation wrong: %s", formatRanges(rs))
	}

	rs, ok = rangesForPredicate(valuePred("a", OpNeq, 5).(*ValuePredicate))
	if !ok || len(rs) != 2 {
		t.Fatalf("neq must produce a two-range union: %s", formatRanges(rs))
	}

	if _, ok = rangesForPredicate(MatchRe("a", "x").(*ValuePredicate)); ok {
		t.Fatal("match must not translate to ranges")
	}
}

func TestPredicateString(t *testing.T) {
	s := And(Eq("t.a", 5), Or(Lt("b", 2), In("c", 1, 2))).String()
	for _, frag := range []string{"t.a = 5", "b < 2", "c in (1, 2)", " and ", " or "} {
		if !strings.Contains(s, frag) {
			t.Errorf("%q missing from %q", frag, s)
		}
	}
}
