package lf

import (
	"strings"
)

// KeyRange is a closed or half-open interval over a comparable key
// domain. A nil endpoint leaves that side unbounded. KeyRange is a
// value type; equality is structural.
type KeyRange struct {
	From, To         *Value
	FromExcl, ToExcl bool
}

func Only(v Value) KeyRange {
	return KeyRange{From: &v, To: &v}
}

func LowerBound(v Value, exclusive bool) KeyRange {
	return KeyRange{From: &v, FromExcl: exclusive}
}

func UpperBound(v Value, exclusive bool) KeyRange {
	return KeyRange{To: &v, ToExcl: exclusive}
}

func AllRange() KeyRange {
	return KeyRange{}
}

func NewRange(from, to Value, fromExcl, toExcl bool) KeyRange {
	return KeyRange{From: &from, To: &to, FromExcl: fromExcl, ToExcl: toExcl}
}

func (r KeyRange) IsAll() bool {
	return r.From == nil && r.To == nil
}

func (r KeyRange) Contains(v Value) bool {
	if v.IsNull() {
		return false // null is not a valid key
	}
	if r.From != nil {
		c, ok := compareValues(v, *r.From)
		if !ok || c < 0 || (c == 0 && r.FromExcl) {
			return false
		}
	}
	if r.To != nil {
		c, ok := compareValues(v, *r.To)
		if !ok || c > 0 || (c == 0 && r.ToExcl) {
			return false
		}
	}
	return true
}

// Reverse swaps the bounds, turning the range into its mirror for
// descending scans.
func (r KeyRange) Reverse() KeyRange {
	return KeyRange{From: r.To, To: r.From, FromExcl: r.ToExcl, ToExcl: r.FromExcl}
}

// Complement returns the ranges covering every key outside r: none for
// the unbounded range, one for a half-open range, two for a bounded
// one.
func (r KeyRange) Complement() []KeyRange {
	var out []KeyRange
	if r.From != nil {
		out = append(out, KeyRange{To: r.From, ToExcl: !r.FromExcl})
	}
	if r.To != nil {
		out = append(out, KeyRange{From: r.To, FromExcl: !r.ToExcl})
	}
	return out
}

// complementRanges complements a union of sorted, disjoint ranges.
func complementRanges(rs []KeyRange) []KeyRange {
	if len(rs) == 0 {
		return []KeyRange{AllRange()}
	}
	var out []KeyRange
	first := rs[0]
	if first.From != nil {
		out = append(out, KeyRange{To: first.From, ToExcl: !first.FromExcl})
	}
	for i := 0; i+1 < len(rs); i++ {
		a, b := rs[i], rs[i+1]
		if a.To == nil || b.From == nil {
			continue
		}
		out = append(out, KeyRange{
			From: a.To, FromExcl: !a.ToExcl,
			To: b.From, ToExcl: !b.FromExcl,
		})
	}
	last := rs[len(rs)-1]
	if last.To != nil {
		out = append(out, KeyRange{From: last.To, FromExcl: !last.ToExcl})
	}
	return out
}

func (r KeyRange) Equal(o KeyRange) bool {
	return boundEqual(r.From, o.From) && boundEqual(r.To, o.To) &&
		r.FromExcl == o.FromExcl && r.ToExcl == o.ToExcl
}

func boundEqual(a, b *Value) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return valueEqual(*a, *b)
}

func (r KeyRange) String() string {
	var buf strings.Builder
	if r.FromExcl {
		buf.WriteByte('(')
	} else {
		buf.WriteByte('[')
	}
	if r.From != nil {
		buf.WriteString(r.From.String())
	} else {
		buf.WriteString("-inf")
	}
	buf.WriteString(", ")
	if r.To != nil {
		buf.WriteString(r.To.String())
	} else {
		buf.WriteString("+inf")
	}
	if r.ToExcl {
		buf.WriteByte(')')
	} else {
		buf.WriteByte(']')
	}
	return buf.String()
}

func formatRanges(rs []KeyRange) string {
	if len(rs) == 0 {
		return "[]"
	}
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = r.String()
	}
	return strings.Join(parts, " or ")
}
