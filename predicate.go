package lf

import (
	"fmt"
	"regexp"
	"strings"
)

// PredOp enumerates value predicate operators.
type PredOp uint8

const (
	OpEq PredOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
	OpMatch
	OpIn
	OpBetween
)

func (op PredOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNeq:
		return "!="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpMatch:
		return "match"
	case OpIn:
		return "in"
	case OpBetween:
		return "between"
	default:
		return fmt.Sprintf("invalid op %d", int(op))
	}
}

func (op PredOp) negate() (PredOp, bool) {
	switch op {
	case OpEq:
		return OpNeq, true
	case OpNeq:
		return OpEq, true
	case OpLt:
		return OpGte, true
	case OpLte:
		return OpGt, true
	case OpGt:
		return OpLte, true
	case OpGte:
		return OpLt, true
	default:
		return op, false
	}
}

// Operand is either a resolved value or a positional bind slot.
type Operand struct {
	isSlot bool
	slot   int
	value  Value
}

// Param returns an operand referring to the i-th bound parameter.
func Param(slot int) Operand {
	return Operand{isSlot: true, slot: slot}
}

func toOperand(arg any) Operand {
	if op, ok := arg.(Operand); ok {
		return op
	}
	return Operand{value: valueOf(arg)}
}

func (o Operand) String() string {
	if o.isSlot {
		return fmt.Sprintf("$%d", o.slot)
	}
	return o.value.String()
}

// CombineKind enumerates combined predicate connectives.
type CombineKind uint8

const (
	CombineAnd CombineKind = iota
	CombineOr
	CombineNot
)

func (k CombineKind) String() string {
	switch k {
	case CombineAnd:
		return "and"
	case CombineOr:
		return "or"
	default:
		return "not"
	}
}

// Predicate is the filter tree attached to a query context.
type Predicate interface {
	String() string
	bind(params []Value) (Predicate, error)
	resolved() bool
}

// ValuePredicate compares one column against literal operands or bind
// slots.
type ValuePredicate struct {
	Col      ColRef
	Op       PredOp
	Operands []Operand

	re *regexp.Regexp // compiled pattern for OpMatch
}

// JoinPredicate relates columns of two tables.
type JoinPredicate struct {
	Left, Right ColRef
	Op          PredOp
}

// CombinedPredicate connects child predicates with AND, OR or NOT.
type CombinedPredicate struct {
	Kind     CombineKind
	Children []Predicate
}

func Eq(col string, v any) Predicate      { return valuePred(col, OpEq, v) }
func Neq(col string, v any) Predicate     { return valuePred(col, OpNeq, v) }
func Lt(col string, v any) Predicate      { return valuePred(col, OpLt, v) }
func Lte(col string, v any) Predicate     { return valuePred(col, OpLte, v) }
func Gt(col string, v any) Predicate      { return valuePred(col, OpGt, v) }
func Gte(col string, v any) Predicate     { return valuePred(col, OpGte, v) }
func MatchRe(col string, v any) Predicate { return valuePred(col, OpMatch, v) }

func In(col string, vals ...any) Predicate {
	ops := make([]Operand, len(vals))
	for i, v := range vals {
		ops[i] = toOperand(v)
	}
	return &ValuePredicate{Col: parseColRef(col), Op: OpIn, Operands: ops}
}

func Between(col string, lo, hi any) Predicate {
	return &ValuePredicate{
		Col:      parseColRef(col),
		Op:       OpBetween,
		Operands: []Operand{toOperand(lo), toOperand(hi)},
	}
}

func valuePred(col string, op PredOp, v any) Predicate {
	return &ValuePredicate{Col: parseColRef(col), Op: op, Operands: []Operand{toOperand(v)}}
}

func And(ps ...Predicate) Predicate {
	return &CombinedPredicate{Kind: CombineAnd, Children: ps}
}

func Or(ps ...Predicate) Predicate {
	return &CombinedPredicate{Kind: CombineOr, Children: ps}
}

func Not(p Predicate) Predicate {
	return &CombinedPredicate{Kind: CombineNot, Children: []Predicate{p}}
}

// EqCols builds a join predicate between two qualified columns.
func EqCols(left, right string) Predicate {
	return &JoinPredicate{Left: parseColRef(left), Right: parseColRef(right), Op: OpEq}
}

func (p *ValuePredicate) String() string {
	switch p.Op {
	case OpIn:
		parts := make([]string, len(p.Operands))
		for i, o := range p.Operands {
			parts[i] = o.String()
		}
		return fmt.Sprintf("%s in (%s)", p.Col, strings.Join(parts, ", "))
	case OpBetween:
		return fmt.Sprintf("%s between %s and %s", p.Col, p.Operands[0], p.Operands[1])
	default:
		return fmt.Sprintf("%s %s %s", p.Col, p.Op, p.Operands[0])
	}
}

func (p *ValuePredicate) resolved() bool {
	for _, o := range p.Operands {
		if o.isSlot {
			return false
		}
	}
	return true
}

func (p *ValuePredicate) bind(params []Value) (Predicate, error) {
	out := &ValuePredicate{Col: p.Col, Op: p.Op, Operands: make([]Operand, len(p.Operands))}
	for i, o := range p.Operands {
		if o.isSlot {
			if o.slot < 0 || o.slot >= len(params) {
				return nil, tableErrf(CodeSyntax, p.Col.Table, p.Col.Column, nil,
					"bind slot $%d out of range (have %d params)", o.slot, len(params))
			}
			out.Operands[i] = Operand{value: params[o.slot]}
		} else {
			out.Operands[i] = o
		}
	}
	if p.Op == OpMatch {
		v := out.Operands[0].value
		if v.Kind() != KindText {
			return nil, tableErrf(CodeSyntax, p.Col.Table, p.Col.Column, nil, "match pattern must be text")
		}
		re, err := regexp.Compile(v.AsText())
		if err != nil {
			return nil, tableErrf(CodeSyntax, p.Col.Table, p.Col.Column, err, "bad match pattern")
		}
		out.re = re
	}
	return out, nil
}

func (p *JoinPredicate) String() string {
	return fmt.Sprintf("%s %s %s", p.Left, p.Op, p.Right)
}

func (p *JoinPredicate) resolved() bool { return true }

func (p *JoinPredicate) bind(params []Value) (Predicate, error) { return p, nil }

func (p *CombinedPredicate) String() string {
	if p.Kind == CombineNot {
		return fmt.Sprintf("not (%s)", p.Children[0])
	}
	parts := make([]string, len(p.Children))
	for i, c := range p.Children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " "+p.Kind.String()+" ") + ")"
}

func (p *CombinedPredicate) resolved() bool {
	for _, c := range p.Children {
		if !c.resolved() {
			return false
		}
	}
	return true
}

func (p *CombinedPredicate) bind(params []Value) (Predicate, error) {
	out := &CombinedPredicate{Kind: p.Kind, Children: make([]Predicate, len(p.Children))}
	for i, c := range p.Children {
		bc, err := c.bind(params)
		if err != nil {
			return nil, err
		}
		out.Children[i] = bc
	}
	return out, nil
}

// normalisePredicate pushes NOT to the leaves where the operator has a
// negation and flattens nested AND/OR chains.
func normalisePredicate(p Predicate) Predicate {
	return flattenPredicate(pushNot(p, false))
}

func pushNot(p Predicate, negate bool) Predicate {
	switch p := p.(type) {
	case *ValuePredicate:
		if !negate {
			return p
		}
		if nop, ok := p.Op.negate(); ok {
			return &ValuePredicate{Col: p.Col, Op: nop, Operands: p.Operands, re: p.re}
		}
		return Not(p)
	case *JoinPredicate:
		if negate {
			if nop, ok := p.Op.negate(); ok {
				return &JoinPredicate{Left: p.Left, Right: p.Right, Op: nop}
			}
			return Not(p)
		}
		return p
	case *CombinedPredicate:
		switch p.Kind {
		case CombineNot:
			return pushNot(p.Children[0], !negate)
		case CombineAnd, CombineOr:
			kind := p.Kind
			if negate {
				if kind == CombineAnd {
					kind = CombineOr
				} else {
					kind = CombineAnd
				}
			}
			children := make([]Predicate, len(p.Children))
			for i, c := range p.Children {
				children[i] = pushNot(c, negate)
			}
			return &CombinedPredicate{Kind: kind, Children: children}
		}
	}
	return p
}

func flattenPredicate(p Predicate) Predicate {
	cp, ok := p.(*CombinedPredicate)
	if !ok {
		return p
	}
	if cp.Kind == CombineNot {
		return &CombinedPredicate{Kind: CombineNot, Children: []Predicate{flattenPredicate(cp.Children[0])}}
	}
	var children []Predicate
	for _, c := range cp.Children {
		fc := flattenPredicate(c)
		if fcc, ok := fc.(*CombinedPredicate); ok && fcc.Kind == cp.Kind {
			children = append(children, fcc.Children...)
		} else {
			children = append(children, fc)
		}
	}
	if len(children) == 1 {
		return children[0]
	}
	return &CombinedPredicate{Kind: cp.Kind, Children: children}
}

// conjuncts splits a normalised predicate into its top-level AND terms.
func conjuncts(p Predicate) []Predicate {
	if p == nil {
		return nil
	}
	if cp, ok := p.(*CombinedPredicate); ok && cp.Kind == CombineAnd {
		return cp.Children
	}
	return []Predicate{p}
}

func andOf(ps []Predicate) Predicate {
	switch len(ps) {
	case 0:
		return nil
	case 1:
		return ps[0]
	default:
		return &CombinedPredicate{Kind: CombineAnd, Children: ps}
	}
}

// evalPredicate evaluates a resolved predicate against a joined row.
func evalPredicate(p Predicate, er execRow) bool {
	switch p := p.(type) {
	case *ValuePredicate:
		return p.eval(er)
	case *JoinPredicate:
		lv, lok := er.value(p.Left)
		rv, rok := er.value(p.Right)
		if !lok || !rok {
			return false
		}
		c, ok := compareValues(lv, rv)
		if !ok {
			return false
		}
		return opHolds(p.Op, c)
	case *CombinedPredicate:
		switch p.Kind {
		case CombineAnd:
			for _, c := range p.Children {
				if !evalPredicate(c, er) {
					return false
				}
			}
			return true
		case CombineOr:
			for _, c := range p.Children {
				if evalPredicate(c, er) {
					return true
				}
			}
			return false
		default:
			return !evalPredicate(p.Children[0], er)
		}
	}
	return false
}

func (p *ValuePredicate) eval(er execRow) bool {
	v, ok := er.value(p.Col)
	if !ok {
		return false
	}
	switch p.Op {
	case OpMatch:
		if v.Kind() != KindText || p.re == nil {
			return false
		}
		return p.re.MatchString(v.AsText())
	case OpIn:
		for _, o := range p.Operands {
			if c, ok := compareValues(v, o.value); ok && c == 0 {
				return true
			}
		}
		return false
	case OpBetween:
		lo, hi := p.Operands[0].value, p.Operands[1].value
		cl, okl := compareValues(v, lo)
		ch, okh := compareValues(v, hi)
		return okl && okh && cl >= 0 && ch <= 0
	case OpNeq:
		c, ok := compareValues(v, p.Operands[0].value)
		return ok && c != 0
	default:
		c, ok := compareValues(v, p.Operands[0].value)
		if !ok {
			return false
		}
		return opHolds(p.Op, c)
	}
}

func opHolds(op PredOp, c int) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNeq:
		return c != 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	default:
		return false
	}
}

// rangesForPredicate translates a resolved value predicate into a
// finite union of key ranges, when the operator admits one.
func rangesForPredicate(p *ValuePredicate) ([]KeyRange, bool) {
	switch p.Op {
	case OpEq:
		return []KeyRange{Only(p.Operands[0].value)}, true
	case OpLt:
		return []KeyRange{UpperBound(p.Operands[0].value, true)}, true
	case OpLte:
		return []KeyRange{UpperBound(p.Operands[0].value, false)}, true
	case OpGt:
		return []KeyRange{LowerBound(p.Operands[0].value, true)}, true
	case OpGte:
		return []KeyRange{LowerBound(p.Operands[0].value, false)}, true
	case OpBetween:
		return []KeyRange{NewRange(p.Operands[0].value, p.Operands[1].value, false, false)}, true
	case OpIn:
		out := make([]KeyRange, len(p.Operands))
		for i, o := range p.Operands {
			out[i] = Only(o.value)
		}
		return out, true
	case OpNeq:
		return Only(p.Operands[0].value).Complement(), true
	default:
		return nil, false
	}
}
