package lf

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// QueryKind tags a query context.
type QueryKind int

const (
	QuerySelect QueryKind = iota
	QueryInsert
	QueryUpdate
	QueryDelete
)

func (k QueryKind) String() string {
	switch k {
	case QuerySelect:
		return "select"
	case QueryInsert:
		return "insert"
	case QueryUpdate:
		return "update"
	default:
		return "delete"
	}
}

// Order is a sort direction.
type Order int

const (
	Asc Order = iota
	Desc
)

// AggKind enumerates aggregate functions on projected columns.
type AggKind int

const (
	AggNone AggKind = iota
	AggCount
	AggSum
	AggAvg
	AggMin
	AggMax
)

func (a AggKind) String() string {
	switch a {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	default:
		return ""
	}
}

// ColRef names a column, optionally qualified by table and wrapped in
// an aggregate.
type ColRef struct {
	Table  string
	Column string
	Agg    AggKind
}

func parseColRef(s string) ColRef {
	if t, c, ok := strings.Cut(s, "."); ok {
		return ColRef{Table: t, Column: c}
	}
	return ColRef{Column: s}
}

func (c ColRef) String() string {
	name := c.Column
	if c.Table != "" {
		name = c.Table + "." + name
	}
	if c.Agg != AggNone {
		return c.Agg.String() + "(" + name + ")"
	}
	return name
}

func Count(col string) ColRef { return aggRef(col, AggCount) }
func Sum(col string) ColRef   { return aggRef(col, AggSum) }
func Avg(col string) ColRef   { return aggRef(col, AggAvg) }
func Min(col string) ColRef   { return aggRef(col, AggMin) }
func Max(col string) ColRef   { return aggRef(col, AggMax) }

func aggRef(col string, agg AggKind) ColRef {
	ref := parseColRef(col)
	ref.Agg = agg
	return ref
}

type joinClause struct {
	table string
	pred  Predicate
	outer bool
}

type orderClause struct {
	col  ColRef
	desc bool
}

type setClause struct {
	col string
	op  Operand
}

var queryVersions atomic.Uint64

// Context is an immutable, frozen query. Builders produce one at their
// terminal verb; binding parameters produces a logically new context
// with a fresh version.
type Context struct {
	kind    QueryKind
	columns []ColRef
	from    []string
	joins   []joinClause
	where   Predicate
	orderBy []orderClause
	groupBy []ColRef
	limit   int
	skip    int
	hasLim  bool
	hasSkip bool
	rows    []map[string]Value
	replace bool
	sets    []setClause
	params  []Value
	version uint64
}

func (ctx *Context) Kind() QueryKind { return ctx.kind }

// Version is the monotonic counter assigned when the context was
// frozen or re-bound.
func (ctx *Context) Version() uint64 { return ctx.version }

// Tables lists every table the context touches, in declaration order.
func (ctx *Context) Tables() []string {
	out := append([]string(nil), ctx.from...)
	for _, j := range ctx.joins {
		out = append(out, j.table)
	}
	return out
}

// Bind resolves the context's parameter slots against vals, producing
// a new context. The original is untouched, so it can be re-bound.
func (ctx *Context) Bind(vals ...Value) *Context {
	out := *ctx
	out.params = vals
	out.version = queryVersions.Add(1)
	return &out
}

// resolvedWhere returns the where tree with parameters substituted.
func (ctx *Context) resolvedWhere() (Predicate, error) {
	if ctx.where == nil {
		return nil, nil
	}
	p, err := ctx.where.bind(ctx.params)
	if err != nil {
		return nil, err
	}
	if !p.resolved() {
		return nil, errf(CodeSyntax, nil, "unresolved bind slot in %s", p)
	}
	return p, nil
}

// fingerprint is the structural identity of a query: semantically
// equal contexts (including bound parameters) collapse to one value.
func (ctx *Context) fingerprint() uint64 {
	var buf strings.Builder
	buf.WriteString(ctx.kind.String())
	buf.WriteByte('|')
	for _, c := range ctx.columns {
		buf.WriteString(c.String())
		buf.WriteByte(',')
	}
	buf.WriteByte('|')
	buf.WriteString(strings.Join(ctx.from, ","))
	buf.WriteByte('|')
	for _, j := range ctx.joins {
		if j.outer {
			buf.WriteString("left:")
		}
		buf.WriteString(j.table)
		buf.WriteByte(':')
		buf.WriteString(j.pred.String())
		buf.WriteByte(',')
	}
	buf.WriteByte('|')
	if ctx.where != nil {
		buf.WriteString(ctx.where.String())
	}
	buf.WriteByte('|')
	for _, o := range ctx.orderBy {
		buf.WriteString(o.col.String())
		if o.desc {
			buf.WriteString(":desc")
		}
		buf.WriteByte(',')
	}
	buf.WriteByte('|')
	for _, g := range ctx.groupBy {
		buf.WriteString(g.String())
		buf.WriteByte(',')
	}
	buf.WriteByte('|')
	if ctx.hasLim {
		buf.WriteString(strconv.Itoa(ctx.limit))
	}
	buf.WriteByte('|')
	if ctx.hasSkip {
		buf.WriteString(strconv.Itoa(ctx.skip))
	}
	buf.WriteByte('|')
	for _, p := range ctx.params {
		buf.WriteString(p.String())
		buf.WriteByte(',')
	}
	return xxhash.Sum64String(buf.String())
}

// ResultRow is one row of a query result. RowID identifies the source
// row for single-table, non-aggregated selects and is zero otherwise.
type ResultRow struct {
	RowID  uint64
	Values map[string]Value
}

func (r ResultRow) Get(col string) Value {
	v, ok := r.Values[col]
	if !ok {
		return Null()
	}
	return v
}

// Result is the outcome of one executed query.
type Result struct {
	Columns      []string
	Rows         []ResultRow
	RowsAffected int
}

func (res *Result) String() string {
	return fmt.Sprintf("%d rows", len(res.Rows))
}
