package lf

import (
	"fmt"
	"strings"
)

// planNode is one physical operator. The planner produces a tree of
// these; the executor walks it.
type planNode interface {
	describe() string
	children() []planNode
}

type tableAccessNode struct {
	tbl *Table
}

func (n *tableAccessNode) describe() string {
	return fmt.Sprintf("table_access(%s)", n.tbl.name)
}
func (n *tableAccessNode) children() []planNode { return nil }

type indexScanNode struct {
	tbl     *Table
	spec    *IndexSpec
	ranges  []KeyRange
	reverse bool
}

func (n *indexScanNode) describe() string {
	dir := ""
	if n.reverse {
		dir = ", reverse"
	}
	return fmt.Sprintf("index_range_scan(%s.%s, %s%s)", n.tbl.name, n.spec.Name, formatRanges(n.ranges), dir)
}
func (n *indexScanNode) children() []planNode { return nil }

type selectNode struct {
	pred  Predicate
	child planNode
}

func (n *selectNode) describe() string {
	return fmt.Sprintf("select(%s)", n.pred)
}
func (n *selectNode) children() []planNode { return []planNode{n.child} }

type joinNode struct {
	outer       bool
	rightTable  string
	pred        Predicate
	left, right planNode
}

func (n *joinNode) describe() string {
	kind := "inner"
	if n.outer {
		kind = "left_outer"
	}
	if n.pred == nil {
		return fmt.Sprintf("join(%s)", kind)
	}
	return fmt.Sprintf("join(%s, %s)", kind, n.pred)
}
func (n *joinNode) children() []planNode { return []planNode{n.left, n.right} }

type aggregateNode struct {
	groupBy []ColRef
	cols    []ColRef
	child   planNode
}

func (n *aggregateNode) describe() string {
	var aggs []string
	for _, c := range n.cols {
		if c.Agg != AggNone {
			aggs = append(aggs, c.String())
		}
	}
	s := "aggregate(" + strings.Join(aggs, ", ")
	if len(n.groupBy) != 0 {
		var gs []string
		for _, g := range n.groupBy {
			gs = append(gs, g.String())
		}
		s += " group by " + strings.Join(gs, ", ")
	}
	return s + ")"
}
func (n *aggregateNode) children() []planNode { return []planNode{n.child} }

type orderByNode struct {
	orders []orderClause
	// sorted marks the input as already delivering the requested order,
	// which also unlocks limit and skip pushdown beneath this node.
	sorted bool
	child  planNode
}

func (n *orderByNode) describe() string {
	parts := make([]string, len(n.orders))
	for i, o := range n.orders {
		dir := "asc"
		if o.desc {
			dir = "desc"
		}
		parts[i] = o.col.String() + " " + dir
	}
	s := fmt.Sprintf("order_by(%s)", strings.Join(parts, ", "))
	if n.sorted {
		s += " [satisfied]"
	}
	return s
}
func (n *orderByNode) children() []planNode { return []planNode{n.child} }

type skipNode struct {
	n     int
	child planNode
}

func (n *skipNode) describe() string     { return fmt.Sprintf("skip(%d)", n.n) }
func (n *skipNode) children() []planNode { return []planNode{n.child} }

type limitNode struct {
	n     int
	child planNode
}

func (n *limitNode) describe() string     { return fmt.Sprintf("limit(%d)", n.n) }
func (n *limitNode) children() []planNode { return []planNode{n.child} }

type projectNode struct {
	cols  []ColRef // empty means every column
	child planNode
}

func (n *projectNode) describe() string {
	if len(n.cols) == 0 {
		return "project(*)"
	}
	parts := make([]string, len(n.cols))
	for i, c := range n.cols {
		parts[i] = c.String()
	}
	return fmt.Sprintf("project(%s)", strings.Join(parts, ", "))
}
func (n *projectNode) children() []planNode { return []planNode{n.child} }

type insertNode struct {
	tbl     *Table
	rows    []map[string]Value
	replace bool
}

func (n *insertNode) describe() string {
	verb := "insert"
	if n.replace {
		verb = "insert_or_replace"
	}
	return fmt.Sprintf("%s(%s, %d rows)", verb, n.tbl.name, len(n.rows))
}
func (n *insertNode) children() []planNode { return nil }

type updateNode struct {
	tbl   *Table
	sets  []setClause
	child planNode
}

func (n *updateNode) describe() string {
	cols := make([]string, len(n.sets))
	for i, s := range n.sets {
		cols[i] = s.col
	}
	return fmt.Sprintf("update(%s, set %s)", n.tbl.name, strings.Join(cols, ", "))
}
func (n *updateNode) children() []planNode { return []planNode{n.child} }

type deleteNode struct {
	tbl   *Table
	child planNode
}

func (n *deleteNode) describe() string     { return fmt.Sprintf("delete(%s)", n.tbl.name) }
func (n *deleteNode) children() []planNode { return []planNode{n.child} }

// explainPlan serialises a plan as an indented tree.
func explainPlan(root planNode) string {
	var buf strings.Builder
	var walk func(n planNode, depth int)
	walk = func(n planNode, depth int) {
		buf.WriteString(strings.Repeat("  ", depth))
		buf.WriteString(n.describe())
		buf.WriteByte('\n')
		for _, c := range n.children() {
			walk(c, depth+1)
		}
	}
	walk(root, 0)
	return buf.String()
}
