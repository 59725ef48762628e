package lf

import (
	"sort"
)

// buildPlan turns an immutable query context into a physical plan.
// Rewrites run in a fixed order: predicate normalisation, predicate
// pushdown, index substitution, join ordering, then limit and skip
// pushdown.
func buildPlan(db *DB, ctx *Context) (planNode, error) {
	where, err := ctx.resolvedWhere()
	if err != nil {
		return nil, err
	}
	where = normaliseIfSet(where)

	switch ctx.kind {
	case QuerySelect:
		return buildSelectPlan(db, ctx, where)
	case QueryInsert:
		tbl := db.schema.TableNamed(ctx.from[0])
		return &insertNode{tbl: tbl, rows: ctx.rows, replace: ctx.replace}, nil
	case QueryUpdate:
		tbl := db.schema.TableNamed(ctx.from[0])
		scan := buildSingleTableScan(db, tbl, where)
		sets, err := resolveSets(ctx)
		if err != nil {
			return nil, err
		}
		return &updateNode{tbl: tbl, sets: sets, child: scan}, nil
	case QueryDelete:
		tbl := db.schema.TableNamed(ctx.from[0])
		return &deleteNode{tbl: tbl, child: buildSingleTableScan(db, tbl, where)}, nil
	}
	return nil, errf(CodeSyntax, nil, "unknown query kind %d", ctx.kind)
}

func normaliseIfSet(p Predicate) Predicate {
	if p == nil {
		return nil
	}
	return normalisePredicate(p)
}

func resolveSets(ctx *Context) ([]setClause, error) {
	out := make([]setClause, len(ctx.sets))
	for i, s := range ctx.sets {
		if s.op.isSlot {
			if s.op.slot < 0 || s.op.slot >= len(ctx.params) {
				return nil, errf(CodeSyntax, nil, "bind slot $%d out of range", s.op.slot)
			}
			out[i] = setClause{col: s.col, op: Operand{value: ctx.params[s.op.slot]}}
		} else {
			out[i] = s
		}
	}
	return out, nil
}

func buildSelectPlan(db *DB, ctx *Context, where Predicate) (planNode, error) {
	tables := ctx.Tables()

	// Split the conjuncts into per-table terms and a residual.
	perTable := make(map[string][]Predicate)
	var residual []Predicate
	var joinConds []Predicate
	for _, c := range conjuncts(where) {
		if owner, ok := singleTablePred(c); ok {
			perTable[owner] = append(perTable[owner], c)
		} else if _, isJoin := c.(*JoinPredicate); isJoin {
			joinConds = append(joinConds, c)
		} else {
			residual = append(residual, c)
		}
	}

	// Choose the access path per table.
	type access struct {
		table string
		node  planNode
		cost  int
		outer bool
		pred  Predicate // outer join condition
	}
	accesses := make([]access, 0, len(tables))
	outerTables := make(map[string]joinClause)
	for _, j := range ctx.joins {
		if j.outer {
			outerTables[j.table] = j
		} else {
			joinConds = append(joinConds, j.pred)
		}
	}
	for _, name := range tables {
		tbl := db.schema.TableNamed(name)
		node, cost := chooseAccess(db, tbl, perTable[name])
		a := access{table: name, node: node, cost: cost}
		if j, ok := outerTables[name]; ok {
			a.outer = true
			a.pred = j.pred
		}
		accesses = append(accesses, a)
	}

	// Join order: smallest estimated result first. With up to three
	// tables the greedy order coincides with exhaustive enumeration
	// under the independence assumption the cost model makes. Outer
	// joins keep their declared position at the end.
	var inner, outer []access
	for _, a := range accesses {
		if a.outer {
			outer = append(outer, a)
		} else {
			inner = append(inner, a)
		}
	}
	sort.SliceStable(inner, func(i, j int) bool { return inner[i].cost < inner[j].cost })

	var root planNode
	joined := make(map[string]bool)
	for _, a := range inner {
		if root == nil {
			root = a.node
		} else {
			pred := takeJoinCond(&joinConds, joined, a.table)
			root = &joinNode{rightTable: a.table, pred: pred, left: root, right: a.node}
		}
		joined[a.table] = true
	}
	for _, a := range outer {
		root = &joinNode{outer: true, rightTable: a.table, pred: a.pred, left: root, right: a.node}
		joined[a.table] = true
	}
	// Leftover join conditions apply as plain filters.
	residual = append(residual, joinConds...)
	if p := andOf(residual); p != nil {
		root = &selectNode{pred: p, child: root}
	}

	hasAgg := false
	for _, c := range ctx.columns {
		if c.Agg != AggNone {
			hasAgg = true
			break
		}
	}
	if hasAgg || len(ctx.groupBy) != 0 {
		root = &aggregateNode{groupBy: ctx.groupBy, cols: ctx.columns, child: root}
	}

	// OrderBy, with satisfaction detection unlocking limit pushdown.
	ordered := root
	var orderNode *orderByNode
	if len(ctx.orderBy) != 0 {
		orderNode = &orderByNode{orders: ctx.orderBy, child: root}
		orderNode.sorted = orderSatisfied(root, ctx.orderBy)
		ordered = orderNode
	}

	top := ordered
	if orderNode != nil && orderNode.sorted {
		// Limit and skip slide beneath a satisfied order.
		below := orderNode.child
		if ctx.hasSkip {
			below = &skipNode{n: ctx.skip, child: below}
		}
		if ctx.hasLim {
			below = &limitNode{n: ctx.limit, child: below}
		}
		orderNode.child = below
		top = orderNode
	} else {
		if ctx.hasSkip {
			top = &skipNode{n: ctx.skip, child: top}
		}
		if ctx.hasLim {
			top = &limitNode{n: ctx.limit, child: top}
		}
	}

	return &projectNode{cols: ctx.columns, child: top}, nil
}

// buildSingleTableScan plans the row source of an update or delete.
func buildSingleTableScan(db *DB, tbl *Table, where Predicate) planNode {
	node, _ := chooseAccess(db, tbl, conjuncts(where))
	return node
}

// singleTablePred reports the owning table when every column of the
// predicate belongs to one table.
func singleTablePred(p Predicate) (string, bool) {
	switch p := p.(type) {
	case *ValuePredicate:
		return p.Col.Table, true
	case *CombinedPredicate:
		var owner string
		for _, c := range p.Children {
			t, ok := singleTablePred(c)
			if !ok {
				return "", false
			}
			if owner == "" {
				owner = t
			} else if owner != t {
				return "", false
			}
		}
		return owner, owner != ""
	default:
		return "", false
	}
}

func takeJoinCond(conds *[]Predicate, joined map[string]bool, next string) Predicate {
	for i, c := range *conds {
		jp, ok := c.(*JoinPredicate)
		if !ok {
			continue
		}
		l, r := jp.Left.Table, jp.Right.Table
		if (joined[l] && r == next) || (joined[r] && l == next) {
			*conds = append((*conds)[:i], (*conds)[i+1:]...)
			return jp
		}
	}
	return nil
}

// chooseAccess picks between a full table scan and an index range scan
// for one table, given the conjuncts pinned to it. The full-scan cost
// is the table's row count; an index wins when its estimated range
// cost is strictly lower. Unconsumed conjuncts wrap the access in a
// select node.
func chooseAccess(db *DB, tbl *Table, terms []Predicate) (planNode, int) {
	ts := db.tableState(tbl.name)
	fullCost := ts.cacheLen()

	bestCost := fullCost
	var bestScan *indexScanNode
	bestTerm := -1

	for i, term := range terms {
		spec, ranges, ok := indexableTerm(tbl, term)
		if !ok {
			continue
		}
		idx := ts.indexNamed(spec.Name)
		if idx == nil {
			continue
		}
		cost := ts.indexCost(spec.Name, ranges)
		if cost < bestCost {
			bestCost = cost
			bestScan = &indexScanNode{tbl: tbl, spec: spec, ranges: ranges}
			bestTerm = i
		}
	}

	if bestScan == nil {
		node := planNode(&tableAccessNode{tbl: tbl})
		if p := andOf(terms); p != nil {
			node = &selectNode{pred: p, child: node}
		}
		return node, fullCost
	}

	var rest []Predicate
	for i, term := range terms {
		if i != bestTerm {
			rest = append(rest, term)
		}
	}
	node := planNode(bestScan)
	if p := andOf(rest); p != nil {
		node = &selectNode{pred: p, child: node}
	}
	return node, bestCost
}

// indexableTerm translates one conjunct into ranges over a single
// ordered index. A plain value predicate needs an index on its column;
// an OR qualifies when all disjuncts target the same indexed column,
// in which case the union of their ranges drives one scan.
func indexableTerm(tbl *Table, term Predicate) (*IndexSpec, []KeyRange, bool) {
	switch term := term.(type) {
	case *ValuePredicate:
		if !term.resolved() {
			return nil, nil, false
		}
		ranges, ok := rangesForPredicate(term)
		if !ok {
			return nil, nil, false
		}
		spec := orderedIndexOn(tbl, term.Col.Column)
		if spec == nil {
			return nil, nil, false
		}
		return spec, ranges, true
	case *CombinedPredicate:
		if term.Kind != CombineOr {
			return nil, nil, false
		}
		var col string
		var union []KeyRange
		for _, c := range term.Children {
			vp, ok := c.(*ValuePredicate)
			if !ok || !vp.resolved() {
				return nil, nil, false
			}
			if col == "" {
				col = vp.Col.Column
			} else if col != vp.Col.Column {
				return nil, nil, false
			}
			rs, ok := rangesForPredicate(vp)
			if !ok {
				return nil, nil, false
			}
			union = append(union, rs...)
		}
		spec := orderedIndexOn(tbl, col)
		if spec == nil {
			return nil, nil, false
		}
		return spec, union, true
	default:
		return nil, nil, false
	}
}

// orderedIndexOn finds a single-column ordered index on the column.
func orderedIndexOn(tbl *Table, col string) *IndexSpec {
	for _, spec := range tbl.indices {
		if spec.Kind == IndexOrdered && len(spec.Columns) == 1 && spec.Columns[0] == col {
			return spec
		}
	}
	return nil
}

// orderSatisfied reports whether the subtree already delivers rows in
// the requested order: a single ascending index scan over one
// contiguous range on the ordering column.
func orderSatisfied(node planNode, orders []orderClause) bool {
	if len(orders) != 1 {
		return false
	}
	for {
		switch n := node.(type) {
		case *selectNode:
			node = n.child
			continue
		case *indexScanNode:
			if len(n.ranges) != 1 {
				return false
			}
			return n.spec.Columns[0] == orders[0].col.Column && !orders[0].desc
		default:
			return false
		}
	}
}
