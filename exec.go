package lf

import (
	"sort"
)

// aggTableKey is the pseudo-table slot aggregate outputs live under in
// an execRow.
const aggTableKey = "\x00agg"

// execRow is one intermediate row of plan execution: the joined rows
// keyed by table name. A nil entry is an unmatched outer-join side and
// reads as all-null.
type execRow map[string]*Row

func (er execRow) value(ref ColRef) (Value, bool) {
	if ref.Agg != AggNone {
		row, ok := er[aggTableKey]
		if !ok || row == nil {
			return Null(), false
		}
		return row.Get(ref.String()), true
	}
	row, ok := er[ref.Table]
	if !ok {
		return Null(), false
	}
	if row == nil {
		return Null(), true
	}
	return row.Get(ref.Column), true
}

// execCtx is the execution state of one task: the journal and the
// back-store transaction it reads through.
type execCtx struct {
	db  *DB
	j   *journal
	btx BackStoreTx
}

// fetchRow reads a row journal first, then cache, then back store.
func (ec *execCtx) fetchRow(tbl *Table, id uint64) (*Row, bool) {
	if chg, ok := ec.j.change(tbl, id); ok {
		if chg.op == OpDelete {
			return nil, false
		}
		return chg.row, true
	}
	ts := ec.db.tableState(tbl.name)
	if row, ok := ts.cacheGet(id); ok {
		return row, true
	}
	st, err := ec.btx.Store(tbl.name)
	if err != nil {
		return nil, false
	}
	data := st.Get(rowKey(id))
	if data == nil {
		return nil, false
	}
	row, err := decodeRow(rowKey(id), data)
	if err != nil {
		return nil, false
	}
	return row, true
}

// tableRows returns every live row of a table in row-id order, with
// the journal's pending changes applied on top of the cache.
func (ec *execCtx) tableRows(tbl *Table) []*Row {
	ts := ec.db.tableState(tbl.name)
	cached := ts.cacheAll()

	if ec.j.empty() {
		return cached
	}
	out := make([]*Row, 0, len(cached))
	for _, row := range cached {
		if chg, ok := ec.j.change(tbl, row.ID); ok {
			if chg.op == OpDelete {
				continue
			}
			out = append(out, chg.row)
			continue
		}
		out = append(out, row)
	}
	// Rows inserted by this task are not cached yet; their monotonic
	// ids sort after every cached row.
	for _, key := range ec.j.order {
		if key.table != tbl.name {
			continue
		}
		chg := ec.j.changes[key]
		if chg.op == OpPut && chg.old == nil {
			out = append(out, chg.row)
		}
	}
	return out
}

func (ec *execCtx) iterate(node planNode) ([]execRow, error) {
	switch n := node.(type) {
	case *tableAccessNode:
		rows := ec.tableRows(n.tbl)
		out := make([]execRow, len(rows))
		for i, row := range rows {
			out[i] = execRow{n.tbl.name: row}
		}
		return out, nil

	case *indexScanNode:
		return ec.indexScan(n)

	case *selectNode:
		in, err := ec.iterate(n.child)
		if err != nil {
			return nil, err
		}
		var out []execRow
		for _, er := range in {
			if evalPredicate(n.pred, er) {
				out = append(out, er)
			}
		}
		return out, nil

	case *joinNode:
		return ec.join(n)

	case *aggregateNode:
		return ec.aggregate(n)

	case *orderByNode:
		in, err := ec.iterate(n.child)
		if err != nil {
			return nil, err
		}
		if n.sorted {
			return in, nil
		}
		sortExecRows(in, n.orders)
		return in, nil

	case *skipNode:
		in, err := ec.iterate(n.child)
		if err != nil {
			return nil, err
		}
		if n.n >= len(in) {
			return nil, nil
		}
		return in[n.n:], nil

	case *limitNode:
		in, err := ec.iterate(n.child)
		if err != nil {
			return nil, err
		}
		if len(in) > n.n {
			in = in[:n.n]
		}
		return in, nil

	default:
		return nil, errf(CodeSyntax, nil, "cannot iterate %T", node)
	}
}

func (ec *execCtx) indexScan(n *indexScanNode) ([]execRow, error) {
	ts := ec.db.tableState(n.tbl.name)
	ids := ts.indexGetRange(n.spec.Name, n.ranges)
	if n.reverse {
		for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
			ids[i], ids[j] = ids[j], ids[i]
		}
	}

	seen := make(map[uint64]bool, len(ids))
	var out []execRow
	for _, id := range ids {
		seen[id] = true
		if chg, ok := ec.j.change(n.tbl, id); ok {
			// The journal overrides the committed index contents.
			if chg.op == OpDelete {
				continue
			}
			if key, ok := indexKeyForRow(n.spec, chg.row); !ok || !rangesContain(n.ranges, key) {
				continue
			}
			out = append(out, execRow{n.tbl.name: chg.row})
			continue
		}
		row, ok := ts.cacheGet(id)
		if !ok {
			var fetched bool
			row, fetched = ec.fetchRow(n.tbl, id)
			if !fetched {
				continue
			}
		}
		out = append(out, execRow{n.tbl.name: row})
	}

	// Pending writes of this task may fall inside the scanned ranges
	// without being indexed yet.
	for _, key := range ec.j.order {
		if key.table != n.tbl.name || seen[key.rowID] {
			continue
		}
		chg := ec.j.changes[key]
		if chg.op != OpPut {
			continue
		}
		if k, ok := indexKeyForRow(n.spec, chg.row); ok && rangesContain(n.ranges, k) {
			out = append(out, execRow{n.tbl.name: chg.row})
		}
	}
	return out, nil
}

func (ec *execCtx) join(n *joinNode) ([]execRow, error) {
	left, err := ec.iterate(n.left)
	if err != nil {
		return nil, err
	}
	right, err := ec.iterate(n.right)
	if err != nil {
		return nil, err
	}
	var out []execRow
	for _, le := range left {
		matched := false
		for _, re := range right {
			merged := mergeExecRows(le, re)
			if n.pred == nil || evalPredicate(n.pred, merged) {
				out = append(out, merged)
				matched = true
			}
		}
		if !matched && n.outer {
			merged := mergeExecRows(le, nil)
			merged[n.rightTable] = nil
			out = append(out, merged)
		}
	}
	return out, nil
}

func mergeExecRows(a, b execRow) execRow {
	out := make(execRow, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func (ec *execCtx) aggregate(n *aggregateNode) ([]execRow, error) {
	in, err := ec.iterate(n.child)
	if err != nil {
		return nil, err
	}

	type group struct {
		rep  execRow // representative row for the group-by columns
		rows []execRow
	}
	groups := make(map[string]*group)
	var order []string
	for _, er := range in {
		key := ""
		for _, g := range n.groupBy {
			v, _ := er.value(g)
			key += formatKey(v) + "\x00"
		}
		grp := groups[key]
		if grp == nil {
			grp = &group{rep: er}
			groups[key] = grp
			order = append(order, key)
		}
		grp.rows = append(grp.rows, er)
	}
	if len(groups) == 0 && len(n.groupBy) == 0 {
		// Aggregates over an empty input still produce one row.
		groups[""] = &group{rep: execRow{}}
		order = append(order, "")
	}

	var out []execRow
	for _, key := range order {
		grp := groups[key]
		agg := &Row{Values: make(map[string]Value)}
		for _, col := range n.cols {
			if col.Agg == AggNone {
				continue
			}
			agg.Values[col.String()] = computeAggregate(col, grp.rows)
		}
		er := mergeExecRows(grp.rep, nil)
		er[aggTableKey] = agg
		out = append(out, er)
	}
	return out, nil
}

func computeAggregate(col ColRef, rows []execRow) Value {
	base := ColRef{Table: col.Table, Column: col.Column}
	var vals []Value
	for _, er := range rows {
		v, ok := er.value(base)
		if ok && !v.IsNull() {
			vals = append(vals, v)
		}
	}
	switch col.Agg {
	case AggCount:
		return Int(int64(len(vals)))
	case AggSum:
		return sumValues(vals)
	case AggAvg:
		if len(vals) == 0 {
			return Null()
		}
		s := sumValues(vals)
		return Real(s.AsReal() / float64(len(vals)))
	case AggMin:
		return extremeValue(vals, true)
	case AggMax:
		return extremeValue(vals, false)
	default:
		return Null()
	}
}

func sumValues(vals []Value) Value {
	if len(vals) == 0 {
		return Int(0)
	}
	allInt := true
	for _, v := range vals {
		if v.Kind() != KindInteger {
			allInt = false
			break
		}
	}
	if allInt {
		var s int64
		for _, v := range vals {
			s += v.AsInt()
		}
		return Int(s)
	}
	var s float64
	for _, v := range vals {
		s += v.AsReal()
	}
	return Real(s)
}

func extremeValue(vals []Value, min bool) Value {
	if len(vals) == 0 {
		return Null()
	}
	best := vals[0]
	for _, v := range vals[1:] {
		c, ok := compareValues(v, best)
		if !ok {
			continue
		}
		if (min && c < 0) || (!min && c > 0) {
			best = v
		}
	}
	return best
}

func sortExecRows(rows []execRow, orders []orderClause) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range orders {
			a, _ := rows[i].value(o.col)
			b, _ := rows[j].value(o.col)
			// Nulls sort first in ascending order.
			if a.IsNull() || b.IsNull() {
				if a.IsNull() == b.IsNull() {
					continue
				}
				return a.IsNull() != o.desc
			}
			c, ok := compareValues(a, b)
			if !ok || c == 0 {
				continue
			}
			if o.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// executePlan runs one query's physical plan inside the task.
func executePlan(ec *execCtx, ctx *Context, plan planNode) (*Result, error) {
	switch n := plan.(type) {
	case *projectNode:
		return ec.project(ctx, n)
	case *insertNode:
		return ec.runInsert(n)
	case *updateNode:
		return ec.runUpdate(n)
	case *deleteNode:
		return ec.runDelete(n)
	default:
		return nil, errf(CodeSyntax, nil, "unexpected plan root %T", plan)
	}
}

func (ec *execCtx) project(ctx *Context, n *projectNode) (*Result, error) {
	in, err := ec.iterate(n.child)
	if err != nil {
		return nil, err
	}

	tables := ctx.Tables()
	singleTable := len(tables) == 1
	hasAgg := false
	for _, c := range n.cols {
		if c.Agg != AggNone {
			hasAgg = true
		}
	}

	var cols []ColRef
	if len(n.cols) != 0 {
		cols = n.cols
	} else {
		for _, t := range tables {
			for _, c := range ec.db.schema.TableNamed(t).columns {
				cols = append(cols, ColRef{Table: t, Column: c.Name})
			}
		}
	}

	names := projectionNames(cols, singleTable)
	res := &Result{Columns: names, Rows: make([]ResultRow, 0, len(in))}
	for _, er := range in {
		rr := ResultRow{Values: make(map[string]Value, len(cols))}
		for i, ref := range cols {
			v, _ := er.value(ref)
			rr.Values[names[i]] = v
		}
		if singleTable && !hasAgg {
			if row := er[tables[0]]; row != nil {
				rr.RowID = row.ID
			}
		}
		res.Rows = append(res.Rows, rr)
	}
	return res, nil
}

// projectionNames picks display names: bare column names unless two
// projected columns collide, which forces qualified names.
func projectionNames(cols []ColRef, singleTable bool) []string {
	counts := make(map[string]int)
	for _, c := range cols {
		if c.Agg == AggNone {
			counts[c.Column]++
		}
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		switch {
		case c.Agg != AggNone:
			names[i] = c.String()
		case !singleTable && counts[c.Column] > 1:
			names[i] = c.Table + "." + c.Column
		default:
			names[i] = c.Column
		}
	}
	return names
}

func (ec *execCtx) runInsert(n *insertNode) (*Result, error) {
	ts := ec.db.tableState(n.tbl.name)
	pkSpec := n.tbl.IndexNamed("pk_" + n.tbl.name)
	res := &Result{}
	for _, payload := range n.rows {
		row := &Row{Values: make(map[string]Value, len(payload))}
		for k, v := range payload {
			row.Values[k] = v
		}

		var old *Row
		if n.replace && pkSpec != nil {
			if key, ok := indexKeyForRow(pkSpec, row); ok {
				for _, id := range ts.indexGet(pkSpec.Name, key) {
					if existing, ok := ec.fetchRow(n.tbl, id); ok {
						old = existing
					}
				}
			}
		}
		if old != nil {
			row.ID = old.ID
		} else {
			row.ID = ec.db.rowIDs.next()
		}
		ec.j.put(n.tbl, old, row)
		res.RowsAffected++
	}
	return res, nil
}

func (ec *execCtx) runUpdate(n *updateNode) (*Result, error) {
	in, err := ec.iterate(n.child)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	for _, er := range in {
		old := er[n.tbl.name]
		if old == nil {
			continue
		}
		row := old.Clone()
		for _, s := range n.sets {
			col := n.tbl.ColumnNamed(s.col)
			v := s.op.value
			if !v.IsNull() && v.Kind() != col.Type {
				return nil, tableErrf(CodeSyntax, n.tbl.name, s.col, nil,
					"value kind %s does not match column type %s", v.Kind(), col.Type)
			}
			row.Values[s.col] = v
		}
		ec.j.put(n.tbl, old, row)
		res.RowsAffected++
	}
	return res, nil
}

func (ec *execCtx) runDelete(n *deleteNode) (*Result, error) {
	in, err := ec.iterate(n.child)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	for _, er := range in {
		if old := er[n.tbl.name]; old != nil {
			ec.j.delete(n.tbl, old)
			res.RowsAffected++
		}
	}
	return res, nil
}
