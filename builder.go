package lf

import (
	"fmt"
)

// Builder is the common surface of the four query builders; any of
// them can participate in an atomic multi-query transaction.
type Builder interface {
	Build() (*Context, error)
	database() *DB
}

type builderCore struct {
	db     *DB
	ctx    Context
	err    error
	frozen *Context
}

func (b *builderCore) database() *DB { return b.db }

func (b *builderCore) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *builderCore) freeze() (*Context, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.frozen != nil {
		return b.frozen, nil
	}
	if err := b.db.checkOpen(); err != nil {
		return nil, err
	}
	ctx := b.ctx
	ctx.version = queryVersions.Add(1)
	if err := validateContext(b.db.schema, &ctx); err != nil {
		return nil, err
	}
	b.frozen = &ctx
	return b.frozen, nil
}

// SelectBuilder accumulates a SELECT draft.
type SelectBuilder struct {
	builderCore
}

// Select starts a SELECT. Columns are names ("year", "movie.year") or
// aggregate refs (Count, Sum, ...); none means every column.
func (db *DB) Select(cols ...any) *SelectBuilder {
	sb := &SelectBuilder{builderCore{db: db, ctx: Context{kind: QuerySelect}}}
	for _, c := range cols {
		switch c := c.(type) {
		case string:
			sb.ctx.columns = append(sb.ctx.columns, parseColRef(c))
		case ColRef:
			sb.ctx.columns = append(sb.ctx.columns, c)
		default:
			sb.fail(errf(CodeSyntax, nil, "unsupported column argument %T", c))
		}
	}
	return sb
}

func (sb *SelectBuilder) From(tables ...string) *SelectBuilder {
	sb.ctx.from = append(sb.ctx.from, tables...)
	return sb
}

func (sb *SelectBuilder) Where(p Predicate) *SelectBuilder {
	if sb.ctx.where != nil {
		sb.fail(errf(CodeSyntax, nil, "duplicate where clause"))
		return sb
	}
	sb.ctx.where = p
	return sb
}

func (sb *SelectBuilder) InnerJoin(table string, p Predicate) *SelectBuilder {
	sb.ctx.joins = append(sb.ctx.joins, joinClause{table: table, pred: p})
	return sb
}

func (sb *SelectBuilder) LeftOuterJoin(table string, p Predicate) *SelectBuilder {
	sb.ctx.joins = append(sb.ctx.joins, joinClause{table: table, pred: p, outer: true})
	return sb
}

func (sb *SelectBuilder) OrderBy(col string, ord Order) *SelectBuilder {
	sb.ctx.orderBy = append(sb.ctx.orderBy, orderClause{col: parseColRef(col), desc: ord == Desc})
	return sb
}

func (sb *SelectBuilder) GroupBy(cols ...string) *SelectBuilder {
	for _, c := range cols {
		sb.ctx.groupBy = append(sb.ctx.groupBy, parseColRef(c))
	}
	return sb
}

func (sb *SelectBuilder) Limit(n int) *SelectBuilder {
	sb.ctx.limit, sb.ctx.hasLim = n, true
	return sb
}

func (sb *SelectBuilder) Skip(n int) *SelectBuilder {
	sb.ctx.skip, sb.ctx.hasSkip = n, true
	return sb
}

// Bind sets the parameter vector for the context's bind slots. Calling
// it after a terminal verb produces a logically new query.
func (sb *SelectBuilder) Bind(vals ...Value) *SelectBuilder {
	if sb.frozen != nil {
		ctx := sb.frozen.Bind(vals...)
		sb.frozen = ctx
		return sb
	}
	sb.ctx.params = vals
	return sb
}

func (sb *SelectBuilder) Build() (*Context, error) {
	return sb.freeze()
}

func (sb *SelectBuilder) Exec() (*Result, error) {
	ctx, err := sb.freeze()
	if err != nil {
		return nil, err
	}
	results, err := sb.db.execContexts([]*Context{ctx})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// Explain returns the physical plan as an indented tree.
func (sb *SelectBuilder) Explain() (string, error) {
	ctx, err := sb.freeze()
	if err != nil {
		return "", err
	}
	plan, err := buildPlan(sb.db, ctx)
	if err != nil {
		return "", err
	}
	return explainPlan(plan), nil
}

// InsertBuilder accumulates an INSERT draft.
type InsertBuilder struct {
	builderCore
}

func (db *DB) Insert() *InsertBuilder {
	return &InsertBuilder{builderCore{db: db, ctx: Context{kind: QueryInsert}}}
}

// InsertOrReplace inserts rows, replacing existing rows that collide on
// the table's primary key.
func (db *DB) InsertOrReplace() *InsertBuilder {
	return &InsertBuilder{builderCore{db: db, ctx: Context{kind: QueryInsert, replace: true}}}
}

func (ib *InsertBuilder) Into(table string) *InsertBuilder {
	ib.ctx.from = []string{table}
	return ib
}

// Values appends row payloads. Map values go through the same coercion
// as predicate operands.
func (ib *InsertBuilder) Values(rows ...map[string]any) *InsertBuilder {
	for _, raw := range rows {
		row := make(map[string]Value, len(raw))
		for k, v := range raw {
			row[k] = valueOf(v)
		}
		ib.ctx.rows = append(ib.ctx.rows, row)
	}
	return ib
}

func (ib *InsertBuilder) Build() (*Context, error) {
	return ib.freeze()
}

func (ib *InsertBuilder) Exec() (*Result, error) {
	return execSingle(ib)
}

// UpdateBuilder accumulates an UPDATE draft.
type UpdateBuilder struct {
	builderCore
}

func (db *DB) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{builderCore{db: db, ctx: Context{kind: QueryUpdate, from: []string{table}}}}
}

func (ub *UpdateBuilder) Set(col string, v any) *UpdateBuilder {
	ub.ctx.sets = append(ub.ctx.sets, setClause{col: col, op: toOperand(v)})
	return ub
}

func (ub *UpdateBuilder) Where(p Predicate) *UpdateBuilder {
	ub.ctx.where = p
	return ub
}

func (ub *UpdateBuilder) Bind(vals ...Value) *UpdateBuilder {
	ub.ctx.params = vals
	return ub
}

func (ub *UpdateBuilder) Build() (*Context, error) {
	return ub.freeze()
}

func (ub *UpdateBuilder) Exec() (*Result, error) {
	return execSingle(ub)
}

// DeleteBuilder accumulates a DELETE draft.
type DeleteBuilder struct {
	builderCore
}

func (db *DB) Delete() *DeleteBuilder {
	return &DeleteBuilder{builderCore{db: db, ctx: Context{kind: QueryDelete}}}
}

func (db *DeleteBuilder) From(table string) *DeleteBuilder {
	db.ctx.from = []string{table}
	return db
}

func (db *DeleteBuilder) Where(p Predicate) *DeleteBuilder {
	db.ctx.where = p
	return db
}

func (db *DeleteBuilder) Bind(vals ...Value) *DeleteBuilder {
	db.ctx.params = vals
	return db
}

func (db *DeleteBuilder) Build() (*Context, error) {
	return db.freeze()
}

func (db *DeleteBuilder) Exec() (*Result, error) {
	return execSingle(db)
}

func execSingle(b Builder) (*Result, error) {
	ctx, err := b.Build()
	if err != nil {
		return nil, err
	}
	results, err := b.database().execContexts([]*Context{ctx})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// TxBuilder runs several queries as one atomic transaction.
type TxBuilder struct {
	db   *DB
	done bool
}

func (db *DB) CreateTransaction() *TxBuilder {
	return &TxBuilder{db: db}
}

// Exec freezes every builder and runs the contexts atomically. A
// transaction object is single-use; re-exec fails with TRANSACTION.
func (tx *TxBuilder) Exec(builders ...Builder) ([]*Result, error) {
	if tx.done {
		return nil, errf(CodeTransaction, nil, "transaction already executed")
	}
	tx.done = true
	ctxs := make([]*Context, len(builders))
	for i, b := range builders {
		ctx, err := b.Build()
		if err != nil {
			return nil, err
		}
		ctxs[i] = ctx
	}
	return tx.db.execContexts(ctxs)
}

// validateContext resolves column references against the schema and
// rejects unknown tables and columns at the terminal verb.
func validateContext(scm *Schema, ctx *Context) error {
	tables := ctx.Tables()
	if len(tables) == 0 {
		return errf(CodeSyntax, nil, "%s without a table", ctx.kind)
	}
	for _, t := range tables {
		if scm.TableNamed(t) == nil {
			return errf(CodeNotFound, nil, "unknown table %q", t)
		}
	}

	for i := range ctx.columns {
		if err := resolveColRef(scm, tables, &ctx.columns[i]); err != nil {
			return err
		}
	}
	for i := range ctx.orderBy {
		if err := resolveColRef(scm, tables, &ctx.orderBy[i].col); err != nil {
			return err
		}
	}
	for i := range ctx.groupBy {
		if err := resolveColRef(scm, tables, &ctx.groupBy[i]); err != nil {
			return err
		}
	}

	if ctx.where != nil {
		resolved, err := resolvePredicate(scm, tables, ctx.where)
		if err != nil {
			return err
		}
		ctx.where = resolved
	}
	for i, j := range ctx.joins {
		resolved, err := resolvePredicate(scm, tables, j.pred)
		if err != nil {
			return err
		}
		ctx.joins[i].pred = resolved
	}

	switch ctx.kind {
	case QueryInsert:
		tbl := scm.TableNamed(tables[0])
		for _, row := range ctx.rows {
			for col, v := range row {
				c := tbl.ColumnNamed(col)
				if c == nil {
					return tableErrf(CodeNotFound, tbl.name, col, nil, "unknown column")
				}
				if !v.IsNull() && v.Kind() != c.Type {
					return tableErrf(CodeSyntax, tbl.name, col, nil,
						"value kind %s does not match column type %s", v.Kind(), c.Type)
				}
			}
		}
		if len(ctx.rows) == 0 {
			return errf(CodeSyntax, nil, "insert without rows")
		}
	case QueryUpdate:
		tbl := scm.TableNamed(tables[0])
		if len(ctx.sets) == 0 {
			return errf(CodeSyntax, nil, "update without set clauses")
		}
		for _, s := range ctx.sets {
			if tbl.ColumnNamed(s.col) == nil {
				return tableErrf(CodeNotFound, tbl.name, s.col, nil, "unknown column")
			}
		}
	}
	return nil
}

func resolveColRef(scm *Schema, tables []string, ref *ColRef) error {
	if ref.Table != "" {
		if !containsString(tables, ref.Table) {
			return errf(CodeNotFound, nil, "table %q is not part of the query", ref.Table)
		}
		if scm.TableNamed(ref.Table).ColumnNamed(ref.Column) == nil {
			return tableErrf(CodeNotFound, ref.Table, ref.Column, nil, "unknown column")
		}
		return nil
	}
	var owner string
	for _, t := range tables {
		if scm.TableNamed(t).ColumnNamed(ref.Column) != nil {
			if owner != "" {
				return errf(CodeSyntax, nil, "ambiguous column %q (in %s and %s)", ref.Column, owner, t)
			}
			owner = t
		}
	}
	if owner == "" {
		return errf(CodeNotFound, nil, "unknown column %q", ref.Column)
	}
	ref.Table = owner
	return nil
}

func resolvePredicate(scm *Schema, tables []string, p Predicate) (Predicate, error) {
	switch p := p.(type) {
	case *ValuePredicate:
		out := *p
		if err := resolveColRef(scm, tables, &out.Col); err != nil {
			return nil, err
		}
		return &out, nil
	case *JoinPredicate:
		out := *p
		if err := resolveColRef(scm, tables, &out.Left); err != nil {
			return nil, err
		}
		if err := resolveColRef(scm, tables, &out.Right); err != nil {
			return nil, err
		}
		return &out, nil
	case *CombinedPredicate:
		out := &CombinedPredicate{Kind: p.Kind, Children: make([]Predicate, len(p.Children))}
		for i, c := range p.Children {
			rc, err := resolvePredicate(scm, tables, c)
			if err != nil {
				return nil, err
			}
			out.Children[i] = rc
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown predicate %T", p)
	}
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
