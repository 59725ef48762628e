package lf

// journal is the per-transaction staging area. Every write of a task
// lands here first; the cache, the indices and the back store see
// nothing until commit. Reads within the task consult the journal
// before the cache so a task observes its own prior writes.
type journal struct {
	db      *DB
	changes map[journalKey]*rowChange
	order   []journalKey
}

type journalKey struct {
	table string
	rowID uint64
}

type rowChange struct {
	tbl *Table
	op  Op
	old *Row // pre image, nil for inserts
	row *Row // post image, nil for deletes
}

func newJournal(db *DB) *journal {
	return &journal{db: db, changes: make(map[journalKey]*rowChange)}
}

func (j *journal) change(tbl *Table, rowID uint64) (*rowChange, bool) {
	chg, ok := j.changes[journalKey{tbl.name, rowID}]
	return chg, ok
}

func (j *journal) track(tbl *Table, rowID uint64) *rowChange {
	key := journalKey{tbl.name, rowID}
	chg, ok := j.changes[key]
	if !ok {
		chg = &rowChange{tbl: tbl}
		j.changes[key] = chg
		j.order = append(j.order, key)
	}
	return chg
}

func (j *journal) put(tbl *Table, old, row *Row) {
	chg := j.track(tbl, row.ID)
	if chg.op == OpNone {
		chg.old = old
	}
	chg.op = OpPut
	chg.row = row
}

func (j *journal) delete(tbl *Table, old *Row) {
	chg := j.track(tbl, old.ID)
	if chg.op == OpNone {
		chg.old = old
	}
	chg.op = OpDelete
	chg.row = nil
}

func (j *journal) empty() bool {
	return len(j.order) == 0
}

func (j *journal) mutatedTables() []string {
	seen := make(map[string]bool)
	var out []string
	for _, key := range j.order {
		if !seen[key.table] {
			seen[key.table] = true
			out = append(out, key.table)
		}
	}
	return out
}

// validate checks the journal's post image against the schema's
// constraints: not-null columns and unique indices (the primary key is
// covered by its implicit unique index).
func (j *journal) validate() error {
	byTable := make(map[string][]*rowChange)
	for _, key := range j.order {
		chg := j.changes[key]
		byTable[key.table] = append(byTable[key.table], chg)
	}

	for name, changes := range byTable {
		tbl := j.db.schema.TableNamed(name)
		ts := j.db.tableState(name)
		for _, chg := range changes {
			if chg.op != OpPut {
				continue
			}
			for _, col := range tbl.columns {
				if col.Nullable {
					continue
				}
				if chg.row.Get(col.Name).IsNull() {
					return tableErrf(CodeConstraintViolation, tbl.name, col.Name, nil, "null in not-null column")
				}
			}
		}

		for _, spec := range tbl.indices {
			if !spec.Unique {
				continue
			}
			pending := make(map[string]uint64)
			for _, chg := range changes {
				if chg.op != OpPut {
					continue
				}
				key, ok := indexKeyForRow(spec, chg.row)
				if !ok {
					continue
				}
				fk := formatKey(key)
				if prev, dup := pending[fk]; dup && prev != chg.row.ID {
					return tableErrf(CodeConstraintViolation, tbl.name, spec.Columns[0], nil,
						"duplicate key %s in index %s", key, spec.Name)
				}
				pending[fk] = chg.row.ID
				for _, existing := range ts.indexGet(spec.Name, key) {
					if existing == chg.row.ID {
						continue
					}
					if j.stillHasKey(tbl, spec, existing, key) {
						return tableErrf(CodeConstraintViolation, tbl.name, spec.Columns[0], nil,
							"duplicate key %s in index %s", key, spec.Name)
					}
				}
			}
		}
	}
	return nil
}

// stillHasKey reports whether the given committed row keeps the index
// key after this journal's changes are applied.
func (j *journal) stillHasKey(tbl *Table, spec *IndexSpec, rowID uint64, key Value) bool {
	if chg, ok := j.change(tbl, rowID); ok {
		if chg.op == OpDelete {
			return false
		}
		newKey, ok := indexKeyForRow(spec, chg.row)
		if !ok {
			return false
		}
		c, cok := compareValues(newKey, key)
		return cok && c == 0
	}
	return true
}

// flush writes the journal's deltas to the back-store transaction.
func (j *journal) flush(btx BackStoreTx) error {
	for _, key := range j.order {
		chg := j.changes[key]
		st, err := btx.Store(key.table)
		if err != nil {
			return errf(CodeBackStore, err, "flush %s", key.table)
		}
		switch chg.op {
		case OpPut:
			data, err := encodeRow(chg.row)
			if err != nil {
				return errf(CodeBackStore, err, "encode row %d of %s", key.rowID, key.table)
			}
			if err := st.Put(rowKey(key.rowID), data); err != nil {
				return errf(CodeBackStore, err, "put row %d of %s", key.rowID, key.table)
			}
		case OpDelete:
			if err := st.Delete(rowKey(key.rowID)); err != nil {
				return errf(CodeBackStore, err, "delete row %d of %s", key.rowID, key.table)
			}
		}
	}
	return nil
}

// replay promotes the journal's post image into the indices and the
// cache. It runs once, after the back-store commit succeeded, holding
// the locks of every mutated table for the whole replay, and must not
// fail: validate has already vetted every constraint.
func (j *journal) replay() []Change {
	tables := j.mutatedTables()
	for _, name := range tables {
		j.db.tableState(name).mu.Lock()
	}
	defer func() {
		for _, name := range tables {
			j.db.tableState(name).mu.Unlock()
		}
	}()

	out := make([]Change, 0, len(j.order))
	for _, key := range j.order {
		chg := j.changes[key]
		ts := j.db.tableState(key.table)
		if chg.old != nil {
			for i, spec := range chg.tbl.indices {
				if k, ok := indexKeyForRow(spec, chg.old); ok {
					ts.indices[i].Remove(k, chg.old.ID)
				}
			}
		}
		switch chg.op {
		case OpPut:
			for i, spec := range chg.tbl.indices {
				if k, ok := indexKeyForRow(spec, chg.row); ok {
					ensure(ts.indices[i].Add(k, chg.row.ID))
				}
			}
			ts.cache.Put(chg.row)
		case OpDelete:
			ts.cache.Delete(key.rowID)
		}

		out = append(out, Change{
			Table:  chg.tbl,
			Op:     chg.op,
			RowID:  key.rowID,
			OldRow: chg.old,
			NewRow: chg.row,
		})
	}
	return out
}
