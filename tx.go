package lf

// Task is a handle to one scheduled query task. It can be awaited, or
// cancelled while it is still queued.
type Task struct {
	inner *task
	db    *DB
}

// Await blocks until the task finished and returns its results.
func (t *Task) Await() ([]*Result, error) {
	return t.inner.await()
}

// Cancel removes the task if it has not started running. A cancelled
// task's Await fails with TASK_CANCELLED and no side effects occur.
func (t *Task) Cancel() bool {
	return t.db.runner.cancel(t.inner)
}

func (db *DB) execContexts(ctxs []*Context) ([]*Result, error) {
	t, err := db.submitContexts(ctxs)
	if err != nil {
		return nil, err
	}
	return t.Await()
}

// submitContexts enqueues one task executing the given contexts as an
// atomic unit over the union of their table scopes.
func (db *DB) submitContexts(ctxs []*Context) (*Task, error) {
	if err := db.checkOpen(); err != nil {
		return nil, err
	}
	if len(ctxs) == 0 {
		return nil, errf(CodeSyntax, nil, "empty transaction")
	}

	mode := ReadOnly
	seen := make(map[string]bool)
	var scope []string
	for _, ctx := range ctxs {
		if ctx.kind != QuerySelect {
			mode = ReadWrite
		}
		for _, t := range ctx.Tables() {
			if !seen[t] {
				seen[t] = true
				scope = append(scope, t)
			}
		}
	}

	inner := db.runner.submit(mode, scope, func() ([]*Result, error) {
		return db.runTxn(ctxs, mode, scope)
	})
	return &Task{inner: inner, db: db}, nil
}

// runTxn executes the contexts inside one back-store transaction with
// a fresh journal. Reads go journal, cache, then back store; writes
// stage in the journal. After every query succeeded the journal is
// validated, flushed and committed; indices and cache update in one
// critical section, the commit version bumps and the observer registry
// learns the mutated tables. Any failure aborts with no visible
// effect.
func (db *DB) runTxn(ctxs []*Context, mode TxMode, scope []string) ([]*Result, error) {
	btx, err := db.store.CreateTx(mode, scope)
	if err != nil {
		return nil, errf(CodeBackStore, err, "begin task tx")
	}

	ec := &execCtx{db: db, j: newJournal(db), btx: btx}
	results := make([]*Result, 0, len(ctxs))
	for _, ctx := range ctxs {
		plan, err := buildPlan(db, ctx)
		if err != nil {
			btx.Rollback()
			return nil, err
		}
		res, err := executePlan(ec, ctx, plan)
		if err != nil {
			btx.Rollback()
			return nil, err
		}
		results = append(results, res)
	}

	if mode == ReadOnly || ec.j.empty() {
		btx.Rollback()
		return results, nil
	}

	if err := ec.j.validate(); err != nil {
		btx.Rollback()
		return nil, err
	}
	if err := ec.j.flush(btx); err != nil {
		btx.Rollback()
		return nil, err
	}
	if err := btx.Commit(); err != nil {
		btx.Rollback()
		return nil, errf(CodeBackStore, err, "commit")
	}

	changes := ec.j.replay()
	version := db.commitVersion.Add(1)
	if db.verbose {
		for _, chg := range changes {
			db.logger.Debug("commit change",
				"table", chg.Table.Name(), "op", chg.Op.String(), "row", chg.RowID, "version", version)
		}
	}
	db.observers.notifyCommit(ec.j.mutatedTables(), version)
	return results, nil
}
