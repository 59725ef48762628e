package lf

import (
	"reflect"
	"sort"
	"strings"
	"sync"
)

// ResultDiff describes how an observed query's results changed.
type ResultDiff struct {
	Added    []ResultRow
	Removed  []ResultRow
	Modified []ResultRow
}

func (d ResultDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// ObserverFunc receives the diff and the full new result of an
// observed query.
type ObserverFunc func(diff ResultDiff, res *Result)

type observerSub struct {
	id uintptr
	fn ObserverFunc
}

// observerEntry binds one query to its subscribers and the last
// materialised results. Entries reference queries; queries never
// reference entries, so no cycle forms.
type observerEntry struct {
	ctx         *Context
	subs        []observerSub
	lastVersion uint64
	last        *Result
	runMu       sync.Mutex
}

type observerRegistry struct {
	mu      sync.Mutex
	db      *DB
	entries map[uint64]*observerEntry
}

func newObserverRegistry(db *DB) *observerRegistry {
	return &observerRegistry{db: db, entries: make(map[uint64]*observerEntry)}
}

// Observe registers a callback on a SELECT context. The query is
// identified structurally, so semantically equal contexts share one
// registry entry. The first materialisation delivers the current
// result as additions.
func (db *DB) Observe(ctx *Context, fn ObserverFunc) error {
	if err := db.checkOpen(); err != nil {
		return err
	}
	if ctx.kind != QuerySelect {
		return errf(CodeSyntax, nil, "only select queries are observable")
	}

	reg := db.observers
	reg.mu.Lock()
	id := ctx.fingerprint()
	e := reg.entries[id]
	if e == nil {
		e = &observerEntry{ctx: ctx}
		reg.entries[id] = e
	}
	e.subs = append(e.subs, observerSub{id: funcPtr(fn), fn: fn})
	reg.mu.Unlock()

	reg.enqueue(e, db.commitVersion.Load(), true)
	return nil
}

// Unobserve removes a callback; an entry with no subscribers left is
// evicted from the registry.
func (db *DB) Unobserve(ctx *Context, fn ObserverFunc) {
	reg := db.observers
	reg.mu.Lock()
	defer reg.mu.Unlock()
	id := ctx.fingerprint()
	e := reg.entries[id]
	if e == nil {
		return
	}
	ptr := funcPtr(fn)
	for i, sub := range e.subs {
		if sub.id == ptr {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			break
		}
	}
	if len(e.subs) == 0 {
		delete(reg.entries, id)
	}
}

// notifyCommit runs after a commit made its writes visible; it re-runs
// every observed query whose table set intersects the mutated tables.
func (reg *observerRegistry) notifyCommit(tables []string, version uint64) {
	mutated := make(map[string]bool, len(tables))
	for _, t := range tables {
		mutated[t] = true
	}

	reg.mu.Lock()
	var affected []*observerEntry
	for _, e := range reg.entries {
		for _, t := range e.ctx.Tables() {
			if mutated[t] {
				affected = append(affected, e)
				break
			}
		}
	}
	reg.mu.Unlock()

	for _, e := range affected {
		reg.enqueue(e, version, false)
	}
}

// enqueue schedules a read-only materialisation task through the
// runner, so it observes the serialisation order like any other query.
func (reg *observerRegistry) enqueue(e *observerEntry, version uint64, initial bool) {
	scope := e.ctx.Tables()
	reg.db.runner.submit(ReadOnly, scope, func() ([]*Result, error) {
		reg.materialise(e, version, initial, scope)
		return nil, nil
	})
}

func (reg *observerRegistry) materialise(e *observerEntry, version uint64, initial bool, scope []string) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	if !initial && e.lastVersion >= version {
		return // a later materialisation already covered this commit
	}

	results, err := reg.db.runTxn([]*Context{e.ctx}, ReadOnly, scope)
	if err != nil {
		reg.db.logger.Error("observed query failed", "err", err)
		return
	}
	res := results[0]

	diff := diffResults(e.last, res)
	e.last = res
	e.lastVersion = reg.db.commitVersion.Load()

	if !initial && diff.Empty() {
		return
	}

	reg.mu.Lock()
	subs := append([]observerSub(nil), e.subs...)
	reg.mu.Unlock()
	for _, sub := range subs {
		reg.deliver(sub.fn, diff, res)
	}
}

// deliver isolates subscriber panics; a broken callback must not
// poison the commit pipeline.
func (reg *observerRegistry) deliver(fn ObserverFunc, diff ResultDiff, res *Result) {
	defer func() {
		if p := recover(); p != nil {
			reg.db.logger.Error("observer callback panicked", "panic", p)
		}
	}()
	fn(diff, res)
}

// diffResults compares two materialisations by row identity: row ids
// pair old and new versions of a row, identity-free rows (joins,
// aggregates) fall back to payload equality.
func diffResults(old, cur *Result) ResultDiff {
	var diff ResultDiff
	if old == nil {
		diff.Added = append(diff.Added, cur.Rows...)
		return diff
	}

	oldByID := make(map[uint64]ResultRow)
	var oldAnon []ResultRow
	for _, r := range old.Rows {
		if r.RowID != 0 {
			oldByID[r.RowID] = r
		} else {
			oldAnon = append(oldAnon, r)
		}
	}

	var newAnon []ResultRow
	for _, r := range cur.Rows {
		if r.RowID == 0 {
			newAnon = append(newAnon, r)
			continue
		}
		prev, ok := oldByID[r.RowID]
		if !ok {
			diff.Added = append(diff.Added, r)
			continue
		}
		delete(oldByID, r.RowID)
		if !resultRowEqual(prev, r) {
			diff.Modified = append(diff.Modified, r)
		}
	}
	for _, r := range oldByID {
		diff.Removed = append(diff.Removed, r)
	}

	// Multiset diff for rows without identity.
	counts := make(map[string]int)
	for _, r := range oldAnon {
		counts[resultRowFingerprint(r)]++
	}
	for _, r := range newAnon {
		fp := resultRowFingerprint(r)
		if counts[fp] > 0 {
			counts[fp]--
		} else {
			diff.Added = append(diff.Added, r)
		}
	}
	for _, r := range oldAnon {
		fp := resultRowFingerprint(r)
		if counts[fp] > 0 {
			counts[fp]--
			diff.Removed = append(diff.Removed, r)
		}
	}
	return diff
}

func resultRowEqual(a, b ResultRow) bool {
	if len(a.Values) != len(b.Values) {
		return false
	}
	for k, av := range a.Values {
		bv, ok := b.Values[k]
		if !ok || !valueEqual(av, bv) {
			return false
		}
	}
	return true
}

func resultRowFingerprint(r ResultRow) string {
	keys := make([]string, 0, len(r.Values))
	for k := range r.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf strings.Builder
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(r.Values[k].String())
		buf.WriteByte(';')
	}
	return buf.String()
}

func funcPtr(fn ObserverFunc) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
