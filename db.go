package lf

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DB is an open engine session: schema, back store, per-table caches
// and indices, the task runner and the observer registry.
type DB struct {
	store   BackStore
	schema  *Schema
	logger  *slog.Logger
	verbose bool

	tableStates map[string]*tableState
	rowIDs      rowIDSource

	commitVersion atomic.Uint64
	runner        *runner
	observers     *observerRegistry
	closed        atomic.Bool
}

type Options struct {
	Logger    *slog.Logger
	Verbose   bool
	IsTesting bool
	OnUpgrade UpgradeFunc
}

// Open prepares the back store for the schema, loads every table into
// the cache, rebuilds the indices and recovers the row-id counter.
func Open(store BackStore, scm *Schema, opt Options) (*DB, error) {
	if store == nil {
		return nil, errf(CodeNotSupported, nil, "no back store")
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := store.Open(scm, opt.OnUpgrade); err != nil {
		return nil, err
	}

	db := &DB{
		store:       store,
		schema:      scm,
		logger:      logger,
		verbose:     opt.Verbose,
		tableStates: make(map[string]*tableState, len(scm.tables)),
		runner:      newRunner(),
	}
	db.observers = newObserverRegistry(db)
	for _, tbl := range scm.tables {
		db.tableStates[tbl.name] = newTableState(tbl)
	}

	if err := db.load(); err != nil {
		store.Close()
		return nil, err
	}
	return db, nil
}

// OpenFile opens a bolt-backed database at path.
func OpenFile(path string, scm *Schema, opt Options) (*DB, error) {
	store, err := OpenBoltStore(path, BoltOptions{IsTesting: opt.IsTesting})
	if err != nil {
		return nil, err
	}
	return Open(store, scm, opt)
}

// load scans every table once, filling cache and indices and observing
// the highest row id.
func (db *DB) load() error {
	btx, err := db.store.CreateTx(ReadOnly, nil)
	if err != nil {
		return errf(CodeBackStore, err, "load")
	}
	defer btx.Rollback()

	for _, tbl := range db.schema.tables {
		st, err := btx.Store(tbl.name)
		if err != nil {
			if errors.Is(err, ErrStoreNotFound) {
				continue
			}
			return errf(CodeBackStore, err, "load %s", tbl.name)
		}
		ts := db.tableStates[tbl.name]
		err = storeScan(st, func(key, value []byte) error {
			row, err := decodeRow(key, value)
			if err != nil {
				return err
			}
			db.rowIDs.observe(row.ID)
			ts.cache.Put(row)
			for i, spec := range tbl.indices {
				if k, ok := indexKeyForRow(spec, row); ok {
					if err := ts.indices[i].Add(k, row.ID); err != nil {
						return tableErrf(CodeBackStore, tbl.name, "", err, "index %s disagrees with stored rows", spec.Name)
					}
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if last := storeLastKey(st); last != nil {
			db.rowIDs.observe(rowKeyID(last))
		}
	}
	return nil
}

// Close drains the runner and closes the back store.
func (db *DB) Close() error {
	if db.closed.Swap(true) {
		return nil
	}
	db.runner.close()
	return db.store.Close()
}

func (db *DB) Schema() *Schema { return db.schema }

// Version is the current commit version: a monotonic counter bumped
// once per successful read-write commit.
func (db *DB) Version() uint64 { return db.commitVersion.Load() }

func (db *DB) checkOpen() error {
	if db == nil || db.closed.Load() {
		return errf(CodeUninitialized, nil, "database is not open")
	}
	return nil
}

func (db *DB) tableState(name string) *tableState {
	return nonNil(db.tableStates[name])
}

// tableState holds the in-memory side of one table: the row cache and
// the indices, guarded by one lock. Mutation happens only inside the
// commit step of a task, so readers never see a torn state.
type tableState struct {
	tbl     *Table
	mu      sync.RWMutex
	cache   *rowCache
	indices []Index
}

func newTableState(tbl *Table) *tableState {
	ts := &tableState{
		tbl:     tbl,
		cache:   newRowCache(),
		indices: make([]Index, len(tbl.indices)),
	}
	for i, spec := range tbl.indices {
		ts.indices[i] = newIndexForSpec(spec)
	}
	return ts
}

func (ts *tableState) indexNamed(name string) Index {
	for i, spec := range ts.tbl.indices {
		if spec.Name == name {
			return ts.indices[i]
		}
	}
	return nil
}

func (ts *tableState) cacheLen() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.cache.Len()
}

func (ts *tableState) cacheGet(id uint64) (*Row, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.cache.Get(id)
}

func (ts *tableState) cacheAll() []*Row {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.cache.All()
}

func (ts *tableState) indexGet(name string, key Value) []uint64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	idx := ts.indexNamed(name)
	if idx == nil {
		return nil
	}
	return idx.Get(key)
}

func (ts *tableState) indexGetRange(name string, ranges []KeyRange) []uint64 {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	idx := ts.indexNamed(name)
	if idx == nil {
		return nil
	}
	return idx.GetRange(ranges)
}

func (ts *tableState) indexCost(name string, ranges []KeyRange) int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	idx := ts.indexNamed(name)
	if idx == nil {
		return int(^uint(0) >> 1)
	}
	return idx.Cost(ranges)
}
