package lf

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	metaBucketName   = []byte("__meta__")
	schemaNameKey    = []byte("schema_name")
	schemaVersionKey = []byte("schema_version")
)

// BoltStore is the durable back store on top of bbolt. Each table maps
// to one root bucket; row ids are big-endian keys so cursor order is
// row-id order.
type BoltStore struct {
	bdb *bbolt.DB
}

type BoltOptions struct {
	IsTesting bool
	MmapSize  int
}

func OpenBoltStore(path string, opt BoltOptions) (*BoltStore, error) {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	if opt.IsTesting {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
		bopt.InitialMmapSize = 1024 * 1024 * 5
	} else {
		bopt.InitialMmapSize = 1024 * 1024 * 1024
		bopt.FreelistType = bbolt.FreelistMapType
	}
	if opt.MmapSize != 0 {
		bopt.InitialMmapSize = opt.MmapSize
	}

	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, errf(CodeNotSupported, err, "cannot open bolt store at %s", path)
	}
	return &BoltStore{bdb: bdb}, nil
}

func (s *BoltStore) Bolt() *bbolt.DB { return s.bdb }

func (s *BoltStore) Open(scm *Schema, upgrade UpgradeFunc) error {
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		meta, err := btx.CreateBucketIfNotExists(metaBucketName)
		if err != nil {
			return errf(CodeBackStore, err, "meta bucket")
		}

		var stored uint64
		if raw := meta.Get(schemaVersionKey); len(raw) == 8 {
			stored = binary.BigEndian.Uint64(raw)
		}
		if stored > scm.Version() {
			return errf(CodeBackStore, nil, "stored schema version %d is newer than declared %d", stored, scm.Version())
		}

		for _, tbl := range scm.Tables() {
			if _, err := btx.CreateBucketIfNotExists([]byte(tbl.Name())); err != nil {
				return errf(CodeBackStore, err, "bucket for table %s", tbl.Name())
			}
		}

		if stored != 0 && stored < scm.Version() && upgrade != nil {
			if err := upgrade(&boltTx{btx: btx}, stored); err != nil {
				return err
			}
		}

		var verBuf [8]byte
		binary.BigEndian.PutUint64(verBuf[:], scm.Version())
		if err := meta.Put(schemaVersionKey, verBuf[:]); err != nil {
			return errf(CodeBackStore, err, "schema version")
		}
		return meta.Put(schemaNameKey, []byte(scm.Name()))
	})
}

func (s *BoltStore) CreateTx(mode TxMode, scope []string) (BackStoreTx, error) {
	btx, err := s.bdb.Begin(mode == ReadWrite)
	if err != nil {
		return nil, errf(CodeBackStore, err, "begin %s tx", mode)
	}
	return &boltTx{btx: btx, scope: scopeSet(scope)}, nil
}

func (s *BoltStore) Close() error {
	return s.bdb.Close()
}

type boltTx struct {
	btx   *bbolt.Tx
	scope map[string]bool
}

func (tx *boltTx) Mode() TxMode {
	if tx.btx.Writable() {
		return ReadWrite
	}
	return ReadOnly
}

func (tx *boltTx) Store(table string) (ObjectStore, error) {
	if tx.scope != nil && !tx.scope[table] {
		return nil, errf(CodeBackStore, nil, "table %q outside tx scope", table)
	}
	b := tx.btx.Bucket([]byte(table))
	if b == nil {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, table)
	}
	return boltObjectStore{b: b}, nil
}

func (tx *boltTx) Commit() error {
	if !tx.btx.Writable() {
		return tx.Rollback()
	}
	return tx.btx.Commit()
}

func (tx *boltTx) Rollback() error {
	err := tx.btx.Rollback()
	if err == bbolt.ErrTxClosed {
		return nil
	}
	return err
}

type boltObjectStore struct {
	b *bbolt.Bucket
}

func (b boltObjectStore) Get(key []byte) []byte       { return b.b.Get(key) }
func (b boltObjectStore) Put(key, value []byte) error { return b.b.Put(key, value) }
func (b boltObjectStore) Delete(key []byte) error     { return b.b.Delete(key) }
func (b boltObjectStore) Cursor() StoreCursor         { return boltCursor{c: b.b.Cursor()} }
func (b boltObjectStore) KeyCount() int               { return b.b.Stats().KeyN }

type boltCursor struct {
	c *bbolt.Cursor
}

func (c boltCursor) First() ([]byte, []byte) { return c.c.First() }
func (c boltCursor) Last() ([]byte, []byte)  { return c.c.Last() }
func (c boltCursor) Seek(seek []byte) ([]byte, []byte) { return c.c.Seek(seek) }
func (c boltCursor) Next() ([]byte, []byte) { return c.c.Next() }
func (c boltCursor) Prev() ([]byte, []byte) { return c.c.Prev() }
