package lf

// storeScan walks an object store in key order.
func storeScan(st ObjectStore, fn func(key, value []byte) error) error {
	c := st.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// storeLastKey returns the final key of an object store; the engine
// scans it at open time to recover the next row id.
func storeLastKey(st ObjectStore) []byte {
	k, _ := st.Cursor().Last()
	return k
}
